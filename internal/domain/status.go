package domain

import "time"

// SchedulerStatus is a point-in-time view of the tick scheduler.
type SchedulerStatus struct {
	Running    bool      `json:"running"`
	Paused     bool      `json:"paused"`
	NextTickAt time.Time `json:"nextTickAt,omitempty"`
	HoldUntil  time.Time `json:"holdUntil,omitempty"`
}

// StatusReport is everything shown by the status command and endpoint.
type StatusReport struct {
	GeneratedAt         time.Time       `json:"generatedAt"`
	State               BotState        `json:"state"`
	Progress            GoalProgress    `json:"progress"`
	Pool                PoolStats       `json:"pool"`
	Scheduler           SchedulerStatus `json:"scheduler"`
	ConsecutiveFailures int             `json:"consecutiveFailures"`
	BreakerTrips        int             `json:"breakerTrips"`
}
