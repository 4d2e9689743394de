package ports

import "github.com/alejandrodnm/bnplbot/internal/domain"

// Metrics records engine telemetry.
type Metrics interface {
	ObserveScenario(t domain.ScenarioType, success bool, volume float64)
	SetGoalProgress(p domain.GoalProgress)
	SetPaused(paused bool)
	SetConsecutiveFailures(n int)
}
