package domain

import (
	"errors"
	"time"
)

// SchemaVersion is the version of the persisted BotState layout.
const SchemaVersion = 1

// RecentActivityCap bounds the in-memory activity ring buffer.
const RecentActivityCap = 100

// ErrNoState is returned by stores that have never saved a snapshot.
var ErrNoState = errors.New("no persisted state")

// DateKey is the local calendar date used for daily rollover.
func DateKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// DailyStats are the counters for one local calendar day.
type DailyStats struct {
	Date         string               `json:"date"`
	TxCount      int                  `json:"txCount"`
	SuccessCount int                  `json:"successCount"`
	FailureCount int                  `json:"failureCount"`
	Volume       float64              `json:"volume"`
	Scenarios    map[ScenarioType]int `json:"scenarios"`
}

// NewDailyStats returns zeroed counters for date.
func NewDailyStats(date string) DailyStats {
	return DailyStats{Date: date, Scenarios: make(map[ScenarioType]int)}
}

// Clone returns a deep copy.
func (d DailyStats) Clone() DailyStats {
	out := d
	out.Scenarios = make(map[ScenarioType]int, len(d.Scenarios))
	for k, v := range d.Scenarios {
		out.Scenarios[k] = v
	}
	return out
}

// BotState is the persisted aggregate stored under the singleton key.
type BotState struct {
	SchemaVersion  int             `json:"schemaVersion"`
	LastUpdated    time.Time       `json:"lastUpdated"`
	IsRunning      bool            `json:"isRunning"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	DailyStats     DailyStats      `json:"dailyStats"`
	TotalVolume    float64         `json:"totalVolume"`
	AccountPool    PoolSnapshot    `json:"accountPool"`
	Goals          GoalProgress    `json:"goals"`
	RecentActivity []ActivityEntry `json:"recentActivity"`
}

// NewBotState returns an empty state dated today.
func NewBotState(now time.Time) BotState {
	return BotState{
		SchemaVersion: SchemaVersion,
		LastUpdated:   now,
		DailyStats:    NewDailyStats(DateKey(now)),
	}
}

// Clone returns a deep copy.
func (s BotState) Clone() BotState {
	out := s
	out.DailyStats = s.DailyStats.Clone()
	out.AccountPool = s.AccountPool.Clone()
	out.RecentActivity = make([]ActivityEntry, len(s.RecentActivity))
	copy(out.RecentActivity, s.RecentActivity)
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	return out
}

// MergeRestored folds a persisted snapshot into a freshly initialised state.
//
// Daily counters are adopted only when the snapshot belongs to today. The
// account pool, total volume, goal snapshot and recent activity are adopted
// regardless of date. Process-local fields (running flag, start time) are
// always kept from current.
func MergeRestored(current, persisted BotState, today string) BotState {
	merged := current.Clone()
	merged.SchemaVersion = SchemaVersion

	if persisted.DailyStats.Date == today {
		merged.DailyStats = persisted.DailyStats.Clone()
		if merged.DailyStats.Scenarios == nil {
			merged.DailyStats.Scenarios = make(map[ScenarioType]int)
		}
	} else {
		merged.DailyStats = NewDailyStats(today)
	}

	merged.TotalVolume = persisted.TotalVolume
	merged.AccountPool = persisted.AccountPool.Clone()
	merged.Goals = persisted.Goals

	recent := persisted.RecentActivity
	if len(recent) > RecentActivityCap {
		recent = recent[len(recent)-RecentActivityCap:]
	}
	merged.RecentActivity = make([]ActivityEntry, len(recent))
	copy(merged.RecentActivity, recent)

	return merged
}
