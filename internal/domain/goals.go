package domain

// Metric is one goal dimension.
type Metric struct {
	Current    float64 `json:"current"`
	Target     float64 `json:"target"`
	Percentage float64 `json:"percentage"`
}

// NewMetric computes the clamped percentage. A non-positive target counts
// as already met.
func NewMetric(current, target float64) Metric {
	return Metric{Current: current, Target: target, Percentage: Percentage(current, target)}
}

// Percentage returns current/target*100 clamped to [0,100].
func Percentage(current, target float64) float64 {
	if target <= 0 {
		return 100
	}
	p := current / target * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// GoalProgress is recomputed on every query.
type GoalProgress struct {
	TVL       Metric `json:"tvl"`
	Merchants Metric `json:"merchants"`
	Users     Metric `json:"users"`
	DailyTx   Metric `json:"dailyTx"`
}

// Goals are the configured targets.
type Goals struct {
	TVL       float64 `json:"tvl" yaml:"tvl"`
	Merchants int     `json:"merchants" yaml:"merchants"`
	Users     int     `json:"users" yaml:"users"`
	DailyTx   int     `json:"dailyTx" yaml:"daily_tx"`
}
