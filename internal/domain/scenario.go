package domain

import "time"

// ScenarioType names one kind of synthetic operation.
type ScenarioType string

const (
	ScenarioBootstrap       ScenarioType = "bootstrap"
	ScenarioLpDeposit       ScenarioType = "lp_deposit"
	ScenarioLpWithdraw      ScenarioType = "lp_withdraw"
	ScenarioMerchantOnboard ScenarioType = "merchant_onboard"
	ScenarioMerchantApprove ScenarioType = "merchant_approve"
	ScenarioBnplCreateBill  ScenarioType = "bnpl_create_bill"
	ScenarioBnplPay         ScenarioType = "bnpl_pay"
	ScenarioBnplRepay       ScenarioType = "bnpl_repay"

	// ScenarioActivityCycle is a recommendation, not a runnable scenario.
	// The engine resolves it to one of the BNPL scenarios.
	ScenarioActivityCycle ScenarioType = "activity_cycle"
)

// AllScenarioTypes lists every runnable scenario in a stable order.
var AllScenarioTypes = []ScenarioType{
	ScenarioBootstrap,
	ScenarioLpDeposit,
	ScenarioLpWithdraw,
	ScenarioMerchantOnboard,
	ScenarioMerchantApprove,
	ScenarioBnplCreateBill,
	ScenarioBnplPay,
	ScenarioBnplRepay,
}

// ParseScenarioType validates a user supplied scenario name.
func ParseScenarioType(s string) (ScenarioType, bool) {
	for _, t := range AllScenarioTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// ScenarioResult is what every scenario execution returns. Failures are
// values, never panics.
type ScenarioResult struct {
	Success bool           `json:"success"`
	Type    ScenarioType   `json:"type"`
	Details map[string]any `json:"details,omitempty"`
	Error   string         `json:"error,omitempty"`
	TxHash  string         `json:"txHash,omitempty"`
	Volume  float64        `json:"volume,omitempty"`
}

// Failure builds a failed result for t.
func Failure(t ScenarioType, err error) ScenarioResult {
	return ScenarioResult{Type: t, Error: err.Error()}
}

// ActivityEntry is one completed scenario as recorded in the activity log.
type ActivityEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Scenario  ScenarioType   `json:"scenario"`
	Success   bool           `json:"success"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
	Volume    float64        `json:"volume,omitempty"`
	TxHash    string         `json:"txHash,omitempty"`
}

// ActivitySummaryRow aggregates the activity log by (date, scenario, success).
type ActivitySummaryRow struct {
	Date     string       `json:"date"`
	Scenario ScenarioType `json:"scenario"`
	Success  bool         `json:"success"`
	Count    int64        `json:"count"`
	Volume   float64      `json:"volume"`
}

// TxResult is the outcome of one chain invocation.
type TxResult struct {
	Hash   string
	Amount float64 // decoded numeric return value, if any
	BillID uint64  // set by bill creation
}
