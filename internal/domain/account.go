package domain

import "time"

// Role identifica el papel de una identidad sintética dentro del protocolo.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleMerchant   Role = "merchant"
	RoleUser       Role = "user"
	RoleLiquidator Role = "liquidator"
)

// MerchantStatus mirrors the on-chain merchant lifecycle.
type MerchantStatus string

const (
	MerchantNone      MerchantStatus = "none"
	MerchantPending   MerchantStatus = "pending"
	MerchantApproved  MerchantStatus = "approved"
	MerchantRejected  MerchantStatus = "rejected"
	MerchantSuspended MerchantStatus = "suspended"
	MerchantCancelled MerchantStatus = "cancelled"
)

// BillStatus is the subset of bill states the bot tracks locally.
type BillStatus string

const (
	BillCreated BillStatus = "created"
	BillPaid    BillStatus = "paid"
)

// BillWindow is how long a created bill can be paid before it expires on-chain.
const BillWindow = 24 * time.Hour

// Bill is an outstanding BNPL obligation owned by a user.
type Bill struct {
	ID        uint64     `json:"id"`
	Merchant  string     `json:"merchant"`
	Amount    float64    `json:"amount"`
	Status    BillStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Expired reports whether a created bill can no longer be paid.
func (b Bill) Expired(now time.Time) bool {
	return b.Status == BillCreated && now.Sub(b.CreatedAt) > BillWindow
}

// AccountState es una identidad sintética con su estado específico de rol.
type AccountState struct {
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`

	// merchant
	InfoID       string         `json:"infoId,omitempty"`
	Status       MerchantStatus `json:"status,omitempty"`
	BillsCreated int            `json:"billsCreated,omitempty"`

	// user
	LPBalance   float64 `json:"lpBalance,omitempty"`
	USDCBalance float64 `json:"usdcBalance,omitempty"`
	ActiveBills []Bill  `json:"activeBills,omitempty"`
}

// Clone returns a deep copy.
func (a AccountState) Clone() AccountState {
	if a.ActiveBills != nil {
		bills := make([]Bill, len(a.ActiveBills))
		copy(bills, a.ActiveBills)
		a.ActiveBills = bills
	}
	return a
}

// BillsWithStatus returns the user's bills in the given status.
func (a AccountState) BillsWithStatus(status BillStatus) []Bill {
	var out []Bill
	for _, b := range a.ActiveBills {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out
}

// Outstanding is the principal of all bills not yet repaid.
func (a AccountState) Outstanding() float64 {
	var total float64
	for _, b := range a.ActiveBills {
		total += b.Amount
	}
	return total
}

// HasPosition reports whether a user holds LP tokens or owes bills.
func (a AccountState) HasPosition() bool {
	return a.LPBalance > 0 || len(a.ActiveBills) > 0
}

// PoolSnapshot is the serialisable form of the account pool.
type PoolSnapshot struct {
	Admin       *AccountState  `json:"admin,omitempty"`
	Merchants   []AccountState `json:"merchants"`
	Users       []AccountState `json:"users"`
	Liquidators []AccountState `json:"liquidators"`
}

// Empty reports whether the snapshot holds no accounts at all.
func (s PoolSnapshot) Empty() bool {
	return s.Admin == nil && len(s.Merchants) == 0 && len(s.Users) == 0 && len(s.Liquidators) == 0
}

// Clone returns a deep copy of the snapshot.
func (s PoolSnapshot) Clone() PoolSnapshot {
	out := PoolSnapshot{
		Merchants:   cloneAccounts(s.Merchants),
		Users:       cloneAccounts(s.Users),
		Liquidators: cloneAccounts(s.Liquidators),
	}
	if s.Admin != nil {
		admin := s.Admin.Clone()
		out.Admin = &admin
	}
	return out
}

func cloneAccounts(in []AccountState) []AccountState {
	out := make([]AccountState, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}

// PoolStats aggregates account counts for goals and status display.
type PoolStats struct {
	TotalMerchants    int `json:"totalMerchants"`
	ApprovedMerchants int `json:"approvedMerchants"`
	PendingMerchants  int `json:"pendingMerchants"`
	TotalUsers        int `json:"totalUsers"`
	ActiveUsers       int `json:"activeUsers"`
	Liquidators       int `json:"liquidators"`
}
