package simulated

// ledger.go: ledger en memoria para dry-run y tests.
//
// Implementa ports.ChainClient, ports.MerchantAPI y ports.IdentityProvider con
// las reglas del protocolo que el bot necesita respetar: balances, colateral
// del 111% para bills, ventana de pago de 24h y el ciclo de vida del merchant.
// El tipo de cambio LP:USDC es fijo 1:1.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/alejandrodnm/bnplbot/internal/ports"
	"github.com/google/uuid"
)

const (
	collateralRatio      = 1.11
	liquidationThreshold = 28 * 24 * time.Hour
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownBill         = errors.New("unknown bill")
	ErrUnknownIdentity     = errors.New("unknown identity")
)

type billStatus string

const (
	billCreated    billStatus = "created"
	billPaid       billStatus = "paid"
	billRepaid     billStatus = "repaid"
	billLiquidated billStatus = "liquidated"
)

type bill struct {
	merchant  string
	user      string
	amount    float64
	orderID   string
	status    billStatus
	createdAt time.Time
}

type merchant struct {
	infoID string
	status domain.MerchantStatus
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu  sync.Mutex
	now func() time.Time

	identities map[string]string // name → address
	names      []string

	usdc      map[string]float64
	lp        map[string]float64
	pool      float64
	merchants map[string]*merchant
	apps      map[string]domain.MerchantStatus
	bills     map[uint64]*bill
	nextBill  uint64
	nextApp   int

	failErr error
	calls   map[string]int
}

// NewLedger crea un ledger vacío.
func NewLedger() *Ledger {
	return &Ledger{
		now:        time.Now,
		identities: make(map[string]string),
		usdc:       make(map[string]float64),
		lp:         make(map[string]float64),
		merchants:  make(map[string]*merchant),
		apps:       make(map[string]domain.MerchantStatus),
		bills:      make(map[uint64]*bill),
		calls:      make(map[string]int),
	}
}

// SetClock overrides the ledger time source.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// FailWith makes every subsequent operation fail with err; nil restores normal behaviour.
func (l *Ledger) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failErr = err
}

// Calls returns how many times an operation was invoked.
func (l *Ledger) Calls(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

// record counts the call and applies injected failures. Caller holds the lock.
func (l *Ledger) record(op string) error {
	l.calls[op]++
	if l.failErr != nil {
		return fmt.Errorf("simulated.%s: %w", op, l.failErr)
	}
	return nil
}

func txHash() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func ok() domain.TxResult { return domain.TxResult{Hash: txHash()} }

// ─── Identity ────────────────────────────────────────────────────────────────

func (l *Ledger) Create(_ context.Context, name string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("create_identity"); err != nil {
		return "", err
	}
	if _, exists := l.identities[name]; exists {
		return "", fmt.Errorf("simulated.Create: identity %q already exists", name)
	}
	addr := "G" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	l.identities[name] = addr
	l.names = append(l.names, name)
	return addr, nil
}

func (l *Ledger) Fund(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("fund_identity"); err != nil {
		return err
	}
	if _, exists := l.identities[name]; !exists {
		return fmt.Errorf("simulated.Fund: %q: %w", name, ErrUnknownIdentity)
	}
	return nil
}

func (l *Ledger) List(_ context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("list_identities"); err != nil {
		return nil, err
	}
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out, nil
}

func (l *Ledger) Address(_ context.Context, name string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("address"); err != nil {
		return "", err
	}
	addr, exists := l.identities[name]
	if !exists {
		return "", fmt.Errorf("simulated.Address: %q: %w", name, ErrUnknownIdentity)
	}
	return addr, nil
}

// ─── Merchant API ────────────────────────────────────────────────────────────

func (l *Ledger) CreateApplication(_ context.Context, app ports.MerchantApplication) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("create_application"); err != nil {
		return "", err
	}
	l.nextApp++
	id := fmt.Sprintf("app-%04d", l.nextApp)
	l.apps[id] = domain.MerchantPending
	return id, nil
}

func (l *Ledger) UpdateStatus(_ context.Context, infoID string, status domain.MerchantStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("update_application"); err != nil {
		return err
	}
	if _, exists := l.apps[infoID]; !exists {
		return fmt.Errorf("simulated.UpdateStatus: application %q not found", infoID)
	}
	l.apps[infoID] = status
	return nil
}

// ─── Token ───────────────────────────────────────────────────────────────────

func (l *Ledger) Mint(_ context.Context, _, to string, amount float64) (domain.TxResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("mint"); err != nil {
		return domain.TxResult{}, err
	}
	if amount <= 0 {
		return domain.TxResult{}, fmt.Errorf("simulated.mint: non-positive amount %v", amount)
	}
	l.usdc[to] += amount
	return ok(), nil
}

func (l *Ledger) Transfer(_ context.Context, from, to string, amount float64) (domain.TxResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("transfer"); err != nil {
		return domain.TxResult{}, err
	}
	if l.usdc[from] < amount {
		return domain.TxResult{}, fmt.Errorf("simulated.transfer: %w", ErrInsufficientBalance)
	}
	l.usdc[from] -= amount
	l.usdc[to] += amount
	return ok(), nil
}

func (l *Ledger) USDCBalance(_ context.Context, addr string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("balance"); err != nil {
		return 0, err
	}
	return l.usdc[addr], nil
}

// ─── Liquidity pool ──────────────────────────────────────────────────────────

func (l *Ledger) Deposit(_ context.Context, from string, amount float64) (domain.TxResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("deposit"); err != nil {
		return domain.TxResult{}, err
	}
	if amount <= 0 {
		return domain.TxResult{}, fmt.Errorf("simulated.deposit: non-positive amount %v", amount)
	}
	if l.usdc[from] < amount {
		return domain.TxResult{}, fmt.Errorf("simulated.deposit: %w", ErrInsufficientBalance)
	}
	l.usdc[from] -= amount
	l.lp[from] += amount
	l.pool += amount
	res := ok()
	res.Amount = amount
	return res, nil
}

func (l *Ledger) Withdraw(_ context.Context, from string, lpAmount float64) (domain.TxResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("withdraw"); err != nil {
		return domain.TxResult{}, err
	}
	available := l.lp[from] - l.debt(from)*collateralRatio
	if lpAmount <= 0 || lpAmount > available {
		return domain.TxResult{}, fmt.Errorf("simulated.withdraw: %w (available %.2f)", ErrInsufficientBalance, available)
	}
	if lpAmount > l.pool {
		return domain.TxResult{}, fmt.Errorf("simulated.withdraw: pool has %.2f: %w", l.pool, ErrInsufficientBalance)
	}
	l.lp[from] -= lpAmount
	l.pool -= lpAmount
	l.usdc[from] += lpAmount
	res := ok()
	res.Amount = lpAmount
	return res, nil
}

func (l *Ledger) LPBalance(_ context.Context, addr string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("lp_balance"); err != nil {
		return 0, err
	}
	return l.lp[addr], nil
}

func (l *Ledger) TotalValueLocked(_ context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("total_underlying"); err != nil {
		return 0, err
	}
	return l.pool, nil
}

// ─── BNPL core ───────────────────────────────────────────────────────────────

func (l *Ledger) EnrollMerchant(_ context.Context, addr, infoID string) (domain.TxResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("enroll_merchant"); err != nil {
		return domain.TxResult{}, err
	}
	if _, exists := l.merchants[addr]; exists {
		return domain.TxResult{}, fmt.Errorf("simulated.enroll_merchant: merchant already enrolled")
	}
	l.merchants[addr] = &merchant{infoID: infoID, status: domain.MerchantPending}
	return ok(), nil
}

func (l *Ledger) UpdateMerchantStatus(_ context.Context, _, addr string, status domain.MerchantStatus) (domain.TxResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("update_merchant_status"); err != nil {
		return domain.TxResult{}, err
	}
	m, exists := l.merchants[addr]
	if !exists {
		return domain.TxResult{}, fmt.Errorf("simulated.update_merchant_status: merchant not enrolled")
	}
	m.status = status
	return ok(), nil
}

// debt is the principal of the user's live bills: paid ones and created
// ones still inside the bill window. Caller holds the lock.
func (l *Ledger) debt(user string) float64 {
	var total float64
	now := l.now()
	for _, b := range l.bills {
		if b.user != user {
			continue
		}
		if b.status == billPaid || (b.status == billCreated && now.Sub(b.createdAt) <= domain.BillWindow) {
			total += b.amount
		}
	}
	return total
}

func (l *Ledger) CreateBill(_ context.Context, merchantAddr, user string, amount float64, orderID string) (domain.TxResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("create_bill"); err != nil {
		return domain.TxResult{}, err
	}
	m, exists := l.merchants[merchantAddr]
	if !exists || m.status != domain.MerchantApproved {
		return domain.TxResult{}, fmt.Errorf("simulated.create_bill: merchant not approved")
	}
	available := l.lp[user]/collateralRatio - l.debt(user)
	if amount <= 0 || amount > available {
		return domain.TxResult{}, fmt.Errorf("simulated.create_bill: insufficient collateral (available %.2f)", available)
	}
	l.nextBill++
	l.bills[l.nextBill] = &bill{
		merchant: merchantAddr, user: user, amount: amount, orderID: orderID,
		status: billCreated, createdAt: l.now(),
	}
	res := ok()
	res.BillID = l.nextBill
	res.Amount = amount
	return res, nil
}

func (l *Ledger) PayBill(_ context.Context, user string, id uint64) (domain.TxResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("pay_bill_bnpl"); err != nil {
		return domain.TxResult{}, err
	}
	b, exists := l.bills[id]
	if !exists || b.user != user {
		return domain.TxResult{}, fmt.Errorf("simulated.pay_bill_bnpl: %w", ErrUnknownBill)
	}
	if b.status != billCreated {
		return domain.TxResult{}, fmt.Errorf("simulated.pay_bill_bnpl: bill %d is %s", id, b.status)
	}
	if l.now().Sub(b.createdAt) > domain.BillWindow {
		return domain.TxResult{}, fmt.Errorf("simulated.pay_bill_bnpl: bill %d expired", id)
	}
	if l.pool < b.amount {
		return domain.TxResult{}, fmt.Errorf("simulated.pay_bill_bnpl: pool liquidity: %w", ErrInsufficientBalance)
	}
	l.pool -= b.amount
	l.usdc[b.merchant] += b.amount
	b.status = billPaid
	res := ok()
	res.Amount = b.amount
	return res, nil
}

func (l *Ledger) RepayBill(_ context.Context, user string, id uint64) (domain.TxResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("repay_bill"); err != nil {
		return domain.TxResult{}, err
	}
	b, exists := l.bills[id]
	if !exists || b.user != user {
		return domain.TxResult{}, fmt.Errorf("simulated.repay_bill: %w", ErrUnknownBill)
	}
	if b.status != billPaid {
		return domain.TxResult{}, fmt.Errorf("simulated.repay_bill: bill %d is %s", id, b.status)
	}
	if l.usdc[user] < b.amount {
		return domain.TxResult{}, fmt.Errorf("simulated.repay_bill: %w", ErrInsufficientBalance)
	}
	l.usdc[user] -= b.amount
	l.pool += b.amount
	b.status = billRepaid
	res := ok()
	res.Amount = b.amount
	return res, nil
}

func (l *Ledger) LiquidateBill(_ context.Context, _ string, id uint64) (domain.TxResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record("liquidate_bill"); err != nil {
		return domain.TxResult{}, err
	}
	b, exists := l.bills[id]
	if !exists {
		return domain.TxResult{}, fmt.Errorf("simulated.liquidate_bill: %w", ErrUnknownBill)
	}
	if b.status != billPaid || l.now().Sub(b.createdAt) < liquidationThreshold {
		return domain.TxResult{}, fmt.Errorf("simulated.liquidate_bill: bill %d not liquidatable", id)
	}
	seized := b.amount * collateralRatio
	l.lp[b.user] -= seized
	b.status = billLiquidated
	res := ok()
	res.Amount = seized
	return res, nil
}

// ─── Inspection ──────────────────────────────────────────────────────────────

// MerchantOnChain returns the on-chain status of a merchant.
func (l *Ledger) MerchantOnChain(addr string) domain.MerchantStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.merchants[addr]; ok {
		return m.status
	}
	return domain.MerchantNone
}

// ApplicationStatus returns the off-chain application status.
func (l *Ledger) ApplicationStatus(id string) domain.MerchantStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.apps[id]
}
