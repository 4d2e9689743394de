package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/alejandrodnm/bnplbot/internal/ports"
)

// Config is the identity naming convention.
type Config struct {
	AdminName        string
	MerchantPrefix   string
	UserPrefix       string
	LiquidatorPrefix string
}

// DefaultConfig returns the standard names.
func DefaultConfig() Config {
	return Config{
		AdminName:        "admin",
		MerchantPrefix:   "merchant",
		UserPrefix:       "user",
		LiquidatorPrefix: "liquidator",
	}
}

// Pool owns the synthetic identities. Accounts are only ever added.
type Pool struct {
	identity ports.IdentityProvider
	cfg      Config
	now      func() time.Time

	mu          sync.Mutex
	admin       *domain.AccountState
	merchants   []domain.AccountState
	users       []domain.AccountState
	liquidators []domain.AccountState
}

// New creates an empty pool backed by identity.
func New(identity ports.IdentityProvider, cfg Config) *Pool {
	def := DefaultConfig()
	if cfg.AdminName == "" {
		cfg.AdminName = def.AdminName
	}
	if cfg.MerchantPrefix == "" {
		cfg.MerchantPrefix = def.MerchantPrefix
	}
	if cfg.UserPrefix == "" {
		cfg.UserPrefix = def.UserPrefix
	}
	if cfg.LiquidatorPrefix == "" {
		cfg.LiquidatorPrefix = def.LiquidatorPrefix
	}
	return &Pool{identity: identity, cfg: cfg, now: time.Now}
}

func (p *Pool) prefix(role domain.Role) string {
	switch role {
	case domain.RoleMerchant:
		return p.cfg.MerchantPrefix
	case domain.RoleUser:
		return p.cfg.UserPrefix
	case domain.RoleLiquidator:
		return p.cfg.LiquidatorPrefix
	}
	return ""
}

// list returns the slice for role. Caller holds the lock.
func (p *Pool) list(role domain.Role) *[]domain.AccountState {
	switch role {
	case domain.RoleMerchant:
		return &p.merchants
	case domain.RoleUser:
		return &p.users
	case domain.RoleLiquidator:
		return &p.liquidators
	}
	return nil
}

func newAccount(name, address string, role domain.Role, now time.Time) domain.AccountState {
	a := domain.AccountState{Address: address, Name: name, Role: role, CreatedAt: now}
	if role == domain.RoleMerchant {
		a.Status = domain.MerchantNone
	}
	return a
}

// Load initialises the pool from the identity naming convention: the admin
// (created if missing) plus every existing `prefix-###` identity not
// already in the pool.
func (p *Pool) Load(ctx context.Context) error {
	if err := p.ensureAdmin(ctx); err != nil {
		return err
	}

	names, err := p.identity.List(ctx)
	if err != nil {
		return fmt.Errorf("accounts.Load: list identities: %w", err)
	}

	for _, role := range []domain.Role{domain.RoleMerchant, domain.RoleUser, domain.RoleLiquidator} {
		pattern := regexp.MustCompile("^" + regexp.QuoteMeta(p.prefix(role)) + `-(\d{3,})$`)
		var matched []string
		for _, name := range names {
			if pattern.MatchString(name) && !p.hasName(name) {
				matched = append(matched, name)
			}
		}
		sort.Strings(matched)

		for _, name := range matched {
			addr, err := p.identity.Address(ctx, name)
			if err != nil {
				return fmt.Errorf("accounts.Load: %w", err)
			}
			p.add(newAccount(name, addr, role, p.now()))
		}
	}

	stats := p.Stats()
	slog.Info("account pool loaded",
		"merchants", stats.TotalMerchants,
		"users", stats.TotalUsers,
		"liquidators", stats.Liquidators,
	)
	return nil
}

func (p *Pool) ensureAdmin(ctx context.Context) error {
	p.mu.Lock()
	hasAdmin := p.admin != nil
	p.mu.Unlock()
	if hasAdmin {
		return nil
	}

	addr, err := p.identity.Address(ctx, p.cfg.AdminName)
	if err != nil {
		slog.Info("admin identity not found, creating", "name", p.cfg.AdminName)
		addr, err = p.createFunded(ctx, p.cfg.AdminName)
		if err != nil {
			return fmt.Errorf("accounts.Load: admin: %w", err)
		}
	}

	admin := newAccount(p.cfg.AdminName, addr, domain.RoleAdmin, p.now())
	p.mu.Lock()
	p.admin = &admin
	p.mu.Unlock()
	return nil
}

func (p *Pool) createFunded(ctx context.Context, name string) (string, error) {
	addr, err := p.identity.Create(ctx, name)
	if err != nil {
		// The identity may already exist outside the pool (e.g. a lost snapshot).
		if existing, lookupErr := p.identity.Address(ctx, name); lookupErr == nil {
			return existing, nil
		}
		return "", err
	}
	if err := p.identity.Fund(ctx, name); err != nil {
		return "", err
	}
	return addr, nil
}

func (p *Pool) hasName(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.admin != nil && p.admin.Name == name {
		return true
	}
	for _, l := range [][]domain.AccountState{p.merchants, p.users, p.liquidators} {
		for _, a := range l {
			if a.Name == name {
				return true
			}
		}
	}
	return false
}

func (p *Pool) add(a domain.AccountState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l := p.list(a.Role)
	for _, existing := range *l {
		if existing.Address == a.Address {
			return
		}
	}
	*l = append(*l, a)
}

// EnsureMerchants tops the merchant list up to n. It returns how many were created.
func (p *Pool) EnsureMerchants(ctx context.Context, n int) (int, error) {
	return p.ensure(ctx, domain.RoleMerchant, n)
}

// EnsureUsers tops the user list up to n.
func (p *Pool) EnsureUsers(ctx context.Context, n int) (int, error) {
	return p.ensure(ctx, domain.RoleUser, n)
}

// EnsureLiquidators tops the liquidator list up to n.
func (p *Pool) EnsureLiquidators(ctx context.Context, n int) (int, error) {
	return p.ensure(ctx, domain.RoleLiquidator, n)
}

// ensure creates exactly n-count accounts named prefix-### continuing from
// the current count. Names already present in the pool are skipped.
func (p *Pool) ensure(ctx context.Context, role domain.Role, n int) (int, error) {
	deficit := n - p.Count(role)
	if deficit <= 0 {
		return 0, nil
	}

	created := 0
	next := p.Count(role) + 1
	for created < deficit {
		name := fmt.Sprintf("%s-%03d", p.prefix(role), next)
		next++
		if p.hasName(name) {
			continue
		}
		addr, err := p.createFunded(ctx, name)
		if err != nil {
			return created, fmt.Errorf("accounts.Ensure %s: create %s: %w", role, name, err)
		}
		p.add(newAccount(name, addr, role, p.now()))
		created++
		slog.Debug("account created", "role", role, "name", name, "address", addr)
	}
	return created, nil
}

// Count returns the number of accounts with role.
func (p *Pool) Count(role domain.Role) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if role == domain.RoleAdmin {
		if p.admin != nil {
			return 1
		}
		return 0
	}
	return len(*p.list(role))
}

// Admin returns a copy of the admin account.
func (p *Pool) Admin() (domain.AccountState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.admin == nil {
		return domain.AccountState{}, false
	}
	return p.admin.Clone(), true
}

// All returns copies of every account with role, in pool order.
func (p *Pool) All(role domain.Role) []domain.AccountState {
	return p.Filter(role, nil)
}

// Filter returns copies of the accounts with role matching pred (nil matches all).
func (p *Pool) Filter(role domain.Role, pred func(domain.AccountState) bool) []domain.AccountState {
	p.mu.Lock()
	defer p.mu.Unlock()
	l := p.list(role)
	if l == nil {
		return nil
	}
	var out []domain.AccountState
	for _, a := range *l {
		if pred == nil || pred(a) {
			out = append(out, a.Clone())
		}
	}
	return out
}

// GetRandom returns a uniformly random account with role matching pred.
// The bool is false when nothing matches.
func (p *Pool) GetRandom(role domain.Role, pred func(domain.AccountState) bool) (domain.AccountState, bool) {
	matches := p.Filter(role, pred)
	if len(matches) == 0 {
		return domain.AccountState{}, false
	}
	return matches[rand.Intn(len(matches))], true
}

// Get looks an account up by address.
func (p *Pool) Get(address string) (domain.AccountState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a := p.find(address); a != nil {
		return a.Clone(), true
	}
	return domain.AccountState{}, false
}

// find returns a pointer into the pool. Caller holds the lock.
func (p *Pool) find(address string) *domain.AccountState {
	if p.admin != nil && p.admin.Address == address {
		return p.admin
	}
	for _, l := range []*[]domain.AccountState{&p.merchants, &p.users, &p.liquidators} {
		for i := range *l {
			if (*l)[i].Address == address {
				return &(*l)[i]
			}
		}
	}
	return nil
}

// Update applies patch in place. It reports false if address is unknown.
func (p *Pool) Update(address string, patch func(*domain.AccountState)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.find(address)
	if a == nil {
		return false
	}
	patch(a)
	if a.LPBalance < 0 {
		a.LPBalance = 0
	}
	if a.USDCBalance < 0 {
		a.USDCBalance = 0
	}
	if a.BillsCreated < 0 {
		a.BillsCreated = 0
	}
	return true
}

// Stats aggregates counts for goals and status display.
func (p *Pool) Stats() domain.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := domain.PoolStats{
		TotalMerchants: len(p.merchants),
		TotalUsers:     len(p.users),
		Liquidators:    len(p.liquidators),
	}
	for _, m := range p.merchants {
		switch m.Status {
		case domain.MerchantApproved:
			s.ApprovedMerchants++
		case domain.MerchantPending:
			s.PendingMerchants++
		}
	}
	for _, u := range p.users {
		if u.HasPosition() {
			s.ActiveUsers++
		}
	}
	return s
}

// Snapshot returns a deep copy of the pool.
func (p *Pool) Snapshot() domain.PoolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return domain.PoolSnapshot{
		Admin:       p.admin,
		Merchants:   p.merchants,
		Users:       p.users,
		Liquidators: p.liquidators,
	}.Clone()
}

// Restore replaces the pool contents with a copy of s.
func (p *Pool) Restore(s domain.PoolSnapshot) {
	c := s.Clone()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.admin = c.Admin
	p.merchants = c.Merchants
	p.users = c.Users
	p.liquidators = c.Liquidators
}
