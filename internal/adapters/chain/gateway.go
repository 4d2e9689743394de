package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/alejandrodnm/bnplbot/internal/adapters/transport"
	"github.com/alejandrodnm/bnplbot/internal/domain"
)

// Contracts holds the deployed contract ids.
type Contracts struct {
	USDC string
	LP   string
	BNPL string
}

// Arg is one typed contract argument as the gateway expects it.
type Arg struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func address(a string) Arg { return Arg{Type: "address", Value: a} }
func i128(v float64) Arg { return Arg{Type: "i128", Value: domain.ToStroops(v)} }
func str(s string) Arg { return Arg{Type: "string", Value: s} }
func u64(v uint64) Arg { return Arg{Type: "u64", Value: strconv.FormatUint(v, 10)} }
func variant(s string) Arg { return Arg{Type: "enum", Value: s} }

type invokeRequest struct {
	Function string `json:"function"`
	Source   string `json:"source,omitempty"`
	Args     []Arg  `json:"args"`
}

type invokeResponse struct {
	Hash   string          `json:"hash"`
	Result json.RawMessage `json:"result"`
}

// Gateway implementa ports.ChainClient contra un gateway HTTP que firma y
// envía invocaciones de contratos Soroban.
type Gateway struct {
	http      *transport.Client
	contracts Contracts
}

// NewGateway crea el cliente sobre un transport ya configurado.
func NewGateway(client *transport.Client, contracts Contracts) *Gateway {
	return &Gateway{http: client, contracts: contracts}
}

func (g *Gateway) invoke(ctx context.Context, contract, source, fn string, args ...Arg) (invokeResponse, error) {
	var resp invokeResponse
	path := "/v1/contracts/" + contract + "/invoke"
	if err := g.http.PostOnce(ctx, path, invokeRequest{Function: fn, Source: source, Args: args}, &resp); err != nil {
		return resp, fmt.Errorf("chain.%s: %w", fn, err)
	}
	return resp, nil
}

func (g *Gateway) simulate(ctx context.Context, contract, fn string, args ...Arg) (json.RawMessage, error) {
	var resp invokeResponse
	path := "/v1/contracts/" + contract + "/simulate"
	if err := g.http.Post(ctx, path, invokeRequest{Function: fn, Args: args}, &resp); err != nil {
		return nil, fmt.Errorf("chain.%s: %w", fn, err)
	}
	return resp.Result, nil
}

// decodeInt accepts both JSON strings and numbers; i128 values arrive as strings.
func decodeInt(raw json.RawMessage) (string, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "", nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return "", err
		}
		return v, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func decodeAmount(fn string, raw json.RawMessage) (float64, error) {
	s, err := decodeInt(raw)
	if err != nil {
		return 0, fmt.Errorf("chain.%s: decode result: %w", fn, err)
	}
	v, err := domain.FromStroops(s)
	if err != nil {
		return 0, fmt.Errorf("chain.%s: %w", fn, err)
	}
	return v, nil
}

func (g *Gateway) tx(ctx context.Context, contract, source, fn string, args ...Arg) (domain.TxResult, error) {
	resp, err := g.invoke(ctx, contract, source, fn, args...)
	if err != nil {
		return domain.TxResult{}, err
	}
	return domain.TxResult{Hash: resp.Hash}, nil
}

func (g *Gateway) txAmount(ctx context.Context, contract, source, fn string, args ...Arg) (domain.TxResult, error) {
	resp, err := g.invoke(ctx, contract, source, fn, args...)
	if err != nil {
		return domain.TxResult{}, err
	}
	amount, err := decodeAmount(fn, resp.Result)
	if err != nil {
		return domain.TxResult{Hash: resp.Hash}, err
	}
	return domain.TxResult{Hash: resp.Hash, Amount: amount}, nil
}

// ─── Token ───────────────────────────────────────────────────────────────────

func (g *Gateway) Mint(ctx context.Context, admin, to string, amount float64) (domain.TxResult, error) {
	return g.tx(ctx, g.contracts.USDC, admin, "mint", address(to), i128(amount))
}

func (g *Gateway) Transfer(ctx context.Context, from, to string, amount float64) (domain.TxResult, error) {
	return g.tx(ctx, g.contracts.USDC, from, "transfer", address(from), address(to), i128(amount))
}

func (g *Gateway) USDCBalance(ctx context.Context, addr string) (float64, error) {
	raw, err := g.simulate(ctx, g.contracts.USDC, "balance", address(addr))
	if err != nil {
		return 0, err
	}
	return decodeAmount("balance", raw)
}

// ─── Liquidity pool ──────────────────────────────────────────────────────────

func (g *Gateway) Deposit(ctx context.Context, from string, amount float64) (domain.TxResult, error) {
	return g.txAmount(ctx, g.contracts.LP, from, "deposit", address(from), i128(amount))
}

func (g *Gateway) Withdraw(ctx context.Context, from string, lpAmount float64) (domain.TxResult, error) {
	return g.txAmount(ctx, g.contracts.LP, from, "withdraw", address(from), i128(lpAmount))
}

func (g *Gateway) LPBalance(ctx context.Context, addr string) (float64, error) {
	raw, err := g.simulate(ctx, g.contracts.LP, "balance", address(addr))
	if err != nil {
		return 0, err
	}
	return decodeAmount("balance", raw)
}

// TotalValueLocked is the pool's total underlying USDC.
func (g *Gateway) TotalValueLocked(ctx context.Context) (float64, error) {
	raw, err := g.simulate(ctx, g.contracts.LP, "total_underlying")
	if err != nil {
		return 0, err
	}
	return decodeAmount("total_underlying", raw)
}

// ─── BNPL core ───────────────────────────────────────────────────────────────

func (g *Gateway) EnrollMerchant(ctx context.Context, merchant, infoID string) (domain.TxResult, error) {
	return g.tx(ctx, g.contracts.BNPL, merchant, "enroll_merchant", address(merchant), str(infoID))
}

func (g *Gateway) UpdateMerchantStatus(ctx context.Context, admin, merchant string, status domain.MerchantStatus) (domain.TxResult, error) {
	return g.tx(ctx, g.contracts.BNPL, admin, "update_merchant_status",
		address(admin), address(merchant), variant(statusVariant(status)))
}

func (g *Gateway) CreateBill(ctx context.Context, merchant, user string, amount float64, orderID string) (domain.TxResult, error) {
	resp, err := g.invoke(ctx, g.contracts.BNPL, merchant, "create_bill",
		address(merchant), address(user), i128(amount), str(orderID))
	if err != nil {
		return domain.TxResult{}, err
	}
	s, err := decodeInt(resp.Result)
	if err != nil {
		return domain.TxResult{Hash: resp.Hash}, fmt.Errorf("chain.create_bill: decode bill id: %w", err)
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return domain.TxResult{Hash: resp.Hash}, fmt.Errorf("chain.create_bill: bill id %q: %w", s, err)
	}
	return domain.TxResult{Hash: resp.Hash, BillID: id, Amount: amount}, nil
}

func (g *Gateway) PayBill(ctx context.Context, user string, billID uint64) (domain.TxResult, error) {
	return g.tx(ctx, g.contracts.BNPL, user, "pay_bill_bnpl", u64(billID))
}

func (g *Gateway) RepayBill(ctx context.Context, user string, billID uint64) (domain.TxResult, error) {
	return g.tx(ctx, g.contracts.BNPL, user, "repay_bill", u64(billID))
}

func (g *Gateway) LiquidateBill(ctx context.Context, liquidator string, billID uint64) (domain.TxResult, error) {
	return g.tx(ctx, g.contracts.BNPL, liquidator, "liquidate_bill", u64(billID), address(liquidator))
}

// statusVariant maps to the contract's MerchantStatus enum names.
func statusVariant(s domain.MerchantStatus) string {
	if s == "" {
		return "None"
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}
