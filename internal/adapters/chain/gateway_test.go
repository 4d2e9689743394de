package chain_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/bnplbot/internal/adapters/chain"
	"github.com/alejandrodnm/bnplbot/internal/adapters/transport"
	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Path     string
	Function string      `json:"function"`
	Source   string      `json:"source"`
	Args     []chain.Arg `json:"args"`
}

// fakeGateway answers every call with the configured result and records it.
func fakeGateway(t *testing.T, result string) (*chain.Gateway, *[]recordedCall) {
	t.Helper()
	calls := &[]recordedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c recordedCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
		c.Path = r.URL.Path
		*calls = append(*calls, c)
		w.Write([]byte(`{"hash":"tx123","result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)

	client := transport.New(transport.Options{BaseURL: srv.URL, RatePerSec: 1000, RetryWait: time.Millisecond})
	return chain.NewGateway(client, chain.Contracts{USDC: "CUSDC", LP: "CLP", BNPL: "CBNPL"}), calls
}

func TestGateway_DepositEncodesStroops(t *testing.T) {
	g, calls := fakeGateway(t, `"800000000"`)

	res, err := g.Deposit(context.Background(), "GUSER", 80)
	require.NoError(t, err)
	assert.Equal(t, "tx123", res.Hash)
	assert.InDelta(t, 80.0, res.Amount, 1e-9)

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, "/v1/contracts/CLP/invoke", c.Path)
	assert.Equal(t, "deposit", c.Function)
	assert.Equal(t, "GUSER", c.Source)
	assert.Equal(t, []chain.Arg{{Type: "address", Value: "GUSER"}, {Type: "i128", Value: "800000000"}}, c.Args)
}

func TestGateway_TotalValueLockedSimulates(t *testing.T) {
	g, calls := fakeGateway(t, `"12345000000"`)

	tvl, err := g.TotalValueLocked(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1234.5, tvl, 1e-9)
	assert.Equal(t, "/v1/contracts/CLP/simulate", (*calls)[0].Path)
	assert.Equal(t, "total_underlying", (*calls)[0].Function)
}

func TestGateway_CreateBillDecodesID(t *testing.T) {
	g, calls := fakeGateway(t, `42`)

	res, err := g.CreateBill(context.Background(), "GMERCH", "GUSER", 12.5, "order-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), res.BillID)
	assert.Equal(t, 12.5, res.Amount)
	assert.Equal(t, "create_bill", (*calls)[0].Function)
	assert.Equal(t, "GMERCH", (*calls)[0].Source)
}

func TestGateway_UpdateMerchantStatusVariant(t *testing.T) {
	g, calls := fakeGateway(t, `null`)

	_, err := g.UpdateMerchantStatus(context.Background(), "GADMIN", "GMERCH", domain.MerchantApproved)
	require.NoError(t, err)
	args := (*calls)[0].Args
	require.Len(t, args, 3)
	assert.Equal(t, chain.Arg{Type: "enum", Value: "Approved"}, args[2])
}

func TestGateway_PayBillUsesU64(t *testing.T) {
	g, calls := fakeGateway(t, `null`)

	_, err := g.PayBill(context.Background(), "GUSER", 9)
	require.NoError(t, err)
	assert.Equal(t, "pay_bill_bnpl", (*calls)[0].Function)
	assert.Equal(t, []chain.Arg{{Type: "u64", Value: "9"}}, (*calls)[0].Args)
}

func TestGateway_ErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Error(Contract, #3)", http.StatusBadRequest)
	}))
	defer srv.Close()

	g := chain.NewGateway(transport.New(transport.Options{BaseURL: srv.URL}), chain.Contracts{BNPL: "CBNPL"})
	_, err := g.RepayBill(context.Background(), "GUSER", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain.repay_bill")
	assert.Contains(t, err.Error(), "Error(Contract, #3)")
}

func TestGateway_InvokeIsSentOnce(t *testing.T) {
	var invokes, simulates atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/simulate") {
			if simulates.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"result":"10000000"}`))
			return
		}
		invokes.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := transport.New(transport.Options{BaseURL: srv.URL, RatePerSec: 1000, RetryWait: time.Millisecond})
	g := chain.NewGateway(client, chain.Contracts{USDC: "CUSDC", LP: "CLP", BNPL: "CBNPL"})

	_, err := g.Transfer(context.Background(), "GADMIN", "GUSER", 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain.transfer")
	assert.Equal(t, int32(1), invokes.Load(), "a transfer may already be on chain")

	tvl, err := g.TotalValueLocked(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, tvl, 1e-9)
	assert.Equal(t, int32(2), simulates.Load(), "read-only calls keep retrying")
}
