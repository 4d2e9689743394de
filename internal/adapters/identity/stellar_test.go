package identity_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alejandrodnm/bnplbot/internal/adapters/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCLI struct {
	calls   []string
	outputs map[string]string
	fail    map[string]bool
}

func (f *fakeCLI) run(_ context.Context, name string, args ...string) ([]byte, error) {
	cmd := strings.Join(args, " ")
	f.calls = append(f.calls, name+" "+cmd)
	if f.fail[args[1]] {
		return []byte("error: boom"), errors.New("exit status 1")
	}
	return []byte(f.outputs[args[1]]), nil
}

func TestStellarCLI_Create(t *testing.T) {
	f := &fakeCLI{outputs: map[string]string{"address": "GABC123\n"}}
	cli := identity.NewStellarCLI("stellar", "testnet", f.run)

	addr, err := cli.Create(context.Background(), "user-001")
	require.NoError(t, err)
	assert.Equal(t, "GABC123", addr)
	assert.Equal(t, []string{
		"stellar keys generate user-001 --network testnet",
		"stellar keys address user-001",
	}, f.calls)
}

func TestStellarCLI_List(t *testing.T) {
	f := &fakeCLI{outputs: map[string]string{"ls": "admin\nmerchant-001\n\nuser-001\n"}}
	cli := identity.NewStellarCLI("", "testnet", f.run)

	names, err := cli.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "merchant-001", "user-001"}, names)
}

func TestStellarCLI_FundError(t *testing.T) {
	f := &fakeCLI{fail: map[string]bool{"fund": true}}
	cli := identity.NewStellarCLI("stellar", "testnet", f.run)

	err := cli.Fund(context.Background(), "user-001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestStellarCLI_AddressRejectsGarbage(t *testing.T) {
	f := &fakeCLI{outputs: map[string]string{"address": "not found"}}
	cli := identity.NewStellarCLI("stellar", "testnet", f.run)

	_, err := cli.Address(context.Background(), "ghost")
	assert.Error(t, err)
}
