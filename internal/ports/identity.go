package ports

import "context"

// IdentityProvider manages named key identities (create, fund, list, look-up).
type IdentityProvider interface {
	// Create generates a new named identity and returns its address.
	Create(ctx context.Context, name string) (string, error)
	// Fund requests testnet funding for the identity.
	Fund(ctx context.Context, name string) error
	// List returns all known identity names.
	List(ctx context.Context) ([]string, error)
	// Address looks up the address of a named identity.
	Address(ctx context.Context, name string) (string, error)
}
