package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/bnplbot/internal/domain"
)

// StateStore persists the bot snapshot and the activity history.
type StateStore interface {
	Ping(ctx context.Context) error

	// LoadState returns domain.ErrNoState if nothing has been saved yet.
	LoadState(ctx context.Context) (domain.BotState, error)
	// SaveState upserts the singleton snapshot. It never overwrites the
	// operator's running flag on an existing row.
	SaveState(ctx context.Context, state domain.BotState) error

	// Remote control flag.
	RemoteRunning(ctx context.Context) (bool, error)
	SetRemoteRunning(ctx context.Context, running bool) error

	// Activity history.
	AppendActivity(ctx context.Context, entry domain.ActivityEntry) error
	ActivityBetween(ctx context.Context, from, to time.Time) ([]domain.ActivityEntry, error)
	ActivitySummary(ctx context.Context, from, to time.Time) ([]domain.ActivitySummaryRow, error)

	Close() error
}
