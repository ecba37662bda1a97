package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

// ErrDuplicateAction is returned when an action with the same timestamp was
// already recorded.
var ErrDuplicateAction = errors.New("action already recorded")

// Database defines the interface for persisting the automation audit log.
type Database interface {
	// InsertAction records one automation cycle.
	InsertAction(ctx context.Context, action types.Action) error

	// GetActionHistory returns the actions in [start, end) ordered by time.
	GetActionHistory(ctx context.Context, start, end time.Time) ([]types.Action, error)
	// GetLatestAction returns the most recent action or nil if none exist.
	GetLatestAction(ctx context.Context) (*types.Action, error)

	// Lifecycle
	Close() error
}
