package repository

import (
	"context"
	"time"

	"ai-credit-metering/internal/domain/model"
)

// OrderRepository owns the immutable purchase audit trail.
type OrderRepository interface {
	Save(ctx context.Context, tx Tx, o *model.Order) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Order, error)
	FindByGatewaySession(ctx context.Context, tx Tx, sessionID string) (*model.Order, error)
	// NextNumber draws from a datastore-backed monotonic sequence; never an
	// in-process counter.
	NextNumber(ctx context.Context, tx Tx) (int64, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.OrderStatus, completedAt *time.Time) error
}
