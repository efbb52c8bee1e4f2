package retryqueue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/TemirB/orderfeed/internal/domain"
)

var ErrNotFound = errors.New("retry entry not found")

type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Entry is an order the ingestion path could not write to the cache.
type Entry struct {
	ID        uuid.UUID    `json:"id"`
	Order     domain.Order `json:"order"`
	Reason    string       `json:"reason"`
	Attempts  int          `json:"attempts"`
	Status    Status       `json:"status"`
	LastError string       `json:"last_error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func NewEntry(order domain.Order, reason string, now time.Time) Entry {
	now = now.UTC()
	return Entry{
		ID:        uuid.New(),
		Order:     order.Clone(),
		Reason:    reason,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

type Queue interface {
	Enqueue(ctx context.Context, e Entry) error
}

// Store is a queue the drainer can walk and operators can list.
type Store interface {
	Queue
	Pending(ctx context.Context, limit int) ([]Entry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	MarkAttempt(ctx context.Context, id uuid.UUID, cause error) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
	List(ctx context.Context) ([]Entry, error)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
