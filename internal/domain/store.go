package domain

import "context"

// OrderStore is the per-shop order cache contract. List returns orders in
// insertion order; callers sort.
type OrderStore interface {
	Put(ctx context.Context, order Order) (created bool, err error)
	Get(ctx context.Context, shopID, id string) (Order, error)
	List(ctx context.Context, shopID string) ([]Order, error)
}
