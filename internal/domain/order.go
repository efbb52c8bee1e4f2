package domain

import (
	"sort"
	"strconv"
	"time"
)

// Item is one canonical line item of an order.
type Item struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Size     string  `json:"size,omitempty"`
	Cut      string  `json:"cut,omitempty"`
}

type Revenue struct {
	Gross float64 `json:"gross"`
	Net   float64 `json:"net"`
}

// Order belongs to exactly one shop for its whole lifetime.
// The numeric suffix of ID is the only ordering key used downstream.
type Order struct {
	ID            string     `json:"id"`
	ShopID        string     `json:"shop_id"`
	Items         []Item     `json:"items"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	PrepStartedAt *time.Time `json:"prep_started_at,omitempty"`
	PrepEndedAt   *time.Time `json:"prep_ended_at,omitempty"`
	Revenue       *Revenue   `json:"revenue,omitempty"`
}

// Number returns the order number encoded in the id.
func (o Order) Number() int64 { return Number(o.ID) }

// Clone returns a deep copy, so cached orders never share memory with callers.
func (o Order) Clone() Order {
	c := o
	if o.Items != nil {
		c.Items = make([]Item, len(o.Items))
		copy(c.Items, o.Items)
	}
	if o.PrepStartedAt != nil {
		t := *o.PrepStartedAt
		c.PrepStartedAt = &t
	}
	if o.PrepEndedAt != nil {
		t := *o.PrepEndedAt
		c.PrepEndedAt = &t
	}
	if o.Revenue != nil {
		r := *o.Revenue
		c.Revenue = &r
	}
	return c
}

// Transition moves the order to status to, stamping preparation times.
func (o *Order) Transition(to Status, now time.Time) error {
	if !to.Valid() {
		return &ValidationError{Field: "status", Reason: "unknown status " + strconv.Quote(string(to))}
	}
	if !o.Status.CanTransition(to) {
		return ErrInvalidTransition
	}
	o.Status = to
	switch {
	case to == StatusPreparing:
		if o.PrepStartedAt == nil {
			o.PrepStartedAt = &now
		}
	case to.endsPreparation():
		if o.PrepEndedAt == nil {
			o.PrepEndedAt = &now
		}
	}
	return nil
}

// Number parses the trailing decimal digits of id. Ids without a numeric
// suffix (or with one that overflows) have number 0.
func Number(id string) int64 {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	if i == len(id) {
		return 0
	}
	n, err := strconv.ParseInt(id[i:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// SortNewestFirst orders by numeric suffix descending; equal numbers fall
// back to the id so the result is deterministic.
func SortNewestFirst(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		ni, nj := orders[i].Number(), orders[j].Number()
		if ni != nj {
			return ni > nj
		}
		return orders[i].ID > orders[j].ID
	})
}

// IDs is a small helper for logs and tests.
func IDs(orders []Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}
