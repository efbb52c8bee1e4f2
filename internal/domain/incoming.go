package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const DefaultUnit = "pcs"

// IncomingOrder is the external origin's representation of a new order.
type IncomingOrder struct {
	OrderNumber string         `json:"order_number"`
	ShopName    string         `json:"shop_name"`
	Timestamp   *time.Time     `json:"timestamp,omitempty"`
	Items       []IncomingItem `json:"items"`
	Revenue     *Revenue       `json:"revenue,omitempty"`
}

type IncomingItem struct {
	Product string   `json:"product"`
	Qty     Quantity `json:"qty"`
	Unit    string   `json:"unit,omitempty"`
	Size    string   `json:"size,omitempty"`
	Cut     string   `json:"cut,omitempty"`
}

// Quantity accepts either a JSON number or a decimal string.
// A missing or null value stays zero.
type Quantity float64

func (q *Quantity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*q = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
		if s == "" {
			*q = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return &ValidationError{Field: "qty", Reason: "not a number: " + strconv.Quote(s)}
		}
		*q = Quantity(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return &ValidationError{Field: "qty", Reason: "not a number"}
	}
	*q = Quantity(f)
	return nil
}

func (in IncomingOrder) Validate() error {
	if strings.TrimSpace(in.OrderNumber) == "" {
		return &ValidationError{Field: "order_number", Reason: "is required"}
	}
	if strings.TrimSpace(in.ShopName) == "" {
		return &ValidationError{Field: "shop_name", Reason: "is required"}
	}
	if len(in.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "must not be empty"}
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.Product) == "" {
			return &ValidationError{Field: "items[" + strconv.Itoa(i) + "].product", Reason: "is required"}
		}
		if it.Qty < 0 {
			return &ValidationError{Field: "items[" + strconv.Itoa(i) + "].qty", Reason: "must not be negative"}
		}
	}
	return nil
}

// OrderID derives the canonical id. A bare number becomes ORD-<n>,
// anything already carrying a prefix is kept as is.
func OrderID(number string) string {
	number = strings.TrimSpace(number)
	if number == "" {
		return ""
	}
	if strings.IndexFunc(number, func(r rune) bool { return r < '0' || r > '9' }) == -1 {
		return "ORD-" + number
	}
	return number
}

// Normalize builds the canonical order for shopID. Missing units default to
// pcs and missing quantities stay zero.
func (in IncomingOrder) Normalize(shopID string, now time.Time) Order {
	items := make([]Item, 0, len(in.Items))
	for _, it := range in.Items {
		unit := strings.TrimSpace(it.Unit)
		if unit == "" {
			unit = DefaultUnit
		}
		items = append(items, Item{
			Name:     strings.TrimSpace(it.Product),
			Quantity: float64(it.Qty),
			Unit:     unit,
			Size:     strings.TrimSpace(it.Size),
			Cut:      strings.TrimSpace(it.Cut),
		})
	}

	created := now.UTC()
	if in.Timestamp != nil && !in.Timestamp.IsZero() {
		created = in.Timestamp.UTC()
	}

	o := Order{
		ID:        OrderID(in.OrderNumber),
		ShopID:    shopID,
		Items:     items,
		Status:    StatusNew,
		CreatedAt: created,
	}
	if in.Revenue != nil {
		r := *in.Revenue
		o.Revenue = &r
	}
	return o
}
