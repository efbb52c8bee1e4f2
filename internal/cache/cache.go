package cache

import (
	"errors"
	"strings"

	"github.com/TemirB/orderfeed/internal/domain"
)

var (
	ErrInvalidOrder = errors.New("order has no id or shop")
	ErrCapacity     = errors.New("order cache has no room for another shop")
)

var (
	_ domain.OrderStore = (*Memory)(nil)
	_ domain.OrderStore = (*Redis)(nil)
)

func validate(o domain.Order) error {
	if strings.TrimSpace(o.ID) == "" || strings.TrimSpace(o.ShopID) == "" {
		return ErrInvalidOrder
	}
	return nil
}
