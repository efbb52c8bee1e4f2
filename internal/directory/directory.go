package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/TemirB/orderfeed/internal/domain"
)

// Resolver maps a shop's display name (as the external origin sends it)
// to the shop id used as the order scope.
type Resolver interface {
	Resolve(ctx context.Context, shopName string) (string, error)
}

func normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Static resolves against a fixed table, as configured by SHOPS.
// A known shop id also resolves to itself.
type Static struct {
	byName map[string]string
	ids    map[string]struct{}
}

func NewStatic(shops map[string]string) *Static {
	s := &Static{
		byName: make(map[string]string, len(shops)),
		ids:    make(map[string]struct{}, len(shops)),
	}
	for name, id := range shops {
		s.byName[normalize(name)] = id
		s.ids[id] = struct{}{}
	}
	return s
}

func (s *Static) Resolve(_ context.Context, shopName string) (string, error) {
	if id, ok := s.byName[normalize(shopName)]; ok {
		return id, nil
	}
	if _, ok := s.ids[strings.TrimSpace(shopName)]; ok {
		return strings.TrimSpace(shopName), nil
	}
	return "", domain.ErrUnknownShop
}

// Chain tries each resolver in turn, moving on only when a resolver does
// not know the shop.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, shopName string) (string, error) {
	for _, r := range c {
		id, err := r.Resolve(ctx, shopName)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, domain.ErrUnknownShop) {
			return "", err
		}
	}
	return "", domain.ErrUnknownShop
}
