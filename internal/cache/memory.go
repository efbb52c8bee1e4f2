package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/TemirB/orderfeed/internal/domain"
)

// Memory keeps one bounded entry set per shop. Entries are only ever read
// with Peek, so the LRU order equals insertion order and capacity eviction
// drops the oldest order first.
type Memory struct {
	mu       sync.RWMutex
	shops    map[string]*entrySet
	size     int
	maxShops int
	logger   *zap.Logger
}

type entrySet struct {
	mu  sync.Mutex
	lru *lru.Cache[string, *domain.Order]
}

func NewMemory(size, maxShops int, logger *zap.Logger) *Memory {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		shops:    make(map[string]*entrySet),
		size:     size,
		maxShops: maxShops,
		logger:   logger,
	}
}

func (c *Memory) Put(_ context.Context, order domain.Order) (bool, error) {
	if err := validate(order); err != nil {
		return false, err
	}
	set, err := c.entries(order.ShopID, true)
	if err != nil {
		return false, err
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	stored := order.Clone()
	if cur, ok := set.lru.Peek(order.ID); ok {
		// Replace in place: Add would move the key to the front.
		*cur = stored
		return false, nil
	}
	set.lru.Add(order.ID, &stored)
	return true, nil
}

func (c *Memory) Get(_ context.Context, shopID, id string) (domain.Order, error) {
	set, _ := c.entries(shopID, false)
	if set == nil {
		return domain.Order{}, domain.ErrNotFound
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	cur, ok := set.lru.Peek(id)
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return cur.Clone(), nil
}

func (c *Memory) List(_ context.Context, shopID string) ([]domain.Order, error) {
	set, _ := c.entries(shopID, false)
	if set == nil {
		return []domain.Order{}, nil
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	keys := set.lru.Keys()
	out := make([]domain.Order, 0, len(keys))
	for _, k := range keys {
		if cur, ok := set.lru.Peek(k); ok {
			out = append(out, cur.Clone())
		}
	}
	return out, nil
}

// Shops returns how many shops currently have an entry set.
func (c *Memory) Shops() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.shops)
}

func (c *Memory) entries(shopID string, create bool) (*entrySet, error) {
	c.mu.RLock()
	set := c.shops[shopID]
	c.mu.RUnlock()
	if set != nil || !create {
		return set, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if set = c.shops[shopID]; set != nil {
		return set, nil
	}
	if c.maxShops > 0 && len(c.shops) >= c.maxShops {
		return nil, ErrCapacity
	}

	l, err := lru.NewWithEvict[string, *domain.Order](c.size, func(id string, _ *domain.Order) {
		c.logger.Debug("order aged out of cache",
			zap.String("shop_id", shopID),
			zap.String("order_id", id),
		)
	})
	if err != nil {
		return nil, err
	}
	set = &entrySet{lru: l}
	c.shops[shopID] = set
	return set, nil
}
