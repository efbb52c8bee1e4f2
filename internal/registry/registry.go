package registry

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TemirB/orderfeed/internal/auth"
	"github.com/TemirB/orderfeed/internal/domain"
	"github.com/TemirB/orderfeed/internal/observability"
)

var (
	ErrForbidden    = errors.New("subscriber may not watch this shop")
	ErrLimitReached = errors.New("too many connections for this shop")
	ErrClosed       = errors.New("registry is closed")
)

// Sink is the write side of one push connection. Send must not block: a
// sink that cannot take the event right away returns an error and gets
// evicted. Close must be safe to call more than once.
type Sink interface {
	Send(ev domain.Event) error
	Close()
}

// Subscription is one open connection record.
type Subscription struct {
	ID       string
	ShopID   string
	Identity auth.Identity
	sink     Sink
}

type shopConns struct {
	// mu guards conns. Sends happen under the read lock so that once
	// Unsubscribe returns the sink never sees another write.
	mu    sync.RWMutex
	conns []*Subscription

	// publishMu keeps one publisher at a time per shop, which keeps
	// per-connection delivery in publish order.
	publishMu sync.Mutex
}

type Registry struct {
	mu     sync.RWMutex
	shops  map[string]*shopConns
	closed bool

	maxPerShop int
	logger     *zap.Logger
	metrics    observability.Metrics
}

func New(maxPerShop int, logger *zap.Logger, metrics observability.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoop()
	}
	return &Registry{
		shops:      make(map[string]*shopConns),
		maxPerShop: maxPerShop,
		logger:     logger,
		metrics:    metrics,
	}
}

// Subscribe registers sink for shopID. A rejected sink is closed and never
// tracked.
func (r *Registry) Subscribe(shopID string, id auth.Identity, sink Sink) (*Subscription, error) {
	if !id.CanAccess(shopID) {
		sink.Close()
		r.logger.Warn("subscription rejected",
			zap.String("shop_id", shopID),
			zap.String("subject", id.Subject),
			zap.Error(ErrForbidden),
		)
		return nil, ErrForbidden
	}

	sc, err := r.shop(shopID)
	if err != nil {
		sink.Close()
		return nil, err
	}

	sc.mu.Lock()
	if r.isClosed() {
		sc.mu.Unlock()
		sink.Close()
		return nil, ErrClosed
	}
	if r.maxPerShop > 0 && len(sc.conns) >= r.maxPerShop {
		sc.mu.Unlock()
		sink.Close()
		r.logger.Warn("subscription rejected",
			zap.String("shop_id", shopID),
			zap.String("subject", id.Subject),
			zap.Int("limit", r.maxPerShop),
			zap.Error(ErrLimitReached),
		)
		return nil, ErrLimitReached
	}
	sub := &Subscription{
		ID:       uuid.NewString(),
		ShopID:   shopID,
		Identity: id,
		sink:     sink,
	}
	sc.conns = append(sc.conns, sub)
	n := len(sc.conns)
	sc.mu.Unlock()

	r.metrics.SetConnections(shopID, n)
	r.logger.Info("subscribed",
		zap.String("shop_id", shopID),
		zap.String("subject", id.Subject),
		zap.String("conn_id", sub.ID),
		zap.Int("connections", n),
	)
	return sub, nil
}

// Unsubscribe removes the record matching subscriber and sink. It reports
// false when there was nothing to remove, which is not an error.
func (r *Registry) Unsubscribe(shopID, subscriber string, sink Sink) bool {
	sc := r.lookup(shopID)
	if sc == nil {
		return false
	}
	sub, n := sc.remove(func(s *Subscription) bool {
		return s.Identity.Subject == subscriber && s.sink == sink
	})
	if sub == nil {
		return false
	}

	r.metrics.SetConnections(shopID, n)
	r.logger.Info("unsubscribed",
		zap.String("shop_id", shopID),
		zap.String("subject", subscriber),
		zap.String("conn_id", sub.ID),
		zap.Int("connections", n),
	)
	return true
}

// Publish delivers ev to every open connection of shopID and returns how
// many accepted it. Connections that fail are evicted, not retried.
func (r *Registry) Publish(shopID string, ev domain.Event) int {
	sc := r.lookup(shopID)
	if sc == nil {
		r.metrics.ObserveFanout(0, 0)
		return 0
	}

	sc.publishMu.Lock()
	defer sc.publishMu.Unlock()

	type failure struct {
		sub *Subscription
		err error
	}
	var (
		delivered int
		failed    []failure
	)

	sc.mu.RLock()
	for _, sub := range sc.conns {
		if err := sub.sink.Send(ev); err != nil {
			failed = append(failed, failure{sub: sub, err: err})
			continue
		}
		delivered++
	}
	sc.mu.RUnlock()

	for _, f := range failed {
		r.evict(sc, f.sub, f.err)
	}

	r.metrics.ObserveFanout(delivered, len(failed))
	r.logger.Debug("event published",
		zap.String("shop_id", shopID),
		zap.String("type", string(ev.Type)),
		zap.Int("delivered", delivered),
		zap.Int("evicted", len(failed)),
	)
	return delivered
}

// Count returns the number of open connections for shopID.
func (r *Registry) Count(shopID string) int {
	sc := r.lookup(shopID)
	if sc == nil {
		return 0
	}
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.conns)
}

// CloseAll closes every sink and refuses new subscriptions.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.closed = true
	shops := make(map[string]*shopConns, len(r.shops))
	for k, v := range r.shops {
		shops[k] = v
	}
	r.mu.Unlock()

	total := 0
	for shopID, sc := range shops {
		sc.mu.Lock()
		conns := sc.conns
		sc.conns = nil
		sc.mu.Unlock()

		for _, sub := range conns {
			sub.sink.Close()
		}
		total += len(conns)
		r.metrics.SetConnections(shopID, 0)
	}
	r.logger.Info("registry closed", zap.Int("connections", total))
}

func (r *Registry) evict(sc *shopConns, victim *Subscription, cause error) {
	sub, n := sc.remove(func(s *Subscription) bool { return s == victim })
	if sub == nil {
		// Already unsubscribed; the owner closes its own sink.
		return
	}
	sub.sink.Close()

	r.metrics.SetConnections(sub.ShopID, n)
	r.logger.Warn("connection evicted",
		zap.String("shop_id", sub.ShopID),
		zap.String("subject", sub.Identity.Subject),
		zap.String("conn_id", sub.ID),
		zap.Error(cause),
	)
}

func (sc *shopConns) remove(match func(*Subscription) bool) (*Subscription, int) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	for i, s := range sc.conns {
		if match(s) {
			sc.conns = append(sc.conns[:i:i], sc.conns[i+1:]...)
			return s, len(sc.conns)
		}
	}
	return nil, len(sc.conns)
}

func (r *Registry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *Registry) lookup(shopID string) *shopConns {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.shops[shopID]
}

func (r *Registry) shop(shopID string) (*shopConns, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	sc := r.shops[shopID]
	if sc == nil {
		sc = &shopConns{}
		r.shops[shopID] = sc
	}
	return sc, nil
}
