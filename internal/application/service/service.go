package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/orderfeed/internal/domain"
	"github.com/TemirB/orderfeed/internal/observability"
	"github.com/TemirB/orderfeed/internal/retryqueue"
)

//go:generate mockgen -source internal/application/service/service.go -destination=internal/application/service/service_mock_test.go -package=service

// ErrNotAccepted means the order reached neither the cache nor the retry
// queue; the origin has to send it again.
var ErrNotAccepted = errors.New("order not accepted")

type Cache interface {
	Put(ctx context.Context, order domain.Order) (bool, error)
	Get(ctx context.Context, shopID, id string) (domain.Order, error)
	List(ctx context.Context, shopID string) ([]domain.Order, error)
}

type Publisher interface {
	Publish(shopID string, ev domain.Event) int
}

type Resolver interface {
	Resolve(ctx context.Context, shopName string) (string, error)
}

type Queue interface {
	Enqueue(ctx context.Context, e retryqueue.Entry) error
}

type brk interface {
	Allow() error
	Success()
	Failure()
}

type Service struct {
	cache     Cache
	publisher Publisher
	directory Resolver
	queue     Queue
	breaker   brk
	logger    *zap.Logger
	metrics   observability.Metrics
	now       func() time.Time

	// serializes read-modify-write status updates
	updateMu sync.Mutex
}

func NewService(cache Cache, publisher Publisher, directory Resolver, queue Queue, breaker brk, logger *zap.Logger, metrics observability.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoop()
	}
	return &Service{
		cache:     cache,
		publisher: publisher,
		directory: directory,
		queue:     queue,
		breaker:   breaker,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Ingest normalizes an order from the external origin, writes it to the
// cache and fans it out. When the cache is unavailable the order goes to
// the retry queue and the result is OutcomeQueued.
func (s *Service) Ingest(ctx context.Context, in domain.IncomingOrder) (IngestResult, error) {
	var res IngestResult

	if err := in.Validate(); err != nil {
		s.metrics.ObserveIngest(observability.OutcomeRejected, 0)
		return res, err
	}

	shopID, err := s.directory.Resolve(ctx, in.ShopName)
	if errors.Is(err, domain.ErrUnknownShop) {
		s.metrics.ObserveIngest(observability.OutcomeRejected, 0)
		return res, &domain.ValidationError{Field: "shop_name", Reason: fmt.Sprintf("unknown shop %q", in.ShopName)}
	}
	if err != nil {
		s.metrics.ObserveIngest(observability.OutcomeFailed, 0)
		return res, fmt.Errorf("%w: resolve shop: %v", ErrNotAccepted, err)
	}

	order := in.Normalize(shopID, s.now())
	res.OrderID = order.ID

	t0 := time.Now()
	created, err := s.put(ctx, order)
	res.CacheMs = convertToMs(t0)
	if err != nil {
		return s.divert(ctx, order, err, res)
	}

	res.Outcome = OutcomeDelivered
	res.Created = created
	res.Listeners = s.publish(order, created)

	s.metrics.ObserveIngest(observability.OutcomeDelivered, res.CacheMs)
	s.logger.Info("Order ingested",
		zap.String("order_id", order.ID),
		zap.String("shop_id", order.ShopID),
		zap.Bool("created", created),
		zap.Int("listeners", res.Listeners),
		zap.Float64("cache_ms", res.CacheMs),
	)
	return res, nil
}

func (s *Service) divert(ctx context.Context, order domain.Order, cause error, res IngestResult) (IngestResult, error) {
	entry := retryqueue.NewEntry(order, cause.Error(), s.now())
	if err := s.queue.Enqueue(ctx, entry); err != nil {
		s.metrics.ObserveIngest(observability.OutcomeFailed, res.CacheMs)
		s.logger.Error("Order lost: cache and retry queue both failed",
			zap.String("order_id", order.ID),
			zap.String("shop_id", order.ShopID),
			zap.NamedError("cache_error", cause),
			zap.NamedError("queue_error", err),
		)
		return res, fmt.Errorf("%w: cache: %v; retry queue: %v", ErrNotAccepted, cause, err)
	}

	res.Outcome = OutcomeQueued
	res.Warning = "order accepted but not yet visible to viewers: " + cause.Error()
	s.metrics.ObserveRetryQueue(observability.OutcomeEnqueued)
	s.metrics.ObserveIngest(observability.OutcomeQueued, res.CacheMs)
	s.logger.Warn("Order diverted to retry queue",
		zap.String("order_id", order.ID),
		zap.String("shop_id", order.ShopID),
		zap.String("entry_id", entry.ID.String()),
		zap.Error(cause),
	)
	return res, nil
}

// Redeliver replays an order taken from the retry queue. An order the cache
// already holds counts as delivered and is left as is, so a replay never
// rolls back a status set since.
func (s *Service) Redeliver(ctx context.Context, order domain.Order) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	cached, err := s.cache.Get(ctx, order.ShopID, order.ID)
	switch {
	case err == nil:
		s.logger.Info("Order already cached, replay skipped",
			zap.String("order_id", order.ID),
			zap.String("shop_id", order.ShopID),
			zap.String("status", string(cached.Status)),
		)
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	created, err := s.put(ctx, order)
	if err != nil {
		return err
	}
	n := s.publish(order, created)
	s.logger.Info("Order redelivered",
		zap.String("order_id", order.ID),
		zap.String("shop_id", order.ShopID),
		zap.Int("listeners", n),
	)
	return nil
}

// UpdateStatus moves a cached order to status and notifies viewers.
func (s *Service) UpdateStatus(ctx context.Context, shopID, orderID string, status domain.Status) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}

	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	order, err := s.cache.Get(ctx, shopID, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	from := order.Status
	if err := order.Transition(status, s.now()); err != nil {
		return domain.Order{}, err
	}
	if _, err := s.put(ctx, order); err != nil {
		return domain.Order{}, err
	}

	n := s.publisher.Publish(shopID, domain.StatusUpdateEvent(order))
	s.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("shop_id", shopID),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
		zap.Int("listeners", n),
	)
	return order, nil
}

// Snapshot returns the shop's cached orders, newest first.
func (s *Service) Snapshot(ctx context.Context, shopID string) ([]domain.Order, error) {
	orders, err := s.cache.List(ctx, shopID)
	if err != nil {
		s.logger.Error("Can't list orders",
			zap.String("shop_id", shopID),
			zap.Error(err),
		)
		return nil, err
	}
	domain.SortNewestFirst(orders)
	return orders, nil
}

// List implements stream.Snapshotter.
func (s *Service) List(ctx context.Context, shopID string) ([]domain.Order, error) {
	return s.Snapshot(ctx, shopID)
}

func (s *Service) put(ctx context.Context, order domain.Order) (bool, error) {
	if err := s.breaker.Allow(); err != nil {
		return false, err
	}
	created, err := s.cache.Put(ctx, order)
	if err != nil {
		s.breaker.Failure()
		return false, err
	}
	s.breaker.Success()
	return created, nil
}

func (s *Service) publish(order domain.Order, created bool) int {
	ev := domain.NewOrderEvent(order)
	if !created {
		ev = domain.StatusUpdateEvent(order)
	}
	return s.publisher.Publish(order.ShopID, ev)
}
