package retryqueue

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/orderfeed/internal/config"
	"github.com/TemirB/orderfeed/internal/domain"
	"github.com/TemirB/orderfeed/internal/observability"
	"github.com/TemirB/orderfeed/internal/pkg/pool"
)

//go:generate mockgen -source internal/retryqueue/drainer.go -destination=internal/retryqueue/drainer_mock_test.go -package=retryqueue

type Redeliverer interface {
	Redeliver(ctx context.Context, order domain.Order) error
}

// Drainer periodically pushes pending entries back through the cache and
// the registry. Entries of one shop are replayed sequentially in enqueue
// order; different shops run on the worker pool.
type Drainer struct {
	store   Store
	target  Redeliverer
	cfg     config.RetryQueue
	workers int
	logger  *zap.Logger
	metrics observability.Metrics
}

func NewDrainer(store Store, target Redeliverer, cfg config.RetryQueue, workers int, logger *zap.Logger, metrics observability.Metrics) *Drainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoop()
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 30 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Drainer{
		store:   store,
		target:  target,
		cfg:     cfg,
		workers: workers,
		logger:  logger,
		metrics: metrics,
	}
}

// Run drains on every tick until ctx is done.
func (d *Drainer) Run(ctx context.Context) error {
	d.logger.Info("retry drainer started",
		zap.Duration("interval", d.cfg.DrainInterval),
		zap.Int("max_attempts", d.cfg.MaxAttempts),
		zap.Int("batch", d.cfg.Batch),
	)
	t := time.NewTicker(d.cfg.DrainInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("retry drainer stopped")
			return nil
		case <-t.C:
			if _, err := d.DrainOnce(ctx); err != nil {
				d.logger.Warn("retry drain failed", zap.Error(err))
			}
		}
	}
}

// DrainOnce replays one batch and reports how many entries were delivered.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	entries, err := d.store.Pending(ctx, d.cfg.Batch)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	var shops []string
	byShop := make(map[string][]Entry)
	for _, e := range entries {
		if _, ok := byShop[e.Order.ShopID]; !ok {
			shops = append(shops, e.Order.ShopID)
		}
		byShop[e.Order.ShopID] = append(byShop[e.Order.ShopID], e)
	}

	var delivered atomic.Int64
	p := pool.New(min(d.workers, len(shops)))
	for _, shop := range shops {
		group := byShop[shop]
		p.Submit(func() {
			for _, e := range group {
				if ctx.Err() != nil {
					return
				}
				if d.replay(ctx, e) {
					delivered.Add(1)
				}
			}
		})
	}
	p.Close()
	p.Wait()

	n := int(delivered.Load())
	d.logger.Info("retry queue drained",
		zap.Int("pending", len(entries)),
		zap.Int("delivered", n),
	)
	return n, ctx.Err()
}

func (d *Drainer) replay(ctx context.Context, e Entry) bool {
	err := d.target.Redeliver(ctx, e.Order)
	if err == nil {
		if mErr := d.store.MarkDelivered(ctx, e.ID); mErr != nil {
			d.logger.Warn("mark delivered failed", zap.String("entry_id", e.ID.String()), zap.Error(mErr))
		}
		d.metrics.ObserveRetryQueue(observability.OutcomeDelivered)
		return true
	}

	if e.Attempts+1 >= d.cfg.MaxAttempts {
		if mErr := d.store.MarkFailed(ctx, e.ID, err); mErr != nil {
			d.logger.Warn("mark failed failed", zap.String("entry_id", e.ID.String()), zap.Error(mErr))
		}
		d.metrics.ObserveRetryQueue(observability.OutcomeFailed)
		d.logger.Error("order dropped from retry queue, operator action required",
			zap.String("entry_id", e.ID.String()),
			zap.String("order_id", e.Order.ID),
			zap.String("shop_id", e.Order.ShopID),
			zap.Int("attempts", e.Attempts+1),
			zap.Error(err),
		)
		return false
	}

	if mErr := d.store.MarkAttempt(ctx, e.ID, err); mErr != nil {
		d.logger.Warn("mark attempt failed", zap.String("entry_id", e.ID.String()), zap.Error(mErr))
	}
	d.metrics.ObserveRetryQueue(observability.OutcomeRetried)
	d.logger.Warn("redelivery failed, will retry",
		zap.String("entry_id", e.ID.String()),
		zap.String("order_id", e.Order.ID),
		zap.Int("attempts", e.Attempts+1),
		zap.Error(err),
	)
	return false
}
