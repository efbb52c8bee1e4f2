package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TemirB/orderfeed/internal/application/service"
	"github.com/TemirB/orderfeed/internal/config"
	"github.com/TemirB/orderfeed/internal/domain"
	"github.com/TemirB/orderfeed/internal/observability"
	"github.com/TemirB/orderfeed/internal/pkg/retry"
	"github.com/TemirB/orderfeed/internal/retryqueue"
)

//go:generate mockgen -source internal/application/handler/handler.go -destination=internal/application/handler/handler_mock_test.go -package=handler

var (
	ErrBadJSON     = errors.New("bad json")
	ErrIngest      = errors.New("ingest failed")
	ErrCircuitOpen = errors.New("circuit breaker open")
)

type Service interface {
	Ingest(ctx context.Context, in domain.IncomingOrder) (service.IngestResult, error)
}

type brk interface {
	Allow() error
	Success()
	Failure()
}

type Handler struct {
	service     Service
	breaker     brk
	logger      *zap.Logger
	retryPolicy config.Retry
}

func NewHandler(service Service, brk brk, retryPolicy config.Retry, logger *zap.Logger) *Handler {
	return &Handler{
		service:     service,
		breaker:     brk,
		logger:      logger,
		retryPolicy: retryPolicy,
	}
}

// Handle is called by the consumer to process a single message from the
// orders topic. Returning nil commits the offset, so payloads that can never
// be ingested are logged and acknowledged.
func (h *Handler) Handle(ctx context.Context, message kafkago.Message) error {
	if err := h.breaker.Allow(); err != nil {
		h.logger.Warn("circuit breaker is open",
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}

	var in domain.IncomingOrder
	if err := json.Unmarshal(message.Value, &in); err != nil {
		h.logger.Error("bad json format, skipping message",
			zap.Error(fmt.Errorf("%w: %v", ErrBadJSON, err)),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		return nil
	}

	var res service.IngestResult
	err := retry.Do(ctx, h.retryPolicy, func() error {
		var err error
		res, err = h.service.Ingest(ctx, in)
		if domain.IsValidation(err) {
			return retry.Stop(err)
		}
		return err
	})
	if domain.IsValidation(err) {
		h.logger.Warn("order rejected, skipping message",
			zap.String("order_number", in.OrderNumber),
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		return nil
	}
	if err != nil {
		h.logger.Error("ingest failed after retries",
			zap.String("order_number", in.OrderNumber),
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		h.breaker.Failure()
		return fmt.Errorf("%w: %v", ErrIngest, err)
	}

	h.breaker.Success()
	h.logger.Info("successfully processed order",
		zap.String("order_id", res.OrderID),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("listeners", res.Listeners),
		zap.Int("partition", message.Partition),
		zap.Int64("offset", message.Offset),
		zap.Int("key_bytes", len(message.Key)),
		zap.Int("value_bytes", len(message.Value)),
	)
	return nil
}

type Redeliverer interface {
	Redeliver(ctx context.Context, order domain.Order) error
}

type Requeuer interface {
	Enqueue(ctx context.Context, e retryqueue.Entry) error
}

// RetryHandler consumes the retry topic. Each entry waits until interval
// has passed since its last attempt, is replayed, and on failure is written
// back with one more attempt until maxAttempts is reached.
type RetryHandler struct {
	target      Redeliverer
	requeue     Requeuer
	interval    time.Duration
	maxAttempts int
	logger      *zap.Logger
	metrics     observability.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryHandler(target Redeliverer, requeue Requeuer, cfg config.RetryQueue, logger *zap.Logger, metrics observability.Metrics) *RetryHandler {
	if metrics == nil {
		metrics = observability.NewNoop()
	}
	return &RetryHandler{
		target:      target,
		requeue:     requeue,
		interval:    cfg.DrainInterval,
		maxAttempts: max(cfg.MaxAttempts, 1),
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

func (h *RetryHandler) Handle(ctx context.Context, message kafkago.Message) error {
	e, err := retryqueue.Decode(message)
	if err != nil {
		h.logger.Error("bad retry entry, skipping message",
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		return nil
	}

	if wait := e.UpdatedAt.Add(h.interval).Sub(h.now()); wait > 0 {
		if err := h.sleep(ctx, wait); err != nil {
			return err
		}
	}

	err = h.target.Redeliver(ctx, e.Order)
	if err == nil {
		h.metrics.ObserveRetryQueue(observability.OutcomeDelivered)
		h.logger.Info("retry entry delivered",
			zap.String("entry_id", e.ID.String()),
			zap.String("order_id", e.Order.ID),
			zap.Int("attempts", e.Attempts+1),
		)
		return nil
	}

	e.Attempts++
	e.LastError = err.Error()
	e.UpdatedAt = h.now().UTC()

	if e.Attempts >= h.maxAttempts {
		h.metrics.ObserveRetryQueue(observability.OutcomeFailed)
		h.logger.Error("order dropped from retry queue, operator action required",
			zap.String("entry_id", e.ID.String()),
			zap.String("order_id", e.Order.ID),
			zap.String("shop_id", e.Order.ShopID),
			zap.Int("attempts", e.Attempts),
			zap.Error(err),
		)
		return nil
	}

	if qErr := h.requeue.Enqueue(ctx, e); qErr != nil {
		return fmt.Errorf("requeue %s: %w", e.ID, qErr)
	}
	h.metrics.ObserveRetryQueue(observability.OutcomeRetried)
	h.logger.Warn("redelivery failed, requeued",
		zap.String("entry_id", e.ID.String()),
		zap.String("order_id", e.Order.ID),
		zap.Int("attempts", e.Attempts),
		zap.Error(err),
	)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
