package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/orderfeed/internal/auth"
	"github.com/TemirB/orderfeed/internal/domain"
	"github.com/TemirB/orderfeed/internal/registry"
)

//go:generate mockgen -source internal/stream/handler.go -destination=internal/stream/handler_mock_test.go -package=stream

type Snapshotter interface {
	List(ctx context.Context, shopID string) ([]domain.Order, error)
}

type Subscriber interface {
	Subscribe(shopID string, id auth.Identity, sink registry.Sink) (*registry.Subscription, error)
	Unsubscribe(shopID, subscriber string, sink registry.Sink) bool
}

// Handler serves GET /api/stream?token=...&shop_id=...
type Handler struct {
	verifier  auth.Verifier
	registry  Subscriber
	orders    Snapshotter
	keepAlive time.Duration
	queueSize int
	logger    *zap.Logger
}

func NewHandler(verifier auth.Verifier, reg Subscriber, orders Snapshotter, keepAlive time.Duration, queueSize int, logger *zap.Logger) *Handler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		verifier:  verifier,
		registry:  reg,
		orders:    orders,
		keepAlive: keepAlive,
		queueSize: queueSize,
		logger:    logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	id, err := h.verifier.Verify(ctx, token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	shopID := r.URL.Query().Get("shop_id")
	if shopID == "" && !id.IsAdmin() {
		shopID = id.ShopID
	}
	if shopID == "" {
		http.Error(w, "shop_id is required", http.StatusBadRequest)
		return
	}

	s := newSink(h.queueSize)
	sub, err := h.registry.Subscribe(shopID, id, s)
	switch {
	case errors.Is(err, registry.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	case errors.Is(err, registry.ErrLimitReached):
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	case err != nil:
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	// Deregister before the sink is released, on every exit path.
	defer func() {
		h.registry.Unsubscribe(shopID, id.Subject, s)
		s.Close()
	}()

	log := h.logger.With(
		zap.String("shop_id", shopID),
		zap.String("subject", id.Subject),
		zap.String("conn_id", sub.ID),
	)

	// Live events already queue into s; the snapshot is taken after.
	snapshot, err := h.orders.List(ctx, shopID)
	if err != nil {
		log.Error("snapshot failed", zap.Error(err))
		http.Error(w, "snapshot unavailable", http.StatusServiceUnavailable)
		return
	}
	domain.SortNewestFirst(snapshot)

	rc := http.NewResponseController(w)
	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := h.extendDeadline(rc); err != nil {
		log.Warn("write deadline unavailable", zap.Error(err))
		return
	}
	if err := WriteEvent(w, domain.Event{Type: domain.EventConnected, ShopID: shopID}); err != nil {
		return
	}
	if err := WriteEvent(w, domain.InitialOrdersEvent(shopID, snapshot)); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		log.Warn("stream flush failed", zap.Error(err))
		return
	}
	log.Info("stream opened", zap.Int("snapshot", len(snapshot)))

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		var werr error
		select {
		case <-ctx.Done():
			log.Info("stream closed by client")
			return
		case <-s.Done():
			log.Info("stream closed by server")
			return
		case ev := <-s.queue:
			if werr = h.extendDeadline(rc); werr == nil {
				werr = WriteEvent(w, ev)
			}
		case <-ticker.C:
			if werr = h.extendDeadline(rc); werr == nil {
				werr = WriteComment(w, keepAliveComment)
			}
		}
		if werr == nil {
			werr = rc.Flush()
		}
		if werr != nil {
			log.Info("stream write failed", zap.Error(werr))
			return
		}
	}
}

// extendDeadline bounds the next write and flush, so a peer that stopped
// reading cannot pin the handler after its sink was evicted.
func (h *Handler) extendDeadline(rc *http.ResponseController) error {
	err := rc.SetWriteDeadline(time.Now().Add(h.keepAlive))
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}
