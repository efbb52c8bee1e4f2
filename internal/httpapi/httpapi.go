package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/TemirB/orderfeed/internal/application/service"
	"github.com/TemirB/orderfeed/internal/auth"
	"github.com/TemirB/orderfeed/internal/domain"
	"github.com/TemirB/orderfeed/internal/observability"
	"github.com/TemirB/orderfeed/internal/pkg/breaker"
	"github.com/TemirB/orderfeed/internal/registry"
	"github.com/TemirB/orderfeed/internal/retryqueue"
)

//go:generate mockgen -source internal/httpapi/httpapi.go -destination=internal/httpapi/httpapi_mock_test.go -package=httpapi

const maxBodyBytes = 1 << 20

type Orders interface {
	Ingest(ctx context.Context, in domain.IncomingOrder) (service.IngestResult, error)
	UpdateStatus(ctx context.Context, shopID, orderID string, status domain.Status) (domain.Order, error)
	Snapshot(ctx context.Context, shopID string) ([]domain.Order, error)
}

type RetryLister interface {
	List(ctx context.Context) ([]retryqueue.Entry, error)
}

type Deps struct {
	Orders   Orders
	Verifier auth.Verifier
	// IngestSecret is the shared secret of the external order origin.
	IngestSecret string
	Stream       http.Handler
	// Retries is nil when the retry queue backend cannot be listed.
	Retries        RetryLister
	MetricsHandler http.Handler
	Logger         *zap.Logger
	Metrics        observability.Metrics
}

type Server struct {
	orders   Orders
	verifier auth.Verifier
	secret   string
	retries  RetryLister
	logger   *zap.Logger
	metrics  observability.Metrics
	router   chi.Router
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = observability.NewNoop()
	}
	s := &Server{
		orders:   d.Orders,
		verifier: d.Verifier,
		secret:   d.IngestSecret,
		retries:  d.Retries,
		logger:   d.Logger,
		metrics:  d.Metrics,
	}
	s.routes(d.Stream, d.MetricsHandler)
	return s
}

func (s *Server) routes(stream, metrics http.Handler) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(ZapLogger(s.logger))
	r.Use(ServerTimingApp(s.metrics))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	if stream != nil {
		// no request timeout: the stream lives as long as the client
		r.Method(http.MethodGet, "/api/stream", stream)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Post("/api/orders", s.ingestOrder)
		r.Get("/api/shops/{shopID}/orders", s.listOrders)
		r.Post("/api/shops/{shopID}/orders/{orderID}/status", s.updateStatus)
		r.Get("/api/admin/retry-queue", s.listRetryQueue)
	})

	s.router = r
}

type ingestResponse struct {
	Status    string `json:"status"`
	OrderID   string `json:"order_id"`
	Listeners *int   `json:"listeners,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

func (s *Server) ingestOrder(w http.ResponseWriter, r *http.Request) {
	if err := auth.CheckSecret(s.secret, auth.BearerToken(r.Header.Get("Authorization"))); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	var in domain.IncomingOrder
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		s.logger.Warn(
			"Error while decoding JSON",
			zap.Error(err),
		)
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.orders.Ingest(r.Context(), in)
	if err != nil {
		s.fail(w, err)
		return
	}

	observability.AppendServerTiming(w, "cache", res.CacheMs, "")
	observability.SetIfPos(w, "X-Cache-Time", res.CacheMs)
	if res.Outcome == service.OutcomeQueued {
		writeJSONStatus(w, http.StatusAccepted, ingestResponse{
			Status:  string(res.Outcome),
			OrderID: res.OrderID,
			Warning: res.Warning,
		})
		return
	}
	listeners := res.Listeners
	writeJSON(w, ingestResponse{
		Status:    string(res.Outcome),
		OrderID:   res.OrderID,
		Listeners: &listeners,
	})
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")
	if _, ok := s.authorize(w, r, shopID); !ok {
		return
	}
	orders, err := s.orders.Snapshot(r.Context(), shopID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, orders)
}

type statusRequest struct {
	Status domain.Status `json:"status"`
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")
	orderID := chi.URLParam(r, "orderID")
	if _, ok := s.authorize(w, r, shopID); !ok {
		return
	}

	var req statusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	order, err := s.orders.UpdateStatus(r.Context(), shopID, orderID, req.Status)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, order)
}

func (s *Server) listRetryQueue(w http.ResponseWriter, r *http.Request) {
	id, err := s.identity(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if !id.IsAdmin() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if s.retries == nil {
		http.Error(w, "retry queue backend cannot be listed", http.StatusNotImplemented)
		return
	}
	entries, err := s.retries.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if entries == nil {
		entries = []retryqueue.Entry{}
	}
	writeJSON(w, entries)
}

func (s *Server) identity(r *http.Request) (auth.Identity, error) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return s.verifier.Verify(r.Context(), token)
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, shopID string) (auth.Identity, bool) {
	id, err := s.identity(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return id, false
	}
	if !id.CanAccess(shopID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return id, false
	}
	return id, true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err), zap.Int("status", code))
		http.Error(w, "Service error", code)
		return
	}
	http.Error(w, err.Error(), code)
}

func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrBadSecret):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, registry.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, registry.ErrLimitReached):
		return http.StatusTooManyRequests
	case errors.Is(err, breaker.ErrOpenState):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Handler() http.Handler { return s.router }
