package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/orderfeed/internal/domain"
	"github.com/TemirB/orderfeed/internal/pkg/retry"
	"github.com/TemirB/orderfeed/internal/stream"
)

//go:generate mockgen -source internal/client/consumer.go -destination=internal/client/consumer_mock_test.go -package=client

// ErrDenied means the server refused this token or scope. It is terminal:
// the consumer never reconnects after it.
var ErrDenied = errors.New("access denied")

var errStreamSilent = errors.New("push stream silent")

type State string

const (
	StateConnecting State = "connecting"
	StateLive       State = "live"
	StateDegraded   State = "degraded"
	StateDenied     State = "denied"
	StateStopped    State = "stopped"
)

const (
	DefaultDebounce       = 100 * time.Millisecond
	DefaultHealthInterval = 15 * time.Second
	DefaultDeadAfter      = 60 * time.Second
	DefaultPollInterval   = 12 * time.Second
	DefaultBackoffInitial = 2 * time.Second
	DefaultBackoffMax     = 32 * time.Second
	DefaultDenyGrace      = 2 * time.Second
)

// Stream yields frames until the connection ends. Next must return once the
// context given to Transport.Open is done.
type Stream interface {
	Next() (stream.Frame, error)
	Close() error
}

type Transport interface {
	Open(ctx context.Context, shopID, token string) (Stream, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, shopID, token string) ([]domain.Order, error)
}

type Options struct {
	ShopID string
	Token  string

	Debounce       time.Duration
	HealthInterval time.Duration
	DeadAfter      time.Duration
	PollInterval   time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// DenyGrace is how soon after opening a silent close counts as a denial.
	DenyGrace time.Duration

	// OnUpdate gets the full order list, newest first, after every change.
	OnUpdate func([]domain.Order)
	OnState  func(State)
	// OnReconnect reports each backoff delay before it is waited out.
	OnReconnect func(time.Duration)

	Scheduler Scheduler
	Logger    *zap.Logger
}

func (o *Options) withDefaults() {
	setDefault(&o.Debounce, DefaultDebounce)
	setDefault(&o.HealthInterval, DefaultHealthInterval)
	setDefault(&o.DeadAfter, DefaultDeadAfter)
	setDefault(&o.PollInterval, DefaultPollInterval)
	setDefault(&o.BackoffInitial, DefaultBackoffInitial)
	setDefault(&o.BackoffMax, DefaultBackoffMax)
	setDefault(&o.DenyGrace, DefaultDenyGrace)
	if o.Scheduler == nil {
		o.Scheduler = RealScheduler()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

func setDefault(d *time.Duration, v time.Duration) {
	if *d <= 0 {
		*d = v
	}
}

// Consumer keeps a local, de-duplicated view of one shop's orders. It reads
// the push stream, falls back to polling while the stream is silent, and
// reconnects with backoff. Run may be called once.
type Consumer struct {
	transport Transport
	fetcher   Fetcher
	opts      Options
	sched     Scheduler
	logger    *zap.Logger
	backoff   *retry.Backoff

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	orders      map[string]domain.Order
	pending     []domain.Order
	pendingIDs  map[string]struct{}
	state       State
	lastMessage time.Time
	stopped     bool
	denied      bool
	health      Timer
	poll        Timer
	debounce    Timer
	wait        Timer
	seq         uint64

	// live session; cancelled by the health check when the stream goes quiet
	streamCancel context.CancelFunc
	streamOpened time.Time

	// notifyMu serializes callbacks; stale notices are dropped by seq.
	notifyMu    sync.Mutex
	shownOrders uint64
	shownState  uint64
}

func New(transport Transport, fetcher Fetcher, opts Options) *Consumer {
	opts.withDefaults()
	return &Consumer{
		transport:  transport,
		fetcher:    fetcher,
		opts:       opts,
		sched:      opts.Scheduler,
		logger:     opts.Logger.With(zap.String("shop_id", opts.ShopID)),
		backoff:    retry.NewBackoff(opts.BackoffInitial, opts.BackoffMax),
		orders:     make(map[string]domain.Order),
		pendingIDs: make(map[string]struct{}),
	}
}

// Run blocks until ctx is done or access is denied. It returns ErrDenied in
// the latter case and nil otherwise.
func (c *Consumer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.begin(ctx, cancel)

	for {
		err := c.session(ctx)
		if c.isDenied() || errors.Is(err, ErrDenied) {
			c.logger.Error("access denied, not reconnecting", zap.Error(err))
			c.end(StateDenied)
			return ErrDenied
		}
		if ctx.Err() != nil {
			c.end(StateStopped)
			return nil
		}

		delay := c.backoff.Next()
		c.logger.Warn("push stream lost", zap.Error(err), zap.Duration("retry_in", delay))
		c.disconnected()
		if !c.sleep(ctx, delay) {
			if c.isDenied() {
				c.end(StateDenied)
				return ErrDenied
			}
			c.end(StateStopped)
			return nil
		}
	}
}

// Orders returns the current list, newest first.
func (c *Consumer) Orders() []domain.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listLocked()
}

func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Consumer) begin(ctx context.Context, cancel context.CancelFunc) {
	c.mu.Lock()
	c.ctx = ctx
	c.cancel = cancel
	c.lastMessage = c.sched.Now()
	c.health = c.sched.AfterFunc(c.opts.HealthInterval, c.checkHealth)
	n := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	c.notifyState(n)
}

func (c *Consumer) end(final State) {
	c.mu.Lock()
	c.stopped = true
	for _, t := range []Timer{c.health, c.poll, c.debounce, c.wait} {
		if t != nil {
			t.Stop()
		}
	}
	c.health, c.poll, c.debounce, c.wait = nil, nil, nil, nil
	c.pending = nil
	clear(c.pendingIDs)
	n := c.setStateLocked(final)
	c.mu.Unlock()
	c.notifyState(n)
}

// session runs one connection until it breaks or the health check gives
// up on it.
func (c *Consumer) session(ctx context.Context) error {
	sctx, scancel := context.WithCancel(ctx)
	defer scancel()

	opened := c.sched.Now()
	c.mu.Lock()
	c.streamCancel = scancel
	c.streamOpened = opened
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.streamCancel = nil
		c.mu.Unlock()
	}()

	st, err := c.transport.Open(sctx, c.opts.ShopID, c.opts.Token)
	if err != nil {
		if ctx.Err() == nil && sctx.Err() != nil {
			return errStreamSilent
		}
		return err
	}
	defer st.Close()

	received := false
	for {
		f, err := st.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if sctx.Err() != nil {
				return errStreamSilent
			}
			if !received && c.sched.Now().Sub(opened) < c.opts.DenyGrace {
				return fmt.Errorf("%w: stream closed before first message: %v", ErrDenied, err)
			}
			return err
		}
		if !received {
			received = true
			c.backoff.Reset()
		}
		c.handleFrame(f)
	}
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	done := make(chan struct{})
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	c.wait = c.sched.AfterFunc(d, func() { close(done) })
	c.mu.Unlock()

	if c.opts.OnReconnect != nil {
		c.opts.OnReconnect(d)
	}

	select {
	case <-done:
		c.mu.Lock()
		c.wait = nil
		c.mu.Unlock()
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Consumer) disconnected() {
	c.mu.Lock()
	var n stateNotice
	if c.state == StateLive {
		n = c.setStateLocked(StateConnecting)
	}
	c.mu.Unlock()
	c.notifyState(n)
}

// handleFrame records liveness for every frame, keep-alives included, and
// applies the event it carries.
func (c *Consumer) handleFrame(f stream.Frame) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.lastMessage = c.sched.Now()

	var sn stateNotice
	if c.state != StateLive {
		if c.state == StateDegraded {
			c.stopPollingLocked()
			c.logger.Info("push stream recovered, polling stopped")
		}
		sn = c.setStateLocked(StateLive)
	}

	var on ordersNotice
	if !f.Comment && c.applyLocked(f) {
		on = c.snapshotLocked()
	}
	c.mu.Unlock()

	c.notifyState(sn)
	c.notifyOrders(on)
}

func (c *Consumer) applyLocked(f stream.Frame) bool {
	var ev domain.Event
	if err := json.Unmarshal(f.Data, &ev); err != nil {
		c.logger.Warn("undecodable event", zap.String("event", f.Event), zap.Error(err))
		return false
	}

	switch ev.Type {
	case domain.EventConnected:
		return false
	case domain.EventInitialOrders:
		c.replaceLocked(ev.Orders)
		return true
	case domain.EventStatusUpdate:
		if ev.Order == nil {
			return false
		}
		c.replaceLocked([]domain.Order{*ev.Order})
		return true
	case domain.EventNewOrder:
		if ev.Order != nil {
			c.bufferLocked(*ev.Order)
		}
		return false
	default:
		c.logger.Debug("ignoring event", zap.String("event", f.Event))
		return false
	}
}

func (c *Consumer) replaceLocked(orders []domain.Order) {
	for _, o := range orders {
		c.orders[o.ID] = o
	}
}

// bufferLocked holds a new order until the debounce window closes. Orders
// already known, or already buffered, are dropped.
func (c *Consumer) bufferLocked(o domain.Order) {
	if _, ok := c.orders[o.ID]; ok {
		return
	}
	if _, ok := c.pendingIDs[o.ID]; ok {
		return
	}
	c.pending = append(c.pending, o)
	c.pendingIDs[o.ID] = struct{}{}
	if c.debounce == nil {
		c.debounce = c.sched.AfterFunc(c.opts.Debounce, c.flush)
	}
}

func (c *Consumer) flush() {
	c.mu.Lock()
	c.debounce = nil
	if c.stopped {
		c.mu.Unlock()
		return
	}
	changed := false
	for _, o := range c.pending {
		if _, ok := c.orders[o.ID]; ok {
			continue
		}
		c.orders[o.ID] = o
		changed = true
	}
	c.pending = nil
	clear(c.pendingIDs)

	var on ordersNotice
	if changed {
		on = c.snapshotLocked()
	}
	c.mu.Unlock()
	c.notifyOrders(on)
}

func (c *Consumer) checkHealth() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.health = c.sched.AfterFunc(c.opts.HealthInterval, c.checkHealth)

	now := c.sched.Now()
	silence := now.Sub(c.lastMessage)
	start := silence >= c.opts.DeadAfter && c.state != StateDegraded
	var n stateNotice
	if start {
		n = c.setStateLocked(StateDegraded)
	}

	// A stream that stays open but says nothing is torn down so Run can
	// reconnect; a session younger than DeadAfter gets its own full window.
	var drop context.CancelFunc
	if c.streamCancel != nil && now.Sub(later(c.lastMessage, c.streamOpened)) >= c.opts.DeadAfter {
		drop = c.streamCancel
		c.streamCancel = nil
	}
	c.mu.Unlock()
	c.notifyState(n)

	if start {
		c.logger.Warn("push stream silent, polling", zap.Duration("silence", silence))
	}
	if drop != nil {
		c.logger.Warn("dropping silent push stream", zap.Duration("silence", silence))
		drop()
	}
	if start {
		c.pollOnce()
	}
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func (c *Consumer) pollOnce() {
	c.mu.Lock()
	if c.stopped || c.state != StateDegraded {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.poll = nil
	c.mu.Unlock()

	orders, err := c.fetcher.Fetch(ctx, c.opts.ShopID, c.opts.Token)

	c.mu.Lock()
	// Push came back while the request was in flight.
	if c.stopped || c.state != StateDegraded {
		c.mu.Unlock()
		return
	}
	if errors.Is(err, ErrDenied) {
		c.mu.Unlock()
		c.deny(err)
		return
	}
	c.poll = c.sched.AfterFunc(c.opts.PollInterval, c.pollOnce)

	var on ordersNotice
	if err == nil {
		c.replaceLocked(orders)
		on = c.snapshotLocked()
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("poll failed", zap.Error(err))
		return
	}
	c.notifyOrders(on)
}

func (c *Consumer) stopPollingLocked() {
	if c.poll != nil {
		c.poll.Stop()
		c.poll = nil
	}
}

func (c *Consumer) deny(err error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.denied = true
	cancel := c.cancel
	c.mu.Unlock()

	c.logger.Error("poll denied", zap.Error(err))
	if cancel != nil {
		cancel()
	}
}

func (c *Consumer) isDenied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.denied
}

func (c *Consumer) listLocked() []domain.Order {
	out := make([]domain.Order, 0, len(c.orders))
	for _, o := range c.orders {
		out = append(out, o.Clone())
	}
	domain.SortNewestFirst(out)
	return out
}

type ordersNotice struct {
	seq    uint64
	orders []domain.Order
}

type stateNotice struct {
	seq   uint64
	state State
}

func (c *Consumer) snapshotLocked() ordersNotice {
	c.seq++
	return ordersNotice{seq: c.seq, orders: c.listLocked()}
}

func (c *Consumer) setStateLocked(s State) stateNotice {
	if c.state == s {
		return stateNotice{}
	}
	c.state = s
	c.seq++
	return stateNotice{seq: c.seq, state: s}
}

func (c *Consumer) notifyOrders(n ordersNotice) {
	if n.seq == 0 || c.opts.OnUpdate == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if n.seq <= c.shownOrders {
		return
	}
	c.shownOrders = n.seq
	c.opts.OnUpdate(n.orders)
}

func (c *Consumer) notifyState(n stateNotice) {
	if n.seq == 0 {
		return
	}
	c.logger.Info("consumer state", zap.String("state", string(n.state)))
	if c.opts.OnState == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if n.seq <= c.shownState {
		return
	}
	c.shownState = n.seq
	c.opts.OnState(n.state)
}
