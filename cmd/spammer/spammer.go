package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TemirB/orderfeed/internal/domain"
	"github.com/TemirB/orderfeed/internal/pkg/pool"
)

// Sender delivers one fake order to the server.
type Sender interface {
	Send(ctx context.Context, in domain.IncomingOrder) error
	Close() error
}

type kafkaSender struct {
	writer *kafka.Writer
}

func newKafkaSender(brokers []string, topic string) *kafkaSender {
	return &kafkaSender{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}}
}

func (s *kafkaSender) Send(ctx context.Context, in domain.IncomingOrder) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(in.ShopName),
		Value: data,
		Time:  time.Now(),
	})
}

func (s *kafkaSender) Close() error { return s.writer.Close() }

type httpSender struct {
	url    string
	secret string
	client *http.Client
}

func newHTTPSender(server, secret string) *httpSender {
	return &httpSender{
		url:    strings.TrimRight(server, "/") + "/api/orders",
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *httpSender) Send(ctx context.Context, in domain.IncomingOrder) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.secret)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// 202 means the server queued it for a later retry; still accepted.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("ingest: status %d", resp.StatusCode)
	}
	return nil
}

func (s *httpSender) Close() error { return nil }

type Spammer struct {
	sender    Sender
	shops     []string
	workers   int
	logger    *zap.Logger
	isRunning atomic.Bool
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	totalSent atomic.Int64
	failed    atomic.Int64
	seq       atomic.Int64
	base      int64
	startedAt time.Time
}

type SpamRequest struct {
	Rate     int    `json:"rate"`
	Duration string `json:"duration"`
}

type SpamStats struct {
	IsRunning bool  `json:"is_running"`
	TotalSent int64 `json:"total_sent"`
	Failed    int64 `json:"failed"`
	Rate      int64 `json:"rate"`
}

func NewSpammer(sender Sender, shops []string, workers int, logger *zap.Logger) *Spammer {
	ctx, cancel := context.WithCancel(context.Background())
	if len(shops) == 0 {
		shops = []string{"Central Butcher"}
	}
	return &Spammer{
		sender:    sender,
		shops:     shops,
		workers:   max(workers, 1),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		base:      time.Now().UnixMilli(),
		startedAt: time.Now(),
	}
}

// StartSpam sends rate orders per second for duration on a worker pool.
// It does nothing while a run is in progress.
func (s *Spammer) StartSpam(rate int, duration time.Duration) {
	if rate <= 0 || !s.isRunning.CompareAndSwap(false, true) {
		return
	}
	s.totalSent.Store(0)
	s.failed.Store(0)
	s.startedAt = time.Now()

	s.logger.Info("starting spam", zap.Int("rate", rate), zap.Duration("duration", duration))

	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.isRunning.Store(false)

		workers := pool.New(s.workers)
		defer func() {
			workers.Close()
			workers.Wait()
		}()

		ticker := time.NewTicker(time.Second / time.Duration(rate))
		defer ticker.Stop()

		timer := time.NewTimer(duration)
		defer timer.Stop()

		for {
			select {
			case <-ticker.C:
				in := s.generateFakeOrder()
				workers.Submit(func() {
					if err := s.sender.Send(ctx, in); err != nil {
						s.failed.Add(1)
						s.logger.Warn("send failed", zap.String("order_number", in.OrderNumber), zap.Error(err))
						return
					}
					s.totalSent.Add(1)
				})

			case <-timer.C:
				s.logger.Info("spam completed", zap.Int64("total_sent", s.totalSent.Load()))
				return

			case <-ctx.Done():
				s.logger.Info("spam stopped", zap.Int64("total_sent", s.totalSent.Load()))
				return
			}
		}
	}()
}

func (s *Spammer) StopSpam() {
	if s.isRunning.Load() {
		s.cancel()
		s.wg.Wait()

		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
}

func (s *Spammer) GetStats() SpamStats {
	st := SpamStats{
		IsRunning: s.isRunning.Load(),
		TotalSent: s.totalSent.Load(),
		Failed:    s.failed.Load(),
	}
	if secs := int64(time.Since(s.startedAt).Seconds()); secs > 0 {
		st.Rate = st.TotalSent / secs
	}
	return st
}

func (s *Spammer) Close() error {
	s.StopSpam()
	return s.sender.Close()
}

var products = []struct {
	name string
	unit string
	cut  string
}{
	{"Beef ribeye", "kg", "steak"},
	{"Pork shoulder", "kg", "diced"},
	{"Chicken thighs", "kg", ""},
	{"Lamb chops", "pcs", "french"},
	{"Sausages", "pcs", ""},
}

func (s *Spammer) generateFakeOrder() domain.IncomingOrder {
	n := s.seq.Add(1)
	now := time.Now()

	items := make([]domain.IncomingItem, 1+rand.Intn(3))
	gross := 0.0
	for i := range items {
		p := products[rand.Intn(len(products))]
		qty := float64(1 + rand.Intn(5))
		if p.unit == "kg" {
			qty = float64(rand.Intn(2000)+250) / 1000
		}
		items[i] = domain.IncomingItem{
			Product: p.name,
			Qty:     domain.Quantity(qty),
			Unit:    p.unit,
			Cut:     p.cut,
		}
		gross += qty * float64(5+rand.Intn(20))
	}

	return domain.IncomingOrder{
		OrderNumber: fmt.Sprintf("%d", s.base+n),
		ShopName:    s.shops[rand.Intn(len(s.shops))],
		Timestamp:   &now,
		Items:       items,
		Revenue:     &domain.Revenue{Gross: gross, Net: gross * 0.8},
	}
}
