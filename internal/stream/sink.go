package stream

import (
	"errors"
	"sync"

	"github.com/TemirB/orderfeed/internal/domain"
)

var (
	ErrSinkClosed   = errors.New("stream sink is closed")
	ErrSlowConsumer = errors.New("stream queue is full")
)

// sink is the registry-facing side of one SSE connection. Send only
// enqueues; the handler goroutine is the sole writer to the response.
type sink struct {
	queue chan domain.Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newSink(size int) *sink {
	if size < 1 {
		size = 1
	}
	return &sink{
		queue: make(chan domain.Event, size),
		done:  make(chan struct{}),
	}
}

func (s *sink) Send(ev domain.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- ev:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (s *sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

func (s *sink) Done() <-chan struct{} { return s.done }
