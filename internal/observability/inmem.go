package observability

import "sync"

type observe struct {
	Kind    string
	Label   string
	Status  int
	Dur     float64
	Count   int
	Evicted int
	OK      bool
}

// Inmem keeps the last max observations plus a few running totals.
// Used in development and tests.
type Inmem struct {
	mu     sync.Mutex
	last   []*observe
	max    int
	totals struct {
		ingest      map[string]int
		retryQueue  map[string]int
		connections map[string]int
	}
}

func NewInmem(max int) *Inmem {
	return &Inmem{
		max: max,
	}
}

func (m *Inmem) push(v *observe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = append(m.last, v)
	if len(m.last) > m.max {
		m.last = m.last[len(m.last)-m.max:]
	}
}

func (m *Inmem) inc(dst *map[string]int, key string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if *dst == nil {
		*dst = make(map[string]int)
	}
	(*dst)[key] += delta
}

func (m *Inmem) ObserveIngest(outcome string, cacheMs float64) {
	m.push(&observe{Kind: "ingest", Label: outcome, Dur: cacheMs})
	m.inc(&m.totals.ingest, outcome, 1)
}

func (m *Inmem) ObserveHTTP(method, route string, status int, durMs float64) {
	m.push(&observe{Kind: "http", Label: method + " " + route, Status: status, Dur: durMs})
}

func (m *Inmem) ObserveKafka(processMs float64, ok bool) {
	m.push(&observe{Kind: "kafka", Dur: processMs, OK: ok})
}

func (m *Inmem) ObserveFanout(delivered, evicted int) {
	m.push(&observe{Kind: "fanout", Count: delivered, Evicted: evicted})
}

func (m *Inmem) SetConnections(shopID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.totals.connections == nil {
		m.totals.connections = make(map[string]int)
	}
	m.totals.connections[shopID] = n
}

func (m *Inmem) ObserveRetryQueue(outcome string) {
	m.inc(&m.totals.retryQueue, outcome, 1)
}

// Ingested returns how many ingestions ended with outcome.
func (m *Inmem) Ingested(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals.ingest[outcome]
}

func (m *Inmem) RetryQueue(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals.retryQueue[outcome]
}

func (m *Inmem) Connections(shopID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals.connections[shopID]
}
