package observability

// Outcome labels shared by ingestion and the retry queue.
const (
	OutcomeDelivered = "delivered"
	OutcomeQueued    = "queued"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeEnqueued  = "enqueued"
	OutcomeRetried   = "retried"
)

type Metrics interface {
	ObserveIngest(outcome string, cacheMs float64)
	ObserveHTTP(method, route string, status int, durMs float64)
	ObserveKafka(processMs float64, ok bool)
	ObserveFanout(delivered, evicted int)
	SetConnections(shopID string, n int)
	ObserveRetryQueue(outcome string)
}

type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) ObserveIngest(string, float64)            {}
func (Noop) ObserveHTTP(string, string, int, float64) {}
func (Noop) ObserveKafka(float64, bool)               {}
func (Noop) ObserveFanout(int, int)                   {}
func (Noop) SetConnections(string, int)               {}
func (Noop) ObserveRetryQueue(string)                 {}
