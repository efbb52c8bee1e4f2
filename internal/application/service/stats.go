package service

import "time"

type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeQueued    Outcome = "queued"
)

type IngestResult struct {
	OrderID   string
	Outcome   Outcome
	Created   bool
	Listeners int
	Warning   string
	CacheMs   float64
}

func convertToMs(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
