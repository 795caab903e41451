package fetcher

import "sync/atomic"

// Counters receives one increment per request attempt outcome.
type Counters interface {
	IncSuccess()
	IncFailure()
	IncTimeout()
}

// RequestSnapshot is a point-in-time copy of RequestStats.
type RequestSnapshot struct {
	Success uint64 `json:"success"`
	Failure uint64 `json:"failure"`
	Timeout uint64 `json:"timeout"`
}

// RequestStats is a thread-safe Counters implementation.
type RequestStats struct {
	success atomic.Uint64
	failure atomic.Uint64
	timeout atomic.Uint64
}

// NewRequestStats returns zeroed counters.
func NewRequestStats() *RequestStats {
	return &RequestStats{}
}

func (s *RequestStats) IncSuccess() { s.success.Add(1) }
func (s *RequestStats) IncFailure() { s.failure.Add(1) }
func (s *RequestStats) IncTimeout() { s.timeout.Add(1) }

// Snapshot returns the current counter values.
func (s *RequestStats) Snapshot() RequestSnapshot {
	return RequestSnapshot{
		Success: s.success.Load(),
		Failure: s.failure.Load(),
		Timeout: s.timeout.Load(),
	}
}

type nopCounters struct{}

func (nopCounters) IncSuccess() {}
func (nopCounters) IncFailure() {}
func (nopCounters) IncTimeout() {}
