package fetch

import "sync"

// Snapshot is an immutable view of the middleware counters.
type Snapshot struct {
	TotalRequests         int64  `json:"total_requests"`
	SuccessfulRequests    int64  `json:"successful_requests"`
	FailedRequests        int64  `json:"failed_requests"`
	RetriedRequests       int64  `json:"retried_requests"`
	CircuitOpenRejections int64  `json:"circuit_open_rejections"`
	BreakerState          string `json:"breaker_state"`
	InFlight              int    `json:"in_flight"`
}

// stats owns the shared counters; all mutation goes through its mutex.
type stats struct {
	mu          sync.Mutex
	total       int64
	succeeded   int64
	failed      int64
	retried     int64
	circuitOpen int64
}

func (s *stats) incTotal() {
	s.mu.Lock()
	s.total++
	s.mu.Unlock()
}

func (s *stats) incSucceeded() {
	s.mu.Lock()
	s.succeeded++
	s.mu.Unlock()
}

func (s *stats) incFailed() {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}

func (s *stats) incRetried() {
	s.mu.Lock()
	s.retried++
	s.mu.Unlock()
}

func (s *stats) incCircuitOpen() {
	s.mu.Lock()
	s.circuitOpen++
	s.mu.Unlock()
}

func (s *stats) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		TotalRequests:         s.total,
		SuccessfulRequests:    s.succeeded,
		FailedRequests:        s.failed,
		RetriedRequests:       s.retried,
		CircuitOpenRejections: s.circuitOpen,
	}
}
