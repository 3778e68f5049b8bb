package monitoring

import (
	"sync"
	"time"

	nuts "github.com/vaudience/go-nuts"
)

// Service records operational events: decision cycles, approvals, session
// lifecycle. Counters are in-process; an external metrics backend can be
// attached later without touching call sites.
type Service struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewService creates a new monitoring service
func NewService() *Service {
	return &Service{
		counters: make(map[string]int64),
	}
}

// RecordEvent records a monitored event with labels
func (s *Service) RecordEvent(eventName string, labels map[string]string) {
	s.mu.Lock()
	s.counters[eventName]++
	s.mu.Unlock()

	nuts.L.Debugf("[Monitoring] Event %s recorded at %v with labels: %v", eventName, time.Now(), labels)
}

// Counter returns the number of times eventName was recorded.
func (s *Service) Counter(eventName string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[eventName]
}
