package codexlink

import (
	"sync"
	"time"
)

// Timer keys used by the client.
const (
	timerReconnect = "reconnect"
	timerRetry     = "retry:" // + request id
)

// scheduler owns the client's pending timers, keyed so teardown can
// cancel every outstanding one deterministically. Scheduling a key that
// is already armed replaces the earlier timer.
type scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newScheduler() *scheduler {
	return &scheduler{timers: make(map[string]*time.Timer)}
}

// Schedule arms fn to run after d. fn runs on its own goroutine. A fn
// whose key was cancelled or replaced before it got to run is skipped.
func (s *scheduler) Schedule(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		cur, ok := s.timers[key]
		if !ok || cur != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = t
}

// Cancel stops the timer with the given key, if armed.
func (s *scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// CancelAll stops every armed timer.
func (s *scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
