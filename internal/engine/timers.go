package engine

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type timerKey struct {
	instanceID string
	taskID     int64
}

// timerService tracks pending durable timers for the running process.
// Timers live in memory only; the durable record is the timer-created
// history event, from which Rehydrate rebuilds them after a restart.
type timerService struct {
	clk  clock.Clock
	fire func(instanceID string, taskID int64, fireAt time.Time)

	mu     sync.Mutex
	timers map[timerKey]*clock.Timer
}

func newTimerService(clk clock.Clock, fire func(instanceID string, taskID int64, fireAt time.Time)) *timerService {
	return &timerService{
		clk:    clk,
		fire:   fire,
		timers: make(map[timerKey]*clock.Timer),
	}
}

// Create arms a timer for the given instance task. A duplicate Create for
// a key already armed is ignored.
func (s *timerService) Create(instanceID string, taskID int64, fireAt time.Time) {
	key := timerKey{instanceID, taskID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[key]; ok {
		return
	}

	d := fireAt.Sub(s.clk.Now())
	if d < 0 {
		d = 0
	}
	s.timers[key] = s.clk.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		s.fire(instanceID, taskID, fireAt)
	})
}

// Cancel disarms a pending timer. Canceling a timer that already fired or
// was never armed is a no-op.
func (s *timerService) Cancel(instanceID string, taskID int64) {
	key := timerKey{instanceID, taskID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// StopAll disarms every pending timer for an instance.
func (s *timerService) StopAll(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		if key.instanceID == instanceID {
			t.Stop()
			delete(s.timers, key)
		}
	}
}
