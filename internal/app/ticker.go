package app

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// tickFunc runs one countdown step for a room and reports whether the chain
// should continue.
type tickFunc func(ctx context.Context, roomID string) bool

// TickScheduler drives per-room countdowns with self-rescheduling one-shot
// timers. At most one timer exists per room; scheduling a room again replaces
// and stops the previous chain.
type TickScheduler struct {
	clock    clockwork.Clock
	interval time.Duration
	tick     tickFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	timers map[string]*roomTimer
}

type roomTimer struct {
	timer clockwork.Timer
	stop  chan struct{}
}

func newTickScheduler(clock clockwork.Clock, interval time.Duration, tick tickFunc) *TickScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &TickScheduler{
		clock:    clock,
		interval: interval,
		tick:     tick,
		ctx:      ctx,
		cancel:   cancel,
		timers:   make(map[string]*roomTimer),
	}
}

// Schedule arms the next tick for a room, replacing any pending one.
func (s *TickScheduler) Schedule(roomID string) {
	rt := &roomTimer{
		timer: s.clock.NewTimer(s.interval),
		stop:  make(chan struct{}),
	}
	s.replace(roomID, rt)
	go s.wait(roomID, rt)
}

func (s *TickScheduler) wait(roomID string, rt *roomTimer) {
	select {
	case <-rt.timer.Chan():
		s.remove(roomID, rt)
		if s.tick(s.ctx, roomID) {
			s.Schedule(roomID)
		}
	case <-rt.stop:
		stopAndDrainTimer(rt.timer)
	case <-s.ctx.Done():
		stopAndDrainTimer(rt.timer)
		s.remove(roomID, rt)
	}
}

// Cancel stops the pending tick chain for a room, if any.
func (s *TickScheduler) Cancel(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.timers[roomID]; ok {
		close(rt.stop)
		delete(s.timers, roomID)
		log.Debug().Str("room_id", roomID).Msg("cancelled pending tick")
	}
}

// Active reports whether a tick is currently pending for the room.
func (s *TickScheduler) Active(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[roomID]
	return ok
}

// Stop cancels every pending chain. Used on shutdown.
func (s *TickScheduler) Stop() {
	s.cancel()
}

func (s *TickScheduler) replace(roomID string, rt *roomTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.timers[roomID]; ok {
		close(old.stop)
	}
	s.timers[roomID] = rt
}

// remove clears the registry entry after a fire, unless the entry has already
// been replaced by a newer chain.
func (s *TickScheduler) remove(roomID string, rt *roomTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.timers[roomID]; ok && current == rt {
		delete(s.timers, roomID)
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired,
// per the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
