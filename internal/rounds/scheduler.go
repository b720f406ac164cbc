package rounds

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ExpiryHandler receives round-timer notifications. Delivery is
// at-least-once; handlers verify the generation still refers to the live
// round before acting.
type ExpiryHandler interface {
	HandleRoundExpire(ctx context.Context, roomID string, gen uint64) error
	HandleRestart(ctx context.Context, roomID string, gen uint64) error
}

type timerKind int

const (
	kindRoundEnd timerKind = iota
	kindRestart
)

type timerKey struct {
	roomID string
	kind   timerKind
}

// Scheduler runs one-shot timers in process on a clockwork clock, so tests
// drive it with a fake clock. Arming a key that already has a live timer
// replaces it; Cancel drops both of a room's timers.
type Scheduler struct {
	clock   clockwork.Clock
	handler ExpiryHandler

	mu     sync.Mutex
	timers map[timerKey]*armedTimer

	done     chan struct{}
	stopOnce sync.Once
}

// armedTimer pairs a timer with the channel that releases its watcher
// goroutine when the schedule is cancelled or replaced before firing.
type armedTimer struct {
	timer  clockwork.Timer
	cancel chan struct{}
}

func NewScheduler(clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		clock:  clock,
		timers: make(map[timerKey]*armedTimer),
		done:   make(chan struct{}),
	}
}

// OnExpire registers the handler. Must be called before any Arm.
func (s *Scheduler) OnExpire(h ExpiryHandler) {
	s.handler = h
}

func (s *Scheduler) ArmRoundEnd(roomID string, gen uint64, d time.Duration) error {
	s.arm(timerKey{roomID: roomID, kind: kindRoundEnd}, gen, d)
	return nil
}

func (s *Scheduler) ArmRestart(roomID string, gen uint64, d time.Duration) error {
	s.arm(timerKey{roomID: roomID, kind: kindRestart}, gen, d)
	return nil
}

// Cancel stops both of a room's timers, if armed.
func (s *Scheduler) Cancel(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kind := range []timerKind{kindRoundEnd, kindRestart} {
		key := timerKey{roomID: roomID, kind: kind}
		if at, ok := s.timers[key]; ok {
			stopAndDrainTimer(at.timer)
			close(at.cancel)
			delete(s.timers, key)
		}
	}
}

// Close stops every pending timer goroutine.
func (s *Scheduler) Close() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Scheduler) arm(key timerKey, gen uint64, d time.Duration) {
	at := &armedTimer{
		timer:  s.clock.NewTimer(d),
		cancel: make(chan struct{}),
	}
	s.replaceTimer(key, at)

	go func() {
		select {
		case <-at.timer.Chan():
			s.removeTimer(key, at)
			s.fire(key, gen)
		case <-at.cancel:
		case <-s.done:
			stopAndDrainTimer(at.timer)
			s.removeTimer(key, at)
		}
	}()
}

func (s *Scheduler) fire(key timerKey, gen uint64) {
	ctx := context.Background()
	var err error
	switch key.kind {
	case kindRoundEnd:
		err = s.handler.HandleRoundExpire(ctx, key.roomID, gen)
	case kindRestart:
		err = s.handler.HandleRestart(ctx, key.roomID, gen)
	}
	if err != nil {
		log.Error().Err(err).Str("room_id", key.roomID).Uint64("gen", gen).
			Msg("round timer handler failed")
	}
}

// replaceTimer atomically swaps in a new timer for a key, stopping any
// prior one and releasing its watcher so a replaced schedule cannot fire
// and does not strand a goroutine.
func (s *Scheduler) replaceTimer(key timerKey, at *armedTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.timers[key]; ok {
		stopAndDrainTimer(existing.timer)
		close(existing.cancel)
	}
	s.timers[key] = at
}

// removeTimer drops a timer only if it is still the registered one; a
// timer that was replaced while firing must not evict its successor.
func (s *Scheduler) removeTimer(key timerKey, at *armedTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.timers[key]; ok && current == at {
		delete(s.timers, key)
	}
}

// stopAndDrainTimer stops a timer and drains its channel so the goroutine
// selecting on it does not observe a spurious fire.
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
