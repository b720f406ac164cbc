package rounds

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firing struct {
	roomID string
	gen    uint64
}

type recordingHandler struct {
	mu       sync.Mutex
	expires  []firing
	restarts []firing
	fired    chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{fired: make(chan struct{}, 16)}
}

func (h *recordingHandler) HandleRoundExpire(ctx context.Context, roomID string, gen uint64) error {
	h.mu.Lock()
	h.expires = append(h.expires, firing{roomID: roomID, gen: gen})
	h.mu.Unlock()
	h.fired <- struct{}{}
	return nil
}

func (h *recordingHandler) HandleRestart(ctx context.Context, roomID string, gen uint64) error {
	h.mu.Lock()
	h.restarts = append(h.restarts, firing{roomID: roomID, gen: gen})
	h.mu.Unlock()
	h.fired <- struct{}{}
	return nil
}

func (h *recordingHandler) snapshot() ([]firing, []firing) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]firing(nil), h.expires...), append([]firing(nil), h.restarts...)
}

func waitFired(t *testing.T, h *recordingHandler) {
	t.Helper()
	select {
	case <-h.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for timer to fire")
	}
}

func TestSchedulerFiresOnce(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	h := newRecordingHandler()
	s := NewScheduler(clock)
	s.OnExpire(h)
	defer s.Close()

	require.NoError(t, s.ArmRoundEnd("r1", 1, time.Minute))
	clock.Advance(time.Minute)
	waitFired(t, h)

	expires, restarts := h.snapshot()
	assert.Equal(t, []firing{{roomID: "r1", gen: 1}}, expires)
	assert.Empty(t, restarts)

	// Nothing further fires once the one-shot is spent.
	clock.Advance(time.Hour)
	time.Sleep(50 * time.Millisecond)
	expires, _ = h.snapshot()
	assert.Len(t, expires, 1)
}

func TestSchedulerRearmReplacesPriorSchedule(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	h := newRecordingHandler()
	s := NewScheduler(clock)
	s.OnExpire(h)
	defer s.Close()

	require.NoError(t, s.ArmRoundEnd("r1", 1, time.Minute))
	require.NoError(t, s.ArmRoundEnd("r1", 2, 2*time.Minute))

	clock.Advance(time.Minute)
	time.Sleep(50 * time.Millisecond)
	expires, _ := h.snapshot()
	assert.Empty(t, expires, "replaced schedule must not fire")

	clock.Advance(time.Minute)
	waitFired(t, h)
	expires, _ = h.snapshot()
	assert.Equal(t, []firing{{roomID: "r1", gen: 2}}, expires)
}

func TestSchedulerRoundEndAndRestartAreIndependent(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	h := newRecordingHandler()
	s := NewScheduler(clock)
	s.OnExpire(h)
	defer s.Close()

	require.NoError(t, s.ArmRoundEnd("r1", 1, time.Minute))
	require.NoError(t, s.ArmRestart("r1", 1, 5*time.Second))

	clock.Advance(5 * time.Second)
	waitFired(t, h)
	clock.Advance(55 * time.Second)
	waitFired(t, h)

	expires, restarts := h.snapshot()
	assert.Equal(t, []firing{{roomID: "r1", gen: 1}}, expires)
	assert.Equal(t, []firing{{roomID: "r1", gen: 1}}, restarts)
}

func TestSchedulerCancelDropsBothTimers(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	h := newRecordingHandler()
	s := NewScheduler(clock)
	s.OnExpire(h)
	defer s.Close()

	require.NoError(t, s.ArmRoundEnd("r1", 1, time.Minute))
	require.NoError(t, s.ArmRestart("r1", 1, time.Minute))
	require.NoError(t, s.ArmRoundEnd("r2", 7, time.Minute))
	s.Cancel("r1")

	clock.Advance(time.Minute)
	waitFired(t, h)
	time.Sleep(50 * time.Millisecond)

	expires, restarts := h.snapshot()
	assert.Equal(t, []firing{{roomID: "r2", gen: 7}}, expires)
	assert.Empty(t, restarts)
}

func TestSchedulerCancelReleasesWatcherGoroutines(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := newRecordingHandler()
	s := NewScheduler(clock)
	s.OnExpire(h)
	defer s.Close()

	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		require.NoError(t, s.ArmRoundEnd("r1", uint64(i), time.Minute))
		require.NoError(t, s.ArmRoundEnd("r1", uint64(i), 2*time.Minute))
		require.NoError(t, s.ArmRestart("r1", uint64(i), time.Minute))
		s.Cancel("r1")
	}

	// Cancelled and replaced schedules must not park their watchers until
	// Close; the goroutine count settles back near the baseline.
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 10*time.Millisecond)

	clock.Advance(time.Hour)
	time.Sleep(50 * time.Millisecond)
	expires, restarts := h.snapshot()
	assert.Empty(t, expires)
	assert.Empty(t, restarts)
}

func TestSchedulerRoomsDoNotInterfere(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	h := newRecordingHandler()
	s := NewScheduler(clock)
	s.OnExpire(h)
	defer s.Close()

	require.NoError(t, s.ArmRoundEnd("r1", 1, time.Minute))
	require.NoError(t, s.ArmRoundEnd("r2", 3, time.Minute))

	clock.Advance(time.Minute)
	waitFired(t, h)
	waitFired(t, h)

	expires, _ := h.snapshot()
	assert.ElementsMatch(t, []firing{{roomID: "r1", gen: 1}, {roomID: "r2", gen: 3}}, expires)
}
