package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"
)

// schedulerHarness fakes the session snapshot feeding a scheduler and
// records reclamation calls.
type schedulerHarness struct {
	mu       sync.Mutex
	snap     LobbySnapshot
	activity map[int]time.Time
	reclaims chan int
}

func newSchedulerHarness() *schedulerHarness {
	return &schedulerHarness{
		activity: make(map[int]time.Time),
		reclaims: make(chan int, 8),
	}
}

func (h *schedulerHarness) setSnapshot(snap LobbySnapshot) {
	h.mu.Lock()
	h.snap = snap
	h.mu.Unlock()
}

func (h *schedulerHarness) snapshot(lobbyID int) LobbySnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap
}

func (h *schedulerHarness) lastActivity(lobbyID int) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.activity[lobbyID]
	return t, ok
}

func (h *schedulerHarness) reclaim(ctx context.Context, lobbyID int) {
	h.reclaims <- lobbyID
}

func (h *schedulerHarness) scheduler(idleDelay time.Duration) *Scheduler {
	return NewScheduler(idleDelay, h.snapshot, h.lastActivity, h.reclaim)
}

func waitFor(t *testing.T, ch chan int, want int, timeout time.Duration) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("reclaimed lobby %d, want %d", got, want)
		}
	case <-time.After(timeout):
		t.Fatalf("no reclamation within %v", timeout)
	}
}

func assertNoReclaim(t *testing.T, ch chan int, within time.Duration) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected reclamation of lobby %d", got)
	case <-time.After(within):
	}
}

func TestScheduler_ArmWithActiveSessionCancelsInstead(t *testing.T) {
	h := newSchedulerHarness()
	s := h.scheduler(time.Hour)
	defer s.Shutdown()

	h.setSnapshot(LobbySnapshot{})
	h.activity[42] = time.Now().UTC()
	s.Arm(42)
	if !s.Armed(42) {
		t.Fatal("timer not armed for empty lobby")
	}

	h.setSnapshot(LobbySnapshot{Active: 1})
	s.Arm(42)
	if s.Armed(42) {
		t.Error("timer still armed with an Active session present")
	}
	assertNoReclaim(t, h.reclaims, 50*time.Millisecond)
}

func TestScheduler_FiresAfterIdleDelay(t *testing.T) {
	h := newSchedulerHarness()
	s := h.scheduler(20 * time.Millisecond)
	defer s.Shutdown()

	h.setSnapshot(LobbySnapshot{})
	h.activity[42] = time.Now().UTC()
	s.Arm(42)

	waitFor(t, h.reclaims, 42, time.Second)
	if s.Armed(42) {
		t.Error("timer handle retained after fire")
	}
}

func TestScheduler_FiresAtLatestGraceDeadline(t *testing.T) {
	h := newSchedulerHarness()
	s := h.scheduler(time.Hour)
	defer s.Shutdown()

	deadline := time.Now().UTC().Add(30 * time.Millisecond)
	h.setSnapshot(LobbySnapshot{Grace: 1, LatestGraceDeadline: deadline})
	s.Arm(42)

	// At fire time the grace session has lapsed from the snapshot.
	time.AfterFunc(25*time.Millisecond, func() { h.setSnapshot(LobbySnapshot{}) })

	waitFor(t, h.reclaims, 42, time.Second)
}

func TestScheduler_CancelPreventsFire(t *testing.T) {
	h := newSchedulerHarness()
	s := h.scheduler(20 * time.Millisecond)
	defer s.Shutdown()

	h.setSnapshot(LobbySnapshot{})
	h.activity[42] = time.Now().UTC()
	s.Arm(42)
	s.Cancel(42)

	if s.Armed(42) {
		t.Error("timer still armed after cancel")
	}
	assertNoReclaim(t, h.reclaims, 80*time.Millisecond)
}

func TestScheduler_RearmReplacesTimer(t *testing.T) {
	h := newSchedulerHarness()
	s := h.scheduler(30 * time.Millisecond)
	defer s.Shutdown()

	h.setSnapshot(LobbySnapshot{})
	h.activity[42] = time.Now().UTC()
	s.Arm(42)
	s.Arm(42)
	s.Arm(42)

	// Exactly one fire despite three arms.
	waitFor(t, h.reclaims, 42, time.Second)
	assertNoReclaim(t, h.reclaims, 80*time.Millisecond)
}

func TestScheduler_FireTimeRecheckAborts(t *testing.T) {
	h := newSchedulerHarness()
	s := h.scheduler(20 * time.Millisecond)
	defer s.Shutdown()

	h.setSnapshot(LobbySnapshot{})
	h.activity[42] = time.Now().UTC()
	s.Arm(42)

	// A session reattaches between arming and firing.
	h.setSnapshot(LobbySnapshot{Active: 1})

	assertNoReclaim(t, h.reclaims, 100*time.Millisecond)
	if s.Armed(42) {
		t.Error("timer handle retained after aborted fire")
	}
}

func TestScheduler_ShutdownCancelsAllTimers(t *testing.T) {
	h := newSchedulerHarness()
	s := h.scheduler(20 * time.Millisecond)

	h.setSnapshot(LobbySnapshot{})
	now := time.Now().UTC()
	for lobby := 1; lobby <= 5; lobby++ {
		h.activity[lobby] = now
		s.Arm(lobby)
	}

	s.Shutdown()
	assertNoReclaim(t, h.reclaims, 80*time.Millisecond)
	for lobby := 1; lobby <= 5; lobby++ {
		if s.Armed(lobby) {
			t.Errorf("lobby %d timer survived shutdown", lobby)
		}
	}
}
