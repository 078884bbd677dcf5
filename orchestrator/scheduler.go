package orchestrator

import (
	"context"
	"sync"
	"time"

	"agones-session-orchestrator/metrics"

	"github.com/rs/zerolog/log"
)

type pendingTimer struct {
	cancel context.CancelFunc
}

// Scheduler owns at most one cancellable deallocation timer per lobby.
// Timer goroutines descend from the scheduler's root context and are
// tracked so Shutdown can cancel them all and wait.
type Scheduler struct {
	mu     sync.Mutex
	timers map[int]*pendingTimer

	root context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	snapshot     func(lobbyID int) LobbySnapshot
	lastActivity func(lobbyID int) (time.Time, bool)
	reclaim      func(ctx context.Context, lobbyID int)

	idleDelay time.Duration
	now       func() time.Time
}

func NewScheduler(idleDelay time.Duration, snapshot func(int) LobbySnapshot, lastActivity func(int) (time.Time, bool), reclaim func(context.Context, int)) *Scheduler {
	root, stop := context.WithCancel(context.Background())
	return &Scheduler{
		timers:       make(map[int]*pendingTimer),
		root:         root,
		stop:         stop,
		snapshot:     snapshot,
		lastActivity: lastActivity,
		reclaim:      reclaim,
		idleDelay:    idleDelay,
		now:          time.Now,
	}
}

// Arm evaluates the lobby's session snapshot and installs a timer when
// no Active session remains. Arming always cancels any existing timer
// first, so at most one is pending per lobby. With an Active session
// present the pending timer (if any) is cancelled instead.
func (s *Scheduler) Arm(lobbyID int) {
	snap := s.snapshot(lobbyID)
	if snap.Active > 0 {
		s.Cancel(lobbyID)
		return
	}

	now := s.now().UTC()
	var fireAt time.Time
	if snap.Grace > 0 {
		fireAt = snap.LatestGraceDeadline
	} else {
		last, ok := s.lastActivity(lobbyID)
		if !ok {
			last = now
		}
		fireAt = last.Add(s.idleDelay)
	}
	delay := fireAt.Sub(now)
	if delay < 0 {
		delay = 0
	}

	ctx, cancel := context.WithCancel(s.root)
	p := &pendingTimer{cancel: cancel}

	s.mu.Lock()
	if prev, ok := s.timers[lobbyID]; ok {
		prev.cancel()
	} else {
		metrics.DeallocTimersArmed.Inc()
	}
	s.timers[lobbyID] = p
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, lobbyID, p, delay)
	log.Info().Int("lobbyId", lobbyID).Dur("delay", delay).Msg("scheduler: dealloc timer armed")
}

func (s *Scheduler) run(ctx context.Context, lobbyID int, p *pendingTimer, delay time.Duration) {
	defer s.wg.Done()
	defer s.clear(lobbyID, p)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		// Cancellation is a normal outcome.
		return
	case <-timer.C:
	}

	// Re-validate at fire time: a session may have attached between
	// arming and firing, and a cancel may have raced the timer.
	snap := s.snapshot(lobbyID)
	if ctx.Err() != nil {
		return
	}
	if snap.Active > 0 || snap.Grace > 0 {
		log.Info().Int("lobbyId", lobbyID).Int("active", snap.Active).Int("grace", snap.Grace).Msg("scheduler: dealloc aborted, lobby became attended")
		return
	}
	s.reclaim(ctx, lobbyID)
}

// clear drops the lobby's timer handle if it is still ours.
func (s *Scheduler) clear(lobbyID int, p *pendingTimer) {
	s.mu.Lock()
	if cur, ok := s.timers[lobbyID]; ok && cur == p {
		delete(s.timers, lobbyID)
		metrics.DeallocTimersArmed.Dec()
	}
	s.mu.Unlock()
}

// Cancel removes any pending timer for the lobby. Called on every path
// that renews lobby activity.
func (s *Scheduler) Cancel(lobbyID int) {
	s.mu.Lock()
	p, ok := s.timers[lobbyID]
	if ok {
		delete(s.timers, lobbyID)
		metrics.DeallocTimersArmed.Dec()
	}
	s.mu.Unlock()

	if ok {
		p.cancel()
		log.Info().Int("lobbyId", lobbyID).Msg("scheduler: dealloc timer cancelled")
	}
}

// Armed reports whether the lobby currently has a pending timer.
func (s *Scheduler) Armed(lobbyID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[lobbyID]
	return ok
}

// Shutdown cancels every outstanding timer and waits for the timer
// goroutines to exit. No reclamation is attempted for cancelled timers.
func (s *Scheduler) Shutdown() {
	s.stop()
	s.wg.Wait()

	s.mu.Lock()
	for lobbyID := range s.timers {
		delete(s.timers, lobbyID)
		metrics.DeallocTimersArmed.Dec()
	}
	s.mu.Unlock()
}
