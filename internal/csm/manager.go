package csm

import (
	"log"
	"sync"
	"time"

	"github.com/callrelay/csm/internal/clock"
)

const (
	noAnswerTimeout  = 60 * time.Second
	offerStallWindow = 10 * time.Second
	candidateTTL     = 60 * time.Second
	sweepInterval    = 5 * time.Second
)

// Manager is the Call Session Manager: single writer lock over the five
// state tables (User Directory, Presence Table, Pending Signal Queue, Call
// Registry, and the Call State Machine's timers), plus the Signal Router and
// Sweeper that read and mutate them. All exported methods take the lock for
// their whole body; none of them block on a remote peer, since Channel.Send
// is required to be non-blocking from the caller's perspective.
type Manager struct {
	mu sync.Mutex

	clock  clock.Clock
	logger *log.Logger

	// User Directory: user id -> channel, plus reverse bookkeeping from
	// channel id -> user id (so a channel close can find its user without a
	// linear scan).
	directory    map[UserID]Channel
	reverseIndex map[string]UserID

	presence map[UserID]*Presence

	pending map[UserID][]pendingSignal

	calls map[CallID]*Call

	sweepTimer clock.Timer
	closed     bool
}

type pendingSignal struct {
	Event   string
	Payload map[string]any
}

// New builds a Manager and arms the sweeper on the given clock. Callers
// running a real process should pass clock.System{}; tests pass a
// *clock.Fake so timers can be driven deterministically.
func New(c clock.Clock, logger *log.Logger) *Manager {
	m := &Manager{
		clock:        c,
		logger:       logger,
		directory:    make(map[UserID]Channel),
		reverseIndex: make(map[string]UserID),
		presence:     make(map[UserID]*Presence),
		pending:      make(map[UserID][]pendingSignal),
		calls:        make(map[CallID]*Call),
	}
	m.armSweep()
	return m
}

func (m *Manager) armSweep() {
	m.sweepTimer = m.clock.AfterFunc(sweepInterval, m.sweepTick)
}

// sweepTick runs one Sweeper pass, then re-arms itself. It is invoked off
// the clock's own goroutine (or synchronously by clock.Fake.Advance in
// tests), so it takes the same lock as every handler.
func (m *Manager) sweepTick() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now()
	for callID, call := range m.calls {
		if call.Status == CallInitiated && call.OfferAttempts > 0 && now.Sub(call.LastOfferTime) > offerStallWindow {
			m.terminateInitiatedLocked(callID, call, reasonNoAnswer, reasonNoAnswerReceiver)
			continue
		}
		m.trimCandidatesLocked(call, now)
	}
	m.armSweep()
	m.mu.Unlock()
}

func (m *Manager) trimCandidatesLocked(call *Call, now time.Time) {
	for user, entries := range call.iceBuffer {
		kept := entries[:0]
		for _, e := range entries {
			if now.Sub(e.At) <= candidateTTL {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(call.iceBuffer, user)
		} else {
			call.iceBuffer[user] = kept
		}
	}
}

// Close stops the sweeper. It does not close any registered channels.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.sweepTimer != nil {
		m.sweepTimer.Stop()
	}
}

func (m *Manager) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
