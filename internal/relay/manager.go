package relay

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"loot-stix/pkg"
)

// Manager hands out one Executor per participant and fans inbound
// envelopes into them. Executors are cached because a pending
// creation's correlation state lives inside its requester's executor.
type Manager struct {
	rosters func(localID string) Roster
	store   Persistence
	ch      Channel
	log     pkg.Logger
	timeout time.Duration

	mu    sync.Mutex
	execs map[string]*Executor
}

func NewManager(rosters func(localID string) Roster, store Persistence, ch Channel, log pkg.Logger, timeout time.Duration) *Manager {
	return &Manager{
		rosters: rosters,
		store:   store,
		ch:      ch,
		log:     log,
		timeout: timeout,
		execs:   make(map[string]*Executor),
	}
}

// For returns the executor acting on behalf of the given participant.
func (m *Manager) For(localID string) *Executor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.execs[localID]; ok {
		return e
	}
	e := NewExecutor(m.rosters(localID), m.store, m.ch, m.log, m.timeout)
	m.execs[localID] = e
	return e
}

// HandleEnvelope dispatches an inbound envelope from one participant's
// perspective; wire it as the session hub's handler.
func (m *Manager) HandleEnvelope(localID string, env Envelope) {
	if err := m.For(localID).HandleEnvelope(env); err != nil {
		m.log.Error("failed to handle relay envelope",
			zap.String("participant", localID),
			zap.String("type", string(env.Type)),
			zap.Error(err))
	}
}
