package session

import (
	"sync"

	"loot-stix/internal/relay"
)

// Participant is a connected (or previously connected) session member.
type Participant struct {
	ID     string
	Name   string
	IsGM   bool
	Active bool
}

// Session is the registry for one running game session: who is
// present, which GM currently holds authority, and which tokens on
// each scene are loot tokens. Its lifetime is tied to the server
// process hosting the session, not to any single connection.
type Session struct {
	mu           sync.RWMutex
	order        []string
	participants map[string]*Participant
	lootTokens   map[string]map[string]bool
}

func New() *Session {
	return &Session{
		participants: make(map[string]*Participant),
		lootTokens:   make(map[string]map[string]bool),
	}
}

// Join adds a participant or re-activates a returning one. Join order
// is preserved across reconnects so authority stays stable.
func (s *Session) Join(p Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.participants[p.ID]
	if ok {
		existing.Active = true
		existing.Name = p.Name
		existing.IsGM = p.IsGM
		return
	}
	p.Active = true
	s.participants[p.ID] = &p
	s.order = append(s.order, p.ID)
}

// Leave marks a participant inactive; authority may move as a result.
func (s *Session) Leave(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[id]; ok {
		p.Active = false
	}
}

func (s *Session) Participant(id string) (Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Participants returns a snapshot of all known participants in join
// order.
func (s *Session) Participants() []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Participant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.participants[id])
	}
	return out
}

// AuthorityID returns the first active GM in join order, or empty when
// no GM is reachable.
func (s *Session) AuthorityID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		p := s.participants[id]
		if p.IsGM && p.Active {
			return id
		}
	}
	return ""
}

// RegisterLootToken records a token as loot-bearing for the scene.
func (s *Session) RegisterLootToken(sceneID, tokenID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lootTokens[sceneID] == nil {
		s.lootTokens[sceneID] = make(map[string]bool)
	}
	s.lootTokens[sceneID][tokenID] = true
}

func (s *Session) ForgetLootToken(sceneID, tokenID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lootTokens[sceneID], tokenID)
}

func (s *Session) IsLootToken(sceneID, tokenID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lootTokens[sceneID][tokenID]
}

func (s *Session) LootTokens(sceneID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.lootTokens[sceneID]))
	for id := range s.lootTokens[sceneID] {
		ids = append(ids, id)
	}
	return ids
}

// RosterFor returns the relay's view of the session from one
// participant's perspective.
func (s *Session) RosterFor(localID string) relay.Roster {
	return roster{s: s, localID: localID}
}

type roster struct {
	s       *Session
	localID string
}

func (r roster) LocalID() string     { return r.localID }
func (r roster) AuthorityID() string { return r.s.AuthorityID() }
