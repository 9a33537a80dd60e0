package session

import "testing"

func TestAuthorityFirstActiveGM(t *testing.T) {
	s := New()
	s.Join(Participant{ID: "player1", Name: "Ann"})
	s.Join(Participant{ID: "gm1", Name: "Greg", IsGM: true})
	s.Join(Participant{ID: "gm2", Name: "Gwen", IsGM: true})

	if got := s.AuthorityID(); got != "gm1" {
		t.Errorf("AuthorityID() = %q, want gm1", got)
	}
}

func TestAuthorityNoneWithoutGM(t *testing.T) {
	s := New()
	s.Join(Participant{ID: "player1"})

	if got := s.AuthorityID(); got != "" {
		t.Errorf("AuthorityID() = %q, want empty", got)
	}
}

func TestAuthorityMovesOnLeave(t *testing.T) {
	s := New()
	s.Join(Participant{ID: "gm1", IsGM: true})
	s.Join(Participant{ID: "gm2", IsGM: true})

	s.Leave("gm1")
	if got := s.AuthorityID(); got != "gm2" {
		t.Errorf("AuthorityID() = %q, want gm2", got)
	}

	s.Leave("gm2")
	if got := s.AuthorityID(); got != "" {
		t.Errorf("AuthorityID() = %q, want empty", got)
	}
}

func TestRejoinPreservesOrder(t *testing.T) {
	s := New()
	s.Join(Participant{ID: "gm1", IsGM: true})
	s.Join(Participant{ID: "gm2", IsGM: true})

	s.Leave("gm1")
	s.Join(Participant{ID: "gm1", IsGM: true})

	// Reconnecting does not push the first GM behind the second.
	if got := s.AuthorityID(); got != "gm1" {
		t.Errorf("AuthorityID() = %q, want gm1", got)
	}
}

func TestParticipantLookup(t *testing.T) {
	s := New()
	s.Join(Participant{ID: "player1", Name: "Ann"})

	p, ok := s.Participant("player1")
	if !ok || p.Name != "Ann" || !p.Active {
		t.Errorf("Participant() = %+v, %v", p, ok)
	}
	if _, ok := s.Participant("ghost"); ok {
		t.Error("unknown participant should not be found")
	}
}

func TestLootTokenRegistry(t *testing.T) {
	s := New()
	s.RegisterLootToken("scene1", "tok1")
	s.RegisterLootToken("scene1", "tok2")
	s.RegisterLootToken("scene2", "tok3")

	if !s.IsLootToken("scene1", "tok1") {
		t.Error("tok1 should be registered")
	}
	if s.IsLootToken("scene2", "tok1") {
		t.Error("registry must be per scene")
	}

	s.ForgetLootToken("scene1", "tok1")
	if s.IsLootToken("scene1", "tok1") {
		t.Error("tok1 should be forgotten")
	}
	if got := len(s.LootTokens("scene1")); got != 1 {
		t.Errorf("scene1 has %d loot tokens, want 1", got)
	}
}

func TestRosterFor(t *testing.T) {
	s := New()
	s.Join(Participant{ID: "gm1", IsGM: true})

	r := s.RosterFor("player1")
	if r.LocalID() != "player1" {
		t.Errorf("LocalID() = %q", r.LocalID())
	}
	if r.AuthorityID() != "gm1" {
		t.Errorf("AuthorityID() = %q", r.AuthorityID())
	}
}
