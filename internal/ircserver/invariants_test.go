package ircserver

import (
	"testing"
)

// checkInvariants verifies the structural invariants that every command
// must preserve: membership symmetry between sessions and channels, at
// least one operator per non-empty channel, and nick uniqueness.
func checkInvariants(t *testing.T, i *IRCServer) {
	t.Helper()

	for lc, c := range i.channels {
		if len(c.nicks) == 0 {
			t.Fatalf("channel %q is empty but still registered", lc)
		}
		hasOp := false
		for nick, perms := range c.nicks {
			s, ok := i.nicks[nick]
			if !ok {
				t.Fatalf("channel %q has member %q without a session", lc, nick)
			}
			if !s.Channels[lc] {
				t.Fatalf("channel %q lists %q, but the session does not list the channel", lc, nick)
			}
			if perms[chanop] {
				hasOp = true
			}
		}
		if !hasOp {
			t.Fatalf("channel %q has no operator", lc)
		}
	}

	seen := make(map[lcNick]uint64)
	for id, s := range i.sessions {
		if s.deleted || s.Nick == "" {
			continue
		}
		if other, ok := seen[NickToLower(s.Nick)]; ok {
			t.Fatalf("nick %q used by sessions %d and %d", s.Nick, other, id)
		}
		seen[NickToLower(s.Nick)] = id
		for lc := range s.Channels {
			c, ok := i.channels[lc]
			if !ok {
				t.Fatalf("session %d lists unknown channel %q", id, lc)
			}
			if _, ok := c.nicks[NickToLower(s.Nick)]; !ok {
				t.Fatalf("session %d lists %q, but the channel does not list the session", id, lc)
			}
		}
	}
}

func TestMembershipInvariants(t *testing.T) {
	i, ids := stdIRCServer()

	script := []struct {
		who  string
		line string
	}{
		{"alice", "JOIN #a"},
		{"bob", "JOIN #a,#b"},
		{"carol", "JOIN #b"},
		{"alice", "JOIN #a"}, // repeated join is a no-op
		{"bob", "PART #a"},
		{"bob", "JOIN #a"},
		{"alice", "MODE #a +o bob"},
		{"alice", "PART #a"},
		{"bob", "KICK #a bob :self kick"},
		{"carol", "NICK caroline"},
		{"bob", "QUIT :done"},
		{"alice", "JOIN #b"},
	}
	for _, step := range script {
		process(i, ids[step.who], step.line)
		checkInvariants(t, i)
	}

	i.ForgetSession(ids["bob"])
	checkInvariants(t, i)

	// For any JOIN/PART sequence the membership set size is 0 or 1.
	for j := 0; j < 5; j++ {
		process(i, ids["alice"], "JOIN #flip")
		process(i, ids["alice"], "JOIN #flip")
		s, _ := i.GetSession(ids["alice"])
		if !s.Channels[ChanToLower("#flip")] {
			t.Fatalf("alice not in #flip after JOIN")
		}
		process(i, ids["alice"], "PART #flip")
		if s.Channels[ChanToLower("#flip")] {
			t.Fatalf("alice still in #flip after PART")
		}
		checkInvariants(t, i)
	}
}
