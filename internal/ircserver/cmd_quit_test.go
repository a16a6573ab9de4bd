package ircserver

import (
	"testing"
)

func TestQuit(t *testing.T) {
	i, ids := stdIRCServer()

	process(i, ids["alice"], "JOIN #x")
	process(i, ids["bob"], "JOIN #x")
	process(i, ids["carol"], "JOIN #y")

	got := process(i, ids["alice"], "QUIT :bye bye")
	if len(got.Messages) != 3 {
		t.Fatalf("QUIT produced %d messages, want 3 (QUIT broadcast, +o handoff, ERROR)", len(got.Messages))
	}
	if got.Messages[0].Data != ":alice!alice@host QUIT :bye bye" {
		t.Fatalf("QUIT broadcast: got %q", got.Messages[0].Data)
	}
	// Members of shared channels see the QUIT; carol does not.
	mustBeInterested(t, got.Messages[0], ids["bob"])
	if got.Messages[1].Data != ":ircserver MODE #x +o bob" {
		t.Fatalf("operator handoff: got %q", got.Messages[1].Data)
	}
	if got.Messages[2].Data != "ERROR :Closing Link: alice[host] (bye bye)" {
		t.Fatalf("ERROR: got %q", got.Messages[2].Data)
	}

	if len(got.Closed) != 1 || got.Closed[0] != ids["alice"] {
		t.Fatalf("got.Closed = %v, want [%d]", got.Closed, ids["alice"])
	}

	// Lines after QUIT have no effect.
	if got := process(i, ids["alice"], "PRIVMSG bob :zombie"); len(got.Messages) != 0 {
		t.Fatalf("message processed after QUIT: %v", got.Messages)
	}

	// The nickname becomes available again once the loop forgets the
	// session.
	i.ForgetSession(ids["alice"])
	const id = 23
	i.CreateSession(id, "host", i.ServerCreation)
	if got := process(i, id, "NICK alice"); len(got.Messages) != 0 {
		t.Fatalf("NICK alice after quit: %v", got.Messages)
	}
}

func TestQuitBeforeRegistration(t *testing.T) {
	i, _ := stdIRCServer()

	const id = 9
	i.CreateSession(id, "host", i.ServerCreation)
	got := process(i, id, "QUIT")
	if len(got.Messages) != 0 {
		t.Fatalf("QUIT before registration produced output: %v", got.Messages)
	}
	if len(got.Closed) != 1 || got.Closed[0] != id {
		t.Fatalf("got.Closed = %v, want [%d]", got.Closed, id)
	}
}
