package ircserver

import "testing"

func TestPing(t *testing.T) {
	i, ids := stdIRCServer()

	mustMatchMsg(t,
		process(i, ids["alice"], "PING"),
		":ircserver 409 alice :No origin specified")

	mustMatchMsg(t,
		process(i, ids["alice"], "PING ircserver"),
		":ircserver PONG ircserver")

	// PONG is accepted silently; it only refreshes liveness.
	if got := process(i, ids["alice"], "PONG ircserver"); len(got.Messages) != 0 {
		t.Fatalf("PONG produced output: %v", got.Messages)
	}

	// PING works before registration.
	const id = 7
	i.CreateSession(id, "host", i.ServerCreation)
	mustMatchMsg(t,
		process(i, id, "PING token"),
		":ircserver PONG token")
}
