package ircserver

import (
	"strings"
	"testing"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/loopirc/loopirc/config"
	"github.com/loopirc/loopirc/internal/wire"

	"gopkg.in/sorcix/irc.v2"
)

// testTimestamp is used for every processed message so that replies
// which embed a time (e.g. the 333 topic reply) are reproducible.
const testTimestamp = 1420228218166687917

var testMsgid uint64

func process(i *IRCServer, session uint64, line string) *Replyctx {
	testMsgid++
	msg := &wire.Message{
		Id:       wire.Id{Id: testMsgid},
		Session:  session,
		UnixNano: testTimestamp,
		Data:     line,
	}
	return i.ProcessMessage(msg, irc.ParseMessage(line))
}

func stdIRCServer() (*IRCServer, map[string]uint64) {
	i := NewIRCServer("ircserver", time.Unix(0, 1481144012969203276))
	i.Config.IRC.Operators = []config.IRCOp{
		{Name: "admin", Password: "sesame"},
	}

	ids := map[string]uint64{
		"alice": 1,
		"bob":   2,
		"carol": 3,
	}

	for _, user := range []struct {
		nick, realname string
	}{
		{"alice", "Alice Example"},
		{"bob", "Bob Example"},
		{"carol", "Carol Example"},
	} {
		i.CreateSession(ids[user.nick], "host", time.Unix(0, testTimestamp))
		process(i, ids[user.nick], "NICK "+user.nick)
		process(i, ids[user.nick], "USER "+user.nick+" 0 * :"+user.realname)
	}

	return i, ids
}

// mustMatchIrcmsgs compares the reply stream with the expectation byte
// for byte and renders a diff before failing the test if they don’t
// match.
func mustMatchIrcmsgs(t *testing.T, got *Replyctx, want []*irc.Message) {
	t.Helper()
	failed := len(got.Messages) != len(want)
	for idx := 0; !failed && idx < len(want); idx++ {
		failed = got.Messages[idx].Data != want[idx].String()
	}
	if !failed {
		return
	}
	gotLines := make([]string, len(got.Messages))
	for idx, msg := range got.Messages {
		gotLines[idx] = msg.Data
	}
	wantLines := make([]string, len(want))
	for idx, msg := range want {
		wantLines[idx] = msg.String()
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(strings.Join(wantLines, "\n"), strings.Join(gotLines, "\n"), true)
	t.Logf("replies differ (want → got):\n%s", dmp.DiffPrettyText(diffs))
	t.Fatalf("got %d messages, want %d messages", len(got.Messages), len(want))
}

func mustMatchMsg(t *testing.T, got *Replyctx, want string) {
	t.Helper()
	mustMatchIrcmsgs(t, got, []*irc.Message{irc.ParseMessage(want)})
}

// mustBeInterested fails the test unless the given reply message is
// routed to exactly |ids|.
func mustBeInterested(t *testing.T, msg *wire.Message, ids ...uint64) {
	t.Helper()
	if got, want := len(msg.InterestingFor), len(ids); got != want {
		t.Fatalf("message %q interesting for %d sessions, want %d", msg.Data, got, want)
	}
	for _, id := range ids {
		if !msg.InterestingFor[id] {
			t.Fatalf("message %q not interesting for session %d", msg.Data, id)
		}
	}
}

func TestSessionInitialization(t *testing.T) {
	i := NewIRCServer("ircserver", time.Now())

	const id = 42
	i.CreateSession(id, "host", time.Unix(0, testTimestamp))

	s, err := i.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession(%v) did not return a session", id)
	}

	if s.loggedIn {
		t.Fatalf("session.loggedIn true before sending NICK")
	}

	mustMatchMsg(t,
		process(i, id, "JOIN #test"),
		":ircserver 451 JOIN :You have not registered")

	mustMatchMsg(t,
		process(i, id, "NICK"),
		":ircserver 431 :No nickname given")

	mustMatchIrcmsgs(t,
		process(i, id, "NICK alice"),
		[]*irc.Message{})

	got := process(i, id, "USER alice 0 * :Alice Example")
	if len(got.Messages) < 1 || irc.ParseMessage(got.Messages[0].Data).Command != irc.RPL_WELCOME {
		t.Fatalf("got %v, want irc.RPL_WELCOME", got.Messages)
	}
	if !strings.Contains(got.Messages[0].Data, "alice") {
		t.Fatalf("welcome %q does not contain the nickname", got.Messages[0].Data)
	}
	last := got.Messages[len(got.Messages)-1]
	if irc.ParseMessage(last.Data).Command != irc.RPL_ENDOFMOTD {
		t.Fatalf("registration burst does not end with 376: %q", last.Data)
	}

	if s.Nick != "alice" {
		t.Fatalf("session.Nick: got %q, want %q", s.Nick, "alice")
	}

	if !s.loggedIn {
		t.Fatalf("session.loggedIn still false after sending NICK and USER")
	}

	mustMatchMsg(t,
		process(i, id, "JOINT #test"),
		":ircserver 421 alice JOINT :Unknown command")
}

func TestNickCollision(t *testing.T) {
	i, _ := stdIRCServer()

	const id = 4
	i.CreateSession(id, "host", time.Unix(0, testTimestamp))
	s, _ := i.GetSession(id)

	mustMatchMsg(t,
		process(i, id, "NICK alice"),
		":ircserver 433 * alice :Nickname is already in use")
	if s.Nick != "" {
		t.Fatalf("session.Nick: got %q, want %q", s.Nick, "")
	}

	// Different capitalization is still a collision, as is the RFC1459
	// scandinavian equivalence of []\~ and {}|^.
	mustMatchMsg(t,
		process(i, id, "NICK ALICE"),
		":ircserver 433 * ALICE :Nickname is already in use")

	process(i, id, "NICK b{b}")
	process(i, id, "USER b 0 * :B")
	const other = 5
	i.CreateSession(other, "host", time.Unix(0, testTimestamp))
	mustMatchMsg(t,
		process(i, other, "NICK b[b]"),
		":ircserver 433 * b[b] :Nickname is already in use")
}

func TestPassword(t *testing.T) {
	i := NewIRCServer("ircserver", time.Now())
	i.Config.Password = "serverpassword"

	const id = 7
	i.CreateSession(id, "host", time.Unix(0, testTimestamp))

	got := process(i, id, "PASS wrong")
	mustMatchIrcmsgs(t, got, []*irc.Message{
		irc.ParseMessage(":ircserver 464 * :Password incorrect"),
		irc.ParseMessage("ERROR :Closing Link: host (Bad Password)"),
	})
	if len(got.Closed) != 1 || got.Closed[0] != id {
		t.Fatalf("got.Closed = %v, want [%d]", got.Closed, id)
	}

	// Subsequent lines from a closed session have no effect.
	mustMatchIrcmsgs(t,
		process(i, id, "NICK alice"),
		[]*irc.Message{})
}

func TestPasswordHappyPath(t *testing.T) {
	i := NewIRCServer("ircserver", time.Now())
	i.Config.Password = "serverpassword"

	const id = 8
	i.CreateSession(id, "host", time.Unix(0, testTimestamp))

	mustMatchIrcmsgs(t,
		process(i, id, "PASS serverpassword"),
		[]*irc.Message{})
	process(i, id, "NICK alice")
	got := process(i, id, "USER alice 0 * :Alice Example")
	if len(got.Messages) < 1 || irc.ParseMessage(got.Messages[0].Data).Command != irc.RPL_WELCOME {
		t.Fatalf("got %v, want irc.RPL_WELCOME", got.Messages)
	}

	s, _ := i.GetSession(id)
	mustMatchMsg(t,
		process(i, id, "PASS serverpassword"),
		":ircserver 462 alice :You may not reregister")
	if !s.loggedIn {
		t.Fatalf("session no longer logged in after PASS")
	}
}

func TestMissingPassword(t *testing.T) {
	i := NewIRCServer("ircserver", time.Now())
	i.Config.Password = "serverpassword"

	const id = 9
	i.CreateSession(id, "host", time.Unix(0, testTimestamp))

	process(i, id, "NICK alice")
	got := process(i, id, "USER alice 0 * :Alice Example")
	mustMatchIrcmsgs(t, got, []*irc.Message{
		irc.ParseMessage(":ircserver 464 * :Password incorrect"),
		irc.ParseMessage("ERROR :Closing Link: Bad Password"),
	})
	if len(got.Closed) != 1 || got.Closed[0] != id {
		t.Fatalf("got.Closed = %v, want [%d]", got.Closed, id)
	}
}

func TestCapNegotiation(t *testing.T) {
	i, _ := stdIRCServer()

	const id = 4
	i.CreateSession(id, "host", time.Unix(0, testTimestamp))

	mustMatchMsg(t,
		process(i, id, "CAP LS 302"),
		":ircserver CAP * LS :")

	process(i, id, "NICK dave")
	got := process(i, id, "USER dave 0 * :Dave Example")
	mustMatchIrcmsgs(t, got, []*irc.Message{})

	got = process(i, id, "CAP END")
	if len(got.Messages) < 1 || irc.ParseMessage(got.Messages[0].Data).Command != irc.RPL_WELCOME {
		t.Fatalf("welcome burst not deferred until CAP END: %v", got.Messages)
	}
}

func TestMotd(t *testing.T) {
	i, ids := stdIRCServer()

	mustMatchIrcmsgs(t,
		process(i, ids["alice"], "MOTD"),
		[]*irc.Message{
			irc.ParseMessage(":ircserver 375 alice :- ircserver Message of the day -"),
			irc.ParseMessage(":ircserver 372 alice :- Welcome to this IRC server!"),
			irc.ParseMessage(":ircserver 376 alice :End of MOTD command"),
		})

	i.ConfigMu.Lock()
	i.Config.Motd = nil
	i.ConfigMu.Unlock()
	mustMatchMsg(t,
		process(i, ids["alice"], "MOTD"),
		":ircserver 422 alice :MOTD File is missing")
}
