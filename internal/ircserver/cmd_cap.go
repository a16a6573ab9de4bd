package ircserver

import (
	"strings"

	"gopkg.in/sorcix/irc.v2"
)

func init() {
	Commands["CAP"] = &ircCommand{
		Func:      (*IRCServer).cmdCap,
		MinParams: 1,
	}
}

// cmdCap advertises an empty capability set. A CAP LS before
// registration opens a negotiation window which defers the welcome burst
// until the matching CAP END.
func (i *IRCServer) cmdCap(s *Session, reply *Replyctx, msg *irc.Message) {
	dest := "*"
	if s.loggedIn {
		dest = s.Nick
	}
	switch strings.ToUpper(msg.Params[0]) {
	case "LS":
		if !s.loggedIn {
			s.capNegotiating = true
		}
		i.sendUser(s, reply, &irc.Message{
			Prefix:  i.ServerPrefix,
			Command: "CAP",
			Params:  []string{dest, "LS", ""},
		})

	case "LIST":
		i.sendUser(s, reply, &irc.Message{
			Prefix:  i.ServerPrefix,
			Command: "CAP",
			Params:  []string{dest, "LIST", ""},
		})

	case "REQ":
		// No capabilities are supported, so every request is rejected.
		i.sendUser(s, reply, &irc.Message{
			Prefix:  i.ServerPrefix,
			Command: "CAP",
			Params:  []string{dest, "NAK", msg.Trailing()},
		})

	case "END":
		s.capNegotiating = false
		i.maybeLogin(s, reply, msg)
	}
}
