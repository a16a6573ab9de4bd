package ircserver

import "gopkg.in/sorcix/irc.v2"

func init() {
	Commands["PONG"] = &ircCommand{
		Func: (*IRCServer).cmdPong,
	}
}

// cmdPong deliberately produces no reply: receiving any bytes already
// refreshed the session's LastActivity, and the event loop clears its
// outstanding-ping marker on any inbound traffic.
func (i *IRCServer) cmdPong(s *Session, reply *Replyctx, msg *irc.Message) {
}
