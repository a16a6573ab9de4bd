package ircserver

import (
	"fmt"

	"gopkg.in/sorcix/irc.v2"
)

func init() {
	Commands["QUIT"] = &ircCommand{
		Func: (*IRCServer).cmdQuit,
	}
}

func (i *IRCServer) cmdQuit(s *Session, reply *Replyctx, msg *irc.Message) {
	var reason string
	if len(msg.Params) > 0 {
		reason = msg.Trailing()
	}
	prefix := s.ircPrefix
	loggedIn := s.loggedIn
	i.deleteSessionLocked(s, reply)
	if loggedIn {
		i.sendCommonChannels(s, reply, &irc.Message{
			Prefix:  &prefix,
			Command: irc.QUIT,
			Params:  []string{reason},
		})
		i.ensureOperatorsLocked(s, reply)
		i.sendUser(s, reply, &irc.Message{
			Command: irc.ERROR,
			Params:  []string{fmt.Sprintf("Closing Link: %s[%s] (%s)", s.Nick, s.Host, reason)},
		})
	}
}
