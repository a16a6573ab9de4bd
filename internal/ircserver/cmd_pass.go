package ircserver

import (
	"fmt"

	"gopkg.in/sorcix/irc.v2"
)

func init() {
	Commands["PASS"] = &ircCommand{
		Func:      (*IRCServer).cmdPass,
		MinParams: 1,
	}
}

func (i *IRCServer) cmdPass(s *Session, reply *Replyctx, msg *irc.Message) {
	if s.loggedIn {
		i.sendUser(s, reply, &irc.Message{
			Prefix:  i.ServerPrefix,
			Command: irc.ERR_ALREADYREGISTRED,
			Params:  []string{s.Nick, "You may not reregister"},
		})
		return
	}

	password := i.networkPassword()
	if password == "" || msg.Params[0] == password {
		s.passwordOK = true
		return
	}

	i.sendUser(s, reply, &irc.Message{
		Prefix:  i.ServerPrefix,
		Command: irc.ERR_PASSWDMISMATCH,
		Params:  []string{"*", "Password incorrect"},
	})
	i.sendUser(s, reply, &irc.Message{
		Command: irc.ERROR,
		Params:  []string{fmt.Sprintf("Closing Link: %s (Bad Password)", s.Host)},
	})
	i.deleteSessionLocked(s, reply)
}
