package ircserver

import (
	"strconv"

	"gopkg.in/sorcix/irc.v2"
)

func init() {
	Commands["NICK"] = &ircCommand{
		Func: (*IRCServer).cmdNick,
	}
}

// maybeLogin finishes registration once both NICK and USER were accepted: it
// verifies the server password, then sends the welcome burst and the
// MOTD. It is called by either cmdNick or cmdUser, depending on which
// message the client sends last, and by cmdCap when a CAP END closes a
// negotiation window that deferred it.
func (i *IRCServer) maybeLogin(s *Session, reply *Replyctx, msg *irc.Message) {
	if s.loggedIn || s.Nick == "" || s.Username == "" || s.capNegotiating {
		return
	}

	if !s.passwordOK {
		i.sendUser(s, reply, &irc.Message{
			Prefix:  i.ServerPrefix,
			Command: irc.ERR_PASSWDMISMATCH,
			Params:  []string{"*", "Password incorrect"},
		})
		i.sendUser(s, reply, &irc.Message{
			Command: irc.ERROR,
			Params:  []string{"Closing Link: Bad Password"},
		})
		i.deleteSessionLocked(s, reply)
		return
	}

	s.loggedIn = true

	i.sendUser(s, reply, &irc.Message{
		Prefix:  i.ServerPrefix,
		Command: irc.RPL_WELCOME,
		Params:  []string{s.Nick, "Welcome to the Internet Relay Network " + s.ircPrefix.String()},
	})

	i.sendUser(s, reply, &irc.Message{
		Prefix:  i.ServerPrefix,
		Command: irc.RPL_YOURHOST,
		Params:  []string{s.Nick, "Your host is " + i.ServerPrefix.Name},
	})

	i.sendUser(s, reply, &irc.Message{
		Prefix:  i.ServerPrefix,
		Command: irc.RPL_CREATED,
		Params:  []string{s.Nick, "This server was created " + i.ServerCreation.UTC().String()},
	})

	i.sendUser(s, reply, &irc.Message{
		Prefix:  i.ServerPrefix,
		Command: irc.RPL_MYINFO,
		Params:  []string{s.Nick, i.ServerPrefix.Name + " v1 i biklonst"},
	})

	// send ISUPPORT as per:
	// http://www.irc.org/tech_docs/draft-brocklesby-irc-isupport-03.txt
	i.sendUser(s, reply, &irc.Message{
		Prefix:  i.ServerPrefix,
		Command: "005",
		Params: []string{
			s.Nick,
			"CHANTYPES=#&",
			"CHANNELLEN=" + maxChannelLen,
			"NICKLEN=" + maxNickLen,
			"CHANLIMIT=#&:" + strconv.Itoa(i.channelsPerSession()),
			"PREFIX=(o)@",
			"are supported by this server",
		},
	})

	i.cmdMotd(s, reply, msg)
}

func (i *IRCServer) cmdNick(s *Session, reply *Replyctx, msg *irc.Message) {
	oldPrefix := s.ircPrefix

	var nick string
	if len(msg.Params) > 0 {
		nick = msg.Params[0]
	}
	if nick == "" {
		i.sendUser(s, reply, &irc.Message{
			Prefix:  i.ServerPrefix,
			Command: irc.ERR_NONICKNAMEGIVEN,
			Params:  []string{"No nickname given"},
		})
		return
	}

	dest := "*"
	onlyCapsChanged := false // Whether the nick change only changes capitalization.
	if s.loggedIn {
		dest = s.Nick
		onlyCapsChanged = NickToLower(nick) == NickToLower(dest)
	}

	if !IsValidNickname(nick) {
		i.sendUser(s, reply, &irc.Message{
			Prefix:  i.ServerPrefix,
			Command: irc.ERR_ERRONEUSNICKNAME,
			Params:  []string{dest, nick, "Erroneous nickname"},
		})
		return
	}

	if _, ok := i.nicks[NickToLower(nick)]; ok && !onlyCapsChanged {
		i.sendUser(s, reply, &irc.Message{
			Prefix:  i.ServerPrefix,
			Command: irc.ERR_NICKNAMEINUSE,
			Params:  []string{dest, nick, "Nickname is already in use"},
		})
		return
	}

	if s.Nick == nick {
		// No change: the user already *has* that nickname.
		return
	}

	oldNick := NickToLower(s.Nick)
	s.Nick = nick
	i.nicks[NickToLower(s.Nick)] = s
	if oldNick != "" && !onlyCapsChanged {
		delete(i.nicks, oldNick)
		for _, c := range i.channels {
			// Check ok to ensure we never assign the default value (<nil>).
			if modes, ok := c.nicks[oldNick]; ok {
				c.nicks[NickToLower(s.Nick)] = modes
			}
			delete(c.nicks, oldNick)
		}
	}
	s.updateIrcPrefix()

	if oldNick != "" && s.loggedIn {
		i.sendCommonChannels(s, reply,
			i.sendUser(s, reply, &irc.Message{
				Prefix:  &oldPrefix,
				Command: irc.NICK,
				Params:  []string{nick},
			}))
		return
	}

	i.maybeLogin(s, reply, msg)
}
