package ircserver

import (
	"fmt"
	"strings"

	"gopkg.in/sorcix/irc.v2"
)

func init() {
	Commands["PRIVMSG"] = &ircCommand{
		Func: (*IRCServer).cmdPrivmsg,
	}
	Commands["NOTICE"] = &ircCommand{
		Func: (*IRCServer).cmdPrivmsg,
	}
}

func (i *IRCServer) cmdPrivmsg(s *Session, reply *Replyctx, msg *irc.Message) {
	// NOTICE must never trigger automatic replies, so all error numerics
	// below are suppressed for it.
	notice := strings.ToUpper(msg.Command) == irc.NOTICE

	if len(msg.Params) < 1 {
		if !notice {
			i.sendUser(s, reply, &irc.Message{
				Prefix:  i.ServerPrefix,
				Command: irc.ERR_NORECIPIENT,
				Params:  []string{s.Nick, fmt.Sprintf("No recipient given (%s)", strings.ToUpper(msg.Command))},
			})
		}
		return
	}

	if len(msg.Params) < 2 || msg.Trailing() == "" {
		if !notice {
			i.sendUser(s, reply, &irc.Message{
				Prefix:  i.ServerPrefix,
				Command: irc.ERR_NOTEXTTOSEND,
				Params:  []string{s.Nick, "No text to send"},
			})
		}
		return
	}

	for _, target := range strings.Split(msg.Params[0], ",") {
		i.deliverMessage(s, reply, notice, strings.ToUpper(msg.Command), target, msg.Trailing())
	}
}

func (i *IRCServer) deliverMessage(s *Session, reply *Replyctx, notice bool, command, target, text string) {
	if isChannelName(target) {
		c, ok := i.channels[ChanToLower(target)]
		if !ok {
			if !notice {
				i.sendUser(s, reply, &irc.Message{
					Prefix:  i.ServerPrefix,
					Command: irc.ERR_NOSUCHCHANNEL,
					Params:  []string{s.Nick, target, "No such channel"},
				})
			}
			return
		}
		if _, ok := c.nicks[NickToLower(s.Nick)]; !ok && c.modes['n'] {
			if !notice {
				i.sendUser(s, reply, &irc.Message{
					Prefix:  i.ServerPrefix,
					Command: irc.ERR_CANNOTSENDTOCHAN,
					Params:  []string{s.Nick, c.name, "Cannot send to channel"},
				})
			}
			return
		}
		i.sendChannelButOne(c, s, reply, &irc.Message{
			Prefix:  &s.ircPrefix,
			Command: command,
			Params:  []string{target, text},
		})
		return
	}

	session, ok := i.nicks[NickToLower(target)]
	if !ok {
		if !notice {
			i.sendUser(s, reply, &irc.Message{
				Prefix:  i.ServerPrefix,
				Command: irc.ERR_NOSUCHNICK,
				Params:  []string{s.Nick, target, "No such nick/channel"},
			})
		}
		return
	}

	i.sendUser(session, reply, &irc.Message{
		Prefix:  &s.ircPrefix,
		Command: command,
		Params:  []string{target, text},
	})
}
