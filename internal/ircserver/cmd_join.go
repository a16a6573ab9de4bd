package ircserver

import (
	"strings"

	"gopkg.in/sorcix/irc.v2"
)

func init() {
	Commands["JOIN"] = &ircCommand{
		Func:      (*IRCServer).cmdJoin,
		MinParams: 1,
	}
}

func banned(bans []banPattern, userhost string) bool {
	for _, b := range bans {
		if b.re.MatchString(userhost) {
			return true
		}
	}
	return false
}

func (i *IRCServer) cmdJoin(s *Session, reply *Replyctx, msg *irc.Message) {
	var keys []string
	if len(msg.Params) > 1 {
		keys = strings.Split(msg.Params[1], ",")
	}
	for idx, channelname := range strings.Split(msg.Params[0], ",") {
		// Keys pair with channel names positionally; channels beyond the
		// key list get no key.
		var key string
		if idx <= len(keys)-1 {
			key = keys[idx]
		}
		if !IsValidChannel(channelname) {
			i.sendUser(s, reply, &irc.Message{
				Prefix:  i.ServerPrefix,
				Command: irc.ERR_NOSUCHCHANNEL,
				Params:  []string{s.Nick, channelname, "No such channel"},
			})
			continue
		}
		if limit := i.channelsPerSession(); limit > 0 && len(s.Channels) >= limit {
			i.sendUser(s, reply, &irc.Message{
				Prefix:  i.ServerPrefix,
				Command: irc.ERR_TOOMANYCHANNELS,
				Params:  []string{s.Nick, channelname, "You have joined too many channels"},
			})
			continue
		}
		c, ok := i.channels[ChanToLower(channelname)]
		if !ok {
			if got, limit := uint64(len(i.channels)), i.channelLimit(); got >= limit && limit > 0 {
				i.sendUser(s, reply, &irc.Message{
					Prefix:  i.ServerPrefix,
					Command: irc.ERR_NOSUCHCHANNEL,
					Params:  []string{s.Nick, channelname, "No such channel"},
				})
				continue
			}

			c = &channel{
				name:  channelname,
				nicks: make(map[lcNick]*[maxChanMemberStatus]bool),
			}
			c.modes['n'] = true
			c.modes['t'] = true
			i.channels[ChanToLower(channelname)] = c
		} else {
			if c.modes['i'] && !s.invitedTo[ChanToLower(channelname)] {
				i.sendUser(s, reply, &irc.Message{
					Prefix:  i.ServerPrefix,
					Command: irc.ERR_INVITEONLYCHAN,
					Params:  []string{s.Nick, c.name, "Cannot join channel (+i)"},
				})
				continue
			}
			if c.modes['k'] && key != c.key {
				i.sendUser(s, reply, &irc.Message{
					Prefix:  i.ServerPrefix,
					Command: irc.ERR_BADCHANNELKEY,
					Params:  []string{s.Nick, c.name, "Cannot join channel (+k)"},
				})
				continue
			}
			if c.modes['l'] && len(c.nicks) >= c.limit {
				i.sendUser(s, reply, &irc.Message{
					Prefix:  i.ServerPrefix,
					Command: irc.ERR_CHANNELISFULL,
					Params:  []string{s.Nick, c.name, "Cannot join channel (+l)"},
				})
				continue
			}
			if banned(c.bans, s.ircPrefix.String()) {
				i.sendUser(s, reply, &irc.Message{
					Prefix:  i.ServerPrefix,
					Command: irc.ERR_BANNEDFROMCHAN,
					Params:  []string{s.Nick, c.name, "Cannot join channel (+b)"},
				})
				continue
			}
		}
		// Invites are only valid once.
		if c.modes['i'] {
			delete(s.invitedTo, ChanToLower(channelname))
		}
		if _, joined := c.nicks[NickToLower(s.Nick)]; joined {
			continue
		}
		c.nicks[NickToLower(s.Nick)] = &[maxChanMemberStatus]bool{}
		// If the channel did not exist before, the first joining user
		// becomes a channel operator.
		if !ok {
			c.nicks[NickToLower(s.Nick)][chanop] = true
		}
		s.Channels[ChanToLower(channelname)] = true

		i.sendChannel(c, reply, &irc.Message{
			Prefix:  &s.ircPrefix,
			Command: irc.JOIN,
			Params:  []string{channelname},
		})
		// Channel joins integrate the output of MODE, TOPIC and NAMES:
		i.cmdMode(s, reply, &irc.Message{Command: irc.MODE, Params: []string{channelname}})
		i.cmdTopic(s, reply, &irc.Message{Command: irc.TOPIC, Params: []string{channelname}})
		i.cmdNames(s, reply, &irc.Message{Command: irc.NAMES, Params: []string{channelname}})
	}
}
