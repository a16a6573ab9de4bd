package ircserver

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/sorcix/irc.v2"
)

func init() {
	Commands["MODE"] = &ircCommand{
		Func:      (*IRCServer).cmdMode,
		MinParams: 1,
	}
}

func ban(c *channel, add bool, banmask, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}

	if add {
		c.bans = append(c.bans, banPattern{re: re, pattern: banmask})
		return nil
	}
	// remove ban
	newBans := make([]banPattern, 0, len(c.bans))
	for _, b := range c.bans {
		if b.pattern == banmask {
			continue
		}
		newBans = append(newBans, b)
	}
	c.bans = newBans
	return nil
}

// channelModeString renders the currently set modes with their arguments,
// flags in letter order, e.g. "+knt" with the key appended as a separate
// parameter.
func channelModeString(c *channel) []string {
	modestr := "+"
	var params []string
	for mode := 'A'; mode < 'z'; mode++ {
		if !c.modes[mode] {
			continue
		}
		modestr += string(mode)
		switch mode {
		case 'k':
			params = append(params, c.key)
		case 'l':
			params = append(params, strconv.Itoa(c.limit))
		}
	}
	return append([]string{modestr}, params...)
}

func (i *IRCServer) cmdMode(s *Session, reply *Replyctx, msg *irc.Message) {
	channelname := msg.Params[0]
	if s.Channels[ChanToLower(channelname)] {
		// Channel must exist, the user is in it.
		c := i.channels[ChanToLower(channelname)]
		modes := normalizeModes(msg)
		queryOnly := true

		if len(modes) == 0 {
			i.sendUser(s, reply, &irc.Message{
				Prefix:  i.ServerPrefix,
				Command: irc.RPL_CHANNELMODEIS,
				Params:  append([]string{s.Nick, channelname}, channelModeString(c)...),
			})
			return
		}

		isChanOp := c.nicks[NickToLower(s.Nick)][chanop] || s.Operator

		var applied modeCmds
		for _, mode := range modes {
			char := mode.Mode[1]
			newvalue := (mode.Mode[0] == '+')
			if mode.Mode == "+b" && mode.Param == "" {
				// Query modes: list the bans.
				seen := make(map[string]bool)
				for _, b := range c.bans {
					seen[b.pattern] = true
				}
				patterns := make([]string, 0, len(seen))
				for pattern := range seen {
					patterns = append(patterns, pattern)
				}
				sort.Strings(patterns)
				for _, pattern := range patterns {
					i.sendUser(s, reply, &irc.Message{
						Prefix:  i.ServerPrefix,
						Command: irc.RPL_BANLIST,
						Params:  []string{s.Nick, channelname, pattern},
					})
				}
				i.sendUser(s, reply, &irc.Message{
					Prefix:  i.ServerPrefix,
					Command: irc.RPL_ENDOFBANLIST,
					Params:  []string{s.Nick, channelname, "End of Channel Ban List"},
				})
				continue
			}

			queryOnly = false
			if !isChanOp {
				i.sendUser(s, reply, &irc.Message{
					Prefix:  i.ServerPrefix,
					Command: irc.ERR_CHANOPRIVSNEEDED,
					Params:  []string{s.Nick, channelname, "You're not channel operator"},
				})
				return
			}
			switch char {
			case 't', 's', 'i', 'n':
				c.modes[char] = newvalue
				applied = append(applied, mode)

			case 'k':
				if newvalue {
					if mode.Param == "" {
						i.sendUser(s, reply, &irc.Message{
							Prefix:  i.ServerPrefix,
							Command: irc.ERR_NEEDMOREPARAMS,
							Params:  []string{s.Nick, "MODE", "Not enough parameters"},
						})
						continue
					}
					c.key = mode.Param
				} else {
					c.key = ""
				}
				c.modes[char] = newvalue
				applied = append(applied, mode)

			case 'l':
				if newvalue {
					limit, err := strconv.Atoi(mode.Param)
					if err != nil || limit < 1 {
						i.sendUser(s, reply, &irc.Message{
							Prefix:  i.ServerPrefix,
							Command: irc.ERR_NEEDMOREPARAMS,
							Params:  []string{s.Nick, "MODE", "Not enough parameters"},
						})
						continue
					}
					c.limit = limit
				} else {
					c.limit = 0
				}
				c.modes[char] = newvalue
				applied = append(applied, mode)

			case 'o':
				nick := mode.Param
				perms, ok := c.nicks[NickToLower(nick)]
				if !ok {
					i.sendUser(s, reply, &irc.Message{
						Prefix:  i.ServerPrefix,
						Command: irc.ERR_USERNOTINCHANNEL,
						Params:  []string{s.Nick, nick, channelname, "They aren't on that channel"},
					})
					continue
				}
				// If the user already is a chanop, silently do nothing
				// (like UnrealIRCd).
				if perms[chanop] != newvalue {
					c.nicks[NickToLower(nick)][chanop] = newvalue
					applied = append(applied, mode)
				}

			case 'b':
				// The only supported repetition operator is “*”, which
				// will be turned into “.*”.
				pattern := regexp.QuoteMeta(mode.Param)
				pattern = strings.Replace(pattern, "\\*", ".*", -1)

				if err := ban(c, newvalue, mode.Param, pattern); err != nil {
					i.sendUser(s, reply, &irc.Message{
						Prefix:  i.ServerPrefix,
						Command: irc.ERR_UNKNOWNMODE,
						Params:  []string{s.Nick, "b", "is unknown mode char to me"},
					})
					continue
				}
				applied = append(applied, mode)

			default:
				i.sendUser(s, reply, &irc.Message{
					Prefix:  i.ServerPrefix,
					Command: irc.ERR_UNKNOWNMODE,
					Params:  []string{s.Nick, string(char), "is unknown mode char to me"},
				})
			}
		}

		if queryOnly || len(applied) == 0 {
			return
		}
		i.sendChannel(c, reply, &irc.Message{
			Prefix:  &s.ircPrefix,
			Command: irc.MODE,
			Params:  append([]string{channelname}, applied.IRCParams()...),
		})
		return
	}

	nick := NickToLower(channelname)
	if session, ok := i.nicks[nick]; ok {
		if nick != NickToLower(s.Nick) && !s.Operator {
			i.sendUser(s, reply, &irc.Message{
				Prefix:  i.ServerPrefix,
				Command: irc.ERR_USERSDONTMATCH,
				Params:  []string{s.Nick, "Can't change mode for other users"},
			})
			return
		}
		modes := normalizeModes(msg)

		if len(modes) == 0 {
			modestr := "+"
			for mode := 'A'; mode < 'z'; mode++ {
				if session.modes[mode] {
					modestr += string(mode)
				}
			}
			i.sendUser(s, reply, &irc.Message{
				Prefix:  i.ServerPrefix,
				Command: irc.RPL_UMODEIS,
				Params:  []string{s.Nick, modestr},
			})
			return
		}

		for _, mode := range modes {
			char := mode.Mode[1]
			newvalue := (mode.Mode[0] == '+')
			switch char {
			case 'i':
				session.modes[char] = newvalue
			}
		}

		i.sendUser(session, reply, &irc.Message{
			Prefix:  &s.ircPrefix,
			Command: irc.MODE,
			Params:  []string{session.Nick, modeCmds(modes).IRCParams()[0]},
		})
		return
	}
	i.sendUser(s, reply, &irc.Message{
		Prefix:  i.ServerPrefix,
		Command: irc.ERR_NOTONCHANNEL,
		Params:  []string{s.Nick, channelname, "You're not on that channel"},
	})
}
