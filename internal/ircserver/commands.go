package ircserver

import "gopkg.in/sorcix/irc.v2"

// Commands is the dispatch table. Each cmd_*.go file registers its
// command from an init function.
var Commands = make(map[string]*ircCommand)

type ircCommand struct {
	Func func(*IRCServer, *Session, *Replyctx, *irc.Message)

	// MinParams ensures that enough parameters were specified.
	// irc.ERR_NEEDMOREPARAMS is returned in case less than MinParams
	// parameters were found, otherwise, Func is called.
	MinParams int
}
