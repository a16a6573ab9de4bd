// Package ircserver implements the IRC command engine: it owns all
// session and channel state and strictly adheres to a processing model
// where output is only ever generated in response to input. The event
// loop feeds it one parsed message at a time and routes the resulting
// replies by their InterestingFor sets; the engine itself never touches
// a socket.
package ircserver

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loopirc/loopirc/config"
	"github.com/loopirc/loopirc/internal/wire"

	"gopkg.in/sorcix/irc.v2"
)

const (
	maxNickLen    = "9"
	maxChannelLen = "50"

	// Message format according to RFC2812, section 2.3.1
	// A-Z / a-z
	letter = `\x41-\x5A\x61-\x7A`
	// 0-9
	digit = `\x30-\x39`
	// "[", "]", "\", "`", "_", "^", "{", "|", "}"
	special = `\x5B-\x60\x7B-\x7D`

	// any octet except NUL, BELL, CR, LF, " ", "," and ":"
	chanstring = `\x01-\x06\x08-\x09\x0B-\x0C\x0E-\x1F\x21-\x2B\x2D-\x39\x3B-\xFF`
)

var (
	// Nicknames are at most 9 characters: the first plus up to 8 more.
	validNickRe    = regexp.MustCompile(`^[` + letter + special + `][` + letter + digit + special + `-]{0,8}$`)
	validChannelRe = regexp.MustCompile(`^[#&][` + chanstring + `]{0,49}$`)

	// ErrNoSuchSession is returned when the session does not exist.
	ErrNoSuchSession = errors.New("No such session")

	// ErrSessionLimitReached is returned when the number of sessions
	// exceeds the configured limit.
	ErrSessionLimitReached = errors.New("MaxSessions limit reached")
)

var messagesProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: "irc",
		Name:      "messages_processed",
		Help:      "Number of messages processed by message command",
	},
	[]string{"command"},
)

func init() {
	prometheus.MustRegister(messagesProcessed)
}

// lcChan is a lower-case channel name, e.g. “#chat”, even when the user
// sent “JOIN #Chat”. It is used to enforce using ChanToLower() on keys of
// various maps.
type lcChan string

// lcNick is a lower-case nickname, e.g. “alice”, even when the user sent
// “NICK aLiCe”. It is used to enforce using NickToLower() on keys of
// various maps.
type lcNick string

type Session struct {
	Id           uint64
	Nick         string
	Username     string
	Realname     string
	Host         string
	Channels     map[lcChan]bool
	LastActivity time.Time
	Operator     bool
	Created      int64

	// passwordOK is set once a correct PASS was received, or immediately
	// when the server has no password configured.
	passwordOK bool

	// loggedIn is set once both NICK and USER were accepted (and CAP
	// negotiation, if any, has ended).
	loggedIn bool

	// capNegotiating is set by CAP LS before registration and cleared by
	// CAP END; while set, the welcome burst is deferred.
	capNegotiating bool

	invitedTo map[lcChan]bool

	// We waste 122 bytes per session for clearer code (being able to
	// directly access modes by using their letter as an index).
	modes ['z']bool

	ircPrefix irc.Prefix

	// deleted gets set when the session ends (QUIT, KILL, bad PASS) and
	// used by the event loop to tear down the connection. The map entry
	// is removed by ForgetSession once the connection is gone.
	deleted bool
}

// updateIrcPrefix MUST be called whenever the Nick field changes.
func (s *Session) updateIrcPrefix() {
	s.ircPrefix = irc.Prefix{
		Name: s.Nick,
		User: s.Username,
		Host: s.Host,
	}
}

const (
	chanop = iota
	maxChanMemberStatus
)

type banPattern struct {
	re      *regexp.Regexp
	pattern string
}

type channel struct {
	// name is the (case-sensitive!) original name this channel had when
	// it was first created.
	name string

	topicNick string
	topicTime time.Time
	topic     string

	nicks map[lcNick]*[maxChanMemberStatus]bool

	// We waste 122 bytes per channel for clearer code (being able to
	// directly access modes by using their letter as an index).
	modes ['z']bool

	// key is non-empty iff modes['k'] is set.
	key string

	// limit is ≥ 1 iff modes['l'] is set.
	limit int

	bans []banPattern
}

type IRCServer struct {
	// sessions contains all sessions, i.e. nickname, registration state,
	// joined channels, etc., keyed by the session id the event loop
	// assigned to the connection.
	sessions map[uint64]*Session

	// mu guards sessions/nicks/channels. The event loop is the only
	// mutator; the exported accessors (GetSession, GetNick, NumSessions,
	// NumChannels) take the read lock.
	mu *sync.RWMutex

	// nicks maps from nicknames in lower-case (e.g. NickToLower("aLiCe"))
	// to session pointers. Being able to quickly look up sessions based
	// on their nickname is handy to implement IRC commands efficiently.
	nicks map[lcNick]*Session

	// channels is a map containing the properties of every known channel
	// (e.g. topic or modes), keyed by the lower-case channel name.
	channels map[lcChan]*channel

	// ServerPrefix is the prefix for output messages that come from the
	// server, as opposed to from a client.
	ServerPrefix *irc.Prefix

	// ServerCreation is the time at which the IRCServer object was
	// created. Used for the RPL_CREATED message.
	ServerCreation time.Time

	// Config contains the network configuration.
	Config   config.Network
	ConfigMu *sync.RWMutex
}

// NewIRCServer returns a new IRC server.
func NewIRCServer(servername string, serverCreation time.Time) *IRCServer {
	cfg := config.DefaultConfig
	cfg.ServerName = servername
	return &IRCServer{
		channels:       make(map[lcChan]*channel),
		nicks:          make(map[lcNick]*Session),
		sessions:       make(map[uint64]*Session),
		mu:             &sync.RWMutex{},
		ServerPrefix:   &irc.Prefix{Name: servername},
		ServerCreation: serverCreation,
		Config:         cfg,
		ConfigMu:       &sync.RWMutex{},
	}
}

// CreateSession creates a new session (equivalent to an IRC connection).
// host ends up in the host part of the session’s prefix, e.g.
// “alice!alice@host”.
func (i *IRCServer) CreateSession(id uint64, host string, timestamp time.Time) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if got, limit := uint64(len(i.sessions)), i.sessionLimit(); got >= limit && limit > 0 {
		return ErrSessionLimitReached
	}
	s := &Session{
		Id:           id,
		Host:         host,
		Channels:     make(map[lcChan]bool),
		invitedTo:    make(map[lcChan]bool),
		Created:      timestamp.UnixNano(),
		LastActivity: timestamp,
	}
	if i.networkPassword() == "" {
		s.passwordOK = true
	}
	i.sessions[id] = s
	return nil
}

// deleteSessionLocked removes the session from the nick index and from
// all channels and schedules its connection for teardown. The sessions
// map entry survives until ForgetSession so that replies generated in
// the same dispatch (e.g. the QUIT broadcast) can still be routed.
func (i *IRCServer) deleteSessionLocked(s *Session, reply *Replyctx) {
	for lc := range s.Channels {
		c, ok := i.channels[lc]
		if !ok {
			continue
		}
		delete(c.nicks, NickToLower(s.Nick))
		i.maybeDeleteChannelLocked(c)
	}
	delete(i.nicks, NickToLower(s.Nick))
	s.deleted = true
	if reply != nil {
		reply.Closed = append(reply.Closed, s.Id)
	}
}

// ForgetSession drops the session entirely. The event loop calls this
// once the connection’s fd is closed.
func (i *IRCServer) ForgetSession(id uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s, ok := i.sessions[id]
	if !ok {
		return
	}
	if !s.deleted {
		// Hard teardown without a prior QUIT (e.g. read error before the
		// engine saw one); clean up memberships and the nick index.
		i.deleteSessionLocked(s, nil)
		i.ensureOperatorsLocked(s, nil)
	}
	delete(i.sessions, id)
}

// IsValidNickname returns true if the provided nickname is valid
// according to RFC2812 (see https://tools.ietf.org/html/rfc2812#section-2.3.1),
// otherwise false.
func IsValidNickname(nick string) bool {
	return validNickRe.MatchString(nick)
}

func IsValidChannel(channel string) bool {
	return validChannelRe.MatchString(channel)
}

func isChannelName(target string) bool {
	return strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&")
}

// NickToLower converts a nickname to lower case, following RFC1459:
//
// Because of IRC's scandanavian origin, the characters {}|^ are
// considered to be the lower case equivalents of the characters []\~,
// respectively. This is a critical issue when determining the
// equivalence of two nicknames.
func NickToLower(nick string) lcNick {
	r := strings.NewReplacer("[", "{", "]", "}", "\\", "|", "~", "^")
	return lcNick(r.Replace(strings.ToLower(nick)))
}

// ChanToLower converts a channel to lower case.
func ChanToLower(channelname string) lcChan {
	return lcChan(strings.ToLower(channelname))
}

// ensureOperatorsLocked runs the operator handoff for every channel the
// (just removed) session was in. Kept separate from deleteSessionLocked
// so that QUIT/KILL can order the handoff broadcast after the QUIT
// broadcast.
func (i *IRCServer) ensureOperatorsLocked(s *Session, reply *Replyctx) {
	for lc := range s.Channels {
		if c, ok := i.channels[lc]; ok {
			i.ensureOperatorLocked(c, reply)
		}
	}
}

// ensureOperatorLocked promotes the alphabetically first member to
// channel operator when none is left, so that a channel never ends up
// without anyone able to administer it. With a nil reply the promotion
// is silent (hard teardown without a dispatch in flight).
func (i *IRCServer) ensureOperatorLocked(c *channel, reply *Replyctx) {
	if len(c.nicks) == 0 {
		return
	}
	for _, perms := range c.nicks {
		if perms[chanop] {
			return
		}
	}
	nicks := make([]string, 0, len(c.nicks))
	for nick := range c.nicks {
		nicks = append(nicks, string(nick))
	}
	sort.Strings(nicks)
	promoted := lcNick(nicks[0])
	c.nicks[promoted][chanop] = true
	if reply != nil {
		i.sendChannel(c, reply, &irc.Message{
			Prefix:  i.ServerPrefix,
			Command: irc.MODE,
			Params:  []string{c.name, "+o", i.nicks[promoted].Nick},
		})
	}
}

func (i *IRCServer) maybeDeleteChannelLocked(c *channel) {
	if len(c.nicks) > 0 {
		return
	}
	lc := ChanToLower(c.name)
	delete(i.channels, lc)
	for _, s := range i.sessions {
		delete(s.invitedTo, lc)
	}
}

func (i *IRCServer) networkPassword() string {
	i.ConfigMu.RLock()
	defer i.ConfigMu.RUnlock()
	return i.Config.Password
}

func (i *IRCServer) sessionLimit() uint64 {
	i.ConfigMu.RLock()
	defer i.ConfigMu.RUnlock()
	return i.Config.MaxSessions
}

func (i *IRCServer) channelLimit() uint64 {
	i.ConfigMu.RLock()
	defer i.ConfigMu.RUnlock()
	return i.Config.MaxChannels
}

func (i *IRCServer) channelsPerSession() int {
	i.ConfigMu.RLock()
	defer i.ConfigMu.RUnlock()
	return i.Config.ChannelsPerSession
}

// commandsAllowedBeforeRegistration may be sent before NICK/USER
// completed registration; everything else gets ERR_NOTREGISTERED.
var commandsAllowedBeforeRegistration = map[string]bool{
	irc.PASS: true,
	irc.NICK: true,
	irc.USER: true,
	irc.QUIT: true,
	irc.PING: true,
	irc.PONG: true,
	"CAP":    true,
}

// ProcessMessage modifies state in response to 'message' and returns zero
// or more IRC messages in response to 'message', each tagged with the set
// of sessions it is interesting for.
func (i *IRCServer) ProcessMessage(msg *wire.Message, ircmsg *irc.Message) *Replyctx {
	i.mu.Lock()
	defer i.mu.Unlock()

	// alias for convenience
	s, ok := i.sessions[msg.Session]
	if !ok || s.deleted {
		return &Replyctx{msgid: msg.Id.Id}
	}
	s.LastActivity = msg.Timestamp()
	reply := &Replyctx{msgid: msg.Id.Id, session: s}

	if ircmsg == nil {
		i.sendUser(s, reply, &irc.Message{
			Prefix:  i.ServerPrefix,
			Command: irc.ERR_UNKNOWNCOMMAND,
			Params:  []string{s.Nick, "Unknown command"},
		})
		return reply
	}

	command := strings.ToUpper(ircmsg.Command)

	messagesProcessed.WithLabelValues(command).Inc()

	if !s.loggedIn && !commandsAllowedBeforeRegistration[command] {
		i.sendUser(s, reply, &irc.Message{
			Prefix:  i.ServerPrefix,
			Command: irc.ERR_NOTREGISTERED,
			Params:  []string{command, "You have not registered"},
		})
		if s.LastActivity.Sub(time.Unix(0, s.Created)) > 10*time.Minute {
			i.sendUser(s, reply, &irc.Message{
				Command: irc.ERROR,
				Params:  []string{"Closing Link: You have not registered within 10 minutes"},
			})
			i.deleteSessionLocked(s, reply)
		}
		return reply
	}

	cmd, ok := Commands[command]
	if !ok {
		i.sendUser(s, reply, &irc.Message{
			Prefix:  i.ServerPrefix,
			Command: irc.ERR_UNKNOWNCOMMAND,
			Params:  []string{s.Nick, command, "Unknown command"},
		})
		return reply
	}

	if len(ircmsg.Params) < cmd.MinParams {
		i.sendUser(s, reply, &irc.Message{
			Prefix:  i.ServerPrefix,
			Command: irc.ERR_NEEDMOREPARAMS,
			Params:  []string{s.Nick, command, "Not enough parameters"},
		})
		return reply
	}

	cmd.Func(i, s, reply, ircmsg)
	return reply
}

// GetSession returns a pointer to the session specified by 'id'.
func (i *IRCServer) GetSession(id uint64) (*Session, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if s, ok := i.sessions[id]; ok {
		return s, nil
	}
	return nil, ErrNoSuchSession
}

// GetNick returns the nickname of |id|, or the empty string if that
// session does not exist.
func (i *IRCServer) GetNick(id uint64) string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if s, ok := i.sessions[id]; ok {
		return s.Nick
	}
	return ""
}

// NumSessions returns the current number of sessions.
func (i *IRCServer) NumSessions() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.sessions)
}

// NumChannels returns the current number of channels.
func (i *IRCServer) NumChannels() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.channels)
}

// Replyctx is a reply context, i.e. information necessary when replying
// to an IRC message. A reply context object will be passed to all cmd*
// functions and the send* functions use it to keep track of the replyid
// for example.
type Replyctx struct {
	msgid    uint64
	replyid  uint64
	session  *Session
	Messages []*wire.Message

	// Closed lists the sessions whose connection must be closed once
	// their pending output has been flushed.
	Closed []uint64

	// lastmsg tracks the last sent message, so that send() can return the
	// same message multiple times when being called in a continuation.
	lastmsg *irc.Message
}

// send converts |msg| into a wire.Message and appends it to |reply|.
func (i *IRCServer) send(reply *Replyctx, msg *irc.Message) *wire.Message {
	if reply.lastmsg == msg {
		return reply.Messages[len(reply.Messages)-1]
	}

	reply.replyid++

	wiremsg := &wire.Message{
		Id: wire.Id{
			Id:    reply.msgid,
			Reply: reply.replyid,
		},
		Data:           string(msg.Bytes()),
		InterestingFor: make(map[uint64]bool),
	}

	reply.Messages = append(reply.Messages, wiremsg)
	reply.lastmsg = msg

	return wiremsg
}

// sendUser sends |msg| to |user|.
func (i *IRCServer) sendUser(user *Session, reply *Replyctx, msg *irc.Message) *irc.Message {
	wiremsg := i.send(reply, msg)
	wiremsg.InterestingFor[user.Id] = true
	return msg
}

// sendCommonChannels sends |msg| to all users which are in one of the
// channels on which |user| is in.
func (i *IRCServer) sendCommonChannels(user *Session, reply *Replyctx, msg *irc.Message) *irc.Message {
	wiremsg := i.send(reply, msg)
	for channelname := range user.Channels {
		c, ok := i.channels[channelname]
		if !ok {
			continue
		}
		for nick := range c.nicks {
			wiremsg.InterestingFor[i.nicks[nick].Id] = true
		}
	}
	return msg
}

// sendChannel sends |msg| to all users who are in |c|.
func (i *IRCServer) sendChannel(c *channel, reply *Replyctx, msg *irc.Message) *irc.Message {
	wiremsg := i.send(reply, msg)
	for nick := range c.nicks {
		wiremsg.InterestingFor[i.nicks[nick].Id] = true
	}
	return msg
}

// sendChannelButOne sends |msg| to all users who are in |c|, except for
// |user|.
func (i *IRCServer) sendChannelButOne(c *channel, user *Session, reply *Replyctx, msg *irc.Message) *irc.Message {
	wiremsg := i.send(reply, msg)
	for nick := range c.nicks {
		session := i.nicks[nick]
		if session == user {
			continue
		}
		wiremsg.InterestingFor[session.Id] = true
	}
	return msg
}
