package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type IRCOp struct {
	Name     string
	Password string
}

// IRC is the IRC-related configuration.
type IRC struct {
	Operators []IRCOp
}

// duration is a TOML-friendly wrapper so intervals can be written as
// "90s" or "2m" in the config file.
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err == nil {
		*d = duration(parsed)
	}
	return err
}

// Network is the network configuration, i.e. the top level.
type Network struct {
	IRC IRC

	// ServerName is used as the prefix of all server-originated messages,
	// e.g. "ircserver" in ":ircserver 001 nick :Welcome".
	ServerName string

	// Password must be supplied by clients via PASS before registering.
	// Empty means no password is required.
	Password string

	// Motd is sent line by line in the 372 replies after registration and
	// on MOTD. An empty Motd results in 422 ERR_NOMOTD.
	Motd []string

	// Time after which an idle session is sent a PING, and time after an
	// unanswered PING at which the session is terminated.
	PingInterval duration
	PingTimeout  duration

	// MaxSessions and MaxChannels are process-wide limits. 0 means
	// unlimited.
	MaxSessions uint64
	MaxChannels uint64

	// ChannelsPerSession limits how many channels a single session can be
	// in at the same time (ERR_TOOMANYCHANNELS).
	ChannelsPerSession int
}

func (n *Network) PingIntervalOrDefault() time.Duration {
	if n.PingInterval == 0 {
		return 60 * time.Second
	}
	return time.Duration(n.PingInterval)
}

func (n *Network) PingTimeoutOrDefault() time.Duration {
	if n.PingTimeout == 0 {
		return 60 * time.Second
	}
	return time.Duration(n.PingTimeout)
}

var DefaultConfig = Network{
	ServerName:         "ircserver",
	Motd:               []string{"Welcome to this IRC server!"},
	ChannelsPerSession: 50,
}

func FromString(input string) (Network, error) {
	cfg := DefaultConfig
	_, err := toml.Decode(input, &cfg)
	return cfg, err
}

func FromFile(path string) (Network, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig, err
	}
	return FromString(string(b))
}
