package config

import (
	"testing"
	"time"
)

func TestFromString(t *testing.T) {
	cfg, err := FromString(`
ServerName = "irc.example.net"
Password = "hunter2"
Motd = ["line one", "line two"]
PingInterval = "90s"
PingTimeout = "2m"
MaxSessions = 100
ChannelsPerSession = 10

[[IRC.Operators]]
Name = "admin"
Password = "sesame"
`)
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}
	if got, want := cfg.ServerName, "irc.example.net"; got != want {
		t.Fatalf("ServerName: got %q, want %q", got, want)
	}
	if got, want := cfg.PingIntervalOrDefault(), 90*time.Second; got != want {
		t.Fatalf("PingInterval: got %v, want %v", got, want)
	}
	if got, want := cfg.PingTimeoutOrDefault(), 2*time.Minute; got != want {
		t.Fatalf("PingTimeout: got %v, want %v", got, want)
	}
	if len(cfg.Motd) != 2 || cfg.Motd[0] != "line one" {
		t.Fatalf("Motd: got %v", cfg.Motd)
	}
	if len(cfg.IRC.Operators) != 1 || cfg.IRC.Operators[0].Name != "admin" {
		t.Fatalf("Operators: got %v", cfg.IRC.Operators)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromString("")
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}
	if got, want := cfg.ServerName, "ircserver"; got != want {
		t.Fatalf("ServerName: got %q, want %q", got, want)
	}
	if got, want := cfg.PingIntervalOrDefault(), 60*time.Second; got != want {
		t.Fatalf("PingInterval default: got %v, want %v", got, want)
	}
	if got, want := cfg.ChannelsPerSession, 50; got != want {
		t.Fatalf("ChannelsPerSession default: got %d, want %d", got, want)
	}
	if len(cfg.Motd) == 0 {
		t.Fatalf("default Motd is empty")
	}
}
