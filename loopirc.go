// loopirc is a single-process IRC server: one readiness-driven event
// loop, no threads on the hot path, no persistence.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stapelberg/glog"

	"github.com/loopirc/loopirc/config"
	"github.com/loopirc/loopirc/internal/ircserver"
	"github.com/loopirc/loopirc/internal/server"
)

var (
	configPath = flag.String("config",
		"",
		"Path to a TOML configuration file (server name, MOTD, operators, limits).")

	metricsListen = flag.String("metrics_listen",
		"",
		`If non-empty, a [host]:port to serve Prometheus metrics on (e.g. "localhost:9090").`)
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] [<port> [<password>]]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	// Defaults per the historical CLI contract: with no arguments the
	// server listens on 6667 with password "42"; with only a port, no
	// password is required.
	port := 6667
	password := ""
	args := flag.Args()
	switch len(args) {
	case 0:
		password = "42"
	case 2:
		password = args[1]
		fallthrough
	case 1:
		var err error
		port, err = strconv.Atoi(args[0])
		if err != nil || port < 1 || port > 65535 {
			fmt.Fprintf(os.Stderr, "invalid port %q\n", args[0])
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(1)
	}

	cfg := config.DefaultConfig
	if *configPath != "" {
		var err error
		if cfg, err = config.FromFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "could not load %q: %v\n", *configPath, err)
			os.Exit(1)
		}
	}
	cfg.Password = password

	defer glog.Flush()

	ircd := ircserver.NewIRCServer(cfg.ServerName, time.Now())
	ircd.ConfigMu.Lock()
	ircd.Config = cfg
	ircd.ConfigMu.Unlock()

	srv, err := server.New(ircd, port)
	if err != nil {
		glog.Errorf("could not listen on port %d: %v", port, err)
		glog.Flush()
		os.Exit(2)
	}
	glog.Infof("listening on port %d (password required: %v)", port, password != "")

	if *metricsListen != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsListen, nil); err != nil {
				glog.Errorf("metrics listener: %v", err)
			}
		}()
	}

	stop := make(chan struct{})
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigc
		glog.Infof("received %v, shutting down", sig)
		close(stop)
	}()

	if err := srv.Run(stop); err != nil {
		glog.Errorf("event loop: %v", err)
		glog.Flush()
		os.Exit(2)
	}
}
