//go:build linux

// Package server contains the event loop: a single-threaded,
// level-triggered readiness loop that owns the listening socket, every
// client connection and the liveness timers, and feeds complete lines to
// the IRC command engine.
package server

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stapelberg/glog"
	"golang.org/x/sys/unix"

	"github.com/loopirc/loopirc/internal/ircserver"
	"github.com/loopirc/loopirc/internal/poller"
	"github.com/loopirc/loopirc/internal/wire"

	"gopkg.in/sorcix/irc.v2"
)

var (
	connectionsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: "loop",
			Name:      "connections_accepted",
			Help:      "Number of accepted client connections",
		},
	)

	connectionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "loop",
			Name:      "connections_closed",
			Help:      "Number of closed client connections by reason",
		},
		[]string{"reason"},
	)

	bytesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: "loop",
			Name:      "bytes_read",
			Help:      "Number of bytes read from client connections",
		},
	)

	bytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: "loop",
			Name:      "bytes_written",
			Help:      "Number of bytes written to client connections",
		},
	)
)

func init() {
	prometheus.MustRegister(connectionsAccepted)
	prometheus.MustRegister(connectionsClosed)
	prometheus.MustRegister(bytesRead)
	prometheus.MustRegister(bytesWritten)
}

type Server struct {
	ircd     *ircserver.IRCServer
	poller   *poller.Poller
	listenFd int

	conns    map[int]*conn    // keyed by fd
	sessions map[uint64]*conn // keyed by session id

	nextSessionID uint64
	msgid         uint64

	pingInterval time.Duration
	pingTimeout  time.Duration

	// clock is time.Now except in tests, which drive liveness with a
	// synthetic clock.
	clock func() time.Time

	lastTick time.Time

	events  []poller.Event
	readBuf [4096]byte

	// removals collects connections marked for teardown during the
	// current iteration.
	removals []*conn
}

// New binds the listening socket (non-blocking) and registers it with a
// fresh epoll instance.
func New(ircd *ircserver.IRCServer, port int) (*Server, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %v", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt: %v", err)
	}
	// Dual-stack: accept IPv4-mapped connections as well.
	unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
	if err := unix.Bind(fd, &unix.SockaddrInet6{Port: port}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %v", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %v", err)
	}

	p, err := poller.New()
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := p.Add(fd, true, false); err != nil {
		unix.Close(fd)
		p.Close()
		return nil, err
	}

	ircd.ConfigMu.RLock()
	pingInterval := ircd.Config.PingIntervalOrDefault()
	pingTimeout := ircd.Config.PingTimeoutOrDefault()
	ircd.ConfigMu.RUnlock()

	return &Server{
		ircd:         ircd,
		poller:       p,
		listenFd:     fd,
		conns:        make(map[int]*conn),
		sessions:     make(map[uint64]*conn),
		pingInterval: pingInterval,
		pingTimeout:  pingTimeout,
		clock:        time.Now,
		events:       make([]poller.Event, 64),
	}, nil
}

// Run drives the loop until stop is closed. Every iteration waits on the
// poller (bounded by the next liveness deadline, at most one second),
// services ready fds, dispatches the complete lines that arrived, runs
// the liveness tick and reaps connections marked for removal.
func (s *Server) Run(stop <-chan struct{}) error {
	s.lastTick = s.clock()
	for {
		select {
		case <-stop:
			s.shutdown()
			return nil
		default:
		}

		timeout := time.Second - s.clock().Sub(s.lastTick)
		if timeout < 0 {
			timeout = 0
		}
		n, err := s.poller.Wait(s.events, timeout)
		if err != nil {
			return fmt.Errorf("poller wait: %v", err)
		}

		for _, ev := range s.events[:n] {
			if ev.FD == s.listenFd {
				s.acceptAll()
				continue
			}
			c, ok := s.conns[ev.FD]
			if !ok {
				continue
			}
			if ev.Err {
				c.removeReason = "Connection error"
				s.scheduleRemoval(c)
				continue
			}
			if ev.Readable {
				s.handleRead(c)
			}
			if ev.Writable && c.removeReason == "" {
				s.flush(c)
			}
		}

		if now := s.clock(); now.Sub(s.lastTick) >= time.Second {
			s.livenessTick(now)
			s.lastTick = now
		}

		s.reap()
	}
}

func (s *Server) acceptAll() {
	for {
		fd, sa, err := unix.Accept4(s.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			glog.Errorf("accept: %v", err)
			return
		}

		host := hostFromSockaddr(sa)
		now := s.clock()
		s.nextSessionID++
		id := s.nextSessionID
		if err := s.ircd.CreateSession(id, host, now); err != nil {
			unix.Write(fd, []byte("ERROR :Closing Link: "+err.Error()+"\r\n"))
			unix.Close(fd)
			continue
		}
		c := &conn{
			fd:        fd,
			sessionID: id,
			host:      host,
			lastRecv:  now,
		}
		if err := s.poller.Add(fd, true, false); err != nil {
			glog.Errorf("poller add: %v", err)
			unix.Close(fd)
			s.ircd.ForgetSession(id)
			continue
		}
		s.conns[fd] = c
		s.sessions[id] = c
		connectionsAccepted.Inc()
		glog.Infof("accepted connection from %s (session %d)", host, id)
	}
}

func hostFromSockaddr(sa unix.Sockaddr) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(sa.Addr[:]).String()
	case *unix.SockaddrInet6:
		ip := net.IP(sa.Addr[:])
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
		return ip.String()
	}
	return "unknown"
}

func (s *Server) handleRead(c *conn) {
	for {
		n, err := unix.Read(c.fd, s.readBuf[:])
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			break
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			c.removeReason = "Read error"
			s.scheduleRemoval(c)
			return
		}
		if n == 0 {
			c.removeReason = "Connection closed"
			s.scheduleRemoval(c)
			return
		}
		bytesRead.Add(float64(n))
		now := s.clock()
		c.lastRecv = now
		c.pingSent = time.Time{}
		c.appendInput(s.readBuf[:n])
		// Frame and dispatch after every chunk so that complete lines
		// are consumed before they can pile up against the inbuf cap.
		s.dispatch(c)
		if c.removeReason != "" || c.closeAfterFlush {
			return
		}
	}
}

// dispatch runs every complete line in c's inbound buffer through the
// engine and routes the replies.
func (s *Server) dispatch(c *conn) {
	for c.removeReason == "" && !c.closeAfterFlush {
		line, ok := c.nextLine()
		if c.overflow417 {
			c.overflow417 = false
			s.sendRaw(c, &irc.Message{
				Prefix:  s.ircd.ServerPrefix,
				Command: "417",
				Params:  []string{s.nickOrStar(c), "Input line was too long"},
			})
		}
		if !ok {
			break
		}
		s.msgid++
		msg := &wire.Message{
			Id:       wire.Id{Id: s.msgid},
			Session:  c.sessionID,
			UnixNano: s.clock().UnixNano(),
			Data:     line,
		}
		s.route(s.ircd.ProcessMessage(msg, irc.ParseMessage(line)))
	}
}

func (s *Server) nickOrStar(c *conn) string {
	if nick := s.ircd.GetNick(c.sessionID); nick != "" {
		return nick
	}
	return "*"
}

// route appends each reply to the outbound buffer of every connection
// the engine tagged it for. A recipient over its send queue cap is
// marked for removal without aborting the broadcast.
func (s *Server) route(reply *ircserver.Replyctx) {
	for _, msg := range reply.Messages {
		data := append([]byte(msg.Data), '\r', '\n')
		for id := range msg.InterestingFor {
			rc, ok := s.sessions[id]
			if !ok {
				continue
			}
			if !rc.enqueue(data) {
				s.scheduleRemoval(rc)
				continue
			}
			s.armWrite(rc)
		}
	}
	for _, id := range reply.Closed {
		if rc, ok := s.sessions[id]; ok {
			rc.closeAfterFlush = true
			if len(rc.outbuf) == 0 {
				s.scheduleRemoval(rc)
			}
		}
	}
}

// sendRaw enqueues a server-originated message outside the engine (the
// 417 reply).
func (s *Server) sendRaw(c *conn, msg *irc.Message) {
	if !c.enqueue(append(msg.Bytes(), '\r', '\n')) {
		s.scheduleRemoval(c)
		return
	}
	s.armWrite(c)
}

func (s *Server) armWrite(c *conn) {
	if c.wantWrite || len(c.outbuf) == 0 {
		return
	}
	if err := s.poller.Mod(c.fd, true, true); err == nil {
		c.wantWrite = true
	}
}

// flush writes as much pending output as the kernel accepts. Partial
// writes keep the remainder buffered with the fd armed for
// write-readiness.
func (s *Server) flush(c *conn) {
	for len(c.outbuf) > 0 {
		n, err := unix.Write(c.fd, c.outbuf)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			s.armWrite(c)
			return
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			c.removeReason = "Write error"
			s.scheduleRemoval(c)
			return
		}
		bytesWritten.Add(float64(n))
		c.outbuf = c.outbuf[n:]
	}
	if c.wantWrite {
		if err := s.poller.Mod(c.fd, true, false); err == nil {
			c.wantWrite = false
		}
	}
	if c.closeAfterFlush {
		c.removeReason = "Client quit"
		s.scheduleRemoval(c)
	}
}

// livenessTick sends a PING to every connection that has been idle for
// longer than the ping interval, and removes connections whose PING went
// unanswered for longer than the ping timeout.
func (s *Server) livenessTick(now time.Time) {
	for _, c := range s.conns {
		if c.removeReason != "" {
			continue
		}
		if c.pingSent.IsZero() {
			if now.Sub(c.lastRecv) > s.pingInterval {
				c.pingToken = uuid.NewString()
				if c.enqueue([]byte("PING :" + c.pingToken + "\r\n")) {
					s.armWrite(c)
				} else {
					s.scheduleRemoval(c)
					continue
				}
				c.pingSent = now
			}
		} else if now.Sub(c.pingSent) > s.pingTimeout {
			c.removeReason = "Ping timeout"
			s.scheduleRemoval(c)
		}
	}
}

func (s *Server) scheduleRemoval(c *conn) {
	if c.removeReason == "" {
		c.removeReason = "Client quit"
	}
	for _, pending := range s.removals {
		if pending == c {
			return
		}
	}
	s.removals = append(s.removals, c)
}

// reap tears down every connection marked for removal. The synthetic
// QUIT lets members of shared channels see why the user vanished; for a
// session that already quit through the engine it is a no-op.
func (s *Server) reap() {
	for len(s.removals) > 0 {
		c := s.removals[0]
		s.removals = s.removals[1:]
		if _, ok := s.conns[c.fd]; !ok {
			continue
		}

		delete(s.conns, c.fd)
		delete(s.sessions, c.sessionID)

		quitline := "QUIT :" + c.removeReason
		s.msgid++
		msg := &wire.Message{
			Id:       wire.Id{Id: s.msgid},
			Session:  c.sessionID,
			UnixNano: s.clock().UnixNano(),
			Data:     quitline,
		}
		s.route(s.ircd.ProcessMessage(msg, irc.ParseMessage(quitline)))

		// Best effort: a quitting client with pending output gets one
		// final synchronous flush before the fd goes away.
		if len(c.outbuf) > 0 && c.removeReason != "Connection error" {
			if n, err := unix.Write(c.fd, c.outbuf); err == nil {
				bytesWritten.Add(float64(n))
			}
		}

		s.poller.Del(c.fd)
		unix.Close(c.fd)
		s.ircd.ForgetSession(c.sessionID)
		connectionsClosed.WithLabelValues(c.removeReason).Inc()
		glog.Infof("closed connection from %s (session %d): %s", c.host, c.sessionID, c.removeReason)
	}
}

func (s *Server) shutdown() {
	for _, c := range s.conns {
		unix.Write(c.fd, []byte("ERROR :Closing Link: Server shutting down\r\n"))
		s.poller.Del(c.fd)
		unix.Close(c.fd)
		s.ircd.ForgetSession(c.sessionID)
	}
	s.conns = make(map[int]*conn)
	s.sessions = make(map[uint64]*conn)
	unix.Close(s.listenFd)
	s.poller.Close()
}
