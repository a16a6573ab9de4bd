//go:build linux

// Package poller wraps a level-triggered epoll instance behind the small
// capability set the event loop needs: add/mod/del an fd and a blocking
// wait that yields ready fds with their readiness bits.
package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

// Event is one ready file descriptor as reported by Wait.
type Event struct {
	FD       int
	Readable bool
	Writable bool
	Err      bool
}

type Poller struct {
	epfd int
	buf  []unix.EpollEvent
}

func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Poller{epfd: epfd}, nil
}

func (p *Poller) ctl(op, fd int, readable, writable bool) error {
	var events uint32
	if readable {
		events |= unix.EPOLLIN
	}
	if writable {
		events |= unix.EPOLLOUT
	}
	return unix.EpollCtl(p.epfd, op, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	})
}

// Add registers fd with the given interest set.
func (p *Poller) Add(fd int, readable, writable bool) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, readable, writable)
}

// Mod replaces the interest set of an already registered fd.
func (p *Poller) Mod(fd int, readable, writable bool) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, readable, writable)
}

// Del unregisters fd.
func (p *Poller) Del(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
}

// Wait blocks until at least one registered fd is ready or the timeout
// elapses, filling events and returning how many are valid. A negative
// timeout blocks indefinitely. EINTR is retried internally.
func (p *Poller) Wait(events []Event, timeout time.Duration) (int, error) {
	if cap(p.buf) < len(events) {
		p.buf = make([]unix.EpollEvent, len(events))
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	var n int
	var err error
	for {
		n, err = unix.EpollWait(p.epfd, p.buf[:len(events)], ms)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return 0, err
	}
	for idx := 0; idx < n; idx++ {
		ev := p.buf[idx]
		events[idx] = Event{
			FD:       int(ev.Fd),
			Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Err:      ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		}
	}
	return n, nil
}

func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}
