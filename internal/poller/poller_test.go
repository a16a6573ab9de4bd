//go:build linux

package poller

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestReadiness(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	local, remote := socketpair(t)
	if err := p.Add(local, true, false); err != nil {
		t.Fatalf("Add: %v", err)
	}

	events := make([]Event, 4)

	// Nothing to read yet: the wait times out.
	n, err := p.Wait(events, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 0 {
		t.Fatalf("Wait returned %d events, want 0", n)
	}

	if _, err := unix.Write(remote, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err = p.Wait(events, time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 1 || events[0].FD != local || !events[0].Readable {
		t.Fatalf("Wait: got %+v (n=%d), want readable fd %d", events[:n], n, local)
	}

	// Level-triggered: the fd stays readable until drained.
	n, _ = p.Wait(events, 10*time.Millisecond)
	if n != 1 || !events[0].Readable {
		t.Fatalf("fd no longer readable before drain")
	}

	buf := make([]byte, 16)
	unix.Read(local, buf)
	n, _ = p.Wait(events, 10*time.Millisecond)
	if n != 0 {
		t.Fatalf("fd still ready after drain: %+v", events[:n])
	}
}

func TestWriteInterest(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	local, _ := socketpair(t)
	if err := p.Add(local, true, false); err != nil {
		t.Fatalf("Add: %v", err)
	}

	events := make([]Event, 4)
	if n, _ := p.Wait(events, 10*time.Millisecond); n != 0 {
		t.Fatalf("unexpected readiness before Mod: %+v", events[:n])
	}

	// An idle socket becomes ready as soon as we ask for writability.
	if err := p.Mod(local, true, true); err != nil {
		t.Fatalf("Mod: %v", err)
	}
	n, err := p.Wait(events, time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 1 || !events[0].Writable {
		t.Fatalf("Wait after Mod: got %+v (n=%d), want writable", events[:n], n)
	}

	if err := p.Del(local); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if n, _ := p.Wait(events, 10*time.Millisecond); n != 0 {
		t.Fatalf("events after Del: %+v", events[:n])
	}
}

func TestHangup(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	local, remote := socketpair(t)
	if err := p.Add(local, true, false); err != nil {
		t.Fatalf("Add: %v", err)
	}

	unix.Close(remote)

	events := make([]Event, 4)
	n, err := p.Wait(events, time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 1 || !(events[0].Err || events[0].Readable) {
		t.Fatalf("no hangup/readable event after peer close: %+v (n=%d)", events[:n], n)
	}
}
