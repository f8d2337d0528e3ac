//go:build linux

package runtime

import (
	"testing"

	"golang.org/x/sys/unix"
)

func newSocketPair(t *testing.T) (local, peer int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %s", err)
	}
	unix.SetNonblock(fds[0], true)
	unix.SetNonblock(fds[1], true)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

// TestWatchFDSameFdTwiceKeepsBothRegistrations: a read and a write interest
// pending on one connection at once must be tracked as two independent
// records (spec §4.8's dup-on-EEXIST behavior), not last-write-wins.
func TestWatchFDSameFdTwiceKeepsBothRegistrations(t *testing.T) {
	vm := New()
	defer vm.Close()
	if vm.poller == nil {
		t.Skip("no epoll instance available")
	}

	local, peer := newSocketPair(t)

	readFired, writeFired := false, false
	if err := vm.watchFD(int32(local), EventRead, func(vm *VM, events uint32) { readFired = true }); err != nil {
		t.Fatalf("first watch: %s", err)
	}
	if err := vm.watchFD(int32(local), EventWrite, func(vm *VM, events uint32) { writeFired = true }); err != nil {
		t.Fatalf("second watch on the same fd: %s", err)
	}
	if got := len(vm.poller.watches); got != 2 {
		t.Fatalf("watch records = %d, want 2 (the second registration must not displace the first)", got)
	}
	if vm.outstandingIO != 2 {
		t.Fatalf("outstandingIO = %d, want 2", vm.outstandingIO)
	}

	if _, err := unix.Write(peer, []byte("ping")); err != nil {
		t.Fatalf("peer write: %s", err)
	}

	// local is now both readable (the peer wrote) and writable (empty send
	// buffer), so both one-shot callbacks fire.
	for i := 0; i < 10 && (!readFired || !writeFired); i++ {
		if err := vm.pollIO(10); err != nil {
			t.Fatalf("pollIO: %s", err)
		}
	}
	if !readFired || !writeFired {
		t.Fatalf("readFired=%v writeFired=%v, want both", readFired, writeFired)
	}
	if vm.outstandingIO != 0 {
		t.Fatalf("outstandingIO = %d after both callbacks fired, want 0", vm.outstandingIO)
	}
}

// TestUnwatchFDRemovesDupRegistrations: closing a socket must tear down both
// its own record and any dup record created for a double registration, or
// outstandingIO never drains back to zero.
func TestUnwatchFDRemovesDupRegistrations(t *testing.T) {
	vm := New()
	defer vm.Close()
	if vm.poller == nil {
		t.Skip("no epoll instance available")
	}

	local, _ := newSocketPair(t)

	if err := vm.watchFD(int32(local), EventRead, func(vm *VM, events uint32) {}); err != nil {
		t.Fatalf("first watch: %s", err)
	}
	if err := vm.watchFD(int32(local), EventWrite, func(vm *VM, events uint32) {}); err != nil {
		t.Fatalf("second watch: %s", err)
	}

	vm.unwatchFD(int32(local))
	if got := len(vm.poller.watches); got != 0 {
		t.Fatalf("watch records after unwatch = %d, want 0", got)
	}
	if vm.outstandingIO != 0 {
		t.Fatalf("outstandingIO after unwatch = %d, want 0", vm.outstandingIO)
	}
}

// TestSchedulerDrainsIOWhileActiveListBusy: the scheduler's step order
// (spec §4.7) polls readiness non-blockingly before returning the active
// head, so a completed I/O registration fires even while runnable
// coroutines keep the active list non-empty -- the state a yield-heavy
// workload holds the scheduler in indefinitely.
func TestSchedulerDrainsIOWhileActiveListBusy(t *testing.T) {
	vm := New()
	defer vm.Close()
	if vm.poller == nil {
		t.Skip("no epoll instance available")
	}

	local, peer := newSocketPair(t)

	fired := false
	if err := vm.watchFD(int32(local), EventRead, func(vm *VM, events uint32) { fired = true }); err != nil {
		t.Fatalf("watch: %s", err)
	}
	if _, err := unix.Write(peer, []byte("x")); err != nil {
		t.Fatalf("peer write: %s", err)
	}

	// A runnable coroutine keeps the active list non-empty throughout.
	busy := vm.newCoroutine()
	vm.spliceActive(busy, nil)

	for i := 0; i < 50 && !fired; i++ {
		ok, err := vm.scheduleNext()
		if err != nil {
			t.Fatalf("scheduleNext: %s", err)
		}
		if !ok {
			t.Fatalf("scheduleNext reported no work with a coroutine still active")
		}
		if vm.current != busy {
			t.Fatalf("scheduleNext must keep returning the active head")
		}
	}
	if !fired {
		t.Fatalf("a completed I/O registration must be drained while the active list stays busy")
	}
	if vm.outstandingIO != 0 {
		t.Fatalf("outstandingIO = %d after the callback fired, want 0", vm.outstandingIO)
	}
}
