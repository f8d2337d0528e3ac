//go:build linux

package runtime

import (
	"golang.org/x/sys/unix"
)

// poller wraps one epoll instance (spec §4.8: "a single epoll instance
// shared by every socket-native call"). Each registered fd carries a
// one-shot callback invoked from the scheduler's poll step when the fd
// becomes ready; the poll step removes the record before invoking the
// callback, and unwatchFD removes records whose callback has not fired yet.
type poller struct {
	epfd    int
	watches map[int32]*ioWatch
}

type ioWatch struct {
	// fd is the descriptor actually registered with epoll; origFd is the one
	// the native passed in. They differ when the registration collided with
	// an existing one (EEXIST) and fd is a dup of origFd, in which case
	// closeOnDelete records that the dup must be closed when this record is
	// removed (spec §4.8).
	fd            int32
	origFd        int32
	closeOnDelete bool
	ready         func(vm *VM, events uint32)
}

// EventRead/EventWrite are the epoll interest flags socket natives pass to
// watchFD, exposed under platform-neutral names so natives.go needs no
// build tags of its own.
const (
	EventRead  = unix.EPOLLIN
	EventWrite = unix.EPOLLOUT
)

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &poller{epfd: fd, watches: make(map[int32]*ioWatch)}, nil
}

func (p *poller) close() error {
	return unix.Close(p.epfd)
}

// watchFD registers fd for the given epoll event mask, invoking ready exactly
// once the next time the scheduler observes it become readable/writable.
// A second registration for an fd already in the epoll set (EEXIST, e.g. a
// read and a write interest pending on one connection at once) duplicates
// the fd and registers the dup instead, marking it for close when the record
// is deleted (spec §4.8), so both registrations are tracked independently.
func (vm *VM) watchFD(fd int32, events uint32, ready func(vm *VM, events uint32)) error {
	regFd := fd
	closeOnDelete := false
	ev := &unix.EpollEvent{Events: events | unix.EPOLLONESHOT, Fd: regFd}
	err := unix.EpollCtl(vm.poller.epfd, unix.EPOLL_CTL_ADD, int(regFd), ev)
	if err == unix.EEXIST {
		dupFd, dupErr := unix.Dup(int(fd))
		if dupErr != nil {
			return dupErr
		}
		unix.SetNonblock(dupFd, true)
		regFd = int32(dupFd)
		closeOnDelete = true
		ev = &unix.EpollEvent{Events: events | unix.EPOLLONESHOT, Fd: regFd}
		if err := unix.EpollCtl(vm.poller.epfd, unix.EPOLL_CTL_ADD, int(regFd), ev); err != nil {
			unix.Close(dupFd)
			return err
		}
	} else if err != nil {
		return err
	}
	vm.poller.watches[regFd] = &ioWatch{fd: regFd, origFd: fd, closeOnDelete: closeOnDelete, ready: ready}
	vm.outstandingIO++
	return nil
}

// unwatchFD removes every registration rooted in fd from the epoll set --
// the fd's own record and any dup records created for double registrations
// -- used when a socket is closed or a pending operation is abandoned.
func (vm *VM) unwatchFD(fd int32) {
	for key, w := range vm.poller.watches {
		if key != fd && w.origFd != fd {
			continue
		}
		delete(vm.poller.watches, key)
		unix.EpollCtl(vm.poller.epfd, unix.EPOLL_CTL_DEL, int(key), nil)
		if w.closeOnDelete {
			unix.Close(int(key))
		}
		vm.outstandingIO--
	}
}

// wait blocks for up to waitMs milliseconds (spec §4.8: "the scheduler's I/O
// poll step blocks for at most the time until the next sleeper wakes"),
// dispatching each ready fd's one-shot callback. Each ready record is
// deleted from the epoll set and the watch table, and outstandingIO is
// decremented, before its callback runs; a dup fd is closed afterwards.
func (p *poller) wait(vm *VM, waitMs int64) error {
	events := make([]unix.EpollEvent, 64)
	n, err := unix.EpollWait(p.epfd, events, int(waitMs))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	for i := 0; i < n; i++ {
		fd := events[i].Fd
		w, ok := p.watches[fd]
		if !ok {
			continue
		}
		delete(p.watches, fd)
		unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
		vm.outstandingIO--
		w.ready(vm, events[i].Events)
		if w.closeOnDelete {
			unix.Close(int(fd))
		}
	}
	return nil
}
