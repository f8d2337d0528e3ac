//go:build !linux

package runtime

import "errors"

// EventRead/EventWrite mirror the epoll interest flags exposed by the Linux
// build; their values are irrelevant here since watchFD always fails.
const (
	EventRead  = 0x001
	EventWrite = 0x004
)

// poller is unimplemented outside Linux: epoll is a Linux-only syscall
// family (spec §4.8 is explicitly epoll-based), so newPoller returns an
// error here and scheduleNext falls back to its plain-timer path. Socket
// natives still compile; they just report ErrIO if actually invoked.
type poller struct{}

func newPoller() (*poller, error) { return nil, errors.New("epoll not supported on this platform") }
func (p *poller) close() error    { return nil }
func (p *poller) wait(vm *VM, waitMs int64) error { return nil }

func (vm *VM) watchFD(fd int32, events uint32, ready func(vm *VM, events uint32)) error {
	return errors.New("non-blocking sockets are not supported on this platform")
}

func (vm *VM) unwatchFD(fd int32) {}
