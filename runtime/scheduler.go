package runtime

import (
	"errors"
	"time"
)

// nowMillis is the scheduler's clock source, kept as its own function so
// tests can observe scheduling decisions without depending on wall time
// staying still between two calls.
func nowMillis() int64 { return time.Now().UnixMilli() }

// errNoMoreWork is a sentinel a suspending native (sleep) returns when
// handing control to the scheduler finds nothing left to run at all. It
// unwinds through callNative/callValue to the OpCall/OpInvoke site in run,
// which translates it into a clean `return nil`, mirroring OpReturn/OpYield/
// OpAwait's own "if !ok { return nil }" when scheduleNext drains.
var errNoMoreWork = errors.New("loxvm: no more coroutines to run")

// scheduleNext implements spec §4.7's scheduler step, run whenever the
// currently executing coroutine can make no further immediate progress (it
// returned from its root frame, yielded, or awaited a still-pending
// promise). It returns ok=false once there is truly nothing left to run:
// no active coroutine, no sleeper, and no outstanding I/O.
func (vm *VM) scheduleNext() (bool, error) {
	for {
		vm.wakeDueSleepers()

		// Non-blocking drain of any completed I/O before deciding who runs
		// next. This must happen even when the active list is non-empty: a
		// yield-heavy workload can keep the list populated indefinitely, and
		// readiness callbacks (and their waiting promises) must still fire.
		if vm.poller != nil && vm.outstandingIO > 0 {
			if err := vm.pollIO(0); err != nil {
				return false, err
			}
		}

		if vm.activeHead != nil {
			vm.current = vm.activeHead
			return true, nil
		}

		if vm.sleepingHead == nil && vm.outstandingIO == 0 {
			return false, nil
		}

		wait := vm.minResidualWait()
		if vm.poller != nil && vm.outstandingIO > 0 {
			if err := vm.pollIO(wait); err != nil {
				return false, err
			}
			continue
		}
		if wait > 0 {
			time.Sleep(time.Duration(wait) * time.Millisecond)
		}
	}
}

// wakeDueSleepers moves every coroutine whose deadline has passed back onto
// the active list, pushing Nil as sleep's implicit return value (spec §4.7:
// sleep is the only native that suspends a coroutine directly, so the
// sleeping list has exactly one producer and the pushed value is always
// sleep's own).
func (vm *VM) wakeDueSleepers() {
	now := nowMillis()
	co := vm.sleepingHead
	for co != nil {
		next := co.Next
		if co.SleepUntil <= now {
			vm.unlinkSleeping(co)
			co.SleepUntil = 0
			co.push(Nil)
			vm.spliceActive(co, nil)
		}
		co = next
	}
}

// minResidualWait returns how long, in milliseconds, until the soonest
// sleeper wakes, capped so the epoll wait never blocks past it. With no
// sleepers it returns 1000 if I/O is outstanding (the scheduler then polls
// again after that wait) and 0 otherwise.
func (vm *VM) minResidualWait() int64 {
	if vm.sleepingHead == nil {
		if vm.outstandingIO > 0 {
			return 1000
		}
		return 0
	}
	now := nowMillis()
	best := int64(-1)
	for co := vm.sleepingHead; co != nil; co = co.Next {
		remaining := co.SleepUntil - now
		if remaining < 0 {
			remaining = 0
		}
		if best < 0 || remaining < best {
			best = remaining
		}
	}
	return best
}

// pollIO blocks on the epoll instance for up to waitMs, dispatching any
// ready I/O callbacks (spec §4.8). If there is no poller (epoll unavailable
// on this platform/sandbox), it degrades to sleeping for waitMs so timers
// still function.
func (vm *VM) pollIO(waitMs int64) error {
	if vm.poller == nil {
		if waitMs > 0 {
			time.Sleep(time.Duration(waitMs) * time.Millisecond)
		}
		return nil
	}
	return vm.poller.wait(vm, waitMs)
}
