//go:build linux

package runtime

import "golang.org/x/sys/unix"

func (vm *VM) registerSocketNatives(def func(name string, arity int, fn NativeFn)) {
	def("createServer", 0, nativeCreateServer)
	def("serverListen", 2, nativeServerListen)
	def("serverAccept", 1, nativeServerAccept)
	def("socketRead", 2, nativeSocketRead)
	def("socketWrite", 2, nativeSocketWrite)
	def("socketClose", 1, nativeSocketClose)
}

func nativeCreateServer(vm *VM, co *Coroutine, args []Value) (Value, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return Nil, newRuntimeError(ErrIO, "createServer: %s", err)
	}
	unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	return NumberVal(float64(fd)), nil
}

func nativeServerListen(vm *VM, co *Coroutine, args []Value) (Value, error) {
	fd, ok := fdOf(args[0])
	if !ok {
		return Nil, newRuntimeError(ErrArgumentMismatch, "serverListen expects a server handle")
	}
	if args[1].Kind != KindNumber {
		return Nil, newRuntimeError(ErrArgumentMismatch, "serverListen expects a port number")
	}
	port := int(args[1].Num)
	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		return Nil, newRuntimeError(ErrIO, "serverListen: bind: %s", err)
	}
	if err := unix.Listen(fd, 128); err != nil {
		return Nil, newRuntimeError(ErrIO, "serverListen: listen: %s", err)
	}
	return Nil, nil
}

// serverAccept is async (spec §4.8): it returns a pending Promise
// immediately and resolves it once epoll reports the listening socket
// readable and a connection has actually been accepted.
func nativeServerAccept(vm *VM, co *Coroutine, args []Value) (Value, error) {
	fd, ok := fdOf(args[0])
	if !ok {
		return Nil, newRuntimeError(ErrArgumentMismatch, "serverAccept expects a server handle")
	}
	p := &ObjPromise{State: PromisePending}
	vm.registerObject(p)
	vm.Pin(p)

	err := vm.watchFD(int32(fd), EventRead, func(vm *VM, events uint32) {
		defer vm.Unpin(p)
		connFd, _, aerr := unix.Accept4(fd, unix.SOCK_NONBLOCK)
		if aerr != nil {
			vm.fulfillPromise(p, Nil)
			return
		}
		vm.fulfillPromise(p, NumberVal(float64(connFd)))
	})
	if err != nil {
		vm.Unpin(p)
		return Nil, newRuntimeError(ErrIO, "serverAccept: %s", err)
	}
	return ObjVal(p), nil
}

// socketRead is async: returns a Promise that resolves to a string holding
// up to n bytes (possibly fewer, possibly the empty string on EOF).
func nativeSocketRead(vm *VM, co *Coroutine, args []Value) (Value, error) {
	fd, ok := fdOf(args[0])
	if !ok {
		return Nil, newRuntimeError(ErrArgumentMismatch, "socketRead expects a socket handle")
	}
	if args[1].Kind != KindNumber {
		return Nil, newRuntimeError(ErrArgumentMismatch, "socketRead expects a byte count")
	}
	n := int(args[1].Num)

	p := &ObjPromise{State: PromisePending}
	vm.registerObject(p)
	vm.Pin(p)

	err := vm.watchFD(int32(fd), EventRead, func(vm *VM, events uint32) {
		defer vm.Unpin(p)
		buf := make([]byte, n)
		read, rerr := unix.Read(fd, buf)
		if rerr != nil || read < 0 {
			read = 0
		}
		vm.fulfillPromise(p, ObjVal(vm.intern(buf[:read])))
	})
	if err != nil {
		vm.Unpin(p)
		return Nil, newRuntimeError(ErrIO, "socketRead: %s", err)
	}
	return ObjVal(p), nil
}

// socketWrite is async: returns a Promise that resolves to the number of
// bytes actually written once the socket is writable.
func nativeSocketWrite(vm *VM, co *Coroutine, args []Value) (Value, error) {
	fd, ok := fdOf(args[0])
	if !ok {
		return Nil, newRuntimeError(ErrArgumentMismatch, "socketWrite expects a socket handle")
	}
	data, ok := objAs[*ObjString](args[1])
	if !ok {
		return Nil, newRuntimeError(ErrArgumentMismatch, "socketWrite expects a string")
	}
	payload := append([]byte(nil), data.Bytes...)

	p := &ObjPromise{State: PromisePending}
	vm.registerObject(p)
	vm.Pin(p)

	err := vm.watchFD(int32(fd), EventWrite, func(vm *VM, events uint32) {
		defer vm.Unpin(p)
		written, werr := unix.Write(fd, payload)
		if werr != nil || written < 0 {
			written = 0
		}
		vm.fulfillPromise(p, NumberVal(float64(written)))
	})
	if err != nil {
		vm.Unpin(p)
		return Nil, newRuntimeError(ErrIO, "socketWrite: %s", err)
	}
	return ObjVal(p), nil
}

// socketClose implements the Open Question decision in DESIGN.md: shutdown
// the write half, drain any remaining inbound bytes, then close, so a peer
// mid-write isn't met with a hard RST.
func nativeSocketClose(vm *VM, co *Coroutine, args []Value) (Value, error) {
	fd, ok := fdOf(args[0])
	if !ok {
		return Nil, newRuntimeError(ErrArgumentMismatch, "socketClose expects a socket handle")
	}
	vm.unwatchFD(int32(fd))
	unix.Shutdown(fd, unix.SHUT_WR)
	drain := make([]byte, 4096)
	for {
		n, err := unix.Read(fd, drain)
		if err != nil || n <= 0 {
			break
		}
	}
	unix.Close(fd)
	return Nil, nil
}
