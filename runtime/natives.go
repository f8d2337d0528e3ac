package runtime

import "time"

var processStart = time.Now()

// RegisterNatives installs every built-in global of spec §6. Grounded on
// original_source/src/native.c's native_defs table: clock/hasField/getField/
// setField/deleteField are carried over with the same signatures; sleep,
// the socket family, Array, and length are this spec's additions.
func (vm *VM) RegisterNatives() {
	def := func(name string, arity int, fn NativeFn) {
		n := &ObjNative{Name: name, Arity: arity, Fn: fn}
		vm.registerObject(n)
		vm.globals.Set(vm.internString(name), ObjVal(n))
	}

	def("clock", 0, nativeClock)
	def("sleep", 1, nativeSleep)
	def("length", 1, nativeLength)
	def("hasField", 2, nativeHasField)
	def("getField", 2, nativeGetField)
	def("setField", 3, nativeSetField)
	def("deleteField", 2, nativeDeleteField)
	def("Array", 2, nativeArray)

	vm.registerSocketNatives(def)
}

// clock returns seconds elapsed since process start, matching
// original_source/src/native.c's clock_fun ("(double)clock() /
// CLOCKS_PER_SEC"), adapted to Go's monotonic clock since Go has no
// CLOCKS_PER_SEC equivalent.
func nativeClock(vm *VM, co *Coroutine, args []Value) (Value, error) {
	return NumberVal(time.Since(processStart).Seconds()), nil
}

// sleep is the one native that suspends its caller coroutine directly,
// without an intervening await (spec §4.7 scenario 4). It unlinks co from
// the active list, parks it on the sleeping list, and -- mirroring how
// OpYield/OpAwait transfer control in the dispatch loop -- hands off to the
// scheduler itself so vm.current moves on to whatever runs next; co's own
// resumption (and its implicit Nil return value) is wakeDueSleepers' job
// once the deadline passes, not this call's.
func nativeSleep(vm *VM, co *Coroutine, args []Value) (Value, error) {
	if args[0].Kind != KindNumber {
		return Nil, newRuntimeError(ErrArgumentMismatch, "sleep expects a number of milliseconds")
	}
	ms := args[0].Num
	vm.unlinkActive(co)
	vm.pushSleeping(co, nowMillis()+int64(ms))
	vm.nativeSuspended = true

	ok, err := vm.scheduleNext()
	if err != nil {
		return Nil, err
	}
	if !ok {
		return Nil, errNoMoreWork
	}
	return Nil, nil
}

func nativeLength(vm *VM, co *Coroutine, args []Value) (Value, error) {
	switch t := args[0].Obj.(type) {
	case *ObjString:
		return NumberVal(float64(len(t.Bytes))), nil
	case *ObjArray:
		return NumberVal(float64(len(t.Elements))), nil
	}
	return Nil, newRuntimeError(ErrType, "length expects a string or array")
}

func nativeHasField(vm *VM, co *Coroutine, args []Value) (Value, error) {
	inst, ok := objAs[*ObjInstance](args[0])
	if !ok {
		return Nil, newRuntimeError(ErrType, "hasField expects an instance")
	}
	name, ok := objAs[*ObjString](args[1])
	if !ok {
		return Nil, newRuntimeError(ErrType, "hasField expects a string field name")
	}
	return BoolVal(inst.Fields.Has(name)), nil
}

func nativeGetField(vm *VM, co *Coroutine, args []Value) (Value, error) {
	inst, ok := objAs[*ObjInstance](args[0])
	if !ok {
		return Nil, newRuntimeError(ErrType, "getField expects an instance")
	}
	name, ok := objAs[*ObjString](args[1])
	if !ok {
		return Nil, newRuntimeError(ErrType, "getField expects a string field name")
	}
	v, ok := inst.Fields.Get(name)
	if !ok {
		return Nil, newRuntimeError(ErrUndefinedProperty, "undefined property '%s'", name.Bytes)
	}
	return v, nil
}

func nativeSetField(vm *VM, co *Coroutine, args []Value) (Value, error) {
	inst, ok := objAs[*ObjInstance](args[0])
	if !ok {
		return Nil, newRuntimeError(ErrType, "setField expects an instance")
	}
	name, ok := objAs[*ObjString](args[1])
	if !ok {
		return Nil, newRuntimeError(ErrType, "setField expects a string field name")
	}
	inst.Fields.Set(name, args[2])
	return args[2], nil
}

func nativeDeleteField(vm *VM, co *Coroutine, args []Value) (Value, error) {
	inst, ok := objAs[*ObjInstance](args[0])
	if !ok {
		return Nil, newRuntimeError(ErrType, "deleteField expects an instance")
	}
	name, ok := objAs[*ObjString](args[1])
	if !ok {
		return Nil, newRuntimeError(ErrType, "deleteField expects a string field name")
	}
	inst.Fields.Delete(name)
	return Nil, nil
}

// Array(len, fill) allocates a fixed-length array with every slot
// initialized to fill (spec §9: "Array(len, fill) allocates len slots, all
// initialized to fill; len must be a non-negative integer").
func nativeArray(vm *VM, co *Coroutine, args []Value) (Value, error) {
	if args[0].Kind != KindNumber || args[0].Num < 0 || args[0].Num != float64(int(args[0].Num)) {
		return Nil, newRuntimeError(ErrArgumentMismatch, "Array expects a non-negative integer length")
	}
	n := int(args[0].Num)
	elems := make([]Value, n)
	for i := range elems {
		elems[i] = args[1]
	}
	arr := &ObjArray{Elements: elems}
	vm.registerObject(arr)
	return ObjVal(arr), nil
}

// fdOf reads a socket/server handle, represented as a plain NumberVal file
// descriptor rather than a new Obj variant: spec §3's object variant list
// has no socket/file type, and every native here only needs an opaque
// handle to pass to the next syscall.
func fdOf(v Value) (int, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	return int(v.Num), true
}
