package runtime

// callValue implements the Call n calling convention of spec §4.6 for every
// callable kind except the Invoke/SuperInvoke paths, which resolve a method
// first and then share invokeClosure below.
func (vm *VM) callValue(co *Coroutine, callee Value, argCount int) error {
	if callee.Kind != KindObject {
		return vm.runtimeErrorOn(co, ErrNotCallable, "%s is not callable", Stringify(callee))
	}
	switch t := callee.Obj.(type) {
	case *ObjNative:
		return vm.callNative(co, t, argCount)
	case *ObjClosure:
		return vm.callClosure(co, t, argCount, co.StackTop-argCount-1)
	case *ObjClass:
		return vm.callClass(co, t, argCount)
	case *ObjBoundMethod:
		co.Stack[co.StackTop-argCount-1] = t.Receiver
		return vm.callClosure(co, t.Method, argCount, co.StackTop-argCount-1)
	default:
		return vm.runtimeErrorOn(co, ErrNotCallable, "%s is not callable", Stringify(callee))
	}
}

func (vm *VM) callNative(co *Coroutine, n *ObjNative, argCount int) error {
	if argCount != n.Arity {
		return vm.runtimeErrorOn(co, ErrArgumentMismatch, "expected %d arguments but got %d", n.Arity, argCount)
	}
	args := make([]Value, argCount)
	copy(args, co.Stack[co.StackTop-argCount:co.StackTop])
	co.popN(argCount)
	co.pop() // the native itself

	result, err := n.Fn(vm, co, args)
	// Read-then-clear unconditionally: a suspending native (sleep) sets this
	// before handing off to the scheduler, and it must not survive past this
	// call on any exit path, or a later unrelated native call (e.g. the next
	// REPL line against the same VM) would wrongly skip pushing its result.
	suspended := vm.nativeSuspended
	vm.nativeSuspended = false
	if err != nil {
		if err == errNoMoreWork {
			return err
		}
		return wrapNativeError(vm, co, err)
	}
	// A native that suspended `co` (currently only sleep) has already handed
	// control to the scheduler itself and updated vm.current; whichever step
	// eventually resumes `co` (wakeDueSleepers, for sleep) pushes its own
	// result, so there is nothing further to push here -- even if the
	// scheduler looped back around to `co` itself with nothing else to run,
	// which is why this checks the flag rather than `vm.current != co`.
	if suspended {
		return nil
	}
	co.push(result)
	return nil
}

func (vm *VM) callClosure(co *Coroutine, closure *ObjClosure, argCount, base int) error {
	if argCount != closure.Fn.Arity {
		return vm.runtimeErrorOn(co, ErrArgumentMismatch, "expected %d arguments but got %d", closure.Fn.Arity, argCount)
	}
	if closure.Fn.IsAsync {
		return vm.spawnAsync(co, closure, argCount, base)
	}
	return vm.pushCallFrame(co, closure, base)
}

func (vm *VM) callClass(co *Coroutine, class *ObjClass, argCount int) error {
	slot := co.StackTop - argCount - 1
	inst := &ObjInstance{Class: class, Fields: NewHashMap()}
	vm.registerObject(inst)
	co.Stack[slot] = ObjVal(inst)

	if init, ok := class.Methods.Get(vm.initString); ok {
		return vm.callClosure(co, init.Obj.(*ObjClosure), argCount, slot)
	}
	if argCount != 0 {
		return vm.runtimeErrorOn(co, ErrArgumentMismatch, "expected 0 arguments but got %d", argCount)
	}
	return nil
}

// spawnAsync implements the async branch of spec §4.6's calling convention:
// a new Coroutine is allocated, the argument window is moved into it, the
// new coroutine is spliced into the active list immediately before the
// caller, the caller receives the new coroutine's Promise, and the new
// coroutine becomes current.
func (vm *VM) spawnAsync(caller *Coroutine, closure *ObjClosure, argCount, base int) error {
	newCo := vm.newCoroutine()
	newCo.Stack[0] = Nil
	copy(newCo.Stack[1:1+argCount], caller.Stack[base+1:base+1+argCount])
	newCo.StackTop = argCount + 1

	// Remove the callee + args window from the caller, leaving its Promise.
	caller.StackTop = base
	caller.push(ObjVal(newCo.Promise))

	vm.spliceActive(newCo, caller)
	if err := vm.pushCallFrame(newCo, closure, 0); err != nil {
		return err
	}
	vm.current = newCo
	return nil
}

// invokeClosure shares the method-call machinery between OP_INVOKE and
// OP_SUPER_INVOKE once a method Closure and the stack window have been
// resolved.
func (vm *VM) invokeClosure(co *Coroutine, method *ObjClosure, argCount, base int) error {
	return vm.callClosure(co, method, argCount, base)
}

// invoke implements OpInvoke (spec §4.6): GetField immediately followed by
// Call, fused into one instruction so a monomorphic call site can skip the
// method-table lookup on a cache hit. A field that shadows a method (e.g. a
// closure stored as an instance field and invoked as `obj.field(...)`) takes
// priority over the cache and over the class method table, matching
// getField's own field-before-method order.
func (vm *VM) invoke(co *Coroutine, frame *CallFrame, name *ObjString, argCount, cacheIdx int) error {
	base := co.StackTop - argCount - 1
	receiver := co.Stack[base]
	inst, ok := objAs[*ObjInstance](receiver)
	if !ok {
		// Non-instance receivers (strings, arrays) have no methods, only the
		// pseudo-field `length`, which is never callable; resolve the plain
		// way and let callValue report the appropriate error.
		v, err := vm.getField(co, receiver, name)
		if err != nil {
			return err
		}
		co.Stack[base] = v
		return vm.callValue(co, v, argCount)
	}
	if v, ok := inst.Fields.Get(name); ok {
		co.Stack[base] = v
		return vm.callValue(co, v, argCount)
	}
	return vm.invokeFromClass(co, frame, inst.Class, name, argCount, cacheIdx)
}

// invokeFromClass resolves name on class (or, for OpSuperInvoke, on the
// statically known superclass) through the chunk's inline cache before
// falling back to the method hash map, per spec §4.6's monomorphic inline
// cache design.
func (vm *VM) invokeFromClass(co *Coroutine, frame *CallFrame, class *ObjClass, name *ObjString, argCount, cacheIdx int) error {
	base := co.StackTop - argCount - 1
	caches := frame.Closure.Fn.Chunk.Caches
	if cacheIdx >= 0 && cacheIdx < len(caches) {
		c := &caches[cacheIdx]
		if c.ClassID == class.ID {
			if closure, ok := c.Method.(*ObjClosure); ok {
				return vm.invokeClosure(co, closure, argCount, base)
			}
		}
	}
	m, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeErrorOn(co, ErrUndefinedProperty, "undefined property '%s'", name.Bytes)
	}
	closure := m.Obj.(*ObjClosure)
	if cacheIdx >= 0 && cacheIdx < len(caches) {
		caches[cacheIdx].ClassID = class.ID
		caches[cacheIdx].Method = closure
	}
	return vm.invokeClosure(co, closure, argCount, base)
}

// getField implements spec §4.6's GetField semantics.
func (vm *VM) getField(co *Coroutine, receiver Value, name *ObjString) (Value, error) {
	if receiver.Kind == KindObject {
		switch t := receiver.Obj.(type) {
		case *ObjInstance:
			if v, ok := t.Fields.Get(name); ok {
				return v, nil
			}
			if m, ok := t.Class.Methods.Get(name); ok {
				bm := &ObjBoundMethod{Receiver: receiver, Method: m.Obj.(*ObjClosure)}
				vm.registerObject(bm)
				return ObjVal(bm), nil
			}
			return Nil, vm.runtimeErrorOn(co, ErrUndefinedProperty, "undefined property '%s'", name.Bytes)
		case *ObjString:
			if name == vm.lengthString {
				return NumberVal(float64(len(t.Bytes))), nil
			}
		case *ObjArray:
			if name == vm.lengthString {
				return NumberVal(float64(len(t.Elements))), nil
			}
		}
	}
	return Nil, vm.runtimeErrorOn(co, ErrType, "only instances have properties")
}

func (vm *VM) setField(co *Coroutine, receiver Value, name *ObjString, value Value) error {
	inst, ok := objAs[*ObjInstance](receiver)
	if !ok {
		return vm.runtimeErrorOn(co, ErrType, "only instances have fields")
	}
	inst.Fields.Set(name, value)
	return nil
}

func objAs[T Obj](v Value) (T, bool) {
	var zero T
	if v.Kind != KindObject || v.Obj == nil {
		return zero, false
	}
	t, ok := v.Obj.(T)
	return t, ok
}
