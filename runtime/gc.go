package runtime

import "unsafe"

// objectSize is a rough per-variant size estimate used for allocation
// accounting. The spec doesn't mandate exact byte counts, only that the
// counter "triggers a collection when the counter crosses a threshold" and
// "doubled after each collection" -- Go doesn't expose manual allocation
// sizes, so each variant reports a fixed estimate via unsafe.Sizeof of its
// own struct, which is enough to make the threshold meaningful without
// tracking every backing-slice resize.
func objectSize(o Obj) uint64 {
	switch t := o.(type) {
	case *ObjString:
		return uint64(unsafe.Sizeof(*t)) + uint64(len(t.Bytes))
	case *ObjFunction:
		return uint64(unsafe.Sizeof(*t))
	case *ObjUpvalue:
		return uint64(unsafe.Sizeof(*t))
	case *ObjClosure:
		return uint64(unsafe.Sizeof(*t)) + uint64(len(t.Upvalues))*8
	case *ObjNative:
		return uint64(unsafe.Sizeof(*t))
	case *ObjClass:
		return uint64(unsafe.Sizeof(*t))
	case *ObjInstance:
		return uint64(unsafe.Sizeof(*t))
	case *ObjBoundMethod:
		return uint64(unsafe.Sizeof(*t))
	case *ObjPromise:
		return uint64(unsafe.Sizeof(*t))
	case *ObjArray:
		return uint64(unsafe.Sizeof(*t)) + uint64(len(t.Elements))*32
	}
	return 32
}

// registerObject links a freshly allocated object into the VM's object list
// (spec §4.5: "All heap objects are allocated by one routine that appends to
// the VM's objects list") and updates the allocation-accounting counter,
// triggering a collection if the threshold is crossed or if stress mode is
// active.
func (vm *VM) registerObject(o Obj) {
	h := o.header()
	h.Next = vm.objects
	vm.objects = o
	vm.bytesAllocated += objectSize(o)

	if vm.gcStress {
		vm.CollectGarbage()
	} else if vm.gcEnabled && vm.bytesAllocated > vm.nextGC {
		vm.CollectGarbage()
	}
}

// Pin roots o until Unpin drops its pin count back to zero (spec §4.5).
// Native functions that allocate an object and then suspend before
// publishing it (e.g. a Promise about to be returned across a suspension
// point) must pin it first.
func (vm *VM) Pin(o Obj) {
	h := o.header()
	if h.Pin == 0 {
		vm.pinned = append(vm.pinned, o)
	}
	h.Pin++
}

// Unpin decrements o's pin count. An entry whose count has dropped to zero
// is no longer treated as a root by the next collection, which also drops it
// from the pinned list.
func (vm *VM) Unpin(o Obj) {
	h := o.header()
	if h.Pin > 0 {
		h.Pin--
	}
}

// CollectGarbage runs one full mark-and-sweep cycle.
func (vm *VM) CollectGarbage() {
	vm.markRoots()
	vm.traceReferences()
	vm.removeDeadInterns()
	vm.sweep()
	vm.compactPinned()
	vm.nextGC = vm.bytesAllocated * gcGrowthFactor
	if vm.nextGC < initialGCThreshold {
		vm.nextGC = initialGCThreshold
	}
}

func (vm *VM) markValue(v Value) {
	if v.Kind == KindObject && v.Obj != nil {
		vm.markObject(v.Obj)
	}
}

func (vm *VM) markObject(o Obj) {
	if o == nil {
		return
	}
	h := o.header()
	if h.Marked {
		return
	}
	h.Marked = true
	switch o.(type) {
	case *ObjString, *ObjNative:
		// No outgoing references: marked black immediately, never pushed to
		// the grey stack (spec §4.5).
	default:
		vm.greyStack = append(vm.greyStack, o)
	}
}

func (vm *VM) markRoots() {
	// Compiler chain's current Functions (spec §4.5).
	if vm.compilerRoots != nil {
		for _, fn := range vm.compilerRoots() {
			vm.markObject(fn)
		}
	}

	// Every coroutine's value stack and every closure in every active call
	// frame, across both active and sleeping lists.
	walk := func(head *Coroutine) {
		for co := head; co != nil; co = co.Next {
			vm.markCoroutine(co)
		}
	}
	walk(vm.activeHead)
	walk(vm.sleepingHead)
	if vm.current != nil && !vm.inList(vm.current) {
		vm.markCoroutine(vm.current)
	}

	// Both magic interned strings.
	vm.markObject(vm.initString)
	vm.markObject(vm.lengthString)

	// Every key and value in globals. Keys must be marked too: an unmarked
	// key would be swept out of the intern table while still keying this
	// map, and a later lookup would intern a fresh, non-identical string for
	// the same bytes.
	vm.globals.Each(func(k *ObjString, v Value) {
		vm.markObject(k)
		vm.markValue(v)
	})

	// Every pinned object whose pin count is still above zero.
	for _, o := range vm.pinned {
		if o.header().Pin > 0 {
			vm.markObject(o)
		}
	}
}

func (vm *VM) inList(co *Coroutine) bool {
	for c := vm.activeHead; c != nil; c = c.Next {
		if c == co {
			return true
		}
	}
	for c := vm.sleepingHead; c != nil; c = c.Next {
		if c == co {
			return true
		}
	}
	return false
}

func (vm *VM) markCoroutine(co *Coroutine) {
	vm.markObject(co.Promise)
	for i := 0; i < co.StackTop; i++ {
		vm.markValue(co.Stack[i])
	}
	for i := 0; i < co.FrameTop; i++ {
		vm.markObject(co.Frames[i].Closure)
	}
	// Open upvalues (spec §3, §4.6) -- kept per coroutine; see
	// Coroutine.OpenUpvalues for why.
	for uv := co.OpenUpvalues; uv != nil; uv = uv.NextOpen {
		vm.markObject(uv)
	}
}

func (vm *VM) traceReferences() {
	for len(vm.greyStack) > 0 {
		n := len(vm.greyStack) - 1
		o := vm.greyStack[n]
		vm.greyStack = vm.greyStack[:n]
		vm.traceObject(o)
	}
}

func (vm *VM) traceObject(o Obj) {
	switch t := o.(type) {
	case *ObjFunction:
		if t.Name != nil {
			vm.markObject(t.Name)
		}
		for _, c := range t.Chunk.Constants {
			if v, ok := c.(Value); ok {
				vm.markValue(v)
			} else if oo, ok := c.(Obj); ok {
				vm.markObject(oo)
			}
		}
	case *ObjUpvalue:
		vm.markValue(t.Get())
	case *ObjClosure:
		vm.markObject(t.Fn)
		for _, uv := range t.Upvalues {
			vm.markObject(uv)
		}
	case *ObjClass:
		vm.markObject(t.Name)
		t.Methods.Each(func(k *ObjString, v Value) {
			vm.markObject(k)
			vm.markValue(v)
		})
	case *ObjInstance:
		vm.markObject(t.Class)
		t.Fields.Each(func(k *ObjString, v Value) {
			vm.markObject(k)
			vm.markValue(v)
		})
	case *ObjBoundMethod:
		vm.markValue(t.Receiver)
		vm.markObject(t.Method)
	case *ObjPromise:
		if t.State == PromiseFulfilled {
			vm.markValue(t.Result)
		}
		for _, w := range t.Waiters {
			vm.markCoroutine(w)
		}
		if t.Next != nil {
			vm.markObject(t.Next)
		}
	case *ObjArray:
		for _, v := range t.Elements {
			vm.markValue(v)
		}
	}
}

func (vm *VM) sweep() {
	var prev Obj
	node := vm.objects
	for node != nil {
		h := node.header()
		next := h.Next
		if h.Marked {
			h.Marked = false
			prev = node
		} else {
			if prev == nil {
				vm.objects = next
			} else {
				prev.header().Next = next
			}
		}
		node = next
	}
}

// compactPinned drops entries whose pin count fell to zero, per spec §4.5.
func (vm *VM) compactPinned() {
	out := vm.pinned[:0]
	for _, o := range vm.pinned {
		if o.header().Pin > 0 {
			out = append(out, o)
		}
	}
	vm.pinned = out
}
