package runtime

import (
	"fmt"

	"github.com/loxvm/loxvm/bytecode"
)

// run is the VM's flat, iterative bytecode dispatch loop (spec §4.6). It is
// deliberately never re-entered recursively: a Go call frame per Lox call
// frame would let a long-lived program's call depth exhaust the Go stack
// across many coroutines, so every control-flow change (call, return,
// yield, await, sleep) mutates vm.current/co/frame and loops instead of
// calling back into run.
func (vm *VM) run() error {
	co := vm.current
	frame := co.frame()

	readByte := func() byte {
		b := frame.Closure.Fn.Chunk.Code[frame.IP]
		frame.IP++
		return b
	}
	readUint16 := func() uint16 {
		lo, hi := readByte(), readByte()
		return uint16(lo) | uint16(hi)<<8
	}
	readConstant := func() Value {
		switch c := frame.Closure.Fn.Chunk.Constants[readByte()].(type) {
		case Value:
			return c
		case Obj:
			return ObjVal(c)
		default:
			panic("unreachable: chunk constant is neither a Value nor an Obj")
		}
	}
	readString := func() *ObjString {
		v := readConstant()
		return v.Obj.(*ObjString)
	}

	for {
		op := bytecode.Op(readByte())

		switch op {
		case bytecode.OpNil:
			co.push(Nil)
		case bytecode.OpTrue:
			co.push(BoolVal(true))
		case bytecode.OpFalse:
			co.push(BoolVal(false))
		case bytecode.OpConst:
			co.push(readConstant())
		case bytecode.OpDup:
			co.push(co.peek(0))
		case bytecode.OpPop:
			co.pop()
		case bytecode.OpPopN:
			co.popN(int(readByte()))

		case bytecode.OpAdd:
			b, a := co.pop(), co.pop()
			v, err := vm.add(co, a, b)
			if err != nil {
				return vm.unwind(err)
			}
			co.push(v)
		case bytecode.OpSub:
			b, a := co.pop(), co.pop()
			if a.Kind != KindNumber || b.Kind != KindNumber {
				return vm.unwind(vm.runtimeErrorOn(co, ErrType, "operands must be numbers"))
			}
			co.push(NumberVal(a.Num - b.Num))
		case bytecode.OpMul:
			b, a := co.pop(), co.pop()
			if a.Kind != KindNumber || b.Kind != KindNumber {
				return vm.unwind(vm.runtimeErrorOn(co, ErrType, "operands must be numbers"))
			}
			co.push(NumberVal(a.Num * b.Num))
		case bytecode.OpDiv:
			b, a := co.pop(), co.pop()
			if a.Kind != KindNumber || b.Kind != KindNumber {
				return vm.unwind(vm.runtimeErrorOn(co, ErrType, "operands must be numbers"))
			}
			co.push(NumberVal(a.Num / b.Num))
		case bytecode.OpNeg:
			a := co.pop()
			if a.Kind != KindNumber {
				return vm.unwind(vm.runtimeErrorOn(co, ErrType, "operand must be a number"))
			}
			co.push(NumberVal(-a.Num))
		case bytecode.OpNot:
			co.push(BoolVal(!co.pop().Truthy()))
		case bytecode.OpEqual:
			b, a := co.pop(), co.pop()
			co.push(BoolVal(Equal(a, b)))
		case bytecode.OpGreater:
			b, a := co.pop(), co.pop()
			if a.Kind != KindNumber || b.Kind != KindNumber {
				return vm.unwind(vm.runtimeErrorOn(co, ErrType, "operands must be numbers"))
			}
			co.push(BoolVal(a.Num > b.Num))
		case bytecode.OpLess:
			b, a := co.pop(), co.pop()
			if a.Kind != KindNumber || b.Kind != KindNumber {
				return vm.unwind(vm.runtimeErrorOn(co, ErrType, "operands must be numbers"))
			}
			co.push(BoolVal(a.Num < b.Num))
		case bytecode.OpIncr:
			a := co.pop()
			if a.Kind != KindNumber {
				return vm.unwind(vm.runtimeErrorOn(co, ErrType, "operand must be a number"))
			}
			co.push(NumberVal(a.Num + 1))
		case bytecode.OpDecr:
			a := co.pop()
			if a.Kind != KindNumber {
				return vm.unwind(vm.runtimeErrorOn(co, ErrType, "operand must be a number"))
			}
			co.push(NumberVal(a.Num - 1))

		case bytecode.OpDefineGlobal:
			name := readString()
			vm.globals.Set(name, co.pop())
		case bytecode.OpGetGlobal:
			name := readString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.unwind(vm.runtimeErrorOn(co, ErrUndefinedVariable, "undefined variable '%s'", name.Bytes))
			}
			co.push(v)
		case bytecode.OpSetGlobal:
			name := readString()
			if vm.globals.Set(name, co.peek(0)) {
				vm.globals.Delete(name)
				return vm.unwind(vm.runtimeErrorOn(co, ErrUndefinedVariable, "undefined variable '%s'", name.Bytes))
			}
		case bytecode.OpGetLocal:
			co.push(co.Stack[frame.Base+int(readByte())])
		case bytecode.OpSetLocal:
			co.Stack[frame.Base+int(readByte())] = co.peek(0)
		case bytecode.OpGetUpvalue:
			co.push(frame.Closure.Upvalues[readByte()].Get())
		case bytecode.OpSetUpvalue:
			frame.Closure.Upvalues[readByte()].Set(co.peek(0))

		case bytecode.OpJump:
			off := readUint16()
			frame.IP += int(off)
		case bytecode.OpJumpIfFalse:
			off := readUint16()
			if !co.peek(0).Truthy() {
				frame.IP += int(off)
			}
		case bytecode.OpJumpIfTrue:
			off := readUint16()
			if co.peek(0).Truthy() {
				frame.IP += int(off)
			}
		case bytecode.OpLoop:
			off := readUint16()
			frame.IP -= int(off)

		case bytecode.OpCall:
			argCount := int(readByte())
			if err := vm.callValue(co, co.peek(argCount), argCount); err != nil {
				if err == errNoMoreWork {
					return nil
				}
				return vm.unwind(err)
			}
			co = vm.current
			frame = co.frame()

		case bytecode.OpClosure:
			fnVal := readConstant()
			fn := fnVal.Obj.(*ObjFunction)
			closure := vm.newClosure(fn)
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := readByte()
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(co, &co.Stack[frame.Base+int(index)])
				} else {
					closure.Upvalues[i] = frame.Closure.Upvalues[index]
				}
			}
			co.push(ObjVal(closure))

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(co, &co.Stack[co.StackTop-1])
			co.pop()

		case bytecode.OpReturn:
			result := co.pop()
			vm.closeUpvalues(co, &co.Stack[frame.Base])
			co.FrameTop--
			co.StackTop = frame.Base

			if co.FrameTop == 0 {
				// Root frame of this coroutine returned: fulfill its promise,
				// remove it from scheduling, and pick the next coroutine to
				// run (spec §4.6 Return, §4.7). If the returned value is
				// itself a Promise, collapse the chain instead of fulfilling
				// with the Promise object: an already-fulfilled inner
				// promise hands its Result straight through, a pending one
				// is linked via Next so fulfillPromise propagates the value
				// once the inner promise resolves.
				vm.unlinkActive(co)
				if inner, ok := objAs[*ObjPromise](result); ok {
					if inner.State == PromiseFulfilled {
						vm.fulfillPromise(co.Promise, inner.Result)
					} else {
						inner.Next = co.Promise
					}
				} else {
					vm.fulfillPromise(co.Promise, result)
				}
				ok, err := vm.scheduleNext()
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				co = vm.current
				frame = co.frame()
				continue
			}
			co.push(result)
			frame = co.frame()

		case bytecode.OpClass:
			name := readString()
			vm.nextClassID++
			class := &ObjClass{Name: name, ID: vm.nextClassID, Methods: NewHashMap()}
			vm.registerObject(class)
			co.push(ObjVal(class))

		case bytecode.OpMethod:
			name := readString()
			method := co.pop()
			class := co.peek(0).Obj.(*ObjClass)
			class.Methods.Set(name, method)

		case bytecode.OpInherit:
			superVal := co.peek(1)
			superClass, ok := objAs[*ObjClass](superVal)
			if !ok {
				return vm.unwind(vm.runtimeErrorOn(co, ErrType, "superclass must be a class"))
			}
			subClass := co.peek(0).Obj.(*ObjClass)
			superClass.Methods.CopyInto(subClass.Methods)
			co.pop() // the subclass; the superclass stays bound to its local/global slot

		case bytecode.OpGetField:
			name := readString()
			receiver := co.pop()
			v, err := vm.getField(co, receiver, name)
			if err != nil {
				return vm.unwind(err)
			}
			co.push(v)

		case bytecode.OpSetField:
			name := readString()
			value := co.pop()
			receiver := co.pop()
			if err := vm.setField(co, receiver, name, value); err != nil {
				return vm.unwind(err)
			}
			co.push(value)

		case bytecode.OpInvoke:
			name := readString()
			argCount := int(readByte())
			cacheIdx := int(readByte())
			if err := vm.invoke(co, frame, name, argCount, cacheIdx); err != nil {
				if err == errNoMoreWork {
					return nil
				}
				return vm.unwind(err)
			}
			co = vm.current
			frame = co.frame()

		case bytecode.OpGetSuper:
			name := readString()
			superClass := co.pop().Obj.(*ObjClass)
			receiver := co.pop()
			m, ok := superClass.Methods.Get(name)
			if !ok {
				return vm.unwind(vm.runtimeErrorOn(co, ErrUndefinedProperty, "undefined property '%s'", name.Bytes))
			}
			bm := &ObjBoundMethod{Receiver: receiver, Method: m.Obj.(*ObjClosure)}
			vm.registerObject(bm)
			co.push(ObjVal(bm))

		case bytecode.OpSuperInvoke:
			name := readString()
			argCount := int(readByte())
			cacheIdx := int(readByte())
			superClass := co.pop().Obj.(*ObjClass)
			if err := vm.invokeFromClass(co, frame, superClass, name, argCount, cacheIdx); err != nil {
				return vm.unwind(err)
			}
			co = vm.current
			frame = co.frame()

		case bytecode.OpPrint:
			fmt.Fprintln(vm.Stdout, Stringify(co.pop()))

		case bytecode.OpConcat:
			n := int(readByte())
			parts := make([]Value, n)
			for i := n - 1; i >= 0; i-- {
				parts[i] = co.pop()
			}
			var buf []byte
			for _, p := range parts {
				buf = append(buf, Stringify(p)...)
			}
			co.push(ObjVal(vm.intern(buf)))

		case bytecode.OpYield:
			vm.rotateToTail(co)
			ok, err := vm.scheduleNext()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			co = vm.current
			frame = co.frame()

		case bytecode.OpAwait:
			v := co.pop()
			p, ok := objAs[*ObjPromise](v)
			if !ok {
				return vm.unwind(vm.runtimeErrorOn(co, ErrNotAwaitable, "value is not awaitable"))
			}
			if p.State == PromiseFulfilled {
				co.push(p.Result)
				break
			}
			p.Waiters = append(p.Waiters, co)
			vm.unlinkActive(co)
			ok2, err := vm.scheduleNext()
			if err != nil {
				return err
			}
			if !ok2 {
				return nil
			}
			co = vm.current
			frame = co.frame()

		case bytecode.OpArray:
			n := int(readByte())
			elems := make([]Value, n)
			for i := n - 1; i >= 0; i-- {
				elems[i] = co.pop()
			}
			arr := &ObjArray{Elements: elems}
			vm.registerObject(arr)
			co.push(ObjVal(arr))

		case bytecode.OpArrayGet:
			idxVal, arrVal := co.pop(), co.pop()
			arr, ok := objAs[*ObjArray](arrVal)
			if !ok {
				return vm.unwind(vm.runtimeErrorOn(co, ErrType, "only arrays can be indexed"))
			}
			i, err := arrayIndex(vm, co, arr, idxVal)
			if err != nil {
				return vm.unwind(err)
			}
			co.push(arr.Elements[i])

		case bytecode.OpArraySet:
			value, idxVal, arrVal := co.pop(), co.pop(), co.pop()
			arr, ok := objAs[*ObjArray](arrVal)
			if !ok {
				return vm.unwind(vm.runtimeErrorOn(co, ErrType, "only arrays can be indexed"))
			}
			i, err := arrayIndex(vm, co, arr, idxVal)
			if err != nil {
				return vm.unwind(err)
			}
			arr.Elements[i] = value
			co.push(value)

		case bytecode.OpArrayIncr, bytecode.OpArrayDecr:
			idxVal, arrVal := co.pop(), co.pop()
			arr, ok := objAs[*ObjArray](arrVal)
			if !ok {
				return vm.unwind(vm.runtimeErrorOn(co, ErrType, "only arrays can be indexed"))
			}
			i, err := arrayIndex(vm, co, arr, idxVal)
			if err != nil {
				return vm.unwind(err)
			}
			old := arr.Elements[i]
			if old.Kind != KindNumber {
				return vm.unwind(vm.runtimeErrorOn(co, ErrType, "operand must be a number"))
			}
			delta := 1.0
			if op == bytecode.OpArrayDecr {
				delta = -1.0
			}
			arr.Elements[i] = NumberVal(old.Num + delta)
			co.push(old)

		default:
			// An opcode the dispatch loop doesn't recognize is a compiler/VM
			// invariant violation, not a source-level mistake: no valid
			// program can compile to it (spec §7 "Fatal": "invariant
			// violation (assertion)").
			return vm.unwind(newFatalError("invariant violation: unknown opcode %d", op))
		}
	}
}

// unwind is the seam every dispatch-loop error path passes through. Today it
// is an identity function; it exists so a future debugger hook (stepping,
// breakpoints) has one place to intercept every runtime error before it
// propagates out of run.
func (vm *VM) unwind(err error) error { return err }

// rotateToTail moves co to the tail of the active list (spec §4.7 Yield:
// "the coroutine is moved to the end of the active list").
func (vm *VM) rotateToTail(co *Coroutine) {
	vm.unlinkActive(co)
	vm.spliceActiveTail(co)
}

func (vm *VM) add(co *Coroutine, a, b Value) (Value, error) {
	if a.Kind == KindNumber && b.Kind == KindNumber {
		return NumberVal(a.Num + b.Num), nil
	}
	if as, ok := objAs[*ObjString](a); ok {
		if bs, ok := objAs[*ObjString](b); ok {
			return ObjVal(vm.concatStrings(as, bs)), nil
		}
	}
	return Nil, vm.runtimeErrorOn(co, ErrType, "operands must be two numbers or two strings")
}

func arrayIndex(vm *VM, co *Coroutine, arr *ObjArray, idxVal Value) (int, error) {
	if idxVal.Kind != KindNumber {
		return 0, vm.runtimeErrorOn(co, ErrType, "array index must be a number")
	}
	i := int(idxVal.Num)
	if i < 0 || i >= len(arr.Elements) {
		return 0, vm.runtimeErrorOn(co, ErrIndexOutOfBounds, "array index %d out of bounds (length %d)", i, len(arr.Elements))
	}
	return i, nil
}
