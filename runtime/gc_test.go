package runtime

import "testing"

func countObjects(vm *VM) int {
	n := 0
	for o := vm.objects; o != nil; o = o.header().Next {
		n++
	}
	return n
}

func heapContains(vm *VM, target Obj) bool {
	for o := vm.objects; o != nil; o = o.header().Next {
		if o == target {
			return true
		}
	}
	return false
}

func TestGCFreesUnreachableString(t *testing.T) {
	vm := newTestVM()
	defer vm.Close()
	vm.CollectGarbage()
	before := countObjects(vm)

	payload := []byte("nobody-holds-this")
	vm.intern(payload)
	if countObjects(vm) != before+1 {
		t.Fatalf("interning a new string should add exactly one heap object")
	}

	vm.CollectGarbage()
	if got := countObjects(vm); got != before {
		t.Fatalf("object count after collecting an unreachable string = %d, want %d", got, before)
	}
	if vm.strings.m.findKeyBytes(payload, hashBytes(payload)) != nil {
		t.Fatalf("a swept string must also leave the intern table")
	}
}

func TestGCKeepsObjectReachableFromGlobals(t *testing.T) {
	vm := newTestVM()
	defer vm.Close()

	s := vm.internString("keep-me")
	vm.globals.Set(vm.internString("g"), ObjVal(s))

	vm.CollectGarbage()
	vm.CollectGarbage()

	if !heapContains(vm, s) {
		t.Fatalf("a string reachable from globals must survive collection")
	}
	if vm.strings.m.findKeyBytes([]byte("keep-me"), hashBytes([]byte("keep-me"))) != s {
		t.Fatalf("a surviving string must keep its intern-table identity")
	}
}

// TestGCMarksHashMapKeys guards the weak-key invariant from the other side:
// a string alive only as a method-table key must not be swept out of the
// intern table, or a later lookup would intern a second, non-identical
// string for the same bytes and identity-keyed dispatch would miss.
func TestGCMarksHashMapKeys(t *testing.T) {
	vm := newTestVM()
	defer vm.Close()

	class := &ObjClass{Name: vm.internString("C"), ID: 1, Methods: NewHashMap()}
	vm.registerObject(class)
	methodName := vm.internString("frobnicate")
	class.Methods.Set(methodName, Nil)
	vm.globals.Set(vm.internString("C"), ObjVal(class))

	vm.CollectGarbage()

	if !heapContains(vm, methodName) {
		t.Fatalf("a method-table key must survive collection while its class does")
	}
	if vm.internString("frobnicate") != methodName {
		t.Fatalf("re-interning a live method name must return the same object")
	}
}

func TestPinKeepsUnreachableObjectAlive(t *testing.T) {
	vm := newTestVM()
	defer vm.Close()

	p := &ObjPromise{State: PromisePending}
	vm.registerObject(p)
	vm.Pin(p)

	vm.CollectGarbage()
	if !heapContains(vm, p) {
		t.Fatalf("a pinned object must survive collection")
	}

	vm.Unpin(p)
	vm.CollectGarbage()
	if heapContains(vm, p) {
		t.Fatalf("an unpinned, unreachable object must be swept")
	}
	if len(vm.pinned) != 0 {
		t.Fatalf("the pinned list must be compacted once pin counts drop to zero")
	}
}

func TestGCThresholdNeverDropsBelowInitial(t *testing.T) {
	vm := newTestVM()
	defer vm.Close()

	vm.CollectGarbage()
	if vm.nextGC < initialGCThreshold {
		t.Fatalf("nextGC = %d, must never drop below the initial threshold", vm.nextGC)
	}
}
