package runtime

import "testing"

func newTestVM() *VM {
	vm := New()
	vm.poller = nil
	return vm
}

func TestHashMapSetGetDelete(t *testing.T) {
	vm := newTestVM()
	defer vm.Close()
	m := NewHashMap()

	a := vm.internString("a")
	b := vm.internString("b")

	if !m.Set(a, NumberVal(1)) {
		t.Fatalf("Set on a fresh key should report isNew=true")
	}
	if m.Set(a, NumberVal(2)) {
		t.Fatalf("Set on an existing key should report isNew=false")
	}
	if v, ok := m.Get(a); !ok || v.Num != 2 {
		t.Fatalf("Get(a) = (%v, %v), want (2, true)", v, ok)
	}
	if _, ok := m.Get(b); ok {
		t.Fatalf("Get on an absent key should report found=false")
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}

	if !m.Delete(a) {
		t.Fatalf("Delete on a live key should return true")
	}
	if m.Delete(a) {
		t.Fatalf("Delete on an already-tombstoned key should return false")
	}
	if _, ok := m.Get(a); ok {
		t.Fatalf("Get after Delete should report found=false")
	}
	if m.Len() != 0 {
		t.Fatalf("Len() after deleting the only entry = %d, want 0", m.Len())
	}
}

func TestHashMapGrowPreservesEntries(t *testing.T) {
	vm := newTestVM()
	defer vm.Close()
	m := NewHashMap()

	const n = 200
	keys := make([]*ObjString, n)
	for i := 0; i < n; i++ {
		keys[i] = vm.internString(string(rune('a')) + itoa(i))
		m.Set(keys[i], NumberVal(float64(i)))
	}
	if m.Len() != n {
		t.Fatalf("Len() = %d, want %d after growing past the initial capacity", m.Len(), n)
	}
	for i, k := range keys {
		v, ok := m.Get(k)
		if !ok || v.Num != float64(i) {
			t.Fatalf("Get(keys[%d]) = (%v, %v), want (%d, true)", i, v, ok, i)
		}
	}
}

func TestHashMapCopyInto(t *testing.T) {
	vm := newTestVM()
	defer vm.Close()
	src := NewHashMap()
	dst := NewHashMap()

	src.Set(vm.internString("x"), NumberVal(1))
	src.Set(vm.internString("y"), NumberVal(2))
	dst.Set(vm.internString("y"), NumberVal(99))

	src.CopyInto(dst)

	if dst.Len() != 2 {
		t.Fatalf("dst.Len() = %d, want 2", dst.Len())
	}
	if v, _ := dst.Get(vm.internString("y")); v.Num != 2 {
		t.Fatalf("CopyInto should overwrite an existing key; got %v, want 2", v.Num)
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}
