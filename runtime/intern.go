package runtime

// FNV-1a 32-bit offset basis and prime, matching
// original_source/src/object.c's hash_string (ported rather than wrapping
// hash/fnv: the spec's hash is a single-shot hash(bytes, length) function,
// not the incremental io.Writer shape hash/fnv exposes).
const (
	fnvOffsetBasis32 = 2166136261
	fnvPrime32       = 16777619
)

func hashBytes(b []byte) uint32 {
	h := uint32(fnvOffsetBasis32)
	for _, c := range b {
		h ^= uint32(c)
		h *= fnvPrime32
	}
	return h
}

// internTable is the weak-key set of live interned strings (spec §3, §4.5:
// "a string exists in the intern set if and only if its object is live").
// Implemented atop the same open-addressing HashMap as globals/fields; the
// stored Value is unused (always Nil), mirroring
// original_source/src/object.c's `hashmap_set(&vm.strings, string,
// VALUE_NIL())` use of the generic map as a set.
type internTable struct {
	m *HashMap
}

func newInternTable() *internTable {
	return &internTable{m: NewHashMap()}
}

// intern returns the canonical ObjString for the given bytes, allocating a
// new one (via the VM's GC-tracked allocator) only if no live string with
// the same bytes already exists.
func (vm *VM) intern(b []byte) *ObjString {
	hash := hashBytes(b)
	if existing := vm.strings.m.findKeyBytes(b, hash); existing != nil {
		return existing
	}
	s := &ObjString{Bytes: append([]byte(nil), b...), Hash: hash}
	vm.registerObject(s)
	vm.strings.m.Set(s, Nil)
	return s
}

// internString is a convenience wrapper for Go string literals used when
// constructing compiler/runtime constants.
func (vm *VM) internString(s string) *ObjString {
	return vm.intern([]byte(s))
}

// Intern is the exported entry point the compiler package uses to turn
// identifier/string-literal bytes into the canonical ObjString for a
// constant-pool entry (spec §4.1, §4.4).
func (vm *VM) Intern(b []byte) *ObjString { return vm.intern(b) }

// InternString is the exported, Go-string-literal convenience form of Intern.
func (vm *VM) InternString(s string) *ObjString { return vm.internString(s) }

// concatStrings implements the Add-overload string concatenation of spec
// §4.2/§4.6: interning the result, matching
// original_source/src/object.c's concat_strings (which checks the intern
// table for the freshly-built bytes before keeping the new allocation).
func (vm *VM) concatStrings(a, b *ObjString) *ObjString {
	buf := make([]byte, 0, len(a.Bytes)+len(b.Bytes))
	buf = append(buf, a.Bytes...)
	buf = append(buf, b.Bytes...)
	return vm.intern(buf)
}

// removeDeadInterns drops intern-table entries for now-unmarked strings
// before the sweep proper, preserving the weak-key invariant (spec §4.5).
func (vm *VM) removeDeadInterns() {
	var dead []*ObjString
	vm.strings.m.Each(func(key *ObjString, _ Value) {
		if !key.Marked {
			dead = append(dead, key)
		}
	})
	for _, d := range dead {
		vm.strings.m.Delete(d)
	}
}
