package runtime

import (
	"strings"
	"testing"
)

func TestStringifyNumbers(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{3, "3"},
		{-7, "-7"},
		{2.5, "2.5"},
		{-0.5, "-0.5"},
		{0.1 + 0.2, "0.3"}, // %.10f hides the double-rounding residue
		{1e-11, "0"},
		{1234567890, "1234567890"},
	}
	for _, tc := range cases {
		if got := Stringify(NumberVal(tc.in)); got != tc.want {
			t.Errorf("Stringify(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruthiness(t *testing.T) {
	vm := newTestVM()
	defer vm.Close()

	if Nil.Truthy() || BoolVal(false).Truthy() {
		t.Fatalf("nil and false must be falsey")
	}
	if !BoolVal(true).Truthy() || !NumberVal(0).Truthy() {
		t.Fatalf("true and the number 0 must be truthy")
	}
	if !ObjVal(vm.internString("")).Truthy() {
		t.Fatalf("the empty string must be truthy")
	}
}

func TestEqualityRules(t *testing.T) {
	vm := newTestVM()
	defer vm.Close()

	if !Equal(Nil, Nil) {
		t.Fatalf("nil == nil")
	}
	if !Equal(NumberVal(1), NumberVal(1)) || Equal(NumberVal(1), NumberVal(2)) {
		t.Fatalf("numbers compare by value")
	}
	if Equal(NumberVal(0), BoolVal(false)) || Equal(Nil, BoolVal(false)) {
		t.Fatalf("values of different kinds are never equal")
	}

	a := vm.internString("same")
	b := vm.intern([]byte("same"))
	if a != b || !Equal(ObjVal(a), ObjVal(b)) {
		t.Fatalf("interning must make equal-bytes strings identical")
	}
	if Equal(ObjVal(a), ObjVal(vm.internString("other"))) {
		t.Fatalf("distinct strings must compare unequal")
	}

	x := &ObjArray{Elements: []Value{NumberVal(1)}}
	y := &ObjArray{Elements: []Value{NumberVal(1)}}
	vm.registerObject(x)
	vm.registerObject(y)
	if Equal(ObjVal(x), ObjVal(y)) {
		t.Fatalf("arrays compare by identity, not contents")
	}
	if !Equal(ObjVal(x), ObjVal(x)) {
		t.Fatalf("object equality must be reflexive")
	}
}

func TestStringifyObjects(t *testing.T) {
	vm := newTestVM()
	defer vm.Close()

	fn := vm.NewFunction(vm.internString("f"))
	if got := Stringify(ObjVal(fn)); got != "<fn f>" {
		t.Errorf("function rendering = %q, want <fn f>", got)
	}

	class := &ObjClass{Name: vm.internString("Widget"), ID: 1, Methods: NewHashMap()}
	vm.registerObject(class)
	if got := Stringify(ObjVal(class)); got != "Widget" {
		t.Errorf("class rendering = %q, want Widget", got)
	}

	inst := &ObjInstance{Class: class, Fields: NewHashMap()}
	vm.registerObject(inst)
	if got := Stringify(ObjVal(inst)); got != "Widget instance" {
		t.Errorf("instance rendering = %q, want Widget instance", got)
	}

	arr := &ObjArray{Elements: []Value{NumberVal(1), NumberVal(2), NumberVal(3)}}
	vm.registerObject(arr)
	if got := Stringify(ObjVal(arr)); got != "[1, 2, 3]" {
		t.Errorf("array rendering = %q, want [1, 2, 3]", got)
	}
}

func TestStringifyArrayTruncation(t *testing.T) {
	vm := newTestVM()
	defer vm.Close()

	elems := make([]Value, arrayDumpLimit+1)
	for i := range elems {
		elems[i] = NumberVal(float64(i))
	}
	arr := &ObjArray{Elements: elems}
	vm.registerObject(arr)

	got := Stringify(ObjVal(arr))
	if !strings.HasSuffix(got, ", ...]") {
		t.Fatalf("oversized array rendering should truncate, got %q", got)
	}
}
