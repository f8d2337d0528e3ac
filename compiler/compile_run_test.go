package compiler_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loxvm/loxvm/compiler"
	"github.com/loxvm/loxvm/runtime"
)

// run compiles and interprets src against a fresh VM, returning everything
// written to `print` (and any runtime error). It exercises the compiler and
// runtime together the way cmd/loxvm's runFile does, which is the only
// seam that can observe the bytecode scenarios of spec §8 end to end.
func run(t *testing.T, src string) (string, error) {
	t.Helper()
	vm := runtime.New()
	t.Cleanup(func() { vm.Close() })

	var out bytes.Buffer
	vm.Stdout = &out
	vm.Stderr = &out

	fn, err := compiler.Compile(vm, src)
	require.NoError(t, err, "compile error for:\n%s", src)

	err = vm.Interpret(fn)
	return out.String(), err
}

func lines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// TestArithmeticAndStrings is spec §8 scenario 1.
func TestArithmeticAndStrings(t *testing.T) {
	out, err := run(t, `print 1 + 2; print "a" + "b";`)
	require.NoError(t, err)
	require.Equal(t, []string{"3", "ab"}, lines(out))
}

// TestClosuresShareCapturedState is spec §8 scenario 2.
func TestClosuresShareCapturedState(t *testing.T) {
	src := `
fun mk() {
	var i = 0;
	fun inc() { i = i + 1; return i; }
	return inc;
}
var f = mk();
print f();
print f();
print f();
`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", "3"}, lines(out))
}

// TestTwoClosuresShareOneCapture exercises the closure-capture invariant of
// spec §8 beyond the single-closure scenario: two closures sharing one
// captured local must observe each other's writes until it closes.
func TestTwoClosuresShareOneCapture(t *testing.T) {
	src := `
fun mk() {
	var i = 0;
	fun get() { return i; }
	fun set(v) { i = v; }
	return [get, set];
}
var pair = mk();
var get = pair[0];
var set = pair[1];
set(41);
print get();
set(get() + 1);
print get();
`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"41", "42"}, lines(out))
}

// TestInheritanceAndSuper is spec §8 scenario 3.
func TestInheritanceAndSuper(t *testing.T) {
	src := `
class A { greet() { print "A"; } }
class B < A { greet() { super.greet(); print "B"; } }
B().greet();
`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, lines(out))
}

// TestAsyncSleepOrdering is spec §8 scenario 4.
func TestAsyncSleepOrdering(t *testing.T) {
	src := `
async fun g(x) { sleep(10); return x; }
async fun h() {
	print await g(1);
	print await g(2);
}
h();
`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, lines(out))
}

// TestSwitchFallthroughPrevention is spec §8 scenario 5.
func TestSwitchFallthroughPrevention(t *testing.T) {
	src := `switch (2) { case 1: print "a"; case 2: print "b"; default: print "d"; }`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, lines(out))
}

// TestTemplateStrings is spec §8 scenario 6.
func TestTemplateStrings(t *testing.T) {
	src := `var n = 3; print "x={n+1}!";`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"x=4!"}, lines(out))
}

// TestStringInterningIdentity exercises the "String interning" universal
// invariant of spec §8: two programs constructing a string with identical
// bytes compare equal by identity, observable from the language side via ==.
func TestStringInterningIdentity(t *testing.T) {
	src := `
var a = "hello";
var b = "hel" + "lo";
print a == b;
`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"true"}, lines(out))
}

// TestRoundTripLengths is spec §8's "Round-trip" property.
func TestRoundTripLengths(t *testing.T) {
	src := `
print "abc";
print [1, 2, 3].length;
print "abc".length;
`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"abc", "3", "3"}, lines(out))
}

// TestArrayPostIncrement exercises the Open Questions decision in DESIGN.md:
// ArrayIncr/ArrayDecr operate in place and yield the pre-increment value.
func TestArrayPostIncrement(t *testing.T) {
	src := `
var a = [10, 20];
print a[0]++;
print a[0];
`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"10", "11"}, lines(out))
}

// TestTernaryArmBalance exercises the first Open Questions decision in
// DESIGN.md: each ternary arm leaves exactly one net stack slot regardless
// of which arm is taken.
func TestTernaryArmBalance(t *testing.T) {
	src := `
print true ? "yes" : "no";
print false ? "yes" : "no";
print (1 < 2 ? 10 : 20) + 1;
`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"yes", "no", "11"}, lines(out))
}

// TestForWithOmittedConditionDefaultsTrue exercises the third Open Questions
// decision in DESIGN.md.
func TestForWithOmittedConditionDefaultsTrue(t *testing.T) {
	src := `
var i = 0;
for (;; i = i + 1) {
	if (i >= 3) { break; }
	print i;
}
`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"0", "1", "2"}, lines(out))
}

// TestBreakAndContinue exercises break/continue lowering inside a while
// loop, including that continue re-tests the condition rather than skipping
// it (spec §4.3).
func TestBreakAndContinue(t *testing.T) {
	src := `
var i = 0;
while (i < 5) {
	i = i + 1;
	if (i == 2) { continue; }
	if (i == 4) { break; }
	print i;
}
`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "3"}, lines(out))
}

// TestClassFieldsAndInitializer exercises instance fields, `init`'s implicit
// `this` return, and bound methods.
func TestClassFieldsAndInitializer(t *testing.T) {
	src := `
class Counter {
	init(start) { this.n = start; }
	bump() { this.n = this.n + 1; return this.n; }
}
var c = Counter(5);
print c.bump();
print c.bump();
var bumpFn = c.bump;
print bumpFn();
`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"6", "7", "8"}, lines(out))
}

// TestUndefinedVariableIsRuntimeError exercises spec §7's runtime-error
// classification for an undefined global read.
func TestUndefinedVariableIsRuntimeError(t *testing.T) {
	_, err := run(t, `print undefinedThing;`)
	require.Error(t, err)
}

// TestArrayIndexOutOfBoundsIsRuntimeError exercises spec §7's
// out-of-bounds-index runtime error.
func TestArrayIndexOutOfBoundsIsRuntimeError(t *testing.T) {
	_, err := run(t, `var a = [1, 2]; print a[5];`)
	require.Error(t, err)
}

// TestSelfInheritanceIsCompileError exercises spec §7's "class
// self-inheritance" syntactic error.
func TestSelfInheritanceIsCompileError(t *testing.T) {
	vm := runtime.New()
	defer vm.Close()
	_, err := compiler.Compile(vm, `class A < A {}`)
	require.Error(t, err)
}

// TestAwaitOutsideAsyncIsCompileError exercises spec §7's "await outside
// async" syntactic error.
func TestAwaitOutsideAsyncIsCompileError(t *testing.T) {
	vm := runtime.New()
	defer vm.Close()
	_, err := compiler.Compile(vm, `fun f() { return await 1; }`)
	require.Error(t, err)
}

// TestBreakOutsideLoopIsCompileError exercises spec §7's "break outside
// loop" syntactic error.
func TestBreakOutsideLoopIsCompileError(t *testing.T) {
	vm := runtime.New()
	defer vm.Close()
	_, err := compiler.Compile(vm, `break;`)
	require.Error(t, err)
}

// TestBreakDiscardsBodyLocals: break jumps past the endScope pops of the
// loop body, so it must discard body locals itself or every local declared
// after the loop reads a stale slot.
func TestBreakDiscardsBodyLocals(t *testing.T) {
	src := `
fun f() {
	var total = 0;
	while (true) {
		var x = 1;
		var y = 2;
		if (x + y > total) { break; }
	}
	var z = 5;
	return z;
}
print f();
`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"5"}, lines(out))
}

// TestContinueDiscardsBodyLocals: same stack-balance obligation as break,
// but jumping back to the condition/update instead of out of the loop.
func TestContinueDiscardsBodyLocals(t *testing.T) {
	src := `
var n = 0;
var i = 0;
while (i < 3) {
	i = i + 1;
	var t = i * 10;
	if (t == 20) { continue; }
	n = n + t;
}
print n;
`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"40"}, lines(out))
}

// TestSwitchCaseBodyLocals: each case arm scopes its own locals, so a var
// declared in one arm neither collides with another arm's nor survives the
// switch.
func TestSwitchCaseBodyLocals(t *testing.T) {
	src := `
fun pick(k) {
	switch (k) {
	case 1:
		var m = "one";
		return m;
	case 2:
		var m = "two";
		return m;
	}
	return "other";
}
print pick(1);
print pick(2);
print pick(3);
`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two", "other"}, lines(out))
}
