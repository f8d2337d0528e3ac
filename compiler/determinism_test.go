package compiler_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/loxvm/loxvm/bytecode"
	"github.com/loxvm/loxvm/compiler"
	"github.com/loxvm/loxvm/runtime"
)

// chunkSnapshot is a plain, comparable rendering of a bytecode.Chunk: byte
// code, per-byte line numbers, a stringified constant pool (recursing into
// nested function constants), and the zero-value shape of its inline-cache
// slots. It exists so two independently-compiled chunks can be diffed with
// cmp.Diff without cmp tripping over the unexported GC-header fields
// embedded in runtime.Obj variants or over pointer identity, which always
// differs between two separate compilations.
type chunkSnapshot struct {
	Code      []byte
	Lines     []uint32
	Constants []string
	Caches    []bytecode.InlineCache
}

func snapshotChunk(c *bytecode.Chunk) chunkSnapshot {
	s := chunkSnapshot{
		Code:   append([]byte(nil), c.Code...),
		Caches: append([]bytecode.InlineCache(nil), c.Caches...),
	}
	for _, loc := range c.Locs {
		s.Lines = append(s.Lines, loc.Line)
	}
	for _, k := range c.Constants {
		s.Constants = append(s.Constants, snapshotConstant(k))
	}
	return s
}

func snapshotConstant(k any) string {
	switch v := k.(type) {
	case *runtime.ObjString:
		return fmt.Sprintf("string(%s)", v.Bytes)
	case *runtime.ObjFunction:
		name := "<script>"
		if v.Name != nil {
			name = string(v.Name.Bytes)
		}
		return fmt.Sprintf("function(%s/%d){%v}", name, v.Arity, snapshotChunk(&v.Chunk))
	case runtime.Value:
		return "value(" + runtime.Stringify(v) + ")"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// TestBytecodeDeterminism is spec §8's universal invariant: "given identical
// source, two compilations produce byte-identical chunks except for
// pointers embedded in inline-cache slots (which must start as zero)." Each
// compilation runs against its own fresh VM (distinct string-intern table,
// distinct class ids) so any leak of compilation order or object identity
// into the emitted bytecode shows up as a diff here.
func TestBytecodeDeterminism(t *testing.T) {
	src := `
class Shape {
	init(name) { this.name = name; }
	describe() { return "a {this.name}"; }
}
class Circle < Shape {
	init(name, r) { super.init(name); this.r = r; }
	area() { return 3.14159 * this.r * this.r; }
}
fun make(n, r) {
	var c = Circle(n, r);
	return c;
}
var shapes = [make("small", 1), make("big", 10)];
for (var i = 0; i < shapes.length; i = i + 1) {
	print shapes[i].describe();
	print shapes[i].area();
}
`
	fn1, err := compiler.Compile(runtime.New(), src)
	require.NoError(t, err)
	fn2, err := compiler.Compile(runtime.New(), src)
	require.NoError(t, err)

	snap1 := snapshotChunk(&fn1.Chunk)
	snap2 := snapshotChunk(&fn2.Chunk)

	if diff := cmp.Diff(snap1, snap2); diff != "" {
		t.Fatalf("compiling identical source twice produced different chunks (-first +second):\n%s", diff)
	}

	for _, cache := range snap1.Caches {
		require.Zero(t, cache.ClassID, "a freshly-compiled inline cache must start unpopulated")
		require.Nil(t, cache.Method, "a freshly-compiled inline cache must start unpopulated")
	}
}
