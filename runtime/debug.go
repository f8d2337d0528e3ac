package runtime

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
)

// HeapObjectSnapshot is one entry of DumpHeap's report: a heap object's tag,
// its current mark bit (cleared by every sweep, so false outside a
// collection), whether it is pinned, and a tag-specific summary. It
// exists so --debug-gc has something to walk without exposing the Obj
// interface (and its header pointer games) directly to the CLI package.
type HeapObjectSnapshot struct {
	Tag    ObjectTag
	Marked bool
	Pinned bool
	Detail string
}

// DumpHeap walks the VM's allocation list and renders it with
// github.com/davecgh/go-spew, for a developer-facing `--debug-gc` dump
// (spec §4.5's object list, not the language-level `print`/template
// stringification routine of §4.6, which stays hand-written because its
// format is a language-observable contract).
func (vm *VM) DumpHeap() string {
	var snapshots []HeapObjectSnapshot
	for o := vm.objects; o != nil; o = o.header().Next {
		h := o.header()
		snapshots = append(snapshots, HeapObjectSnapshot{
			Tag:    o.Tag(),
			Marked: h.Marked,
			Pinned: h.Pin > 0,
			Detail: heapObjectDetail(o),
		})
	}
	return spew.Sdump(snapshots)
}

func heapObjectDetail(o Obj) string {
	switch v := o.(type) {
	case *ObjString:
		return string(v.Bytes)
	case *ObjFunction:
		if v.Name == nil {
			return "<script>"
		}
		return string(v.Name.Bytes)
	case *ObjClosure:
		return heapObjectDetail(v.Fn)
	case *ObjClass:
		return string(v.Name.Bytes)
	case *ObjInstance:
		return string(v.Class.Name.Bytes) + " instance"
	case *ObjNative:
		return v.Name
	case *ObjArray:
		return fmt.Sprintf("array[%d]", len(v.Elements))
	default:
		return ""
	}
}
