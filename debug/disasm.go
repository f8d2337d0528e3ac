// Package debug renders a compiled Chunk as a human-readable instruction
// listing, the Go-native replacement for original_source/src/debug.c's
// disassembleChunk/disassembleInstruction. Where the teacher's
// developgo-agora/compiler/asm.go scans a text encoding of already-assembled
// bytecode section by section, this package walks an in-memory Chunk
// directly and renders it as a table instead of re-parsing text.
package debug

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/loxvm/loxvm/bytecode"
	"github.com/loxvm/loxvm/runtime"
)

var opColor = color.New(color.FgCyan, color.Bold).SprintFunc()

// DisassembleChunk writes name and every instruction in chunk to w as a
// table of offset, source line, opcode, and decoded operands. Nested
// function constants are disassembled recursively after the enclosing
// chunk's table, in the order their OpClosure instructions appear, matching
// clox's recursive dump of nested prototypes.
func DisassembleChunk(w io.Writer, chunk *bytecode.Chunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Offset", "Line", "Op", "Operands"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)

	var nested []*runtime.ObjFunction
	offset := 0
	for offset < len(chunk.Code) {
		next, row, fn := disassembleInstruction(chunk, offset)
		table.Append(row)
		if fn != nil {
			nested = append(nested, fn)
		}
		offset = next
	}
	table.Render()

	for _, fn := range nested {
		DisassembleChunk(w, &fn.Chunk, fnDisplayName(fn))
	}
}

func fnDisplayName(fn *runtime.ObjFunction) string {
	if fn.Name == nil {
		return "<script>"
	}
	return string(fn.Name.Bytes)
}

// disassembleInstruction decodes the instruction at offset, returning the
// offset of the next one, its table row, and -- for OpClosure -- the nested
// Function constant it references, so the caller can recurse into it.
func disassembleInstruction(chunk *bytecode.Chunk, offset int) (next int, row []string, fn *runtime.ObjFunction) {
	op := bytecode.Op(chunk.Code[offset])
	line := lineAt(chunk, offset)
	label := opColor(op.String())

	switch op {
	case bytecode.OpNil, bytecode.OpTrue, bytecode.OpFalse, bytecode.OpDup, bytecode.OpPop,
		bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpNeg, bytecode.OpNot,
		bytecode.OpEqual, bytecode.OpGreater, bytecode.OpLess, bytecode.OpIncr, bytecode.OpDecr,
		bytecode.OpCloseUpvalue, bytecode.OpReturn, bytecode.OpInherit, bytecode.OpPrint,
		bytecode.OpYield, bytecode.OpAwait,
		bytecode.OpArrayGet, bytecode.OpArraySet, bytecode.OpArrayIncr, bytecode.OpArrayDecr:
		return offset + 1, row1(offset, line, label), nil

	case bytecode.OpConst:
		idx := chunk.Code[offset+1]
		return offset + 2, row2(offset, line, label, constantOperand(chunk, idx)), nil

	case bytecode.OpPopN, bytecode.OpCall, bytecode.OpConcat, bytecode.OpArray:
		n := chunk.Code[offset+1]
		return offset + 2, row2(offset, line, label, fmt.Sprintf("%d", n)), nil

	case bytecode.OpDefineGlobal, bytecode.OpGetGlobal, bytecode.OpSetGlobal,
		bytecode.OpClass, bytecode.OpMethod, bytecode.OpGetField, bytecode.OpSetField, bytecode.OpGetSuper:
		idx := chunk.Code[offset+1]
		return offset + 2, row2(offset, line, label, constantOperand(chunk, idx)), nil

	case bytecode.OpGetLocal, bytecode.OpSetLocal, bytecode.OpGetUpvalue, bytecode.OpSetUpvalue:
		slot := chunk.Code[offset+1]
		return offset + 2, row2(offset, line, label, fmt.Sprintf("slot %d", slot)), nil

	case bytecode.OpJump, bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue:
		off := chunk.ReadUint16(offset + 1)
		target := offset + 3 + int(off)
		return offset + 3, row2(offset, line, label, fmt.Sprintf("-> %d", target)), nil

	case bytecode.OpLoop:
		off := chunk.ReadUint16(offset + 1)
		target := offset + 3 - int(off)
		return offset + 3, row2(offset, line, label, fmt.Sprintf("-> %d", target)), nil

	case bytecode.OpInvoke, bytecode.OpSuperInvoke:
		nameIdx := chunk.Code[offset+1]
		argc := chunk.Code[offset+2]
		cacheIdx := chunk.Code[offset+3]
		operand := fmt.Sprintf("%s (%d args, cache %d)", constantOperand(chunk, nameIdx), argc, cacheIdx)
		return offset + 4, row2(offset, line, label, operand), nil

	case bytecode.OpClosure:
		idx := chunk.Code[offset+1]
		pos := offset + 2
		var inner *runtime.ObjFunction
		if f, ok := chunk.Constants[idx].(*runtime.ObjFunction); ok {
			inner = f
			pos += 2 * f.UpvalueCount
		}
		return pos, row2(offset, line, label, constantOperand(chunk, idx)), inner

	default:
		return offset + 1, row1(offset, line, "UNKNOWN"), nil
	}
}

func row1(offset int, line uint32, label string) []string {
	return []string{fmt.Sprintf("%04d", offset), fmt.Sprintf("%d", line), label, ""}
}

func row2(offset int, line uint32, label, operand string) []string {
	return []string{fmt.Sprintf("%04d", offset), fmt.Sprintf("%d", line), label, operand}
}

func lineAt(chunk *bytecode.Chunk, offset int) uint32 {
	if offset < len(chunk.Locs) {
		return chunk.Locs[offset].Line
	}
	return 0
}

// constantOperand renders a chunk constant for display, whichever of
// runtime.Value or runtime.Obj it happens to be stored as (see
// bytecode.Chunk.Constants's doc comment).
func constantOperand(chunk *bytecode.Chunk, idx byte) string {
	switch c := chunk.Constants[idx].(type) {
	case runtime.Value:
		return runtime.Stringify(c)
	case runtime.Obj:
		return runtime.Stringify(runtime.ObjVal(c))
	default:
		return "?"
	}
}
