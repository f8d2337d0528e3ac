// Package bytecode defines the instruction set, constant pool, and flat
// byte-buffer chunk format produced by the compiler and consumed by the VM.
package bytecode

// Op is a single VM instruction opcode. All operands following an opcode
// byte are 1-byte unless documented otherwise; 16-bit jump offsets are
// little-endian.
type Op byte

const (
	OpNil Op = iota
	OpTrue
	OpFalse
	OpConst // Const k: push constants[k]
	OpDup
	OpPop
	OpPopN // PopN n: pop n values

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpNeg
	OpNot
	OpEqual
	OpGreater
	OpLess
	OpIncr
	OpDecr

	OpDefineGlobal // DefineGlobal k
	OpGetGlobal    // GetGlobal k
	OpSetGlobal    // SetGlobal k
	OpGetLocal     // GetLocal s
	OpSetLocal     // SetLocal s
	OpGetUpvalue   // GetUpvalue u
	OpSetUpvalue   // SetUpvalue u

	OpJump        // Jump +o16
	OpJumpIfFalse // JumpIfFalse +o16
	OpJumpIfTrue  // JumpIfTrue +o16
	OpLoop        // Loop -o16

	OpCall         // Call n
	OpClosure      // Closure k (is_local,index)*m
	OpCloseUpvalue // CloseUpvalue
	OpReturn

	OpClass       // Class k
	OpMethod      // Method k
	OpInherit     // Inherit
	OpGetField    // GetField k
	OpSetField    // SetField k
	OpInvoke      // Invoke k n c: c indexes the chunk's inline-cache slots
	OpGetSuper    // GetSuper k
	OpSuperInvoke // SuperInvoke k n c: c indexes the chunk's inline-cache slots

	OpPrint
	OpConcat // Concat n

	OpYield
	OpAwait

	OpArray     // Array n
	OpArrayGet
	OpArraySet
	OpArrayIncr
	OpArrayDecr
)

var names = map[Op]string{
	OpNil: "NIL", OpTrue: "TRUE", OpFalse: "FALSE", OpConst: "CONST",
	OpDup: "DUP", OpPop: "POP", OpPopN: "POPN",
	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV", OpNeg: "NEG",
	OpNot: "NOT", OpEqual: "EQUAL", OpGreater: "GREATER", OpLess: "LESS",
	OpIncr: "INCR", OpDecr: "DECR",
	OpDefineGlobal: "DEFINE_GLOBAL", OpGetGlobal: "GET_GLOBAL", OpSetGlobal: "SET_GLOBAL",
	OpGetLocal: "GET_LOCAL", OpSetLocal: "SET_LOCAL",
	OpGetUpvalue: "GET_UPVALUE", OpSetUpvalue: "SET_UPVALUE",
	OpJump: "JUMP", OpJumpIfFalse: "JUMP_IF_FALSE", OpJumpIfTrue: "JUMP_IF_TRUE", OpLoop: "LOOP",
	OpCall: "CALL", OpClosure: "CLOSURE", OpCloseUpvalue: "CLOSE_UPVALUE", OpReturn: "RETURN",
	OpClass: "CLASS", OpMethod: "METHOD", OpInherit: "INHERIT",
	OpGetField: "GET_FIELD", OpSetField: "SET_FIELD",
	OpInvoke: "INVOKE", OpGetSuper: "GET_SUPER", OpSuperInvoke: "SUPER_INVOKE",
	OpPrint: "PRINT", OpConcat: "CONCAT",
	OpYield: "YIELD", OpAwait: "AWAIT",
	OpArray: "ARRAY", OpArrayGet: "ARRAY_GET", OpArraySet: "ARRAY_SET",
	OpArrayIncr: "ARRAY_INCR", OpArrayDecr: "ARRAY_DECR",
}

func (op Op) String() string {
	if n, ok := names[op]; ok {
		return n
	}
	return "UNKNOWN"
}
