package machine

// Opcode is a single bytecode instruction. Opcodes below OpcodeUserMin are
// builtins dispatched directly by the interpreter loop; addresses at or
// above OpcodeUserMin identify user-defined (colon-defined) code and are
// encoded as a two-byte form with the high bit of the first byte set, per
// §4.9.
type Opcode uint8

// OpcodeUserMin is the first address reserved for user code. Builtin
// opcodes occupy [0, OpcodeUserMin).
const OpcodeUserMin = 128

//nolint:revive
const (
	// stack picture: "before OPNAME after"

	Nop Opcode = iota // - Nop -

	LiteralNumber // - LiteralNumber<imm32> n
	LiteralString // - LiteralString<imm16> s
	LiteralCode   // - LiteralCode<imm16> code
	LiteralRef    // - LiteralRef<imm16> ref        ref = DATA_REF(imm16); used for global reads

	VarRef  // - VarRef<slot16> ref          ref = DATA_REF(BP+slot)
	Reserve // - Reserve<count16> -          advances RSP by count (patched)

	Fetch // ref Fetch value
	Load  // x Load v
	Store // value ref Store -

	// StoreLocal<slot16>: value -- . Assigns value into local slot. A
	// simple value overwrites the slot cell directly; a compound value is
	// relocated above RSP (extending the frame) and a DATA_REF to its new
	// header is written into the slot instead, per §4.6.
	StoreLocal

	// StoreGlobal<addr16>: value -- . Assigns value into the heap cell at
	// addr, a global's fixed indirection slot (§4.7). Same scalar-direct /
	// compound-relocated-and-ref'd split as StoreLocal, but relocating onto
	// the heap (GP) instead of the return stack (RSP).
	StoreGlobal

	Call // - Call<addr16> -    (user code only; builtins use Eval)
	Exit // - Exit -            epilogue: RSP:=BP, BP:=pop, IP:=pop

	Branch        // - Branch<off16> -            IP += off
	IfFalseBranch // cond IfFalseBranch<off16> -  if cond==0, IP += off

	SetErr        // value SetErr -
	GetErr        // - GetErr value
	SetInFinally  // - SetInFinally -
	GetInFinally  // - GetInFinally flag
	Abort         // - Abort -

	Eval // code Eval ...    dispatch builtin or user call by tag/address

	OpenList  // - OpenList -   marks start of list construction
	CloseList // - CloseList - pops to mark, pushes LIST header

	// stack shuffles (span-aware, see §4.3)
	Dup
	Drop
	Swap
	Over
	Nip
	Tuck
	Rot
	NRot // -rot
	Pick // n Pick value

	// arithmetic / comparison / logic, broadcast over lists per §4.11
	Add
	Sub
	Mul
	Div
	Mod
	Pow
	Eq
	Neq
	Lt
	Le
	Gt
	Ge
	LogAnd
	LogOr
	Negate
	Abs
	Floor
	Ceil
	Round
	Not

	// lists
	Pack
	Unpack
	Slots
	Length
	Slot
	Elem
	Find
	Keys
	Values
	Cons
	Concat
	Head
	Tail
	Uncons
	Append
	Reverse

	// globals / heap
	GMark
	GSweep
	GPush
	GPeek
	GPop

	// buffers
	Buffer
	BufWrite
	BufRead
	BufUnwrite
	BufIsEmpty
	BufIsFull
	BufSize

	// print / debug
	Print
	PrintStack

	opcodeCount
)

// opcodeNames are informational only (used by Opcode.String for the trace
// log); they are not consulted when executing an opcode.
var opcodeNames = [opcodeCount]string{
	Nop: "nop", LiteralNumber: "literal-number", LiteralString: "literal-string",
	LiteralCode: "literal-code", LiteralRef: "literal-ref", VarRef: "var-ref", Reserve: "reserve",
	Fetch: "fetch", Load: "load", Store: "store", StoreLocal: "store-local",
	StoreGlobal: "store-global",
	Call: "call", Exit: "exit",
	Branch: "branch", IfFalseBranch: "if-false-branch", SetErr: "set-err",
	GetErr: "get-err", SetInFinally: "set-in-finally",
	GetInFinally: "get-in-finally", Abort: "abort", Eval: "eval",
	OpenList: "open-list", CloseList: "close-list",
	Dup: "dup", Drop: "drop", Swap: "swap", Over: "over", Nip: "nip",
	Tuck: "tuck", Rot: "rot", NRot: "-rot", Pick: "pick",
	Add: "add", Sub: "sub", Mul: "mul", Div: "div", Mod: "mod", Pow: "pow",
	Eq: "eq", Neq: "neq", Lt: "lt", Le: "le", Gt: "gt", Ge: "ge",
	LogAnd: "and", LogOr: "or", Negate: "negate", Abs: "abs", Floor: "floor",
	Ceil: "ceil", Round: "round", Not: "not",
	Pack: "pack", Unpack: "unpack", Slots: "slots", Length: "length",
	Slot: "slot", Elem: "elem", Find: "find", Keys: "keys", Values: "values",
	Cons: "cons", Concat: "concat", Head: "head", Tail: "tail",
	Uncons: "uncons", Append: "append", Reverse: "reverse",
	GMark: "gmark", GSweep: "gsweep", GPush: "gpush", GPeek: "gpeek", GPop: "gpop",
	Buffer: "buffer", BufWrite: "write", BufRead: "read", BufUnwrite: "unwrite",
	BufIsEmpty: "is-empty", BufIsFull: "is-full", BufSize: "buf-size",
	Print: "print", PrintStack: "print-stack",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "unknown-opcode"
}

// opImmLen returns the number of immediate operand bytes following the
// opcode byte in the code segment.
func opImmLen(op Opcode) int {
	switch op {
	case LiteralNumber:
		return 4
	case LiteralString, LiteralCode, LiteralRef, VarRef, Reserve, Call, StoreLocal, StoreGlobal:
		return 2
	case Branch, IfFalseBranch:
		return 2
	default:
		return 0
	}
}
