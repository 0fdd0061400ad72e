package machine

// builtinOpcodes names every builtin opcode the compiler can resolve a bare
// word to. Immediate (compile-time) words — `:`, `;`, `if`, `else`, `when`,
// `do`, `case`, `of`, `DEFAULT`, `finally`, `var`, `global` — are not
// opcodes at all and are registered by the compiler package instead, since
// their behavior is "emit/patch bytecode", not "execute at runtime".
var builtinOpcodes = map[string]Opcode{
	"dup": Dup, "drop": Drop, "swap": Swap, "over": Over, "nip": Nip,
	"tuck": Tuck, "rot": Rot, "-rot": NRot, "pick": Pick,

	"+": Add, "add": Add, "-": Sub, "sub": Sub, "*": Mul, "mul": Mul,
	"/": Div, "div": Div, "mod": Mod, "pow": Pow,
	"=": Eq, "eq": Eq, "!=": Neq, "neq": Neq, "<": Lt, "lt": Lt,
	"<=": Le, "le": Le, ">": Gt, "gt": Gt, ">=": Ge, "ge": Ge,
	"and": LogAnd, "or": LogOr, "negate": Negate, "abs": Abs,
	"floor": Floor, "ceil": Ceil, "round": Round, "not": Not,

	"pack": Pack, "unpack": Unpack, "slots": Slots, "length": Length,
	"slot": Slot, "elem": Elem, "find": Find, "keys": Keys, "values": Values,
	"cons": Cons, "concat": Concat, "head": Head, "tail": Tail,
	"uncons": Uncons, "append": Append, "reverse": Reverse,

	"gmark": GMark, "gsweep": GSweep, "gpush": GPush, "gpeek": GPeek, "gpop": GPop,

	"buffer": Buffer, "write": BufWrite, "read": BufRead, "unwrite": BufUnwrite,
	"push": BufWrite, "pop": BufRead,
	"is-empty": BufIsEmpty, "is-full": BufIsFull, "buf-size": BufSize,

	"print": Print, "print-stack": PrintStack,

	"fetch": Fetch, "load": Load, "store": Store,

	"err": GetErr, "in-finally": GetInFinally, "set-err": SetErr,
}

// RegisterBuiltins mirrors every builtin opcode into vm's dictionary as a
// CODE-tagged entry, the way the spec's startup sequence populates the
// dictionary before any user source is compiled (§4.8).
func RegisterBuiltins(vm *VM) error {
	for name, op := range builtinOpcodes {
		if err := vm.Dict.Define(name, EncodeTagged(TagCode, uint16(op), false)); err != nil {
			return err
		}
	}
	return nil
}
