// Package ir builds the SSA-style intermediate module handed to the backend.
// The textual form follows the QBE intermediate language: a module holds
// functions made of labeled blocks of instructions plus global data
// definitions, and is streamed as text to the backend assembler.
package ir

import (
	"fmt"
	"strings"
)

// Type is an IR base type.
type Type uint8

const (
	// Word is a 32-bit integer.
	Word Type = iota
	// Long is a 64-bit integer (and the pointer type).
	Long
	// Single is a 32-bit float.
	Single
	// Double is a 64-bit float.
	Double
	// Byte is valid in data definitions only.
	Byte
)

func (t Type) String() string {
	switch t {
	case Word:
		return "w"
	case Long:
		return "l"
	case Single:
		return "s"
	case Double:
		return "d"
	case Byte:
		return "b"
	}
	return "?"
}

// ValueKind discriminates the three value forms.
type ValueKind uint8

const (
	// KindTemp is a function-scoped temporary (%name).
	KindTemp ValueKind = iota
	// KindGlobal is a module-scoped symbol ($name).
	KindGlobal
	// KindConst is an integer immediate.
	KindConst
	// KindConstDouble is a floating-point immediate (d_ prefix).
	KindConstDouble
)

// A Value is an operand: a temporary, a global symbol or an immediate.
type Value struct {
	Kind ValueKind
	Name string
	Num  uint64
	Flt  float64
}

// Temp returns a temporary value.
func Temp(name string) Value { return Value{Kind: KindTemp, Name: name} }

// Global returns a global symbol value.
func Global(name string) Value { return Value{Kind: KindGlobal, Name: name} }

// Const returns an integer immediate.
func Const(v uint64) Value { return Value{Kind: KindConst, Num: v} }

// ConstDouble returns a floating-point immediate.
func ConstDouble(v float64) Value { return Value{Kind: KindConstDouble, Flt: v} }

func (v Value) String() string {
	switch v.Kind {
	case KindTemp:
		return "%" + v.Name
	case KindGlobal:
		return "$" + v.Name
	case KindConst:
		return fmt.Sprintf("%d", v.Num)
	case KindConstDouble:
		return fmt.Sprintf("d_%v", v.Flt)
	}
	return "?"
}

// A TypedValue pairs a value with its type, for argument lists.
type TypedValue struct {
	Ty  Type
	Val Value
}

// An Instr is a single instruction. Instructions are built through the
// constructor functions below and rendered in QBE syntax.
type Instr struct {
	op     string
	ty     Type // for cmp, load, store
	args   []Value
	labels []string
	targs  []TypedValue // call arguments
	hasTy  bool
}

// Binary and unary arithmetic.
func Add(a, b Value) Instr { return Instr{op: "add", args: []Value{a, b}} }
func Sub(a, b Value) Instr { return Instr{op: "sub", args: []Value{a, b}} }
func Mul(a, b Value) Instr { return Instr{op: "mul", args: []Value{a, b}} }
func Div(a, b Value) Instr { return Instr{op: "div", args: []Value{a, b}} }
func Neg(a Value) Instr    { return Instr{op: "neg", args: []Value{a}} }
func Xor(a, b Value) Instr { return Instr{op: "xor", args: []Value{a, b}} }
func And(a, b Value) Instr { return Instr{op: "and", args: []Value{a, b}} }
func Or(a, b Value) Instr  { return Instr{op: "or", args: []Value{a, b}} }

// Copy propagates a value unchanged.
func Copy(a Value) Instr { return Instr{op: "copy", args: []Value{a}} }

// Cast reinterprets the bits of a value between integer and float of the
// same width.
func Cast(a Value) Instr { return Instr{op: "cast", args: []Value{a}} }

// Ultof converts an unsigned long to a double.
func Ultof(a Value) Instr { return Instr{op: "ultof", args: []Value{a}} }

// Dtoui converts a double to an unsigned integer.
func Dtoui(a Value) Instr { return Instr{op: "dtoui", args: []Value{a}} }

// CmpOp is a comparison operator mnemonic.
type CmpOp string

const (
	Eq CmpOp = "eq"
	Ne CmpOp = "ne"
	Gt CmpOp = "gt"
	Ge CmpOp = "ge"
	Lt CmpOp = "lt"
	Le CmpOp = "le"
	// unsigned orderings, integer types only
	Uge CmpOp = "uge"
	Ult CmpOp = "ult"
)

// Cmp compares a and b as values of type ty.
func Cmp(ty Type, op CmpOp, a, b Value) Instr {
	return Instr{op: "c" + string(op), ty: ty, hasTy: true, args: []Value{a, b}}
}

// Load reads a value of type ty from the address.
func Load(ty Type, addr Value) Instr {
	return Instr{op: "load", ty: ty, hasTy: true, args: []Value{addr}}
}

// Store writes val of type ty to the address.
func Store(ty Type, addr, val Value) Instr {
	return Instr{op: "store", ty: ty, hasTy: true, args: []Value{val, addr}}
}

// Alloc8 allocates n bytes of 8-byte-aligned stack space.
func Alloc8(n uint64) Instr {
	return Instr{op: "alloc8", args: []Value{Const(n)}}
}

// Call calls target (a symbol, a temporary, or an absolute address
// immediate) with the given typed arguments.
func Call(target Value, args []TypedValue) Instr {
	return Instr{op: "call", args: []Value{target}, targs: args}
}

// Jnz branches to nonzero when cond is non-zero, else to zero.
func Jnz(cond Value, nonzero, zero string) Instr {
	return Instr{op: "jnz", args: []Value{cond}, labels: []string{nonzero, zero}}
}

// Jmp jumps unconditionally.
func Jmp(label string) Instr {
	return Instr{op: "jmp", labels: []string{label}}
}

// Ret returns v from the function.
func Ret(v Value) Instr { return Instr{op: "ret", args: []Value{v}} }

func (in Instr) render(b *strings.Builder) {
	switch in.op {
	case "jnz":
		fmt.Fprintf(b, "jnz %s, @%s, @%s", in.args[0], in.labels[0], in.labels[1])
	case "jmp":
		fmt.Fprintf(b, "jmp @%s", in.labels[0])
	case "ret":
		fmt.Fprintf(b, "ret %s", in.args[0])
	case "call":
		fmt.Fprintf(b, "call %s(", in.args[0])
		for i, a := range in.targs {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s %s", a.Ty, a.Val)
		}
		b.WriteString(")")
	case "load", "store":
		fmt.Fprintf(b, "%s%s ", in.op, in.ty)
		for i, a := range in.args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(a.String())
		}
	default:
		b.WriteString(in.op)
		if in.hasTy {
			b.WriteString(in.ty.String())
		}
		b.WriteString(" ")
		for i, a := range in.args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(a.String())
		}
	}
}

type statement struct {
	dst   Value
	dstTy Type
	inst  Instr
	isAsg bool
}

// A Block is a labeled sequence of instructions.
type Block struct {
	Label string
	stmts []statement
}

// A Function is a named sequence of blocks.
type Function struct {
	Exported bool
	Name     string
	Args     []TypedValue
	RetTy    Type
	HasRet   bool
	blocks   []*Block
}

// NewFunction returns a function with the given signature. The first block
// must be added before any instruction.
func NewFunction(exported bool, name string, args []TypedValue, retTy Type) *Function {
	return &Function{Exported: exported, Name: name, Args: args, RetTy: retTy, HasRet: true}
}

// AddBlock starts a new labeled block.
func (f *Function) AddBlock(label string) {
	f.blocks = append(f.blocks, &Block{Label: label})
}

func (f *Function) last() *Block {
	if len(f.blocks) == 0 {
		panic("no block started in function " + f.Name)
	}
	return f.blocks[len(f.blocks)-1]
}

// Assign appends dst =ty instr to the current block.
func (f *Function) Assign(dst Value, ty Type, instr Instr) {
	b := f.last()
	b.stmts = append(b.stmts, statement{dst: dst, dstTy: ty, inst: instr, isAsg: true})
}

// Append appends a non-assigning instruction to the current block.
func (f *Function) Append(instr Instr) {
	b := f.last()
	b.stmts = append(b.stmts, statement{inst: instr})
}

func (f *Function) render(b *strings.Builder) {
	if f.Exported {
		b.WriteString("export ")
	}
	fmt.Fprintf(b, "function %s $%s(", f.RetTy, f.Name)
	for i, a := range f.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s %s", a.Ty, a.Val)
	}
	b.WriteString(") {\n")
	for _, blk := range f.blocks {
		fmt.Fprintf(b, "@%s\n", blk.Label)
		for _, s := range blk.stmts {
			b.WriteString("\t")
			if s.isAsg {
				fmt.Fprintf(b, "%s =%s ", s.dst, s.dstTy)
			}
			s.inst.render(b)
			b.WriteString("\n")
		}
	}
	b.WriteString("}\n")
}

// A DataItem is one element of a data definition.
type DataItem struct {
	Ty  Type
	Str string
	Num uint64
	// IsStr selects the string form.
	IsStr bool
}

// StrItem returns a string data item.
func StrItem(s string) DataItem { return DataItem{Ty: Byte, Str: s, IsStr: true} }

// ByteItem returns a single byte data item.
func ByteItem(v uint8) DataItem { return DataItem{Ty: Byte, Num: uint64(v)} }

// A DataDef is a global data definition.
type DataDef struct {
	Exported bool
	Name     string
	Items    []DataItem
}

func (d *DataDef) render(b *strings.Builder) {
	if d.Exported {
		b.WriteString("export ")
	}
	fmt.Fprintf(b, "data $%s = { ", d.Name)
	for i, it := range d.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		if it.IsStr {
			fmt.Fprintf(b, "%s %s", it.Ty, quote(it.Str))
		} else {
			fmt.Fprintf(b, "%s %d", it.Ty, it.Num)
		}
	}
	b.WriteString(" }\n")
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c >= 0x20 && c < 0x7f:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "\\x%02x", c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// A Module is a set of functions and data definitions.
type Module struct {
	funcs []*Function
	data  []*DataDef
}

// NewModule returns an empty module.
func NewModule() *Module { return &Module{} }

// AddFunction appends fn to the module and returns it for building.
func (m *Module) AddFunction(fn *Function) *Function {
	m.funcs = append(m.funcs, fn)
	return fn
}

// AddData appends a data definition to the module.
func (m *Module) AddData(d *DataDef) {
	m.data = append(m.data, d)
}

// Render returns the module in its textual form.
func (m *Module) Render() string {
	var b strings.Builder
	for _, fn := range m.funcs {
		fn.render(&b)
		b.WriteString("\n")
	}
	for _, d := range m.data {
		d.render(&b)
	}
	return b.String()
}
