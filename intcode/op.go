package intcode

import (
	"fmt"
	"strings"
)

// Op represents an Intcode opcode.
type Op int64

const (
	ADD  Op = 1
	MUL  Op = 2
	IN   Op = 3
	OUT  Op = 4
	JNZ  Op = 5
	JZ   Op = 6
	LT   Op = 7
	EQ   Op = 8
	ARB  Op = 9
	HALT Op = 99
)

type opInfo struct {
	name  string
	arity int
	dest  int // 1-based index of the write parameter, 0 if none
}

var opInfos = map[Op]opInfo{
	ADD:  {"ADD", 3, 3},
	MUL:  {"MUL", 3, 3},
	IN:   {"IN", 1, 1},
	OUT:  {"OUT", 1, 0},
	JNZ:  {"JNZ", 2, 0},
	JZ:   {"JZ", 2, 0},
	LT:   {"LT", 3, 3},
	EQ:   {"EQ", 3, 3},
	ARB:  {"ARB", 1, 0},
	HALT: {"HALT", 0, 0},
}

// Valid reports whether o is one of the ten known opcodes.
func (o Op) Valid() bool {
	_, ok := opInfos[o]
	return ok
}

// Arity returns the number of parameters that follow the instruction word.
func (o Op) Arity() int { return opInfos[o].arity }

// Width returns the number of cells occupied by the instruction,
// including the instruction word itself.
func (o Op) Width() int64 { return int64(o.Arity()) + 1 }

// Dest returns the 1-based index of the parameter the instruction
// writes to, or 0 if it writes to memory not at all.
func (o Op) Dest() int { return opInfos[o].dest }

func (o Op) String() string {
	if i, ok := opInfos[o]; ok {
		return i.name
	}
	return fmt.Sprintf("op(%d)", int64(o))
}

// Mode is a parameter addressing mode.
type Mode byte

const (
	Position  Mode = 0
	Immediate Mode = 1
	Relative  Mode = 2
)

func (m Mode) String() string {
	switch m {
	case Position:
		return "position"
	case Immediate:
		return "immediate"
	case Relative:
		return "relative"
	}
	return fmt.Sprintf("mode(%d)", byte(m))
}

// prefix is the single character used when rendering operands.
func (m Mode) prefix() string {
	switch m {
	case Immediate:
		return "#"
	case Relative:
		return "~"
	}
	return "@"
}

// Instr is a decoded instruction word.
type Instr struct {
	Op    Op
	Modes [3]Mode
}

// Decode splits an instruction word into its opcode and parameter modes.
// The returned error, if any, is a HaltCode.
func Decode(word int64) (Instr, error) {
	in := Instr{Op: Op(word % 100)}
	if !in.Op.Valid() {
		return in, BadOpcode
	}
	modes := word / 100
	for i := 0; i < in.Op.Arity(); i++ {
		d := modes % 10
		modes /= 10
		if d < 0 || d > int64(Relative) {
			return in, BadMode
		}
		in.Modes[i] = Mode(d)
	}
	if d := in.Op.Dest(); d > 0 && in.Modes[d-1] == Immediate {
		return in, ImmediateWrite
	}
	return in, nil
}

// Format renders the instruction with its raw operands, for example
// "ADD @9 #10 ~3".
func (in Instr) Format(args ...int64) string {
	var b strings.Builder
	b.WriteString(in.Op.String())
	for i := 0; i < in.Op.Arity() && i < len(args); i++ {
		fmt.Fprintf(&b, " %s%d", in.Modes[i].prefix(), args[i])
	}
	return b.String()
}

func (in Instr) String() string {
	var b strings.Builder
	b.WriteString(in.Op.String())
	for i := 0; i < in.Op.Arity(); i++ {
		b.WriteByte(' ')
		b.WriteString(in.Modes[i].prefix())
	}
	return b.String()
}
