// Package intcode provides an implementation of the Intcode computer,
// called Machine, and the channels used to connect machines together.
package intcode

import (
	"fmt"
)

// Machine is an Intcode computer.
type Machine struct {
	Mem  *Memory
	PC   int64
	Base int64 // relative base

	In  Source
	Out Sink

	// Idle counts consecutive polls of In that found nothing queued.
	Idle int

	Halted bool
	Reason HaltReason

	// Trace, if non-nil, is called before each instruction is executed.
	Trace func(pc int64, in Instr)

	seed []int64
	last int64
	out  bool
}

// NewMachine returns a Machine whose memory holds a copy of prog.
func NewMachine(prog []int64) *Machine {
	return &Machine{Mem: NewMemory(prog)}
}

// Load parses program text and returns a Machine loaded with it.
func Load(text string) (*Machine, error) {
	prog, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return NewMachine(prog), nil
}

// Clone returns a fresh, unwired Machine over a copy of m's memory.
func (m *Machine) Clone() *Machine {
	return &Machine{Mem: NewMemory(m.Mem.cells), PC: m.PC, Base: m.Base}
}

// Seed appends values to the pre-seeded input list, which is consumed
// before In.
func (m *Machine) Seed(vs ...int64) { m.seed = append(m.seed, vs...) }

// Seeded returns the number of pre-seeded values not yet consumed.
func (m *Machine) Seeded() int { return len(m.seed) }

// Patch writes v at addr, for setting up a program before it runs.
func (m *Machine) Patch(addr, v int64) error {
	if addr < 0 {
		return &HaltError{HaltCode: BadAddress, Addr: addr}
	}
	m.Mem.Write(addr, v)
	return nil
}

// LinkInput sets the source read once the pre-seeded values run out.
func (m *Machine) LinkInput(s Source) { m.In = s }

// LinkOutput sets the sink that receives output values.
func (m *Machine) LinkOutput(s Sink) { m.Out = s }

// Output returns the last value output while no sink was linked.
func (m *Machine) Output() (int64, bool) { return m.last, m.out }

// Tick executes the instruction at m.PC. It only returns a non-nil error,
// always a *HaltError, if it encounters a fatal condition.
func (m *Machine) Tick() (res TickResult, err error) {
	if m.Halted {
		return TickResult{Kind: Halted}, nil
	}
	var (
		opPC = m.PC
		in   Instr
	)
	defer func() {
		if e := recover(); e != nil {
			if code, ok := e.(HaltCode); ok {
				err = &HaltError{HaltCode: code, Instr: in, Addr: opPC}
			} else {
				panic(e)
			}
		}
	}()

	in, err = Decode(m.Mem.Read(m.PC))
	if err != nil {
		return res, &HaltError{HaltCode: err.(HaltCode), Instr: in, Addr: opPC}
	}
	if m.Trace != nil {
		m.Trace(opPC, in)
	}
	return m.exec(in), nil
}

func (m *Machine) exec(in Instr) TickResult {
	var (
		pc   = m.PC
		next = pc + in.Op.Width()
	)
	switch in.Op {
	case ADD:
		m.store(in, 3, m.load(in, 1)+m.load(in, 2))
	case MUL:
		m.store(in, 3, m.load(in, 1)*m.load(in, 2))
	case IN:
		v, state := m.recv()
		switch state {
		case Closed:
			m.halt(HaltInputClosed)
			return TickResult{Kind: Halted}
		case Empty:
			m.store(in, 1, -1)
			m.PC = next
			return TickResult{Kind: NeedsInput}
		}
		m.store(in, 1, v)
	case OUT:
		v := m.load(in, 1)
		m.PC = next
		if !m.send(v) {
			m.halt(HaltPeerGone)
			return TickResult{Kind: Halted}
		}
		return TickResult{Kind: Produced, Value: v}
	case JNZ:
		if m.load(in, 1) != 0 {
			next = m.load(in, 2)
		}
	case JZ:
		if m.load(in, 1) == 0 {
			next = m.load(in, 2)
		}
	case LT:
		m.store(in, 3, boolInt(m.load(in, 1) < m.load(in, 2)))
	case EQ:
		m.store(in, 3, boolInt(m.load(in, 1) == m.load(in, 2)))
	case ARB:
		m.Base += m.load(in, 1)
	case HALT:
		m.halt(HaltOpcode)
		return TickResult{Kind: Halted}
	default:
		panic(BadOpcode)
	}
	m.PC = next
	return TickResult{Kind: Continued}
}

// Run executes instructions until the machine halts or, with a polling
// input, finds no input queued.
func (m *Machine) Run() (RunResult, error) {
	for {
		r, err := m.Tick()
		if err != nil {
			return Blocked, err
		}
		switch r.Kind {
		case Halted:
			return Finished, nil
		case NeedsInput:
			return Blocked, nil
		}
	}
}

// addr returns the address referred to by parameter i (1-based).
func (m *Machine) addr(in Instr, i int) int64 {
	p := m.Mem.Read(m.PC + int64(i))
	switch in.Modes[i-1] {
	case Position:
		return p
	case Relative:
		return m.Base + p
	case Immediate:
		panic(ImmediateWrite)
	}
	panic(BadMode)
}

func (m *Machine) load(in Instr, i int) int64 {
	if in.Modes[i-1] == Immediate {
		return m.Mem.Read(m.PC + int64(i))
	}
	return m.Mem.Read(m.addr(in, i))
}

func (m *Machine) store(in Instr, i int, v int64) {
	m.Mem.Write(m.addr(in, i), v)
}

func (m *Machine) recv() (int64, RecvState) {
	if len(m.seed) > 0 {
		v := m.seed[0]
		m.seed = m.seed[1:]
		m.Idle = 0
		return v, Ready
	}
	if m.In == nil {
		panic(InputNotWired)
	}
	v, state := m.In.Recv()
	switch state {
	case Ready:
		m.Idle = 0
	case Empty:
		m.Idle++
	}
	return v, state
}

func (m *Machine) send(v int64) bool {
	if m.Out == nil {
		m.last, m.out = v, true
		return true
	}
	return m.Out.Send(v)
}

func (m *Machine) halt(r HaltReason) {
	m.Halted = true
	m.Reason = r
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// TickKind is the outcome of executing a single instruction.
type TickKind int

const (
	Continued  TickKind = iota
	Halted                // the machine stopped; see Machine.Reason
	Produced              // an output value was emitted
	NeedsInput            // a polling input was empty and -1 was read
)

func (k TickKind) String() string {
	switch k {
	case Continued:
		return "continued"
	case Halted:
		return "halted"
	case Produced:
		return "produced"
	case NeedsInput:
		return "needs input"
	}
	return "unknown"
}

// TickResult is returned by Tick. Value is set when Kind is Produced.
type TickResult struct {
	Kind  TickKind
	Value int64
}

// RunResult is returned by Run.
type RunResult int

const (
	Finished RunResult = iota // the machine halted
	Blocked                   // the machine is waiting for polled input
)

func (r RunResult) String() string {
	if r == Blocked {
		return "blocked"
	}
	return "finished"
}

// HaltReason records which transition halted a machine.
type HaltReason int

const (
	NotHalted       HaltReason = iota
	HaltOpcode                 // executed opcode 99
	HaltPeerGone               // an output was sent to a dropped consumer
	HaltInputClosed            // an input was read from a dropped producer
)

func (r HaltReason) String() string {
	switch r {
	case NotHalted:
		return "running"
	case HaltOpcode:
		return "halt instruction"
	case HaltPeerGone:
		return "output consumer gone"
	case HaltInputClosed:
		return "input producer gone"
	}
	return "unknown"
}

// HaltError is returned by Tick and Run if execution hits a
// fatal condition.
type HaltError struct {
	HaltCode
	Instr Instr
	Addr  int64
}

func (e *HaltError) Error() string {
	if e.Instr.Op.Valid() {
		return fmt.Sprintf("%s executing %s at %d", e.HaltCode, e.Instr, e.Addr)
	}
	return fmt.Sprintf("%s at %d", e.HaltCode, e.Addr)
}

func (e *HaltError) Unwrap() error { return e.HaltCode }

// HaltCode signifies the type of fatal condition that stopped execution.
type HaltCode byte

const (
	BadOpcode HaltCode = iota + 1
	BadMode
	BadAddress
	ImmediateWrite
	InputNotWired
)

func (c HaltCode) String() string {
	if s, ok := map[HaltCode]string{
		BadOpcode:      "unknown opcode",
		BadMode:        "unknown parameter mode",
		BadAddress:     "negative address",
		ImmediateWrite: "write to immediate parameter",
		InputNotWired:  "input not wired",
	}[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown (%.2x)", byte(c))
}

func (c HaltCode) Error() string { return c.String() }
