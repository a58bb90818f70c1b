package intcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kr/pretty"
)

func TestNewMachine(t *testing.T) {
	for _, prog := range [][]int64{
		{},
		{99},
		{1, 0, 0, 0, 99},
		{-1, 1 << 40, -(1 << 50)},
	} {
		t.Run(fmt.Sprint(len(prog)), func(t *testing.T) {
			m := NewMachine(prog)
			if g, w := m.Mem.Len(), len(prog); g != w {
				t.Fatalf("Mem.Len() == %d, want %d", g, w)
			}
			for i, w := range prog {
				if g := m.Mem.Read(int64(i)); g != w {
					t.Errorf("Mem[%d] == %d, want %d", i, g, w)
				}
			}
			if m.PC != 0 || m.Base != 0 || m.Halted {
				t.Errorf("new machine has PC %d, Base %d, Halted %v", m.PC, m.Base, m.Halted)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	m, err := Load(" 1,9,10,3,2,3,11,0,99,30,40,50\n")
	if err != nil {
		t.Fatal(err)
	}
	if g, w := m.Mem.String(), "1,9,10,3,2,3,11,0,99,30,40,50"; g != w {
		t.Errorf("memory is %q, want %q", g, w)
	}
	for _, bad := range []string{"", "1,,2", "1,two,3", "1.5"} {
		if _, err := Load(bad); err == nil {
			t.Errorf("Load(%q) succeeded, want error", bad)
		}
	}
}

func TestTick(t *testing.T) {
	c := newExecTestCase
	for i, c := range []*execTestCase{
		c(1, 5, 6, 7, 99, 2, 3).want().mem(7, 5),
		c(1101, 2, 3, 5).want().mem(5, 5),
		c(1001, 4, 3, 4, 33).want().mem(4, 36),
		c(2, 5, 6, 0, 99, 6, 7).want().mem(0, 42),
		c(1002, 4, 3, 4, 33).want().mem(4, 99),
		c(1101, 100, -1, 4, 0).want().mem(4, 99),
		c(22201, 1, 2, 3).base(10).mem(11, 4).mem(12, 5).want().mem(13, 9),

		c(3, 3).seed(42).want().mem(3, 42),
		c(203, 5).base(10).seed(7).want().mem(15, 7),
		c(3, 5).input(emptyQueue()).want().mem(5, -1).idle(1),
		c(3, 5).idle(3).input(Values(8)).want().mem(5, 8).idle(0),
		c(3, 5).input(Values()).want().pc(0).halted(HaltInputClosed),

		c(4, 2, 77).want().output(77),
		c(104, -5).want().output(-5),
		c(204, -1).base(1).want().output(204),
		c(104, 1).sink(closedSink()).want().halted(HaltPeerGone),

		c(1105, 1, 9).want().pc(9),
		c(1105, 0, 9).want().pc(3),
		c(1106, 0, 9).want().pc(9),
		c(1106, 1, 9).want().pc(3),
		c(5, 3, 4, 1, 7).want().pc(7),
		c(2105, 1, 1).base(10).mem(11, 42).want().pc(42),

		c(1107, 1, 2, 5).want().mem(5, 1),
		c(1107, 2, 2, 5).want().mem(5, 0),
		c(1108, 2, 2, 5).want().mem(5, 1),
		c(1108, 2, 3, 5).want().mem(5, 0),
		c(7, 4, 5, 6, -3, -2).want().mem(6, 1),

		c(109, 19).base(2000).want().base(2019),
		c(109, -7).want().base(-7),
		c(9, 2, 5).want().base(5),
		c(209, -1).base(1).want().base(210),

		c(99).want().pc(0).halted(HaltOpcode),

		c(42).want().pc(0).error(BadOpcode),
		c(-1).want().pc(0).error(BadOpcode),
		c(301, 1, 2, 3).want().pc(0).error(BadMode),
		c(11101, 1, 2, 3).want().pc(0).error(ImmediateWrite),
		c(103, 3).seed(1).want().pc(0).error(ImmediateWrite),
		c(1, -1, 0, 0).want().pc(0).error(BadAddress),
		c(3, 0).want().pc(0).error(InputNotWired),
	} {
		t.Run(fmt.Sprintf("%d_%s", i, c.op()), func(t *testing.T) {
			_, err := c.m.Tick()
			var code HaltCode
			if h := (*HaltError)(nil); errors.As(err, &h) {
				code = h.HaltCode
			} else if err != nil {
				t.Fatalf("got unexpected error %v", err)
			}
			if code != c.err {
				t.Fatalf("got error %v, want %v", err, c.err)
			}
			if g, w := c.m.Mem.Cells(), c.w.Mem.Cells(); !equal(g, w) {
				t.Errorf("memory differs:\n%s", pretty.Diff(g, w))
			}
			if g, w := c.m.PC, c.w.PC; g != w {
				t.Errorf("PC is %d, want %d", g, w)
			}
			if g, w := c.m.Base, c.w.Base; g != w {
				t.Errorf("Base is %d, want %d", g, w)
			}
			if g, w := c.m.Idle, c.w.Idle; g != w {
				t.Errorf("Idle is %d, want %d", g, w)
			}
			if g, w := c.m.Reason, c.w.Reason; g != w {
				t.Errorf("halt reason is %v, want %v", g, w)
			}
			gv, gok := c.m.Output()
			wv, wok := c.w.Output()
			if gv != wv || gok != wok {
				t.Errorf("Output() is %d, %v, want %d, %v", gv, gok, wv, wok)
			}
		})
	}
}

func TestTickHalted(t *testing.T) {
	m := NewMachine([]int64{99, 104, 1})
	for i := 0; i < 3; i++ {
		r, err := m.Tick()
		if err != nil {
			t.Fatal(err)
		}
		if r.Kind != Halted {
			t.Fatalf("tick %d returned %v, want %v", i, r.Kind, Halted)
		}
	}
	if m.PC != 0 {
		t.Errorf("PC moved to %d after halt", m.PC)
	}
}

func TestTickResult(t *testing.T) {
	m := NewMachine([]int64{104, 9, 3, 11, 1101, 1, 1, 12, 99})
	m.LinkOutput(SinkFunc(func(int64) bool { return true }))
	m.LinkInput(emptyQueue())
	for i, w := range []TickResult{
		{Kind: Produced, Value: 9},
		{Kind: NeedsInput},
		{Kind: Continued},
		{Kind: Halted},
	} {
		g, err := m.Tick()
		if err != nil {
			t.Fatal(err)
		}
		if g != w {
			t.Errorf("tick %d returned %+v, want %+v", i, g, w)
		}
	}
}

func TestSelfModify(t *testing.T) {
	// The first instruction overwrites the one following it with HALT.
	m := NewMachine([]int64{1101, 99, 0, 4, 1, 0, 0, 0})
	if r, err := m.Run(); err != nil || r != Finished {
		t.Fatalf("Run() = %v, %v", r, err)
	}
	if m.PC != 4 || m.Reason != HaltOpcode {
		t.Errorf("halted at %d by %v, want 4 by %v", m.PC, m.Reason, HaltOpcode)
	}
}

func TestRun(t *testing.T) {
	const (
		compare8  = "3,9,8,9,10,9,4,9,99,-1,8"
		lessThan8 = "3,3,1107,-1,8,3,4,3,99"
		jumpZero  = "3,12,6,12,15,1,13,14,13,4,13,99,-1,0,1,9"
		around8   = "3,21,1008,21,8,20,1005,20,22,107,8,21,20,1006,20,31," +
			"1106,0,36,98,0,0,1002,21,125,20,4,20,1105,1,46,104," +
			"999,1105,1,46,1101,1000,1,20,4,20,1105,1,46,98,99"
		quine = "109,1,204,-1,1001,100,1,100,1008,100,16,101,1006,101,0,99"
	)
	for _, c := range []struct {
		prog string
		in   []int64
		out  []int64
		mem  string // expected memory prefix, if set
	}{
		{prog: "1,9,10,3,2,3,11,0,99,30,40,50", mem: "3500,9,10,70,2,3,11,0,99,30,40,50"},
		{prog: "1,0,0,0,99", mem: "2,0,0,0,99"},
		{prog: "2,3,0,3,99", mem: "2,3,0,6,99"},
		{prog: "2,4,4,5,99,0", mem: "2,4,4,5,99,9801"},
		{prog: "1,1,1,4,99,5,6,0,99", mem: "30,1,1,4,2,5,6,0,99"},
		{prog: "3,0,4,0,99", in: []int64{-17}, out: []int64{-17}},
		{prog: compare8, in: []int64{8}, out: []int64{1}},
		{prog: compare8, in: []int64{7}, out: []int64{0}},
		{prog: lessThan8, in: []int64{5}, out: []int64{1}},
		{prog: lessThan8, in: []int64{8}, out: []int64{0}},
		{prog: jumpZero, in: []int64{0}, out: []int64{0}},
		{prog: jumpZero, in: []int64{3}, out: []int64{1}},
		{prog: around8, in: []int64{7}, out: []int64{999}},
		{prog: around8, in: []int64{8}, out: []int64{1000}},
		{prog: around8, in: []int64{9}, out: []int64{1001}},
		{prog: quine, out: []int64{109, 1, 204, -1, 1001, 100, 1, 100, 1008, 100, 16, 101, 1006, 101, 0, 99}},
		{prog: "1102,34915192,34915192,7,4,7,99,0", out: []int64{1219070632396864}},
		{prog: "104,1125899906842624,99", out: []int64{1125899906842624}},
	} {
		t.Run(c.prog, func(t *testing.T) {
			m, err := Load(c.prog)
			if err != nil {
				t.Fatal(err)
			}
			m.Seed(c.in...)
			var out []int64
			m.LinkOutput(SinkFunc(func(v int64) bool {
				out = append(out, v)
				return true
			}))
			if r, err := m.Run(); err != nil || r != Finished {
				t.Fatalf("Run() = %v, %v", r, err)
			}
			if !equal(out, c.out) {
				t.Errorf("output is %v, want %v", out, c.out)
			}
			if c.mem != "" {
				if g := m.Mem.String(); len(g) < len(c.mem) || g[:len(c.mem)] != c.mem {
					t.Errorf("memory is %s, want prefix %s", g, c.mem)
				}
			}
		})
	}
}

func TestRunBlocked(t *testing.T) {
	// Read one value, output it doubled, loop. An empty poll reads -1.
	m := NewMachine([]int64{3, 11, 1002, 11, 2, 11, 4, 11, 1105, 1, 0})
	in, rx := NewChannel(Polling)
	m.LinkInput(rx)
	var out []int64
	m.LinkOutput(SinkFunc(func(v int64) bool {
		out = append(out, v)
		return true
	}))
	if r, err := m.Run(); err != nil || r != Blocked {
		t.Fatalf("Run() = %v, %v, want %v", r, err, Blocked)
	}
	in.Send(21)
	if r, err := m.Run(); err != nil || r != Blocked {
		t.Fatalf("Run() = %v, %v, want %v", r, err, Blocked)
	}
	in.Close()
	if r, err := m.Run(); err != nil || r != Finished {
		t.Fatalf("Run() = %v, %v, want %v", r, err, Finished)
	}
	if w := []int64{-2, 42, -2}; !equal(out, w) {
		t.Errorf("output is %v, want %v", out, w)
	}
	if m.Reason != HaltInputClosed {
		t.Errorf("halt reason is %v, want %v", m.Reason, HaltInputClosed)
	}
}

func TestRunDeterministic(t *testing.T) {
	prog, err := Parse("1,9,10,3,2,3,11,0,99,30,40,50")
	if err != nil {
		t.Fatal(err)
	}
	var mems [][]int64
	for i := 0; i < 2; i++ {
		m := NewMachine(prog)
		if _, err := m.Run(); err != nil {
			t.Fatal(err)
		}
		mems = append(mems, m.Mem.Cells())
	}
	if !equal(mems[0], mems[1]) {
		t.Errorf("runs differ:\n%s", pretty.Diff(mems[0], mems[1]))
	}
}

func TestRoundTrip(t *testing.T) {
	// Writes 7 at 20 and outputs it, growing memory past the program.
	m, err := Load("1101,3,4,20,4,20,99")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Run(); err != nil {
		t.Fatal(err)
	}
	text := m.Mem.String()
	m2, err := Load(text)
	if err != nil {
		t.Fatal(err)
	}
	if g := m2.Mem.String(); g != text {
		t.Errorf("reloaded memory is %s, want %s", g, text)
	}
	if _, err := m2.Run(); err != nil {
		t.Fatal(err)
	}
	g, _ := m2.Output()
	w, _ := m.Output()
	if g != w || g != 7 {
		t.Errorf("reloaded program output %d, original %d, want 7", g, w)
	}
}

func TestRelativeWrite(t *testing.T) {
	const k = 50
	m := NewMachine([]int64{109, k, 21101, 7, 8, 0, 99})
	if _, err := m.Run(); err != nil {
		t.Fatal(err)
	}
	if g := m.Mem.Read(k); g != 15 {
		t.Errorf("Mem[%d] == %d, want 15", k, g)
	}
	if g := m.Mem.Read(0); g != 109 {
		t.Errorf("Mem[0] == %d, want 109", g)
	}
}

func TestHaltErrorString(t *testing.T) {
	m := NewMachine([]int64{1, -1, 0, 0})
	_, err := m.Tick()
	if g, w := fmt.Sprint(err), "negative address executing ADD @ @ @ at 0"; g != w {
		t.Errorf("error is %q, want %q", g, w)
	}
	if !errors.Is(err, BadAddress) {
		t.Errorf("errors.Is(%v, BadAddress) is false", err)
	}
}

type execTestCase struct {
	m, w *Machine
	err  HaltCode
	set  *Machine
}

func newExecTestCase(prog ...int64) *execTestCase {
	c := &execTestCase{}
	c.m = NewMachine(prog)
	c.w = NewMachine(prog)
	if in, err := Decode(prog[0]); err == nil && in.Op != HALT {
		c.w.PC = in.Op.Width()
	}
	c.set = c.m
	return c
}

func (c *execTestCase) op() Op { return Op(c.m.Mem.Read(0) % 100) }

func (c *execTestCase) mem(addr int64, vs ...int64) *execTestCase {
	for i, v := range vs {
		c.set.Mem.Write(addr+int64(i), v)
		if c.set == c.m {
			c.w.Mem.Write(addr+int64(i), v)
		}
	}
	return c
}

func (c *execTestCase) pc(addr int64) *execTestCase {
	c.set.PC = addr
	return c
}

func (c *execTestCase) base(b int64) *execTestCase {
	c.set.Base = b
	if c.set == c.m {
		c.w.Base = b
	}
	return c
}

func (c *execTestCase) idle(n int) *execTestCase {
	c.set.Idle = n
	if c.set == c.m {
		c.w.Idle = n
	}
	return c
}

func (c *execTestCase) seed(vs ...int64) *execTestCase {
	c.set.Seed(vs...)
	return c
}

func (c *execTestCase) input(s Source) *execTestCase {
	c.set.LinkInput(s)
	return c
}

func (c *execTestCase) sink(s Sink) *execTestCase {
	c.set.LinkOutput(s)
	return c
}

// output records v as the last observed output of the machine being set.
func (c *execTestCase) output(v int64) *execTestCase {
	c.set.last, c.set.out = v, true
	return c
}

func (c *execTestCase) halted(r HaltReason) *execTestCase {
	c.set.Halted = true
	c.set.Reason = r
	return c
}

func (c *execTestCase) want() *execTestCase {
	c.set = c.w
	return c
}

func (c *execTestCase) error(code HaltCode) *execTestCase {
	c.err = code
	return c
}

func emptyQueue() *Receiver {
	_, r := NewChannel(Polling)
	return r
}

func closedSink() Sink {
	s, r := NewChannel(Blocking)
	r.Close()
	return s
}

func equal(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestClone(t *testing.T) {
	m := NewMachine([]int64{1101, 1, 2, 5, 99})
	m.Seed(3)
	m.LinkOutput(SinkFunc(func(int64) bool { return false }))
	if _, err := m.Run(); err != nil {
		t.Fatal(err)
	}
	c := m.Clone()
	if c.Halted || c.Out != nil || c.Seeded() != 0 {
		t.Errorf("clone carries run state: halted %v, out %v, seeded %d", c.Halted, c.Out, c.Seeded())
	}
	if g, w := c.Mem.String(), m.Mem.String(); g != w {
		t.Errorf("clone memory is %s, want %s", g, w)
	}
	c.Mem.Write(0, 42)
	if m.Mem.Read(0) == 42 {
		t.Errorf("clone shares memory with the original")
	}
}
