package wire

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nf/intcode/intcode"
)

// StateKind describes why a Runner reported the machine state.
type StateKind int

const (
	ClearState StateKind = iota // running normally
	BreakState                  // stopped at a breakpoint
	PauseState                  // paused by the user or after a step
	HaltState                   // halted or failed
	QuietState                  // periodic update while running
)

func (k StateKind) String() string {
	switch k {
	case ClearState:
		return "clear"
	case BreakState:
		return "break"
	case PauseState:
		return "pause"
	case HaltState:
		return "halt"
	case QuietState:
		return "quiet"
	}
	return "unknown"
}

// StateFunc receives machine state from a Runner. It is called on the
// Runner's goroutine and must not retain m.
type StateFunc func(m *intcode.Machine, k StateKind)

// quietInterval is the number of ticks between QuietState reports.
const quietInterval = 1 << 16

// Runner drives a single machine under debugger control.
type Runner struct {
	Logger *zap.Logger

	state StateFunc
	ctl   chan command
	swap  chan *intcode.Machine
	done  chan bool
}

type command struct {
	cmd  string
	addr int64
}

// NewRunner returns a Runner reporting to state, which may be nil.
func NewRunner(state StateFunc) *Runner {
	if state == nil {
		state = func(*intcode.Machine, StateKind) {}
	}
	return &Runner{
		Logger: zap.NewNop(),
		state:  state,
		ctl:    make(chan command, 16),
		swap:   make(chan *intcode.Machine),
		done:   make(chan bool),
	}
}

// Debug sends a command to the Runner. Commands are:
//
//	b, break  stop when PC reaches addr (or clear the breakpoint if addr < 0)
//	s, step   execute one instruction while paused
//	c, cont   resume execution
//	p, pause  pause execution
//	exit      stop the Runner
func (r *Runner) Debug(cmd string, addr int64) {
	r.ctl <- command{cmd, addr}
}

// Swap replaces the running machine with m, for example after the
// program was rebuilt. It returns once the Runner has switched.
func (r *Runner) Swap(m *intcode.Machine) {
	r.swap <- m
	<-r.done
}

// Run executes m until ctx is done or the exit command is received.
// A machine that halts or fails stays loaded until it is swapped out.
func (r *Runner) Run(ctx context.Context, m *intcode.Machine) error {
	var (
		brk    = int64(-1)
		paused bool
		step   bool
		failed bool
		ticks  int
	)
	handle := func(c command) (exit bool) {
		switch c.cmd {
		case "b", "break":
			brk = c.addr
		case "s", "step":
			step = true
		case "c", "cont":
			paused = false
			r.state(m, ClearState)
		case "p", "pause":
			paused = true
			r.state(m, PauseState)
		case "exit":
			return true
		default:
			r.Logger.Warn("unknown debug command", zap.String("cmd", c.cmd))
		}
		return false
	}
	for {
		stopped := m.Halted || failed || (paused && !step)
		if stopped {
			select {
			case c := <-r.ctl:
				if handle(c) {
					return nil
				}
			case nm := <-r.swap:
				m, failed, paused, step = nm, false, false, false
				r.state(m, ClearState)
				r.done <- true
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		select {
		case c := <-r.ctl:
			if handle(c) {
				return nil
			}
			continue
		case nm := <-r.swap:
			m, failed, paused, step = nm, false, false, false
			r.state(m, ClearState)
			r.done <- true
			continue
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := m.Tick()
		ticks++
		switch {
		case err != nil:
			r.Logger.Error("machine failed", zap.Error(err))
			failed = true
			r.state(m, HaltState)
		case res.Kind == intcode.Halted:
			r.Logger.Info("machine halted", zap.Stringer("reason", m.Reason))
			r.state(m, HaltState)
		case step:
			step = false
			r.state(m, PauseState)
		case m.PC == brk:
			paused = true
			r.state(m, BreakState)
		case ticks%quietInterval == 0:
			r.state(m, QuietState)
		}
	}
}

// ParseCommand splits a debugger command line such as "break 12" into
// a command and an address. A missing address is returned as -1.
func ParseCommand(line string) (cmd string, addr int64, ok bool) {
	cmd, arg, found := strings.Cut(strings.TrimSpace(line), " ")
	if !found {
		return cmd, -1, cmd != ""
	}
	addr, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return cmd, -1, false
	}
	return cmd, addr, true
}
