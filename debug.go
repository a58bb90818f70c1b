package main

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/nf/intcode/intcode"
	"github.com/nf/intcode/wire"
)

type debugger struct {
	run *wire.Runner

	log   *tview.TextView
	watch *tview.TextView
	state *tview.TextView
	input *tview.InputField
	cols  *tview.Flex
	rows  *tview.Flex
	app   *tview.Application

	brk *symbol

	mu      sync.Mutex
	syms    symbols
	watches []symbol
}

func (d *debugger) symbols() symbols {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.syms
}

func (d *debugger) setSymbols(s symbols) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syms = s
}

func newDebugger() *debugger {
	d := &debugger{
		log: tview.NewTextView().
			SetMaxLines(1000),
		watch: tview.NewTextView().
			SetWrap(false).
			SetTextAlign(tview.AlignRight),
		state: tview.NewTextView().
			SetWrap(false),
		input: tview.NewInputField(),
		cols:  tview.NewFlex(),
		rows: tview.NewFlex().
			SetDirection(tview.FlexRow),
		app: tview.NewApplication(),
	}
	d.log.SetChangedFunc(func() { d.app.Draw() })
	d.watch.SetBackgroundColor(tcell.ColorDarkBlue)
	d.state.SetBackgroundColor(tcell.ColorDarkGrey)
	d.cols.
		AddItem(d.watch, 0, 1, false).
		AddItem(d.log, 0, 2, false)
	d.rows.
		AddItem(d.cols, 0, 1, false).
		AddItem(d.state, 3, 0, false).
		AddItem(d.input, 1, 0, true)
	d.app.SetRoot(d.rows, true)

	d.input.SetAutocompleteFunc(func(t string) (entries []string) {
		if cmd, arg, ok := strings.Cut(t, " "); ok {
			switch cmd {
			case "b", "break", "w", "watch":
				for _, s := range d.symbols().withLabelPrefix(arg) {
					entries = append(entries, cmd+" "+s.label)
				}
			}
		}
		return
	})
	d.input.SetAutocompletedFunc(func(t string, index, src int) bool {
		if src != tview.AutocompletedNavigate {
			d.input.SetText(t)
		}
		return src == tview.AutocompletedEnter || src == tview.AutocompletedClick
	})
	d.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		cmd := d.input.GetText()
		if cmd == "" {
			return
		}
		d.input.SetText("")
		if cmd == "exit" {
			d.app.Stop()
			return
		}
		if cmd, arg, ok := strings.Cut(cmd, " "); ok {
			s, ok := d.symbols().resolve(strings.TrimSpace(arg))
			if !ok {
				log.Printf("invalid address %q", arg)
				return
			}
			switch cmd {
			case "b", "break":
				d.run.Debug(cmd, s.addr)
				d.mu.Lock()
				d.brk = &s
				d.mu.Unlock()
				log.Printf("set break %d", s.addr)
			case "w", "watch":
				d.mu.Lock()
				d.watches = append(d.watches, s)
				d.mu.Unlock()
				log.Printf("watching %d", s.addr)
			default:
				log.Printf("unknown command %q", cmd)
			}
			return
		}
		switch cmd {
		case "b", "break":
			d.run.Debug(cmd, -1)
			d.mu.Lock()
			d.brk = nil
			d.mu.Unlock()
			log.Print("cleared break")
		default:
			d.run.Debug(cmd, 0)
		}
	})
	return d
}

func (d *debugger) Run() error { return d.app.Run() }

func (d *debugger) StateFunc(m *intcode.Machine, k wire.StateKind) {
	var (
		watch = d.watchContent(m)
		state string
	)
	if k != wire.ClearState && k != wire.QuietState {
		state = stateMsg(d.symbols(), m, k)
	}
	d.app.QueueUpdateDraw(func() {
		switch k {
		case wire.ClearState:
			d.state.SetTextColor(tcell.ColorBlack)
			d.state.SetBackgroundColor(tcell.ColorDarkGrey)
		case wire.BreakState:
			d.state.SetTextColor(tcell.ColorYellow)
			d.state.SetBackgroundColor(tcell.ColorDarkBlue)
		case wire.PauseState:
			d.state.SetTextColor(tcell.ColorWhite)
			d.state.SetBackgroundColor(tcell.ColorDarkBlue)
		case wire.HaltState:
			d.state.SetTextColor(tcell.ColorWhite)
			d.state.SetBackgroundColor(tcell.ColorDarkRed)
		}
		d.watch.SetText(watch)
		if k != wire.QuietState {
			d.state.SetText(state)
		}
	})
}

func stateMsg(syms symbols, m *intcode.Machine, k wire.StateKind) string {
	var (
		word  = m.Mem.Read(m.PC)
		instr string
		pcSym string
	)
	if in, err := intcode.Decode(word); err != nil {
		instr = fmt.Sprintf("%d (%v)", word, err)
	} else {
		args := make([]int64, in.Op.Arity())
		for i := range args {
			args[i] = m.Mem.Read(m.PC + int64(i) + 1)
		}
		instr = in.Format(args...)
	}
	if s := syms.forAddr(m.PC); len(s) > 0 {
		pcSym = s[0].String() + " -> "
	}
	kind := "       "
	switch k {
	case wire.BreakState:
		kind = "[break]"
	case wire.PauseState:
		kind = "[pause]"
	case wire.HaltState:
		kind = "[HALT!]"
	}
	halt := ""
	if m.Halted {
		halt = m.Reason.String()
	}
	return fmt.Sprintf("%6d %s %s%s\nbase: %d idle: %d %s\nmem: %d cells\n",
		m.PC, kind, pcSym, instr, m.Base, m.Idle, halt, m.Mem.Len())
}

func (d *debugger) watchContent(m *intcode.Machine) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	if s := d.brk; s != nil {
		fmt.Fprintf(&b, "%s [%d] brk!\n", s.label, s.addr)
	}
	for _, w := range d.watches {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s [%d] %d", w.label, w.addr, m.Mem.Read(w.addr))
	}
	return b.String()
}
