package intcode

import (
	"fmt"
	"strconv"
	"strings"
)

// Memory is the growable cell store of an Intcode machine.
// Reading past the end yields zero and writing past the end extends it.
type Memory struct {
	cells []int64
}

// NewMemory returns a Memory holding a copy of prog at addresses 0..len(prog).
func NewMemory(prog []int64) *Memory {
	m := &Memory{cells: make([]int64, len(prog))}
	copy(m.cells, prog)
	return m
}

// Read returns the value at addr, or zero if addr has never been written.
func (m *Memory) Read(addr int64) int64 {
	if addr < 0 {
		panic(BadAddress)
	}
	if addr >= int64(len(m.cells)) {
		return 0
	}
	return m.cells[addr]
}

// Write stores v at addr, growing the store if necessary.
func (m *Memory) Write(addr, v int64) {
	if addr < 0 {
		panic(BadAddress)
	}
	if addr >= int64(len(m.cells)) {
		m.grow(addr + 1)
	}
	m.cells[addr] = v
}

func (m *Memory) grow(n int64) {
	if n <= int64(cap(m.cells)) {
		m.cells = m.cells[:n]
		return
	}
	c := 2 * int64(cap(m.cells))
	if c < n {
		c = n
	}
	cells := make([]int64, n, c)
	copy(cells, m.cells)
	m.cells = cells
}

// Len returns the current extent of the store.
func (m *Memory) Len() int { return len(m.cells) }

// Cells returns a copy of every cell up to the highest ever-written address.
func (m *Memory) Cells() []int64 {
	c := make([]int64, len(m.cells))
	copy(c, m.cells)
	return c
}

func (m *Memory) String() string { return Format(m.cells) }

// Parse reads a program from its comma separated text form.
func Parse(text string) ([]int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty program")
	}
	fields := strings.Split(text, ",")
	prog := make([]int64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("token %d: %q is not an integer", i, f)
		}
		prog[i] = v
	}
	return prog, nil
}

// Format returns the comma separated text form of prog.
func Format(prog []int64) string {
	var b strings.Builder
	for i, v := range prog {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(v, 10))
	}
	return b.String()
}
