package main

import (
	"bufio"
	"io"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/nf/intcode/intcode"
)

// Console connects a machine to a terminal. In ASCII mode, input lines
// are sent as character codes followed by a newline, and outputs below
// 128 are printed as characters. Otherwise each input line holds comma
// separated numbers and each output is printed on its own line.
type Console struct {
	ascii bool
	r     io.Reader
	w     *bufio.Writer

	once  sync.Once
	input *intcode.Receiver
}

func newConsole(r io.Reader, w io.Writer, ascii bool) *Console {
	return &Console{ascii: ascii, r: r, w: bufio.NewWriter(w)}
}

// Input returns the console as a machine input source.
func (c *Console) Input() intcode.Source { return consoleInput{c} }

type consoleInput struct{ c *Console }

func (in consoleInput) Recv() (int64, intcode.RecvState) {
	c := in.c
	c.once.Do(func() {
		tx, rx := intcode.NewChannel(intcode.Blocking)
		go c.readInput(tx)
		c.input = rx
	})
	c.w.Flush()
	return c.input.Recv()
}

func (c *Console) readInput(tx *intcode.Sender) {
	defer tx.Close()
	s := bufio.NewScanner(c.r)
	for s.Scan() {
		line := s.Text()
		if c.ascii {
			for i := 0; i < len(line); i++ {
				tx.Send(int64(line[i]))
			}
			tx.Send('\n')
			continue
		}
		vs, err := parseValues(line)
		if err != nil {
			zap.L().Warn("ignoring input line", zap.String("line", line), zap.Error(err))
			continue
		}
		for _, v := range vs {
			tx.Send(v)
		}
	}
	if err := s.Err(); err != nil {
		zap.L().Error("reading input", zap.Error(err))
	}
}

// Send writes an output value.
func (c *Console) Send(v int64) bool {
	if c.ascii && v >= 0 && v < 128 {
		return c.w.WriteByte(byte(v)) == nil
	}
	c.w.WriteString(strconv.FormatInt(v, 10))
	return c.w.WriteByte('\n') == nil
}

// Flush writes any buffered output.
func (c *Console) Flush() error { return c.w.Flush() }
