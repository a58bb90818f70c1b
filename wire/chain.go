// Package wire connects Intcode machines together and drives them:
// chains of machines running concurrently, an addressed network
// stepped round robin, and a single machine under debugger control.
package wire

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/tomb.v2"

	"github.com/nf/intcode/intcode"
)

// ErrNoOutput is returned by Chain.Run if the last machine never
// produced a value.
var ErrNoOutput = errors.New("chain produced no output")

// Chain is a pipeline of machines, each one's output feeding the next
// one's input, optionally closed into a feedback loop.
type Chain struct {
	Logger *zap.Logger

	nodes []*link
	tap   *tap
}

// link is a machine and the channel halves it owns.
type link struct {
	m   *intcode.Machine
	in  *intcode.Receiver
	out *intcode.Sender
}

// drop releases the machine's endpoints so its peers observe it is gone.
func (l *link) drop() {
	if l.in != nil {
		l.in.Close()
	}
	if l.out != nil {
		l.out.Close()
	}
}

// NewChain links ms in order with blocking channels. If feedback is set,
// the last machine's output feeds the first machine's input, in which
// case a pre-seeded value must break the cycle.
func NewChain(ms []*intcode.Machine, feedback bool) *Chain {
	c := &Chain{
		Logger: zap.NewNop(),
		nodes:  make([]*link, len(ms)),
		tap:    &tap{},
	}
	for i, m := range ms {
		c.nodes[i] = &link{m: m}
	}
	for i := 0; i+1 < len(ms); i++ {
		s, r := intcode.NewChannel(intcode.Blocking)
		c.nodes[i].out, c.nodes[i+1].in = s, r
		ms[i].LinkOutput(s)
		ms[i+1].LinkInput(r)
	}
	if len(ms) == 0 {
		return c
	}
	last := c.nodes[len(ms)-1]
	if feedback {
		s, r := intcode.NewChannel(intcode.Blocking)
		last.out, c.nodes[0].in = s, r
		c.tap.next = s
		ms[0].LinkInput(r)
	}
	last.m.LinkOutput(c.tap)
	return c
}

// Run starts every machine on its own goroutine and waits for all of them
// to stop. It returns the last value output by the last machine.
// Cancelling ctx drops every channel, which unblocks waiting machines.
func (c *Chain) Run(ctx context.Context) (int64, error) {
	var t tomb.Tomb
	t.Go(func() error {
		for i, l := range c.nodes {
			i, l := i, l
			t.Go(func() error {
				defer l.drop()
				if _, err := l.m.Run(); err != nil {
					return fmt.Errorf("machine %d: %w", i, err)
				}
				c.Logger.Debug("machine stopped",
					zap.Int("machine", i),
					zap.Stringer("reason", l.m.Reason))
				return nil
			})
		}
		return nil
	})
	go func() {
		select {
		case <-ctx.Done():
			for _, l := range c.nodes {
				l.drop()
			}
		case <-t.Dead():
		}
	}()
	if err := t.Wait(); err != nil {
		for _, l := range c.nodes {
			l.drop()
		}
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v, ok := c.tap.value()
	if !ok {
		return 0, ErrNoOutput
	}
	return v, nil
}

// tap records every value sent through it before forwarding it, so the
// final signal of a feedback loop survives its consumer halting.
type tap struct {
	next intcode.Sink

	mu   sync.Mutex
	last int64
	n    int
}

func (t *tap) Send(v int64) bool {
	t.mu.Lock()
	t.last = v
	t.n++
	t.mu.Unlock()
	if t.next == nil {
		return true
	}
	return t.next.Send(v)
}

func (t *tap) value() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.n > 0
}

// Amplify runs one copy of prog per phase setting as a chain. Each machine
// is seeded with its phase, and the first with the initial signal too.
func Amplify(ctx context.Context, prog, phases []int64, signal int64, feedback bool) (int64, error) {
	ms := make([]*intcode.Machine, len(phases))
	for i, p := range phases {
		ms[i] = intcode.NewMachine(prog)
		ms[i].Seed(p)
	}
	if len(ms) == 0 {
		return 0, ErrNoOutput
	}
	ms[0].Seed(signal)
	return NewChain(ms, feedback).Run(ctx)
}

// MaxThrust tries every ordering of phases and returns the highest signal
// produced from an initial signal of zero, with the ordering producing it.
func MaxThrust(ctx context.Context, prog, phases []int64, feedback bool) (best int64, order []int64, err error) {
	found := false
	err = permute(phases, func(p []int64) error {
		v, err := Amplify(ctx, prog, p, 0, feedback)
		if err != nil {
			return fmt.Errorf("phases %v: %w", p, err)
		}
		if !found || v > best {
			best, order, found = v, append([]int64(nil), p...), true
		}
		return nil
	})
	return best, order, err
}

// permute calls fn with each permutation of vs, generated by Heap's
// algorithm, stopping at the first error.
func permute(vs []int64, fn func([]int64) error) error {
	a := append([]int64(nil), vs...)
	c := make([]int, len(a))
	if err := fn(a); err != nil {
		return err
	}
	for i := 0; i < len(a); {
		if c[i] < i {
			if i%2 == 0 {
				a[0], a[i] = a[i], a[0]
			} else {
				a[c[i]], a[i] = a[i], a[c[i]]
			}
			if err := fn(a); err != nil {
				return err
			}
			c[i]++
			i = 0
		} else {
			c[i] = 0
			i++
		}
	}
	return nil
}
