package intcode

import "sync"

// RecvState describes the outcome of a receive from a Source.
type RecvState int

const (
	Ready  RecvState = iota // a value was received
	Empty                   // nothing queued (polling sources only)
	Closed                  // the producer is gone and nothing is queued
)

func (s RecvState) String() string {
	switch s {
	case Ready:
		return "ready"
	case Empty:
		return "empty"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Source supplies input values to a Machine.
type Source interface {
	Recv() (int64, RecvState)
}

// Sink consumes output values from a Machine.
// Send reports false if the consumer has gone away.
type Sink interface {
	Send(v int64) bool
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(v int64) bool

func (f SinkFunc) Send(v int64) bool { return f(v) }

// Discipline selects how a Receiver behaves when its queue is empty.
type Discipline int

const (
	// Blocking receivers wait until a value arrives or the sender closes.
	Blocking Discipline = iota
	// Polling receivers return Empty immediately.
	Polling
)

func (d Discipline) String() string {
	if d == Polling {
		return "polling"
	}
	return "blocking"
}

// pipe is an unbounded ordered queue with one sender and one receiver.
type pipe struct {
	mu         sync.Mutex
	cond       sync.Cond
	buf        []int64
	sendClosed bool
	recvClosed bool
}

// Sender is the send half of a channel.
type Sender struct{ p *pipe }

// Receiver is the receive half of a channel.
type Receiver struct {
	p *pipe
	d Discipline
}

// NewChannel returns the two halves of a new unbounded channel.
// Sends never block. Receives block or poll according to d.
func NewChannel(d Discipline) (*Sender, *Receiver) {
	p := &pipe{}
	p.cond.L = &p.mu
	return &Sender{p}, &Receiver{p, d}
}

// Send appends v to the queue. It reports false if the receive half
// has been closed.
func (s *Sender) Send(v int64) bool {
	p := s.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.recvClosed || p.sendClosed {
		return false
	}
	p.buf = append(p.buf, v)
	p.cond.Signal()
	return true
}

// Close drops the send half. Queued values may still be received.
func (s *Sender) Close() {
	p := s.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendClosed = true
	p.cond.Broadcast()
}

// Len returns the number of queued values.
func (s *Sender) Len() int { return s.p.len() }

// Recv removes and returns the value at the head of the queue.
func (r *Receiver) Recv() (int64, RecvState) {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.buf) == 0 {
		if p.sendClosed || p.recvClosed {
			return 0, Closed
		}
		if r.d == Polling {
			return 0, Empty
		}
		p.cond.Wait()
	}
	v := p.buf[0]
	p.buf = p.buf[1:]
	return v, Ready
}

// Close drops the receive half. Subsequent sends fail and a receiver
// blocked in Recv returns Closed.
func (r *Receiver) Close() {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recvClosed = true
	p.buf = nil
	p.cond.Broadcast()
}

// Len returns the number of queued values.
func (r *Receiver) Len() int { return r.p.len() }

// Discipline returns the receive discipline chosen at construction.
func (r *Receiver) Discipline() Discipline { return r.d }

// Peek returns a copy of the queued values without removing them.
func (r *Receiver) Peek() []int64 {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.buf...)
}

// Drain removes and returns up to n queued values.
func (r *Receiver) Drain(n int) []int64 {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > len(p.buf) {
		n = len(p.buf)
	}
	vs := append([]int64(nil), p.buf[:n]...)
	p.buf = p.buf[n:]
	return vs
}

func (p *pipe) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// Values returns a polling source pre-filled with vs whose producer is
// already gone, so it reports Closed once vs are consumed.
func Values(vs ...int64) *Receiver {
	s, r := NewChannel(Polling)
	for _, v := range vs {
		s.Send(v)
	}
	s.Close()
	return r
}
