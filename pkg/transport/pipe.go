package transport

import (
	"context"
	"sync"
)

// Pipe returns two connected in-memory channels. A message sent on one
// end is received on the other. Closing either end closes both.
// Intended for tests and in-process wiring.
func Pipe() (Channel, Channel) {
	shared := &pipeShared{done: make(chan struct{})}
	aToB := make(chan []byte, pipeBuffer)
	bToA := make(chan []byte, pipeBuffer)
	a := &pipeChannel{shared: shared, send: aToB, recv: bToA, addr: "pipe(a)"}
	b := &pipeChannel{shared: shared, send: bToA, recv: aToB, addr: "pipe(b)"}
	return a, b
}

const pipeBuffer = 64

type pipeShared struct {
	closeOnce sync.Once
	done      chan struct{}
}

type pipeChannel struct {
	shared *pipeShared
	send   chan []byte
	recv   chan []byte
	addr   string
}

func (c *pipeChannel) Send(data []byte) error {
	select {
	case <-c.shared.done:
		return ErrChannelClosed
	default:
	}
	msg := make([]byte, len(data))
	copy(msg, data)
	select {
	case c.send <- msg:
		return nil
	case <-c.shared.done:
		return ErrChannelClosed
	}
}

func (c *pipeChannel) Receive() ([]byte, error) {
	select {
	case msg := <-c.recv:
		return msg, nil
	case <-c.shared.done:
		// Drain messages sent before close.
		select {
		case msg := <-c.recv:
			return msg, nil
		default:
			return nil, ErrChannelClosed
		}
	}
}

func (c *pipeChannel) Close() error {
	c.shared.closeOnce.Do(func() {
		close(c.shared.done)
	})
	return nil
}

func (c *pipeChannel) RemoteAddr() string {
	return c.addr
}

// PipeDialer hands out one end of a pre-built pipe per Open call,
// letting tests drive the connection layer without a network.
type PipeDialer struct {
	mu       sync.Mutex
	channels []Channel

	// OnOpen, when set, is called before each Open returns.
	OnOpen func(attempt int)

	attempts int
}

// AddChannel queues a channel to be returned by a future Open call.
func (d *PipeDialer) AddChannel(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = append(d.channels, ch)
}

// Open returns the next queued channel, or ErrChannelClosed when the
// queue is empty.
func (d *PipeDialer) Open(ctx context.Context) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.OnOpen != nil {
		d.OnOpen(d.attempts)
	}
	if len(d.channels) == 0 {
		return nil, ErrChannelClosed
	}
	ch := d.channels[0]
	d.channels = d.channels[1:]
	return ch, nil
}

// Attempts reports how many times Open has been called.
func (d *PipeDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}
