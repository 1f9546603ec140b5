package transport

import (
	"fmt"
	"sync"

	"github.com/beroset/fncs/internal/fault"
)

// inboundMsg is one scripted message fed to a Fake transport's Recv queue.
type inboundMsg struct {
	sender []byte
	frames [][]byte
}

// OutboundMsg is one message captured by Send on a Fake transport.
type OutboundMsg struct {
	Dest   []byte
	Frames [][]byte
}

// Fake is an in-memory Transport used by tests to drive the dispatcher
// without a real ZeroMQ context, the way luc527-tcc/go/conn separates the
// Conn interface from its socket-backed implementation.
type Fake struct {
	mu      sync.Mutex
	inbound []inboundMsg
	sent    []OutboundMsg
	closed  bool
}

// NewFake returns an empty Fake transport.
func NewFake() *Fake {
	return &Fake{}
}

// Feed queues a message to be returned by the next call to Recv.
func (f *Fake) Feed(sender []byte, frames ...[]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, inboundMsg{sender: sender, frames: frames})
}

// Recv pops the next queued message. It returns ErrTransport once the queue
// is drained, so a test loop terminates instead of blocking forever.
func (f *Fake) Recv() ([]byte, [][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbound) == 0 {
		return nil, nil, fmt.Errorf("%w: fake transport queue drained", fault.ErrTransport)
	}
	m := f.inbound[0]
	f.inbound = f.inbound[1:]
	return m.sender, m.frames, nil
}

// Send records the outbound message for later assertions.
func (f *Fake) Send(dest []byte, frames ...[]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, OutboundMsg{Dest: dest, Frames: frames})
	return nil
}

// Sent returns every message passed to Send so far, in send order.
func (f *Fake) Sent() []OutboundMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]OutboundMsg, len(f.sent))
	copy(out, f.sent)
	return out
}

// PollFD always reports -1: Recv above never blocks, so there is no
// descriptor for the event loop to wait on.
func (f *Fake) PollFD() int { return -1 }

// Close marks the fake closed; it never errors.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
