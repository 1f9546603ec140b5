package transport

import (
	"fmt"

	zmq "github.com/pebbe/zmq4"

	"github.com/beroset/fncs/internal/fault"
)

// ZMQRouter is a Transport backed by a ZeroMQ ROUTER socket, which tags
// every inbound message with the sending peer's identity frame so replies
// can be routed back without a separate connection per peer.
type ZMQRouter struct {
	ctx  *zmq.Context
	sock *zmq.Socket
}

// NewZMQRouter creates a ZeroMQ context, binds a ROUTER socket to endpoint,
// and returns the ready-to-use transport. On any failure the context and
// socket created so far are released before returning.
func NewZMQRouter(endpoint string) (*ZMQRouter, error) {
	ctx, err := zmq.NewContext()
	if err != nil {
		return nil, fmt.Errorf("%w: new context: %v", fault.ErrTransport, err)
	}

	sock, err := ctx.NewSocket(zmq.ROUTER)
	if err != nil {
		ctx.Term()
		return nil, fmt.Errorf("%w: new socket: %v", fault.ErrTransport, err)
	}

	if err := sock.Bind(endpoint); err != nil {
		sock.Close()
		ctx.Term()
		return nil, fmt.Errorf("%w: bind %s: %v", fault.ErrTransport, endpoint, err)
	}

	return &ZMQRouter{ctx: ctx, sock: sock}, nil
}

// Recv blocks on the ROUTER socket and splits the multipart message into its
// leading identity frame and the frames that follow.
func (t *ZMQRouter) Recv() (sender []byte, frames [][]byte, err error) {
	parts, err := t.sock.RecvMessageBytes(0)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: recv: %v", fault.ErrTransport, err)
	}
	if len(parts) == 0 {
		return nil, nil, fmt.Errorf("%w: empty message", fault.ErrTransport)
	}
	return parts[0], parts[1:], nil
}

// Send re-prepends dest as the identity frame ZeroMQ's ROUTER socket routes
// on, and sends the rest of the frames after it.
func (t *ZMQRouter) Send(dest []byte, frames ...[]byte) error {
	parts := make([]interface{}, 0, len(frames)+1)
	parts = append(parts, dest)
	for _, f := range frames {
		parts = append(parts, f)
	}
	if _, err := t.sock.SendMessage(parts...); err != nil {
		return fmt.Errorf("%w: send to %q: %v", fault.ErrTransport, dest, err)
	}
	return nil
}

// PollFD returns the ROUTER socket's underlying file descriptor (ZMQ_FD),
// the descriptor zmq4 exposes for integrating a socket into an external
// poll loop instead of calling Recv blind.
func (t *ZMQRouter) PollFD() int {
	fd, err := t.sock.GetFd()
	if err != nil {
		return -1
	}
	return fd
}

// Close releases the socket and terminates the context.
func (t *ZMQRouter) Close() error {
	if err := t.sock.Close(); err != nil {
		t.ctx.Term()
		return fmt.Errorf("%w: close socket: %v", fault.ErrTransport, err)
	}
	if err := t.ctx.Term(); err != nil {
		return fmt.Errorf("%w: terminate context: %v", fault.ErrTransport, err)
	}
	return nil
}
