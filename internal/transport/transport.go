// Package transport wraps the ZeroMQ ROUTER socket the broker listens on,
// and defines the narrow interface the dispatcher depends on so it can be
// driven by an in-memory fake in tests.
package transport

// Transport is the narrow interface the event loop needs: receive one
// identity-addressed message, and send one back to a given identity.
type Transport interface {
	// Recv blocks until a message arrives, returning the sender identity
	// frame and the frames that followed it.
	Recv() (sender []byte, frames [][]byte, err error)

	// Send prepends dest as the identity frame and sends frames after it.
	Send(dest []byte, frames ...[]byte) error

	// Close releases the underlying socket and context.
	Close() error

	// PollFD returns a raw file descriptor the event loop can poll for
	// readability with a timeout, so it can periodically check for a
	// cancellation request instead of blocking in Recv indefinitely. -1
	// means the transport has no such descriptor (the in-memory Fake:
	// its Recv never blocks, so there is nothing to poll for).
	PollFD() int
}
