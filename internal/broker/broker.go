// Package broker implements the event loop that ties the transport,
// configuration parser, registry, coordinator, trace sink and status
// endpoint together: poll the transport's descriptor with a timeout,
// decode one message once it's readable, route it to a handler, emit
// zero or more outbound messages, and go back to polling. No message is
// ever handled concurrently with another.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/beroset/fncs/internal/config"
	"github.com/beroset/fncs/internal/coordinator"
	"github.com/beroset/fncs/internal/fault"
	"github.com/beroset/fncs/internal/status"
	"github.com/beroset/fncs/internal/trace"
	"github.com/beroset/fncs/internal/transport"
	"github.com/beroset/fncs/internal/wire"
)

// pollInterval bounds how long the loop waits on the transport's
// descriptor before re-checking ctx for a cancellation request. It keeps
// a termination signal's broadcast-DIE-then-exit path (see Run) from
// being delayed behind an indefinite blocking Recv.
const pollInterval = 200 * time.Millisecond

// StatusPublisher is the subset of status.Server the dispatcher depends on,
// so Run can be exercised in tests without a real HTTP server.
type StatusPublisher interface {
	Publish(status.Snapshot)
}

// Broker wires together one running instance of the coordination loop.
type Broker struct {
	transport transport.Transport
	coord     *coordinator.Coordinator
	trace     trace.Sink
	statusPub StatusPublisher // nil if the status endpoint is disabled
	log       *logrus.Entry
}

// New builds a Broker ready to Run. statusPub may be nil.
func New(t transport.Transport, coord *coordinator.Coordinator, traceSink trace.Sink, statusPub StatusPublisher) *Broker {
	return &Broker{
		transport: t,
		coord:     coord,
		trace:     traceSink,
		statusPub: statusPub,
		log:       logrus.WithField("component", "broker"),
	}
}

// Run drives the event loop to completion, returning the process exit code:
// 0 on graceful termination, 1 on any abort path. ctx being cancelled
// (wired to SIGINT/SIGTERM by the caller) is itself an abort path: the
// loop notices at the next poll timeout, broadcasts DIE to every
// registered peer, and returns, same as any other fatal error.
func (b *Broker) Run(ctx context.Context) int {
	defer b.coord.Stop()

	fd := b.transport.PollFD()

	for {
		if cancelled, err := b.waitUntilReadable(ctx, fd); err != nil {
			b.log.WithError(err).Error("poll failed, aborting")
			b.abort()
			return 1
		} else if cancelled {
			b.log.Warn("context cancelled, aborting")
			b.abort()
			return 1
		}

		sender, frames, err := b.transport.Recv()
		if err != nil {
			b.log.WithError(err).Error("transport receive failed, aborting")
			b.abort()
			return 1
		}

		msg, err := wire.DecodeInbound(sender, frames)
		if err != nil {
			b.log.WithError(err).Error("malformed message, aborting")
			b.abort()
			return 1
		}

		exitCode, done, err := b.dispatch(msg)
		if err != nil {
			b.log.WithError(err).WithField("sender", msg.Sender).Error("aborting")
			b.abort()
			return 1
		}
		if done {
			return exitCode
		}

		if b.statusPub != nil {
			b.statusPub.Publish(b.snapshot())
		}
	}
}

// waitUntilReadable blocks until either the transport has a message ready
// or ctx is cancelled, whichever comes first. When fd is -1 (the Fake
// transport, whose Recv never blocks) it only checks ctx and returns
// immediately otherwise, since there is nothing to poll.
func (b *Broker) waitUntilReadable(ctx context.Context, fd int) (cancelled bool, err error) {
	if fd < 0 {
		select {
		case <-ctx.Done():
			return true, nil
		default:
			return false, nil
		}
	}

	pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		select {
		case <-ctx.Done():
			return true, nil
		default:
		}

		n, err := unix.Poll(pollFds, int(pollInterval/time.Millisecond))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false, fmt.Errorf("%w: poll transport fd: %v", fault.ErrTransport, err)
		}
		if n > 0 {
			return false, nil
		}
	}
}

// dispatch routes one decoded message to its handler. done is true once
// the loop must stop (graceful termination); exitCode is only meaningful
// when done is true.
func (b *Broker) dispatch(msg *wire.Inbound) (exitCode int, done bool, err error) {
	switch msg.Kind {
	case wire.KindHello:
		return 0, false, b.handleHello(msg)
	case wire.KindTimeRequest:
		return 0, false, b.handleTimeRequest(msg)
	case wire.KindTimeDelta:
		return 0, false, b.handleTimeDelta(msg)
	case wire.KindPublish:
		return 0, false, b.handlePublish(msg)
	case wire.KindBye:
		return b.handleBye(msg)
	case wire.KindDie:
		return 0, false, b.handleDie(msg)
	default:
		return 0, false, errors.New("unreachable: unknown Kind from DecodeInbound")
	}
}

func (b *Broker) handleHello(msg *wire.Inbound) error {
	cfg, err := config.Parse(msg.Config)
	if err != nil {
		return err
	}

	roster, ready, err := b.coord.HandleHello(msg.Sender, cfg)
	if err != nil {
		return err
	}

	b.log.WithFields(logrus.Fields{"sender": msg.Sender, "time_delta": cfg.TimeDelta}).Info("HELLO received")

	if !ready {
		return nil
	}

	total := b.coord.Expected()
	for _, sim := range roster {
		if err := b.transport.Send([]byte(sim.Name), wire.AckFrames(sim.Ordinal, total)...); err != nil {
			return err
		}
	}
	b.log.Info("registration complete, broker running")
	return nil
}

func (b *Broker) handleTimeRequest(msg *wire.Inbound) error {
	grants, err := b.coord.HandleTimeRequest(msg.Sender, msg.Time)
	if err != nil {
		return err
	}
	return b.sendGrants(grants)
}

func (b *Broker) handleTimeDelta(msg *wire.Inbound) error {
	return b.coord.HandleTimeDelta(msg.Sender, msg.Time)
}

func (b *Broker) handlePublish(msg *wire.Inbound) error {
	reg := b.coord.Registry()
	if _, err := reg.Lookup(msg.Sender); err != nil {
		return err
	}

	b.trace.Write(b.coord.TimeGranted(), msg.Topic, msg.Value)

	subs := reg.Subscribers(msg.Topic)
	if len(subs) == 0 {
		b.log.WithField("topic", msg.Topic).Info("dropping PUBLISH with no subscribers")
		return nil
	}

	for _, sim := range subs {
		if err := b.transport.Send([]byte(sim.Name), wire.PublishFrames(msg.Topic, msg.Value)...); err != nil {
			return err
		}
		sim.MessagesPending = true
	}
	return nil
}

func (b *Broker) handleBye(msg *wire.Inbound) (exitCode int, done bool, err error) {
	grants, terminate, duplicate, err := b.coord.HandleBye(msg.Sender)
	if err != nil {
		return 0, false, err
	}
	if duplicate {
		b.log.WithField("sender", msg.Sender).Warn("duplicate BYE")
	}

	if terminate {
		if err := b.broadcast(wire.ByeFrames()); err != nil {
			return 0, false, err
		}
		b.log.Info("all simulators departed, exiting gracefully")
		return 0, true, nil
	}

	if err := b.sendGrants(grants); err != nil {
		return 0, false, err
	}
	return 0, false, nil
}

// handleDie handles a simulator sending DIE, which asks to abort the whole
// session: the returned error makes Run broadcast DIE to every registered
// peer and exit with failure.
func (b *Broker) handleDie(msg *wire.Inbound) error {
	return fmt.Errorf("DIE received from %s", msg.Sender)
}

func (b *Broker) sendGrants(grants []coordinator.Grant) error {
	for _, g := range grants {
		if err := b.transport.Send([]byte(g.Sim.Name), wire.TimeRequestFrames(g.Time)...); err != nil {
			return err
		}
	}
	return nil
}

// broadcast sends frames to every registered simulator in ordinal order.
func (b *Broker) broadcast(frames [][]byte) error {
	for _, sim := range b.coord.Registry().All() {
		if err := b.transport.Send([]byte(sim.Name), frames...); err != nil {
			return err
		}
	}
	return nil
}

// abort broadcasts DIE to every registered simulator. Send failures here
// are logged, not returned: the process is already exiting with failure.
func (b *Broker) abort() {
	if err := b.broadcast(wire.DieFrames()); err != nil {
		b.log.WithError(err).Error("failed to broadcast DIE during abort")
	}
}

func (b *Broker) snapshot() status.Snapshot {
	reg := b.coord.Registry()
	sims := reg.All()
	out := make([]status.SimSnapshot, len(sims))
	for i, sim := range sims {
		out[i] = status.SimSnapshot{
			Name:              sim.Name,
			Ordinal:           sim.Ordinal,
			TimeDelta:         sim.TimeDelta,
			TimeRequested:     sim.TimeRequested,
			TimeLastProcessed: sim.TimeLastProcessed,
			Processing:        sim.Processing,
			MessagesPending:   sim.MessagesPending,
		}
	}
	return status.Snapshot{
		TimeGranted: b.coord.TimeGranted(),
		NProcessing: b.coord.NProcessing(),
		Expected:    b.coord.Expected(),
		Registered:  reg.Len(),
		Departed:    reg.DepartedCount(),
		Simulators:  out,
	}
}
