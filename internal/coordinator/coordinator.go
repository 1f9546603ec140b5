// Package coordinator implements the broker's core state machine: per-round
// accounting, the next-global-time computation, grant dispatch, and the
// optional real-time pacing. Every exported method is meant to be called
// from one goroutine, the event loop's.
package coordinator

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/beroset/fncs/internal/config"
	"github.com/beroset/fncs/internal/fault"
	"github.com/beroset/fncs/internal/registry"
)

// pacingQuantum bounds how long the coordinator sleeps between checks of
// time_real while waiting to catch up to a newly computed time_granted. It
// keeps the wait a short, interruptible sleep rather than a tight spin.
const pacingQuantum = 2 * time.Millisecond

// Grant is an outbound TIME_REQUEST(time) destined for Sim.
type Grant struct {
	Sim  *registry.Simulator
	Time time.Duration
}

// Coordinator owns the registry and the per-round accounting state: how
// many simulators still hold an outstanding grant, the most recently
// announced global time, and the optional real-time pacing clock.
type Coordinator struct {
	reg *registry.Registry

	timeGranted      time.Duration
	nProcessing      int
	running          bool
	wallStart        time.Time
	realtimeInterval time.Duration
	timeReal         atomic.Int64
	ticker           *time.Ticker
}

// New creates a Coordinator that admits exactly expected simulators and, if
// realtimeInterval is nonzero, paces grants against wall-clock once running.
func New(expected int, realtimeInterval time.Duration) *Coordinator {
	return &Coordinator{
		reg:              registry.New(expected),
		realtimeInterval: realtimeInterval,
	}
}

// Registry exposes the underlying registry for the dispatcher's PUBLISH
// fan-out (C4), which only ever needs read access to state the registry
// already owns.
func (c *Coordinator) Registry() *registry.Registry { return c.reg }

// Expected returns the fixed number of simulators this broker admits.
func (c *Coordinator) Expected() int { return c.reg.Expected() }

// TimeGranted returns the most recently announced global simulated time.
func (c *Coordinator) TimeGranted() time.Duration { return c.timeGranted }

// NProcessing returns how many simulators currently hold an outstanding
// grant.
func (c *Coordinator) NProcessing() int { return c.nProcessing }

// HandleHello admits a new simulator. If this HELLO closes registration, it
// captures wall_start, starts pacing if configured, marks every simulator
// processing, and returns the full roster (in ordinal order) for the
// dispatcher to ACK; ready is false otherwise.
func (c *Coordinator) HandleHello(name string, cfg config.Config) (roster []*registry.Simulator, ready bool, err error) {
	if _, err := c.reg.Register(name, cfg.TimeDelta, cfg.Subscriptions); err != nil {
		return nil, false, err
	}

	if !c.reg.Full() {
		return nil, false, nil
	}

	c.wallStart = time.Now()
	c.timeReal.Store(0)
	if c.realtimeInterval > 0 {
		c.startPacing()
	}

	roster = c.reg.All()
	c.nProcessing = len(roster)
	for _, sim := range roster {
		sim.Processing = true
	}
	c.running = true

	return roster, true, nil
}

// HandleTimeRequest records peer's next requested time. If this completes
// the round (n_processing reaches zero), it returns the grants to dispatch.
func (c *Coordinator) HandleTimeRequest(name string, requested time.Duration) ([]Grant, error) {
	sim, err := c.reg.Lookup(name)
	if err != nil {
		return nil, err
	}

	sim.TimeRequested = requested
	sim.TimeLastProcessed = c.timeGranted
	sim.Processing = false
	c.nProcessing--

	if c.nProcessing == 0 {
		return c.computeGrants(), nil
	}
	return nil, nil
}

// HandleTimeDelta updates a simulator's intrinsic tick.
func (c *Coordinator) HandleTimeDelta(name string, delta time.Duration) error {
	if delta <= 0 {
		return fmt.Errorf("%w: TIME_DELTA must be positive, got %s", fault.ErrMalformedMessage, delta)
	}
	return c.reg.SetDelta(name, delta)
}

// HandleBye records a peer's departure. duplicate reports whether this is a
// repeat BYE from an already-departed peer, in which case the bookkeeping
// below (and any decrement of n_processing) was skipped, per spec. grants is
// non-nil only when this BYE closed the round without also being the final
// departure; terminate is true once every expected simulator has departed.
func (c *Coordinator) HandleBye(name string) (grants []Grant, terminate bool, duplicate bool, err error) {
	sim, err := c.reg.Lookup(name)
	if err != nil {
		return nil, false, false, err
	}

	duplicate = c.reg.MarkDeparted(name)
	if !duplicate {
		sim.TimeRequested = registry.MaxTime
		sim.TimeLastProcessed = c.timeGranted
		sim.Processing = false
		c.nProcessing--
	}

	if c.reg.DepartedCount() == c.reg.Expected() {
		return nil, true, duplicate, nil
	}

	if !duplicate && c.nProcessing == 0 {
		return c.computeGrants(), false, duplicate, nil
	}

	return nil, false, duplicate, nil
}

// computeGrants computes each simulator's actionable time, grants the
// minimum to every simulator tied at that minimum, and fast-forwards every
// other simulator's time_last_processed to the largest delta-aligned
// boundary not exceeding the new time_granted.
func (c *Coordinator) computeGrants() []Grant {
	sims := c.reg.All()
	actionable := make([]time.Duration, len(sims))
	for i, sim := range sims {
		if sim.MessagesPending {
			actionable[i] = sim.TimeLastProcessed + sim.TimeDelta
		} else {
			actionable[i] = sim.TimeRequested
		}
	}

	next := actionable[0]
	for _, a := range actionable[1:] {
		if a < next {
			next = a
		}
	}
	c.timeGranted = next

	if c.realtimeInterval > 0 {
		c.waitForRealTime(next)
	}

	var grants []Grant
	for i, sim := range sims {
		if actionable[i] == c.timeGranted {
			sim.Processing = true
			sim.MessagesPending = false
			c.nProcessing++
			grants = append(grants, Grant{Sim: sim, Time: c.timeGranted})
		} else {
			k := (c.timeGranted - sim.TimeLastProcessed) / sim.TimeDelta
			sim.TimeLastProcessed += sim.TimeDelta * k
		}
	}

	logrus.WithField("time_granted", int64(c.timeGranted)).Debug("round closed")
	return grants
}

// startPacing launches the ticker goroutine that advances time_real, so
// grants stay paced against wall-clock instead of racing ahead of it.
func (c *Coordinator) startPacing() {
	c.ticker = time.NewTicker(c.realtimeInterval)
	go func() {
		for range c.ticker.C {
			c.timeReal.Store(int64(time.Since(c.wallStart)))
		}
	}()
}

// waitForRealTime blocks the loop goroutine until time_real has caught up
// to target, sleeping in bounded quanta rather than spinning.
func (c *Coordinator) waitForRealTime(target time.Duration) {
	for time.Duration(c.timeReal.Load()) < target {
		time.Sleep(pacingQuantum)
	}
}

// Stop releases the pacing ticker, if one was started. Safe to call even if
// pacing was never enabled.
func (c *Coordinator) Stop() {
	if c.ticker != nil {
		c.ticker.Stop()
	}
}
