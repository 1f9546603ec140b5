// Package registry holds the per-simulator state and the identity/ordinal
// duality the broker relies on: an ordered sequence for deterministic
// broadcast, and a name index for O(1) lookup.
package registry

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/beroset/fncs/internal/fault"
)

// MaxTime is the sentinel time_requested assigned to a departed simulator.
const MaxTime time.Duration = 1<<63 - 1

// Simulator is one connected peer's state.
type Simulator struct {
	Name      string
	Ordinal   int
	SessionID string // internal-only, for log correlation; never on the wire

	TimeDelta         time.Duration
	TimeRequested     time.Duration
	TimeLastProcessed time.Duration
	Processing        bool
	MessagesPending   bool
	Subscriptions     map[string]struct{}
}

// Subscribes reports whether the simulator subscribes to topic.
func (s *Simulator) Subscribes(topic string) bool {
	_, ok := s.Subscriptions[topic]
	return ok
}

// Registry is the broker's single-owner table of connected simulators.
type Registry struct {
	expected int
	order    []*Simulator
	byName   map[string]*Simulator
	departed map[string]struct{}
}

// New creates a Registry that admits exactly expected simulators.
func New(expected int) *Registry {
	return &Registry{
		expected: expected,
		byName:   make(map[string]*Simulator, expected),
		departed: make(map[string]struct{}),
	}
}

// Expected returns the fixed number of simulators this registry admits.
func (r *Registry) Expected() int { return r.expected }

// Len returns the number of simulators registered so far.
func (r *Registry) Len() int { return len(r.order) }

// Full reports whether the registry has admitted every expected simulator.
func (r *Registry) Full() bool { return len(r.order) == r.expected }

// Register admits a new simulator, assigning it the next ordinal. It fails
// with ErrDuplicateSimulator if name is already registered, or with
// ErrRegistrationClosed if the registry is already full.
func (r *Registry) Register(name string, delta time.Duration, subs map[string]struct{}) (*Simulator, error) {
	if _, ok := r.byName[name]; ok {
		return nil, fmt.Errorf("%w: %q", fault.ErrDuplicateSimulator, name)
	}
	if r.Full() {
		return nil, fmt.Errorf("%w: %q arrived after registration closed", fault.ErrRegistrationClosed, name)
	}

	if subs == nil {
		subs = make(map[string]struct{})
	}

	sim := &Simulator{
		Name:          name,
		Ordinal:       len(r.order),
		SessionID:     uuid.NewString(),
		TimeDelta:     delta,
		Subscriptions: subs,
	}
	r.order = append(r.order, sim)
	r.byName[name] = sim
	return sim, nil
}

// Lookup returns the registered simulator by name, or ErrUnknownSimulator.
func (r *Registry) Lookup(name string) (*Simulator, error) {
	sim, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", fault.ErrUnknownSimulator, name)
	}
	return sim, nil
}

// SetDelta updates a simulator's time_delta in place. Setting the current
// value is a documented no-op.
func (r *Registry) SetDelta(name string, delta time.Duration) error {
	sim, err := r.Lookup(name)
	if err != nil {
		return err
	}
	sim.TimeDelta = delta
	return nil
}

// All returns every registered simulator in ordinal (admission) order. The
// returned slice is owned by the caller but its elements alias live state.
func (r *Registry) All() []*Simulator {
	out := make([]*Simulator, len(r.order))
	copy(out, r.order)
	return out
}

// Subscribers returns, in ordinal order, every simulator subscribed to
// topic. Exact match only; no wildcards.
func (r *Registry) Subscribers(topic string) []*Simulator {
	var out []*Simulator
	for _, sim := range r.order {
		if sim.Subscribes(topic) {
			out = append(out, sim)
		}
	}
	return out
}

// MarkDeparted records that name has sent BYE. It returns true if name had
// already departed (a duplicate BYE), in which case the caller must not
// repeat the per-message bookkeeping that a first BYE triggers.
func (r *Registry) MarkDeparted(name string) (alreadyDeparted bool) {
	if _, ok := r.departed[name]; ok {
		return true
	}
	r.departed[name] = struct{}{}
	return false
}

// DepartedCount returns how many distinct simulators have sent BYE.
func (r *Registry) DepartedCount() int { return len(r.departed) }
