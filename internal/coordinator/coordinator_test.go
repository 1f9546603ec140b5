package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beroset/fncs/internal/config"
	"github.com/beroset/fncs/internal/fault"
	"github.com/beroset/fncs/internal/registry"
)

func helloAll(t *testing.T, c *Coordinator, names []string, deltas []time.Duration) []*registry.Simulator {
	var roster []*registry.Simulator
	for i, name := range names {
		r, ready, err := c.HandleHello(name, config.Config{TimeDelta: deltas[i], Subscriptions: nil})
		require.NoError(t, err)
		if ready {
			roster = r
		}
	}
	require.NotNil(t, roster, "registration should have closed")
	return roster
}

// Scenario 1: two-peer lockstep.
func TestTwoPeerLockstep(t *testing.T) {
	c := New(2, 0)
	roster := helloAll(t, c, []string{"A", "B"}, []time.Duration{time.Second, 2 * time.Second})

	require.Len(t, roster, 2)
	assert.Equal(t, 0, roster[0].Ordinal)
	assert.Equal(t, 1, roster[1].Ordinal)
	assert.Equal(t, 2, c.NProcessing())

	grants, err := c.HandleTimeRequest("A", 100*time.Second)
	require.NoError(t, err)
	assert.Nil(t, grants)

	grants, err = c.HandleTimeRequest("B", 100*time.Second)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, 100*time.Second, c.TimeGranted())
	for _, g := range grants {
		assert.Equal(t, 100*time.Second, g.Time)
	}
}

// Scenario 2: asymmetric request, fast-forward with k=0.
func TestAsymmetricRequestFastForward(t *testing.T) {
	c := New(2, 0)
	helloAll(t, c, []string{"A", "B"}, []time.Duration{time.Second, 2 * time.Second})

	_, err := c.HandleTimeRequest("A", 100*time.Second)
	require.NoError(t, err)
	_, err = c.HandleTimeRequest("B", 100*time.Second)
	require.NoError(t, err)
	require.Equal(t, 100*time.Second, c.TimeGranted())

	grants, err := c.HandleTimeRequest("A", 101*time.Second)
	require.NoError(t, err)
	assert.Nil(t, grants)

	grants, err = c.HandleTimeRequest("B", 102*time.Second)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "A", grants[0].Sim.Name)
	assert.Equal(t, 101*time.Second, c.TimeGranted())

	simB, err := c.Registry().Lookup("B")
	require.NoError(t, err)
	assert.Equal(t, 100*time.Second, simB.TimeLastProcessed)
	assert.False(t, simB.Processing)
}

// Scenario 3: a pending publish forces a tick sooner than the requested time.
func TestPublishForcesTick(t *testing.T) {
	c := New(2, 0)
	helloAll(t, c, []string{"A", "B"}, []time.Duration{time.Second, time.Second})

	_, err := c.HandleTimeRequest("A", 100*time.Second)
	require.NoError(t, err)
	_, err = c.HandleTimeRequest("B", 100*time.Second)
	require.NoError(t, err)
	require.Equal(t, 100*time.Second, c.TimeGranted())

	simA, err := c.Registry().Lookup("A")
	require.NoError(t, err)
	simA.MessagesPending = true

	grants, err := c.HandleTimeRequest("B", 1000*time.Second)
	require.NoError(t, err)
	assert.Nil(t, grants)

	grants, err = c.HandleTimeRequest("A", 1000*time.Second)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "A", grants[0].Sim.Name)
	assert.Equal(t, 101*time.Second, c.TimeGranted())
	assert.False(t, simA.MessagesPending)
}

func TestHandleTimeRequest_UnknownSimulator(t *testing.T) {
	c := New(1, 0)
	_, err := c.HandleTimeRequest("ghost", time.Second)
	assert.ErrorIs(t, err, fault.ErrUnknownSimulator)
}

func TestHandleBye_DuplicateDoesNotDoubleDecrement(t *testing.T) {
	c := New(2, 0)
	helloAll(t, c, []string{"A", "B"}, []time.Duration{time.Second, time.Second})
	require.Equal(t, 2, c.NProcessing())

	_, terminate, dup, err := c.HandleBye("A")
	require.NoError(t, err)
	assert.False(t, terminate)
	assert.False(t, dup)
	assert.Equal(t, 1, c.NProcessing())

	_, terminate, dup, err = c.HandleBye("A")
	require.NoError(t, err)
	assert.False(t, terminate)
	assert.True(t, dup)
	assert.Equal(t, 1, c.NProcessing(), "duplicate BYE must not further decrement n_processing")
}

func TestHandleBye_GracefulTerminationWhenAllDeparted(t *testing.T) {
	c := New(2, 0)
	helloAll(t, c, []string{"A", "B"}, []time.Duration{time.Second, time.Second})

	_, terminate, _, err := c.HandleBye("A")
	require.NoError(t, err)
	assert.False(t, terminate)

	_, terminate, _, err = c.HandleBye("B")
	require.NoError(t, err)
	assert.True(t, terminate)
}

func TestHandleBye_SetsMaxTimeRequested(t *testing.T) {
	c := New(2, 0)
	helloAll(t, c, []string{"A", "B"}, []time.Duration{time.Second, time.Second})

	_, _, _, err := c.HandleBye("A")
	require.NoError(t, err)

	sim, err := c.Registry().Lookup("A")
	require.NoError(t, err)
	assert.Equal(t, registry.MaxTime, sim.TimeRequested)
}

func TestHandleTimeDelta_NoopOnSameValue(t *testing.T) {
	c := New(1, 0)
	helloAll(t, c, []string{"A"}, []time.Duration{time.Second})

	require.NoError(t, c.HandleTimeDelta("A", time.Second))
	sim, _ := c.Registry().Lookup("A")
	assert.Equal(t, time.Second, sim.TimeDelta)

	require.NoError(t, c.HandleTimeDelta("A", 5*time.Second))
	sim, _ = c.Registry().Lookup("A")
	assert.Equal(t, 5*time.Second, sim.TimeDelta)
}

func TestHandleTimeDelta_RejectsNonPositive(t *testing.T) {
	c := New(1, 0)
	helloAll(t, c, []string{"A"}, []time.Duration{time.Second})
	err := c.HandleTimeDelta("A", 0)
	assert.ErrorIs(t, err, fault.ErrMalformedMessage)
}

func TestTimeGrantedNonDecreasing(t *testing.T) {
	c := New(2, 0)
	helloAll(t, c, []string{"A", "B"}, []time.Duration{time.Second, time.Second})

	var last time.Duration
	requests := []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second}
	for _, req := range requests {
		_, err := c.HandleTimeRequest("A", req)
		require.NoError(t, err)
		grants, err := c.HandleTimeRequest("B", req)
		require.NoError(t, err)
		require.NotNil(t, grants)
		assert.GreaterOrEqual(t, c.TimeGranted(), last)
		last = c.TimeGranted()
	}
}
