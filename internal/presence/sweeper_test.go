package presence

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperEvictsAbandonedSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := NewRegistry(Options{StaleAfter: 15 * time.Second, Clock: clock, Logger: discardLogger()})
	sw := NewSweeper(reg, 5*time.Second, clock, discardLogger())

	a := &fakeStream{}
	require.NoError(t, reg.Subscribe("a", a, Origin{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	for i := 0; i < 4; i++ {
		clock.Advance(5 * time.Second)
	}

	require.Eventually(t, func() bool {
		_, n := reg.Occupancy()
		return n == 0
	}, time.Second, 5*time.Millisecond)
	assert.True(t, a.Closed())

	cancel()
	require.NoError(t, <-done)
}

func TestSweeperStopsOnCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := NewRegistry(Options{Clock: clock, Logger: discardLogger()})
	sw := NewSweeper(reg, 0, clock, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, sw.Run(ctx))
}
