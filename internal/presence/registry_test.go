package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/Guillaume-slize/digitalsolitude/pkg/metrics"
)

type RegistrySuite struct {
	suite.Suite
	clock   *clockwork.FakeClock
	metrics *metrics.Metrics
	reg     *Registry
}

func (s *RegistrySuite) SetupTest() {
	s.clock = clockwork.NewFakeClock()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.reg = NewRegistry(Options{
		StaleAfter: 15 * time.Second,
		Clock:      s.clock,
		Logger:     discardLogger(),
		Metrics:    s.metrics,
	})
}

func (s *RegistrySuite) subscribe(id string) *fakeStream {
	st := &fakeStream{}
	s.Require().NoError(s.reg.Subscribe(id, st, Origin{Addr: "127.0.0.1"}))
	return st
}

func (s *RegistrySuite) TestScenarioTwoVisitors() {
	a := s.subscribe("a")
	s.Equal([]Event{StatusEvent(1), ChangedEvent(Occupied, 1)}, a.Events())

	b := s.subscribe("b")
	s.Equal(ChangedEvent(Contended, 2), a.Last(), "the first visitor is told too")
	s.Equal([]Event{StatusEvent(2), ChangedEvent(Contended, 2)}, b.Events())

	s.reg.Disconnect("b", b)
	s.Equal(ChangedEvent(Occupied, 1), a.Last())
	s.True(b.Closed())

	for i := 0; i < 4; i++ {
		s.clock.Advance(5 * time.Second)
		res, err := s.reg.Heartbeat("a")
		s.Require().NoError(err)
		s.Equal(Alive, res)
		s.Zero(s.reg.Sweep())
	}

	s.clock.Advance(16 * time.Second)
	s.Equal(1, s.reg.Sweep())
	s.True(a.Closed())

	st, n := s.reg.Occupancy()
	s.Equal(Vacant, st)
	s.Zero(n)
}

func (s *RegistrySuite) TestHeartbeatUnknownSessionDoesNotCreate() {
	res, err := s.reg.Heartbeat("ghost")
	s.Require().NoError(err)
	s.Equal(ReconnectNeeded, res)

	_, n := s.reg.Occupancy()
	s.Zero(n)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Heartbeats.WithLabelValues("reconnect_needed")))
}

func (s *RegistrySuite) TestMissingIdentifier() {
	s.ErrorIs(s.reg.Subscribe("", &fakeStream{}, Origin{}), ErrMissingIdentifier)
	_, err := s.reg.Heartbeat("")
	s.ErrorIs(err, ErrMissingIdentifier)
	s.ErrorIs(s.reg.Leave(""), ErrMissingIdentifier)

	_, n := s.reg.Occupancy()
	s.Zero(n)
}

func (s *RegistrySuite) TestCountChangeWithinSameLabelSendsStatus() {
	a := s.subscribe("a")
	b := s.subscribe("b")
	c := s.subscribe("c")

	s.Equal(StatusEvent(3), a.Last())
	s.Equal(StatusEvent(3), b.Last())
	s.Equal([]Event{StatusEvent(3)}, c.Events(), "newcomer greeted once")

	s.Require().NoError(s.reg.Leave("c"))
	s.True(c.Closed())
	s.Equal(StatusEvent(2), a.Last())
	s.Equal(ChangedEvent(Contended, 2), b.Events()[1])
	s.Equal(StatusEvent(2), b.Last())
}

func (s *RegistrySuite) TestResubscribeReplacesStream() {
	old := s.subscribe("a")
	fresh := s.subscribe("a")

	s.True(old.Closed())
	s.Equal([]Event{StatusEvent(1)}, fresh.Events())

	// the old handler finishing must not drop the new subscription
	s.reg.Disconnect("a", old)
	_, n := s.reg.Occupancy()
	s.Equal(1, n)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Evictions.WithLabelValues(metrics.ReasonReplaced)))
}

func (s *RegistrySuite) TestFailedPushEvictsDuringBroadcast() {
	a := s.subscribe("a")
	b := s.subscribe("b")
	a.failWith(ErrStreamBackpressure)

	c := s.subscribe("c")

	s.True(a.Closed())
	st, n := s.reg.Occupancy()
	s.Equal(Contended, st)
	s.Equal(2, n)
	s.Equal([]Event{StatusEvent(3), StatusEvent(2)}, c.Events())
	s.Equal(StatusEvent(2), b.Last())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Evictions.WithLabelValues(metrics.ReasonWriteFailure)))
}

func (s *RegistrySuite) TestFailedPushCanDropLabel() {
	a := s.subscribe("a")
	b := s.subscribe("b")
	b.failWith(ErrStreamClosed)

	s.Require().NoError(s.reg.Leave("a"))

	// a leaving announces occupied to b, b fails, so the room is vacant
	st, n := s.reg.Occupancy()
	s.Equal(Vacant, st)
	s.Zero(n)
	s.True(a.Closed())
	s.True(b.Closed())
}

func (s *RegistrySuite) TestSweepKeepsHeartbeatingSessions() {
	a := s.subscribe("a")
	s.subscribe("b")

	s.clock.Advance(10 * time.Second)
	_, _ = s.reg.Heartbeat("a")
	s.clock.Advance(10 * time.Second)

	s.Equal(1, s.reg.Sweep())
	s.Equal(ChangedEvent(Occupied, 1), a.Last())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Evictions.WithLabelValues(metrics.ReasonStale)))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.OccupancyState))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SessionsActive))
}

func (s *RegistrySuite) TestShutdownNotifiesAndCloses() {
	a := s.subscribe("a")
	b := s.subscribe("b")

	s.reg.Shutdown()

	s.Equal(ShutdownEvent(), a.Last())
	s.Equal(ShutdownEvent(), b.Last())
	s.True(a.Closed())
	s.True(b.Closed())
	s.False(s.reg.Accepting())

	s.ErrorIs(s.reg.Subscribe("c", &fakeStream{}, Origin{}), ErrRegistryClosed)

	// handlers unwinding after shutdown are quiet
	s.reg.Disconnect("a", a)
	s.Len(b.Events(), 3)
}

func (s *RegistrySuite) TestRecorderGetsLabelChangesOnly() {
	sink := &memorySink{}
	rec := NewRecorder(16, discardLogger(), s.metrics, sink)
	s.reg = NewRegistry(Options{StaleAfter: 15 * time.Second, Clock: s.clock, Logger: discardLogger(), Recorder: rec})

	s.subscribe("a")
	s.subscribe("b")
	s.subscribe("c")
	s.Require().NoError(s.reg.Leave("a"))
	s.Require().NoError(s.reg.Leave("b"))

	var got []Transition
	for len(rec.queue) > 0 {
		got = append(got, <-rec.queue)
	}
	s.Require().Len(got, 3)
	s.Equal(Transition{From: Vacant, To: Occupied, Count: 1, Cause: "subscribe", At: s.clock.Now()}, got[0])
	s.Equal(Contended, got[1].To)
	s.Equal(Occupied, got[2].To)
	s.Equal("leave", got[2].Cause)
}

func (s *RegistrySuite) TestConcurrentUse() {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		id := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				st := &fakeStream{}
				_ = s.reg.Subscribe(id, st, Origin{})
				_, _ = s.reg.Heartbeat(id)
				s.reg.Sweep()
				s.reg.Disconnect(id, st)
			}
		}()
	}
	wg.Wait()

	st, n := s.reg.Occupancy()
	s.Equal(Vacant, st)
	s.Zero(n)
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}
