package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/dspengine/core"
	"github.com/ftl/dspengine/core/ring"
)

// fakeSource is a minimal core.Source test double: acquisition is
// simply "the ring accepts writes", there is no hardware underneath.
type fakeSource struct {
	fifo *ring.Ring

	startResult bool
	started     bool
	stopped     int

	sampleRate      int
	centerFrequency uint64
	description     string

	configureErr error
	configured   []interface{}
}

func newFakeSource(capacity int) *fakeSource {
	return &fakeSource{
		fifo:            ring.New(capacity),
		startResult:     true,
		sampleRate:      48000,
		centerFrequency: 14200000,
		description:     "fake source",
	}
}

func (s *fakeSource) StartInput(flags uint32) bool {
	s.started = s.startResult
	return s.startResult
}

func (s *fakeSource) StopInput() {
	s.started = false
	s.stopped++
}

func (s *fakeSource) SampleFifo() *ring.Ring { return s.fifo }
func (s *fakeSource) SampleRate() int        { return s.sampleRate }
func (s *fakeSource) CenterFrequency() uint64 { return s.centerFrequency }
func (s *fakeSource) DeviceDescription() string {
	return s.description
}

func (s *fakeSource) HandleConfiguration(payload interface{}) error {
	s.configured = append(s.configured, payload)
	return s.configureErr
}

// fakeSink is a minimal core.Sink test double that reports every Feed
// call over a channel so tests can synchronize on delivery instead of
// sleeping arbitrarily.
type fakeSink struct {
	started    int
	stopped    int
	sampleRate int
	messages   []interface{}
	fed        chan []ring.Sample
}

func newFakeSink() *fakeSink {
	return &fakeSink{fed: make(chan []ring.Sample, 64)}
}

func (s *fakeSink) Start()                 { s.started++ }
func (s *fakeSink) Stop()                  { s.stopped++ }
func (s *fakeSink) SetSampleRate(rate int) { s.sampleRate = rate }
func (s *fakeSink) Feed(span core.Span, firstOfBurst bool) {
	cp := make([]ring.Sample, len(span))
	copy(cp, span)
	s.fed <- cp
}
func (s *fakeSink) HandleMessage(payload interface{}) {
	s.messages = append(s.messages, payload)
}

func startEngine(t *testing.T) (*Engine, func()) {
	t.Helper()
	e := New(4)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		e.Run(stop)
		close(done)
	}()
	require.Eventually(t, func() bool { return e.Ping() != NotStarted }, time.Second, time.Millisecond)
	return e, func() {
		close(stop)
		<-done
	}
}

func drainOne(t *testing.T, ch chan []ring.Sample) []ring.Sample {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sink to receive samples")
		return nil
	}
}

func TestColdStart_EntersIdle(t *testing.T) {
	e, stop := startEngine(t)
	defer stop()

	assert.Equal(t, Idle, e.Ping())
}

func TestHappyPath_SamplesFlowFromSourceToSink(t *testing.T) {
	e, stop := startEngine(t)
	defer stop()

	source := newFakeSource(1024)
	sink := newFakeSink()

	e.SetSource(source)
	e.AddSink(sink)
	require.Equal(t, Running, e.StartAcquisition())
	assert.Equal(t, 1, sink.started)

	written := []ring.Sample{{I: 1, Q: 2}, {I: 3, Q: 4}}
	source.fifo.Write(written)

	got := drainOne(t, sink.fed)
	assert.Len(t, got, len(written))
}

func TestStartAcquisition_WithoutSourceGoesToError(t *testing.T) {
	e, stop := startEngine(t)
	defer stop()

	assert.Equal(t, Error, e.StartAcquisition())
	assert.Equal(t, "No sample source configured", e.ErrorMessage())
}

func TestStartAcquisition_SourceRefusesGoesToError(t *testing.T) {
	e, stop := startEngine(t)
	defer stop()

	source := newFakeSource(1024)
	source.startResult = false
	e.SetSource(source)

	assert.Equal(t, Error, e.StartAcquisition())
	assert.Equal(t, "Could not start sample source", e.ErrorMessage())
}

func TestOverflow_EngineKeepsRunningAndDeliversAcceptedSamples(t *testing.T) {
	e, stop := startEngine(t)
	defer stop()

	source := newFakeSource(4)
	sink := newFakeSink()
	e.SetSource(source)
	e.AddSink(sink)
	require.Equal(t, Running, e.StartAcquisition())

	oversized := make([]ring.Sample, 10)
	for i := range oversized {
		oversized[i] = ring.Sample{I: int16(i), Q: int16(-i)}
	}
	accepted := source.fifo.Write(oversized)
	assert.Equal(t, 4, accepted)

	got := drainOne(t, sink.fed)
	assert.Len(t, got, 4)
	assert.Equal(t, Running, e.Ping())
}

func TestAddSink_WhileRunningStartsItImmediately(t *testing.T) {
	e, stop := startEngine(t)
	defer stop()

	source := newFakeSource(1024)
	e.SetSource(source)
	require.Equal(t, Running, e.StartAcquisition())

	sink := newFakeSink()
	e.AddSink(sink)

	assert.Equal(t, 1, sink.started)
	assert.Equal(t, source.sampleRate, sink.sampleRate)
}

func TestAddSink_RejectsExactDuplicate(t *testing.T) {
	e, stop := startEngine(t)
	defer stop()

	sink := newFakeSink()
	e.AddSink(sink)
	e.AddSink(sink)

	source := newFakeSource(1024)
	e.SetSource(source)
	require.Equal(t, Running, e.StartAcquisition())

	assert.Equal(t, 1, sink.started, "duplicate add must not start the sink twice")
}

func TestRemoveSink_StopsItWhileRunning(t *testing.T) {
	e, stop := startEngine(t)
	defer stop()

	source := newFakeSource(1024)
	sink := newFakeSink()
	e.SetSource(source)
	e.AddSink(sink)
	require.Equal(t, Running, e.StartAcquisition())

	e.RemoveSink(sink)

	assert.Equal(t, 1, sink.stopped)

	source.fifo.Write([]ring.Sample{{I: 1, Q: 1}})
	select {
	case <-sink.fed:
		t.Fatal("removed sink must not receive further samples")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConfigureCorrection_TogglingOnResetsEstimatorState(t *testing.T) {
	e, stop := startEngine(t)
	defer stop()

	source := newFakeSource(1024)
	sink := newFakeSink()
	e.SetSource(source)
	e.AddSink(sink)
	require.Equal(t, Running, e.StartAcquisition())

	e.ConfigureCorrection(true, false)

	// bias the estimator away from neutral, then toggle DC off and on
	// again; toggling on must reset the offset to zero.
	biased := make([]ring.Sample, 32)
	for i := range biased {
		biased[i] = ring.Sample{I: 1000, Q: 1000}
	}
	source.fifo.Write(biased)
	drainOne(t, sink.fed)
	require.Equal(t, Running, e.Ping())
	require.NotZero(t, e.correction.IOffset, "the biased block must move the DC estimate")

	e.ConfigureCorrection(false, false)
	e.ConfigureCorrection(true, false)

	require.Eventually(t, func() bool {
		return e.Ping() == Running
	}, time.Second, time.Millisecond)
	assert.Equal(t, 0, e.correction.IOffset)
	assert.Equal(t, 0, e.correction.QOffset)
}

func TestConfigureSource_ForwardsPayloadAndReportsChanges(t *testing.T) {
	e, stop := startEngine(t)
	defer stop()

	source := newFakeSource(1024)
	e.SetSource(source)

	<-e.Reports() // the initial report published by SetSource

	source.sampleRate = 96000
	e.ConfigureSource("retune")

	require.Len(t, source.configured, 1)
	assert.Equal(t, "retune", source.configured[0])

	select {
	case r := <-e.Reports():
		assert.Equal(t, 96000, r.SampleRate)
	case <-time.After(time.Second):
		t.Fatal("expected a report after sample rate change")
	}
}

func TestConfigureSource_LogsButDoesNotFailOnSourceError(t *testing.T) {
	e, stop := startEngine(t)
	defer stop()

	source := newFakeSource(1024)
	source.configureErr = errors.New("boom")
	e.SetSource(source)
	<-e.Reports()

	e.ConfigureSource("anything")

	assert.Equal(t, Idle, e.Ping())
}

func TestSubmitOther_ForwardsToAllSinksInOrder(t *testing.T) {
	e, stop := startEngine(t)
	defer stop()

	first := newFakeSink()
	second := newFakeSink()
	e.AddSink(first)
	e.AddSink(second)

	e.SubmitOther("hello")
	require.Eventually(t, func() bool {
		return len(second.messages) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, []interface{}{"hello"}, first.messages)
	assert.Equal(t, []interface{}{"hello"}, second.messages)
}

func TestExitFromRunning_StopsSourceAndSinksAndTerminatesLoop(t *testing.T) {
	e := New(4)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		e.Run(stop)
		close(done)
	}()
	require.Eventually(t, func() bool { return e.Ping() != NotStarted }, time.Second, time.Millisecond)

	source := newFakeSource(1024)
	sink := newFakeSink()
	e.SetSource(source)
	e.AddSink(sink)
	require.Equal(t, Running, e.StartAcquisition())

	assert.Equal(t, NotStarted, e.Exit())
	assert.Equal(t, 1, source.stopped)
	assert.Equal(t, 1, sink.stopped)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not terminate after Exit")
	}
}

func TestSetSource_DetachesPreviousSourcesNotifier(t *testing.T) {
	e, stop := startEngine(t)
	defer stop()

	first := newFakeSource(1024)
	sink := newFakeSink()
	e.SetSource(first)
	e.AddSink(sink)

	second := newFakeSource(1024)
	e.SetSource(second)

	first.fifo.Write([]ring.Sample{{I: 9, Q: 9}})
	select {
	case <-sink.fed:
		t.Fatal("detached source must not wake the engine")
	case <-time.After(50 * time.Millisecond):
	}
}
