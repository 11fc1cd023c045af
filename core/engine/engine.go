// Package engine implements the DSP engine worker: the state machine
// that drives acquisition, applies corrections, and dispatches samples
// to sinks (spec §4.4). The worker owns the current source, the
// ordered sink list, and the correction running state; it is the only
// goroutine that ever touches them, all mutation arriving serialized
// through its MessageBus.
package engine

import (
	"log"

	"github.com/ftl/dspengine/core"
	"github.com/ftl/dspengine/core/bus"
	"github.com/ftl/dspengine/core/correction"
)

// Engine is the worker described in spec §2/§4.4.
type Engine struct {
	commands *bus.Bus

	state             State
	source            core.Source
	sinks             []core.Sink
	sampleRate        int
	centerFrequency   uint64
	dcEnabled         bool
	iqEnabled         bool
	correction        correction.State
	errorMessage      string
	deviceDescription string

	dataReady chan struct{}
	reports   chan Report
}

// New creates an Engine. reportBuffer sizes the report channel; pass 0
// for a sensible default.
func New(reportBuffer int) *Engine {
	if reportBuffer <= 0 {
		reportBuffer = 4
	}
	return &Engine{
		commands:  bus.New(),
		dataReady: make(chan struct{}, 1),
		reports:   make(chan Report, reportBuffer),
	}
}

// Run is the worker's event loop. It blocks until an Exit command is
// processed or stop is closed, whichever comes first. Call it from its
// own goroutine: `go e.Run(stop)`.
func (e *Engine) Run(stop <-chan struct{}) {
	e.state = Idle
	if e.handleMessages() {
		return
	}

	for {
		select {
		case <-e.commands.Wake():
			if e.handleMessages() {
				return
			}
		case <-e.dataReady:
			e.handleData()
		case <-stop:
			return
		}
	}
}

// Reports returns the channel on which the worker publishes sample
// rate / center frequency change reports (spec §4.4).
func (e *Engine) Reports() <-chan Report {
	return e.reports
}

// Ping returns the engine's current state.
func (e *Engine) Ping() State {
	return e.commands.Execute(bus.NewRequest(Ping, nil)).(State)
}

// Exit drives the engine to Idle (stopping sinks and source), then
// NotStarted, and terminates Run's event loop.
func (e *Engine) Exit() State {
	return e.commands.Execute(bus.NewRequest(Exit, nil)).(State)
}

// StartAcquisition starts sample acquisition, returning the resulting
// state (Running on success, Error otherwise).
func (e *Engine) StartAcquisition() State {
	return e.commands.Execute(bus.NewRequest(AcquisitionStart, nil)).(State)
}

// StopAcquisition stops sample acquisition, returning Idle.
func (e *Engine) StopAcquisition() State {
	return e.commands.Execute(bus.NewRequest(AcquisitionStop, nil)).(State)
}

// DeviceDescription returns the description reported by the current
// source while Running, or "" otherwise.
func (e *Engine) DeviceDescription() string {
	return e.commands.Execute(bus.NewRequest(GetDeviceDescription, nil)).(string)
}

// ErrorMessage returns the message recorded by the last transition
// into the Error state.
func (e *Engine) ErrorMessage() string {
	return e.commands.Execute(bus.NewRequest(GetErrorMessage, nil)).(string)
}

// SetSource replaces the current source. The engine goes through Idle
// first, detaching the previous source's ring notifier before
// attaching the new one.
func (e *Engine) SetSource(source core.Source) {
	e.commands.Execute(bus.NewRequest(SetSource, source))
}

// AddSink appends sink to the ordered sink list, starting it
// immediately if the engine is Running.
func (e *Engine) AddSink(sink core.Sink) {
	e.commands.Execute(bus.NewRequest(AddSink, sink))
}

// RemoveSink removes sink from the sink list, stopping it first if the
// engine is Running.
func (e *Engine) RemoveSink(sink core.Sink) {
	e.commands.Execute(bus.NewRequest(RemoveSink, sink))
}

// ConfigureCorrection enables or disables DC-offset and I/Q-imbalance
// correction. This is submit-and-forget in the original design; it
// does not block the caller.
func (e *Engine) ConfigureCorrection(dc, iq bool) {
	e.commands.Submit(bus.NewMessage(ConfigureCorrection, CorrectionConfig{DC: dc, IQ: iq}))
}

// ConfigureSource forwards payload to the current source's
// HandleConfiguration and republishes a report if the source's
// reported rate or frequency changed as a result.
func (e *Engine) ConfigureSource(payload interface{}) {
	e.commands.Execute(bus.NewRequest(ConfigureSource, payload))
}

// SubmitOther forwards payload to HandleMessage on every sink, in
// insertion order. Submit-and-forget.
func (e *Engine) SubmitOther(payload interface{}) {
	e.commands.Submit(bus.NewMessage(Other, payload))
}

// handleMessages drains the command bus, returning true once an Exit
// command has been processed (signaling Run to terminate).
func (e *Engine) handleMessages() bool {
	for {
		msg := e.commands.Accept()
		if msg == nil {
			return false
		}

		switch msg.Kind {
		case Ping:
			msg.Complete(e.state)

		case Exit:
			e.gotoIdle()
			e.state = NotStarted
			msg.Complete(e.state)
			return true

		case AcquisitionStart:
			e.state = e.gotoIdle()
			if e.state == Idle {
				e.state = e.gotoRunning()
			}
			msg.Complete(e.state)

		case AcquisitionStop:
			e.state = e.gotoIdle()
			msg.Complete(e.state)

		case GetDeviceDescription:
			msg.Complete(e.deviceDescription)

		case GetErrorMessage:
			msg.Complete(e.errorMessage)

		case SetSource:
			e.handleSetSource(msg.Payload.(core.Source))
			msg.Complete(nil)

		case AddSink:
			e.handleAddSink(msg.Payload.(core.Sink))
			msg.Complete(nil)

		case RemoveSink:
			e.handleRemoveSink(msg.Payload.(core.Sink))
			msg.Complete(nil)

		case ConfigureCorrection:
			e.handleConfigureCorrection(msg.Payload.(CorrectionConfig))
			msg.Complete(nil)

		case ConfigureSource:
			e.handleConfigureSource(msg.Payload)
			msg.Complete(nil)

		default:
			for _, sink := range e.sinks {
				sink.HandleMessage(msg.Payload)
			}
			msg.Complete(nil)
		}
	}
}

// handleData runs one drain pass if the engine is Running; it is the
// handler for the ring's dataReady wake-up.
func (e *Engine) handleData() {
	if e.state == Running {
		e.work()
	}
}

// work drains the ring and dispatches corrected samples to sinks. It
// is non-suspending and returns when the ring empties, when control
// commands are pending (preemption), or once a full sampleRate's
// worth of samples has been processed in this pass (fairness ceiling,
// spec §4.4). If samples are still buffered when it returns, it
// re-arms the data-ready wake-up so draining resumes once the pending
// commands have been handled.
func (e *Engine) work() {
	fifo := e.source.SampleFifo()
	samplesDone := 0
	firstOfBurst := true

	for fifo.Fill() > 0 && e.commands.Pending() == 0 && samplesDone < e.sampleRate {
		part1, part2 := fifo.ReadBegin(fifo.Fill())

		if len(part1) > 0 {
			correction.Apply(&e.correction, part1, e.dcEnabled, e.iqEnabled)
			for _, sink := range e.sinks {
				sink.Feed(part1, firstOfBurst)
			}
			firstOfBurst = false
		}
		if len(part2) > 0 {
			correction.Apply(&e.correction, part2, e.dcEnabled, e.iqEnabled)
			for _, sink := range e.sinks {
				sink.Feed(part2, firstOfBurst)
			}
			firstOfBurst = false
		}

		samplesDone += fifo.ReadCommit(len(part1) + len(part2))
	}

	if fifo.Fill() > 0 && e.sampleRate > 0 {
		e.notifyDataReady()
	}
}

func (e *Engine) gotoIdle() State {
	switch e.state {
	case NotStarted:
		return NotStarted
	case Idle, Error:
		return Idle
	}

	if e.source == nil {
		return Idle
	}

	for _, sink := range e.sinks {
		sink.Stop()
	}
	e.source.StopInput()
	e.deviceDescription = ""

	return Idle
}

func (e *Engine) gotoRunning() State {
	switch e.state {
	case NotStarted:
		return NotStarted
	case Running:
		return Running
	}

	if e.source == nil {
		return e.gotoError("No sample source configured")
	}

	e.correction = correction.NewState()

	if !e.source.StartInput(0) {
		return e.gotoError("Could not start sample source")
	}

	e.deviceDescription = e.source.DeviceDescription()

	for _, sink := range e.sinks {
		sink.Start()
	}

	return Running
}

func (e *Engine) gotoError(msg string) State {
	e.errorMessage = msg
	e.deviceDescription = ""
	e.state = Error
	return Error
}

func (e *Engine) handleSetSource(source core.Source) {
	e.state = e.gotoIdle()
	if e.source != nil {
		e.source.SampleFifo().SetReadyNotifier(nil)
	}
	e.source = source
	source.SampleFifo().SetReadyNotifier(e.notifyDataReady)
	e.generateReport()
}

func (e *Engine) notifyDataReady() {
	select {
	case e.dataReady <- struct{}{}:
	default:
	}
}

func (e *Engine) generateReport() {
	if e.source == nil {
		return
	}

	needReport := false
	rate := e.source.SampleRate()
	freq := e.source.CenterFrequency()

	if rate != e.sampleRate {
		e.sampleRate = rate
		needReport = true
		for _, sink := range e.sinks {
			sink.SetSampleRate(rate)
		}
	}
	if freq != e.centerFrequency {
		e.centerFrequency = freq
		needReport = true
	}

	if needReport {
		e.publishReport(Report{SampleRate: e.sampleRate, CenterFrequency: e.centerFrequency})
	}
}

func (e *Engine) publishReport(r Report) {
	select {
	case e.reports <- r:
	default:
		log.Print("engine: report channel hangs, dropping report")
	}
}

// handleAddSink rejects exact duplicates and preserves insertion order
// otherwise (spec §9 open question).
func (e *Engine) handleAddSink(sink core.Sink) {
	for _, existing := range e.sinks {
		if existing == sink {
			return
		}
	}

	if e.state == Running {
		sink.SetSampleRate(e.sampleRate)
		sink.Start()
	}
	e.sinks = append(e.sinks, sink)
}

func (e *Engine) handleRemoveSink(sink core.Sink) {
	for i, existing := range e.sinks {
		if existing == sink {
			if e.state == Running {
				sink.Stop()
			}
			e.sinks = append(e.sinks[:i], e.sinks[i+1:]...)
			return
		}
	}
}

func (e *Engine) handleConfigureCorrection(cfg CorrectionConfig) {
	if e.dcEnabled != cfg.DC {
		e.dcEnabled = cfg.DC
		if e.dcEnabled {
			e.correction.Reset()
		}
	}
	if e.iqEnabled != cfg.IQ {
		e.iqEnabled = cfg.IQ
		if e.iqEnabled {
			e.correction.ResetImbalance()
		}
	}
}

func (e *Engine) handleConfigureSource(payload interface{}) {
	if e.source == nil {
		return
	}
	if err := e.source.HandleConfiguration(payload); err != nil {
		log.Print("engine: configure source failed: ", err)
	}
	e.generateReport()
}
