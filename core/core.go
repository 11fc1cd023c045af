// Package core holds the domain types shared across the DSP engine:
// the sample representation and the capability contracts (Source,
// Sink) that the engine worker drives.
package core

import (
	"github.com/ftl/dspengine/core/ring"
)

// Sample and Span alias the ring package's sample representation so
// callers outside core/ring don't need to import it directly for the
// common case.
type Sample = ring.Sample
type Span = ring.Span

// Source is the hardware-facing producer that fills a SampleRing
// (spec §6). SampleFifo returns the ring the engine drains; the
// engine attaches its own ready-notifier to it via
// SampleFifo().SetReadyNotifier, it does not own the ring.
type Source interface {
	StartInput(flags uint32) bool
	StopInput()
	SampleFifo() *ring.Ring
	SampleRate() int
	CenterFrequency() uint64
	DeviceDescription() string
	HandleConfiguration(payload interface{}) error
}

// Sink is a downstream consumer of the corrected sample stream (spec
// §6). Feed must not retain span past its return.
type Sink interface {
	Start()
	Stop()
	SetSampleRate(rate int)
	Feed(span Span, firstOfBurst bool)
	HandleMessage(payload interface{})
}
