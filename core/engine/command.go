package engine

import "github.com/ftl/dspengine/core/bus"

// Command kinds, matching the dispatch table of spec §4.4.
const (
	Ping bus.Kind = iota
	Exit
	AcquisitionStart
	AcquisitionStop
	GetDeviceDescription
	GetErrorMessage
	SetSource
	AddSink
	RemoveSink
	ConfigureCorrection
	ConfigureSource
	Other
)

// CorrectionConfig is the payload of a ConfigureCorrection command.
type CorrectionConfig struct {
	DC bool
	IQ bool
}

// Report is published by the worker whenever the source's reported
// sample rate or center frequency changes (spec §4.4).
type Report struct {
	SampleRate      int
	CenterFrequency uint64
}
