// Package cfg loads the engine's ambient configuration (ring sizing,
// default correction flags, remote control and source settings) the
// way the teacher repo's core/cfg package loads its own application
// settings, via github.com/ftl/hamradio/cfg. The persisted preset
// blob (core/preset) is a separate, explicitly-versioned format and
// is never loaded through this package.
package cfg

import (
	"time"

	"github.com/ftl/hamradio/cfg"
)

const (
	ringCapacity              cfg.Key = "dspengine.ringCapacity"
	dcCorrection              cfg.Key = "dspengine.correction.dc"
	iqCorrection              cfg.Key = "dspengine.correction.iq"
	remoteControlAddress      cfg.Key = "dspengine.remoteControl.address"
	remoteControlPollingMs    cfg.Key = "dspengine.remoteControl.pollingMs"
	rtlsdrDeviceIndex         cfg.Key = "dspengine.rtlsdr.deviceIndex"
	rtlsdrFrequencyCorrection cfg.Key = "dspengine.rtlsdr.frequencyCorrection"
	spectrumFFTSize           cfg.Key = "dspengine.spectrum.fftSize"
)

// Configuration is the set of ambient settings the engine and its
// satellite components need at startup.
type Configuration struct {
	RingCapacity int

	DCCorrection bool
	IQCorrection bool

	RemoteControlAddress         string
	RemoteControlPollingInterval time.Duration

	RTLSDRDeviceIndex         int
	RTLSDRFrequencyCorrection int

	SpectrumFFTSize int
}

// Default returns the Configuration used when no settings file is
// present.
func Default() Configuration {
	return Configuration{
		RingCapacity:                  1 << 20,
		DCCorrection:                  true,
		IQCorrection:                  true,
		RemoteControlPollingInterval:  500 * time.Millisecond,
		SpectrumFFTSize:               4096,
	}
}

// Load reads the engine's configuration from the default
// hamradio/cfg settings location, falling back field-by-field to
// Default() for anything unset.
func Load() (Configuration, error) {
	settings, err := cfg.LoadDefault()
	if err != nil {
		return Configuration{}, err
	}

	def := Default()
	return Configuration{
		RingCapacity: int(settings.Get(ringCapacity, float64(def.RingCapacity)).(float64)),

		DCCorrection: settings.Get(dcCorrection, def.DCCorrection).(bool),
		IQCorrection: settings.Get(iqCorrection, def.IQCorrection).(bool),

		RemoteControlAddress: settings.Get(remoteControlAddress, def.RemoteControlAddress).(string),
		RemoteControlPollingInterval: time.Duration(settings.Get(
			remoteControlPollingMs, float64(def.RemoteControlPollingInterval/time.Millisecond),
		).(float64)) * time.Millisecond,

		RTLSDRDeviceIndex:         int(settings.Get(rtlsdrDeviceIndex, float64(def.RTLSDRDeviceIndex)).(float64)),
		RTLSDRFrequencyCorrection: int(settings.Get(rtlsdrFrequencyCorrection, float64(def.RTLSDRFrequencyCorrection)).(float64)),

		SpectrumFFTSize: int(settings.Get(spectrumFFTSize, float64(def.SpectrumFFTSize)).(float64)),
	}, nil
}
