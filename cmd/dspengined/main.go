// Command dspengined wires a sample source, a spectrum sink, optional
// remote control, and the DSP engine into a running process, the way
// the teacher repo's core/app.Controller wires rx/vfo/rtlsdr together
// for its GUI, minus the GUI.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ftl/dspengine/core"
	"github.com/ftl/dspengine/core/cfg"
	"github.com/ftl/dspengine/core/engine"
	"github.com/ftl/dspengine/core/preset"
	"github.com/ftl/dspengine/core/remotecontrol"
	"github.com/ftl/dspengine/core/rtlsdr"
	"github.com/ftl/dspengine/core/spectrum"
	"github.com/ftl/dspengine/core/testsource"
)

func main() {
	presetPath := flag.String("preset", "", "path to a persisted preset blob")
	synthetic := flag.Bool("synthetic", false, "use a synthetic tone source instead of an RTL-SDR dongle")
	toneHz := flag.Float64("tone", 1000, "tone frequency for -synthetic, in Hz")
	flag.Parse()

	settings, err := cfg.Load()
	if err != nil {
		log.Fatal("dspengined: loading configuration failed: ", err)
	}

	p := loadPreset(*presetPath)

	e := engine.New(4)
	done := make(chan struct{})
	var subProcesses sync.WaitGroup

	subProcesses.Add(1)
	go func() {
		defer subProcesses.Done()
		e.Run(done)
	}()

	source := openSource(*synthetic, *toneHz, p, settings)
	e.SetSource(source)

	spectrumSink := spectrum.New(settings.SpectrumFFTSize, 5, 10, 4)
	e.AddSink(spectrumSink)
	subProcesses.Add(1)
	go func() {
		defer subProcesses.Done()
		logSpectrum(spectrumSink, done)
	}()

	e.ConfigureCorrection(p.DCOffsetCorrection, p.IQImbalanceCorrection)

	startRemoteControl(e, *synthetic, settings, &subProcesses, done)

	if state := e.StartAcquisition(); state != engine.Running {
		log.Fatal("dspengined: could not start acquisition: ", e.ErrorMessage())
	}
	log.Print("dspengined: running on ", e.DeviceDescription())

	waitForSignal()

	e.Exit()
	close(done)
	subProcesses.Wait()
}

func loadPreset(path string) preset.Preset {
	if path == "" {
		return preset.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal("dspengined: reading preset failed: ", err)
	}

	p, err := preset.Deserialize(data)
	if err != nil {
		log.Print("dspengined: preset decode failed, using defaults: ", err)
	}
	return p
}

func openSource(synthetic bool, toneHz float64, p preset.Preset, settings cfg.Configuration) core.Source {
	if synthetic {
		return testsource.NewTone(2048000, p.CenterFrequency, toneHz, 1)
	}

	source := rtlsdr.New(settings.RTLSDRDeviceIndex, settings.RingCapacity)
	if err := source.HandleConfiguration(rtlsdr.Configuration{
		CenterFrequency:     p.CenterFrequency,
		FrequencyCorrection: settings.RTLSDRFrequencyCorrection,
	}); err != nil {
		log.Print("dspengined: initial rtlsdr configuration failed: ", err)
	}
	return source
}

func startRemoteControl(e *engine.Engine, synthetic bool, settings cfg.Configuration, subProcesses *sync.WaitGroup, done chan struct{}) {
	if settings.RemoteControlAddress == "" {
		return
	}

	controller, err := remotecontrol.Open(settings.RemoteControlAddress, settings.RemoteControlPollingInterval, func(hz uint64) {
		if synthetic {
			e.ConfigureSource(testsource.Retune{CenterFrequency: hz})
			return
		}
		e.ConfigureSource(rtlsdr.Configuration{CenterFrequency: hz})
	})
	if err != nil {
		log.Print("dspengined: remote control unavailable: ", err)
		return
	}

	subProcesses.Add(1)
	go func() {
		defer subProcesses.Done()
		controller.Run(done)
	}()
}

func logSpectrum(sink *spectrum.Sink, done chan struct{}) {
	for {
		select {
		case frame := <-sink.Frames():
			log.Printf("dspengined: spectrum frame, %d bins, first-of-burst=%v", len(frame.Averaged), frame.FirstOfBurst)
		case <-done:
			return
		}
	}
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
