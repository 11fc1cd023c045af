// Package rtlsdr implements core.Source over an RTL-SDR dongle via
// gortlsdr, replacing the teacher's bare Dongle/io.Reader wrapper with
// a source that writes directly into a SampleRing from the device's
// async read callback.
package rtlsdr

import (
	"fmt"
	"log"
	"sync"

	rtl "github.com/jpoirier/gortlsdr"
	"github.com/pkg/errors"

	"github.com/ftl/dspengine/core/ring"
)

const defaultSampleRate = 2048000

// Configuration is the HandleConfiguration payload understood by
// Source. A zero field leaves the corresponding device setting
// unchanged.
type Configuration struct {
	CenterFrequency     uint64
	SampleRate          int
	FrequencyCorrection int
}

// Source wraps one RTL-SDR dongle as a core.Source.
type Source struct {
	mu sync.Mutex

	deviceIndex int
	device      *rtl.Context
	running     bool
	asyncDone   *sync.WaitGroup

	fifo *ring.Ring

	sampleRate          int
	centerFrequency     uint64
	frequencyCorrection int
	description         string
}

// New builds a Source for the dongle at deviceIndex, buffering into a
// ring of fifoCapacity samples.
func New(deviceIndex, fifoCapacity int) *Source {
	return &Source{
		deviceIndex: deviceIndex,
		fifo:        ring.New(fifoCapacity),
		sampleRate:  defaultSampleRate,
	}
}

func (s *Source) StartInput(flags uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return true
	}

	device, err := rtl.Open(s.deviceIndex)
	if err != nil {
		log.Print("rtlsdr: open failed: ", err)
		return false
	}

	if err := device.SetSampleRate(s.sampleRate); err != nil {
		device.Close()
		log.Print("rtlsdr: set sample rate failed: ", err)
		return false
	}
	s.sampleRate = device.GetSampleRate()

	if err := device.SetCenterFreq(int(s.centerFrequency)); err != nil {
		device.Close()
		log.Print("rtlsdr: set center frequency failed: ", err)
		return false
	}

	if err := device.ResetBuffer(); err != nil {
		device.Close()
		log.Print("rtlsdr: reset buffer failed: ", err)
		return false
	}

	if err := device.SetFreqCorrection(s.frequencyCorrection); err != nil {
		device.Close()
		log.Print("rtlsdr: set frequency correction failed: ", err)
		return false
	}

	s.device = device
	s.description = fmt.Sprintf("RTL-SDR: %s", rtl.GetDeviceName(s.deviceIndex))
	s.running = true

	wg := new(sync.WaitGroup)
	s.asyncDone = wg
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := device.ReadAsync(s.incomingData, nil, 0, 0); err != nil {
			log.Print("rtlsdr: ReadAsync stopped: ", err)
		}
	}()

	return true
}

func (s *Source) StopInput() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	device := s.device
	wg := s.asyncDone
	s.running = false
	s.description = ""
	s.mu.Unlock()

	device.CancelAsync()
	wg.Wait()
	if err := device.Close(); err != nil {
		log.Print("rtlsdr: close failed: ", err)
	}
}

// incomingData converts the dongle's interleaved unsigned 8-bit I/Q
// bytes into signed 16-bit samples and writes them to the ring.
func (s *Source) incomingData(data []byte) {
	samples := make([]ring.Sample, len(data)/2)
	for i := range samples {
		samples[i] = ring.Sample{
			I: (int16(data[2*i]) - 128) << 7,
			Q: (int16(data[2*i+1]) - 128) << 7,
		}
	}
	s.fifo.Write(samples)
}

func (s *Source) SampleFifo() *ring.Ring { return s.fifo }

func (s *Source) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleRate
}

func (s *Source) CenterFrequency() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.centerFrequency
}

func (s *Source) DeviceDescription() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.description
}

// HandleConfiguration applies a Configuration, pushing changed fields
// to the open device when one is present.
func (s *Source) HandleConfiguration(payload interface{}) error {
	cfg, ok := payload.(Configuration)
	if !ok {
		return errors.Errorf("rtlsdr: unsupported configuration payload %T", payload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.CenterFrequency != 0 {
		s.centerFrequency = cfg.CenterFrequency
		if s.device != nil {
			if err := s.device.SetCenterFreq(int(cfg.CenterFrequency)); err != nil {
				return errors.Wrap(err, "rtlsdr: set center frequency failed")
			}
		}
	}
	if cfg.SampleRate != 0 {
		s.sampleRate = cfg.SampleRate
		if s.device != nil {
			if err := s.device.SetSampleRate(cfg.SampleRate); err != nil {
				return errors.Wrap(err, "rtlsdr: set sample rate failed")
			}
			s.sampleRate = s.device.GetSampleRate()
		}
	}
	if cfg.FrequencyCorrection != 0 {
		s.frequencyCorrection = cfg.FrequencyCorrection
		if s.device != nil {
			if err := s.device.SetFreqCorrection(cfg.FrequencyCorrection); err != nil {
				return errors.Wrap(err, "rtlsdr: set frequency correction failed")
			}
		}
	}

	return nil
}
