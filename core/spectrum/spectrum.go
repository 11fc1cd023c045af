// Package spectrum implements a core.Sink that turns the corrected
// sample stream into a windowed FFT power spectrum, smoothed and
// averaged the way the teacher repo's core/rx and core/dsp packages
// do it for their panorama display.
package spectrum

import (
	"log"
	"sync"

	"github.com/mjibson/go-dsp/window"

	"github.com/ftl/dspengine/core"
)

// Frame is one published spectrum estimate.
type Frame struct {
	SampleRate   int
	Raw          []float64
	Smoothed     []float64
	Averaged     []float64
	FirstOfBurst bool
}

// Sink accumulates samples into fftSize blocks, windows and
// transforms each with the FFT, and publishes a Frame per block on
// Frames(). It implements core.Sink.
type Sink struct {
	fftSize int
	window  []float64

	estimator *estimator
	averager  *averager
	frames    chan Frame

	mu         sync.Mutex
	sampleRate int
	buffer     []complex128
	running    bool
}

// New builds a Sink transforming fftSize samples at a time, holding
// smoothingDepth raw spectra for the minimum-hold smoother and
// averagingDepth smoothed spectra for the rolling average. frameBuffer
// sizes the output channel; pass 0 for a sensible default.
func New(fftSize, smoothingDepth, averagingDepth, frameBuffer int) *Sink {
	if frameBuffer <= 0 {
		frameBuffer = 4
	}
	return &Sink{
		fftSize:   fftSize,
		window:    window.Hann(fftSize),
		estimator: newEstimator(smoothingDepth, fftSize),
		averager:  newAverager(averagingDepth, fftSize),
		frames:    make(chan Frame, frameBuffer),
	}
}

// Frames returns the channel on which spectrum estimates are
// published.
func (s *Sink) Frames() <-chan Frame {
	return s.frames
}

func (s *Sink) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.buffer = s.buffer[:0]
}

func (s *Sink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

func (s *Sink) SetSampleRate(rate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampleRate = rate
}

// Feed accumulates span into the block buffer and emits one Frame per
// complete fftSize block. span must not be retained past this call,
// per core.Sink's contract; Feed only reads from it.
func (s *Sink) Feed(span core.Span, firstOfBurst bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	for _, sample := range span {
		s.buffer = append(s.buffer, complex(float64(sample.I)/32768.0, float64(sample.Q)/32768.0))
	}

	for len(s.buffer) >= s.fftSize {
		block := make([]complex128, s.fftSize)
		copy(block, s.buffer[:s.fftSize])
		s.buffer = s.buffer[s.fftSize:]

		for i := range block {
			block[i] *= complex(s.window[i], 0)
		}

		raw, smoothed := s.estimator.calculate(block)
		averaged := s.averager.Put(append([]float64{}, smoothed...))

		s.publish(Frame{
			SampleRate:   s.sampleRate,
			Raw:          raw,
			Smoothed:     smoothed,
			Averaged:     averaged,
			FirstOfBurst: firstOfBurst,
		})
		firstOfBurst = false
	}
}

func (s *Sink) publish(f Frame) {
	select {
	case s.frames <- f:
	default:
		log.Print("spectrum: frame channel hangs, dropping frame")
	}
}

// HandleMessage accepts no out-of-band control messages today; it
// exists to satisfy core.Sink.
func (s *Sink) HandleMessage(payload interface{}) {}
