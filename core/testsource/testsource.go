// Package testsource provides a synthetic core.Source for exercising
// the engine without hardware: a paced generator that writes tone,
// noise, or swept-tone blocks into a SampleRing, in the style of
// the teacher repo's core/dsp random-input generators.
package testsource

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ftl/dspengine/core/ring"
)

// Retune is the HandleConfiguration payload that changes the source's
// reported center frequency without restarting acquisition.
type Retune struct {
	CenterFrequency uint64
}

// generator produces one sample at index i of the current block.
type generator func(rng *rand.Rand, i int) ring.Sample

// Source is a synthetic core.Source. Use NewTone, NewNoise, or
// NewSweep to build one.
type Source struct {
	fifo            *ring.Ring
	sampleRate      int
	centerFrequency uint64
	description     string
	blockSize       int
	seed            int64
	generate        generator
	advanceSweep    func()

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func newSource(description string, sampleRate int, centerFrequency uint64, seed int64, generate generator) *Source {
	return &Source{
		fifo:            ring.New(sampleRate), // one second of headroom
		sampleRate:      sampleRate,
		centerFrequency: centerFrequency,
		description:     description,
		blockSize:       1024,
		seed:            seed,
		generate:        generate,
	}
}

// amplitude is the peak I/Q magnitude generated by Tone and Sweep.
const amplitude = 16000

// NewTone builds a Source emitting a steady complex tone at toneHz.
func NewTone(sampleRate int, centerFrequency uint64, toneHz float64, seed int64) *Source {
	omega := 2.0 * math.Pi * toneHz / float64(sampleRate)
	generate := func(rng *rand.Rand, i int) ring.Sample {
		t := float64(i)
		return ring.Sample{
			I: int16(amplitude * math.Cos(omega*t)),
			Q: int16(amplitude * math.Sin(omega*t)),
		}
	}
	return newSource("testsource: tone", sampleRate, centerFrequency, seed, generate)
}

// NewNoise builds a Source emitting uniform random I/Q noise,
// deterministic for a given seed.
func NewNoise(sampleRate int, centerFrequency uint64, seed int64) *Source {
	generate := func(rng *rand.Rand, i int) ring.Sample {
		return ring.Sample{
			I: int16(rng.Intn(2*amplitude) - amplitude),
			Q: int16(rng.Intn(2*amplitude) - amplitude),
		}
	}
	return newSource("testsource: noise", sampleRate, centerFrequency, seed, generate)
}

// NewSweep builds a Source emitting a tone that sweeps linearly
// between from and to in steps of step, wrapping back to from once it
// passes to. The sweep advances once per generated block.
func NewSweep(sampleRate int, centerFrequency uint64, from, to, step float64, seed int64) *Source {
	s := newSource("testsource: sweep", sampleRate, centerFrequency, seed, nil)
	f := from
	s.generate = func(rng *rand.Rand, i int) ring.Sample {
		omega := 2.0 * math.Pi * f / float64(sampleRate)
		t := float64(i)
		return ring.Sample{
			I: int16(amplitude * math.Cos(omega*t)),
			Q: int16(amplitude * math.Sin(omega*t)),
		}
	}
	s.advanceSweep = func() {
		f += step
		if f > to {
			f = from
		}
	}
	return s
}

func (s *Source) StartInput(flags uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return true
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	go s.run(rand.New(rand.NewSource(s.seed)), s.stop, s.done)
	return true
}

func (s *Source) StopInput() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stop, done := s.stop, s.done
	s.running = false
	s.mu.Unlock()

	close(stop)
	<-done
}

func (s *Source) run(rng *rand.Rand, stop, done chan struct{}) {
	defer close(done)

	blockPeriod := time.Duration(float64(s.blockSize) / float64(s.sampleRate) * float64(time.Second))
	ticker := time.NewTicker(blockPeriod)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			block := make([]ring.Sample, s.blockSize)
			for j := range block {
				block[j] = s.generate(rng, i)
				i++
			}
			if s.advanceSweep != nil {
				s.advanceSweep()
			}
			s.fifo.Write(block)
		}
	}
}

func (s *Source) SampleFifo() *ring.Ring { return s.fifo }
func (s *Source) SampleRate() int        { return s.sampleRate }
func (s *Source) CenterFrequency() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.centerFrequency
}
func (s *Source) DeviceDescription() string { return s.description }

func (s *Source) HandleConfiguration(payload interface{}) error {
	retune, ok := payload.(Retune)
	if !ok {
		return errors.Errorf("testsource: unsupported configuration payload %T", payload)
	}
	s.mu.Lock()
	s.centerFrequency = retune.CenterFrequency
	s.mu.Unlock()
	return nil
}
