package spectrum

import (
	"math"

	fft "github.com/mjibson/go-dsp/fft"
)

// estimator computes a smoothed power spectrum from successive blocks
// of complex samples, keeping a rolling buffer of the last few raw
// spectra and picking the minimum-power bin across them as the
// smoothed value (a "hold the floor" smoother).
type estimator struct {
	smoothingBuffer [][]complex128
	smoothingIndex  int
	maxResultSize   int
}

func newEstimator(smoothingDepth, maxResultSize int) *estimator {
	return &estimator{
		smoothingBuffer: make([][]complex128, smoothingDepth),
		maxResultSize:   maxResultSize,
	}
}

func (e *estimator) calculate(block []complex128) (raw, smoothed []float64) {
	blockSize := len(block)
	data := fft.FFT(block)

	e.smoothingBuffer[e.smoothingIndex] = data
	e.smoothingIndex = (e.smoothingIndex + 1) % len(e.smoothingBuffer)

	raw = make([]float64, blockSize)
	smoothed = make([]float64, blockSize)

	blockCenter := blockSize / 2
	for i := 0; i < blockSize; i++ {
		resultIndex := i + blockCenter
		if i >= blockCenter {
			resultIndex = i - blockCenter
		}

		var re, im float64
		found := false
		for j := 0; j < len(e.smoothingBuffer); j++ {
			if len(e.smoothingBuffer[j]) != len(data) {
				continue
			}
			pwr1 := math.Pow(im, 2) + math.Pow(re, 2)
			pwr2 := math.Pow(imag(e.smoothingBuffer[j][i]), 2) + math.Pow(real(e.smoothingBuffer[j][i]), 2)
			if !found || pwr2 < pwr1 {
				re = real(e.smoothingBuffer[j][i])
				im = imag(e.smoothingBuffer[j][i])
				found = true
			}
		}

		raw[resultIndex] = normalize(real(data[i]), imag(data[i]))
		smoothed[resultIndex] = normalize(re, im)
	}

	for len(raw) > e.maxResultSize {
		raw = reduce(raw)
		smoothed = reduce(smoothed)
	}

	return raw, smoothed
}

func normalize(re, im float64) float64 {
	pwr := math.Pow(im, 2) + math.Pow(re, 2)
	return 10.0*math.Log10(pwr+1.0e-20) + 0.5
}

func reduce(data []float64) []float64 {
	result := make([]float64, (len(data)/2)-(len(data)%2))
	for i := 0; i < len(data); i += 2 {
		j := i / 2
		if j >= len(result) {
			break
		}
		switch {
		case i < 1:
			result[j] = data[i]
		case i < len(data)-1:
			result[j] = (data[i] + data[i+1]) / 2
		case i == len(data)-1:
			result[j] = data[i]
		}
	}
	return result
}
