package cfg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault_EnablesBothCorrectionsAndUsesPositiveSizes(t *testing.T) {
	d := Default()

	assert.True(t, d.DCCorrection)
	assert.True(t, d.IQCorrection)
	assert.Equal(t, 500*time.Millisecond, d.RemoteControlPollingInterval)
	assert.Greater(t, d.RingCapacity, 0)
	assert.Greater(t, d.SpectrumFFTSize, 0)
}
