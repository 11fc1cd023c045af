package remotecontrol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAndParseFrequency_RoundTrip(t *testing.T) {
	got, err := parseFrequency(formatFrequency(145500000))

	require.NoError(t, err)
	assert.Equal(t, uint64(145500000), got)
}

func TestParseFrequency_RejectsGarbage(t *testing.T) {
	_, err := parseFrequency("not-a-number")

	assert.Error(t, err)
}

func TestUpdateCurrentFrequency_OnlyReportsActualChanges(t *testing.T) {
	c := &Controller{}

	assert.True(t, c.updateCurrentFrequency(14200000), "first observation is always a change")
	assert.False(t, c.updateCurrentFrequency(14200000), "repeating the same frequency is not a change")
	assert.True(t, c.updateCurrentFrequency(7100000))
	assert.Equal(t, uint64(7100000), c.CurrentFrequency())
}
