package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lss-net/lss/internal/protocol/lss"
)

func TestEncodeDecodeValues(t *testing.T) {
	in := []lss.SensorValue{
		{Type: lss.ValueTemperature, Value: 19.5},
		{Type: lss.ValueHumidity, Value: 62},
		{Type: lss.ValueBattery, Value: 85},
	}
	s, err := EncodeValues(in)
	require.NoError(t, err)

	m, err := DecodeValues(s)
	require.NoError(t, err)
	assert.Len(t, m, 3)
	assert.InDelta(t, 19.5, m["temperature"], 1e-3)
	assert.InDelta(t, 62.0, m["humidity"], 1e-3)
	assert.InDelta(t, 85.0, m["battery"], 1e-3)
}

func TestDecodeValuesEmpty(t *testing.T) {
	m, err := DecodeValues("")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestDecodeValuesMalformed(t *testing.T) {
	_, err := DecodeValues("{not json")
	assert.Error(t, err)
}
