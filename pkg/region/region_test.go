package region

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLookup() StaticLookup {
	return StaticLookup{
		"rx": {Base: 0x10000000, Size: 0x100000},
	}
}

func TestResolveRecording(t *testing.T) {
	r, err := ResolveRecording(testLookup(), "rx")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x10000000), r.Base())
	assert.Equal(t, uint64(0x100000), r.Size())
	_, ok := r.Geometry()
	assert.False(t, ok, "recording regions carry no ring geometry")
}

func TestResolveRecordingUnknownRegion(t *testing.T) {
	_, err := ResolveRecording(testLookup(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestResolveRingGeometry(t *testing.T) {
	r, err := ResolveRing(testLookup(), "rx", 0x10000)
	require.NoError(t, err)
	g, ok := r.Geometry()
	require.True(t, ok)
	assert.Equal(t, uint64(0x10000), g.BufferSize)
	assert.Equal(t, uint32(16), g.NumBuffers)
	assert.Equal(t, r.Size(), g.BufferSize*uint64(g.NumBuffers))
}

func TestResolveRingErrors(t *testing.T) {
	tests := []struct {
		name       string
		region     string
		bufferSize uint64
	}{
		{"non divisor buffer size", "rx", 0x3000},
		{"zero buffer size", "rx", 0},
		{"unknown region", "missing", 0x10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveRing(testLookup(), tt.region, tt.bufferSize)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig))
		})
	}
}

func TestResolveRejectsDegenerateRegions(t *testing.T) {
	lk := StaticLookup{
		"empty":    {Base: 0x10000000, Size: 0},
		"wrapping": {Base: ^uint64(0) - 0xfff, Size: 0x2000},
	}
	for _, name := range []string{"empty", "wrapping"} {
		_, err := ResolveRecording(lk, name)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrConfig), name)
	}
}

func TestResolveWithoutLookup(t *testing.T) {
	_, err := ResolveRecording(nil, "rx")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))

	_, err = ResolveRecording(testLookup(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
}
