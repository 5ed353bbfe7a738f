package utils

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat32LittleEndianRoundTrip(t *testing.T) {
	buf := make([]byte, 9)
	PutFloat32LE(buf, 1, 0.5)
	PutFloat32LE(buf, 5, -9.81)

	v, err := Float32FromLE(buf, 1)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), v)

	v, err = Float32FromLE(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, float32(-9.81), v)

	_, err = Float32FromLE(buf, 6)
	assert.Error(t, err)
}

func TestBigEndianHelpers(t *testing.T) {
	assert.Equal(t, []byte{0x3f, 0x80, 0x00, 0x00}, Float32ToBytes(1))
	assert.Equal(t, float32(1), BytesToFloat32([]byte{0x3f, 0x80, 0x00, 0x00}))
	assert.Equal(t, int16(-2), BytesToInt16(Int16ToBytes(-2)))
	assert.Equal(t, int32(70000), BytesToInt32(Int32ToBytes(70000)))
}

func TestParseFloatAndFinite(t *testing.T) {
	v, ok := ParseFloat(" 1.25 ")
	assert.True(t, ok)
	assert.Equal(t, 1.25, v)

	_, ok = ParseFloat("abc")
	assert.False(t, ok)

	assert.True(t, IsFinite(3))
	assert.False(t, IsFinite(math.NaN()))
	assert.False(t, IsFinite(math.Inf(-1)))
}

func TestTimeHelpers(t *testing.T) {
	assert.Equal(t, "1h 2m 3s", FormatDuration(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "45s", FormatDuration(45*time.Second))

	now := time.UnixMilli(1700000000123)
	assert.Equal(t, int64(1700000000123), UnixMillis(now))
	assert.True(t, FromUnixMillis(1700000000123).Equal(now))

	start := now.Add(-1500 * time.Millisecond)
	assert.InDelta(t, 1.5, SecondsSince(start, now), 1e-9)
	assert.Equal(t, 0.0, SecondsSince(time.Time{}, now))
}
