package decoder

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imu_go/internal/models"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func values(readings []models.Reading) map[models.AxisKey]float64 {
	out := make(map[models.AxisKey]float64, len(readings))
	for _, r := range readings {
		out[r.Key()] = r.Value
	}
	return out
}

func TestDecodeBinaryFrame(t *testing.T) {
	res := Decode(EncodeFrame('A', 0.5, 0.5, 0.5), now)

	require.NoError(t, res.Err)
	assert.Equal(t, VariantBinary, res.Variant)
	require.Len(t, res.Readings, 3)
	for i, axis := range []string{"x", "y", "z"} {
		assert.Equal(t, models.SensorAccel, res.Readings[i].Sensor)
		assert.Equal(t, axis, res.Readings[i].Axis)
		assert.Equal(t, 0.5, res.Readings[i].Value)
		assert.Equal(t, now, res.Readings[i].Timestamp)
	}
}

func TestDecodeBinaryTags(t *testing.T) {
	cases := map[byte]string{
		'a': models.SensorAccel, 0x01: models.SensorAccel,
		'G': models.SensorGyro, 'g': models.SensorGyro, 0x02: models.SensorGyro,
		'V': models.SensorGravity, 'v': models.SensorGravity, 0x03: models.SensorGravity,
	}
	for tag, sensor := range cases {
		res := Decode(EncodeFrame(tag, 1, 2, 3), now)
		require.Len(t, res.Readings, 3, "tag %q", tag)
		assert.Equal(t, sensor, res.Readings[0].Sensor, "tag %q", tag)
	}

	// Etiqueta desconhecida não é reconhecida
	res := Decode(EncodeFrame('Z', 1, 2, 3), now)
	assert.True(t, res.Empty())
	assert.Equal(t, VariantNone, res.Variant)
	assert.NoError(t, res.Err)
}

func TestDecodeBinaryDropsNonFinite(t *testing.T) {
	frame := EncodeFrame('A', 1, float32(math.NaN()), float32(math.Inf(1)))
	res := Decode(frame, now)

	require.Len(t, res.Readings, 1)
	assert.Equal(t, "x", res.Readings[0].Axis)
}

func TestDecodeWrongLengthIsNotBinary(t *testing.T) {
	frame := append(EncodeFrame('A', 1, 2, 3), 0)
	res := Decode(frame, now)

	assert.True(t, res.Empty())
	assert.NoError(t, res.Err)
}

func TestDecodeJSONShapesAreEquivalent(t *testing.T) {
	want := map[models.AxisKey]float64{"accel:x": 0.5, "accel:y": 0.5, "accel:z": 0.5}
	packets := map[string]string{
		"flat":        `{"accel:x": 0.5, "accel:y": 0.5, "accel:z": 0.5}`,
		"flat-alias":  `{"Accelerometer:X": 0.5, "acc:y": "0.5", " acc : z ": 0.5}`,
		"nested":      `{"sensordata": {"accel": {"x": 0.5, "y": 0.5, "z": 0.5}}}`,
		"array":       `{"sensordata": {"accelerometer": [0.5, 0.5, 0.5]}}`,
		"top-nested":  `{"accel": {"x": 0.5, "y": 0.5, "z": 0.5}}`,
		"loose-accel": `{"sensordata": {"accel": {}, "x": 0.5, "y": 0.5, "z": 0.5}}`,
	}

	binary := Decode(EncodeFrame('A', 0.5, 0.5, 0.5), now)
	require.Equal(t, want, values(binary.Readings))

	for name, pkt := range packets {
		res := Decode([]byte(pkt), now)
		require.NoError(t, res.Err, name)
		assert.Equal(t, VariantJSON, res.Variant, name)
		assert.Equal(t, want, values(res.Readings), name)
		assert.Equal(t, binary.Readings, res.Readings, name)
	}
}

func TestDecodeLooseAxesDefaultSensor(t *testing.T) {
	res := Decode([]byte(`{"sensordata": {"gyro": [1, 2, 3], "accel": {"x": 9}, "x": 7}}`), now)
	got := values(res.Readings)
	assert.Equal(t, 7.0, got["gyro:x"], "gyro presente tem prioridade")
	assert.Equal(t, 9.0, got["accel:x"])

	res = Decode([]byte(`{"sensordata": {"x": 1, "y": 2, "z": 3}}`), now)
	assert.Equal(t, map[models.AxisKey]float64{"unknown:x": 1, "unknown:y": 2, "unknown:z": 3}, values(res.Readings))
}

func TestDecodeDropsNonNumericFields(t *testing.T) {
	pkt := `{"accel:x": 1.5, "accel:y": "abc", "accel:z": null, "gyro:x": true,
		"sensordata": {"gravity": [9.8, "x", 0.1], "gps": {"latitude": -23.5, "provider": "gps"}}}`
	res := Decode([]byte(pkt), now)

	require.NoError(t, res.Err)
	assert.Equal(t, map[models.AxisKey]float64{
		"accel:x":      1.5,
		"gravity:x":    9.8,
		"gravity:z":    0.1,
		"gps:latitude": -23.5,
	}, values(res.Readings))
}

func TestDecodeShortArrayIgnored(t *testing.T) {
	res := Decode([]byte(`{"sensordata": {"accel": [1, 2]}}`), now)
	assert.True(t, res.Empty())
	assert.Equal(t, VariantJSON, res.Variant)
}

func TestDecodeMalformedInput(t *testing.T) {
	for _, pkt := range []string{
		`{"accel:x": 1.0, "accel:y"`,
		`[1, 2, 3]`,
		`olá mundo`,
		``,
		`   `,
	} {
		res := Decode([]byte(pkt), now)
		assert.True(t, res.Empty(), pkt)
		assert.NoError(t, res.Err, pkt)
	}
}

func TestDecodeOutputIsSorted(t *testing.T) {
	res := Decode([]byte(`{"gyro:z": 3, "accel:y": 2, "gyro:x": 1, "accel:x": 0}`), now)
	keys := make([]models.AxisKey, 0, len(res.Readings))
	for _, r := range res.Readings {
		keys = append(keys, r.Key())
	}
	assert.Equal(t, []models.AxisKey{"accel:x", "accel:y", "gyro:x", "gyro:z"}, keys)
}

func TestDecodeDuplicateAxisIsDeterministic(t *testing.T) {
	packets := map[string]float64{
		`{"accel:x": 1, "accel": {"x": 2}}`:                        2,
		`{"accel": {"x": 2}, "sensordata": {"acc": [3, 0, 0]}}`:    3,
		`{"acc:x": 4, "accelerometer:x": 5, "Accel:X": 6}`:         5,
		`{"sensordata": {"acc": {"x": 8}, "accel": {"x": 7}}}`:     7,
		`{"sensordata": {"gyro": [1, 2, 3], "x": 9}, "gyro:x": 0}`: 9,
	}

	for pkt, want := range packets {
		key := models.AxisKey("accel:x")
		if want == 9 {
			key = "gyro:x"
		}
		for i := 0; i < 200; i++ {
			res := Decode([]byte(pkt), now)
			require.NoError(t, res.Err, pkt)
			got := values(res.Readings)
			require.Equal(t, want, got[key], pkt)

			count := 0
			for _, r := range res.Readings {
				if r.Key() == key {
					count++
				}
			}
			require.Equal(t, 1, count, "um valor por eixo: %s", pkt)
		}
	}
}

func TestSafeDecodeRecoversPanic(t *testing.T) {
	v := variant{name: "quebrado", decode: func([]byte, time.Time) ([]models.Reading, bool) {
		panic("índice fora do intervalo")
	}}

	readings, matched, err := safeDecode(v, []byte("x"), now)
	assert.Nil(t, readings)
	assert.False(t, matched)
	assert.ErrorContains(t, err, "quebrado")
}

func TestCanonicalSensor(t *testing.T) {
	assert.Equal(t, models.SensorAccel, CanonicalSensor(" ACC "))
	assert.Equal(t, models.SensorGyro, CanonicalSensor("gyroscope"))
	assert.Equal(t, models.SensorGravity, CanonicalSensor("grav"))
	assert.Equal(t, "gps", CanonicalSensor("GPS"))
}
