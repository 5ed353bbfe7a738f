package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAxisKey(t *testing.T) {
	k, err := ParseAxisKey(" Accel : X ")
	require.NoError(t, err)
	assert.Equal(t, AxisKey("accel:x"), k)
	assert.Equal(t, "accel", k.Sensor())
	assert.Equal(t, "x", k.Axis())

	_, err = ParseAxisKey("accel")
	assert.Error(t, err)
	_, err = ParseAxisKey(":x")
	assert.Error(t, err)
}

func TestRowConstructors(t *testing.T) {
	now := time.Now()
	raw := RawRow(Reading{Sensor: SensorGyro, Axis: "z", Value: 0.25, Timestamp: now}, 1.5)
	assert.Equal(t, RowRaw, raw.Kind)
	assert.Equal(t, "gyro", raw.Sensor)
	assert.Equal(t, 1.5, raw.TRel)

	pred := PredictionRow(PredictionResult{Label: "R", Confidence: 0.8, Source: SourceFallback, Timestamp: now}, 2)
	assert.Equal(t, RowPrediction, pred.Kind)
	assert.Equal(t, "R", pred.Label)
	assert.Equal(t, SourceFallback, pred.Source)
}

func TestRowJSONKeepsZeroFieldsPerKind(t *testing.T) {
	raw := RawRow(Reading{Sensor: SensorAccel, Axis: "y", Value: 0, Timestamp: time.Unix(0, 0).UTC()}, 0)
	raw.Seq = 7
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":0`)
	assert.Contains(t, string(data), `"axis":"y"`)
	assert.NotContains(t, string(data), `"label"`)

	var back Row
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, uint64(7), back.Seq)
	assert.Equal(t, RowRaw, back.Kind)
	assert.Equal(t, "accel", back.Sensor)
	assert.True(t, back.Timestamp.Equal(raw.Timestamp))

	pred := PredictionRow(PredictionResult{Label: "L", Confidence: 0, Source: SourceModel}, 1)
	data, err = json.Marshal(pred)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"confidence":0`)
	assert.Contains(t, string(data), `"kind":"prediction"`)
	assert.NotContains(t, string(data), `"value"`)
}
