package redis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imu_go/internal/config"
	"imu_go/internal/models"
)

func TestDisabledServiceIsNoop(t *testing.T) {
	s, err := NewService(config.RedisConfig{Enabled: false, Prefix: "imu"}, nil)
	require.NoError(t, err)

	assert.False(t, s.IsConnected())
	assert.NotPanics(t, func() {
		s.HandlePrediction(models.PredictionResult{Label: "R"})
		s.HandleReset(10, 1)
		s.UpdateLatestValues(map[string]float64{"accel.x": 1})
	})
	assert.NoError(t, s.WriteLatestValues(map[string]float64{"accel.x": 1}))
	assert.NoError(t, s.WritePrediction(&models.PredictionResult{Label: "R"}))

	_, err = s.GetRecentPredictions(10)
	assert.Error(t, err)
	s.Shutdown()
}

func TestUnreachableRedisStartsOffline(t *testing.T) {
	s, err := NewService(config.RedisConfig{
		Enabled: true,
		Host:    "127.0.0.1",
		Port:    1, // nada escutando
		Prefix:  "imu",
	}, nil)
	require.NoError(t, err)
	defer s.Shutdown()

	assert.False(t, s.IsConnected())
	for i := 0; i < queueSize*2; i++ {
		s.HandlePrediction(models.PredictionResult{Label: "L", Timestamp: time.Now()})
	}
	_, err = s.GetRecentPredictions(5)
	assert.Error(t, err)
}

func TestKeyUsesPrefix(t *testing.T) {
	s := &Service{prefix: "imu"}
	assert.Equal(t, "imu:prediction:latest", s.key("prediction", "latest"))
	assert.Equal(t, "imu:label:R:count", s.key("label", "R", "count"))
	assert.Equal(t, "imu", s.key())
}

func TestDecodeHistorySkipsInvalidMembers(t *testing.T) {
	p := models.PredictionResult{Label: "R", Confidence: 0.75, Source: models.SourceFallback, Seq: 42}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	out := decodeHistory([]string{string(data), "lixo", string(data)})
	require.Len(t, out, 2)
	assert.Equal(t, "R", out[0].Label)
	assert.Equal(t, uint64(42), out[1].Seq)
	assert.Equal(t, 0.75, out[1].Confidence)
}
