package mqtt

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imu_go/internal/config"
	"imu_go/internal/models"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	messages     []published
	disconnected bool
}

func (f *fakeClient) Connect() paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return doneToken{}
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return doneToken{}
}

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

func (f *fakeClient) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...)
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{Enabled: true, Topic: "imu/predicao", QoS: 1, Retained: true}
}

func TestPublishesPredictionRetained(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(testConfig(), fc, nil)
	defer p.Shutdown()

	ts := time.UnixMilli(1700000000123)
	p.HandlePrediction(models.PredictionResult{
		Label:      "R",
		Confidence: 0.8,
		Source:     models.SourceModel,
		Seq:        129,
		BasedOnSeq: 128,
		Features:   []float64{1, 2, 3},
		Timestamp:  ts,
	})

	require.Eventually(t, func() bool { return len(fc.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	msg := fc.snapshot()[0]
	assert.Equal(t, "imu/predicao", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retained)

	var event models.PredictionEvent
	require.NoError(t, json.Unmarshal(msg.payload, &event))
	assert.Equal(t, "R", event.Label)
	assert.Equal(t, uint64(129), event.Seq)
	assert.Equal(t, int64(1700000000123), event.Timestamp)
	assert.NotContains(t, string(msg.payload), "features")
}

func TestPublishesResetOnSubtopic(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(testConfig(), fc, nil)
	defer p.Shutdown()

	p.HandleReset(301, 2)
	require.Eventually(t, func() bool { return len(fc.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	msg := fc.snapshot()[0]
	assert.Equal(t, "imu/predicao/reset", msg.topic)
	assert.False(t, msg.retained)

	var event models.ResetEvent
	require.NoError(t, json.Unmarshal(msg.payload, &event))
	assert.Equal(t, uint64(301), event.RestartSeq)
	assert.Equal(t, uint64(2), event.Epoch)
}

func TestDisabledPublisherIsNoop(t *testing.T) {
	p := NewPublisher(config.MQTTConfig{Enabled: false}, nil)
	assert.NotPanics(t, func() {
		p.HandlePrediction(models.PredictionResult{Label: "L"})
		p.HandleReset(1, 1)
		p.Shutdown()
	})
	assert.Zero(t, p.Dropped())
}

func TestShutdownDisconnects(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(testConfig(), fc, nil)
	p.Shutdown()
	p.Shutdown()
	assert.True(t, fc.disconnected)
}
