package ingest

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imu_go/internal/config"
	"imu_go/internal/decoder"
)

// recordingSink guarda cópias dos datagramas recebidos
type recordingSink struct {
	mu      sync.Mutex
	packets [][]byte
}

func (r *recordingSink) Ingest(raw []byte, _ time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = append(r.packets, append([]byte(nil), raw...))
	return len(decoder.Decode(raw, time.Now()).Readings)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.packets)
}

func startListener(t *testing.T, maxPacket int) (*Listener, *recordingSink, *net.UDPConn) {
	t.Helper()
	sink := &recordingSink{}
	l := NewListener(config.IngestConfig{Host: "127.0.0.1", Port: 0, MaxPacketSize: maxPacket}, sink, nil)
	require.NoError(t, l.Start())
	t.Cleanup(l.Stop)

	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: l.Port()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return l, sink, conn
}

func TestListenerDeliversDatagrams(t *testing.T) {
	l, sink, conn := startListener(t, 1024)

	_, err := conn.Write(decoder.EncodeFrame('A', 0.5, 0.5, 0.5))
	require.NoError(t, err)
	_, err = conn.Write([]byte(`{"accel:x": 1}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sink.count() == 2 }, 2*time.Second, 5*time.Millisecond)

	st := l.Stats()
	assert.Equal(t, int64(2), st.Packets)
	assert.Equal(t, int64(4), st.Readings)
	assert.False(t, st.LastPacket.IsZero())
}

func TestListenerDropsOversized(t *testing.T) {
	l, sink, conn := startListener(t, 16)

	_, err := conn.Write(make([]byte, 64))
	require.NoError(t, err)
	_, err = conn.Write(decoder.EncodeFrame('g', 1, 2, 3))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), l.Stats().Oversized)
	assert.Len(t, sink.packets[0], decoder.FrameLength)
}

func TestListenerStartStopIdempotent(t *testing.T) {
	l := NewListener(config.IngestConfig{Host: "127.0.0.1", Port: 0}, &recordingSink{}, nil)
	require.NoError(t, l.Start())
	require.NoError(t, l.Start())
	assert.True(t, l.IsRunning())
	assert.NotNil(t, l.Addr())

	l.Stop()
	l.Stop()
	assert.False(t, l.IsRunning())
	assert.Nil(t, l.Addr())
}

func TestListenerInvalidAddress(t *testing.T) {
	l := NewListener(config.IngestConfig{Host: "host-invalido.invalid", Port: 1}, &recordingSink{}, nil)
	assert.Error(t, l.Start())
	assert.False(t, l.IsRunning())
}
