// Package ingest recebe datagramas UDP e os entrega ao pipeline.
package ingest

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"imu_go/internal/config"
	"imu_go/internal/metrics"
	"imu_go/pkg/logger"
)

// Sink consome um datagrama. Não pode reter raw após retornar.
type Sink interface {
	Ingest(raw []byte, now time.Time) int
}

// Stats resume a atividade do socket
type Stats struct {
	Packets      int64     `json:"packets"`
	Readings     int64     `json:"readings"`
	Oversized    int64     `json:"oversized"`
	SocketErrors int64     `json:"socketErrors"`
	LastPacket   time.Time `json:"lastPacket"`
}

// Listener gerencia o socket UDP de entrada
type Listener struct {
	config  config.IngestConfig
	sink    Sink
	metrics *metrics.Metrics

	conn    *net.UDPConn
	running bool
	done    chan struct{}
	mutex   sync.Mutex

	packets      int64
	readings     int64
	oversized    int64
	socketErrors int64
	lastPacket   atomic.Value // time.Time
}

// NewListener cria um listener; o socket só é aberto em Start
func NewListener(cfg config.IngestConfig, sink Sink, m *metrics.Metrics) *Listener {
	if cfg.MaxPacketSize <= 0 {
		cfg.MaxPacketSize = 65535
	}
	return &Listener{
		config:  cfg,
		sink:    sink,
		metrics: m,
	}
}

// Start abre o socket e inicia o loop de recepção
func (l *Listener) Start() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.running {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", l.config.Host, l.config.Port))
	if err != nil {
		return fmt.Errorf("erro ao resolver endereço UDP %s:%d: %w", l.config.Host, l.config.Port, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("erro ao escutar UDP na porta %d: %w", l.config.Port, err)
	}

	if l.config.ReadBufferSize > 0 {
		if err := conn.SetReadBuffer(l.config.ReadBufferSize); err != nil {
			// Alguns sistemas limitam o buffer; seguir com o padrão
			logger.Warnf("Não foi possível ajustar o buffer UDP para %d bytes: %v", l.config.ReadBufferSize, err)
		}
	}

	l.conn = conn
	l.done = make(chan struct{})
	l.running = true

	logger.Infof("Escutando datagramas UDP em %s", conn.LocalAddr())
	go l.readLoop(conn, l.done)
	return nil
}

// Stop fecha o socket e aguarda o fim do loop
func (l *Listener) Stop() {
	l.mutex.Lock()
	if !l.running {
		l.mutex.Unlock()
		return
	}
	l.running = false
	conn, done := l.conn, l.done
	l.conn = nil
	l.mutex.Unlock()

	// Fechar o socket desbloqueia ReadFromUDP
	conn.Close()
	<-done
	logger.Info("Socket UDP fechado")
}

// IsRunning verifica se o listener está ativo
func (l *Listener) IsRunning() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.running
}

// Addr retorna o endereço local do socket, ou nil se parado
func (l *Listener) Addr() net.Addr {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Port retorna a porta efetiva (útil quando configurada como 0)
func (l *Listener) Port() int {
	if addr, ok := l.Addr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return l.config.Port
}

// Stats retorna contadores do socket
func (l *Listener) Stats() Stats {
	s := Stats{
		Packets:      atomic.LoadInt64(&l.packets),
		Readings:     atomic.LoadInt64(&l.readings),
		Oversized:    atomic.LoadInt64(&l.oversized),
		SocketErrors: atomic.LoadInt64(&l.socketErrors),
	}
	if t, ok := l.lastPacket.Load().(time.Time); ok {
		s.LastPacket = t
	}
	return s
}

// readLoop drena o socket até ele ser fechado. O trabalho por pacote é
// limitado a decodificar e atualizar o store, então o loop não acumula fila.
func (l *Listener) readLoop(conn *net.UDPConn, done chan struct{}) {
	defer close(done)

	// Um byte extra detecta datagramas maiores que o limite
	buffer := make([]byte, l.config.MaxPacketSize+1)

	for {
		n, _, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			atomic.AddInt64(&l.socketErrors, 1)
			l.metrics.ObserveSocketError()
			if logger.Every("udp-erro", 10*time.Second) {
				logger.Warnf("Erro de leitura UDP: %v", err)
			}
			continue
		}

		now := time.Now()
		l.lastPacket.Store(now)

		if n > l.config.MaxPacketSize {
			atomic.AddInt64(&l.oversized, 1)
			l.metrics.ObserveDrop()
			if logger.Every("udp-grande", 10*time.Second) {
				logger.Warnf("Datagrama descartado: excede %d bytes", l.config.MaxPacketSize)
			}
			continue
		}

		atomic.AddInt64(&l.packets, 1)
		if accepted := l.sink.Ingest(buffer[:n], now); accepted > 0 {
			atomic.AddInt64(&l.readings, int64(accepted))
		}
	}
}
