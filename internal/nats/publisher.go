package nats

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"imu_go/internal/config"
	"imu_go/internal/metrics"
	"imu_go/internal/models"
	"imu_go/pkg/logger"
)

const queueSize = 32

// conn é o subconjunto de *nats.Conn usado pelo publicador
type conn interface {
	Publish(subject string, data []byte) error
	Flush() error
	Drain() error
	IsConnected() bool
}

type message struct {
	subject string
	data    []byte
}

// Publisher publica predições e resets num subject NATS
type Publisher struct {
	conn    conn
	config  config.NATSConfig
	metrics *metrics.Metrics

	queue   chan message
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped int64
}

// NewPublisher conecta ao servidor NATS. Falha de conexão não é fatal: o
// publicador fica desabilitado e o serviço segue sem ele.
func NewPublisher(cfg config.NATSConfig, m *metrics.Metrics) *Publisher {
	if !cfg.Enabled {
		logger.Info("Publicador NATS desabilitado por configuração")
		return &Publisher{config: cfg}
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("imu-classificador"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(3*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("Desconectado do NATS: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infof("Reconectado ao NATS em %s", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Debug("Conexão NATS encerrada")
		}),
	)
	if err != nil {
		logger.Warnf("NATS indisponível em %s (%v). Publicação desativada", cfg.URL, err)
		return &Publisher{config: cfg}
	}
	logger.Infof("Conectado ao NATS em %s", nc.ConnectedUrl())
	return newPublisher(cfg, nc, m)
}

func newPublisher(cfg config.NATSConfig, c conn, m *metrics.Metrics) *Publisher {
	p := &Publisher{
		conn:    c,
		config:  cfg,
		metrics: m,
		queue:   make(chan message, queueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.publishLoop()
	return p
}

// Subject retorna o subject de um sufixo ("" para predições)
func (p *Publisher) Subject(suffix string) string {
	if suffix == "" {
		return p.config.Subject
	}
	return p.config.Subject + "." + suffix
}

// HandlePrediction enfileira a predição para publicação
func (p *Publisher) HandlePrediction(result models.PredictionResult) {
	data, err := json.Marshal(result.Event())
	if err != nil {
		logger.Errorf("Erro ao serializar predição para NATS: %v", err)
		return
	}
	p.enqueue(message{subject: p.Subject(""), data: data})
}

// HandleReset publica o aviso de reset
func (p *Publisher) HandleReset(restartSeq, epoch uint64) {
	data, _ := json.Marshal(models.ResetEvent{
		RestartSeq: restartSeq,
		Epoch:      epoch,
		Timestamp:  time.Now().UnixMilli(),
	})
	p.enqueue(message{subject: p.Subject("reset"), data: data})
}

func (p *Publisher) enqueue(msg message) {
	if p.queue == nil {
		return
	}
	select {
	case p.queue <- msg:
	default:
		dropped := atomic.AddInt64(&p.dropped, 1)
		p.metrics.ObserveSinkError("nats")
		if logger.Every("nats-fila", 30*time.Second) {
			logger.Warnf("Fila NATS cheia; %d mensagens descartadas até agora", dropped)
		}
	}
}

// Dropped retorna quantas mensagens foram descartadas
func (p *Publisher) Dropped() int64 {
	return atomic.LoadInt64(&p.dropped)
}

func (p *Publisher) publishLoop() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case msg := <-p.queue:
			// Publish só falha com a conexão fechada; durante reconexão o cliente bufferiza
			if err := p.conn.Publish(msg.subject, msg.data); err != nil {
				p.metrics.ObserveSinkError("nats")
				if logger.Every("nats-publicacao", 30*time.Second) {
					logger.Errorf("Erro ao publicar em %s: %v", msg.subject, err)
				}
			}
		}
	}
}

// Shutdown drena a conexão e encerra o loop
func (p *Publisher) Shutdown() {
	if p.conn == nil {
		return
	}
	p.once.Do(func() {
		close(p.stop)
		<-p.done
		if p.conn.IsConnected() {
			if err := p.conn.Flush(); err != nil {
				logger.Warnf("Erro ao descarregar NATS: %v", err)
			}
		}
		if err := p.conn.Drain(); err != nil {
			logger.Warnf("Erro ao drenar NATS: %v", err)
		}
		logger.Info("Publicador NATS encerrado")
	})
}
