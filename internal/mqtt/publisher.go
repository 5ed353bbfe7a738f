package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"imu_go/internal/config"
	"imu_go/internal/metrics"
	"imu_go/internal/models"
	"imu_go/pkg/logger"
)

const (
	queueSize      = 32
	publishTimeout = 2 * time.Second
)

// client é o subconjunto do cliente paho usado pelo publicador
type client interface {
	Connect() paho.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

type message struct {
	topic    string
	payload  []byte
	retained bool
}

// Publisher publica cada predição num tópico MQTT
type Publisher struct {
	client  client
	config  config.MQTTConfig
	metrics *metrics.Metrics

	queue   chan message
	done    chan struct{}
	stop    chan struct{}
	once    sync.Once
	dropped int64
}

// NewPublisher conecta ao broker configurado. Com o publicador desabilitado
// o valor retornado aceita chamadas e não faz nada.
func NewPublisher(cfg config.MQTTConfig, m *metrics.Metrics) *Publisher {
	if !cfg.Enabled {
		logger.Info("Publicador MQTT desabilitado por configuração")
		return &Publisher{config: cfg}
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warnf("Conexão MQTT perdida: %v", err)
		}).
		SetOnConnectHandler(func(_ paho.Client) {
			logger.Infof("Conectado ao broker MQTT %s", cfg.Broker)
		})

	return newPublisher(cfg, paho.NewClient(opts), m)
}

func newPublisher(cfg config.MQTTConfig, c client, m *metrics.Metrics) *Publisher {
	p := &Publisher{
		client:  c,
		config:  cfg,
		metrics: m,
		queue:   make(chan message, queueSize),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}

	// Com ConnectRetry o token só conclui na primeira conexão bem-sucedida
	token := c.Connect()
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		logger.Warnf("Broker MQTT indisponível (%v). Publicações serão descartadas até reconectar", token.Error())
	}

	go p.publishLoop()
	return p
}

// Topic retorna o tópico usado para um sufixo ("" para predições)
func (p *Publisher) Topic(suffix string) string {
	if suffix == "" {
		return p.config.Topic
	}
	return p.config.Topic + "/" + suffix
}

// HandlePrediction enfileira a predição para publicação
func (p *Publisher) HandlePrediction(result models.PredictionResult) {
	payload, err := json.Marshal(result.Event())
	if err != nil {
		logger.Errorf("Erro ao serializar predição para MQTT: %v", err)
		return
	}
	p.enqueue(message{topic: p.Topic(""), payload: payload, retained: p.config.Retained})
}

// HandleReset publica o aviso de reset
func (p *Publisher) HandleReset(restartSeq, epoch uint64) {
	payload, _ := json.Marshal(models.ResetEvent{
		RestartSeq: restartSeq,
		Epoch:      epoch,
		Timestamp:  time.Now().UnixMilli(),
	})
	p.enqueue(message{topic: p.Topic("reset"), payload: payload})
}

func (p *Publisher) enqueue(msg message) {
	if p.queue == nil {
		return
	}
	select {
	case p.queue <- msg:
	default:
		dropped := atomic.AddInt64(&p.dropped, 1)
		p.metrics.ObserveSinkError("mqtt")
		if logger.Every("mqtt-fila", 30*time.Second) {
			logger.Warnf("Fila MQTT cheia; %d mensagens descartadas até agora", dropped)
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
			if err := p.publish(msg); err != nil {
				p.metrics.ObserveSinkError("mqtt")
				if logger.Every("mqtt-publicacao", 30*time.Second) {
					logger.Errorf("Erro ao publicar em %s: %v", msg.topic, err)
				}
			}
		}
	}
}

func (p *Publisher) publish(msg message) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("cliente MQTT desconectado")
	}
	token := p.client.Publish(msg.topic, byte(p.config.QoS), msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("tempo esgotado aguardando confirmação")
	}
	return token.Error()
}

// Shutdown encerra o loop e desconecta do broker
func (p *Publisher) Shutdown() {
	if p.client == nil {
		return
	}
	p.once.Do(func() {
		close(p.stop)
		<-p.done
		p.client.Disconnect(250)
		logger.Info("Publicador MQTT encerrado")
	})
}
