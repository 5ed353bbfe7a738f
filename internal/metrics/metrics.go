// Package metrics expõe os contadores do pipeline no formato Prometheus.
//
// Um *Metrics nil é válido: todos os métodos viram no-op, o que permite
// rodar o pipeline (e os testes) sem registro.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "imu"

// Metrics agrupa os coletores do serviço
type Metrics struct {
	registry *prometheus.Registry

	packetsReceived *prometheus.CounterVec
	bytesReceived   prometheus.Counter
	readingsTotal   prometheus.Counter
	packetsDropped  prometheus.Counter
	socketErrors    prometheus.Counter
	lastActivity    prometheus.Gauge

	ticks        prometheus.Counter
	tickDuration prometheus.Histogram
	windowFill   prometheus.Gauge

	predictions     *prometheus.CounterVec
	inferenceErrors prometheus.Counter
	lastConfidence  prometheus.Gauge

	rowLogSize    prometheus.Gauge
	rowLogLastSeq prometheus.Gauge
	resets        prometheus.Counter

	websocketClients prometheus.Gauge
	sinkErrors       *prometheus.CounterVec
}

// New cria e registra todos os coletores num registro próprio
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		packetsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "packets_total",
			Help:      "Datagramas recebidos por variante de decodificação",
		}, []string{"variant"}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Bytes recebidos no socket UDP",
		}),
		readingsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "readings_total",
			Help:      "Leituras normalizadas extraídas dos datagramas",
		}),
		packetsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "packets_dropped_total",
			Help:      "Datagramas descartados (tamanho excedido ou erro do decodificador)",
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "socket_errors_total",
			Help:      "Erros de leitura do socket UDP",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp do último datagrama recebido",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "window",
			Name:      "ticks_total",
			Help:      "Ticks do amostrador de janela",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "window",
			Name:      "tick_duration_seconds",
			Help:      "Duração de um tick (amostragem, características e inferência)",
			Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
		}),
		windowFill: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "window",
			Name:      "fill_samples",
			Help:      "Preenchimento atual da janela (amostras por eixo)",
		}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "predictions_total",
			Help:      "Predições emitidas por rótulo e origem",
		}, []string{"label", "source"}),
		inferenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "errors_total",
			Help:      "Ciclos de predição descartados por falha do classificador",
		}),
		lastConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "last_confidence",
			Help:      "Confiança da última predição",
		}),
		rowLogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rowlog",
			Name:      "rows",
			Help:      "Linhas armazenadas no log",
		}),
		rowLogLastSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rowlog",
			Name:      "last_seq",
			Help:      "Último número de sequência atribuído",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rowlog",
			Name:      "resets_total",
			Help:      "Resets do pipeline",
		}),
		websocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Clientes WebSocket conectados",
		}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "errors_total",
			Help:      "Falhas de entrega por destino (redis, plc, mqtt, nats)",
		}, []string{"sink"}),
	}

	m.registry.MustRegister(
		m.packetsReceived, m.bytesReceived, m.readingsTotal, m.packetsDropped,
		m.socketErrors, m.lastActivity,
		m.ticks, m.tickDuration, m.windowFill,
		m.predictions, m.inferenceErrors, m.lastConfidence,
		m.rowLogSize, m.rowLogLastSeq, m.resets,
		m.websocketClients, m.sinkErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry retorna o registro Prometheus subjacente
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler retorna o handler HTTP de /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObservePacket registra um datagrama recebido e decodificado
func (m *Metrics) ObservePacket(variant string, bytes, readings int, at time.Time) {
	if m == nil {
		return
	}
	m.packetsReceived.WithLabelValues(variant).Inc()
	m.bytesReceived.Add(float64(bytes))
	m.readingsTotal.Add(float64(readings))
	m.lastActivity.Set(float64(at.Unix()))
}

// ObserveDrop registra um datagrama descartado
func (m *Metrics) ObserveDrop() {
	if m == nil {
		return
	}
	m.packetsDropped.Inc()
}

// ObserveSocketError registra um erro de leitura do socket
func (m *Metrics) ObserveSocketError() {
	if m == nil {
		return
	}
	m.socketErrors.Inc()
}

// ObserveTick registra a duração de um tick e o preenchimento da janela
func (m *Metrics) ObserveTick(d time.Duration, fill int) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
	m.windowFill.Set(float64(fill))
}

// ObservePrediction registra uma predição emitida
func (m *Metrics) ObservePrediction(label, source string, confidence float64) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(label, source).Inc()
	m.lastConfidence.Set(confidence)
}

// ObserveInferenceError registra um ciclo descartado
func (m *Metrics) ObserveInferenceError() {
	if m == nil {
		return
	}
	m.inferenceErrors.Inc()
}

// SetRowLog atualiza o tamanho do log e o último seq
func (m *Metrics) SetRowLog(size int, lastSeq uint64) {
	if m == nil {
		return
	}
	m.rowLogSize.Set(float64(size))
	m.rowLogLastSeq.Set(float64(lastSeq))
}

// ObserveReset registra um reset do pipeline
func (m *Metrics) ObserveReset() {
	if m == nil {
		return
	}
	m.resets.Inc()
	m.windowFill.Set(0)
	m.rowLogSize.Set(0)
}

// SetWebsocketClients atualiza o número de clientes conectados
func (m *Metrics) SetWebsocketClients(n int) {
	if m == nil {
		return
	}
	m.websocketClients.Set(float64(n))
}

// ObserveSinkError registra uma falha de entrega num destino externo
func (m *Metrics) ObserveSinkError(sink string) {
	if m == nil {
		return
	}
	m.sinkErrors.WithLabelValues(sink).Inc()
}
