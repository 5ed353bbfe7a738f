package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"imu_go/internal/config"
	"imu_go/internal/metrics"
	"imu_go/internal/models"
	"imu_go/pkg/logger"
	"imu_go/pkg/utils"
)

// tamanho da fila de escrita; predições além disso são descartadas
const queueSize = 64

// job é uma escrita pendente no Redis
type job struct {
	prediction *models.PredictionResult
	values     map[string]float64
	reset      bool
	epoch      uint64
}

// Service espelha as predições no Redis
type Service struct {
	client    *redis.Client
	ctx       context.Context
	cancel    context.CancelFunc
	prefix    string
	config    config.RedisConfig
	connected bool
	mutex     sync.RWMutex
	metrics   *metrics.Metrics

	queue   chan job
	done    chan struct{}
	dropped int64
}

// NewService cria um novo serviço Redis. Falha de conexão deixa o serviço
// em modo offline, sem erro.
func NewService(cfg config.RedisConfig, m *metrics.Metrics) (*Service, error) {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	if !cfg.Enabled {
		logger.Info("Serviço Redis desabilitado por configuração")
		return &Service{
			config:    cfg,
			prefix:    cfg.Prefix,
			connected: false,
		}, nil
	}

	// Criar contexto cancelável
	ctx, cancel := context.WithCancel(context.Background())

	// Configurar endereço
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 2 * time.Second,
	})

	service := &Service{
		client:  client,
		ctx:     ctx,
		cancel:  cancel,
		prefix:  cfg.Prefix,
		config:  cfg,
		metrics: m,
		queue:   make(chan job, queueSize),
		done:    make(chan struct{}),
	}

	// Testar conexão
	if err := service.TestConnection(); err != nil {
		logger.Warnf("Aviso: %v. O Redis será utilizado em modo offline.", err)
	}

	go service.writeLoop()
	return service, nil
}

// TestConnection testa a conexão com o Redis
func (s *Service) TestConnection() error {
	if !s.config.Enabled || s.client == nil {
		return fmt.Errorf("serviço Redis desabilitado")
	}

	ctx, cancel := context.WithTimeout(s.ctx, 3*time.Second)
	defer cancel()

	result, err := s.client.Ping(ctx).Result()
	if err != nil {
		s.setConnected(false)
		return fmt.Errorf("erro ao conectar ao Redis: %w", err)
	}

	logger.Infof("Conexão com o Redis estabelecida. Resposta: %s", result)
	s.setConnected(true)
	return nil
}

func (s *Service) setConnected(v bool) {
	s.mutex.Lock()
	s.connected = v
	s.mutex.Unlock()
}

// IsConnected verifica se o serviço está conectado
func (s *Service) IsConnected() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.connected && s.config.Enabled
}

// key monta uma chave com o prefixo configurado
func (s *Service) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// HandlePrediction enfileira a predição sem bloquear o tick
func (s *Service) HandlePrediction(p models.PredictionResult) {
	if s.queue == nil {
		return
	}
	select {
	case s.queue <- job{prediction: &p}:
	default:
		dropped := atomic.AddInt64(&s.dropped, 1)
		s.metrics.ObserveSinkError("redis")
		if logger.Every("redis-fila", 30*time.Second) {
			logger.Warnf("Fila do Redis cheia; %d predições descartadas até agora", dropped)
		}
	}
}

// HandleReset enfileira a limpeza das chaves de predição
func (s *Service) HandleReset(_ uint64, epoch uint64) {
	if s.queue == nil {
		return
	}
	select {
	case s.queue <- job{reset: true, epoch: epoch}:
	default:
		logger.Warn("Fila do Redis cheia; limpeza do reset descartada")
	}
}

// UpdateLatestValues enfileira o último valor de cada eixo; com a fila
// cheia a atualização é simplesmente pulada, a próxima a substitui
func (s *Service) UpdateLatestValues(values map[string]float64) {
	if s.queue == nil || len(values) == 0 {
		return
	}
	select {
	case s.queue <- job{values: values}:
	default:
	}
}

// writeLoop consome a fila até Shutdown
func (s *Service) writeLoop() {
	defer close(s.done)
	retry := time.NewTicker(30 * time.Second)
	defer retry.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-retry.C:
			if !s.IsConnected() {
				if err := s.TestConnection(); err == nil {
					logger.Info("Conexão com o Redis restaurada")
				}
			}
		case j := <-s.queue:
			if !s.IsConnected() {
				continue
			}
			var err error
			switch {
			case j.reset:
				err = s.ClearPredictions(j.epoch)
			case j.values != nil:
				err = s.WriteLatestValues(j.values)
			default:
				err = s.WritePrediction(j.prediction)
			}
			if err != nil {
				s.metrics.ObserveSinkError("redis")
				logger.Errorf("Erro ao escrever no Redis: %v", err)
			}
		}
	}
}

// WritePrediction grava a última predição, o histórico e os contadores por rótulo
func (s *Service) WritePrediction(p *models.PredictionResult) error {
	if !s.IsConnected() {
		return nil
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("erro ao serializar predição: %w", err)
	}
	timestamp := utils.UnixMillis(p.Timestamp)

	// Criar uma pipeline para enviar vários comandos de uma vez
	pipe := s.client.Pipeline()
	pipe.Set(s.ctx, s.key("prediction", "latest"), data, 0)
	pipe.Set(s.ctx, s.key("label"), p.Label, 0)
	pipe.Set(s.ctx, s.key("confidence"), p.Confidence, 0)
	pipe.Set(s.ctx, s.key("timestamp"), timestamp, 0)

	if len(p.Probabilities) > 0 {
		probs := make(map[string]interface{}, len(p.Probabilities))
		for label, v := range p.Probabilities {
			probs[label] = v
		}
		pipe.Del(s.ctx, s.key("probabilities"))
		pipe.HSet(s.ctx, s.key("probabilities"), probs)
	}

	// Histórico com timestamp como score
	histKey := s.key("predictions")
	pipe.ZAdd(s.ctx, histKey, &redis.Z{
		Score:  float64(timestamp),
		Member: data,
	})
	// Limitando o tamanho do histórico
	pipe.ZRemRangeByRank(s.ctx, histKey, 0, int64(-(s.config.HistorySize + 1)))

	pipe.Incr(s.ctx, s.key("label", p.Label, "count"))

	if _, err := pipe.Exec(s.ctx); err != nil {
		s.setConnected(false)
		return fmt.Errorf("erro ao escrever predição no Redis: %w", err)
	}
	return nil
}

// WriteLatestValues substitui o hash com o último valor de cada eixo
func (s *Service) WriteLatestValues(values map[string]float64) error {
	if !s.IsConnected() {
		return nil
	}

	fields := make(map[string]interface{}, len(values))
	for axis, v := range values {
		fields[axis] = v
	}

	pipe := s.client.Pipeline()
	pipe.Del(s.ctx, s.key("values"))
	pipe.HSet(s.ctx, s.key("values"), fields)
	pipe.Set(s.ctx, s.key("values", "updated_at"), utils.UnixMillis(time.Now()), 0)

	if _, err := pipe.Exec(s.ctx); err != nil {
		s.setConnected(false)
		return fmt.Errorf("erro ao escrever valores no Redis: %w", err)
	}
	return nil
}

// ClearPredictions remove as chaves de predição após um reset do pipeline
func (s *Service) ClearPredictions(epoch uint64) error {
	if !s.IsConnected() {
		return nil
	}

	labelKeys, err := s.client.Keys(s.ctx, s.key("label", "*", "count")).Result()
	if err != nil {
		s.setConnected(false)
		return fmt.Errorf("erro ao listar contadores no Redis: %w", err)
	}

	pipe := s.client.Pipeline()
	keys := append([]string{
		s.key("prediction", "latest"),
		s.key("label"),
		s.key("confidence"),
		s.key("timestamp"),
		s.key("probabilities"),
		s.key("predictions"),
		s.key("values"),
		s.key("values", "updated_at"),
	}, labelKeys...)
	pipe.Del(s.ctx, keys...)
	pipe.Set(s.ctx, s.key("epoch"), epoch, 0)

	if _, err := pipe.Exec(s.ctx); err != nil {
		s.setConnected(false)
		return fmt.Errorf("erro ao limpar predições no Redis: %w", err)
	}
	logger.Infof("Predições removidas do Redis (época %d)", epoch)
	return nil
}

// GetRecentPredictions retorna até n predições do histórico, mais antiga primeiro
func (s *Service) GetRecentPredictions(n int) ([]models.PredictionResult, error) {
	if !s.IsConnected() {
		return nil, fmt.Errorf("Redis não conectado ou desabilitado")
	}
	if n <= 0 {
		return []models.PredictionResult{}, nil
	}

	members, err := s.client.ZRange(s.ctx, s.key("predictions"), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("erro ao obter histórico de predições: %w", err)
	}
	return decodeHistory(members), nil
}

// decodeHistory converte membros do ZSET em predições, ignorando os inválidos
func decodeHistory(members []string) []models.PredictionResult {
	out := make([]models.PredictionResult, 0, len(members))
	for _, m := range members {
		p, err := decodePrediction([]byte(m))
		if err != nil {
			continue
		}
		out = append(out, *p)
	}
	return out
}

func decodePrediction(data []byte) (*models.PredictionResult, error) {
	var p models.PredictionResult
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("predição inválida no Redis: %w", err)
	}
	return &p, nil
}

// Shutdown encerra graciosamente o serviço Redis
func (s *Service) Shutdown() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			logger.Errorf("Erro ao fechar conexão com Redis: %v", err)
		} else {
			logger.Info("Conexão com o Redis fechada")
		}
	}
	s.connected = false
}
