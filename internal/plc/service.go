package plc

import (
	"context"
	"sync"
	"time"

	"imu_go/internal/config"
	"imu_go/internal/metrics"
	"imu_go/internal/models"
	"imu_go/pkg/logger"
	"imu_go/pkg/utils"
)

// Layout do bloco escrito no DB (big-endian, tipos S7), relativo a ByteOffset:
//
//	+0  INT   código do rótulo (posição em Labels; -1 desconhecido)
//	+2  REAL  confiança
//	+6  DINT  seq da predição (32 bits baixos)
//	+10 INT   origem (0 = modelo, 1 = fallback)
//	+12 DINT  contador de escritas (heartbeat)
const BlockSize = 16

// Block é o conteúdo escrito a cada ciclo
type Block struct {
	LabelCode  int16
	Confidence float32
	Seq        int32
	Source     int16
	Heartbeat  int32
}

// Encode serializa o bloco no layout do DB
func (b Block) Encode() []byte {
	data := make([]byte, 0, BlockSize)
	data = append(data, utils.Int16ToBytes(b.LabelCode)...)
	data = append(data, utils.Float32ToBytes(b.Confidence)...)
	data = append(data, utils.Int32ToBytes(b.Seq)...)
	data = append(data, utils.Int16ToBytes(b.Source)...)
	data = append(data, utils.Int32ToBytes(b.Heartbeat)...)
	return data
}

// DecodeBlock interpreta bytes lidos do DB
func DecodeBlock(data []byte) (Block, bool) {
	if len(data) < BlockSize {
		return Block{}, false
	}
	return Block{
		LabelCode:  utils.BytesToInt16(data[0:2]),
		Confidence: utils.BytesToFloat32(data[2:6]),
		Seq:        utils.BytesToInt32(data[6:10]),
		Source:     utils.BytesToInt16(data[10:12]),
		Heartbeat:  utils.BytesToInt32(data[12:16]),
	}, true
}

// PLCService envia a última predição ao PLC numa cadência fixa
type PLCService struct {
	client          DBWriter
	config          config.PLCConfig
	metrics         *metrics.Metrics
	ctx             context.Context
	cancel          context.CancelFunc
	labelCodes      map[string]int16
	updateFrequency time.Duration
	lastPrediction  *models.PredictionResult
	writtenSeq      uint64
	heartbeat       int32
	predictions     chan models.PredictionResult
	mutex           sync.RWMutex
	running         bool
	done            chan struct{}
}

// NewPLCService cria um novo serviço de PLC usando gos7
func NewPLCService(cfg config.PLCConfig, m *metrics.Metrics) *PLCService {
	return NewPLCServiceWithWriter(cfg, NewS7Client(cfg), m)
}

// NewPLCServiceWithWriter cria o serviço sobre um DBWriter arbitrário
func NewPLCServiceWithWriter(cfg config.PLCConfig, writer DBWriter, m *metrics.Metrics) *PLCService {
	ctx, cancel := context.WithCancel(context.Background())

	codes := make(map[string]int16, len(cfg.Labels))
	for i, label := range cfg.Labels {
		codes[label] = int16(i)
	}
	rate := cfg.UpdateRate.Duration
	if rate <= 0 {
		rate = 500 * time.Millisecond
	}

	return &PLCService{
		client:          writer,
		config:          cfg,
		metrics:         m,
		ctx:             ctx,
		cancel:          cancel,
		labelCodes:      codes,
		updateFrequency: rate,
		predictions:     make(chan models.PredictionResult, 10),
		running:         false,
	}
}

// Start inicia o serviço de comunicação com o PLC
func (s *PLCService) Start() error {
	if !s.config.Enabled {
		logger.Info("Serviço PLC desabilitado por configuração")
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return nil
	}

	// Falha inicial não impede o início; o loop tenta reconectar
	if err := s.client.Connect(); err != nil {
		logger.Warnf("PLC indisponível (%v). Nova tentativa a cada %v", err, s.updateFrequency)
	} else {
		s.resumeHeartbeat()
	}

	s.done = make(chan struct{})
	go s.runUpdateLoop(s.done)

	s.running = true
	logger.Infof("Serviço PLC iniciado (DB%d, offset %d)", s.config.DBNumber, s.config.ByteOffset)
	return nil
}

// Stop para o serviço de comunicação com o PLC
func (s *PLCService) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.cancel()
	s.running = false
	done := s.done
	s.mutex.Unlock()

	<-done
	s.client.Disconnect()
	logger.Info("Serviço PLC parado")
}

// IsRunning verifica se o serviço está em execução
func (s *PLCService) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// UpdatePrediction entrega uma predição sem bloquear o chamador
func (s *PLCService) UpdatePrediction(p models.PredictionResult) {
	if !s.IsRunning() {
		return
	}

	select {
	case s.predictions <- p:
	default:
		// Canal cheio, descartar atualização
		if logger.Every("plc-canal", 30*time.Second) {
			logger.Warn("Canal de predições para PLC está cheio, descartando atualização")
		}
	}
}

// HandleReset zera a predição pendente após um reset do pipeline
func (s *PLCService) HandleReset(_ uint64, _ uint64) {
	s.mutex.Lock()
	s.lastPrediction = nil
	s.mutex.Unlock()
}

// LabelCode converte o rótulo para o código INT gravado no PLC
func (s *PLCService) LabelCode(label string) int16 {
	if code, ok := s.labelCodes[label]; ok {
		return code
	}
	return -1
}

// resumeHeartbeat continua o contador a partir do valor já gravado no DB,
// para o PLC não ver o heartbeat voltar após um restart do serviço
func (s *PLCService) resumeHeartbeat() {
	data, err := s.client.ReadDataBlock(s.config.DBNumber, s.config.ByteOffset, BlockSize)
	if err != nil {
		logger.Warnf("Não foi possível ler o bloco atual do PLC: %v", err)
		return
	}
	if block, ok := DecodeBlock(data); ok {
		s.heartbeat = block.Heartbeat
		logger.Debugf("Heartbeat do PLC retomado em %d", block.Heartbeat)
	}
}

// runUpdateLoop executa o loop de atualização contínua para o PLC
func (s *PLCService) runUpdateLoop(done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.updateFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case p := <-s.predictions:
			s.mutex.Lock()
			s.lastPrediction = &p
			s.mutex.Unlock()

		case <-ticker.C:
			s.mutex.RLock()
			p := s.lastPrediction
			s.mutex.RUnlock()

			if p != nil {
				s.sendPrediction(*p)
			}
		}
	}
}

// sendPrediction grava o bloco no DB configurado
func (s *PLCService) sendPrediction(p models.PredictionResult) {
	if !s.client.IsConnected() {
		if err := s.client.Connect(); err != nil {
			if logger.Every("plc-reconexao", time.Minute) {
				logger.Error("Falha ao reconectar ao PLC", err)
			}
			return
		}
	}

	s.heartbeat++
	block := Block{
		LabelCode:  s.LabelCode(p.Label),
		Confidence: float32(p.Confidence),
		Seq:        int32(p.Seq),
		Heartbeat:  s.heartbeat,
	}
	if p.Source == models.SourceFallback {
		block.Source = 1
	}

	if err := s.client.WriteDataBlock(s.config.DBNumber, s.config.ByteOffset, block.Encode()); err != nil {
		s.metrics.ObserveSinkError("plc")
		if logger.Every("plc-escrita", 30*time.Second) {
			logger.Errorf("Erro ao escrever predição no PLC: %v", err)
		}
		return
	}

	if p.Seq != s.writtenSeq {
		s.writtenSeq = p.Seq
		logger.Debugf("Predição #%d enviada ao PLC (%s, %.3f)", p.Seq, p.Label, p.Confidence)
	}
}

// Shutdown encerra graciosamente o serviço
func (s *PLCService) Shutdown() {
	s.Stop()
}
