// Package pipeline compõe decodificador, store, janela, extrator de
// características, portão de inferência e log de linhas.
//
// Ingest roda no caminho de recepção e nunca espera por trabalho adiante.
// Tick roda no relógio do amostrador. Reset é atômico em relação a ambos.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"imu_go/internal/config"
	"imu_go/internal/decoder"
	"imu_go/internal/features"
	"imu_go/internal/inference"
	"imu_go/internal/metrics"
	"imu_go/internal/models"
	"imu_go/internal/rowlog"
	"imu_go/internal/store"
	"imu_go/internal/window"
	"imu_go/pkg/logger"
	"imu_go/pkg/utils"
)

// PredictionHandler recebe cada predição emitida
type PredictionHandler func(result models.PredictionResult)

// ResetHandler é chamado após um reset com o seq de reinício e a nova época
type ResetHandler func(restartSeq, epoch uint64)

// Service gerencia o pipeline de classificação
type Service struct {
	config       config.PipelineConfig
	axes         []models.AxisKey
	featureNames []string
	sensors      map[string]bool

	store   *store.AxisStore
	windows *window.Set
	gate    *inference.Gate
	rows    *rowlog.Log
	engine  *inference.Engine
	metrics *metrics.Metrics

	// Ingest e Tick seguram RLock; Reset segura Lock
	resetLock sync.RWMutex

	ctx            context.Context
	cancel         context.CancelFunc
	running        bool
	mutex          sync.RWMutex
	lastPrediction *models.PredictionResult

	predictionHandlers []PredictionHandler
	resetHandlers      []ResetHandler
	handlersLock       sync.RWMutex

	// Estatísticas de desempenho
	stats struct {
		totalTicks      int64
		totalPackets    int64
		totalReadings   int64
		emptyPackets    int64
		totalPrediction int64
		inferenceErrors int64
		tickDurations   []time.Duration
	}
	statsLock sync.Mutex
}

// NewService cria o pipeline. Falha ao carregar o modelo não é erro: o
// serviço passa a usar a regra de fallback.
func NewService(cfg config.PipelineConfig, modelCfg config.ModelConfig, m *metrics.Metrics) (*Service, error) {
	axes := make([]models.AxisKey, 0, len(cfg.Axes))
	axisNames := make([]string, 0, len(cfg.Axes))
	for _, a := range cfg.Axes {
		key, err := models.ParseAxisKey(a)
		if err != nil {
			return nil, err
		}
		axes = append(axes, key)
		axisNames = append(axisNames, string(key))
	}
	if len(axes) == 0 {
		return nil, fmt.Errorf("nenhum eixo acompanhado configurado")
	}
	if cfg.WindowLength <= 0 {
		return nil, fmt.Errorf("windowLength inválido: %d", cfg.WindowLength)
	}

	names := features.Names(axisNames)
	rule := inference.FallbackRule{
		Feature:      modelCfg.FallbackFeature,
		FeatureIndex: features.Index(names, modelCfg.FallbackFeature),
		Threshold:    modelCfg.FallbackThreshold,
		HighLabel:    modelCfg.HighLabel,
		LowLabel:     modelCfg.LowLabel,
	}
	if rule.FeatureIndex < 0 {
		return nil, fmt.Errorf("característica de fallback desconhecida: %q", modelCfg.FallbackFeature)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		config:       cfg,
		axes:         axes,
		featureNames: names,
		store:        store.NewAxisStore(),
		windows:      window.NewSet(axes, cfg.WindowLength),
		gate:         inference.NewGate(cfg.PredEvery),
		rows:         rowlog.New(cfg.MaxRows),
		metrics:      m,
		ctx:          ctx,
		cancel:       cancel,
	}
	if len(cfg.Sensors) > 0 {
		s.sensors = make(map[string]bool, len(cfg.Sensors))
		for _, name := range cfg.Sensors {
			s.sensors[decoder.CanonicalSensor(name)] = true
		}
	}
	s.stats.tickDurations = make([]time.Duration, 0, 100)

	model, err := inference.LoadClassifier(modelCfg.Path, modelCfg.LabelsPath)
	switch {
	case err != nil:
		logger.Warnf("Classificador indisponível (%v). Usando regra de fallback: %s > %.4f -> %s, senão %s",
			err, rule.Feature, rule.Threshold, rule.HighLabel, rule.LowLabel)
		s.engine = inference.NewEngine(nil, rule)
	case model.NumFeatures() != len(names):
		logger.Warnf("Modelo %s espera %d características, pipeline produz %d. Usando regra de fallback",
			modelCfg.Path, model.NumFeatures(), len(names))
		s.engine = inference.NewEngine(nil, rule)
	default:
		logger.Infof("Classificador carregado de %s (rótulos: %v)", modelCfg.Path, model.Labels())
		s.engine = inference.NewEngine(model, rule)
	}

	return s, nil
}

// SetClassifier substitui o classificador em uso. nil volta à regra de fallback.
func (s *Service) SetClassifier(c inference.Classifier, fallback inference.FallbackRule) {
	s.resetLock.Lock()
	defer s.resetLock.Unlock()
	s.engine = inference.NewEngine(c, fallback)
}

// Start inicia o relógio do amostrador
func (s *Service) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return nil
	}

	logger.Infof("Iniciando pipeline (janela: %d, período: %v, predição a cada %d ticks, modo: %s)",
		s.config.WindowLength, s.config.SampleRate.Duration, s.config.PredEvery, s.engine.Mode())

	go s.sampleLoop()
	go s.monitorStats()

	s.running = true
	return nil
}

// Stop para o relógio do amostrador
func (s *Service) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return
	}

	logger.Info("Parando pipeline")
	s.cancel()
	s.running = false
}

// IsRunning verifica se o pipeline está em execução
func (s *Service) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// RegisterPredictionHandler registra uma função para receber predições
func (s *Service) RegisterPredictionHandler(handler PredictionHandler) {
	s.handlersLock.Lock()
	defer s.handlersLock.Unlock()
	s.predictionHandlers = append(s.predictionHandlers, handler)
}

// RegisterResetHandler registra uma função chamada após cada reset
func (s *Service) RegisterResetHandler(handler ResetHandler) {
	s.handlersLock.Lock()
	defer s.handlersLock.Unlock()
	s.resetHandlers = append(s.resetHandlers, handler)
}

// Ingest decodifica um datagrama e atualiza store e log de linhas.
// Retorna o número de leituras aceitas.
func (s *Service) Ingest(raw []byte, now time.Time) int {
	res := decoder.Decode(raw, now)
	if res.Err != nil {
		s.metrics.ObserveDrop()
		if logger.Every("decoder-defeito", 10*time.Second) {
			logger.Errorf("Defeito no decodificador (%s): %v", res.Variant, res.Err)
		}
		return 0
	}

	readings := s.filter(res.Readings)
	s.metrics.ObservePacket(res.Variant, len(raw), len(readings), now)

	atomic.AddInt64(&s.stats.totalPackets, 1)
	if len(readings) == 0 {
		atomic.AddInt64(&s.stats.emptyPackets, 1)
		return 0
	}
	atomic.AddInt64(&s.stats.totalReadings, int64(len(readings)))

	s.resetLock.RLock()
	defer s.resetLock.RUnlock()

	start := s.store.MarkStart(now)
	s.store.UpdateBatch(readings)

	batch := make([]models.Row, len(readings))
	for i, r := range readings {
		batch[i] = models.RawRow(r, utils.SecondsSince(start, r.Timestamp))
	}
	s.rows.AppendBatch(batch)
	s.gate.Observe(len(readings))

	return len(readings)
}

// filter aplica o filtro de sensores configurado
func (s *Service) filter(readings []models.Reading) []models.Reading {
	if s.sensors == nil {
		return readings
	}
	kept := readings[:0:0]
	for _, r := range readings {
		if s.sensors[r.Sensor] {
			kept = append(kept, r)
		}
	}
	return kept
}

// Tick executa um tick do amostrador: copia os últimos valores para a janela e,
// se o portão liberar, extrai características e invoca o classificador.
func (s *Service) Tick(now time.Time) (*models.PredictionResult, bool) {
	begin := time.Now()
	result, ok := s.tick(now)
	duration := time.Since(begin)

	s.metrics.ObserveTick(duration, s.windows.Len())
	s.statsLock.Lock()
	s.stats.totalTicks++
	s.stats.tickDurations = append(s.stats.tickDurations, duration)
	if len(s.stats.tickDurations) > 100 {
		// Manter apenas as últimas 100 amostras
		s.stats.tickDurations = s.stats.tickDurations[1:]
	}
	s.statsLock.Unlock()

	if !ok {
		return nil, false
	}

	atomic.AddInt64(&s.stats.totalPrediction, 1)
	s.metrics.ObservePrediction(result.Label, result.Source, result.Confidence)
	s.metrics.SetRowLog(s.rows.Len(), s.rows.LastSeq())
	s.notifyPredictionHandlers(*result)

	return result, true
}

func (s *Service) tick(now time.Time) (*models.PredictionResult, bool) {
	s.resetLock.RLock()
	defer s.resetLock.RUnlock()

	// Eixo nunca observado entra como zero; observado repete o último valor
	snapshot := s.store.Snapshot()
	sample := make(map[models.AxisKey]float64, len(s.axes))
	for _, axis := range s.axes {
		sample[axis] = snapshot[axis]
	}
	s.windows.Append(sample)

	if !s.gate.Tick(s.windows.Full()) {
		return nil, false
	}

	vector, err := features.Extract(s.windows.Columns(), s.windows.Capacity())
	if err != nil {
		// Janela cheia foi verificada acima; chegar aqui é defeito
		logger.Errorf("Erro ao extrair características: %v", err)
		s.gate.Predicted()
		return nil, false
	}

	result, err := s.engine.Predict(vector)
	s.gate.Predicted()
	if err != nil {
		atomic.AddInt64(&s.stats.inferenceErrors, 1)
		s.metrics.ObserveInferenceError()
		logger.Warnf("Ciclo de predição descartado: %v", err)
		return nil, false
	}

	result.Timestamp = now
	result.WindowSize = s.windows.Capacity()
	result.BasedOnSeq = s.rows.LastSeq()

	var tRel float64
	if start, ok := s.store.StartTime(); ok {
		tRel = utils.SecondsSince(start, now)
	}
	row := s.rows.Append(models.PredictionRow(result, tRel))
	result.Seq = row.Seq

	last := result
	s.mutex.Lock()
	s.lastPrediction = &last
	s.mutex.Unlock()

	if logger.IsDebugEnabled() {
		logger.Debugf("Predição #%d: %s (%.3f, %s)", row.Seq, result.Label, result.Confidence, result.Source)
	}
	return &result, true
}

// Reset limpa store, janelas, contadores e log de linhas de forma atômica.
// Retorna o seq que a próxima linha receberá.
func (s *Service) Reset() uint64 {
	s.resetLock.Lock()
	s.store.Clear()
	s.windows.Clear()
	s.gate.Reset()
	restart := s.rows.Reset()
	epoch := s.rows.Epoch()
	s.mutex.Lock()
	s.lastPrediction = nil
	s.mutex.Unlock()
	s.resetLock.Unlock()

	s.metrics.ObserveReset()
	logger.Infof("Pipeline reiniciado (época %d, próximo seq %d)", epoch, restart)

	s.handlersLock.RLock()
	handlers := s.resetHandlers
	s.handlersLock.RUnlock()
	for _, handler := range handlers {
		handler(restart, epoch)
	}
	return restart
}

// notifyPredictionHandlers notifica todos os handlers registrados
func (s *Service) notifyPredictionHandlers(result models.PredictionResult) {
	s.handlersLock.RLock()
	handlers := s.predictionHandlers
	s.handlersLock.RUnlock()

	for _, handler := range handlers {
		handler(result) // Chamada síncrona; destinos enfileiram internamente
	}
}

// RowsSince retorna as linhas com seq > since e os metadados do log
func (s *Service) RowsSince(since uint64) models.RowsPage {
	s.resetLock.RLock()
	defer s.resetLock.RUnlock()

	page := models.RowsPage{
		Rows:        s.rows.ReadSince(since),
		EarliestSeq: s.rows.EarliestSeq(),
		LastSeq:     s.rows.LastSeq(),
		Epoch:       s.rows.Epoch(),
	}
	if len(page.Rows) > 0 && page.Rows[0].Seq > since+1 {
		page.Gap = true
	}
	return page
}

// LatestRows retorna as últimas n linhas; n <= 0 usa o padrão configurado
func (s *Service) LatestRows(n int) []models.Row {
	if n <= 0 {
		n = s.config.LatestRows
	}
	return s.rows.Latest(n)
}

// LastPrediction retorna a última predição, ou nil
func (s *Service) LastPrediction() *models.PredictionResult {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.lastPrediction == nil {
		return nil
	}
	p := *s.lastPrediction
	return &p
}

// RecentPredictions retorna até n predições do log de linhas, mais recente por último
func (s *Service) RecentPredictions(n int) []models.Row {
	rows := s.rows.Latest(s.rows.Capacity())
	out := make([]models.Row, 0, n)
	for i := len(rows) - 1; i >= 0 && len(out) < n; i-- {
		if rows[i].Kind == models.RowPrediction {
			out = append(out, rows[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// FeatureNames retorna os nomes das características na ordem do vetor
func (s *Service) FeatureNames() []string {
	return append([]string(nil), s.featureNames...)
}

// ClassifierMode retorna "modelo" ou "fallback"
func (s *Service) ClassifierMode() string {
	s.resetLock.RLock()
	defer s.resetLock.RUnlock()
	return s.engine.Mode()
}

// RowLogStats retorna o resumo do log de linhas
func (s *Service) RowLogStats() rowlog.Stats {
	return s.rows.Stats()
}

// Status retorna o estado atual para a superfície de leitura
func (s *Service) Status() models.PipelineStatus {
	s.resetLock.RLock()
	defer s.resetLock.RUnlock()

	now := time.Now()
	sinceWindow, sincePred := s.gate.Counters()
	latest := make(map[string]float64)
	ages := make(map[string]float64)
	for key, v := range s.store.Snapshot() {
		latest[string(key)] = v
		if at, ok := s.store.LastUpdate(key); ok {
			ages[string(key)] = now.Sub(at).Seconds()
		}
	}

	status := models.PipelineStatus{
		Status:            "parado",
		ClassifierMode:    s.engine.Mode(),
		LastPrediction:    s.LastPrediction(),
		FeatureNames:      s.FeatureNames(),
		WindowLength:      s.windows.Capacity(),
		WindowFill:        s.windows.Len(),
		WindowFull:        s.windows.Full(),
		TicksSincePred:    sincePred,
		ReadingsSinceTick: sinceWindow,
		PredEvery:         s.gate.PredEvery(),
		Rows:              s.rows.Len(),
		EarliestSeq:       s.rows.EarliestSeq(),
		LastSeq:           s.rows.LastSeq(),
		Epoch:             s.rows.Epoch(),
		LatestValues:      latest,
		LatestAges:        ages,
		Timestamp:         now,
	}
	if s.IsRunning() {
		status.Status = "ok"
	}
	if start, ok := s.store.StartTime(); ok {
		status.StartTime = &start
	}
	return status
}

// sampleLoop executa o relógio do amostrador até Stop
func (s *Service) sampleLoop() {
	ticker := time.NewTicker(s.config.SampleRate.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// monitorStats registra estatísticas de desempenho a cada minuto
func (s *Service) monitorStats() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.logPerformanceStats()
		}
	}
}

// logPerformanceStats registra estatísticas de desempenho
func (s *Service) logPerformanceStats() {
	s.statsLock.Lock()
	totalTicks := s.stats.totalTicks
	var avgDuration time.Duration
	if len(s.stats.tickDurations) > 0 {
		var sum time.Duration
		for _, d := range s.stats.tickDurations {
			sum += d
		}
		avgDuration = sum / time.Duration(len(s.stats.tickDurations))
	}
	s.statsLock.Unlock()

	logStats := s.rows.Stats()
	logger.Infof("Estatísticas: %d ticks (média %v), %d pacotes (%d vazios), %d leituras, %d predições, %d falhas de inferência, log %d/%d (seq %d)",
		totalTicks, avgDuration,
		atomic.LoadInt64(&s.stats.totalPackets), atomic.LoadInt64(&s.stats.emptyPackets),
		atomic.LoadInt64(&s.stats.totalReadings), atomic.LoadInt64(&s.stats.totalPrediction),
		atomic.LoadInt64(&s.stats.inferenceErrors),
		logStats.Size, logStats.Capacity, logStats.LastSeq)
	s.metrics.SetRowLog(logStats.Size, logStats.LastSeq)
}
