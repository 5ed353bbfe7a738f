package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Nomes canônicos dos sensores
const (
	SensorAccel   = "accel"
	SensorGyro    = "gyro"
	SensorGravity = "gravity"
	SensorUnknown = "unknown"
)

// AxisKey identifica um eixo de um sensor, ex.: "accel:x"
type AxisKey string

// NewAxisKey monta a chave sensor:eixo
func NewAxisKey(sensor, axis string) AxisKey {
	return AxisKey(sensor + ":" + axis)
}

// ParseAxisKey separa "sensor:eixo" em suas partes
func ParseAxisKey(s string) (AxisKey, error) {
	sensor, axis, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	if !ok || sensor == "" || axis == "" {
		return "", fmt.Errorf("chave de eixo inválida: %q (esperado sensor:eixo)", s)
	}
	return NewAxisKey(strings.TrimSpace(sensor), strings.TrimSpace(axis)), nil
}

// Sensor retorna a parte do sensor da chave
func (k AxisKey) Sensor() string {
	sensor, _, _ := strings.Cut(string(k), ":")
	return sensor
}

// Axis retorna a parte do eixo da chave
func (k AxisKey) Axis() string {
	_, axis, _ := strings.Cut(string(k), ":")
	return axis
}

// Reading representa uma leitura normalizada extraída de um datagrama
type Reading struct {
	Sensor    string    `json:"sensor"`
	Axis      string    `json:"axis"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Key retorna a chave sensor:eixo da leitura
func (r Reading) Key() AxisKey {
	return NewAxisKey(r.Sensor, r.Axis)
}

// RowKind distingue linhas de leitura bruta e de predição
type RowKind string

const (
	RowRaw        RowKind = "raw"
	RowPrediction RowKind = "prediction"
)

// Row é a unidade registrada no log de linhas, com número de sequência único
type Row struct {
	Seq       uint64    `json:"seq"`
	Kind      RowKind   `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	TRel      float64   `json:"t_rel_s"`

	// Campos de leitura bruta
	Sensor string  `json:"sensor,omitempty"`
	Axis   string  `json:"axis,omitempty"`
	Value  float64 `json:"value,omitempty"`

	// Campos de predição
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Source     string  `json:"source,omitempty"`
}

// MarshalJSON serializa só os campos do tipo da linha; value, confidence e
// demais campos do tipo saem sempre, inclusive quando valem zero
func (r Row) MarshalJSON() ([]byte, error) {
	if r.Kind == RowPrediction {
		return json.Marshal(struct {
			Seq        uint64    `json:"seq"`
			Kind       RowKind   `json:"kind"`
			Timestamp  time.Time `json:"timestamp"`
			TRel       float64   `json:"t_rel_s"`
			Label      string    `json:"label"`
			Confidence float64   `json:"confidence"`
			Source     string    `json:"source"`
		}{r.Seq, r.Kind, r.Timestamp, r.TRel, r.Label, r.Confidence, r.Source})
	}
	return json.Marshal(struct {
		Seq       uint64    `json:"seq"`
		Kind      RowKind   `json:"kind"`
		Timestamp time.Time `json:"timestamp"`
		TRel      float64   `json:"t_rel_s"`
		Sensor    string    `json:"sensor"`
		Axis      string    `json:"axis"`
		Value     float64   `json:"value"`
	}{r.Seq, r.Kind, r.Timestamp, r.TRel, r.Sensor, r.Axis, r.Value})
}

// RawRow cria uma linha a partir de uma leitura
func RawRow(r Reading, tRel float64) Row {
	return Row{
		Kind:      RowRaw,
		Timestamp: r.Timestamp,
		TRel:      tRel,
		Sensor:    r.Sensor,
		Axis:      r.Axis,
		Value:     r.Value,
	}
}

// PredictionRow cria uma linha a partir de um resultado de predição
func PredictionRow(p PredictionResult, tRel float64) Row {
	return Row{
		Kind:       RowPrediction,
		Timestamp:  p.Timestamp,
		TRel:       tRel,
		Label:      p.Label,
		Confidence: p.Confidence,
		Source:     p.Source,
	}
}

// RowsPage é o resultado de uma leitura incremental do log.
// Gap indica que linhas posteriores ao seq pedido já foram descartadas.
type RowsPage struct {
	Rows        []Row  `json:"rows"`
	EarliestSeq uint64 `json:"earliestSeq"`
	LastSeq     uint64 `json:"lastSeq"`
	Epoch       uint64 `json:"epoch"`
	Gap         bool   `json:"gap"`
}

// Origem da predição
const (
	SourceModel    = "modelo"
	SourceFallback = "fallback"
)

// PredictionResult representa o resultado de uma inferência sobre a janela atual
type PredictionResult struct {
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	Features      []float64          `json:"features"`
	Source        string             `json:"source"`
	Timestamp     time.Time          `json:"timestamp"`
	BasedOnSeq    uint64             `json:"basedOnSeq"`
	Seq           uint64             `json:"seq"`
	WindowSize    int                `json:"n"`
}

// PipelineStatus resume o estado do pipeline para a superfície de leitura
type PipelineStatus struct {
	Status            string             `json:"status"`
	ClassifierMode    string             `json:"classifierMode"`
	LastPrediction    *PredictionResult  `json:"lastPrediction,omitempty"`
	FeatureNames      []string           `json:"featureNames"`
	WindowLength      int                `json:"windowLength"`
	WindowFill        int                `json:"windowFill"`
	WindowFull        bool               `json:"windowFull"`
	TicksSincePred    int                `json:"samplesSinceLastPrediction"`
	ReadingsSinceTick int                `json:"samplesSinceLastWindow"`
	PredEvery         int                `json:"predEvery"`
	Rows              int                `json:"rows"`
	EarliestSeq       uint64             `json:"earliestSeq"`
	LastSeq           uint64             `json:"lastSeq"`
	Epoch             uint64             `json:"epoch"`
	StartTime         *time.Time         `json:"startTime,omitempty"`
	LatestValues      map[string]float64 `json:"latestValues"`
	LatestAges        map[string]float64 `json:"latestAgeSeconds"` // segundos desde a última leitura do eixo
	Timestamp         time.Time          `json:"timestamp"`
}

// PredictionEvent é a forma compacta publicada nos barramentos de mensagens
type PredictionEvent struct {
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	Source        string             `json:"source"`
	Seq           uint64             `json:"seq"`
	BasedOnSeq    uint64             `json:"basedOnSeq"`
	Timestamp     int64              `json:"timestamp"` // ms desde a época Unix
}

// Event converte o resultado para publicação, sem o vetor de features
func (p PredictionResult) Event() PredictionEvent {
	return PredictionEvent{
		Label:         p.Label,
		Confidence:    p.Confidence,
		Probabilities: p.Probabilities,
		Source:        p.Source,
		Seq:           p.Seq,
		BasedOnSeq:    p.BasedOnSeq,
		Timestamp:     p.Timestamp.UnixMilli(),
	}
}

// ResetEvent anuncia um reset do pipeline
type ResetEvent struct {
	RestartSeq uint64 `json:"restartSeq"`
	Epoch      uint64 `json:"epoch"`
	Timestamp  int64  `json:"timestamp"`
}
