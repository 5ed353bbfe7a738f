package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"imu_go/internal/models"
)

// Tipos de mensagem enviados pelo servidor
const (
	TypeWelcome    = "welcome"
	TypeRows       = "rows"
	TypeLatest     = "latest"
	TypePrediction = "prediction"
	TypeStatus     = "status"
	TypeReset      = "reset"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeError      = "error"
)

// NewRowsMessage cria uma mensagem com um bloco de linhas do log
func NewRowsMessage(msgType string, page models.RowsPage) *models.RowsMessage {
	return &models.RowsMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      msgType,
			Timestamp: time.Now(),
		},
		RowsPage: page,
	}
}

// NewPredictionMessage cria uma mensagem com uma nova predição
func NewPredictionMessage(p models.PredictionResult) *models.PredictionMessage {
	return &models.PredictionMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      TypePrediction,
			Timestamp: time.Now(),
		},
		Prediction: p,
	}
}

// NewStatusMessage cria uma nova mensagem de status
func NewStatusMessage(status models.PipelineStatus) *models.StatusMessage {
	return &models.StatusMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      TypeStatus,
			Timestamp: time.Now(),
		},
		Status: status,
	}
}

// NewResetMessage avisa que o log recomeça em restartSeq
func NewResetMessage(restartSeq, epoch uint64) *models.ResetMessage {
	return &models.ResetMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      TypeReset,
			Timestamp: time.Now(),
		},
		RestartSeq: restartSeq,
		Epoch:      epoch,
	}
}

// NewErrorMessage cria uma nova mensagem de erro
func NewErrorMessage(message string, errorCode string) models.WebSocketMessage {
	return models.WebSocketMessage{
		Type:      TypeError,
		Timestamp: time.Now(),
		Error:     message,
		Data: map[string]string{
			"code": errorCode,
		},
	}
}

// SerializeMessage serializa uma mensagem para JSON
func SerializeMessage(message interface{}) ([]byte, error) {
	return json.Marshal(message)
}

// ParseClientCommand analisa um comando recebido do cliente; campos
// desconhecidos são rejeitados
func ParseClientCommand(data []byte) (models.CommandMessage, error) {
	var command models.CommandMessage
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	err := decoder.Decode(&command)
	return command, err
}

// CreatePongResponse cria uma resposta para um ping do cliente
func CreatePongResponse(pingTime int64) *models.PongMessage {
	return &models.PongMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      TypePong,
			Timestamp: time.Now(),
		},
		Time:       pingTime,
		ServerTime: time.Now().UnixMilli(),
	}
}

// uintParam extrai um inteiro não negativo dos parâmetros de um comando.
// Números chegam do JSON como float64; strings numéricas também são aceitas.
func uintParam(params interface{}, name string) (uint64, bool, error) {
	m, ok := params.(map[string]interface{})
	if !ok {
		return 0, false, nil
	}
	raw, ok := m[name]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v < 0 || v != float64(uint64(v)) {
			return 0, true, fmt.Errorf("parâmetro %s inválido: %v", name, v)
		}
		return uint64(v), true, nil
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, true, fmt.Errorf("parâmetro %s inválido: %q", name, v)
		}
		return n, true, nil
	default:
		return 0, true, fmt.Errorf("parâmetro %s com tipo inesperado", name)
	}
}
