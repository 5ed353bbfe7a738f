package models

import "time"

// WebSocketMessage representa a estrutura base de todas as mensagens WebSocket
type WebSocketMessage struct {
	Type      string      `json:"type"`            // Tipo da mensagem: "rows", "prediction", "status", etc.
	Timestamp time.Time   `json:"timestamp"`       // Timestamp da mensagem
	Data      interface{} `json:"data,omitempty"`  // Dados adicionais específicos do tipo
	Error     string      `json:"error,omitempty"` // Mensagem de erro, se houver
}

// RowsMessage leva um bloco de linhas novas do log
type RowsMessage struct {
	WebSocketMessage
	RowsPage
}

// PredictionMessage leva uma nova predição
type PredictionMessage struct {
	WebSocketMessage
	Prediction PredictionResult `json:"prediction"`
}

// StatusMessage leva o estado atual do pipeline
type StatusMessage struct {
	WebSocketMessage
	Status PipelineStatus `json:"status"`
}

// ResetMessage avisa os clientes que o log foi reiniciado
type ResetMessage struct {
	WebSocketMessage
	RestartSeq uint64 `json:"restartSeq"`
	Epoch      uint64 `json:"epoch"`
}

// CommandMessage é uma mensagem de comando do cliente para o servidor
type CommandMessage struct {
	Type   string      `json:"type"`             // Tipo de comando: "get_rows_since", "get_status", etc.
	Params interface{} `json:"params,omitempty"` // Parâmetros adicionais
	ID     string      `json:"id,omitempty"`     // ID opcional para correlacionar solicitações/respostas
}

// ClientCommand representa um comando enviado pelo cliente
type ClientCommand struct {
	Command   string      `json:"command"`
	Params    interface{} `json:"params,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
	ClientID  string      `json:"-"` // Usado internamente, não enviado no JSON
}

// PingMessage representa um ping enviado pelo servidor
type PingMessage struct {
	WebSocketMessage
	Time int64 `json:"time"` // Timestamp em milissegundos
}

// PongMessage representa um pong enviado pelo servidor
type PongMessage struct {
	WebSocketMessage
	Time       int64 `json:"time"`       // Timestamp original do ping
	ServerTime int64 `json:"serverTime"` // Timestamp do servidor em milissegundos
}
