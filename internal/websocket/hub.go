package websocket

import (
	"context"
	"sync"
	"time"

	"imu_go/internal/metrics"
	"imu_go/internal/models"
	"imu_go/pkg/logger"
	"imu_go/pkg/utils"
)

// Source é a parte do pipeline que o hub consulta
type Source interface {
	RowsSince(since uint64) models.RowsPage
	LatestRows(n int) []models.Row
	Status() models.PipelineStatus
	Reset() uint64
}

// Hub gerencia todas as conexões WebSocket e distribuição de mensagens
type Hub struct {
	// Clientes registrados
	clients map[*Client]bool

	// Canal para registrar clientes
	register chan *Client

	// Canal para desregistrar clientes
	unregister chan *Client

	// Canal para mensagens de broadcast
	broadcast chan []byte

	// Comando recebido dos clientes
	commands chan models.ClientCommand

	// Mutex para operações concorrentes no mapa de clientes
	mu sync.RWMutex

	source         Source
	metrics        *metrics.Metrics
	streamInterval time.Duration

	// Último seq já enviado no fluxo de linhas; só o loop Run acessa
	cursor uint64

	// Estatísticas
	stats struct {
		totalMessages      int64
		totalClients       int64
		droppedMessages    int64
		messagesPerSecond  float64
		lastStatsReset     time.Time
		messagesSinceReset int64
	}
	statsLock sync.Mutex

	// Sinal para encerramento do hub
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub cria uma nova instância do Hub
func NewHub(source Source, m *metrics.Metrics, streamInterval time.Duration) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	if streamInterval <= 0 {
		streamInterval = 200 * time.Millisecond
	}

	h := &Hub{
		clients:        make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan []byte, 256),
		commands:       make(chan models.ClientCommand, 100),
		source:         source,
		metrics:        m,
		streamInterval: streamInterval,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}

	h.stats.lastStatsReset = time.Now()

	return h
}

// Run inicia o loop principal do hub para gerenciar clientes e mensagens
func (h *Hub) Run() {
	defer close(h.done)
	logger.Info("Iniciando WebSocket Hub")

	// O fluxo começa no fim do log atual; clientes novos recebem as últimas linhas na conexão
	h.cursor = h.source.RowsSince(^uint64(0)).LastSeq

	streamTicker := time.NewTicker(h.streamInterval)
	defer streamTicker.Stop()

	// Ticker para estatísticas periódicas
	statsTicker := time.NewTicker(60 * time.Second)
	defer statsTicker.Stop()

	// Ping de aplicação para manter conexões ativas atrás de proxies
	pingTicker := time.NewTicker(15 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			// Contexto cancelado, encerrar o hub
			logger.Info("Encerrando WebSocket Hub")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()

			h.metrics.SetWebsocketClients(clientCount)
			logger.Infof("Novo cliente WebSocket conectado. ID: %s. Total: %d", client.id, clientCount)

			h.statsLock.Lock()
			h.stats.totalClients++
			h.statsLock.Unlock()

			// Enviar dados iniciais para o cliente
			go h.sendInitialDataToClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.fanOut(message)

		case cmd := <-h.commands:
			// Processar comando de um cliente
			go h.handleClientCommand(cmd)

		case <-streamTicker.C:
			h.streamRows()

		case <-statsTicker.C:
			h.logStats()

		case <-pingTicker.C:
			h.sendPingToAllClients()
		}
	}
}

// fanOut envia uma mensagem a todos os clientes. Clientes com o buffer
// cheio são desconectados.
func (h *Hub) fanOut(message []byte) {
	h.mu.RLock()
	clientCount := len(h.clients)

	h.statsLock.Lock()
	h.stats.totalMessages++
	h.stats.messagesSinceReset++
	h.statsLock.Unlock()

	if clientCount == 0 {
		h.mu.RUnlock()
		return
	}

	deadClients := make([]*Client, 0, 4)
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Canal do cliente está cheio, marcar para desconexão
			deadClients = append(deadClients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range deadClients {
		logger.Warnf("Cliente WebSocket %s não acompanha o fluxo; desconectando", client.id)
		h.removeClient(client)
	}
}

// removeClient retira o cliente do mapa e fecha seu canal de envio
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetWebsocketClients(clientCount)
	logger.Infof("Cliente WebSocket desconectado. ID: %s. Sessão: %s. Total: %d",
		client.id, utils.FormatDuration(time.Since(client.connectedAt)), clientCount)
}

// streamRows envia as linhas acrescentadas desde o último envio
func (h *Hub) streamRows() {
	page := h.source.RowsSince(h.cursor)
	if page.LastSeq < h.cursor {
		// Log reiniciado sem linhas novas ainda
		h.cursor = page.LastSeq
	}
	if len(page.Rows) == 0 {
		return
	}
	h.cursor = page.Rows[len(page.Rows)-1].Seq

	if h.ClientCount() == 0 {
		return
	}
	if jsonMsg, err := SerializeMessage(NewRowsMessage(TypeRows, page)); err == nil {
		h.fanOut(jsonMsg)
	} else {
		logger.Error("Erro ao serializar bloco de linhas", err)
	}
}

// enqueue coloca uma mensagem na fila de broadcast sem bloquear o chamador
func (h *Hub) enqueue(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.statsLock.Lock()
		h.stats.droppedMessages++
		h.statsLock.Unlock()
		h.metrics.ObserveSinkError("websocket")
		if logger.Every("ws-broadcast", 30*time.Second) {
			logger.Warn("Fila de broadcast WebSocket cheia, descartando mensagem")
		}
	}
}

// HandlePrediction envia a predição para todos os clientes
func (h *Hub) HandlePrediction(p models.PredictionResult) {
	if jsonMessage, err := SerializeMessage(NewPredictionMessage(p)); err == nil {
		h.enqueue(jsonMessage)
	} else {
		logger.Error("Erro ao serializar mensagem de predição", err)
	}
}

// HandleReset avisa todos os clientes que o log foi reiniciado
func (h *Hub) HandleReset(restartSeq, epoch uint64) {
	if jsonMessage, err := SerializeMessage(NewResetMessage(restartSeq, epoch)); err == nil {
		h.enqueue(jsonMessage)
	} else {
		logger.Error("Erro ao serializar mensagem de reset", err)
	}
}

// BroadcastStatus envia atualização de status para todos os clientes
func (h *Hub) BroadcastStatus(status models.PipelineStatus) {
	if jsonMessage, err := SerializeMessage(NewStatusMessage(status)); err == nil {
		h.enqueue(jsonMessage)
	} else {
		logger.Error("Erro ao serializar mensagem de status", err)
	}
}

// handleClientCommand processa comandos recebidos dos clientes
func (h *Hub) handleClientCommand(cmd models.ClientCommand) {
	logger.Debugf("Comando recebido do cliente %s: %s", cmd.ClientID, cmd.Command)

	switch cmd.Command {
	case "get_status":
		h.sendTo(cmd.ClientID, NewStatusMessage(h.source.Status()))

	case "get_rows_since":
		since, _, err := uintParam(cmd.Params, "since")
		if err != nil {
			h.sendTo(cmd.ClientID, NewErrorMessage(err.Error(), "invalid_params"))
			return
		}
		h.sendTo(cmd.ClientID, NewRowsMessage(TypeRows, h.source.RowsSince(since)))

	case "get_latest":
		n, _, err := uintParam(cmd.Params, "n")
		if err != nil {
			h.sendTo(cmd.ClientID, NewErrorMessage(err.Error(), "invalid_params"))
			return
		}
		h.sendTo(cmd.ClientID, h.latestMessage(int(n)))

	case "reset":
		restart := h.source.Reset()
		logger.Infof("Reset solicitado pelo cliente %s; log recomeça em %d", cmd.ClientID, restart)
		h.sendTo(cmd.ClientID, NewResetMessage(restart, h.source.Status().Epoch))

	default:
		logger.Warnf("Comando desconhecido: %s", cmd.Command)
		h.sendTo(cmd.ClientID, NewErrorMessage("Comando desconhecido: "+cmd.Command, "unknown_command"))
	}
}

// latestMessage monta a resposta com as últimas n linhas (0 = padrão)
func (h *Hub) latestMessage(n int) *models.RowsMessage {
	rows := h.source.LatestRows(n)
	status := h.source.Status()
	return NewRowsMessage(TypeLatest, models.RowsPage{
		Rows:        rows,
		EarliestSeq: status.EarliestSeq,
		LastSeq:     status.LastSeq,
		Epoch:       status.Epoch,
	})
}

// sendTo envia uma mensagem apenas para o cliente indicado
func (h *Hub) sendTo(clientID string, message interface{}) {
	jsonMsg, err := SerializeMessage(message)
	if err != nil {
		logger.Error("Erro ao serializar resposta", err)
		return
	}

	// O canal só é fechado com o lock de escrita, então o envio sob RLock é seguro
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.id != clientID {
			continue
		}
		select {
		case client.send <- jsonMsg:
		default:
			logger.Warnf("Buffer do cliente %s cheio; resposta descartada", clientID)
		}
		return
	}
}

// sendInitialDataToClient envia dados iniciais para um novo cliente
func (h *Hub) sendInitialDataToClient(client *Client) {
	welcome := models.WebSocketMessage{
		Type:      TypeWelcome,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"message":  "Conectado ao classificador de movimentos IMU",
			"clientId": client.id,
		},
	}
	h.sendTo(client.id, welcome)
	h.sendTo(client.id, NewStatusMessage(h.source.Status()))
	h.sendTo(client.id, h.latestMessage(0))
}

func (h *Hub) logStats() {
	h.statsLock.Lock()
	elapsed := time.Since(h.stats.lastStatsReset).Seconds()
	if elapsed > 0 {
		h.stats.messagesPerSecond = float64(h.stats.messagesSinceReset) / elapsed
	}
	h.stats.messagesSinceReset = 0
	h.stats.lastStatsReset = time.Now()
	mps := h.stats.messagesPerSecond
	total := h.stats.totalMessages
	dropped := h.stats.droppedMessages
	h.statsLock.Unlock()

	logger.Infof("Estatísticas WebSocket: %d clientes, %.2f msgs/seg, total: %d mensagens, %d descartadas",
		h.ClientCount(), mps, total, dropped)
}

// Shutdown encerra graciosamente o hub
func (h *Hub) Shutdown() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		logger.Warn("Hub WebSocket não encerrou a tempo")
	}
}

// closeAllClients fecha todas as conexões dos clientes
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	logger.Info("Fechando todas as conexões de clientes WebSocket")
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.metrics.SetWebsocketClients(0)
}

// ClientCount retorna o número atual de clientes conectados
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendPingToAllClients envia ping para todos os clientes
func (h *Hub) sendPingToAllClients() {
	if h.ClientCount() == 0 {
		return
	}
	ping := models.PingMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      TypePing,
			Timestamp: time.Now(),
		},
		Time: time.Now().UnixMilli(),
	}
	if jsonMsg, err := SerializeMessage(ping); err == nil {
		h.fanOut(jsonMsg)
	}
}
