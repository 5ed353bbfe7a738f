package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"imu_go/pkg/logger"
)

// Comandos de cliente são pequenos; linhas só saem do servidor
const maxWebSocketMessageSize = 4 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024, // lotes de linhas
	// Painéis locais abrem o arquivo direto do disco; qualquer origem é aceita
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler faz o upgrade de /ws e entrega o cliente ao hub
type Handler struct {
	hub *Hub
}

// NewHandler cria o handler de /ws
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP implementa http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.hub.ctx.Err() != nil {
		http.Error(w, "servidor encerrando", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("Erro ao fazer upgrade para WebSocket: %v", err)
		return
	}
	conn.SetReadLimit(maxWebSocketMessageSize)

	client := newClient(h.hub, conn, r.UserAgent(), clientAddress(r))
	logger.Infof("Nova conexão WebSocket de %s (%s)", client.ipAddress, client.userAgent)

	select {
	case h.hub.register <- client:
	case <-h.hub.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// clientAddress prefere o IP repassado por proxy
func clientAddress(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
