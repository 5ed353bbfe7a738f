package server

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"imu_go/internal/api"
	"imu_go/internal/websocket"
	"imu_go/pkg/logger"
)

// setupRoutes configura todas as rotas do servidor
func (s *Server) setupRoutes() {
	// Criar handlers
	wsHandler := websocket.NewHandler(s.wsHub)
	apiRouter := api.NewRouter(s.pipeline, s.redisService, s.config.Server.StreamInterval.Duration, "/api")
	apiRouter.Setup()

	// Rotas auxiliares recebem CORS e recuperação de panic
	wrap := api.Chain(api.RecoveryMiddleware, api.CorsMiddleware)

	// Endpoint de saúde
	s.router.Handle("/health", wrap(http.HandlerFunc(s.healthHandler)))

	// Endpoint de informações do servidor
	s.router.Handle("/info", wrap(http.HandlerFunc(s.infoHandler)))

	// Endpoints de descoberta
	s.router.Handle("/api/discover", wrap(http.HandlerFunc(s.discoverHandler)))
	s.router.Handle("/api/server-info", wrap(http.HandlerFunc(s.serverInfoHandler)))

	// WebSocket; clientes conectados aparecem em /health
	s.router.Handle("/ws", wsHandler)

	// API REST e stream SSE
	s.router.Handle("/api/", apiRouter.Handler())
	s.router.Handle("/stream", apiRouter.Handler())

	// Métricas Prometheus
	s.router.Handle("/metrics", s.metrics.Handler())

	// Static assets (opcional)
	if dir := s.config.Server.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			s.router.Handle("/", http.FileServer(http.Dir(dir)))
		} else {
			logger.Debugf("Diretório estático %s ausente; painel web desativado", dir)
		}
	}
}

// healthHandler responde com o status de saúde do servidor
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	pipelineStatus := "ok"
	if !s.pipeline.IsRunning() {
		pipelineStatus = "offline"
	}

	ingestStatus := "ok"
	if !s.listener.IsRunning() {
		ingestStatus = "offline"
	}

	plcStatus := "disabled"
	if s.config.PLC.Enabled {
		if s.plcService.IsRunning() {
			plcStatus = "ok"
		} else {
			plcStatus = "offline"
		}
	}

	redisStatus := "disabled"
	if s.config.Redis.Enabled {
		if s.redisService.IsConnected() {
			redisStatus = "ok"
		} else {
			redisStatus = "offline"
		}
	}

	discoveryStatus := "disabled"
	if s.config.Discovery.Enabled {
		if s.discoveryService.IsRunning() {
			discoveryStatus = "ok"
		} else {
			discoveryStatus = "offline"
		}
	}

	response := map[string]interface{}{
		"status":           "ok",
		"timestamp":        time.Now(),
		"classifier":       s.pipeline.ClassifierMode(),
		"websocketClients": s.wsHub.ClientCount(),
		"services": map[string]string{
			"pipeline":  pipelineStatus,
			"ingest":    ingestStatus,
			"redis":     redisStatus,
			"plc":       plcStatus,
			"websocket": "ok",
			"discovery": discoveryStatus,
		},
	}

	// Pipeline e socket UDP são essenciais; os demais só degradam
	code := http.StatusOK
	if pipelineStatus == "offline" || ingestStatus == "offline" {
		response["status"] = "offline"
		code = http.StatusServiceUnavailable
	} else if redisStatus == "offline" || plcStatus == "offline" {
		response["status"] = "degraded"
	}

	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}

// infoHandler retorna informações básicas sobre o servidor
func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	info := s.GetServerInfo()
	uptime := time.Since(info.StartTime).Round(time.Second)

	response := map[string]interface{}{
		"name":        "Classificador de Movimentos IMU",
		"version":     info.Version,
		"ip":          info.IP,
		"port":        info.Port,
		"udpPort":     info.UDPPort,
		"websocket":   info.WebSocketURL,
		"api":         info.APIURL,
		"startTime":   info.StartTime,
		"uptime":      uptime.String(),
		"connections": info.Connections,
		"classifier":  s.pipeline.ClassifierMode(),
		"features":    len(s.pipeline.FeatureNames()),
	}

	json.NewEncoder(w).Encode(response)
}

// serverInfoHandler retorna informações completas sobre o servidor
func (s *Server) serverInfoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	info := s.GetServerInfo()
	uptime := time.Since(info.StartTime).Round(time.Second)
	ingestStats := s.listener.Stats()
	rowStats := s.pipeline.RowLogStats()

	response := map[string]interface{}{
		"server": map[string]interface{}{
			"name":        "Classificador de Movimentos IMU",
			"version":     info.Version,
			"ip":          info.IP,
			"port":        info.Port,
			"websocket":   info.WebSocketURL,
			"api":         info.APIURL,
			"startTime":   info.StartTime,
			"uptime":      uptime.String(),
			"connections": info.Connections,
		},
		"discovery": map[string]interface{}{
			"enabled":      s.config.Discovery.Enabled,
			"running":      s.discoveryService.IsRunning(),
			"instanceName": s.discoveryService.GetInstanceName(),
			"instanceId":   s.discoveryService.GetInstanceID(),
			"advertisedIp": s.discoveryService.GetServerIP(),
			"serviceType":  s.discoveryService.ServiceType(),
		},
		"services": map[string]interface{}{
			"ingest": map[string]interface{}{
				"running":      s.listener.IsRunning(),
				"port":         info.UDPPort,
				"packets":      ingestStats.Packets,
				"readings":     ingestStats.Readings,
				"oversized":    ingestStats.Oversized,
				"socketErrors": ingestStats.SocketErrors,
			},
			"pipeline": map[string]interface{}{
				"running":    s.pipeline.IsRunning(),
				"classifier": s.pipeline.ClassifierMode(),
				"rows":       rowStats,
			},
			"redis": map[string]interface{}{
				"enabled":   s.config.Redis.Enabled,
				"connected": s.redisService.IsConnected(),
				"host":      s.config.Redis.Host,
				"port":      s.config.Redis.Port,
			},
			"plc": map[string]interface{}{
				"enabled": s.config.PLC.Enabled,
				"running": s.plcService.IsRunning(),
				"host":    s.config.PLC.Host,
			},
			"mqtt": map[string]interface{}{
				"enabled": s.config.MQTT.Enabled,
				"topic":   s.config.MQTT.Topic,
				"dropped": s.mqttPublisher.Dropped(),
			},
			"nats": map[string]interface{}{
				"enabled": s.config.NATS.Enabled,
				"subject": s.config.NATS.Subject,
				"dropped": s.natsPublisher.Dropped(),
			},
		},
	}

	json.NewEncoder(w).Encode(response)
}

// discoverHandler fornece informações para descoberta manual
func (s *Server) discoverHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	info := s.GetServerInfo()

	response := map[string]interface{}{
		"name":        "Classificador de Movimentos IMU",
		"ip":          info.IP,
		"port":        info.Port,
		"udpPort":     info.UDPPort,
		"wsUrl":       info.WebSocketURL,
		"apiUrl":      info.APIURL,
		"version":     info.Version,
		"wsEndpoint":  "/ws",
		"apiEndpoint": "/api",
	}

	json.NewEncoder(w).Encode(response)
}
