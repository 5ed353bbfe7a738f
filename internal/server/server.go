package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"imu_go/internal/config"
	"imu_go/internal/discovery"
	"imu_go/internal/ingest"
	"imu_go/internal/metrics"
	"imu_go/internal/mqtt"
	"imu_go/internal/nats"
	"imu_go/internal/pipeline"
	"imu_go/internal/plc"
	"imu_go/internal/redis"
	"imu_go/internal/websocket"
	"imu_go/pkg/logger"
)

// Version é a versão anunciada em /info e no mDNS
const Version = "1.0.0"

// intervalo do broadcast periódico de status pelo WebSocket
const statusInterval = 5 * time.Second

// Server encapsula o servidor HTTP com todos os componentes
type Server struct {
	config           *config.Config
	httpServer       *http.Server
	router           *http.ServeMux
	metrics          *metrics.Metrics
	pipeline         *pipeline.Service
	listener         *ingest.Listener
	redisService     *redis.Service
	plcService       *plc.PLCService
	mqttPublisher    *mqtt.Publisher
	natsPublisher    *nats.Publisher
	wsHub            *websocket.Hub
	discoveryService *discovery.DiscoveryService
	serverInfo       ServerInfo

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServerInfo contém informações sobre o servidor
type ServerInfo struct {
	IP           string
	Port         int
	UDPPort      int
	StartTime    time.Time
	Connections  int
	Version      string
	WebSocketURL string
	APIURL       string
}

// NewServer cria uma nova instância do servidor
func NewServer(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	server := &Server{
		config: cfg,
		router: http.NewServeMux(),
		ctx:    ctx,
		cancel: cancel,
		serverInfo: ServerInfo{
			StartTime: time.Now(),
			Version:   Version,
			Port:      cfg.Server.Port,
			UDPPort:   cfg.Ingest.Port,
		},
	}

	// Determinar IP do servidor
	ip, err := server.getLocalIP()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("erro ao obter IP local: %w", err)
	}
	server.serverInfo.IP = ip

	// Configurar URLs
	server.serverInfo.WebSocketURL = fmt.Sprintf("ws://%s:%d/ws", ip, cfg.Server.Port)
	server.serverInfo.APIURL = fmt.Sprintf("http://%s:%d/api", ip, cfg.Server.Port)

	// Inicializar componentes
	if err := server.initComponents(); err != nil {
		cancel()
		return nil, err
	}

	// Configurar rotas
	server.setupRoutes()

	// WriteTimeout fica zerado: /stream e /ws mantêm a resposta aberta
	server.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.router,
		ReadTimeout:       cfg.Server.ReadTimeout.Duration,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return server, nil
}

// initComponents inicializa todos os componentes do servidor
func (s *Server) initComponents() error {
	s.metrics = metrics.New()

	// Pipeline: janela, inferência e log de linhas
	pipelineService, err := pipeline.NewService(s.config.Pipeline, s.config.Model, s.metrics)
	if err != nil {
		return fmt.Errorf("erro ao inicializar pipeline: %w", err)
	}
	s.pipeline = pipelineService

	// Socket UDP de entrada
	s.listener = ingest.NewListener(s.config.Ingest, s.pipeline, s.metrics)

	// Hub WebSocket
	s.wsHub = websocket.NewHub(s.pipeline, s.metrics, s.config.Server.StreamInterval.Duration)

	// Inicializar serviço Redis (modo offline se indisponível)
	redisService, err := redis.NewService(s.config.Redis, s.metrics)
	if err != nil {
		return fmt.Errorf("erro ao inicializar serviço Redis: %w", err)
	}
	s.redisService = redisService

	s.plcService = plc.NewPLCService(s.config.PLC, s.metrics)
	s.mqttPublisher = mqtt.NewPublisher(s.config.MQTT, s.metrics)
	s.natsPublisher = nats.NewPublisher(s.config.NATS, s.metrics)

	// Destinos das predições; todos enfileiram sem bloquear o tick
	s.pipeline.RegisterPredictionHandler(s.wsHub.HandlePrediction)
	s.pipeline.RegisterPredictionHandler(s.redisService.HandlePrediction)
	s.pipeline.RegisterPredictionHandler(s.plcService.UpdatePrediction)
	s.pipeline.RegisterPredictionHandler(s.mqttPublisher.HandlePrediction)
	s.pipeline.RegisterPredictionHandler(s.natsPublisher.HandlePrediction)

	s.pipeline.RegisterResetHandler(s.wsHub.HandleReset)
	s.pipeline.RegisterResetHandler(s.redisService.HandleReset)
	s.pipeline.RegisterResetHandler(s.plcService.HandleReset)
	s.pipeline.RegisterResetHandler(s.mqttPublisher.HandleReset)
	s.pipeline.RegisterResetHandler(s.natsPublisher.HandleReset)

	// Inicializar serviço de descoberta
	s.discoveryService = discovery.NewDiscoveryService(s.config.Discovery, s.config.Server.Port, s.config.Ingest.Port, Version)

	return nil
}

// startComponents inicia pipeline, socket UDP e serviços opcionais
func (s *Server) startComponents() error {
	go s.wsHub.Run()

	if err := s.pipeline.Start(); err != nil {
		return fmt.Errorf("erro ao iniciar pipeline: %w", err)
	}

	if err := s.listener.Start(); err != nil {
		return fmt.Errorf("erro ao iniciar socket UDP: %w", err)
	}
	s.serverInfo.UDPPort = s.listener.Port()

	// Serviços opcionais não abortam a inicialização
	if err := s.plcService.Start(); err != nil {
		logger.Errorf("Erro ao iniciar serviço PLC: %v", err)
	}
	if err := s.discoveryService.Start(); err != nil {
		logger.Warnf("Erro ao iniciar serviço de descoberta: %v", err)
	}

	s.wg.Add(1)
	go s.statusLoop()
	return nil
}

// Start inicia o servidor e todos os serviços; bloqueia até o Shutdown
func (s *Server) Start() error {
	if err := s.startComponents(); err != nil {
		return err
	}

	// Mostrar informações do servidor
	s.logServerInfo()

	logger.Infof("Iniciando servidor HTTP na porta %d", s.config.Server.Port)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("erro ao iniciar servidor HTTP: %w", err)
	}

	return nil
}

// statusLoop envia o status do pipeline aos clientes WebSocket e os últimos
// valores por eixo ao Redis periodicamente
func (s *Server) statusLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			status := s.pipeline.Status()
			if s.wsHub.ClientCount() > 0 {
				s.wsHub.BroadcastStatus(status)
			}
			if s.redisService.IsConnected() {
				s.redisService.UpdateLatestValues(status.LatestValues)
			}
		}
	}
}

// Handler retorna o roteador HTTP completo
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown encerra graciosamente o servidor e todos os serviços
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Iniciando shutdown do servidor")

	s.cancel()

	// Encerrar o servidor HTTP
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("Erro ao encerrar servidor HTTP: %v", err)
	}

	if s.discoveryService != nil {
		s.discoveryService.Stop()
	}

	// Entrada primeiro, depois o relógio de amostragem, depois os destinos
	if s.listener != nil {
		s.listener.Stop()
	}
	if s.pipeline != nil {
		s.pipeline.Stop()
	}
	s.wg.Wait()

	if s.plcService != nil {
		s.plcService.Shutdown()
	}
	if s.mqttPublisher != nil {
		s.mqttPublisher.Shutdown()
	}
	if s.natsPublisher != nil {
		s.natsPublisher.Shutdown()
	}
	if s.wsHub != nil {
		s.wsHub.Shutdown()
	}
	if s.redisService != nil {
		s.redisService.Shutdown()
	}

	logger.Info("Shutdown completo")
	return nil
}

// getLocalIP obtém o endereço IP local
func (s *Server) getLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}

	for _, addr := range addrs {
		// Verificar se é um endereço IP
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String(), nil
			}
		}
	}

	return "localhost", nil
}

// GetServerInfo retorna informações sobre o servidor
func (s *Server) GetServerInfo() ServerInfo {
	info := s.serverInfo
	info.Connections = s.wsHub.ClientCount()
	return info
}

// logServerInfo exibe informações do servidor no log
func (s *Server) logServerInfo() {
	logger.Info("===============================================")
	logger.Info("       Classificador de Movimentos IMU         ")
	logger.Info("===============================================")
	logger.Infof("Versão: %s", s.serverInfo.Version)
	logger.Infof("Endereço IP: %s", s.serverInfo.IP)
	logger.Infof("Porta HTTP: %d", s.serverInfo.Port)
	logger.Infof("Porta UDP: %d", s.serverInfo.UDPPort)
	logger.Infof("WebSocket URL: %s", s.serverInfo.WebSocketURL)
	logger.Infof("API URL: %s", s.serverInfo.APIURL)
	logger.Infof("Classificador: %s (%d características)",
		s.pipeline.ClassifierMode(), len(s.pipeline.FeatureNames()))
	logger.Infof("Janela: %d amostras a cada %v, predição a cada %d ticks",
		s.config.Pipeline.WindowLength, s.config.Pipeline.SampleRate, s.config.Pipeline.PredEvery)
	if s.discoveryService.IsRunning() {
		logger.Infof("mDNS: %s.%s.%s",
			s.discoveryService.GetInstanceName(),
			s.discoveryService.ServiceType(),
			s.discoveryService.Domain())
	}
	logger.Info("===============================================")
	logger.Info("Servidor pronto para conexões!")
}
