package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"

	"imu_go/internal/config"
	"imu_go/pkg/logger"
)

const (
	// ServiceName é o nome exibido nos registros TXT
	ServiceName = "imu-classificador"

	// ServiceDomain é o domínio padrão para descoberta na rede
	ServiceDomain = "local."

	// ServiceType é o tipo de serviço padrão
	ServiceType = "_imuclass._tcp"
)

// DiscoveryService gerencia a descoberta do serviço na rede local
type DiscoveryService struct {
	server       *zeroconf.Server
	ctx          context.Context
	cancel       context.CancelFunc
	mutex        sync.Mutex
	config       config.DiscoveryConfig
	instanceName string
	instanceID   string
	port         int
	udpPort      int
	version      string
	running      bool
	serverIP     string
}

// NewDiscoveryService cria um novo serviço de descoberta.
// port é a porta HTTP anunciada; udpPort vai no TXT para os emissores de amostras.
func NewDiscoveryService(cfg config.DiscoveryConfig, port, udpPort int, version string) *DiscoveryService {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.Service == "" {
		cfg.Service = ServiceType
	}
	if cfg.Domain == "" {
		cfg.Domain = ServiceDomain
	}

	// Gerar um nome de instância único
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "imu"
	}

	return &DiscoveryService{
		ctx:          ctx,
		cancel:       cancel,
		config:       cfg,
		port:         port,
		udpPort:      udpPort,
		version:      version,
		instanceName: fmt.Sprintf("%s-imu", hostname),
		instanceID:   uuid.New().String(),
		running:      false,
	}
}

// TXTRecords retorna os metadados anunciados
func (s *DiscoveryService) TXTRecords(ip string) []string {
	return []string{
		"version=" + s.version,
		"ip=" + ip,
		"name=" + ServiceName,
		fmt.Sprintf("udp_port=%d", s.udpPort),
		fmt.Sprintf("http_port=%d", s.port),
		"id=" + s.instanceID,
	}
}

// Start inicia o serviço de descoberta
func (s *DiscoveryService) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.config.Enabled {
		logger.Info("Descoberta mDNS desabilitada por configuração")
		return nil
	}
	if s.running {
		return nil
	}

	// Obter o endereço IP local
	ip, err := s.getLocalIP()
	if err != nil {
		return fmt.Errorf("erro ao obter IP local: %w", err)
	}
	s.serverIP = ip

	server, err := zeroconf.Register(
		s.instanceName,
		s.config.Service,
		s.config.Domain,
		s.port,
		s.TXTRecords(ip),
		nil, // Interfaces de rede (todas)
	)
	if err != nil {
		return fmt.Errorf("erro ao registrar serviço de descoberta: %w", err)
	}

	s.server = server
	s.running = true

	logger.Infof("Serviço de descoberta iniciado em %s:%d (mDNS: %s.%s, UDP %d)",
		ip, s.port, s.instanceName, s.config.Service, s.udpPort)

	return nil
}

// Stop para o serviço de descoberta
func (s *DiscoveryService) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return
	}

	if s.server != nil {
		s.server.Shutdown()
		s.server = nil
	}

	s.cancel()
	s.running = false

	logger.Info("Serviço de descoberta parado")
}

// GetServerIP retorna o IP do servidor
func (s *DiscoveryService) GetServerIP() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.serverIP
}

// getLocalIP obtém o endereço IP local
func (s *DiscoveryService) getLocalIP() (string, error) {
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

	return "", fmt.Errorf("não foi possível determinar o endereço IP local")
}

// GetInstanceName retorna o nome da instância do serviço
func (s *DiscoveryService) GetInstanceName() string {
	return s.instanceName
}

// GetInstanceID retorna o identificador único desta execução
func (s *DiscoveryService) GetInstanceID() string {
	return s.instanceID
}

// ServiceType retorna o tipo de serviço anunciado
func (s *DiscoveryService) ServiceType() string {
	return s.config.Service
}

// Domain retorna o domínio mDNS
func (s *DiscoveryService) Domain() string {
	return s.config.Domain
}

// IsRunning verifica se o serviço está em execução
func (s *DiscoveryService) IsRunning() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.running
}
