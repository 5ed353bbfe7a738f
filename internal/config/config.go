package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"imu_go/internal/models"
)

// DefaultPath é o arquivo de configuração lido quando IMU_CONFIG não está definido
const DefaultPath = "config.json"

// Config representa a configuração completa da aplicação
type Config struct {
	Server    ServerConfig    `json:"server"`
	Ingest    IngestConfig    `json:"ingest"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Model     ModelConfig     `json:"model"`
	Redis     RedisConfig     `json:"redis"`
	PLC       PLCConfig       `json:"plc"`
	MQTT      MQTTConfig      `json:"mqtt"`
	NATS      NATSConfig      `json:"nats"`
	Discovery DiscoveryConfig `json:"discovery"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig contém configurações do servidor HTTP/WebSocket
type ServerConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	ReadTimeout     Duration `json:"readTimeout"`
	WriteTimeout    Duration `json:"writeTimeout"`
	ShutdownTimeout Duration `json:"shutdownTimeout"`
	StreamInterval  Duration `json:"streamInterval"`
	StaticDir       string   `json:"staticDir"`
}

// IngestConfig contém configurações do socket UDP de entrada
type IngestConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ReadBufferSize int    `json:"readBufferSize"` // SO_RCVBUF em bytes
	MaxPacketSize  int    `json:"maxPacketSize"`
}

// PipelineConfig contém os parâmetros de janela e inferência
type PipelineConfig struct {
	WindowLength int      `json:"windowLength"` // W amostras por eixo
	SampleRate   Duration `json:"sampleRate"`   // período do relógio de amostragem
	PredEvery    int      `json:"predEvery"`    // ticks entre predições
	MaxRows      int      `json:"maxRows"`      // capacidade do log de linhas
	Axes         []string `json:"axes"`         // eixos acompanhados, ex.: "accel:x"
	Sensors      []string `json:"sensors"`      // filtro de sensores; vazio = todos
	LatestRows   int      `json:"latestRows"`   // tamanho padrão de /api/latest
}

// ModelConfig contém a localização do classificador e a regra de fallback
type ModelConfig struct {
	Path              string  `json:"path"`
	LabelsPath        string  `json:"labelsPath"`
	FallbackFeature   string  `json:"fallbackFeature"`
	FallbackThreshold float64 `json:"fallbackThreshold"`
	HighLabel         string  `json:"highLabel"`
	LowLabel          string  `json:"lowLabel"`
}

// RedisConfig contém configurações do Redis
type RedisConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Password    string `json:"password"`
	DB          int    `json:"db"`
	Prefix      string `json:"prefix"`
	Enabled     bool   `json:"enabled"`
	HistorySize int    `json:"historySize"`
}

// PLCConfig contém configurações para comunicação com o PLC S7
type PLCConfig struct {
	Enabled      bool     `json:"enabled"`
	Host         string   `json:"host"`
	Rack         int      `json:"rack"`
	Slot         int      `json:"slot"`
	DBNumber     int      `json:"dbNumber"`
	ByteOffset   int      `json:"byteOffset"`
	Labels       []string `json:"labels"` // rótulo -> código INT pela posição na lista
	UpdateRate   Duration `json:"updateRate"`
	ReadTimeout  Duration `json:"readTimeout"`
	WriteTimeout Duration `json:"writeTimeout"`
}

// MQTTConfig contém configurações do publicador MQTT
type MQTTConfig struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	ClientID string `json:"clientId"`
	Topic    string `json:"topic"`
	QoS      int    `json:"qos"`
	Retained bool   `json:"retained"`
}

// NATSConfig contém configurações do publicador NATS
type NATSConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Subject string `json:"subject"`
}

// DiscoveryConfig contém configurações do anúncio mDNS
type DiscoveryConfig struct {
	Enabled bool   `json:"enabled"`
	Service string `json:"service"`
	Domain  string `json:"domain"`
}

// LoggingConfig contém configurações de log
type LoggingConfig struct {
	Level       string `json:"level"`
	Dir         string `json:"dir"`
	Prefix      string `json:"prefix"`
	ToFile      bool   `json:"toFile"`
	IncludeFile bool   `json:"includeFile"` // prefixo [arquivo:linha]
	TimeFormat  string `json:"timeFormat"`
}

// Load carrega a configuração do arquivo ou usa valores padrão
func Load() (*Config, error) {
	path := os.Getenv("IMU_CONFIG")
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile carrega a configuração de um caminho específico.
// Um arquivo inexistente não é erro: os valores padrão são usados.
func LoadFile(path string) (*Config, error) {
	config := getDefaultConfig()

	// Verificar se existe um arquivo de configuração
	if _, err := os.Stat(path); err == nil {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		decoder := json.NewDecoder(file)
		if err := decoder.Decode(&config); err != nil {
			return nil, fmt.Errorf("erro ao decodificar %s: %w", path, err)
		}
	}

	// Sobrescrever com variáveis de ambiente, se existirem
	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate verifica se os valores da configuração são utilizáveis
func (c *Config) Validate() error {
	if c.Ingest.Port < 0 || c.Ingest.Port > 65535 {
		return fmt.Errorf("porta UDP inválida: %d", c.Ingest.Port)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("porta HTTP inválida: %d", c.Server.Port)
	}
	if c.Pipeline.WindowLength <= 0 {
		return fmt.Errorf("windowLength deve ser positivo: %d", c.Pipeline.WindowLength)
	}
	if c.Pipeline.SampleRate.Duration <= 0 {
		return fmt.Errorf("sampleRate deve ser positivo: %v", c.Pipeline.SampleRate)
	}
	if c.Pipeline.PredEvery <= 0 {
		return fmt.Errorf("predEvery deve ser positivo: %d", c.Pipeline.PredEvery)
	}
	if c.Pipeline.MaxRows <= 0 {
		return fmt.Errorf("maxRows deve ser positivo: %d", c.Pipeline.MaxRows)
	}
	if len(c.Pipeline.Axes) == 0 {
		return fmt.Errorf("nenhum eixo configurado")
	}
	seen := make(map[models.AxisKey]bool, len(c.Pipeline.Axes))
	for _, axis := range c.Pipeline.Axes {
		key, err := models.ParseAxisKey(axis)
		if err != nil {
			return err
		}
		if seen[key] {
			return fmt.Errorf("eixo repetido: %q", axis)
		}
		seen[key] = true
	}
	return nil
}

// AxisKeys retorna os eixos acompanhados já normalizados
func (p PipelineConfig) AxisKeys() []models.AxisKey {
	keys := make([]models.AxisKey, 0, len(p.Axes))
	for _, axis := range p.Axes {
		if key, err := models.ParseAxisKey(axis); err == nil {
			keys = append(keys, key)
		}
	}
	return keys
}

// applyEnvironmentOverrides sobrescreve configurações com variáveis de ambiente
func applyEnvironmentOverrides(config *Config) error {
	var firstErr error
	setErr := func(name string, err error) {
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("variável %s inválida: %w", name, err)
		}
	}

	envString("IMU_UDP_HOST", &config.Ingest.Host)
	setErr("IMU_UDP_PORT", envInt("IMU_UDP_PORT", &config.Ingest.Port))
	setErr("IMU_HTTP_PORT", envInt("IMU_HTTP_PORT", &config.Server.Port))
	setErr("IMU_WINDOW", envInt("IMU_WINDOW", &config.Pipeline.WindowLength))
	setErr("IMU_SAMPLE_RATE", envDuration("IMU_SAMPLE_RATE", &config.Pipeline.SampleRate))
	setErr("IMU_PRED_EVERY", envInt("IMU_PRED_EVERY", &config.Pipeline.PredEvery))
	setErr("IMU_MAX_ROWS", envInt("IMU_MAX_ROWS", &config.Pipeline.MaxRows))
	envList("IMU_AXES", &config.Pipeline.Axes)
	envList("IMU_SENSORS", &config.Pipeline.Sensors)
	envString("IMU_MODEL_PATH", &config.Model.Path)
	envString("IMU_LABELS_PATH", &config.Model.LabelsPath)
	setErr("IMU_REDIS_ENABLED", envBool("IMU_REDIS_ENABLED", &config.Redis.Enabled))
	envString("IMU_REDIS_HOST", &config.Redis.Host)
	setErr("IMU_REDIS_PORT", envInt("IMU_REDIS_PORT", &config.Redis.Port))
	if broker := os.Getenv("IMU_MQTT_BROKER"); broker != "" {
		config.MQTT.Broker = broker
		config.MQTT.Enabled = true
	}
	if url := os.Getenv("IMU_NATS_URL"); url != "" {
		config.NATS.URL = url
		config.NATS.Enabled = true
	}
	envString("IMU_LOG_LEVEL", &config.Logging.Level)

	return firstErr
}

func envString(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

func envList(name string, dst *[]string) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}

func envInt(name string, dst *int) error {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func envBool(name string, dst *bool) error {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func envDuration(name string, dst *Duration) error {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	dst.Duration = d
	return nil
}
