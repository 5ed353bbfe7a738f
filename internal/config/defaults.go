package config

import "time"

// getDefaultConfig retorna uma configuração padrão
func getDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5050,
			ReadTimeout:     D(30 * time.Second),
			WriteTimeout:    D(30 * time.Second),
			ShutdownTimeout: D(10 * time.Second),
			StreamInterval:  D(200 * time.Millisecond),
			StaticDir:       "./static",
		},
		Ingest: IngestConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadBufferSize: 2 * 1024 * 1024,
			MaxPacketSize:  65535,
		},
		Pipeline: PipelineConfig{
			WindowLength: 128,
			SampleRate:   D(10 * time.Millisecond),
			PredEvery:    32,
			MaxRows:      5000,
			Axes:         []string{"accel:x", "accel:y", "accel:z"},
			Sensors:      nil,
			LatestRows:   100,
		},
		Model: ModelConfig{
			Path:              "modelo_movimentos.yaml",
			LabelsPath:        "rotulos.yaml",
			FallbackFeature:   "mag_mean",
			FallbackThreshold: 13.1425,
			HighLabel:         "R",
			LowLabel:          "L",
		},
		Redis: RedisConfig{
			Host:        "localhost",
			Port:        6379,
			Password:    "",
			DB:          0,
			Prefix:      "imu",
			Enabled:     false,
			HistorySize: 1000,
		},
		PLC: PLCConfig{
			Enabled:      false,
			Host:         "192.168.1.100",
			Rack:         0,
			Slot:         1,
			DBNumber:     20,
			ByteOffset:   0,
			Labels:       []string{"L", "R"},
			UpdateRate:   D(500 * time.Millisecond),
			ReadTimeout:  D(5 * time.Second),
			WriteTimeout: D(5 * time.Second),
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Broker:   "tcp://localhost:1883",
			ClientID: "imu-classificador",
			Topic:    "imu/predicao",
			QoS:      0,
			Retained: true,
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://localhost:4222",
			Subject: "imu.predicao",
		},
		Discovery: DiscoveryConfig{
			Enabled: true,
			Service: "_imuclass._tcp",
			Domain:  "local.",
		},
		Logging: LoggingConfig{
			Level:       "info",
			Dir:         "./logs",
			Prefix:      "imu",
			ToFile:      true,
			IncludeFile: true,
			TimeFormat:  "2006-01-02 15:04:05.000",
		},
	}
}
