package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imu_go/internal/config"
	"imu_go/internal/server"
	"imu_go/pkg/logger"
	"imu_go/pkg/utils"
)

func main() {
	// Inicializar logger
	logger.Init()
	defer logger.Sync()

	// Exibir banner de inicialização
	displayBanner()

	// Carregar configurações
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Erro ao carregar configurações", err)
	}

	configureLogging(cfg.Logging)

	logger.Info("Iniciando classificador de movimentos IMU")
	logger.Infof("Configuração carregada: UDP em %s:%d, HTTP na porta %d, Redis em %s:%d (habilitado: %v)",
		cfg.Ingest.Host, cfg.Ingest.Port, cfg.Server.Port, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Enabled)
	logger.Infof("Taxa de amostragem: %v (%.0f Hz), eixos: %v",
		cfg.Pipeline.SampleRate, float64(time.Second)/float64(cfg.Pipeline.SampleRate.Duration), cfg.Pipeline.Axes)

	// Criar e iniciar o servidor
	srv, err := server.NewServer(cfg)
	if err != nil {
		logger.Fatal("Erro ao criar servidor", err)
	}

	// Iniciar o servidor em uma goroutine separada
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Configurar captura de sinais para shutdown gracioso
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Infof("Sinal %v recebido, desligando servidor...", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("Erro ao iniciar o servidor", err)
		}
	}

	// Criar contexto com timeout para o shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Erro durante o shutdown do servidor", err)
	}

	logger.Info("Servidor encerrado")
}

// configureLogging aplica nível e arquivo de log definidos na configuração
func configureLogging(cfg config.LoggingConfig) {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		logger.Warnf("Nível de log %q inválido, mantendo %s", cfg.Level, logger.GetLevel())
	} else {
		logger.SetLevel(level)
	}

	logger.SetIncludeFile(cfg.IncludeFile)
	if cfg.TimeFormat != "" {
		logger.SetTimeFormat(cfg.TimeFormat)
	}

	if cfg.ToFile {
		if err := logger.EnableFileLogging(cfg.Dir, cfg.Prefix); err != nil {
			logger.Warnf("Log em arquivo indisponível: %v", err)
		}
	}
}

// displayBanner exibe um banner de inicialização
func displayBanner() {
	banner := `
  _____ __  __ _    _
 |_   _|  \/  | |  | |   classificador de movimentos
   | | | \  / | |  | |   UDP -> janela -> features -> rótulo
   | | | |\/| | |  | |
  _| |_| |  | | |__| |
 |_____|_|  |_|\____/
 `
	fmt.Println(banner)
	fmt.Printf("Iniciando em %s\n\n", utils.FormatDateTime(time.Now()))
}
