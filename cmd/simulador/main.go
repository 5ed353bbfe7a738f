// Simulador envia amostras sintéticas de acelerômetro e giroscópio por UDP,
// no formato binário de 13 bytes ou em JSON, para testes locais do servidor.
package main

import (
	"encoding/json"
	"flag"
	"math"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imu_go/internal/decoder"
	"imu_go/pkg/logger"
)

const gravidade = 9.81

type opcoes struct {
	addr       string
	modo       string
	padrao     string
	taxa       float64
	duracao    time.Duration
	alternarEm time.Duration
	giroscopio bool
}

func main() {
	var o opcoes
	flag.StringVar(&o.addr, "addr", "127.0.0.1:8080", "endereço UDP do servidor")
	flag.StringVar(&o.modo, "modo", "binario", "formato dos datagramas: binario ou json")
	flag.StringVar(&o.padrao, "padrao", "alterna", "movimento: lento, rapido ou alterna")
	flag.Float64Var(&o.taxa, "taxa", 100, "amostras por segundo")
	flag.DurationVar(&o.duracao, "duracao", 0, "tempo total de envio (0 = até Ctrl+C)")
	flag.DurationVar(&o.alternarEm, "alternar", 10*time.Second, "período de troca no padrão alterna")
	flag.BoolVar(&o.giroscopio, "giro", false, "enviar também leituras de giroscópio")
	flag.Parse()

	logger.Init()
	defer logger.Sync()

	if o.taxa <= 0 {
		logger.Fatalf("Taxa inválida: %v", o.taxa)
	}
	if o.modo != "binario" && o.modo != "json" {
		logger.Fatalf("Modo inválido: %s", o.modo)
	}

	conn, err := net.Dial("udp", o.addr)
	if err != nil {
		logger.Fatal("Erro ao abrir socket UDP", err)
	}
	defer conn.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var deadline <-chan time.Time
	if o.duracao > 0 {
		deadline = time.After(o.duracao)
	}

	ticker := time.NewTicker(time.Duration(float64(time.Second) / o.taxa))
	defer ticker.Stop()

	logger.Infof("Enviando para %s (%s, padrão %s, %.0f Hz)", o.addr, o.modo, o.padrao, o.taxa)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	start := time.Now()
	enviados := 0
	progresso := int(o.taxa * 10)
	if progresso < 1 {
		progresso = 1
	}

	for {
		select {
		case <-quit:
			logger.Infof("Interrompido; %d datagramas enviados", enviados)
			return
		case <-deadline:
			logger.Infof("Duração atingida; %d datagramas enviados", enviados)
			return
		case now := <-ticker.C:
			t := now.Sub(start).Seconds()
			rapido := movimentoRapido(o, now.Sub(start))
			ax, ay, az := aceleracao(t, rapido, rng)

			for _, pacote := range montar(o, ax, ay, az, rng) {
				if _, err := conn.Write(pacote); err != nil {
					if logger.Every("simulador-envio", 5*time.Second) {
						logger.Warnf("Erro ao enviar datagrama: %v", err)
					}
					continue
				}
				enviados++
			}
			if enviados > 0 && enviados%progresso == 0 {
				logger.Debugf("%d datagramas enviados (rápido: %v)", enviados, rapido)
			}
		}
	}
}

// movimentoRapido decide o regime do instante atual
func movimentoRapido(o opcoes, elapsed time.Duration) bool {
	switch o.padrao {
	case "rapido":
		return true
	case "lento":
		return false
	default:
		return int(elapsed/o.alternarEm)%2 == 1
	}
}

// aceleracao gera um sinal com gravidade em z; no regime rápido a amplitude
// leva a magnitude média acima de 13 m/s²
func aceleracao(t float64, rapido bool, rng *rand.Rand) (float64, float64, float64) {
	amp, freq := 0.4, 0.8
	if rapido {
		amp, freq = 9.0, 3.0
	}
	ruido := func() float64 { return rng.NormFloat64() * 0.05 }
	ax := amp*math.Sin(2*math.Pi*freq*t) + ruido()
	ay := amp*math.Cos(2*math.Pi*freq*t) + ruido()
	az := gravidade + 0.3*amp*math.Sin(2*math.Pi*freq*t/2) + ruido()
	return ax, ay, az
}

// montar produz os datagramas de uma amostra
func montar(o opcoes, ax, ay, az float64, rng *rand.Rand) [][]byte {
	gx, gy, gz := rng.NormFloat64()*0.1, rng.NormFloat64()*0.1, rng.NormFloat64()*0.1

	if o.modo == "binario" {
		out := [][]byte{decoder.EncodeFrame('A', float32(ax), float32(ay), float32(az))}
		if o.giroscopio {
			out = append(out, decoder.EncodeFrame('G', float32(gx), float32(gy), float32(gz)))
		}
		return out
	}

	msg := map[string]interface{}{
		"accel": map[string]float64{"x": ax, "y": ay, "z": az},
	}
	if o.giroscopio {
		msg["gyro"] = []float64{gx, gy, gz}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return [][]byte{data}
}
