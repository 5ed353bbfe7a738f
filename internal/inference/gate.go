package inference

import (
	"sync"
)

// Gate controla a cadência de inferência com dois contadores
type Gate struct {
	mu                         sync.Mutex
	predEvery                  int
	samplesSinceLastWindow     int // leituras recebidas desde o último tick
	samplesSinceLastPrediction int // ticks desde a última predição
}

// NewGate cria um portão que libera uma predição a cada predEvery ticks
func NewGate(predEvery int) *Gate {
	if predEvery < 1 {
		predEvery = 1
	}
	return &Gate{predEvery: predEvery}
}

// PredEvery retorna a cadência configurada
func (g *Gate) PredEvery() int {
	return g.predEvery
}

// Observe contabiliza n leituras recebidas entre ticks
func (g *Gate) Observe(n int) {
	g.mu.Lock()
	g.samplesSinceLastWindow += n
	g.mu.Unlock()
}

// Tick registra um tick do amostrador e informa se a predição deve ocorrer
func (g *Gate) Tick(windowFull bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.samplesSinceLastWindow = 0
	g.samplesSinceLastPrediction++
	return windowFull && g.samplesSinceLastPrediction >= g.predEvery
}

// Predicted zera o contador após uma predição emitida
func (g *Gate) Predicted() {
	g.mu.Lock()
	g.samplesSinceLastPrediction = 0
	g.mu.Unlock()
}

// Reset zera os dois contadores
func (g *Gate) Reset() {
	g.mu.Lock()
	g.samplesSinceLastWindow = 0
	g.samplesSinceLastPrediction = 0
	g.mu.Unlock()
}

// Counters retorna (samplesSinceLastWindow, samplesSinceLastPrediction)
func (g *Gate) Counters() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.samplesSinceLastWindow, g.samplesSinceLastPrediction
}
