package store

import (
	"sync"
	"time"

	"imu_go/internal/models"
)

// AxisStore guarda o valor mais recente de cada par (sensor, eixo).
// Update e Snapshot são atômicos entre si.
type AxisStore struct {
	mu        sync.RWMutex
	latest    map[models.AxisKey]float64
	updatedAt map[models.AxisKey]time.Time
	startTime time.Time
	started   bool
}

// NewAxisStore cria um armazenamento vazio
func NewAxisStore() *AxisStore {
	return &AxisStore{
		latest:    make(map[models.AxisKey]float64),
		updatedAt: make(map[models.AxisKey]time.Time),
	}
}

// Update sobrescreve o valor mais recente do eixo da leitura
func (s *AxisStore) Update(r models.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(r)
}

// UpdateBatch aplica todas as leituras de um pacote com uma única aquisição do lock
func (s *AxisStore) UpdateBatch(readings []models.Reading) {
	if len(readings) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range readings {
		s.set(r)
	}
}

func (s *AxisStore) set(r models.Reading) {
	key := r.Key()
	s.latest[key] = r.Value
	s.updatedAt[key] = r.Timestamp
}

// Snapshot retorna uma cópia consistente dos valores mais recentes
func (s *AxisStore) Snapshot() map[models.AxisKey]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[models.AxisKey]float64, len(s.latest))
	for k, v := range s.latest {
		snapshot[k] = v
	}
	return snapshot
}

// Latest retorna o valor mais recente de um eixo
func (s *AxisStore) Latest(key models.AxisKey) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.latest[key]
	return v, ok
}

// LastUpdate retorna o instante da última leitura do eixo
func (s *AxisStore) LastUpdate(key models.AxisKey) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.updatedAt[key]
	return t, ok
}

// Len retorna quantos eixos já foram observados
func (s *AxisStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.latest)
}

// MarkStart registra o início da captura apenas na primeira chamada
// (verificação e atribuição sob o mesmo lock) e retorna o início efetivo.
func (s *AxisStore) MarkStart(t time.Time) time.Time {
	s.mu.RLock()
	if s.started {
		start := s.startTime
		s.mu.RUnlock()
		return start
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.startTime = t
		s.started = true
	}
	return s.startTime
}

// StartTime retorna o início da captura, se já registrado
func (s *AxisStore) StartTime() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startTime, s.started
}

// Clear esquece todos os valores e o início da captura
func (s *AxisStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = make(map[models.AxisKey]float64)
	s.updatedAt = make(map[models.AxisKey]time.Time)
	s.startTime = time.Time{}
	s.started = false
}
