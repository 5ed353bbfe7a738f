// Package window mantém a janela deslizante: um buffer circular FIFO de
// capacidade fixa por eixo acompanhado. Ao atingir a capacidade, a amostra
// mais antiga é descartada.
package window

import (
	"sync"

	"imu_go/internal/models"
)

// ring é um buffer circular de float64 com descarte do mais antigo
type ring struct {
	items []float64
	head  int // próxima posição de escrita
	size  int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{items: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	r.items[r.head] = v
	r.head = (r.head + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
}

// values copia o conteúdo do mais antigo para o mais recente
func (r *ring) values() []float64 {
	out := make([]float64, r.size)
	start := (r.head - r.size + len(r.items)) % len(r.items)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(start+i)%len(r.items)]
	}
	return out
}

func (r *ring) clear() {
	r.head = 0
	r.size = 0
}

// Set agrupa os buffers de todos os eixos acompanhados
type Set struct {
	mu       sync.RWMutex
	axes     []models.AxisKey
	capacity int
	rings    map[models.AxisKey]*ring
	appended uint64
}

// NewSet cria buffers de capacidade W para cada eixo, na ordem informada
func NewSet(axes []models.AxisKey, capacity int) *Set {
	s := &Set{
		axes:     append([]models.AxisKey(nil), axes...),
		capacity: capacity,
		rings:    make(map[models.AxisKey]*ring, len(axes)),
	}
	for _, axis := range axes {
		s.rings[axis] = newRing(capacity)
	}
	return s
}

// Axes retorna os eixos acompanhados na ordem de configuração
func (s *Set) Axes() []models.AxisKey {
	return append([]models.AxisKey(nil), s.axes...)
}

// Capacity retorna W
func (s *Set) Capacity() int {
	return s.capacity
}

// Append adiciona uma amostra sincronizada: um valor por eixo acompanhado.
// Eixos ausentes da amostra recebem 0.
func (s *Set) Append(sample map[models.AxisKey]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, axis := range s.axes {
		s.rings[axis].push(sample[axis])
	}
	s.appended++
}

// Len retorna o menor preenchimento entre os eixos
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lenLocked()
}

func (s *Set) lenLocked() int {
	if len(s.axes) == 0 {
		return 0
	}
	shortest := s.capacity
	for _, axis := range s.axes {
		if n := s.rings[axis].size; n < shortest {
			shortest = n
		}
	}
	return shortest
}

// Full indica se todos os eixos têm W amostras
func (s *Set) Full() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.axes) > 0 && s.lenLocked() == s.capacity
}

// Appended retorna o total de amostras adicionadas desde o último Clear
func (s *Set) Appended() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appended
}

// Values retorna a cópia do buffer de um eixo (mais antigo primeiro)
func (s *Set) Values(axis models.AxisKey) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rings[axis]
	if !ok {
		return nil
	}
	return r.values()
}

// Columns retorna a cópia de todos os buffers na ordem dos eixos
func (s *Set) Columns() [][]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cols := make([][]float64, len(s.axes))
	for i, axis := range s.axes {
		cols[i] = s.rings[axis].values()
	}
	return cols
}

// Clear esvazia todos os buffers
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rings {
		r.clear()
	}
	s.appended = 0
}
