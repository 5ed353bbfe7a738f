// Package rowlog implementa o log limitado de linhas (leituras brutas e
// predições) com número de sequência estritamente crescente.
//
// A sequência nunca retrocede, nem no Reset: o primeiro seq após um reset é
// o último seq anterior + 1, valor devolvido por Reset. Cada reset incrementa
// a época, o que permite ao consumidor distinguir os dois lados do reset.
package rowlog

import (
	"sync"

	"imu_go/internal/models"
)

// Stats resume o estado do log
type Stats struct {
	Size        int    `json:"size"`
	Capacity    int    `json:"capacity"`
	Appended    uint64 `json:"appended"`
	Evicted     uint64 `json:"evicted"`
	EarliestSeq uint64 `json:"earliestSeq"`
	LastSeq     uint64 `json:"lastSeq"`
	Epoch       uint64 `json:"epoch"`
}

// Log é um buffer circular FIFO de linhas
type Log struct {
	mu       sync.RWMutex
	rows     []models.Row
	head     int // índice da linha mais antiga
	size     int
	lastSeq  uint64
	epoch    uint64
	appended uint64
	evicted  uint64
}

// New cria um log com a capacidade informada
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1
	}
	return &Log{rows: make([]models.Row, capacity)}
}

// Capacity retorna MaxRows
func (l *Log) Capacity() int {
	return len(l.rows)
}

// Append atribui o próximo seq e insere a linha, descartando a mais antiga se cheio
func (l *Log) Append(row models.Row) models.Row {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(row)
}

// AppendBatch insere várias linhas sob um único lock, preservando a ordem
func (l *Log) AppendBatch(rows []models.Row) []models.Row {
	if len(rows) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Row, len(rows))
	for i, row := range rows {
		out[i] = l.appendLocked(row)
	}
	return out
}

func (l *Log) appendLocked(row models.Row) models.Row {
	l.lastSeq++
	row.Seq = l.lastSeq

	capacity := len(l.rows)
	if l.size == capacity {
		l.rows[l.head] = row
		l.head = (l.head + 1) % capacity
		l.evicted++
	} else {
		l.rows[(l.head+l.size)%capacity] = row
		l.size++
	}
	l.appended++
	return row
}

// at retorna a i-ésima linha a partir da mais antiga
func (l *Log) at(i int) models.Row {
	return l.rows[(l.head+i)%len(l.rows)]
}

// ReadSince retorna, em ordem, as linhas com seq > since.
// Se since < EarliestSeq()-1 houve lacuna: linhas foram descartadas.
func (l *Log) ReadSince(since uint64) []models.Row {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.size == 0 || since >= l.lastSeq {
		return []models.Row{}
	}

	first := l.at(0).Seq
	start := 0
	if since >= first {
		// seqs contíguos dentro do log
		start = int(since - first + 1)
	}

	out := make([]models.Row, 0, l.size-start)
	for i := start; i < l.size; i++ {
		out = append(out, l.at(i))
	}
	return out
}

// Latest retorna as últimas n linhas em ordem
func (l *Log) Latest(n int) []models.Row {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || l.size == 0 {
		return []models.Row{}
	}
	if n > l.size {
		n = l.size
	}
	out := make([]models.Row, 0, n)
	for i := l.size - n; i < l.size; i++ {
		out = append(out, l.at(i))
	}
	return out
}

// EarliestSeq retorna o menor seq disponível (0 se vazio)
func (l *Log) EarliestSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.size == 0 {
		return 0
	}
	return l.at(0).Seq
}

// LastSeq retorna o último seq atribuído
func (l *Log) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastSeq
}

// Epoch retorna o número de resets já realizados
func (l *Log) Epoch() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.epoch
}

// Len retorna o número de linhas armazenadas
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Reset descarta todas as linhas e retorna o seq que a próxima linha receberá
func (l *Log) Reset() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.rows {
		l.rows[i] = models.Row{}
	}
	l.head = 0
	l.size = 0
	l.epoch++
	return l.lastSeq + 1
}

// Stats retorna um resumo do log
func (l *Log) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Stats{
		Size:     l.size,
		Capacity: len(l.rows),
		Appended: l.appended,
		Evicted:  l.evicted,
		LastSeq:  l.lastSeq,
		Epoch:    l.epoch,
	}
	if l.size > 0 {
		s.EarliestSeq = l.at(0).Seq
	}
	return s
}
