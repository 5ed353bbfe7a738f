package rowlog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imu_go/internal/models"
)

func raw(v float64) models.Row {
	return models.Row{Kind: models.RowRaw, Sensor: "accel", Axis: "x", Value: v}
}

func seqs(rows []models.Row) []uint64 {
	out := make([]uint64, len(rows))
	for i, r := range rows {
		out[i] = r.Seq
	}
	return out
}

func TestAppendAssignsIncreasingSeq(t *testing.T) {
	l := New(10)
	a := l.Append(raw(1))
	b := l.Append(models.Row{Kind: models.RowPrediction, Label: "R"})
	batch := l.AppendBatch([]models.Row{raw(2), raw(3)})

	assert.Equal(t, uint64(1), a.Seq)
	assert.Equal(t, uint64(2), b.Seq)
	assert.Equal(t, []uint64{3, 4}, seqs(batch))
	assert.Equal(t, uint64(4), l.LastSeq())
	assert.Nil(t, l.AppendBatch(nil))
}

func TestCapacityAndFIFOEviction(t *testing.T) {
	l := New(5)
	for i := 0; i < 12; i++ {
		l.Append(raw(float64(i)))
		assert.LessOrEqual(t, l.Len(), 5)
	}

	assert.Equal(t, 5, l.Len())
	assert.Equal(t, uint64(8), l.EarliestSeq())
	assert.Equal(t, []uint64{8, 9, 10, 11, 12}, seqs(l.ReadSince(0)))

	st := l.Stats()
	assert.Equal(t, uint64(7), st.Evicted)
	assert.Equal(t, uint64(12), st.Appended)
	assert.Equal(t, 5, st.Capacity)
}

func TestReadSince(t *testing.T) {
	l := New(100)
	for i := 0; i < 10; i++ {
		l.Append(raw(float64(i)))
	}

	assert.Equal(t, []uint64{8, 9, 10}, seqs(l.ReadSince(7)))
	assert.Empty(t, l.ReadSince(10))
	assert.Empty(t, l.ReadSince(99))
	assert.Len(t, l.ReadSince(0), 10)
}

func TestReadSinceDetectsGap(t *testing.T) {
	l := New(3)
	for i := 0; i < 10; i++ {
		l.Append(raw(float64(i)))
	}

	rows := l.ReadSince(2)
	require.NotEmpty(t, rows)
	// O consumidor percebe a lacuna: primeiro seq > since+1
	assert.Greater(t, rows[0].Seq, uint64(3))
	assert.Equal(t, l.EarliestSeq(), rows[0].Seq)
}

func TestLatest(t *testing.T) {
	l := New(10)
	assert.Empty(t, l.Latest(5))
	for i := 0; i < 7; i++ {
		l.Append(raw(float64(i)))
	}

	assert.Equal(t, []uint64{5, 6, 7}, seqs(l.Latest(3)))
	assert.Len(t, l.Latest(100), 7)
	assert.Empty(t, l.Latest(0))
}

func TestResetNeverRewindsSeq(t *testing.T) {
	l := New(10)
	for i := 0; i < 4; i++ {
		l.Append(raw(float64(i)))
	}

	restart := l.Reset()
	assert.Equal(t, uint64(5), restart)
	assert.Equal(t, uint64(1), l.Epoch())
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.ReadSince(0))
	assert.Equal(t, uint64(0), l.EarliestSeq())

	next := l.Append(raw(9))
	assert.Equal(t, restart, next.Seq)

	rows := l.ReadSince(0)
	require.Len(t, rows, 1)
	assert.Equal(t, 9.0, rows[0].Value)
}

func TestConcurrentAppendUniqueSeq(t *testing.T) {
	l := New(10000)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if i%2 == 0 {
					l.Append(raw(1))
				} else {
					l.AppendBatch([]models.Row{raw(1), raw(2)})
				}
			}
		}()
	}
	wg.Wait()

	rows := l.ReadSince(0)
	require.Len(t, rows, 8*(250+500))
	for i := 1; i < len(rows); i++ {
		assert.Equal(t, rows[i-1].Seq+1, rows[i].Seq)
	}
}
