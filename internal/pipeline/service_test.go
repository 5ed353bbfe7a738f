package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imu_go/internal/config"
	"imu_go/internal/decoder"
	"imu_go/internal/features"
	"imu_go/internal/inference"
	"imu_go/internal/metrics"
	"imu_go/internal/models"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testConfigs(t *testing.T) (config.PipelineConfig, config.ModelConfig) {
	t.Helper()
	pc := config.PipelineConfig{
		WindowLength: 128,
		SampleRate:   config.D(10 * time.Millisecond),
		PredEvery:    32,
		MaxRows:      5000,
		Axes:         []string{"accel:x", "accel:y", "accel:z"},
		LatestRows:   100,
	}
	mc := config.ModelConfig{
		Path:              filepath.Join(t.TempDir(), "ausente.yaml"),
		FallbackFeature:   features.MagnitudeMean,
		FallbackThreshold: 13.1425,
		HighLabel:         "R",
		LowLabel:          "L",
	}
	return pc, mc
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	pc, mc := testConfigs(t)
	s, err := NewService(pc, mc, metrics.New())
	require.NoError(t, err)
	return s
}

func accelJSON(x, y, z float64) []byte {
	return []byte(fmt.Sprintf(`{"accel:x": %v, "accel:y": %v, "accel:z": %v}`, x, y, z))
}

func at(i int) time.Time {
	return base.Add(time.Duration(i) * 10 * time.Millisecond)
}

func TestConstantAccelFeatures(t *testing.T) {
	s := newTestService(t)

	var got *models.PredictionResult
	for i := 0; i < 128; i++ {
		require.Equal(t, 3, s.Ingest(accelJSON(1, 0, 0), at(i)))
		if res, ok := s.Tick(at(i)); ok {
			got = res
		}
	}

	require.NotNil(t, got, "janela cheia após 128 ticks deve produzir predição")
	names := s.FeatureNames()
	get := func(name string) float64 { return got.Features[features.Index(names, name)] }

	assert.Equal(t, 1.0, get("accel:x_mean"))
	assert.Equal(t, 0.0, get("accel:y_mean"))
	assert.Equal(t, 0.0, get("accel:z_mean"))
	for _, axis := range []string{"accel:x", "accel:y", "accel:z"} {
		assert.Equal(t, 0.0, get(axis+"_std"))
		assert.Equal(t, 0.0, get(axis+"_mad"))
	}
	assert.Equal(t, 1.0, get(features.MagnitudeMean))
	assert.Equal(t, 128, got.WindowSize)
}

func TestBinaryFrameIngest(t *testing.T) {
	s := newTestService(t)

	n := s.Ingest(decoder.EncodeFrame('A', 0.5, 0.5, 0.5), base)
	require.Equal(t, 3, n)

	rows := s.RowsSince(0).Rows
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, models.RowRaw, r.Kind)
		assert.Equal(t, "accel", r.Sensor)
		assert.Equal(t, 0.5, r.Value)
	}
}

func TestCadenceAfterWindowFills(t *testing.T) {
	s := newTestService(t)

	var predictedAt []int
	for tick := 1; tick <= 200; tick++ {
		// Dados brutos chegando continuamente entre ticks
		s.Ingest(accelJSON(2, 1, 0), at(tick))
		s.Ingest(accelJSON(2, 1, 0), at(tick))
		if _, ok := s.Tick(at(tick)); ok {
			predictedAt = append(predictedAt, tick)
		}
	}

	assert.Equal(t, []int{128, 160, 192}, predictedAt)
}

func TestFallbackWhenModelAbsent(t *testing.T) {
	s := newTestService(t)
	assert.Equal(t, models.SourceFallback, s.ClassifierMode())

	var predictions []models.PredictionResult
	s.RegisterPredictionHandler(func(p models.PredictionResult) {
		predictions = append(predictions, p)
	})

	// Magnitude 20 > 13.1425: R
	for i := 0; i < 160; i++ {
		s.Ingest(accelJSON(12, 16, 0), at(i))
		s.Tick(at(i))
	}

	require.Len(t, predictions, 2)
	for _, p := range predictions {
		assert.Equal(t, "R", p.Label)
		assert.Equal(t, models.SourceFallback, p.Source)
		assert.GreaterOrEqual(t, p.Confidence, 0.0)
		assert.LessOrEqual(t, p.Confidence, 1.0)
		assert.InDelta(t, inference.Sigmoid(20-13.1425), p.Confidence, 1e-9)
	}

	var labeled []models.Row
	for _, r := range s.RowsSince(0).Rows {
		if r.Kind == models.RowPrediction {
			labeled = append(labeled, r)
		}
	}
	require.Len(t, labeled, 2)
	assert.Equal(t, "R", labeled[0].Label)
	assert.Equal(t, predictions[0].Seq, labeled[0].Seq)
	assert.Equal(t, labeled[0].Seq-1, predictions[0].BasedOnSeq)
	assert.Len(t, s.RecentPredictions(10), 2)
}

func TestMalformedPacketBetweenValid(t *testing.T) {
	s := newTestService(t)

	assert.Equal(t, 3, s.Ingest(accelJSON(1, 2, 3), at(0)))
	assert.Equal(t, 0, s.Ingest([]byte(`{"accel:x": 1.0, "accel:y": `), at(1)))
	assert.Equal(t, 3, s.Ingest(accelJSON(4, 5, 6), at(2)))

	rows := s.RowsSince(0).Rows
	require.Len(t, rows, 6)
	for i := 1; i < len(rows); i++ {
		assert.Equal(t, rows[i-1].Seq+1, rows[i].Seq)
	}
	assert.Equal(t, 4.0, rows[3].Value)
	assert.Equal(t, 0.02, rows[3].TRel)

	status := s.Status()
	assert.Equal(t, 6.0, status.LatestValues["accel:z"])
	require.Contains(t, status.LatestAges, "accel:z")
	assert.InDelta(t, status.Timestamp.Sub(at(2)).Seconds(), status.LatestAges["accel:z"], 1e-9)
}

func TestZeroFillBeforeDataThenLastKnown(t *testing.T) {
	pc, mc := testConfigs(t)
	pc.WindowLength = 4
	pc.PredEvery = 1
	s, err := NewService(pc, mc, nil)
	require.NoError(t, err)

	s.Tick(at(0))
	s.Tick(at(1))
	s.Ingest(accelJSON(3, 0, 0), at(2))
	s.Tick(at(2))
	res, ok := s.Tick(at(3))
	require.True(t, ok)

	assert.Equal(t, []float64{0, 0, 3, 3}, s.windows.Values("accel:x"))
	assert.Equal(t, 1.5, res.Features[0])
}

func TestResetIsAllOrNothing(t *testing.T) {
	s := newTestService(t)
	var resets [][2]uint64
	s.RegisterResetHandler(func(restart, epoch uint64) {
		resets = append(resets, [2]uint64{restart, epoch})
	})

	for i := 0; i < 130; i++ {
		s.Ingest(accelJSON(1, 1, 1), at(i))
		s.Tick(at(i))
	}
	before := s.RowsSince(0).LastSeq
	require.NotNil(t, s.LastPrediction())

	restart := s.Reset()
	assert.Equal(t, before+1, restart)
	assert.Equal(t, [][2]uint64{{restart, 1}}, resets)

	status := s.Status()
	assert.Equal(t, 0, status.Rows)
	assert.Equal(t, 0, status.WindowFill)
	assert.False(t, status.WindowFull)
	assert.Equal(t, 0, status.TicksSincePred)
	assert.Nil(t, status.StartTime)
	assert.Nil(t, status.LastPrediction)
	assert.Empty(t, status.LatestValues)
	assert.Empty(t, status.LatestAges)
	assert.Equal(t, uint64(1), status.Epoch)
	assert.Empty(t, s.RowsSince(0).Rows)

	s.Ingest(accelJSON(7, 0, 0), base.Add(time.Hour))
	page := s.RowsSince(0)
	require.NotEmpty(t, page.Rows)
	assert.Equal(t, restart, page.Rows[0].Seq)
	assert.Equal(t, 7.0, page.Rows[0].Value)
	// Novo tempo de início após o reset
	assert.Equal(t, 0.0, page.Rows[0].TRel)
}

func TestResetConcurrentWithIngestAndTick(t *testing.T) {
	pc, mc := testConfigs(t)
	pc.WindowLength = 8
	pc.PredEvery = 2
	s, err := NewService(pc, mc, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	worker := func(fn func(i int)) {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				fn(i)
			}
		}
	}
	wg.Add(3)
	go worker(func(i int) { s.Ingest(accelJSON(float64(i), 1, 1), time.Now()) })
	go worker(func(int) { s.Tick(time.Now()) })
	go worker(func(int) { s.Status() })

	var restarts []uint64
	for i := 0; i < 50; i++ {
		restarts = append(restarts, s.Reset())
	}
	close(stop)
	wg.Wait()

	for i := 1; i < len(restarts); i++ {
		assert.GreaterOrEqual(t, restarts[i], restarts[i-1])
	}
	rows := s.RowsSince(0).Rows
	for i := 1; i < len(rows); i++ {
		assert.Equal(t, rows[i-1].Seq+1, rows[i].Seq)
	}
	assert.LessOrEqual(t, s.windows.Len(), 8)
}

func TestSensorFilter(t *testing.T) {
	pc, mc := testConfigs(t)
	pc.Sensors = []string{"accelerometer"}
	s, err := NewService(pc, mc, nil)
	require.NoError(t, err)

	n := s.Ingest([]byte(`{"accel:x": 1, "gyro:x": 2, "gps:latitude": -23.5}`), base)
	assert.Equal(t, 1, n)

	rows := s.LatestRows(0)
	require.Len(t, rows, 1)
	assert.Equal(t, "accel", rows[0].Sensor)
}

type failingClassifier struct{}

func (failingClassifier) PredictProbabilities([]float64) (map[string]float64, error) {
	return nil, errors.New("vetor malformado")
}

func TestInvocationFailureSkipsCycleOnly(t *testing.T) {
	pc, mc := testConfigs(t)
	pc.WindowLength = 4
	pc.PredEvery = 2
	s, err := NewService(pc, mc, nil)
	require.NoError(t, err)
	s.SetClassifier(failingClassifier{}, inference.FallbackRule{})
	assert.Equal(t, models.SourceModel, s.ClassifierMode())

	for i := 0; i < 10; i++ {
		assert.Equal(t, 3, s.Ingest(accelJSON(1, 1, 1), at(i)))
		_, ok := s.Tick(at(i))
		assert.False(t, ok)
	}
	page := s.RowsSince(0)
	assert.Equal(t, uint64(30), page.LastSeq)
	for _, r := range page.Rows {
		assert.Equal(t, models.RowRaw, r.Kind)
	}
	assert.Nil(t, s.LastPrediction())
}

func TestModelArtifactIsUsed(t *testing.T) {
	pc, mc := testConfigs(t)
	pc.WindowLength = 4
	pc.PredEvery = 4

	// Regressão logística sobre mag_mean: z = mag_mean - 5
	coefs := make([]string, features.Length(3))
	for i := range coefs {
		coefs[i] = "0"
	}
	coefs[18] = "1"
	dir := t.TempDir()
	mc.Path = filepath.Join(dir, "modelo.yaml")
	mc.LabelsPath = filepath.Join(dir, "rotulos.yaml")
	model := "coefficients:\n  - [" + strings.Join(coefs, ", ") + "]\nintercept: [-5]\nclasses: [0, 1]\n"
	require.NoError(t, os.WriteFile(mc.Path, []byte(model), 0o644))
	require.NoError(t, os.WriteFile(mc.LabelsPath, []byte("0: parado\n1: movimento\n"), 0o644))

	s, err := NewService(pc, mc, nil)
	require.NoError(t, err)
	assert.Equal(t, models.SourceModel, s.ClassifierMode())

	var res *models.PredictionResult
	for i := 0; i < 4; i++ {
		s.Ingest(accelJSON(0, 8, 6), at(i))
		res, _ = s.Tick(at(i))
	}
	require.NotNil(t, res)
	assert.Equal(t, "movimento", res.Label)
	assert.Equal(t, models.SourceModel, res.Source)
	assert.InDelta(t, inference.Sigmoid(5), res.Confidence, 1e-9)
}

func TestModelWithWrongWidthFallsBack(t *testing.T) {
	pc, mc := testConfigs(t)
	mc.Path = filepath.Join(t.TempDir(), "estreito.yaml")
	require.NoError(t, os.WriteFile(mc.Path, []byte("coefficients: [[1, 2]]\nintercept: [0]\n"), 0o644))

	s, err := NewService(pc, mc, nil)
	require.NoError(t, err)
	assert.Equal(t, models.SourceFallback, s.ClassifierMode())
}

func TestUnknownFallbackFeature(t *testing.T) {
	pc, mc := testConfigs(t)
	mc.FallbackFeature = "nao_existe"
	_, err := NewService(pc, mc, nil)
	assert.Error(t, err)
}

func TestRowsSinceReportsGap(t *testing.T) {
	pc, mc := testConfigs(t)
	pc.MaxRows = 6
	s, err := NewService(pc, mc, nil)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		s.Ingest(accelJSON(1, 2, 3), at(i))
	}

	page := s.RowsSince(2)
	assert.True(t, page.Gap)
	assert.Equal(t, uint64(7), page.EarliestSeq)
	assert.Equal(t, uint64(12), page.LastSeq)

	page = s.RowsSince(9)
	assert.False(t, page.Gap)
	assert.Len(t, page.Rows, 3)
}

func TestStartStop(t *testing.T) {
	pc, mc := testConfigs(t)
	pc.SampleRate = config.D(time.Millisecond)
	s, err := NewService(pc, mc, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Eventually(t, func() bool { return s.Status().WindowFill > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "ok", s.Status().Status)

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
}
