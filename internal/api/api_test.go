package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imu_go/internal/models"
	"imu_go/internal/rowlog"
)

// fakePipeline usa um rowlog real para reproduzir a semântica de seq e gap
type fakePipeline struct {
	mu     sync.Mutex
	rows   *rowlog.Log
	last   *models.PredictionResult
	resets int
}

func newFakePipeline(capacity int) *fakePipeline {
	return &fakePipeline{rows: rowlog.New(capacity)}
}

func (f *fakePipeline) addRaw(n int) {
	for i := 0; i < n; i++ {
		f.rows.Append(models.Row{Kind: models.RowRaw, Sensor: "accel", Axis: "x", Value: float64(i)})
	}
}

func (f *fakePipeline) addPrediction(label string) {
	p := models.PredictionResult{Label: label, Confidence: 0.9, Source: models.SourceFallback, Timestamp: time.Now(), WindowSize: 128}
	f.rows.Append(models.PredictionRow(p, 0))
	f.mu.Lock()
	f.last = &p
	f.mu.Unlock()
}

func (f *fakePipeline) RowsSince(since uint64) models.RowsPage {
	page := models.RowsPage{
		Rows:        f.rows.ReadSince(since),
		EarliestSeq: f.rows.EarliestSeq(),
		LastSeq:     f.rows.LastSeq(),
		Epoch:       f.rows.Epoch(),
	}
	page.Gap = len(page.Rows) > 0 && page.Rows[0].Seq > since+1
	return page
}

func (f *fakePipeline) LatestRows(n int) []models.Row {
	if n <= 0 {
		n = 100
	}
	return f.rows.Latest(n)
}

func (f *fakePipeline) Reset() uint64 {
	f.mu.Lock()
	f.resets++
	f.last = nil
	f.mu.Unlock()
	return f.rows.Reset()
}

func (f *fakePipeline) Status() models.PipelineStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.PipelineStatus{
		Status:         "ok",
		LastPrediction: f.last,
		WindowFill:     40,
		LastSeq:        f.rows.LastSeq(),
		Epoch:          f.rows.Epoch(),
	}
}

func (f *fakePipeline) FeatureNames() []string {
	return []string{"accel:x_mean", "mag_mean", "axis_std_mean"}
}

func (f *fakePipeline) RecentPredictions(n int) []models.Row {
	var out []models.Row
	for _, r := range f.rows.Latest(f.rows.Capacity()) {
		if r.Kind == models.RowPrediction {
			out = append(out, r)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

func (f *fakePipeline) RowLogStats() rowlog.Stats {
	return f.rows.Stats()
}

type fakeHistory struct {
	connected bool
	err       error
	items     []models.PredictionResult
}

func (f *fakeHistory) IsConnected() bool { return f.connected }

func (f *fakeHistory) GetRecentPredictions(n int) ([]models.PredictionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func newTestRouter(p Pipeline, h History) http.Handler {
	r := NewRouter(p, h, 10*time.Millisecond, "/api")
	r.Setup()
	return r.Handler()
}

func doRequest(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetRowsSince(t *testing.T) {
	p := newFakePipeline(10)
	p.addRaw(5)
	h := newTestRouter(p, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/rows?since=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var page models.RowsPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Rows, 3)
	assert.Equal(t, uint64(3), page.Rows[0].Seq)
	assert.Equal(t, uint64(5), page.LastSeq)
	assert.False(t, page.Gap)

	// Leitura zero mantém o campo value
	rec = doRequest(t, h, http.MethodGet, "/api/rows?since=0")
	assert.Contains(t, rec.Body.String(), `"seq":1,"kind":"raw"`)
	assert.Contains(t, rec.Body.String(), `"value":0}`)

	// since no fim do log devolve lista vazia, nunca null
	rec = doRequest(t, h, http.MethodGet, "/api/rows?since=5")
	assert.Contains(t, rec.Body.String(), `"rows":[]`)
}

func TestGetRowsReportsGap(t *testing.T) {
	p := newFakePipeline(4)
	p.addRaw(10)
	h := newTestRouter(p, nil)

	var page models.RowsPage
	rec := doRequest(t, h, http.MethodGet, "/api/rows?since=2")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.True(t, page.Gap)
	assert.Equal(t, uint64(7), page.EarliestSeq)
	assert.Len(t, page.Rows, 4)
}

func TestInvalidQueryParameters(t *testing.T) {
	h := newTestRouter(newFakePipeline(4), nil)

	for _, target := range []string{"/api/rows?since=-1", "/api/rows?since=abc", "/api/latest?n=x", "/api/predictions?n=-3"} {
		rec := doRequest(t, h, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, rec.Body.String(), "error", target)
	}
}

func TestGetLatest(t *testing.T) {
	p := newFakePipeline(200)
	p.addRaw(150)
	h := newTestRouter(p, nil)

	var rows []models.Row
	rec := doRequest(t, h, http.MethodGet, "/api/latest")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 100)
	assert.Equal(t, uint64(150), rows[99].Seq)

	rec = doRequest(t, h, http.MethodGet, "/api/latest?n=3")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 3)
}

func TestPostReset(t *testing.T) {
	p := newFakePipeline(10)
	p.addRaw(7)
	h := newTestRouter(p, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/reset")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 0, p.resets)

	rec = doRequest(t, h, http.MethodPost, "/api/reset")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		RestartSeq uint64 `json:"restartSeq"`
		Epoch      uint64 `json:"epoch"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, uint64(8), body.RestartSeq)
	assert.Equal(t, uint64(1), body.Epoch)
	assert.Equal(t, 1, p.resets)

	var page models.RowsPage
	rec = doRequest(t, h, http.MethodGet, "/api/rows?since=0")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Empty(t, page.Rows)
}

func TestGetStatus(t *testing.T) {
	p := newFakePipeline(10)
	h := newTestRouter(p, nil)

	var body map[string]interface{}
	rec := doRequest(t, h, http.MethodGet, "/api/status")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body["label"])
	assert.Equal(t, float64(40), body["n"])
	assert.Contains(t, body, "pipeline")

	p.addPrediction("R")
	rec = doRequest(t, h, http.MethodGet, "/api/status")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "R", body["label"])
	assert.Equal(t, 0.9, body["proba"])
	assert.Equal(t, float64(128), body["n"])
	assert.Equal(t, models.SourceFallback, body["source"])
	assert.NotNil(t, body["updated_at"])
}

func TestGetFeatures(t *testing.T) {
	h := newTestRouter(newFakePipeline(4), nil)

	var body struct {
		Names  []string `json:"names"`
		Length int      `json:"length"`
	}
	rec := doRequest(t, h, http.MethodGet, "/api/features")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Length)
	assert.Equal(t, "mag_mean", body.Names[1])
}

func TestGetPredictionsSources(t *testing.T) {
	p := newFakePipeline(20)
	p.addRaw(3)
	p.addPrediction("L")
	p.addRaw(2)
	p.addPrediction("R")

	type response struct {
		Source      string                   `json:"source"`
		Predictions []models.PredictionEvent `json:"predictions"`
	}

	// Sem Redis: log em memória
	var body response
	rec := doRequest(t, newTestRouter(p, nil), http.MethodGet, "/api/predictions")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "memoria", body.Source)
	require.Len(t, body.Predictions, 2)
	assert.Equal(t, "R", body.Predictions[1].Label)
	assert.Equal(t, uint64(7), body.Predictions[1].Seq)

	// Redis conectado
	hist := &fakeHistory{connected: true, items: []models.PredictionResult{{Label: "R", Seq: 99}}}
	rec = doRequest(t, newTestRouter(p, hist), http.MethodGet, "/api/predictions?n=5")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "redis", body.Source)
	require.Len(t, body.Predictions, 1)
	assert.Equal(t, uint64(99), body.Predictions[0].Seq)

	// Erro no Redis volta para a memória
	hist.err = errors.New("timeout")
	rec = doRequest(t, newTestRouter(p, hist), http.MethodGet, "/api/predictions?n=1")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "memoria", body.Source)
	assert.Len(t, body.Predictions, 1)
}

func TestCorsPreflight(t *testing.T) {
	h := newTestRouter(newFakePipeline(4), nil)
	rec := doRequest(t, h, http.MethodOptions, "/api/reset")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStreamSendsNewRows(t *testing.T) {
	p := newFakePipeline(100)
	p.addRaw(2)
	srv := httptest.NewServer(newTestRouter(p, nil))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var lines []string
	readData := func() []models.Row {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: [") {
				lines = append(lines, line)
				var rows []models.Row
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &rows))
				return rows
			}
		}
	}

	// Primeiro evento traz o que já existia
	first := readData()
	require.Len(t, first, 2)
	assert.Equal(t, uint64(1), first[0].Seq)
	assert.Contains(t, lines[0], `"value":0}`)

	p.addRaw(3)
	var seqs []uint64
	for len(seqs) < 3 {
		for _, r := range readData() {
			seqs = append(seqs, r.Seq)
		}
	}
	assert.Equal(t, []uint64{3, 4, 5}, seqs)
}
