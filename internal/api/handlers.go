package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"imu_go/internal/models"
	"imu_go/internal/rowlog"
	"imu_go/pkg/logger"
)

const (
	defaultPredictions = 50
	maxPredictions     = 1000
)

// Pipeline é a parte do pipeline exposta pela API
type Pipeline interface {
	RowsSince(since uint64) models.RowsPage
	LatestRows(n int) []models.Row
	Reset() uint64
	Status() models.PipelineStatus
	FeatureNames() []string
	RecentPredictions(n int) []models.Row
	RowLogStats() rowlog.Stats
}

// History fornece o histórico de predições mantido fora do processo
type History interface {
	IsConnected() bool
	GetRecentPredictions(n int) ([]models.PredictionResult, error)
}

// Handler contém os handlers HTTP para a API
type Handler struct {
	pipeline       Pipeline
	history        History
	streamInterval time.Duration
}

// NewHandler cria um novo handler de API. history pode ser nil.
func NewHandler(pipeline Pipeline, history History, streamInterval time.Duration) *Handler {
	if streamInterval <= 0 {
		streamInterval = 200 * time.Millisecond
	}
	return &Handler{
		pipeline:       pipeline,
		history:        history,
		streamInterval: streamInterval,
	}
}

// GetRows retorna as linhas com seq maior que ?since=
func (h *Handler) GetRows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	since, err := queryUint(r, "since", 0)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, h.pipeline.RowsSince(since))
}

// GetLatest retorna as últimas ?n= linhas
func (h *Handler) GetLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	n, err := queryUint(r, "n", 0)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, h.pipeline.LatestRows(int(n)))
}

// PostReset reinicia o pipeline e informa o próximo seq
func (h *Handler) PostReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	restart := h.pipeline.Reset()
	logger.Infof("Reset solicitado via API por %s", r.RemoteAddr)

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"restartSeq": restart,
		"epoch":      h.pipeline.Status().Epoch,
	})
}

// GetStatus retorna a última predição e o estado do pipeline
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	status := h.pipeline.Status()

	// Campos da predição no nível superior; nulos até a primeira predição
	response := map[string]interface{}{
		"label":         nil,
		"proba":         nil,
		"probabilities": nil,
		"F":             nil,
		"n":             status.WindowFill,
		"updated_at":    nil,
		"pipeline":      status,
	}
	if p := status.LastPrediction; p != nil {
		response["label"] = p.Label
		response["proba"] = p.Confidence
		response["probabilities"] = p.Probabilities
		response["F"] = p.Features
		response["n"] = p.WindowSize
		response["source"] = p.Source
		response["updated_at"] = p.Timestamp.UnixMilli()
	}

	h.respondWithJSON(w, http.StatusOK, response)
}

// GetFeatures retorna os nomes das características na ordem do vetor
func (h *Handler) GetFeatures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	names := h.pipeline.FeatureNames()
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"names":  names,
		"length": len(names),
	})
}

// GetPredictions retorna as predições recentes, do Redis quando conectado
func (h *Handler) GetPredictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	n, err := queryUint(r, "n", defaultPredictions)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if n > maxPredictions {
		n = maxPredictions
	}

	source := "memoria"
	var events []models.PredictionEvent

	if h.history != nil && h.history.IsConnected() {
		history, err := h.history.GetRecentPredictions(int(n))
		if err == nil {
			source = "redis"
			events = make([]models.PredictionEvent, 0, len(history))
			for _, p := range history {
				events = append(events, p.Event())
			}
		} else {
			logger.Warnf("Histórico do Redis indisponível, usando memória: %v", err)
		}
	}

	if events == nil {
		rows := h.pipeline.RecentPredictions(int(n))
		events = make([]models.PredictionEvent, 0, len(rows))
		for _, row := range rows {
			events = append(events, models.PredictionEvent{
				Label:      row.Label,
				Confidence: row.Confidence,
				Source:     row.Source,
				Seq:        row.Seq,
				Timestamp:  row.Timestamp.UnixMilli(),
			})
		}
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"source":      source,
		"predictions": events,
	})
}

// Stream envia as linhas novas como Server-Sent Events.
// Cada evento traz um array JSON com as linhas acrescentadas desde o anterior.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondWithError(w, http.StatusMethodNotAllowed, "Método não permitido")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondWithError(w, http.StatusInternalServerError, "Streaming não suportado")
		return
	}

	cursor, err := queryUint(r, "since", 0)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	epoch := h.pipeline.Status().Epoch
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		page := h.pipeline.RowsSince(cursor)
		if page.Epoch != epoch {
			epoch = page.Epoch
			restart := page.LastSeq + 1
			if len(page.Rows) > 0 {
				restart = page.Rows[0].Seq
			}
			fmt.Fprintf(w, "event: reset\ndata: {\"restartSeq\":%d,\"epoch\":%d}\n\n", restart, epoch)
		}
		if len(page.Rows) > 0 {
			data, err := json.Marshal(page.Rows)
			if err != nil {
				logger.Errorf("Erro ao serializar linhas do stream: %v", err)
				return
			}
			cursor = page.Rows[len(page.Rows)-1].Seq
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

// queryUint lê um parâmetro inteiro não negativo da query string
func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parâmetro %s inválido: %q", name, raw)
	}
	return v, nil
}

// respondWithError responde com erro em formato JSON
func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON responde com JSON
func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Errorf("Erro ao codificar resposta JSON: %v", err)
	}
}
