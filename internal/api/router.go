package api

import (
	"net/http"
	"strings"
	"time"

	"imu_go/pkg/logger"
)

// Router gerencia as rotas da API
type Router struct {
	handler     *Handler
	mux         *http.ServeMux
	basePath    string
	middlewares []Middleware
	final       http.Handler
}

// NewRouter cria um novo router para a API. history pode ser nil.
func NewRouter(pipeline Pipeline, history History, streamInterval time.Duration, basePath string) *Router {
	handler := NewHandler(pipeline, history, streamInterval)

	// Normalizar base path
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimSuffix(basePath, "/")

	// Configurar middlewares padrão
	middlewares := []Middleware{
		LoggingMiddleware,
		RecoveryMiddleware,
		CorsMiddleware,
	}

	return &Router{
		handler:     handler,
		mux:         http.NewServeMux(),
		basePath:    basePath,
		middlewares: middlewares,
	}
}

// Setup configura todas as rotas
func (r *Router) Setup() {
	// Leitura incremental do log
	r.mux.HandleFunc(r.path("/rows"), r.handler.GetRows)
	r.mux.HandleFunc(r.path("/latest"), r.handler.GetLatest)

	// Reset atômico do pipeline
	r.mux.HandleFunc(r.path("/reset"), r.handler.PostReset)

	r.mux.HandleFunc(r.path("/status"), r.handler.GetStatus)
	r.mux.HandleFunc(r.path("/features"), r.handler.GetFeatures)
	r.mux.HandleFunc(r.path("/predictions"), r.handler.GetPredictions)

	// SSE fica fora do base path, como nos painéis existentes
	r.mux.HandleFunc("/stream", r.handler.Stream)

	r.final = r.applyMiddleware(r.mux)
	logger.Infof("API configurada com base path: %s", r.basePath)
}

// Handler retorna o handler HTTP final com todos os middlewares aplicados
func (r *Router) Handler() http.Handler {
	if r.final == nil {
		r.Setup()
	}
	return r.final
}

// path retorna o caminho completo para uma rota
func (r *Router) path(route string) string {
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return r.basePath + route
}

// applyMiddleware aplica todos os middlewares ao handler
func (r *Router) applyMiddleware(handler http.Handler) http.Handler {
	if len(r.middlewares) == 0 {
		return handler
	}

	return Chain(r.middlewares...)(handler)
}

// ServeHTTP implementa a interface http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.Handler().ServeHTTP(w, req)
}
