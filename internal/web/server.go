package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/neurallock/nla/internal/logger"
	"github.com/neurallock/nla/internal/state"
	"github.com/neurallock/nla/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the agent's cycle history and health over HTTP.
type WebServer struct {
	router      *mux.Router
	port        string
	constraints func() types.ConstraintConfig
}

// NewWebServer creates a new web server instance. constraints reports the
// active policy constraint configuration; nil hides the endpoint.
func NewWebServer(port string, constraints func() types.ConstraintConfig) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:      mux.NewRouter(),
		port:        port,
		constraints: constraints,
	}

	server.setupRoutes()
	return server
}

func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")
	api.HandleFunc("/constraints", ws.handleGetConstraints).Methods("GET")

	ws.router.Use(ws.withCORS)
	ws.router.Use(ws.withRequestLog)
}

// Start blocks serving HTTP until the listener fails.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth reports process health plus the latest cycle outcome. The
// endpoint returns 503 when the database is unreachable or the last executed
// action failed, so it can back a liveness probe directly.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	var cycleInfo map[string]interface{}

	latest, cycleErr := state.GetLatestReport()
	if cycleErr == nil {
		cycleInfo = map[string]interface{}{
			"current_cycle":   latest.CycleNumber,
			"last_cycle_time": latest.Timestamp,
			"health_status":   latest.HealthStatus.String(),
			"last_action":     latest.Action.String(),
			"executed":        latest.Executed,
		}
		hasErrors = latest.Executed && !latest.Result.Success
	} else {
		cycleInfo = map[string]interface{}{
			"current_cycle":   0,
			"last_cycle_time": nil,
			"health_status":   "unknown",
		}
	}

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
		hasErrors = true
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "nla-neural-locker-agent",
			"version": "1.0.0",
		},
		"agent_status": map[string]interface{}{
			"database_healthy":  dbHealthy,
			"has_recent_errors": hasErrors,
			"cycle_info":        cycleInfo,
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSON(w, statusCode, response)
}

// handleGetCycles returns recent cycle reports, newest first. The limit query
// parameter is clamped to 100.
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	reports, err := state.GetRecentReports(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent cycle reports")
		ws.writeError(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}

	ws.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cycles": reports,
		"count":  len(reports),
		"limit":  limit,
	})
}

func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	latest, err := state.GetLatestReport()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get latest cycle report")
		ws.writeError(w, http.StatusNotFound, "No cycles found")
		return
	}

	ws.writeJSON(w, http.StatusOK, latest)
}

func (ws *WebServer) handleGetConstraints(w http.ResponseWriter, r *http.Request) {
	if ws.constraints == nil {
		ws.writeError(w, http.StatusNotFound, "Constraints not available")
		return
	}

	ws.writeJSON(w, http.StatusOK, map[string]interface{}{
		"constraints": ws.constraints(),
		"timestamp":   time.Now().UTC(),
	})
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (ws *WebServer) writeError(w http.ResponseWriter, statusCode int, message string) {
	ws.writeJSON(w, statusCode, map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

// withCORS allows read-only cross-origin access to the status API.
func (ws *WebServer) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRequestLog logs each request with its final status code.
func (ws *WebServer) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// statusRecorder captures the status code a handler writes.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
