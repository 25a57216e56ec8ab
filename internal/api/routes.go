package api

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/interaction-monitor/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRoutes configures all HTTP routes
func SetupRoutes(handler *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mw := middleware{logger: handler.logger}

	mux.HandleFunc("/v1/interactions", mw.wrap(byMethod(map[string]http.HandlerFunc{
		http.MethodGet:  handler.HandleListInteractions,
		http.MethodPost: handler.HandleSubmitInteraction,
	})))
	mux.HandleFunc("/v1/incidents", mw.wrap(byMethod(map[string]http.HandlerFunc{
		http.MethodGet: handler.HandleListIncidents,
	})))
	mux.HandleFunc("/v1/incidents/{id}", mw.wrap(byMethod(map[string]http.HandlerFunc{
		http.MethodPatch: handler.HandleUpdateIncident,
	})))
	mux.HandleFunc("/v1/rules", mw.wrap(byMethod(map[string]http.HandlerFunc{
		http.MethodGet:  handler.HandleListRules,
		http.MethodPost: handler.HandleCreateRule,
	})))
	mux.HandleFunc("/v1/rules/{id}", mw.wrap(byMethod(map[string]http.HandlerFunc{
		http.MethodPut: handler.HandleUpdateRule,
	})))
	mux.HandleFunc("/v1/rules/{id}/toggle", mw.wrap(byMethod(map[string]http.HandlerFunc{
		http.MethodPost: handler.HandleToggleRule,
	})))
	mux.HandleFunc("/v1/policies", mw.wrap(byMethod(map[string]http.HandlerFunc{
		http.MethodGet: handler.HandleListPolicies,
	})))
	mux.HandleFunc("/v1/policies/{id}", mw.wrap(byMethod(map[string]http.HandlerFunc{
		http.MethodPut: handler.HandleUpdatePolicy,
	})))
	mux.HandleFunc("/v1/dashboard", mw.wrap(byMethod(map[string]http.HandlerFunc{
		http.MethodGet: handler.HandleDashboard,
	})))
	mux.HandleFunc("/v1/health", mw.wrap(byMethod(map[string]http.HandlerFunc{
		http.MethodGet: handler.HandleHealth,
	})))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// byMethod routes a request to the handler registered for its method
func byMethod(handlers map[string]http.HandlerFunc) http.HandlerFunc {
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	allow := strings.Join(allowed, ", ")

	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.Method]
		if !ok {
			w.Header().Set("Allow", allow)
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}

type middleware struct {
	logger *zap.SugaredLogger
}

// wrap adds request ids, CORS, request logging and HTTP metrics to a handler
func (m middleware) wrap(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Generate request ID for tracing
		requestID := uuid.New().String()
		w.Header().Set("X-Request-ID", requestID)

		// Add CORS headers (for browser-based clients)
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		start := time.Now()
		m.logger.Debugf("[%s] %s %s - Started", requestID, r.Method, r.URL.Path)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(rec, r)

		duration := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.Pattern, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.Pattern).Observe(duration.Seconds())
		m.logger.Infof("[%s] %s %s - %d in %v", requestID, r.Method, r.URL.Path, rec.status, duration)
	}
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
