// Package handlers содержит HTTP обработчики локального API
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"piezo-stream/internal/analytics"
	"piezo-stream/internal/control"
	"piezo-stream/internal/dashboard"
	"piezo-stream/internal/metrics"
	"piezo-stream/internal/models"
)

// Pinger проверка доступности внешнего хранилища
type Pinger interface {
	Ping() error
}

// Handler содержит зависимости для HTTP обработчиков
type Handler struct {
	dash      *dashboard.Dashboard
	redis     Pinger
	startTime time.Time
}

// NewHandler создает новый обработчик; redis может быть nil
func NewHandler(dash *dashboard.Dashboard, redis Pinger) *Handler {
	return &Handler{
		dash:      dash,
		redis:     redis,
		startTime: time.Now(),
	}
}

// Register регистрирует маршруты API
func (h *Handler) Register(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/snapshot", h.SnapshotHandler).Methods("GET")
	api.HandleFunc("/series/{metric}", h.SeriesHandler).Methods("GET")
	api.HandleFunc("/state", h.StateHandler).Methods("GET")
	api.HandleFunc("/notifications", h.NotificationsHandler).Methods("GET")
	api.HandleFunc("/ports", h.PortsHandler).Methods("GET")
	api.HandleFunc("/connect", h.ConnectHandler).Methods("POST")
	api.HandleFunc("/disconnect", h.DisconnectHandler).Methods("POST")
	api.HandleFunc("/logging/toggle", h.ToggleLoggingHandler).Methods("POST")
	api.HandleFunc("/chart/clear", h.ClearChartHandler).Methods("POST")

	router.HandleFunc("/health", h.HealthHandler).Methods("GET")
}

// SeriesResponse ряд величины для слоя отображения
type SeriesResponse struct {
	Metric  models.Metric     `json:"metric"`
	Kind    string            `json:"kind"`
	Values  []float64         `json:"values"`
	Labels  []time.Time       `json:"labels,omitempty"`
	Summary analytics.Summary `json:"summary"`
}

// SnapshotHandler обрабатывает GET /api/snapshot - последний снимок
func (h *Handler) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues("/api/snapshot", r.Method))
	defer timer.ObserveDuration()

	snap, ok := h.dash.Store().Latest()
	if !ok {
		h.respondError(w, r, "/api/snapshot", "No samples received yet", http.StatusNotFound)
		return
	}

	h.respondJSON(w, r, "/api/snapshot", snap, http.StatusOK)
}

// SeriesHandler обрабатывает GET /api/series/{metric}?kind=chart|sparkline
func (h *Handler) SeriesHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues("/api/series", r.Method))
	defer timer.ObserveDuration()

	metric, ok := models.ParseMetric(mux.Vars(r)["metric"])
	if !ok {
		h.respondError(w, r, "/api/series", "Unknown metric", http.StatusNotFound)
		return
	}

	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "chart"
	}

	store := h.dash.Store()
	response := SeriesResponse{Metric: metric, Kind: kind}
	switch kind {
	case "chart":
		response.Values = store.Chart(metric)
		response.Labels = store.ChartLabels()
	case "sparkline":
		response.Values = store.Sparkline(metric)
	default:
		h.respondError(w, r, "/api/series", "Invalid kind: "+kind, http.StatusBadRequest)
		return
	}
	if response.Values == nil {
		response.Values = []float64{}
	}
	response.Summary = analytics.Summarize(response.Values)

	h.respondJSON(w, r, "/api/series", response, http.StatusOK)
}

// StateHandler обрабатывает GET /api/state - состояние клиента
func (h *Handler) StateHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues("/api/state", r.Method))
	defer timer.ObserveDuration()

	h.respondJSON(w, r, "/api/state", h.dash.State(), http.StatusOK)
}

// NotificationsHandler обрабатывает GET /api/notifications?count=N
func (h *Handler) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues("/api/notifications", r.Method))
	defer timer.ObserveDuration()

	items := h.dash.Notifications()
	if countStr := r.URL.Query().Get("count"); countStr != "" {
		if c, err := strconv.Atoi(countStr); err == nil && c > 0 && c < len(items) {
			items = items[len(items)-c:]
		}
	}

	h.respondJSON(w, r, "/api/notifications", items, http.StatusOK)
}

// PortsHandler обрабатывает GET /api/ports - список последовательных портов
func (h *Handler) PortsHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues("/api/ports", r.Method))
	defer timer.ObserveDuration()

	ports, err := h.dash.ListPorts(r.Context())
	if err != nil {
		h.respondError(w, r, "/api/ports", "Failed to load ports: "+err.Error(), http.StatusBadGateway)
		return
	}
	if ports == nil {
		ports = []models.PortInfo{}
	}

	h.respondJSON(w, r, "/api/ports", map[string]interface{}{"ports": ports}, http.StatusOK)
}

// ConnectHandler обрабатывает POST /api/connect
func (h *Handler) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues("/api/connect", r.Method))
	defer timer.ObserveDuration()

	var req models.ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, "/api/connect", "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.dash.Connect(r.Context(), req.Port, req.Baudrate); err != nil {
		h.respondActionError(w, r, "/api/connect", err)
		return
	}

	h.respondJSON(w, r, "/api/connect", h.dash.State(), http.StatusOK)
}

// DisconnectHandler обрабатывает POST /api/disconnect
func (h *Handler) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues("/api/disconnect", r.Method))
	defer timer.ObserveDuration()

	if err := h.dash.Disconnect(r.Context()); err != nil {
		h.respondActionError(w, r, "/api/disconnect", err)
		return
	}

	h.respondJSON(w, r, "/api/disconnect", h.dash.State(), http.StatusOK)
}

// ToggleLoggingHandler обрабатывает POST /api/logging/toggle
func (h *Handler) ToggleLoggingHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues("/api/logging/toggle", r.Method))
	defer timer.ObserveDuration()

	if err := h.dash.ToggleLogging(r.Context()); err != nil {
		h.respondActionError(w, r, "/api/logging/toggle", err)
		return
	}

	h.respondJSON(w, r, "/api/logging/toggle", h.dash.State(), http.StatusOK)
}

// ClearChartHandler обрабатывает POST /api/chart/clear
func (h *Handler) ClearChartHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues("/api/chart/clear", r.Method))
	defer timer.ObserveDuration()

	h.dash.ClearChart()
	h.respondJSON(w, r, "/api/chart/clear", map[string]string{"status": "cleared"}, http.StatusOK)
}

// HealthHandler обрабатывает GET /health - проверка здоровья
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	redisStatus := "disabled"
	if h.redis != nil {
		redisStatus = "disconnected"
		if h.redis.Ping() == nil {
			redisStatus = "connected"
		}
	}

	status := models.HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Redis:     redisStatus,
		Channel:   h.dash.State().ChannelState.String(),
		Uptime:    time.Since(h.startTime).String(),
	}

	h.respondJSON(w, r, "/health", status, http.StatusOK)
}

// respondActionError переводит ошибку действия в HTTP статус
func (h *Handler) respondActionError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	if errors.Is(err, dashboard.ErrNoPort) {
		h.respondError(w, r, endpoint, err.Error(), http.StatusBadRequest)
		return
	}

	var apiErr *control.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		h.respondError(w, r, endpoint, apiErr.Detail, http.StatusBadGateway)
		return
	}
	h.respondError(w, r, endpoint, err.Error(), http.StatusBadGateway)
}

// respondJSON отправляет JSON ответ
func (h *Handler) respondJSON(w http.ResponseWriter, r *http.Request, endpoint string, data interface{}, status int) {
	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError отправляет ошибку в JSON формате
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, endpoint, message string, status int) {
	h.respondJSON(w, r, endpoint, map[string]string{"error": message}, status)
}
