// Package metrics реализует экспорт метрик клиента в Prometheus
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"piezo-stream/internal/models"
)

// Prometheus метрики
var (
	// RequestsTotal количество запросов к локальному API
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "piezo_api_requests_total",
			Help: "Total number of local API requests processed",
		},
		[]string{"endpoint", "method", "status"},
	)

	// RequestDuration длительность запросов к локальному API
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "piezo_api_request_duration_seconds",
			Help:    "Local API request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint", "method"},
	)

	// SamplesIngested количество принятых показаний
	SamplesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "piezo_samples_ingested_total",
			Help: "Total number of samples ingested from the push channel",
		},
	)

	// SamplesMalformed количество отброшенных сообщений
	SamplesMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "piezo_samples_malformed_total",
			Help: "Total number of push channel frames dropped as malformed",
		},
	)

	// Reconnects количество запланированных переподключений
	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "piezo_stream_reconnects_total",
			Help: "Total number of push channel reconnect attempts scheduled",
		},
	)

	// ChannelState состояние push-канала (0 disconnected, 1 connecting, 2 connected)
	ChannelState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "piezo_stream_state",
			Help: "Push channel state (0 disconnected, 1 connecting, 2 connected)",
		},
	)

	// CumulativeEnergy суммарная энергия сессии
	CumulativeEnergy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "piezo_cumulative_energy_millijoules",
			Help: "Cumulative energy of the current session in millijoules",
		},
	)

	// Voltage последнее напряжение
	Voltage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "piezo_voltage_volts",
			Help: "Latest voltage reading",
		},
	)

	// PowerMilli последняя мощность
	PowerMilli = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "piezo_power_milliwatts",
			Help: "Latest power reading in milliwatts",
		},
	)

	// Steps последнее значение счетчика шагов
	Steps = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "piezo_steps",
			Help: "Latest step count reported by the device",
		},
	)

	// DeviceConnected состояние устройства по данным сервера
	DeviceConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "piezo_device_connected",
			Help: "Whether the control server reports the serial device as connected",
		},
	)

	// Logging состояние записи на диск
	Logging = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "piezo_logging_active",
			Help: "Whether disk logging is active on the control server",
		},
	)

	// StreamClients количество клиентов push-канала на сервере
	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "piezo_stream_clients",
			Help: "Number of push channel clients reported by the control server",
		},
	)

	// StatusPollErrors ошибки опроса статуса
	StatusPollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "piezo_status_poll_errors_total",
			Help: "Total number of failed status polls",
		},
	)

	// ControlRequests запросы к управляющему серверу
	ControlRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "piezo_control_requests_total",
			Help: "Total number of control endpoint calls",
		},
		[]string{"operation", "outcome"},
	)

	// ControlLatency время ответа управляющего сервера
	ControlLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "piezo_control_latency_seconds",
			Help:    "Control endpoint latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	// PublishErrors ошибки публикации снимков в Redis
	PublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "piezo_publish_errors_total",
			Help: "Total number of failed snapshot publications",
		},
	)
)

// UpdateSnapshotMetrics обновляет метрики последнего показания
func UpdateSnapshotMetrics(snap models.Snapshot) {
	SamplesIngested.Inc()
	CumulativeEnergy.Set(snap.CumulativeTotal)
	Voltage.Set(snap.Latest.Voltage)
	PowerMilli.Set(snap.Latest.PowerMilli)
	Steps.Set(float64(snap.Latest.Steps))
}

// UpdateDeviceMetrics обновляет метрики статуса устройства
func UpdateDeviceMetrics(status models.DeviceStatus) {
	DeviceConnected.Set(boolToFloat(status.SerialConnected))
	Logging.Set(boolToFloat(status.Logging))
	StreamClients.Set(float64(status.WebsocketConnections))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
