// Package models содержит структуры данных телеметрии пьезогенератора и состояния сессии
package models

import (
	"encoding/json"
	"time"
)

// Metric идентифицирует отслеживаемую величину
type Metric string

const (
	MetricVoltage Metric = "voltage"
	MetricEnergy  Metric = "energy"
	MetricSteps   Metric = "steps"
	MetricPower   Metric = "power"
)

// AllMetrics перечисляет величины в порядке отображения
var AllMetrics = []Metric{MetricVoltage, MetricEnergy, MetricSteps, MetricPower}

// ParseMetric проверяет имя величины
func ParseMetric(name string) (Metric, bool) {
	for _, m := range AllMetrics {
		if string(m) == name {
			return m, true
		}
	}
	return "", false
}

// Sample представляет одно показание устройства, полученное по push-каналу
type Sample struct {
	Voltage   float64   `json:"voltage"`
	RawEnergy float64   `json:"energy"`
	Steps     int64     `json:"steps"`
	Power     float64   `json:"power"`
	LEDOn     bool      `json:"led_on"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// DerivedSample содержит величины в милли-единицах для отображения
type DerivedSample struct {
	Voltage     float64 `json:"voltage"`
	EnergyMilli float64 `json:"energy_mj"`
	Steps       int64   `json:"steps"`
	PowerMilli  float64 `json:"power_mw"`
}

// Snapshot неизменяемый срез состояния после приема очередного показания
type Snapshot struct {
	CumulativeTotal float64       `json:"cumulative_energy_mj"`
	Latest          DerivedSample `json:"latest"`
	LEDOn           bool          `json:"led_on"`
	SampleCount     uint64        `json:"sample_count"`
	ReceivedAt      time.Time     `json:"received_at"`
	// DeviceTime метка сервера без часового пояса, только для справки
	DeviceTime      time.Time     `json:"device_time,omitempty"`
}

// ConnectionState состояние соединения (канал или устройство)
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// MarshalJSON сериализует состояние строкой
func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// DeviceStatus ответ GET /api/status управляющего сервера
type DeviceStatus struct {
	SerialConnected      bool    `json:"serial_connected"`
	Logging              bool    `json:"logging"`
	CSVFile              *string `json:"csv_file,omitempty"`
	WebsocketConnections int     `json:"websocket_connections"`
}

// PortInfo описывает последовательный порт
type PortInfo struct {
	Device      string `json:"device"`
	Description string `json:"description"`
}

// ConnectRequest тело POST /api/connect
type ConnectRequest struct {
	Port     string `json:"port"`
	Baudrate int    `json:"baudrate"`
}

// NotificationLevel уровень пользовательского уведомления
type NotificationLevel string

const (
	LevelSuccess NotificationLevel = "success"
	LevelInfo    NotificationLevel = "info"
	LevelError   NotificationLevel = "error"
)

// Notification видимое пользователю уведомление
type Notification struct {
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
	At      time.Time         `json:"at"`
}

// DashboardState модель чтения состояния клиента
type DashboardState struct {
	SessionID     string          `json:"session_id"`
	ChannelState  ConnectionState `json:"channel_state"`
	DeviceState   ConnectionState `json:"device_state"`
	Logging       bool            `json:"logging"`
	LogFile       string          `json:"log_file,omitempty"`
	ClientCount   int             `json:"client_count"`
	LastUpdate    time.Time       `json:"last_update,omitempty"`
	LastReconcile time.Time       `json:"last_reconcile,omitempty"`
	StatusError   string          `json:"status_error,omitempty"`
}

// HealthStatus представляет статус здоровья клиента
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Redis     string    `json:"redis"`
	Channel   string    `json:"channel"`
	Uptime    string    `json:"uptime"`
}
