// Package dashboard связывает хранилище, канал и управляющий сервер в один контекст приложения
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"piezo-stream/internal/analytics"
	"piezo-stream/internal/control"
	"piezo-stream/internal/logging"
	"piezo-stream/internal/metrics"
	"piezo-stream/internal/models"
	"piezo-stream/internal/stream"
)

const (
	// NotificationHistory сколько последних уведомлений хранить
	NotificationHistory = 50
)

// ErrNoPort порт не выбран
var ErrNoPort = errors.New("no serial port selected")

// ControlAPI операции управляющего сервера
type ControlAPI interface {
	ListPorts(ctx context.Context) ([]models.PortInfo, error)
	Connect(ctx context.Context, port string, baudrate int) error
	Disconnect(ctx context.Context) error
	StartLogging(ctx context.Context) (string, error)
	StopLogging(ctx context.Context) error
}

// Dashboard хранит состояние одной клиентской сессии
type Dashboard struct {
	id          string
	store       *analytics.Store
	control     ControlAPI
	log         *logging.Logger
	defaultBaud int

	mu            sync.RWMutex
	channelState  models.ConnectionState
	deviceState   models.ConnectionState
	logging       bool
	logFile       string
	clients       int
	lastUpdate    time.Time
	lastReconcile time.Time
	statusError   string
	notifications *analytics.BoundedSeries[models.Notification]
	subscribers   []stream.Subscriber
}

// New создает контекст приложения
func New(store *analytics.Store, ctl ControlAPI, log *logging.Logger, defaultBaud int) *Dashboard {
	if log == nil {
		log = logging.Discard()
	}
	return &Dashboard{
		id:            uuid.NewString(),
		store:         store,
		control:       ctl,
		log:           log,
		defaultBaud:   defaultBaud,
		notifications: analytics.NewBoundedSeries[models.Notification](NotificationHistory),
	}
}

// ID идентификатор сессии
func (d *Dashboard) ID() string {
	return d.id
}

// Store хранилище рядов
func (d *Dashboard) Store() *analytics.Store {
	return d.store
}

// Subscribe добавляет получателя снимков
func (d *Dashboard) Subscribe(sub stream.Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, sub)
}

func (d *Dashboard) fanout() []stream.Subscriber {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]stream.Subscriber(nil), d.subscribers...)
}

// StateChanged реализует stream.Subscriber
func (d *Dashboard) StateChanged(state models.ConnectionState) {
	d.mu.Lock()
	d.channelState = state
	d.mu.Unlock()

	for _, sub := range d.fanout() {
		sub.StateChanged(state)
	}
}

// SampleIngested реализует stream.Subscriber
func (d *Dashboard) SampleIngested(snap models.Snapshot) {
	d.mu.Lock()
	d.lastUpdate = snap.ReceivedAt
	d.mu.Unlock()

	metrics.UpdateSnapshotMetrics(snap)
	for _, sub := range d.fanout() {
		sub.SampleIngested(snap)
	}
}

// ApplyStatus перезаписывает локальное состояние фактическим
func (d *Dashboard) ApplyStatus(status models.DeviceStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if status.SerialConnected {
		d.deviceState = models.Connected
	} else {
		d.deviceState = models.Disconnected
	}
	d.logging = status.Logging
	d.logFile = ""
	if status.Logging && status.CSVFile != nil {
		d.logFile = *status.CSVFile
	}
	d.clients = status.WebsocketConnections
	d.lastReconcile = time.Now()
	d.statusError = ""

	metrics.UpdateDeviceMetrics(status)
}

// ReportStatusError фиксирует ошибку опроса, состояние не меняется
func (d *Dashboard) ReportStatusError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statusError = err.Error()
}

// Connect подключает последовательный порт; локальное состояние меняется только при успехе
func (d *Dashboard) Connect(ctx context.Context, port string, baudrate int) error {
	if port == "" {
		d.notify(models.LevelError, "Please select a serial port")
		return ErrNoPort
	}
	if baudrate <= 0 {
		baudrate = d.defaultBaud
	}

	if err := d.control.Connect(ctx, port, baudrate); err != nil {
		d.log.Error("Connect to %s failed: %v", port, err)
		d.notify(models.LevelError, failure("Connection failed", err))
		return err
	}

	d.setDeviceState(models.Connected)
	d.notify(models.LevelSuccess, fmt.Sprintf("Connected to %s", port))
	return nil
}

// Disconnect отключает последовательный порт
func (d *Dashboard) Disconnect(ctx context.Context) error {
	if err := d.control.Disconnect(ctx); err != nil {
		d.log.Error("Disconnect failed: %v", err)
		d.notify(models.LevelError, failure("Disconnect failed", err))
		return err
	}

	d.setDeviceState(models.Disconnected)
	d.notify(models.LevelInfo, "Disconnected from serial port")
	return nil
}

// ToggleLogging включает или выключает запись в зависимости от текущего состояния
func (d *Dashboard) ToggleLogging(ctx context.Context) error {
	d.mu.RLock()
	active := d.logging
	d.mu.RUnlock()

	if active {
		if err := d.control.StopLogging(ctx); err != nil {
			d.notify(models.LevelError, failure("Logging toggle failed", err))
			return err
		}
		d.mu.Lock()
		d.logging, d.logFile = false, ""
		d.mu.Unlock()
		d.notify(models.LevelInfo, "Logging stopped")
		return nil
	}

	file, err := d.control.StartLogging(ctx)
	if err != nil {
		d.notify(models.LevelError, failure("Logging toggle failed", err))
		return err
	}
	d.mu.Lock()
	d.logging, d.logFile = true, file
	d.mu.Unlock()
	d.notify(models.LevelInfo, fmt.Sprintf("Logging started: %s", file))
	return nil
}

// ListPorts возвращает доступные порты
func (d *Dashboard) ListPorts(ctx context.Context) ([]models.PortInfo, error) {
	ports, err := d.control.ListPorts(ctx)
	if err != nil {
		d.log.Error("Error loading ports: %v", err)
		d.notify(models.LevelError, "Error loading serial ports")
		return nil, err
	}
	return ports, nil
}

// ClearChart очищает график
func (d *Dashboard) ClearChart() {
	d.store.ClearChart()
	d.notify(models.LevelInfo, "Graph cleared")
}

// State возвращает модель чтения состояния
func (d *Dashboard) State() models.DashboardState {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return models.DashboardState{
		SessionID:     d.id,
		ChannelState:  d.channelState,
		DeviceState:   d.deviceState,
		Logging:       d.logging,
		LogFile:       d.logFile,
		ClientCount:   d.clients,
		LastUpdate:    d.lastUpdate,
		LastReconcile: d.lastReconcile,
		StatusError:   d.statusError,
	}
}

// Notifications возвращает последние уведомления, от старых к новым
func (d *Dashboard) Notifications() []models.Notification {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.notifications.Values()
}

func (d *Dashboard) setDeviceState(state models.ConnectionState) {
	d.mu.Lock()
	d.deviceState = state
	d.mu.Unlock()
}

func (d *Dashboard) notify(level models.NotificationLevel, message string) {
	d.mu.Lock()
	d.notifications.Push(models.Notification{Level: level, Message: message, At: time.Now()})
	d.mu.Unlock()

	if level == models.LevelError {
		d.log.Warn("Notification: %s", message)
	} else {
		d.log.Info("Notification: %s", message)
	}
}

// failure добавляет к сообщению detail сервера, если он есть
func failure(prefix string, err error) string {
	var apiErr *control.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return fmt.Sprintf("%s: %s", prefix, apiErr.Detail)
	}
	return prefix
}
