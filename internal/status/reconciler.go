// Package status периодически сверяет локальное состояние с управляющим сервером
package status

import (
	"context"
	"time"

	"piezo-stream/internal/logging"
	"piezo-stream/internal/metrics"
	"piezo-stream/internal/models"
)

const (
	// DefaultInterval период опроса статуса
	DefaultInterval = 5 * time.Second
)

// Source источник фактического статуса (control.Client)
type Source interface {
	Status(ctx context.Context) (models.DeviceStatus, error)
}

// Sink получает результат сверки (dashboard.Dashboard)
type Sink interface {
	ApplyStatus(status models.DeviceStatus)
	ReportStatusError(err error)
}

// Reconciler опрашивает статус сразу при запуске и затем с фиксированным периодом
type Reconciler struct {
	source   Source
	sink     Sink
	interval time.Duration
	timeout  time.Duration
	log      *logging.Logger
}

// NewReconciler создает сверщик; timeout ограничивает один запрос
func NewReconciler(source Source, sink Sink, interval, timeout time.Duration, log *logging.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Reconciler{
		source:   source,
		sink:     sink,
		interval: interval,
		timeout:  timeout,
		log:      log,
	}
}

// Run выполняет первую сверку немедленно, затем каждые interval до отмены ctx
func (r *Reconciler) Run(ctx context.Context) {
	r.Tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick выполняет одну сверку; при ошибке прежнее состояние сохраняется
func (r *Reconciler) Tick(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	status, err := r.source.Status(reqCtx)
	if err != nil {
		metrics.StatusPollErrors.Inc()
		r.log.Warn("Status update error: %v", err)
		r.sink.ReportStatusError(err)
		return err
	}

	r.log.Debug("Status: serial=%v logging=%v clients=%d",
		status.SerialConnected, status.Logging, status.WebsocketConnections)
	r.sink.ApplyStatus(status)
	return nil
}
