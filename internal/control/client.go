// Package control реализует HTTP клиент управляющего сервера устройства
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"piezo-stream/internal/metrics"
	"piezo-stream/internal/models"
)

// APIError ответ сервера с кодом не 2xx
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("control server returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("control server returned %d", e.StatusCode)
}

// Client обращается к /api/* управляющего сервера
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient создает клиент с таймаутом на запрос
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type portsResponse struct {
	Ports []models.PortInfo `json:"ports"`
}

type loggingResponse struct {
	Status string `json:"status"`
	File   string `json:"file"`
}

// ListPorts возвращает доступные последовательные порты
func (c *Client) ListPorts(ctx context.Context) ([]models.PortInfo, error) {
	var resp portsResponse
	if err := c.do(ctx, "list_ports", http.MethodGet, "/api/ports", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Ports, nil
}

// Connect открывает последовательный порт на сервере
func (c *Client) Connect(ctx context.Context, port string, baudrate int) error {
	req := models.ConnectRequest{Port: port, Baudrate: baudrate}
	return c.do(ctx, "connect", http.MethodPost, "/api/connect", req, nil)
}

// Disconnect закрывает последовательный порт
func (c *Client) Disconnect(ctx context.Context) error {
	return c.do(ctx, "disconnect", http.MethodPost, "/api/disconnect", nil, nil)
}

// StartLogging включает запись в CSV и возвращает имя файла
func (c *Client) StartLogging(ctx context.Context) (string, error) {
	var resp loggingResponse
	if err := c.do(ctx, "start_logging", http.MethodPost, "/api/logging/start", nil, &resp); err != nil {
		return "", err
	}
	return resp.File, nil
}

// StopLogging выключает запись в CSV
func (c *Client) StopLogging(ctx context.Context) error {
	return c.do(ctx, "stop_logging", http.MethodPost, "/api/logging/stop", nil, nil)
}

// Status возвращает фактическое состояние устройства и сессии
func (c *Client) Status(ctx context.Context) (models.DeviceStatus, error) {
	var status models.DeviceStatus
	err := c.do(ctx, "status", http.MethodGet, "/api/status", nil, &status)
	return status, err
}

func (c *Client) do(ctx context.Context, operation, method, path string, body, out interface{}) (err error) {
	timer := prometheus.NewTimer(metrics.ControlLatency.WithLabelValues(operation))
	defer timer.ObserveDuration()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ControlRequests.WithLabelValues(operation, outcome).Inc()
	}()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", operation, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var detail struct {
			Detail interface{} `json:"detail"`
		}
		if json.NewDecoder(resp.Body).Decode(&detail) == nil && detail.Detail != nil {
			if s, ok := detail.Detail.(string); ok {
				apiErr.Detail = s
			} else {
				apiErr.Detail = fmt.Sprint(detail.Detail)
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}
