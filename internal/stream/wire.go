package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"piezo-stream/internal/models"
)

// ErrMalformedSample сообщение канала не является корректным показанием
var ErrMalformedSample = errors.New("malformed sample")

// wireSample формат сообщения push-канала; указатели отличают отсутствие поля от нуля
type wireSample struct {
	Voltage   *float64 `json:"voltage"`
	Energy    *float64 `json:"energy"`
	Steps     *int64   `json:"steps"`
	Power     *float64 `json:"power"`
	LED       *string  `json:"led"`
	Timestamp *string  `json:"timestamp"`
}

// Форматы времени, которые присылает сервер (isoformat без зоны трактуется как локальное время)
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// DecodeSample разбирает сообщение канала
func DecodeSample(payload []byte) (models.Sample, error) {
	var w wireSample
	if err := json.Unmarshal(payload, &w); err != nil {
		return models.Sample{}, fmt.Errorf("%w: %v", ErrMalformedSample, err)
	}

	var missing []string
	if w.Voltage == nil {
		missing = append(missing, "voltage")
	}
	if w.Energy == nil {
		missing = append(missing, "energy")
	}
	if w.Steps == nil {
		missing = append(missing, "steps")
	}
	if w.Power == nil {
		missing = append(missing, "power")
	}
	if w.LED == nil {
		missing = append(missing, "led")
	}
	if len(missing) > 0 {
		return models.Sample{}, fmt.Errorf("%w: missing %s", ErrMalformedSample, strings.Join(missing, ", "))
	}

	var ledOn bool
	switch strings.ToUpper(strings.TrimSpace(*w.LED)) {
	case "ON":
		ledOn = true
	case "OFF":
		ledOn = false
	default:
		return models.Sample{}, fmt.Errorf("%w: led must be ON or OFF, got %q", ErrMalformedSample, *w.LED)
	}

	sample := models.Sample{
		Voltage:   *w.Voltage,
		RawEnergy: *w.Energy,
		Steps:     *w.Steps,
		Power:     *w.Power,
		LEDOn:     ledOn,
	}
	if w.Timestamp != nil {
		sample.Timestamp = parseTimestamp(*w.Timestamp)
	}
	return sample, nil
}

// parseTimestamp возвращает нулевое время для неизвестного формата: метка необязательна
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts
		}
	}
	return time.Time{}
}
