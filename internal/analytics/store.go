package analytics

import (
	"sync"
	"time"

	"piezo-stream/internal/models"
)

const (
	// ChartSize емкость ряда графика (≈60 секунд при 2 показаниях в секунду)
	ChartSize = 120
	// SparklineSize емкость ряда спарклайна
	SparklineSize = 30
)

// Store хранит историю величин и суммарную энергию текущей сессии
type Store struct {
	mu         sync.RWMutex
	chart      map[models.Metric]*BoundedSeries[float64]
	sparklines map[models.Metric]*BoundedSeries[float64]
	labels     *BoundedSeries[time.Time]
	total      float64
	count      uint64
	latest     models.Snapshot
}

// NewStore создает хранилище с заданными емкостями рядов
func NewStore(chartSize, sparklineSize int) *Store {
	s := &Store{
		chart:      make(map[models.Metric]*BoundedSeries[float64], len(models.AllMetrics)),
		sparklines: make(map[models.Metric]*BoundedSeries[float64], len(models.AllMetrics)),
		labels:     NewBoundedSeries[time.Time](chartSize),
	}
	for _, m := range models.AllMetrics {
		s.chart[m] = NewBoundedSeries[float64](chartSize)
		s.sparklines[m] = NewBoundedSeries[float64](sparklineSize)
	}
	return s
}

// Derive переводит джоули и ватты в милли-единицы
func Derive(sample models.Sample) models.DerivedSample {
	return models.DerivedSample{
		Voltage:     sample.Voltage,
		EnergyMilli: sample.RawEnergy * 1000,
		Steps:       sample.Steps,
		PowerMilli:  sample.Power * 1000,
	}
}

// Ingest принимает одно показание и возвращает снимок для слоя отображения
func (s *Store) Ingest(sample models.Sample, receivedAt time.Time) models.Snapshot {
	d := Derive(sample)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total += d.EnergyMilli
	s.count++

	values := map[models.Metric]float64{
		models.MetricVoltage: d.Voltage,
		models.MetricEnergy:  d.EnergyMilli,
		models.MetricSteps:   float64(d.Steps),
		models.MetricPower:   d.PowerMilli,
	}
	for m, v := range values {
		s.chart[m].Push(v)
		s.sparklines[m].Push(v)
	}

	// Часовой пояс устройства неизвестен, поэтому ось времени строится по моменту приема
	s.labels.Push(receivedAt)

	s.latest = models.Snapshot{
		CumulativeTotal: s.total,
		Latest:          d,
		LEDOn:           sample.LEDOn,
		SampleCount:     s.count,
		ReceivedAt:      receivedAt,
		DeviceTime:      sample.Timestamp,
	}
	return s.latest
}

// Chart возвращает ряд графика для величины
func (s *Store) Chart(m models.Metric) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.chart[m]
	if !ok {
		return nil
	}
	return series.Values()
}

// Sparkline возвращает ряд спарклайна для величины
func (s *Store) Sparkline(m models.Metric) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.sparklines[m]
	if !ok {
		return nil
	}
	return series.Values()
}

// ChartLabels возвращает метки времени, выровненные с рядами графика
func (s *Store) ChartLabels() []time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.labels.Values()
}

// Latest возвращает последний снимок, если показания уже были
func (s *Store) Latest() (models.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.count > 0
}

// CumulativeEnergy возвращает суммарную энергию в мДж
func (s *Store) CumulativeEnergy() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Count возвращает количество принятых показаний
func (s *Store) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// ClearChart очищает ряды графика и метки; спарклайны и сумма не меняются
func (s *Store) ClearChart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, series := range s.chart {
		series.Reset()
	}
	s.labels.Reset()
}
