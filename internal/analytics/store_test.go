package analytics

import (
	"sync"
	"testing"
	"time"

	"piezo-stream/internal/models"
)

func TestDerive_UnitConversion(t *testing.T) {
	d := Derive(models.Sample{Voltage: 2.5, RawEnergy: 0.002, Steps: 7, Power: 0.5})

	if d.EnergyMilli != 2.0 {
		t.Errorf("Expected energy 2.0 mJ, got %v", d.EnergyMilli)
	}
	if d.PowerMilli != 500.0 {
		t.Errorf("Expected power 500.0 mW, got %v", d.PowerMilli)
	}
	if d.Voltage != 2.5 || d.Steps != 7 {
		t.Errorf("Voltage and steps must pass through, got %+v", d)
	}
}

func TestStore_CumulativeEnergy(t *testing.T) {
	store := NewStore(ChartSize, SparklineSize)
	now := time.Now()

	energies := []float64{0.001, 0.0025, 0, 0.1, 0.0003}
	want := 0.0
	for _, e := range energies {
		want += e * 1000
		store.Ingest(models.Sample{RawEnergy: e}, now)
	}

	if got := store.CumulativeEnergy(); got != want {
		t.Errorf("Expected cumulative %v, got %v", want, got)
	}
	if store.Count() != uint64(len(energies)) {
		t.Errorf("Expected count %d, got %d", len(energies), store.Count())
	}
}

func TestStore_CumulativeNeverDecreases(t *testing.T) {
	store := NewStore(ChartSize, SparklineSize)
	prev := 0.0

	for i := 0; i < 500; i++ {
		// Счетчик устройства сбрасывается каждые 50 показаний
		snap := store.Ingest(models.Sample{RawEnergy: float64(i%50) * 0.0001}, time.Now())
		if snap.CumulativeTotal < prev {
			t.Fatalf("cumulative decreased at sample %d: %v < %v", i, snap.CumulativeTotal, prev)
		}
		prev = snap.CumulativeTotal
	}
}

func TestStore_ChartScenario(t *testing.T) {
	store := NewStore(ChartSize, SparklineSize)

	for i := 1; i <= 150; i++ {
		store.Ingest(models.Sample{Voltage: float64(i)}, time.Now())
	}

	chart := store.Chart(models.MetricVoltage)
	if len(chart) != 120 {
		t.Fatalf("Expected chart length 120, got %d", len(chart))
	}
	for i, v := range chart {
		if v != float64(31+i) {
			t.Fatalf("chart[%d] = %.0f, want %d", i, v, 31+i)
		}
	}

	spark := store.Sparkline(models.MetricVoltage)
	if len(spark) != 30 || spark[0] != 121 || spark[29] != 150 {
		t.Errorf("Expected sparkline 121..150, got %d values", len(spark))
	}
}

func TestStore_IngestPushesEveryMetric(t *testing.T) {
	store := NewStore(4, 2)
	received := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	snap := store.Ingest(models.Sample{Voltage: 1.5, RawEnergy: 0.025, Steps: 150, Power: 2.25, LEDOn: true}, received)

	if snap.Latest.EnergyMilli != 25 || snap.Latest.PowerMilli != 2250 {
		t.Errorf("Unexpected derived values %+v", snap.Latest)
	}
	if !snap.LEDOn || snap.SampleCount != 1 || !snap.ReceivedAt.Equal(received) {
		t.Errorf("Unexpected snapshot %+v", snap)
	}

	want := map[models.Metric]float64{
		models.MetricVoltage: 1.5,
		models.MetricEnergy:  25,
		models.MetricSteps:   150,
		models.MetricPower:   2250,
	}
	for m, v := range want {
		if got := store.Chart(m); len(got) != 1 || got[0] != v {
			t.Errorf("chart %s = %v, want [%v]", m, got, v)
		}
		if got := store.Sparkline(m); len(got) != 1 || got[0] != v {
			t.Errorf("sparkline %s = %v, want [%v]", m, got, v)
		}
	}
}

func TestStore_LabelsFollowChart(t *testing.T) {
	store := NewStore(3, 2)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	deviceTime := base.Add(time.Hour)

	store.Ingest(models.Sample{Voltage: 1}, base)
	snap := store.Ingest(models.Sample{Voltage: 2, Timestamp: deviceTime}, base.Add(time.Second))
	store.Ingest(models.Sample{Voltage: 3}, base.Add(2*time.Second))
	store.Ingest(models.Sample{Voltage: 4}, base.Add(3*time.Second))

	labels := store.ChartLabels()
	chart := store.Chart(models.MetricVoltage)
	if len(labels) != len(chart) {
		t.Fatalf("labels (%d) and chart (%d) out of step", len(labels), len(chart))
	}
	if !labels[0].Equal(base.Add(time.Second)) {
		t.Errorf("Expected receive time as label despite device timestamp, got %v", labels[0])
	}
	if !snap.DeviceTime.Equal(deviceTime) {
		t.Errorf("Expected device timestamp kept in snapshot, got %v", snap.DeviceTime)
	}
	if !labels[2].Equal(base.Add(3 * time.Second)) {
		t.Errorf("Expected receive time as label, got %v", labels[2])
	}
}

func TestStore_ClearChartKeepsTotals(t *testing.T) {
	store := NewStore(ChartSize, SparklineSize)
	for i := 0; i < 10; i++ {
		store.Ingest(models.Sample{Voltage: 1, RawEnergy: 0.001}, time.Now())
	}
	total := store.CumulativeEnergy()

	store.ClearChart()

	if n := len(store.Chart(models.MetricVoltage)); n != 0 {
		t.Errorf("Expected empty chart, got %d values", n)
	}
	if n := len(store.ChartLabels()); n != 0 {
		t.Errorf("Expected empty labels, got %d", n)
	}
	if n := len(store.Sparkline(models.MetricVoltage)); n != 10 {
		t.Errorf("Sparkline must survive clear, got %d values", n)
	}
	if store.CumulativeEnergy() != total {
		t.Errorf("Cumulative energy changed on clear: %v != %v", store.CumulativeEnergy(), total)
	}
}

func TestStore_LatestBeforeIngest(t *testing.T) {
	store := NewStore(ChartSize, SparklineSize)

	if _, ok := store.Latest(); ok {
		t.Error("Latest must report false before the first sample")
	}
	if store.Chart(models.Metric("unknown")) != nil {
		t.Error("Unknown metric must yield nil")
	}
}

func TestStore_Concurrency(t *testing.T) {
	store := NewStore(ChartSize, SparklineSize)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Ingest(models.Sample{RawEnergy: 0.001}, time.Now())
				_ = store.Chart(models.MetricEnergy)
			}
		}()
	}
	wg.Wait()

	if store.Count() != 400 {
		t.Errorf("Expected 400 samples, got %d", store.Count())
	}
	if n := len(store.Chart(models.MetricEnergy)); n != ChartSize {
		t.Errorf("Expected full chart, got %d", n)
	}
}

func BenchmarkStoreIngest(b *testing.B) {
	store := NewStore(ChartSize, SparklineSize)
	sample := models.Sample{Voltage: 2.5, RawEnergy: 0.002, Steps: 10, Power: 0.5}
	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Ingest(sample, now)
	}
}
