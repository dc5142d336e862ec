package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piezo-stream/internal/metrics"
	"piezo-stream/internal/models"
)

func newTestPublisher(t *testing.T, keep int) (*Publisher, *miniredis.Miniredis) {
	t.Helper()
	m := miniredis.RunT(t)
	p, err := NewPublisher(context.Background(), Options{Addr: m.Addr(), Session: "s1", Keep: keep}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p, m
}

func TestSessionKeys(t *testing.T) {
	keys := SessionKeys("abc")

	if keys.Latest != "piezo:abc:latest" {
		t.Errorf("Unexpected latest key %q", keys.Latest)
	}
	if keys.Samples != "piezo:abc:samples" {
		t.Errorf("Unexpected samples key %q", keys.Samples)
	}
	if keys.Snapshot != "piezo:abc:snapshots" || keys.Channel != "piezo:abc:channel" {
		t.Errorf("Unexpected channel names %+v", keys)
	}
}

func TestNewPublisher_Unreachable(t *testing.T) {
	// Порт 1 закрыт, подключение должно завершиться ошибкой
	p, err := NewPublisher(context.Background(), Options{Addr: "127.0.0.1:1", Session: "test", Keep: 10}, nil)
	if err == nil {
		p.Close()
		t.Fatal("Expected error for unreachable Redis")
	}
}

func TestPublisher_EnqueueDropsWhenFull(t *testing.T) {
	p := &Publisher{queue: make(chan job, 1)}

	p.SampleIngested(models.Snapshot{SampleCount: 1})
	// Вторая публикация не блокирует вызывающего
	p.StateChanged(models.Connected)

	if len(p.queue) != 1 {
		t.Errorf("Expected one queued job, got %d", len(p.queue))
	}
	j := <-p.queue
	if j.snap == nil || j.snap.SampleCount != 1 {
		t.Errorf("Unexpected queued job %+v", j)
	}
}

func TestPublisher_SnapshotWritesLatestAndTrimsSamples(t *testing.T) {
	p, m := newTestPublisher(t, 3)
	keys := SessionKeys("s1")
	received := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		snap := models.Snapshot{
			CumulativeTotal: float64(i) * 2,
			Latest:          models.DerivedSample{Voltage: 3.3, EnergyMilli: 2, Steps: int64(i), PowerMilli: 500},
			LEDOn:           i%2 == 1,
			SampleCount:     uint64(i),
			ReceivedAt:      received.Add(time.Duration(i) * time.Second),
		}
		p.handle(job{snap: &snap})
	}

	items, err := m.List(keys.Samples)
	require.NoError(t, err)
	require.Len(t, items, 3)

	// Список хранит последние снимки, новые в начале
	for i, want := range []uint64{5, 4, 3} {
		var snap models.Snapshot
		require.NoError(t, json.Unmarshal([]byte(items[i]), &snap))
		assert.Equal(t, want, snap.SampleCount)
	}

	assert.Equal(t, "3.3", m.HGet(keys.Latest, "voltage"))
	assert.Equal(t, "2", m.HGet(keys.Latest, "energy_mj"))
	assert.Equal(t, "5", m.HGet(keys.Latest, "steps"))
	assert.Equal(t, "500", m.HGet(keys.Latest, "power_mw"))
	assert.Equal(t, "ON", m.HGet(keys.Latest, "led"))
	assert.Equal(t, "10", m.HGet(keys.Latest, "cumulative_energy"))
	assert.Equal(t, "5", m.HGet(keys.Latest, "sample_count"))
	assert.Equal(t, received.Add(5*time.Second).Format(time.RFC3339Nano), m.HGet(keys.Latest, "received_at"))

	assert.Equal(t, TTL, m.TTL(keys.Latest))
	assert.Equal(t, TTL, m.TTL(keys.Samples))
}

func TestPublisher_StateWritesChannelField(t *testing.T) {
	p, m := newTestPublisher(t, 3)
	keys := SessionKeys("s1")

	state := models.Connecting
	p.handle(job{state: &state})
	assert.Equal(t, "connecting", m.HGet(keys.Latest, "channel"))

	state = models.Connected
	p.handle(job{state: &state})
	assert.Equal(t, "connected", m.HGet(keys.Latest, "channel"))
	assert.Equal(t, TTL, m.TTL(keys.Latest))
}

func TestPublisher_PublishesOnChannels(t *testing.T) {
	p, _ := newTestPublisher(t, 3)
	keys := SessionKeys("s1")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := p.client.Subscribe(ctx, keys.Snapshot, keys.Channel)
	defer sub.Close()
	// Дожидаемся подтверждения обеих подписок
	for i := 0; i < 2; i++ {
		_, err := sub.Receive(ctx)
		require.NoError(t, err)
	}
	messages := sub.Channel()

	p.Start()
	p.StateChanged(models.Connected)
	p.SampleIngested(models.Snapshot{SampleCount: 7})

	got := map[string]string{}
	for len(got) < 2 {
		select {
		case msg := <-messages:
			got[msg.Channel] = msg.Payload
		case <-ctx.Done():
			t.Fatalf("Timed out waiting for publications, got %v", got)
		}
	}

	assert.Equal(t, "connected", got[keys.Channel])
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal([]byte(got[keys.Snapshot]), &snap))
	assert.Equal(t, uint64(7), snap.SampleCount)
}

func TestPublisher_ServerDownCountsError(t *testing.T) {
	m, err := miniredis.Run()
	require.NoError(t, err)
	p, err := NewPublisher(context.Background(), Options{Addr: m.Addr(), Session: "s1", Keep: 3}, nil)
	require.NoError(t, err)
	defer p.Close()
	m.Close()

	before := testutil.ToFloat64(metrics.PublishErrors)

	snap := models.Snapshot{SampleCount: 1}
	// Ошибка публикации не должна паниковать и блокировать
	p.handle(job{snap: &snap})
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PublishErrors))
	assert.Error(t, p.Ping())
}

func TestConnect_Succeeds(t *testing.T) {
	m := miniredis.RunT(t)

	p, err := Connect(context.Background(), Options{Addr: m.Addr(), Session: "s1", Keep: 1}, &backoff.ZeroBackOff{}, 3, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.NoError(t, p.Ping())
}

func TestConnect_GivesUpAfterAttempts(t *testing.T) {
	start := time.Now()
	_, err := Connect(context.Background(), Options{Addr: "127.0.0.1:1", Session: "s1"}, &backoff.ZeroBackOff{}, 2, nil)

	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConnect_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := Connect(ctx, Options{Addr: "127.0.0.1:1", Session: "s1"}, backoff.NewConstantBackOff(time.Hour), 5, nil)

	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
