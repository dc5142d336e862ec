// Package cache публикует снимки телеметрии в Redis для внешних слоев отображения
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-redis/redis/v8"

	"piezo-stream/internal/logging"
	"piezo-stream/internal/metrics"
	"piezo-stream/internal/models"
)

const (
	// KeyPrefix префикс всех ключей сессии
	KeyPrefix = "piezo:"
	// TTL время жизни ключей сессии; данные не переживают сессию
	TTL = 10 * time.Minute
	// publishTimeout ограничивает одну публикацию
	publishTimeout = time.Second
	// queueSize размер очереди публикаций
	queueSize = 256
)

// Keys имена ключей одной сессии
type Keys struct {
	Latest   string
	Samples  string
	Channel  string
	Snapshot string
}

// SessionKeys строит ключи для идентификатора сессии
func SessionKeys(session string) Keys {
	base := KeyPrefix + session
	return Keys{
		Latest:   base + ":latest",
		Samples:  base + ":samples",
		Channel:  base + ":channel",
		Snapshot: base + ":snapshots",
	}
}

type job struct {
	snap  *models.Snapshot
	state *models.ConnectionState
}

// Publisher отправляет снимки в Redis из отдельной горутины, не блокируя канал
type Publisher struct {
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
	keys   Keys
	keep   int64
	log    *logging.Logger
	queue  chan job
	wg     sync.WaitGroup
}

// Options параметры подключения публикатора
type Options struct {
	Addr     string
	Password string
	DB       int
	Session  string
	// Keep ограничивает список последних снимков
	Keep int
}

// NewPublisher создает подключение к Redis и проверяет его
func NewPublisher(ctx context.Context, opts Options, log *logging.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     4,
		MinIdleConns: 1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if log == nil {
		log = logging.Discard()
	}
	keep := opts.Keep
	if keep < 1 {
		keep = 1
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		client: client,
		ctx:    workerCtx,
		cancel: cancel,
		keys:   SessionKeys(opts.Session),
		keep:   int64(keep),
		log:    log,
		queue:  make(chan job, queueSize),
	}, nil
}

// Connect подключается к Redis, повторяя попытки по policy не более attempts раз.
// Отмена ctx прерывает ожидание между попытками.
func Connect(ctx context.Context, opts Options, policy backoff.BackOff, attempts uint, log *logging.Logger) (*Publisher, error) {
	if log == nil {
		log = logging.Discard()
	}
	operation := func() (*Publisher, error) {
		return NewPublisher(ctx, opts, log)
	}
	notify := func(err error, next time.Duration) {
		log.Warn("Redis connection attempt failed: %v, retrying in %s", err, next)
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(notify),
	)
}

// Start запускает горутину публикации
func (p *Publisher) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case j := <-p.queue:
				p.handle(j)
			case <-p.ctx.Done():
				return
			}
		}
	}()
}

// StateChanged реализует stream.Subscriber
func (p *Publisher) StateChanged(state models.ConnectionState) {
	p.enqueue(job{state: &state})
}

// SampleIngested реализует stream.Subscriber
func (p *Publisher) SampleIngested(snap models.Snapshot) {
	p.enqueue(job{snap: &snap})
}

func (p *Publisher) enqueue(j job) {
	select {
	case p.queue <- j:
	default:
		// Очередь переполнена, пропускаем
		metrics.PublishErrors.Inc()
	}
}

func (p *Publisher) handle(j job) {
	ctx, cancel := context.WithTimeout(p.ctx, publishTimeout)
	defer cancel()

	var err error
	if j.snap != nil {
		err = p.publishSnapshot(ctx, *j.snap)
	} else if j.state != nil {
		err = p.publishState(ctx, *j.state)
	}
	if err != nil {
		metrics.PublishErrors.Inc()
		p.log.Warn("Redis publish failed: %v", err)
	}
}

func (p *Publisher) publishSnapshot(ctx context.Context, snap models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.HSet(ctx, p.keys.Latest, map[string]interface{}{
		"voltage":           snap.Latest.Voltage,
		"energy_mj":         snap.Latest.EnergyMilli,
		"steps":             snap.Latest.Steps,
		"power_mw":          snap.Latest.PowerMilli,
		"led":               ledState(snap.LEDOn),
		"cumulative_energy": snap.CumulativeTotal,
		"sample_count":      snap.SampleCount,
		"received_at":       snap.ReceivedAt.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, p.keys.Latest, TTL)
	pipe.LPush(ctx, p.keys.Samples, data)
	pipe.LTrim(ctx, p.keys.Samples, 0, p.keep-1)
	pipe.Expire(ctx, p.keys.Samples, TTL)
	pipe.Publish(ctx, p.keys.Snapshot, data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

func (p *Publisher) publishState(ctx context.Context, state models.ConnectionState) error {
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, p.keys.Latest, "channel", state.String())
	pipe.Expire(ctx, p.keys.Latest, TTL)
	pipe.Publish(ctx, p.keys.Channel, state.String())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish channel state: %w", err)
	}
	return nil
}

func ledState(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// Ping проверяет соединение с Redis
func (p *Publisher) Ping() error {
	ctx, cancel := context.WithTimeout(p.ctx, publishTimeout)
	defer cancel()
	return p.client.Ping(ctx).Err()
}

// Close останавливает публикацию и закрывает соединение
func (p *Publisher) Close() error {
	p.cancel()
	p.wg.Wait()
	return p.client.Close()
}
