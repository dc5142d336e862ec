package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"piezo-stream/internal/logging"
	"piezo-stream/internal/metrics"
	"piezo-stream/internal/models"
)

// DefaultReconnectDelay фиксированная задержка переподключения
const DefaultReconnectDelay = 3 * time.Second

// ErrRetriesExhausted политика повторов вернула backoff.Stop
var ErrRetriesExhausted = errors.New("reconnect policy gave up")

// Ingester принимает показания (analytics.Store)
type Ingester interface {
	Ingest(sample models.Sample, receivedAt time.Time) models.Snapshot
}

// Subscriber получает уведомления о состоянии канала и новых снимках
type Subscriber interface {
	StateChanged(state models.ConnectionState)
	SampleIngested(snap models.Snapshot)
}

// Option настраивает Client
type Option func(*Client)

// WithDialer подменяет транспорт
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithRetryPolicy задает политику задержек переподключения
func WithRetryPolicy(b backoff.BackOff) Option {
	return func(c *Client) { c.retry = b }
}

// WithLogger задает логгер
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithClock задает источник времени приема
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client единственный владелец push-канала; все события обрабатываются в одной горутине Run
type Client struct {
	url        string
	dialer     Dialer
	retry      backoff.BackOff
	store      Ingester
	subscriber Subscriber
	log        *logging.Logger
	now        func() time.Time

	mu    sync.RWMutex
	state models.ConnectionState

	conn      Conn
	stopWatch func() bool
}

// NewClient создает клиента канала
func NewClient(url string, store Ingester, subscriber Subscriber, opts ...Option) *Client {
	c := &Client{
		url:        url,
		dialer:     WebsocketDialer{},
		retry:      backoff.NewConstantBackOff(DefaultReconnectDelay),
		store:      store,
		subscriber: subscriber,
		log:        logging.Discard(),
		now:        time.Now,
		state:      models.Disconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State возвращает текущее состояние канала
func (c *Client) State() models.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s models.ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run открывает канал и поддерживает его до отмены ctx
func (c *Client) Run(ctx context.Context) error {
	queue := []Event{{Kind: EventStart}}

	for {
		if len(queue) == 0 {
			queue = append(queue, c.read(ctx))
		}
		ev := queue[0]
		queue = queue[1:]

		next, effects := Transition(c.State(), ev)
		c.setState(next)

		for _, eff := range effects {
			follow, err := c.apply(ctx, eff)
			if err != nil || eff.Kind == EffectStop {
				return err
			}
			if follow != nil {
				queue = append(queue, *follow)
			}
		}
	}
}

// read блокируется до следующего кадра канала
func (c *Client) read(ctx context.Context) Event {
	if ctx.Err() != nil || c.conn == nil {
		return Event{Kind: EventShutdown}
	}

	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return Event{Kind: EventShutdown}
		}
		return Event{Kind: EventClosed, Err: err}
	}
	return Event{Kind: EventMessage, Payload: payload}
}

func (c *Client) apply(ctx context.Context, eff Effect) (*Event, error) {
	switch eff.Kind {
	case EffectDial:
		return c.dial(ctx), nil

	case EffectScheduleReconnect:
		return c.waitReconnect(ctx)

	case EffectIngest:
		c.ingest(eff.Payload)

	case EffectNotifyState:
		metrics.ChannelState.Set(float64(eff.State))
		if eff.State == models.Connected {
			c.retry.Reset()
			c.log.Info("Channel connected to %s", c.url)
		}
		if c.subscriber != nil {
			c.subscriber.StateChanged(eff.State)
		}

	case EffectCloseChannel:
		c.closeConn()
	}
	return nil, nil
}

func (c *Client) dial(ctx context.Context) *Event {
	c.closeConn()

	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		if ctx.Err() != nil {
			return &Event{Kind: EventShutdown}
		}
		return &Event{Kind: EventClosed, Err: err}
	}

	c.conn = conn
	// Отмена ctx разблокирует ReadMessage
	c.stopWatch = context.AfterFunc(ctx, func() { _ = conn.Close() })
	return &Event{Kind: EventOpened}
}

func (c *Client) waitReconnect(ctx context.Context) (*Event, error) {
	delay := c.retry.NextBackOff()
	if delay == backoff.Stop {
		c.log.Error("Reconnect policy stopped retrying %s", c.url)
		return nil, ErrRetriesExhausted
	}

	metrics.Reconnects.Inc()
	c.log.Warn("Channel %s closed, reconnecting in %s", c.url, delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return &Event{Kind: EventShutdown}, nil
	case <-timer.C:
		return &Event{Kind: EventReconnectDue}, nil
	}
}

func (c *Client) ingest(payload []byte) {
	sample, err := DecodeSample(payload)
	if err != nil {
		metrics.SamplesMalformed.Inc()
		c.log.Warn("Dropping frame: %v", err)
		return
	}

	snap := c.store.Ingest(sample, c.now())
	c.log.Debug("Sample #%d: %.3f V, %.3f mJ, total %.3f mJ",
		snap.SampleCount, snap.Latest.Voltage, snap.Latest.EnergyMilli, snap.CumulativeTotal)
	if c.subscriber != nil {
		c.subscriber.SampleIngested(snap)
	}
}

func (c *Client) closeConn() {
	if c.conn == nil {
		return
	}
	if c.stopWatch != nil {
		c.stopWatch()
		c.stopWatch = nil
	}
	_ = c.conn.Close()
	c.conn = nil
}
