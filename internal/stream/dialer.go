package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Conn открытый push-канал
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer открывает push-канал
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer открывает канал через gorilla/websocket
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
}

// Dial выполняет рукопожатие WebSocket
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = websocket.DefaultDialer.HandshakeTimeout
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel %s: %w", url, err)
	}
	return conn, nil
}
