package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultFlushTimeout = 5 * time.Second

var (
	ErrInvalidURL    = errors.New("nats server url cannot be empty")
	ErrConnectFailed = errors.New("failed to connect to nats server")
	ErrPublishFailed = errors.New("failed to publish event")
	ErrClosed        = errors.New("nats connection is closed")
)

// NATSPublisher publishes JSON-encoded events over a single NATS connection.
type NATSPublisher struct {
	mu   sync.RWMutex
	conn *nats.Conn
}

// ConnectNATS dials the server.
func ConnectNATS(url string, timeout time.Duration) (*NATSPublisher, error) {
	if url == "" {
		return nil, ErrInvalidURL
	}

	conn, err := nats.Connect(url,
		nats.Timeout(timeout),
		nats.Name("qperform-server"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish encodes the payload and flushes so the event has reached the
// server when this returns.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	conn, err := p.active()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, ctx.Err())
	}

	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrPublishFailed, e.Subject, err)
	}
	if err := conn.Publish(e.Subject, data); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, defaultFlushTimeout)
	defer cancel()
	if err := conn.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close terminates the connection. Safe to call twice.
func (p *NATSPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	if !p.conn.IsClosed() {
		p.conn.Close()
	}
	p.conn = nil
	return nil
}

func (p *NATSPublisher) active() (*nats.Conn, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.conn == nil || p.conn.IsClosed() {
		return nil, ErrClosed
	}
	return p.conn, nil
}
