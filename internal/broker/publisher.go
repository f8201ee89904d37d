package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/Guizzs26/go-feed-sync/pkg/infra"
	"github.com/Guizzs26/go-feed-sync/pkg/metrics"
)

var errReconnectPending = errors.New("broker offline, reconnect scheduled")

// Publisher keeps a RabbitMQ client alive across connection losses. Reconnects are
// attempted lazily on publish and spaced by a jittered backoff, so an offline broker
// never stalls a sync run.
type Publisher struct {
	url      string
	logger   *slog.Logger
	backoff  *infra.Backoff
	mu       sync.Mutex
	client   *RabbitMQClient
	nextDial time.Time
}

func NewPublisher(url string, logger *slog.Logger) *Publisher {
	return &Publisher{
		url:     url,
		logger:  logger,
		backoff: infra.NewBackoff(1*time.Second, 60*time.Second, 2.0),
	}
}

func (p *Publisher) PublishEntity(ctx context.Context, event models.EntityEvent) error {
	c, err := p.current()
	if err != nil {
		return err
	}
	return c.PublishEntity(ctx, event)
}

func (p *Publisher) PublishRun(ctx context.Context, report models.SyncRunReport) error {
	c, err := p.current()
	if err != nil {
		return err
	}
	return c.PublishRun(ctx, report)
}

func (p *Publisher) PublishImagesQueued(ctx context.Context, event models.ImagesQueuedEvent) error {
	c, err := p.current()
	if err != nil {
		return err
	}
	return c.PublishImagesQueued(ctx, event)
}

// IsHealthy reports whether the current link is up
func (p *Publisher) IsHealthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil && p.client.IsHealthy()
}

func (p *Publisher) current() (*RabbitMQClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil && p.client.IsHealthy() {
		return p.client, nil
	}
	if time.Now().Before(p.nextDial) {
		return nil, errReconnectPending
	}
	if p.client != nil {
		p.client.Close()
		p.client = nil
		metrics.BrokerReconnections.Inc()
	}

	c, err := NewRabbitMQClient(p.url, p.logger)
	if err != nil {
		wait := p.backoff.Next()
		p.nextDial = time.Now().Add(wait)
		p.logger.Error("RabbitMQ link failure, retrying later", "wait", wait, "attempts", p.backoff.Attempts(), "error", err)
		return nil, err
	}
	p.backoff.Reset()
	p.client = c
	return c, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
