package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/Guizzs26/go-feed-sync/pkg/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	Exchange = "feedsync.topic"

	RoutingEntityInserted = "property.inserted"
	RoutingEntityUpdated  = "property.updated"
	RoutingRunPrefix      = "sync.run."
	RoutingImagesQueued   = "images.queued"

	confirmTimeout = 10 * time.Second
)

var (
	ErrBrokerClosed = errors.New("broker connection is closed")
	ErrNack         = errors.New("broker rejected the message")
)

// link is one AMQP connection with one channel bound to the sync exchange
type link struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

type linkOptions struct {
	confirms bool
	prefetch int
}

// openLink dials the broker, declares the exchange and applies the channel options.
// Nothing is left open when it fails.
func openLink(url string, opts linkOptions) (*link, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	l := &link{conn: conn, channel: ch}

	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		l.close()
		return nil, fmt.Errorf("failed to declare topic exchange %s: %w", Exchange, err)
	}
	if opts.prefetch > 0 {
		if err := ch.Qos(opts.prefetch, 0, false); err != nil {
			l.close()
			return nil, fmt.Errorf("failed to set QoS: %w", err)
		}
	}
	if opts.confirms {
		if err := ch.Confirm(false); err != nil {
			l.close()
			return nil, fmt.Errorf("failed to activate Publisher Confirms: %w", err)
		}
	}
	return l, nil
}

func (l *link) close() {
	if l.channel != nil {
		l.channel.Close()
	}
	if l.conn != nil {
		l.conn.Close()
	}
}

// EntityRoutingKey is the routing key for an entity change
func EntityRoutingKey(action models.Action) string {
	if action == models.ActionInsert {
		return RoutingEntityInserted
	}
	return RoutingEntityUpdated
}

// RunRoutingKey is the routing key for a finished run, e.g. sync.run.success
func RunRoutingKey(status models.RunStatus) string {
	return RoutingRunPrefix + string(status)
}

// message encodes payload as a persistent JSON publishing
func message(messageID string, payload any, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to serialize event %s: %w", messageID, err)
	}
	return amqp.Publishing{
		MessageId:    messageID,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Body:         body,
	}, nil
}

// RabbitMQClient publishes sync events and waits for the broker's confirm on each one
type RabbitMQClient struct {
	link      *link
	logger    *slog.Logger
	closeOnce sync.Once
	mu        sync.Mutex
	healthy   atomic.Bool
	stop      chan struct{}
}

// NewRabbitMQClient opens a confirming link and starts its health monitor
func NewRabbitMQClient(url string, l *slog.Logger) (*RabbitMQClient, error) {
	lk, err := openLink(url, linkOptions{confirms: true})
	if err != nil {
		return nil, err
	}

	client := &RabbitMQClient{
		link:   lk,
		logger: l,
		stop:   make(chan struct{}),
	}
	client.healthy.Store(true)
	metrics.HealthStatus.Set(1)

	go client.monitor(
		lk.conn.NotifyClose(make(chan *amqp.Error, 1)),
		lk.channel.NotifyClose(make(chan *amqp.Error, 1)),
	)

	l.Info("Connected to RabbitMQ, publisher confirms enabled", "exchange", Exchange)
	return client, nil
}

// monitor flips the client unhealthy on the first connection or channel loss
func (r *RabbitMQClient) monitor(connClosed, chanClosed <-chan *amqp.Error) {
	var cause *amqp.Error
	var what string
	select {
	case cause = <-connClosed:
		what = "connection"
	case cause = <-chanClosed:
		what = "channel"
	case <-r.stop:
		return
	}
	select {
	case <-r.stop:
		// closed by us
		return
	default:
	}
	r.healthy.Store(false)
	metrics.HealthStatus.Set(0)
	r.logger.Warn("RabbitMQ link lost", "part", what, "error", cause)
}

func (r *RabbitMQClient) PublishEntity(ctx context.Context, event models.EntityEvent) error {
	return r.publish(ctx, EntityRoutingKey(event.Action), event.EventID, event)
}

func (r *RabbitMQClient) PublishRun(ctx context.Context, report models.SyncRunReport) error {
	return r.publish(ctx, RunRoutingKey(report.Status), report.RunID, report)
}

func (r *RabbitMQClient) PublishImagesQueued(ctx context.Context, event models.ImagesQueuedEvent) error {
	return r.publish(ctx, RoutingImagesQueued, event.EventID, event)
}

func (r *RabbitMQClient) publish(ctx context.Context, routingKey, messageID string, payload any) error {
	if !r.IsHealthy() {
		return ErrBrokerClosed
	}
	msg, err := message(messageID, payload, time.Now())
	if err != nil {
		return err
	}

	// one publisher per channel at a time
	r.mu.Lock()
	confirm, err := r.link.channel.PublishWithDeferredConfirmWithContext(ctx, Exchange, routingKey, false, false, msg)
	r.mu.Unlock()
	if err != nil {
		r.logger.Error("Publish to exchange failed", "message_id", messageID, "routing_key", routingKey, "error", err)
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	timer := time.NewTimer(confirmTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-confirm.Done():
		if !confirm.Acked() {
			return fmt.Errorf("%s %s: %w", routingKey, messageID, ErrNack)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("publisher confirm for %s timed out after %s", messageID, confirmTimeout)
	}
}

// Close stops the monitor and closes the link. It is safe to call more than once.
func (r *RabbitMQClient) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("Terminating RabbitMQ client")
		close(r.stop)
		r.healthy.Store(false)
		r.link.close()
	})
	return nil
}

func (r *RabbitMQClient) IsHealthy() bool {
	return r.healthy.Load()
}
