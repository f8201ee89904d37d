package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/go-feed-sync/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

const imageQueue = "feedsync.images.queued"

// WakeHandler is notified when images were enqueued
type WakeHandler func(ctx context.Context, event models.ImagesQueuedEvent)

// ImageWakeConsumer listens for images.queued events on a durable queue
type ImageWakeConsumer struct {
	link    *link
	handler WakeHandler
	logger  *slog.Logger
}

func NewImageWakeConsumer(url string, handler WakeHandler, logger *slog.Logger) (*ImageWakeConsumer, error) {
	lk, err := openLink(url, linkOptions{prefetch: 1})
	if err != nil {
		return nil, err
	}
	return &ImageWakeConsumer{link: lk, handler: handler, logger: logger}, nil
}

// Listen consumes wake-up events until ctx ends or the channel closes
func (c *ImageWakeConsumer) Listen(ctx context.Context) error {
	ch := c.link.channel
	q, err := ch.QueueDeclare(imageQueue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", imageQueue, err)
	}
	if err := ch.QueueBind(q.Name, RoutingImagesQueued, Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", q.Name, err)
	}
	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Image wake consumer online", "queue", q.Name, "routing_key", RoutingImagesQueued)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", q.Name)
			}
			c.handle(ctx, d)
		}
	}
}

func (c *ImageWakeConsumer) handle(ctx context.Context, d amqp.Delivery) {
	event, err := decodeWake(d.Body)
	if err != nil {
		c.logger.Error("Dropping malformed wake event", "message_id", d.MessageId, "error", err)
		d.Nack(false, false)
		return
	}

	// the handler only signals; the queue itself lives in the store
	c.handler(ctx, event)

	if err := d.Ack(false); err != nil {
		c.logger.Error("Failed to Ack wake event", "event_id", event.EventID, "error", err)
	}
}

func decodeWake(body []byte) (models.ImagesQueuedEvent, error) {
	var event models.ImagesQueuedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return event, fmt.Errorf("decode images queued event: %w", err)
	}
	if event.EntityID == "" {
		return event, fmt.Errorf("images queued event %q has no entity id", event.EventID)
	}
	return event, nil
}

func (c *ImageWakeConsumer) Close() {
	c.logger.Info("Shutting down RabbitMQ consumer")
	c.link.close()
}
