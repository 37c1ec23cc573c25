// Package events publishes domain events (activity records) to RabbitMQ for
// downstream consumers such as notification workers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rabbitmq/amqp091-go"

	"project-hub-backend/pkg/models"
)

const ExchangeName = "project-hub.events"

// Publisher sends an event with a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

// RoutingKey is "activity.<entityType>.<action>".
func RoutingKey(a *models.Activity) string {
	entity := strings.ToLower(a.EntityType)
	if entity == "" {
		entity = "unknown"
	}
	action := strings.ToLower(a.Action)
	if action == "" {
		action = "unknown"
	}
	return "activity." + entity + "." + action
}

// AMQPPublisher publishes JSON messages to a durable topic exchange.
type AMQPPublisher struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		ExchangeName,
		"topic", // routing keys are matched by pattern
		true,    // durable
		false,   // auto-deleted
		false,   // internal
		false,   // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPPublisher{conn: conn, channel: ch}, nil
}

// IsConnected reports whether the connection is still open.
func (p *AMQPPublisher) IsConnected() bool {
	return p.conn != nil && p.channel != nil && !p.conn.IsClosed()
}

// Publish sends payload as a persistent JSON message. Channels are not safe
// for concurrent publishing, hence the lock.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.IsConnected() {
		return fmt.Errorf("publisher is not connected")
	}
	return p.channel.PublishWithContext(ctx,
		ExchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

func (NopPublisher) Close() error { return nil }
