package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	DefaultExchange = "bookings"
	ExchangeKind    = "topic"
)

// Envelope wraps every published payload
type Envelope struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// NewEnvelope creates an envelope for routingKey stamped with the current time
func NewEnvelope(routingKey string, data interface{}) Envelope {
	return Envelope{
		Type:       routingKey,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher publishes JSON messages to a RabbitMQ topic exchange
type Publisher struct {
	exchange string
	logger   *logrus.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewPublisher dials the broker and declares the exchange
func NewPublisher(url, exchange string, logger *logrus.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, ExchangeKind, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}

	return &Publisher{
		exchange: exchange,
		logger:   logger,
		conn:     conn,
		channel:  ch,
	}, nil
}

// Publish sends payload wrapped in an Envelope under routingKey
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	body, err := json.Marshal(NewEnvelope(routingKey, payload))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"exchange":    p.exchange,
		"routing_key": routingKey,
		"bytes":       len(body),
	}).Debug("Event published")
	return nil
}

// Close closes the channel and the connection
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
