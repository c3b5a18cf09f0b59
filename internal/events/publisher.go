// Package events publishes ledger activity to a message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rongwang/envelope-wallet/internal/models"
)

// Publisher sends recorded transactions to external consumers
type Publisher interface {
	PublishTransactionRecorded(ctx context.Context, userID string, rec models.TransactionRecord) error
	Close() error
}

// TransactionRecordedMessage is the body of a transaction.recorded event
type TransactionRecordedMessage struct {
	Event       string                   `json:"event"`
	UserID      string                   `json:"userId"`
	Transaction models.TransactionRecord `json:"transaction"`
	Timestamp   time.Time                `json:"timestamp"`
}

const EventTransactionRecorded = "transaction.recorded"

func NewTransactionRecordedMessage(userID string, rec models.TransactionRecord) *TransactionRecordedMessage {
	return &TransactionRecordedMessage{
		Event:       EventTransactionRecorded,
		UserID:      userID,
		Transaction: rec,
		Timestamp:   time.Now().UTC(),
	}
}

func (m *TransactionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionRecordedMessageFromJSON(data []byte) (*TransactionRecordedMessage, error) {
	var msg TransactionRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// RabbitMQPublisher publishes persistent JSON messages to a topic exchange
type RabbitMQPublisher struct {
	mu         sync.Mutex
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	exchange   string
	routingKey string
}

func NewRabbitMQPublisher(url, exchange, routingKey string) (*RabbitMQPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &RabbitMQPublisher{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

func (p *RabbitMQPublisher) PublishTransactionRecorded(ctx context.Context, userID string, rec models.TransactionRecord) error {
	body, err := NewTransactionRecordedMessage(userID, rec).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			MessageId:    rec.ID,
			Type:         EventTransactionRecorded,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) PublishTransactionRecorded(context.Context, string, models.TransactionRecord) error {
	return nil
}

func (NopPublisher) Close() error { return nil }
