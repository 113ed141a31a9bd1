// Package queue provides AMQP publishing and consuming for the background
// workers that drain document/file event queues. Grounded on the teacher's
// RabbitMQService connection-lifecycle pattern, generalized from one
// hardcoded queue per service instance to any durable queue name.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Config carries the AMQP broker URL.
type Config struct {
	URL string
}

// Publisher publishes JSON messages to durable queues over one AMQP
// connection/channel pair.
type Publisher interface {
	Publish(queueName string, message any) error
	Close() error
}

// Service manages a connection and channel to a RabbitMQ server and
// implements Publisher.
type Service struct {
	connection AMQPConnection
	channel    AMQPChannel
	log        *logrus.Entry
}

// NewService dials cfg.URL and opens a channel.
func NewService(cfg Config, log *logrus.Entry) (*Service, error) {
	return NewServiceWithDialer(cfg, &RealAMQPDialer{}, log)
}

// NewServiceWithDialer allows injecting a custom dialer for testing.
func NewServiceWithDialer(cfg Config, dialer AMQPDialer, log *logrus.Entry) (*Service, error) {
	conn, err := dialer.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	return &Service{connection: conn, channel: ch, log: log}, nil
}

// DeclareQueue declares name as a durable queue, idempotent across calls.
func (s *Service) DeclareQueue(name string) error {
	_, err := s.channel.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", name, err)
	}
	return nil
}

// Publish marshals message to JSON and publishes it to queueName via the
// default exchange.
func (s *Service) Publish(queueName string, message any) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = s.channel.Publish("", queueName, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	if s.log != nil {
		s.log.WithField("queue", queueName).Debug("published message")
	}
	return nil
}

// Consume starts consuming queueName with explicit acknowledgement (autoAck
// false), so the worker can nack or ack based on idempotency/processing
// outcome.
func (s *Service) Consume(queueName, consumerTag string) (<-chan amqp.Delivery, error) {
	return s.channel.Consume(queueName, consumerTag, false, false, false, false, nil)
}

// Close closes the channel and connection.
func (s *Service) Close() error {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.connection != nil {
		s.connection.Close()
	}
	return nil
}
