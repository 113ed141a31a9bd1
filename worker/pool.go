// Package worker runs background consumers that drain AMQP queues carrying
// document/file lifecycle events. Adapted from the teacher's polling
// Queue/JobProcessor pool: the dequeue-with-timeout loop is replaced by a
// delivery channel from queue.Service.Consume, since AMQP pushes rather than
// being polled, but the pool/worker/stop-channel lifecycle shape is kept.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/spaarke-dev/sdap-bff/idempotency"
	"github.com/spaarke-dev/sdap-bff/queue"
)

// Consumer abstracts the AMQP operations a worker needs, satisfied by
// *queue.Service.
type Consumer interface {
	DeclareQueue(name string) error
	Consume(queueName, consumerTag string) (<-chan amqp.Delivery, error)
}

// Handler processes one delivery's body. A returned error nacks the
// delivery for requeue; nil acks it.
type Handler func(ctx context.Context, body []byte) error

// QueueSpec binds a queue name to the handler that processes its deliveries
// and the idempotency retention window for messages drained from it.
type QueueSpec struct {
	Name        string
	ConsumerTag string
	Handler     Handler
	Retention   time.Duration
}

// Pool runs one goroutine per QueueSpec, each consuming its queue and
// checking the idempotency ledger before invoking the handler.
type Pool struct {
	consumer Consumer
	ledger   *idempotency.Ledger
	specs    []QueueSpec
	log      *logrus.Entry

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewPool builds a Pool draining specs from consumer, deduplicating via
// ledger.
func NewPool(consumer Consumer, ledger *idempotency.Ledger, log *logrus.Entry, specs ...QueueSpec) *Pool {
	return &Pool{
		consumer: consumer,
		ledger:   ledger,
		specs:    specs,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Start declares every queue and launches one consuming goroutine per spec.
// Declaration failures are logged and that spec is skipped rather than
// aborting the whole pool, so one broker-side misconfiguration doesn't take
// down unrelated queues.
func (p *Pool) Start(ctx context.Context) {
	for _, spec := range p.specs {
		spec := spec
		if err := p.consumer.DeclareQueue(spec.Name); err != nil {
			p.log.WithError(err).WithField("queue", spec.Name).Error("failed to declare queue, skipping consumer")
			continue
		}

		deliveries, err := p.consumer.Consume(spec.Name, spec.ConsumerTag)
		if err != nil {
			p.log.WithError(err).WithField("queue", spec.Name).Error("failed to start consuming, skipping")
			continue
		}

		p.wg.Add(1)
		go p.run(ctx, spec, deliveries)
	}
}

// Stop signals all consumers to drain and waits for them to exit.
func (p *Pool) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, spec QueueSpec, deliveries <-chan amqp.Delivery) {
	defer p.wg.Done()
	entry := p.log.WithField("queue", spec.Name)
	entry.Info("consumer started")

	for {
		select {
		case <-p.stopChan:
			entry.Info("consumer stopped")
			return
		case d, ok := <-deliveries:
			if !ok {
				entry.Warn("delivery channel closed by broker")
				return
			}
			p.process(ctx, spec, entry, d)
		}
	}
}

func (p *Pool) process(ctx context.Context, spec QueueSpec, entry *logrus.Entry, d amqp.Delivery) {
	key := spec.Name + ":" + d.MessageId
	if d.MessageId != "" && p.ledger.Seen(ctx, key) {
		entry.WithField("messageId", d.MessageId).Debug("duplicate delivery, acking without reprocessing")
		d.Ack(false)
		return
	}

	if err := spec.Handler(ctx, d.Body); err != nil {
		entry.WithError(err).WithField("messageId", d.MessageId).Warn("handler failed, nacking for requeue")
		d.Nack(false, true)
		return
	}

	if d.MessageId != "" {
		if err := p.ledger.Record(ctx, key, spec.Retention); err != nil {
			entry.WithError(err).Warn("failed to record idempotency key")
		}
	}
	d.Ack(false)
}
