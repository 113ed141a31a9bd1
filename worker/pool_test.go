package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"

	"github.com/spaarke-dev/sdap-bff/cache"
	"github.com/spaarke-dev/sdap-bff/idempotency"
)

type fakeConsumer struct {
	mu        sync.Mutex
	declared  []string
	deliverCh map[string]chan amqp.Delivery
}

func newFakeConsumer() *fakeConsumer {
	return &fakeConsumer{deliverCh: make(map[string]chan amqp.Delivery)}
}

func (f *fakeConsumer) DeclareQueue(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared = append(f.declared, name)
	return nil
}

func (f *fakeConsumer) Consume(queueName, _ string) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan amqp.Delivery, 4)
	f.deliverCh[queueName] = ch
	return ch, nil
}

func (f *fakeConsumer) push(queueName string, d amqp.Delivery) {
	f.mu.Lock()
	ch := f.deliverCh[queueName]
	f.mu.Unlock()
	ch <- d
}

type fakeAcknowledger struct{ acks *int32 }

func (f fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	if f.acks != nil {
		atomic.AddInt32(f.acks, 1)
	}
	return nil
}
func (fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error   { return nil }
func (fakeAcknowledger) Reject(tag uint64, requeue bool) error           { return nil }

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return logrus.NewEntry(l)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestHandlerInvokedAndAcked(t *testing.T) {
	fc := newFakeConsumer()
	ledger := idempotency.New(cache.NewMemory(false))

	var processed []string
	var mu sync.Mutex
	spec := QueueSpec{
		Name:        "test.queue",
		ConsumerTag: "tag",
		Retention:   time.Minute,
		Handler: func(ctx context.Context, body []byte) error {
			mu.Lock()
			processed = append(processed, string(body))
			mu.Unlock()
			return nil
		},
	}

	pool := NewPool(fc, ledger, discardLogger(), spec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	var acks int32
	fc.push("test.queue", amqp.Delivery{MessageId: "m1", Body: []byte("hello"), Acknowledger: fakeAcknowledger{acks: &acks}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(processed) == 1
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&acks) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDuplicateDeliverySkipsHandler(t *testing.T) {
	fc := newFakeConsumer()
	ledger := idempotency.New(cache.NewMemory(false))
	require.NoError(t, ledger.Record(context.Background(), "test.queue:dup-1", time.Minute))

	var calls int
	var mu sync.Mutex
	spec := QueueSpec{
		Name:        "test.queue",
		ConsumerTag: "tag",
		Retention:   time.Minute,
		Handler: func(ctx context.Context, body []byte) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return nil
		},
	}

	pool := NewPool(fc, ledger, discardLogger(), spec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	fc.push("test.queue", amqp.Delivery{MessageId: "dup-1", Body: []byte("x"), Acknowledger: fakeAcknowledger{}})

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, calls)
}

func TestStopWaitsForConsumersToExit(t *testing.T) {
	fc := newFakeConsumer()
	ledger := idempotency.New(cache.NewMemory(false))
	spec := QueueSpec{
		Name:        "test.queue",
		ConsumerTag: "tag",
		Retention:   time.Minute,
		Handler:     func(ctx context.Context, body []byte) error { return nil },
	}

	pool := NewPool(fc, ledger, discardLogger(), spec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
