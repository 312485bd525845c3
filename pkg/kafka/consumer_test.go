package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	mu        sync.Mutex
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type funcHandler struct {
	topic string
	calls int
	fn    func([]byte) error
}

func (h *funcHandler) Topic() string { return h.topic }

func (h *funcHandler) Handle(_ context.Context, b []byte) error {
	h.calls++
	return h.fn(b)
}

func newTestConsumer(t *testing.T, h *funcHandler, opts ...ConsumerOption) (*Consumer, *fakeReader) {
	t.Helper()
	opts = append([]ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	}, opts...)
	c, err := NewConsumer(opts...)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	c.RegisterHandler(h)
	r := &fakeReader{}
	c.readers[h.topic] = r
	return c, r
}

func TestConsumerRequiresBrokers(t *testing.T) {
	if _, err := NewConsumer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestConsumerStartWithoutHandlers(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	if err := c.Start(); err == nil {
		t.Fatalf("expected error with no handlers")
	}
}

func TestConsumerProcessSuccessCommits(t *testing.T) {
	h := &funcHandler{topic: "replay.control", fn: func([]byte) error { return nil }}
	c, r := newTestConsumer(t, h)

	c.process(kafka.Message{Topic: "replay.control", Offset: 7, Value: []byte(`{}`)})
	if h.calls != 1 {
		t.Fatalf("handler calls = %d", h.calls)
	}
	if len(r.committed) != 1 || r.committed[0] != 7 {
		t.Fatalf("committed = %v", r.committed)
	}
}

func TestConsumerRetriesThenDLQ(t *testing.T) {
	h := &funcHandler{topic: "replay.control", fn: func([]byte) error { return errors.New("boom") }}
	c, r := newTestConsumer(t, h, WithConsumerDLQ("replay.control.dlq"))
	w := &fakeWriter{}
	c.dlq = w

	c.process(kafka.Message{Topic: "replay.control", Offset: 3, Value: []byte(`x`)})
	if h.calls != 3 {
		t.Fatalf("expected 1 try + 2 retries, got %d", h.calls)
	}
	if len(w.msgs) != 1 || w.msgs[0].Topic != "replay.control.dlq" {
		t.Fatalf("dlq messages = %+v", w.msgs)
	}
	if len(r.committed) != 1 {
		t.Fatalf("message parked in dlq must be committed")
	}
}

func TestConsumerPermanentErrorSkipsRetry(t *testing.T) {
	h := &funcHandler{topic: "t", fn: func([]byte) error { return Permanent(errors.New("bad json")) }}
	c, r := newTestConsumer(t, h)

	c.process(kafka.Message{Topic: "t", Offset: 1, Value: []byte(`{`)})
	if h.calls != 1 {
		t.Fatalf("permanent error retried %d times", h.calls)
	}
	if len(r.committed) != 0 {
		t.Fatalf("failed message without dlq must not be committed")
	}
}

func TestConsumerHandlerPanicRecovered(t *testing.T) {
	h := &funcHandler{topic: "t", fn: func([]byte) error { panic("oops") }}
	c, _ := newTestConsumer(t, h, WithConsumerRetry(0, time.Millisecond, time.Millisecond))
	c.process(kafka.Message{Topic: "t", Value: []byte(`{}`)})
	if h.calls != 1 {
		t.Fatalf("calls = %d", h.calls)
	}
}

func TestConsumerHookRejects(t *testing.T) {
	h := &funcHandler{topic: "t", fn: func([]byte) error { return nil }}
	c, _ := newTestConsumer(t, h)
	var onErr int
	c.WithConsumerHook(NewHookChain(RejectEmptyHook(), HookFuncs{
		Err: func(context.Context, string, kafka.Message, []byte, error) { onErr++ },
	}))

	c.process(kafka.Message{Topic: "t"})
	if h.calls != 0 {
		t.Fatalf("handler must not run for empty payload")
	}
	if onErr != 1 {
		t.Fatalf("OnError calls = %d", onErr)
	}
}

func TestConsumerStop(t *testing.T) {
	h := &funcHandler{topic: "t", fn: func([]byte) error { return nil }}
	c, r := newTestConsumer(t, h)
	c.startWorkers()
	c.readWG.Add(1)
	go c.read("t", r)

	c.msgChan <- kafka.Message{Topic: "t", Offset: 9, Value: []byte(`{}`)}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if h.calls != 1 {
		t.Fatalf("queued message not drained, calls = %d", h.calls)
	}
}

func TestBackoffWithJitter(t *testing.T) {
	min, max := 10*time.Millisecond, 80*time.Millisecond
	for attempt := 1; attempt <= 6; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		if d <= 0 || d > max {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}
