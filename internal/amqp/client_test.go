package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{70, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"closed connection", errors.New("connection closed"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"amqp closed", fmt.Errorf("publish: %w", amqp091.ErrClosed), true},
		{"other error", errors.New("some other error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}

	if client.isCircuitOpen() {
		t.Fatal("circuit breaker should be closed initially")
	}

	for i := 0; i < maxFailures; i++ {
		client.recordFailure()
	}
	if !client.isCircuitOpen() {
		t.Fatal("circuit breaker should open after max failures")
	}

	client.lastFailure = time.Now().Add(-openTimeout - time.Second)
	if client.isCircuitOpen() {
		t.Fatal("circuit should go half-open after the timeout")
	}
	if atomic.LoadInt32(&client.state) != StateHalfOpen {
		t.Fatal("expected half-open state")
	}

	client.recordFailure()
	if atomic.LoadInt32(&client.state) != StateOpen {
		t.Fatal("a failure while half-open should reopen the circuit")
	}

	client.recordSuccess()
	if client.isCircuitOpen() || atomic.LoadInt64(&client.failureCount) != 0 {
		t.Fatal("success should reset the breaker")
	}
}

func TestClient_PublishGuards(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}
	msg := NewExpenseChangedMessage("expenses-alice", OpCreate, "id-1", 1)

	atomic.StoreInt32(&client.state, StateOpen)
	client.lastFailure = time.Now()
	if err := client.PublishExpenseChanged(context.Background(), msg); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	client.recordSuccess()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.PublishExpenseChanged(ctx, msg); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExpenseChangedMessage_JSON(t *testing.T) {
	msg := &ExpenseChangedMessage{
		OwnerKey:    "expenses-alice",
		Operation:   OpUpdate,
		ExpenseID:   "id-1",
		RecordCount: 3,
		Timestamp:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	for _, field := range []string{`"owner_key":"expenses-alice"`, `"operation":"update"`, `"record_count":3`} {
		if !strings.Contains(string(body), field) {
			t.Fatalf("expected %s in %s", field, body)
		}
	}

	parsed, err := ExpenseChangedMessageFromJSON(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *parsed != *msg {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}

	if _, err := ExpenseChangedMessageFromJSON([]byte(`{"operation":"create"}`)); err == nil {
		t.Fatal("expected error for missing owner key")
	}
	if _, err := ExpenseChangedMessageFromJSON([]byte(`{"owner_key": 1}`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }
func (f *fakeAck) Nack(_ bool, requeue bool) error {
	f.nacked, f.requeued = true, requeue
	return nil
}

func TestSettle(t *testing.T) {
	ctx := context.Background()
	good := []byte(`{"owner_key":"expenses","operation":"delete","record_count":0}`)

	ack := &fakeAck{}
	settle(ctx, good, ack, func(context.Context, *ExpenseChangedMessage) error { return nil })
	if !ack.acked || ack.nacked {
		t.Fatalf("expected ack, got %+v", ack)
	}

	ack = &fakeAck{}
	settle(ctx, good, ack, func(context.Context, *ExpenseChangedMessage) error { return errors.New("sheets down") })
	if !ack.nacked || !ack.requeued {
		t.Fatalf("expected requeue, got %+v", ack)
	}

	ack = &fakeAck{}
	settle(ctx, good, ack, func(context.Context, *ExpenseChangedMessage) error {
		return fmt.Errorf("bad owner: %w", ErrDiscard)
	})
	if !ack.nacked || ack.requeued {
		t.Fatalf("expected drop without requeue, got %+v", ack)
	}

	ack = &fakeAck{}
	called := false
	settle(ctx, []byte(`garbage`), ack, func(context.Context, *ExpenseChangedMessage) error {
		called = true
		return nil
	})
	if called || !ack.nacked || ack.requeued {
		t.Fatalf("expected drop without handler call, got %+v called=%v", ack, called)
	}
}
