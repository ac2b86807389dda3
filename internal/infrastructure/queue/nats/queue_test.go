package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/receipt-splitter/internal/core/domain"
)

func TestJobRoundTrip(t *testing.T) {
	at := time.Date(2024, 1, 15, 9, 30, 0, 0, time.FixedZone("CST", 8*3600))
	payload, err := encodeJob("/in/batch.pdf", at)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if raw["enqueued_at"] != "2024-01-15T01:30:00Z" {
		t.Fatalf("expected UTC timestamp, got %v", raw["enqueued_at"])
	}

	path, err := decodeJob(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if path != "/in/batch.pdf" {
		t.Fatalf("expected /in/batch.pdf, got %s", path)
	}
}

func TestDecodeJobAcceptsBarePath(t *testing.T) {
	path, err := decodeJob([]byte("  /in/manual.pdf\n"))
	if err != nil || path != "/in/manual.pdf" {
		t.Fatalf("expected bare path, got %q, %v", path, err)
	}
}

func TestDecodeJobRejectsBadMessages(t *testing.T) {
	for _, data := range []string{"", "   ", "{not json", `{"enqueued_at":"2024-01-15T00:00:00Z"}`} {
		if _, err := decodeJob([]byte(data)); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input for %q, got %v", data, err)
		}
	}
	if _, err := encodeJob(" ", time.Now()); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty path, got %v", err)
	}
}

func TestClassifyNATSError(t *testing.T) {
	if c := classifyNATSError(fmt.Errorf("nats publish: %w", nats.ErrNoServers)); !c.Retryable || !c.RecordFailure {
		t.Fatalf("expected no servers to be retryable, got %+v", c)
	}
	if c := classifyNATSError(gobreaker.ErrOpenState); !c.Retryable {
		t.Fatalf("expected open breaker to be retryable, got %+v", c)
	}
	if c := classifyNATSError(nats.ErrMaxPayload); c.Retryable || c.RecordFailure {
		t.Fatalf("expected max payload to be permanent and unrecorded, got %+v", c)
	}
	if c := classifyNATSError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("expected cancellation to be ignored, got %+v", c)
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	err := wrapTemporaryIfNeeded("nats.enqueue", nats.ErrTimeout)
	if !domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, nats.ErrTimeout) {
		t.Fatalf("expected temporary wrap keeping cause, got %v", err)
	}
	permanent := errors.New("permission denied")
	if got := wrapTemporaryIfNeeded("nats.enqueue", permanent); got != permanent {
		t.Fatalf("expected permanent error unchanged, got %v", got)
	}
	if wrapTemporaryIfNeeded("nats.enqueue", nil) != nil {
		t.Fatalf("expected nil for nil")
	}
}
