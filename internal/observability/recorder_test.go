package observability

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"executiond/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForRecords(t *testing.T, sink *InMemorySink, n int) []Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := sink.Snapshot(); len(snap) >= n {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d records, got %d", n, len(sink.Snapshot()))
	return nil
}

func TestRecorderRedactsSecretsAndProjectsAllowList(t *testing.T) {
	sink := NewInMemorySink()
	rec := NewRecorder(sink, 10, testLogger(), nil)
	defer rec.Close()

	price := 0.10
	msg := model.OrderRejected{
		TradeId: "t",
		Venue:   "kalshi",
		Request: model.OrderRequest{
			TradeId:           "t",
			Ticker:            "ABC",
			Side:              model.SideYes,
			Action:            model.ActionBuy,
			Count:             1,
			OrderType:         model.OrderTypeLimit,
			LimitPriceDollars: &price,
			ClientOrderId:     "t",
		},
		Message: "rejected",
		Payload: map[string]any{"api_key": "secret-value", "extra": "drop-me"},
	}

	rec.Record("event", "execution_engine", msg, "")
	records := waitForRecords(t, sink, 1)

	summary := records[0].Summary
	payload, ok := summary["payload"].(map[string]any)
	if !ok {
		t.Fatalf("summary[payload] = %v, want map", summary["payload"])
	}
	if payload["api_key"] != redactedPlaceholder {
		t.Errorf("payload.api_key = %v, want redacted", payload["api_key"])
	}

	request, ok := summary["request"].(map[string]any)
	if !ok {
		t.Fatalf("summary[request] = %v, want map", summary["request"])
	}
	if _, present := request["extra"]; present {
		t.Error("request.extra should have been dropped by the allow-list projection")
	}
	if request["ticker"] != "ABC" {
		t.Errorf("request.ticker = %v, want ABC", request["ticker"])
	}

	if records[0].CorrelationID != "t" {
		t.Errorf("CorrelationID = %q, want t", records[0].CorrelationID)
	}
	if records[0].LoggedAt.Before(records[0].OccurredAt) {
		t.Error("LoggedAt should never be before OccurredAt")
	}
}

func TestRecorderDropsOnOverflow(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	rec := NewRecorder(sink, 1, testLogger(), nil)
	defer func() {
		close(sink.release)
		rec.Close()
	}()

	// first record occupies the writer (blocked on sink.release), second
	// fills the size-1 queue, third must overflow and drop.
	rec.Record("event", "engine", model.NewOrderCanceled("kalshi", "v1", ""), "")
	time.Sleep(20 * time.Millisecond)
	rec.Record("event", "engine", model.NewOrderCanceled("kalshi", "v2", ""), "")
	rec.Record("event", "engine", model.NewOrderCanceled("kalshi", "v3", ""), "")

	time.Sleep(20 * time.Millisecond)
	status := rec.DegradedStatus()
	if status.DroppedCount < 1 {
		t.Errorf("DroppedCount = %d, want >= 1", status.DroppedCount)
	}
}

type blockingSink struct {
	release chan struct{}
	once    bool
}

func (s *blockingSink) Write(record Record) error {
	if !s.once {
		s.once = true
		<-s.release
	}
	return nil
}

func (s *blockingSink) Close() error { return nil }

func TestRecorderCloseIsIdempotent(t *testing.T) {
	sink := NewInMemorySink()
	rec := NewRecorder(sink, 10, testLogger(), nil)
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
