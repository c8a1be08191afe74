package portfolio

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"executiond/internal/execution"
	"executiond/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWaitForOrderSubmittedReturnsOnEvent(t *testing.T) {
	cmdBus := execution.NewCommandBus(0, nil)
	evBus := execution.NewEventBus(0, nil)
	mgr := NewManager(cmdBus, evBus, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	defer cancel()
	defer mgr.Stop()

	req := model.OrderRequest{TradeId: "t1", Ticker: "X", OrderType: model.OrderTypeMarket, Count: 1}

	go func() {
		time.Sleep(10 * time.Millisecond)
		evBus.Publish(ctx, model.NewOrderSubmitted("t1", "kalshi", "v1", req))
	}()

	vid, err := mgr.WaitForOrderSubmitted(context.Background(), "t1", time.Second)
	if err != nil {
		t.Fatalf("WaitForOrderSubmitted() error = %v", err)
	}
	if vid != "v1" {
		t.Errorf("vid = %q, want v1", vid)
	}
}

func TestWaitForOrderSubmittedTimesOut(t *testing.T) {
	cmdBus := execution.NewCommandBus(0, nil)
	evBus := execution.NewEventBus(0, nil)
	mgr := NewManager(cmdBus, evBus, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	defer cancel()
	defer mgr.Stop()

	_, err := mgr.WaitForOrderSubmitted(context.Background(), "never-submitted", 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestWaitForOrderSubmittedReturnsImmediatelyIfAlreadyObserved(t *testing.T) {
	cmdBus := execution.NewCommandBus(0, nil)
	evBus := execution.NewEventBus(0, nil)
	mgr := NewManager(cmdBus, evBus, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	defer cancel()
	defer mgr.Stop()

	req := model.OrderRequest{TradeId: "t1", Ticker: "X", OrderType: model.OrderTypeMarket, Count: 1}
	evBus.Publish(ctx, model.NewOrderSubmitted("t1", "kalshi", "v1", req))

	// give the consumer loop time to process before we ask
	time.Sleep(10 * time.Millisecond)

	vid, err := mgr.WaitForOrderSubmitted(context.Background(), "t1", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForOrderSubmitted() error = %v", err)
	}
	if vid != "v1" {
		t.Errorf("vid = %q, want v1", vid)
	}
}

func TestManagerTracksOrderAndFillUpdates(t *testing.T) {
	cmdBus := execution.NewCommandBus(0, nil)
	evBus := execution.NewEventBus(0, nil)
	mgr := NewManager(cmdBus, evBus, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	defer cancel()
	defer mgr.Stop()

	evBus.Publish(ctx, model.NewOrderUpdate("kalshi", "v1", "resting", 2))
	evBus.Publish(ctx, model.NewFillUpdate("kalshi", "v1", 1, 3))
	time.Sleep(20 * time.Millisecond)

	status, ok := mgr.OrderStatus("v1")
	if !ok || status != "resting" {
		t.Errorf("OrderStatus = (%q, %v), want (resting, true)", status, ok)
	}
	fillCount, ok := mgr.OrderFillCount("v1")
	if !ok || fillCount != 3 {
		t.Errorf("OrderFillCount = (%d, %v), want (3, true)", fillCount, ok)
	}
}

func TestManagerTracksLatestPositions(t *testing.T) {
	cmdBus := execution.NewCommandBus(0, nil)
	evBus := execution.NewEventBus(0, nil)
	mgr := NewManager(cmdBus, evBus, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	defer cancel()
	defer mgr.Stop()

	snap := model.NewPositionSnapshot("kalshi", []model.Position{{Ticker: "A", Position: 5}})
	evBus.Publish(ctx, snap)
	time.Sleep(20 * time.Millisecond)

	positions := mgr.LatestPositions()
	if len(positions) != 1 || positions[0].Ticker != "A" {
		t.Errorf("LatestPositions() = %+v, unexpected", positions)
	}
}
