// Package portfolio implements the client-facing submit/cancel API and the
// local, event-driven view of order and position state.
package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"executiond/internal/execution"
	"executiond/pkg/model"
)

// Manager is the portfolio layer's handle onto the execution core: it puts
// commands on the command bus and maintains a local view built from the
// event bus it subscribes to at construction.
type Manager struct {
	commandBus *execution.CommandBus
	eventBus   *execution.EventBus
	sub        chan model.ExecutionEvent
	logger     *slog.Logger

	mu                sync.Mutex
	venueOrderByTrade map[model.TradeId]model.VenueOrderId
	orderStatus       map[model.VenueOrderId]string
	orderFillCount    map[model.VenueOrderId]int
	latestPositions   []model.Position
	awaiters          map[model.TradeId][]chan model.VenueOrderId

	wg sync.WaitGroup
}

// NewManager subscribes to eventBus and returns a ready Manager. Call Start
// to begin the event-consumer loop.
func NewManager(commandBus *execution.CommandBus, eventBus *execution.EventBus, logger *slog.Logger) *Manager {
	return &Manager{
		commandBus:        commandBus,
		eventBus:          eventBus,
		sub:               eventBus.Subscribe(),
		logger:            logger.With("component", "portfolio_manager"),
		venueOrderByTrade: make(map[model.TradeId]model.VenueOrderId),
		orderStatus:       make(map[model.VenueOrderId]string),
		orderFillCount:    make(map[model.VenueOrderId]int),
		awaiters:          make(map[model.TradeId][]chan model.VenueOrderId),
	}
}

// Start launches the event-consumer loop. Cancel ctx to begin shutdown, then
// call Stop to wait for the loop to exit.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop blocks until the event-consumer loop has exited.
func (m *Manager) Stop() {
	m.wg.Wait()
}

// SubmitOrder puts SubmitOrder on the command bus. It registers no awaiter
// for req.TradeId; WaitForOrderSubmitted registers its own, and returns at
// once if the trade's OrderSubmitted has already been observed.
func (m *Manager) SubmitOrder(ctx context.Context, req model.OrderRequest) error {
	return m.commandBus.Put(ctx, model.SubmitOrder{Request: req})
}

// CancelOrder puts CancelOrder on the command bus.
func (m *Manager) CancelOrder(ctx context.Context, vid model.VenueOrderId, reason string) error {
	return m.commandBus.Put(ctx, model.CancelOrder{VenueOrderId: vid, Reason: reason})
}

// WaitForOrderSubmitted suspends until an OrderSubmitted event is observed
// for tradeID, then returns its venue order id; fails with a timeout
// otherwise.
func (m *Manager) WaitForOrderSubmitted(ctx context.Context, tradeID model.TradeId, timeout time.Duration) (model.VenueOrderId, error) {
	m.mu.Lock()
	if vid, ok := m.venueOrderByTrade[tradeID]; ok {
		m.mu.Unlock()
		return vid, nil
	}
	ch := make(chan model.VenueOrderId, 1)
	m.awaiters[tradeID] = append(m.awaiters[tradeID], ch)
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case vid := <-ch:
		return vid, nil
	case <-timer.C:
		return "", fmt.Errorf("timed out after %s waiting for order submission of trade %q", timeout, tradeID)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// OrderStatus returns the last observed status for vid.
func (m *Manager) OrderStatus(vid model.VenueOrderId) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.orderStatus[vid]
	return status, ok
}

// OrderFillCount returns the last observed cumulative fill count for vid.
func (m *Manager) OrderFillCount(vid model.VenueOrderId) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count, ok := m.orderFillCount[vid]
	return count, ok
}

// LatestPositions returns the most recently observed position snapshot.
func (m *Manager) LatestPositions() []model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Position, len(m.latestPositions))
	copy(out, m.latestPositions)
	return out
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case ev, ok := <-m.sub:
			if !ok {
				return
			}
			m.handleEvent(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) handleEvent(ev model.ExecutionEvent) {
	switch e := ev.(type) {
	case model.OrderSubmitted:
		m.mu.Lock()
		m.venueOrderByTrade[e.TradeId] = e.VenueOrderId
		m.orderStatus[e.VenueOrderId] = "submitted"
		m.orderFillCount[e.VenueOrderId] = 0
		waiting := m.awaiters[e.TradeId]
		delete(m.awaiters, e.TradeId)
		m.mu.Unlock()
		for _, ch := range waiting {
			ch <- e.VenueOrderId
		}
	case model.OrderUpdate:
		m.mu.Lock()
		m.orderStatus[e.VenueOrderId] = e.Status
		m.orderFillCount[e.VenueOrderId] = e.FillCount
		m.mu.Unlock()
	case model.FillUpdate:
		m.mu.Lock()
		m.orderFillCount[e.VenueOrderId] = e.FilledTotal
		m.mu.Unlock()
	case model.PositionSnapshot:
		m.mu.Lock()
		m.latestPositions = e.Positions
		m.mu.Unlock()
	default:
		// Observed but doesn't update local state (e.g. OrderRejected,
		// OrderCanceled, ExecutionError).
	}
}
