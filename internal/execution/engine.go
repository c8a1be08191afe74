package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"executiond/internal/exchange"
	"executiond/pkg/model"
)

const (
	defaultPollInterval      = 500 * time.Millisecond
	defaultPositionsInterval = 2 * time.Second
)

// Engine consumes commands, drives a venue adapter, tracks live orders,
// polls for status/fill deltas, and emits normalized lifecycle events
// It runs three concurrent loops sharing a single tracked-order
// map guarded by a mutex.
type Engine struct {
	venue      model.Venue
	adapter    exchange.Adapter
	commandBus *CommandBus
	eventBus   *EventBus
	logger     *slog.Logger

	pollInterval      time.Duration
	positionsInterval time.Duration

	mu      sync.Mutex
	tracked map[model.VenueOrderId]*model.TrackedOrder

	wg sync.WaitGroup
}

// NewEngine builds an engine for a single venue/adapter pair. Zero interval
// values fall back to the defaults (poll 0.5s, positions 2s).
func NewEngine(venue model.Venue, adapter exchange.Adapter, commandBus *CommandBus, eventBus *EventBus, pollInterval, positionsInterval time.Duration, logger *slog.Logger) *Engine {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if positionsInterval <= 0 {
		positionsInterval = defaultPositionsInterval
	}
	return &Engine{
		venue:             venue,
		adapter:           adapter,
		commandBus:        commandBus,
		eventBus:          eventBus,
		pollInterval:      pollInterval,
		positionsInterval: positionsInterval,
		tracked:           make(map[model.VenueOrderId]*model.TrackedOrder),
		logger:            logger.With("component", "execution_engine"),
	}
}

// Start launches the three concurrent loops. Cancel ctx to begin shutdown,
// then call Stop to wait for all loops to exit.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(3)
	go e.runCommandConsumer(ctx)
	go e.runOrderPoller(ctx)
	go e.runPositionsPoller(ctx)
}

// Stop blocks until all three loops have exited.
func (e *Engine) Stop() {
	e.wg.Wait()
}

func (e *Engine) runCommandConsumer(ctx context.Context) {
	defer e.wg.Done()
	for {
		cmd, err := e.commandBus.Get(ctx)
		if err != nil {
			// Shutdown, not a failure: end the loop quietly rather than
			// reporting cancellation as an ExecutionError.
			return
		}
		e.handleCommand(ctx, cmd)
	}
}

func (e *Engine) handleCommand(ctx context.Context, cmd model.ExecutionCommand) {
	switch c := cmd.(type) {
	case model.SubmitOrder:
		e.handleSubmitOrder(ctx, c)
	case model.CancelOrder:
		e.handleCancelOrder(ctx, c)
	default:
		e.eventBus.Publish(ctx, model.NewExecutionError(nil, nil, fmt.Sprintf("unknown command type %T", cmd), false))
	}
}

func (e *Engine) handleSubmitOrder(ctx context.Context, c model.SubmitOrder) {
	vid, err := e.adapter.PlaceOrder(ctx, c.Request)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		e.eventBus.Publish(ctx, model.NewOrderRejected(c.Request.TradeId, c.Request.Venue, c.Request, err.Error(), rejectPayload(err)))
		return
	}

	e.mu.Lock()
	e.tracked[vid] = &model.TrackedOrder{Venue: c.Request.Venue, Status: "submitted", FillCount: 0}
	e.mu.Unlock()

	e.eventBus.Publish(ctx, model.NewOrderSubmitted(c.Request.TradeId, c.Request.Venue, vid, c.Request))
}

func rejectPayload(err error) map[string]any {
	var vr *exchange.VenueReject
	if errors.As(err, &vr) {
		return vr.Payload
	}
	return nil
}

func (e *Engine) handleCancelOrder(ctx context.Context, c model.CancelOrder) {
	err := e.adapter.CancelOrder(ctx, c.VenueOrderId)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		vid := c.VenueOrderId
		e.eventBus.Publish(ctx, model.NewExecutionError(nil, &vid, err.Error(), true))
		return
	}
	// The tracked map is not mutated here; removal happens when a
	// subsequent poll observes terminal status.
	e.eventBus.Publish(ctx, model.NewOrderCanceled(e.trackedVenue(c.VenueOrderId), c.VenueOrderId, c.Reason))
}

func (e *Engine) trackedVenue(vid model.VenueOrderId) model.Venue {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.tracked[vid]; ok {
		return t.Venue
	}
	return e.venue
}

func (e *Engine) runOrderPoller(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollTrackedOrders(ctx)
		}
	}
}

func (e *Engine) pollTrackedOrders(ctx context.Context) {
	e.mu.Lock()
	vids := make([]model.VenueOrderId, 0, len(e.tracked))
	for vid := range e.tracked {
		vids = append(vids, vid)
	}
	e.mu.Unlock()

	for _, vid := range vids {
		status, fillCount, err := e.adapter.GetOrderStatus(ctx, vid)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			vidCopy := vid
			e.eventBus.Publish(ctx, model.NewExecutionError(nil, &vidCopy, err.Error(), true))
			continue
		}

		e.mu.Lock()
		tracked, ok := e.tracked[vid]
		if !ok {
			e.mu.Unlock()
			continue
		}
		prevStatus, prevFill := tracked.Status, tracked.FillCount
		changed := prevStatus != status || prevFill != fillCount
		if changed {
			tracked.Status = status
			tracked.FillCount = fillCount
		}
		venue := tracked.Venue
		if model.IsTerminal(status) {
			delete(e.tracked, vid)
		}
		e.mu.Unlock()

		if !changed {
			continue
		}
		e.eventBus.Publish(ctx, model.NewOrderUpdate(venue, vid, status, fillCount))
		if fillCount > prevFill {
			e.eventBus.Publish(ctx, model.NewFillUpdate(venue, vid, fillCount-prevFill, fillCount))
		}
	}
}

func (e *Engine) runPositionsPoller(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.positionsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := e.adapter.GetPositionsSnapshot(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				e.eventBus.Publish(ctx, model.NewExecutionError(nil, nil, err.Error(), true))
				continue
			}
			e.eventBus.Publish(ctx, snap)
		}
	}
}
