// Package execution implements the in-process command/event buses and the
// execution engine that together carry typed messages between a portfolio
// manager and a venue adapter.
package execution

import (
	"context"
	"sync"

	"executiond/internal/observability"
	"executiond/pkg/model"
)

const (
	defaultCommandBufferSize    = 1024
	defaultSubscriberBufferSize = 256
)

// CommandBus is an unbounded-in-practice FIFO: single producer convention
// (the portfolio manager), single consumer (the engine's command loop).
// Go channels already serialize delivery order, so no separate task_done
// bookkeeping is needed the way the Python original tracks it.
type CommandBus struct {
	queue    chan model.ExecutionCommand
	recorder *observability.Recorder
}

// NewCommandBus builds a command bus with the given buffer size (<=0 uses a
// generous default) and an optional recorder.
func NewCommandBus(bufferSize int, recorder *observability.Recorder) *CommandBus {
	if bufferSize <= 0 {
		bufferSize = defaultCommandBufferSize
	}
	return &CommandBus{
		queue:    make(chan model.ExecutionCommand, bufferSize),
		recorder: recorder,
	}
}

// Put enqueues cmd, recording it (if a recorder is configured) before the
// bus delivers it to the consumer.
func (b *CommandBus) Put(ctx context.Context, cmd model.ExecutionCommand) error {
	if b.recorder != nil {
		tradeID, _ := model.CorrelationFields(cmd)
		b.recorder.Record("command", "portfolio_manager", cmd, tradeID)
	}
	select {
	case b.queue <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get suspends until a command is available or ctx is cancelled.
func (b *CommandBus) Get(ctx context.Context) (model.ExecutionCommand, error) {
	select {
	case cmd := <-b.queue:
		return cmd, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EventBus is a fan-out, multi-subscriber channel. Each subscriber gets its
// own buffered channel; publish delivers to every current subscriber in
// subscription order, preserving per-subscriber publish order.
type EventBus struct {
	mu          sync.Mutex
	subscribers []chan model.ExecutionEvent
	bufferSize  int
	recorder    *observability.Recorder
}

// NewEventBus builds an event bus whose per-subscriber channels are
// buffered to subscriberBufferSize (<=0 uses a generous default).
func NewEventBus(subscriberBufferSize int, recorder *observability.Recorder) *EventBus {
	if subscriberBufferSize <= 0 {
		subscriberBufferSize = defaultSubscriberBufferSize
	}
	return &EventBus{bufferSize: subscriberBufferSize, recorder: recorder}
}

// Subscribe registers a new per-subscriber queue.
func (b *EventBus) Subscribe() chan model.ExecutionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan model.ExecutionEvent, b.bufferSize)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Unsubscribe removes ch from the subscriber set and closes it. A no-op if
// ch is not (or is no longer) registered.
func (b *EventBus) Unsubscribe(ch chan model.ExecutionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(s)
			return
		}
	}
}

// Publish records ev (if a recorder is configured) before delivering it to
// every current subscriber, in subscription order. Publish blocks on a
// subscriber whose buffer is full rather than dropping: delivery is
// at-least-once within the process.
func (b *EventBus) Publish(ctx context.Context, ev model.ExecutionEvent) {
	if b.recorder != nil {
		tradeID, venueOrderID := model.CorrelationFields(ev)
		correlationID := tradeID
		if correlationID == "" {
			correlationID = venueOrderID
		}
		b.recorder.Record("event", "execution_engine", ev, correlationID)
	}

	b.mu.Lock()
	subs := make([]chan model.ExecutionEvent, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// PublishMany publishes evs in order.
func (b *EventBus) PublishMany(ctx context.Context, evs []model.ExecutionEvent) {
	for _, ev := range evs {
		b.Publish(ctx, ev)
		if ctx.Err() != nil {
			return
		}
	}
}
