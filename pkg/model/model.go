// Package model defines the venue-agnostic vocabulary shared by every layer
// of the execution core: order intents, execution commands/events, and the
// position/observability records derived from them. It has no dependency on
// any internal package so it can be imported by the client, the adapter,
// the engine, and the portfolio manager alike.
package model

import "time"

// TradeId is the caller-chosen correlation key for an order intent.
type TradeId = string

// ClientOrderId is an optional idempotency key passed through to the venue.
type ClientOrderId = string

// VenueOrderId is the opaque id the venue assigns on successful placement.
// It is the join key between engine-tracked state and venue state.
type VenueOrderId = string

// Venue tags which exchange an order/event concerns.
type Venue = string

const (
	VenueKalshi Venue = "kalshi"
)

// OrderSide is which side of a binary contract an order concerns.
type OrderSide string

const (
	SideYes OrderSide = "yes"
	SideNo  OrderSide = "no"
)

// OrderAction is whether an order opens or closes exposure.
type OrderAction string

const (
	ActionBuy  OrderAction = "buy"
	ActionSell OrderAction = "sell"
)

// OrderType is the pricing behavior of an order.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderRequest is a venue-agnostic order intent submitted by the portfolio
// layer. It is immutable once constructed.
//
// Invariant: LimitPriceDollars must be set iff OrderType == OrderTypeLimit;
// violating this is rejected at the adapter boundary (exchange.MissingPrice).
type OrderRequest struct {
	TradeId           TradeId       `json:"trade_id"`
	Venue             Venue         `json:"venue"`
	Ticker            string        `json:"ticker"`
	Side              OrderSide     `json:"side"`
	Action            OrderAction   `json:"action"`
	Count             int           `json:"count"`
	OrderType         OrderType     `json:"order_type"`
	LimitPriceDollars *float64      `json:"limit_price_dollars,omitempty"` // required iff OrderType == limit
	ClientOrderId     ClientOrderId `json:"client_order_id,omitempty"`
}

// RequestAllowList is the fixed set of OrderRequest keys preserved when an
// observability record projects a nested request payload.
var RequestAllowList = []string{
	"trade_id", "venue", "ticker", "side", "action", "count",
	"order_type", "limit_price_dollars", "client_order_id",
}

// ExecutionCommand is the closed set of commands the portfolio manager can
// send to the execution engine over the command bus.
type ExecutionCommand interface {
	isExecutionCommand()
}

// SubmitOrder asks the engine to place a new order with the venue.
type SubmitOrder struct {
	Request OrderRequest `json:"request"`
}

func (SubmitOrder) isExecutionCommand() {}

// CancelOrder asks the engine to cancel a resting order by venue id.
type CancelOrder struct {
	VenueOrderId VenueOrderId `json:"venue_order_id"`
	Reason       string       `json:"reason,omitempty"` // empty if not given
}

func (CancelOrder) isExecutionCommand() {}

// ExecutionEvent is the closed set of normalized lifecycle events the
// engine publishes on the event bus.
type ExecutionEvent interface {
	isExecutionEvent()
	Timestamp() time.Time
}

type eventBase struct {
	Ts time.Time `json:"ts"`
}

func (e eventBase) Timestamp() time.Time { return e.Ts }

// OrderSubmitted is emitted once a SubmitOrder is accepted by the venue.
type OrderSubmitted struct {
	eventBase
	TradeId      TradeId      `json:"trade_id"`
	Venue        Venue        `json:"venue"`
	VenueOrderId VenueOrderId `json:"venue_order_id"`
	Request      OrderRequest `json:"request"`
}

func (OrderSubmitted) isExecutionEvent() {}

// OrderRejected is emitted when the venue (or adapter-level validation)
// refuses a SubmitOrder.
type OrderRejected struct {
	eventBase
	TradeId TradeId        `json:"trade_id"`
	Venue   Venue          `json:"venue"`
	Request OrderRequest   `json:"request"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload,omitempty"` // best-effort parsed venue payload, may be nil
}

func (OrderRejected) isExecutionEvent() {}

// OrderCanceled is emitted once a CancelOrder succeeds at the venue.
type OrderCanceled struct {
	eventBase
	Venue        Venue        `json:"venue"`
	VenueOrderId VenueOrderId `json:"venue_order_id"`
	Reason       string       `json:"reason,omitempty"`
}

func (OrderCanceled) isExecutionEvent() {}

// OrderUpdate is emitted by the order poller when it observes a status or
// fill-count change for a tracked order.
type OrderUpdate struct {
	eventBase
	Venue        Venue        `json:"venue"`
	VenueOrderId VenueOrderId `json:"venue_order_id"`
	Status       string       `json:"status"`
	FillCount    int          `json:"fill_count"`
}

func (OrderUpdate) isExecutionEvent() {}

// FillUpdate is emitted alongside OrderUpdate whenever FillCount increased.
type FillUpdate struct {
	eventBase
	Venue        Venue        `json:"venue"`
	VenueOrderId VenueOrderId `json:"venue_order_id"`
	FilledDelta  int          `json:"filled_delta"`
	FilledTotal  int          `json:"filled_total"`
}

func (FillUpdate) isExecutionEvent() {}

// Position is a normalized, per-ticker market position.
type Position struct {
	Ticker                string     `json:"ticker"`
	Position              int        `json:"position"` // signed contract count
	MarketExposureDollars float64    `json:"market_exposure_dollars"`
	LastUpdatedTs         *time.Time `json:"last_updated_ts,omitempty"`
}

// PositionSnapshot is a point-in-time view of all open positions for a venue.
type PositionSnapshot struct {
	eventBase
	Venue     Venue      `json:"venue"`
	Positions []Position `json:"positions"`
}

func (PositionSnapshot) isExecutionEvent() {}

// ExecutionError is the engine's envelope for background-loop failures
// that must not terminate the engine.
type ExecutionError struct {
	eventBase
	Venue        *Venue        `json:"venue,omitempty"`
	VenueOrderId *VenueOrderId `json:"venue_order_id,omitempty"`
	Message      string        `json:"message"`
	Retryable    bool          `json:"retryable"`
}

func (ExecutionError) isExecutionEvent() {}

// NewEventTimestamp returns the wall-clock instant to stamp on a newly
// constructed event. Exists so every constructor in engine/adapter code
// stamps the same way, and so tests can all key off of the same clock call.
func NewEventTimestamp() time.Time {
	return time.Now().UTC()
}

// NewOrderSubmitted constructs an OrderSubmitted event stamped at call time.
func NewOrderSubmitted(tradeId TradeId, venue Venue, venueOrderId VenueOrderId, req OrderRequest) OrderSubmitted {
	return OrderSubmitted{
		eventBase:    eventBase{Ts: NewEventTimestamp()},
		TradeId:      tradeId,
		Venue:        venue,
		VenueOrderId: venueOrderId,
		Request:      req,
	}
}

// NewOrderRejected constructs an OrderRejected event stamped at call time.
func NewOrderRejected(tradeId TradeId, venue Venue, req OrderRequest, message string, payload map[string]any) OrderRejected {
	return OrderRejected{
		eventBase: eventBase{Ts: NewEventTimestamp()},
		TradeId:   tradeId,
		Venue:     venue,
		Request:   req,
		Message:   message,
		Payload:   payload,
	}
}

// NewOrderCanceled constructs an OrderCanceled event stamped at call time.
func NewOrderCanceled(venue Venue, venueOrderId VenueOrderId, reason string) OrderCanceled {
	return OrderCanceled{
		eventBase:    eventBase{Ts: NewEventTimestamp()},
		Venue:        venue,
		VenueOrderId: venueOrderId,
		Reason:       reason,
	}
}

// NewOrderUpdate constructs an OrderUpdate event stamped at call time.
func NewOrderUpdate(venue Venue, venueOrderId VenueOrderId, status string, fillCount int) OrderUpdate {
	return OrderUpdate{
		eventBase:    eventBase{Ts: NewEventTimestamp()},
		Venue:        venue,
		VenueOrderId: venueOrderId,
		Status:       status,
		FillCount:    fillCount,
	}
}

// NewFillUpdate constructs a FillUpdate event stamped at call time.
func NewFillUpdate(venue Venue, venueOrderId VenueOrderId, filledDelta, filledTotal int) FillUpdate {
	return FillUpdate{
		eventBase:    eventBase{Ts: NewEventTimestamp()},
		Venue:        venue,
		VenueOrderId: venueOrderId,
		FilledDelta:  filledDelta,
		FilledTotal:  filledTotal,
	}
}

// NewPositionSnapshot constructs a PositionSnapshot event stamped at call time.
func NewPositionSnapshot(venue Venue, positions []Position) PositionSnapshot {
	return PositionSnapshot{
		eventBase: eventBase{Ts: NewEventTimestamp()},
		Venue:     venue,
		Positions: positions,
	}
}

// NewExecutionError constructs an ExecutionError event stamped at call time.
func NewExecutionError(venue *Venue, venueOrderId *VenueOrderId, message string, retryable bool) ExecutionError {
	return ExecutionError{
		eventBase:    eventBase{Ts: NewEventTimestamp()},
		Venue:        venue,
		VenueOrderId: venueOrderId,
		Message:      message,
		Retryable:    retryable,
	}
}

// TrackedOrder is the engine-local, mutable lifecycle record for a single
// venue order. Carrying Venue avoids hard-coding "kalshi" at emission time
// (see Design Notes on venue-carrying tracked records).
type TrackedOrder struct {
	Venue     Venue
	Status    string
	FillCount int
}

// IsTerminal reports whether status represents a terminal lifecycle state,
// at which point the engine stops tracking the order.
func IsTerminal(status string) bool {
	return status == "executed" || status == "canceled"
}

// CorrelationFields extracts the best-effort trade id and venue order id
// from a command or event, for observability correlation.
func CorrelationFields(msg any) (tradeID TradeId, venueOrderID VenueOrderId) {
	switch m := msg.(type) {
	case SubmitOrder:
		return m.Request.TradeId, ""
	case CancelOrder:
		return "", m.VenueOrderId
	case OrderSubmitted:
		return m.TradeId, m.VenueOrderId
	case OrderRejected:
		return m.TradeId, ""
	case OrderCanceled:
		return "", m.VenueOrderId
	case OrderUpdate:
		return "", m.VenueOrderId
	case FillUpdate:
		return "", m.VenueOrderId
	case ExecutionError:
		vid := VenueOrderId("")
		if m.VenueOrderId != nil {
			vid = *m.VenueOrderId
		}
		return "", vid
	default:
		return "", ""
	}
}

// TimestampOf returns the message's own ts if it carries one.
func TimestampOf(msg any) (time.Time, bool) {
	if ev, ok := msg.(ExecutionEvent); ok {
		return ev.Timestamp(), true
	}
	return time.Time{}, false
}
