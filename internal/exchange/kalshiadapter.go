package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"executiond/pkg/model"
)

// KalshiAdapter implements Adapter against the Kalshi trade API. It maps
// normalized sides to Kalshi's per-side price field and formats prices as
// fixed-point dollars with four decimal places.
type KalshiAdapter struct {
	client *Client
	venue  model.Venue
	logger *slog.Logger
}

// NewKalshiAdapter builds an adapter over an already-configured signed client.
func NewKalshiAdapter(client *Client, logger *slog.Logger) *KalshiAdapter {
	return &KalshiAdapter{
		client: client,
		venue:  model.VenueKalshi,
		logger: logger.With("component", "kalshi_adapter"),
	}
}

func (a *KalshiAdapter) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.VenueOrderId, error) {
	if req.OrderType == model.OrderTypeLimit && req.LimitPriceDollars == nil {
		return "", MissingPrice()
	}

	clientOrderId := req.ClientOrderId
	if clientOrderId == "" {
		clientOrderId = uuid.NewString()
	}

	body := map[string]any{
		"ticker":          strings.ToUpper(req.Ticker),
		"side":            string(req.Side),
		"action":          string(req.Action),
		"count":           req.Count,
		"type":            string(req.OrderType),
		"client_order_id": clientOrderId,
	}
	if req.OrderType == model.OrderTypeLimit {
		priceField := "no_price_dollars"
		if req.Side == model.SideYes {
			priceField = "yes_price_dollars"
		}
		body[priceField] = decimal.NewFromFloat(*req.LimitPriceDollars).StringFixed(4)
	}

	resp, err := a.client.Do(ctx, "POST", "/trade-api/v2/portfolio/orders", body)
	if err != nil {
		return "", err
	}

	order, ok := resp["order"].(map[string]any)
	if !ok {
		return "", &VenueReject{Payload: resp, Message: "response missing order"}
	}
	orderID, ok := order["order_id"].(string)
	if !ok || orderID == "" {
		return "", &VenueReject{Payload: resp, Message: "response missing order_id"}
	}
	return orderID, nil
}

func (a *KalshiAdapter) CancelOrder(ctx context.Context, vid model.VenueOrderId) error {
	if vid == "" {
		return &AdapterError{Message: "cancel_order requires a venue order id"}
	}
	path := fmt.Sprintf("/trade-api/v2/portfolio/orders/%s", vid)
	_, err := a.client.Do(ctx, "DELETE", path, nil)
	return err
}

func (a *KalshiAdapter) GetOrderStatus(ctx context.Context, vid model.VenueOrderId) (string, int, error) {
	if vid == "" {
		return "", 0, &AdapterError{Message: "get_order_status requires a venue order id"}
	}
	path := fmt.Sprintf("/trade-api/v2/portfolio/orders/%s", vid)
	resp, err := a.client.Do(ctx, "GET", path, nil)
	if err != nil {
		return "", 0, err
	}

	order, ok := resp["order"].(map[string]any)
	if !ok {
		return "", 0, &VenueReject{Payload: resp, Message: "response missing order"}
	}
	status, _ := order["status"].(string)
	fillCount := intFromJSON(order["fill_count"])
	return status, fillCount, nil
}

func (a *KalshiAdapter) GetPositionsSnapshot(ctx context.Context) (model.PositionSnapshot, error) {
	resp, err := a.client.Do(ctx, "GET", "/trade-api/v2/portfolio/positions", nil)
	if err != nil {
		return model.PositionSnapshot{}, err
	}

	raw, _ := resp["market_positions"].([]any)
	positions := make([]model.Position, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ticker, _ := m["ticker"].(string)
		positions = append(positions, model.Position{
			Ticker:                ticker,
			Position:              intFromJSON(m["position"]),
			MarketExposureDollars: floatFromJSON(m["market_exposure_dollars"]),
		})
	}

	return model.NewPositionSnapshot(a.venue, positions), nil
}

func intFromJSON(v any) int {
	f, _ := v.(float64)
	return int(f)
}

func floatFromJSON(v any) float64 {
	f, _ := v.(float64)
	return f
}
