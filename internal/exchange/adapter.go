package exchange

import (
	"context"

	"executiond/pkg/model"
)

// Adapter is the minimal capability set the execution engine depends on,
// polymorphic over venues. Only Kalshi is implemented here; the interface
// boundary is the multi-venue extension point (only Kalshi is wired up
// here).
type Adapter interface {
	PlaceOrder(ctx context.Context, req model.OrderRequest) (model.VenueOrderId, error)
	CancelOrder(ctx context.Context, vid model.VenueOrderId) error
	GetOrderStatus(ctx context.Context, vid model.VenueOrderId) (status string, fillCount int, err error)
	GetPositionsSnapshot(ctx context.Context) (model.PositionSnapshot, error)
}
