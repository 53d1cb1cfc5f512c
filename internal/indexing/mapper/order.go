package mapper

import (
	"context"
	"log/slog"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
)

// OrderMapper maps OrderCreated events.
type OrderMapper struct {
	eventType string
	meta      metaSource
}

func NewOrderMapper(module string, resolver MetaResolver, log *slog.Logger) *OrderMapper {
	if log == nil {
		log = slog.Default()
	}
	return &OrderMapper{
		eventType: EventType(module, OrderCreated),
		meta:      metaSource{resolver: resolver, log: log.With("mapper", domain.StreamOrdersCreated), now: time.Now},
	}
}

func (m *OrderMapper) EventTypes() []string {
	return []string{m.eventType}
}

// Map normalizes one OrderCreated event.
func (m *OrderMapper) Map(ctx context.Context, ev domain.RawEvent, pos domain.Position) (*domain.OrderCreated, error) {
	data, err := decodePayload(ev.Data)
	if err != nil {
		return nil, err
	}

	orderID, ok, err := data.intField("order_id", "orderId")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, malformed("missing order_id")
	}

	seller := normalizeAddress(data.str("seller", "creator", "seller_address"))
	if seller == "" {
		return nil, malformed("order %d: missing seller", orderID)
	}
	warehouse := normalizeAddress(data.str("warehouse", "warehouse_address"))
	if warehouse == "" {
		return nil, malformed("order %d: missing warehouse", orderID)
	}

	pricing, err := orderPricing(data)
	if err != nil {
		return nil, err
	}

	meta := m.meta.resolve(ctx, ev, pos.Version)

	return &domain.OrderCreated{
		OrderID:          orderID,
		Seller:           seller,
		Warehouse:        warehouse,
		LogisticsInbound: data.str("logistics_inbound", "inbound_logistics"),
		Pricing:          pricing,
		TxnHash:          meta.Hash,
		ChainTimestamp:   meta.Timestamp,
		Position:         pos,
	}, nil
}

// orderPricing reads the pricing object, falling back to top-level fields.
func orderPricing(data payload) (domain.Pricing, error) {
	src := data.object("pricing")
	if src == nil {
		src = data
	}

	var (
		p   domain.Pricing
		err error
	)
	if p.Amount, err = src.decimalField("amount"); err != nil {
		return p, err
	}
	if p.InsuranceFee, err = src.decimalField("insurance_fee", "insuranceFee"); err != nil {
		return p, err
	}
	if p.PlatformFee, err = src.decimalField("platform_fee", "platformFee"); err != nil {
		return p, err
	}
	if p.Total, err = src.decimalField("total"); err != nil {
		return p, err
	}
	return p, nil
}
