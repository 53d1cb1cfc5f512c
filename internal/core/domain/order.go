package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatusOnchainCreated is set on orders whose creation was observed on chain.
const OrderStatusOnchainCreated = "ONCHAIN_CREATED"

// OrderEventCreated is the order_events type for OrderCreated.
const OrderEventCreated = "OrderCreated"

// Pricing is an order's price breakdown in the smallest currency unit.
type Pricing struct {
	Amount       decimal.Decimal `json:"amount"`
	InsuranceFee decimal.Decimal `json:"insurance_fee"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	Total        decimal.Decimal `json:"total"`
}

// OrderCreated is a normalized order creation event.
type OrderCreated struct {
	OrderID          int64
	Seller           string
	Warehouse        string
	LogisticsInbound string
	Pricing          Pricing
	TxnHash          string
	ChainTimestamp   time.Time
	Position         Position
}

func (o *OrderCreated) EventPosition() Position { return o.Position }

// RecordUID is the deterministic key of the order row.
func (o *OrderCreated) RecordUID() string {
	uid := fmt.Sprintf("order-%d", o.OrderID)
	h := o.TxnHash
	if h == "" || strings.HasPrefix(h, UnknownHashPrefix) {
		return uid
	}
	if len(h) >= 10 {
		return uid + "-" + h[2:10]
	}
	return uid + "-" + strings.TrimPrefix(h, "0x")
}

// HasRealHash reports whether the order can be matched to a draft by transaction hash.
func (o *OrderCreated) HasRealHash() bool {
	return o.TxnHash != "" && !strings.HasPrefix(o.TxnHash, UnknownHashPrefix)
}
