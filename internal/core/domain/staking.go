package domain

import "github.com/shopspring/decimal"

// Stake is the staked amount of a warehouse after a StakeChanged event.
type Stake struct {
	WarehouseAddress string
	StakedAmount     decimal.Decimal
	Position         Position
}

func (s *Stake) EventPosition() Position { return s.Position }

// StorageFee is the per-unit storage fee of a warehouse.
type StorageFee struct {
	WarehouseAddress string
	FeePerUnit       int64
	Position         Position
}

func (f *StorageFee) EventPosition() Position { return f.Position }
