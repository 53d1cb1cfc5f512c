package mapper

import (
	"context"
	"strings"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
)

// StakingMapper maps StakeChanged and StorageFeeUpdated events. Staking
// records carry no transaction metadata.
type StakingMapper struct {
	stakeType string
	feeType   string
}

func NewStakingMapper(module string) *StakingMapper {
	return &StakingMapper{
		stakeType: EventType(module, StakeChanged),
		feeType:   EventType(module, StorageFeeUpdated),
	}
}

func (m *StakingMapper) EventTypes() []string {
	return []string{m.stakeType, m.feeType}
}

// Map returns a *domain.Stake or a *domain.StorageFee.
func (m *StakingMapper) Map(_ context.Context, ev domain.RawEvent, pos domain.Position) (domain.Record, error) {
	data, err := decodePayload(ev.Data)
	if err != nil {
		return nil, err
	}

	warehouse := normalizeAddress(data.str("warehouse", "account", "address"))
	if warehouse == "" {
		return nil, malformed("missing warehouse address")
	}

	switch {
	case strings.HasSuffix(ev.Type, "::StakeChanged"):
		amount, err := data.decimalField("new_amount", "newAmount")
		if err != nil {
			return nil, err
		}
		return &domain.Stake{WarehouseAddress: warehouse, StakedAmount: amount, Position: pos}, nil

	case strings.HasSuffix(ev.Type, "::StorageFeeUpdated"):
		fee, _, err := data.intField("fee_per_unit", "feePerUnit")
		if err != nil {
			return nil, err
		}
		return &domain.StorageFee{WarehouseAddress: warehouse, FeePerUnit: fee, Position: pos}, nil

	default:
		return nil, malformed("unknown staking event type %s", ev.Type)
	}
}
