// Package streams binds each event stream's mapper to its repository.
package streams

import (
	"context"
	"fmt"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
	"github.com/cyl19970726/haigo-sub001/internal/indexing/mapper"
	"github.com/cyl19970726/haigo-sub001/internal/infra/storage"
)

// Accounts applies registry events.
type Accounts struct {
	mapper *mapper.AccountMapper
	repo   storage.AccountRepository
}

func NewAccounts(m *mapper.AccountMapper, repo storage.AccountRepository) *Accounts {
	return &Accounts{mapper: m, repo: repo}
}

func (a *Accounts) EventTypes() []string { return a.mapper.EventTypes() }

// IncludeTxnMeta is true: the indexer returns hash and timestamp for registry
// events, which saves a fullnode round trip per event.
func (a *Accounts) IncludeTxnMeta() bool { return true }

func (a *Accounts) Apply(ctx context.Context, ev domain.RawEvent, pos domain.Position) error {
	account, err := a.mapper.Map(ctx, ev, pos)
	if err != nil {
		return err
	}
	if err := a.repo.Upsert(ctx, account); err != nil {
		return fmt.Errorf("upsert account %s: %w", account.Address, err)
	}
	return nil
}

// Orders applies OrderCreated events.
type Orders struct {
	mapper *mapper.OrderMapper
	repo   storage.OrderRepository
}

func NewOrders(m *mapper.OrderMapper, repo storage.OrderRepository) *Orders {
	return &Orders{mapper: m, repo: repo}
}

func (o *Orders) EventTypes() []string { return o.mapper.EventTypes() }
func (o *Orders) IncludeTxnMeta() bool { return false }

func (o *Orders) Apply(ctx context.Context, ev domain.RawEvent, pos domain.Position) error {
	order, err := o.mapper.Map(ctx, ev, pos)
	if err != nil {
		return err
	}
	if err := o.repo.ApplyOrderCreated(ctx, order); err != nil {
		return fmt.Errorf("apply order %d: %w", order.OrderID, err)
	}
	return nil
}

// Staking applies stake and storage fee events.
type Staking struct {
	mapper *mapper.StakingMapper
	repo   storage.StakingRepository
}

func NewStaking(m *mapper.StakingMapper, repo storage.StakingRepository) *Staking {
	return &Staking{mapper: m, repo: repo}
}

func (s *Staking) EventTypes() []string { return s.mapper.EventTypes() }
func (s *Staking) IncludeTxnMeta() bool { return false }

func (s *Staking) Apply(ctx context.Context, ev domain.RawEvent, pos domain.Position) error {
	record, err := s.mapper.Map(ctx, ev, pos)
	if err != nil {
		return err
	}

	switch r := record.(type) {
	case *domain.Stake:
		err = s.repo.UpsertStake(ctx, r)
	case *domain.StorageFee:
		err = s.repo.UpsertFee(ctx, r)
	default:
		return fmt.Errorf("unexpected staking record %T", record)
	}
	if err != nil {
		return fmt.Errorf("upsert staking %s: %w", ev.Type, err)
	}
	return nil
}
