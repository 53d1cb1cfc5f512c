package streams

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
	"github.com/cyl19970726/haigo-sub001/internal/indexing/mapper"
	"github.com/cyl19970726/haigo-sub001/internal/infra/storage/memory"
)

const module = "0xhaigo"

type noMeta struct{}

func (noMeta) TransactionMeta(context.Context, int64) (domain.TxnMeta, bool) {
	return domain.TxnMeta{}, false
}

func raw(eventType string, version int64, data string) domain.RawEvent {
	return domain.RawEvent{
		TransactionVersion: json.Number(strconv.FormatInt(version, 10)),
		EventIndex:         "0",
		Type:               eventType,
		Data:               json.RawMessage(data),
	}
}

func TestAccounts_ApplyIsIdempotent(t *testing.T) {
	store := memory.NewMemoryStorage()
	repo := memory.NewAccountRepo(store)
	h := NewAccounts(mapper.NewAccountMapper(module, noMeta{}, nil), repo)

	ev := raw(module+"::registry::WarehouseRegistered", 10, `{"account":"0xW1","profile_hash":"`+strings.Repeat("0f", 32)+`"}`)
	ev.TransactionHash = "0xabc"
	ev.TransactionTimestamp = "2024-01-01T00:00:00Z"
	pos := domain.Position{Version: 10, Index: 0}

	for i := 0; i < 2; i++ {
		if err := h.Apply(context.Background(), ev, pos); err != nil {
			t.Fatalf("Apply #%d: %v", i, err)
		}
	}

	if repo.Count() != 1 {
		t.Fatalf("accounts = %d", repo.Count())
	}
	acc, _ := repo.Get("0xw1")
	if acc.Role != domain.RoleWarehouse || acc.TxnHash != "0xabc" {
		t.Errorf("account = %+v", acc)
	}
}

func TestAccounts_UnknownTypeDefaultsToSeller(t *testing.T) {
	repo := memory.NewAccountRepo(memory.NewMemoryStorage())
	h := NewAccounts(mapper.NewAccountMapper(module, noMeta{}, nil), repo)

	ev := raw(module+"::registry::ProfileMigrated", 11, `{"address":"0xS1","hash":"`+strings.Repeat("aa", 32)+`"}`)
	if err := h.Apply(context.Background(), ev, domain.Position{Version: 11}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	acc, ok := repo.Get("0xs1")
	if !ok || acc.Role != domain.RoleSeller {
		t.Fatalf("account = %+v", acc)
	}
	if !strings.HasPrefix(acc.TxnHash, domain.UnknownHashPrefix) {
		t.Errorf("expected placeholder hash, got %s", acc.TxnHash)
	}
}

func TestAccounts_PoisonHashNotPersisted(t *testing.T) {
	repo := memory.NewAccountRepo(memory.NewMemoryStorage())
	h := NewAccounts(mapper.NewAccountMapper(module, noMeta{}, nil), repo)

	ev := raw(module+"::registry::SellerRegistered", 12, `{"account":"0x1","profile_hash":"nothex"}`)
	err := h.Apply(context.Background(), ev, domain.Position{Version: 12})
	if !errors.Is(err, mapper.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if repo.Count() != 0 {
		t.Error("poison event must not be persisted")
	}
}

func TestOrders_MergesDraftAndIsIdempotent(t *testing.T) {
	store := memory.NewMemoryStorage()
	repo := memory.NewOrderRepo(store)
	repo.AddDraft("draft-1", "0xdeadbeef01")

	resolver := metaFor("0xdeadbeef01")
	h := NewOrders(mapper.NewOrderMapper(module, resolver, nil), repo)

	ev := raw(module+"::orders::OrderCreated", 20, `{"order_id":5,"seller":"0xS","warehouse":"0xW","pricing":{"total":"10"}}`)
	pos := domain.Position{Version: 20, Index: 0}
	for i := 0; i < 2; i++ {
		if err := h.Apply(context.Background(), ev, pos); err != nil {
			t.Fatalf("Apply #%d: %v", i, err)
		}
	}

	orders := repo.Orders()
	if len(orders) != 1 || orders[0].RecordUID != "draft-1" || orders[0].Status != domain.OrderStatusOnchainCreated {
		t.Errorf("orders = %+v", orders)
	}
	if repo.EventCount() != 1 {
		t.Errorf("order events = %d", repo.EventCount())
	}
}

type metaFor string

func (m metaFor) TransactionMeta(context.Context, int64) (domain.TxnMeta, bool) {
	return domain.TxnMeta{Hash: string(m)}, true
}

func TestStaking_Apply(t *testing.T) {
	repo := memory.NewStakingRepo(memory.NewMemoryStorage())
	h := NewStaking(mapper.NewStakingMapper(module), repo)
	ctx := context.Background()

	if err := h.Apply(ctx, raw(module+"::staking::StakeChanged", 30, `{"warehouse":"0xW","new_amount":"500"}`), domain.Position{Version: 30}); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := h.Apply(ctx, raw(module+"::staking::StorageFeeUpdated", 31, `{"warehouse":"0xW","fee_per_unit":"12"}`), domain.Position{Version: 31}); err != nil {
		t.Fatalf("fee: %v", err)
	}
	// An older stake event replayed later must not win
	if err := h.Apply(ctx, raw(module+"::staking::StakeChanged", 29, `{"warehouse":"0xW","new_amount":"1"}`), domain.Position{Version: 29}); err != nil {
		t.Fatalf("old stake: %v", err)
	}

	stake, ok := repo.Stake("0xw")
	if !ok || stake.StakedAmount.String() != "500" {
		t.Errorf("stake = %+v", stake)
	}
	fee, ok := repo.Fee("0xw")
	if !ok || fee.FeePerUnit != 12 {
		t.Errorf("fee = %+v", fee)
	}
}
