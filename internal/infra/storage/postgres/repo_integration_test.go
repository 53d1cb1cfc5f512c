//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
)

var chainTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestCursorRepo_SaveIsMonotonic(t *testing.T) {
	db := setupTestDB(t, true)
	repo := NewCursorRepo(db)
	ctx := context.Background()

	save := func(version, index int64) {
		t.Helper()
		c := &domain.Cursor{Stream: domain.StreamAccounts, Position: domain.Position{Version: version, Index: index}}
		if err := repo.Save(ctx, c); err != nil {
			t.Fatalf("Save(%d:%d): %v", version, index, err)
		}
	}
	get := func() domain.Position {
		t.Helper()
		c, err := repo.Get(ctx, domain.StreamAccounts)
		if err != nil || c == nil {
			t.Fatalf("Get: %v, %v", c, err)
		}
		return c.Position
	}

	if c, err := repo.Get(ctx, domain.StreamAccounts); err != nil || c != nil {
		t.Fatalf("empty Get = %v, %v", c, err)
	}

	save(100, 2)
	save(100, 1)
	save(99, 9)
	save(100, 2)
	if pos := get(); pos != (domain.Position{Version: 100, Index: 2}) {
		t.Errorf("after regression attempts = %s", pos)
	}

	save(101, 0)
	if pos := get(); pos != (domain.Position{Version: 101, Index: 0}) {
		t.Errorf("after advance = %s", pos)
	}

	// Reset is the only way back
	if err := repo.Reset(ctx, domain.StreamAccounts, domain.Genesis); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if pos := get(); pos != domain.Genesis {
		t.Errorf("after reset = %s", pos)
	}

	list, err := repo.List(ctx)
	if err != nil || len(list) != 1 || list[0].Stream != domain.StreamAccounts {
		t.Errorf("List = %v, %v", list, err)
	}
}

func TestCursorRepo_MissingTableIsSoft(t *testing.T) {
	db := setupTestDB(t, false)
	repo := NewCursorRepo(db)
	ctx := context.Background()

	c, err := repo.Get(ctx, domain.StreamStaking)
	if err != nil || c != nil {
		t.Errorf("Get without table = %v, %v", c, err)
	}
	if err := repo.Save(ctx, &domain.Cursor{Stream: domain.StreamStaking, Position: domain.Position{Version: 5}}); err != nil {
		t.Errorf("Save without table: %v", err)
	}
	if list, err := repo.List(ctx); err != nil || len(list) != 0 {
		t.Errorf("List without table = %v, %v", list, err)
	}
	if n, err := NewSkippedEventRepo(db).Count(ctx, domain.StreamStaking); err != nil || n != 0 {
		t.Errorf("Count without table = %d, %v", n, err)
	}
}

func TestAccountRepo_UpsertAppliesNewerOnly(t *testing.T) {
	db := setupTestDB(t, true)
	repo := NewAccountRepo(db)
	ctx := context.Background()

	acc := &domain.Account{
		Address:          "0xseller",
		Role:             domain.RoleSeller,
		ProfileHashValue: "aa",
		RegisteredBy:     "0xseller",
		TxnHash:          "0xfeed",
		ChainTimestamp:   chainTime,
		Position:         domain.Position{Version: 10, Index: 1},
	}
	for i := 0; i < 2; i++ {
		if err := repo.Upsert(ctx, acc); err != nil {
			t.Fatalf("Upsert #%d: %v", i, err)
		}
	}

	older := *acc
	older.ProfileHashValue = "old"
	older.Position = domain.Position{Version: 10, Index: 0}
	if err := repo.Upsert(ctx, &older); err != nil {
		t.Fatalf("Upsert older: %v", err)
	}

	var row accountRow
	if err := db.GetContext(ctx, &row, `SELECT account_address, role, profile_hash_algo, profile_hash_value,
		profile_uri, registered_by, txn_version, event_index, txn_hash, chain_timestamp
		FROM accounts WHERE account_address = $1`, acc.Address); err != nil {
		t.Fatalf("select: %v", err)
	}
	if row.ProfileHashValue != "aa" || row.TxnVersion != 10 || row.EventIndex != 1 {
		t.Errorf("older event overwrote the account: %+v", row)
	}
	if row.ProfileHashAlgo != domain.ProfileHashAlgo || row.ProfileURI.Valid {
		t.Errorf("defaults = %+v", row)
	}

	newer := *acc
	newer.Role = domain.RoleWarehouse
	newer.Position = domain.Position{Version: 11, Index: 0}
	if err := repo.Upsert(ctx, &newer); err != nil {
		t.Fatalf("Upsert newer: %v", err)
	}
	var role string
	if err := db.GetContext(ctx, &role, `SELECT role FROM accounts WHERE account_address = $1`, acc.Address); err != nil {
		t.Fatalf("select role: %v", err)
	}
	if role != string(domain.RoleWarehouse) {
		t.Errorf("role = %s", role)
	}
}

func countRows(t *testing.T, db *DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.GetContext(context.Background(), &n, query, args...); err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return n
}

func TestOrderRepo_ReplayIsIdempotent(t *testing.T) {
	db := setupTestDB(t, true)
	repo := NewOrderRepo(db)
	ctx := context.Background()

	o := &domain.OrderCreated{
		OrderID:   42,
		Seller:    "0xseller",
		Warehouse: "0xwh",
		Pricing: domain.Pricing{
			Amount: decimal.NewFromInt(100_000_000),
			Total:  decimal.NewFromInt(100_000_000),
		},
		TxnHash:        "0x1234567890abcdef",
		ChainTimestamp: chainTime,
		Position:       domain.Position{Version: 20, Index: 0},
	}
	for i := 0; i < 3; i++ {
		if err := repo.ApplyOrderCreated(ctx, o); err != nil {
			t.Fatalf("ApplyOrderCreated #%d: %v", i, err)
		}
	}

	if n := countRows(t, db, `SELECT count(*) FROM orders`); n != 1 {
		t.Errorf("orders = %d", n)
	}
	if n := countRows(t, db, `SELECT count(*) FROM order_events`); n != 1 {
		t.Errorf("order events = %d", n)
	}
	if n := countRows(t, db, `SELECT count(*) FROM orders WHERE record_uid = $1 AND status = $2`,
		o.RecordUID(), domain.OrderStatusOnchainCreated); n != 1 {
		t.Errorf("order %s not stored as on-chain created", o.RecordUID())
	}
}

func TestOrderRepo_PromotesDraftByHash(t *testing.T) {
	db := setupTestDB(t, true)
	repo := NewOrderRepo(db)
	ctx := context.Background()

	const hash = "0xdraftdraftdraft"
	if _, err := db.ExecContext(ctx, `
		INSERT INTO orders (record_uid, status, logistics_inbound, txn_hash)
		VALUES ('draft-7', 'PENDING', 'UPS', $1)`, hash); err != nil {
		t.Fatalf("insert draft: %v", err)
	}

	o := &domain.OrderCreated{
		OrderID:        7,
		Seller:         "0xseller",
		Warehouse:      "0xwh",
		TxnHash:        hash,
		ChainTimestamp: chainTime,
		Position:       domain.Position{Version: 30, Index: 2},
	}
	if err := repo.ApplyOrderCreated(ctx, o); err != nil {
		t.Fatalf("ApplyOrderCreated: %v", err)
	}

	if n := countRows(t, db, `SELECT count(*) FROM orders`); n != 1 {
		t.Fatalf("draft not promoted in place, orders = %d", n)
	}
	var got struct {
		UID       string `db:"record_uid"`
		Status    string `db:"status"`
		Logistics string `db:"logistics_inbound"`
		OrderID   int64  `db:"order_id"`
	}
	if err := db.GetContext(ctx, &got,
		`SELECT record_uid, status, logistics_inbound, order_id FROM orders`); err != nil {
		t.Fatalf("select: %v", err)
	}
	if got.UID != "draft-7" || got.Status != domain.OrderStatusOnchainCreated || got.OrderID != 7 {
		t.Errorf("promoted order = %+v", got)
	}
	if got.Logistics != "UPS" {
		t.Errorf("draft logistics lost: %q", got.Logistics)
	}
	if n := countRows(t, db, `SELECT count(*) FROM order_events WHERE record_uid = 'draft-7'`); n != 1 {
		t.Errorf("order event not linked to draft, got %d", n)
	}
}

func TestStakingRepo_AppliesNewerOnly(t *testing.T) {
	db := setupTestDB(t, true)
	repo := NewStakingRepo(db)
	ctx := context.Background()

	big := decimal.RequireFromString("340282366920938463463374607431768211455")
	stake := &domain.Stake{WarehouseAddress: "0xwh", StakedAmount: big, Position: domain.Position{Version: 50, Index: 1}}
	if err := repo.UpsertStake(ctx, stake); err != nil {
		t.Fatalf("UpsertStake: %v", err)
	}
	stale := &domain.Stake{WarehouseAddress: "0xwh", StakedAmount: decimal.NewFromInt(1), Position: domain.Position{Version: 49, Index: 9}}
	if err := repo.UpsertStake(ctx, stale); err != nil {
		t.Fatalf("UpsertStake stale: %v", err)
	}

	var amount string
	if err := db.GetContext(ctx, &amount, `SELECT staked_amount::text FROM staking_positions WHERE warehouse_address = '0xwh'`); err != nil {
		t.Fatalf("select stake: %v", err)
	}
	if amount != big.String() {
		t.Errorf("staked amount = %s", amount)
	}

	fee := &domain.StorageFee{WarehouseAddress: "0xwh", FeePerUnit: 25, Position: domain.Position{Version: 60, Index: 0}}
	if err := repo.UpsertFee(ctx, fee); err != nil {
		t.Fatalf("UpsertFee: %v", err)
	}
	if err := repo.UpsertFee(ctx, &domain.StorageFee{WarehouseAddress: "0xwh", FeePerUnit: 99, Position: domain.Position{Version: 60, Index: 0}}); err != nil {
		t.Fatalf("UpsertFee replay: %v", err)
	}
	if n := countRows(t, db, `SELECT fee_per_unit FROM storage_fee_cache WHERE warehouse_address = '0xwh'`); n != 25 {
		t.Errorf("fee = %d", n)
	}
}

func TestSkippedEventRepo_Dedupe(t *testing.T) {
	db := setupTestDB(t, true)
	repo := NewSkippedEventRepo(db)
	ctx := context.Background()
	now := time.Now()

	add := func(ev domain.SkippedEvent) {
		t.Helper()
		if err := repo.Add(ctx, &ev); err != nil {
			t.Fatalf("Add %s: %v", ev.ID, err)
		}
	}
	positioned := domain.SkippedEvent{
		Stream: domain.StreamOrdersCreated, Position: domain.Position{Version: 5, Index: 0},
		RawVersion: "5", RawIndex: "0", Type: "x", Reason: "malformed", CreatedAt: now,
	}
	positioned.ID = "00000000-0000-0000-0000-000000000001"
	add(positioned)
	positioned.ID = "00000000-0000-0000-0000-000000000002"
	add(positioned)

	unpositioned := domain.SkippedEvent{
		Stream: domain.StreamOrdersCreated, Unpositioned: true,
		RawVersion: "abc", RawIndex: "0", Type: "x", Reason: "bad position", CreatedAt: now.Add(-72 * time.Hour),
	}
	unpositioned.ID = "00000000-0000-0000-0000-000000000003"
	add(unpositioned)
	unpositioned.ID = "00000000-0000-0000-0000-000000000004"
	add(unpositioned)

	if n, err := repo.Count(ctx, domain.StreamOrdersCreated); err != nil || n != 3 {
		t.Errorf("Count = %d, %v", n, err)
	}
	if n := countRows(t, db, `SELECT count(*) FROM skipped_events WHERE txn_version IS NULL AND raw_version = 'abc'`); n != 2 {
		t.Errorf("unpositioned rows = %d", n)
	}

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil || deleted != 2 {
		t.Errorf("DeleteOlderThan = %d, %v", deleted, err)
	}
}
