package mapper

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
)

var profileHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// AccountMapper maps registry events to accounts.
type AccountMapper struct {
	sellerType    string
	warehouseType string
	meta          metaSource
	log           *slog.Logger
}

func NewAccountMapper(module string, resolver MetaResolver, log *slog.Logger) *AccountMapper {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("mapper", domain.StreamAccounts)
	return &AccountMapper{
		sellerType:    EventType(module, SellerRegistered),
		warehouseType: EventType(module, WarehouseRegistered),
		meta:          metaSource{resolver: resolver, log: log, now: time.Now},
		log:           log,
	}
}

// EventTypes returns the registry event types this mapper understands.
func (m *AccountMapper) EventTypes() []string {
	return []string{m.sellerType, m.warehouseType}
}

func (m *AccountMapper) role(eventType string) domain.AccountRole {
	switch eventType {
	case m.sellerType:
		return domain.RoleSeller
	case m.warehouseType:
		return domain.RoleWarehouse
	default:
		m.log.Warn("Unknown registry event type, defaulting to seller", "type", eventType)
		return domain.RoleSeller
	}
}

// Map normalizes one registration event.
func (m *AccountMapper) Map(ctx context.Context, ev domain.RawEvent, pos domain.Position) (*domain.Account, error) {
	data, err := decodePayload(ev.Data)
	if err != nil {
		return nil, err
	}

	hash, err := profileHash(data)
	if err != nil {
		return nil, err
	}

	address := data.str("account", "address")
	if address == "" {
		address = ev.AccountAddress
	}
	address = normalizeAddress(address)
	if address == "" {
		return nil, malformed("missing account address")
	}

	registeredBy := normalizeAddress(ev.AccountAddress)
	if registeredBy == "" {
		registeredBy = address
	}

	meta := m.meta.resolve(ctx, ev, pos.Version)

	return &domain.Account{
		Address:          address,
		Role:             m.role(ev.Type),
		ProfileHashAlgo:  domain.ProfileHashAlgo,
		ProfileHashValue: hash,
		ProfileURI:       data.str("profile_uri", "profileUri"),
		RegisteredBy:     registeredBy,
		TxnHash:          meta.Hash,
		ChainTimestamp:   meta.Timestamp,
		Position:         pos,
	}, nil
}

// profileHash extracts and validates the profile hash, which may be published
// as a plain string or wrapped in an object.
func profileHash(data payload) (string, error) {
	var raw string
	container, ok := data.first("profile_hash", "profileHash", "hash")
	switch v := container.(type) {
	case string:
		raw = v
	case map[string]any:
		raw = payload(v).str("value", "hash", "hash_value")
	case json.Number:
		raw = v.String()
	}
	if !ok {
		raw = data.str("profile_hash_value")
	}
	if raw == "" {
		return "", malformed("missing profile hash value")
	}

	normalized := strings.ToLower(strings.TrimSpace(raw))
	if !profileHashPattern.MatchString(normalized) {
		return "", malformed("invalid hash format: %s", raw)
	}
	return normalized, nil
}
