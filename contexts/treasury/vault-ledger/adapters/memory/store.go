package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"custodia/contexts/treasury/vault-ledger/domain/entities"
	domainerrors "custodia/contexts/treasury/vault-ledger/domain/errors"
	"custodia/contexts/treasury/vault-ledger/ports"

	"github.com/google/uuid"
)

// Store backs every vault-ledger port in memory: repository, outbox, clock,
// id generation, plus a toy token ledger standing in for the external
// transfer and authority collaborators.
type Store struct {
	mu sync.RWMutex

	vaults      map[string]entities.Vault
	outbox      map[string]outboxRecord
	balances    map[string]int64
	delegations map[string]entities.SigningCapability
}

type outboxRecord struct {
	Message     ports.OutboxMessage
	Status      string
	PublishedAt *time.Time
}

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

func NewStore() *Store {
	return &Store{
		vaults:      make(map[string]entities.Vault),
		outbox:      make(map[string]outboxRecord),
		balances:    make(map[string]int64),
		delegations: make(map[string]entities.SigningCapability),
	}
}

func (s *Store) CreateVault(_ context.Context, vault entities.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(vault.VaultID)
	if id == "" {
		return domainerrors.ErrInvalidInput
	}
	if _, exists := s.vaults[id]; exists {
		return domainerrors.ErrVaultAlreadyExists
	}
	s.vaults[id] = vault.Clone()
	return nil
}

func (s *Store) GetVault(_ context.Context, vaultID string) (entities.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vault, ok := s.vaults[strings.TrimSpace(vaultID)]
	if !ok {
		return entities.Vault{}, domainerrors.ErrVaultNotFound
	}
	return vault.Clone(), nil
}

func (s *Store) UpdateVault(_ context.Context, vault entities.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(vault.VaultID)
	if _, ok := s.vaults[id]; !ok {
		return domainerrors.ErrVaultNotFound
	}
	s.vaults[id] = vault.Clone()
	return nil
}

// Mint seeds an address with spendable funds on the toy token ledger.
func (s *Store) Mint(address string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[strings.TrimSpace(address)] += amount
}

func (s *Store) BalanceOf(address string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[strings.TrimSpace(address)]
}

func (s *Store) Transfer(_ context.Context, from string, to string, amount int64) error {
	if amount < 0 {
		return domainerrors.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if s.balances[from] < amount {
		return domainerrors.ErrInsufficientFunds
	}
	s.balances[from] -= amount
	s.balances[to] += amount
	return nil
}

func (s *Store) TransferFromPool(_ context.Context, capability entities.SigningCapability, to string, amount int64) error {
	if amount < 0 {
		return domainerrors.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delegated, ok := s.delegations[capability.PoolAddress]
	if !ok || delegated.CapabilityID != capability.CapabilityID {
		return domainerrors.ErrInvalidCapability
	}
	pool := strings.TrimSpace(capability.PoolAddress)
	if s.balances[pool] < amount {
		return domainerrors.ErrInsufficientFunds
	}
	s.balances[pool] -= amount
	s.balances[strings.TrimSpace(to)] += amount
	return nil
}

// DelegateCapability issues a fresh capability for the pool, invalidating
// whatever was delegated before. Exactly one capability per pool is valid.
func (s *Store) DelegateCapability(_ context.Context, poolAddress string, holder string) (entities.SigningCapability, error) {
	pool := strings.TrimSpace(poolAddress)
	holder = strings.TrimSpace(holder)
	if pool == "" || holder == "" {
		return entities.SigningCapability{}, domainerrors.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	capability := entities.SigningCapability{
		CapabilityID: uuid.NewString(),
		PoolAddress:  pool,
		Holder:       holder,
	}
	s.delegations[pool] = capability
	return capability, nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		return domainerrors.ErrInvalidInput
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.Message.Payload, payload) {
			return domainerrors.ErrInvalidInput
		}
		return nil
	}
	s.outbox[outboxID] = outboxRecord{
		Message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    envelope.EventType,
			PartitionKey: envelope.PartitionKey,
			Payload:      payload,
			CreatedAt:    envelope.OccurredAt.UTC(),
		},
		Status: outboxStatusPending,
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0)
	for _, row := range s.outbox {
		if row.Status == outboxStatusPending {
			items = append(items, row.Message)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrOutboxNotFound
	}
	ts := publishedAt.UTC()
	row.Status = outboxStatusPublished
	row.PublishedAt = &ts
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
