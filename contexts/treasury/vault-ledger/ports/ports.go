package ports

import (
	"context"
	"time"

	"custodia/contexts/treasury/vault-ledger/domain/entities"

	contractsv1 "custodia/contracts/gen/events/v1"
)

type Repository interface {
	CreateVault(ctx context.Context, vault entities.Vault) error
	GetVault(ctx context.Context, vaultID string) (entities.Vault, error)
	UpdateVault(ctx context.Context, vault entities.Vault) error
}

// TransferClient is the external fungible-asset ledger. Deposits move caller
// funds into the pool; payouts move pool funds out and require the currently
// delegated signing capability.
type TransferClient interface {
	Transfer(ctx context.Context, from string, to string, amount int64) error
	TransferFromPool(ctx context.Context, capability entities.SigningCapability, to string, amount int64) error
}

// AuthorityClient proves signing authority over the pool. Delegating issues a
// fresh single-holder capability and revokes whatever was delegated before,
// so a capability is relocated rather than duplicated.
type AuthorityClient interface {
	DelegateCapability(ctx context.Context, poolAddress string, holder string) (entities.SigningCapability, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type CreateVaultInput struct {
	Creator     string
	PoolAddress string
}

type DepositInput struct {
	VaultID string
	Amount  int64
}

type AllocateInput struct {
	VaultID string
	Target  string
	Amount  int64
}

type WithdrawInput struct {
	VaultID string
	Amount  int64
}

// Snapshot is the combined audit query: beneficiary addresses and amounts are
// parallel slices sorted by address.
type Snapshot struct {
	VaultID        string
	Admin          string
	TotalBalance   int64
	TotalAllocated int64
	Beneficiaries  []string
	Amounts        []int64
}
