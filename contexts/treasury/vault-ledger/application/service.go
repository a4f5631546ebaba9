package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"custodia/contexts/treasury/vault-ledger/domain/entities"
	domainerrors "custodia/contexts/treasury/vault-ledger/domain/errors"
	"custodia/contexts/treasury/vault-ledger/ports"
)

const sourceService = "vault-ledger"

type Service struct {
	Repo      ports.Repository
	Outbox    ports.OutboxWriter
	Transfer  ports.TransferClient
	Authority ports.AuthorityClient
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

// CreateVault initializes a vault with the creator as admin, zero counters,
// and a freshly delegated signing capability for the pool.
func (s Service) CreateVault(ctx context.Context, input ports.CreateVaultInput) (entities.Vault, error) {
	creator := strings.TrimSpace(input.Creator)
	pool := strings.TrimSpace(input.PoolAddress)
	if creator == "" || pool == "" {
		return entities.Vault{}, domainerrors.ErrInvalidInput
	}

	vaultID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return entities.Vault{}, err
	}
	capability, err := s.Authority.DelegateCapability(ctx, pool, creator)
	if err != nil {
		return entities.Vault{}, err
	}

	vault := entities.NewVault(vaultID, creator, pool, capability, s.now())
	if err := s.Repo.CreateVault(ctx, vault); err != nil {
		return entities.Vault{}, err
	}
	if err := s.appendEvent(ctx, "vault.created", vault.VaultID, map[string]any{
		"vault_id":     vault.VaultID,
		"admin":        vault.Admin,
		"pool_address": vault.PoolAddress,
	}); err != nil {
		return entities.Vault{}, err
	}

	ResolveLogger(s.Logger).Info("vault created",
		"event", "vault_created",
		"module", "treasury/vault-ledger",
		"layer", "application",
		"vault_id", vault.VaultID,
		"admin", vault.Admin,
	)
	return vault, nil
}

// GrantPermission authorizes target to deposit. Granting an already
// permissioned address is an idempotent no-op and emits nothing.
func (s Service) GrantPermission(ctx context.Context, caller string, vaultID string, target string) error {
	if strings.TrimSpace(target) == "" {
		return domainerrors.ErrInvalidInput
	}
	vault, err := s.adminVault(ctx, caller, vaultID)
	if err != nil {
		return err
	}
	if !vault.Grant(target) {
		return nil
	}
	vault.UpdatedAt = s.now()
	if err := s.Repo.UpdateVault(ctx, vault); err != nil {
		return err
	}
	return s.appendEvent(ctx, "vault.permission_granted", vault.VaultID, map[string]any{
		"vault_id": vault.VaultID,
		"target":   strings.TrimSpace(target),
	})
}

// RevokePermission removes target's deposit authorization. Revocation never
// touches existing allocations or pending claims.
func (s Service) RevokePermission(ctx context.Context, caller string, vaultID string, target string) error {
	if strings.TrimSpace(target) == "" {
		return domainerrors.ErrInvalidInput
	}
	vault, err := s.adminVault(ctx, caller, vaultID)
	if err != nil {
		return err
	}
	if !vault.Revoke(target) {
		return nil
	}
	vault.UpdatedAt = s.now()
	if err := s.Repo.UpdateVault(ctx, vault); err != nil {
		return err
	}
	return s.appendEvent(ctx, "vault.permission_revoked", vault.VaultID, map[string]any{
		"vault_id": vault.VaultID,
		"target":   strings.TrimSpace(target),
	})
}

// Deposit moves caller funds into the pool and credits the vault balance.
// The external transfer runs first so a refused transfer leaves the vault
// untouched.
func (s Service) Deposit(ctx context.Context, caller string, input ports.DepositInput) error {
	if input.Amount < 0 {
		return domainerrors.ErrInvalidAmount
	}
	vault, err := s.Repo.GetVault(ctx, input.VaultID)
	if err != nil {
		return err
	}
	if !vault.CanDeposit(caller) {
		return domainerrors.ErrPermissionDenied
	}
	if err := s.Transfer.Transfer(ctx, strings.TrimSpace(caller), vault.PoolAddress, input.Amount); err != nil {
		return err
	}
	vault.Credit(input.Amount)
	vault.UpdatedAt = s.now()
	if err := s.Repo.UpdateVault(ctx, vault); err != nil {
		return err
	}
	if err := s.appendEvent(ctx, "vault.tokens_deposited", vault.VaultID, map[string]any{
		"vault_id":  vault.VaultID,
		"depositor": strings.TrimSpace(caller),
		"amount":    input.Amount,
	}); err != nil {
		return err
	}

	ResolveLogger(s.Logger).Info("tokens deposited",
		"event", "vault_tokens_deposited",
		"module", "treasury/vault-ledger",
		"layer", "application",
		"vault_id", vault.VaultID,
		"depositor", strings.TrimSpace(caller),
		"amount", input.Amount,
	)
	return nil
}

// Allocate reserves amount for target against the available balance.
// Repeated allocations to the same target accumulate. A zero amount is a
// no-op and emits nothing.
func (s Service) Allocate(ctx context.Context, caller string, input ports.AllocateInput) error {
	if input.Amount < 0 {
		return domainerrors.ErrInvalidAmount
	}
	if strings.TrimSpace(input.Target) == "" {
		return domainerrors.ErrInvalidInput
	}
	vault, err := s.adminVault(ctx, caller, input.VaultID)
	if err != nil {
		return err
	}
	if input.Amount == 0 {
		return nil
	}
	if !vault.Reserve(input.Target, input.Amount) {
		return domainerrors.ErrInsufficientBalance
	}
	vault.UpdatedAt = s.now()
	if err := s.Repo.UpdateVault(ctx, vault); err != nil {
		return err
	}
	if err := s.appendEvent(ctx, "vault.allocation_made", vault.VaultID, map[string]any{
		"vault_id": vault.VaultID,
		"target":   strings.TrimSpace(input.Target),
		"amount":   input.Amount,
	}); err != nil {
		return err
	}

	ResolveLogger(s.Logger).Info("allocation made",
		"event", "vault_allocation_made",
		"module", "treasury/vault-ledger",
		"layer", "application",
		"vault_id", vault.VaultID,
		"target", strings.TrimSpace(input.Target),
		"amount", input.Amount,
	)
	return nil
}

// CancelAllocation releases target's entire reservation back to the
// available balance. Canceling a non-existent allocation is a no-op.
func (s Service) CancelAllocation(ctx context.Context, caller string, vaultID string, target string) error {
	if strings.TrimSpace(target) == "" {
		return domainerrors.ErrInvalidInput
	}
	vault, err := s.adminVault(ctx, caller, vaultID)
	if err != nil {
		return err
	}
	released := vault.Release(target)
	if released == 0 {
		return nil
	}
	vault.UpdatedAt = s.now()
	if err := s.Repo.UpdateVault(ctx, vault); err != nil {
		return err
	}
	return s.appendEvent(ctx, "vault.allocation_canceled", vault.VaultID, map[string]any{
		"vault_id": vault.VaultID,
		"target":   strings.TrimSpace(target),
		"amount":   released,
	})
}

// Claim pays out the caller's reservation exactly once. The entry and both
// counters are removed and persisted before the pool transfer, so nothing
// re-entering through the transfer step can observe a claimable entry. A
// refused transfer restores the pre-claim state.
func (s Service) Claim(ctx context.Context, caller string, vaultID string) (int64, error) {
	vault, err := s.Repo.GetVault(ctx, vaultID)
	if err != nil {
		return 0, err
	}
	amount, ok := vault.TakeAllocation(caller)
	if !ok {
		return 0, domainerrors.ErrNoAllocation
	}
	vault.UpdatedAt = s.now()
	if err := s.Repo.UpdateVault(ctx, vault); err != nil {
		return 0, err
	}

	if err := s.Transfer.TransferFromPool(ctx, vault.Capability, strings.TrimSpace(caller), amount); err != nil {
		vault.RestoreAllocation(caller, amount)
		vault.UpdatedAt = s.now()
		if restoreErr := s.Repo.UpdateVault(ctx, vault); restoreErr != nil {
			ResolveLogger(s.Logger).Error("claim rollback failed",
				"event", "vault_claim_rollback_failed",
				"module", "treasury/vault-ledger",
				"layer", "application",
				"vault_id", vault.VaultID,
				"claimant", strings.TrimSpace(caller),
				"error", restoreErr.Error(),
			)
			return 0, restoreErr
		}
		return 0, err
	}

	// The payout is committed at this point; a failed outbox append must
	// not make the claim look failed.
	if err := s.appendEvent(ctx, "vault.allocation_claimed", vault.VaultID, map[string]any{
		"vault_id": vault.VaultID,
		"claimant": strings.TrimSpace(caller),
		"amount":   amount,
	}); err != nil {
		ResolveLogger(s.Logger).Error("claim event append failed",
			"event", "vault_event_append_failed",
			"module", "treasury/vault-ledger",
			"layer", "application",
			"vault_id", vault.VaultID,
			"claimant", strings.TrimSpace(caller),
			"error", err.Error(),
		)
	}

	ResolveLogger(s.Logger).Info("allocation claimed",
		"event", "vault_allocation_claimed",
		"module", "treasury/vault-ledger",
		"layer", "application",
		"vault_id", vault.VaultID,
		"claimant", strings.TrimSpace(caller),
		"amount", amount,
	)
	return amount, nil
}

// Withdraw pays unreserved surplus to the admin. Funds already promised to
// beneficiaries are never withdrawable.
func (s Service) Withdraw(ctx context.Context, caller string, input ports.WithdrawInput) error {
	if input.Amount < 0 {
		return domainerrors.ErrInvalidAmount
	}
	vault, err := s.adminVault(ctx, caller, input.VaultID)
	if err != nil {
		return err
	}
	if !vault.Debit(input.Amount) {
		return domainerrors.ErrInsufficientBalance
	}
	vault.UpdatedAt = s.now()
	if err := s.Repo.UpdateVault(ctx, vault); err != nil {
		return err
	}

	if err := s.Transfer.TransferFromPool(ctx, vault.Capability, vault.Admin, input.Amount); err != nil {
		vault.Credit(input.Amount)
		vault.UpdatedAt = s.now()
		if restoreErr := s.Repo.UpdateVault(ctx, vault); restoreErr != nil {
			return restoreErr
		}
		return err
	}

	if err := s.appendEvent(ctx, "vault.tokens_withdrawn", vault.VaultID, map[string]any{
		"vault_id": vault.VaultID,
		"amount":   input.Amount,
	}); err != nil {
		ResolveLogger(s.Logger).Error("withdraw event append failed",
			"event", "vault_event_append_failed",
			"module", "treasury/vault-ledger",
			"layer", "application",
			"vault_id", vault.VaultID,
			"error", err.Error(),
		)
	}

	ResolveLogger(s.Logger).Info("tokens withdrawn",
		"event", "vault_tokens_withdrawn",
		"module", "treasury/vault-ledger",
		"layer", "application",
		"vault_id", vault.VaultID,
		"amount", input.Amount,
	)
	return nil
}

// ChangeAdmin hands authority to newAdmin. The signing capability is
// re-delegated to newAdmin and persisted together with the admin field in a
// single UpdateVault, so the two can never be observed apart. If persistence
// fails the capability is delegated back to the old admin and the restored
// delegation is persisted, so the stored capability always matches the
// authority's live one.
func (s Service) ChangeAdmin(ctx context.Context, caller string, vaultID string, newAdmin string) error {
	newAdmin = strings.TrimSpace(newAdmin)
	if newAdmin == "" {
		return domainerrors.ErrInvalidInput
	}
	vault, err := s.adminVault(ctx, caller, vaultID)
	if err != nil {
		return err
	}

	capability, err := s.Authority.DelegateCapability(ctx, vault.PoolAddress, newAdmin)
	if err != nil {
		return err
	}
	previous := vault.ChangeAdmin(newAdmin, capability)
	vault.UpdatedAt = s.now()
	if err := s.Repo.UpdateVault(ctx, vault); err != nil {
		restored, redelegateErr := s.Authority.DelegateCapability(ctx, vault.PoolAddress, previous)
		if redelegateErr != nil {
			ResolveLogger(s.Logger).Error("capability restore failed",
				"event", "vault_capability_restore_failed",
				"module", "treasury/vault-ledger",
				"layer", "application",
				"vault_id", vault.VaultID,
				"holder", previous,
				"error", redelegateErr.Error(),
			)
			return err
		}
		// Delegating back issues a fresh capability, so the record must be
		// rewritten or claims would carry a stale one.
		vault.ChangeAdmin(previous, restored)
		vault.UpdatedAt = s.now()
		if restoreErr := s.Repo.UpdateVault(ctx, vault); restoreErr != nil {
			ResolveLogger(s.Logger).Error("capability restore failed",
				"event", "vault_capability_restore_failed",
				"module", "treasury/vault-ledger",
				"layer", "application",
				"vault_id", vault.VaultID,
				"holder", previous,
				"error", restoreErr.Error(),
			)
			return restoreErr
		}
		return err
	}

	if err := s.appendEvent(ctx, "vault.admin_changed", vault.VaultID, map[string]any{
		"vault_id":  vault.VaultID,
		"old_admin": previous,
		"new_admin": newAdmin,
	}); err != nil {
		return err
	}

	ResolveLogger(s.Logger).Info("admin changed",
		"event", "vault_admin_changed",
		"module", "treasury/vault-ledger",
		"layer", "application",
		"vault_id", vault.VaultID,
		"old_admin", previous,
		"new_admin", newAdmin,
	)
	return nil
}

func (s Service) Balance(ctx context.Context, vaultID string) (int64, error) {
	vault, err := s.Repo.GetVault(ctx, vaultID)
	if err != nil {
		return 0, err
	}
	return vault.TotalBalance, nil
}

func (s Service) TotalAllocated(ctx context.Context, vaultID string) (int64, error) {
	vault, err := s.Repo.GetVault(ctx, vaultID)
	if err != nil {
		return 0, err
	}
	return vault.TotalAllocated, nil
}

func (s Service) HasPermission(ctx context.Context, vaultID string, address string) (bool, error) {
	vault, err := s.Repo.GetVault(ctx, vaultID)
	if err != nil {
		return false, err
	}
	return vault.HasPermission(address), nil
}

func (s Service) AllocationOf(ctx context.Context, vaultID string, address string) (int64, error) {
	vault, err := s.Repo.GetVault(ctx, vaultID)
	if err != nil {
		return 0, err
	}
	return vault.AllocationOf(address), nil
}

// Snapshot is the combined audit query: counters plus parallel slices of
// beneficiary addresses and reserved amounts, sorted by address.
func (s Service) Snapshot(ctx context.Context, vaultID string) (ports.Snapshot, error) {
	vault, err := s.Repo.GetVault(ctx, vaultID)
	if err != nil {
		return ports.Snapshot{}, err
	}
	beneficiaries := vault.Beneficiaries()
	amounts := make([]int64, 0, len(beneficiaries))
	for _, address := range beneficiaries {
		amounts = append(amounts, vault.Allocations[address])
	}
	return ports.Snapshot{
		VaultID:        vault.VaultID,
		Admin:          vault.Admin,
		TotalBalance:   vault.TotalBalance,
		TotalAllocated: vault.TotalAllocated,
		Beneficiaries:  beneficiaries,
		Amounts:        amounts,
	}, nil
}

func (s Service) adminVault(ctx context.Context, caller string, vaultID string) (entities.Vault, error) {
	vault, err := s.Repo.GetVault(ctx, vaultID)
	if err != nil {
		return entities.Vault{}, err
	}
	if !vault.IsAdmin(caller) {
		return entities.Vault{}, domainerrors.ErrNotAdmin
	}
	return vault, nil
}

func (s Service) appendEvent(ctx context.Context, eventType string, vaultID string, payload map[string]any) error {
	if s.Outbox == nil {
		return nil
	}
	eventID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:          strings.TrimSpace(eventID),
		EventType:        eventType,
		OccurredAt:       s.now(),
		SourceService:    sourceService,
		TraceID:          strings.TrimSpace(eventID),
		SchemaVersion:    1,
		PartitionKeyPath: "vault_id",
		PartitionKey:     vaultID,
		Data:             data,
	})
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}
