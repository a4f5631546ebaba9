package application

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"custodia/contexts/treasury/vault-ledger/adapters/memory"
	"custodia/contexts/treasury/vault-ledger/domain/entities"
	domainerrors "custodia/contexts/treasury/vault-ledger/domain/errors"
	"custodia/contexts/treasury/vault-ledger/ports"
)

func newTestService() (Service, *memory.Store) {
	store := memory.NewStore()
	service := Service{
		Repo:      store,
		Outbox:    store,
		Transfer:  store,
		Authority: store,
		Clock:     store,
		IDGen:     store,
	}
	return service, store
}

func mustCreateVault(t *testing.T, service Service) entities.Vault {
	t.Helper()
	vault, err := service.CreateVault(context.Background(), ports.CreateVaultInput{
		Creator:     "admin-1",
		PoolAddress: "pool-1",
	})
	if err != nil {
		t.Fatalf("create vault returned error: %v", err)
	}
	return vault
}

func assertInvariants(t *testing.T, service Service, vaultID string) {
	t.Helper()
	snapshot, err := service.Snapshot(context.Background(), vaultID)
	if err != nil {
		t.Fatalf("snapshot returned error: %v", err)
	}
	var sum int64
	for i, amount := range snapshot.Amounts {
		if amount <= 0 {
			t.Fatalf("allocation for %s is %d, zero entries must not persist", snapshot.Beneficiaries[i], amount)
		}
		sum += amount
	}
	if sum != snapshot.TotalAllocated {
		t.Fatalf("total_allocated %d does not equal allocation sum %d", snapshot.TotalAllocated, sum)
	}
	if snapshot.TotalBalance < snapshot.TotalAllocated {
		t.Fatalf("total_balance %d below total_allocated %d", snapshot.TotalBalance, snapshot.TotalAllocated)
	}
}

func TestCreateVaultStartsEmpty(t *testing.T) {
	service, _ := newTestService()
	vault := mustCreateVault(t, service)

	if vault.Admin != "admin-1" {
		t.Fatalf("expected creator as admin, got %s", vault.Admin)
	}
	if vault.TotalBalance != 0 || vault.TotalAllocated != 0 {
		t.Fatalf("expected zero counters, got balance=%d allocated=%d", vault.TotalBalance, vault.TotalAllocated)
	}
	if vault.Capability.Holder != "admin-1" {
		t.Fatalf("expected capability delegated to creator, held by %s", vault.Capability.Holder)
	}
	assertInvariants(t, service, vault.VaultID)
}

func TestGrantPermissionIsIdempotent(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	if err := service.GrantPermission(ctx, "admin-1", vault.VaultID, "user-1"); err != nil {
		t.Fatalf("first grant returned error: %v", err)
	}
	if err := service.GrantPermission(ctx, "admin-1", vault.VaultID, "user-1"); err != nil {
		t.Fatalf("second grant returned error: %v", err)
	}

	permitted, err := service.HasPermission(ctx, vault.VaultID, "user-1")
	if err != nil || !permitted {
		t.Fatalf("expected user-1 permitted, got permitted=%v err=%v", permitted, err)
	}

	granted := countEvents(t, store, "vault.permission_granted")
	if granted != 1 {
		t.Fatalf("expected exactly one permission_granted event, got %d", granted)
	}
}

func TestRevokeAbsentPermissionIsNoOp(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)

	if err := service.RevokePermission(context.Background(), "admin-1", vault.VaultID, "ghost"); err != nil {
		t.Fatalf("revoke of absent target returned error: %v", err)
	}
	if n := countEvents(t, store, "vault.permission_revoked"); n != 0 {
		t.Fatalf("expected no revoked event for no-op, got %d", n)
	}
}

func TestDepositRequiresPermission(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	store.Mint("stranger", 100)

	err := service.Deposit(context.Background(), "stranger", ports.DepositInput{
		VaultID: vault.VaultID,
		Amount:  100,
	})
	if !errors.Is(err, domainerrors.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	balance, _ := service.Balance(context.Background(), vault.VaultID)
	if balance != 0 {
		t.Fatalf("expected untouched balance, got %d", balance)
	}
	if store.BalanceOf("stranger") != 100 {
		t.Fatalf("expected stranger funds untouched, got %d", store.BalanceOf("stranger"))
	}
}

func TestDepositWithInsufficientFundsLeavesStateUnchanged(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	if err := service.GrantPermission(ctx, "admin-1", vault.VaultID, "user-1"); err != nil {
		t.Fatalf("grant returned error: %v", err)
	}
	store.Mint("user-1", 50)

	err := service.Deposit(ctx, "user-1", ports.DepositInput{VaultID: vault.VaultID, Amount: 100})
	if !errors.Is(err, domainerrors.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	balance, _ := service.Balance(ctx, vault.VaultID)
	if balance != 0 {
		t.Fatalf("expected zero balance after failed deposit, got %d", balance)
	}
	if n := countEvents(t, store, "vault.tokens_deposited"); n != 0 {
		t.Fatalf("expected no deposit event on failure, got %d", n)
	}
}

func TestZeroDepositIsAccepted(t *testing.T) {
	service, _ := newTestService()
	vault := mustCreateVault(t, service)

	if err := service.Deposit(context.Background(), "admin-1", ports.DepositInput{VaultID: vault.VaultID}); err != nil {
		t.Fatalf("zero deposit returned error: %v", err)
	}
	balance, _ := service.Balance(context.Background(), vault.VaultID)
	if balance != 0 {
		t.Fatalf("zero deposit must contribute nothing, got %d", balance)
	}
}

func TestAllocateExceedingAvailableFails(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	store.Mint("admin-1", 1000)
	if err := service.Deposit(ctx, "admin-1", ports.DepositInput{VaultID: vault.VaultID, Amount: 300}); err != nil {
		t.Fatalf("deposit returned error: %v", err)
	}
	if err := service.Allocate(ctx, "admin-1", ports.AllocateInput{VaultID: vault.VaultID, Target: "user-1", Amount: 200}); err != nil {
		t.Fatalf("allocate returned error: %v", err)
	}

	before, _ := service.Snapshot(ctx, vault.VaultID)
	err := service.Allocate(ctx, "admin-1", ports.AllocateInput{VaultID: vault.VaultID, Target: "user-2", Amount: 101})
	if !errors.Is(err, domainerrors.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	after, _ := service.Snapshot(ctx, vault.VaultID)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("failed allocate mutated state: before=%+v after=%+v", before, after)
	}
	assertInvariants(t, service, vault.VaultID)
}

func TestAllocateAccumulates(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	store.Mint("admin-1", 1000)
	if err := service.Deposit(ctx, "admin-1", ports.DepositInput{VaultID: vault.VaultID, Amount: 500}); err != nil {
		t.Fatalf("deposit returned error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := service.Allocate(ctx, "admin-1", ports.AllocateInput{VaultID: vault.VaultID, Target: "user-1", Amount: 100}); err != nil {
			t.Fatalf("allocate %d returned error: %v", i, err)
		}
	}
	amount, err := service.AllocationOf(ctx, vault.VaultID, "user-1")
	if err != nil {
		t.Fatalf("allocation query returned error: %v", err)
	}
	if amount != 300 {
		t.Fatalf("expected accumulated 300, got %d", amount)
	}
	assertInvariants(t, service, vault.VaultID)
}

func TestCancelAllocationReleasesWholeReservation(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	store.Mint("admin-1", 1000)
	if err := service.Deposit(ctx, "admin-1", ports.DepositInput{VaultID: vault.VaultID, Amount: 400}); err != nil {
		t.Fatalf("deposit returned error: %v", err)
	}
	if err := service.Allocate(ctx, "admin-1", ports.AllocateInput{VaultID: vault.VaultID, Target: "user-1", Amount: 250}); err != nil {
		t.Fatalf("allocate returned error: %v", err)
	}
	if err := service.CancelAllocation(ctx, "admin-1", vault.VaultID, "user-1"); err != nil {
		t.Fatalf("cancel returned error: %v", err)
	}

	amount, _ := service.AllocationOf(ctx, vault.VaultID, "user-1")
	if amount != 0 {
		t.Fatalf("expected allocation cleared, got %d", amount)
	}
	allocated, _ := service.TotalAllocated(ctx, vault.VaultID)
	if allocated != 0 {
		t.Fatalf("expected total_allocated 0 after cancel, got %d", allocated)
	}

	// Canceling again is a no-op and emits nothing further.
	if err := service.CancelAllocation(ctx, "admin-1", vault.VaultID, "user-1"); err != nil {
		t.Fatalf("repeat cancel returned error: %v", err)
	}
	if n := countEvents(t, store, "vault.allocation_canceled"); n != 1 {
		t.Fatalf("expected one canceled event, got %d", n)
	}
	assertInvariants(t, service, vault.VaultID)
}

func TestDepositAllocateClaimScenario(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	if err := service.GrantPermission(ctx, "admin-1", vault.VaultID, "user-1"); err != nil {
		t.Fatalf("grant returned error: %v", err)
	}
	store.Mint("user-1", 1000)
	if err := service.Deposit(ctx, "user-1", ports.DepositInput{VaultID: vault.VaultID, Amount: 1000}); err != nil {
		t.Fatalf("deposit returned error: %v", err)
	}
	if err := service.Allocate(ctx, "admin-1", ports.AllocateInput{VaultID: vault.VaultID, Target: "user-1", Amount: 500}); err != nil {
		t.Fatalf("allocate returned error: %v", err)
	}

	amount, err := service.Claim(ctx, "user-1", vault.VaultID)
	if err != nil {
		t.Fatalf("claim returned error: %v", err)
	}
	if amount != 500 {
		t.Fatalf("expected claim of 500, got %d", amount)
	}

	balance, _ := service.Balance(ctx, vault.VaultID)
	if balance != 500 {
		t.Fatalf("expected final balance 500, got %d", balance)
	}
	allocated, _ := service.TotalAllocated(ctx, vault.VaultID)
	if allocated != 0 {
		t.Fatalf("expected total_allocated 0, got %d", allocated)
	}
	remaining, _ := service.AllocationOf(ctx, vault.VaultID, "user-1")
	if remaining != 0 {
		t.Fatalf("expected allocation entry absent, got %d", remaining)
	}
	if store.BalanceOf("user-1") != 500 {
		t.Fatalf("expected user-1 paid out 500, holds %d", store.BalanceOf("user-1"))
	}
	assertInvariants(t, service, vault.VaultID)
}

func TestClaimIsExactlyOnce(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	store.Mint("admin-1", 1000)
	if err := service.Deposit(ctx, "admin-1", ports.DepositInput{VaultID: vault.VaultID, Amount: 1000}); err != nil {
		t.Fatalf("deposit returned error: %v", err)
	}
	if err := service.Allocate(ctx, "admin-1", ports.AllocateInput{VaultID: vault.VaultID, Target: "user-1", Amount: 400}); err != nil {
		t.Fatalf("allocate returned error: %v", err)
	}

	if _, err := service.Claim(ctx, "user-1", vault.VaultID); err != nil {
		t.Fatalf("first claim returned error: %v", err)
	}
	_, err := service.Claim(ctx, "user-1", vault.VaultID)
	if !errors.Is(err, domainerrors.ErrNoAllocation) {
		t.Fatalf("expected ErrNoAllocation on second claim, got %v", err)
	}
}

func TestClaimWithoutAllocationFails(t *testing.T) {
	service, _ := newTestService()
	vault := mustCreateVault(t, service)

	_, err := service.Claim(context.Background(), "nobody", vault.VaultID)
	if !errors.Is(err, domainerrors.ErrNoAllocation) {
		t.Fatalf("expected ErrNoAllocation, got %v", err)
	}
}

type failingPoolTransfer struct {
	*memory.Store
}

func (failingPoolTransfer) TransferFromPool(context.Context, entities.SigningCapability, string, int64) error {
	return domainerrors.ErrInvalidCapability
}

func TestClaimRestoresAllocationWhenTransferFails(t *testing.T) {
	store := memory.NewStore()
	service := Service{
		Repo:      store,
		Outbox:    store,
		Transfer:  failingPoolTransfer{store},
		Authority: store,
		Clock:     store,
		IDGen:     store,
	}
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	store.Mint("admin-1", 1000)
	if err := service.Deposit(ctx, "admin-1", ports.DepositInput{VaultID: vault.VaultID, Amount: 1000}); err != nil {
		t.Fatalf("deposit returned error: %v", err)
	}
	if err := service.Allocate(ctx, "admin-1", ports.AllocateInput{VaultID: vault.VaultID, Target: "user-1", Amount: 600}); err != nil {
		t.Fatalf("allocate returned error: %v", err)
	}

	_, err := service.Claim(ctx, "user-1", vault.VaultID)
	if !errors.Is(err, domainerrors.ErrInvalidCapability) {
		t.Fatalf("expected transfer failure surfaced, got %v", err)
	}

	amount, _ := service.AllocationOf(ctx, vault.VaultID, "user-1")
	if amount != 600 {
		t.Fatalf("expected allocation restored to 600, got %d", amount)
	}
	balance, _ := service.Balance(ctx, vault.VaultID)
	if balance != 1000 {
		t.Fatalf("expected balance restored to 1000, got %d", balance)
	}
	if n := countEvents(t, store, "vault.allocation_claimed"); n != 0 {
		t.Fatalf("expected no claimed event after rollback, got %d", n)
	}
	assertInvariants(t, service, vault.VaultID)
}

type failingOutbox struct{}

func (failingOutbox) AppendOutbox(context.Context, ports.EventEnvelope) error {
	return errors.New("outbox unavailable")
}

func TestClaimSucceedsWhenEventAppendFails(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	store.Mint("admin-1", 1000)
	if err := service.Deposit(ctx, "admin-1", ports.DepositInput{VaultID: vault.VaultID, Amount: 1000}); err != nil {
		t.Fatalf("deposit returned error: %v", err)
	}
	if err := service.Allocate(ctx, "admin-1", ports.AllocateInput{VaultID: vault.VaultID, Target: "user-1", Amount: 400}); err != nil {
		t.Fatalf("allocate returned error: %v", err)
	}

	service.Outbox = failingOutbox{}
	amount, err := service.Claim(ctx, "user-1", vault.VaultID)
	if err != nil {
		t.Fatalf("claim with committed payout must succeed, got %v", err)
	}
	if amount != 400 {
		t.Fatalf("expected claim of 400, got %d", amount)
	}
	if store.BalanceOf("user-1") != 400 {
		t.Fatalf("expected user-1 paid out 400, holds %d", store.BalanceOf("user-1"))
	}
	assertInvariants(t, service, vault.VaultID)
}

func TestZeroAllocateIsNoOp(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	before, _ := service.Snapshot(ctx, vault.VaultID)
	if err := service.Allocate(ctx, "admin-1", ports.AllocateInput{VaultID: vault.VaultID, Target: "user-1"}); err != nil {
		t.Fatalf("zero allocate returned error: %v", err)
	}
	after, _ := service.Snapshot(ctx, vault.VaultID)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("zero allocate mutated state: before=%+v after=%+v", before, after)
	}
	if n := countEvents(t, store, "vault.allocation_made"); n != 0 {
		t.Fatalf("expected no allocation event for no-op, got %d", n)
	}
}

func TestWithdrawOnlyUnreservedSurplus(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	store.Mint("admin-1", 1000)
	if err := service.Deposit(ctx, "admin-1", ports.DepositInput{VaultID: vault.VaultID, Amount: 1000}); err != nil {
		t.Fatalf("deposit returned error: %v", err)
	}
	if err := service.Allocate(ctx, "admin-1", ports.AllocateInput{VaultID: vault.VaultID, Target: "user-1", Amount: 700}); err != nil {
		t.Fatalf("allocate returned error: %v", err)
	}

	err := service.Withdraw(ctx, "admin-1", ports.WithdrawInput{VaultID: vault.VaultID, Amount: 400})
	if !errors.Is(err, domainerrors.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance withdrawing reserved funds, got %v", err)
	}
	if err := service.Withdraw(ctx, "admin-1", ports.WithdrawInput{VaultID: vault.VaultID, Amount: 300}); err != nil {
		t.Fatalf("surplus withdrawal returned error: %v", err)
	}
	balance, _ := service.Balance(ctx, vault.VaultID)
	if balance != 700 {
		t.Fatalf("expected balance 700 after withdrawal, got %d", balance)
	}
	assertInvariants(t, service, vault.VaultID)
}

func TestDepositThenWithdrawConserves(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	store.Mint("admin-1", 250)
	if err := service.Deposit(ctx, "admin-1", ports.DepositInput{VaultID: vault.VaultID, Amount: 250}); err != nil {
		t.Fatalf("deposit returned error: %v", err)
	}
	if err := service.Withdraw(ctx, "admin-1", ports.WithdrawInput{VaultID: vault.VaultID, Amount: 250}); err != nil {
		t.Fatalf("withdraw returned error: %v", err)
	}
	balance, _ := service.Balance(ctx, vault.VaultID)
	if balance != 0 {
		t.Fatalf("expected balance back to 0, got %d", balance)
	}
	if store.BalanceOf("admin-1") != 250 {
		t.Fatalf("expected admin funds restored, holds %d", store.BalanceOf("admin-1"))
	}
}

func TestAdminOnlyOperationsGateNonAdmins(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	store.Mint("admin-1", 100)
	if err := service.Deposit(ctx, "admin-1", ports.DepositInput{VaultID: vault.VaultID, Amount: 100}); err != nil {
		t.Fatalf("deposit returned error: %v", err)
	}
	before, _ := service.Snapshot(ctx, vault.VaultID)

	attempts := []error{
		service.GrantPermission(ctx, "mallory", vault.VaultID, "mallory"),
		service.RevokePermission(ctx, "mallory", vault.VaultID, "admin-1"),
		service.Allocate(ctx, "mallory", ports.AllocateInput{VaultID: vault.VaultID, Target: "mallory", Amount: 50}),
		service.CancelAllocation(ctx, "mallory", vault.VaultID, "admin-1"),
		service.Withdraw(ctx, "mallory", ports.WithdrawInput{VaultID: vault.VaultID, Amount: 50}),
		service.ChangeAdmin(ctx, "mallory", vault.VaultID, "mallory"),
	}
	for i, err := range attempts {
		if !errors.Is(err, domainerrors.ErrNotAdmin) {
			t.Fatalf("attempt %d: expected ErrNotAdmin, got %v", i, err)
		}
	}

	after, _ := service.Snapshot(ctx, vault.VaultID)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("gated operation mutated state: before=%+v after=%+v", before, after)
	}
}

func TestChangeAdminRelocatesAuthority(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	store.Mint("admin-1", 500)
	if err := service.Deposit(ctx, "admin-1", ports.DepositInput{VaultID: vault.VaultID, Amount: 500}); err != nil {
		t.Fatalf("deposit returned error: %v", err)
	}
	oldCapability := vault.Capability

	if err := service.ChangeAdmin(ctx, "admin-1", vault.VaultID, "admin-2"); err != nil {
		t.Fatalf("change admin returned error: %v", err)
	}

	err := service.Withdraw(ctx, "admin-1", ports.WithdrawInput{VaultID: vault.VaultID, Amount: 100})
	if !errors.Is(err, domainerrors.ErrNotAdmin) {
		t.Fatalf("expected old admin gated with ErrNotAdmin, got %v", err)
	}
	if err := service.Withdraw(ctx, "admin-2", ports.WithdrawInput{VaultID: vault.VaultID, Amount: 100}); err != nil {
		t.Fatalf("new admin withdrawal returned error: %v", err)
	}

	// The old capability was revoked when the new one was delegated.
	err = store.TransferFromPool(ctx, oldCapability, "admin-1", 1)
	if !errors.Is(err, domainerrors.ErrInvalidCapability) {
		t.Fatalf("expected old capability rejected, got %v", err)
	}
}

type flakyRepository struct {
	*memory.Store
	failures int
}

func (r *flakyRepository) UpdateVault(ctx context.Context, vault entities.Vault) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("storage offline")
	}
	return r.Store.UpdateVault(ctx, vault)
}

func TestChangeAdminFailureKeepsVaultClaimable(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	store.Mint("admin-1", 1000)
	if err := service.Deposit(ctx, "admin-1", ports.DepositInput{VaultID: vault.VaultID, Amount: 1000}); err != nil {
		t.Fatalf("deposit returned error: %v", err)
	}
	if err := service.Allocate(ctx, "admin-1", ports.AllocateInput{VaultID: vault.VaultID, Target: "user-1", Amount: 50}); err != nil {
		t.Fatalf("allocate returned error: %v", err)
	}

	service.Repo = &flakyRepository{Store: store, failures: 1}
	if err := service.ChangeAdmin(ctx, "admin-1", vault.VaultID, "admin-2"); err == nil {
		t.Fatal("expected change admin to surface the persistence failure")
	}

	snapshot, err := service.Snapshot(ctx, vault.VaultID)
	if err != nil {
		t.Fatalf("snapshot returned error: %v", err)
	}
	if snapshot.Admin != "admin-1" {
		t.Fatalf("expected admin unchanged after failed transfer, got %s", snapshot.Admin)
	}

	// The stored capability must still match the authority's delegation,
	// so payouts keep working after the aborted transfer.
	amount, err := service.Claim(ctx, "user-1", vault.VaultID)
	if err != nil {
		t.Fatalf("claim after failed admin change returned error: %v", err)
	}
	if amount != 50 {
		t.Fatalf("expected claim of 50, got %d", amount)
	}
	if err := service.Withdraw(ctx, "admin-1", ports.WithdrawInput{VaultID: vault.VaultID, Amount: 950}); err != nil {
		t.Fatalf("withdraw after failed admin change returned error: %v", err)
	}
	assertInvariants(t, service, vault.VaultID)
}

func TestQueriesAgainstUnknownVault(t *testing.T) {
	service, _ := newTestService()

	if _, err := service.Balance(context.Background(), "missing"); !errors.Is(err, domainerrors.ErrVaultNotFound) {
		t.Fatalf("expected ErrVaultNotFound, got %v", err)
	}
	if _, err := service.Snapshot(context.Background(), "missing"); !errors.Is(err, domainerrors.ErrVaultNotFound) {
		t.Fatalf("expected ErrVaultNotFound, got %v", err)
	}
}

func TestSnapshotListsBeneficiariesSorted(t *testing.T) {
	service, store := newTestService()
	vault := mustCreateVault(t, service)
	ctx := context.Background()

	store.Mint("admin-1", 1000)
	if err := service.Deposit(ctx, "admin-1", ports.DepositInput{VaultID: vault.VaultID, Amount: 600}); err != nil {
		t.Fatalf("deposit returned error: %v", err)
	}
	for target, amount := range map[string]int64{"charlie": 100, "alice": 200, "bob": 300} {
		if err := service.Allocate(ctx, "admin-1", ports.AllocateInput{VaultID: vault.VaultID, Target: target, Amount: amount}); err != nil {
			t.Fatalf("allocate %s returned error: %v", target, err)
		}
	}

	snapshot, err := service.Snapshot(ctx, vault.VaultID)
	if err != nil {
		t.Fatalf("snapshot returned error: %v", err)
	}
	wantAddresses := []string{"alice", "bob", "charlie"}
	wantAmounts := []int64{200, 300, 100}
	if !reflect.DeepEqual(snapshot.Beneficiaries, wantAddresses) {
		t.Fatalf("expected sorted beneficiaries %v, got %v", wantAddresses, snapshot.Beneficiaries)
	}
	if !reflect.DeepEqual(snapshot.Amounts, wantAmounts) {
		t.Fatalf("expected parallel amounts %v, got %v", wantAmounts, snapshot.Amounts)
	}
}

func countEvents(t *testing.T, store *memory.Store, eventType string) int {
	t.Helper()
	pending, err := store.ListPendingOutbox(context.Background(), 1000)
	if err != nil {
		t.Fatalf("list pending outbox returned error: %v", err)
	}
	count := 0
	for _, message := range pending {
		var envelope ports.EventEnvelope
		if err := json.Unmarshal(message.Payload, &envelope); err != nil {
			t.Fatalf("decode outbox payload: %v", err)
		}
		if envelope.EventType == eventType {
			count++
		}
	}
	return count
}
