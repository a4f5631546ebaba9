package entities

import (
	"sort"
	"strings"
	"time"
)

// SigningCapability is the delegated authority the ledger presents when it
// originates transfers out of the pool. A pool has at most one valid
// capability at a time; delegating a new one revokes the previous.
type SigningCapability struct {
	CapabilityID string
	PoolAddress  string
	Holder       string
}

// Vault is the allocation-bookkeeping aggregate. All counter updates go
// through its methods so the invariants stay local:
//
//	TotalAllocated == sum(Allocations)
//	TotalBalance   >= TotalAllocated
//	every stored allocation is strictly positive
//	Capability.Holder == Admin
type Vault struct {
	VaultID        string
	Admin          string
	PoolAddress    string
	Permissions    map[string]struct{}
	Allocations    map[string]int64
	TotalAllocated int64
	TotalBalance   int64
	Capability     SigningCapability
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewVault(vaultID string, admin string, poolAddress string, capability SigningCapability, now time.Time) Vault {
	return Vault{
		VaultID:     strings.TrimSpace(vaultID),
		Admin:       strings.TrimSpace(admin),
		PoolAddress: strings.TrimSpace(poolAddress),
		Permissions: make(map[string]struct{}),
		Allocations: make(map[string]int64),
		Capability:  capability,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
}

func (v Vault) IsAdmin(caller string) bool {
	return strings.TrimSpace(caller) != "" && strings.TrimSpace(caller) == v.Admin
}

func (v Vault) CanDeposit(caller string) bool {
	if v.IsAdmin(caller) {
		return true
	}
	_, ok := v.Permissions[strings.TrimSpace(caller)]
	return ok
}

func (v Vault) HasPermission(address string) bool {
	_, ok := v.Permissions[strings.TrimSpace(address)]
	return ok
}

// Available is the unreserved surplus an admin may withdraw or allocate from.
func (v Vault) Available() int64 {
	return v.TotalBalance - v.TotalAllocated
}

// AllocationOf treats an absent beneficiary as zero.
func (v Vault) AllocationOf(address string) int64 {
	return v.Allocations[strings.TrimSpace(address)]
}

// Grant adds target to the permission set. Returns false when target was
// already permissioned (idempotent no-op).
func (v *Vault) Grant(target string) bool {
	target = strings.TrimSpace(target)
	if _, ok := v.Permissions[target]; ok {
		return false
	}
	v.Permissions[target] = struct{}{}
	return true
}

// Revoke removes target from the permission set. Returns false when target
// was not permissioned. Existing allocations are untouched.
func (v *Vault) Revoke(target string) bool {
	target = strings.TrimSpace(target)
	if _, ok := v.Permissions[target]; !ok {
		return false
	}
	delete(v.Permissions, target)
	return true
}

func (v *Vault) Credit(amount int64) {
	v.TotalBalance += amount
}

// Reserve accumulates an allocation for target against the available balance.
// A zero amount is accepted but never materializes a zero-valued entry.
func (v *Vault) Reserve(target string, amount int64) bool {
	if v.Available() < amount {
		return false
	}
	target = strings.TrimSpace(target)
	if amount > 0 {
		v.Allocations[target] += amount
		v.TotalAllocated += amount
	}
	return true
}

// Release drops the whole reservation for target (all-or-nothing) and
// returns the released amount, zero when no entry existed.
func (v *Vault) Release(target string) int64 {
	target = strings.TrimSpace(target)
	amount, ok := v.Allocations[target]
	if !ok {
		return 0
	}
	delete(v.Allocations, target)
	v.TotalAllocated -= amount
	return amount
}

// TakeAllocation removes the claimant's entry and decrements both counters.
// Callers persist this state before touching the pool so a re-entrant claim
// observes the entry already gone.
func (v *Vault) TakeAllocation(claimant string) (int64, bool) {
	claimant = strings.TrimSpace(claimant)
	amount, ok := v.Allocations[claimant]
	if !ok || amount <= 0 {
		return 0, false
	}
	delete(v.Allocations, claimant)
	v.TotalAllocated -= amount
	v.TotalBalance -= amount
	return amount, true
}

// RestoreAllocation undoes TakeAllocation after a failed pool transfer.
func (v *Vault) RestoreAllocation(claimant string, amount int64) {
	claimant = strings.TrimSpace(claimant)
	v.Allocations[claimant] += amount
	v.TotalAllocated += amount
	v.TotalBalance += amount
}

// Debit removes surplus for an admin withdrawal.
func (v *Vault) Debit(amount int64) bool {
	if v.Available() < amount {
		return false
	}
	v.TotalBalance -= amount
	return true
}

// ChangeAdmin moves admin authority and the signing capability as one unit;
// a vault where the two disagree is unreachable through this method.
func (v *Vault) ChangeAdmin(newAdmin string, capability SigningCapability) string {
	previous := v.Admin
	v.Admin = strings.TrimSpace(newAdmin)
	v.Capability = capability
	return previous
}

// Beneficiaries returns the addresses holding a reservation, sorted so
// snapshot output is deterministic.
func (v Vault) Beneficiaries() []string {
	addresses := make([]string, 0, len(v.Allocations))
	for address := range v.Allocations {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses
}

// Clone deep-copies the aggregate so adapters can hand out snapshots without
// sharing map storage with callers.
func (v Vault) Clone() Vault {
	out := v
	out.Permissions = make(map[string]struct{}, len(v.Permissions))
	for address := range v.Permissions {
		out.Permissions[address] = struct{}{}
	}
	out.Allocations = make(map[string]int64, len(v.Allocations))
	for address, amount := range v.Allocations {
		out.Allocations[address] = amount
	}
	return out
}
