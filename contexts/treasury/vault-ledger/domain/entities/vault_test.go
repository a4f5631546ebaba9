package entities

import (
	"testing"
	"time"
)

func testVault() Vault {
	return NewVault("vault-1", "admin-1", "pool-1", SigningCapability{
		CapabilityID: "cap-1",
		PoolAddress:  "pool-1",
		Holder:       "admin-1",
	}, time.Now())
}

func TestReserveRejectsOverAvailable(t *testing.T) {
	vault := testVault()
	vault.Credit(100)

	if !vault.Reserve("user-1", 60) {
		t.Fatalf("expected reserve within available to succeed")
	}
	if vault.Reserve("user-2", 50) {
		t.Fatalf("expected reserve beyond available to fail")
	}
	if vault.TotalAllocated != 60 {
		t.Fatalf("expected total allocated 60, got %d", vault.TotalAllocated)
	}
}

func TestReserveZeroCreatesNoEntry(t *testing.T) {
	vault := testVault()
	vault.Credit(100)

	if !vault.Reserve("user-1", 0) {
		t.Fatalf("zero reserve must be accepted")
	}
	if _, ok := vault.Allocations["user-1"]; ok {
		t.Fatalf("zero-valued allocation entry must not persist")
	}
}

func TestTakeAndRestoreAllocationRoundTrip(t *testing.T) {
	vault := testVault()
	vault.Credit(100)
	vault.Reserve("user-1", 80)

	amount, ok := vault.TakeAllocation("user-1")
	if !ok || amount != 80 {
		t.Fatalf("expected take of 80, got %d ok=%v", amount, ok)
	}
	if vault.TotalBalance != 20 || vault.TotalAllocated != 0 {
		t.Fatalf("expected balance=20 allocated=0, got balance=%d allocated=%d", vault.TotalBalance, vault.TotalAllocated)
	}
	if _, ok := vault.TakeAllocation("user-1"); ok {
		t.Fatalf("second take must find nothing")
	}

	vault.RestoreAllocation("user-1", amount)
	if vault.TotalBalance != 100 || vault.TotalAllocated != 80 {
		t.Fatalf("restore did not reestablish counters: balance=%d allocated=%d", vault.TotalBalance, vault.TotalAllocated)
	}
}

func TestReleaseIsAllOrNothing(t *testing.T) {
	vault := testVault()
	vault.Credit(100)
	vault.Reserve("user-1", 70)

	if released := vault.Release("user-1"); released != 70 {
		t.Fatalf("expected full release of 70, got %d", released)
	}
	if released := vault.Release("user-1"); released != 0 {
		t.Fatalf("expected nothing left to release, got %d", released)
	}
	if vault.Available() != 100 {
		t.Fatalf("expected released funds available again, got %d", vault.Available())
	}
}

func TestChangeAdminMovesCapabilityTogether(t *testing.T) {
	vault := testVault()
	next := SigningCapability{CapabilityID: "cap-2", PoolAddress: "pool-1", Holder: "admin-2"}

	previous := vault.ChangeAdmin("admin-2", next)
	if previous != "admin-1" {
		t.Fatalf("expected previous admin admin-1, got %s", previous)
	}
	if vault.Admin != vault.Capability.Holder {
		t.Fatalf("admin %s and capability holder %s diverged", vault.Admin, vault.Capability.Holder)
	}
}

func TestCloneDoesNotShareMaps(t *testing.T) {
	vault := testVault()
	vault.Grant("user-1")
	vault.Credit(10)
	vault.Reserve("user-1", 5)

	clone := vault.Clone()
	clone.Revoke("user-1")
	clone.Release("user-1")

	if !vault.HasPermission("user-1") {
		t.Fatalf("mutating clone leaked into original permissions")
	}
	if vault.AllocationOf("user-1") != 5 {
		t.Fatalf("mutating clone leaked into original allocations")
	}
}
