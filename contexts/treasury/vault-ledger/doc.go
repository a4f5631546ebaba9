// Package vaultledger implements the custodial token-allocation ledger.
//
// The module owns the vault aggregate (admin authority, deposit permissions,
// per-beneficiary reservations, balance counters, pool signing capability)
// and exposes HTTP command/query handlers plus the outbox relay worker
// entrypoint.
package vaultledger
