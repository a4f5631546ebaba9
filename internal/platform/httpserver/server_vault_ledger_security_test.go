package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	vaultledger "custodia/contexts/treasury/vault-ledger"
	vaulthttp "custodia/contexts/treasury/vault-ledger/transport/http"
)

func newTestServer() *Server {
	return New(vaultledger.NewInMemoryModule(nil), nil, ":0")
}

func createTestVault(t *testing.T, server *Server, admin string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/vaults", bytes.NewReader([]byte(`{"pool_address":"pool-1"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", admin)

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	var resp vaulthttp.CreateVaultResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp.Data.VaultID
}

func TestCreateVaultRequiresCallerHeader(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/vaults", bytes.NewReader([]byte(`{"pool_address":"pool-1"}`)))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestAllocateByNonAdminIsForbidden(t *testing.T) {
	server := newTestServer()
	vaultID := createTestVault(t, server, "admin-1")

	req := httptest.NewRequest(
		http.MethodPost,
		"/v1/vaults/"+vaultID+"/allocations",
		bytes.NewReader([]byte(`{"target":"mallory","amount":50}`)),
	)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "mallory")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestDepositByUnpermissionedIsForbidden(t *testing.T) {
	server := newTestServer()
	vaultID := createTestVault(t, server, "admin-1")

	req := httptest.NewRequest(
		http.MethodPost,
		"/v1/vaults/"+vaultID+"/deposits",
		bytes.NewReader([]byte(`{"amount":10}`)),
	)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "stranger")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestClaimWithoutAllocationIsNotFound(t *testing.T) {
	server := newTestServer()
	vaultID := createTestVault(t, server, "admin-1")

	req := httptest.NewRequest(http.MethodPost, "/v1/vaults/"+vaultID+"/claims", nil)
	req.Header.Set("X-User-Id", "nobody")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSnapshotOfUnknownVaultIsNotFound(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/v1/vaults/missing", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}
