package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	vaultledger "custodia/contexts/treasury/vault-ledger"
	vaulterrors "custodia/contexts/treasury/vault-ledger/domain/errors"
	vaulthttp "custodia/contexts/treasury/vault-ledger/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "custodia/internal/platform/httpserver/docs"
)

type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	addr   string
	vaults vaultledger.Module
}

func New(vaults vaultledger.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   addr,
		vaults: vaults,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /v1/vaults", s.handleCreateVault)
	s.mux.HandleFunc("GET /v1/vaults/{vault_id}", s.handleSnapshot)
	s.mux.HandleFunc("GET /v1/vaults/{vault_id}/balance", s.handleBalance)
	s.mux.HandleFunc("GET /v1/vaults/{vault_id}/permissions/{address}", s.handlePermission)
	s.mux.HandleFunc("GET /v1/vaults/{vault_id}/allocations/{address}", s.handleAllocation)
	s.mux.HandleFunc("POST /v1/vaults/{vault_id}/permissions/grant", s.handleGrantPermission)
	s.mux.HandleFunc("POST /v1/vaults/{vault_id}/permissions/revoke", s.handleRevokePermission)
	s.mux.HandleFunc("POST /v1/vaults/{vault_id}/deposits", s.handleDeposit)
	s.mux.HandleFunc("POST /v1/vaults/{vault_id}/allocations", s.handleAllocate)
	s.mux.HandleFunc("POST /v1/vaults/{vault_id}/allocations/cancel", s.handleCancelAllocation)
	s.mux.HandleFunc("POST /v1/vaults/{vault_id}/claims", s.handleClaim)
	s.mux.HandleFunc("POST /v1/vaults/{vault_id}/withdrawals", s.handleWithdraw)
	s.mux.HandleFunc("POST /v1/vaults/{vault_id}/admin", s.handleChangeAdmin)
}

func (s *Server) handleCreateVault(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req vaulthttp.CreateVaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVaultError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.vaults.Handler.CreateVaultHandler(r.Context(), caller, req)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req vaulthttp.PermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVaultError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.vaults.Handler.GrantPermissionHandler(r.Context(), caller, r.PathValue("vault_id"), req)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req vaulthttp.PermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVaultError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.vaults.Handler.RevokePermissionHandler(r.Context(), caller, r.PathValue("vault_id"), req)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req vaulthttp.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVaultError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.vaults.Handler.DepositHandler(r.Context(), caller, r.PathValue("vault_id"), req)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req vaulthttp.AllocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVaultError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.vaults.Handler.AllocateHandler(r.Context(), caller, r.PathValue("vault_id"), req)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelAllocation(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req vaulthttp.CancelAllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVaultError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.vaults.Handler.CancelAllocationHandler(r.Context(), caller, r.PathValue("vault_id"), req)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.vaults.Handler.ClaimHandler(r.Context(), caller, r.PathValue("vault_id"))
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req vaulthttp.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVaultError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.vaults.Handler.WithdrawHandler(r.Context(), caller, r.PathValue("vault_id"), req)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChangeAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req vaulthttp.ChangeAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVaultError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.vaults.Handler.ChangeAdminHandler(r.Context(), caller, r.PathValue("vault_id"), req)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	resp, err := s.vaults.Handler.BalanceHandler(r.Context(), r.PathValue("vault_id"))
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	resp, err := s.vaults.Handler.PermissionHandler(r.Context(), r.PathValue("vault_id"), r.PathValue("address"))
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAllocation(w http.ResponseWriter, r *http.Request) {
	resp, err := s.vaults.Handler.AllocationHandler(r.Context(), r.PathValue("vault_id"), r.PathValue("address"))
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	resp, err := s.vaults.Handler.SnapshotHandler(r.Context(), r.PathValue("vault_id"))
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := r.Header.Get("X-User-Id")
	if caller == "" {
		writeVaultError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return "", false
	}
	return caller, true
}

func writeVaultDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vaulterrors.ErrNotAdmin):
		writeVaultError(w, http.StatusForbidden, "not_admin", err.Error())
	case errors.Is(err, vaulterrors.ErrPermissionDenied):
		writeVaultError(w, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, vaulterrors.ErrInvalidCapability):
		writeVaultError(w, http.StatusForbidden, "invalid_capability", err.Error())
	case errors.Is(err, vaulterrors.ErrVaultNotFound):
		writeVaultError(w, http.StatusNotFound, "vault_not_found", err.Error())
	case errors.Is(err, vaulterrors.ErrNoAllocation):
		writeVaultError(w, http.StatusNotFound, "no_allocation", err.Error())
	case errors.Is(err, vaulterrors.ErrInsufficientBalance):
		writeVaultError(w, http.StatusConflict, "insufficient_balance", err.Error())
	case errors.Is(err, vaulterrors.ErrInsufficientFunds):
		writeVaultError(w, http.StatusConflict, "insufficient_funds", err.Error())
	case errors.Is(err, vaulterrors.ErrVaultAlreadyExists):
		writeVaultError(w, http.StatusConflict, "vault_exists", err.Error())
	case errors.Is(err, vaulterrors.ErrInvalidAmount),
		errors.Is(err, vaulterrors.ErrInvalidInput):
		writeVaultError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeVaultError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeVaultError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, vaulthttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
