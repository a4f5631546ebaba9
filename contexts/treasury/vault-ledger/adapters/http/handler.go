package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"custodia/contexts/treasury/vault-ledger/application"
	"custodia/contexts/treasury/vault-ledger/ports"
	httptransport "custodia/contexts/treasury/vault-ledger/transport/http"
)

type Handler struct {
	Service application.Service
	Logger  *slog.Logger
}

func (h Handler) CreateVaultHandler(
	ctx context.Context,
	caller string,
	req httptransport.CreateVaultRequest,
) (httptransport.CreateVaultResponse, error) {
	vault, err := h.Service.CreateVault(ctx, ports.CreateVaultInput{
		Creator:     caller,
		PoolAddress: req.PoolAddress,
	})
	if err != nil {
		return httptransport.CreateVaultResponse{}, err
	}
	return httptransport.CreateVaultResponse{
		Status: "success",
		Data: httptransport.VaultDTO{
			VaultID:        vault.VaultID,
			Admin:          vault.Admin,
			PoolAddress:    vault.PoolAddress,
			TotalBalance:   vault.TotalBalance,
			TotalAllocated: vault.TotalAllocated,
			CreatedAt:      vault.CreatedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}

func (h Handler) GrantPermissionHandler(
	ctx context.Context,
	caller string,
	vaultID string,
	req httptransport.PermissionRequest,
) (httptransport.AckResponse, error) {
	if err := h.Service.GrantPermission(ctx, caller, vaultID, req.Target); err != nil {
		return httptransport.AckResponse{}, err
	}
	return httptransport.AckResponse{Status: "success"}, nil
}

func (h Handler) RevokePermissionHandler(
	ctx context.Context,
	caller string,
	vaultID string,
	req httptransport.PermissionRequest,
) (httptransport.AckResponse, error) {
	if err := h.Service.RevokePermission(ctx, caller, vaultID, req.Target); err != nil {
		return httptransport.AckResponse{}, err
	}
	return httptransport.AckResponse{Status: "success"}, nil
}

func (h Handler) DepositHandler(
	ctx context.Context,
	caller string,
	vaultID string,
	req httptransport.DepositRequest,
) (httptransport.AckResponse, error) {
	err := h.Service.Deposit(ctx, caller, ports.DepositInput{
		VaultID: vaultID,
		Amount:  req.Amount,
	})
	if err != nil {
		return httptransport.AckResponse{}, err
	}
	return httptransport.AckResponse{Status: "success"}, nil
}

func (h Handler) AllocateHandler(
	ctx context.Context,
	caller string,
	vaultID string,
	req httptransport.AllocateRequest,
) (httptransport.AckResponse, error) {
	err := h.Service.Allocate(ctx, caller, ports.AllocateInput{
		VaultID: vaultID,
		Target:  req.Target,
		Amount:  req.Amount,
	})
	if err != nil {
		return httptransport.AckResponse{}, err
	}
	return httptransport.AckResponse{Status: "success"}, nil
}

func (h Handler) CancelAllocationHandler(
	ctx context.Context,
	caller string,
	vaultID string,
	req httptransport.CancelAllocationRequest,
) (httptransport.AckResponse, error) {
	if err := h.Service.CancelAllocation(ctx, caller, vaultID, req.Target); err != nil {
		return httptransport.AckResponse{}, err
	}
	return httptransport.AckResponse{Status: "success"}, nil
}

func (h Handler) ClaimHandler(
	ctx context.Context,
	caller string,
	vaultID string,
) (httptransport.ClaimResponse, error) {
	amount, err := h.Service.Claim(ctx, caller, vaultID)
	if err != nil {
		return httptransport.ClaimResponse{}, err
	}
	resp := httptransport.ClaimResponse{Status: "success"}
	resp.Data.Claimant = caller
	resp.Data.Amount = amount
	return resp, nil
}

func (h Handler) WithdrawHandler(
	ctx context.Context,
	caller string,
	vaultID string,
	req httptransport.WithdrawRequest,
) (httptransport.AckResponse, error) {
	err := h.Service.Withdraw(ctx, caller, ports.WithdrawInput{
		VaultID: vaultID,
		Amount:  req.Amount,
	})
	if err != nil {
		return httptransport.AckResponse{}, err
	}
	return httptransport.AckResponse{Status: "success"}, nil
}

func (h Handler) ChangeAdminHandler(
	ctx context.Context,
	caller string,
	vaultID string,
	req httptransport.ChangeAdminRequest,
) (httptransport.AckResponse, error) {
	if err := h.Service.ChangeAdmin(ctx, caller, vaultID, req.NewAdmin); err != nil {
		return httptransport.AckResponse{}, err
	}
	return httptransport.AckResponse{Status: "success"}, nil
}

func (h Handler) BalanceHandler(
	ctx context.Context,
	vaultID string,
) (httptransport.BalanceResponse, error) {
	snapshot, err := h.Service.Snapshot(ctx, vaultID)
	if err != nil {
		return httptransport.BalanceResponse{}, err
	}
	resp := httptransport.BalanceResponse{Status: "success"}
	resp.Data.TotalBalance = snapshot.TotalBalance
	resp.Data.TotalAllocated = snapshot.TotalAllocated
	return resp, nil
}

func (h Handler) PermissionHandler(
	ctx context.Context,
	vaultID string,
	address string,
) (httptransport.PermissionResponse, error) {
	permitted, err := h.Service.HasPermission(ctx, vaultID, address)
	if err != nil {
		return httptransport.PermissionResponse{}, err
	}
	resp := httptransport.PermissionResponse{Status: "success"}
	resp.Data.Address = address
	resp.Data.Permitted = permitted
	return resp, nil
}

func (h Handler) AllocationHandler(
	ctx context.Context,
	vaultID string,
	address string,
) (httptransport.AllocationResponse, error) {
	amount, err := h.Service.AllocationOf(ctx, vaultID, address)
	if err != nil {
		return httptransport.AllocationResponse{}, err
	}
	resp := httptransport.AllocationResponse{Status: "success"}
	resp.Data.Address = address
	resp.Data.Amount = amount
	return resp, nil
}

func (h Handler) SnapshotHandler(
	ctx context.Context,
	vaultID string,
) (httptransport.SnapshotResponse, error) {
	snapshot, err := h.Service.Snapshot(ctx, vaultID)
	if err != nil {
		return httptransport.SnapshotResponse{}, err
	}
	resp := httptransport.SnapshotResponse{Status: "success"}
	resp.Data.VaultID = snapshot.VaultID
	resp.Data.Admin = snapshot.Admin
	resp.Data.TotalBalance = snapshot.TotalBalance
	resp.Data.TotalAllocated = snapshot.TotalAllocated
	resp.Data.Beneficiaries = snapshot.Beneficiaries
	resp.Data.Amounts = snapshot.Amounts
	return resp, nil
}
