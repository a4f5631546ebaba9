package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateVaultRequest struct {
	PoolAddress string `json:"pool_address"`
}

type VaultDTO struct {
	VaultID        string `json:"vault_id"`
	Admin          string `json:"admin"`
	PoolAddress    string `json:"pool_address"`
	TotalBalance   int64  `json:"total_balance"`
	TotalAllocated int64  `json:"total_allocated"`
	CreatedAt      string `json:"created_at"`
}

type CreateVaultResponse struct {
	Status string   `json:"status"`
	Data   VaultDTO `json:"data"`
}

type PermissionRequest struct {
	Target string `json:"target"`
}

type DepositRequest struct {
	Amount int64 `json:"amount"`
}

type AllocateRequest struct {
	Target string `json:"target"`
	Amount int64  `json:"amount"`
}

type CancelAllocationRequest struct {
	Target string `json:"target"`
}

type WithdrawRequest struct {
	Amount int64 `json:"amount"`
}

type ChangeAdminRequest struct {
	NewAdmin string `json:"new_admin"`
}

type AckResponse struct {
	Status string `json:"status"`
}

type ClaimResponse struct {
	Status string `json:"status"`
	Data   struct {
		Claimant string `json:"claimant"`
		Amount   int64  `json:"amount"`
	} `json:"data"`
}

type BalanceResponse struct {
	Status string `json:"status"`
	Data   struct {
		TotalBalance   int64 `json:"total_balance"`
		TotalAllocated int64 `json:"total_allocated"`
	} `json:"data"`
}

type PermissionResponse struct {
	Status string `json:"status"`
	Data   struct {
		Address   string `json:"address"`
		Permitted bool   `json:"permitted"`
	} `json:"data"`
}

type AllocationResponse struct {
	Status string `json:"status"`
	Data   struct {
		Address string `json:"address"`
		Amount  int64  `json:"amount"`
	} `json:"data"`
}

type SnapshotResponse struct {
	Status string `json:"status"`
	Data   struct {
		VaultID        string   `json:"vault_id"`
		Admin          string   `json:"admin"`
		TotalBalance   int64    `json:"total_balance"`
		TotalAllocated int64    `json:"total_allocated"`
		Beneficiaries  []string `json:"beneficiaries"`
		Amounts        []int64  `json:"amounts"`
	} `json:"data"`
}
