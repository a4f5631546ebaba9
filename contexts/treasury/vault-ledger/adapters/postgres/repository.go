package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"custodia/contexts/treasury/vault-ledger/domain/entities"
	domainerrors "custodia/contexts/treasury/vault-ledger/domain/errors"
	"custodia/contexts/treasury/vault-ledger/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) CreateVault(ctx context.Context, vault entities.Vault) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := vaultModelFromEntity(vault)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrVaultAlreadyExists
			}
			return err
		}
		return replaceVaultSets(tx, vault)
	})
}

func (r *Repository) GetVault(ctx context.Context, vaultID string) (entities.Vault, error) {
	vaultID = strings.TrimSpace(vaultID)

	var row vaultModel
	err := r.db.WithContext(ctx).
		Where("vault_id = ?", vaultID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Vault{}, domainerrors.ErrVaultNotFound
		}
		return entities.Vault{}, err
	}

	var permissionRows []vaultPermissionModel
	if err := r.db.WithContext(ctx).Where("vault_id = ?", vaultID).Find(&permissionRows).Error; err != nil {
		return entities.Vault{}, err
	}
	var allocationRows []vaultAllocationModel
	if err := r.db.WithContext(ctx).Where("vault_id = ?", vaultID).Find(&allocationRows).Error; err != nil {
		return entities.Vault{}, err
	}

	vault := row.toEntity()
	for _, permission := range permissionRows {
		vault.Permissions[permission.Address] = struct{}{}
	}
	for _, allocation := range allocationRows {
		vault.Allocations[allocation.Address] = allocation.Amount
	}
	return vault, nil
}

// UpdateVault persists the whole aggregate in one transaction: the vault row
// plus a replace-set write of permissions and allocations. Admin and
// capability columns live on the same row, so an admin change can never be
// observed without its capability relocation.
func (r *Repository) UpdateVault(ctx context.Context, vault entities.Vault) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Model(&vaultModel{}).
			Where("vault_id = ?", strings.TrimSpace(vault.VaultID)).
			Updates(map[string]any{
				"admin":             vault.Admin,
				"total_balance":     vault.TotalBalance,
				"total_allocated":   vault.TotalAllocated,
				"capability_id":     vault.Capability.CapabilityID,
				"capability_holder": vault.Capability.Holder,
				"updated_at":        vault.UpdatedAt.UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domainerrors.ErrVaultNotFound
		}
		if err := tx.Where("vault_id = ?", vault.VaultID).Delete(&vaultPermissionModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("vault_id = ?", vault.VaultID).Delete(&vaultAllocationModel{}).Error; err != nil {
			return err
		}
		return replaceVaultSets(tx, vault)
	})
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		return domainerrors.ErrInvalidInput
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      row.Payload,
			CreatedAt:    row.CreatedAt,
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	ts := publishedAt.UTC()
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": &ts,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrOutboxNotFound
	}
	return nil
}

func replaceVaultSets(tx *gorm.DB, vault entities.Vault) error {
	for address := range vault.Permissions {
		row := vaultPermissionModel{VaultID: vault.VaultID, Address: address}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	for address, amount := range vault.Allocations {
		row := vaultAllocationModel{VaultID: vault.VaultID, Address: address, Amount: amount}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

type vaultModel struct {
	VaultID          string    `gorm:"column:vault_id;primaryKey"`
	Admin            string    `gorm:"column:admin"`
	PoolAddress      string    `gorm:"column:pool_address"`
	TotalBalance     int64     `gorm:"column:total_balance"`
	TotalAllocated   int64     `gorm:"column:total_allocated"`
	CapabilityID     string    `gorm:"column:capability_id"`
	CapabilityHolder string    `gorm:"column:capability_holder"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (vaultModel) TableName() string {
	return "vaults"
}

func (m vaultModel) toEntity() entities.Vault {
	return entities.Vault{
		VaultID:        m.VaultID,
		Admin:          m.Admin,
		PoolAddress:    m.PoolAddress,
		Permissions:    make(map[string]struct{}),
		Allocations:    make(map[string]int64),
		TotalBalance:   m.TotalBalance,
		TotalAllocated: m.TotalAllocated,
		Capability: entities.SigningCapability{
			CapabilityID: m.CapabilityID,
			PoolAddress:  m.PoolAddress,
			Holder:       m.CapabilityHolder,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func vaultModelFromEntity(vault entities.Vault) vaultModel {
	return vaultModel{
		VaultID:          strings.TrimSpace(vault.VaultID),
		Admin:            vault.Admin,
		PoolAddress:      vault.PoolAddress,
		TotalBalance:     vault.TotalBalance,
		TotalAllocated:   vault.TotalAllocated,
		CapabilityID:     vault.Capability.CapabilityID,
		CapabilityHolder: vault.Capability.Holder,
		CreatedAt:        vault.CreatedAt.UTC(),
		UpdatedAt:        vault.UpdatedAt.UTC(),
	}
}

type vaultPermissionModel struct {
	VaultID string `gorm:"column:vault_id;primaryKey"`
	Address string `gorm:"column:address;primaryKey"`
}

func (vaultPermissionModel) TableName() string {
	return "vault_permissions"
}

type vaultAllocationModel struct {
	VaultID string `gorm:"column:vault_id;primaryKey"`
	Address string `gorm:"column:address;primaryKey"`
	Amount  int64  `gorm:"column:amount"`
}

func (vaultAllocationModel) TableName() string {
	return "vault_allocations"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "vault_outbox"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
