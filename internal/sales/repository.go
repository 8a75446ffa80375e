package sales

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Sirveme/quevendi-pos/pkg/enums"
	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/Sirveme/quevendi-pos/pkg/store"
	"github.com/Sirveme/quevendi-pos/pkg/store/models"
)

// Repository persists queued sales.
type Repository struct {
	session *store.Session
}

// NewRepository builds a repository bound to the tenant session.
func NewRepository(session *store.Session) *Repository {
	return &Repository{session: session}
}

// InsertTx adds a pending sale inside an existing transaction.
func (r *Repository) InsertTx(tx *gorm.DB, sale *models.PendingSale) error {
	return tx.Create(sale).Error
}

// GetPending returns unsynced sales in creation (local id) order. The
// synchronizer drains in exactly this order.
func (r *Repository) GetPending(ctx context.Context) ([]models.PendingSale, error) {
	var rows []models.PendingSale
	err := r.session.DB().WithContext(ctx).
		Where("synced = ?", false).
		Order("local_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "listing pending sales")
	}
	return rows, nil
}

// CountPending counts unsynced sales.
func (r *Repository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.session.DB().WithContext(ctx).
		Model(&models.PendingSale{}).
		Where("synced = ?", false).
		Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "counting pending sales")
	}
	return count, nil
}

// Get returns one sale by local id.
func (r *Repository) Get(ctx context.Context, localID int64) (*models.PendingSale, error) {
	var sale models.PendingSale
	err := r.session.DB().WithContext(ctx).First(&sale, "local_id = ?", localID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pending sale not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "reading pending sale")
	}
	return &sale, nil
}

// GetByVerificationCode returns the sale carrying the code, or nil.
func (r *Repository) GetByVerificationCode(ctx context.Context, code string) (*models.PendingSale, error) {
	var sale models.PendingSale
	err := r.session.DB().WithContext(ctx).First(&sale, "verification_code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "reading sale by verification code")
	}
	return &sale, nil
}

// MarkSyncedTx flips a sale to synced inside an existing transaction.
func (r *Repository) MarkSyncedTx(tx *gorm.DB, localID int64, serverSaleID int64, at time.Time) error {
	return tx.Model(&models.PendingSale{}).
		Where("local_id = ?", localID).
		Updates(map[string]any{
			"status":         enums.SaleStatusSynced,
			"synced":         true,
			"synced_at":      at,
			"server_sale_id": serverSaleID,
			"error_message":  nil,
		}).Error
}

// MarkErrorTx records a failed submission and bumps the retry count.
func (r *Repository) MarkErrorTx(tx *gorm.DB, localID int64, message string) error {
	return tx.Model(&models.PendingSale{}).
		Where("local_id = ?", localID).
		Updates(map[string]any{
			"status":        enums.SaleStatusError,
			"error_message": message,
			"retry_count":   gorm.Expr("retry_count + 1"),
		}).Error
}

// MarkPendingTx returns a sale to the pending state without touching its
// retry count. Used when a pass aborts for reasons the sale is not
// responsible for, like a dropped link.
func (r *Repository) MarkPendingTx(tx *gorm.DB, localID int64) error {
	return tx.Model(&models.PendingSale{}).
		Where("local_id = ?", localID).
		Update("status", enums.SaleStatusPending).Error
}

// MarkSyncingTx flags a sale as in-flight so a crashed pass is visible.
func (r *Repository) MarkSyncingTx(tx *gorm.DB, localID int64) error {
	return tx.Model(&models.PendingSale{}).
		Where("local_id = ?", localID).
		Update("status", enums.SaleStatusSyncing).Error
}

// ResetStrandedTx returns unsynced sales stuck in syncing to pending
// and reports how many rows changed. A row can only sit in syncing
// while a pass is running; one found between passes was left behind by
// a process that died mid-submission.
func (r *Repository) ResetStrandedTx(tx *gorm.DB) (int64, error) {
	result := tx.Model(&models.PendingSale{}).
		Where("status = ? AND synced = ?", enums.SaleStatusSyncing, false).
		Update("status", enums.SaleStatusPending)
	return result.RowsAffected, result.Error
}

// ResetErrorsTx moves errored sales below the retry ceiling back to
// pending and reports how many rows changed.
func (r *Repository) ResetErrorsTx(tx *gorm.DB, retryCeiling int) (int64, error) {
	result := tx.Model(&models.PendingSale{}).
		Where("status = ? AND retry_count < ?", enums.SaleStatusError, retryCeiling).
		Updates(map[string]any{
			"status":        enums.SaleStatusPending,
			"error_message": nil,
		})
	return result.RowsAffected, result.Error
}

// DeleteSyncedBeforeTx purges synced sales older than the cutoff.
func (r *Repository) DeleteSyncedBeforeTx(tx *gorm.DB, cutoff time.Time) (int64, error) {
	result := tx.Where("synced = ? AND synced_at IS NOT NULL AND synced_at < ?", true, cutoff).
		Delete(&models.PendingSale{})
	return result.RowsAffected, result.Error
}

// Recent returns the newest sales first, up to limit.
func (r *Repository) Recent(ctx context.Context, limit int) ([]models.PendingSale, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.PendingSale
	err := r.session.DB().WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "listing recent sales")
	}
	return rows, nil
}

// CountByStatus returns the number of sales in the given status.
func (r *Repository) CountByStatus(ctx context.Context, status enums.SaleStatus) (int64, error) {
	var count int64
	err := r.session.DB().WithContext(ctx).
		Model(&models.PendingSale{}).
		Where("status = ?", status).
		Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "counting sales by status")
	}
	return count, nil
}
