package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/Sirveme/quevendi-pos/pkg/store"
	"github.com/Sirveme/quevendi-pos/pkg/store/models"
)

// Repository persists the cached product catalog.
type Repository struct {
	session *store.Session
}

// NewRepository builds a repository bound to the tenant session.
func NewRepository(session *store.Session) *Repository {
	return &Repository{session: session}
}

// UpsertTx writes a product row inside an existing transaction and reports
// whether the row was newly created.
func (r *Repository) UpsertTx(tx *gorm.DB, product *models.Product) (bool, error) {
	var existing models.Product
	err := tx.First(&existing, "id = ?", product.ID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.Create(product).Error; err != nil {
			return false, err
		}
		return true, nil
	case err != nil:
		return false, err
	default:
		if err := tx.Save(product).Error; err != nil {
			return false, err
		}
		return false, nil
	}
}

// DeleteTx removes the listed product ids inside an existing transaction.
func (r *Repository) DeleteTx(tx *gorm.DB, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := tx.Delete(&models.Product{}, "id IN ?", ids)
	return result.RowsAffected, result.Error
}

// GetByID returns the product, or nil when it is not cached.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := r.session.DB().WithContext(ctx).First(&product, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "reading product")
	}
	return &product, nil
}

// GetByBarcode returns the first product with the barcode, or nil.
func (r *Repository) GetByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	var product models.Product
	err := r.session.DB().WithContext(ctx).First(&product, "barcode = ?", barcode).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "reading product by barcode")
	}
	return &product, nil
}

// ListSellable returns active, in-stock products in insertion order; the
// search scan runs over this.
func (r *Repository) ListSellable(ctx context.Context) ([]models.Product, error) {
	var rows []models.Product
	err := r.session.DB().WithContext(ctx).
		Where("active = ? AND stock > 0", true).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "scanning products")
	}
	return rows, nil
}

// Count returns the number of cached products.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.session.DB().WithContext(ctx).Model(&models.Product{}).Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "counting products")
	}
	return count, nil
}

// ClearTx drops every cached product inside an existing transaction.
func (r *Repository) ClearTx(tx *gorm.DB) error {
	return tx.Where("1 = 1").Delete(&models.Product{}).Error
}

// DecrementStockTx subtracts qty from the product's stock inside an
// existing transaction, clamping at zero. Unknown products are a no-op,
// matching the cache semantics: a sale for an uncached product still queues.
func (r *Repository) DecrementStockTx(tx *gorm.DB, productID int64, qty decimal.Decimal) error {
	var product models.Product
	err := tx.First(&product, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	next := product.Stock.Sub(qty)
	if next.IsNegative() {
		next = decimal.Zero
	}
	return tx.Model(&models.Product{}).Where("id = ?", productID).
		Update("stock", next).Error
}
