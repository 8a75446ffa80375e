package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/Sirveme/quevendi-pos/pkg/logger"
	"github.com/Sirveme/quevendi-pos/pkg/store"
	"github.com/Sirveme/quevendi-pos/pkg/store/models"
)

const minQueryLength = 2

// Relevance scores for the linear search scan, descending priority.
const (
	scoreExactName    = 100
	scoreExactBarcode = 90
	scoreNamePrefix   = 80
	scoreNameContains = 60
	scoreAllTerms     = 40
	scoreAnyTerm      = 20
)

// Fetcher abstracts the remote catalog endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, token, since string) (*CatalogPayload, error)
}

// SyncResult reports what a catalog sync changed.
type SyncResult struct {
	Added   int
	Updated int
	Removed int
	Total   int64
}

// Service is the read-optimized local mirror of the remote catalog.
type Service struct {
	session *store.Session
	repo    *Repository
	meta    *store.Meta
	client  Fetcher
	logg    *logger.Logger
}

// NewService builds the catalog cache service.
func NewService(session *store.Session, client Fetcher, logg *logger.Logger) (*Service, error) {
	if session == nil {
		return nil, fmt.Errorf("store session required")
	}
	if client == nil {
		return nil, fmt.Errorf("catalog client required")
	}
	return &Service{
		session: session,
		repo:    NewRepository(session),
		meta:    store.NewMeta(session),
		client:  client,
		logg:    logg,
	}, nil
}

// SyncFromServer pulls products changed since the stored watermark (the
// full catalog when none exists), applies upserts and the deletion list,
// and advances the watermark to the server-reported time. The whole apply
// runs in one transaction: on any failure the cache and watermark stay as
// they were.
func (s *Service) SyncFromServer(ctx context.Context, token string) (SyncResult, error) {
	since, _, err := s.meta.Get(ctx, models.MetaKeyCatalogWatermark)
	if err != nil {
		return SyncResult{}, err
	}

	payload, err := s.client.Fetch(ctx, token, since)
	if err != nil {
		return SyncResult{}, err
	}

	serverTime := payload.ServerTime
	if serverTime == "" {
		serverTime = time.Now().UTC().Format(time.RFC3339)
	}
	fallbackUpdated, err := time.Parse(time.RFC3339, serverTime)
	if err != nil {
		return SyncResult{}, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("unparseable server_time %q", payload.ServerTime))
	}

	var result SyncResult
	err = s.session.WithTx(ctx, func(tx *gorm.DB) error {
		for _, p := range payload.Products {
			row, err := rowFromPayload(p, fallbackUpdated)
			if err != nil {
				return err
			}
			created, err := s.repo.UpsertTx(tx, row)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "upserting product")
			}
			if created {
				result.Added++
			} else {
				result.Updated++
			}
		}
		removed, err := s.repo.DeleteTx(tx, payload.DeletedIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "applying deletion list")
		}
		result.Removed = int(removed)
		return s.meta.SetTx(tx, models.MetaKeyCatalogWatermark, serverTime)
	})
	if err != nil {
		return SyncResult{}, err
	}

	result.Total, err = s.repo.Count(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"added":   result.Added,
			"updated": result.Updated,
			"removed": result.Removed,
			"total":   result.Total,
		})
		s.logg.Info(logCtx, "catalog sync applied")
	}
	return result, nil
}

func rowFromPayload(p ProductPayload, fallbackUpdated time.Time) (*models.Product, error) {
	if p.ID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog product without id")
	}
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	unit := p.Unit
	if unit == "" {
		unit = "unidad"
	}
	updatedAt := fallbackUpdated
	if p.UpdatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, p.UpdatedAt); err == nil {
			updatedAt = parsed
		}
	}
	return &models.Product{
		ID:              p.ID,
		Name:            p.Name,
		NameKey:         normalizeKey(p.Name),
		Barcode:         p.Barcode,
		SalePrice:       p.SalePrice,
		PurchaseCost:    p.PurchasePrice,
		Stock:           p.Stock,
		Unit:            unit,
		Category:        p.Category,
		AllowFractional: p.AllowFractional,
		MinStock:        p.MinStock,
		Active:          active,
		UpdatedAt:       updatedAt,
	}, nil
}

// Search scans the sellable catalog for the query, case and accent
// insensitive, and returns up to limit products ordered by relevance.
// Ties keep insertion order. Queries shorter than two characters match
// nothing.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.Product, error) {
	q := normalizeKey(query)
	if len(q) < minQueryLength {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	terms := strings.Fields(q)

	rows, err := s.repo.ListSellable(ctx)
	if err != nil {
		return nil, err
	}

	type scored struct {
		product models.Product
		score   int
	}
	var matches []scored
	for _, p := range rows {
		score := scoreProduct(p, q, terms)
		if score > 0 {
			matches = append(matches, scored{product: p, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]models.Product, len(matches))
	for i, m := range matches {
		results[i] = m.product
	}
	return results, nil
}

func scoreProduct(p models.Product, q string, terms []string) int {
	name := p.NameKey
	switch {
	case name == q:
		return scoreExactName
	case p.Barcode != nil && *p.Barcode == q:
		return scoreExactBarcode
	case strings.HasPrefix(name, q):
		return scoreNamePrefix
	case strings.Contains(name, q):
		return scoreNameContains
	}
	all, any := true, false
	for _, term := range terms {
		if strings.Contains(name, term) {
			any = true
		} else {
			all = false
		}
	}
	switch {
	case all && any:
		return scoreAllTerms
	case any:
		return scoreAnyTerm
	}
	return 0
}

// GetByID returns the cached product, or nil when not cached.
func (s *Service) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByBarcode returns the cached product with the barcode, or nil.
func (s *Service) GetByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	return s.repo.GetByBarcode(ctx, barcode)
}

// DecrementStock subtracts qty from a product's cached stock inside one
// transaction, clamping at zero.
func (s *Service) DecrementStock(ctx context.Context, productID int64, qty decimal.Decimal) error {
	return s.session.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.DecrementStockTx(tx, productID, qty)
	})
}

// Count reports how many products are cached.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

// Watermark returns the last applied catalog sync time, or "" when the
// cache has never synced.
func (s *Service) Watermark(ctx context.Context) (string, error) {
	value, _, err := s.meta.Get(ctx, models.MetaKeyCatalogWatermark)
	return value, err
}

// Clear drops the whole cache and its watermark, forcing the next sync to
// be a full one.
func (s *Service) Clear(ctx context.Context) error {
	return s.session.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.ClearTx(tx); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "clearing catalog")
		}
		return tx.Delete(&models.SyncMeta{}, "key = ?", models.MetaKeyCatalogWatermark).Error
	})
}
