package sales

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Sirveme/quevendi-pos/pkg/enums"
	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/Sirveme/quevendi-pos/pkg/logger"
	"github.com/Sirveme/quevendi-pos/pkg/store"
	"github.com/Sirveme/quevendi-pos/pkg/store/models"
)

var validate = validator.New()

// codeAttempts bounds regeneration when a verification code collides
// with an existing row. Collisions need the same second, the same random
// suffix and the same device, so one retry is already generous.
const codeAttempts = 3

// LineItem is one product line of a sale.
type LineItem struct {
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	ProductName string          `json:"product_name" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Unit        string          `json:"unit"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// CreditData carries the fiado customer details.
type CreditData struct {
	CustomerName string `json:"customer_name" validate:"required"`
	Phone        string `json:"phone"`
	DueDays      int    `json:"due_days"`
}

// QueueInput is a sale as captured at the till.
type QueueInput struct {
	Items            []LineItem          `json:"items" validate:"required,min=1,dive"`
	PaymentMethod    enums.PaymentMethod `json:"payment_method"`
	PaymentReference *string             `json:"payment_reference,omitempty"`
	CustomerName     *string             `json:"customer_name,omitempty"`
	IsCredit         bool                `json:"is_credit"`
	Credit           *CreditData         `json:"credit,omitempty"`
	Total            decimal.Decimal     `json:"total"`
}

// salePayload is the request body the server will eventually receive.
// It is frozen at capture time so a later catalog change cannot alter
// what was sold.
type salePayload struct {
	Items            []LineItem          `json:"items"`
	PaymentMethod    enums.PaymentMethod `json:"payment_method"`
	PaymentReference *string             `json:"payment_reference,omitempty"`
	CustomerName     *string             `json:"customer_name,omitempty"`
	IsCredit         bool                `json:"is_credit"`
	Credit           *CreditData         `json:"credit,omitempty"`
	Total            decimal.Decimal     `json:"total"`
	Offline          bool                `json:"offline"`
	VerificationCode string              `json:"verification_code"`
	DeviceID         string              `json:"device_id"`
	CreatedAt        string              `json:"created_at"`
}

// StockDecrementer is the slice of the catalog cache the queue needs: a
// transactional stock decrement so the queued sale and the cache update
// commit or roll back together.
type StockDecrementer interface {
	DecrementStockTx(tx *gorm.DB, productID int64, qty decimal.Decimal) error
}

// ServiceParams bundles the queue service dependencies.
type ServiceParams struct {
	Session      *store.Session
	TenantID     string
	Stock        StockDecrementer
	RetryCeiling int
	Logger       *logger.Logger
}

// Service owns the durable sale queue of the open tenant store.
type Service struct {
	session      *store.Session
	repo         *Repository
	meta         *store.Meta
	tenantID     string
	stock        StockDecrementer
	retryCeiling int
	logg         *logger.Logger
	rndMu        sync.Mutex
	rnd          *rand.Rand
	now          func() time.Time
}

// NewService builds the sale queue service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Session == nil {
		return nil, fmt.Errorf("store session required")
	}
	if params.TenantID == "" {
		return nil, fmt.Errorf("tenant id required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock decrementer required")
	}
	if params.RetryCeiling <= 0 {
		params.RetryCeiling = 5
	}
	return &Service{
		session:      params.Session,
		repo:         NewRepository(params.Session),
		meta:         store.NewMeta(params.Session),
		tenantID:     params.TenantID,
		stock:        params.Stock,
		retryCeiling: params.RetryCeiling,
		logg:         params.Logger,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// Queue captures a sale while disconnected. The insert and the cached
// stock decrements for every line run in one transaction, so the queue
// and the catalog cache never disagree. The caller's bearer token is
// snapshotted with the sale for later delivery.
func (s *Service) Queue(ctx context.Context, input QueueInput, token string) (*models.PendingSale, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	deviceID, err := s.meta.DeviceID(ctx)
	if err != nil {
		return nil, err
	}

	var sale *models.PendingSale
	for attempt := 0; attempt < codeAttempts; attempt++ {
		now := s.now()
		s.rndMu.Lock()
		code := generateVerificationCode(deviceID, now, s.rnd)
		s.rndMu.Unlock()
		payload, err := json.Marshal(salePayload{
			Items:            input.Items,
			PaymentMethod:    input.PaymentMethod,
			PaymentReference: input.PaymentReference,
			CustomerName:     input.CustomerName,
			IsCredit:         input.IsCredit,
			Credit:           input.Credit,
			Total:            input.Total,
			Offline:          true,
			VerificationCode: code,
			DeviceID:         deviceID,
			CreatedAt:        now.Format(time.RFC3339),
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding sale payload")
		}

		row := &models.PendingSale{
			TenantID:         s.tenantID,
			Payload:          payload,
			Token:            token,
			Status:           enums.SaleStatusPending,
			Synced:           false,
			CreatedAt:        now,
			VerificationCode: code,
		}
		err = s.session.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.InsertTx(tx, row); err != nil {
				return err
			}
			for _, item := range input.Items {
				if err := s.stock.DecrementStockTx(tx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			sale = row
			break
		}
		if isUniqueCodeViolation(err) {
			continue
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "queueing sale")
	}
	if sale == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStorage, "could not allocate a unique verification code")
	}

	if s.logg != nil {
		logCtx := s.logg.WithSaleID(s.logg.WithFields(ctx, map[string]any{
			"verification_code": sale.VerificationCode,
			"items":             len(input.Items),
		}), sale.LocalID)
		s.logg.Info(logCtx, "sale queued offline")
	}
	return sale, nil
}

func (s *Service) validateInput(input QueueInput) error {
	if err := validate.Struct(input); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sale")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment method %q", input.PaymentMethod))
	}
	for i, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if item.UnitPrice.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: unit price cannot be negative", i))
		}
	}
	if !input.Total.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "total must be positive")
	}
	if input.IsCredit && input.Credit == nil && input.CustomerName == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "credit sale needs a customer")
	}
	return nil
}

func isUniqueCodeViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: pending_sales.verification_code")
}

// Pending returns the unsynced sales oldest first.
func (s *Service) Pending(ctx context.Context) ([]models.PendingSale, error) {
	return s.repo.GetPending(ctx)
}

// PendingCount counts sales still waiting for delivery.
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	return s.repo.CountPending(ctx)
}

// MarkSynced records a confirmed delivery. A serverSaleID of -1 means the
// server reported the sale as already received without echoing its id.
func (s *Service) MarkSynced(ctx context.Context, localID, serverSaleID int64) error {
	return s.session.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.MarkSyncedTx(tx, localID, serverSaleID, s.now())
	})
}

// MarkError records a failed delivery attempt.
func (s *Service) MarkError(ctx context.Context, localID int64, message string) error {
	return s.session.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.MarkErrorTx(tx, localID, message)
	})
}

// MarkPending returns a sale to the pending state, keeping its retry
// count. Used when an aborted pass leaves a sale half-submitted.
func (s *Service) MarkPending(ctx context.Context, localID int64) error {
	return s.session.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.MarkPendingTx(tx, localID)
	})
}

// MarkSyncing flags a sale as in-flight.
func (s *Service) MarkSyncing(ctx context.Context, localID int64) error {
	return s.session.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.MarkSyncingTx(tx, localID)
	})
}

// RecoverStranded re-queues sales an interrupted pass left flagged as
// in-flight. Passes are single-flight, so a syncing row seen outside
// one means the process died between the mark and the outcome write;
// the sale would otherwise never drain again.
func (s *Service) RecoverStranded(ctx context.Context) (int64, error) {
	var recovered int64
	err := s.session.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		recovered, txErr = s.repo.ResetStrandedTx(tx)
		return txErr
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "recovering stranded sales")
	}
	if recovered > 0 && s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"recovered": recovered}), "stranded in-flight sales re-queued")
	}
	return recovered, nil
}

// ResetErrors re-queues errored sales that have not hit the retry
// ceiling and reports how many it touched. Calling it again without new
// failures is a no-op.
func (s *Service) ResetErrors(ctx context.Context) (int64, error) {
	var reset int64
	err := s.session.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		reset, txErr = s.repo.ResetErrorsTx(tx, s.retryCeiling)
		return txErr
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "resetting errored sales")
	}
	if reset > 0 && s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"reset": reset}), "errored sales re-queued")
	}
	return reset, nil
}

// GetByVerificationCode looks a sale up by its customer-facing code, or
// returns nil when no sale carries it.
func (s *Service) GetByVerificationCode(ctx context.Context, code string) (*models.PendingSale, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "verification code required")
	}
	return s.repo.GetByVerificationCode(ctx, code)
}

// Cleanup purges synced sales older than retentionDays and reports how
// many rows were removed. Unsynced sales are never touched.
func (s *Service) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	var removed int64
	err := s.session.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		removed, txErr = s.repo.DeleteSyncedBeforeTx(tx, cutoff)
		return txErr
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "purging synced sales")
	}
	return removed, nil
}

// Recent returns the newest captured sales, synced or not.
func (s *Service) Recent(ctx context.Context, limit int) ([]models.PendingSale, error) {
	return s.repo.Recent(ctx, limit)
}

// StatusCounts summarizes the queue for diagnostics.
type StatusCounts struct {
	Pending int64 `json:"pending"`
	Synced  int64 `json:"synced"`
	Errors  int64 `json:"errors"`
}

// Counts reports how many sales sit in each state.
func (s *Service) Counts(ctx context.Context) (StatusCounts, error) {
	pending, err := s.repo.CountPending(ctx)
	if err != nil {
		return StatusCounts{}, err
	}
	synced, err := s.repo.CountByStatus(ctx, enums.SaleStatusSynced)
	if err != nil {
		return StatusCounts{}, err
	}
	errored, err := s.repo.CountByStatus(ctx, enums.SaleStatusError)
	if err != nil {
		return StatusCounts{}, err
	}
	return StatusCounts{Pending: pending, Synced: synced, Errors: errored}, nil
}
