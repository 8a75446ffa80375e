package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Sirveme/quevendi-pos/api/responses"
	"github.com/Sirveme/quevendi-pos/internal/correlative"
	"github.com/Sirveme/quevendi-pos/internal/sales"
	"github.com/Sirveme/quevendi-pos/pkg/config"
	"github.com/Sirveme/quevendi-pos/pkg/enums"
	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/Sirveme/quevendi-pos/pkg/logger"
	"github.com/Sirveme/quevendi-pos/pkg/store/models"
)

type queueReader interface {
	Counts(ctx context.Context) (sales.StatusCounts, error)
	GetByVerificationCode(ctx context.Context, code string) (*models.PendingSale, error)
}

type catalogReader interface {
	Count(ctx context.Context) (int64, error)
	Watermark(ctx context.Context) (string, error)
}

type blockReader interface {
	GetStatus(ctx context.Context) ([]correlative.BlockStatus, error)
}

type connReader interface {
	Online() bool
}

// DeviceSource yields the persistent device identifier of this till.
type DeviceSource interface {
	DeviceID(ctx context.Context) (string, error)
}

// Healthz reports process liveness.
func Healthz(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		responses.WriteSuccess(w, map[string]string{
			"status": "ok",
			"env":    cfg.App.Env,
		})
	}
}

type statusPayload struct {
	TenantID  string                    `json:"tenant_id"`
	DeviceID  string                    `json:"device_id"`
	ConnState enums.ConnState           `json:"conn_state"`
	Queue     sales.StatusCounts        `json:"queue"`
	Catalog   catalogStatus             `json:"catalog"`
	Blocks    []correlative.BlockStatus `json:"correlative_blocks"`
}

type catalogStatus struct {
	Products int64  `json:"products"`
	LastSync string `json:"last_sync,omitempty"`
}

// Status reports the offline subsystem state for diagnostics.
func Status(cfg *config.Config, queue queueReader, cat catalogReader, blocks blockReader, conn connReader, device DeviceSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		deviceID, err := device.DeviceID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		counts, err := queue.Counts(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		products, err := cat.Count(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		watermark, err := cat.Watermark(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		blockStatuses, err := blocks.GetStatus(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		state := enums.ConnStateOffline
		if conn.Online() {
			state = enums.ConnStateOnline
		}

		responses.WriteSuccess(w, statusPayload{
			TenantID:  cfg.App.TenantID,
			DeviceID:  deviceID,
			ConnState: state,
			Queue:     counts,
			Catalog:   catalogStatus{Products: products, LastSync: watermark},
			Blocks:    blockStatuses,
		})
	}
}

type verificationPayload struct {
	VerificationCode string           `json:"verification_code"`
	Status           enums.SaleStatus `json:"status"`
	Synced           bool             `json:"synced"`
	ServerSaleID     *int64           `json:"server_sale_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	SyncedAt         *time.Time       `json:"synced_at,omitempty"`
	Sale             json.RawMessage  `json:"sale"`
}

// VerificationLookup resolves a customer-facing verification code to the
// captured sale, whether it has been delivered yet or not.
func VerificationLookup(queue queueReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		code := chi.URLParam(r, "code")

		sale, err := queue.GetByVerificationCode(ctx, code)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if sale == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no sale carries that verification code"))
			return
		}

		responses.WriteSuccess(w, verificationPayload{
			VerificationCode: sale.VerificationCode,
			Status:           sale.Status,
			Synced:           sale.Synced,
			ServerSaleID:     sale.ServerSaleID,
			CreatedAt:        sale.CreatedAt,
			SyncedAt:         sale.SyncedAt,
			Sale:             sale.Payload,
		})
	}
}
