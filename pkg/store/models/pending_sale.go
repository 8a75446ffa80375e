package models

import (
	"encoding/json"
	"time"

	"github.com/Sirveme/quevendi-pos/pkg/enums"
)

// PendingSale is a sale captured while disconnected, waiting for delivery.
// The payload is the exact request body the server expects; the token is a
// snapshot of the bearer credential at capture time.
type PendingSale struct {
	LocalID          int64            `gorm:"column:local_id;primaryKey;autoIncrement"`
	TenantID         string           `gorm:"column:tenant_id;not null"`
	Payload          json.RawMessage  `gorm:"column:payload;not null"`
	Token            string           `gorm:"column:token;not null;default:''"`
	Status           enums.SaleStatus `gorm:"column:status;not null;default:pending"`
	Synced           bool             `gorm:"column:synced;not null;default:false;index"`
	ErrorMessage     *string          `gorm:"column:error_message"`
	RetryCount       int              `gorm:"column:retry_count;not null;default:0"`
	CreatedAt        time.Time        `gorm:"column:created_at;not null"`
	SyncedAt         *time.Time       `gorm:"column:synced_at"`
	ServerSaleID     *int64           `gorm:"column:server_sale_id"`
	VerificationCode string           `gorm:"column:verification_code;not null;uniqueIndex"`
}

func (PendingSale) TableName() string { return "pending_sales" }
