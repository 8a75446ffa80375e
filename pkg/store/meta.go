package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/Sirveme/quevendi-pos/pkg/store/models"
)

// Meta exposes the sync_meta key/value collection of a session.
type Meta struct {
	session *Session
}

// NewMeta builds a meta accessor bound to the session.
func NewMeta(session *Session) *Meta {
	return &Meta{session: session}
}

// Get returns the value for key, or ("", false) when absent.
func (m *Meta) Get(ctx context.Context, key string) (string, bool, error) {
	var row models.SyncMeta
	err := m.session.DB().WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "reading sync meta")
	}
	return row.Value, true, nil
}

// Set upserts the value for key.
func (m *Meta) Set(ctx context.Context, key, value string) error {
	return m.session.WithTx(ctx, func(tx *gorm.DB) error {
		return setMetaTx(tx, key, value)
	})
}

// Delete removes the key, ignoring absence.
func (m *Meta) Delete(ctx context.Context, key string) error {
	return m.session.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Delete(&models.SyncMeta{}, "key = ?", key).Error
	})
}

// DeviceID returns the persisted device identifier, creating one on first
// use. The identifier survives restarts so verification codes stay unique
// per device of the tenant.
func (m *Meta) DeviceID(ctx context.Context) (string, error) {
	existing, ok, err := m.Get(ctx, models.MetaKeyDeviceID)
	if err != nil {
		return "", err
	}
	if ok {
		return existing, nil
	}
	id := fmt.Sprintf("DEV-%s", strings.ToUpper(strings.SplitN(uuid.NewString(), "-", 2)[0]))
	if err := m.Set(ctx, models.MetaKeyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

// setMetaTx upserts a meta row inside an existing transaction, so callers
// like catalog sync can advance the watermark atomically with their writes.
func setMetaTx(tx *gorm.DB, key, value string) error {
	row := models.SyncMeta{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

// SetTx is the transactional variant of Set.
func (m *Meta) SetTx(tx *gorm.DB, key, value string) error {
	return setMetaTx(tx, key, value)
}
