package shipping

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cargoloop/forwarder-backend/pkg/db/models"
	"github.com/cargoloop/forwarder-backend/pkg/enums"
	pkgerrors "github.com/cargoloop/forwarder-backend/pkg/errors"
)

func setupShipmentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS shipments (
  id TEXT PRIMARY KEY,
  box_id TEXT NOT NULL,
  carrier TEXT NOT NULL,
  service_code TEXT NOT NULL,
  service_name TEXT NOT NULL,
  tracking_number TEXT NOT NULL UNIQUE,
  label_url TEXT,
  declared_value_cents INTEGER NOT NULL DEFAULT 0,
  quoted_cents INTEGER NOT NULL DEFAULT 0,
  charged_cents INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'created',
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedShipment(t *testing.T, db *gorm.DB, boxID uuid.UUID, trackingNumber string) *models.Shipment {
	t.Helper()
	shipment := &models.Shipment{
		ID:             uuid.New(),
		BoxID:          boxID,
		Carrier:        enums.CarrierUPS,
		ServiceCode:    "03",
		ServiceName:    "UPS Ground",
		TrackingNumber: trackingNumber,
		QuotedCents:    10000,
		ChargedCents:   11150,
		Status:         enums.ShipmentStatusCreated,
	}
	require.NoError(t, db.Create(shipment).Error)
	return shipment
}

func TestShipmentRepoCreateAndFind(t *testing.T) {
	db := setupShipmentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	boxID := uuid.New()

	label := "data:application/pdf;base64,JVBER"
	created, err := repo.Create(ctx, &models.Shipment{
		ID:             uuid.New(),
		BoxID:          boxID,
		Carrier:        enums.CarrierUSPS,
		ServiceCode:    "1",
		ServiceName:    "Priority Mail",
		TrackingNumber: "9400100000000000000000",
		LabelURL:       &label,
		Status:         enums.ShipmentStatusCreated,
	})
	require.NoError(t, err)

	found, err := repo.FindByTrackingNumber(ctx, "9400100000000000000000")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, enums.CarrierUSPS, found.Carrier)
	require.NotNil(t, found.LabelURL)
}

func TestShipmentRepoFindByTrackingNumberNotFound(t *testing.T) {
	db := setupShipmentsTestDB(t)
	repo := NewRepository(db)

	_, err := repo.FindByTrackingNumber(context.Background(), "missing")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestShipmentRepoFindByBox(t *testing.T) {
	db := setupShipmentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	boxID := uuid.New()

	seedShipment(t, db, boxID, "1Z999AA10123456784")
	seedShipment(t, db, uuid.New(), "1Z999AA10123456785")

	rows, err := repo.FindByBox(ctx, boxID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1Z999AA10123456784", rows[0].TrackingNumber)
}

func TestShipmentRepoUpdate(t *testing.T) {
	db := setupShipmentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	shipment := seedShipment(t, db, uuid.New(), "1Z999AA10123456784")

	cancelledAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Update(ctx, shipment.ID, map[string]any{
		"status":       enums.ShipmentStatusCancelled,
		"cancelled_at": cancelledAt,
	}))

	found, err := repo.FindByTrackingNumber(ctx, shipment.TrackingNumber)
	require.NoError(t, err)
	assert.Equal(t, enums.ShipmentStatusCancelled, found.Status)
	require.NotNil(t, found.CancelledAt)

	err = repo.Update(ctx, uuid.New(), map[string]any{"status": enums.ShipmentStatusCancelled})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
