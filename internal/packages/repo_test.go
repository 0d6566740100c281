package packages

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cargoloop/forwarder-backend/pkg/db/models"
	"github.com/cargoloop/forwarder-backend/pkg/enums"
	pkgerrors "github.com/cargoloop/forwarder-backend/pkg/errors"
)

func setupPackagesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS packages (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  box_id TEXT,
  status TEXT NOT NULL DEFAULT 'expected',
  weight_grams INTEGER NOT NULL DEFAULT 0,
  price_cents INTEGER NOT NULL DEFAULT 0,
  description TEXT,
  weight_recorded_by TEXT,
  weight_notes TEXT,
  received_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedPackage(t *testing.T, db *gorm.DB, grams int) *models.Package {
	t.Helper()
	pkg := &models.Package{
		ID:          uuid.New(),
		CustomerID:  uuid.New(),
		Status:      enums.PackageStatusReceived,
		WeightGrams: grams,
	}
	require.NoError(t, db.Create(pkg).Error)
	return pkg
}

func TestSetWeightRecordsProvenance(t *testing.T) {
	db := setupPackagesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	pkg := seedPackage(t, db, 100)

	require.NoError(t, repo.SetWeight(ctx, pkg.ID, 350, "receiving-desk", "scale drift corrected"))

	grams, err := repo.GetWeight(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, 350, grams)

	var reloaded models.Package
	require.NoError(t, db.First(&reloaded, "id = ?", pkg.ID).Error)
	require.NotNil(t, reloaded.WeightRecordedBy)
	assert.Equal(t, "receiving-desk", *reloaded.WeightRecordedBy)
}

func TestSetWeightRejectsNegative(t *testing.T) {
	db := setupPackagesTestDB(t)
	repo := NewRepository(db)
	pkg := seedPackage(t, db, 100)

	err := repo.SetWeight(context.Background(), pkg.ID, -1, "", "")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestSetBoxMembershipTogglesStatus(t *testing.T) {
	db := setupPackagesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	pkg := seedPackage(t, db, 200)
	boxID := uuid.New()

	require.NoError(t, repo.SetBoxMembership(ctx, pkg.ID, &boxID))
	var assigned models.Package
	require.NoError(t, db.First(&assigned, "id = ?", pkg.ID).Error)
	require.NotNil(t, assigned.BoxID)
	assert.Equal(t, boxID, *assigned.BoxID)
	assert.Equal(t, enums.PackageStatusConsolidated, assigned.Status)

	require.NoError(t, repo.SetBoxMembership(ctx, pkg.ID, nil))
	var released models.Package
	require.NoError(t, db.First(&released, "id = ?", pkg.ID).Error)
	assert.Nil(t, released.BoxID)
	assert.Equal(t, enums.PackageStatusReceived, released.Status)
}

func TestFindByBoxReturnsMembersOnly(t *testing.T) {
	db := setupPackagesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	boxID := uuid.New()

	member := seedPackage(t, db, 500)
	require.NoError(t, repo.SetBoxMembership(ctx, member.ID, &boxID))
	seedPackage(t, db, 900)

	members, err := repo.FindByBox(ctx, boxID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, member.ID, members[0].ID)
}

func TestGetWeightNotFound(t *testing.T) {
	db := setupPackagesTestDB(t)
	repo := NewRepository(db)

	_, err := repo.GetWeight(context.Background(), uuid.New())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
