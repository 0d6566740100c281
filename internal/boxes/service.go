package boxes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargoloop/forwarder-backend/internal/fees"
	"github.com/cargoloop/forwarder-backend/internal/packages"
	"github.com/cargoloop/forwarder-backend/internal/platformconfig"
	"github.com/cargoloop/forwarder-backend/pkg/db/models"
	"github.com/cargoloop/forwarder-backend/pkg/enums"
	pkgerrors "github.com/cargoloop/forwarder-backend/pkg/errors"
	"github.com/cargoloop/forwarder-backend/pkg/logger"
	"github.com/cargoloop/forwarder-backend/pkg/outbox"
	"github.com/cargoloop/forwarder-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type settingsSource interface {
	Get() platformconfig.Settings
}

type service struct {
	repo     Repository
	pkgRepo  packages.Repository
	tx       txRunner
	outbox   outboxPublisher
	settings settingsSource
	locks    LockManager
	logg     *logger.Logger
}

// NewService wires the box lifecycle service.
func NewService(
	repo Repository,
	pkgRepo packages.Repository,
	tx txRunner,
	outboxSvc outboxPublisher,
	settings settingsSource,
	locks LockManager,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, errors.New("box repository is required")
	}
	if pkgRepo == nil {
		return nil, errors.New("package repository is required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if outboxSvc == nil {
		return nil, errors.New("outbox service is required")
	}
	if settings == nil {
		return nil, errors.New("settings source is required")
	}
	if locks == nil {
		return nil, errors.New("lock manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &service{
		repo:     repo,
		pkgRepo:  pkgRepo,
		tx:       tx,
		outbox:   outboxSvc,
		settings: settings,
		locks:    locks,
		logg:     logg,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateBoxInput) (*models.ConsolidationBox, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	boxType := input.Type
	if boxType == "" {
		boxType = enums.ConsolidationTypeStandard
	}
	if !boxType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid consolidation type %q", input.Type))
	}
	for _, option := range input.Options.ExtraProtection {
		if !option.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid protection option %q", option))
		}
	}

	settings := s.settings.Get()
	if len(input.InitialPackageIDs) > settings.MaxItemsAllowed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "box is full")
	}

	var created *models.ConsolidationBox
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		boxRepo := s.repo.WithTx(tx)
		pkgRepo := s.pkgRepo.WithTx(tx)

		members, err := pkgRepo.FindByIDs(ctx, input.InitialPackageIDs)
		if err != nil {
			return err
		}
		if len(members) != len(input.InitialPackageIDs) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "package not found")
		}
		weight := 0
		for _, member := range members {
			if member.BoxID != nil {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("package %s is already assigned to a box", member.ID))
			}
			weight += member.WeightGrams
		}

		now := time.Now()
		consolidationDeadline := now.AddDate(0, 0, settings.ConsolidationDeadlineDays)
		shippingDeadline := now.AddDate(0, 0, settings.ShippingDeadlineDays)
		box := &models.ConsolidationBox{
			CustomerID:            input.CustomerID,
			Type:                  boxType,
			Status:                enums.BoxStatusOpen,
			CurrentWeightGrams:    weight,
			MaxItemsAllowed:       settings.MaxItemsAllowed,
			ConsolidationFeeCents: fees.ConsolidationFee(settings.Fees, boxType, len(members)),
			StorageFeeCents:       fees.StorageFee(settings.Fees, len(members)),
			CustomInstructions:    input.Options.CustomInstructions,
			ExtraProtection:       input.Options.ExtraProtection,
			RemoveInvoice:         input.Options.RemoveInvoice,
			ConsolidationDeadline: &consolidationDeadline,
			ShippingDeadline:      &shippingDeadline,
		}
		if _, err := boxRepo.Create(ctx, box); err != nil {
			return err
		}
		for _, member := range members {
			if err := pkgRepo.SetBoxMembership(ctx, member.ID, &box.ID); err != nil {
				return err
			}
		}
		created, err = boxRepo.FindByID(ctx, box.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithBoxID(ctx, created.ID.String())
	s.logg.Info(logCtx, "box created")
	return created, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ConsolidationBox, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *service) List(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*BoxList, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	return s.repo.ListByCustomer(ctx, customerID, params)
}

func (s *service) AddPackage(ctx context.Context, input AddPackageInput) (*models.ConsolidationBox, error) {
	if input.WeightGrams < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "weight cannot be negative")
	}
	var out *models.ConsolidationBox
	err := s.locks.WithLock(ctx, input.BoxID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			boxRepo := s.repo.WithTx(tx)
			pkgRepo := s.pkgRepo.WithTx(tx)

			box, err := boxRepo.FindByID(ctx, input.BoxID)
			if err != nil {
				return err
			}
			if box.Status != enums.BoxStatusOpen {
				return pkgerrors.New(pkgerrors.CodeConflict, "box is not open")
			}
			if len(box.Packages)+1 > box.MaxItemsAllowed {
				return pkgerrors.New(pkgerrors.CodeValidation, "box is full")
			}

			members, err := pkgRepo.FindByIDs(ctx, []uuid.UUID{input.PackageID})
			if err != nil {
				return err
			}
			if len(members) == 0 {
				return pkgerrors.New(pkgerrors.CodeNotFound, "package not found")
			}
			if members[0].BoxID != nil {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("package %s is already assigned to a box", input.PackageID))
			}

			// the receiving-desk weight supplied here overwrites whatever was
			// on the package; this is the authoritative weighing event
			if err := pkgRepo.SetWeight(ctx, input.PackageID, input.WeightGrams, input.RecordedBy, input.WeightNotes); err != nil {
				return err
			}
			if err := pkgRepo.SetBoxMembership(ctx, input.PackageID, &box.ID); err != nil {
				return err
			}
			if err := s.recalculate(ctx, boxRepo, pkgRepo, box); err != nil {
				return err
			}
			out, err = boxRepo.FindByID(ctx, box.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) RemovePackage(ctx context.Context, boxID, packageID uuid.UUID) (*models.ConsolidationBox, error) {
	var out *models.ConsolidationBox
	err := s.locks.WithLock(ctx, boxID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			boxRepo := s.repo.WithTx(tx)
			pkgRepo := s.pkgRepo.WithTx(tx)

			box, err := boxRepo.FindByID(ctx, boxID)
			if err != nil {
				return err
			}
			if box.Status != enums.BoxStatusOpen {
				return pkgerrors.New(pkgerrors.CodeConflict, "box is not open")
			}
			member := false
			for _, pkg := range box.Packages {
				if pkg.ID == packageID {
					member = true
					break
				}
			}
			if !member {
				return pkgerrors.New(pkgerrors.CodeConflict, "package is not in this box")
			}

			if err := pkgRepo.SetBoxMembership(ctx, packageID, nil); err != nil {
				return err
			}
			if err := s.recalculate(ctx, boxRepo, pkgRepo, box); err != nil {
				return err
			}
			out, err = boxRepo.FindByID(ctx, box.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) AppendPhotos(ctx context.Context, boxID uuid.UUID, stage PhotoStage, refs []string) (*models.ConsolidationBox, error) {
	if len(refs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one photo reference is required")
	}
	if stage != PhotoStageBefore && stage != PhotoStageAfter {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid photo stage %q", stage))
	}
	var out *models.ConsolidationBox
	err := s.locks.WithLock(ctx, boxID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			boxRepo := s.repo.WithTx(tx)
			box, err := boxRepo.FindByID(ctx, boxID)
			if err != nil {
				return err
			}
			// photos are append-only; existing entries are never rewritten
			var updates map[string]any
			if stage == PhotoStageBefore {
				updates = map[string]any{"before_photos": append(box.BeforePhotos, refs...)}
			} else {
				updates = map[string]any{"after_photos": append(box.AfterPhotos, refs...)}
			}
			if err := boxRepo.Update(ctx, box.ID, updates); err != nil {
				return err
			}
			out, err = boxRepo.FindByID(ctx, box.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Close(ctx context.Context, boxID uuid.UUID) (*models.ConsolidationBox, error) {
	var out *models.ConsolidationBox
	err := s.locks.WithLock(ctx, boxID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			out, err = s.closeInTx(ctx, tx, boxID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// closeInTx freezes the fee snapshot and moves the box to PENDING. Callers
// must hold the box lock and run inside a transaction.
func (s *service) closeInTx(ctx context.Context, tx *gorm.DB, boxID uuid.UUID) (*models.ConsolidationBox, error) {
	boxRepo := s.repo.WithTx(tx)
	pkgRepo := s.pkgRepo.WithTx(tx)

	box, err := boxRepo.FindByID(ctx, boxID)
	if err != nil {
		return nil, err
	}
	if box.Status != enums.BoxStatusOpen {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "box already closed")
	}

	members, err := pkgRepo.FindByBox(ctx, box.ID)
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithBoxID(ctx, box.ID.String())
	if len(members) == 0 {
		s.logg.Warn(logCtx, "closing box with no packages")
	}
	weight := 0
	for _, member := range members {
		weight += member.WeightGrams
	}
	cfg := s.settings.Get().Fees
	consolidationFee := fees.ConsolidationFee(cfg, box.Type, len(members))
	storageFee := fees.StorageFee(cfg, len(members))

	now := time.Now()
	updates := map[string]any{
		"status":                  enums.BoxStatusPending,
		"closed_at":               now,
		"current_weight_grams":    weight,
		"consolidation_fee_cents": consolidationFee,
		"storage_fee_cents":       storageFee,
	}
	if err := boxRepo.Update(ctx, box.ID, updates); err != nil {
		return nil, err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventBoxClosed,
		AggregateType: enums.AggregateConsolidationBox,
		AggregateID:   box.ID,
		Data: outbox.BoxClosedPayload{
			BoxID:                 box.ID,
			CustomerID:            box.CustomerID,
			PackageCount:          len(members),
			WeightGrams:           weight,
			ConsolidationFeeCents: consolidationFee,
			StorageFeeCents:       storageFee,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}
	s.logg.Info(logCtx, "box closed")
	return boxRepo.FindByID(ctx, box.ID)
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.ConsolidationBox, error) {
	if !input.NextStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid box status %q", input.NextStatus))
	}
	var out *models.ConsolidationBox
	err := s.locks.WithLock(ctx, input.BoxID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			boxRepo := s.repo.WithTx(tx)
			box, err := boxRepo.FindByID(ctx, input.BoxID)
			if err != nil {
				return err
			}
			if !CanTransition(box.Status, input.NextStatus) {
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					fmt.Sprintf("cannot transition box from %s to %s", box.Status, input.NextStatus))
			}
			if input.NextStatus == enums.BoxStatusShipped && input.TrackingCode == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "tracking code is required to mark a box shipped")
			}

			// OPEN -> PENDING is the close operation: it freezes fees and
			// stamps closed_at, not just the status column
			if box.Status == enums.BoxStatusOpen && input.NextStatus == enums.BoxStatusPending {
				out, err = s.closeInTx(ctx, tx, box.ID)
				return err
			}

			updates := map[string]any{"status": input.NextStatus}
			if input.NextStatus == enums.BoxStatusShipped {
				updates["tracking_number"] = input.TrackingCode
			}
			if err := boxRepo.Update(ctx, box.ID, updates); err != nil {
				return err
			}

			eventType := enums.EventBoxStatusChanged
			if input.NextStatus == enums.BoxStatusCancelled {
				eventType = enums.EventBoxCancelled
			}
			event := outbox.DomainEvent{
				EventType:     eventType,
				AggregateType: enums.AggregateConsolidationBox,
				AggregateID:   box.ID,
				Data: outbox.BoxStatusPayload{
					BoxID:      box.ID,
					CustomerID: box.CustomerID,
					FromStatus: box.Status,
					ToStatus:   input.NextStatus,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"box_id":      box.ID.String(),
				"from_status": box.Status,
				"to_status":   input.NextStatus,
			})
			s.logg.Info(logCtx, "box status changed")
			out, err = boxRepo.FindByID(ctx, box.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Delete(ctx context.Context, boxID uuid.UUID) error {
	err := s.locks.WithLock(ctx, boxID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			boxRepo := s.repo.WithTx(tx)
			pkgRepo := s.pkgRepo.WithTx(tx)

			box, err := boxRepo.FindByID(ctx, boxID)
			if err != nil {
				return err
			}
			if box.Status != enums.BoxStatusOpen {
				return pkgerrors.New(pkgerrors.CodeConflict, "only open boxes can be deleted")
			}
			for _, pkg := range box.Packages {
				if err := pkgRepo.SetBoxMembership(ctx, pkg.ID, nil); err != nil {
					return err
				}
			}
			return boxRepo.Delete(ctx, box.ID)
		})
	})
	if err != nil {
		return err
	}
	logCtx := s.logg.WithBoxID(ctx, boxID.String())
	s.logg.Info(logCtx, "box deleted")
	return nil
}

// recalculate re-derives weight and fees from the current member set. The
// stored weight is always a fresh sum, never an incremental delta.
func (s *service) recalculate(ctx context.Context, boxRepo Repository, pkgRepo packages.Repository, box *models.ConsolidationBox) error {
	members, err := pkgRepo.FindByBox(ctx, box.ID)
	if err != nil {
		return err
	}
	weight := 0
	for _, member := range members {
		weight += member.WeightGrams
	}
	cfg := s.settings.Get().Fees
	updates := map[string]any{
		"current_weight_grams":    weight,
		"consolidation_fee_cents": fees.ConsolidationFee(cfg, box.Type, len(members)),
		"storage_fee_cents":       fees.StorageFee(cfg, len(members)),
	}
	return boxRepo.Update(ctx, box.ID, updates)
}
