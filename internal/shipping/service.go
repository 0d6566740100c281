package shipping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/cargoloop/forwarder-backend/internal/boxes"
	"github.com/cargoloop/forwarder-backend/internal/carriers"
	"github.com/cargoloop/forwarder-backend/internal/fees"
	"github.com/cargoloop/forwarder-backend/internal/platformconfig"
	"github.com/cargoloop/forwarder-backend/pkg/config"
	"github.com/cargoloop/forwarder-backend/pkg/db/models"
	"github.com/cargoloop/forwarder-backend/pkg/enums"
	pkgerrors "github.com/cargoloop/forwarder-backend/pkg/errors"
	"github.com/cargoloop/forwarder-backend/pkg/logger"
	"github.com/cargoloop/forwarder-backend/pkg/outbox"
	"github.com/google/uuid"
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

type carrierSource interface {
	Get(code enums.CarrierCode) (carriers.Carrier, error)
	All() []carriers.Carrier
}

// boxWorkflow is the slice of the box service the shipment workflow drives:
// status transitions and reads. Transitions go through the box service so the
// per-box lock and lifecycle table stay authoritative.
type boxWorkflow interface {
	Get(ctx context.Context, id uuid.UUID) (*models.ConsolidationBox, error)
	UpdateStatus(ctx context.Context, input boxes.UpdateStatusInput) (*models.ConsolidationBox, error)
}

// Service defines rate shopping and the shipment workflow.
type Service interface {
	Quote(ctx context.Context, input QuoteInput) (*QuoteResult, error)
	CreateShipment(ctx context.Context, input CreateShipmentInput) (*models.Shipment, error)
	Track(ctx context.Context, trackingNumber string) (*TrackingInfo, error)
	Cancel(ctx context.Context, trackingNumber string) (*models.Shipment, error)
}

type service struct {
	repo     Repository
	registry carrierSource
	boxes    boxWorkflow
	tx       txRunner
	outbox   outboxPublisher
	settings settingsSource
	cfg      config.RateShoppingConfig
	logg     *logger.Logger
}

// NewService wires the shipping service.
func NewService(
	repo Repository,
	registry carrierSource,
	boxSvc boxWorkflow,
	tx txRunner,
	outboxSvc outboxPublisher,
	settings settingsSource,
	cfg config.RateShoppingConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, errors.New("shipment repository is required")
	}
	if registry == nil {
		return nil, errors.New("carrier registry is required")
	}
	if boxSvc == nil {
		return nil, errors.New("box service is required")
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
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.CarrierTimeout <= 0 {
		cfg.CarrierTimeout = 10 * time.Second
	}
	if cfg.AggregateTimeout <= 0 {
		cfg.AggregateTimeout = cfg.CarrierTimeout + 2*time.Second
	}
	return &service{
		repo:     repo,
		registry: registry,
		boxes:    boxSvc,
		tx:       tx,
		outbox:   outboxSvc,
		settings: settings,
		cfg:      cfg,
		logg:     logg,
	}, nil
}

// Quote fans rate lookups out to every active carrier and aggregates whatever
// comes back before the aggregate deadline. A slow or failing carrier
// contributes an unavailable entry, never an error for the whole request.
func (s *service) Quote(ctx context.Context, input QuoteInput) (*QuoteResult, error) {
	if input.WeightGrams <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "weight must be positive")
	}
	if input.DestPostal == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination postal code is required")
	}
	adapters := s.registry.All()
	if len(adapters) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "no carriers are configured")
	}

	query := carriers.RateQuery{
		WeightGrams:  input.WeightGrams,
		OriginPostal: input.OriginPostal,
		DestPostal:   input.DestPostal,
		DestCountry:  input.DestCountry,
		ServiceType:  input.ServiceType,
	}
	feeCfg := s.settings.Get().Fees

	aggCtx, cancel := context.WithTimeout(ctx, s.cfg.AggregateTimeout)
	defer cancel()

	quotes := make([]CarrierQuote, len(adapters))
	group, groupCtx := errgroup.WithContext(aggCtx)
	for i, adapter := range adapters {
		group.Go(func() error {
			callCtx, cancel := context.WithTimeout(groupCtx, s.cfg.CarrierTimeout)
			defer cancel()

			rates := adapter.GetRates(callCtx, query)
			quote := CarrierQuote{Carrier: adapter.Code()}
			if len(rates) == 0 {
				quote.Message = fmt.Sprintf("rate unavailable from carrier %s", adapter.Code())
			} else {
				for j := range rates {
					rates[j].CustomerTotalCents = fees.QuotedTotal(feeCfg, rates[j].TotalCents)
				}
				quote.Available = true
				quote.Rates = rates
			}
			quotes[i] = quote
			return nil
		})
	}
	// goroutines never return errors; Wait just fences the fan-in
	_ = group.Wait()

	return &QuoteResult{Quotes: quotes}, nil
}

// CreateShipment runs the PENDING -> IN_PROGRESS -> SHIPPED workflow around a
// single carrier call. The carrier call is never retried: a duplicate label
// costs real money. On failure the box falls back to PENDING.
func (s *service) CreateShipment(ctx context.Context, input CreateShipmentInput) (*models.Shipment, error) {
	adapter, err := s.registry.Get(input.Carrier)
	if err != nil {
		return nil, err
	}
	if input.ServiceCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service code is required")
	}
	if issues := input.Destination.Validate(); len(issues) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid destination address: %s", issues[0]))
	}

	box, err := s.boxes.Get(ctx, input.BoxID)
	if err != nil {
		return nil, err
	}
	if box.Status != enums.BoxStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("box must be pending to ship, currently %s", box.Status))
	}

	if _, err := s.boxes.UpdateStatus(ctx, boxes.UpdateStatusInput{
		BoxID:      box.ID,
		NextStatus: enums.BoxStatusInProgress,
	}); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CarrierTimeout)
	resp := adapter.CreateShipment(callCtx, carriers.ShipmentRequest{
		BoxID:              box.ID.String(),
		ServiceCode:        input.ServiceCode,
		WeightGrams:        box.CurrentWeightGrams,
		Dimensions:         input.Dimensions,
		Origin:             input.Origin,
		Destination:        input.Destination,
		DeclaredValueCents: input.DeclaredValueCents,
		Insurance:          input.Insurance,
		Reference:          box.ID.String(),
	})
	cancel()

	logCtx := s.logg.WithCarrier(s.logg.WithBoxID(ctx, box.ID.String()), string(input.Carrier))
	if !resp.Success {
		s.revertToPending(ctx, box.ID)
		s.logg.Warn(logCtx, "carrier shipment creation failed")
		return nil, pkgerrors.New(pkgerrors.CodeCarrier, resp.Error)
	}

	feeCfg := s.settings.Get().Fees
	shipment := &models.Shipment{
		BoxID:              box.ID,
		Carrier:            input.Carrier,
		ServiceCode:        input.ServiceCode,
		ServiceName:        input.ServiceName,
		TrackingNumber:     resp.TrackingNumber,
		DeclaredValueCents: input.DeclaredValueCents,
		QuotedCents:        input.QuotedCents,
		ChargedCents:       fees.QuotedTotal(feeCfg, input.QuotedCents),
		Status:             enums.ShipmentStatusCreated,
	}
	if resp.LabelURL != "" {
		shipment.LabelURL = &resp.LabelURL
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.WithTx(tx).Create(ctx, shipment); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventShipmentCreated,
			AggregateType: enums.AggregateShipment,
			AggregateID:   shipment.ID,
			Data: outbox.ShipmentPayload{
				ShipmentID:     shipment.ID,
				BoxID:          box.ID,
				Carrier:        input.Carrier,
				ServiceCode:    input.ServiceCode,
				TrackingNumber: resp.TrackingNumber,
				QuotedCents:    input.QuotedCents,
			},
		})
	})
	if err != nil {
		s.revertToPending(ctx, box.ID)
		return nil, err
	}

	if _, err := s.boxes.UpdateStatus(ctx, boxes.UpdateStatusInput{
		BoxID:        box.ID,
		NextStatus:   enums.BoxStatusShipped,
		TrackingCode: resp.TrackingNumber,
	}); err != nil {
		// the label exists and the shipment row is committed; surface the
		// inconsistency instead of voiding the label automatically
		s.logg.Error(logCtx, "box could not be marked shipped after label purchase", err)
		return nil, err
	}

	s.logg.Info(logCtx, "shipment created")
	return shipment, nil
}

// revertToPending is best effort; a failed revert leaves the box in
// IN_PROGRESS for an operator to resolve.
func (s *service) revertToPending(ctx context.Context, boxID uuid.UUID) {
	if _, err := s.boxes.UpdateStatus(ctx, boxes.UpdateStatusInput{
		BoxID:      boxID,
		NextStatus: enums.BoxStatusPending,
	}); err != nil {
		s.logg.Error(s.logg.WithBoxID(ctx, boxID.String()), "failed to return box to pending", err)
	}
}

// Track queries the carrier for current tracking state, retrying transient
// transport failures a bounded number of times before degrading to the
// Unknown status. A successfully parsed status is synced onto the shipment.
func (s *service) Track(ctx context.Context, trackingNumber string) (*TrackingInfo, error) {
	shipment, err := s.repo.FindByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	adapter, err := s.registry.Get(shipment.Carrier)
	if err != nil {
		return nil, err
	}

	tracking := carriers.TrackingResponse{TrackingNumber: trackingNumber, Status: carriers.StatusUnknown}
	attempts := 1 + s.cfg.TrackMaxRetries
	for attempt := 0; attempt < attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CarrierTimeout)
		resp, trackErr := adapter.TrackShipment(callCtx, trackingNumber)
		cancel()
		if trackErr == nil {
			tracking = resp
			break
		}
		if !pkgerrors.IsRetryable(trackErr) {
			return nil, trackErr
		}
	}

	status := mapTrackingStatus(tracking.Status)
	if status != enums.ShipmentStatusUnknown && status != shipment.Status {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).Update(ctx, shipment.ID, map[string]any{"status": status}); err != nil {
				return err
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventShipmentStatusSync,
				AggregateType: enums.AggregateShipment,
				AggregateID:   shipment.ID,
				Data: outbox.ShipmentPayload{
					ShipmentID:     shipment.ID,
					BoxID:          shipment.BoxID,
					Carrier:        shipment.Carrier,
					ServiceCode:    shipment.ServiceCode,
					TrackingNumber: shipment.TrackingNumber,
				},
			})
		})
		if err != nil {
			return nil, err
		}
		shipment.Status = status
	}

	return &TrackingInfo{Shipment: shipment, Tracking: tracking}, nil
}

// Cancel voids the shipment with the carrier and marks it cancelled. Calling
// it again on an already-cancelled shipment succeeds without a carrier call.
func (s *service) Cancel(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	shipment, err := s.repo.FindByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	if shipment.Status == enums.ShipmentStatusCancelled {
		return shipment, nil
	}
	if shipment.Status == enums.ShipmentStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "delivered shipments cannot be cancelled")
	}

	adapter, err := s.registry.Get(shipment.Carrier)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CarrierTimeout)
	ok, err := adapter.CancelShipment(callCtx, trackingNumber)
	cancel()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeCarrier, "shipping provider rejected the cancellation")
	}

	now := time.Now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, shipment.ID, map[string]any{
			"status":       enums.ShipmentStatusCancelled,
			"cancelled_at": now,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventShipmentCancelled,
			AggregateType: enums.AggregateShipment,
			AggregateID:   shipment.ID,
			Data: outbox.ShipmentPayload{
				ShipmentID:     shipment.ID,
				BoxID:          shipment.BoxID,
				Carrier:        shipment.Carrier,
				ServiceCode:    shipment.ServiceCode,
				TrackingNumber: shipment.TrackingNumber,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	shipment.Status = enums.ShipmentStatusCancelled
	shipment.CancelledAt = &now

	logCtx := s.logg.WithCarrier(ctx, string(shipment.Carrier))
	s.logg.Info(logCtx, "shipment cancelled")
	return shipment, nil
}

func mapTrackingStatus(status string) enums.ShipmentStatus {
	switch status {
	case carriers.StatusDelivered:
		return enums.ShipmentStatusDelivered
	case carriers.StatusInTransit:
		return enums.ShipmentStatusInTransit
	case carriers.StatusCreated:
		return enums.ShipmentStatusCreated
	case carriers.StatusCancelled:
		return enums.ShipmentStatusCancelled
	default:
		return enums.ShipmentStatusUnknown
	}
}
