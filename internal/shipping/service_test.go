package shipping

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargoloop/forwarder-backend/internal/boxes"
	"github.com/cargoloop/forwarder-backend/internal/carriers"
	"github.com/cargoloop/forwarder-backend/internal/platformconfig"
	"github.com/cargoloop/forwarder-backend/pkg/config"
	"github.com/cargoloop/forwarder-backend/pkg/db/models"
	"github.com/cargoloop/forwarder-backend/pkg/enums"
	pkgerrors "github.com/cargoloop/forwarder-backend/pkg/errors"
	"github.com/cargoloop/forwarder-backend/pkg/logger"
	"github.com/cargoloop/forwarder-backend/pkg/outbox"
	"github.com/cargoloop/forwarder-backend/pkg/types"
)

type trackAttempt struct {
	resp carriers.TrackingResponse
	err  error
}

type stubCarrier struct {
	code          enums.CarrierCode
	rates         []carriers.Rate
	rateDelay     time.Duration
	createResp    carriers.ShipmentResponse
	createReq     carriers.ShipmentRequest
	trackAttempts []trackAttempt
	trackCalls    int
	cancelOK      bool
	cancelErr     error
	cancelCalls   int
}

func (s *stubCarrier) Code() enums.CarrierCode { return s.code }

func (s *stubCarrier) Authenticate(ctx context.Context) bool { return true }

func (s *stubCarrier) GetRates(ctx context.Context, query carriers.RateQuery) []carriers.Rate {
	if s.rateDelay > 0 {
		select {
		case <-ctx.Done():
			return []carriers.Rate{}
		case <-time.After(s.rateDelay):
		}
	}
	return s.rates
}

func (s *stubCarrier) CreateShipment(ctx context.Context, req carriers.ShipmentRequest) carriers.ShipmentResponse {
	s.createReq = req
	return s.createResp
}

func (s *stubCarrier) TrackShipment(ctx context.Context, trackingNumber string) (carriers.TrackingResponse, error) {
	attempt := s.trackCalls
	s.trackCalls++
	if attempt >= len(s.trackAttempts) {
		return carriers.TrackingResponse{TrackingNumber: trackingNumber, Status: carriers.StatusUnknown}, nil
	}
	return s.trackAttempts[attempt].resp, s.trackAttempts[attempt].err
}

func (s *stubCarrier) CancelShipment(ctx context.Context, trackingNumber string) (bool, error) {
	s.cancelCalls++
	return s.cancelOK, s.cancelErr
}

type stubShipmentRepo struct {
	shipments map[uuid.UUID]*models.Shipment
}

func newStubShipmentRepo(shipments ...*models.Shipment) *stubShipmentRepo {
	repo := &stubShipmentRepo{shipments: make(map[uuid.UUID]*models.Shipment)}
	for _, shipment := range shipments {
		repo.shipments[shipment.ID] = shipment
	}
	return repo
}

func (s *stubShipmentRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubShipmentRepo) Create(ctx context.Context, shipment *models.Shipment) (*models.Shipment, error) {
	if shipment.ID == uuid.Nil {
		shipment.ID = uuid.New()
	}
	s.shipments[shipment.ID] = shipment
	return shipment, nil
}

func (s *stubShipmentRepo) FindByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	for _, shipment := range s.shipments {
		if shipment.TrackingNumber == trackingNumber {
			copied := *shipment
			return &copied, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
}

func (s *stubShipmentRepo) FindByBox(ctx context.Context, boxID uuid.UUID) ([]models.Shipment, error) {
	var out []models.Shipment
	for _, shipment := range s.shipments {
		if shipment.BoxID == boxID {
			out = append(out, *shipment)
		}
	}
	return out, nil
}

func (s *stubShipmentRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	shipment, ok := s.shipments[id]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
	}
	for key, value := range updates {
		switch key {
		case "status":
			if v, ok := value.(enums.ShipmentStatus); ok {
				shipment.Status = v
			}
		case "cancelled_at":
			if v, ok := value.(time.Time); ok {
				shipment.CancelledAt = &v
			}
		}
	}
	return nil
}

type stubBoxWorkflow struct {
	box         *models.ConsolidationBox
	transitions []enums.BoxStatus
	failOn      map[enums.BoxStatus]error
}

func (s *stubBoxWorkflow) Get(ctx context.Context, id uuid.UUID) (*models.ConsolidationBox, error) {
	if s.box == nil || s.box.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "box not found")
	}
	copied := *s.box
	return &copied, nil
}

func (s *stubBoxWorkflow) UpdateStatus(ctx context.Context, input boxes.UpdateStatusInput) (*models.ConsolidationBox, error) {
	if err, ok := s.failOn[input.NextStatus]; ok {
		return nil, err
	}
	s.box.Status = input.NextStatus
	if input.TrackingCode != "" {
		tracking := input.TrackingCode
		s.box.TrackingNumber = &tracking
	}
	s.transitions = append(s.transitions, input.NextStatus)
	copied := *s.box
	return &copied, nil
}

type stubOutboxPublisher struct {
	events []outbox.DomainEvent
}

func (s *stubOutboxPublisher) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubSettings struct{}

func (stubSettings) Get() platformconfig.Settings { return platformconfig.Defaults() }

func testDestination() types.Address {
	return types.Address{
		Name:        "Ana Souza",
		Street1:     "Rua das Flores 120",
		City:        "Sao Paulo",
		State:       "SP",
		PostalCode:  "01310-100",
		CountryCode: "BR",
	}
}

func newShippingService(t *testing.T, repo Repository, registry carrierSource, boxSvc boxWorkflow, publisher *stubOutboxPublisher, cfg config.RateShoppingConfig) Service {
	t.Helper()
	svc, err := NewService(
		repo,
		registry,
		boxSvc,
		stubTxRunner{},
		publisher,
		stubSettings{},
		cfg,
		logger.New(logger.Options{}),
	)
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}
	return svc
}

func TestQuotePartialAggregation(t *testing.T) {
	fast := &stubCarrier{
		code: enums.CarrierUPS,
		rates: []carriers.Rate{
			{Carrier: enums.CarrierUPS, ServiceCode: "03", ServiceName: "UPS Ground", TotalCents: 10000, Currency: "USD", EstimatedDays: 5},
		},
	}
	slow := &stubCarrier{
		code:      enums.CarrierUSPS,
		rateDelay: time.Second,
		rates: []carriers.Rate{
			{Carrier: enums.CarrierUSPS, ServiceCode: "1", TotalCents: 900},
		},
	}
	registry := carriers.NewRegistry(fast, slow)
	cfg := config.RateShoppingConfig{
		CarrierTimeout:   20 * time.Millisecond,
		AggregateTimeout: 50 * time.Millisecond,
	}
	svc := newShippingService(t, newStubShipmentRepo(), registry, &stubBoxWorkflow{}, &stubOutboxPublisher{}, cfg)

	start := time.Now()
	result, err := svc.Quote(context.Background(), QuoteInput{
		WeightGrams:  1500,
		OriginPostal: "33166",
		DestPostal:   "01310-100",
		DestCountry:  "BR",
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("aggregation exceeded deadline, took %s", elapsed)
	}
	if len(result.Quotes) != 2 {
		t.Fatalf("expected two carrier entries got %d", len(result.Quotes))
	}

	var ups, usps CarrierQuote
	for _, quote := range result.Quotes {
		switch quote.Carrier {
		case enums.CarrierUPS:
			ups = quote
		case enums.CarrierUSPS:
			usps = quote
		}
	}
	if !ups.Available || len(ups.Rates) != 1 {
		t.Fatalf("expected UPS rates got %+v", ups)
	}
	// defaults: 10% of 10000 within clamp + 150 processing on top of the quote
	if ups.Rates[0].CustomerTotalCents != 11150 {
		t.Fatalf("expected customer total 11150 got %d", ups.Rates[0].CustomerTotalCents)
	}
	if usps.Available {
		t.Fatal("expected timed-out carrier to be unavailable")
	}
	if usps.Message != "rate unavailable from carrier usps" {
		t.Fatalf("unexpected message %q", usps.Message)
	}
}

func TestQuoteValidatesInput(t *testing.T) {
	registry := carriers.NewRegistry(&stubCarrier{code: enums.CarrierUPS})
	svc := newShippingService(t, newStubShipmentRepo(), registry, &stubBoxWorkflow{}, &stubOutboxPublisher{}, config.RateShoppingConfig{})

	_, err := svc.Quote(context.Background(), QuoteInput{WeightGrams: 0, DestPostal: "01310-100"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error got %v", err)
	}
}

func TestCreateShipmentSuccess(t *testing.T) {
	boxID := uuid.New()
	boxSvc := &stubBoxWorkflow{
		box: &models.ConsolidationBox{
			ID:                 boxID,
			CustomerID:         uuid.New(),
			Status:             enums.BoxStatusPending,
			CurrentWeightGrams: 1500,
		},
	}
	label := "data:image/gif;base64,R0lGOD"
	carrier := &stubCarrier{
		code: enums.CarrierUPS,
		createResp: carriers.ShipmentResponse{
			Success:        true,
			TrackingNumber: "1Z999AA10123456784",
			LabelURL:       label,
		},
	}
	repo := newStubShipmentRepo()
	publisher := &stubOutboxPublisher{}
	svc := newShippingService(t, repo, carriers.NewRegistry(carrier), boxSvc, publisher, config.RateShoppingConfig{})

	shipment, err := svc.CreateShipment(context.Background(), CreateShipmentInput{
		BoxID:              boxID,
		Carrier:            enums.CarrierUPS,
		ServiceCode:        "03",
		ServiceName:        "UPS Ground",
		Destination:        testDestination(),
		DeclaredValueCents: 5000,
		Insurance:          true,
		QuotedCents:        10000,
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if shipment.TrackingNumber != "1Z999AA10123456784" {
		t.Fatalf("unexpected tracking number %q", shipment.TrackingNumber)
	}
	if !carrier.createReq.Insurance || carrier.createReq.DeclaredValueCents != 5000 {
		t.Fatalf("expected insured request at the carrier, got %+v", carrier.createReq)
	}
	if shipment.ChargedCents != 11150 {
		t.Fatalf("expected charged 11150 got %d", shipment.ChargedCents)
	}
	if shipment.LabelURL == nil || *shipment.LabelURL != label {
		t.Fatal("expected label url to be stored")
	}
	if len(boxSvc.transitions) != 2 ||
		boxSvc.transitions[0] != enums.BoxStatusInProgress ||
		boxSvc.transitions[1] != enums.BoxStatusShipped {
		t.Fatalf("unexpected transitions %v", boxSvc.transitions)
	}
	if boxSvc.box.TrackingNumber == nil {
		t.Fatal("expected tracking number recorded on box")
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventShipmentCreated {
		t.Fatalf("expected shipment created event got %+v", publisher.events)
	}
}

func TestCreateShipmentFailureRevertsBox(t *testing.T) {
	boxID := uuid.New()
	boxSvc := &stubBoxWorkflow{
		box: &models.ConsolidationBox{
			ID:     boxID,
			Status: enums.BoxStatusPending,
		},
	}
	carrier := &stubCarrier{
		code:       enums.CarrierUSPS,
		createResp: carriers.ShipmentResponse{Success: false, Error: "invalid address"},
	}
	repo := newStubShipmentRepo()
	svc := newShippingService(t, repo, carriers.NewRegistry(carrier), boxSvc, &stubOutboxPublisher{}, config.RateShoppingConfig{})

	_, err := svc.CreateShipment(context.Background(), CreateShipmentInput{
		BoxID:       boxID,
		Carrier:     enums.CarrierUSPS,
		ServiceCode: "1",
		Destination: testDestination(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeCarrier {
		t.Fatalf("expected carrier error got %v", err)
	}
	if boxSvc.box.Status != enums.BoxStatusPending {
		t.Fatalf("expected box returned to pending got %s", boxSvc.box.Status)
	}
	if len(repo.shipments) != 0 {
		t.Fatal("expected no shipment row on failure")
	}
}

func TestCreateShipmentRequiresPendingBox(t *testing.T) {
	boxID := uuid.New()
	boxSvc := &stubBoxWorkflow{
		box: &models.ConsolidationBox{ID: boxID, Status: enums.BoxStatusOpen},
	}
	carrier := &stubCarrier{code: enums.CarrierUPS}
	svc := newShippingService(t, newStubShipmentRepo(), carriers.NewRegistry(carrier), boxSvc, &stubOutboxPublisher{}, config.RateShoppingConfig{})

	_, err := svc.CreateShipment(context.Background(), CreateShipmentInput{
		BoxID:       boxID,
		Carrier:     enums.CarrierUPS,
		ServiceCode: "03",
		Destination: testDestination(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict got %v", err)
	}
}

func TestTrackRetriesTransientFailures(t *testing.T) {
	shipment := &models.Shipment{
		ID:             uuid.New(),
		BoxID:          uuid.New(),
		Carrier:        enums.CarrierUPS,
		TrackingNumber: "1Z999AA10123456784",
		Status:         enums.ShipmentStatusInTransit,
	}
	carrier := &stubCarrier{
		code: enums.CarrierUPS,
		trackAttempts: []trackAttempt{
			{err: pkgerrors.New(pkgerrors.CodeCarrierRetryable, "ups request failed")},
			{resp: carriers.TrackingResponse{TrackingNumber: shipment.TrackingNumber, Status: carriers.StatusDelivered}},
		},
	}
	repo := newStubShipmentRepo(shipment)
	publisher := &stubOutboxPublisher{}
	cfg := config.RateShoppingConfig{TrackMaxRetries: 2}
	svc := newShippingService(t, repo, carriers.NewRegistry(carrier), &stubBoxWorkflow{}, publisher, cfg)

	info, err := svc.Track(context.Background(), shipment.TrackingNumber)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if carrier.trackCalls != 2 {
		t.Fatalf("expected 2 attempts got %d", carrier.trackCalls)
	}
	if info.Tracking.Status != carriers.StatusDelivered {
		t.Fatalf("unexpected tracking status %s", info.Tracking.Status)
	}
	if repo.shipments[shipment.ID].Status != enums.ShipmentStatusDelivered {
		t.Fatalf("expected shipment synced to delivered got %s", repo.shipments[shipment.ID].Status)
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventShipmentStatusSync {
		t.Fatalf("expected status sync event got %+v", publisher.events)
	}
}

func TestTrackDegradesToUnknownAfterRetries(t *testing.T) {
	shipment := &models.Shipment{
		ID:             uuid.New(),
		Carrier:        enums.CarrierUSPS,
		TrackingNumber: "9400100000000000000000",
		Status:         enums.ShipmentStatusInTransit,
	}
	retryable := pkgerrors.New(pkgerrors.CodeCarrierRetryable, "usps request failed")
	carrier := &stubCarrier{
		code: enums.CarrierUSPS,
		trackAttempts: []trackAttempt{
			{err: retryable}, {err: retryable}, {err: retryable},
		},
	}
	repo := newStubShipmentRepo(shipment)
	cfg := config.RateShoppingConfig{TrackMaxRetries: 2}
	svc := newShippingService(t, repo, carriers.NewRegistry(carrier), &stubBoxWorkflow{}, &stubOutboxPublisher{}, cfg)

	info, err := svc.Track(context.Background(), shipment.TrackingNumber)
	if err != nil {
		t.Fatalf("expected degraded response got %v", err)
	}
	if carrier.trackCalls != 3 {
		t.Fatalf("expected 3 attempts got %d", carrier.trackCalls)
	}
	if info.Tracking.Status != carriers.StatusUnknown {
		t.Fatalf("expected unknown status got %s", info.Tracking.Status)
	}
	if repo.shipments[shipment.ID].Status != enums.ShipmentStatusInTransit {
		t.Fatal("expected stored status untouched on unknown")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	shipment := &models.Shipment{
		ID:             uuid.New(),
		Carrier:        enums.CarrierUPS,
		TrackingNumber: "1Z999AA10123456784",
		Status:         enums.ShipmentStatusCreated,
	}
	carrier := &stubCarrier{code: enums.CarrierUPS, cancelOK: true}
	repo := newStubShipmentRepo(shipment)
	publisher := &stubOutboxPublisher{}
	svc := newShippingService(t, repo, carriers.NewRegistry(carrier), &stubBoxWorkflow{}, publisher, config.RateShoppingConfig{})

	first, err := svc.Cancel(context.Background(), shipment.TrackingNumber)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if first.Status != enums.ShipmentStatusCancelled || first.CancelledAt == nil {
		t.Fatalf("expected cancelled shipment got %+v", first)
	}

	second, err := svc.Cancel(context.Background(), shipment.TrackingNumber)
	if err != nil {
		t.Fatalf("expected idempotent success got %v", err)
	}
	if second.Status != enums.ShipmentStatusCancelled {
		t.Fatalf("expected cancelled got %s", second.Status)
	}
	if carrier.cancelCalls != 1 {
		t.Fatalf("expected one carrier cancel call got %d", carrier.cancelCalls)
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventShipmentCancelled {
		t.Fatalf("expected one cancel event got %+v", publisher.events)
	}
}

func TestCancelDeliveredConflicts(t *testing.T) {
	shipment := &models.Shipment{
		ID:             uuid.New(),
		Carrier:        enums.CarrierUPS,
		TrackingNumber: "1Z999AA10123456784",
		Status:         enums.ShipmentStatusDelivered,
	}
	carrier := &stubCarrier{code: enums.CarrierUPS, cancelOK: true}
	svc := newShippingService(t, newStubShipmentRepo(shipment), carriers.NewRegistry(carrier), &stubBoxWorkflow{}, &stubOutboxPublisher{}, config.RateShoppingConfig{})

	_, err := svc.Cancel(context.Background(), shipment.TrackingNumber)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict got %v", err)
	}
	if carrier.cancelCalls != 0 {
		t.Fatal("expected no carrier call for delivered shipment")
	}
}
