package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/cargoloop/forwarder-backend/internal/boxes"
	"github.com/cargoloop/forwarder-backend/internal/shipping"
	"github.com/cargoloop/forwarder-backend/pkg/config"
	"github.com/cargoloop/forwarder-backend/pkg/db/models"
	"github.com/cargoloop/forwarder-backend/pkg/enums"
	pkgerrors "github.com/cargoloop/forwarder-backend/pkg/errors"
	"github.com/cargoloop/forwarder-backend/pkg/logger"
	"github.com/cargoloop/forwarder-backend/pkg/pagination"
)

type stubBoxService struct {
	box *models.ConsolidationBox
}

func (s stubBoxService) Create(ctx context.Context, input boxes.CreateBoxInput) (*models.ConsolidationBox, error) {
	return s.box, nil
}

func (s stubBoxService) Get(ctx context.Context, id uuid.UUID) (*models.ConsolidationBox, error) {
	if s.box == nil || s.box.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "box not found")
	}
	return s.box, nil
}

func (s stubBoxService) List(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*boxes.BoxList, error) {
	return &boxes.BoxList{}, nil
}

func (s stubBoxService) AddPackage(ctx context.Context, input boxes.AddPackageInput) (*models.ConsolidationBox, error) {
	return s.box, nil
}

func (s stubBoxService) RemovePackage(ctx context.Context, boxID, packageID uuid.UUID) (*models.ConsolidationBox, error) {
	return s.box, nil
}

func (s stubBoxService) AppendPhotos(ctx context.Context, boxID uuid.UUID, stage boxes.PhotoStage, refs []string) (*models.ConsolidationBox, error) {
	return s.box, nil
}

func (s stubBoxService) Close(ctx context.Context, boxID uuid.UUID) (*models.ConsolidationBox, error) {
	return s.box, nil
}

func (s stubBoxService) UpdateStatus(ctx context.Context, input boxes.UpdateStatusInput) (*models.ConsolidationBox, error) {
	return s.box, nil
}

func (s stubBoxService) Delete(ctx context.Context, boxID uuid.UUID) error {
	return nil
}

type stubShippingService struct {
	shipment *models.Shipment
}

func (s stubShippingService) Quote(ctx context.Context, input shipping.QuoteInput) (*shipping.QuoteResult, error) {
	return &shipping.QuoteResult{}, nil
}

func (s stubShippingService) CreateShipment(ctx context.Context, input shipping.CreateShipmentInput) (*models.Shipment, error) {
	return s.shipment, nil
}

func (s stubShippingService) Track(ctx context.Context, trackingNumber string) (*shipping.TrackingInfo, error) {
	return &shipping.TrackingInfo{Shipment: s.shipment}, nil
}

func (s stubShippingService) Cancel(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	return s.shipment, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
	}
}

func newTestRouter(boxSvc boxes.Service, shipSvc shipping.Service) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(
		testConfig(),
		logg,
		nil, // redis, idempotency disabled in tests
		nil, // metrics
		nil, // platform config provider
		boxSvc,
		shipSvc,
	)
}

func TestHealthLiveSetsEnvHeader(t *testing.T) {
	router := newTestRouter(stubBoxService{}, stubShippingService{})
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got := resp.Header().Get("X-Forwarder-Env"); got != "test" {
		t.Fatalf("unexpected env header %q", got)
	}
}

func TestGetBoxRoute(t *testing.T) {
	box := &models.ConsolidationBox{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		Type:       enums.ConsolidationTypeStandard,
		Status:     enums.BoxStatusOpen,
	}
	router := newTestRouter(stubBoxService{box: box}, stubShippingService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/boxes/"+box.ID.String(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.ID != box.ID.String() {
		t.Fatalf("unexpected box id %q", envelope.Data.ID)
	}
}

func TestGetBoxRejectsMalformedID(t *testing.T) {
	router := newTestRouter(stubBoxService{}, stubShippingService{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/boxes/not-a-uuid", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "VALIDATION_ERROR") {
		t.Fatalf("expected validation error envelope, got %s", resp.Body.String())
	}
}

func TestCreateBoxRoute(t *testing.T) {
	box := &models.ConsolidationBox{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		Status:     enums.BoxStatusOpen,
	}
	router := newTestRouter(stubBoxService{box: box}, stubShippingService{})

	body := strings.NewReader(`{"customer_id":"` + box.CustomerID.String() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/boxes", body)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestTrackShipmentRoute(t *testing.T) {
	shipment := &models.Shipment{
		ID:             uuid.New(),
		BoxID:          uuid.New(),
		Carrier:        enums.CarrierUPS,
		TrackingNumber: "1Z999AA10123456784",
		Status:         enums.ShipmentStatusInTransit,
	}
	router := newTestRouter(stubBoxService{}, stubShippingService{shipment: shipment})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/shipments/"+shipment.TrackingNumber, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), shipment.TrackingNumber) {
		t.Fatalf("expected tracking number in body, got %s", resp.Body.String())
	}
}

func TestPlatformConfigReloadWithoutProvider(t *testing.T) {
	router := newTestRouter(stubBoxService{}, stubShippingService{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/platform-config/reload", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
