package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cargoloop/forwarder-backend/pkg/config"
	"github.com/cargoloop/forwarder-backend/pkg/enums"
	pkgerrors "github.com/cargoloop/forwarder-backend/pkg/errors"
	"github.com/cargoloop/forwarder-backend/pkg/metrics"
)

const (
	upsDefaultBaseURL             = "https://onlinetools.ups.com"
	upsBodyReadLimit        int64 = 2048
	upsTokenExpirySlack           = 60 * time.Second
	upsAlreadyVoidedCode          = "190102"
	upsShipmentNotFoundCode       = "190101"
)

var errUPSCredentialsRequired = errors.New("ups api key and secret are required")

// UPS talks to the UPS REST APIs (OAuth, Rating, Shipping, Track, Void) and
// normalizes responses into the shared carrier value objects.
type UPS struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	apiSecret  string
	metrics    *metrics.CarrierMetrics

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// UPSOption configures optional client behavior.
type UPSOption func(*UPS)

// WithUPSHTTPClient overrides the default HTTP client.
func WithUPSHTTPClient(client *http.Client) UPSOption {
	return func(c *UPS) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithUPSMetrics attaches carrier call metrics.
func WithUPSMetrics(m *metrics.CarrierMetrics) UPSOption {
	return func(c *UPS) {
		c.metrics = m
	}
}

// NewUPS builds the UPS adapter from injected credentials.
func NewUPS(creds config.CarrierCredentials, opts ...UPSOption) (*UPS, error) {
	key := strings.TrimSpace(creds.APIKey)
	secret := strings.TrimSpace(creds.APISecret)
	if key == "" || secret == "" {
		return nil, errUPSCredentialsRequired
	}

	client := &UPS{
		apiKey:     key,
		apiSecret:  secret,
		baseURL:    upsDefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	if trimmed := strings.TrimSpace(creds.APIURL); trimmed != "" {
		client.baseURL = trimmed
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return client, nil
}

// Code identifies the adapter.
func (c *UPS) Code() enums.CarrierCode {
	return enums.CarrierUPS
}

// upsServiceNames maps UPS service codes to customer-facing names.
var upsServiceNames = map[string]string{
	"01": "UPS Next Day Air",
	"02": "UPS 2nd Day Air",
	"03": "UPS Ground",
	"07": "UPS Worldwide Express",
	"08": "UPS Worldwide Expedited",
	"11": "UPS Standard",
	"65": "UPS Worldwide Saver",
}

// upsServiceDays maps UPS service codes to estimated transit days.
var upsServiceDays = map[string]int{
	"01": 1,
	"02": 2,
	"03": 5,
	"07": 2,
	"08": 4,
	"11": 6,
	"65": 3,
}

func upsServiceName(code string) string {
	if name, ok := upsServiceNames[code]; ok {
		return name
	}
	return fmt.Sprintf("UPS Service %s", code)
}

func upsTransitDays(code string) int {
	if days, ok := upsServiceDays[code]; ok {
		return days
	}
	return 0
}

// Authenticate performs a token fetch and reports whether the credentials are
// usable. It never returns an error so callers can downgrade bad credentials
// without special casing.
func (c *UPS) Authenticate(ctx context.Context) bool {
	_, err := c.authToken(ctx)
	return err == nil
}

func (c *UPS) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": []string{"client_credentials"}}
	endpoint := strings.TrimRight(c.baseURL, "/") + "/security/v1/oauth/token"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeCarrier, err, "build ups token request")
	}
	httpReq.SetBasicAuth(c.apiKey, c.apiSecret)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", wrapTransportErr(err, "execute ups token request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, upsBodyReadLimit))
		return "", pkgerrors.Wrap(pkgerrors.CodeCarrier, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "ups authentication failed")
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeCarrier, err, "decode ups token response")
	}
	if tokenResp.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeCarrier, "ups token response missing access token")
	}

	ttl := time.Hour
	if secs, err := strconv.Atoi(tokenResp.ExpiresIn); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	c.token = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(ttl - upsTokenExpirySlack)
	return c.token, nil
}

// GetRates shops all available UPS services for the lane. Any failure yields
// an empty slice so aggregation across carriers can proceed.
func (c *UPS) GetRates(ctx context.Context, query RateQuery) []Rate {
	started := time.Now()
	rates, err := c.getRates(ctx, query)
	c.observe("get_rates", started, err)
	if err != nil {
		return []Rate{}
	}
	return rates
}

func (c *UPS) getRates(ctx context.Context, query RateQuery) ([]Rate, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}

	// "Shop" quotes every service; a requested service uses "Rate" instead.
	requestOption := "Shop"
	shipment := map[string]any{
		"Shipper": map[string]any{
			"Address": map[string]any{"PostalCode": query.OriginPostal, "CountryCode": "US"},
		},
		"ShipTo": map[string]any{
			"Address": map[string]any{"PostalCode": query.DestPostal, "CountryCode": destCountry(query)},
		},
		"Package": []map[string]any{{
			"PackagingType": map[string]any{"Code": "02"},
			"PackageWeight": map[string]any{
				"UnitOfMeasurement": map[string]any{"Code": "KGS"},
				"Weight":            gramsToKilos(query.WeightGrams),
			},
		}},
	}
	if service := strings.TrimSpace(query.ServiceType); service != "" {
		requestOption = "Rate"
		shipment["Service"] = map[string]any{"Code": service}
	}
	payload := map[string]any{
		"RateRequest": map[string]any{
			"Request":  map[string]any{"RequestOption": requestOption},
			"Shipment": shipment,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCarrier, err, "marshal ups rate request")
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/api/rating/v2403/" + requestOption
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCarrier, err, "build ups rate request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, wrapTransportErr(err, "execute ups rate request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, upsBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeCarrier, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "ups rate request failed")
	}

	var apiResp struct {
		RateResponse struct {
			RatedShipment []struct {
				Service struct {
					Code string `json:"Code"`
				} `json:"Service"`
				TotalCharges struct {
					CurrencyCode  string `json:"CurrencyCode"`
					MonetaryValue string `json:"MonetaryValue"`
				} `json:"TotalCharges"`
			} `json:"RatedShipment"`
		} `json:"RateResponse"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCarrier, err, "decode ups rate response")
	}

	rates := make([]Rate, 0, len(apiResp.RateResponse.RatedShipment))
	for _, rated := range apiResp.RateResponse.RatedShipment {
		cents, err := moneyToCents(rated.TotalCharges.MonetaryValue)
		if err != nil {
			continue
		}
		currency := rated.TotalCharges.CurrencyCode
		if currency == "" {
			currency = "USD"
		}
		// every UPS service is tracked and accepts declared value coverage
		rates = append(rates, Rate{
			Carrier:            enums.CarrierUPS,
			ServiceCode:        rated.Service.Code,
			ServiceName:        upsServiceName(rated.Service.Code),
			TotalCents:         cents,
			Currency:           currency,
			EstimatedDays:      upsTransitDays(rated.Service.Code),
			TrackingAvailable:  true,
			InsuranceAvailable: true,
		})
	}
	return rates, nil
}

// CreateShipment buys a label for the requested service. Failures normalize
// into the response object, never a raw transport error.
func (c *UPS) CreateShipment(ctx context.Context, req ShipmentRequest) ShipmentResponse {
	started := time.Now()
	resp := c.createShipment(ctx, req)
	if resp.Success {
		c.observe("create_shipment", started, nil)
	} else {
		c.observe("create_shipment", started, errors.New(resp.Error))
	}
	return resp
}

func (c *UPS) createShipment(ctx context.Context, req ShipmentRequest) ShipmentResponse {
	token, err := c.authToken(ctx)
	if err != nil {
		return ShipmentResponse{Success: false, Error: "shipping provider unavailable"}
	}

	pkg := map[string]any{
		"Packaging": map[string]any{"Code": "02"},
		"PackageWeight": map[string]any{
			"UnitOfMeasurement": map[string]any{"Code": "KGS"},
			"Weight":            gramsToKilos(req.WeightGrams),
		},
	}
	if req.Insurance && req.DeclaredValueCents > 0 {
		pkg["PackageServiceOptions"] = map[string]any{
			"DeclaredValue": map[string]any{
				"CurrencyCode":  "USD",
				"MonetaryValue": centsToMoney(req.DeclaredValueCents),
			},
		}
	}

	payload := map[string]any{
		"ShipmentRequest": map[string]any{
			"Request": map[string]any{"RequestOption": "nonvalidate"},
			"Shipment": map[string]any{
				"Description": req.Reference,
				"Shipper": map[string]any{
					"Name": req.Origin.Name,
					"Address": map[string]any{
						"AddressLine":       upsAddressLines(req.Origin.Street1, req.Origin.Street2),
						"City":              req.Origin.City,
						"StateProvinceCode": req.Origin.State,
						"PostalCode":        req.Origin.PostalCode,
						"CountryCode":       req.Origin.CountryCode,
					},
				},
				"ShipTo": map[string]any{
					"Name": req.Destination.Name,
					"Address": map[string]any{
						"AddressLine":       upsAddressLines(req.Destination.Street1, req.Destination.Street2),
						"City":              req.Destination.City,
						"StateProvinceCode": req.Destination.State,
						"PostalCode":        req.Destination.PostalCode,
						"CountryCode":       req.Destination.CountryCode,
					},
				},
				"Service": map[string]any{"Code": req.ServiceCode},
				"Package": []map[string]any{pkg},
			},
			"LabelSpecification": map[string]any{
				"LabelImageFormat": map[string]any{"Code": "GIF"},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ShipmentResponse{Success: false, Error: "shipping provider unavailable"}
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/api/shipments/v2403/ship"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return ShipmentResponse{Success: false, Error: "shipping provider unavailable"}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ShipmentResponse{Success: false, Error: "shipping provider unavailable"}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, upsBodyReadLimit))
		return ShipmentResponse{Success: false, Error: upsFailureMessage(resp.StatusCode, msg)}
	}

	var apiResp struct {
		ShipmentResponse struct {
			ShipmentResults struct {
				ShipmentIdentificationNumber string `json:"ShipmentIdentificationNumber"`
				PackageResults               []struct {
					TrackingNumber string `json:"TrackingNumber"`
					ShippingLabel  struct {
						GraphicImage string `json:"GraphicImage"`
					} `json:"ShippingLabel"`
				} `json:"PackageResults"`
			} `json:"ShipmentResults"`
		} `json:"ShipmentResponse"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return ShipmentResponse{Success: false, Error: "shipping provider unavailable"}
	}

	results := apiResp.ShipmentResponse.ShipmentResults
	tracking := results.ShipmentIdentificationNumber
	labelURL := ""
	if len(results.PackageResults) > 0 {
		if tracking == "" {
			tracking = results.PackageResults[0].TrackingNumber
		}
		if image := results.PackageResults[0].ShippingLabel.GraphicImage; image != "" {
			labelURL = "data:image/gif;base64," + image
		}
	}
	if tracking == "" {
		return ShipmentResponse{Success: false, Error: "shipping provider unavailable"}
	}

	return ShipmentResponse{
		Success:        true,
		TrackingNumber: tracking,
		LabelURL:       labelURL,
	}
}

// TrackShipment fetches tracking activity. Transport failures return a
// retryable error; unparseable payloads degrade to StatusUnknown.
func (c *UPS) TrackShipment(ctx context.Context, trackingNumber string) (TrackingResponse, error) {
	started := time.Now()
	resp, err := c.trackShipment(ctx, trackingNumber)
	c.observe("track_shipment", started, err)
	return resp, err
}

func (c *UPS) trackShipment(ctx context.Context, trackingNumber string) (TrackingResponse, error) {
	unknown := TrackingResponse{TrackingNumber: trackingNumber, Status: StatusUnknown, Events: []TrackingEvent{}}

	token, err := c.authToken(ctx)
	if err != nil {
		if pkgerrors.IsRetryable(err) {
			return unknown, err
		}
		return unknown, nil
	}

	endpoint := fmt.Sprintf("%s/api/track/v1/details/%s", strings.TrimRight(c.baseURL, "/"), url.PathEscape(trackingNumber))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return unknown, nil
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return unknown, wrapTransportErr(err, "execute ups track request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return unknown, nil
	}

	var apiResp struct {
		TrackResponse struct {
			Shipment []struct {
				Package []struct {
					DeliveryDate []struct {
						Type string `json:"type"`
						Date string `json:"date"`
					} `json:"deliveryDate"`
					Activity []struct {
						Date     string `json:"date"`
						Time     string `json:"time"`
						Location struct {
							Address struct {
								City        string `json:"city"`
								CountryCode string `json:"countryCode"`
							} `json:"address"`
						} `json:"location"`
						Status struct {
							Type        string `json:"type"`
							Description string `json:"description"`
						} `json:"status"`
					} `json:"activity"`
				} `json:"package"`
			} `json:"shipment"`
		} `json:"trackResponse"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return unknown, nil
	}

	events := []TrackingEvent{}
	status := StatusUnknown
	estimatedDelivery := ""
	for _, shipment := range apiResp.TrackResponse.Shipment {
		for _, pkg := range shipment.Package {
			for _, delivery := range pkg.DeliveryDate {
				if estimatedDelivery == "" && delivery.Date != "" {
					estimatedDelivery = delivery.Date
				}
			}
			for _, activity := range pkg.Activity {
				location := activity.Location.Address.City
				if activity.Location.Address.CountryCode != "" {
					location = strings.TrimPrefix(location+", "+activity.Location.Address.CountryCode, ", ")
				}
				events = append(events, TrackingEvent{
					Timestamp:   strings.TrimSpace(activity.Date + " " + activity.Time),
					Status:      upsActivityStatus(activity.Status.Type),
					Location:    location,
					Description: activity.Status.Description,
				})
			}
		}
	}
	if len(events) > 0 {
		// UPS returns activity newest-first
		status = events[0].Status
	}

	return TrackingResponse{
		TrackingNumber:    trackingNumber,
		Status:            status,
		EstimatedDelivery: estimatedDelivery,
		Events:            events,
	}, nil
}

func upsActivityStatus(activityType string) string {
	switch strings.ToUpper(activityType) {
	case "D":
		return StatusDelivered
	case "I", "P", "O":
		return StatusInTransit
	case "M":
		return StatusCreated
	case "X":
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

// CancelShipment voids the label. Voiding an already-voided or unknown
// shipment counts as success so the call stays idempotent.
func (c *UPS) CancelShipment(ctx context.Context, trackingNumber string) (bool, error) {
	started := time.Now()
	ok, err := c.cancelShipment(ctx, trackingNumber)
	c.observe("cancel_shipment", started, err)
	return ok, err
}

func (c *UPS) cancelShipment(ctx context.Context, trackingNumber string) (bool, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return false, err
	}

	endpoint := fmt.Sprintf("%s/api/shipments/v2403/void/cancel/%s", strings.TrimRight(c.baseURL, "/"), url.PathEscape(trackingNumber))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeCarrier, err, "build ups void request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, wrapTransportErr(err, "execute ups void request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound {
		return true, nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, upsBodyReadLimit))
	text := string(msg)
	if strings.Contains(text, upsAlreadyVoidedCode) || strings.Contains(text, upsShipmentNotFoundCode) {
		return true, nil
	}
	return false, pkgerrors.Wrap(pkgerrors.CodeCarrier, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(text)), "ups void request failed")
}

func (c *UPS) observe(operation string, started time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveDuration(string(enums.CarrierUPS), operation, time.Since(started))
	if err != nil {
		c.metrics.IncFailure(string(enums.CarrierUPS), operation)
		return
	}
	c.metrics.IncSuccess(string(enums.CarrierUPS), operation)
}

func upsFailureMessage(status int, body []byte) string {
	text := strings.TrimSpace(string(body))
	if strings.Contains(strings.ToLower(text), "address") {
		return "invalid address"
	}
	if status >= 400 && status < 500 && text != "" {
		return "shipping provider rejected the request"
	}
	return "shipping provider unavailable"
}

func upsAddressLines(lines ...string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func gramsToKilos(grams int) string {
	if grams < 0 {
		grams = 0
	}
	return strconv.FormatFloat(float64(grams)/1000.0, 'f', 2, 64)
}

func moneyToCents(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("empty amount")
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, err
	}
	return int(parsed.Shift(2).Round(0).IntPart()), nil
}

func centsToMoney(cents int) string {
	return decimal.NewFromInt(int64(cents)).Shift(-2).StringFixed(2)
}

func destCountry(query RateQuery) string {
	if trimmed := strings.TrimSpace(query.DestCountry); trimmed != "" {
		return trimmed
	}
	return "US"
}

// wrapTransportErr classifies a failed HTTP round trip as retryable; timeouts
// and connection refusals both qualify. Responses the carrier actually
// returned are handled by status-code checks before reaching here.
func wrapTransportErr(err error, message string) *pkgerrors.Error {
	return pkgerrors.Wrap(pkgerrors.CodeCarrierRetryable, err, message)
}
