package carriers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/cargoloop/forwarder-backend/pkg/config"
	pkgerrors "github.com/cargoloop/forwarder-backend/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func xmlOrJSONResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

const upsTokenBody = `{"access_token":"test-token","expires_in":"3600"}`

func newTestUPS(t *testing.T, rt roundTripFunc) *UPS {
	t.Helper()
	client, err := NewUPS(config.CarrierCredentials{
		APIKey:    "key",
		APISecret: "secret",
		APIURL:    "http://ups.test",
	}, WithUPSHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new ups client: %v", err)
	}
	return client
}

func TestUPSGetRatesNormalizesServices(t *testing.T) {
	ratesBody := `{"RateResponse":{"RatedShipment":[
		{"Service":{"Code":"03"},"TotalCharges":{"CurrencyCode":"USD","MonetaryValue":"15.40"}},
		{"Service":{"Code":"99"},"TotalCharges":{"CurrencyCode":"USD","MonetaryValue":"99.99"}}
	]}}`

	var capturedAuth string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "oauth/token") {
			return xmlOrJSONResponse(http.StatusOK, upsTokenBody), nil
		}
		capturedAuth = req.Header.Get("Authorization")
		return xmlOrJSONResponse(http.StatusOK, ratesBody), nil
	})

	client := newTestUPS(t, rt)
	rates := client.GetRates(context.Background(), RateQuery{
		WeightGrams:  1500,
		OriginPostal: "10001",
		DestPostal:   "33101",
	})

	if capturedAuth != "Bearer test-token" {
		t.Fatalf("expected bearer token, got %q", capturedAuth)
	}
	if len(rates) != 2 {
		t.Fatalf("expected 2 rates, got %d", len(rates))
	}
	if rates[0].ServiceName != "UPS Ground" || rates[0].TotalCents != 1540 || rates[0].EstimatedDays != 5 {
		t.Fatalf("unexpected ground rate %+v", rates[0])
	}
	if !rates[0].TrackingAvailable || !rates[0].InsuranceAvailable {
		t.Fatalf("expected tracking and insurance availability, got %+v", rates[0])
	}
	// unknown service codes fall back to a generic label and zero estimate
	if rates[1].ServiceName != "UPS Service 99" || rates[1].EstimatedDays != 0 {
		t.Fatalf("unexpected fallback rate %+v", rates[1])
	}
}

func TestUPSGetRatesHonorsRequestedService(t *testing.T) {
	ratesBody := `{"RateResponse":{"RatedShipment":[
		{"Service":{"Code":"03"},"TotalCharges":{"CurrencyCode":"USD","MonetaryValue":"15.40"}}
	]}}`

	var capturedPath, capturedBody string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "oauth/token") {
			return xmlOrJSONResponse(http.StatusOK, upsTokenBody), nil
		}
		capturedPath = req.URL.Path
		body, _ := io.ReadAll(req.Body)
		capturedBody = string(body)
		return xmlOrJSONResponse(http.StatusOK, ratesBody), nil
	})

	client := newTestUPS(t, rt)
	rates := client.GetRates(context.Background(), RateQuery{
		WeightGrams:  1500,
		OriginPostal: "10001",
		DestPostal:   "33101",
		ServiceType:  "03",
	})

	if !strings.HasSuffix(capturedPath, "/Rate") {
		t.Fatalf("expected single-service Rate endpoint, got %q", capturedPath)
	}
	if !strings.Contains(capturedBody, `"RequestOption":"Rate"`) {
		t.Fatalf("expected Rate request option in body %q", capturedBody)
	}
	if !strings.Contains(capturedBody, `"Service":{"Code":"03"}`) {
		t.Fatalf("expected requested service in body %q", capturedBody)
	}
	if len(rates) != 1 || rates[0].ServiceCode != "03" {
		t.Fatalf("unexpected rates %+v", rates)
	}
}

func TestUPSGetRatesReturnsEmptyOnFailure(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "oauth/token") {
			return xmlOrJSONResponse(http.StatusOK, upsTokenBody), nil
		}
		return xmlOrJSONResponse(http.StatusInternalServerError, `{"response":{"errors":[]}}`), nil
	})

	client := newTestUPS(t, rt)
	rates := client.GetRates(context.Background(), RateQuery{WeightGrams: 100, OriginPostal: "10001", DestPostal: "33101"})
	if rates == nil {
		t.Fatalf("expected empty slice, got nil")
	}
	if len(rates) != 0 {
		t.Fatalf("expected no rates, got %d", len(rates))
	}
}

func TestUPSGetRatesReturnsEmptyOnBadCredentials(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return xmlOrJSONResponse(http.StatusUnauthorized, `{"response":{"errors":[{"code":"250003"}]}}`), nil
	})

	client := newTestUPS(t, rt)
	if client.Authenticate(context.Background()) {
		t.Fatalf("expected authenticate to fail")
	}
	rates := client.GetRates(context.Background(), RateQuery{WeightGrams: 100, OriginPostal: "10001", DestPostal: "33101"})
	if len(rates) != 0 {
		t.Fatalf("expected no rates, got %d", len(rates))
	}
}

func TestUPSCreateShipmentNormalizesSuccess(t *testing.T) {
	shipBody := `{"ShipmentResponse":{"ShipmentResults":{
		"ShipmentIdentificationNumber":"1Z999AA10123456784",
		"PackageResults":[{"TrackingNumber":"1Z999AA10123456784","ShippingLabel":{"GraphicImage":"R0lGOD=="}}]
	}}}`

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "oauth/token") {
			return xmlOrJSONResponse(http.StatusOK, upsTokenBody), nil
		}
		return xmlOrJSONResponse(http.StatusOK, shipBody), nil
	})

	client := newTestUPS(t, rt)
	resp := client.CreateShipment(context.Background(), ShipmentRequest{ServiceCode: "03", WeightGrams: 800})

	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	if resp.TrackingNumber != "1Z999AA10123456784" {
		t.Fatalf("unexpected tracking number %q", resp.TrackingNumber)
	}
	if !strings.HasPrefix(resp.LabelURL, "data:image/gif;base64,") {
		t.Fatalf("unexpected label url %q", resp.LabelURL)
	}
}

func TestUPSCreateShipmentSendsDeclaredValueWhenInsured(t *testing.T) {
	shipBody := `{"ShipmentResponse":{"ShipmentResults":{
		"ShipmentIdentificationNumber":"1Z999AA10123456784",
		"PackageResults":[{"TrackingNumber":"1Z999AA10123456784"}]
	}}}`

	var capturedBody string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "oauth/token") {
			return xmlOrJSONResponse(http.StatusOK, upsTokenBody), nil
		}
		body, _ := io.ReadAll(req.Body)
		capturedBody = string(body)
		return xmlOrJSONResponse(http.StatusOK, shipBody), nil
	})

	client := newTestUPS(t, rt)
	resp := client.CreateShipment(context.Background(), ShipmentRequest{
		ServiceCode:        "03",
		WeightGrams:        800,
		DeclaredValueCents: 12550,
		Insurance:          true,
	})

	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	if !strings.Contains(capturedBody, `"DeclaredValue"`) {
		t.Fatalf("expected declared value coverage in body %q", capturedBody)
	}
	if !strings.Contains(capturedBody, `"MonetaryValue":"125.50"`) {
		t.Fatalf("expected declared value amount in body %q", capturedBody)
	}
}

func TestUPSCreateShipmentOmitsDeclaredValueWithoutInsurance(t *testing.T) {
	shipBody := `{"ShipmentResponse":{"ShipmentResults":{
		"ShipmentIdentificationNumber":"1Z999AA10123456784",
		"PackageResults":[{"TrackingNumber":"1Z999AA10123456784"}]
	}}}`

	var capturedBody string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "oauth/token") {
			return xmlOrJSONResponse(http.StatusOK, upsTokenBody), nil
		}
		body, _ := io.ReadAll(req.Body)
		capturedBody = string(body)
		return xmlOrJSONResponse(http.StatusOK, shipBody), nil
	})

	client := newTestUPS(t, rt)
	resp := client.CreateShipment(context.Background(), ShipmentRequest{
		ServiceCode:        "03",
		WeightGrams:        800,
		DeclaredValueCents: 12550,
	})

	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	if strings.Contains(capturedBody, `"DeclaredValue"`) {
		t.Fatalf("uninsured shipment must not declare value, body %q", capturedBody)
	}
}

func TestUPSCreateShipmentNormalizesFailure(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "oauth/token") {
			return xmlOrJSONResponse(http.StatusOK, upsTokenBody), nil
		}
		return xmlOrJSONResponse(http.StatusBadRequest, `{"response":{"errors":[{"message":"Invalid address for ShipTo"}]}}`), nil
	})

	client := newTestUPS(t, rt)
	resp := client.CreateShipment(context.Background(), ShipmentRequest{ServiceCode: "03", WeightGrams: 800})

	if resp.Success {
		t.Fatalf("expected failure response")
	}
	if resp.Error != "invalid address" {
		t.Fatalf("expected actionable address error, got %q", resp.Error)
	}
}

func TestUPSTrackShipmentParsesActivity(t *testing.T) {
	trackBody := `{"trackResponse":{"shipment":[{"package":[{"deliveryDate":[{"type":"DEL","date":"20260102"}],"activity":[
		{"date":"20260102","time":"141500","location":{"address":{"city":"Miami","countryCode":"US"}},"status":{"type":"D","description":"Delivered"}},
		{"date":"20260101","time":"090000","location":{"address":{"city":"Atlanta","countryCode":"US"}},"status":{"type":"I","description":"Departed facility"}}
	]}]}]}}`

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "oauth/token") {
			return xmlOrJSONResponse(http.StatusOK, upsTokenBody), nil
		}
		return xmlOrJSONResponse(http.StatusOK, trackBody), nil
	})

	client := newTestUPS(t, rt)
	resp, err := client.TrackShipment(context.Background(), "1Z999AA10123456784")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if resp.Status != StatusDelivered {
		t.Fatalf("expected delivered status, got %q", resp.Status)
	}
	if len(resp.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(resp.Events))
	}
	if resp.Events[1].Location != "Atlanta, US" {
		t.Fatalf("unexpected location %q", resp.Events[1].Location)
	}
	if resp.EstimatedDelivery != "20260102" {
		t.Fatalf("unexpected estimated delivery %q", resp.EstimatedDelivery)
	}
}

func TestUPSTrackShipmentDegradesToUnknown(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "oauth/token") {
			return xmlOrJSONResponse(http.StatusOK, upsTokenBody), nil
		}
		return xmlOrJSONResponse(http.StatusOK, `not even json`), nil
	})

	client := newTestUPS(t, rt)
	resp, err := client.TrackShipment(context.Background(), "1Z999AA10123456784")
	if err != nil {
		t.Fatalf("unparseable output must not error: %v", err)
	}
	if resp.Status != StatusUnknown {
		t.Fatalf("expected unknown status, got %q", resp.Status)
	}
	if len(resp.Events) != 0 {
		t.Fatalf("expected empty events, got %d", len(resp.Events))
	}
}

func TestUPSTrackShipmentTransportErrorIsRetryable(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "oauth/token") {
			return xmlOrJSONResponse(http.StatusOK, upsTokenBody), nil
		}
		return nil, errors.New("connection reset")
	})

	client := newTestUPS(t, rt)
	resp, err := client.TrackShipment(context.Background(), "1Z999AA10123456784")
	if err == nil {
		t.Fatalf("expected retryable error")
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatalf("expected retryable classification, got %v", err)
	}
	if resp.Status != StatusUnknown {
		t.Fatalf("expected unknown fallback, got %q", resp.Status)
	}
}

func TestMoneyToCentsRoundsExactly(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"15.40", 1540},
		{"0.01", 1},
		{"7.105", 711},
		{"-3.50", -350},
		{" 19.99 ", 1999},
	}
	for _, tc := range cases {
		got, err := moneyToCents(tc.in)
		if err != nil {
			t.Fatalf("moneyToCents(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("moneyToCents(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if _, err := moneyToCents("not money"); err == nil {
		t.Fatalf("expected error for unparseable amount")
	}
	if _, err := moneyToCents(""); err == nil {
		t.Fatalf("expected error for empty amount")
	}
}

func TestUPSCancelShipmentIsIdempotent(t *testing.T) {
	calls := 0
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "oauth/token") {
			return xmlOrJSONResponse(http.StatusOK, upsTokenBody), nil
		}
		calls++
		if calls == 1 {
			return xmlOrJSONResponse(http.StatusOK, `{"VoidShipmentResponse":{"SummaryResult":{"Status":{"Code":"1"}}}}`), nil
		}
		// second void reports the shipment is already voided
		return xmlOrJSONResponse(http.StatusUnprocessableEntity, `{"response":{"errors":[{"code":"190102","message":"already voided"}]}}`), nil
	})

	client := newTestUPS(t, rt)

	ok, err := client.CancelShipment(context.Background(), "1Z999AA10123456784")
	if err != nil || !ok {
		t.Fatalf("first cancel: ok=%v err=%v", ok, err)
	}
	ok, err = client.CancelShipment(context.Background(), "1Z999AA10123456784")
	if err != nil || !ok {
		t.Fatalf("second cancel must succeed: ok=%v err=%v", ok, err)
	}
}
