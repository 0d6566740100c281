package fees

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/cargoloop/forwarder-backend/pkg/enums"
)

func testConfig() Config {
	return Config{
		BaseFeeCents:          500,
		PerPackageFeeCents:    100,
		RepackMultiplier:      decimal.NewFromFloat(1.5),
		StorageDailyRateCents: 50,
		StorageDaysAllowed:    30,
		MarkupPercent:         decimal.NewFromInt(10),
		MarkupMinCents:        200,
		MarkupMaxCents:        5000,
		ProcessingFeeCents:    150,
	}
}

func TestConsolidationFee(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		name    string
		boxType enums.ConsolidationType
		count   int
		want    int
	}{
		{"standard three packages", enums.ConsolidationTypeStandard, 3, 800},
		{"repack applies multiplier", enums.ConsolidationTypeRepack, 3, 1200},
		{"empty box still has base fee", enums.ConsolidationTypeStandard, 0, 500},
		{"negative count treated as zero", enums.ConsolidationTypeStandard, -1, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConsolidationFee(cfg, tt.boxType, tt.count)
			if got != tt.want {
				t.Fatalf("expected %d cents, got %d", tt.want, got)
			}
		})
	}
}

func TestConsolidationFeeIsDeterministic(t *testing.T) {
	cfg := testConfig()
	first := ConsolidationFee(cfg, enums.ConsolidationTypeRepack, 3)
	for i := 0; i < 10; i++ {
		if got := ConsolidationFee(cfg, enums.ConsolidationTypeRepack, 3); got != first {
			t.Fatalf("fee changed between calls: %d vs %d", first, got)
		}
	}
	if first != 1200 {
		t.Fatalf("expected (500 + 3*100) * 1.5 = 1200 cents, got %d", first)
	}
}

func TestStorageFee(t *testing.T) {
	cfg := testConfig()
	if got := StorageFee(cfg, 2); got != 3000 {
		t.Fatalf("expected 50 * 2 * 30 = 3000 cents, got %d", got)
	}
	if got := StorageFee(cfg, 0); got != 0 {
		t.Fatalf("expected 0 for empty box, got %d", got)
	}
}

func TestFreightMarkup(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		name   string
		quoted int
		want   int
	}{
		{"percentage within range", 10000, 1150},        // 10% of 100.00 + 1.50
		{"clamped to minimum", 500, 350},                // 10% of 5.00 = 50 -> min 200 + 150
		{"clamped to maximum", 1000000, 5150},           // 10% of 10000.00 = 100000 -> max 5000 + 150
		{"zero quote still pays floor", 0, 350},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FreightMarkup(cfg, tt.quoted); got != tt.want {
				t.Fatalf("expected %d cents, got %d", tt.want, got)
			}
		})
	}
}

func TestQuotedTotal(t *testing.T) {
	cfg := testConfig()
	if got := QuotedTotal(cfg, 10000); got != 11150 {
		t.Fatalf("expected 10000 + 1150 = 11150 cents, got %d", got)
	}
}

func TestToDecimal(t *testing.T) {
	if got := ToDecimal(1200); !got.Equal(decimal.NewFromFloat(12.00)) {
		t.Fatalf("expected 12.00, got %s", got.String())
	}
}
