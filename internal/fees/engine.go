package fees

import (
	"github.com/shopspring/decimal"

	"github.com/cargoloop/forwarder-backend/pkg/enums"
)

// Config carries the fee constants supplied by platform configuration. All
// monetary values are USD cents; multipliers and percentages are decimals so
// repack and markup math stays exact.
type Config struct {
	BaseFeeCents          int
	PerPackageFeeCents    int
	RepackMultiplier      decimal.Decimal
	StorageDailyRateCents int
	StorageDaysAllowed    int
	MarkupPercent         decimal.Decimal
	MarkupMinCents        int
	MarkupMaxCents        int
	ProcessingFeeCents    int
}

// ConsolidationFee computes base + perPackage * count, applying the repack
// multiplier when the box type requires physical repackaging.
func ConsolidationFee(cfg Config, boxType enums.ConsolidationType, packageCount int) int {
	if packageCount < 0 {
		packageCount = 0
	}
	total := int64(cfg.BaseFeeCents) + int64(cfg.PerPackageFeeCents)*int64(packageCount)
	if boxType == enums.ConsolidationTypeRepack && cfg.RepackMultiplier.IsPositive() {
		return int(decimal.NewFromInt(total).Mul(cfg.RepackMultiplier).Round(0).IntPart())
	}
	return int(total)
}

// StorageFee accrues the flat storage allowance: dailyRate * count * daysAllowed.
// The days figure is the configured allowance, not elapsed wall-clock time.
func StorageFee(cfg Config, packageCount int) int {
	if packageCount < 0 {
		packageCount = 0
	}
	return int(int64(cfg.StorageDailyRateCents) * int64(packageCount) * int64(cfg.StorageDaysAllowed))
}

// FreightMarkup computes the customer surcharge on a carrier-quoted price:
// the percentage markup clamped to the configured range, plus the fixed
// processing fee.
func FreightMarkup(cfg Config, carrierQuotedCents int) int {
	if carrierQuotedCents < 0 {
		carrierQuotedCents = 0
	}
	markup := decimal.NewFromInt(int64(carrierQuotedCents)).
		Mul(cfg.MarkupPercent).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
	if markup < int64(cfg.MarkupMinCents) {
		markup = int64(cfg.MarkupMinCents)
	}
	if cfg.MarkupMaxCents > 0 && markup > int64(cfg.MarkupMaxCents) {
		markup = int64(cfg.MarkupMaxCents)
	}
	return int(markup) + cfg.ProcessingFeeCents
}

// QuotedTotal is the customer-facing price for a carrier rate.
func QuotedTotal(cfg Config, carrierQuotedCents int) int {
	return carrierQuotedCents + FreightMarkup(cfg, carrierQuotedCents)
}

// ToDecimal converts integer cents to decimal currency at the boundary.
func ToDecimal(cents int) decimal.Decimal {
	return decimal.NewFromInt(int64(cents)).Shift(-2)
}
