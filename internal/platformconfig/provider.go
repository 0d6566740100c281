package platformconfig

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cargoloop/forwarder-backend/internal/fees"
	"github.com/cargoloop/forwarder-backend/pkg/db/models"
	"github.com/cargoloop/forwarder-backend/pkg/logger"
)

// Setting keys persisted in platform_settings.
const (
	KeyBaseFeeCents             = "fees.base_cents"
	KeyPerPackageFeeCents       = "fees.per_package_cents"
	KeyRepackMultiplier         = "fees.repack_multiplier"
	KeyStorageDailyRateCents    = "fees.storage_daily_rate_cents"
	KeyStorageDaysAllowed       = "fees.storage_days_allowed"
	KeyFreightMarkupPct         = "fees.freight_markup_pct"
	KeyMarkupMinCents           = "fees.markup_min_cents"
	KeyMarkupMaxCents           = "fees.markup_max_cents"
	KeyProcessingFeeCents       = "fees.processing_fee_cents"
	KeyMaxItemsAllowed          = "boxes.max_items_allowed"
	KeyConsolidationDeadlineDay = "boxes.consolidation_deadline_days"
	KeyShippingDeadlineDays     = "boxes.shipping_deadline_days"
)

// Settings is the immutable snapshot handed to fee and box logic. A reload
// swaps the whole snapshot so readers never observe a partial update.
type Settings struct {
	Fees                      fees.Config
	MaxItemsAllowed           int
	ConsolidationDeadlineDays int
	ShippingDeadlineDays      int
}

// Defaults returns the hard-coded fallback used when the settings table is
// unreachable at boot.
func Defaults() Settings {
	return Settings{
		Fees: fees.Config{
			BaseFeeCents:          500,
			PerPackageFeeCents:    100,
			RepackMultiplier:      decimal.NewFromFloat(1.5),
			StorageDailyRateCents: 50,
			StorageDaysAllowed:    30,
			MarkupPercent:         decimal.NewFromInt(10),
			MarkupMinCents:        200,
			MarkupMaxCents:        5000,
			ProcessingFeeCents:    150,
		},
		MaxItemsAllowed:           20,
		ConsolidationDeadlineDays: 14,
		ShippingDeadlineDays:      30,
	}
}

// Provider loads platform settings from the database and caches a snapshot.
type Provider struct {
	db       *gorm.DB
	logg     *logger.Logger
	current  atomic.Pointer[Settings]
	degraded atomic.Bool
}

// NewProvider builds a provider and performs the initial load. A load failure
// is not fatal: the provider falls back to defaults and flags itself degraded.
func NewProvider(ctx context.Context, db *gorm.DB, logg *logger.Logger) (*Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	p := &Provider{db: db, logg: logg}
	if err := p.Reload(ctx); err != nil {
		defaults := Defaults()
		p.current.Store(&defaults)
		p.degraded.Store(true)
		if logg != nil {
			logg.Warn(ctx, fmt.Sprintf("platform settings unavailable, using defaults: %v", err))
		}
	}
	return p, nil
}

// Get returns the current settings snapshot.
func (p *Provider) Get() Settings {
	if snap := p.current.Load(); snap != nil {
		return *snap
	}
	return Defaults()
}

// Degraded reports whether the provider is serving fallback defaults.
func (p *Provider) Degraded() bool {
	return p.degraded.Load()
}

// Reload re-reads all settings rows and atomically swaps the snapshot.
func (p *Provider) Reload(ctx context.Context) error {
	var rows []models.PlatformSetting
	if err := p.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return fmt.Errorf("loading platform settings: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("platform settings table is empty")
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}

	snap, err := parseSettings(values)
	if err != nil {
		return err
	}

	p.current.Store(&snap)
	p.degraded.Store(false)
	if p.logg != nil {
		p.logg.Info(ctx, "platform settings reloaded")
	}
	return nil
}

func parseSettings(values map[string]string) (Settings, error) {
	snap := Defaults()

	intKeys := []struct {
		key string
		dst *int
	}{
		{KeyBaseFeeCents, &snap.Fees.BaseFeeCents},
		{KeyPerPackageFeeCents, &snap.Fees.PerPackageFeeCents},
		{KeyStorageDailyRateCents, &snap.Fees.StorageDailyRateCents},
		{KeyStorageDaysAllowed, &snap.Fees.StorageDaysAllowed},
		{KeyMarkupMinCents, &snap.Fees.MarkupMinCents},
		{KeyMarkupMaxCents, &snap.Fees.MarkupMaxCents},
		{KeyProcessingFeeCents, &snap.Fees.ProcessingFeeCents},
		{KeyMaxItemsAllowed, &snap.MaxItemsAllowed},
		{KeyConsolidationDeadlineDay, &snap.ConsolidationDeadlineDays},
		{KeyShippingDeadlineDays, &snap.ShippingDeadlineDays},
	}
	for _, entry := range intKeys {
		raw, ok := values[entry.key]
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("setting %s: invalid integer %q", entry.key, raw)
		}
		*entry.dst = parsed
	}

	decimalKeys := []struct {
		key string
		dst *decimal.Decimal
	}{
		{KeyRepackMultiplier, &snap.Fees.RepackMultiplier},
		{KeyFreightMarkupPct, &snap.Fees.MarkupPercent},
	}
	for _, entry := range decimalKeys {
		raw, ok := values[entry.key]
		if !ok {
			continue
		}
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("setting %s: invalid decimal %q", entry.key, raw)
		}
		*entry.dst = parsed
	}

	if snap.MaxItemsAllowed <= 0 {
		return Settings{}, fmt.Errorf("setting %s must be positive", KeyMaxItemsAllowed)
	}
	if !snap.Fees.RepackMultiplier.GreaterThan(decimal.NewFromInt(1)) {
		return Settings{}, fmt.Errorf("setting %s must be greater than 1", KeyRepackMultiplier)
	}
	return snap, nil
}
