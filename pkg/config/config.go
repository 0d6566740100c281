package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix is passed to envconfig; individual fields carry the full
	// variable name so the prefix stays empty here.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Carriers     CarriersConfig
	RateShopping RateShoppingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FORWARDER_APP_ENV" required:"true"`
	Port         string `envconfig:"FORWARDER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FORWARDER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FORWARDER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FORWARDER_DB_DSN"`
	Driver string `envconfig:"FORWARDER_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FORWARDER_DB_HOST"`
	Port     int    `envconfig:"FORWARDER_DB_PORT" default:"5432"`
	User     string `envconfig:"FORWARDER_DB_USER"`
	Password string `envconfig:"FORWARDER_DB_PASSWORD"`
	Name     string `envconfig:"FORWARDER_DB_NAME"`
	SSLMode  string `envconfig:"FORWARDER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FORWARDER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FORWARDER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FORWARDER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FORWARDER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FORWARDER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FORWARDER_REDIS_ADDR"`
	Password     string        `envconfig:"FORWARDER_REDIS_PASSWORD"`
	DB           int           `envconfig:"FORWARDER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FORWARDER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FORWARDER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FORWARDER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FORWARDER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FORWARDER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FORWARDER_AUTO_MIGRATE" default:"false"`
}

// CarrierCredentials holds the per-carrier secrets supplied by configuration.
// The core consumes them; it never stores or rotates them.
type CarrierCredentials struct {
	APIKey    string
	APISecret string
	APIURL    string
	IsActive  bool
}

type CarriersConfig struct {
	UPSAPIKey    string `envconfig:"FORWARDER_UPS_API_KEY"`
	UPSAPISecret string `envconfig:"FORWARDER_UPS_API_SECRET"`
	UPSAPIURL    string `envconfig:"FORWARDER_UPS_API_URL" default:"https://onlinetools.ups.com"`
	UPSActive    bool   `envconfig:"FORWARDER_UPS_ACTIVE" default:"false"`

	USPSAPIKey    string `envconfig:"FORWARDER_USPS_API_KEY"`
	USPSAPISecret string `envconfig:"FORWARDER_USPS_API_SECRET"`
	USPSAPIURL    string `envconfig:"FORWARDER_USPS_API_URL" default:"https://secure.shippingapis.com/ShippingAPI.dll"`
	USPSActive    bool   `envconfig:"FORWARDER_USPS_ACTIVE" default:"false"`
}

// UPS returns the UPS credential set.
func (c CarriersConfig) UPS() CarrierCredentials {
	return CarrierCredentials{
		APIKey:    c.UPSAPIKey,
		APISecret: c.UPSAPISecret,
		APIURL:    c.UPSAPIURL,
		IsActive:  c.UPSActive,
	}
}

// USPS returns the USPS credential set.
func (c CarriersConfig) USPS() CarrierCredentials {
	return CarrierCredentials{
		APIKey:    c.USPSAPIKey,
		APISecret: c.USPSAPISecret,
		APIURL:    c.USPSAPIURL,
		IsActive:  c.USPSActive,
	}
}

type RateShoppingConfig struct {
	CarrierTimeout   time.Duration `envconfig:"FORWARDER_CARRIER_CALL_TIMEOUT" default:"10s"`
	AggregateTimeout time.Duration `envconfig:"FORWARDER_RATE_AGGREGATE_TIMEOUT" default:"12s"`
	TrackMaxRetries  int           `envconfig:"FORWARDER_TRACK_MAX_RETRIES" default:"2"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FORWARDER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FORWARDER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FORWARDER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"FORWARDER_PUBSUB_DOMAIN_TOPIC" default:"fw-domain-events"`
	DomainSubscription string `envconfig:"FORWARDER_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FORWARDER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FORWARDER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FORWARDER_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	required := map[string]string{
		"FORWARDER_DB_HOST": db.Host,
		"FORWARDER_DB_USER": db.User,
		"FORWARDER_DB_NAME": db.Name,
	}
	for _, name := range []string{"FORWARDER_DB_HOST", "FORWARDER_DB_USER", "FORWARDER_DB_NAME"} {
		if required[name] == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either FORWARDER_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
