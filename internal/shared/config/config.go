package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for our application
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// JWT configuration
	JWT JWTConfig

	// Rate limiting
	RateLimit RateLimitConfig

	// Idempotency-Key handling
	Idempotency IdempotencyConfig

	// Checkout pipeline
	Checkout CheckoutConfig

	// Payment gateways
	Payments PaymentsConfig

	// Kafka (fulfillment + notifications)
	Kafka KafkaConfig

	// Background reconciliation
	Reconciliation ReconciliationConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	JWTExpiresIn     time.Duration
	RefreshExpiresIn time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled          bool          `json:"enabled"`
	WindowDuration   time.Duration `json:"window_duration"`
	DefaultRequests  int           `json:"default_requests"`
	PublicRequests   int           `json:"public_requests"`
	AuthRequests     int           `json:"auth_requests"`
	CheckoutRequests int           `json:"checkout_requests"`
	WebhookRequests  int           `json:"webhook_requests"`
	StaffRequests    int           `json:"staff_requests"`
	HealthRequests   int           `json:"health_requests"`
	WhitelistedIPs   []string      `json:"whitelisted_ips"`
}

// IdempotencyConfig holds Idempotency-Key middleware configuration
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
	LockTTL time.Duration
}

// CheckoutConfig holds checkout and reservation settings
type CheckoutConfig struct {
	SessionTTL                   time.Duration // how long a PENDING order stays payable
	HoldTTL                      time.Duration // ledger hold lifetime
	DefaultMaxTicketsPerPurchase int
	DefaultGateway               string
}

// PaymentsConfig holds gateway credentials and fee defaults
type PaymentsConfig struct {
	HTTPTimeout time.Duration

	MercadoPago MercadoPagoConfig
	OpenPay     OpenPayConfig

	DefaultFeeBps   int64
	DefaultFeeFixed int64
	// charged per complimentary ticket beyond the free allowance
	DefaultComplimentaryFee int64

	NotificationURL string
	SuccessURL      string
	FailureURL      string
}

// MercadoPagoConfig holds MercadoPago credentials
type MercadoPagoConfig struct {
	BaseURL       string
	AccessToken   string
	WebhookSecret string
}

// OpenPayConfig holds OpenPay credentials
type OpenPayConfig struct {
	BaseURL       string
	MerchantID    string
	PrivateKey    string
	WebhookSecret string
}

// KafkaConfig holds broker and topic settings
type KafkaConfig struct {
	Enabled           bool
	Brokers           []string
	FulfillmentTopic  string
	DeadLetterTopic   string
	NotificationTopic string
	ConsumerGroup     string
	Workers           int
	MaxAttempts       int
	RetryBackoff      time.Duration
}

// ReconciliationConfig holds background job settings
type ReconciliationConfig struct {
	Enabled          bool
	JournalInterval  time.Duration
	SweepInterval    time.Duration
	BatchSize        int
	FulfillmentGrace time.Duration
	MaxJournalTries  int
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		// Database configuration
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "boxoffice_db"),
			User:     getEnv("DB_USER", "boxoffice_user"),
			Password: getEnv("DB_PASSWORD", "boxoffice_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		// Redis configuration
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},

		// JWT configuration
		JWT: JWTConfig{
			Secret:           getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
			JWTExpiresIn:     getDurationEnvSeconds("JWT_EXPIRES_IN", 15*time.Minute),
			RefreshExpiresIn: getDurationEnvSeconds("JWT_REFRESH_EXPIRES_IN", 24*time.Hour),
		},

		// Rate limiting
		RateLimit: RateLimitConfig{
			Enabled:          getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:   getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests:  getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			PublicRequests:   getIntEnv("RATE_LIMIT_PUBLIC_REQUESTS", 100),
			AuthRequests:     getIntEnv("RATE_LIMIT_AUTH_REQUESTS", 10),
			CheckoutRequests: getIntEnv("RATE_LIMIT_CHECKOUT_REQUESTS", 20),
			WebhookRequests:  getIntEnv("RATE_LIMIT_WEBHOOK_REQUESTS", 600),
			StaffRequests:    getIntEnv("RATE_LIMIT_STAFF_REQUESTS", 300),
			HealthRequests:   getIntEnv("RATE_LIMIT_HEALTH_REQUESTS", 120),
			WhitelistedIPs:   getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		Idempotency: IdempotencyConfig{
			Enabled: getBoolEnv("IDEMPOTENCY_ENABLED", true),
			TTL:     getDurationEnv("IDEMPOTENCY_TTL", 24*time.Hour),
			LockTTL: getDurationEnv("IDEMPOTENCY_LOCK_TTL", 30*time.Second),
		},

		Checkout: CheckoutConfig{
			SessionTTL:                   getDurationEnv("CHECKOUT_SESSION_TTL", 30*time.Minute),
			HoldTTL:                      getDurationEnv("CHECKOUT_HOLD_TTL", 5*time.Minute),
			DefaultMaxTicketsPerPurchase: getIntEnv("CHECKOUT_MAX_TICKETS_PER_PURCHASE", 10),
			DefaultGateway:               getEnv("CHECKOUT_DEFAULT_GATEWAY", "mercadopago"),
		},

		Payments: PaymentsConfig{
			HTTPTimeout: getDurationEnv("PAYMENTS_HTTP_TIMEOUT", 10*time.Second),
			MercadoPago: MercadoPagoConfig{
				BaseURL:       getEnv("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com"),
				AccessToken:   getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
				WebhookSecret: getEnv("MERCADOPAGO_WEBHOOK_SECRET", ""),
			},
			OpenPay: OpenPayConfig{
				BaseURL:       getEnv("OPENPAY_BASE_URL", "https://sandbox-api.openpay.mx"),
				MerchantID:    getEnv("OPENPAY_MERCHANT_ID", ""),
				PrivateKey:    getEnv("OPENPAY_PRIVATE_KEY", ""),
				WebhookSecret: getEnv("OPENPAY_WEBHOOK_SECRET", ""),
			},
			DefaultFeeBps:           getInt64Env("PAYMENTS_DEFAULT_FEE_BPS", 500), // 5%
			DefaultFeeFixed:         getInt64Env("PAYMENTS_DEFAULT_FEE_FIXED", 0),
			DefaultComplimentaryFee: getInt64Env("PAYMENTS_COMPLIMENTARY_FEE", 0),
			NotificationURL:         getEnv("PAYMENTS_NOTIFICATION_URL", ""),
			SuccessURL:              getEnv("PAYMENTS_SUCCESS_URL", ""),
			FailureURL:              getEnv("PAYMENTS_FAILURE_URL", ""),
		},

		Kafka: KafkaConfig{
			Enabled:           getBoolEnv("KAFKA_ENABLED", true),
			Brokers:           getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			FulfillmentTopic:  getEnv("KAFKA_FULFILLMENT_TOPIC", "order-fulfillment"),
			DeadLetterTopic:   getEnv("KAFKA_FULFILLMENT_DLQ_TOPIC", "order-fulfillment-dlq"),
			NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "notifications"),
			ConsumerGroup:     getEnv("KAFKA_CONSUMER_GROUP", "boxoffice-fulfillment-workers"),
			Workers:           getIntEnv("KAFKA_FULFILLMENT_WORKERS", 2),
			MaxAttempts:       getIntEnv("KAFKA_FULFILLMENT_MAX_ATTEMPTS", 5),
			RetryBackoff:      getDurationEnv("KAFKA_FULFILLMENT_BACKOFF", 5*time.Second),
		},

		Reconciliation: ReconciliationConfig{
			Enabled:          getBoolEnv("RECONCILIATION_ENABLED", true),
			JournalInterval:  getDurationEnv("RECONCILIATION_JOURNAL_INTERVAL", 5*time.Second),
			SweepInterval:    getDurationEnv("RECONCILIATION_SWEEP_INTERVAL", 30*time.Second),
			BatchSize:        getIntEnv("RECONCILIATION_BATCH_SIZE", 100),
			FulfillmentGrace: getDurationEnv("RECONCILIATION_FULFILLMENT_GRACE", 10*time.Minute),
			MaxJournalTries:  getIntEnv("RECONCILIATION_MAX_JOURNAL_TRIES", 20),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getInt64Env gets an int64 environment variable with a fallback value
func getInt64Env(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getDurationEnvSeconds gets an environment variable as seconds (int) and converts to time.Duration
func getDurationEnvSeconds(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
