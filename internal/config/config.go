package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Calls   CallsConfig
	Billing BillingConfig
	Relay   RelayConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// CallsConfig holds the call session timers handed to clients and used by server-side agents.
type CallsConfig struct {
	DialTimeout time.Duration
	RingTimeout time.Duration
}

type BillingConfig struct {
	RatePerMinuteMinor int64
	Currency           string
	// CreditLimitMinor is the post-paid debt an account may carry before new calls are refused.
	CreditLimitMinor int64
	// PricingFile optionally holds per-tenant, per-call-type plans that override the flat rate.
	PricingFile string
}

type RelayConfig struct {
	NodeID string
	// MaxCallsPerTenant caps concurrent calls per marketplace. Zero disables the cap.
	MaxCallsPerTenant int
	// MessagesPerSecond limits inbound signaling per connection.
	MessagesPerSecond float64
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Calls.DialTimeout = mustDuration("CALL_DIAL_TIMEOUT")
	c.Calls.RingTimeout = mustDuration("CALL_RING_TIMEOUT")

	{
		n, err := optionalInt64("CALL_RATE_PER_MINUTE_MINOR")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Billing.RatePerMinuteMinor = n
	}
	c.Billing.Currency = strings.ToUpper(strings.TrimSpace(os.Getenv("CALL_CURRENCY")))
	c.Billing.PricingFile = strings.TrimSpace(os.Getenv("CALL_PRICING_FILE"))
	{
		n, err := optionalInt64("CALL_CREDIT_LIMIT_MINOR")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Billing.CreditLimitMinor = n
	}

	c.Relay.NodeID = strings.TrimSpace(os.Getenv("RELAY_NODE_ID"))
	{
		n, err := optionalInt64("RELAY_MAX_CALLS_PER_TENANT")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Relay.MaxCallsPerTenant = int(n)
	}
	if v := strings.TrimSpace(os.Getenv("RELAY_MESSAGES_PER_SECOND")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("RELAY_MESSAGES_PER_SECOND must be a number, got %q", v))
		}
		c.Relay.MessagesPerSecond = f
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every invalid setting at once and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			// Allowed values are enforced below.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Calls.DialTimeout <= 0 {
		c.Calls.DialTimeout = 60 * time.Second
	}
	if c.Calls.RingTimeout <= 0 {
		c.Calls.RingTimeout = 30 * time.Second
	}
	if c.Calls.RingTimeout > c.Calls.DialTimeout {
		errs = append(errs, errors.New("CALL_RING_TIMEOUT must not exceed CALL_DIAL_TIMEOUT"))
	}

	if c.Billing.RatePerMinuteMinor < 0 {
		errs = append(errs, fmt.Errorf("CALL_RATE_PER_MINUTE_MINOR must not be negative, got %d", c.Billing.RatePerMinuteMinor))
	}
	if c.Billing.RatePerMinuteMinor > 0 && c.Billing.Currency == "" {
		errs = append(errs, errors.New("CALL_CURRENCY is required when CALL_RATE_PER_MINUTE_MINOR is set"))
	}
	if c.Billing.Currency != "" && len(c.Billing.Currency) != 3 {
		errs = append(errs, fmt.Errorf("CALL_CURRENCY must be an ISO 4217 code, got %q", c.Billing.Currency))
	}
	if c.Billing.CreditLimitMinor < 0 {
		errs = append(errs, fmt.Errorf("CALL_CREDIT_LIMIT_MINOR must not be negative, got %d", c.Billing.CreditLimitMinor))
	}

	if c.Relay.NodeID == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("RELAY_NODE_ID is required in production"))
		} else {
			c.Relay.NodeID = "local"
		}
	}
	if c.Relay.MaxCallsPerTenant < 0 {
		errs = append(errs, fmt.Errorf("RELAY_MAX_CALLS_PER_TENANT must not be negative, got %d", c.Relay.MaxCallsPerTenant))
	}
	if c.Relay.MessagesPerSecond < 0 {
		errs = append(errs, errors.New("RELAY_MESSAGES_PER_SECOND must not be negative"))
	} else if c.Relay.MessagesPerSecond == 0 {
		c.Relay.MessagesPerSecond = 20
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt64(key string) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
