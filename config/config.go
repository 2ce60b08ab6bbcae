// Package config loads the sign-in server configuration from the environment
// and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	si "github.com/panyam/signin"
)

// Store backends
const (
	BackendFS        = "fs"
	BackendPostgres  = "postgres"
	BackendDatastore = "datastore"
)

// OAuthClient holds the credentials of one federated provider.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Config holds server configuration loaded from the environment.
type Config struct {
	// ListenAddr is the HTTP listen address (e.g. :8080).
	ListenAddr string `mapstructure:"LISTEN_ADDR"`
	// PublicURL is the externally visible base URL, used for OAuth callbacks.
	PublicURL string `mapstructure:"PUBLIC_URL"`
	Env       string `mapstructure:"APP_ENV"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`

	// StoreBackend selects where users, identities and channels live: fs, postgres or datastore.
	StoreBackend       string `mapstructure:"STORE_BACKEND"`
	StoragePath        string `mapstructure:"STORAGE_PATH"`
	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	DatastoreProject   string `mapstructure:"DATASTORE_PROJECT"`
	DatastoreNamespace string `mapstructure:"DATASTORE_NAMESPACE"`
	// RedisAddr, when set, keeps OTP records in Redis instead of the store backend.
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	JWTSecret   string `mapstructure:"JWT_SECRET"`
	JWTIssuer   string `mapstructure:"JWT_ISSUER"`
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	JWTTTL      string `mapstructure:"JWT_TTL"`
	BcryptCost  int    `mapstructure:"BCRYPT_COST"`

	OTPTTL          string `mapstructure:"OTP_TTL"`
	OTPMaxAttempts  int    `mapstructure:"OTP_MAX_ATTEMPTS"`
	OTPSendInterval string `mapstructure:"OTP_SEND_INTERVAL"`
	OTPSendBurst    int    `mapstructure:"OTP_SEND_BURST"`

	// SMSAPIKey enables the HTTP SMS gateway; empty logs codes to the console.
	SMSAPIKey  string `mapstructure:"SMS_API_KEY"`
	SMSBaseURL string `mapstructure:"SMS_BASE_URL"`
	SMSSender  string `mapstructure:"SMS_SENDER"`

	// RecaptchaSecret enables server side artifact verification.
	RecaptchaSecret    string `mapstructure:"RECAPTCHA_SECRET"`
	RecaptchaVerifyURL string `mapstructure:"RECAPTCHA_VERIFY_URL"`

	// IDPAPIKey protects the identity provider API mounted under /idp.
	IDPAPIKey string `mapstructure:"IDP_API_KEY"`

	PopupTimeout       string `mapstructure:"POPUP_TIMEOUT"`
	AttemptTimeout     string `mapstructure:"ATTEMPT_TIMEOUT"`
	SessionLifetime    string `mapstructure:"SESSION_LIFETIME"`
	DefaultCountryCode string `mapstructure:"DEFAULT_COUNTRY_CODE"`

	// OAuth holds credentials for every provider with a client id set.
	OAuth map[si.FederatedProvider]OAuthClient `mapstructure:"-"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("PUBLIC_URL", "http://localhost:8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_BACKEND", BackendFS)
	v.SetDefault("STORAGE_PATH", "./data")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATASTORE_PROJECT", "")
	v.SetDefault("DATASTORE_NAMESPACE", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "signin-idp")
	v.SetDefault("JWT_AUDIENCE", "signin")
	v.SetDefault("JWT_TTL", "1h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_MAX_ATTEMPTS", si.OTPMaxAttempts)
	v.SetDefault("OTP_SEND_INTERVAL", "30s")
	v.SetDefault("OTP_SEND_BURST", 3)
	v.SetDefault("SMS_API_KEY", "")
	v.SetDefault("SMS_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("SMS_SENDER", "")
	v.SetDefault("RECAPTCHA_SECRET", "")
	v.SetDefault("RECAPTCHA_VERIFY_URL", "")
	v.SetDefault("IDP_API_KEY", "")
	v.SetDefault("POPUP_TIMEOUT", "5m")
	v.SetDefault("ATTEMPT_TIMEOUT", "30s")
	v.SetDefault("SESSION_LIFETIME", "24h")
	v.SetDefault("DEFAULT_COUNTRY_CODE", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.OAuth = map[si.FederatedProvider]OAuthClient{}
	for _, p := range si.FederatedProviders {
		prefix := "OAUTH2_" + strings.ToUpper(string(p)) + "_"
		c := OAuthClient{
			ClientID:     strings.TrimSpace(v.GetString(prefix + "CLIENT_ID")),
			ClientSecret: strings.TrimSpace(v.GetString(prefix + "CLIENT_SECRET")),
			CallbackURL:  strings.TrimSpace(v.GetString(prefix + "CALLBACK_URL")),
		}
		if c.ClientID == "" {
			continue
		}
		if c.CallbackURL == "" {
			c.CallbackURL = strings.TrimSuffix(cfg.PublicURL, "/") + "/oauth/" + string(p) + "/callback"
		}
		cfg.OAuth[p] = c
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return errors.New("config: LISTEN_ADDR must be set")
	}
	switch c.StoreBackend {
	case BackendFS:
		if c.StoragePath == "" {
			return errors.New("config: STORAGE_PATH must be set for the fs backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set for the postgres backend")
		}
	case BackendDatastore:
		if c.DatastoreProject == "" {
			return errors.New("config: DATASTORE_PROJECT must be set for the datastore backend")
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.Env == "production" && c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET must be set when APP_ENV=production")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.OTPMaxAttempts <= 0 {
		return errors.New("config: OTP_MAX_ATTEMPTS must be positive")
	}
	if c.DefaultCountryCode != "" && !strings.HasPrefix(c.DefaultCountryCode, "+") {
		return errors.New("config: DEFAULT_COUNTRY_CODE must start with +")
	}
	return nil
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// TokenTTL parses JWTTTL. Returns 1h if unset or invalid.
func (c *Config) TokenTTL() time.Duration { return parseDuration(c.JWTTTL, time.Hour) }

// OTPExpiry parses OTPTTL. Returns 5m if unset or invalid.
func (c *Config) OTPExpiry() time.Duration { return parseDuration(c.OTPTTL, si.OTPExpiry) }

func (c *Config) SendInterval() time.Duration {
	return parseDuration(c.OTPSendInterval, 30*time.Second)
}

func (c *Config) PopupTimeoutDuration() time.Duration {
	return parseDuration(c.PopupTimeout, 5*time.Minute)
}

func (c *Config) AttemptTimeoutDuration() time.Duration {
	return parseDuration(c.AttemptTimeout, 30*time.Second)
}

func (c *Config) SessionLifetimeDuration() time.Duration {
	return parseDuration(c.SessionLifetime, 24*time.Hour)
}

// SlogLevel maps LogLevel onto a slog level. Unknown values are info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
