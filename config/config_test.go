package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	si "github.com/panyam/signin"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":8080")
	}
	if cfg.StoreBackend != BackendFS {
		t.Errorf("StoreBackend = %q, want fs", cfg.StoreBackend)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.OTPMaxAttempts != si.OTPMaxAttempts {
		t.Errorf("OTPMaxAttempts = %d, want %d", cfg.OTPMaxAttempts, si.OTPMaxAttempts)
	}
	if cfg.OTPExpiry() != 5*time.Minute {
		t.Errorf("OTPExpiry() = %v, want 5m", cfg.OTPExpiry())
	}
	if cfg.TokenTTL() != time.Hour {
		t.Errorf("TokenTTL() = %v, want 1h", cfg.TokenTTL())
	}
	if len(cfg.OAuth) != 0 {
		t.Errorf("OAuth = %v, want none", cfg.OAuth)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("SlogLevel() = %v, want info", cfg.SlogLevel())
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"STORE_BACKEND": "mongo"}},
		{"postgres without dsn", map[string]string{"STORE_BACKEND": "postgres"}},
		{"datastore without project", map[string]string{"STORE_BACKEND": "datastore"}},
		{"production without secret", map[string]string{"APP_ENV": "production"}},
		{"bcrypt too low", map[string]string{"BCRYPT_COST": "2"}},
		{"bad country code", map[string]string{"DEFAULT_COUNTRY_CODE": "91"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestLoad_OAuthAndDurations(t *testing.T) {
	os.Clearenv()
	t.Setenv("PUBLIC_URL", "https://signin.example.com/")
	t.Setenv("OAUTH2_GOOGLE_CLIENT_ID", "gid")
	t.Setenv("OAUTH2_GOOGLE_CLIENT_SECRET", "gsecret")
	t.Setenv("OAUTH2_TWITTER_CLIENT_ID", "tid")
	t.Setenv("OAUTH2_TWITTER_CALLBACK_URL", "https://cb.example.com/x")
	t.Setenv("POPUP_TIMEOUT", "90s")
	t.Setenv("OTP_TTL", "garbage")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	google := cfg.OAuth[si.ProviderGoogle]
	if google.ClientSecret != "gsecret" {
		t.Errorf("google secret = %q", google.ClientSecret)
	}
	if google.CallbackURL != "https://signin.example.com/oauth/google/callback" {
		t.Errorf("google callback = %q", google.CallbackURL)
	}
	if cfg.OAuth[si.ProviderTwitter].CallbackURL != "https://cb.example.com/x" {
		t.Errorf("twitter callback = %q", cfg.OAuth[si.ProviderTwitter].CallbackURL)
	}
	if _, ok := cfg.OAuth[si.ProviderFacebook]; ok {
		t.Error("facebook should not be configured")
	}
	if cfg.PopupTimeoutDuration() != 90*time.Second {
		t.Errorf("PopupTimeoutDuration() = %v", cfg.PopupTimeoutDuration())
	}
	if cfg.OTPExpiry() != 5*time.Minute {
		t.Errorf("OTPExpiry() = %v, want fallback 5m", cfg.OTPExpiry())
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, want debug", cfg.SlogLevel())
	}
}

func TestLoadFile(t *testing.T) {
	os.Clearenv()
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("LISTEN_ADDR=:9999\nSTORE_BACKEND=postgres\nDATABASE_URL=postgres://x\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.ListenAddr != ":9999" || cfg.StoreBackend != BackendPostgres {
		t.Errorf("cfg = %+v", cfg)
	}
}
