// Command signin-server runs the self-hosted identity provider together with
// the browser facing sign-in API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	si "github.com/panyam/signin"
	"github.com/panyam/signin/captcha"
	"github.com/panyam/signin/config"
	"github.com/panyam/signin/idp"
	"github.com/panyam/signin/oauth2"
	"github.com/panyam/signin/stores/fs"
	gaestore "github.com/panyam/signin/stores/gae"
	gormstore "github.com/panyam/signin/stores/gorm"
	redisstore "github.com/panyam/signin/stores/redis"
)

const otpSweepInterval = 10 * time.Minute

type backend struct {
	users      si.UserStore
	identities si.IdentityStore
	channels   si.ChannelStore
	otps       si.OTPStore
	sweep      func(ctx context.Context) error
	close      func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer b.close()

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		b.otps = redisstore.NewOTPStore(rdb, "")
		b.sweep = nil
	}

	broker := oauth2.NewBroker(oauth2.ContextOpener)
	broker.FlowTimeout = cfg.PopupTimeoutDuration()
	for provider, client := range cfg.OAuth {
		pc := providerConfig(provider, client)
		if pc == nil {
			slog.Warn("ignoring unsupported oauth provider", "provider", provider)
			continue
		}
		broker.Register(pc)
		slog.Info("federated provider enabled", "provider", provider, "callback", pc.CallbackURL)
	}

	idpCfg := idp.Config{
		Users:      b.users,
		Identities: b.identities,
		Channels:   b.channels,
		OTPs:       b.otps,
		Tokens: &idp.TokenIssuer{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			TTL:      cfg.TokenTTL(),
		},
		Federated:      broker,
		SendLimiter:    idp.NewKeyedLimiter(cfg.SendInterval(), cfg.OTPSendBurst),
		OTPExpiry:      cfg.OTPExpiry(),
		OTPMaxAttempts: cfg.OTPMaxAttempts,
		BcryptCost:     cfg.BcryptCost,
	}
	if cfg.SMSAPIKey != "" {
		idpCfg.SMS = idp.NewHTTPSMSSender(cfg.SMSAPIKey, cfg.SMSBaseURL, cfg.SMSSender)
	}
	var verifiers si.VerifierFactory
	if cfg.RecaptchaSecret != "" {
		sv := &captcha.SiteVerifier{Secret: cfg.RecaptchaSecret, VerifyURL: cfg.RecaptchaVerifyURL}
		idpCfg.Captcha = sv.EnsureDefaults()
		verifiers = captcha.NewFactory(captcha.ContextSolver)
	}
	provider := idp.New(idpCfg)
	broker.Complete = provider.CompleteFederated

	// The attempt deadline must outlast the consent window.
	attemptTimeout := max(cfg.AttemptTimeoutDuration(), cfg.PopupTimeoutDuration())

	session := scs.New()
	session.Lifetime = cfg.SessionLifetimeDuration()
	session.Cookie.Name = "signin_session"
	session.Cookie.Secure = cfg.Env == "production"
	server := si.NewServer(session, func(key string) *si.Orchestrator {
		return si.NewOrchestrator(provider, verifiers,
			si.WithDefaultCountryCode(cfg.DefaultCountryCode),
			si.WithAttemptTimeout(attemptTimeout),
			si.WithLogger(slog.Default().With("session", key)),
		)
	})

	idpHandler := idp.NewHandler(provider)
	idpHandler.APIKey = cfg.IDPAPIKey

	mux := http.NewServeMux()
	mux.Handle("/idp/", http.StripPrefix("/idp", idpHandler))
	mux.Handle("/oauth/", http.StripPrefix("/oauth", broker.Handler()))
	mux.Handle("/", server.Handler())

	if b.sweep != nil {
		go sweepOTPs(ctx, b.sweep)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("signin server listening", "addr", cfg.ListenAddr, "backend", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down signin server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "err", err)
	}
	slog.Info("signin server stopped")
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
		otps := gormstore.NewOTPStore(db)
		return &backend{
			users:      gormstore.NewUserStore(db),
			identities: gormstore.NewIdentityStore(db),
			channels:   gormstore.NewChannelStore(db),
			otps:       otps,
			sweep: func(ctx context.Context) error {
				_, err := otps.DeleteExpiredOTPs(ctx)
				return err
			},
			close: func() error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		}, nil
	case config.BackendDatastore:
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject)
		if err != nil {
			return nil, fmt.Errorf("failed to create datastore client: %w", err)
		}
		ns := cfg.DatastoreNamespace
		otps := gaestore.NewOTPStore(client, ns)
		return &backend{
			users:      gaestore.NewUserStore(client, ns),
			identities: gaestore.NewIdentityStore(client, ns),
			channels:   gaestore.NewChannelStore(client, ns),
			otps:       otps,
			sweep: func(ctx context.Context) error {
				_, err := otps.DeleteExpiredOTPs(ctx)
				return err
			},
			close: client.Close,
		}, nil
	}
	return &backend{
		users:      fs.NewFSUserStore(cfg.StoragePath),
		identities: fs.NewFSIdentityStore(cfg.StoragePath),
		channels:   fs.NewFSChannelStore(cfg.StoragePath),
		otps:       fs.NewFSOTPStore(cfg.StoragePath),
		close:      func() error { return nil },
	}, nil
}

func providerConfig(provider si.FederatedProvider, c config.OAuthClient) *oauth2.ProviderConfig {
	switch provider {
	case si.ProviderGoogle:
		return oauth2.NewGoogleConfig(c.ClientID, c.ClientSecret, c.CallbackURL)
	case si.ProviderFacebook:
		return oauth2.NewFacebookConfig(c.ClientID, c.ClientSecret, c.CallbackURL)
	case si.ProviderMicrosoft:
		return oauth2.NewMicrosoftConfig(c.ClientID, c.ClientSecret, c.CallbackURL)
	case si.ProviderTwitter:
		return oauth2.NewTwitterConfig(c.ClientID, c.ClientSecret, c.CallbackURL)
	}
	return nil
}

func sweepOTPs(ctx context.Context, sweep func(ctx context.Context) error) {
	ticker := time.NewTicker(otpSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweep(ctx); err != nil {
				slog.Warn("otp sweep failed", "err", err)
			}
		}
	}
}
