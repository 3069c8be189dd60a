package main

import (
	"fmt"

	"github.com/tradepost/tradepost/internal/api"
	"github.com/tradepost/tradepost/internal/app"
	"github.com/tradepost/tradepost/internal/app/maintenance"
	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/internal/cache"
	"github.com/tradepost/tradepost/internal/database"
	"github.com/tradepost/tradepost/internal/middleware"
	"github.com/tradepost/tradepost/internal/payment"
	"github.com/tradepost/tradepost/internal/realtime"
	"github.com/tradepost/tradepost/internal/services"
	"github.com/tradepost/tradepost/internal/verify"
	"github.com/tradepost/tradepost/pkg/mail"
)

// application is the fully wired process: database, services, background
// jobs, and the HTTP router.
type application struct {
	cfg     *app.Config
	deps    api.Dependencies
	cleaner *maintenance.Cleaner
}

func buildApplication(cfg *app.Config) (*application, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	store := verify.NewStore()
	hub := realtime.NewHub()
	cacheStore := cache.NewDatabaseStore(db)
	mailer, err := mail.NewSMTPMailer(cfg.SMTP)
	if err != nil {
		return nil, fmt.Errorf("configure mailer: %w", err)
	}

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:         cfg.Auth.JWTSecret,
		Issuer:         cfg.Auth.Issuer,
		AccessTokenTTL: cfg.Auth.AccessTokenTTL,
	})
	if err != nil {
		return nil, err
	}

	sessions, err := auth.NewSessionService(db, jwtService, auth.SessionConfig{
		RefreshTTL: cfg.Auth.RefreshTTL,
	})
	if err != nil {
		return nil, err
	}

	accounts, err := services.NewAccountService(db, store, sessions, mailer, services.AccountConfig{
		CodeTTL:        cfg.Verification.CodeTTL,
		ResetTokenTTL:  cfg.Verification.ResetTokenTTL,
		EmailChangeTTL: cfg.Verification.EmailChangeTTL,
	})
	if err != nil {
		return nil, err
	}

	listings, err := services.NewListingService(db)
	if err != nil {
		return nil, err
	}

	conversations, err := services.NewConversationService(db, hub)
	if err != nil {
		return nil, err
	}

	orders, err := services.NewOrderService(db, newCharger(cfg.Payment), hub)
	if err != nil {
		return nil, err
	}

	reviews, err := services.NewReviewService(db)
	if err != nil {
		return nil, err
	}

	cleaner, err := maintenance.NewCleaner(maintenance.Options{
		Sessions:       sessions,
		Store:          store,
		Orders:         orders,
		StaleOrderAge:  cfg.Maintenance.StaleOrderAge,
		CleanupSpec:    cfg.Maintenance.CleanupSpec,
		StaleOrderSpec: cfg.Maintenance.StaleOrderSpec,
	})
	if err != nil {
		return nil, err
	}

	return &application{
		cfg: cfg,
		deps: api.Dependencies{
			DB:            db,
			JWT:           jwtService,
			Sessions:      sessions,
			Accounts:      accounts,
			Listings:      listings,
			Conversations: conversations,
			Orders:        orders,
			Reviews:       reviews,
			Hub:           hub,
			Cache:         cacheStore,
			AuthRateLimit: middleware.RateLimitConfig{
				Limit:  cfg.RateLimit.AuthLimit,
				Window: cfg.RateLimit.AuthWindow,
			},
			APIRateLimit: middleware.RateLimitConfig{
				Limit:  cfg.RateLimit.APILimit,
				Window: cfg.RateLimit.APIWindow,
			},
		},
		cleaner: cleaner,
	}, nil
}

func newCharger(cfg app.PaymentConfig) payment.Charger {
	// Only the mock gateway ships today; the seam exists so a real
	// provider can be dropped in without touching the order service.
	return payment.NewMockCharger()
}
