// README: Entry point; loads config, wires stores and services, serves HTTP until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"courier/internal/config"
	httptransport "courier/internal/http"
	"courier/internal/http/handlers"
	"courier/internal/infra"
	"courier/internal/logger"
	"courier/internal/maps"
	"courier/internal/modules/invite"
	"courier/internal/modules/order"
	"courier/internal/modules/pricing"
	"courier/internal/modules/user"
	"courier/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Log.Sync() }()
	logger.Log.Info("starting courier api", zap.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Log.Fatal("courier api stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config) error {
	var app *firebase.App
	if cfg.Auth.Mode == config.AuthFirebase || cfg.Firebase.Bucket != "" {
		var err error
		app, err = infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.Bucket)
		if err != nil {
			return err
		}
	}

	var verifier infra.TokenVerifier
	var err error
	switch cfg.Auth.Mode {
	case config.AuthJWT:
		verifier, err = infra.NewJWTVerifier(cfg.Auth.JWTSecret)
	default:
		verifier, err = infra.NewFirebaseVerifier(ctx, app)
	}
	if err != nil {
		return err
	}

	var (
		orderStore  order.Store
		userStore   user.Store
		inviteStore invite.Store
	)
	switch cfg.Store.Mode {
	case config.StoreMemory:
		logger.Log.Warn("using in-memory stores; data is lost on restart")
		orderStore, userStore, inviteStore = order.NewMemoryStore(), user.NewMemoryStore(), invite.NewMemoryStore()
	default:
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		if cfg.DB.Migrate {
			if err := migrations.Apply(ctx, pool); err != nil {
				return err
			}
		}
		orderStore, userStore, inviteStore = order.NewPostgresStore(pool), user.NewPostgresStore(pool), invite.NewPostgresStore(pool)
	}

	var quoteStore pricing.QuoteStore = pricing.NewMemoryQuoteStore()
	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		quoteStore = pricing.NewRedisQuoteStore(rdb)
	}

	var routes pricing.RouteEstimator
	var places handlers.PlaceSearcher
	if cfg.Maps.APIKey != "" {
		rs, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		ps, err := maps.NewPlacesService(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		routes, places = rs, ps
	} else {
		logger.Log.Warn("COURIER_MAPS_API_KEY not set; quotes and address search are disabled")
	}

	var photos order.PhotoChecker
	if cfg.Firebase.Bucket != "" {
		ps, err := infra.NewPhotoStore(ctx, app, cfg.Firebase.Bucket)
		if err != nil {
			return err
		}
		photos = ps
	}

	inviteSvc := invite.NewService(inviteStore)
	userSvc := user.NewService(userStore, inviteSvc, cfg.Auth.AdminUIDs)
	pricingSvc := pricing.NewService(routes, quoteStore, cfg.Quote.TTL)
	orderSvc := order.NewService(orderStore, userSvc, pricingSvc, photos)

	gin.SetMode(gin.ReleaseMode)
	handler := httptransport.NewServer(httptransport.ServerDeps{
		Verifier: verifier,
		Order:    orderSvc,
		User:     userSvc,
		Invite:   inviteSvc,
		Pricing:  pricingSvc,
		Places:   places,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
