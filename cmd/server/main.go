package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yacall/internal/adapter/driven/media/pion"
	repo "github.com/Wyydra/yacall/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/yacall/internal/adapter/driven/persistence/postgres"
	sigmem "github.com/Wyydra/yacall/internal/adapter/driven/signaling/memory"
	sigredis "github.com/Wyydra/yacall/internal/adapter/driven/signaling/redis"
	handler "github.com/Wyydra/yacall/internal/adapter/driving/http"
	"github.com/Wyydra/yacall/internal/config"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	level := zerolog.InfoLevel
	if cfg.Debug() {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()
	channel, closeChannel := openChannel(ctx, cfg)
	defer closeChannel()

	mediaEngine, err := pion.NewEngine(pion.Config{
		STUNURLs:            cfg.Media.STUNURLs,
		DisconnectedTimeout: cfg.Media.DisconnectedTimeout,
		FailedTimeout:       cfg.Media.FailedTimeout,
		LogLevel:            zerolog.WarnLevel,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise media engine")
	}

	hub := ws.NewHub()
	go hub.Run()

	self := domain.User{ID: domain.UserID(cfg.Self.ID), Name: cfg.Self.Name}
	callService := service.NewCallService(self, store, channel, mediaEngine,
		service.WithGateway(hub),
		service.WithRingTimeout(cfg.Call.RingTimeout),
	)
	if err := callService.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start call service")
	}

	h := handler.NewHandler(callService, hub)
	srv := &http.Server{
		Addr:    cfg.App.Addr,
		Handler: h.NewRouter(),
	}

	go func() {
		log.Info().Str("addr", cfg.App.Addr).Str("user_id", cfg.Self.ID).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	callService.Close(shutdownCtx)
	hub.Stop()
	log.Info().Msg("Server exited")
}

func openStore(ctx context.Context, cfg config.Config) (port.CallRecordStore, func()) {
	if cfg.Store.Driver != config.DriverPostgres {
		log.Warn().Msg("Using in-memory call store, records are lost on exit")
		return repo.NewCallRepository(), func() {}
	}
	pool, err := postgres.Open(ctx, cfg.Store.DatabaseURL, postgres.PoolConfig{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to postgres")
	}
	r := postgres.NewCallRepository(pool)
	if err := r.Migrate(ctx); err != nil {
		pool.Close()
		log.Fatal().Err(err).Msg("Failed to migrate schema")
	}
	return r, pool.Close
}

func openChannel(ctx context.Context, cfg config.Config) (port.SignalingChannel, func()) {
	if cfg.Signaling.Driver != config.DriverRedis {
		log.Warn().Msg("Using in-memory signaling, both peers must share this process")
		return sigmem.NewChannel(), func() {}
	}
	rdb, err := sigredis.Open(ctx, sigredis.Config{Addr: cfg.Signaling.RedisAddr})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	return sigredis.NewChannel(rdb), func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
}
