package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/campuslink/go-session-service/auth"
	"github.com/campuslink/go-session-service/guard"
	"github.com/campuslink/go-session-service/internal/config"
	"github.com/campuslink/go-session-service/internal/migrate"
	"github.com/campuslink/go-session-service/server"
	"github.com/campuslink/go-session-service/store/redisstore"
	"github.com/campuslink/go-session-service/token"
	"github.com/campuslink/go-session-service/users/postgres"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
	logger.Info().Msg("server stopped")
}

func run(logger zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	cfg := config.New()
	displayAppname(cfg.GetAppName())

	if cfg.GetAccessTokenSecret() == "" || cfg.GetRefreshTokenSecret() == "" {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must be set")
	}
	if cfg.GetAccessTokenSecret() == cfg.GetRefreshTokenSecret() {
		return errors.New("access and refresh secrets must differ")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := migrate.Up(ctx, cfg.GetDatabaseURL()); err != nil {
		return errors.Wrap(err, "applying migrations")
	}

	db, err := postgres.New(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return errors.Wrap(err, "connecting to postgres")
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.GetRedisAddr()})
	defer redisClient.Close()
	ephemeral := redisstore.New(redisClient)

	accessCodec := token.NewCodec(token.NewHMACSigner(cfg.GetAccessTokenSecret()))
	refreshCodec := token.NewCodec(token.NewHMACSigner(cfg.GetRefreshTokenSecret()))
	tokens := token.NewManager(ephemeral, accessCodec, refreshCodec,
		token.WithTokenExpiry(cfg.GetAccessTokenTTL(), cfg.GetRefreshTokenTTL()),
		token.WithLogger(logger),
	)

	credentials := postgres.NewCredentialRepo(db)
	abuseGuard := guard.New(credentials, ephemeral,
		guard.WithAccountLockout(cfg.GetMaxLoginAttempts(), cfg.GetLockoutDuration()),
		guard.WithIPThrottle(cfg.GetIPAttemptThreshold(), cfg.GetIPAttemptWindow()),
		guard.WithLogger(logger),
	)

	sessions, err := auth.NewSessionService(credentials, abuseGuard, tokens, auth.WithLogger(logger))
	if err != nil {
		return errors.Wrap(err, "creating session service")
	}

	srv := server.New(sessions, tokens, logger)
	srv.StartBlacklistSweeper(ctx, cfg.GetBlacklistSweepInterval())

	httpServer := &http.Server{Addr: cfg.GetPort(), Handler: srv}
	go listenAndServe(httpServer, logger)
	waitForStopSignal()
	return shutdown(httpServer)
}

func listenAndServe(httpServer *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("listen and serve failed")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
