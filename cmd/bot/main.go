package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"peran/internal/bot"
	"peran/internal/config"
	"peran/internal/events"
	"peran/internal/httpapi"
	"peran/internal/metrics"
	"peran/internal/portal"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("PERAN_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Fatal().Msg("set telegram.bot_token in config")
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("load time zone")
	}

	client := portal.NewClient(cfg.Portal.BaseURL, cfg.Portal.Tenant, logger)
	client.SetTimeout(cfg.PortalTimeout())
	if cfg.Portal.RateLimit > 0 {
		client.UseRateLimit(cfg.Portal.RateLimit, cfg.Portal.RateBurst)
	}
	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.CacheTTL() > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		client.UseRedisCache(rdb, cfg.CacheTTL())
	}

	b, err := bot.New(cfg.Telegram.BotToken, client, bot.Options{
		Location:       loc,
		Managers:       cfg.Managers,
		SessionTimeout: cfg.SessionTimeout(),
		FormID:         cfg.Booking.FormID,
		Events:         events.NewEventBus(),
		Debug:          cfg.Telegram.Debug,
	}, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := httpapi.New(client, httpapi.Options{
		Location:      loc,
		Logger:        &logger,
		AllowedOrigin: cfg.HTTP.AllowedOrigin,
		Redis:         rdb,
		Portal:        client,
	})
	go api.Run(ctx, fmt.Sprintf(":%d", cfg.HTTPPort()))

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.MetricsPort(), &logger)
	}

	go b.RunMaintenance(ctx, cfg.SettingsRefresh())
	b.StartDigest(ctx, cfg.DigestHour())

	logger.Info().Str("tenant", cfg.Portal.Tenant).Str("public_url", cfg.HTTP.PublicURL).Msg("booking bot started")
	b.Start(ctx)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
