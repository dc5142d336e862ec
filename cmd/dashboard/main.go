// Package main запускает клиент телеметрии пьезогенератора
// Клиент реализует:
// - Прием показаний по push-каналу с переподключением
// - Ограниченные ряды для графика и спарклайнов
// - Периодическую сверку состояния с управляющим сервером
// - Публикацию снимков в Redis и экспорт метрик в Prometheus
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"piezo-stream/internal/analytics"
	"piezo-stream/internal/cache"
	"piezo-stream/internal/config"
	"piezo-stream/internal/control"
	"piezo-stream/internal/dashboard"
	"piezo-stream/internal/handlers"
	"piezo-stream/internal/logging"
	"piezo-stream/internal/status"
	"piezo-stream/internal/stream"
)

const redisAttempts = 3

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Загружаем конфигурацию
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger := logging.New(os.Stderr, level)

	logger.Info("Starting Piezo telemetry client...")
	logger.Info("Go version: %s", runtime.Version())
	logger.Info("Control server: %s, push channel: %s", cfg.ControlURL, cfg.StreamURL)

	// Контекст приложения
	store := analytics.NewStore(cfg.ChartSize, cfg.SparklineSize)
	ctl := control.NewClient(cfg.ControlURL, cfg.RequestTimeout)
	dash := dashboard.New(store, ctl, logger, cfg.DefaultBaudrate)
	logger.Info("Session %s created", dash.ID())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Redis подключается только при заданном адресе
	var publisher *cache.Publisher
	if cfg.RedisAddr != "" {
		publisher = connectRedis(ctx, cfg, dash.ID(), logger)
		if publisher != nil {
			publisher.Start()
			dash.Subscribe(publisher)
		}
	}
	if ctx.Err() != nil {
		logger.Info("Interrupted during startup")
		if publisher != nil {
			publisher.Close()
		}
		return
	}

	// Push-канал
	streamClient := stream.NewClient(cfg.StreamURL, store, dash,
		stream.WithDialer(stream.WebsocketDialer{HandshakeTimeout: cfg.RequestTimeout}),
		stream.WithRetryPolicy(backoff.NewConstantBackOff(cfg.ReconnectDelay)),
		stream.WithLogger(logger),
	)
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		if err := streamClient.Run(ctx); err != nil {
			logger.Error("Push channel stopped: %v", err)
		}
	}()

	// Сверка состояния
	reconciler := status.NewReconciler(ctl, dash, cfg.StatusInterval, cfg.RequestTimeout, logger)
	go reconciler.Run(ctx)

	// Настраиваем маршруты
	router := mux.NewRouter()
	var pinger handlers.Pinger
	if publisher != nil {
		pinger = publisher
	}
	handlers.NewHandler(dash, pinger).Register(router)

	// Prometheus метрики
	router.Handle("/prometheus", promhttp.Handler())

	router.Use(loggingMiddleware(logger))

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Local API listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error: %v", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error: %v", err)
	}

	<-streamDone

	if publisher != nil {
		publisher.Close()
	}

	logger.Info("Client stopped")
}

// connectRedis пробует подключиться к Redis с повторами; при неудаче работаем без него
func connectRedis(ctx context.Context, cfg *config.Config, session string, logger *logging.Logger) *cache.Publisher {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second

	publisher, err := cache.Connect(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Session:  session,
		Keep:     cfg.ChartSize,
	}, policy, redisAttempts, logger)
	if err != nil {
		logger.Warn("Running without Redis: %v", err)
		return nil
	}
	logger.Info("Connected to Redis at %s", cfg.RedisAddr)
	return publisher
}

// loggingMiddleware логирует HTTP запросы
func loggingMiddleware(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("%s %s %s", r.Method, r.URL.Path, time.Since(start))
		})
	}
}
