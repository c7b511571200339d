package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	_ "github.com/tair/heat-service/docs"
	"github.com/tair/heat-service/internal/heat"
	grpcDelivery "github.com/tair/heat-service/internal/heat/delivery/grpc"
	httpDelivery "github.com/tair/heat-service/internal/heat/delivery/http"
	"github.com/tair/heat-service/internal/heat/usecase/command"
	"github.com/tair/heat-service/internal/heat/usecase/query"
	"github.com/tair/heat-service/kafka"
	"github.com/tair/heat-service/pkg/auth"
	"github.com/tair/heat-service/pkg/cache"
	"github.com/tair/heat-service/pkg/config"
	"github.com/tair/heat-service/pkg/logger"
	"github.com/tair/heat-service/pkg/tracing"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.IsDevelopment())
	logger.SetLevel(cfg.LogLevel)

	logger.Logger.Info().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Str("log_level", cfg.LogLevel).
		Msg("Starting heat service")

	if err := run(cfg); err != nil {
		logger.Logger.Error().Err(err).Msg("Heat service stopped with error")
		os.Exit(1)
	}
	logger.Logger.Info().Msg("Heat service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.InitTracer(cfg.ServiceName, cfg.Version, cfg.JaegerEndpoint)
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("Tracing disabled")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracing.Shutdown(shutdownCtx, tp); err != nil {
				logger.Logger.Warn().Err(err).Msg("Failed to flush traces")
			}
		}()
	}

	store, cleanup, err := heat.NewStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.JWTSecret == "" {
		logger.Logger.Warn().Msg("JWT_SECRET is empty; every authenticated request will be rejected")
	}
	validator := auth.NewValidator(cfg.JWTSecret, cfg.JWTIssuer)

	// Optional Redis: trending snapshot cache and mutation rate limiting
	var (
		snapshots   query.SnapshotCache
		invalidator command.CacheInvalidator
		limiter     *httpDelivery.RateLimiter
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Logger.Warn().Err(err).Msg("Redis unavailable; running without cache and rate limiting")
		} else {
			defer redisClient.Close()
			trendingCache := cache.NewJSONCache(redisClient, "heat:trending:", cfg.TrendingCacheTTL)
			snapshots = trendingCache
			invalidator = trendingCache
			limiter = httpDelivery.NewRateLimiter(redisClient, cfg.RateLimitRequests, cfg.RateLimitWindow)
		}
	}

	// Optional Kafka: activity events out, catalog feed in
	var publisher command.ActivityPublisher
	if len(cfg.KafkaBrokers) > 0 {
		p, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.ActivityTopic)
		if err != nil {
			logger.Logger.Warn().Err(err).Msg("Kafka publisher unavailable; activity events disabled")
		} else {
			defer p.Close()
			publisher = p
		}

		upsertHandler, err := heat.InitializeCatalogHandler(cfg, store, invalidator)
		if err != nil {
			return err
		}
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.CatalogGroupID, []string{cfg.CatalogTopic}, heat.CatalogEventHandler(upsertHandler))
		if err != nil {
			logger.Logger.Warn().Err(err).Msg("Kafka consumer unavailable; catalog ingestion disabled")
		} else {
			consumer.Start(ctx)
			defer consumer.Close()
		}
	}

	handler, err := heat.InitializeHTTPHandler(cfg, store, publisher, snapshots, validator, limiter)
	if err != nil {
		return err
	}

	monitor := grpcDelivery.NewHealthMonitor(store, 0)
	grpcServer := grpcDelivery.NewServer(monitor)
	httpServer := newHTTPServer(handler, cfg.HTTPPort)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		monitor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Logger.Info().
			Str("port", cfg.HTTPPort).
			Str("metrics_endpoint", "/metrics").
			Str("swagger", "/swagger/index.html").
			Msg("HTTP server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return err
		}
		logger.Logger.Info().
			Str("port", cfg.GRPCPort).
			Msg("gRPC health server started")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Logger.Info().Msg("Shutting down servers...")

		monitor.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	return g.Wait()
}

func newHTTPServer(handler *httpDelivery.HeatHandler, port string) *http.Server {
	router := mux.NewRouter()
	router.Use(httpDelivery.RecoveryMiddleware)
	router.Use(httpDelivery.RequestIDMiddleware)
	router.Use(httpDelivery.LoggingMiddleware)

	handler.RegisterRoutes(router)
	handler.RegisterHealthCheck(router)
	router.Handle("/metrics", promhttp.Handler())
	httpDelivery.RegisterSwaggerDocs(router, httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(c.Handler(router), "heat-http"),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
