package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/coordinator/api"
	"github.com/absmach/cohort/coordinator/middleware"
	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/registry"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "coordinator"
	defHTTPPort   = "7070"
	envPrefixHTTP = "COHORT_HTTP_"
	envPrefixMQTT = "COHORT_MQTT_"
	pathEnv       = ".env"
)

type envConfig struct {
	LogLevel    string  `env:"COHORT_LOG_LEVEL"    envDefault:"info"`
	InstanceID  string  `env:"COHORT_INSTANCE_ID"`
	RegistryDir string  `env:"COHORT_REGISTRY_DIR" envDefault:"./data/models"`
	MQTTEnabled bool    `env:"COHORT_MQTT_ENABLED" envDefault:"false"`
	OTELURL     url.URL `env:"COHORT_OTEL_URL"`
	TraceRatio  float64 `env:"COHORT_TRACE_RATIO"  envDefault:"0"`
	Storage     storage.Config
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(ctx); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	repos, err := storage.NewRepositories(cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize storage", slog.String("type", cfg.Storage.Type), slog.String("error", err.Error()))

		return
	}
	if repos.Closer != nil {
		defer repos.Closer.Close()
	}

	reg, err := registry.New(cfg.RegistryDir)
	if err != nil {
		logger.Error("failed to initialize model registry", slog.String("error", err.Error()))

		return
	}

	var (
		pubsub      mqtt.PubSub
		topicPrefix string
	)
	if cfg.MQTTEnabled {
		mqttCfg := mqtt.Config{}
		if err := env.ParseWithOptions(&mqttCfg, env.Options{Prefix: envPrefixMQTT}); err != nil {
			logger.Error(fmt.Sprintf("failed to load %s MQTT configuration : %s", svcName, err.Error()))

			return
		}
		if mqttCfg.ClientID == "" {
			mqttCfg.ClientID = svcName + "-" + cfg.InstanceID
		}
		pubsub, err = mqtt.NewPubSub(mqttCfg, logger)
		if err != nil {
			logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := pubsub.Disconnect(context.Background()); err != nil {
				logger.Error("failed to disconnect mqtt pubsub", slog.Any("error", err))
			}
		}()
		topicPrefix = mqttCfg.TopicPrefix
	}

	svc := coordinator.NewService(repos, reg, pubsub, topicPrefix, logger)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	if err := svc.Subscribe(ctx); err != nil {
		logger.Error("failed to subscribe to stop requests", slog.String("error", err.Error()))

		return
	}

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	g.Go(func() error {
		<-ctx.Done()

		return svc.Shutdown(context.WithoutCancel(ctx))
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}
