package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ratio1/fmdata_sdk_go/internal/devseed"
	"github.com/Ratio1/fmdata_sdk_go/pkg/fmdata/mock"
)

type failConfig struct {
	rate float64
	code int
}

const serviceName = "fmdata-sandbox"

func main() {
	addr := flag.String("addr", ":8787", "listen address")
	seedPath := flag.String("seed", "", "path to YAML seed describing the mock database")
	database := flag.String("database", "Sandbox", "database name when no seed is given")
	latency := flag.Duration("latency", 0, "artificial latency to inject per request")
	fail := flag.String("fail", "", "failure injection (rate=<float>,code=<fmCode>)")
	tokenTTL := flag.Duration("token-ttl", mock.DefaultTokenTTL, "idle lifetime of session tokens")
	otlpEndpoint := flag.String("otlp-endpoint", "", "OTLP/HTTP collector host:port; tracing is off when empty")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *otlpEndpoint != "" {
		shutdown, err := setupTracing(ctx, *otlpEndpoint)
		if err != nil {
			logger.Error("init tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("flush traces", "error", err)
			}
		}()
	}

	failCfg, err := parseFailConfig(*fail)
	if err != nil {
		logger.Error("parse fail flag", "error", err)
		os.Exit(1)
	}

	opts := []mock.Option{
		mock.WithLogger(logger),
		mock.WithTokenTTL(*tokenTTL),
		mock.WithMiddleware(otelecho.Middleware(serviceName), inject(*latency, failCfg)),
	}
	var (
		server   *mock.Server
		username = "admin"
		password = ""
	)
	if *seedPath != "" {
		seed, err := devseed.Load(*seedPath)
		if err != nil {
			logger.Error("load seed", "error", err)
			os.Exit(1)
		}
		server, err = mock.NewFromSeed(seed, opts...)
		if err != nil {
			logger.Error("apply seed", "error", err)
			os.Exit(1)
		}
		if len(seed.Accounts) > 0 {
			username, password = seed.Accounts[0].Username, seed.Accounts[0].Password
		}
	} else {
		server = mock.New(*database, opts...)
	}

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("fmdata-sandbox listening", "addr", *addr, "database", server.Database())
	host := *addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	fmt.Println()
	fmt.Println("export FMDATA_RUNTIME_MODE=http")
	fmt.Printf("export FMDATA_HOST=http://%s\n", host)
	fmt.Printf("export FMDATA_DATABASE=%s\n", server.Database())
	fmt.Printf("export FMDATA_USERNAME=%s\n", username)
	fmt.Printf("export FMDATA_PASSWORD=%s\n", password)
	fmt.Println()

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(sctx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func slogLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func setupTracing(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// inject delays every request and fails a share of them with a Data API
// error code. Streaming URLs are left alone.
func inject(delay time.Duration, cfg failConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if delay > 0 {
				time.Sleep(delay)
			}
			path := c.Request().URL.Path
			if cfg.rate > 0 && strings.Contains(path, "/layouts") && rand.Float64() < cfg.rate {
				return mock.Reject(c, cfg.code)
			}
			return next(c)
		}
	}
}

func parseFailConfig(raw string) (failConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return failConfig{}, nil
	}
	cfg := failConfig{code: 100}
	parts := strings.Split(raw, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		keyVal := strings.SplitN(part, "=", 2)
		if len(keyVal) != 2 {
			return failConfig{}, fmt.Errorf("invalid fail segment %q", part)
		}
		switch strings.TrimSpace(keyVal[0]) {
		case "rate":
			val, err := strconv.ParseFloat(strings.TrimSpace(keyVal[1]), 64)
			if err != nil {
				return failConfig{}, err
			}
			if val < 0 || val > 1 {
				return failConfig{}, fmt.Errorf("fail rate %v outside [0,1]", val)
			}
			cfg.rate = val
		case "code":
			val, err := strconv.Atoi(strings.TrimSpace(keyVal[1]))
			if err != nil {
				return failConfig{}, err
			}
			cfg.code = val
		default:
			return failConfig{}, fmt.Errorf("unknown fail key %q", keyVal[0])
		}
	}
	return cfg, nil
}
