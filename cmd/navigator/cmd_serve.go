// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/navigator/services/navigator"
	"github.com/AleutianAI/navigator/services/navigator/catalog"
	"github.com/AleutianAI/navigator/services/navigator/collab"
	"github.com/AleutianAI/navigator/services/navigator/config"
)

// Flag values for the serve command.
var (
	serveConfigPath string
	servePort       int
	serveDebug      bool
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the navigator HTTP service",
		Long: "Starts the navigator API server.\n\n" +
			"Configuration comes from an optional YAML file plus NAVIGATOR_* environment\n" +
			"overrides. The catalog URL is required; run 'navigator init' to scaffold a\n" +
			"config file. The model provider credential is read from the environment\n" +
			"(ANTHROPIC_API_KEY or OPENAI_API_KEY, matching llm.provider).",
		Run: runServeCommand,
	}
	cmd.Flags().StringVar(&serveConfigPath, "config", "", "path to config.yaml")
	cmd.Flags().IntVar(&servePort, "port", 0, "override the configured listen port")
	cmd.Flags().BoolVar(&serveDebug, "debug", false, "enable gin debug mode and request logging")
	return cmd
}

func runServeCommand(cmd *cobra.Command, _ []string) {
	if serveDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Trace context must propagate even when no exporter is configured, so
	// the propagator is set unconditionally and the exporter is best-effort.
	shutdownTracing := initTracing(rootCtx)

	cfg, err := config.LoadServiceConfig(rootCtx, serveConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Hint: run 'navigator init' to scaffold a config file, or set NAVIGATOR_CATALOG_URL.")
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}

	collaborators, err := collab.NewCollaborators(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to create model collaborators: %v", err)
	}

	// Open the snapshot store when configured. Persistence is strictly
	// optional: if the directory cannot be opened the service runs fully
	// in-memory and says so, rather than refusing to start.
	var snapshotDB *badger.DB
	var loaderOpts []catalog.LoaderOption
	if cfg.Snapshot.Dir != "" {
		db, dbErr := catalog.OpenSnapshotDB(cfg.Snapshot.Dir)
		if dbErr != nil {
			slog.Warn("Catalog snapshot store unavailable, persistence disabled",
				slog.String("dir", cfg.Snapshot.Dir),
				slog.String("error", dbErr.Error()),
			)
		} else {
			snapshotDB = db
			store := catalog.NewBadgerSnapshotStore(db, catalog.DefaultSnapshotTTL, slog.Default())
			loaderOpts = append(loaderOpts, catalog.WithSnapshotStore(store, cfg.Catalog.URL))
			slog.Info("Catalog snapshot store opened", slog.String("dir", cfg.Snapshot.Dir))
		}
	}

	fetcher := catalog.NewHTTPFetcher(cfg.Catalog.URL, cfg.Catalog.Timeout.AsDuration())
	cache := catalog.NewCache(cfg.Catalog.TTL.AsDuration())
	loader := catalog.NewLoader(fetcher, cache, loaderOpts...)

	svc, err := navigator.NewService(rootCtx, cfg, loader, collaborators.Classifier, collaborators.Rewriter)
	if err != nil {
		log.Fatalf("Failed to create navigator service: %v", err)
	}
	handlers := navigator.NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("navigator"))
	router.Use(navigator.CORSMiddleware(cfg.Server.CORSOrigins))
	router.Use(navigator.RateLimitMiddleware(navigator.NewClientRateLimiter(cfg.Server.RatePerMinute)))
	if serveDebug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	navigator.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Hot-reload the policy file when one is configured. The embedded
	// policy needs no watcher.
	var watcher *config.PolicyWatcher
	if policyPath := os.Getenv(config.PolicyFileEnv); policyPath != "" {
		watcher, err = config.NewPolicyWatcher(policyPath, slog.Default())
		if err != nil {
			slog.Warn("Policy hot-reload unavailable",
				slog.String("path", policyPath),
				slog.String("error", err.Error()),
			)
			watcher = nil
		} else {
			go watcher.Start(rootCtx)
			slog.Info("Policy hot-reload enabled", slog.String("path", policyPath))
		}
	}

	// Warm in the background so startup never blocks on the catalog source.
	// The first request retries anything that failed here.
	go func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				slog.Error("Panic in warmup goroutine recovered",
					slog.Any("panic", r),
					slog.String("stack", string(buf[:n])),
				)
			}
		}()

		warmCtx, warmCancel := context.WithTimeout(rootCtx, cfg.Catalog.Timeout.AsDuration()+30*time.Second)
		defer warmCancel()

		g, gctx := errgroup.WithContext(warmCtx)
		g.Go(func() error {
			loader.WarmFromStore(gctx)
			if _, loadErr := loader.Load(gctx); loadErr != nil {
				return fmt.Errorf("catalog warm: %w", loadErr)
			}
			return nil
		})
		if snapshotDB != nil {
			g.Go(func() error {
				// Reclaim value log space from expired snapshots. Not fatal;
				// ErrNoRewrite just means there was nothing to collect.
				if gcErr := snapshotDB.RunValueLogGC(0.7); gcErr != nil && !errors.Is(gcErr, badger.ErrNoRewrite) {
					slog.Warn("Snapshot store GC failed", slog.String("error", gcErr.Error()))
				}
				return nil
			})
		}
		if warmErr := g.Wait(); warmErr != nil {
			slog.Warn("Startup warmup incomplete, first request will retry",
				slog.String("error", warmErr.Error()),
			)
			return
		}
		slog.Info("Startup warmup complete")
	}()

	printBanner(cfg.Server.Port, snapshotDB != nil)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down navigator server")
		cancel()
		if watcher != nil {
			if closeErr := watcher.Close(); closeErr != nil {
				slog.Warn("Failed to close policy watcher", slog.String("error", closeErr.Error()))
			}
		}
		if snapshotDB != nil {
			if closeErr := snapshotDB.Close(); closeErr != nil {
				slog.Warn("Failed to close snapshot store", slog.String("error", closeErr.Error()))
			}
		}
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if flushErr := shutdownTracing(flushCtx); flushErr != nil {
			slog.Warn("Failed to flush traces", slog.String("error", flushErr.Error()))
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	slog.Info("Starting navigator server", slog.String("address", addr))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// initTracing sets the W3C propagator and installs a span exporter when one
// is configured. OTEL_EXPORTER_OTLP_ENDPOINT selects OTLP over gRPC;
// NAVIGATOR_TRACE_STDOUT=1 dumps pretty-printed spans to stdout for local
// debugging. With neither set, spans are created but never exported.
//
// Exporter failures degrade to no export rather than failing startup. The
// returned function flushes and stops the provider.
func initTracing(ctx context.Context) func(context.Context) error {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	noop := func(context.Context) error { return nil }

	var exporter sdktrace.SpanExporter
	switch {
	case os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "":
		endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			slog.Warn("OTLP connection failed, traces will not be exported",
				slog.String("endpoint", endpoint),
				slog.String("error", err.Error()),
			)
			return noop
		}
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			slog.Warn("OTLP exporter init failed, traces will not be exported",
				slog.String("endpoint", endpoint),
				slog.String("error", err.Error()),
			)
			return noop
		}
		slog.Info("Exporting traces via OTLP", slog.String("endpoint", endpoint))

	case os.Getenv("NAVIGATOR_TRACE_STDOUT") != "":
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			slog.Warn("Stdout trace exporter init failed, traces will not be exported",
				slog.String("error", err.Error()),
			)
			return noop
		}

	default:
		return noop
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", "navigator"),
		attribute.String("service.version", version),
	))
	if err != nil {
		slog.Warn("Trace resource init failed, traces will not be exported",
			slog.String("error", err.Error()),
		)
		return noop
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

func printBanner(port int, persistence bool) {
	persistenceStatus := "DISABLED (set NAVIGATOR_SNAPSHOT_DIR to enable)"
	if persistence {
		persistenceStatus = "ENABLED"
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                     ALEUTIAN NAVIGATOR SERVER                     ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Safety-gated resource navigation for teens.                      ║
║  Catalog persistence: %-43s ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/navigator/health           │  ║
║  │                                                             │  ║
║  │ # One chat turn                                             │  ║
║  │ curl -X POST http://localhost:%d/v1/navigator/chat \   │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"message": "I need a support group"}'                │  ║
║  │                                                             │  ║
║  │ # Current catalog                                           │  ║
║  │ curl http://localhost:%d/v1/navigator/resources        │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Chat: /chat (POST), /ws (websocket)                          ║
║  ├── Ops:  /resources, /catalog/refresh, /debug/score             ║
║  └── Health: /health, /ready  +  /metrics (Prometheus)            ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, persistenceStatus, port, port, port)
}
