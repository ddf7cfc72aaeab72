package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-orchestrator/internal/approval"
	"github.com/xela07ax/spaceai-orchestrator/internal/audit"
	"github.com/xela07ax/spaceai-orchestrator/internal/connectors"
	"github.com/xela07ax/spaceai-orchestrator/internal/console/handler"
	"github.com/xela07ax/spaceai-orchestrator/internal/console/server"
	"github.com/xela07ax/spaceai-orchestrator/internal/console/service"
	"github.com/xela07ax/spaceai-orchestrator/internal/engine"
	"github.com/xela07ax/spaceai-orchestrator/internal/guardrail"
	"github.com/xela07ax/spaceai-orchestrator/internal/infra"
	"github.com/xela07ax/spaceai-orchestrator/internal/infra/auth"
	"github.com/xela07ax/spaceai-orchestrator/internal/llm"
	"github.com/xela07ax/spaceai-orchestrator/internal/ratelimit"
	"github.com/xela07ax/spaceai-orchestrator/internal/repository/postgres"
	"github.com/xela07ax/spaceai-orchestrator/internal/sentinel"
	"github.com/xela07ax/spaceai-orchestrator/internal/tools"
	"github.com/xela07ax/spaceai-orchestrator/internal/workflow"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the console API, metrics endpoint and background workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := infra.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		logger, err := infra.NewLogger(cfg.Logger)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

// eventStore: куда пишет аудит и откуда читает sentinel.
type eventStore interface {
	audit.Storage
	sentinel.EventSource
}

func serve(ctx context.Context, cfg *infra.Config, logger *zap.Logger) error {
	// фоновые воркеры останавливаются и при падении HTTP-сервера
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. Хранилища: Postgres, если задан URL, иначе память
	var (
		approvals approval.Store = approval.NewMemoryStore()
		workflows workflow.Store = workflow.NewMemoryStore()
		events    eventStore     = audit.NewMemoryStorage(cfg.Engine.Audit.BufferSize)
	)
	if cfg.Database.URL != "" {
		pool, err := postgres.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		approvals = postgres.NewApprovalRepo(pool)
		workflows = postgres.NewWorkflowRepo(pool)
		events = postgres.NewEventRepo(pool)
		logger.Info("postgres storage enabled")
	} else {
		logger.Warn("database.url is empty, using in-memory storage")
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
	}

	// 2. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 3. Исполнение: коннектор под обёрткой надёжности
	var caller connectors.Caller = &connectors.MockConnector{MaxLatency: 50 * time.Millisecond}
	if addr := cfg.Engine.ConnectorAddr; addr != "" {
		conn, err := connectors.Dial(addr)
		if err != nil {
			return err
		}
		defer conn.Close()
		caller = connectors.NewGRPCAdapter(conn)
	} else {
		logger.Warn("engine.connector_addr is empty, tools and model run against the mock connector")
	}
	safe := connectors.NewReliabilityWrapper(caller, cfg.Engine.Reliability, metrics.CircuitBreakerState, logger)

	registry := tools.NewRegistry(logger)
	registerTools(registry, safe)

	// 4. Control plane
	recorder := audit.NewRecorder(events, cfg.Engine.Audit, logger, audit.WithBufferGauge(metrics.AuditBufferFill))
	recorder.Start()
	defer recorder.Stop()

	ks := engine.NewKillSwitch(rdb, logger)
	if err := ks.Init(ctx); err != nil {
		return err
	}
	go ks.Listen(ctx)

	// 5. Ядро: оркестратор на сессию
	model := llm.NewRemoteModel(safe)
	input := guardrail.NewInputGuard(guardrail.WithMaxLength(cfg.Guardrail.MaxInputLength))
	output := guardrail.NewOutputGuard(guardrail.WithEmailRedaction(cfg.Guardrail.RedactEmail))

	var gate *approval.Gate
	sessions := engine.NewSessionManager(func(s engine.Session) *engine.Orchestrator {
		return engine.NewOrchestrator(s, engine.Deps{
			Model:      model,
			Tools:      registry,
			Dispatcher: gate,
			Input:      input,
			Output:     output,
			Bucket:     ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond),
			Events:     recorder,
			KillSwitch: ks,
			Metrics:    metrics,
			Logger:     logger,
		})
	}, logger)

	// решения оператора возвращаются в сессию: напрямую или через Redis между инстансами
	var notifier approval.Notifier = sessions
	if rdb != nil {
		notifier = approval.NewRedisNotifier(rdb, infra.RedisChanApprovalDecisions)
		go sessions.ListenDecisions(ctx, rdb, infra.RedisChanApprovalDecisions)
	}
	gate = approval.NewGate(registry, approvals, logger,
		approval.WithNotifier(notifier),
		approval.WithEventSink(recorder),
		approval.WithToolCounter(metrics.ToolCalls),
	)

	wf := workflow.NewService(workflows, logger)
	if path := cfg.Workflow.DefinitionsPath; path != "" {
		defs, err := workflow.LoadDefinitions(path)
		if err != nil {
			return err
		}
		if _, err := wf.Seed(ctx, defs); err != nil {
			return err
		}
	}

	auditor := sentinel.NewAuditor(cfg.Sentinel.Thresholds)
	if cfg.Sentinel.Enabled {
		opts := []sentinel.WatcherOption{
			sentinel.WithAlertCounter(metrics.SentinelAlerts),
			sentinel.WithWindow(cfg.Sentinel.Window, cfg.Sentinel.Interval),
		}
		// без auto_block алерты только логируются и считаются
		if cfg.Sentinel.AutoBlock {
			opts = append(opts, sentinel.WithResponder(ks))
		}
		watcher := sentinel.NewWatcher(auditor, events, logger, opts...)
		go watcher.Run(ctx)
	}

	// 6. HTTP
	var validator auth.TokenValidator
	if cfg.Auth.Enabled {
		pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			return err
		}
		validator = auth.NewBaseValidator(pub)
	}

	console := server.NewConsoleServer(logger, validator, server.Handlers{
		Sessions:  handler.NewSessionHandler(sessions, wf, logger),
		Approvals: handler.NewApprovalHandler(gate),
		Workflows: handler.NewWorkflowHandler(wf),
		Agents:    handler.NewAgentHandler(ks, logger),
		Audit:     handler.NewAuditHandler(auditor, events, cfg.Sentinel.Window),
		Dashboard: handler.NewDashboardHandler(service.NewDashboardService(sessions, gate, ks, registry, logger)),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      console,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	for _, s := range []*http.Server{srv, metricsSrv} {
		go func(s *http.Server) {
			logger.Info("http server started", zap.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", s.Addr, err)
			}
		}(s)
	}

	// 7. Graceful shutdown
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	for _, s := range []*http.Server{srv, metricsSrv} {
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.String("addr", s.Addr), zap.Error(err))
		}
	}
	return runErr
}
