package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pergus/netbox-zabbix/internal/audit"
	"github.com/pergus/netbox-zabbix/internal/config"
	"github.com/pergus/netbox-zabbix/internal/reconcile"
	"github.com/pergus/netbox-zabbix/internal/store"
	"github.com/pergus/netbox-zabbix/internal/zabbix"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	once := flag.Bool("once", false, "run a single reconcile cycle and exit")
	dryRun := flag.Bool("dry-run", false, "report what would change without modifying Zabbix")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("netbox-zabbix %s\n", version)
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	v, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Parse(v)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("netbox-zabbix starting", zap.String("version", version))
	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("source", f))
	} else {
		logger.Warn("no configuration file found, using defaults and environment")
	}

	db, err := store.Open(v.GetString("database.path"))
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := db.CheckVersion(ctx, version); err != nil {
		logger.Fatal("schema version check failed", zap.Error(err))
	}
	if err := db.Migrate(ctx, "store", store.Migrations()); err != nil {
		logger.Fatal("store migrations failed", zap.Error(err))
	}
	if err := db.Migrate(ctx, "audit", audit.Migrations()); err != nil {
		logger.Fatal("audit migrations failed", zap.Error(err))
	}
	logger.Info("database initialized", zap.String("path", v.GetString("database.path")))

	client := zabbix.NewClient(
		cfg.Zabbix.URL,
		cfg.Zabbix.Token,
		cfg.Zabbix.Timeout,
		cfg.Zabbix.Rate,
		logger.Named("zabbix"),
	)

	journal := audit.NewJournal(db.DB())
	orch := reconcile.NewOrchestrator(client, db, journal, cfg.Sync.Engine, logger.Named("reconcile"))

	mode, err := reconcile.ParseCompareMode(cfg.Sync.Engine.CompareMode)
	if err != nil {
		logger.Fatal("invalid compare mode", zap.Error(err))
	}

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	runCycle(ctx, db, orch, mode, *dryRun, logger)
	if *once || *dryRun {
		return
	}

	ticker := time.NewTicker(cfg.Sync.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
			runCycle(ctx, db, orch, mode, false, logger)
		}
	}
}

// runCycle reconciles every enabled host configuration sequentially. The
// sequential walk guarantees at most one in-flight operation per host. In
// dry-run mode each host is previewed and the pending change logged instead.
func runCycle(ctx context.Context, db *store.Store, orch *reconcile.Orchestrator, mode reconcile.CompareMode, dryRun bool, logger *zap.Logger) {
	configs, err := db.ListEnabledHostConfigs(ctx)
	if err != nil {
		logger.Error("failed to list host configurations", zap.Error(err))
		return
	}
	rules, err := db.Rules(ctx)
	if err != nil {
		logger.Error("failed to load mapping rules", zap.Error(err))
		return
	}
	logger.Info("reconcile cycle started", zap.Int("hosts", len(configs)))

	var created, updated, inSync, failed int
	for i := range configs {
		if ctx.Err() != nil {
			return
		}
		var outcome reconcile.Outcome
		var err error
		if dryRun {
			var diff *reconcile.DiffResult
			outcome, diff, err = orch.Preview(ctx, &configs[i], rules, mode)
			if err == nil && outcome == reconcile.OutcomeUpdated {
				logger.Info("pending change",
					zap.String("host", configs[i].Name),
					zap.Any("local_only", diff.LocalOnly),
					zap.Any("remote_only", diff.RemoteOnly),
				)
			}
		} else {
			outcome, err = orch.Reconcile(ctx, &configs[i], rules, mode)
		}
		if err != nil {
			failed++
			// Configuration errors need operator action; retrying at the next
			// interval produces the same result, so flag them.
			var cfgErr *reconcile.ConfigurationError
			logger.Warn("host reconciliation failed",
				zap.String("host", configs[i].Name),
				zap.Bool("needs_operator", errors.As(err, &cfgErr)),
				zap.Error(err),
			)
			continue
		}
		switch outcome {
		case reconcile.OutcomeCreated:
			created++
		case reconcile.OutcomeUpdated:
			updated++
		case reconcile.OutcomeInSync:
			inSync++
		}
	}

	logger.Info("reconcile cycle finished",
		zap.Int("created", created),
		zap.Int("updated", updated),
		zap.Int("in_sync", inSync),
		zap.Int("failed", failed),
	)
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics listener started", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener failed", zap.Error(err))
	}
}
