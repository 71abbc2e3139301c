package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/norddata-io/mittsev/internal/buffer"
	"github.com/norddata-io/mittsev/internal/config"
	"github.com/norddata-io/mittsev/internal/health"
	"github.com/norddata-io/mittsev/internal/lib/logger/sl"
	"github.com/norddata-io/mittsev/internal/poller"
	"github.com/norddata-io/mittsev/internal/sev"
	"github.com/norddata-io/mittsev/internal/sink"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dryRun := flag.Bool("dry-run", false, "log readings instead of publishing")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	log := sl.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	log.Info("starting mitt sev collector",
		slog.String("env", cfg.Env),
		slog.Int("accounts", len(cfg.Accounts)),
		slog.Bool("dry_run", *dryRun),
	)

	// Use LogSink for dry-run mode, the configured sink otherwise
	var readingSink sink.Sink
	if *dryRun || cfg.Sink.Type == "log" {
		readingSink = sink.NewLogSink(log)
		if *dryRun {
			log.Info("dry-run mode: readings will be logged instead of published")
		}
	} else {
		readingSink = sink.NewHomeAssistantSink(log, &cfg.Sink.HomeAssistant)
	}

	var buf buffer.Buffer
	if cfg.Buffer.Enabled && !*dryRun {
		var err error
		buf, err = buffer.NewSQLiteBuffer(log, cfg.Buffer.Path)
		if err != nil {
			log.Error("failed to create buffer", sl.Err(err))
			os.Exit(1)
		}
		log.Info("buffer enabled", slog.String("path", cfg.Buffer.Path))
	}

	pollers := make([]*poller.MeteringPoller, 0, len(cfg.Accounts))
	for _, account := range cfg.Accounts {
		client := sev.NewClient(log, &cfg.SEV, account)
		pollers = append(pollers, poller.New(
			log,
			account,
			client,
			readingSink,
			buf,
			cfg.Polling,
			cfg.Buffer.Enabled,
		))
	}

	healthServer := health.NewServer(log, cfg.Health.Address)

	healthServer.AddChecker(health.NewSinkHealthChecker(readingSink.Health))

	if buf != nil {
		if sqliteBuf, ok := buf.(*buffer.SQLiteBuffer); ok {
			healthServer.AddChecker(health.NewBufferHealthChecker(sqliteBuf.Count))
		}
	}

	for i, p := range pollers {
		healthServer.AddChecker(health.NewPollerHealthChecker(
			cfg.Accounts[i].Name,
			func() (time.Time, string, int) {
				state := p.State()
				return state.LastSuccess, state.LastError, state.ConsecutiveFailures
			},
		))
	}

	if err := healthServer.Start(); err != nil {
		log.Error("failed to start health server", sl.Err(err))
		os.Exit(1)
	}

	manager := poller.NewManager(log, cfg, pollers, readingSink, buf)

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	manager.Start(ctx)

	sig := <-sigCh
	log.Info("received signal, shutting down", slog.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	manager.Stop()

	if err := healthServer.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop health server", sl.Err(err))
	}

	if buf != nil {
		if err := buf.Close(); err != nil {
			log.Error("failed to close buffer", sl.Err(err))
		}
	}

	log.Info("collector stopped")
}
