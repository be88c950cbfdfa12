package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/justin4957/fleetwatch/internal/alerting"
	"github.com/justin4957/fleetwatch/internal/analyzer"
	"github.com/justin4957/fleetwatch/internal/config"
	"github.com/justin4957/fleetwatch/internal/dashboard"
	"github.com/justin4957/fleetwatch/internal/parser"
	"github.com/justin4957/fleetwatch/internal/stream"
	"github.com/justin4957/fleetwatch/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

type app struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "fleetwatch",
		Short:         "Fleet telemetry anomaly detection",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			setupLogging(cfg.Logging)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "config.yaml", "path to the YAML config file")

	root.AddCommand(newServeCmd(a), newScanCmd(a), newTypesCmd())
	return root
}

// setupLogging configures the global logger. With logging.file set, JSON
// records are also written to a size-rotated file.
func setupLogging(cfg config.LoggingConfig) {
	var out io.Writer = os.Stderr
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	if cfg.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Watch the fleet snapshot and serve the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	logger := log.Logger

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var publisher analyzer.Publisher = alerting.NopPublisher{}
	if cfg.Alerting.Enabled {
		redisPublisher, err := alerting.NewRedisPublisher(ctx, cfg.Alerting, logger)
		if err != nil {
			return err
		}
		defer redisPublisher.Close()
		publisher = redisPublisher
	}

	engine := analyzer.NewEngine(cfg.Detector,
		analyzer.WithLogger(logger.With().Str("component", "engine").Logger()),
		analyzer.WithMetrics(analyzer.NewMetrics(reg)),
		analyzer.WithPublisher(publisher),
	)

	snapshots := stream.NewSnapshotStream(cfg.Snapshot.Path, cfg.Snapshot.Format, cfg.Snapshot.SnapshotPoll(), logger)
	server := dashboard.NewServer(cfg.Dashboard, engine, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger)

	snapshotCh := make(chan *models.FleetSnapshot, 4)
	eventCh := make(chan interface{}, 100)

	log.Info().
		Str("snapshot", cfg.Snapshot.Path).
		Int("workers", cfg.Detector.ScanWorkers).
		Bool("alerting", cfg.Alerting.Enabled).
		Msg("starting fleetwatch")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return snapshots.Start(gctx, snapshotCh)
	})
	g.Go(func() error {
		engine.Start(gctx, snapshotCh, eventCh)
		return nil
	})
	g.Go(func() error {
		return server.Start(gctx, eventCh)
	})

	err := g.Wait()
	log.Info().Msg("fleetwatch stopped")
	return err
}

// scanReport is the output of a one-shot scan
type scanReport struct {
	Anomalies  []models.DetectedAnomaly `json:"anomalies"`
	Statistics models.AnomalyStatistics `json:"statistics"`
	Errors     []string                 `json:"errors,omitempty"`
}

func newScanCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "scan FILE",
		Short: "Scan one fleet snapshot and print the anomalies as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.scan(cmd.OutOrStdout(), args[0], format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "snapshot format (json or yaml), detected from the extension when empty")
	return cmd
}

func (a *app) scan(out io.Writer, path, format string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if format == "" {
		format = parser.DetectFormat(path)
	}
	snapshot, err := parser.NewParser(format).Parse(data)
	if err != nil {
		return err
	}

	engine := analyzer.NewEngine(a.cfg.Detector, analyzer.WithLogger(log.Logger))
	report := scanReport{}
	report.Anomalies, err = engine.DetectFleetAnomalies(snapshot.Vehicles, snapshot)
	if err != nil {
		log.Warn().Err(err).Msg("scan completed with errors")
		report.Errors = append(report.Errors, err.Error())
	}
	report.Statistics = engine.GetStatistics()

	return writeJSON(out, report)
}

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the anomaly type catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), analyzer.ListTypes())
		},
	}
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
