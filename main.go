package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tutortoise/catascan-service/classification"
	"github.com/Tutortoise/catascan-service/config"
	"github.com/Tutortoise/catascan-service/logging"
	"github.com/Tutortoise/catascan-service/metrics"
	"github.com/Tutortoise/catascan-service/store"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

type cliOptions struct {
	configFile string
	debug      bool
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	opts := &cliOptions{}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the prediction HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	rootCmd := &cobra.Command{
		Use:          "catascan",
		Short:        "Cataract classification service for fundus images",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         serveCmd.RunE,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging and timing output")

	rootCmd.AddCommand(
		serveCmd,
		&cobra.Command{
			Use:   "predict [image]",
			Short: "Classify a single image and print the result",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runPredict(cmd.Context(), opts, args[0])
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the Results table",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(opts)
			},
		},
	)

	return rootCmd
}

// load reads configuration and installs the default logger. The returned
// func closes the log file, if any.
func (o *cliOptions) load() (*config.Config, *slog.Logger, func() error, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, nil, nil, err
	}
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, nil, err
	}
	if o.debug {
		cfg.Debug = true
	}

	out, closeLog := logging.Output(cfg.Log, os.Stderr)
	logger := logging.New(cfg.Log, cfg.Debug, out)
	slog.SetDefault(logger)
	return cfg, logger, closeLog, nil
}

func newClassifier(cfg *config.Config, v classification.Variant, model classification.Inferencer, logger *slog.Logger) *classification.Classifier {
	opts := []classification.Option{classification.WithLogger(logging.Module(logger, "classification"))}
	if cfg.Cache.Enabled {
		opts = append(opts, classification.WithResultCache(cfg.Cache.TTL))
	}
	return classification.NewClassifier(v, classification.NewPreprocessor(v, cfg.Preprocess.Normalize), model, opts...)
}

func runServe(ctx context.Context, opts *cliOptions) error {
	cfg, logger, closeLog, err := opts.load()
	if err != nil {
		return err
	}
	defer closeLog()
	log := logging.Module(logger, "server")
	log.Info("starting catascan", "cpu_features", cpuFeatures(), "host", hostInfo(log))

	db, err := store.Open(cfg.Database, logging.Module(logger, "store"))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	variant, err := classification.LookupVariant(cfg.Model.Variant)
	if err != nil {
		return err
	}
	rt, err := loadModel(cfg.Model, variant, cfg.Model.PoolSize, logging.Module(logger, "pool"))
	if err != nil {
		return err
	}
	defer rt.Close()

	m, err := metrics.New()
	if err != nil {
		return err
	}
	if err := m.RegisterPool(rt.Pool.Snapshot); err != nil {
		return err
	}

	state := &AppState{
		Config:     cfg,
		Classifier: newClassifier(cfg, variant, rt.Pool, logger),
		Store:      db,
		Uploads:    NewUploadStore(cfg.Upload.Dir, cfg.Server.PublicURL, cfg.Upload.UniqueNames),
		Metrics:    m,
		Pool:       rt.Pool,
		Logger:     log,
	}

	srv := &http.Server{
		Handler:      newRouter(state),
		Addr:         cfg.Server.Addr(),
		WriteTimeout: cfg.Server.WriteTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr, "variant", variant.Name, "backend", cfg.Model.Backend)
		errCh <- srv.ListenAndServe()
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		log.Info("shutting down", "reason", ctx.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}
	return nil
}

func runPredict(ctx context.Context, opts *cliOptions, imagePath string) error {
	cfg, logger, closeLog, err := opts.load()
	if err != nil {
		return err
	}
	defer closeLog()
	if ctx == nil {
		ctx = context.Background()
	}

	variant, err := classification.LookupVariant(cfg.Model.Variant)
	if err != nil {
		return err
	}
	rt, err := loadModel(cfg.Model, variant, 1, logging.Module(logger, "pool"))
	if err != nil {
		return err
	}
	defer rt.Close()

	prediction, err := newClassifier(cfg, variant, rt.Pool, logger).ClassifyFile(ctx, imagePath, nil)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(PredictResponse{
		Prediction:       prediction.Label,
		Explanation:      prediction.Explanation,
		ConfidenceScores: prediction.Confidence,
	})
}

func runMigrate(opts *cliOptions) error {
	cfg, logger, closeLog, err := opts.load()
	if err != nil {
		return err
	}
	defer closeLog()
	db, err := store.Open(cfg.Database, logging.Module(logger, "store"))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}
	logger.Info("migration complete", "driver", db.Driver())
	return nil
}
