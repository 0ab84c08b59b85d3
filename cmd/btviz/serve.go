package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/btviz/internal/api"
	"github.com/newthinker/btviz/internal/app"
	"github.com/newthinker/btviz/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	serveDataset   string
	serveWatch     bool
	serveTemplates string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the btviz server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveDataset, "dataset", "", "backtest file to open on startup")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload --dataset when the file changes")
	serveCmd.Flags().StringVar(&serveTemplates, "templates", "", "template directory (defaults to the embedded templates)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveWatch && serveDataset == "" {
		return fmt.Errorf("--watch requires --dataset")
	}

	log := newLogger()
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	var opts []app.Option
	metricsPath := ""
	if cfg.Metrics.Enabled {
		opts = append(opts, app.WithMetrics(metrics.NewRegistry()))
		metricsPath = cfg.Metrics.Path
	}
	a, err := app.New(cfg, log, opts...)
	if err != nil {
		return fmt.Errorf("creating app: %w", err)
	}
	defer a.Close()

	if err := a.RegisterConfiguredNotifiers(); err != nil {
		return fmt.Errorf("registering notifiers: %w", err)
	}

	server, err := api.NewServer(api.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		APIKey:       cfg.Server.APIKey,
		TemplatesDir: serveTemplates,
		MetricsPath:  metricsPath,
	}, a, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	var sessionID string
	if serveDataset != "" {
		s, err := a.LoadFile(serveDataset)
		if err != nil {
			return fmt.Errorf("loading %s: %w", serveDataset, err)
		}
		sessionID = s.ID
		log.Info("dataset loaded",
			zap.String("session", s.ID),
			zap.String("url", fmt.Sprintf("http://%s/sessions/%s", cfg.Server.Addr(), s.ID)),
		)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)

	group.Go(server.Start)
	group.Go(func() error {
		if err := a.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if serveWatch {
		group.Go(func() error {
			if err := a.Watch(ctx, sessionID, serveDataset); err != nil {
				log.Warn("dataset watch stopped", zap.Error(err))
			}
			return nil
		})
	}
	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down btviz server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
