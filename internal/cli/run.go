package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wikid/internal/config"
	"wikid/internal/data"
	"wikid/internal/fts"
	"wikid/internal/handler"
	"wikid/internal/logger"
	"wikid/internal/service"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the wiki server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			log := logger.New(cfg.Log, os.Stderr)
			return runServer(cfg, log)
		},
	}
}

func runServer(cfg *config.Config, log logger.Logger) error {
	log.Info("Opening store...")
	store, err := data.Open(cfg.Store.DBFile, cfg.Store.AssetDir, time.Duration(cfg.Lock.TTLSeconds)*time.Second)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	index, err := fts.Open(cfg.Store.FTSFile)
	if err != nil {
		return fmt.Errorf("failed to open full-text index: %w", err)
	}
	defer index.Close()

	svc := service.New(store, index, log, service.Config{
		TemplatePrefix: cfg.Page.TemplatePrefix,
		MaxUploadBytes: cfg.Asset.MaxUploadBytes,
	})

	if err := svc.SweepOrphans(); err != nil {
		log.Error(err, "Orphan sweep failed")
	}

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go svc.RunReaper(reaperCtx, time.Duration(cfg.Lock.ReapSeconds)*time.Second)

	router := handler.NewRouter(svc, log)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.Server.TLS.Enabled {
			log.Info(fmt.Sprintf("Starting HTTPS server on %s", server.Addr))
			errCh <- server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			log.Info(fmt.Sprintf("Starting HTTP server on %s", server.Addr))
			errCh <- server.ListenAndServe()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-quit:
		log.Warn("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
	}
	log.Info("Server exiting")
	return nil
}
