package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kalambet/seodata/internal/api"
	"github.com/kalambet/seodata/internal/dashboard"
	"github.com/kalambet/seodata/internal/engine"
	"github.com/kalambet/seodata/internal/jobs"
	"github.com/kalambet/seodata/internal/schedule"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, dashboard, scheduled puller and upload worker (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		noSchedule, _ := cmd.Flags().GetBool("no-schedule")
		return runServer(noSchedule)
	},
}

func init() {
	serveCmd.Flags().Bool("no-schedule", false, "do not run the scheduled GSC pull")
}

func runServer(noSchedule bool) error {
	log.WithField("version", version).Info("Starting seodata")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg)
	defer a.Close()

	if cfg.Inference.Backend == engine.BackendOllama {
		if err := a.ensureModels(ctx); err != nil {
			return err
		}
	}

	ledger, err := a.runLedger()
	if err != nil {
		return err
	}
	store, err := a.blobStore(ctx)
	if err != nil {
		return err
	}
	resp, err := a.responder(ctx)
	if err != nil {
		return err
	}
	up, err := a.uploader(ctx)
	if err != nil {
		return err
	}
	loader, err := a.dashboardLoader(ctx)
	if err != nil {
		return err
	}

	var background []func(context.Context)

	if !noSchedule {
		p, err := a.puller(ctx)
		if err != nil {
			return err
		}
		runner, err := schedule.New("gsc-pull", cfg.Puller.Schedule, p.Run)
		if err != nil {
			return err
		}
		log.WithField("next", runner.Next(time.Now())).Info("GSC pull scheduled")
		background = append(background, runner.Run)
	}

	worker := jobs.NewWorker(ledger, up, 500*time.Millisecond)
	background = append(background, worker.Run)

	if cfg.Server.APIToken == "" {
		log.Warn("server.api_token is empty, API routes are unauthenticated")
	}
	handler := api.NewHandler(api.Deps{
		Responder: resp,
		Uploader:  up,
		Reports:   store,
		Runs:      ledger,
		Jobs:      ledger,
		Dashboard: dashboard.NewHandler(loader).Routes(),
		Token:     cfg.Server.APIToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	done := make(chan struct{}, len(background))
	for _, run := range background {
		go func() {
			run(ctx)
			done <- struct{}{}
		}()
	}

	if cfg.Server.MCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Responder: resp,
			Reports:   store,
			Uploader:  up,
			Version:   version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("MCP stdio server error")
			}
		}()
		log.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("seodata listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("server error: %w", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}

	// The scheduler waits for an in-flight pull; the worker for its job.
	for range background {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			log.Warn("Background tasks did not stop in time")
			return serveErr
		}
	}
	return serveErr
}
