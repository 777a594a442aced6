// Command a11yd runs the accessibility analysis API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quietfield/a11yd/internal/app"
	"github.com/quietfield/a11yd/internal/auditor"
	"github.com/quietfield/a11yd/internal/auth"
	"github.com/quietfield/a11yd/internal/browser"
	"github.com/quietfield/a11yd/internal/config"
	"github.com/quietfield/a11yd/internal/observability"
	"github.com/quietfield/a11yd/internal/server"
	"github.com/quietfield/a11yd/internal/store"
)

const version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:           "a11yd",
		Short:         "WCAG accessibility analysis server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a11yd.yaml")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the a11yd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("a11yd", version)
		},
	}

	root.AddCommand(serveCmd, versionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	observability.InitializeLogger(cfg.Logger)
	defer observability.Sync()
	logger := observability.GetLogger()

	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return err
	}

	driver := browser.NewChromeDriver(cfg.Browser, logger)
	defer driver.Close()

	aud, err := auditor.New(cfg.Auditor, driver, logger)
	if err != nil {
		return err
	}

	orch := app.NewOrchestrator(driver, aud, st, logger)
	srv := server.NewServer(cfg.Server, version, orch, st, tokens, logger)
	httpServer := srv.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
