package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpAdapter "github.com/skald-lang/skald/internal/adapters/http"
	"github.com/skald-lang/skald/internal/cli"
	"github.com/skald-lang/skald/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP session server",
	Long:  `Hosts story bundles behind a JSON API: create sessions, pull events, choose, submit input, and snapshot or resume sessions against the configured store.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		addr, _ := cmd.Flags().GetString("addr")
		bundleDir, _ := cmd.Flags().GetString("bundles")

		cfg, err := cli.LoadServeConfig(configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		if cmd.Flags().Changed("addr") {
			cfg.Addr = addr
		}
		if cmd.Flags().Changed("bundles") {
			cfg.BundleDir = bundleDir
		}

		if err := runServe(cfg); err != nil {
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runServe(cfg cli.ServeConfig) error {
	logger := logging.New(slog.LevelInfo)

	bundles, err := cli.LoadBundleDir(cfg.BundleDir)
	if err != nil {
		return err
	}

	store, closeStore, err := cfg.Store.OpenStore()
	if err != nil {
		return err
	}
	defer closeStore()

	server := httpAdapter.NewServer(httpAdapter.Config{
		Bundles:   bundles,
		Store:     store,
		Locker:    cfg.Store.OpenLocker(),
		StepLimit: cfg.StepLimit,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Handler(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr, "bundles", cfg.BundleDir, "store", cfg.Store.Backend)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return err

	case sig := <-shutdown:
		logger.Info("shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown did not complete", "error", err)
			if err := srv.Close(); err != nil {
				return err
			}
		}
		logger.Info("server stopped")
		return nil
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("config", "c", "", "Path to a YAML server config")
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	serveCmd.Flags().StringP("bundles", "b", ".", "Directory of story bundles to host")
}
