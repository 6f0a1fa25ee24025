package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnicolasvega/taskcommander/pkg/commander"
	"github.com/mnicolasvega/taskcommander/pkg/config"
	"github.com/mnicolasvega/taskcommander/pkg/log"
	"github.com/mnicolasvega/taskcommander/pkg/metrics"
	"github.com/mnicolasvega/taskcommander/pkg/runtime"
	"github.com/mnicolasvega/taskcommander/pkg/state"

	_ "github.com/mnicolasvega/taskcommander/tasks"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "taskcommander",
	Short:   "Task Commander - periodic task orchestrator",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"taskcommander version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "taskcommander.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the taskcommander version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("taskcommander version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Commander scheduling loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if v := cmd.Flags().Changed("log-level"); v {
			level, _ := cmd.Flags().GetString("log-level")
			cfg.LogLevel = level
		}

		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogFormat == "json"})
		mainLog := log.WithComponent("main")

		store, err := state.Open(cfg.WorkDir, cfg.StatePath)
		if err != nil {
			return fmt.Errorf("open state store: %w", err)
		}
		defer store.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		rt, err := runtime.NewDockerRuntime(ctx, cfg.DockerHost)
		if err != nil {
			metrics.RegisterComponent("container_engine", false, err.Error())
			return fmt.Errorf("connect to container engine: %w", err)
		}
		metrics.SetVersion(Version)
		metrics.RegisterComponent("container_engine", true, "connected")
		metrics.RegisterComponent("state_store", true, "open")

		cmdr, err := commander.New(cfg, rt, store)
		if err != nil {
			return fmt.Errorf("build commander: %w", err)
		}

		if err := cmdr.Start(ctx); err != nil {
			return fmt.Errorf("start commander: %w", err)
		}
		mainLog.Info().Str("metrics_addr", cfg.MetricsAddr).Msg("commander running")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				mainLog.Error().Err(err).Msg("metrics server failed")
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		mainLog.Info().Msg("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		cmdr.Shutdown(shutdownCtx)
		_ = metricsServer.Close()
		mainLog.Info().Msg("shutdown complete")
		return nil
	},
}
