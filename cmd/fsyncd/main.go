package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/marmos91/fsyncd/internal/logger"
	"github.com/marmos91/fsyncd/pkg/config"
	"github.com/marmos91/fsyncd/pkg/server"
	"github.com/marmos91/fsyncd/pkg/watch"
)

const usage = `fsyncd - remote filesystem server

Usage:
  fsyncd [start] [flags]     Start the server
  fsyncd init [flags]        Write the default configuration file

Run "fsyncd <command> -h" for the flags of a command.
`

func main() {
	args := os.Args[1:]
	command := "start"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	var err error
	switch command {
	case "start":
		err = runStart(args)
	case "init":
		err = runInit(args)
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "fsyncd: %v\n", err)
		os.Exit(1)
	}
}

// runInit handles "fsyncd init".
func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fs.Bool("force", false, "Overwrite an existing configuration file")
	configPath := fs.String("config", "", "Path to write (default: "+config.GetDefaultConfigPath()+")")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *configPath
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	if err := config.InitConfigToPath(path, *force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

// runStart handles "fsyncd start" and the bare invocation.
func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := fs.String("log-level", "", "Override the configured log level (DEBUG, INFO, WARN, ERROR)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("fsyncd starting (log level %s)", cfg.Logging.Level)

	reg, err := config.InitializeRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Error("Error closing storage: %v", err)
		}
	}()

	metricsResult := config.InitializeMetrics(cfg, reg.Healthcheck)

	var background sync.WaitGroup
	defer func() {
		stop()
		background.Wait()
	}()

	background.Add(1)
	go func() {
		defer background.Done()
		metricsResult.Run(ctx)
	}()

	if cfg.Watch.Enabled {
		w, err := watch.New(reg.Root(), reg.Bus())
		if err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		background.Add(1)
		go func() {
			defer background.Done()
			if err := w.Run(ctx); err != nil {
				logger.Error("Watcher error: %v", err)
			}
		}()
	}

	adapters, err := config.CreateAdapters(cfg, metricsResult.FsyncMetrics)
	if err != nil {
		return err
	}

	srv := server.New(reg)
	srv.SetShutdownTimeout(cfg.Server.ShutdownTimeout)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	err = srv.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
