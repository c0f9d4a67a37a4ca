package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/eugenenazirov/appshell/internal/application"
	"github.com/eugenenazirov/appshell/internal/bundle"
	"github.com/eugenenazirov/appshell/internal/cli"
	"github.com/eugenenazirov/appshell/internal/config"
	"github.com/eugenenazirov/appshell/internal/logging"
)

const (
	exitOK      = 0
	exitFailure = 255
)

var (
	signalNotify = signal.Notify
	exit         = os.Exit
)

func main() {
	exit(run(os.Args, os.Stderr))
}

// run executes the startup sequence and returns the process exit code.
func run(args []string, usage io.Writer) int {
	bootstrap, err := logging.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return exitFailure
	}
	defer func() {
		_ = bootstrap.Sync()
	}()

	opts, err := cli.NewParser(usage).Parse(args[1:])
	if err != nil {
		bootstrap.Error("invalid command line", zap.Error(err))
		return exitFailure
	}
	if opts.Help {
		return exitOK
	}

	env, err := config.LoadEnvironment()
	if err != nil {
		bootstrap.Error("failed to read environment", zap.Error(err))
		return exitFailure
	}

	source, err := newSource(config.DetectMode(args[0]), env, args[0])
	if err != nil {
		bootstrap.Error("failed to locate configuration", zap.Error(err))
		return exitFailure
	}

	resolver := config.NewResolver(source, bootstrap)
	cfg, err := resolver.Resolve(env, opts.EnvOverride)
	if err != nil {
		bootstrap.Error("failed to load configuration", zap.Error(err))
		return exitFailure
	}

	registry, err := logging.Apply(cfg.LogDocument)
	if err != nil {
		bootstrap.Error("failed to apply logging configuration",
			zap.String("path", cfg.LoggingLocation),
			zap.Error(err),
		)
		return exitFailure
	}
	defer registry.Close()
	logger := registry.Root()

	app, err := application.New(application.Options{
		Backend:  opts.Backend,
		BindHost: env.BindHost,
		Config:   cfg,
		Reload: func() (config.Resolved, error) {
			return resolver.Resolve(env, opts.EnvOverride)
		},
		Loggers: registry,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialize application", zap.Error(err))
		return exitFailure
	}

	ctx, stop := signalContext(context.Background())
	defer stop()

	if err := app.Run(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return exitFailure
	}
	logger.Info("server stopped")
	return exitOK
}

// newSource picks the embedded bundle in archive mode and the directory
// holding config/ otherwise.
func newSource(mode config.LaunchMode, env config.Environment, invocation string) (config.Source, error) {
	if mode == config.ArchiveMode {
		return config.BundleSource{FS: bundle.FS()}, nil
	}
	root, err := config.RootDir(env.Root, invocation)
	if err != nil {
		return nil, err
	}
	return config.NewDirectorySource(root)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(quit)
		cancel()
	}
}
