package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"factorycore/internal/config"
	"factorycore/internal/core"
	"factorycore/internal/httpapi"
	"factorycore/internal/logging"
	"factorycore/internal/resolvers/git"
	"factorycore/pkg/domain"
)

type serveFlags struct {
	envFiles       []string
	usersFile      string
	workspacesFile string
	trace          bool
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the factory HTTP API",
		Long: `Run the factory HTTP API configured from FACTORY_* environment
variables and optional .env files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.envFiles, "env-file", nil, ".env files to load (default .env)")
	cmd.Flags().StringVar(&flags.usersFile, "users", "", "JSON object mapping user ids to user names")
	cmd.Flags().StringVar(&flags.workspacesFile, "workspaces", "", "JSON object mapping workspace ids to workspace configs")
	cmd.Flags().BoolVar(&flags.trace, "trace", false, "write one JSON trace line per operation to stderr")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, flags serveFlags) error {
	cfg, err := config.Load(flags.envFiles...)
	if err != nil {
		return err
	}

	zl, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := logging.NewAdapter(zl)

	storage, err := core.OpenPersistentStore(ctx, cfg.Storage())
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			logger.Warn("storage close failed", "error", err.Error())
		}
	}()

	svc, reg, err := buildService(cfg, storage, logger, flags, cmd)
	if err != nil {
		return err
	}

	e := httpapi.New(svc,
		httpapi.WithJWTSecret(cfg.JWTSecret),
		httpapi.WithMetricsGatherer(reg),
		httpapi.WithLogger(logger),
	)
	logger.Info("factoryd listening",
		"addr", cfg.HTTPAddr,
		"storage", string(storage.Driver),
		"blobs", storage.Blobs != nil,
		"auth", cfg.JWTSecret != "",
	)
	if err := httpapi.Serve(ctx, e, cfg.HTTPAddr, cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("factoryd stopped")
	return nil
}

func buildService(cfg *config.Config, storage *core.Storage, logger core.Logger, flags serveFlags, cmd *cobra.Command) (*core.Service, *prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	users := map[string]string{}
	if err := readJSONFile(flags.usersFile, &users); err != nil {
		return nil, nil, err
	}
	workspaces := map[string]domain.WorkspaceConfig{}
	if err := readJSONFile(flags.workspacesFile, &workspaces); err != nil {
		return nil, nil, err
	}
	wsDir := core.NewWorkspaceDirectory()
	for id, ws := range workspaces {
		wsDir.Put(id, ws)
	}

	opts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithAuditRecorder(core.NewLoggerAuditRecorder(logger)),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{prom, core.NewExpvarMetricsRecorder("")}),
		core.WithResolvers(git.New(cfg.GitHosts...)),
		core.WithUserLookup(core.NewUserDirectory(users)),
		core.WithWorkspaceLookup(wsDir),
		core.WithBaseURL(cfg.BaseURL),
	}
	if flags.trace {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(cmd.ErrOrStderr())))
	}
	return core.NewService(storage.Store, opts...), reg, nil
}

func readJSONFile(path string, into any) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
