// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Command configurator serves a configuration tree over gNMI.
//
// Settings come from flags, CONFAPI_* environment variables and an
// optional configuration file, in that order of precedence:
//
//	configurator --listen :57400 --schema tree.yaml --agent Agt_A=agt_a.yaml
//	CONFAPI_BACKUP_DB=/var/lib/confapi/backups.db configurator
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/netascode/go-confapi/confdb"
	"github.com/netascode/go-confapi/logging"
	"github.com/netascode/go-confapi/server"
)

const (
	keyConfig        = "config"
	keyListen        = "listen"
	keyMetricsListen = "metrics-listen"
	keySchema        = "schema"
	keyAgent         = "agent"
	keyBackupDir     = "backup-dir"
	keyBackupDB      = "backup-db"
	keyLogLevel      = "log-level"
	keyNoDefault     = "no-default-schema"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "configurator",
		Short:         "Serve a configuration tree over gNMI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadSettings(v, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, v)
		},
	}
	addTreeFlags(cmd.PersistentFlags())
	cmd.Flags().String(keyListen, ":57400", "gNMI listen address")
	cmd.Flags().String(keyMetricsListen, "", "Prometheus listen address (disabled when empty)")
	cmd.Flags().StringToString(keyAgent, nil, "in-memory agent as name=fixture.yaml (repeatable)")
	cmd.Flags().String(keyBackupDir, "", "directory for file backups (default: a temporary directory)")
	cmd.Flags().String(keyBackupDB, "", "bbolt database for backups; overrides --backup-dir")

	cmd.AddCommand(newExportCommand(v), newPrintCommand(v))
	return cmd
}

func addTreeFlags(fs *pflag.FlagSet) {
	fs.String(keyConfig, "", "configuration file of the configurator itself (YAML or TOML)")
	fs.StringSlice(keySchema, nil, "tree configuration files to apply, in order")
	fs.Bool(keyNoDefault, false, "do not register the built-in objects")
	fs.String(keyLogLevel, "info", "log level (debug, info, warn, error)")
}

// loadSettings binds fs to v, then reads CONFAPI_* variables and the
// configuration file named by --config
func loadSettings(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return err
	}
	v.SetEnvPrefix("CONFAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}
	return nil
}

func newLogger(v *viper.Viper) (*logging.ZapLogger, error) {
	level, err := logging.ParseLevel(v.GetString(keyLogLevel))
	if err != nil {
		return nil, err
	}
	return logging.NewProductionZap(level)
}

// openTree creates the database and applies the schema files
func openTree(ctx context.Context, v *viper.Viper, logger logging.Logger, opts ...confdb.Option) (*confdb.DB, error) {
	db := confdb.New(append([]confdb.Option{confdb.WithLogger(logger)}, opts...)...)
	if !v.GetBool(keyNoDefault) {
		cfg, err := confdb.DefaultSchema()
		if err != nil {
			return nil, err
		}
		if err := db.Apply(ctx, cfg); err != nil {
			return nil, err
		}
	}
	for _, path := range v.GetStringSlice(keySchema) {
		if err := db.LoadConfigFile(ctx, path); err != nil {
			return nil, err
		}
		logger.Info(ctx, "configuration applied", "file", path)
	}
	return db, nil
}

func backupStore(v *viper.Viper) (confdb.BackupStore, error) {
	if path := v.GetString(keyBackupDB); path != "" {
		return confdb.OpenBoltBackupStore(path)
	}
	dir := v.GetString(keyBackupDir)
	if dir == "" {
		var err error
		if dir, err = os.MkdirTemp("", "configurator-backups-"); err != nil {
			return nil, err
		}
	}
	return confdb.NewFileBackupStore(dir), nil
}

func attachAgents(ctx context.Context, db *confdb.DB, agents map[string]string) error {
	for name, path := range agents {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		a, err := confdb.LoadMemAgent(name, f)
		f.Close() //nolint:errcheck
		if err != nil {
			return fmt.Errorf("agent %s: %w", name, err)
		}
		if err := db.AttachAgent(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func serve(ctx context.Context, v *viper.Viper) error {
	logger, err := newLogger(v)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := backupStore(v)
	if err != nil {
		return err
	}
	db, err := openTree(ctx, v, logger, confdb.WithBackupStore(store))
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	if err := attachAgents(ctx, db, v.GetStringMapString(keyAgent)); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv := server.New(db, server.WithLogger(logger), server.WithMetrics(server.NewMetrics(reg)))

	lis, err := net.Listen("tcp", v.GetString(keyListen))
	if err != nil {
		return err
	}
	g := grpc.NewServer()
	srv.Register(g)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info(ctx, "serving gNMI", "address", lis.Addr().String())
		return g.Serve(lis)
	})

	var metrics *http.Server
	if addr := v.GetString(keyMetricsListen); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		eg.Go(func() error {
			logger.Info(ctx, "serving metrics", "address", addr)
			if err := metrics.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	eg.Go(func() error {
		<-ctx.Done()
		logger.Info(ctx, "shutting down")
		g.GracefulStop()
		if metrics != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metrics.Shutdown(sctx)
		}
		return nil
	})
	return eg.Wait()
}
