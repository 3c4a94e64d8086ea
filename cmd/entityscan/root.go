package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/japaniel/entityscan/pkg/config"
	"github.com/japaniel/entityscan/pkg/logging"
)

const metricsPath = "/metrics"

// app carries what every sub-command needs once the root command has loaded
// the settings.
type app struct {
	v        *viper.Viper
	cfgFile  string
	settings *config.Settings
	logger   *zap.Logger

	// registry is nil unless metrics.addr is set.
	registry *prometheus.Registry
	metrics  *http.Server

	bindings map[*cobra.Command][]map[string]string
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "entityscan",
		Short:         "Find, resolve and emit the named entities mentioned in documents",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipSetup"] == "true" {
				return nil
			}
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "Path to a YAML config file (default ./"+config.DefaultConfigFile+" when present)")
	pf.String("db", a.v.GetString("db.path"), "Path to SQLite database")
	pf.String("log-level", a.v.GetString("log.level"), "Log level: debug, info, warn, error")
	pf.String("log-file", a.v.GetString("log.file"), "Also write JSON logs to this rotated file")
	pf.String("metrics-addr", a.v.GetString("metrics.addr"), "Serve Prometheus metrics on this address, e.g. :9090")
	bindFlags(a.v, pf, map[string]string{
		"db.path":      "db",
		"log.level":    "log-level",
		"log.file":     "log-file",
		"metrics.addr": "metrics-addr",
	})

	root.AddCommand(
		analyzeCommand(a),
		ingestCommand(a),
		geonamesCommand(a),
		settingsCommand(a),
		versionCommand(),
	)
	return root
}

// bindFlags binds viper keys to flags. Only flags set on the command line
// override the other sources.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		f := fs.Lookup(name)
		if f == nil {
			panic(fmt.Sprintf("flag %q is not defined", name))
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(fmt.Sprintf("bind flag %q: %v", name, err))
		}
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	for _, keys := range a.bindings[cmd] {
		bindFlags(a.v, cmd.Flags(), keys)
	}
	settings, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.settings = settings

	logger, err := logging.New(logging.Options{
		File:       settings.Log.File,
		Level:      settings.Log.Level,
		Production: settings.Log.Production,
		Console:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.logger = logger

	if settings.Metrics.Addr != "" {
		if err := a.serveMetrics(settings.Metrics.Addr); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) teardown() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to stop metrics server", zap.Error(err))
		}
		a.metrics = nil
	}
	_ = a.logger.Sync()
}

func (a *app) serveMetrics(addr string) error {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{
		Registry:      a.registry,
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()), zap.String("path", metricsPath))
	return nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipSetup": "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "entityscan %s\n", version)
		},
	}
}
