// Command hotmod runs a module host: it loads the modules declared in a
// configuration directory, hot reloads them when their source changes,
// and shuts them down cleanly on SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/hotmod/pkg/hotmod"
	"github.com/randalmurphal/hotmod/pkg/hotmod/config"
	"github.com/randalmurphal/hotmod/pkg/hotmod/luamod"
	"github.com/randalmurphal/hotmod/pkg/hotmod/observability"
	"github.com/randalmurphal/hotmod/pkg/hotmod/registry"
	"github.com/randalmurphal/hotmod/pkg/hotmod/resource"
	"github.com/randalmurphal/hotmod/pkg/hotmod/webhook"
)

var version = "dev"

var (
	configDir   string
	noHotReload bool
	webhookURL  string
)

var rootCmd = &cobra.Command{
	Use:     "hotmod",
	Short:   "Run a host for hot-reloadable modules",
	Long: `hotmod loads the modules declared in a configuration directory,
watches their source files, and reloads them in place when the files
change. A reload that fails rolls back to the previous version.`,
	Version: version,
	RunE:    runHost,
}

var testsCmd = &cobra.Command{
	Use:   "tests",
	Short: "List the test files declared by configured modules",
	RunE:  listTests,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", "config",
		"configuration directory containing main.yaml")
	rootCmd.Flags().BoolVar(&noHotReload, "no-hot-reload", false,
		"disable file watching and in-place reloads")
	rootCmd.Flags().StringVar(&webhookURL, "webhook-url", "",
		"endpoint notified of module failures (overrides configuration)")

	rootCmd.AddCommand(testsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newLogger builds the slog handler from the logging section.
func newLogger(cfg config.Config) *slog.Logger {
	logging := cfg.Sub("logging")

	var level slog.Level
	switch logging.String("level", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if logging.String("format", "text") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func buildHost(cfg config.Config, logger *slog.Logger, notifier *webhook.Notifier) *hotmod.Host {
	opts := []hotmod.Option{
		hotmod.WithLogger(logger),
		hotmod.WithMetrics(observability.NewMetricsRecorder()),
		hotmod.WithHotReload(!noHotReload && cfg.Bool("hot_reload", true)),
	}
	if d := cfg.Duration("reload_debounce", 0); d > 0 {
		opts = append(opts, hotmod.WithDebounce(d))
	}
	if notifier != nil && notifier.Enabled() {
		opts = append(opts, hotmod.WithNotifier(notifier))
	}
	return hotmod.New(luamod.NewLoader(luamod.WithLogger(logger)), opts...)
}

func records(cfg config.Config) []registry.Record {
	decls := cfg.Modules()
	recs := make([]registry.Record, 0, len(decls))
	for _, d := range decls {
		recs = append(recs, registry.Record{
			Name:    d.Name,
			Source:  d.Path,
			Enabled: d.Enabled,
			Config:  d.Config,
		})
	}
	return recs
}

func runHost(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadDir(configDir, slog.Default())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := newLogger(cfg)

	resources := cfg.Sub("resources")
	limits, err := resource.NewManager(resource.Config{
		ProcessMemoryMB:    resources.Int("process_memory_mb", 0),
		ReservedRAMPercent: resources.Float("reserved_ram_percent", 0),
		ThreadsPerCore:     resources.Int("threads_per_core", 0),
	}, logger).Detect()
	if err != nil {
		logger.Warn("resource detection incomplete", slog.String("error", err.Error()))
	}
	logger.Info("starting host",
		slog.String("config_dir", configDir),
		slog.Int("max_workers", limits.MaxWorkers))

	url := webhookURL
	if url == "" {
		url = cfg.Sub("webhook").String("url", "")
	}
	notifier := webhook.New(url, webhook.WithLogger(logger))

	host := buildHost(cfg, logger, notifier)

	ctx := context.Background()
	results := host.Start(ctx, records(cfg))
	for name, ok := range results {
		if !ok {
			logger.Warn("module did not start", slog.String("module", name))
		}
	}
	logger.Info("host started",
		slog.Int("loaded", len(host.ListLoadedNames())),
		slog.Int("declared", len(results)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", slog.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	host.Shutdown(shutdownCtx)
	return nil
}

func listTests(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadDir(configDir, slog.Default())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := newLogger(cfg)

	host := hotmod.New(luamod.NewLoader(luamod.WithLogger(logger)),
		hotmod.WithLogger(logger),
		hotmod.WithHotReload(false))

	ctx := context.Background()
	host.Start(ctx, records(cfg))
	defer host.Shutdown(ctx)

	tests := host.ModuleTests()
	if len(tests) == 0 {
		fmt.Println("no modules declare tests")
		return nil
	}
	for _, name := range host.ListLoadedNames() {
		files, ok := tests[name]
		if !ok {
			continue
		}
		fmt.Printf("%s:\n", name)
		for _, f := range files {
			fmt.Printf("  %s\n", f)
		}
	}
	return nil
}
