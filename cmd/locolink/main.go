package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/locolink/internal/cliconfig"
	"github.com/bft-labs/locolink/pkg/console"
	"github.com/bft-labs/locolink/pkg/locolink"
	"github.com/bft-labs/locolink/pkg/log"
	"github.com/bft-labs/locolink/pkg/metrics"
	"github.com/bft-labs/locolink/plugins/configwatcher"
	"github.com/bft-labs/locolink/plugins/healthprobe"
)

const helpDescription = `
Keep a persistent link to a model-railway signal controller and drive it
from the terminal.

Highlights:
  - Reconnects on its own with a capped exponential backoff (1s up to 30s).
  - Reads "LOCO STATE" or "STATE" lines from stdin and sends them as frames.
  - Prints whatever the controller reports, plus decoded state frames.
  - Configure via file, env (LOCOLINK_*), or flags; flags win.
`

var exampleUsage = strings.TrimSpace(`
  locolink --host 192.168.2.6 --port 9000
  echo "3 2" | locolink --manual --loco 3
  locolink --config $HOME/.locolink/config.toml --watch-config --metrics-addr :9090
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return locolink.Version
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	logger := log.NewZerologAdapter()

	root := &cobra.Command{
		Use:           "locolink",
		Short:         "Persistent TCP client for a model-railway signal controller",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			// Build set of changed flags
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// LOCOLINK_* override the file but not explicit flags.
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			level, _ := log.ParseLevel(cfg.LogLevel)
			logger = log.NewZerologAdapterLevel(os.Stderr, level)
			logger.Info("configuration", log.Any("config", cfg), log.String("file", cfgFile))

			return run(cmd.Context(), cfg, cfgFile, logger, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := root.Flags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.locolink/config.toml)")
	f.StringVar(&cfg.Host, "host", cfg.Host, "controller host")
	f.IntVar(&cfg.Port, "port", cfg.Port, "controller TCP port")
	f.IntVar(&cfg.Loco, "loco", cfg.Loco, "locomotive for stdin lines that carry only a state")
	f.IntVar(&cfg.StateMin, "state-min", cfg.StateMin, "lowest state a command may carry")
	f.IntVar(&cfg.StateMax, "state-max", cfg.StateMax, "highest state a command may carry")

	f.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "TCP connect timeout")
	f.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "socket read deadline")
	f.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "socket write deadline")
	f.DurationVar(&cfg.TickInterval, "tick-interval", cfg.TickInterval, "reconnect supervisor tick")
	f.DurationVar(&cfg.BackoffBase, "backoff-base", cfg.BackoffBase, "first reconnect delay")
	f.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "reconnect delay cap")
	f.DurationVar(&cfg.HealthInterval, "health-interval", cfg.HealthInterval, "endpoint probe interval (0 disables)")

	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address (empty disables)")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	f.BoolVar(&cfg.WatchConfig, "watch-config", cfg.WatchConfig, "follow host/port changes in the config file")
	f.BoolVar(&cfg.ShutdownNotice, "shutdown-notice", cfg.ShutdownNotice, "send a shutdown notice line before closing")
	f.BoolVar(&cfg.Manual, "manual", cfg.Manual, "connect once instead of reconnecting automatically")

	if err := f.MarkHidden("tick-interval"); err != nil {
		logger.Info("failed to hide tick-interval flag", log.Err(err))
	}

	if err := root.Execute(); err != nil {
		logger.Error("locolink", log.Err(err))
		os.Exit(1)
	}
}

// run wires the client, its console and plugins, then feeds stdin lines to
// the controller until a signal arrives.
func run(ctx context.Context, cfg cliconfig.Config, cfgFile string, logger *log.ZerologAdapter, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lines := console.NewLog(console.DefaultMaxLines)
	printer := console.NewBuffer(console.DefaultFlushBytes, func(block string) {
		fmt.Fprint(out, block)
	})
	lines.AddListener(printer)
	printer.Start(ctx)
	defer printer.Close()

	registry := prometheus.NewRegistry()
	collector := metrics.New(metrics.WithRegistry(registry))

	events := &locolink.HandlerFuncs{
		Status: func(s locolink.Status) {
			logger.Info("link status", log.Stringer("status", s))
		},
		Error: func(msg string) {
			logger.Warn("link error", log.String("error", msg))
		},
		Frame: func(fr locolink.Frame) {
			logger.Debug("frame", log.Stringer("frame", fr))
		},
	}

	opts := []locolink.Option{
		locolink.WithLogger(logger),
		locolink.WithHandler(lines),
		locolink.WithHandler(collector),
		locolink.WithHandler(events),
	}
	if cfg.WatchConfig {
		opts = append(opts, configwatcher.WithPath(cfgFile))
	}
	if cfg.HealthInterval > 0 {
		opts = append(opts, healthprobe.WithHealthProbe(healthprobe.Config{
			Interval: cfg.HealthInterval,
			Timeout:  cfg.ConnectTimeout,
		}))
	}

	c, err := locolink.New(cfg.ClientConfig(), opts...)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer c.Shutdown()

	if cfg.Manual && !c.Connect(cfg.Host, cfg.Port) {
		return fmt.Errorf("connect %s:%d rejected", cfg.Host, cfg.Port)
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", log.Err(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("serving metrics", log.String("addr", cfg.MetricsAddr))
	}

	commands := make(chan string)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case commands <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("received signal, stopping...")
			return nil
		case line := <-commands:
			cmd, ok, err := parseCommand(line, cfg.Loco)
			if err != nil {
				logger.Warn("ignoring input", log.String("line", line), log.Err(err))
				continue
			}
			if !ok {
				continue
			}
			if !c.SendCommand(cmd.Loco, cmd.State) {
				logger.Warn("command not sent",
					log.Int("loco", cmd.Loco),
					log.Int("state", cmd.State),
					log.Bool("connected", c.IsConnectionAlive()))
			}
		}
	}
}

func metricsMux(registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}
