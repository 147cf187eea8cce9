// toucan runs the scheduler simulator and monitors device telemetry.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ticktoucan/host/config"
	"ticktoucan/host/logx"
	"ticktoucan/host/metrics"
	"ticktoucan/host/monitor"
	"ticktoucan/host/serial"
	"ticktoucan/host/simulator"
	"ticktoucan/protocol"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "toucan",
		Short:   "Tick scheduler simulator and telemetry monitor",
		Version: version + " (wire v" + protocol.Version + ")",
		Long: `toucan hosts the tick scheduler.

Examples:
  # Run the tasks from a config file on the simulated timer
  toucan sim -c toucan.yaml

  # Run for ten seconds and expose Prometheus metrics
  toucan sim --duration 10s --metrics-listen :9108

  # Decode telemetry from a board
  toucan monitor --device /dev/ttyACM0
`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: built-in heartbeat)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format override (console|json)")

	rootCmd.AddCommand(simCmd())
	rootCmd.AddCommand(monitorCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the logging overrides.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	log, err := logx.New(logx.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func simCmd() *cobra.Command {
	var (
		duration  time.Duration
		tickMs    uint32
		timeScale float64
		listen    string
		device    string
	)

	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run configured tasks on the simulated tick timer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("tick-ms") {
				cfg.TickPeriodMs = tickMs
			}
			if cmd.Flags().Changed("time-scale") {
				cfg.TimeScale = timeScale
			}
			if listen != "" {
				cfg.Metrics.Listen = listen
			}
			if device != "" {
				cfg.Telemetry.Device = device
			}

			ctx, stop := signalContext()
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			reg := prometheus.NewRegistry()
			m := metrics.NewRegistry(reg)
			opts := []simulator.Option{simulator.WithMetrics(m)}

			if cfg.Telemetry.Device != "" {
				port, err := serial.Open(&cfg.Telemetry)
				if err != nil {
					return err
				}
				defer port.Close()
				opts = append(opts, simulator.WithTelemetry(port))
				log.Info().Str("device", cfg.Telemetry.Device).Msg("telemetry enabled")
			}

			runner, err := simulator.New(cfg, log, opts...)
			if err != nil {
				return err
			}

			go serveMetrics(ctx, cfg.Metrics.Listen, reg, log)
			return runner.Run(ctx)
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (default: run until interrupted)")
	cmd.Flags().Uint32Var(&tickMs, "tick-ms", 0, "Tick period override in milliseconds")
	cmd.Flags().Float64Var(&timeScale, "time-scale", 1, "Wall time per simulated millisecond")
	cmd.Flags().StringVar(&listen, "metrics-listen", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&device, "telemetry", "", "Write telemetry frames to this serial device")
	return cmd
}

func monitorCmd() *cobra.Command {
	var (
		device string
		baud   int
		follow bool
		listen string
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Decode scheduler telemetry from a serial device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			port := cfg.Telemetry
			if device != "" {
				port.Device = device
			}
			if cmd.Flags().Changed("baud") {
				port.Baud = baud
			}
			if listen != "" {
				cfg.Metrics.Listen = listen
			}
			if port.Device == "" {
				return errors.New("no device: pass --device or set telemetry.device")
			}

			p, err := serial.Open(&port)
			if err != nil {
				return err
			}
			defer p.Close()
			if err := p.Flush(); err != nil {
				log.Warn().Err(err).Msg("flush failed")
			}

			ctx, stop := signalContext()
			defer stop()

			reg := prometheus.NewRegistry()
			mon := monitor.New(log, metrics.NewRegistry(reg))
			mon.Follow = follow

			go serveMetrics(ctx, cfg.Metrics.Listen, reg, log)
			log.Info().Str("device", port.Device).Int("baud", port.Baud).Msg("monitoring")
			if err := mon.Run(ctx, p); err != nil {
				return fmt.Errorf("read %s: %w", port.Device, err)
			}
			log.Info().Uint64("events", mon.Events()).Msg("monitor stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "Serial device path")
	cmd.Flags().IntVar(&baud, "baud", 115200, "Baud rate (ignored for USB CDC)")
	cmd.Flags().BoolVar(&follow, "follow", true, "Keep reading while the line is idle")
	cmd.Flags().StringVar(&listen, "metrics-listen", "", "Serve Prometheus metrics on this address")
	return cmd
}

// serveMetrics serves /metrics on addr until ctx is done. An empty addr
// disables it.
func serveMetrics(ctx context.Context, addr string, g prometheus.Gatherer, log zerolog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics server failed")
	}
}
