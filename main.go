package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/nodewarden/cmd"
	"github.com/smazurov/nodewarden/internal/api"
	"github.com/smazurov/nodewarden/internal/apmode"
	"github.com/smazurov/nodewarden/internal/button"
	"github.com/smazurov/nodewarden/internal/command"
	"github.com/smazurov/nodewarden/internal/config"
	"github.com/smazurov/nodewarden/internal/events"
	"github.com/smazurov/nodewarden/internal/failure"
	"github.com/smazurov/nodewarden/internal/led"
	"github.com/smazurov/nodewarden/internal/logging"
	"github.com/smazurov/nodewarden/internal/metrics"
	"github.com/smazurov/nodewarden/internal/metrics/collectors"
	"github.com/smazurov/nodewarden/internal/metrics/exporters"
	"github.com/smazurov/nodewarden/internal/process"
	"github.com/smazurov/nodewarden/internal/sessions"
	"github.com/smazurov/nodewarden/internal/supervisor"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port         string `help:"Status API listen address" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Product settings
	ProductsConfigFile string `help:"Product definitions file" default:"products.toml" toml:"products.config_file" env:"PRODUCTS_CONFIG_FILE"`

	// Hardware settings
	ButtonPin       int    `help:"GPIO pin of the config-mode button (-1 disables config mode)" default:"-1" toml:"hardware.button_pin" env:"HARDWARE_BUTTON_PIN"`
	ButtonActiveLow bool   `help:"Button input reads 0 when pressed" default:"false" toml:"hardware.button_active_low" env:"HARDWARE_BUTTON_ACTIVE_LOW"`
	LedName         string `help:"Status LED under /sys/class/leds (auto-detected when empty)" default:"" toml:"hardware.led_name" env:"HARDWARE_LED_NAME"`

	// Supervisor settings
	WindowSeconds int    `help:"Config-mode inactivity window in seconds" default:"300" toml:"supervisor.window_seconds" env:"SUPERVISOR_WINDOW_SECONDS"`
	PidFile       string `help:"Pidfile for the ping subcommand" default:"/run/nodewarden.pid" toml:"supervisor.pid_file" env:"SUPERVISOR_PID_FILE"`

	// Process settings
	RunAsUser     string `help:"Default account product processes run under" default:"" toml:"process.user" env:"PROCESS_USER"`
	ProcessLogDir string `help:"Directory for per-process output logs" default:"/var/log/nodewarden" toml:"process.log_dir" env:"PROCESS_LOG_DIR"`

	// Config mode settings
	ServedDir string `help:"Directory served by the config-mode content server" default:"" toml:"apmode.served_dir" env:"APMODE_SERVED_DIR"`

	// Failure policy settings
	GraceSeconds       int    `help:"Grace period before a failure reboot in seconds" default:"60" toml:"failure.grace_seconds" env:"FAILURE_GRACE_SECONDS"`
	SessionPollSeconds int    `help:"Operator session re-check interval in seconds" default:"10" toml:"failure.session_poll_seconds" env:"FAILURE_SESSION_POLL_SECONDS"`
	RemotePrefixes     string `help:"Comma-separated terminal prefixes that count as remote operator sessions" default:"pts/" toml:"failure.remote_prefixes" env:"FAILURE_REMOTE_PREFIXES"`
	CrashDir           string `help:"Directory for crash dumps" default:"/var/log/nodewarden" toml:"failure.crash_dir" env:"FAILURE_CRASH_DIR"`

	// Command settings
	CommandDeadlineSeconds int `help:"Deadline for external commands in seconds" default:"60" toml:"command.deadline_seconds" env:"COMMAND_DEADLINE_SECONDS"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingProcess    string `help:"Process manager logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingCommand    string `help:"Command runner logging level" default:"info" toml:"logging.command" env:"LOGGING_COMMAND"`
	LoggingFailure    string `help:"Failure policy logging level" default:"info" toml:"logging.failure" env:"LOGGING_FAILURE"`
	LoggingSessions   string `help:"Session guard logging level" default:"info" toml:"logging.sessions" env:"LOGGING_SESSIONS"`
	LoggingApmode     string `help:"Config-mode controller logging level" default:"info" toml:"logging.apmode" env:"LOGGING_APMODE"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingMetrics    string `help:"Metrics logging level" default:"info" toml:"logging.metrics" env:"LOGGING_METRICS"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			logging.GetLogger("main").Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"supervisor": opts.LoggingSupervisor,
				"process":    opts.LoggingProcess,
				"command":    opts.LoggingCommand,
				"failure":    opts.LoggingFailure,
				"sessions":   opts.LoggingSessions,
				"apmode":     opts.LoggingApmode,
				"api":        opts.LoggingAPI,
				"metrics":    opts.LoggingMetrics,
			},
		})

		logger := logging.GetLogger("main")

		// Event bus carries mode transitions, process exits, operator
		// pings, and failure reports between components.
		eventBus := events.New()

		// Metrics: bus recorder plus the background system sampler.
		recorder := metrics.NewRecorder(supervisor.AllModes())
		recorder.Subscribe(eventBus)
		systemCollector := collectors.NewSystemCollector()

		// Failure funnel: session guard decides whether the reboot
		// waits for a remote operator to disconnect.
		guard := sessions.NewGuard(
			sessions.WithPollInterval(time.Duration(opts.SessionPollSeconds)*time.Second),
			sessions.WithRemotePrefixes(splitPrefixes(opts.RemotePrefixes)),
		)
		reporter := failure.NewReporter(guard, eventBus,
			failure.WithGracePeriod(time.Duration(opts.GraceSeconds)*time.Second),
			failure.WithCrashDir(opts.CrashDir),
		)

		runner := command.NewRunner(reporter,
			command.WithDefaultDeadline(time.Duration(opts.CommandDeadlineSeconds)*time.Second),
		)

		procs := process.New(eventBus,
			process.WithLogDir(opts.ProcessLogDir),
			process.WithUser(opts.RunAsUser),
		)

		// Product applications come from products.toml; manage them
		// with the product subcommand.
		productManager := config.NewProductManager(opts.ProductsConfigFile)
		if err := productManager.Load(); err != nil {
			logger.Error("Failed to load products", "error", err)
			os.Exit(1)
		}
		products := productSpecs(productManager.GetEnabledProducts())
		if len(products) == 0 {
			logger.Warn("No enabled products configured, supervising nothing",
				"config", opts.ProductsConfigFile)
		}

		input := button.New(button.Config{
			Pin:       opts.ButtonPin,
			ActiveLow: opts.ButtonActiveLow,
		}, logging.GetLogger("button"))
		indicator := led.New(opts.LedName, logging.GetLogger("led"))

		configMode := apmode.New(runner, procs, failure.SystemRebooter{},
			apmode.WithServedDir(opts.ServedDir),
		)

		sup := supervisor.New(eventBus, input, indicator, procs, configMode, reporter,
			supervisor.Options{
				WindowSeconds: opts.WindowSeconds,
				Products:      products,
				PidFile:       opts.PidFile,
			})

		server := api.NewServer(&api.Options{
			AuthUsername:   opts.AuthUsername,
			AuthPassword:   opts.AuthPassword,
			StatusSource:   sup,
			Processes:      procs,
			MetricsHandler: exporters.HTTPHandler(),
		})

		// Log-level edits in the config file take effect without a
		// restart; everything else still requires one.
		levelWatcher := config.NewWatcher(opts.Config,
			func(path string) (logging.Config, error) {
				return config.LoadLoggingConfig(path), nil
			},
			func(cfg logging.Config) {
				logging.ApplyLevels(cfg)
				logger.Info("Log levels reloaded", "config", opts.Config)
			}, logger)

		hooks.OnStart(func() {
			if err := systemCollector.Start(context.Background()); err != nil {
				logger.Warn("Failed to start system metrics collector", "error", err)
			}
			if err := levelWatcher.Start(); err != nil {
				logger.Warn("Config watching unavailable, log-level hot reload disabled", "error", err)
			}

			if err := sup.Start(); err != nil {
				logger.Error("Failed to start supervisor", "error", err)
				os.Exit(1)
			}

			logger.Info("Starting status API server", "addr", opts.Port)
			if err := server.Start(opts.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			if err := server.Stop(); err != nil {
				logger.Error("Error stopping HTTP server", "error", err)
			}

			sup.Stop()
			procs.StopAll()

			if err := levelWatcher.Stop(); err != nil {
				logger.Warn("Error stopping config watcher", "error", err)
			}
			if err := systemCollector.Stop(); err != nil {
				logger.Warn("Error stopping system metrics collector", "error", err)
			}
			recorder.Unsubscribe()
		})
	})

	cli.Root().AddCommand(cmd.CreateProductCmd())
	cli.Root().AddCommand(cmd.CreateValidateHardwareCmd())
	cli.Root().AddCommand(cmd.CreatePingCmd())

	cli.Run()
}

// productSpecs converts enabled product configs into launch specs in a
// stable order.
func productSpecs(enabled map[string]config.ProductConfig) []process.Spec {
	ids := make([]string, 0, len(enabled))
	for id := range enabled {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	specs := make([]process.Spec, 0, len(ids))
	for _, id := range ids {
		p := enabled[id]
		specs = append(specs, process.Spec{
			Name:    id,
			Command: p.Command,
			User:    p.User,
			Dir:     p.Dir,
			LogFile: p.LogFile,
		})
	}
	return specs
}

func splitPrefixes(commaSeparated string) []string {
	parts := strings.Split(commaSeparated, ",")
	prefixes := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			prefixes = append(prefixes, trimmed)
		}
	}
	return prefixes
}
