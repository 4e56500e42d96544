package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"avrbridge/internal/config"
	"avrbridge/internal/history"
	"avrbridge/internal/invoke"
	"avrbridge/internal/tools"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "avrbridge",
		Short:   "avrbridge: command-line front end for AVR programmer tools",
		Long:    "avrbridge wraps external programmer tools (avrdude, avarice) with USB invocation delays, output failure detection, and cached device/version queries.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.avrbridge/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(versionCmd())
	root.AddCommand(devicesCmd())
	root.AddCommand(runCmd())
	root.AddCommand(fusesCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// attributeDefaults merges the per-tool defaults with the global ones.
func attributeDefaults() map[string]string {
	defaults := tools.Defaults()
	defaults["history.enabled"] = "true"
	defaults["history.path"] = filepath.Join(config.DefaultConfigDir(), "history.db")
	return defaults
}

func loadConfig() (*config.TargetConfig, error) {
	path := resolveConfigPath()
	if _, err := os.Stat(config.ExpandPath(path)); os.IsNotExist(err) {
		// No config file yet: the defaults are enough to run.
		return config.New(attributeDefaults()), nil
	}
	return config.Load(path, attributeDefaults())
}

// newInvoker builds the invoker for one tool, wired to the console and,
// when enabled, the invocation history. The returned cleanup closes the
// history store.
func newInvoker(cfg *config.TargetConfig, toolID string) (*invoke.Invoker, func(), error) {
	tool, ok := tools.ByID(toolID)
	if !ok {
		return nil, nil, fmt.Errorf("unknown tool %q (known: avrdude, avarice)", toolID)
	}

	opts := []invoke.Option{
		invoke.WithLogger(logger),
		invoke.WithEchoSink(stdoutSink),
	}
	cleanup := func() {}

	if cfg.BoolAttribute("history.enabled") {
		store, err := history.NewStore(config.ExpandPath(cfg.Attribute("history.path")), logger)
		if err != nil {
			logger.Warn("invocation history disabled", "err", err)
		} else {
			opts = append(opts, invoke.WithRecorder(store))
			cleanup = func() { store.Close() }
		}
	}

	return invoke.New(tool, opts...), cleanup, nil
}

func stdoutSink() io.WriteCloser {
	return nopWriteCloser{os.Stdout}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// signalContext returns a context cancelled by Ctrl-C or SIGTERM, so a
// running tool invocation can be aborted from the terminal.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			cfg := config.New(nil)
			for key, value := range attributeDefaults() {
				cfg.Set(key, value)
			}
			cfg.Set(invoke.AttrUSBDelay, "0")
			if err := cfg.Save(path); err != nil {
				return err
			}
			logger.Info("initialized", "config", path)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change the target configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print all attributes (defaults merged in)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			attrs := cfg.Attributes()
			for _, key := range cfg.Keys() {
				fmt.Printf("%-24s %s\n", key, attrs[key])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one attribute and save the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			cfg := config.New(nil)
			if _, err := os.Stat(config.ExpandPath(path)); err == nil {
				cfg, err = config.Load(path, nil)
				if err != nil {
					return err
				}
			}
			cfg.Set(args[0], args[1])
			if err := config.Validate(cfg); err != nil {
				return err
			}
			return cfg.Save(path)
		},
	})

	return cmd
}
