package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-instrument/embedder"
	"github.com/wippyai/wasm-instrument/instrument"
	"github.com/wippyai/wasm-instrument/internal/telemetry"
)

// app carries state shared by all subcommands of one invocation.
type app struct {
	v          *viper.Viper
	settings   *settings
	logger     *zap.Logger
	shutdown   func()
	configFile string
}

func newRootCmd() *cobra.Command {
	a := &app{v: newViper()}

	root := &cobra.Command{
		Use:   "wasm-instrument",
		Short: "Instruction-count instrumentation for canister WebAssembly modules",
		Long: `wasm-instrument rewrites WebAssembly modules so that a host can bound the
number of instructions they execute, and runs the result on wazero.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (YAML)")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console, json)")
	pf.Bool("telemetry", false, "export traces over OTLP HTTP")
	pf.String("telemetry-endpoint", "localhost:4318", "OTLP HTTP endpoint")
	pf.Uint64("compile-cost", instrument.DefaultInstructionCompileCost, "compilation cost per instruction")
	a.bind("log.level", pf.Lookup("log-level"))
	a.bind("log.format", pf.Lookup("log-format"))
	a.bind("telemetry.enabled", pf.Lookup("telemetry"))
	a.bind("telemetry.endpoint", pf.Lookup("telemetry-endpoint"))
	a.bind("compile_cost", pf.Lookup("compile-cost"))

	root.AddCommand(
		newInstrumentCmd(a),
		newPlanCmd(a),
		newRunCmd(a),
		newBatchCmd(a),
	)
	return root
}

func (a *app) bind(key string, flag *pflag.Flag) {
	_ = a.v.BindPFlag(key, flag)
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.settings = s

	logger, err := newLogger(s.Log.Level, s.Log.Format)
	if err != nil {
		return err
	}
	a.logger = logger
	instrument.SetLogger(logger)
	embedder.SetLogger(logger)

	shutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		Enabled:     s.Telemetry.Enabled,
		Endpoint:    s.Telemetry.Endpoint,
		ServiceName: s.Telemetry.Service,
	})
	if err != nil {
		return err
	}
	a.shutdown = shutdown
	logger.Debug("configuration loaded",
		zap.String("command", cmd.Name()),
		zap.Uint64("compile_cost", s.CompileCost),
		zap.Bool("telemetry", s.Telemetry.Enabled))
	return nil
}

func (a *app) teardown(*cobra.Command, []string) error {
	if a.shutdown != nil {
		a.shutdown()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return nil
}

func (a *app) instrumentConfig() instrument.Config {
	return instrument.Config{InstructionCompileCost: a.settings.CompileCost}
}
