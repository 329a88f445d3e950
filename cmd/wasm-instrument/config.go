package main

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-instrument/errors"
	"github.com/wippyai/wasm-instrument/instrument"
)

const envPrefix = "WASM_INSTRUMENT"

// settings is the merged view of flags, environment and config file.
type settings struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Telemetry struct {
		Endpoint string `mapstructure:"endpoint"`
		Service  string `mapstructure:"service"`
		Enabled  bool   `mapstructure:"enabled"`
	} `mapstructure:"telemetry"`
	CompileCost uint64 `mapstructure:"compile_cost"`
	Budget      uint64 `mapstructure:"budget"`
	Memory      uint64 `mapstructure:"memory"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("compile_cost", instrument.DefaultInstructionCompileCost)
	v.SetDefault("budget", uint64(5_000_000_000))
	v.SetDefault("memory", uint64(0))
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.service", "wasm-instrument")
	return v
}

func loadSettings(v *viper.Viper, configFile string) (*settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read config")
		}
	}
	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "decode config")
	}
	return &s, nil
}

// newLogger builds a zap logger writing to stderr.
func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}
	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console", "":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, errors.InvalidInput(errors.PhaseConfig, "log format must be console or json")
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
