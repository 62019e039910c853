// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

// Package config loads adjudicator settings from defaults, a YAML file, the
// environment and command-line flags, in that order of precedence.
package config

import (
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/adjudicator/adjudicator/internal/dice"
	"github.com/adjudicator/adjudicator/internal/resolve"
)

// Error codes.
const (
	CodeLoadFailed = "CONFIG_LOAD_FAILED"
	CodeInvalid    = "CONFIG_INVALID"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "ADJUDICATOR_"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the complete settings tree.
type Config struct {
	Log     Log     `koanf:"log" envPrefix:"LOG_"`
	Engine  Engine  `koanf:"engine" envPrefix:"ENGINE_"`
	Dice    Dice    `koanf:"dice" envPrefix:"DICE_"`
	Store   Store   `koanf:"store" envPrefix:"STORE_"`
	Metrics Metrics `koanf:"metrics" envPrefix:"METRICS_"`
}

// Log configures structured logging.
type Log struct {
	Format string `koanf:"format" env:"FORMAT"`
	Level  string `koanf:"level" env:"LEVEL"`
}

// Engine holds table rules.
type Engine struct {
	TieBreak  string `koanf:"tie_break" env:"TIE_BREAK"`
	BreakTies bool   `koanf:"break_ties" env:"BREAK_TIES"`
}

// Dice selects the random source.
type Dice struct {
	Mode string `koanf:"mode" env:"MODE"`
	Seed int64  `koanf:"seed" env:"SEED"`
}

// Store selects hand-off persistence.
type Store struct {
	Driver         string `koanf:"driver" env:"DRIVER"`
	DSN            string `koanf:"dsn" env:"DSN"`
	ConnectRetries uint64 `koanf:"connect_retries" env:"CONNECT_RETRIES"`
}

// Metrics toggles the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `koanf:"enabled" env:"ENABLED"`
	Addr    string `koanf:"addr" env:"ADDR"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Log:     Log{Format: "json", Level: "info"},
		Engine:  Engine{TieBreak: string(resolve.TieBreakLowerRoll), BreakTies: true},
		Dice:    Dice{Mode: string(dice.ModeCrypto)},
		Store:   Store{Driver: DriverMemory, ConnectRetries: 5},
		Metrics: Metrics{Addr: "127.0.0.1:9464"},
	}
}

// BindFlags registers the flags Load reads from.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "path to a YAML config file")
	fs.String("log.format", d.Log.Format, "log format (json|text)")
	fs.String("log.level", d.Log.Level, "log level (debug|info|warn|error)")
	fs.String("dice.mode", d.Dice.Mode, "dice source (crypto|seeded|seeded-random)")
	fs.Int64("dice.seed", d.Dice.Seed, "seed for --dice.mode=seeded")
	fs.String("store.driver", d.Store.Driver, "hand-off store (memory|sqlite|postgres)")
	fs.String("store.dsn", d.Store.DSN, "sqlite path or postgres URL (sqlite defaults to the XDG data dir)")
	fs.Bool("metrics.enabled", d.Metrics.Enabled, "serve Prometheus metrics while the command runs")
	fs.String("metrics.addr", d.Metrics.Addr, "listen address for metrics and health probes")
}

// Load builds the configuration. path may be empty. fs may be nil; only
// flags the user changed override earlier sources.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	cfg := Default()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code(CodeLoadFailed).With("path", path).Wrap(err)
		}
		if err := k.Unmarshal("", &cfg); err != nil {
			return Config{}, oops.Code(CodeLoadFailed).With("path", path).Wrap(err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, oops.Code(CodeLoadFailed).With("source", "environment").Wrap(err)
	}

	if fs != nil {
		k := koanf.New(".")
		provider := posflag.ProviderWithFlag(fs, ".", nil, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			return f.Name, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code(CodeLoadFailed).With("source", "flags").Wrap(err)
		}
		if err := k.Unmarshal("", &cfg); err != nil {
			return Config{}, oops.Code(CodeLoadFailed).With("source", "flags").Wrap(err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every enumerated setting.
func (c Config) Validate() error {
	checks := []struct {
		key     string
		value   string
		allowed []string
	}{
		{"log.format", c.Log.Format, []string{"json", "text"}},
		{"log.level", strings.ToLower(c.Log.Level), []string{"debug", "info", "warn", "error"}},
		{"engine.tie_break", c.Engine.TieBreak, []string{string(resolve.TieBreakNone), string(resolve.TieBreakLowerRoll)}},
		{"dice.mode", c.Dice.Mode, []string{string(dice.ModeCrypto), string(dice.ModeSeeded), string(dice.ModeSeededRandom)}},
		{"store.driver", c.Store.Driver, []string{DriverMemory, DriverSQLite, DriverPostgres}},
	}
	for _, chk := range checks {
		if !slices.Contains(chk.allowed, chk.value) {
			return oops.Code(CodeInvalid).
				With("key", chk.key).
				With("value", chk.value).
				Hint("allowed values: "+strings.Join(chk.allowed, ", ")).
				Errorf("invalid value %q for %s", chk.value, chk.key)
		}
	}
	if c.Store.Driver == DriverPostgres && c.Store.DSN == "" {
		return oops.Code(CodeInvalid).
			With("key", "store.dsn").
			With("driver", c.Store.Driver).
			Errorf("store.dsn is required for the %s driver", c.Store.Driver)
	}
	return nil
}

// Rules projects the engine settings onto resolution rules.
func (c Config) Rules() resolve.Rules {
	return resolve.Rules{
		TieBreak:  resolve.TieBreakPolicy(c.Engine.TieBreak),
		BreakTies: c.Engine.BreakTies,
	}
}

// DiceSource builds the configured source and reports the seed in use.
func (c Config) DiceSource() (dice.Source, int64, error) {
	return dice.FromMode(dice.Mode(c.Dice.Mode), c.Dice.Seed)
}
