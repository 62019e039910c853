// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/adjudicator/adjudicator/internal/config"
	"github.com/adjudicator/adjudicator/internal/dice"
	"github.com/adjudicator/adjudicator/internal/handoff"
	"github.com/adjudicator/adjudicator/internal/handoff/postgres"
	"github.com/adjudicator/adjudicator/internal/handoff/sqlite"
	"github.com/adjudicator/adjudicator/internal/logging"
	"github.com/adjudicator/adjudicator/internal/metrics"
	"github.com/adjudicator/adjudicator/internal/observability"
	"github.com/adjudicator/adjudicator/internal/resolve"
	"github.com/adjudicator/adjudicator/internal/xdg"
)

// Error codes raised by the CLI itself.
const (
	CodeInvalidArgs = "CLI_INVALID_ARGS"
	CodeAborted     = "CLI_TEST_ABORTED"
)

// shutdownTimeout bounds the observability server shutdown.
const shutdownTimeout = 5 * time.Second

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	dice     dice.Source
	seed     int64
	obs      *observability.Server
	recorder *metrics.Recorder
	closers  []func() error
}

// NewRootCmd creates the root command for the adjudicator CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "adjudicator",
		Short: "Adjudicator - roll-under test resolution for tabletop play",
		Long: `Adjudicator resolves percentile roll-under tests: single success tests,
opposed tests between two actors, and combat tests under a defense type.
Opposed and combat tests are handed off between participants and stored
until the defending side answers.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRollCmd(a))
	cmd.AddCommand(newOpposeCmd(a))
	cmd.AddCommand(newSimulateCmd(a))
	cmd.AddCommand(newSchemaCmd(a))
	cmd.AddCommand(newMigrateCmd(a))

	return cmd
}

// setup loads configuration and builds the shared services.
func (a *app) setup(cmd *cobra.Command) error {
	fs := cmd.Flags()
	path, err := fs.GetString("config")
	if err != nil {
		return oops.Code(CodeInvalidArgs).Wrap(err)
	}
	cfg, err := config.Load(path, fs)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = logging.Setup("adjudicator", version, cfg.Log.Format, cmd.ErrOrStderr())
	slog.SetDefault(a.logger)
	if err := logging.SetLevel(cfg.Log.Level); err != nil {
		return err
	}

	src, seed, err := cfg.DiceSource()
	if err != nil {
		return err
	}
	a.dice, a.seed = src, seed
	if cfg.Dice.Mode != string(dice.ModeCrypto) {
		a.logger.Debug("dice seeded", "mode", cfg.Dice.Mode, "seed", seed)
	}

	if cfg.Metrics.Enabled {
		a.obs = observability.NewServer(cfg.Metrics.Addr, func() bool { return true })
		if _, err := a.obs.Start(); err != nil {
			return err
		}
		a.recorder = a.obs.Recorder()
		a.logger.Info("metrics server started", "addr", a.obs.Addr())
	}
	return nil
}

// run wraps a subcommand body so resources opened during it are released.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if cerr := a.close(); cerr != nil {
			return errors.Join(err, cerr)
		}
		return err
	}
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if a.obs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		errs = append(errs, a.obs.Stop(ctx))
		a.obs = nil
	}
	return errors.Join(errs...)
}

// engineRecorder avoids handing the engine a typed nil.
func (a *app) engineRecorder() resolve.Recorder {
	if a.recorder == nil {
		return nil
	}
	return a.recorder
}

func (a *app) env(participant string, auth resolve.Authorizer) *resolve.Env {
	return &resolve.Env{
		Dice:        a.dice,
		Authorizer:  auth,
		Participant: participant,
		Rules:       a.cfg.Rules(),
		Logger:      a.logger,
		Recorder:    a.engineRecorder(),
	}
}

// sqlitePath is the configured sqlite DSN, defaulting to the XDG data dir.
func (a *app) sqlitePath() (string, error) {
	if a.cfg.Store.DSN != "" {
		return a.cfg.Store.DSN, nil
	}
	if err := xdg.EnsureDir(xdg.DataDir()); err != nil {
		return "", err
	}
	return xdg.SQLitePath(), nil
}

// openStore opens the configured hand-off store. It is closed when the
// command finishes.
func (a *app) openStore(ctx context.Context) (handoff.Store, error) {
	sc := a.cfg.Store
	switch sc.Driver {
	case config.DriverSQLite:
		path, err := a.sqlitePath()
		if err != nil {
			return nil, err
		}
		s, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, sc.DSN, sc.ConnectRetries)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			s.Close()
			return nil
		})
		return s, nil
	default:
		a.logger.Warn("memory store does not outlive this command", "driver", sc.Driver, "hint", "use --store.driver=sqlite to keep hand-offs")
		return handoff.NewMemoryStore(), nil
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return oops.In("cli").Wrap(err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return oops.In("cli").Wrap(err)
	}
	return nil
}
