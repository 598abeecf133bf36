// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/spendoapp/spendo/cmd/spendo/config"
	"github.com/spendoapp/spendo/pkg/logging"
	"github.com/spendoapp/spendo/pkg/ux"
	"github.com/spendoapp/spendo/services/store"
)

// app is the state shared by every command once the root pre-run has
// loaded configuration.
type app struct {
	configPath string
	cfg        config.SpendoConfig
	logger     *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "spendo",
		Short: "Spendo personal-finance API server",
		Long: `Spendo serves the personal-finance REST API and the embedded
chat assistant, and carries the maintenance commands for its database.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { a.teardown() },
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"Config file (default: ./"+config.DefaultPath+" if present)")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newSeedCmd(a))
	root.AddCommand(newDBCmd(a))
	root.AddCommand(newConfigCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, ok := logging.ParseLevel(cfg.Logging.Level)
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "spendo",
		JSON:    cfg.Logging.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	if !ok {
		a.logger.Warn("unknown log level, using info", "level", cfg.Logging.Level)
	}
	slog.SetDefault(a.logger.Slog())
	return nil
}

func (a *app) teardown() {
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, store.Config{
		Path:         a.cfg.Database.Path,
		Logger:       a.logger.Slog(),
		PasswordCost: a.cfg.Database.PasswordCost,
	})
}

// =============================================================================
// config
// =============================================================================

func newConfigCmd(a *app) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.configPath
			if path == "" {
				path = config.DefaultPath
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			ux.NewPrinter(cmd.OutOrStdout()).Success("Wrote default configuration to %s", path)
			return nil
		},
	})
	return cfgCmd
}
