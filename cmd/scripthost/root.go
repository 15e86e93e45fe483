// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/scripthost/internal/config"
	"github.com/holomush/scripthost/internal/logging"
)

// cli carries what the root command resolves for its subcommands.
type cli struct {
	cfg *config.Config
}

// NewRootCmd creates the root command for the scripthost CLI.
func NewRootCmd() *cobra.Command {
	app := &cli{}

	cmd := &cobra.Command{
		Use:   "scripthost",
		Short: "scripthost - run Lua plugins inside a Go host",
		Long: `scripthost loads Lua plugins into one shared embedded runtime,
each in its own namespace, and calls their functions with native
arguments and typed results.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			level, err := logging.ParseLevel(cfg.Log.Level)
			if err != nil {
				return err
			}
			setDefaultLogger(logging.New(logging.Options{
				Service: "scripthost",
				Version: version,
				Format:  cfg.Log.Format,
				Level:   level,
				Writer:  cmd.ErrOrStderr(),
			}))
			app.cfg = cfg
			return nil
		},
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewRunCmd(app))
	cmd.AddCommand(NewServeCmd(app))
	cmd.AddCommand(NewValidateCmd(app))
	cmd.AddCommand(NewMigrateCmd(app))

	return cmd
}
