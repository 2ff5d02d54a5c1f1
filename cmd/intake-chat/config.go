package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"intake-chat/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the client config file",
		// The file may not exist or parse yet, so skip the shared setup.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	}
	cmd.AddCommand(newConfigInitCmd(a))
	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults and any --server, --data-dir or --storage given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.configPath
			if path == "" {
				path = config.ClientConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := config.DefaultClientConfig()
			if a.serverURL != "" {
				cfg.ServerURL = a.serverURL
			}
			if a.dataDir != "" {
				cfg.DataDir = a.dataDir
			}
			if a.storage != "" {
				cfg.Storage = a.storage
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveClientConfig(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Konfiguration geschrieben: %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
