package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/metalagman/ttdr/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a ttdr state directory",
		Long:  "Initialize a ttdr state directory by creating the runs and locks directories and installing a default config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveStateDir()
			if err != nil {
				return err
			}
			path, created, err := initStateDir(dir, force)
			if err != nil {
				return err
			}
			if !created {
				log.Info().Str("path", path).Msg("config.json already exists, skipping")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ttdr initialized in %s\n", dir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config.json")
	return cmd
}

func initStateDir(dir string, force bool) (string, bool, error) {
	log.Info().Str("dir", dir).Msg("creating ttdr directory")
	for _, sub := range []string{"runs", "locks"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", false, fmt.Errorf("create %s dir: %w", sub, err)
		}
	}

	configPath := filepath.Join(dir, "config.json")
	if _, err := os.Stat(configPath); err == nil && !force {
		return configPath, false, nil
	}
	log.Info().Str("path", configPath).Msg("installing default config")
	data, err := json.MarshalIndent(config.Example(), "", "  ")
	if err != nil {
		return "", false, fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(configPath, append(data, '\n'), 0o644); err != nil {
		return "", false, fmt.Errorf("write default config: %w", err)
	}
	return configPath, true, nil
}
