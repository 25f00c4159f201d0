package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/metalagman/ttdr/internal/config"
	"github.com/spf13/viper"
)

// loadConfig reads the config file named by the config key, layered over
// defaults. A missing default config file is allowed; a missing explicit one
// is not.
func loadConfig(v *viper.Viper, workDir string) (config.Config, error) {
	config.SetDefaults(v)

	path := v.GetString("config")
	explicit := path != "" && path != filepath.Join(defaultStateDir, "config.json")
	if path == "" {
		path = filepath.Join(defaultStateDir, "config.json")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("read config: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) || explicit {
		return config.Config{}, fmt.Errorf("read config: %w", err)
	}

	return config.Decode(v)
}

func loadGlobalConfig() (config.Config, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return config.Config{}, err
	}
	return loadConfig(viper.GetViper(), workDir)
}

func resolveStateDir() (string, error) {
	if filepath.IsAbs(stateDir) {
		return stateDir, nil
	}
	workDir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(workDir, stateDir), nil
}
