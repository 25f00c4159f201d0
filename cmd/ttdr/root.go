package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/metalagman/ttdr/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultStateDir = ".ttdr"

var (
	cfgFile  string
	stateDir string
	debug    bool
	logJSON  bool
	rootCmd  = &cobra.Command{
		Use:   "ttdr",
		Short: "ttdr is a test-time diffusion deep researcher",
		Long: "ttdr answers a research query by planning a report, iteratively asking search questions, " +
			"synthesizing answers, and denoising a draft report until the research is complete.",
		SilenceUsage: true,
	}
)

// Execute runs the root command.
func Execute() error {
	if err := loadDotEnv(".env"); err != nil {
		return err
	}
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", filepath.Join(defaultStateDir, "config.json"), "config file path")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", defaultStateDir, "directory for the run database and artifacts")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON lines")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		return fmt.Errorf("bind config flag: %w", err)
	}
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Options{Debug: debug, JSON: logJSON})
	}
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(uiCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func initConfig() {
	path := cfgFile
	if path == "" {
		path = filepath.Join(defaultStateDir, "config.json")
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("json")
}

// loadDotEnv exports variables from path. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
}
