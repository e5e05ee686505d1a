package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mediasniff/internal/config"
	"mediasniff/internal/logger"
)

var (
	configPath string
	logLevel   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mediasniff",
		Short:         "Detect media streams in a Chromium browser and hand them to downloaders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	serve := newServeCmd()
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, newClassifyCmd(), newSettingsCmd())
	return root
}

// loadConfig 加载配置并应用全局命令行参数
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(logger.Config{Level: cfg.LogLevel, Output: os.Stderr})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mediasniff:", err)
		os.Exit(1)
	}
}
