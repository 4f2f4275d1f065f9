package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/parade-registry-api/pkg/config"
	"github.com/noah-isme/parade-registry-api/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "parade",
	Short:         "Parade registry API",
	Long:          "Registration form, QR credentials, notifications and gate validation for the vehicle parade.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// bootstrap loads configuration and the process logger shared by every command.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}
