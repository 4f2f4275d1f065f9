package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/parade-registry-api/internal/repository"
	"github.com/noah-isme/parade-registry-api/internal/service"
	"github.com/noah-isme/parade-registry-api/pkg/database"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage validation station operators",
}

var (
	operatorUsername string
	operatorPassword string
	operatorFullName string
)

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an operator account",
	Long: `Creates an operator allowed to log in to the admin panel and the
validation station. Usage:

	parade admin create --username portero --password '...' --full-name 'Portero Uno'
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logr, err := bootstrap()
		if err != nil {
			return err
		}
		defer logr.Sync() //nolint:errcheck

		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()

		authSvc := service.NewAuthService(repository.NewAdminUserRepository(db), repository.NewAuditRepository(db), nil, nil, logr, service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			AccessTokenExpiry: cfg.JWT.Expiration,
			Issuer:            cfg.JWT.Issuer,
		})
		user, err := authSvc.CreateOperator(cmd.Context(), operatorUsername, operatorPassword, operatorFullName)
		if err != nil {
			return err
		}
		logr.Info("operator created", zap.String("id", user.ID), zap.String("username", user.Username))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd)

	adminCreateCmd.Flags().StringVar(&operatorUsername, "username", "", "login name")
	adminCreateCmd.Flags().StringVar(&operatorPassword, "password", "", "password, at least 8 characters")
	adminCreateCmd.Flags().StringVar(&operatorFullName, "full-name", "", "display name")
	_ = adminCreateCmd.MarkFlagRequired("username")
	_ = adminCreateCmd.MarkFlagRequired("password")
}
