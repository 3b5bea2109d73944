package main

import (
	"fmt"
	"net/mail"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/fileshare/backend/internal/config"
	"github.com/fileshare/backend/internal/database"
	"github.com/fileshare/backend/internal/models"
	"github.com/fileshare/backend/pkg/utils"
)

var (
	flagResetYes bool

	flagUsername string
	flagEmail    string
	flagPassword string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "fileshare-admin",
	Short:         "Manage the FileShare database and user accounts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		return nil
	},
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database operations",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the schema (connect and run migrations)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := database.Connect(cfg.DB); err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		fmt.Println("database initialized")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop all tables and re-run migrations (destructive, requires --yes)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagResetYes {
			return fmt.Errorf("refusing to reset without --yes; this drops every table")
		}
		db, err := database.Open(cfg.DB)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		if err := database.Reset(db); err != nil {
			return fmt.Errorf("resetting database: %w", err)
		}
		fmt.Println("database reset")
		return nil
	},
}

var dbInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show driver and per-table row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.DB)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}

		fmt.Printf("driver: %s\n", cfg.DB.Driver)

		tables := []struct {
			name  string
			model interface{}
		}{
			{"users", &models.User{}},
			{"files", &models.File{}},
			{"bundles", &models.Bundle{}},
			{"bundle_files", &models.BundleFile{}},
			{"settings", &models.Setting{}},
		}
		for _, table := range tables {
			var count int64
			if err := db.Model(table.model).Count(&count).Error; err != nil {
				return fmt.Errorf("counting %s: %w", table.name, err)
			}
			fmt.Printf("%-14s %d\n", table.name, count)
		}
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User operations",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	RunE: func(cmd *cobra.Command, args []string) error {
		username := strings.TrimSpace(flagUsername)
		email := strings.ToLower(strings.TrimSpace(flagEmail))
		password := flagPassword

		if len(username) < 3 {
			return fmt.Errorf("username must be at least 3 characters")
		}
		if _, err := mail.ParseAddress(email); err != nil {
			return fmt.Errorf("invalid email")
		}
		if len(password) < 6 {
			return fmt.Errorf("password must be at least 6 characters")
		}

		db, err := database.Connect(cfg.DB)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}

		var existing models.User
		err = db.First(&existing, "username = ? OR email = ?", username, email).Error
		if err == nil {
			return fmt.Errorf("username or email already exists")
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("checking existing user: %w", err)
		}

		hash, err := utils.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}

		user := models.User{Username: username, Email: email, PasswordHash: hash}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("creating user: %w", err)
		}

		fmt.Printf("created user %s (%s)\n", user.Username, user.ID)
		return nil
	},
}

func init() {
	dbResetCmd.Flags().BoolVar(&flagResetYes, "yes", false, "Confirm dropping every table")

	userCreateCmd.Flags().StringVar(&flagUsername, "username", "", "Username (min 3 characters)")
	userCreateCmd.Flags().StringVar(&flagEmail, "email", "", "Email address")
	userCreateCmd.Flags().StringVar(&flagPassword, "password", "", "Password (min 6 characters)")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")

	dbCmd.AddCommand(dbInitCmd, dbResetCmd, dbInfoCmd)
	rootCmd.AddCommand(dbCmd, userCmd)
	userCmd.AddCommand(userCreateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
