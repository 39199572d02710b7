package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sayingslab/backupd/internal/app"
	"github.com/sayingslab/backupd/internal/config"
	"github.com/sayingslab/backupd/internal/logging"
	"github.com/sayingslab/backupd/internal/notify"
	"github.com/sayingslab/backupd/internal/storage"
	"github.com/sayingslab/backupd/internal/store"
	"github.com/sayingslab/backupd/internal/util"
	"github.com/sayingslab/backupd/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

type overrideFlags struct {
	DBPath        string
	BackupDir     string
	StoragePrefix string
	RemoteTimeout time.Duration
}

func main() {
	root := &rootFlags{}
	overrides := &overrideFlags{}

	rootCmd := &cobra.Command{
		Use:   "backupd",
		Short: "Backup and restore utility for sayings user data",
	}

	rootCmd.PersistentFlags().StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json or .enc)")
	rootCmd.PersistentFlags().StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")

	rootCmd.PersistentFlags().StringVar(&overrides.DBPath, "db-path", "", "SQLite database file path")
	rootCmd.PersistentFlags().StringVar(&overrides.BackupDir, "backup-dir", "", "Local archive directory")
	rootCmd.PersistentFlags().StringVar(&overrides.StoragePrefix, "storage-prefix", "", "Key prefix for remote objects")
	rootCmd.PersistentFlags().DurationVar(&overrides.RemoteTimeout, "remote-timeout", 0, "Timeout per remote backend call")

	rootCmd.AddCommand(newBackupCmd(root, overrides))
	rootCmd.AddCommand(newRestoreCmd(root, overrides))
	rootCmd.AddCommand(newListCmd(root, overrides))
	rootCmd.AddCommand(newRecordsCmd(root, overrides))
	rootCmd.AddCommand(newValidateCmd(root, overrides))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newBackupCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var userID string
	var retry int
	var retryBackoff time.Duration

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a backup for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			appSvc, cleanup, err := buildApp(root, overrides)
			if err != nil {
				return err
			}
			defer cleanup()
			cfg := appSvc.Cfg
			if retry > 0 {
				cfg.Backup.RetryCount = retry
			}
			if retryBackoff > 0 {
				cfg.Backup.RetryBackoff = retryBackoff
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Global.OperationTimeout)
			defer cancel()

			return util.Retry(ctx, cfg.Backup.RetryCount, cfg.Backup.RetryBackoff, func() error {
				result, err := appSvc.Backup(ctx, userID)
				if err != nil {
					return err
				}
				for _, warning := range result.Warnings {
					fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
				}
				fmt.Printf("%s\t%d bytes\t%d remote copies\n",
					result.Record.Filename, result.Record.SizeBytes, len(result.Record.RemoteLocations))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User whose data to back up")
	cmd.Flags().IntVar(&retry, "retry", 0, "Retry attempts")
	cmd.Flags().DurationVar(&retryBackoff, "retry-backoff", 0, "Retry backoff")
	return cmd
}

func newRestoreCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var userID string
	var file string
	var backend string
	var key string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a backup into a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			if file == "" && (backend == "" || key == "") {
				return fmt.Errorf("either --file or both --backend and --key are required")
			}
			appSvc, cleanup, err := buildApp(root, overrides)
			if err != nil {
				return err
			}
			defer cleanup()
			if dryRun {
				appSvc.Cfg.Restore.DryRun = true
			}

			ctx, cancel := context.WithTimeout(context.Background(), appSvc.Cfg.Global.OperationTimeout)
			defer cancel()

			result, err := appSvc.Restore(ctx, userID, app.ArchiveRef{Path: file, Backend: backend, Key: key})
			if err != nil {
				return err
			}
			for _, warning := range result.Warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
			}
			for kind, errs := range result.ItemErrors {
				for _, itemErr := range errs {
					fmt.Fprintf(os.Stderr, "%s item %d skipped: %s\n", kind, itemErr.Index, itemErr.Reason)
				}
			}
			fmt.Printf("outcome: %s\n", result.Outcome)
			for kind, count := range result.Created {
				fmt.Printf("%s: %d imported\n", kind, count)
			}
			if result.Outcome == app.OutcomeFailed {
				return fmt.Errorf("restore imported nothing")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User to restore into")
	cmd.Flags().StringVar(&file, "file", "", "Local archive path")
	cmd.Flags().StringVar(&backend, "backend", "", "Remote backend holding the archive")
	cmd.Flags().StringVar(&key, "key", "", "Object key on the remote backend")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the archive without importing")
	return cmd
}

func newListCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available backups for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			appSvc, cleanup, err := buildApp(root, overrides)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(context.Background(), appSvc.Cfg.Global.OperationTimeout)
			defer cancel()

			infos, warnings, err := appSvc.List(ctx, userID)
			if err != nil {
				return err
			}
			for _, warning := range warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
			}
			for _, info := range infos {
				fmt.Printf("%s\t%d\t%s\t%s\n", info.Name, info.Size, info.Created.Format(time.RFC3339), info.Origin)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User whose backups to list")
	return cmd
}

func newRecordsCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "records",
		Short: "Show backup run records for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			appSvc, cleanup, err := buildApp(root, overrides)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(context.Background(), appSvc.Cfg.Global.OperationTimeout)
			defer cancel()

			records, err := appSvc.Records(ctx, userID)
			if err != nil {
				return err
			}
			for _, record := range records {
				line := fmt.Sprintf("%s\t%s\t%s\t%d", record.CreatedAt.Format(time.RFC3339), record.Filename, record.Status, record.SizeBytes)
				if record.Error != "" {
					line += "\t" + record.Error
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User whose records to show")
	return cmd
}

func newValidateCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			appSvc, cleanup, err := buildApp(root, overrides)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(context.Background(), appSvc.Cfg.Global.OperationTimeout)
			defer cancel()
			if err := appSvc.Validate(ctx); err != nil {
				return err
			}
			appSvc.Log.Info().Msg("validation succeeded")
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	var input string
	var output string
	var key string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config utilities",
	}

	encrypt := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" || output == "" || key == "" {
				return fmt.Errorf("--input, --output, and --key are required")
			}
			return config.EncryptConfigFile(input, output, key)
		},
	}
	encrypt.Flags().StringVar(&input, "input", "", "Input config file")
	encrypt.Flags().StringVar(&output, "output", "", "Output encrypted config file")
	encrypt.Flags().StringVar(&key, "key", "", "Encryption key (base64 or hex)")

	cmd.AddCommand(encrypt)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("backupd %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func buildApp(root *rootFlags, overrides *overrideFlags) (*app.App, func(), error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	applyOverrides(cfg, root, overrides)

	logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	remotes, err := storage.NewRemotes(cfg.Storage)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	appSvc := app.New(cfg, db, remotes, logger, notify.FromConfig(cfg.Notifications))
	return appSvc, func() { db.Close() }, nil
}

func applyOverrides(cfg *config.Config, root *rootFlags, overrides *overrideFlags) {
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}
	if overrides.DBPath != "" {
		cfg.Database.Path = overrides.DBPath
	}
	if overrides.BackupDir != "" {
		cfg.Backup.Dir = overrides.BackupDir
	}
	if overrides.StoragePrefix != "" {
		cfg.Storage.Prefix = overrides.StoragePrefix
	}
	if overrides.RemoteTimeout > 0 {
		cfg.Global.RemoteTimeout = overrides.RemoteTimeout
	}

	cfg.Backup.Type = strings.ToLower(cfg.Backup.Type)
	for i := range cfg.Storage.Remotes {
		cfg.Storage.Remotes[i].Provider = strings.ToLower(cfg.Storage.Remotes[i].Provider)
	}
}
