package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"guardian-go/internal/app"
	"guardian-go/internal/config"
	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// passphraseEnv lets scripts supply the passphrase without a terminal.
const passphraseEnv = "GUARDIAN_PASSPHRASE"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(guardian.ExitCode(err))
	}
}

func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a GuardianApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "CreateBackup", "Restore").
func newApp(cmd *cobra.Command, operation string) (*app.GuardianApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")

	a, err := app.NewGuardianApp(cfg, app.Options{Operation: operation, Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// unlock prompts for the passphrase when the store is encrypted.
func unlock(a *app.GuardianApp) error {
	if !a.NeedsPassphrase() {
		return nil
	}
	passphrase, err := readPassphrase("Passphrase: ")
	if err != nil {
		return err
	}
	return a.Unlock(passphrase)
}

func readPassphrase(prompt string) (string, error) {
	if p := os.Getenv(passphraseEnv); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal to read the passphrase from; set %s", passphraseEnv)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func targetArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

var rootCmd = &cobra.Command{
	Use:           "guardian",
	Short:         "Personal backup and restore",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			userID = os.Getenv("USER")
		}
		if userID == "" {
			userID = uuid.New().String()
		}
		deviceID := uuid.New().String()

		cfg := config.NewConfig(userID, deviceID, defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("User ID:   %s\n", userID)
		fmt.Printf("Device ID: %s\n", deviceID)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("User ID:    %s\n", cfg.UserID)
		fmt.Printf("Device ID:  %s\n", cfg.DeviceID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		switch cfg.Repository.Type {
		case "remote":
			fmt.Printf("Repository: remote %s\n", cfg.Repository.URL)
		default:
			fmt.Printf("Repository: local (%s vault)\n", cfg.Vault.Type)
		}
		fmt.Printf("Encryption: %v\n", cfg.Encryption.Enabled)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		passphrase, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		if os.Getenv(passphraseEnv) == "" {
			confirm, err := readPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if confirm != passphrase {
				return errors.New("passphrases do not match")
			}
		}

		if err := app.InitKeys(cfg.Encryption, passphrase); err != nil {
			return fmt.Errorf("initializing keys: %w", err)
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s (passphrase protected)\n", cfg.Encryption.PrivateKeyPath)
		if !cfg.Encryption.Enabled {
			fmt.Println("Set encryption.enabled = true in the config to encrypt new blobs.")
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, inspect and restore backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create [PATH]",
	Short: "Snapshot a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		retention, _ := cmd.Flags().GetString("retention")
		interval, _ := cmd.Flags().GetString("interval")

		a, err := newApp(cmd, "CreateBackup")
		if err != nil {
			return err
		}
		defer a.Close()

		backup, stats, err := a.CreateBackup(targetArg(args), id, retention, interval)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Backup %s: %d snapshot(s), %d file(s), %s uploaded\n",
			backup.ID, len(backup.Snapshots), stats.Files, humanize.Bytes(stats.BytesUploaded))
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [PATH]",
	Short: "Restore the latest snapshot into a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")

		a, err := newApp(cmd, "Restore")
		if err != nil {
			return err
		}
		defer a.Close()
		if err := unlock(a); err != nil {
			return err
		}

		result, err := a.Restore(targetArg(args), id)
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		for _, d := range result.Applied {
			fmt.Println(d)
		}
		fmt.Printf("Restored snapshot of %s: %d change(s), %s written\n",
			result.Snapshot.Timestamp.Local().Format("2006-01-02 15:04:05"),
			len(result.Applied), humanize.Bytes(result.BytesWritten))
		return nil
	},
}

var backupStatusCmd = &cobra.Command{
	Use:   "status [PATH]",
	Short: "Show what a restore would change",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")

		a, err := newApp(cmd, "Status")
		if err != nil {
			return err
		}
		defer a.Close()
		if err := unlock(a); err != nil {
			return err
		}

		diffs, err := a.Status(targetArg(args), id)
		if err != nil {
			return err
		}
		if len(diffs) == 0 {
			fmt.Println("Up to date.")
			return nil
		}
		for _, d := range diffs {
			fmt.Println(d)
		}
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "List")
		if err != nil {
			return err
		}
		defer a.Close()

		summaries, err := a.ListBackups()
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("No backups.")
			return nil
		}

		for _, s := range summaries {
			size := "?"
			if s.SizeKnown {
				size = humanize.Bytes(s.TotalBytes)
			}
			latest := "never"
			if s.Latest != nil {
				latest = humanize.Time(*s.Latest)
			}
			var rules []string
			for _, r := range s.Schedule {
				rules = append(rules, "every "+r.Interval.String())
			}
			schedule := "manual"
			if len(rules) > 0 {
				schedule = strings.Join(rules, ", ")
			}
			fmt.Printf("%-20s  %-8s  %3d snapshot(s)  latest %-16s  expires %s  %s  %s  (%s)\n",
				s.ID, size, s.Snapshots, latest, formatTime(s.Expires), s.FileRoot, schedule, s.Device)
		}
		return nil
	},
}

var backupAutoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Run scheduled backups that are due on this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "RunDue")
		if err != nil {
			return err
		}
		defer a.Close()

		ran, err := a.RunDue()
		for _, id := range ran {
			fmt.Printf("Backed up %s\n", id)
		}
		if err != nil {
			return fmt.Errorf("scheduled backups: %w", err)
		}
		if len(ran) == 0 {
			fmt.Println("Nothing due.")
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "GetHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.GetHistory(limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-15s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the repository to remote clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Server.Listen = listen
		}
		verbose, _ := cmd.Flags().GetBool("verbose")

		srv, err := app.NewServerApp(cfg, verbose)
		if err != nil {
			return fmt.Errorf("initializing server: %w", err)
		}
		defer srv.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log per-file debug records")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("user", "", "User ID (defaults to $USER)")

	keysCmd.AddCommand(keysInitCmd)

	backupCmd.AddCommand(backupCreateCmd)
	backupCreateCmd.Flags().String("id", "", "Backup ID (generated when empty)")
	backupCreateCmd.Flags().String("retention", model.Month.String(), "How long the snapshot is kept (e.g. 30d, 2w, infinite)")
	backupCreateCmd.Flags().String("interval", "infinite", "Schedule interval for 'backup auto' (e.g. 1d, 12h)")

	backupCmd.AddCommand(backupRestoreCmd)
	backupRestoreCmd.Flags().String("id", "", "Backup ID")
	backupRestoreCmd.MarkFlagRequired("id")

	backupCmd.AddCommand(backupStatusCmd)
	backupStatusCmd.Flags().String("id", "", "Backup ID")
	backupStatusCmd.MarkFlagRequired("id")

	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupAutoCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Address to listen on (overrides server.listen)")
}
