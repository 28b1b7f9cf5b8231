package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"custody-go/internal/app"
	"custody-go/internal/config"
	"custody-go/internal/custody"
	"custody-go/internal/identity"
	"custody-go/internal/model"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var ce *custody.Error
		if errors.As(err, &ce) && ce.Kind == custody.KindPending && ce.TxID != "" {
			fmt.Fprintf(os.Stderr, "transaction %s was submitted but is not confirmed yet\n", ce.TxID)
		}
		os.Exit(1)
	}
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "CreateDocument").
// Read-only commands never unlock the identity key.
func newApp(ctx context.Context, operation string, readOnly bool) (*app.App, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, app.Options{
		Operation:  operation,
		Passphrase: promptPassphrase,
		ReadOnly:   readOnly,
		Stderr:     os.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// promptPassphrase reads the key passphrase from CUSTODY_PASSPHRASE or the terminal.
func promptPassphrase() (string, error) {
	if p := os.Getenv("CUSTODY_PASSPHRASE"); p != "" {
		return p, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal available for passphrase prompt (set CUSTODY_PASSPHRASE)")
	}
	fmt.Fprint(os.Stderr, "Passphrase: ")
	p, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(p), nil
}

var rootCmd = &cobra.Command{
	Use:          "custody",
	Short:        "Tamper-evident document custody ledger",
	SilenceUsage: true,
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

		cfg := config.NewConfig(defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
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
		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Ledger:   %s\n", cfg.Ledger.Type)
		fmt.Printf("Content:  %s\n", cfg.Content.Type)
		fmt.Printf("Key:      %s\n", cfg.Identity.KeyPath)
		return nil
	},
}

// identity command
var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage the signing identity",
}

var identityInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a signing key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		kf := identity.NewKeyFile(cfg.Identity)

		var pass string
		if kf.Encrypted() {
			if pass, err = promptPassphrase(); err != nil {
				return err
			}
			if os.Getenv("CUSTODY_PASSPHRASE") == "" {
				again, err := promptPassphrase()
				if err != nil {
					return err
				}
				if again != pass {
					return fmt.Errorf("passphrases do not match")
				}
			}
		}

		signer, err := kf.Setup(pass)
		if err != nil {
			return err
		}
		fmt.Printf("Key written to %s\n", cfg.Identity.KeyPath)
		fmt.Printf("Address: %s\n", signer.Address())
		return nil
	},
}

var identityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the identity's ledger address",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		addr, err := identity.NewKeyFile(cfg.Identity).Address()
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil
	},
}

// ledger command
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Operate the ledger",
}

var ledgerServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the configured ledger over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")

		a, err := newApp(cmd.Context(), "ServeGateway", true)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.ServeGateway(cmd.Context(), listen)
	},
}

var ledgerBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the sqlite ledger into the content store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "BackupLedger", true)
		if err != nil {
			return err
		}
		defer a.Close()

		ref, size, err := a.BackupLedger(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Ledger backed up: %s (%d bytes)\n", ref, size)
		return nil
	},
}

var ledgerRestoreCmd = &cobra.Command{
	Use:   "restore REF",
	Short: "Replace the sqlite ledger with a snapshot from the content store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := model.ParseContentRef(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "RestoreLedger", true)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RestoreLedger(cmd.Context(), ref); err != nil {
			return err
		}
		fmt.Printf("Ledger restored from %s\n", ref)
		return nil
	},
}

var ledgerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the ledger type and schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "LedgerStatus", true)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.LedgerStatus()
		if err != nil {
			return err
		}
		fmt.Printf("Ledger: %s\n", st.Type)
		if st.Path == "" {
			return nil
		}
		fmt.Printf("Path:   %s\n", st.Path)
		fmt.Printf("Schema: %d (latest %d)", st.Schema.Version, st.Schema.Latest)
		if st.Schema.Dirty {
			fmt.Print(" dirty")
		}
		fmt.Println()
		if st.SchemaErr != nil {
			return fmt.Errorf("schema not current: %w", st.SchemaErr)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// identity subcommands
	identityCmd.AddCommand(identityInitCmd)
	identityCmd.AddCommand(identityShowCmd)

	// ledger subcommands
	ledgerCmd.AddCommand(ledgerServeCmd)
	ledgerServeCmd.Flags().String("listen", "", "Address to listen on (default from config)")
	ledgerCmd.AddCommand(ledgerBackupCmd)
	ledgerCmd.AddCommand(ledgerRestoreCmd)
	ledgerCmd.AddCommand(ledgerStatusCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(docCmd)
}
