// Command issuer is a local-first issue tracker for a shared folder.
//
// The authoritative database lives on a network share and is opened
// concurrently by independent machines with no server. Every mutating
// command captures a change record into the shared outbox; the watch
// command replays peers' records into the local copy; the merge
// command consolidates everything back into the authoritative file.
package main

import (
	"fmt"
	"log"
	"os"
	"os/user"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ctenopoma/issuer/internal/config"
	"github.com/ctenopoma/issuer/internal/debuglog"
	"github.com/ctenopoma/issuer/internal/replica"
	"github.com/ctenopoma/issuer/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "issuer",
	Short: "Shared-folder issue tracker",
	Long: `issuer tracks issues in a SQLite database on a shared folder.

Multiple machines may work concurrently: each keeps a local working
copy, mutations replicate through change records in a hidden outbox
on the share, and consolidation folds everything back into the
authoritative database file.`,
	SilenceUsage: true,
}

// app bundles the open resources a command needs.
type app struct {
	cfg    *config.Config
	store  *store.Store
	outbox *replica.Outbox
	logger *log.Logger
}

var flagViper = viper.New()

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("shared-dir", "", "authoritative shared directory (env ISSUER_SHARED_DIR)")
	pf.String("data-dir", "", "local working directory (env ISSUER_DATA_DIR)")
	pf.String("machine", "", "machine identity for change records (env ISSUER_MACHINE_NAME)")

	_ = flagViper.BindPFlag("shared_dir", pf.Lookup("shared-dir"))
	_ = flagViper.BindPFlag("data_dir", pf.Lookup("data-dir"))
	_ = flagViper.BindPFlag("machine_name", pf.Lookup("machine"))
}

// openApp loads configuration, bootstraps the local working copy and
// opens the store and outbox. The caller must close() the result.
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	// Command-line flags override config file and environment.
	if v := flagViper.GetString("shared_dir"); v != "" {
		cfg.SharedDir = v
	}
	if v := flagViper.GetString("data_dir"); v != "" {
		cfg.DataDir = v
	}
	if v := flagViper.GetString("machine_name"); v != "" {
		cfg.MachineName = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	logger := debuglog.New(cfg.DataDir, "")

	if err := replica.BootstrapLocal(cfg.MasterDBPath(), cfg.LocalDBPath()); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.LocalDBPath())
	if err != nil {
		return nil, err
	}

	outbox := replica.NewOutbox(cfg.OutboxDir(), cfg.MachineName, logger)

	return &app{cfg: cfg, store: st, outbox: outbox, logger: logger}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Printf("Warning: failed to close store: %v", err)
	}
}

// capture records one committed mutation in the outbox. Failures are
// logged and swallowed: replication is best-effort and must never
// fail the command that triggered it.
func (a *app) capture(action replica.Action, table string, targetID int64, changes replica.Fields) {
	if err := a.outbox.Capture(action, table, targetID, changes); err != nil {
		a.logger.Printf("Warning: failed to capture %s on %s id=%d: %v", action, table, targetID, err)
	}
}

// withApp opens the app, runs fn and closes the app again.
func withApp(fn func(a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

// currentUser returns the acting user name for created_by fields.
func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
