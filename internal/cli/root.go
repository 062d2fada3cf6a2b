package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dieee-93/g-admin-sync/internal/policy"
	"github.com/dieee-93/g-admin-sync/internal/store"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Database string
	Policy   string
	Format   string // "json" | "text"
	Verbose  bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the gsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "gsync",
		Short: "gsync - offline-first command queue and sync engine",
		Long: `Manage a durable offline command queue backed by SQLite.

Commands enqueued while offline persist across restarts and replay in
priority order once connectivity returns. Unique-constraint collisions
are recorded as conflicts and resolved by a strategy chain.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			configureLogging(opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.PersistentFlags().StringVar(&opts.Policy, "policy", "", "path to CUE policy file (optional, defaults apply)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewEnqueueCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewConflictsCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func configureLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// openStore opens the SQLite database named by the global --db flag.
func openStore(opts *RootOptions) (*store.Store, error) {
	if opts.Database == "" {
		return nil, NewExitError(ExitCommandError, "--db is required")
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// loadPolicy resolves the effective policy: the CUE file named by
// --policy merged over defaults, or plain defaults when the flag is
// unset.
func loadPolicy(opts *RootOptions) (policy.Policy, error) {
	if opts.Policy == "" {
		return policy.Default(), nil
	}
	pol, err := policy.Load(opts.Policy)
	if err != nil {
		return policy.Policy{}, WrapExitError(ExitCommandError, "failed to load policy", err)
	}
	return pol, nil
}
