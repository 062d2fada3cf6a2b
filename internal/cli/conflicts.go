package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dieee-93/g-admin-sync/internal/resolve"
	"github.com/dieee-93/g-admin-sync/internal/store"
)

// ConflictsOptions holds flags for the conflicts subcommands.
type ConflictsOptions struct {
	*RootOptions
	Prefer string // "local" | "remote" | ""
}

// conflictRow is the JSON shape of one active conflict.
type conflictRow struct {
	ID          int64  `json:"id"`
	EntityType  string `json:"entityType"`
	EntityID    string `json:"entityId"`
	Field       string `json:"field"`
	FieldType   string `json:"fieldType"`
	LocalValue  string `json:"localValue"`
	RemoteValue string `json:"remoteValue"`
	DetectedAt  string `json:"detectedAt"`
}

// resolveResult is the JSON payload after a resolve attempt.
type resolveResult struct {
	ConflictID    int64  `json:"conflictId"`
	Resolved      bool   `json:"resolved"`
	Strategy      string `json:"strategy"`
	Confidence    int    `json:"confidence"`
	Explanation   string `json:"explanation"`
	NeedsApproval bool   `json:"needsApproval,omitempty"`
}

// NewConflictsCommand creates the conflicts command group.
func NewConflictsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Inspect and resolve the active conflict set",
	}

	cmd.AddCommand(newConflictsListCommand(rootOpts))
	cmd.AddCommand(newConflictsResolveCommand(rootOpts))

	return cmd
}

func newConflictsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List unresolved conflicts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConflictsList(rootOpts, cmd)
		},
	}
}

func newConflictsResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConflictsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Resolve a conflict through the strategy chain",
		Long: `Run a stored conflict through the resolution strategy chain.

With --prefer, a sticky preference is recorded for the conflict's
(entity-type, field) first, so this and future divergences on the same
field resolve the chosen way without asking again.

Example:
  gsync conflicts resolve 3 --db ./sync.db --prefer remote`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConflictsResolve(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Prefer, "prefer", "", "record a sticky preference (local|remote)")

	return cmd
}

func runConflictsList(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.ListConflicts(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list conflicts", err)
	}

	rows := make([]conflictRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, conflictRow{
			ID:          rec.ID,
			EntityType:  rec.EntityType,
			EntityID:    rec.EntityID,
			Field:       rec.Field,
			FieldType:   rec.FieldType,
			LocalValue:  string(rec.LocalValue),
			RemoteValue: string(rec.RemoteValue),
			DetectedAt:  rec.DetectedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	if opts.Format == "json" {
		return formatter.Success(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(formatter.Writer, "no unresolved conflicts")
		return nil
	}
	w := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENTITY\tFIELD\tLOCAL\tREMOTE\tDETECTED")
	for _, row := range rows {
		fmt.Fprintf(w, "%d\t%s/%s\t%s\t%s\t%s\t%s\n",
			row.ID, row.EntityType, row.EntityID, row.Field,
			row.LocalValue, row.RemoteValue, row.DetectedAt)
	}
	return w.Flush()
}

func runConflictsResolve(opts *ConflictsOptions, rawID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid conflict id %q", rawID))
	}

	var preference string
	switch opts.Prefer {
	case "":
	case "local":
		preference = store.PreferAlwaysLocal
	case "remote":
		preference = store.PreferAlwaysRemote
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid preference %q (local|remote)", opts.Prefer))
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	pol, err := loadPolicy(opts.RootOptions)
	if err != nil {
		return err
	}

	records, err := st.ListConflicts(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list conflicts", err)
	}
	var rec *store.ConflictRecord
	for i := range records {
		if records[i].ID == id {
			rec = &records[i]
			break
		}
	}
	if rec == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("conflict %d not found", id))
	}

	if preference != "" {
		if err := st.SetPreference(cmd.Context(), rec.EntityType, rec.Field, preference); err != nil {
			return WrapExitError(ExitCommandError, "failed to record preference", err)
		}
		formatter.VerboseLog("recorded preference %s for %s.%s", preference, rec.EntityType, rec.Field)
	}

	logger := slog.Default()
	if !opts.Verbose {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	resolver := resolve.New(st, pol, resolve.WithLogger(logger))

	out, err := resolver.ResolveRecord(cmd.Context(), *rec)
	if err != nil {
		return WrapExitError(ExitFailure, "resolution failed", err)
	}

	result := resolveResult{
		ConflictID:    id,
		Resolved:      out.Success && !out.RequiresUserConfirmation,
		Strategy:      out.Strategy,
		Confidence:    out.Confidence,
		Explanation:   out.Explanation,
		NeedsApproval: out.RequiresUserConfirmation,
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else if result.Resolved {
		fmt.Fprintf(formatter.Writer, "resolved by %s (confidence %d): %s\n",
			result.Strategy, result.Confidence, result.Explanation)
	} else {
		fmt.Fprintf(formatter.Writer, "unresolved (%s): %s\n", result.Strategy, result.Explanation)
	}

	if !result.Resolved {
		return NewExitError(ExitFailure, "conflict requires manual resolution")
	}
	return nil
}
