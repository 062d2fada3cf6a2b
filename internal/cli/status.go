package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dieee-93/g-admin-sync/internal/command"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	ShowPending bool
}

// statusResult is the JSON payload for the status command.
type statusResult struct {
	Stats   command.QueueStats `json:"stats"`
	Pending []pendingCommand   `json:"pending,omitempty"`
}

type pendingCommand struct {
	ID          int64  `json:"id"`
	EntityType  string `json:"entityType"`
	EntityID    string `json:"entityId"`
	Operation   string `json:"operation"`
	Priority    int    `json:"priority"`
	RetryCount  int    `json:"retryCount"`
	NextRetryAt int64  `json:"nextRetryAt,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue statistics",
		Long: `Show the persisted queue broken down by status.

With --pending, also lists pending commands in replay order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.ShowPending, "pending", false, "list pending commands in replay order")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.QueueStats(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue stats", err)
	}

	result := statusResult{Stats: stats}
	if opts.ShowPending {
		pending, err := st.PendingCommands(cmd.Context())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list pending commands", err)
		}
		for _, c := range pending {
			pc := pendingCommand{
				ID:          c.ID,
				EntityType:  c.EntityType,
				EntityID:    c.EntityID,
				Operation:   string(c.Operation),
				Priority:    c.Priority,
				RetryCount:  c.RetryCount,
				NextRetryAt: c.NextRetryAt,
			}
			if c.LastError != nil {
				pc.LastError = c.LastError.Message
			}
			result.Pending = append(result.Pending, pc)
		}
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "total %d  pending %d  syncing %d  failed %d\n",
		stats.Total, stats.Pending, stats.Syncing, stats.Failed)

	if opts.ShowPending && len(result.Pending) > 0 {
		fmt.Fprintln(formatter.Writer)
		w := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tENTITY\tOP\tPRIORITY\tRETRIES\tLAST ERROR")
		for _, pc := range result.Pending {
			fmt.Fprintf(w, "%d\t%s/%s\t%s\t%d\t%d\t%s\n",
				pc.ID, pc.EntityType, pc.EntityID, pc.Operation, pc.Priority, pc.RetryCount, pc.LastError)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}
