package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dieee-93/g-admin-sync/internal/engine"
	"github.com/dieee-93/g-admin-sync/internal/queue"
	"github.com/dieee-93/g-admin-sync/internal/remote"
	"github.com/dieee-93/g-admin-sync/internal/resolve"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Endpoint string

	// Service allows overriding the remote service (for testing).
	// If nil, an HTTP service is built from --endpoint.
	Service remote.Service
}

// syncResult is the JSON payload reported after a replay pass.
type syncResult struct {
	Synced  int  `json:"synced"`
	Failed  int  `json:"failed"`
	Pending int  `json:"pending"`
	Skipped bool `json:"skipped"` // nothing was eligible to replay
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one replay pass against the remote",
		Long: `Replay eligible pending commands against the remote service.

Commands replay in priority order. Failures reschedule with exponential
backoff; commands inside their backoff window are skipped. Conflict
failures carrying the winning remote record are recorded and resolved
through the strategy chain.

Example:
  gsync sync --db ./sync.db --endpoint https://api.example.com/v1`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "", "base URL of the remote service")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	svc := opts.Service
	if svc == nil {
		if opts.Endpoint == "" {
			return NewExitError(ExitCommandError, "--endpoint is required")
		}
		httpSvc, err := remote.NewHTTPService(remote.HTTPServiceOptions{
			BaseURL:   opts.Endpoint,
			UserAgent: "gsync",
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid endpoint", err)
		}
		svc = httpSvc
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

	logger := slog.Default()
	if !opts.Verbose {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	q := queue.New(st, pol)
	resolver := resolve.New(st, pol, resolve.WithLogger(logger))
	eng := engine.New(st, q, svc,
		engine.WithPolicy(pol),
		engine.WithResolver(resolver),
		engine.WithLogger(logger),
	)

	// Watch the completion event for the pass counts.
	events, cancelEvents := q.Bus().Subscribe(256)
	defer cancelEvents()

	if err := eng.Resume(cmd.Context()); err != nil {
		return WrapExitError(ExitCommandError, "failed to resume in-flight commands", err)
	}

	result := syncResult{}
	syncErr := eng.Sync(cmd.Context())
	switch {
	case syncErr == nil:
	case errors.Is(syncErr, engine.ErrNothingPending):
		result.Skipped = true
	default:
		return WrapExitError(ExitFailure, "sync failed", syncErr)
	}

drain:
	for {
		select {
		case ev := <-events:
			if ev.Type == queue.EventSyncCompleted {
				result.Synced = ev.SuccessCount
				result.Failed = ev.FailureCount
			}
		default:
			break drain
		}
	}

	stats, err := st.QueueStats(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue stats", err)
	}
	result.Pending = stats.Pending

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else if result.Skipped {
		fmt.Fprintln(formatter.Writer, "nothing to sync")
	} else {
		fmt.Fprintf(formatter.Writer, "synced %d, failed %d, pending %d\n",
			result.Synced, result.Failed, result.Pending)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d command(s) failed to sync", result.Failed))
	}
	return nil
}
