package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dieee-93/g-admin-sync/internal/command"
	"github.com/dieee-93/g-admin-sync/internal/queue"
)

// EnqueueOptions holds flags for the enqueue command.
type EnqueueOptions struct {
	*RootOptions
	EntityID string
	Payload  string

	// IDGenerator allows overriding entity id generation (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator command.IDGenerator
}

// enqueueResult is the JSON payload reported after an enqueue.
type enqueueResult struct {
	CommandID  int64  `json:"commandId"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Operation  string `json:"operation"`
	Duplicate  bool   `json:"duplicate"`
}

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnqueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "enqueue <entity-type> <operation>",
		Short: "Queue a mutation for later replay",
		Long: `Queue a create, update, or delete for replay against the remote.

Creates without --id get a client-generated UUIDv7 so the entity can be
referenced before it ever reaches the remote. Enqueueing an equivalent
(entity-type, entity-id, operation) while one is already queued is a
no-op and reports duplicate.

Example:
  gsync enqueue materials create --db ./sync.db --payload '{"name":"flour"}'
  gsync enqueue sales update --db ./sync.db --id s1 --payload '{"total":99.50}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EntityID, "id", "", "entity id (generated for create when omitted)")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "JSON payload for the mutation")

	return cmd
}

func runEnqueue(opts *EnqueueOptions, entityType, operation string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	op := command.Operation(operation)
	if !op.Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown operation %q (create|update|delete)", operation))
	}

	entityID := opts.EntityID
	if entityID == "" && op == command.OpCreate {
		gen := opts.IDGenerator
		if gen == nil {
			gen = command.UUIDv7Generator{}
		}
		entityID = gen.Generate()
		formatter.VerboseLog("generated entity id %s", entityID)
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

	q := queue.New(st, pol)
	id, err := q.Enqueue(cmd.Context(), entityType, entityID, op, json.RawMessage(opts.Payload))
	if err != nil {
		return WrapExitError(ExitCommandError, "enqueue failed", err)
	}

	result := enqueueResult{
		CommandID:  id,
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  operation,
		Duplicate:  id == queue.Duplicate,
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	if result.Duplicate {
		fmt.Fprintf(formatter.Writer, "duplicate: %s %s/%s already queued\n", operation, entityType, entityID)
		return nil
	}
	fmt.Fprintf(formatter.Writer, "enqueued #%d: %s %s/%s\n", id, operation, entityType, entityID)
	return nil
}
