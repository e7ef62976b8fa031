package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/db"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/mq"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/outbox"
)

type outboxReplayOptions struct {
	*RootOptions
	EventID int64
	Failed  bool
	Limit   int
}

type outboxReplayResult struct {
	EventID  int64 `json:"event_id,omitempty"`
	Replayed int   `json:"replayed"`
}

func newOutboxCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and repair the event outbox",
	}
	cmd.AddCommand(newOutboxReplayCommand(rootOpts))
	return cmd
}

func newOutboxReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &outboxReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Republish one outbox event or the failed backlog",
		Long: `Republish outbox events to the events exchange.

Examples:
  nexusctl outbox replay --id 42
  nexusctl outbox replay --failed --limit 500`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutboxReplay(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.EventID, "id", 0, "outbox event id")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "replay failed events")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum failed events to replay")
	cmd.MarkFlagsMutuallyExclusive("id", "failed")
	cmd.MarkFlagsOneRequired("id", "failed")

	return cmd
}

func (o *outboxReplayOptions) validate() error {
	if !o.Failed && o.EventID <= 0 {
		return wrapExitError(ExitCommandError, "--id must be a positive event id", nil)
	}
	if o.Failed && o.Limit <= 0 {
		return wrapExitError(ExitCommandError, "--limit must be positive", nil)
	}
	return nil
}

func runOutboxReplay(ctx context.Context, opts *outboxReplayOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	log, err := opts.newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	pool, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		return wrapExitError(ExitCommandError, "failed to connect to database", err)
	}
	defer pool.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.Named("nexusctl"))
	if err != nil {
		return wrapExitError(ExitCommandError, "failed to connect to broker", err)
	}
	defer publisher.Close()

	replay := outbox.NewReplayService(outbox.NewRepository(pool), publisher, log).
		WithMaxRetries(cfg.Outbox.MaxRetries)

	if opts.Failed {
		n, err := replay.ReplayFailedEvents(ctx, opts.Limit)
		if err != nil {
			return wrapExitError(ExitFailure, "replay failed", err)
		}
		return opts.print(cmd.OutOrStdout(), outboxReplayResult{Replayed: n}, fmt.Sprintf("replayed %d failed event(s)", n))
	}

	if err := replay.ReplayEvent(ctx, opts.EventID); err != nil {
		return wrapExitError(ExitFailure, fmt.Sprintf("replay of event %d failed", opts.EventID), err)
	}
	return opts.print(cmd.OutOrStdout(), outboxReplayResult{EventID: opts.EventID, Replayed: 1}, fmt.Sprintf("replayed event %d", opts.EventID))
}
