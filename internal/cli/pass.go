package cli

import (
	"github.com/spf13/cobra"

	"github.com/shaiso/Synchronizer/internal/synchronizer"
)

// NewRunCmd создаёт команду одного обычного прохода.
func NewRunCmd(envFn func() (*Env, error), outputFn func() *Output) *cobra.Command {
	var forceAll bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Enqueue synchronizations that are due",
		Long: "Selects synchronizations whose run_at has passed (SUCCESS, or FAILURE with\n" +
			"retries left), marks them QUEUED and publishes a job for each.\n" +
			"--force-all enqueues every SUCCESS and SYNCING synchronization regardless of run_at.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(cmd, envFn, outputFn, func(s *synchronizer.Synchronizer) synchronizer.Report {
				if forceAll {
					return s.Fetch(cmd.Context(), true)
				}
				return s.Run(cmd.Context())
			})
		},
	}

	cmd.Flags().BoolVar(&forceAll, "force-all", false, "Enqueue all SUCCESS and SYNCING synchronizations")

	return cmd
}

// NewStalledCmd создаёт команду поиска зависших синхронизаций.
func NewStalledCmd(envFn func() (*Env, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stalled",
		Short: "Re-enqueue synchronizations stuck in SYNCING",
		Long: "Selects synchronizations that have been SYNCING for longer than\n" +
			"SYNC_STALLING_MAX_TIME (default 3h) and enqueues them again.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(cmd, envFn, outputFn, func(s *synchronizer.Synchronizer) synchronizer.Report {
				return s.EnqueueStalled(cmd.Context())
			})
		},
	}
}

func runPass(cmd *cobra.Command, envFn func() (*Env, error), outputFn func() *Output, pass func(*synchronizer.Synchronizer) synchronizer.Report) error {
	env, err := envFn()
	if err != nil {
		return err
	}

	app, err := NewApp(cmd.Context(), env, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	report := pass(app.Sync)
	outputFn().Report(report)

	return passError(report)
}
