package cli

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewStatusCmd создаёт команду вывода состояния системы.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			status, err := client.Status()
			if err != nil {
				return err
			}

			out.Detail([]Field{
				{"Queued", strconv.Itoa(status.QueuedCount)},
				{"Processing", strconv.Itoa(status.ProcessingCount)},
				{"Completed", strconv.FormatInt(status.CompletedCount, 10)},
				{"Worker utilization", fmt.Sprintf("%.1f%%", status.WorkerUtilizationPercent)},
				{"Avg processing", fmt.Sprintf("%d ms", status.Stats.AverageProcessingTimeMs)},
				{"Success rate", fmt.Sprintf("%.2f", status.Stats.SuccessRate)},
			}, status)
			return nil
		},
	}
}

// NewHaltCmd создаёт команду аварийной остановки.
func NewHaltCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "halt",
		Short: "Emergency stop: stop all jobs and clear the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if !yes {
				fmt.Fprint(cmd.ErrOrStderr(), "Stop all processing and clear the queue? [y/N]: ")
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					out.Success("Aborted")
					return nil
				}
			}

			report, err := client.Halt()
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Halted: %d processing stopped, %d queued cleared",
				report.StoppedProcessing, report.ClearedQueued))
			out.Result(report)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	return cmd
}

// NewWorkerCmd создаёт группу команд для управления workers.
func NewWorkerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage workers",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List workers",
			RunE: func(cmd *cobra.Command, args []string) error {
				client := clientFn()
				out := outputFn()

				workers, err := client.ListWorkers()
				if err != nil {
					return err
				}

				headers := []string{"ID", "CAPABILITIES", "LOAD", "AVAILABLE"}
				rows := make([][]string, len(workers))
				for i, w := range workers {
					rows[i] = []string{
						w.ID,
						strings.Join(w.Capabilities, ","),
						fmt.Sprintf("%d/%d", w.CurrentLoad, w.MaxConcurrentJobs),
						strconv.FormatBool(w.Available),
					}
				}

				out.List(headers, rows, workers)
				return nil
			},
		},
		newWorkerRegisterCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkerRegisterCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var capabilities []string
	var maxJobs int

	cmd := &cobra.Command{
		Use:   "register WORKER_ID",
		Short: "Register a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			err := client.RegisterWorker(RegisterWorkerRequest{
				ID:                args[0],
				Capabilities:      capabilities,
				MaxConcurrentJobs: maxJobs,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Worker registered: %s", args[0]))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&capabilities, "capability", nil, "Capability tag (repeatable)")
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 1, "Maximum concurrent jobs")

	return cmd
}

// NewArchiveCmd создаёт команду просмотра архива завершённых job.
func NewArchiveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "List recently finished jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			events, err := client.ListArchive(limit)
			if err != nil {
				return err
			}

			headers := []string{"JOB_ID", "STATUS", "SUCCESS", "DURATION_MS", "COMPLETED"}
			rows := make([][]string, len(events))
			for i, e := range events {
				rows[i] = []string{
					e.JobID,
					e.Status,
					strconv.FormatBool(e.Success),
					strconv.FormatInt(e.DurationMs, 10),
					e.CompletedAt,
				}
			}

			out.List(headers, rows, events)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

// NewScheduleCmd создаёт команду просмотра расписаний.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "schedules",
		Short: "List recurring job schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedules, err := client.ListSchedules()
			if err != nil {
				return err
			}

			headers := []string{"NAME", "TRIGGER", "ENABLED", "NEXT_DUE", "RUNS", "LAST_JOB"}
			rows := make([][]string, len(schedules))
			for i, s := range schedules {
				trigger := s.CronExpr
				if trigger == "" {
					trigger = fmt.Sprintf("every %ds", s.IntervalSec)
				}
				rows[i] = []string{
					s.Name,
					trigger,
					strconv.FormatBool(s.Enabled),
					s.NextDueAt,
					strconv.Itoa(s.RunCount),
					s.LastJobID,
				}
			}

			out.List(headers, rows, schedules)
			return nil
		},
	}
}
