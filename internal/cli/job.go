package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewJobCmd создаёт группу команд для управления job.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return newJobCmd(clientFn, outputFn, DialBroker)
}

func newJobCmd(clientFn func() *Client, outputFn func() *Output, dial DialFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage jobs",
	}

	cmd.AddCommand(
		newJobSubmitCmd(clientFn, outputFn, dial),
		newJobShowCmd(clientFn, outputFn),
		newJobListCmd(clientFn, outputFn),
	)

	return cmd
}

func newJobSubmitCmd(clientFn func() *Client, outputFn func() *Output, dial DialFunc) *cobra.Command {
	var file string
	var brokerURL string
	var stages []string
	var capabilities []string
	var priority int
	var workers int
	var timeoutSec int
	var payload []string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a job",
		Long: `Submit a job from a YAML file (-f) or from flags.

Flags override the corresponding fields of the file.
With --broker the spec is published to the job.submitted queue instead of
the HTTP API; the server assigns the job ID when it consumes the message.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var spec JobSpecRequest
			if file != "" {
				loaded, err := loadJobSpec(file)
				if err != nil {
					return err
				}
				spec = *loaded
			}

			if len(stages) > 0 {
				spec.Stages = stages
			}
			if len(capabilities) > 0 {
				spec.RequiredCapabilities = capabilities
			}
			if cmd.Flags().Changed("priority") {
				spec.Priority = &priority
			}
			if cmd.Flags().Changed("workers") {
				spec.WorkerCount = workers
			}
			if cmd.Flags().Changed("timeout") {
				spec.TimeoutSec = timeoutSec
			}
			if len(payload) > 0 {
				if spec.Payload == nil {
					spec.Payload = make(map[string]any)
				}
				for _, kv := range payload {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid payload format %q, expected KEY=VALUE", kv)
					}
					spec.Payload[parts[0]] = parts[1]
				}
			}

			if len(spec.Stages) == 0 {
				return fmt.Errorf("no stages: use -f FILE or --stage")
			}

			if brokerURL != "" {
				if err := publishToBroker(dial, brokerURL, spec); err != nil {
					return err
				}
				out.Success("Job spec published to broker")
				return nil
			}

			resp, err := client.SubmitJob(spec)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job submitted: %s", resp.ID))
			out.Detail([]Field{
				{"ID", resp.ID},
				{"Status", resp.Status},
			}, resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to job spec YAML file")
	cmd.Flags().StringSliceVar(&stages, "stage", nil, "Stage name (repeatable, in order)")
	cmd.Flags().StringSliceVar(&capabilities, "capability", nil, "Required capability tag (repeatable)")
	cmd.Flags().IntVar(&priority, "priority", 5, "Job priority (higher dispatches first)")
	cmd.Flags().IntVar(&workers, "workers", 1, "Number of workers to reserve")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 0, "Pipeline timeout in seconds (0 = none)")
	cmd.Flags().StringSliceVar(&payload, "payload", nil, "Payload values as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&brokerURL, "broker", os.Getenv("FOUNDRY_BROKER_URL"), "Publish via AMQP broker URL instead of the API")

	return cmd
}

// loadJobSpec читает JobSpecRequest из YAML-файла.
func loadJobSpec(path string) (*JobSpecRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var spec JobSpecRequest
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse job spec: %w", err)
	}
	return &spec, nil
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show JOB_ID",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.GetJob(args[0])
			if err != nil {
				return err
			}

			score := "-"
			if job.QualityScore != nil {
				score = strconv.FormatFloat(*job.QualityScore, 'f', 2, 64)
			}

			out.Detail([]Field{
				{"ID", job.ID},
				{"Status", job.Status},
				{"Stage", job.CurrentStage},
				{"Progress", fmt.Sprintf("%.0f%%", job.Progress)},
				{"Quality", score},
				{"Success", strconv.FormatBool(job.Success)},
				{"Workers", strings.Join(job.AssignedWorkers, ", ")},
				{"Error", job.Error},
			}, job)
			return nil
		},
	}
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs(strings.ToUpper(status))
			if err != nil {
				return err
			}

			headers := []string{"ID", "STATUS", "PRIORITY", "STAGE", "PROGRESS", "CREATED"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = []string{
					j.ID,
					j.Status,
					strconv.Itoa(j.Priority),
					j.CurrentStage,
					fmt.Sprintf("%.0f%%", j.Progress),
					j.CreatedAt,
				}
			}

			out.List(headers, rows, jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (QUEUED, PROCESSING, COMPLETED, STOPPED, FAILED)")

	return cmd
}
