package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewJobCmd создаёт группу команд для управления jobs.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Submit and inspect jobs",
	}

	cmd.AddCommand(
		newJobSubmitCmd(clientFn, outputFn),
		newJobListCmd(clientFn, outputFn),
		newJobShowCmd(clientFn, outputFn),
		newJobCancelCmd(clientFn, outputFn),
		newJobOutputsCmd(clientFn, outputFn),
		newJobDownloadCmd(clientFn, outputFn),
	)

	return cmd
}

func newJobSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var inputs []string
	var key string
	var wait bool
	var pollInterval time.Duration

	cmd := &cobra.Command{
		Use:   "submit PROCESS_ID",
		Short: "Submit a job for a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			parsed, err := parseInputs(inputs)
			if err != nil {
				return err
			}

			job, err := client.SubmitJob(args[0], SubmitJobRequest{Inputs: parsed, IdempotencyKey: key})
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Job submitted: %s", job.ID))

			if wait {
				job, err = waitJob(cmd, client, out, job.ID, pollInterval)
				if err != nil {
					return err
				}
			}

			printJob(out, job)
			if wait && job.Status != "SUCCEEDED" {
				return fmt.Errorf("job %s finished with status %s", job.ID, job.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key for safe retries")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the job finishes")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 2*time.Second, "Status poll interval with --wait")

	return cmd
}

// waitJob опрашивает job, пока он не перейдёт в финальный статус.
func waitJob(cmd *cobra.Command, client *Client, out *Output, id string, interval time.Duration) (*JobResponse, error) {
	ctx := cmd.Context()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastMsg := ""
	for {
		job, err := client.GetJob(id)
		if err != nil {
			return nil, err
		}
		if job.StatusMessage != "" && job.StatusMessage != lastMsg {
			out.Progress(job.Progress, job.StatusMessage)
			lastMsg = job.StatusMessage
		}
		if job.IsFinished() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListJobsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = []string{j.ID, j.ProcessID, j.Status, strconv.Itoa(j.Progress) + "%", j.CreatedAt}
			}

			out.Print([]string{"ID", "PROCESS", "STATUS", "PROGRESS", "CREATED"}, rows, jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ProcessID, "process", "", "Filter by process ID")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (QUEUED, RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of jobs")

	return cmd
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.GetJob(args[0])
			if err != nil {
				return err
			}

			printJob(out, job)
			return nil
		},
	}
}

func newJobCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a queued job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if _, err := client.CancelJob(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job cancelled: %s", args[0]))
			return nil
		},
	}
}

func newJobOutputsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "outputs ID",
		Short: "List job outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.GetJob(args[0])
			if err != nil {
				return err
			}

			out.KeyValues("NAME", "LOCATION", job.Outputs)
			return nil
		},
	}
}

func newJobDownloadCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "download ID NAME",
		Short: "Download a job output",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var w io.Writer = out.Writer()
			if dest != "" {
				f, err := os.Create(dest)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", dest, err)
				}
				defer f.Close()
				w = f
			}

			if err := client.DownloadOutput(args[0], args[1], w); err != nil {
				return err
			}

			if dest != "" {
				out.Success(fmt.Sprintf("Saved %s to %s", args[1], dest))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dest, "output", "o", "", "Write to file instead of stdout")

	return cmd
}

// parseInputs разбирает флаги KEY=VALUE. Типы приводятся на стороне API.
func parseInputs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	inputs := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
		}
		inputs[key] = value
	}
	return inputs, nil
}

func printJob(out *Output, job *JobResponse) {
	if out.JSONMode() {
		out.JSON(job)
		return
	}

	out.Table(
		[]string{"ID", "PROCESS", "STATUS", "PROGRESS", "STARTED", "FINISHED"},
		[][]string{{
			job.ID, job.ProcessID, job.Status, strconv.Itoa(job.Progress) + "%",
			job.StartedAt, job.FinishedAt,
		}},
	)
	if job.StatusMessage != "" {
		fmt.Fprintf(out.Writer(), "\nMessage: %s\n", job.StatusMessage)
	}
	if job.Error != "" {
		fmt.Fprintf(out.Writer(), "Error:   %s\n", job.Error)
	}
	if len(job.Outputs) > 0 {
		fmt.Fprintln(out.Writer())
		out.KeyValues("OUTPUT", "LOCATION", job.Outputs)
	}
}
