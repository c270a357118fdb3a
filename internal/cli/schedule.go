package cli

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт группу команд для периодических запусков процессов.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run processes periodically",
	}

	cmd.AddCommand(
		newScheduleListCmd(clientFn, outputFn),
		newScheduleCreateCmd(clientFn, outputFn),
		newScheduleShowCmd(clientFn, outputFn),
		newScheduleUpdateCmd(clientFn, outputFn),
		newScheduleRunCmd(clientFn, outputFn),
		newScheduleDeleteCmd(clientFn, outputFn),
		newScheduleToggleCmd(clientFn, outputFn, true),
		newScheduleToggleCmd(clientFn, outputFn, false),
	)

	return cmd
}

func newScheduleListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var processID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules with the state of their last job",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedules, err := clientFn().ListSchedules(processID)
			if err != nil {
				return err
			}

			rows := make([][]string, len(schedules))
			for i, s := range schedules {
				rows[i] = []string{
					s.ID, s.ProcessID, s.Name, s.Trigger, enabledLabel(s),
					s.NextDueAt, lastJobStatus(s.LastJob), strconv.Itoa(s.SkippedRuns),
				}
			}

			outputFn().Print(
				[]string{"ID", "PROCESS", "NAME", "TRIGGER", "ENABLED", "NEXT_DUE", "LAST_JOB", "SKIPPED"},
				rows, schedules,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&processID, "process", "", "Filter by process ID")

	return cmd
}

func newScheduleCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req CreateScheduleRequest
	var every time.Duration
	var disabled bool
	var inputs []string

	cmd := &cobra.Command{
		Use:   "create PROCESS_ID",
		Short: "Create a schedule for a process",
		Long: `Create a schedule that submits a job with fixed inputs.

Inputs are checked against the process description before the schedule
is created.`,
		Example: `  copernicus schedule create perfmetrics --name nightly --cron "0 3 * * *" --input model=MPI-ESM-LR
  copernicus schedule create rainfarm --name hourly --every 1h --allow-overlap`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if req.CronExpr == "" && every <= 0 {
				return errors.New("either --cron or --every is required")
			}
			if every > 0 {
				sec, err := intervalSeconds(every)
				if err != nil {
					return err
				}
				req.IntervalSec = sec
			}
			if disabled {
				req.Enabled = new(bool)
			}

			parsed, err := parseInputs(inputs)
			if err != nil {
				return err
			}
			if err := validateScheduleInputs(client, args[0], parsed); err != nil {
				return err
			}
			req.Inputs = parsed

			schedule, err := client.CreateSchedule(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule created: %s (%s, next run %s)", schedule.ID, schedule.Trigger, schedule.NextDueAt))
			printSchedule(out, schedule)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Schedule name (required)")
	cmd.Flags().StringVar(&req.CronExpr, "cron", "", "Cron expression (e.g. '0 3 * * *')")
	cmd.Flags().DurationVar(&every, "every", 0, "Run interval (e.g. 6h); ignored with --cron")
	cmd.Flags().StringVar(&req.Timezone, "timezone", "", "Timezone of the cron expression (e.g. 'Europe/Moscow')")
	cmd.Flags().BoolVar(&req.AllowOverlap, "allow-overlap", false, "Start a new job even if the previous one is still active")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create the schedule disabled")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newScheduleShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show schedule details and its last job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule, err := clientFn().GetSchedule(args[0])
			if err != nil {
				return err
			}
			printSchedule(outputFn(), schedule)
			return nil
		},
	}
}

func newScheduleUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name, cronExpr, timezone string
	var every time.Duration
	var allowOverlap bool
	var inputs []string

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a schedule",
		Long: `Update a schedule. Only the given flags are changed.

Changing --cron, --every or --timezone recalculates the next run.
--input replaces all inputs of the schedule.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()
			flags := cmd.Flags()

			req := UpdateScheduleRequest{}
			if flags.Changed("name") {
				req.Name = &name
			}
			if flags.Changed("cron") {
				req.CronExpr = &cronExpr
			}
			if flags.Changed("every") {
				sec, err := intervalSeconds(every)
				if err != nil {
					return err
				}
				req.IntervalSec = &sec
				if !flags.Changed("cron") {
					// cron перекрывает интервал
					req.CronExpr = new(string)
				}
			}
			if flags.Changed("timezone") {
				req.Timezone = &timezone
			}
			if flags.Changed("allow-overlap") {
				req.AllowOverlap = &allowOverlap
			}
			if flags.Changed("input") {
				parsed, err := parseInputs(inputs)
				if err != nil {
					return err
				}
				current, err := client.GetSchedule(args[0])
				if err != nil {
					return err
				}
				if err := validateScheduleInputs(client, current.ProcessID, parsed); err != nil {
					return err
				}
				if parsed == nil {
					parsed = map[string]any{}
				}
				req.Inputs = &parsed
			}

			schedule, err := client.UpdateSchedule(args[0], req)
			if err != nil {
				return err
			}

			out.Success("Schedule updated")
			printSchedule(out, schedule)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New schedule name")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "New cron expression")
	cmd.Flags().DurationVar(&every, "every", 0, "New run interval; clears the cron expression")
	cmd.Flags().StringVar(&timezone, "timezone", "", "New timezone")
	cmd.Flags().BoolVar(&allowOverlap, "allow-overlap", false, "Allow overlapping jobs")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Replace inputs with KEY=VALUE (repeatable)")

	return cmd
}

func newScheduleRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var force, wait bool
	var pollInterval time.Duration

	cmd := &cobra.Command{
		Use:   "run ID",
		Short: "Run a schedule now",
		Long: `Submit a job with the schedule's inputs right now. The next planned run
is not moved. While the previous job of the schedule is queued or running
the run is refused unless --force is given or the schedule allows overlap.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.RunSchedule(args[0], force)
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

	cmd.Flags().BoolVar(&force, "force", false, "Run even if the previous job is still active")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the job finishes")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 2*time.Second, "Status poll interval with --wait")

	return cmd
}

func newScheduleDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a schedule; its jobs are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteSchedule(args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Schedule deleted: %s", args[0]))
			return nil
		},
	}
}

// newScheduleToggleCmd создаёт команду enable или disable.
func newScheduleToggleCmd(clientFn func() *Client, outputFn func() *Output, enabled bool) *cobra.Command {
	use, short := "disable ID", "Stop planning runs of a schedule"
	if enabled {
		use, short = "enable ID", "Resume planning runs of a schedule"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule, err := clientFn().SetScheduleEnabled(args[0], enabled)
			if err != nil {
				return err
			}

			msg := fmt.Sprintf("Schedule disabled: %s", schedule.ID)
			if enabled {
				msg = fmt.Sprintf("Schedule enabled: %s, next run %s", schedule.ID, schedule.NextDueAt)
			}
			outputFn().Success(msg)
			return nil
		},
	}
}

func printSchedule(out *Output, s *ScheduleResponse) {
	if out.JSONMode() {
		out.JSON(s)
		return
	}

	out.Table(
		[]string{"ID", "PROCESS", "NAME", "TRIGGER", "ENABLED", "OVERLAP", "NEXT_DUE", "LAST_RUN"},
		[][]string{{
			s.ID, s.ProcessID, s.Name, s.Trigger, enabledLabel(*s),
			strconv.FormatBool(s.AllowOverlap), s.NextDueAt, s.LastRunAt,
		}},
	)

	w := out.Writer()
	if job := s.LastJob; job != nil {
		fmt.Fprintf(w, "\nLast job: %s %s", job.ID, job.Status)
		if job.FinishedAt != "" {
			fmt.Fprintf(w, " at %s", job.FinishedAt)
		}
		fmt.Fprintln(w)
		if job.StatusMessage != "" {
			fmt.Fprintf(w, "Message:  %s\n", job.StatusMessage)
		}
	}
	if s.SkippedRuns > 0 {
		fmt.Fprintf(w, "Skipped:  %d runs while the previous job was active\n", s.SkippedRuns)
	}
	if len(s.Inputs) > 0 {
		inputs := make(map[string]string, len(s.Inputs))
		for k, v := range s.Inputs {
			inputs[k] = fmt.Sprint(v)
		}
		fmt.Fprintln(w)
		out.KeyValues("INPUT", "VALUE", inputs)
	}
}

func enabledLabel(s ScheduleResponse) string {
	if s.Enabled {
		return "yes"
	}
	return "no"
}

func lastJobStatus(job *LastJob) string {
	if job == nil {
		return "-"
	}
	return job.Status
}

// intervalSeconds переводит интервал в секунды API.
func intervalSeconds(d time.Duration) (int, error) {
	if d < time.Second || d%time.Second != 0 {
		return 0, fmt.Errorf("interval %s must be a whole number of seconds", d)
	}
	return int(d / time.Second), nil
}

// validateScheduleInputs проверяет входы по описанию процесса до создания расписания.
func validateScheduleInputs(client *Client, processID string, inputs map[string]any) error {
	desc, err := client.DescribeProcess(processID)
	if err != nil {
		return err
	}
	if err := checkInputs(desc, inputs); err != nil {
		return fmt.Errorf("invalid inputs for %s: %w", processID, err)
	}
	return nil
}

// checkInputs сверяет значения KEY=VALUE с описанием входов: неизвестные
// параметры, тип, допустимые значения и диапазон, обязательность.
// Возвращает все найденные проблемы.
func checkInputs(desc *ProcessDescription, inputs map[string]any) error {
	known := make(map[string]ProcessInput, len(desc.Inputs))
	for _, in := range desc.Inputs {
		known[in.Name] = in
	}

	var errs []error
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		in, ok := known[name]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown input %s", name))
			continue
		}
		if err := checkInput(in, fmt.Sprint(inputs[name])); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	for _, in := range desc.Inputs {
		if _, ok := inputs[in.Name]; !ok && in.Required && in.Default == "" {
			errs = append(errs, fmt.Errorf("%s is required", in.Name))
		}
	}
	return errors.Join(errs...)
}

func checkInput(in ProcessInput, value string) error {
	value = strings.TrimSpace(value)
	switch in.Type {
	case "integer":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%q is not an integer", value)
		}
		if in.Range != nil && (n < in.Range.Min || n > in.Range.Max) {
			return fmt.Errorf("%d is out of range %d..%d", n, in.Range.Min, in.Range.Max)
		}
	case "float":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%q is not a number", value)
		}
	case "boolean":
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%q is not a boolean", value)
		}
	}
	if len(in.AllowedValues) > 0 && !slices.Contains(in.AllowedValues, value) {
		return fmt.Errorf("%q is not one of [%s]", value, strings.Join(in.AllowedValues, ", "))
	}
	return nil
}
