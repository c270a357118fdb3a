package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewProcessCmd создаёт группу команд для просмотра процессов.
func NewProcessCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Inspect available processes",
	}

	cmd.AddCommand(
		newProcessListCmd(clientFn, outputFn),
		newProcessDescribeCmd(clientFn, outputFn),
	)

	return cmd
}

func newProcessListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			processes, err := client.ListProcesses()
			if err != nil {
				return err
			}

			rows := make([][]string, len(processes))
			for i, p := range processes {
				rows[i] = []string{p.ID, p.Version, p.Title}
			}

			out.Print([]string{"ID", "VERSION", "TITLE"}, rows, processes)
			return nil
		},
	}
}

func newProcessDescribeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "describe ID",
		Short: "Show process inputs and outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			desc, err := client.DescribeProcess(args[0])
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(desc)
				return nil
			}

			fmt.Fprintf(out.Writer(), "%s (%s)\n%s\n\n", desc.Title, desc.Version, desc.Abstract)

			inputs := make([][]string, len(desc.Inputs))
			for i, in := range desc.Inputs {
				inputs[i] = []string{in.Name, in.Type, in.Default, describeConstraint(in), strconv.FormatBool(in.Required)}
			}
			out.Table([]string{"INPUT", "TYPE", "DEFAULT", "ALLOWED", "REQUIRED"}, inputs)
			fmt.Fprintln(out.Writer())

			outputs := make([][]string, len(desc.Outputs))
			for i, o := range desc.Outputs {
				kind := o.MimeType
				if o.Literal {
					kind = "literal"
				}
				outputs[i] = []string{o.Name, kind, o.Title}
			}
			out.Table([]string{"OUTPUT", "KIND", "TITLE"}, outputs)
			return nil
		},
	}
}

func describeConstraint(in ProcessInput) string {
	switch {
	case len(in.AllowedValues) > 0:
		return strings.Join(in.AllowedValues, ",")
	case in.Range != nil:
		return fmt.Sprintf("%d..%d", in.Range.Min, in.Range.Max)
	}
	return ""
}
