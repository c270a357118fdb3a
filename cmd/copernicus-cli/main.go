// Copernicus CLI — инструмент командной строки для запуска диагностик
// и управления schedules через HTTP API.
//
// Использование:
//
//	copernicus [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	process   Просмотр процессов
//	job       Запуск и просмотр jobs
//	schedule  Управление schedules
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Copernicus/internal/cli"
	"github.com/shaiso/Copernicus/internal/config"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "copernicus",
		Short:         "Copernicus CLI — climate diagnostics jobs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", config.String("COPERNICUS_API_URL", "http://localhost:8080"), "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewProcessCmd(clientFn, outputFn),
		cli.NewJobCmd(clientFn, outputFn),
		cli.NewScheduleCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
