package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "tavern",
	Short: "Declarative API tests in YAML.",
	Long: `tavern runs integration tests written as YAML documents. Each
document is a named test made of stages; a stage sends a request over
HTTP, NATS, or SQL and verifies the response, saving values for the
stages that follow.`,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitUsageError)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}
