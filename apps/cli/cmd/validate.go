package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mariocesar/tavern/packages/core/document"
	"github.com/mariocesar/tavern/packages/core/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory>",
	Short: "Validate tavern files without running them",
	Long: `Parse tavern files and check every document against the test
schema, without executing any stage.

Examples:
  tavern validate api.tavern.yaml
  tavern validate ./tests/`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	files, err := collectFiles(args)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		os.Exit(ExitUsageError)
	}
	if len(files) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error: no .tavern.yaml files found")
		os.Exit(ExitUsageError)
	}

	hasErrors := false
	for _, file := range files {
		if err := validateFile(file); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
	}

	if hasErrors {
		os.Exit(ExitParseError)
	}
	return nil
}

func validateFile(path string) error {
	docs, err := document.LoadFile(path)
	if err != nil {
		return err
	}
	for i, raw := range docs {
		if raw == nil {
			continue
		}
		value, err := raw.Interface()
		if err != nil {
			return fmt.Errorf("document %d: %w", i+1, err)
		}
		if err := schema.Validate(value); err != nil {
			return fmt.Errorf("document %d: %w", i+1, err)
		}
	}
	return nil
}
