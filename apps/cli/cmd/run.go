package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/mariocesar/tavern/packages/core/config"
	"github.com/mariocesar/tavern/packages/core/runner"
	"github.com/mariocesar/tavern/packages/output"
)

var runCmd = &cobra.Command{
	Use:   "run <file|directory>",
	Short: "Run tavern test files",
	Long: `Run tests from .tavern.yaml files.

Examples:
  tavern run api.tavern.yaml
  tavern run ./tests/
  tavern run api.tavern.yaml --global-cfg common.yaml --global-cfg staging.yaml
  tavern run ./tests/ --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

// WatchDebounceDelay is the debounce delay for file watch events
const WatchDebounceDelay = 300 * time.Millisecond

var (
	globalCfgFlag []string
	watchFlag     bool
	quietFlag     bool
	noColorFlag   bool
	verboseFlag   int
)

func init() {
	runCmd.Flags().StringArrayVar(&globalCfgFlag, "global-cfg", nil, "Global configuration file (repeatable, later files shadow earlier ones)")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch files for changes and re-run tests")
	runCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Only print failures and summaries")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")
	runCmd.Flags().CountVarP(&verboseFlag, "verbose", "v", "Increase log verbosity (-v, -vv)")
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verboseFlag >= 2:
		level = slog.LevelDebug
	case verboseFlag == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runCommand(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	printer := output.NewPrinter(
		output.WithWriter(cmd.OutOrStdout()),
		output.WithQuiet(quietFlag),
		output.WithNoColor(noColorFlag),
	)
	logger := newLogger()

	cfg, err := config.Load(globalCfgFlag...)
	if err != nil {
		printer.Error(fmt.Errorf("load configuration: %w", err))
		os.Exit(ExitConfigError)
	}

	files, err := collectFiles(args)
	if err != nil {
		printer.Error(err)
		os.Exit(ExitUsageError)
	}
	if len(files) == 0 {
		printer.Error(fmt.Errorf("no .tavern.yaml files found"))
		os.Exit(ExitUsageError)
	}

	engine := runner.New(cfg, runner.WithPrinter(printer), runner.WithLogger(logger))

	runAll := func() (failed, broken int) {
		for _, file := range files {
			passed, err := engine.RunFile(file)
			if err != nil {
				printer.Error(err)
				broken++
				continue
			}
			if !passed {
				failed++
			}
		}
		return failed, broken
	}

	failed, broken := runAll()

	if !watchFlag {
		switch {
		case broken > 0:
			os.Exit(ExitParseError)
		case failed > 0:
			os.Exit(ExitTestFailure)
		}
		return nil
	}

	return watchAndRerun(cmd, files, runAll)
}

func watchAndRerun(cmd *cobra.Command, files []string, runAll func() (int, int)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	watchedDirs := make(map[string]bool)
	for _, file := range files {
		dir := filepath.Dir(file)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			watchedDirs[dir] = true
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	var debounceTimer *time.Timer
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) && isTavernFile(event.Name) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "\nFile changed: %s\nRe-running tests...\n\n", event.Name)
					runAll()
					fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watcher error: %v\n", err)
		}
	}
}

func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && isTavernFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func isTavernFile(path string) bool {
	return strings.HasSuffix(path, ".tavern.yaml") || strings.HasSuffix(path, ".tavern.yml")
}
