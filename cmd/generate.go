package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"

	"github.com/crytic/evosynth/cmd/exitcodes"
	"github.com/crytic/evosynth/generation"
	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/fitness"
	"github.com/crytic/evosynth/logging"
	"github.com/crytic/evosynth/logging/colors"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// generateCmd represents the command provider for test generation
var generateCmd = &cobra.Command{
	Use:               "generate",
	Short:             "Generates test suites for one or more targets",
	Long:              `Generates test suites for one or more targets, running one session per target`,
	Args:              cmdValidateGenerateArgs,
	ValidArgsFunction: cmdValidFlagArgs,
	RunE:              cmdRunGenerate,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	err := addGenerateFlags()
	if err != nil {
		cmdLogger.Panic("Failed to initialize the generate command", err)
	}
	rootCmd.AddCommand(generateCmd)
}

// cmdValidateGenerateArgs makes sure that there are no positional arguments provided to the generate command
func cmdValidateGenerateArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		err = fmt.Errorf("generate does not accept any positional arguments, only flags and their associated values")
		cmdLogger.Error("Failed to validate args to the generate command", err)
		return err
	}
	return nil
}

// cmdRunGenerate executes the CLI generate command. The project configuration is read from --config, evosynth.json
// or the defaults, and is then updated with the flags.
func cmdRunGenerate(cmd *cobra.Command, args []string) error {
	projectConfig, err := loadProjectConfig(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the generate command", err)
		return err
	}
	err = updateProjectConfigWithGenerateFlags(cmd, projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the generate command", err)
		return err
	}
	configureLogging(projectConfig.Logging)

	if err = projectConfig.Validate(); err != nil {
		cmdLogger.Error("Invalid project configuration", err)
		return err
	}
	if len(projectConfig.Generation.Targets) == 0 {
		err = fmt.Errorf("no targets to generate tests for, use --target or the targets field of the configuration")
		cmdLogger.Error("Failed to run the generate command", err)
		return err
	}
	if err = validateTargetNames(projectConfig.Generation.Targets); err != nil {
		cmdLogger.Error("Failed to run the generate command", err)
		return err
	}

	if projectConfig.Logging.LogDirectory != "" {
		logFile := logging.GlobalLogger.AddRotatingFileWriter(projectConfig.Logging.LogDirectory, DefaultLogFilename)
		defer logFile.Close()
		cmdLogger = logging.GlobalLogger.NewSubLogger("module", logging.CLI_SERVICE)
	}

	// Stop generating on keyboard interrupts; sessions still write their suites
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	workerCommand, cleanup, err := prepareWorkerCommand(projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to prepare worker processes", err)
		return err
	}
	defer cleanup()

	results, err := runSessions(ctx, *projectConfig, workerCommand)
	logResults(results)
	if err != nil {
		cmdLogger.Error("Test generation failed", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeGenerationError)
	}
	return nil
}

// prepareWorkerCommand returns the command line prefix of worker processes, which is completed with the target name
// per session. The effective configuration is handed to workers through a temporary file removed by cleanup.
func prepareWorkerCommand(projectConfig *config.ProjectConfig) ([]string, func(), error) {
	if !projectConfig.Generation.Execution.ProcessIsolation {
		return nil, func() {}, nil
	}
	executable, err := os.Executable()
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	file, err := os.CreateTemp("", "evosynth-*.json")
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	path := file.Name()
	cleanup := func() { _ = os.Remove(path) }
	if err = file.Close(); err != nil {
		cleanup()
		return nil, nil, errors.WithStack(err)
	}
	if err = projectConfig.WriteToFile(path); err != nil {
		cleanup()
		return nil, nil, err
	}
	return []string{executable, execWorkerCmd.Name(), "--config", path}, cleanup, nil
}

// runSessions runs one session per target, at most Workers at a time. The first failing session cancels the
// others. Returns the coverage of every session that finished.
func runSessions(ctx context.Context, projectConfig config.ProjectConfig, workerCommand []string) (map[string]fitness.Coverage, error) {
	var resultsLock sync.Mutex
	results := make(map[string]fitness.Coverage)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(projectConfig.Generation.Workers)
	for _, name := range projectConfig.Generation.Targets {
		name := name
		group.Go(func() error {
			session, err := generation.NewSession(projectConfig, name)
			if err != nil {
				return err
			}
			if workerCommand != nil {
				session.SetWorkerCommand(append(append([]string(nil), workerCommand...), "--target", name))
			}
			session.Events.SessionFinished.Subscribe(func(event generation.SessionFinishedEvent) error {
				resultsLock.Lock()
				defer resultsLock.Unlock()
				results[name] = event.Coverage
				return nil
			})
			return errors.WithMessagef(session.Run(groupCtx), "session of target %s", name)
		})
	}
	err := group.Wait()
	return results, err
}

// logResults logs a table of the coverage reached for each target, by target name.
func logResults(results map[string]fitness.Coverage) {
	if len(results) == 0 {
		return
	}
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	var tableBuffer bytes.Buffer
	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Target", "Covered", "Goals", "Coverage"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT})
	incomplete := 0
	for _, name := range names {
		coverage := results[name]
		if len(coverage.Covered) < coverage.Total {
			incomplete++
		}
		table.Append([]string{
			name,
			strconv.Itoa(len(coverage.Covered)),
			strconv.Itoa(coverage.Total),
			coverage.Percentage().String() + "%",
		})
	}
	table.Render()

	color := colors.GreenBold
	if incomplete > 0 {
		color = colors.YellowBold
	}
	cmdLogger.Info(color, "Fully covered ", len(names)-incomplete, " of ", len(names), " target(s)", colors.Reset, "\n", tableBuffer.String())
}
