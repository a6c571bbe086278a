package cmd

import (
	"fmt"

	"github.com/crytic/evosynth/cmd/exitcodes"
	"github.com/crytic/evosynth/generation"
	"github.com/crytic/evosynth/generation/corpus"
	"github.com/crytic/evosynth/generation/execution"
	"github.com/crytic/evosynth/generation/fitness"
	"github.com/crytic/evosynth/generation/targets"
	"github.com/crytic/evosynth/logging/colors"
	"github.com/spf13/cobra"
)

// replayCmd re-executes the suite written for a target and reports the coverage it reaches
var replayCmd = &cobra.Command{
	Use:               "replay",
	Short:             "Replays a generated test suite",
	Long:              `Executes the test suite previously generated for a target and reports the coverage it reaches`,
	Args:              cobra.NoArgs,
	ValidArgsFunction: cmdValidFlagArgs,
	RunE:              cmdRunReplay,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	replayCmd.Flags().String("config", "", "path to config file")
	replayCmd.Flags().String("target", "", TargetFlagDescription)
	replayCmd.Flags().String("out", "", "directory the suites were written to, overrides the project configuration")
	replayCmd.Flags().Bool("print", false, "print the code of every replayed test case")
	replayCmd.Flags().Bool("require-full-coverage", false, "exit with a distinct code if a goal is left uncovered")
	_ = replayCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(replayCmd)
}

func cmdRunReplay(cmd *cobra.Command, args []string) error {
	projectConfig, err := loadProjectConfig(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the replay command", err)
		return err
	}
	if cmd.Flags().Changed("out") {
		projectConfig.Generation.OutputDirectory, err = cmd.Flags().GetString("out")
		if err != nil {
			return err
		}
	}
	targetName, err := cmd.Flags().GetString("target")
	if err != nil {
		return err
	}
	target, ok := targets.Lookup(targetName)
	if !ok {
		err = validateTargetNames([]string{targetName})
		cmdLogger.Error("Failed to run the replay command", err)
		return err
	}

	c, err := target.Cluster(projectConfig.Generation.Factory.TypeSubstitutions)
	if err != nil {
		cmdLogger.Error("Failed to run the replay command", err)
		return err
	}
	directory := generation.SuiteDirectory(projectConfig.Generation, target.Name)
	if directory == "" {
		err = fmt.Errorf("no output directory is configured")
		cmdLogger.Error("Failed to run the replay command", err)
		return err
	}
	suite, err := corpus.ReadSuite(directory, c)
	if err != nil {
		cmdLogger.Error("Failed to read the suite of ", target.Name, err)
		return err
	}

	printCode, err := cmd.Flags().GetBool("print")
	if err != nil {
		return err
	}
	if printCode {
		for i, tc := range suite.Tests {
			fmt.Fprintf(cmd.OutOrStdout(), "// Test %d\n%s\n", i, tc.Code())
		}
	}

	executor, err := execution.NewExecutor(c, projectConfig.Generation.Execution)
	if err != nil {
		cmdLogger.Error("Failed to run the replay command", err)
		return err
	}
	defer executor.Close()

	coverage, err := fitness.NewBranchCoverage(c, executor).Coverage(cmd.Context(), suite)
	if err != nil {
		cmdLogger.Error("Failed to replay the suite of ", target.Name, err)
		return err
	}
	cmdLogger.Info("Replayed ", suite.Size(), " test(s) of ", colors.Bold, target.Name, colors.Reset, ", covering ",
		len(coverage.Covered), " of ", coverage.Total, " goal(s) (", coverage.Percentage().String(), "%)")

	requireFull, err := cmd.Flags().GetBool("require-full-coverage")
	if err != nil {
		return err
	}
	if requireFull && len(coverage.Covered) < coverage.Total {
		return exitcodes.NewErrorWithExitCode(fmt.Errorf("suite of %s leaves %d goal(s) uncovered", target.Name, coverage.Total-len(coverage.Covered)), exitcodes.ExitCodeIncompleteCoverage)
	}
	return nil
}
