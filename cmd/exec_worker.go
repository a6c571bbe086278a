package cmd

import (
	"fmt"
	"os"

	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/execution"
	"github.com/crytic/evosynth/generation/targets"
	"github.com/crytic/evosynth/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// execWorkerCmd executes a single test case received on stdin and writes its result to stdout. It is started by
// sessions running with process isolation and is not meant to be invoked directly.
var execWorkerCmd = &cobra.Command{
	Use:    "exec-worker",
	Short:  "Executes one test case in an isolated process",
	Hidden: true,
	Args:   cobra.NoArgs,
	// stdout carries the result, so the console logger is never enabled
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.GlobalLogger = logging.NewLogger(zerolog.WarnLevel, false, os.Stderr)
		cmdLogger = logging.GlobalLogger.NewSubLogger("module", logging.CLI_SERVICE)
		return nil
	},
	RunE:          cmdRunExecWorker,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	execWorkerCmd.Flags().String("config", "", "path to the project configuration of the session")
	execWorkerCmd.Flags().String("target", "", TargetFlagDescription)
	rootCmd.AddCommand(execWorkerCmd)
}

func cmdRunExecWorker(cmd *cobra.Command, args []string) error {
	projectConfig := config.GetDefaultProjectConfig()
	if cmd.Flags().Changed("config") {
		configPath, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		projectConfig, err = config.ReadProjectConfigFromFile(configPath)
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
		return fmt.Errorf("unknown target '%s'", targetName)
	}
	c, err := target.Cluster(projectConfig.Generation.Factory.TypeSubstitutions)
	if err != nil {
		return err
	}

	err = execution.ServeWorker(cmd.Context(), c, projectConfig.Generation.Execution, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		cmdLogger.Error("Worker failed", err)
	}
	return err
}
