package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/logging/colors"
	"github.com/spf13/cobra"
)

// initCmd represents the command provider for init
var initCmd = &cobra.Command{
	Use:               "init [target...]",
	Short:             "Initializes a project configuration",
	Long:              `Initializes a project configuration generating tests for the given targets`,
	Args:              cmdValidateInitArgs,
	ValidArgsFunction: cmdValidTargetArgs,
	RunE:              cmdRunInit,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	initCmd.Flags().String("out", "", "output path for the new project configuration file")
	initCmd.Flags().Bool("force", false, "overwrite an existing configuration file without asking")
	rootCmd.AddCommand(initCmd)
}

// cmdValidateInitArgs ensures every positional argument names a known target
func cmdValidateInitArgs(cmd *cobra.Command, args []string) error {
	if err := validateTargetNames(args); err != nil {
		cmdLogger.Error("Failed to validate args to the init command", err)
		return err
	}
	return nil
}

// cmdRunInit executes the init CLI command, writing the default project configuration for the given targets
func cmdRunInit(cmd *cobra.Command, args []string) error {
	outputFlagUsed := cmd.Flags().Changed("out")
	outputPath, err := cmd.Flags().GetString("out")
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}
	if !outputFlagUsed {
		workingDirectory, err := os.Getwd()
		if err != nil {
			cmdLogger.Error("Failed to run the init command", err)
			return err
		}
		outputPath = filepath.Join(workingDirectory, DefaultProjectConfigFilename)
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}

	projectConfig := config.GetDefaultProjectConfig()
	projectConfig.Generation.Targets = append(projectConfig.Generation.Targets, args...)

	if _, err = os.Stat(outputPath); err == nil && !force {
		fmt.Fprint(cmd.OutOrStdout(), "The file already exists. Overwrite? (y/n): ")
		var response string
		if _, err := fmt.Fscan(cmd.InOrStdin(), &response); err != nil {
			cmdLogger.Error("Failed to scan input", err)
			return err
		}
		if response != "y" && response != "Y" {
			fmt.Fprintln(cmd.OutOrStdout(), "Operation canceled.")
			return nil
		}
	}

	err = projectConfig.WriteToFile(outputPath)
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}

	if absoluteOutputPath, err := filepath.Abs(outputPath); err == nil {
		outputPath = absoluteOutputPath
	}
	cmdLogger.Info("Project configuration successfully output to: ", colors.Bold, outputPath, colors.Reset)
	return nil
}
