package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/generation/targets"
	"github.com/crytic/evosynth/logging/colors"
	"github.com/crytic/evosynth/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// cmdValidFlagArgs returns the flags of cmd that have not been used yet, for dynamic completion.
func cmdValidFlagArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var unusedFlags []string
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		// The "--" prefix marks the suggestion as a flag rather than a positional argument
		if !flag.Changed && !flag.Hidden {
			unusedFlags = append(unusedFlags, "--"+flag.Name)
		}
	})
	return unusedFlags, cobra.ShellCompDirectiveNoFileComp
}

// cmdValidTargetArgs completes positional arguments with the names of targets not listed yet.
func cmdValidTargetArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	suggestions := utils.SliceWhere(targets.Names(), func(name string) bool {
		return strings.HasPrefix(name, toComplete) && !slices.Contains(args, name)
	})
	return suggestions, cobra.ShellCompDirectiveNoFileComp
}

// validateTargetNames returns an error naming the first unknown target, if any.
func validateTargetNames(names []string) error {
	for _, name := range names {
		if _, ok := targets.Lookup(name); !ok {
			return fmt.Errorf("unknown target '%s' (options: %s)", name, strings.Join(targets.Names(), ", "))
		}
	}
	return nil
}

// loadProjectConfig obtains the project configuration of a command with a --config flag:
// #1: If --config was used, the file must exist and is read.
// #2: Otherwise evosynth.json in the working directory is read if it exists.
// #3: Otherwise the default project configuration is used.
func loadProjectConfig(cmd *cobra.Command) (*config.ProjectConfig, error) {
	configFlagUsed := cmd.Flags().Changed("config")
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	if !configFlagUsed {
		workingDirectory, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(workingDirectory, DefaultProjectConfigFilename)
	}

	_, existenceError := os.Stat(configPath)
	if existenceError == nil {
		cmdLogger.Info("Reading the configuration file at: ", colors.Bold, configPath, colors.Reset)
		return config.ReadProjectConfigFromFile(configPath)
	}
	if configFlagUsed {
		return nil, existenceError
	}

	cmdLogger.Debug("Unable to find the config file at ", configPath, ", using the default project configuration")
	return config.GetDefaultProjectConfig(), nil
}
