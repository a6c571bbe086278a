package cmd

import (
	"fmt"

	"github.com/crytic/evosynth/generation/config"
	"github.com/spf13/cobra"
)

// addGenerateFlags adds the various flags for the generate command
func addGenerateFlags() error {
	defaultConfig := config.GetDefaultProjectConfig()

	// Prevent alphabetical sorting of usage message
	generateCmd.Flags().SortFlags = false

	generateCmd.Flags().String("config", "", "path to config file")

	generateCmd.Flags().StringSlice("target", []string{}, TargetFlagDescription+", may be repeated")

	generateCmd.Flags().Int("workers", 0,
		fmt.Sprintf("number of targets processed concurrently (unless a config file is provided, default is %d)", defaultConfig.Generation.Workers))

	generateCmd.Flags().Int("timeout", 0,
		fmt.Sprintf("number of seconds to run each session for (unless a config file is provided, default is %d). 0 means that timeout is not enforced", defaultConfig.Generation.Timeout))

	generateCmd.Flags().Uint64("test-limit", 0,
		fmt.Sprintf("number of test cases to execute per session before exiting (unless a config file is provided, default is %d). 0 means that test limit is not enforced", defaultConfig.Generation.TestLimit))

	generateCmd.Flags().Int("max-length", 0,
		fmt.Sprintf("maximum number of statements in a test case (unless a config file is provided, default is %d)", defaultConfig.Generation.MaxTestLength))

	generateCmd.Flags().Int64("seed", 0, "seed of all random decisions, 0 selects a time based seed")

	generateCmd.Flags().String("out", "",
		fmt.Sprintf("directory the generated suites are written to (unless a config file is provided, default is %q)", defaultConfig.Generation.OutputDirectory))

	generateCmd.Flags().Bool("dse", false,
		fmt.Sprintf("enable the concolic negation loop (unless a config file is provided, default is %t)", defaultConfig.Generation.DSE.Enabled))
	generateCmd.Flags().Bool("no-dse", false, "disable the concolic negation loop")
	generateCmd.MarkFlagsMutuallyExclusive("dse", "no-dse")

	generateCmd.Flags().Bool("process-isolation", false,
		fmt.Sprintf("execute test cases in separate worker processes (unless a config file is provided, default is %t)", defaultConfig.Generation.Execution.ProcessIsolation))

	generateCmd.Flags().StringSlice("capability", []string{},
		fmt.Sprintf("capability granted to code under test, may be repeated (options: %v)", config.KnownCapabilities))

	generateCmd.Flags().String("log-dir", "", "directory where structured log files are written")
	return nil
}

// updateProjectConfigWithGenerateFlags will update the given projectConfig with any CLI arguments that were provided
// to the generate command
func updateProjectConfigWithGenerateFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error
	g := &projectConfig.Generation

	if cmd.Flags().Changed("target") {
		g.Targets, err = cmd.Flags().GetStringSlice("target")
		if err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("workers") {
		g.Workers, err = cmd.Flags().GetInt("workers")
		if err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("timeout") {
		g.Timeout, err = cmd.Flags().GetInt("timeout")
		if err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("test-limit") {
		g.TestLimit, err = cmd.Flags().GetUint64("test-limit")
		if err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("max-length") {
		g.MaxTestLength, err = cmd.Flags().GetInt("max-length")
		if err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("seed") {
		g.Seed, err = cmd.Flags().GetInt64("seed")
		if err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("out") {
		g.OutputDirectory, err = cmd.Flags().GetString("out")
		if err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("dse") {
		g.DSE.Enabled, err = cmd.Flags().GetBool("dse")
		if err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("no-dse") {
		noDSE, err := cmd.Flags().GetBool("no-dse")
		if err != nil {
			return err
		}
		g.DSE.Enabled = !noDSE
	}

	if cmd.Flags().Changed("process-isolation") {
		g.Execution.ProcessIsolation, err = cmd.Flags().GetBool("process-isolation")
		if err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("capability") {
		g.Execution.Capabilities, err = cmd.Flags().GetStringSlice("capability")
		if err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("log-dir") {
		projectConfig.Logging.LogDirectory, err = cmd.Flags().GetString("log-dir")
		if err != nil {
			return err
		}
	}

	return updateLoggingConfigWithFlags(cmd, &projectConfig.Logging)
}
