package cmd

import (
	"github.com/crytic/evosynth/generation/config"
	"github.com/crytic/evosynth/logging"
	"github.com/crytic/evosynth/logging/colors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// cmdLogger is the logger used by the cmd package. It is rebuilt whenever the global logger is reconfigured.
var cmdLogger = logging.GlobalLogger.NewSubLogger("module", logging.CLI_SERVICE)

var rootCmd = &cobra.Command{
	Use:               "evosynth",
	Short:             "A search-based unit test generator",
	Long:              "evosynth generates unit test suites for programs under test by evolutionary search and dynamic symbolic execution",
	PersistentPreRunE: cmdConfigureLogging,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error), overrides the project configuration")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored console output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// cmdConfigureLogging sets up console logging from the default logging configuration and the persistent flags.
func cmdConfigureLogging(cmd *cobra.Command, args []string) error {
	loggingConfig := config.GetDefaultProjectConfig().Logging
	if err := updateLoggingConfigWithFlags(cmd, &loggingConfig); err != nil {
		return err
	}
	configureLogging(loggingConfig)
	return nil
}

// updateLoggingConfigWithFlags applies the persistent logging flags to loggingConfig.
func updateLoggingConfigWithFlags(cmd *cobra.Command, loggingConfig *config.LoggingConfig) error {
	if cmd.Flags().Changed("log-level") {
		levelName, err := cmd.Flags().GetString("log-level")
		if err != nil {
			return err
		}
		level, err := zerolog.ParseLevel(levelName)
		if err != nil {
			return err
		}
		loggingConfig.Level = level
	}
	if cmd.Flags().Changed("no-color") {
		noColor, err := cmd.Flags().GetBool("no-color")
		if err != nil {
			return err
		}
		loggingConfig.NoColor = noColor
	}
	return nil
}

// configureLogging replaces the global logger with a console logger at the configured level.
func configureLogging(loggingConfig config.LoggingConfig) {
	if loggingConfig.NoColor {
		colors.DisableColor()
	}
	logging.GlobalLogger = logging.NewLogger(loggingConfig.Level, true)
	cmdLogger = logging.GlobalLogger.NewSubLogger("module", logging.CLI_SERVICE)
}
