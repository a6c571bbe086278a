package cmd

// DefaultProjectConfigFilename describes the default config filename for a given project folder.
const DefaultProjectConfigFilename = "evosynth.json"

// DefaultLogFilename describes the name of the rotated log file written to the configured log directory.
const DefaultLogFilename = "evosynth.log"

// TargetFlagDescription describes the description of the --target flag
const TargetFlagDescription = "name of a built-in program under test, see the targets command for the options"
