package cmd

import (
	"slices"
	"strings"

	"github.com/crytic/evosynth/generation/targets"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// targetsCmd lists the built-in programs under test
var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Lists the programs tests can be generated for",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Target", "Type substitutions", "Description"})
		table.SetBorder(false)
		table.SetCenterSeparator("")
		table.SetAutoWrapText(false)
		for _, name := range targets.Names() {
			target, _ := targets.Lookup(name)
			table.Append([]string{target.Name, formatSubstitutions(target.Substitutions), target.Description})
		}
		table.Render()
	},
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}

// formatSubstitutions formats type substitutions as sorted "T=type" pairs.
func formatSubstitutions(substitutions map[string]string) string {
	pairs := make([]string, 0, len(substitutions))
	for variable, typeName := range substitutions {
		pairs = append(pairs, variable+"="+typeName)
	}
	slices.Sort(pairs)
	return strings.Join(pairs, ", ")
}
