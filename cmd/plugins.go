package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/specwright/takeoff-cli/internal/analyzer"
	"github.com/specwright/takeoff-cli/internal/plugin"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the available analyzer plugins",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := plugin.NewRegistry(analyzer.All()...)
		if err != nil {
			return eris.Wrap(err, "build registry")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reg.Descriptors())
	},
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}
