package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/teamchat/docshots/packages/core/config"
	"github.com/teamchat/docshots/packages/registry"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known integrations and their screenshot fixtures",
	Long: `List every integration in the catalog with its kind, target
stream, and configured screenshot fixtures.

Examples:
  docshots list
  docshots list --registry docshots.yaml`,
	Args: cobra.NoArgs,
	RunE: listCommand,
}

var listRegistryFlag string

func init() {
	listCmd.Flags().StringVar(&listRegistryFlag, "registry", "", "Path to a YAML registry overlay file")
}

func listCommand(cmd *cobra.Command, args []string) error {
	fileConfig, err := config.Load(configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitConfigError)
	}

	reg := registry.Builtin()
	registryFile := fileConfig.RegistryFile
	if listRegistryFlag != "" {
		registryFile = listRegistryFlag
	}
	if registryFile != "" {
		if err := reg.LoadFile(registryFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(ExitConfigError)
		}
	}

	for _, i := range reg.All() {
		stream := i.Stream
		if stream == "" {
			stream = "devel (default)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %s) -> #%s\n", i.Name, i.DisplayName, i.Kind, stream)
		for _, cfg := range i.Configs {
			line := "  - " + cfg.FixtureName
			if cfg.FixtureName == "" {
				line = "  - (no fixture)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
	}

	return nil
}
