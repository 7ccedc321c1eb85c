package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect or install the wg and wg-quick tools.",
}

var toolsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the tools are installed system wide.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(conf)
		if err != nil {
			return err
		}
		defer closeApp(a)

		result, err := a.manageService.ToolsStatus(cmd.Context())
		if err != nil {
			return err
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
	},
}

var toolsInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the tools on the system partition or as a Magisk module.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(conf)
		if err != nil {
			return err
		}
		defer closeApp(a)

		result, err := a.manageService.InstallTools(cmd.Context())
		if err != nil {
			return err
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
	},
}

func init() {
	toolsCmd.AddCommand(toolsStatusCmd)
	toolsCmd.AddCommand(toolsInstallCmd)
	rootCmd.AddCommand(toolsCmd)
}
