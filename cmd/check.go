package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/UnAfraid/wgtunnel/pkg/wgconf"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Parse a configuration file and print it in canonical form.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		config, err := wgconf.Parse(f)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), config.WgQuickString())
		return err
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
