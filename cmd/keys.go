package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/UnAfraid/wgtunnel/pkg/key"
)

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate a private key and write it base64 encoded to stdout.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		privateKey, err := key.GeneratePrivateKey()
		if err != nil {
			return fmt.Errorf("failed to generate private key: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), privateKey.Base64())
		return err
	},
}

var genpskCmd = &cobra.Command{
	Use:   "genpsk",
	Short: "Generate a preshared key and write it base64 encoded to stdout.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		presharedKey, err := key.GeneratePresharedKey()
		if err != nil {
			return fmt.Errorf("failed to generate preshared key: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), presharedKey.Base64())
		return err
	},
}

var pubkeyCmd = &cobra.Command{
	Use:   "pubkey",
	Short: "Read a private key from stdin and write its public key to stdout.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read private key: %w", err)
		}

		keypair, err := key.ParseKeypair(strings.TrimSpace(line))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), keypair.PublicKey().Base64())
		return err
	},
}

func init() {
	rootCmd.AddCommand(genkeyCmd)
	rootCmd.AddCommand(genpskCmd)
	rootCmd.AddCommand(pubkeyCmd)
}
