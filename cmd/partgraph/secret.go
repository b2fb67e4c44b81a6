package main

import (
	"fmt"

	"github.com/manthysbr/partgraph/internal/config"
	"github.com/spf13/cobra"
)

var encryptSecretCmd = &cobra.Command{
	Use:   "encrypt-secret <value>",
	Short: "Encrypt a value for use in the config file",
	Long: `Encrypt a secret (API key, graph password) with the local key.

The key comes from PARTGRAPH_SECRET_KEY, or ~/.partgraph/secret.key which is
created on first use. Paste the printed "enc:" value into partgraph.yaml.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sk, err := config.NewSecretKey()
		if err != nil {
			return err
		}
		enc, err := sk.Encrypt(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), enc)
		return nil
	},
}
