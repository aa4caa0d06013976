package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newEncryptCmd() *cobra.Command {
	var value string

	c := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a config secret (password, card fields) with ENCRYPTION_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			aead, err := encryptionAEAD()
			if err != nil {
				return err
			}
			if aead == nil {
				return fmt.Errorf("ENCRYPTION_KEY is not set")
			}
			ct, err := aead.EncryptToString(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, ct)
			return nil
		},
	}

	c.Flags().StringVar(&value, "value", "", "plaintext to encrypt")
	_ = c.MarkFlagRequired("value")
	return c
}
