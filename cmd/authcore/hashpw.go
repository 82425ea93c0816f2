package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pipelinedash/authcore/password"
)

func newHashPasswordCommand() *cobra.Command {
	var plaintext string

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print an argon2id digest and salt for a password",
		Long:  "Reads the password from --password or the first line of stdin and prints the salt and digest, one per line.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if plaintext == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no password given")
				}
				plaintext = strings.TrimRight(line, "\r\n")
			}
			if plaintext == "" {
				return errors.New("no password given")
			}

			hasher, err := password.NewArgon2(password.DefaultConfig())
			if err != nil {
				return err
			}
			salt, err := hasher.NewSalt()
			if err != nil {
				return err
			}
			digest, err := hasher.Hash(plaintext, salt)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "salt:   %s\n", salt)
			fmt.Fprintf(out, "digest: %s\n", digest)
			return nil
		},
	}

	cmd.Flags().StringVar(&plaintext, "password", "", "Password to hash (prefer stdin)")
	return cmd
}
