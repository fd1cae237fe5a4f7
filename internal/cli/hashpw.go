package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/connectmesh-bridge/internal/auth"
)

func newHashpwCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hashpw",
		Short: "Hash an operator password for the bridge configuration",
		Long: `Read a password from stdin and print its Argon2id hash.

The output is the value security.operator.password_hash expects, either
in the configuration file or via MESHBRIDGE_OPERATOR_PASSWORD_HASH.

Pipe the password in to keep it out of shell history:

  echo -n 'secret' | meshctl hashpw`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading password from stdin: %w", err)
			}

			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return errors.New("password must not be empty")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
