package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/prestigewebb/twilio-manager/internal/auth"
	"github.com/spf13/cobra"
)

var hashpassCmd = &cobra.Command{
	Use:   "hashpass [password]",
	Short: "Generate a bcrypt hash for an operator password",
	Long: `Generate a bcrypt hash to paste into auth.credentials, e.g.:

  auth:
    credentials:
      alice: "$2a$10$..."

Reads the password from the argument, or from stdin when omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if len(args) == 1 {
			password = args[0]
		} else {
			fmt.Fprint(os.Stderr, "Password: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
		if password == "" {
			return fmt.Errorf("password must not be empty")
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}
