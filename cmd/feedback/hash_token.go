package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/feedback-reviews/internal/config"
	"github.com/spf13/cobra"
)

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Hash a scheduler invoker token for scheduler.token_hash",
	Long:  `Print the bcrypt hash of the scheduler token. The token is read from stdin when not given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHashToken,
}

func init() {
	rootCmd.AddCommand(hashTokenCmd)
}

func runHashToken(cmd *cobra.Command, args []string) error {
	var token string
	if len(args) == 1 {
		token = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return errors.New("no token given")
		}
		token = line
	}
	token = strings.TrimSpace(token)

	hasher, err := config.NewTokenHasher()
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(token)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
