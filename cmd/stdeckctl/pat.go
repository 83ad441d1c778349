package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	patCmd.AddCommand(patSetCmd)
	rootCmd.AddCommand(patCmd)
}

var patCmd = &cobra.Command{
	Use:   "pat",
	Short: "Manage the global personal access token",
	Args:  cobra.NoArgs,
}

var patSetCmd = &cobra.Command{
	Use:   "set <token>",
	Short: "Store the token shared by every key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := session.editor.SavePAT(session.ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("Token saved")
		return nil
	},
}
