package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/stdeck/internal/history"
)

var historyFlags struct {
	Context string
	Limit   int
}

func init() {
	historyCmd.Flags().StringVar(&historyFlags.Context, "context", "", "Only show this key")
	historyCmd.Flags().IntVarP(&historyFlags.Limit, "limit", "n", 20, "Number of entries")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent key presses and refreshes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if session.database == nil {
			return fmt.Errorf("history is stored locally, run without --port")
		}
		entries, err := history.New(session.database.DB).Recent(historyFlags.Context, historyFlags.Limit)
		if err != nil {
			return err
		}
		if Flags.Json {
			s, err := json.Marshal(entries)
			if err != nil {
				return err
			}
			fmt.Println(string(s))
			return nil
		}
		for _, e := range entries {
			line := fmt.Sprintf("%s %-8s %s %s:%s %q",
				e.Timestamp.Local().Format(time.DateTime), e.Kind, e.Context, e.TargetType, e.Target, e.Label)
			if e.Error != "" {
				line += " error=" + e.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}
