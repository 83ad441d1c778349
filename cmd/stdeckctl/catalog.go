package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/stdeck/internal/editor"
)

var catalogFlags struct {
	Context    string
	Switchable bool
	Refresh    bool
}

func init() {
	devicesCmd.Flags().StringVar(&catalogFlags.Context, "context", "", "Use this key's token instead of the global one")
	devicesCmd.Flags().BoolVar(&catalogFlags.Switchable, "switchable", false, "Only list devices with the switch capability")
	scenesCmd.Flags().StringVar(&catalogFlags.Context, "context", "", "Use this key's token instead of the global one")
	for _, cmd := range []*cobra.Command{devicesCmd, scenesCmd} {
		cmd.Flags().BoolVar(&catalogFlags.Refresh, "refresh", false, "Ignore cached lists and fetch again")
	}
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(scenesCmd)
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices visible to the token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := catalogToken()
		if err != nil {
			return err
		}
		opts, err := session.editor.DeviceOptions(session.ctx, token)
		if err != nil {
			return err
		}
		if catalogFlags.Switchable {
			opts = switchable(opts)
		}
		return printOptions(opts)
	},
}

var scenesCmd = &cobra.Command{
	Use:   "scenes",
	Short: "List scenes visible to the token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := catalogToken()
		if err != nil {
			return err
		}
		opts, err := session.editor.SceneOptions(session.ctx, token)
		if err != nil {
			return err
		}
		return printOptions(opts)
	},
}

func catalogToken() (string, error) {
	if catalogFlags.Refresh {
		if err := session.editor.ForgetPicklists(); err != nil {
			return "", err
		}
	}
	return session.editor.Token(session.ctx, catalogFlags.Context)
}

func switchable(opts []editor.Option) []editor.Option {
	var out []editor.Option
	for _, o := range opts {
		if o.Switchable {
			out = append(out, o)
		}
	}
	return out
}

func printOptions(opts []editor.Option) error {
	if Flags.Json {
		s, err := json.Marshal(opts)
		if err != nil {
			return err
		}
		fmt.Println(string(s))
		return nil
	}
	for _, o := range opts {
		fmt.Println(o.Label)
	}
	return nil
}
