package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/stdeck/internal/editor"
	"github.com/dokzlo13/stdeck/internal/settings"
)

var keyFlags struct {
	Context string
	Type    string
	Devices []string
	Scene   string
	Command string
	Level   string
	PAT     string
}

func init() {
	keySetCmd.Flags().StringVar(&keyFlags.Context, "context", "", "Key context (a new one is generated when empty)")
	keySetCmd.Flags().StringVar(&keyFlags.Type, "type", "", "Target type: device, group or scene (inferred when empty)")
	keySetCmd.Flags().StringArrayVar(&keyFlags.Devices, "device", nil, "Device id, repeat for a group")
	keySetCmd.Flags().StringVar(&keyFlags.Scene, "scene", "", "Scene id")
	keySetCmd.Flags().StringVar(&keyFlags.Command, "command", "toggle", "toggle, on, off or setLevel")
	keySetCmd.Flags().StringVar(&keyFlags.Level, "level", "", "Level for setLevel")
	keySetCmd.Flags().StringVar(&keyFlags.PAT, "pat", "", "Per-key token overriding the global one")

	keyShowCmd.Flags().StringVar(&keyFlags.Context, "context", "", "Key context")
	keyShowCmd.MarkFlagRequired("context")
	keyRmCmd.Flags().StringVar(&keyFlags.Context, "context", "", "Key context")
	keyRmCmd.MarkFlagRequired("context")

	keyCmd.AddCommand(keySetCmd)
	keyCmd.AddCommand(keyShowCmd)
	keyCmd.AddCommand(keyListCmd)
	keyCmd.AddCommand(keyRmCmd)
	rootCmd.AddCommand(keyCmd)
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Edit per-key settings",
	Args:  cobra.NoArgs,
}

var keySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Save a key's target and command",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keyContext := keyFlags.Context
		if keyContext == "" {
			keyContext = uuid.NewString()
		}
		ks, err := session.editor.Save(session.ctx, keyContext, formFromFlags())
		if err != nil {
			return err
		}
		return printKey(keyContext, ks)
	},
}

var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a key's stored settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		form, ok, err := session.editor.Load(session.ctx, keyFlags.Context)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no settings stored for %s", keyFlags.Context)
		}
		return printKey(keyFlags.Context, form.Settings())
	},
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keys stored locally",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if session.local == nil {
			return fmt.Errorf("the host does not list keys, run without --port")
		}
		keys, err := session.local.Keys()
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

var keyRmCmd = &cobra.Command{
	Use:   "rm",
	Short: "Forget a key stored locally",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if session.local == nil {
			return fmt.Errorf("the host owns key settings, run without --port")
		}
		existed, err := session.local.DeleteKey(keyFlags.Context)
		if err != nil {
			return err
		}
		if !existed {
			return fmt.Errorf("no settings stored for %s", keyFlags.Context)
		}
		fmt.Println("Removed", keyFlags.Context)
		return nil
	},
}

// formFromFlags fills both the device and group fields; the form keeps only
// the ones visible for the chosen type.
func formFromFlags() editor.Form {
	command := settings.Command(keyFlags.Command)
	f := editor.Form{
		TargetType:    targetType(keyFlags.Type, keyFlags.Devices, keyFlags.Scene),
		DeviceCommand: command,
		DeviceLevel:   keyFlags.Level,
		Scene:         keyFlags.Scene,
		GroupDevices:  keyFlags.Devices,
		GroupCommand:  command,
		GroupLevel:    keyFlags.Level,
		PAT:           keyFlags.PAT,
	}
	if len(keyFlags.Devices) > 0 {
		f.Device = keyFlags.Devices[0]
	}
	return f
}

func targetType(explicit string, devices []string, scene string) settings.TargetType {
	switch {
	case explicit != "":
		return settings.TargetType(explicit)
	case scene != "":
		return settings.TargetScene
	case len(devices) > 1:
		return settings.TargetGroup
	default:
		return settings.TargetDevice
	}
}

func printKey(keyContext string, ks settings.KeySettings) error {
	if Flags.Json {
		s, err := json.Marshal(map[string]any{"context": keyContext, "settings": ks})
		if err != nil {
			return err
		}
		fmt.Println(string(s))
		return nil
	}
	s, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%s\n%s\n", keyContext, s)
	return nil
}
