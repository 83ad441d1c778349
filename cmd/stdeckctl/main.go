package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/stdeck/internal/config"
	"github.com/dokzlo13/stdeck/internal/db"
	"github.com/dokzlo13/stdeck/internal/editor"
	"github.com/dokzlo13/stdeck/internal/kv"
	"github.com/dokzlo13/stdeck/internal/logging"
	"github.com/dokzlo13/stdeck/internal/smartthings"
	"github.com/dokzlo13/stdeck/internal/streamdeck"
)

var Flags struct {
	Config  string
	DB      string
	Port    int
	UUID    string
	Json    bool
	Verbose bool
	Timeout time.Duration
}

// session is what every subcommand works against
var session struct {
	cfg      *config.Config
	database *db.DB
	store    editor.Store
	local    *editor.LocalStore
	host     *editor.HostStore
	editor   *editor.Editor
	conn     *smartthings.Connector
	ctx      context.Context
	cancel   context.CancelFunc
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes one command. The session is closed here rather than in a
// post-run hook, which cobra skips when the command fails.
func run(args []string) error {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if cerr := closeSession(); err == nil {
		err = cerr
	}
	return err
}

var rootCmd = &cobra.Command{
	Use:           "stdeckctl",
	Short:         "Edit SmartThings key settings with or without a running host",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return openSession()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&Flags.Config, "config", "c", "config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&Flags.DB, "db", "", "Local settings database (defaults to database.path from config)")
	rootCmd.PersistentFlags().IntVar(&Flags.Port, "port", 0, "Host websocket port; edits go through the host when set")
	rootCmd.PersistentFlags().StringVar(&Flags.UUID, "uuid", "", "Property inspector uuid used to register with the host")
	rootCmd.PersistentFlags().BoolVar(&Flags.Json, "json", false, "JSON output")
	rootCmd.PersistentFlags().BoolVarP(&Flags.Verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().DurationVar(&Flags.Timeout, "timeout", 30*time.Second, "Command timeout")
}

func openSession() error {
	cfg, err := config.Load(Flags.Config)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	cfg.Log.File = logging.NoFile
	if Flags.Verbose {
		cfg.Log.Level = "debug"
	}
	logging.Setup(cfg.Log)
	session.cfg = cfg

	session.ctx, session.cancel = context.WithTimeout(context.Background(), Flags.Timeout)

	var cache kv.Bucket
	if Flags.Port > 0 {
		if Flags.UUID == "" {
			return fmt.Errorf("--uuid is required with --port")
		}
		conn, err := streamdeck.Dial(session.ctx, Flags.Port)
		if err != nil {
			return fmt.Errorf("connect to host: %w", err)
		}
		host, err := editor.NewHostStore(session.ctx, conn, Flags.UUID)
		if err != nil {
			conn.Close()
			return err
		}
		session.host = host
		session.store = host
		cache = kv.NewManager(nil).Bucket("catalog", false)
		log.Debug().Int("port", Flags.Port).Msg("Editing through host")
	} else {
		path := Flags.DB
		if path == "" {
			path = cfg.Database.Path
		}
		database, err := db.Open(path)
		if err != nil {
			return err
		}
		session.database = database
		manager := kv.NewManager(database.DB)
		if _, err := manager.Prune(); err != nil {
			log.Warn().Err(err).Msg("Failed to prune expired values")
		}
		session.local = editor.NewLocalStore(manager)
		session.store = session.local
		cache = manager.Bucket("catalog", true)
		log.Debug().Str("db", path).Msg("Editing local settings")
	}

	session.conn = smartthings.NewConnector(cfg.SmartThings.BaseURL, cfg.SmartThings.Timeout.Duration())
	catalog := func(token string) editor.Catalog {
		return session.conn.Connect(token)
	}
	session.editor = editor.New(session.store, catalog, cache)
	return nil
}

// closeSession releases whatever openSession got to; safe to call more than once
func closeSession() error {
	var err error
	if session.host != nil {
		err = session.host.Close()
		session.host = nil
	}
	if session.database != nil {
		session.database.Close()
		session.database = nil
	}
	if session.conn != nil {
		session.conn.Close()
		session.conn = nil
	}
	if session.cancel != nil {
		session.cancel()
		session.cancel = nil
	}
	return err
}
