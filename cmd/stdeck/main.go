package main

import (
	"flag"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stdeck/internal/app"
	"github.com/dokzlo13/stdeck/internal/config"
	"github.com/dokzlo13/stdeck/internal/logging"
	"github.com/dokzlo13/stdeck/internal/streamdeck"
)

func main() {
	// Launch arguments passed by the host
	port := flag.Int("port", 0, "Host websocket port")
	pluginUUID := flag.String("pluginUUID", "", "Plugin instance identifier")
	registerEvent := flag.String("registerEvent", streamdeck.RegisterPlugin, "Registration event name")
	info := flag.String("info", "", "Host and device information (JSON)")

	// Support both -c and --config for config path
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	closer := logging.Setup(cfg.Log)
	defer closer.Close()

	if *port <= 0 || *pluginUUID == "" {
		log.Fatal().Int("port", *port).Str("plugin_uuid", *pluginUUID).Msg("Missing -port or -pluginUUID launch argument")
	}

	hostInfo, err := streamdeck.ParseInfo(*info)
	if err != nil {
		log.Warn().Err(err).Msg("Ignoring malformed -info argument")
	}

	log.Info().Str("config", configPath).Msg("Starting stdeck")

	application, err := app.New(cfg, app.LaunchOptions{
		Port:          *port,
		PluginUUID:    *pluginUUID,
		RegisterEvent: *registerEvent,
		Info:          hostInfo,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	ctx := app.SignalContext()

	if err := application.Start(ctx); err != nil {
		application.Stop()
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	application.Wait()

	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
}
