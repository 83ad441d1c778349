package app

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stdeck/internal/config"
	"github.com/dokzlo13/stdeck/internal/dispatch"
	"github.com/dokzlo13/stdeck/internal/eventbus"
	"github.com/dokzlo13/stdeck/internal/group"
	"github.com/dokzlo13/stdeck/internal/relay"
	"github.com/dokzlo13/stdeck/internal/smartthings"
	"github.com/dokzlo13/stdeck/internal/streamdeck"
)

// LaunchOptions are the arguments the host passes when starting the plugin
type LaunchOptions struct {
	Port          int
	PluginUUID    string
	RegisterEvent string
	Info          streamdeck.Info
}

// PluginService wraps the host connection, dispatcher and relay.
type PluginService struct {
	cfg      *config.Config
	opts     LaunchOptions
	recorder relay.Recorder

	Connector *smartthings.Connector
	Bus       *eventbus.Bus
	Conn      *streamdeck.Conn
	Relay     *relay.Relay

	connected atomic.Bool
}

// NewPluginService creates the service. recorder may be nil.
func NewPluginService(cfg *config.Config, opts LaunchOptions, recorder relay.Recorder) *PluginService {
	return &PluginService{
		cfg:       cfg,
		opts:      opts,
		recorder:  recorder,
		Connector: smartthings.NewConnector(cfg.SmartThings.BaseURL, cfg.SmartThings.Timeout.Duration()),
		Bus:       eventbus.NewWithConfig(eventbus.DefaultWorkerCount, cfg.EventBus.GetQueueSize()),
	}
}

// Start connects to the host, registers and asks for the global settings.
func (s *PluginService) Start(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.Plugin.DialTimeout.Duration())
	defer cancel()

	conn, err := streamdeck.Dial(dialCtx, s.opts.Port)
	if err != nil {
		return fmt.Errorf("connect to host: %w", err)
	}
	s.Conn = conn

	registerEvent := s.opts.RegisterEvent
	if registerEvent == "" {
		registerEvent = streamdeck.RegisterPlugin
	}
	if err := conn.Register(ctx, registerEvent, s.opts.PluginUUID); err != nil {
		conn.Close()
		return fmt.Errorf("register with host: %w", err)
	}

	connect := func(token string) dispatch.API {
		return s.Connector.Connect(token)
	}
	delays := dispatch.Delays{
		Device: s.cfg.Dispatch.DeviceRefreshDelay.Duration(),
		Group:  s.cfg.Dispatch.GroupRefreshDelay.Duration(),
		Scene:  s.cfg.Dispatch.SceneRefreshDelay.Duration(),
	}
	dispatcher := dispatch.New(connect, conn, group.NewPoller(s.cfg.SmartThings.GetPacingRPS()), delays)

	s.Relay = relay.New(s.cfg.Plugin.ActionUUID, s.Bus, dispatcher, s.recorder)
	s.Relay.Start(ctx)

	if err := conn.GetGlobalSettings(ctx, s.opts.PluginUUID); err != nil {
		log.Warn().Err(err).Msg("Failed to request global settings")
	}

	s.connected.Store(true)
	log.Info().
		Int("port", s.opts.Port).
		Str("plugin_uuid", s.opts.PluginUUID).
		Str("host_version", s.opts.Info.Application.Version).
		Str("platform", s.opts.Info.Application.Platform).
		Int("devices", len(s.opts.Info.Devices)).
		Msg("Registered with host")
	return nil
}

// StartBackground runs the read loop. When the host goes away onFatalError
// is called: the plugin has nothing left to do.
func (s *PluginService) StartBackground(ctx context.Context, onFatalError func(error)) {
	go func() {
		err := s.Conn.Run(ctx, s.Relay.Handle)
		s.connected.Store(false)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = streamdeck.ErrClosed
		}
		log.Error().Err(err).Msg("Host connection lost")
		if onFatalError != nil {
			onFatalError(err)
		}
	}()
}

// Connected reports whether the host connection is up
func (s *PluginService) Connected() bool {
	return s.connected.Load()
}

// Close releases all resources.
func (s *PluginService) Close() {
	if s.Relay != nil {
		s.Relay.Stop()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		s.Bus.Close(ctx)
	}
	if s.Conn != nil {
		s.Conn.Close()
	}
	if s.Connector != nil {
		s.Connector.Close()
	}
}
