package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stdeck/internal/config"
	"github.com/dokzlo13/stdeck/internal/db"
	"github.com/dokzlo13/stdeck/internal/history"
	"github.com/dokzlo13/stdeck/internal/relay"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Only opened when history is enabled
	DB      *db.DB
	History *history.History

	Plugin *PluginService
	Health *HealthService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, opts LaunchOptions) (*Services, error) {
	s := &Services{cfg: cfg}

	var recorder relay.Recorder
	if cfg.History.Enabled {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		s.History = history.New(database.DB)
		recorder = s.History
	}

	s.Plugin = NewPluginService(cfg, opts, recorder)
	s.Health = NewHealthService(cfg, s.Plugin.Connected)

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs (e.g., the host disconnects).
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if err := s.Plugin.Start(ctx); err != nil {
		return err
	}

	s.Plugin.StartBackground(ctx, onFatalError)
	s.Health.Start(ctx)

	if s.History != nil {
		retention := s.cfg.History.Retention()
		interval := s.cfg.History.CleanupInterval.Duration()
		log.Debug().Dur("retention", retention).Dur("interval", interval).Msg("History cleanup enabled")
		go s.History.RunCleanup(ctx, interval, retention)
	}

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Plugin != nil {
		s.Plugin.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
