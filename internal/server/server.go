package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/coresolutiondoteu/open-webui/internal/config"
	"github.com/coresolutiondoteu/open-webui/internal/metrics"
	"github.com/coresolutiondoteu/open-webui/internal/models"
	"github.com/coresolutiondoteu/open-webui/internal/runner"
	"github.com/coresolutiondoteu/open-webui/internal/server/handlers"
	"github.com/coresolutiondoteu/open-webui/pkg/api"
)

// Server serves the model config and performs model switches.
type Server struct {
	cfg      *config.Config
	http     *http.Server
	store    *models.Store
	launcher runner.Launcher
	log      zerolog.Logger

	// switchMu serializes switches so stop/launch/persist never interleave.
	switchMu sync.Mutex
}

// New creates a new Server.
func New(cfg *config.Config, store *models.Store, launcher runner.Launcher, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		launcher: launcher,
		log:      logger.With().Str("component", "server").Logger(),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           otelhttp.NewHandler(s.withLogging(withCORS(mux)), "modelswitch"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Bootstrap seeds the model config file from configuration if it does not
// exist yet and launches the current model when launching is enabled.
func (s *Server) Bootstrap(ctx context.Context) error {
	created, err := s.store.Seed(&api.ModelConfig{
		AvailableModels: s.cfg.AvailableModels,
		CurrentModel:    s.cfg.DefaultModel,
	})
	switch {
	case stderrors.Is(err, models.ErrNoModels):
		return errors.Errorf("%s does not exist and available_models is empty: %w", s.store.Path(), err)
	case err != nil:
		return err
	case created:
		s.log.Info().Str("path", s.store.Path()).Msg("model config created")
	}

	cfg, err := s.store.Load()
	if err != nil {
		return err
	}
	s.log.Info().
		Strs("models", cfg.AvailableModels).
		Str("current", cfg.CurrentModel).
		Msg("model config loaded")

	if cfg.CurrentModel != "" {
		if err := s.launcher.Launch(ctx, cfg.CurrentModel); err != nil {
			return &handlers.LaunchError{Model: cfg.CurrentModel, Err: err}
		}
	}
	metrics.SetActiveModel(cfg.CurrentModel)
	return nil
}

// Start starts the server and blocks until the context is cancelled.
// The running model is stopped when Start returns.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		s.stopModel()
		return errors.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until the context is cancelled or serving fails, then
// stops the running model.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.stopModel()

	s.log.Info().Str("addr", ln.Addr().String()).Str("model_config", s.store.Path()).Msg("modelswitch server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("server shutdown")
		}
		<-errCh
		return nil
	case err := <-errCh:
		s.log.Error().Err(err).Msg("server stopped")
		return err
	}
}

func (s *Server) stopModel() {
	if err := s.launcher.Stop(); err != nil {
		s.log.Error().Err(err).Msg("stop model")
	}
}

// SwitchModel stops the running model, launches name and records it as current.
// When the launch or the write fails the previous model is relaunched.
func (s *Server) SwitchModel(ctx context.Context, name string) (string, error) {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	start := time.Now()
	log := s.log.With().Str("model", name).Logger()

	cfg, err := s.store.Load()
	if err != nil {
		metrics.SwitchCount.WithLabelValues(metrics.ResultStoreError).Inc()
		return "", err
	}
	if !cfg.Has(name) {
		metrics.SwitchCount.WithLabelValues(metrics.ResultNotFound).Inc()
		log.Warn().Msg("switch to unknown model")
		return "", errors.Errorf("%q: %w", name, models.ErrModelNotFound)
	}

	prev := s.launcher.Running()
	if err := s.launcher.Launch(ctx, name); err != nil {
		metrics.SwitchCount.WithLabelValues(metrics.ResultLaunchError).Inc()
		log.Error().Err(err).Msg("launch failed")
		s.restore(ctx, log, prev, name)
		return "", &handlers.LaunchError{Model: name, Err: err}
	}

	if err := s.store.SetCurrent(name); err != nil {
		metrics.SwitchCount.WithLabelValues(metrics.ResultStoreError).Inc()
		log.Error().Err(err).Msg("recording current model failed")
		s.restore(ctx, log, prev, name)
		return "", err
	}

	metrics.SetActiveModel(name)
	metrics.SwitchCount.WithLabelValues(metrics.ResultOK).Inc()
	metrics.SwitchDuration.Observe(time.Since(start).Seconds())
	log.Info().Str("from", cfg.CurrentModel).Dur("took", time.Since(start)).Msg("model switched")
	return fmt.Sprintf("Switched to %s", name), nil
}

// restore puts the launcher back to prev after a failed switch to name.
func (s *Server) restore(ctx context.Context, log zerolog.Logger, prev, name string) {
	if prev == name {
		return
	}
	if prev == "" {
		if err := s.launcher.Stop(); err != nil {
			log.Error().Err(err).Msg("stop after failed switch")
		}
		return
	}
	if err := s.launcher.Launch(context.WithoutCancel(ctx), prev); err != nil {
		log.Error().Err(err).Str("previous", prev).Msg("relaunch of previous model failed")
		return
	}
	log.Info().Str("previous", prev).Msg("previous model relaunched")
}
