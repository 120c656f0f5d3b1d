// Package switcher holds the model selection state shown by the UI: the list of
// available models, the current one, and the operations that load and change them
// through a Backend.
package switcher

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coresolutiondoteu/open-webui/pkg/api"
)

// Backend is the data access the switcher needs. apiclient.Client implements it over HTTP.
type Backend interface {
	LoadConfig(ctx context.Context) (*api.ModelConfig, error)
	SwitchModel(ctx context.Context, model string) (*api.SwitchResponse, error)
}

// Phase tracks the configuration load.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseLoaded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseLoaded:
		return "loaded"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// State is a snapshot of the switcher. Snapshots never share memory with the switcher.
type State struct {
	Models  []string
	Current string
	Phase   Phase
	// Pending is the model of the newest switch still in flight.
	Pending string
	// Err is the last failure, cleared by the next success.
	Err *Error
}

// Config configures a Switcher.
type Config struct {
	// RequestTimeout bounds every backend call. Zero means no timeout.
	RequestTimeout time.Duration
	// OnChange is called with a fresh snapshot after every state change.
	// It runs on the goroutine that made the change and must not block.
	OnChange func(State)
}

// Switcher owns the model list and current selection for one mount of the UI.
type Switcher struct {
	backend Backend
	log     zerolog.Logger
	cfg     Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	start  sync.Once

	mu        sync.Mutex
	state     State
	closed    bool
	loadGen   uint64
	switchGen uint64
}

// New creates a Switcher. Nothing is fetched until Start or Load is called.
func New(backend Backend, logger zerolog.Logger, cfg Config) *Switcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Switcher{
		backend: backend,
		log:     logger.With().Str("component", "switcher").Logger(),
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// State returns a snapshot of the current state.
func (s *Switcher) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Start issues the one configuration load of this mount in the background.
// Later calls do nothing.
func (s *Switcher) Start() {
	s.start.Do(func() {
		s.goAsync(func(ctx context.Context) {
			_ = s.Load(ctx)
		})
	})
}

// Select switches to model in the background. It is what the UI calls on a change event.
func (s *Switcher) Select(model string) {
	s.goAsync(func(ctx context.Context) {
		_ = s.Switch(ctx, model)
	})
}

// Load fetches the configuration and applies it unless a newer load was issued
// meanwhile. Current is left alone when a switch was issued after this load
// started, so a slow read cannot roll back a newer selection.
func (s *Switcher) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return context.Canceled
	}
	s.loadGen++
	gen := s.loadGen
	switchAtIssue := s.switchGen
	s.state.Phase = PhaseLoading
	s.notifyLocked()
	s.mu.Unlock()

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	cfg, err := s.backend.LoadConfig(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.Debug().Msg("dropping config result after close")
		return err
	}
	if gen != s.loadGen {
		s.log.Debug().Uint64("gen", gen).Uint64("latest", s.loadGen).Msg("dropping stale config result")
		return err
	}

	if err != nil {
		e := asError("load", "", err)
		s.state.Phase = PhaseFailed
		s.state.Err = e
		s.log.Warn().Err(err).Str("kind", e.Kind.String()).Msg("config load failed")
		s.notifyLocked()
		return e
	}

	s.state.Models = slices.Clone(cfg.AvailableModels)
	if s.switchGen == switchAtIssue {
		s.state.Current = cfg.CurrentModel
	}
	s.state.Phase = PhaseLoaded
	s.state.Err = nil
	s.log.Info().
		Int("models", len(s.state.Models)).
		Str("current", s.state.Current).
		Msg("config loaded")
	s.notifyLocked()
	return nil
}

// Switch asks the backend to switch to model. Current becomes model only if the
// request succeeds and no newer switch was issued in the meantime.
func (s *Switcher) Switch(ctx context.Context, model string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return context.Canceled
	}
	s.switchGen++
	gen := s.switchGen
	s.state.Pending = model
	s.notifyLocked()
	s.mu.Unlock()

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	resp, err := s.backend.SwitchModel(ctx, model)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.Debug().Str("model", model).Msg("dropping switch result after close")
		return err
	}
	if gen != s.switchGen {
		s.log.Debug().
			Str("model", model).
			Uint64("gen", gen).
			Uint64("latest", s.switchGen).
			Msg("dropping stale switch result")
		return err
	}

	s.state.Pending = ""
	if err != nil {
		e := asError("switch", model, err)
		s.state.Err = e
		s.log.Warn().Err(err).Str("model", model).Str("kind", e.Kind.String()).Msg("switch failed")
		s.notifyLocked()
		return e
	}

	prev := s.state.Current
	s.state.Current = model
	s.state.Err = nil
	ev := s.log.Info().Str("from", prev).Str("to", model)
	if resp != nil && resp.Message != "" {
		ev = ev.Str("server", resp.Message)
	}
	ev.Msg("model switched")
	s.notifyLocked()
	return nil
}

// Close cancels outstanding requests and waits for their goroutines. Results
// that arrive afterwards are dropped. Close is idempotent.
func (s *Switcher) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every background request started by Start or Select has finished.
func (s *Switcher) Wait() {
	s.wg.Wait()
}

func (s *Switcher) goAsync(fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// requestContext ties ctx to the switcher's lifetime and the configured timeout.
func (s *Switcher) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	if s.cfg.RequestTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		return ctx, func() {
			cancelTimeout()
			stop()
			cancel()
		}
	}
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Switcher) snapshot() State {
	st := s.state
	st.Models = slices.Clone(s.state.Models)
	return st
}

// notifyLocked must be called with mu held so observers see changes in order.
func (s *Switcher) notifyLocked() {
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(s.snapshot())
	}
}
