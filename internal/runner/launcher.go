package runner

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/rs/zerolog"
)

// ModelPlaceholder is replaced by the model name in a launch command.
const ModelPlaceholder = "{model}"

// DefaultStartupWindow is how long a launched process must stay up before
// Launch reports success.
const DefaultStartupWindow = 500 * time.Millisecond

// Launcher starts and stops the process serving the active model.
type Launcher interface {
	// Launch stops whatever is running and starts model.
	Launch(ctx context.Context, model string) error

	// Stop shuts down the running model, if any.
	Stop() error

	// Running returns the model currently launched, "" if none.
	Running() string
}

// ProcessLauncher runs one model process at a time from a command template,
// e.g. "ollama run {model}".
type ProcessLauncher struct {
	template      []string
	stopTimeout   time.Duration
	startupWindow time.Duration
	log           zerolog.Logger

	mu      sync.Mutex
	sub     *Subprocess
	running string
}

// NewProcessLauncher parses a whitespace separated command template that must contain {model}.
func NewProcessLauncher(command string, stopTimeout time.Duration, logger zerolog.Logger) (*ProcessLauncher, error) {
	template := strings.Fields(command)
	if len(template) == 0 {
		return nil, errors.New("empty launch command")
	}
	if !strings.Contains(command, ModelPlaceholder) {
		return nil, errors.Errorf("launch command %q has no %s placeholder", command, ModelPlaceholder)
	}
	return &ProcessLauncher{
		template:      template,
		stopTimeout:   stopTimeout,
		startupWindow: DefaultStartupWindow,
		log:           logger.With().Str("component", "launcher").Logger(),
	}, nil
}

// Command returns the argv used to launch model.
func (l *ProcessLauncher) Command(model string) []string {
	argv := make([]string, len(l.template))
	for i, arg := range l.template {
		argv[i] = strings.ReplaceAll(arg, ModelPlaceholder, model)
	}
	return argv
}

// Launch fails if the process exits within the startup window. A process
// that exits later is dropped and Running reports "".
func (l *ProcessLauncher) Launch(ctx context.Context, model string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.stopLocked(); err != nil {
		return err
	}

	sub, err := NewSubprocess(SubprocessConfig{
		Command:     l.Command(model),
		Label:       model,
		StopTimeout: l.stopTimeout,
	}, l.log)
	if err != nil {
		return err
	}
	if err := sub.Start(); err != nil {
		return err
	}

	select {
	case <-sub.Done():
		return errors.Errorf("%s exited during startup with code %d", model, sub.ExitCode())
	case <-ctx.Done():
		if err := sub.GracefulStop(); err != nil {
			l.log.Warn().Err(err).Str("model", model).Msg("stop after cancelled launch")
		}
		return ctx.Err()
	case <-time.After(l.startupWindow):
	}

	l.sub = sub
	l.running = model
	go l.watch(sub, model)
	return nil
}

// watch clears the running model when its process exits on its own.
func (l *ProcessLauncher) watch(sub *Subprocess, model string) {
	<-sub.Done()
	if sub.WasStopped() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != sub {
		return
	}
	l.log.Warn().Str("model", model).Int("exit_code", sub.ExitCode()).Msg("model process exited")
	l.sub = nil
	l.running = ""
}

func (l *ProcessLauncher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopLocked()
}

func (l *ProcessLauncher) Running() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *ProcessLauncher) stopLocked() error {
	if l.sub == nil {
		return nil
	}
	l.log.Info().Str("model", l.running).Msg("stopping model")
	if err := l.sub.GracefulStop(); err != nil {
		return err
	}
	l.sub = nil
	l.running = ""
	return nil
}

// NoopLauncher records the model without running anything. Used when the
// model process is managed elsewhere.
type NoopLauncher struct {
	mu      sync.Mutex
	running string
}

func (l *NoopLauncher) Launch(ctx context.Context, model string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = model
	return nil
}

func (l *NoopLauncher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = ""
	return nil
}

func (l *NoopLauncher) Running() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
