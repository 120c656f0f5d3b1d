package runner

import (
	"bytes"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/go-errors/errors"
	"github.com/rs/zerolog"
)

// Subprocess manages the lifecycle of one model process: start, output
// piping into the logger, exit detection and graceful shutdown.
type Subprocess struct {
	cmd *exec.Cmd
	mu  sync.Mutex
	log zerolog.Logger

	name        string
	args        []string
	stopTimeout time.Duration
	stopped     bool          // true after GracefulStop
	doneCh      chan struct{} // closed when the process exits
}

// SubprocessConfig holds everything needed to start a subprocess.
type SubprocessConfig struct {
	Command     []string      // binary followed by its arguments
	Label       string        // logger field, e.g. the model name
	StopTimeout time.Duration // SIGTERM grace period before SIGKILL (default 5s)
}

// NewSubprocess creates a Subprocess but does not start it. Call Start next.
func NewSubprocess(cfg SubprocessConfig, logger zerolog.Logger) (*Subprocess, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, errors.New("empty command")
	}
	bin, err := exec.LookPath(cfg.Command[0])
	if err != nil {
		return nil, errors.Errorf("%s not found: %w", cfg.Command[0], err)
	}

	stopTimeout := cfg.StopTimeout
	if stopTimeout == 0 {
		stopTimeout = 5 * time.Second
	}

	return &Subprocess{
		log:         logger.With().Str("process", cfg.Label).Logger(),
		name:        bin,
		args:        append([]string(nil), cfg.Command[1:]...),
		stopTimeout: stopTimeout,
		doneCh:      make(chan struct{}),
	}, nil
}

// Start launches the process. It does not wait for the process to exit;
// the process outlives the request that started it.
func (s *Subprocess) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = false
	s.doneCh = make(chan struct{})
	s.cmd = exec.Command(s.name, s.args...)
	s.cmd.Env = os.Environ()
	s.cmd.WaitDelay = s.stopTimeout
	stdout, stderr := s.pipeOutput()

	s.log.Info().Str("bin", s.name).Strs("args", s.args).Msg("starting")
	if err := s.cmd.Start(); err != nil {
		return errors.Errorf("start %s: %w", s.name, err)
	}
	s.log.Info().Int("pid", s.cmd.Process.Pid).Msg("started")

	cmd, done := s.cmd, s.doneCh
	go func() {
		err := cmd.Wait()
		stdout.flush()
		stderr.flush()
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if !stopped {
			s.log.Warn().Err(err).Int("exit_code", cmd.ProcessState.ExitCode()).Msg("process exited")
		}
		close(done)
	}()
	return nil
}

// Done returns a channel that is closed when the process exits.
func (s *Subprocess) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doneCh
}

// ExitCode returns the process exit code, or -1 if not yet exited.
func (s *Subprocess) ExitCode() int {
	select {
	case <-s.Done():
	default:
		return -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.ProcessState == nil {
		return -1
	}
	return s.cmd.ProcessState.ExitCode()
}

// GracefulStop sends SIGTERM, waits up to the stop timeout, then SIGKILL.
func (s *Subprocess) GracefulStop() error {
	s.mu.Lock()
	s.stopped = true
	cmd, done := s.cmd, s.doneCh
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	default:
	}

	pid := cmd.Process.Pid
	s.log.Info().Int("pid", pid).Msg("sending SIGTERM")

	var sigErr error
	if runtime.GOOS == "windows" {
		sigErr = cmd.Process.Signal(os.Interrupt)
	} else {
		sigErr = cmd.Process.Signal(syscall.SIGTERM)
	}
	if sigErr != nil {
		// Process may already be dead.
		s.log.Debug().Err(sigErr).Msg("signal failed")
		<-done
		return nil
	}

	select {
	case <-done:
		s.log.Info().Int("pid", pid).Msg("process exited cleanly")
		return nil
	case <-time.After(s.stopTimeout):
		s.log.Warn().Int("pid", pid).Dur("timeout", s.stopTimeout).Msg("no exit after SIGTERM, sending SIGKILL")
		if err := cmd.Process.Kill(); err != nil {
			return errors.Errorf("kill %s: %w", s.name, err)
		}
		<-done
		return nil
	}
}

// WasStopped reports whether GracefulStop was called.
func (s *Subprocess) WasStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// pipeOutput connects stdout and stderr to the logger. cmd.Wait returns only
// after both writers have received all output. Must be called with mu held.
func (s *Subprocess) pipeOutput() (stdout, stderr *lineWriter) {
	stdout = &lineWriter{log: s.log, stream: "stdout"}
	stderr = &lineWriter{log: s.log, stream: "stderr"}
	s.cmd.Stdout = stdout
	s.cmd.Stderr = stderr
	return stdout, stderr
}

const maxLineLen = 256 * 1024

// lineWriter logs everything written to it one line per Debug event.
type lineWriter struct {
	log    zerolog.Logger
	stream string

	mu  sync.Mutex
	buf []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLineLen {
		w.emit(w.buf)
		w.buf = nil
	}
	return len(p), nil
}

// flush logs a trailing line that had no newline.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineWriter) emit(line []byte) {
	w.log.Debug().Str("stream", w.stream).Msg(string(bytes.TrimRight(line, "\r")))
}
