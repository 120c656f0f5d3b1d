package models

import (
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-errors/errors"

	"github.com/coresolutiondoteu/open-webui/pkg/api"
)

var (
	// ErrModelNotFound is returned when a switch names a model that is not available.
	ErrModelNotFound = stderrors.New("model not found")
	// ErrNoModels is returned when seeding without any model.
	ErrNoModels = stderrors.New("no models configured")
)

// Store manages the model config file: the list of available models and the current one.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a new Store for the given file.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Load reads the model config from disk.
func (s *Store) Load() (*api.ModelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Seed writes cfg if the file does not exist yet and reports whether it did.
// An empty CurrentModel defaults to the first available model.
func (s *Store) Seed(cfg *api.ModelConfig) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !stderrors.Is(err, fs.ErrNotExist) {
		return false, errors.Errorf("stat %s: %w", s.path, err)
	}

	if len(cfg.AvailableModels) == 0 {
		return false, ErrNoModels
	}
	seed := cfg.Clone()
	if seed.CurrentModel == "" {
		seed.CurrentModel = seed.AvailableModels[0]
	}
	if !seed.Has(seed.CurrentModel) {
		return false, errors.Errorf("seed current model %q: %w", seed.CurrentModel, ErrModelNotFound)
	}
	if err := s.write(seed); err != nil {
		return false, err
	}
	return true, nil
}

// SetCurrent records name as the current model. The name must be one of the
// available models.
func (s *Store) SetCurrent(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.read()
	if err != nil {
		return err
	}
	if !cfg.Has(name) {
		return errors.Errorf("%q: %w", name, ErrModelNotFound)
	}
	if cfg.CurrentModel == name {
		return nil
	}
	cfg.CurrentModel = name
	return s.write(cfg)
}

func (s *Store) read() (*api.ModelConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Errorf("read model config: %w", err)
	}
	var cfg api.ModelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Errorf("parse model config %s: %w", s.path, err)
	}
	if cfg.AvailableModels == nil {
		cfg.AvailableModels = []string{}
	}
	return &cfg, nil
}

// write replaces the file atomically so readers never see a partial document.
func (s *Store) write(cfg *api.ModelConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Errorf("encode model config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return errors.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return errors.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Errorf("replace model config: %w", err)
	}
	return nil
}
