package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/spf13/viper"
)

// Config holds settings for both the client commands and the server.
type Config struct {
	ServerURL      string        `mapstructure:"server_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// ModelConfig is the JSON file served as /config.json.
	ModelConfig string `mapstructure:"model_config"`
	// AvailableModels and DefaultModel seed ModelConfig when it does not exist yet.
	AvailableModels []string `mapstructure:"available_models"`
	DefaultModel    string   `mapstructure:"default_model"`

	Launch        bool          `mapstructure:"launch"`
	LaunchCommand string        `mapstructure:"launch_command"` // {model} is replaced by the model name
	StopTimeout   time.Duration `mapstructure:"stop_timeout"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"` // TUI log destination
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ServerURL:      "http://127.0.0.1:5000",
		RequestTimeout: 10 * time.Second,
		Host:           "0.0.0.0",
		Port:           5000,
		ModelConfig:    filepath.Join(DataDir(), "config.json"),
		Launch:         true,
		LaunchCommand:  "ollama run {model}",
		StopTimeout:    5 * time.Second,
		LogLevel:       "info",
		LogFormat:      "console",
		LogFile:        filepath.Join(DataDir(), "modelswitch.log"),
	}
}

// SetDefaults registers every key on v so environment variables and flags can override it.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("server_url", d.ServerURL)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("model_config", d.ModelConfig)
	v.SetDefault("available_models", d.AvailableModels)
	v.SetDefault("default_model", d.DefaultModel)
	v.SetDefault("launch", d.Launch)
	v.SetDefault("launch_command", d.LaunchCommand)
	v.SetDefault("stop_timeout", d.StopTimeout)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_file", d.LogFile)
}

// Load reads configuration into a Config. Precedence: flags bound on v, MODELSWITCH_*
// environment variables, the config file, defaults. An explicit file must exist;
// otherwise modelswitch.yaml is looked up in the data dir and the working directory.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("MODELSWITCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("modelswitch")
		v.SetConfigType("yaml")
		v.AddConfigPath(DataDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !stderrors.As(err, &notFound) {
			return nil, errors.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url must not be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	if c.Launch && !strings.Contains(c.LaunchCommand, "{model}") {
		return errors.Errorf("launch_command %q must contain {model}", c.LaunchCommand)
	}
	if c.DefaultModel != "" && len(c.AvailableModels) > 0 && !slices.Contains(c.AvailableModels, c.DefaultModel) {
		return errors.Errorf("default_model %q is not in available_models", c.DefaultModel)
	}
	return nil
}

// ServerURLTrimmed returns ServerURL without a trailing slash.
func (c *Config) ServerURLTrimmed() string {
	return strings.TrimRight(c.ServerURL, "/")
}

// DataDir returns the default data directory for modelswitch.
// Windows: %LOCALAPPDATA%\modelswitch
// Linux/Mac: ~/.local/share/modelswitch
func DataDir() string {
	if dir := os.Getenv("MODELSWITCH_DATA_DIR"); dir != "" {
		return dir
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "modelswitch")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "modelswitch")
}

// EnsureDirs creates the directories the server writes into.
func EnsureDirs(cfg *Config) error {
	dirs := []string{DataDir(), filepath.Dir(cfg.ModelConfig)}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
