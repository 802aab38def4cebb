// Package config loads mcpcli settings with Viper and persists the default
// server record.
package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/Bigsy/mcpcli/internal/logging"
)

// AppName is the application name used for config and state directories.
const AppName = "mcpcli"

// Setting keys, shared by config files, MCPCLI_* environment variables and
// command-line flags.
const (
	KeyRequestTimeout   = "request_timeout"
	KeyHandshakeTimeout = "handshake_timeout"
	KeyShutdownGrace    = "shutdown_grace"
	KeyLogLevel         = "log_level"
	KeyLogFormat        = "log_format"
	KeyClientName       = "client_name"
	KeyConfigDir        = "config_dir"
)

// Settings is the resolved runtime configuration.
type Settings struct {
	RequestTimeout   time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	ShutdownGrace    time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
	LogLevel         string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat        string        `mapstructure:"log_format" yaml:"log_format"`
	ClientName       string        `mapstructure:"client_name" yaml:"client_name"`
	// ConfigDir holds default-server.json and config.yaml.
	ConfigDir string `mapstructure:"config_dir" yaml:"config_dir"`
}

// DefaultConfigDir is $XDG_CONFIG_HOME/mcpcli.
func DefaultConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultStateDir is $XDG_STATE_HOME/mcpcli, home of logs and the PID file.
func DefaultStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// LogFilePath is where the interactive shell writes its log.
func LogFilePath() string {
	return filepath.Join(DefaultStateDir(), AppName+".log")
}

// NewViper returns a Viper instance with defaults, the config file search
// path and MCPCLI_* environment variable support.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(DefaultConfigDir())

	v.SetEnvPrefix("MCPCLI")
	v.AutomaticEnv()

	v.SetDefault(KeyRequestTimeout, 30*time.Second)
	v.SetDefault(KeyHandshakeTimeout, 30*time.Second)
	v.SetDefault(KeyShutdownGrace, 5*time.Second)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, string(logging.FormatText))
	v.SetDefault(KeyClientName, AppName)
	v.SetDefault(KeyConfigDir, DefaultConfigDir())

	return v
}

// Load reads the config file into v and decodes the settings.
// If path is provided, it reads from that specific file and a missing file
// is an error. Otherwise a missing config.yaml is fine and defaults apply.
func Load(v *viper.Viper, path string) (*Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config file")
		}
		if path != "" {
			return nil, errors.Wrapf(err, "config file not found at %s", path)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, "decoding settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the settings for values the session cannot use.
func (s *Settings) Validate() error {
	if s.RequestTimeout <= 0 {
		return errors.Newf("%s must be positive, got %s", KeyRequestTimeout, s.RequestTimeout)
	}
	if s.HandshakeTimeout <= 0 {
		return errors.Newf("%s must be positive, got %s", KeyHandshakeTimeout, s.HandshakeTimeout)
	}
	if s.ShutdownGrace <= 0 {
		return errors.Newf("%s must be positive, got %s", KeyShutdownGrace, s.ShutdownGrace)
	}
	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(s.LogFormat); err != nil {
		return err
	}
	if s.ConfigDir == "" {
		return errors.Newf("%s must not be empty", KeyConfigDir)
	}
	return nil
}

// DefaultServerPath is the default server record inside the config dir.
func (s *Settings) DefaultServerPath() string {
	return filepath.Join(s.ConfigDir, defaultServerFile)
}
