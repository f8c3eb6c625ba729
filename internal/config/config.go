package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"matinee.app/mcp-matinee/internal/catalog"
)

const envPrefix = "MATINEE"

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportHTTPS = "https"
)

// Settings is the resolved runtime configuration: defaults, then the
// config file, then MATINEE_* environment variables. Command-line
// flags are applied on top by the CLI layer.
type Settings struct {
	MediaDir   string
	Transport  string
	Host       string
	Port       int
	CertFile   string
	KeyFile    string
	Extensions []string
	Preferred  string
	LogLevel   string
}

// Load reads matinee.toml from the given path, or searches the user
// config directory, $HOME/.config/matinee, and the working directory
// when the path is empty. A missing file is fine unless it was named
// explicitly. The result is not yet validated; callers overlay
// command-line flags first and then call Validate.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("matinee")
		v.SetConfigType("toml")
		if configHome, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(configHome, "matinee"))
		}
		v.AddConfigPath("$HOME/.config/matinee")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return &Settings{
		MediaDir:   v.GetString("media_dir"),
		Transport:  strings.ToLower(strings.TrimSpace(v.GetString("transport"))),
		Host:       v.GetString("host"),
		Port:       v.GetInt("port"),
		CertFile:   v.GetString("certfile"),
		KeyFile:    v.GetString("keyfile"),
		Extensions: v.GetStringSlice("catalog.extensions"),
		Preferred:  v.GetString("player.preferred"),
		LogLevel:   strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("media_dir", defaultMediaDir())
	v.SetDefault("transport", TransportStdio)
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 8000)
	v.SetDefault("catalog.extensions", catalog.DefaultExtensions())
	v.SetDefault("log.level", "info")
}

func defaultMediaDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "Media", "MOVIES")
	}
	return filepath.Join(home, "Media", "MOVIES")
}

// Validate reports every configuration problem at once.
func (s *Settings) Validate() error {
	var errs []error

	switch s.Transport {
	case TransportStdio, TransportHTTP, TransportHTTPS:
	default:
		errs = append(errs, fmt.Errorf("transport must be stdio, http, or https, got %q", s.Transport))
	}
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", s.Port))
	}
	if s.Transport == TransportHTTPS && (s.CertFile == "" || s.KeyFile == "") {
		errs = append(errs, errors.New("https transport requires certfile and keyfile"))
	}
	if s.MediaDir == "" {
		errs = append(errs, errors.New("media_dir must not be empty"))
	}
	if len(s.Extensions) == 0 {
		errs = append(errs, errors.New("catalog.extensions must not be empty"))
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error, got %q", s.LogLevel))
	}

	return errors.Join(errs...)
}

// Addr is the host:port the HTTP transports bind to.
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s *Settings) SlogLevel() slog.Level {
	switch s.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
