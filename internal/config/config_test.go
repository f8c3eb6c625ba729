package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	return home
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matinee.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func validSettings() *Settings {
	return &Settings{
		MediaDir:   "/srv/media",
		Transport:  TransportStdio,
		Host:       "127.0.0.1",
		Port:       8000,
		Extensions: []string{".mp4"},
		LogLevel:   "info",
	}
}

func TestLoadDefaults(t *testing.T) {
	home := isolateEnv(t)

	settings, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "Media", "MOVIES"), settings.MediaDir)
	assert.Equal(t, TransportStdio, settings.Transport)
	assert.Equal(t, "127.0.0.1", settings.Host)
	assert.Equal(t, 8000, settings.Port)
	assert.Empty(t, settings.CertFile)
	assert.Empty(t, settings.KeyFile)
	assert.Contains(t, settings.Extensions, ".mp4")
	assert.Contains(t, settings.Extensions, ".webm")
	assert.Empty(t, settings.Preferred)
	assert.Equal(t, "info", settings.LogLevel)
}

func TestLoadExplicitFile(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, `
media_dir = "/srv/media"
transport = "http"
host = "0.0.0.0"
port = 3000

[catalog]
extensions = [".mp4", ".mkv"]

[player]
preferred = "vlc"

[log]
level = "debug"
`)

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/media", settings.MediaDir)
	assert.Equal(t, TransportHTTP, settings.Transport)
	assert.Equal(t, "0.0.0.0", settings.Host)
	assert.Equal(t, 3000, settings.Port)
	assert.Equal(t, []string{".mp4", ".mkv"}, settings.Extensions)
	assert.Equal(t, "vlc", settings.Preferred)
	assert.Equal(t, "debug", settings.LogLevel)
}

func TestLoadExplicitFileMissing(t *testing.T) {
	isolateEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadSearchesConfigDir(t *testing.T) {
	home := isolateEnv(t)
	dir := filepath.Join(home, ".config", "matinee")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "matinee.toml"), []byte(`port = 9000`), 0o644))

	settings, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9000, settings.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, `
transport = "http"
port = 3000
`)
	t.Setenv("MATINEE_PORT", "9090")
	t.Setenv("MATINEE_TRANSPORT", "stdio")
	t.Setenv("MATINEE_LOG_LEVEL", "warn")

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, settings.Port)
	assert.Equal(t, TransportStdio, settings.Transport)
	assert.Equal(t, "warn", settings.LogLevel)
}

func TestLoadNormalizesTransportCase(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, `transport = "HTTP"`)

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, TransportHTTP, settings.Transport)
}

func TestLoadLeavesValidationToCaller(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, `transport = "https"`)

	settings, err := Load(path)
	require.NoError(t, err, "https without certs loads fine; flags may complete it")

	err = settings.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "certfile")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(s *Settings) {}, ""},
		{"valid https", func(s *Settings) {
			s.Transport = TransportHTTPS
			s.CertFile = "cert.pem"
			s.KeyFile = "key.pem"
		}, ""},
		{"unknown transport", func(s *Settings) { s.Transport = "smtp" }, "transport"},
		{"port too low", func(s *Settings) { s.Port = 0 }, "port"},
		{"port too high", func(s *Settings) { s.Port = 70000 }, "port"},
		{"https without cert", func(s *Settings) { s.Transport = TransportHTTPS }, "certfile"},
		{"empty media dir", func(s *Settings) { s.MediaDir = "" }, "media_dir"},
		{"no extensions", func(s *Settings) { s.Extensions = nil }, "extensions"},
		{"unknown log level", func(s *Settings) { s.LogLevel = "trace" }, "log.level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := validSettings()
			tc.mutate(s)
			err := s.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	s := validSettings()
	s.Transport = "smtp"
	s.Port = 0
	s.LogLevel = "loud"

	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport")
	assert.Contains(t, err.Error(), "port")
	assert.Contains(t, err.Error(), "log.level")
}

func TestAddr(t *testing.T) {
	s := validSettings()
	assert.Equal(t, "127.0.0.1:8000", s.Addr())

	s.Host = "::"
	s.Port = 3000
	assert.Equal(t, "[::]:3000", s.Addr())
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for level, want := range tests {
		s := validSettings()
		s.LogLevel = level
		assert.Equal(t, want, s.SlogLevel())
	}
}
