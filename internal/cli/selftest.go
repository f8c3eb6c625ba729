package cli

import (
	"encoding/json"
	"errors"
	"os"

	"matinee.app/mcp-matinee/internal/buildinfo"
	"matinee.app/mcp-matinee/internal/config"
	"matinee.app/mcp-matinee/internal/diagnostics"
)

type selfTestOutput struct {
	Server struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"server"`
	Config struct {
		MediaDir       string `json:"media_dir"`
		MediaDirExists bool   `json:"media_dir_exists"`
		Transport      string `json:"transport"`
		Addr           string `json:"addr"`
	} `json:"config"`
	Dependencies diagnostics.DependencyReport `json:"dependencies"`
}

func runSelfTest(settings *config.Settings) error {
	out := selfTestOutput{
		Dependencies: diagnostics.DetectDependencies(),
	}
	out.Server.Name = serverName
	out.Server.Version = buildinfo.Version
	out.Config.MediaDir = settings.MediaDir
	if info, err := os.Stat(settings.MediaDir); err == nil && info.IsDir() {
		out.Config.MediaDirExists = true
	}
	out.Config.Transport = settings.Transport
	out.Config.Addr = settings.Addr()

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return err
	}

	if !out.Dependencies.AnyPlayerPresent {
		return errors.New("self-test failed: no media player binary found in PATH")
	}
	return nil
}
