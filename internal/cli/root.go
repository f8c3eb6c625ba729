package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"matinee.app/mcp-matinee/internal/buildinfo"
	"matinee.app/mcp-matinee/internal/config"
)

var (
	cfgFile   string
	transport string
	host      string
	port      int
	certFile  string
	keyFile   string
	mediaDir  string
	selfTest  bool
)

var rootCmd = &cobra.Command{
	Use:   "mcp-matinee",
	Short: "MCP server for browsing and playing a local movie library",
	Long: `mcp-matinee exposes a local movie directory to MCP clients: list the
catalog, launch a media player, and drive playback over the player's
IPC socket. Serves MCP over stdio by default, or over HTTP/HTTPS with
Server-Sent Events.`,
	Version:      buildinfo.Version,
	RunE:         runServe,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: matinee.toml in $XDG_CONFIG_HOME/matinee, $HOME/.config/matinee, or .)")
	rootCmd.Flags().StringVarP(&transport, "transport", "t", config.TransportStdio, "transport to serve on: stdio, http, or https")
	rootCmd.Flags().StringVar(&host, "host", "127.0.0.1", "bind host for the http and https transports")
	rootCmd.Flags().IntVarP(&port, "port", "p", 8000, "bind port for the http and https transports")
	rootCmd.Flags().StringVar(&certFile, "certfile", "", "TLS certificate file for the https transport")
	rootCmd.Flags().StringVar(&keyFile, "keyfile", "", "TLS private key file for the https transport")
	rootCmd.Flags().StringVarP(&mediaDir, "media-dir", "d", "", "directory to serve media files from (default: $HOME/Media/MOVIES)")
	rootCmd.Flags().BoolVar(&selfTest, "self-test", false, "print a dependency and configuration report, then exit")
}

// loadSettings resolves the effective configuration: defaults, config
// file, MATINEE_* environment, then explicitly passed flags on top.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	settings, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("transport") {
		settings.Transport = strings.ToLower(strings.TrimSpace(transport))
	}
	if flags.Changed("host") {
		settings.Host = host
	}
	if flags.Changed("port") {
		settings.Port = port
	}
	if flags.Changed("certfile") {
		settings.CertFile = certFile
	}
	if flags.Changed("keyfile") {
		settings.KeyFile = keyFile
	}
	if flags.Changed("media-dir") {
		settings.MediaDir = mediaDir
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
