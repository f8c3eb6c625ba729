package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"matinee.app/mcp-matinee/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mcp-matinee %s\n", buildinfo.Version)
		fmt.Printf("  commit:     %s\n", buildinfo.Commit)
		fmt.Printf("  built:      %s\n", buildinfo.BuildDate)
		fmt.Printf("  go version: %s\n", runtime.Version())
		fmt.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
