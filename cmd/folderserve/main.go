// folderserve exposes a directory tree over HTTP: listing pages for
// directories, downloads or inline views for files, and a persisted index
// with daily retention cleanup.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	rootFlag   string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "folderserve",
	Short:         "Serve a directory tree over HTTP",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "TOML config file (default $FOLDERSERVE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "served root directory (overrides ROOT)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(indexCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
