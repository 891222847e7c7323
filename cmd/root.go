package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the driveproxy application
var rootCmd = &cobra.Command{
	Use:   "driveproxy",
	Short: "Serves Google Drive files of linked accounts over an authenticated HTTP API",
	Long: `driveproxy lets application users browse, upload, download and delete
files in the Google Drive accounts they have linked. Each request is
authorized with the stored OAuth tokens of the account that owns the file.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// configPath is the --config flag shared by all commands.
var configPath string

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "driveproxy version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a TOML config file. Can also use DRIVEPROXY_CONFIG env var.")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
