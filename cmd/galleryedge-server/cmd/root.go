// Package cmd implements the CLI commands for the galleryedge server.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mattborg/galleryedge/internal/config"
	"github.com/mattborg/galleryedge/internal/version"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "galleryedge-server",
	Short:   "Media transform and cache edge for shared galleries",
	Version: version.Short(),
	Long: `galleryedge-server sits in front of a file-share Backend and serves
image thumbnails, transcoded video proxies, and download analytics without
storing the original media permanently.

Renditions are built on demand with ffmpeg/ffprobe and kept in a
content-addressed cache; download activity is recorded to an embedded
SQLite store for per-share reporting.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, ./configs/config.yaml, /etc/galleryedge, $HOME/.galleryedge)")
}

// initConfig seeds viper's search path; the heavy lifting (defaults,
// env binding, validation) happens in config.Load so there is exactly one
// place that knows the full key set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	viper.SetEnvPrefix("GALLERYEDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}

// loadConfig is the single path every subcommand uses to obtain a *config.Config.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
