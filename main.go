// Package main provides the entry point for the sinkpool CLI application.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/sinkpool/internal/config"
	"github.com/dgnsrekt/sinkpool/internal/logging"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	logLevel   string
	backend    string

	// cfg is the effective configuration, loaded before any command runs.
	cfg = config.DefaultConfig()

	rootCmd = &cobra.Command{
		Use:   "sinkpool",
		Short: "Pool audio output sinks per owner and device",
		Long: paragraph(
			fmt.Sprintf("\nOpen, %s and evict audio output sinks the way a media engine does.", keyword("reuse")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}
)

// loadConfig builds cfg from viper and applies the logging settings.
func loadConfig(cmd *cobra.Command) error {
	setupStyles()

	if configFile != "" && configFile != viper.ConfigFileUsed() {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	loaded, err := config.LoadFromViper(viper.GetViper())
	if err != nil {
		// Editing the file must stay possible when it is broken.
		if cmd == configCmd {
			log.Warn("Ignoring invalid configuration", "error", err)
			return nil
		}
		return err //nolint:wrapcheck
	}
	cfg = loaded

	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if cmd.Flags().Changed("backend") {
		cfg.Audio.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return err //nolint:wrapcheck
	}

	if cfg.Log.File != "" {
		if _, err := logging.Setup(cfg.Log.Level, cfg.Log.File); err != nil {
			return fmt.Errorf("unable to set up logging: %w", err)
		}
		return nil
	}
	return logging.SetLevel(cfg.Log.Level) //nolint:wrapcheck
}

// watchConfig re-applies the log level whenever the config file changes.
// Other settings only take effect on the next run.
func watchConfig() {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		reloaded, err := config.LoadFromViper(viper.GetViper())
		if err != nil {
			log.Warn("Ignoring invalid configuration change", "path", e.Name, "error", err)
			return
		}
		if err := logging.SetLevel(reloaded.Log.Level); err != nil {
			log.Warn("Could not apply log level", "error", err)
			return
		}
		log.Info("Configuration reloaded", "path", e.Name, "op", e.Op.String(), "level", reloaded.Log.Level)
	})
	viper.WatchConfig()
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&backend, "backend", "b", "", "sink backend (auto, production, mock)")

	// Config bindings
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("audio.backend", rootCmd.PersistentFlags().Lookup("backend"))

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(configCmd, manCmd, devicesCmd, playCmd, monitorCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "sinkpool")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "sinkpool")}, dirs...)
	}

	if c := os.Getenv("SINKPOOL_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("sinkpool")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "sinkpool.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
