package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# Sink cache settings
cache:
  # How long a sink opened for an info query waits to be claimed
  delete_timeout: "5s"

# Audio output settings
audio:
  # Sink backend: auto, production, or mock
  backend: "auto"
  # PCM format sinks are opened with (44100 or 48000 Hz, 1 or 2 channels)
  sample_rate: 44100
  channels: 1
  buffer: "50ms"
  # Sinks opened per second (0 disables throttling)
  creation_rate: 20
  creation_burst: 4
  # How long to wait for the throttle before reporting a timeout
  create_timeout: "2s"

# Logging
log:
  # debug, info, warn, or error
  level: "info"
  # Log to this file instead of the default cache location
  # file: "~/.sinkpool/sinkpool.log"

# Prometheus endpoint, e.g. "127.0.0.1:9100" (disabled when empty)
metrics:
  addr: ""
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the sinkpool config file",
	Long:    paragraph(fmt.Sprintf("\n%s the sinkpool config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("sinkpool config\nsinkpool config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Sinkpool", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

var copyConfig bool

var configShowCmd = &cobra.Command{
	Use:     "show",
	Short:   "Print the effective configuration",
	Long:    paragraph(fmt.Sprintf("\n%s the configuration sinkpool runs with: defaults, then the config file, then SINKPOOL_* environment variables.", keyword("Print"))),
	Example: paragraph("sinkpool config show\nSINKPOOL_AUDIO_BACKEND=mock sinkpool config show"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := cfg.Encode()
		if err != nil {
			return err //nolint:wrapcheck
		}
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintln(cmd.OutOrStdout(), faint("# "+used))
		}
		fmt.Fprint(cmd.OutOrStdout(), string(b))

		if copyConfig {
			if err := clipboard.WriteAll(string(b)); err != nil {
				return fmt.Errorf("unable to copy config to clipboard: %w", err)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Copied to clipboard.")
		}
		return nil
	},
}

func init() {
	configShowCmd.Flags().BoolVarP(&copyConfig, "copy", "c", false, "also copy the configuration to the clipboard")
	configCmd.AddCommand(configShowCmd)
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
