package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"homefs/internal/config"
	"homefs/internal/daemon"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change settings",
	Long: `Show the effective settings, or change them.

Settings are stored in ~/.homefs/settings.yaml. A running daemon is told to
reload them.

Examples:
  # Show current settings
  homefs settings

  # Enable debug logging
  homefs settings --logging debug

  # Run daemon maintenance every minute
  homefs settings --maintenance-interval 60`,
	Args: cobra.NoArgs,
	RunE: runSettings,
}

var (
	settingsLogLevel            string
	settingsMaintenanceInterval int
)

func init() {
	settingsCmd.Flags().StringVar(&settingsLogLevel, "logging", "", "Log level: trace, debug, info, warn, off")
	settingsCmd.Flags().IntVar(&settingsMaintenanceInterval, "maintenance-interval", 0, "Seconds between daemon maintenance passes")
	rootCmd.AddCommand(settingsCmd)
}

func runSettings(cmd *cobra.Command, args []string) error {
	changed := false
	if cmd.Flags().Changed("logging") {
		level, err := normalizeLogLevel(settingsLogLevel)
		if err != nil {
			return err
		}
		settings.LogLevel = level
		changed = true
	}
	if cmd.Flags().Changed("maintenance-interval") {
		if settingsMaintenanceInterval <= 0 {
			return fmt.Errorf("invalid maintenance interval %d: must be positive", settingsMaintenanceInterval)
		}
		settings.MaintenanceInterval = settingsMaintenanceInterval
		changed = true
	}

	if !changed {
		if jsonOutput {
			return printJSON(settings)
		}
		data, err := yaml.Marshal(settings)
		if err != nil {
			return err
		}
		fmt.Printf("# %s\n%s", config.SettingsPath(), data)
		return nil
	}

	if err := config.SaveSettings(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	fmt.Println("Settings saved")
	notifyDaemonReload()
	return nil
}

// normalizeLogLevel validates a level and maps "none" to "off".
func normalizeLogLevel(value string) (string, error) {
	switch value {
	case "trace", "debug", "info", "warn", "off":
		return value, nil
	case "none", "":
		return "off", nil
	}
	return "", fmt.Errorf("invalid log level %q: must be one of trace, debug, info, warn, off", value)
}

// notifyDaemonReload asks a running daemon to reload settings.
func notifyDaemonReload() {
	if !daemon.IsDaemonRunning() {
		return
	}
	client, err := daemon.Connect()
	if err != nil {
		return
	}
	defer client.Close()
	if err := client.ReloadConfig(); err != nil {
		fmt.Printf("Note: Failed to notify daemon: %v\n", err)
		fmt.Println("Restart the daemon for the change to take effect:")
		fmt.Println("  homefs daemon start --restart")
		return
	}
	fmt.Println("Daemon notified to reload configuration")
}
