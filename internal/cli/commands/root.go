// Copyright 2024 homefs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"homefs/internal/config"
	"homefs/internal/storage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString returns the version string with build info
func getVersionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		// Dev build: include epoch and commit for troubleshooting
		return fmt.Sprintf("%s (%s, epoch: %s, commit: %s)", version, buildDate, date, commit)
	}
	// Prod build: version with date
	return fmt.Sprintf("%s (%s)", version, buildDate)
}

// formatBuildDate converts epoch timestamp to readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

var (
	// settings is loaded once per invocation by PersistentPreRunE.
	settings *config.Settings

	logLevelFlag string
	jsonOutput   bool
)

var rootCmd = &cobra.Command{
	Use:   "homefs",
	Short: "Virtual filesystem over a home server's data directory",
	Long: `homefs maps virtual paths such as /Home/Documents onto the data directory and
runs file operations under its rules: protected paths, trash with restore,
favorites and SMB shares that follow renames and moves.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		if err := config.InitConfigDir(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		loaded, err := config.LoadSettings()
		if err != nil {
			return err
		}
		settings = loaded
		storage.SetConfigBusyTimeout(settings.BusyTimeout)

		level := logLevelFlag
		if level == "" {
			level = settings.LogLevel
		}
		return setupCLILogging(level)
	},
}

// setupCLILogging sends logrus output to stderr at level, or discards it
// when level is empty or off.
func setupCLILogging(level string) error {
	level = strings.ToLower(level)
	if level == "" || level == "off" || level == "none" {
		log.SetOutput(io.Discard)
		return nil
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: must be one of trace, debug, info, warn, off", level)
	}
	log.SetOutput(os.Stderr)
	log.SetLevel(parsed)
	return nil
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("homefs version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: trace, debug, info, warn, off (default from settings)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
