package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"homefs/internal/daemon"
	"homefs/internal/util"
	"homefs/internal/vfs"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Daemon management commands",
	Long: `Commands for controlling the homefs maintenance daemon. The daemon purges
trash records whose entry is gone and keeps the SMB share configuration in
sync with the stored shares.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	Long:  `Starts the homefs daemon in the background.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	Long:  `Stops the running homefs daemon.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Shows whether the daemon is running and the outcome of its last maintenance pass.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStatus,
}

var daemonMaintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run a maintenance pass now",
	Long: `Runs a maintenance pass in the daemon. When no daemon is running the pass
runs in this process.`,
	Args: cobra.NoArgs,
	RunE: runDaemonMaintain,
}

var (
	daemonForeground  bool
	daemonRestart     bool
	daemonSkipCleanup bool
)

func init() {
	daemonStartCmd.Flags().BoolVarP(&daemonForeground, "foreground", "f", false, "Run in foreground")
	daemonStartCmd.Flags().BoolVar(&daemonRestart, "restart", false, "Restart daemon if already running (no confirmation)")
	daemonStartCmd.Flags().BoolVar(&daemonSkipCleanup, "skip-cleanup", false, "Skip removal of a stale PID file and socket")
	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd, daemonMaintainCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	if daemon.IsDaemonRunning() {
		pid, _ := daemon.GetPID()
		if !daemonRestart {
			fmt.Printf("Daemon already running (PID %d)\n", pid)
			fmt.Println("Use --restart to restart the daemon")
			return nil
		}
		fmt.Printf("Daemon already running (PID %d), restarting...\n", pid)
		if err := stopDaemonAndWait(cmd.Context()); err != nil {
			return fmt.Errorf("failed to stop daemon for restart: %w", err)
		}
	}

	if daemonForeground {
		d := daemon.New()
		d.LogLevel = logLevelFlag
		d.SkipCleanup = daemonSkipCleanup
		return d.Run(cmd.Context())
	}

	// The background process runs "daemon start --foreground" and inherits
	// the environment, including HOMEFS_CONFIG_DIR.
	startArgs := []string{"daemon", "start", "--foreground"}
	if logLevelFlag != "" {
		startArgs = append(startArgs, "--log-level", logLevelFlag)
	}
	if daemonSkipCleanup {
		startArgs = append(startArgs, "--skip-cleanup")
	}
	cfg := util.DaemonPollConfig()
	if err := util.StartIfNeeded(cmd.Context(), cfg, daemon.IsDaemonRunning, startArgs); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	pid, _ := daemon.GetPID()
	fmt.Printf("Daemon started (PID %d)\n", pid)
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	if !daemon.IsDaemonRunning() {
		fmt.Println("Daemon not running")
		if result := daemon.CleanupStale(); result.Cleaned() {
			fmt.Println(daemon.FormatCleanupResult(result))
		}
		return nil
	}
	if err := stopDaemonAndWait(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Daemon stopped")
	return nil
}

// stopDaemonAndWait asks the daemon to stop and kills it if it does not
// exit in time.
func stopDaemonAndWait(ctx context.Context) error {
	pid, _ := daemon.GetPID()

	gracefulStop := func() error {
		client, err := daemon.Connect()
		if err != nil {
			return err
		}
		defer client.Close()
		resp, err := client.Stop()
		if err != nil {
			return fmt.Errorf("stop request failed: %w", err)
		}
		if !resp.Success {
			return fmt.Errorf("%s", resp.Error)
		}
		return nil
	}
	isRunning := func() bool {
		return daemon.IsDaemonRunning() || util.IsProcessRunning(pid)
	}

	cfg := util.DaemonPollConfig()
	if err := util.StopProcess(ctx, pid, cfg, gracefulStop, isRunning); err != nil {
		return err
	}
	daemon.CleanupStale()
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	logLevel := settings.LogLevel
	if logLevel == "" {
		logLevel = "off"
	}

	if !daemon.IsDaemonRunning() {
		if jsonOutput {
			return printJSON(&daemon.Response{Success: false, Message: "not running"})
		}
		fmt.Println("Daemon: not running")
		fmt.Printf("Log level: %s\n", logLevel)
		return nil
	}

	client, err := daemon.Connect()
	if err != nil {
		return err
	}
	defer client.Close()
	resp, err := client.Status()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Printf("Daemon: running (PID %d)\n", resp.PID)
	fmt.Printf("Log level: %s\n", logLevel)
	if status := resp.Status; status != nil {
		fmt.Printf("Data directory: %s\n", status.DataDirectory)
		fmt.Printf("Maintenance: every %s, %d passes\n", status.Interval, status.Runs)
		if !status.LastRun.IsZero() {
			fmt.Printf("Last pass: %s\n", humanize.Time(status.LastRun))
		}
		if status.LastError != "" {
			fmt.Printf("Last error: %s\n", status.LastError)
		}
	}
	if resp.Report != nil {
		printReport(resp.Report)
	}
	return nil
}

func runDaemonMaintain(cmd *cobra.Command, args []string) error {
	var report *vfs.MaintenanceReport
	if daemon.IsDaemonRunning() {
		client, err := daemon.Connect()
		if err != nil {
			return err
		}
		defer client.Close()
		if report, err = client.Maintain(); err != nil {
			return err
		}
	} else {
		err := withFiles(cmd, func(ctx context.Context, files *vfs.Files) error {
			r, err := files.Maintain(ctx)
			report = &r
			return err
		})
		if err != nil {
			return err
		}
	}

	if jsonOutput {
		return printJSON(report)
	}
	printReport(report)
	return nil
}

func printReport(report *vfs.MaintenanceReport) {
	fmt.Printf("Purged trash records: %d\n", report.PurgedTrashRecords)
	fmt.Printf("Shares: %d\n", report.Shares)
	if len(report.UnrecordedEntries) > 0 {
		fmt.Printf("Trash entries without record: %s\n", strings.Join(report.UnrecordedEntries, ", "))
	}
	fmt.Printf("Took: %s\n", report.Duration.Round(time.Millisecond))
}
