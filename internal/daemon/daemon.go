package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"homefs/internal/config"
	"homefs/internal/storage"
	"homefs/internal/vfs"
)

// maxLogSize is the size above which the log file is cut in half on start.
const maxLogSize = 50 * 1024 * 1024

// shutdownTimeout bounds the wait for a maintenance pass in flight.
const shutdownTimeout = 5 * time.Second

// Daemon owns the metadata database and keeps it consistent with the data
// directory: trash records whose entry is gone are purged and the share
// configuration is regenerated on a timer and on request.
type Daemon struct {
	ipcServer *Server
	logFile   *os.File
	stopCh    chan struct{}
	stopOnce  sync.Once
	reloadCh  chan struct{}
	wg        sync.WaitGroup
	lock      *flock.Flock

	// LogLevel sets the logging level: trace, debug, info, warn, off.
	// Empty uses the level from settings.
	LogLevel string

	// Interval overrides the maintenance period from settings.
	Interval time.Duration

	// SkipCleanup skips removal of a stale pid file and socket on start.
	SkipCleanup bool

	meta *storage.MetaFile

	mu       sync.Mutex
	settings *config.Settings
	files    *vfs.Files
	status   Status
	report   *vfs.MaintenanceReport

	// Serializes maintenance passes.
	maintainMu sync.Mutex
}

// New creates a new daemon instance
func New() *Daemon {
	return &Daemon{
		stopCh:   make(chan struct{}),
		reloadCh: make(chan struct{}, 1),
	}
}

// Run starts the daemon and blocks until it is stopped by a signal, a stop
// request or ctx.
func (d *Daemon) Run(ctx context.Context) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	storage.SetConfigBusyTimeout(settings.BusyTimeout)

	if !d.SkipCleanup {
		if result := CleanupStale(); result.Cleaned() {
			log.Infof("[Daemon] startup cleanup: %s", FormatCleanupResult(result))
		}
	}

	// Acquire exclusive lock
	d.lock = flock.New(config.LockPath())
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another daemon instance is already running")
	}
	defer d.lock.Unlock()

	level := d.LogLevel
	if level == "" {
		level = settings.LogLevel
	}
	if err := d.setupLogging(level); err != nil {
		return err
	}
	defer d.closeLog()

	if err := d.writePidFile(); err != nil {
		return err
	}
	defer d.removePidFile()

	log.Infof("[Daemon] started (PID %d)", os.Getpid())

	meta, err := storage.OpenOrCreateMeta(config.MetaFilePath())
	if err != nil {
		return fmt.Errorf("failed to open metadata: %w", err)
	}
	defer meta.Close()
	d.meta = meta

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	files, err := d.startFiles(ctx, settings)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.settings, d.files = settings, files
	d.mu.Unlock()

	log.Infof("[Daemon] starting IPC server at %s", config.SocketPath())
	d.ipcServer = NewServer(config.SocketPath(), d.handleRequest)
	if err := d.ipcServer.Start(ctx); err != nil {
		return err
	}
	defer d.ipcServer.Stop()

	d.wg.Add(1)
	go d.maintenanceLoop(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Infof("[Daemon] received signal %v, shutting down", sig)
	case <-d.stopCh:
		log.Infof("[Daemon] stop requested, shutting down")
	case <-ctx.Done():
		log.Infof("[Daemon] context done, shutting down")
	}
	cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Warnf("[Daemon] timeout waiting for maintenance to finish")
	}

	log.Infof("[Daemon] stopped")
	return nil
}

// Stop asks a running daemon to shut down.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

func (d *Daemon) startFiles(ctx context.Context, settings *config.Settings) (*vfs.Files, error) {
	files, err := vfs.New(d.meta, vfs.OptionsFromSettings(settings))
	if err != nil {
		return nil, fmt.Errorf("failed to configure files: %w", err)
	}
	if err := files.Start(ctx); err != nil {
		return nil, err
	}
	return files, nil
}

func (d *Daemon) interval() time.Duration {
	if d.Interval > 0 {
		return d.Interval
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings.MaintenancePeriod()
}

func (d *Daemon) maintenanceLoop(ctx context.Context) {
	defer d.wg.Done()

	d.maintain(ctx)

	ticker := time.NewTicker(d.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.reloadCh:
			ticker.Reset(d.interval())
		case <-ticker.C:
			d.maintain(ctx)
		}
	}
}

// maintain runs one pass and records its outcome for status requests.
func (d *Daemon) maintain(ctx context.Context) (*vfs.MaintenanceReport, error) {
	d.maintainMu.Lock()
	defer d.maintainMu.Unlock()

	d.mu.Lock()
	files := d.files
	d.mu.Unlock()

	report, err := files.Maintain(ctx)

	d.mu.Lock()
	d.status.Runs++
	d.status.LastRun = time.Now()
	if err != nil {
		d.status.LastError = err.Error()
	} else {
		d.status.LastError = ""
		d.report = &report
	}
	d.mu.Unlock()

	if err != nil {
		log.Errorf("[Daemon] maintenance failed: %v", err)
		return nil, err
	}
	if report.PurgedTrashRecords > 0 || len(report.UnrecordedEntries) > 0 {
		log.Infof("[Daemon] maintenance purged %d trash records, %d trash entries have no record",
			report.PurgedTrashRecords, len(report.UnrecordedEntries))
	}
	return &report, nil
}

// handleRequest processes an IPC request
func (d *Daemon) handleRequest(ctx context.Context, req *Request) *Response {
	switch req.Type {
	case RequestStatus:
		return d.handleStatus()
	case RequestStop:
		return d.handleStop()
	case RequestMaintain:
		return d.handleMaintain(ctx)
	case RequestReloadConfig:
		return d.handleReloadConfig(ctx)
	default:
		return &Response{Success: false, Error: "unknown request type"}
	}
}

func (d *Daemon) handleStatus() *Response {
	d.mu.Lock()
	status := d.status
	status.DataDirectory = d.settings.DataDirectory
	report := d.report
	d.mu.Unlock()
	status.Interval = d.interval()

	return &Response{
		Success: true,
		PID:     os.Getpid(),
		Status:  &status,
		Report:  report,
	}
}

func (d *Daemon) handleStop() *Response {
	d.Stop()
	return &Response{Success: true, Message: "Daemon stopping"}
}

func (d *Daemon) handleMaintain(ctx context.Context) *Response {
	report, err := d.maintain(ctx)
	if err != nil {
		return &Response{Success: false, Error: err.Error()}
	}
	return &Response{Success: true, Report: report}
}

func (d *Daemon) handleReloadConfig(ctx context.Context) *Response {
	log.Infof("[Daemon] reloading configuration")

	settings, err := config.LoadSettings()
	if err != nil {
		return &Response{Success: false, Error: fmt.Sprintf("failed to load settings: %v", err)}
	}
	storage.SetConfigBusyTimeout(settings.BusyTimeout)

	if d.LogLevel == "" {
		if err := d.setupLogging(settings.LogLevel); err != nil {
			return &Response{Success: false, Error: err.Error()}
		}
	}

	files, err := d.startFiles(ctx, settings)
	if err != nil {
		return &Response{Success: false, Error: err.Error()}
	}

	d.maintainMu.Lock()
	d.mu.Lock()
	d.settings, d.files = settings, files
	d.mu.Unlock()
	d.maintainMu.Unlock()

	select {
	case d.reloadCh <- struct{}{}:
	default:
	}
	return &Response{Success: true, Message: "Configuration reloaded"}
}

// setupLogging points logrus at the log file, or discards output when
// level is off.
func (d *Daemon) setupLogging(level string) error {
	level = strings.ToLower(level)
	if level == "" || level == "off" || level == "none" {
		log.SetOutput(io.Discard)
		d.closeLog()
		return nil
	}

	if d.logFile == nil {
		if err := truncateLogFile(config.LogPath(), maxLogSize); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to truncate log file: %v\n", err)
		}
		logFile, err := os.OpenFile(config.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		d.logFile = logFile
	}
	log.SetOutput(d.logFile)

	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.DebugLevel
	}
	log.SetLevel(parsed)
	return nil
}

func (d *Daemon) closeLog() {
	if d.logFile != nil {
		d.logFile.Close()
		d.logFile = nil
	}
}

// truncateLogFile keeps roughly the last half of the log once it grows
// past maxSize, cutting at a line boundary.
func truncateLogFile(path string, maxSize int64) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() <= maxSize {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	startIdx := len(data) - len(data)/2
	for i := startIdx; i < len(data); i++ {
		if data[i] == '\n' {
			startIdx = i + 1
			break
		}
	}

	kept := data[startIdx:]
	header := fmt.Appendf(nil, "--- Log truncated at %s (kept last %d bytes) ---\n",
		time.Now().Format(time.RFC3339), len(kept))
	return os.WriteFile(path, append(header, kept...), 0o600)
}

func (d *Daemon) writePidFile() error {
	data := []byte(strconv.Itoa(os.Getpid()))
	return os.WriteFile(config.PidPath(), data, 0o600)
}

func (d *Daemon) removePidFile() {
	os.Remove(config.PidPath())
}

// GetPID reads the daemon PID from file
func GetPID() (int, error) {
	data, err := os.ReadFile(config.PidPath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
