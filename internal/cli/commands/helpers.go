package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"homefs/internal/config"
	"homefs/internal/storage"
	"homefs/internal/vfs"
)

// withFiles opens the metadata database and runs fn against a started
// Files instance built from the loaded settings.
func withFiles(cmd *cobra.Command, fn func(ctx context.Context, files *vfs.Files) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	meta, err := storage.OpenOrCreateMeta(config.MetaFilePath())
	if err != nil {
		return fmt.Errorf("failed to open metadata: %w", err)
	}
	defer meta.Close()

	opts := vfs.OptionsFromSettings(settings)
	if progressFlag {
		opts.OnProgress = printProgress
	}
	files, err := vfs.New(meta, opts)
	if err != nil {
		return err
	}
	if err := files.Start(ctx); err != nil {
		return err
	}
	return fn(ctx, files)
}

// printProgress renders running operations on one stderr line.
func printProgress(ops []vfs.OperationProgress) {
	if len(ops) == 0 {
		fmt.Fprint(os.Stderr, "\r\033[K")
		return
	}
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = formatProgress(op)
	}
	fmt.Fprint(os.Stderr, "\r\033[K"+strings.Join(parts, " | "))
}

// formatProgress renders one operation, e.g.
// "copy /Home/a -> /Apps/a 42% 3.1 MB/s 5s left".
func formatProgress(op vfs.OperationProgress) string {
	line := fmt.Sprintf("%s %s %3.0f%% %s/s", op.Type, arrow(op.Source, op.Destination),
		op.Percent, humanize.Bytes(uint64(op.BytesPerSecond)))
	if op.SecondsRemaining != nil && op.Percent < 100 {
		line += fmt.Sprintf(" %.0fs left", *op.SecondsRemaining)
	}
	return line
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult prints v as JSON with --json, otherwise the text lines.
func printResult(v any, lines ...string) error {
	if jsonOutput {
		return printJSON(v)
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

// formatEntry renders one listing line: kind, size, modification time, name.
func formatEntry(s vfs.Stats) string {
	kind := "-"
	switch {
	case s.Error != "":
		kind = "?"
	case s.IsDirectory():
		kind = "d"
	case s.Type == vfs.TypeSymbolicLink:
		kind = "l"
	}

	size := "-"
	if s.Size != nil && !s.IsDirectory() {
		size = humanize.Bytes(uint64(*s.Size))
	}
	modified := "-"
	if s.Modified != nil {
		modified = s.Modified.Local().Format("2006-01-02 15:04")
	}

	name := s.Name
	if s.IsDirectory() {
		name += "/"
	}
	return fmt.Sprintf("%s %9s  %16s  %s", kind, size, modified, name)
}

// formatStats renders the full description of one entry.
func formatStats(s vfs.Stats) []string {
	lines := []string{
		"Path: " + s.Path,
		"Name: " + s.Name,
	}
	if s.Type != "" {
		lines = append(lines, "Type: "+s.Type)
	}
	if s.Size != nil {
		lines = append(lines, fmt.Sprintf("Size: %s (%d bytes)", humanize.Bytes(uint64(*s.Size)), *s.Size))
	}
	if s.Created != nil {
		lines = append(lines, fmt.Sprintf("Created: %s (%s)", s.Created.Local().Format("2006-01-02 15:04:05"), humanize.Time(*s.Created)))
	}
	if s.Modified != nil {
		lines = append(lines, fmt.Sprintf("Modified: %s (%s)", s.Modified.Local().Format("2006-01-02 15:04:05"), humanize.Time(*s.Modified)))
	}
	if s.Error != "" {
		lines = append(lines, "Error: "+s.Error)
	}
	lines = append(lines, "Operations: "+strings.Join(s.AllowedOperations.Names(), ", "))
	return lines
}

// arrow formats a source and its new location.
func arrow(from, to string) string {
	return from + " -> " + to
}
