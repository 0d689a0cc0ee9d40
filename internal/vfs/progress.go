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

package vfs

import (
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// OperationType names a long-running operation.
type OperationType string

const (
	OperationCopy OperationType = "copy"
	OperationMove OperationType = "move"
)

// progressInterval throttles intermediate progress reports.
const progressInterval = 200 * time.Millisecond

// OperationProgress is a snapshot of one copy, or of a move that has to
// copy across devices.
type OperationProgress struct {
	ID          string        `json:"id"`
	Type        OperationType `json:"type"`
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	TotalBytes  int64         `json:"totalBytes"`
	CopiedBytes int64         `json:"copiedBytes"`
	// Percent is 0-100.
	Percent          float64   `json:"percent"`
	BytesPerSecond   float64   `json:"bytesPerSecond"`
	SecondsRemaining *float64  `json:"secondsRemaining,omitempty"`
	StartedAt        time.Time `json:"startedAt"`
}

// ProgressFunc receives every operation in progress whenever one of them
// starts, advances or ends. It is called without locks held.
type ProgressFunc func(ops []OperationProgress)

// progressTracker holds the operations in progress for one Files instance.
type progressTracker struct {
	mu       sync.Mutex
	active   []*trackedOperation
	onChange ProgressFunc
}

type trackedOperation struct {
	tracker    *progressTracker
	progress   OperationProgress
	lastReport time.Time
}

func newProgressTracker(onChange ProgressFunc) *progressTracker {
	return &progressTracker{onChange: onChange}
}

// start registers an operation and reports it at 0%.
func (t *progressTracker) start(typ OperationType, source, destination string, total int64) *trackedOperation {
	now := time.Now()
	op := &trackedOperation{
		tracker:    t,
		lastReport: now,
		progress: OperationProgress{
			ID:          uuid.NewString(),
			Type:        typ,
			Source:      source,
			Destination: destination,
			TotalBytes:  total,
			StartedAt:   now,
		},
	}
	t.mu.Lock()
	t.active = append(t.active, op)
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	log.Debugf("[Progress] %s %s to %s started (%d bytes)", typ, source, destination, total)
	t.notify(snapshot)
	return op
}

// add records n more copied bytes.
func (op *trackedOperation) add(n int64) {
	t := op.tracker
	t.mu.Lock()
	op.progress.CopiedBytes += n
	op.recompute(time.Now())
	var snapshot []OperationProgress
	if time.Since(op.lastReport) >= progressInterval {
		op.lastReport = time.Now()
		snapshot = t.snapshotLocked()
	}
	t.mu.Unlock()

	if snapshot != nil {
		t.notify(snapshot)
	}
}

// finish reports a completed operation at 100% and unregisters it.
// A failed operation is unregistered without the final report.
func (op *trackedOperation) finish(err error) {
	t := op.tracker
	if err == nil {
		t.mu.Lock()
		op.progress.CopiedBytes = op.progress.TotalBytes
		op.recompute(time.Now())
		op.progress.Percent = 100
		snapshot := t.snapshotLocked()
		t.mu.Unlock()
		t.notify(snapshot)
	}

	t.mu.Lock()
	for i, active := range t.active {
		if active == op {
			t.active = append(t.active[:i], t.active[i+1:]...)
			break
		}
	}
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	log.Debugf("[Progress] %s %s finished after %s (err=%v)",
		op.progress.Type, op.progress.Source, time.Since(op.progress.StartedAt).Round(time.Millisecond), err)
	t.notify(snapshot)
}

func (op *trackedOperation) recompute(now time.Time) {
	p := &op.progress
	if p.TotalBytes > 0 {
		p.Percent = min(100, float64(p.CopiedBytes)*100/float64(p.TotalBytes))
	}
	elapsed := now.Sub(p.StartedAt).Seconds()
	if elapsed <= 0 {
		return
	}
	p.BytesPerSecond = float64(p.CopiedBytes) / elapsed
	if p.BytesPerSecond > 0 {
		remaining := float64(max(0, p.TotalBytes-p.CopiedBytes)) / p.BytesPerSecond
		p.SecondsRemaining = &remaining
	}
}

func (t *progressTracker) snapshotLocked() []OperationProgress {
	out := make([]OperationProgress, len(t.active))
	for i, op := range t.active {
		out[i] = op.progress
		if op.progress.SecondsRemaining != nil {
			remaining := *op.progress.SecondsRemaining
			out[i].SecondsRemaining = &remaining
		}
	}
	return out
}

func (t *progressTracker) notify(snapshot []OperationProgress) {
	if t.onChange != nil {
		t.onChange(snapshot)
	}
}

// OperationsInProgress returns the copies and cross-device moves currently
// running on this instance, oldest first.
func (f *Files) OperationsInProgress() []OperationProgress {
	f.progress.mu.Lock()
	defer f.progress.mu.Unlock()
	return f.progress.snapshotLocked()
}

// copyTracked copies srcPath to target while publishing its progress.
func (f *Files) copyTracked(typ OperationType, srcPath, target string) error {
	total, err := f.copier.Size(srcPath)
	if err != nil {
		return err
	}
	op := f.progress.start(typ, f.displayPath(srcPath), f.displayPath(target), total)
	err = f.copier.CopyWithProgress(srcPath, target, op.add)
	op.finish(err)
	return err
}

// displayPath is the virtual path for systemPath, or systemPath itself when
// it lies outside every base directory.
func (f *Files) displayPath(systemPath string) string {
	if v, err := f.registry.SystemToVirtualPath(systemPath); err == nil {
		return v
	}
	return systemPath
}
