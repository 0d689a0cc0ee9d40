package vfs

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// MaintenanceReport summarizes one Maintain pass.
type MaintenanceReport struct {
	PurgedTrashRecords int           `json:"purgedTrashRecords"`
	UnrecordedEntries  []string      `json:"unrecordedEntries"`
	Shares             int           `json:"shares"`
	Duration           time.Duration `json:"duration"`
}

// Maintain drops trash records whose entry is gone and regenerates the
// share configuration from shares that are still valid. Entries in the
// trash without a record are reported, never deleted.
func (f *Files) Maintain(ctx context.Context) (MaintenanceReport, error) {
	start := time.Now()
	var report MaintenanceReport

	purged, err := f.purgeOrphanRecords(ctx)
	if err != nil {
		return report, err
	}
	report.PurgedTrashRecords = purged

	audit, err := f.AuditTrash(ctx)
	if err != nil {
		return report, err
	}
	report.UnrecordedEntries = audit.UnrecordedEntries

	shares, err := f.shares.List(ctx)
	if err != nil {
		return report, err
	}
	report.Shares = len(shares)
	report.Duration = time.Since(start)

	log.Debugf("[Maintain] purged %d records, %d unrecorded entries, %d shares in %v",
		purged, len(audit.UnrecordedEntries), len(shares), report.Duration)
	return report, nil
}
