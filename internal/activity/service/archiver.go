package service

import (
	"context"
	"fmt"
	"time"

	"github.com/calybase/calybase-backend/internal/activity/domain"
	"github.com/calybase/calybase-backend/internal/logger"
)

// ObjectWriter stores one object in a bucket.
type ObjectWriter interface {
	WriteObject(ctx context.Context, name, contentType string, data []byte) error
}

const archivePrefix = "audit-archives/"

// Archiver copies one day of audit entries to object storage as CSV.
type Archiver struct {
	reader Reader
	bucket ObjectWriter
	log    *logger.Logger
}

func NewArchiver(reader Reader, bucket ObjectWriter, log *logger.Logger) *Archiver {
	if log == nil {
		log = logger.Nop()
	}
	return &Archiver{reader: reader, bucket: bucket, log: log.WithComponent("audit_archiver")}
}

// ArchiveObjectName returns audit-archives/YYYY-MM-DD.csv for day.
func ArchiveObjectName(day time.Time) string {
	return archivePrefix + day.Format("2006-01-02") + ".csv"
}

// ArchiveDay writes the entries of day's calendar date and returns the
// object name and entry count. An empty day writes nothing.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) (string, int, error) {
	if a.bucket == nil {
		a.log.Warn("no storage bucket configured, skipping audit archive")
		return "", 0, nil
	}

	from, to := DateRange{From: day, To: day}.Bounds()
	// Archives are complete days, so the viewer cap does not apply.
	entries, err := a.reader.Query(ctx, domain.Query{From: from, To: to})
	if err != nil {
		return "", 0, fmt.Errorf("query audit entries for %s: %w", day.Format("2006-01-02"), err)
	}
	if len(entries) == 0 {
		a.log.Infof("no audit entries on %s, nothing to archive", day.Format("2006-01-02"))
		return "", 0, nil
	}

	name := ArchiveObjectName(day)
	if err := a.bucket.WriteObject(ctx, name, ContentType(FormatCSV), []byte(ExportCSV(entries))); err != nil {
		return "", 0, fmt.Errorf("write archive %s: %w", name, err)
	}

	a.log.Infof("archived %d audit entries to %s", len(entries), name)
	return name, len(entries), nil
}
