package jobs

import (
	"context"
	"time"

	"github.com/calybase/calybase-backend/internal/logger"
)

type DayArchiver interface {
	ArchiveDay(ctx context.Context, day time.Time) (string, int, error)
}

// ArchiveJob exports the previous day's audit entries.
type ArchiveJob struct {
	archiver DayArchiver
	log      *logger.Logger
	now      func() time.Time
}

func NewArchiveJob(archiver DayArchiver, log *logger.Logger) *ArchiveJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ArchiveJob{archiver: archiver, log: log, now: time.Now}
}

func (j *ArchiveJob) Name() string { return "archive" }

func (j *ArchiveJob) Run(ctx context.Context) error {
	day := j.now().AddDate(0, 0, -1)
	name, n, err := j.archiver.ArchiveDay(ctx, day)
	if err != nil {
		return err
	}
	if name == "" {
		j.log.Infof("nothing archived for %s", day.Format("2006-01-02"))
		return nil
	}
	j.log.Infof("archived %d entries to %s", n, name)
	return nil
}
