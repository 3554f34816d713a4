package jobs

import (
	"context"

	activitydomain "github.com/calybase/calybase-backend/internal/activity/domain"
	authservice "github.com/calybase/calybase-backend/internal/auth/service"
	"github.com/calybase/calybase-backend/internal/logger"
)

type Reconciler interface {
	Reconcile(ctx context.Context) (authservice.Summary, []string, error)
}

// ReconcileRecorder stores the outcome of a run in the audit log.
type ReconcileRecorder interface {
	RecordReconcile(ctx context.Context, summary authservice.Summary, missing []string) activitydomain.Entry
}

// ReconcileJob compares identity accounts with profile documents.
type ReconcileJob struct {
	users    Reconciler
	recorder ReconcileRecorder
	log      *logger.Logger
}

func NewReconcileJob(users Reconciler, recorder ReconcileRecorder, log *logger.Logger) *ReconcileJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ReconcileJob{users: users, recorder: recorder, log: log}
}

func (j *ReconcileJob) Name() string { return "reconcile" }

func (j *ReconcileJob) Run(ctx context.Context) error {
	summary, missing, err := j.users.Reconcile(ctx)
	if err != nil {
		return err
	}

	j.log.Infof("users: %d accounts, %d profiles, %d without profile",
		summary.TotalAuthUsers, summary.TotalFirestoreUsers, summary.UsersMissingFirestore)
	if len(missing) > 0 {
		j.log.WithField("uids", missing).Warn("accounts without profile document")
	}

	j.recorder.RecordReconcile(ctx, summary, missing)
	return nil
}
