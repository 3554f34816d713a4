package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/calybase/calybase-backend/config"
	activitydomain "github.com/calybase/calybase-backend/internal/activity/domain"
	activityrepo "github.com/calybase/calybase-backend/internal/activity/repository"
	activityservice "github.com/calybase/calybase-backend/internal/activity/service"
	"github.com/calybase/calybase-backend/internal/auth"
	authrepo "github.com/calybase/calybase-backend/internal/auth/repository"
	authservice "github.com/calybase/calybase-backend/internal/auth/service"
	"github.com/calybase/calybase-backend/internal/logger"
	memberrepo "github.com/calybase/calybase-backend/internal/members/repository"
	memberservice "github.com/calybase/calybase-backend/internal/members/service"
	"github.com/calybase/calybase-backend/internal/metrics"
	permrepo "github.com/calybase/calybase-backend/internal/permissions/repository"
	permservice "github.com/calybase/calybase-backend/internal/permissions/service"
)

// AuditStore persists and reads back audit entries.
type AuditStore interface {
	activityservice.Writer
	activityservice.Reader
}

// App holds the clients and services shared by the API and the worker.
type App struct {
	Config  *config.Config
	Log     *logger.Logger
	Metrics *metrics.Metrics

	Firebase *auth.Firebase
	Redis    *redis.Client
	AuditDB  *sql.DB

	Identity    auth.IdentityProvider
	Users       *authrepo.UserRepository
	AuditStore  AuditStore
	Activity    *activityservice.ActivityLogger
	Archiver    *activityservice.Archiver
	Configs     permrepo.ConfigStore
	Permissions *permservice.Factory
	Members     *memberservice.MemberService
	Importer    *memberservice.Importer
	UserAdmin   *authservice.AdminService
}

// New connects every backing service and wires the domain services. The
// activity logger is started; Close stops it.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	app := &App{Config: cfg, Log: log, Metrics: metrics.New()}

	fb, err := auth.InitializeFirebase(ctx, &cfg.Firebase)
	if err != nil {
		return nil, err
	}
	app.Firebase = fb
	app.Identity = auth.NewFirebaseIdentity(fb.Auth)
	app.Users = authrepo.NewUserRepository(fb.Firestore)

	if err := app.openAuditStore(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	app.Activity = activityservice.NewActivityLogger(app.AuditStore, activityservice.LoggerOptions{
		BufferSize:    cfg.Audit.BufferSize,
		FlushInterval: cfg.Audit.FlushInterval,
		MaxBuffered:   cfg.Audit.MaxBuffered,
		Version:       cfg.App.Version,
	}, log, app.Metrics)
	app.Activity.Start()

	if err := app.openArchiver(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	if err := app.openConfigs(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	app.Permissions = permservice.NewFactory(app.Users, app.Configs, cfg.Auth.ReadyTimeout, log, app.Metrics)

	members := memberrepo.NewFirestoreMemberRepository(fb.Firestore)
	app.Members = memberservice.NewMemberService(members, app.Activity, log)
	app.Importer = memberservice.NewImporter(members, app.Activity, memberservice.ImportOptions{
		BatchSize:        cfg.Import.BatchSize,
		BatchesPerSecond: cfg.Import.BatchesPerSecond,
	}, log, app.Metrics)

	app.UserAdmin = authservice.NewAdminService(app.Identity, app.Users, log)

	return app, nil
}

func (a *App) openAuditStore(ctx context.Context) error {
	if a.Config.Audit.Store != "postgres" {
		a.AuditStore = activityrepo.NewFirestoreStore(a.Firebase.Firestore)
		return nil
	}

	db, err := OpenDB(ctx, DBOptions{DSN: a.Config.Audit.PostgresDSN})
	if err != nil {
		return err
	}
	a.AuditDB = db

	store := activityrepo.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	a.AuditStore = store
	return nil
}

func (a *App) openArchiver(ctx context.Context) error {
	var bucket activityservice.ObjectWriter
	if a.Config.Firebase.StorageBucket != "" {
		client, err := a.Firebase.App.Storage(ctx)
		if err != nil {
			return fmt.Errorf("failed to get Storage client: %w", err)
		}
		handle, err := client.DefaultBucket()
		if err != nil {
			return fmt.Errorf("open bucket %s: %w", a.Config.Firebase.StorageBucket, err)
		}
		bucket = activityrepo.NewBucketStore(handle)
	}
	a.Archiver = activityservice.NewArchiver(a.AuditStore, bucket, a.Log)
	return nil
}

func (a *App) openConfigs(ctx context.Context) error {
	var store permrepo.ConfigStore = permrepo.NewFirestoreConfigRepository(a.Firebase.Firestore)

	client, err := OpenRedis(ctx, a.Config.Redis)
	if err != nil {
		return err
	}
	if client != nil {
		a.Redis = client
		store = permrepo.NewCachedConfigRepository(store, client, a.Config.Redis.ConfigCacheTTL, a.Log, a.Metrics)
	} else {
		a.Log.Warn("REDIS_ADDR not set, system config is read from Firestore on every request")
	}
	a.Configs = store
	return nil
}

// RecordReconcile stores the outcome of a users reconciliation run.
func (a *App) RecordReconcile(ctx context.Context, summary authservice.Summary, missing []string) activitydomain.Entry {
	return a.Activity.LogActivity(ctx, "user_reconcile", activitydomain.CategoryUserManagement, map[string]interface{}{
		"totalAuthUsers":        summary.TotalAuthUsers,
		"totalFirestoreUsers":   summary.TotalFirestoreUsers,
		"usersWithBothRecords":  summary.UsersWithBothRecords,
		"usersMissingFirestore": summary.UsersMissingFirestore,
		"missingUids":           missing,
	}, nil)
}

// Close flushes the activity logger, then releases every client.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Activity != nil {
		if err := a.Activity.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop activity logger: %w", err))
		}
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.AuditDB != nil {
		errs = append(errs, a.AuditDB.Close())
	}
	if a.Firebase != nil {
		errs = append(errs, a.Firebase.Close())
	}
	return errors.Join(errs...)
}
