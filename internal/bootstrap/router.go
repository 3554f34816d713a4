package bootstrap

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	activityhttp "github.com/calybase/calybase-backend/internal/activity/http"
	activityservice "github.com/calybase/calybase-backend/internal/activity/service"
	httpapi "github.com/calybase/calybase-backend/internal/api/http"
	"github.com/calybase/calybase-backend/internal/api/http/middleware"
	"github.com/calybase/calybase-backend/internal/auth"
	authhttp "github.com/calybase/calybase-backend/internal/auth/http"
	authmw "github.com/calybase/calybase-backend/internal/auth/middleware"
	"github.com/calybase/calybase-backend/internal/logger"
	membershttp "github.com/calybase/calybase-backend/internal/members/http"
	"github.com/calybase/calybase-backend/internal/metrics"
	permhttp "github.com/calybase/calybase-backend/internal/permissions/http"
	permservice "github.com/calybase/calybase-backend/internal/permissions/service"
)

// ActivityRecorder is everything the HTTP layer writes to the audit log.
type ActivityRecorder interface {
	activityhttp.Recorder
	permhttp.SecurityRecorder
	permhttp.ConfigChangeRecorder
	authhttp.UserManagementRecorder
}

type RouterDeps struct {
	Environment    string
	Version        string
	AllowedOrigins []string
	RateLimit      string

	Log     *logger.Logger
	Metrics *metrics.Metrics

	Verifier    auth.TokenVerifier
	Profiles    authmw.ProfileReader
	Activity    ActivityRecorder
	AuditReader activityservice.Reader
	Permissions *permservice.Factory
	Configs     permhttp.ConfigStore
	Members     membershttp.MemberManager
	Importer    membershttp.MemberImporter
	UserAdmin   authhttp.UserAdmin
}

// RouterDepsFromApp fills RouterDeps from the shared services.
func RouterDepsFromApp(app *App) RouterDeps {
	cfg := app.Config
	return RouterDeps{
		Environment:    cfg.App.Environment,
		Version:        cfg.App.Version,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimit:      cfg.RateLimit.Rate,
		Log:            app.Log,
		Metrics:        app.Metrics,
		Verifier:       app.Identity,
		Profiles:       app.Users,
		Activity:       app.Activity,
		AuditReader:    app.AuditStore,
		Permissions:    app.Permissions,
		Configs:        app.Configs,
		Members:        app.Members,
		Importer:       app.Importer,
		UserAdmin:      app.UserAdmin,
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin", "X-Session-Id"},
		ExposeHeaders:    []string{"Content-Disposition", middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func BuildRouter(dep RouterDeps) (*gin.Engine, error) {
	limit, err := middleware.RateLimit(dep.RateLimit)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(
		middleware.Recovery(dep.Log),
		corsMiddleware(dep.AllowedOrigins),
		middleware.RequestID(dep.Log),
		middleware.RequestInfo(),
		dep.Metrics.GinMiddleware(),
	)

	httpapi.NewHealthHandler(dep.Environment, dep.Version).RegisterRoutes(r)
	if dep.Metrics != nil {
		r.GET("/metrics", gin.WrapH(dep.Metrics.Handler()))
	}

	requireAuth := authmw.FirebaseAuthMiddleware(dep.Verifier, dep.Log)
	requireAdmin := authmw.RequireAdmin(dep.Profiles, dep.Log)
	requireSuper := authmw.RequireSuperAdmin(dep.Profiles, dep.Log)

	// Account administration.
	authhttp.NewHandler(dep.UserAdmin, dep.Activity, dep.Log).
		Register(r.Group("/auth", limit, requireAuth, requireAdmin))

	v1 := r.Group("/api/v1", limit)

	activity := activityhttp.NewHandler(dep.Activity, dep.AuditReader, dep.Log)
	activity.RegisterIngest(v1.Group("", authmw.OptionalFirebaseAuth(dep.Verifier, dep.Log)))

	authed := v1.Group("", requireAuth, permhttp.AttachResolver(dep.Permissions))
	perms := permhttp.NewHandler(dep.Configs, dep.Activity, dep.Log)
	perms.RegisterMe(authed)
	membershttp.NewHandler(dep.Members, dep.Importer, dep.Activity, dep.Log).Register(authed)

	admin := authed.Group("", requireAdmin)
	perms.RegisterAdmin(admin, requireSuper)
	activity.RegisterAdmin(admin)

	return r, nil
}
