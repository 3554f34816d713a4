package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	activitydomain "github.com/calybase/calybase-backend/internal/activity/domain"
	"github.com/calybase/calybase-backend/internal/logger"
	"github.com/calybase/calybase-backend/internal/permissions/domain"
)

type ConfigStore interface {
	Get(ctx context.Context) (*domain.SystemConfig, error)
	Save(ctx context.Context, cfg *domain.SystemConfig) error
}

type ConfigChangeRecorder interface {
	LogSystemConfigChange(ctx context.Context, section string, changes, details map[string]interface{}) activitydomain.Entry
}

type Handler struct {
	configs  ConfigStore
	recorder ConfigChangeRecorder
	log      *logger.Logger
}

func NewHandler(configs ConfigStore, recorder ConfigChangeRecorder, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{configs: configs, recorder: recorder, log: log}
}

// Me reports the caller's role and every resolved capability.
func (h *Handler) Me(c *gin.Context) {
	r, ok := Resolver(c, h.log)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"role":                        r.Role(),
		"isAdmin":                     r.IsAdmin(),
		"isSuperAdmin":                r.IsSuperAdmin(),
		"requiresApprovalForDeletion": r.RequiresApprovalForDeletion(),
		"maxMembersPerUser":           r.MaxMembersPerUser(),
		"capabilities":                r.Snapshot(),
	})
}

func (h *Handler) GetConfig(c *gin.Context) {
	cfg, err := h.configs.Get(c.Request.Context())
	if errors.Is(err, domain.ErrConfigNotFound) {
		cfg = &domain.SystemConfig{}
	} else if err != nil {
		logger.FromContext(c.Request.Context(), h.log).Error("read system config failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read system configuration", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// PutConfig replaces the system configuration document.
func (h *Handler) PutConfig(c *gin.Context) {
	var cfg domain.SystemConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body", "details": err.Error()})
		return
	}
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrInvalidConfig.Error(), "details": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := h.configs.Save(ctx, &cfg); err != nil {
		logger.FromContext(ctx, h.log).Error("save system config failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save system configuration", "details": err.Error()})
		return
	}

	changes := map[string]interface{}{"roles": len(cfg.Permissions)}
	if cfg.MemberManagement != nil {
		changes["memberManagement"] = *cfg.MemberManagement
	}
	h.recorder.LogSystemConfigChange(ctx, "permissions", changes, nil)

	c.JSON(http.StatusOK, gin.H{"success": true, "config": cfg})
}

func (h *Handler) RegisterMe(rg *gin.RouterGroup) {
	rg.GET("/permissions/me", h.Me)
}

// RegisterAdmin mounts the configuration endpoints. Writes need the extra
// superAdmin check passed as requireSuper.
func (h *Handler) RegisterAdmin(rg *gin.RouterGroup, requireSuper gin.HandlerFunc) {
	rg.GET("/admin/system-config", h.GetConfig)
	rg.PUT("/admin/system-config", requireSuper, h.PutConfig)
}
