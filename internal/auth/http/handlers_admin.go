package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	activitydomain "github.com/calybase/calybase-backend/internal/activity/domain"
	"github.com/calybase/calybase-backend/internal/auth/domain"
	"github.com/calybase/calybase-backend/internal/auth/service"
	"github.com/calybase/calybase-backend/internal/logger"
)

// UserAdmin is the admin user-management service.
type UserAdmin interface {
	ListUsers(ctx context.Context) (*service.UserListing, error)
	DeleteUser(ctx context.Context, uid, email string) (*service.DeleteResult, error)
}

// UserManagementRecorder records admin actions on accounts.
type UserManagementRecorder interface {
	LogUserManagement(ctx context.Context, action string, targetUser, details map[string]interface{}) activitydomain.Entry
}

type Handler struct {
	admin    UserAdmin
	recorder UserManagementRecorder
	log      *logger.Logger
}

func NewHandler(admin UserAdmin, recorder UserManagementRecorder, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{admin: admin, recorder: recorder, log: log}
}

// ListFirebaseUsers returns every account merged with its profile.
func (h *Handler) ListFirebaseUsers(c *gin.Context) {
	listing, err := h.admin.ListUsers(c.Request.Context())
	if err != nil {
		logger.FromContext(c.Request.Context(), h.log).Error("list firebase users failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to fetch Firebase users",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"users":   listing.Users,
		"summary": listing.Summary,
	})
}

type deleteUserRequest struct {
	UserID    string `json:"userId"`
	UserEmail string `json:"userEmail"`
}

// DeleteUser removes an account and its profile document.
func (h *Handler) DeleteUser(c *gin.Context) {
	var req deleteUserRequest
	// A malformed body is reported like missing fields.
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	res, err := h.admin.DeleteUser(ctx, req.UserID, req.UserEmail)
	if errors.Is(err, domain.ErrMissingDeleteFields) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId et userEmail sont requis"})
		return
	}
	if err != nil {
		logger.FromContext(ctx, h.log).Error("delete user failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Erreur lors de la suppression de l'utilisateur",
			"details": err.Error(),
		})
		return
	}

	details := map[string]interface{}{"profileDeleted": res.ProfileDeleted}
	if res.ProfileError != nil {
		details["profileError"] = res.ProfileError.Error()
	}
	h.recorder.LogUserManagement(ctx, "delete",
		map[string]interface{}{"uid": req.UserID, "email": req.UserEmail}, details)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Utilisateur %s supprimé avec succès de Firebase Auth et Firestore", req.UserEmail),
	})
}

// Register mounts the admin routes. The group must already enforce the
// admin role.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/firebase-users", h.ListFirebaseUsers)
	rg.POST("/delete-user", h.DeleteUser)
}
