package http

import (
	"github.com/gin-gonic/gin"

	permdomain "github.com/calybase/calybase-backend/internal/permissions/domain"
	permhttp "github.com/calybase/calybase-backend/internal/permissions/http"
)

// Register mounts /members on rg. The group must run the auth middleware
// and permhttp.AttachResolver.
func (h *Handler) Register(rg *gin.RouterGroup) {
	require := func(c permdomain.Capability) gin.HandlerFunc {
		return permhttp.RequireCapability(c, h.security, h.log)
	}

	members := rg.Group("/members")
	members.GET("", h.List)
	members.POST("", require(permdomain.CanCreateMembers), h.Create)
	members.POST("/import", require(permdomain.CanImportMembers), h.Import)
	members.POST("/bulk-delete", require(permdomain.CanBulkDeleteMembers), h.BulkDelete)
	members.GET("/:id", require(permdomain.CanViewMemberDetails), h.Get)
	members.PUT("/:id", require(permdomain.CanModifyMembers), h.Update)
	members.PUT("/:id/avatar", require(permdomain.CanManageMemberAvatars), h.SetAvatar)
	members.DELETE("/:id", require(permdomain.CanDeleteMembers), h.Delete)
}
