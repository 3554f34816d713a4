package http

import "github.com/gin-gonic/gin"

// RegisterIngest mounts the client event endpoint. Callers attach optional
// authentication to the group.
func (h *Handler) RegisterIngest(rg *gin.RouterGroup) {
	rg.POST("/activity", h.Ingest)
	rg.GET("/activity/session", h.Session)
}

// RegisterAdmin mounts the audit viewer endpoints on an admin-only group.
func (h *Handler) RegisterAdmin(rg *gin.RouterGroup) {
	rg.POST("/activity/flush", h.Flush)
	rg.GET("/audit-logs", h.List)
	rg.GET("/audit-logs/export", h.Export)
}
