package http

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calybase/calybase-backend/internal/auth"
	"github.com/calybase/calybase-backend/internal/logger"
	"github.com/calybase/calybase-backend/internal/members/domain"
	"github.com/calybase/calybase-backend/internal/members/service"
	permdomain "github.com/calybase/calybase-backend/internal/permissions/domain"
	permhttp "github.com/calybase/calybase-backend/internal/permissions/http"
)

type MemberManager interface {
	List(ctx context.Context) ([]domain.Member, error)
	Get(ctx context.Context, id string) (*domain.Member, error)
	Create(ctx context.Context, in domain.Input, createdBy string) (*domain.Member, error)
	Update(ctx context.Context, id string, in domain.Input) (*domain.Member, error)
	SetAvatar(ctx context.Context, id, url string) error
	Delete(ctx context.Context, guard service.DeletionGuard, id string) error
	BulkDelete(ctx context.Context, guard service.DeletionGuard, ids []string) (int, error)
}

type MemberImporter interface {
	Import(ctx context.Context, filename string, r io.Reader, maxRows int, createdBy string) (*service.ImportResult, error)
}

type Handler struct {
	members  MemberManager
	importer MemberImporter
	security permhttp.SecurityRecorder
	log      *logger.Logger
}

func NewHandler(members MemberManager, importer MemberImporter, security permhttp.SecurityRecorder, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{members: members, importer: importer, security: security, log: log}
}

func (h *Handler) List(c *gin.Context) {
	members, err := h.members.List(c.Request.Context())
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members, "total": len(members)})
}

func (h *Handler) Get(c *gin.Context) {
	m, err := h.members.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) Create(c *gin.Context) {
	var in domain.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	m, err := h.members.Create(c.Request.Context(), in, auth.UserFirebaseUID(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) Update(c *gin.Context) {
	var in domain.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	m, err := h.members.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type avatarRequest struct {
	AvatarURL string `json:"avatarUrl" binding:"required"`
}

func (h *Handler) SetAvatar(c *gin.Context) {
	var req avatarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if err := h.members.SetAvatar(c.Request.Context(), c.Param("id"), req.AvatarURL); err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) Delete(c *gin.Context) {
	r, ok := permhttp.Resolver(c, h.log)
	if !ok {
		return
	}

	if err := h.members.Delete(c.Request.Context(), r, c.Param("id")); err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

func (h *Handler) BulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	r, ok := permhttp.Resolver(c, h.log)
	if !ok {
		return
	}

	n, err := h.members.BulkDelete(c.Request.Context(), r, req.IDs)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
}

// Import accepts a multipart "file" field holding a .csv or .xlsx sheet.
func (h *Handler) Import(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Fichier manquant", "details": err.Error()})
		return
	}
	r, ok := permhttp.Resolver(c, h.log)
	if !ok {
		return
	}

	res, err := h.importFile(c, fh, r.MaxMembersPerUser())
	if err != nil && res != nil {
		// Earlier chunks are already stored.
		logger.FromContext(c.Request.Context(), h.log).Errorf(err, "import of %s stopped after %d members", fh.Filename, res.Imported)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Import interrompu",
			"details": err.Error(),
			"result":  res,
		})
		return
	}
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) importFile(c *gin.Context, fh *multipart.FileHeader, maxRows int) (*service.ImportResult, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return h.importer.Import(c.Request.Context(), fh.Filename, f, maxRows, auth.UserFirebaseUID(c))
}

func (h *Handler) respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrMemberNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Membre non trouvé"})
	case errors.Is(err, domain.ErrInvalidMember),
		errors.Is(err, domain.ErrImportTooLarge),
		errors.Is(err, domain.ErrUnsupportedFile),
		errors.Is(err, domain.ErrMissingColumns),
		errors.Is(err, domain.ErrEmptyImport):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
	case errors.Is(err, permdomain.ErrApprovalRequired):
		if h.security != nil {
			h.security.LogSecurityEvent(c.Request.Context(), "deletion_without_approval", "medium", map[string]interface{}{
				"path": c.Request.URL.Path,
			})
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "approval required"})
	default:
		logger.FromContext(c.Request.Context(), h.log).Error("member operation failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}
