package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/calybase/calybase-backend/internal/activity/domain"
	"github.com/calybase/calybase-backend/internal/activity/service"
	"github.com/calybase/calybase-backend/internal/auth"
	"github.com/calybase/calybase-backend/internal/logger"
)

const (
	MaxEventsPerRequest = 50
	dateLayout          = "2006-01-02"
)

// Recorder is the part of the activity logger the handlers use.
type Recorder interface {
	LogActivity(ctx context.Context, action, category string, details, metadata map[string]interface{}) domain.Entry
	LogDataExport(ctx context.Context, format, resourceType string, recordCount int, details service.Details) domain.Entry
	Flush(ctx context.Context) error
	SessionStats(ctx context.Context) service.SessionStats
}

type Handler struct {
	recorder Recorder
	reader   service.Reader
	log      *logger.Logger
	now      func() time.Time
}

func NewHandler(recorder Recorder, reader service.Reader, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{recorder: recorder, reader: reader, log: log, now: time.Now}
}

// anonymousCategories are the categories a caller without a token may log.
var anonymousCategories = map[string]bool{
	domain.CategoryAuthentication: true,
	domain.CategoryNavigation:     true,
	domain.CategorySystem:         true,
}

// serverMetadata are set from the request itself and cannot be supplied by
// the client.
var serverMetadata = []string{"userAgent", "url", "referrer", "timestamp_iso"}

type eventRequest struct {
	Action   string                 `json:"action"`
	Category string                 `json:"category"`
	Details  map[string]interface{} `json:"details"`
	Metadata map[string]interface{} `json:"metadata"`
}

type ingestRequest struct {
	Events []eventRequest `json:"events"`
}

// Ingest accepts a batch of client-side events for the audit log.
func (h *Handler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body", "details": err.Error()})
		return
	}
	if len(req.Events) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrInvalidEvent.Error()})
		return
	}
	if len(req.Events) > MaxEventsPerRequest {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   domain.ErrTooManyEvents.Error(),
			"details": "at most " + strconv.Itoa(MaxEventsPerRequest) + " events per request",
		})
		return
	}
	_, authenticated := auth.CurrentIdentity(c)
	for i, ev := range req.Events {
		if ev.Action == "" || ev.Category == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   domain.ErrInvalidEvent.Error(),
				"details": "event " + strconv.Itoa(i) + " is missing action or category",
			})
			return
		}
		if !authenticated && !anonymousCategories[ev.Category] {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   domain.ErrCategoryForbidden.Error(),
				"details": "event " + strconv.Itoa(i) + ": " + ev.Category,
			})
			return
		}
	}

	ctx := c.Request.Context()
	for _, ev := range req.Events {
		h.recorder.LogActivity(ctx, ev.Action, ev.Category, ev.Details, clientMetadata(ev.Metadata))
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": len(req.Events)})
}

// clientMetadata drops the keys the server sets. A client-side page url is
// kept as clientUrl.
func clientMetadata(in map[string]interface{}) map[string]interface{} {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	if u, ok := out["url"]; ok {
		out["clientUrl"] = u
	}
	for _, k := range serverMetadata {
		delete(out, k)
	}
	return out
}

// Flush forces buffered entries to the store.
func (h *Handler) Flush(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.recorder.Flush(ctx); err != nil {
		logger.FromContext(ctx, h.log).Error("forced audit flush failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to flush activity log", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": h.recorder.SessionStats(ctx)})
}

func (h *Handler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, h.recorder.SessionStats(c.Request.Context()))
}

// List loads the requested date range, applies the filters and returns one
// page together with statistics over everything loaded.
func (h *Handler) List(c *gin.Context) {
	viewer, ok := h.loadViewer(c)
	if !ok {
		return
	}

	page := 1
	if p := c.Query("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page", "details": p})
			return
		}
		page = n
	}

	result := viewer.Page()
	if page != 1 {
		result = viewer.GoTo(page)
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":    result.Entries,
		"page":       result.Page,
		"totalPages": result.TotalPages,
		"total":      result.Total,
		"pageSize":   service.PageSize,
		"stats":      viewer.Stats(),
		"users":      viewer.Users(),
		"categories": domain.CategoryDisplayNames(),
	})
}

// Export downloads the filtered entries as CSV or JSON.
func (h *Handler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", service.FormatCSV)
	if format != service.FormatCSV && format != service.FormatJSON {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrUnsupportedFormat.Error(), "details": format})
		return
	}

	viewer, ok := h.loadViewer(c)
	if !ok {
		return
	}

	data, err := viewer.Export(format)
	if errors.Is(err, domain.ErrNothingToExport) {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "Aucun journal à exporter avec les filtres actuels",
		})
		return
	}
	if err != nil {
		logger.FromContext(c.Request.Context(), h.log).Error("audit export failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Échec de l'exportation des journaux", "details": err.Error()})
		return
	}

	h.recorder.LogDataExport(c.Request.Context(), format, "audit_logs", len(viewer.Filtered()), nil)

	c.Header("Content-Disposition", `attachment; filename="`+service.ExportFilename(h.now(), format)+`"`)
	c.Data(http.StatusOK, service.ContentType(format), data)
}

func (h *Handler) loadViewer(c *gin.Context) (*service.Viewer, bool) {
	r, err := h.parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date", "details": err.Error()})
		return nil, false
	}

	viewer := service.NewViewer(h.reader, h.log)
	if err := viewer.Load(c.Request.Context(), r); err != nil {
		logger.FromContext(c.Request.Context(), h.log).Error("load audit log failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load activity logs", "details": err.Error()})
		return nil, false
	}

	viewer.SetFilter(service.Filter{
		User:     c.Query("user"),
		Category: c.Query("category"),
		Search:   c.Query("search"),
	})
	return viewer, true
}

// parseRange reads from/to as local calendar dates. Without either, the
// last 30 days are used.
func (h *Handler) parseRange(c *gin.Context) (service.DateRange, error) {
	from, to := c.Query("from"), c.Query("to")
	if from == "" && to == "" {
		return service.DefaultDateRange(h.now()), nil
	}

	var r service.DateRange
	if from != "" {
		t, err := time.ParseInLocation(dateLayout, from, time.Local)
		if err != nil {
			return r, err
		}
		r.From = t
	}
	if to != "" {
		t, err := time.ParseInLocation(dateLayout, to, time.Local)
		if err != nil {
			return r, err
		}
		r.To = t
	}
	return r, nil
}
