package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calybase/calybase-backend/internal/activity/domain"
	"github.com/calybase/calybase-backend/internal/activity/service"
	"github.com/calybase/calybase-backend/internal/auth"
	authdomain "github.com/calybase/calybase-backend/internal/auth/domain"
)

type fakeRecorder struct {
	logged   []domain.Entry
	exports  []string
	flushErr error
	flushed  int
}

func (f *fakeRecorder) LogActivity(_ context.Context, action, category string, details, metadata map[string]interface{}) domain.Entry {
	e := domain.Entry{Action: action, Category: category, Details: details, Metadata: metadata}
	f.logged = append(f.logged, e)
	return e
}

func (f *fakeRecorder) LogDataExport(_ context.Context, format, resourceType string, recordCount int, _ service.Details) domain.Entry {
	f.exports = append(f.exports, format)
	return domain.Entry{Action: "data_export"}
}

func (f *fakeRecorder) Flush(context.Context) error {
	f.flushed++
	return f.flushErr
}

func (f *fakeRecorder) SessionStats(context.Context) service.SessionStats {
	return service.SessionStats{SessionID: "session_test", CurrentUser: domain.AnonymousUser}
}

type fakeReader struct {
	entries []domain.Entry
	err     error
	got     domain.Query
}

func (f *fakeReader) Query(_ context.Context, q domain.Query) ([]domain.Entry, error) {
	f.got = q
	return f.entries, f.err
}

func setup(rec *fakeRecorder, reader *fakeReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(rec, reader, nil)
	h.now = func() time.Time { return time.Date(2025, 3, 14, 10, 0, 0, 0, time.Local) }

	r := gin.New()
	v1 := r.Group("/api/v1")
	h.RegisterIngest(v1)
	h.RegisterAdmin(v1)
	return r
}

func do(r *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestIngest(t *testing.T) {
	rec := &fakeRecorder{}
	r := setup(rec, &fakeReader{})

	body := `{"events":[{"action":"page_visit","category":"navigation","details":{"pageName":"dashboard"}},
		{"action":"logout","category":"authentication"}]}`
	rr := do(r, http.MethodPost, "/api/v1/activity", []byte(body))

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, rec.logged, 2)
	assert.Equal(t, "page_visit", rec.logged[0].Action)
	assert.Equal(t, "dashboard", rec.logged[0].Details["pageName"])
}

func TestIngest_Validation(t *testing.T) {
	rec := &fakeRecorder{}
	r := setup(rec, &fakeReader{})

	var events []string
	for i := 0; i <= MaxEventsPerRequest; i++ {
		events = append(events, `{"action":"a","category":"system"}`)
	}

	tests := map[string]string{
		"malformed":        `{"events":`,
		"empty":            `{"events":[]}`,
		"missing category": `{"events":[{"action":"a"}]}`,
		"too many":         `{"events":[` + strings.Join(events, ",") + `]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rr := do(r, http.MethodPost, "/api/v1/activity", []byte(body))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
	assert.Empty(t, rec.logged)
}

func TestIngest_AnonymousCategories(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &fakeRecorder{}
	h := NewHandler(rec, &fakeReader{}, nil)

	r := gin.New()
	v1 := r.Group("/api/v1", func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-Uid"); uid != "" {
			auth.SetIdentity(c, authdomain.Identity{UID: uid})
		}
		c.Next()
	})
	h.RegisterIngest(v1)

	body := []byte(`{"events":[{"action":"page_visit","category":"navigation"},
		{"action":"security_unauthorized_access","category":"security"}]}`)

	rr := do(r, http.MethodPost, "/api/v1/activity", body)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, rec.logged)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/activity", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Uid", "u1")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Len(t, rec.logged, 2)
}

func TestIngest_ServerMetadataWins(t *testing.T) {
	rec := &fakeRecorder{}
	r := setup(rec, &fakeReader{})

	body := `{"events":[{"action":"page_visit","category":"navigation",
		"metadata":{"userAgent":"spoofed","url":"/membres","referrer":"x","timestamp_iso":"1970","screen":"1080p"}}]}`
	rr := do(r, http.MethodPost, "/api/v1/activity", []byte(body))
	require.Equal(t, http.StatusAccepted, rr.Code)

	meta := rec.logged[0].Metadata
	assert.Equal(t, map[string]interface{}{"clientUrl": "/membres", "screen": "1080p"}, meta)
	assert.Nil(t, clientMetadata(nil))
}

func TestFlush(t *testing.T) {
	rec := &fakeRecorder{}
	r := setup(rec, &fakeReader{})

	rr := do(r, http.MethodPost, "/api/v1/activity/flush", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, rec.flushed)

	rec.flushErr = errors.New("unavailable")
	rr = do(r, http.MethodPost, "/api/v1/activity/flush", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func auditEntries() []domain.Entry {
	ts := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	return []domain.Entry{
		{Timestamp: ts, UserEmail: "alice@example.com", Action: "security_brute_force", Category: domain.CategorySecurity, Details: map[string]interface{}{}},
		{Timestamp: ts, UserEmail: "bob@example.com", Action: "page_visit", Category: domain.CategoryNavigation, Details: map[string]interface{}{}},
	}
}

func TestList(t *testing.T) {
	reader := &fakeReader{entries: auditEntries()}
	r := setup(&fakeRecorder{}, reader)

	rr := do(r, http.MethodGet, "/api/v1/audit-logs?from=2025-03-01&to=2025-03-14&category=security", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Entries []domain.Entry `json:"entries"`
		Total   int            `json:"total"`
		Stats   service.Stats  `json:"stats"`
		Users   []string       `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	assert.Equal(t, 1, body.Total)
	assert.Equal(t, 2, body.Stats.TotalLogs)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, body.Users)
	assert.Equal(t, service.MaxLoadedEntries, reader.got.Limit)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local), reader.got.From)
}

func TestList_BadInput(t *testing.T) {
	r := setup(&fakeRecorder{}, &fakeReader{})

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/audit-logs?from=14/03/2025", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/audit-logs?page=0", nil).Code)
}

func TestList_StoreError(t *testing.T) {
	r := setup(&fakeRecorder{}, &fakeReader{err: errors.New("deadline exceeded")})
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodGet, "/api/v1/audit-logs", nil).Code)
}

func TestExport(t *testing.T) {
	rec := &fakeRecorder{}
	r := setup(rec, &fakeReader{entries: auditEntries()})

	rr := do(r, http.MethodGet, "/api/v1/audit-logs/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="activity-logs-`+time.Date(2025, 3, 14, 10, 0, 0, 0, time.Local).UTC().Format("2006-01-02")+`.csv"`,
		rr.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "Timestamp,User,Action,Category,Details,Session\n"))
	assert.Equal(t, []string{"csv"}, rec.exports)
}

func TestExport_EmptyIsNotice(t *testing.T) {
	rec := &fakeRecorder{}
	r := setup(rec, &fakeReader{entries: auditEntries()})

	rr := do(r, http.MethodGet, "/api/v1/audit-logs/export?format=json&user=nobody@example.com", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Content-Disposition"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Empty(t, rec.exports)
}

func TestExport_UnsupportedFormat(t *testing.T) {
	r := setup(&fakeRecorder{}, &fakeReader{})
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/audit-logs/export?format=xml", nil).Code)
}
