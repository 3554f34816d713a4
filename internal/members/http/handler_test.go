package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	activitydomain "github.com/calybase/calybase-backend/internal/activity/domain"
	"github.com/calybase/calybase-backend/internal/auth"
	authdomain "github.com/calybase/calybase-backend/internal/auth/domain"
	"github.com/calybase/calybase-backend/internal/logger"
	"github.com/calybase/calybase-backend/internal/members/domain"
	"github.com/calybase/calybase-backend/internal/members/service"
	permdomain "github.com/calybase/calybase-backend/internal/permissions/domain"
	permhttp "github.com/calybase/calybase-backend/internal/permissions/http"
	permservice "github.com/calybase/calybase-backend/internal/permissions/service"
)

type mapStore struct {
	members map[string]domain.Member
	seq     int

	batchCalls int
	failBatch  int // 1-based CreateMany call that fails; 0 never fails
}

func (s *mapStore) List(context.Context) ([]domain.Member, error) {
	out := []domain.Member{}
	for _, m := range s.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nom < out[j].Nom })
	return out, nil
}

func (s *mapStore) Get(_ context.Context, id string) (*domain.Member, error) {
	m, ok := s.members[id]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	return &m, nil
}

func (s *mapStore) Create(_ context.Context, m *domain.Member) error {
	s.seq++
	m.ID = fmt.Sprintf("m%d", s.seq)
	s.members[m.ID] = *m
	return nil
}

func (s *mapStore) CreateMany(ctx context.Context, members []domain.Member) error {
	s.batchCalls++
	if s.batchCalls == s.failBatch {
		return errors.New("deadline exceeded")
	}
	for i := range members {
		if err := s.Create(ctx, &members[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *mapStore) Update(_ context.Context, id string, in domain.Input, at time.Time) error {
	m, ok := s.members[id]
	if !ok {
		return domain.ErrMemberNotFound
	}
	m.Nom, m.Prenom, m.Email, m.Telephone, m.UpdatedAt = in.Nom, in.Prenom, in.Email, in.Telephone, at
	s.members[id] = m
	return nil
}

func (s *mapStore) SetAvatar(_ context.Context, id, url string, _ time.Time) error {
	m, ok := s.members[id]
	if !ok {
		return domain.ErrMemberNotFound
	}
	m.AvatarURL = url
	s.members[id] = m
	return nil
}

func (s *mapStore) Delete(_ context.Context, id string) error {
	if _, ok := s.members[id]; !ok {
		return domain.ErrMemberNotFound
	}
	delete(s.members, id)
	return nil
}

func (s *mapStore) DeleteMany(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(s.members, id)
	}
	return nil
}

type auditRecorder struct {
	events []string
}

func (a *auditRecorder) LogMemberAction(_ context.Context, action string, _, _ map[string]interface{}) activitydomain.Entry {
	a.events = append(a.events, "member_"+action)
	return activitydomain.Entry{}
}

func (a *auditRecorder) LogExcelImport(_ context.Context, _ string, _ int, success bool, _ map[string]interface{}) activitydomain.Entry {
	a.events = append(a.events, fmt.Sprintf("excel_import_%t", success))
	return activitydomain.Entry{}
}

func (a *auditRecorder) LogSecurityEvent(_ context.Context, eventType, _ string, _ map[string]interface{}) activitydomain.Entry {
	a.events = append(a.events, "security_"+eventType)
	return activitydomain.Entry{}
}

type profiles map[string]*authdomain.UserProfile

func (p profiles) GetProfile(_ context.Context, uid string) (*authdomain.UserProfile, error) {
	if v, ok := p[uid]; ok {
		return v, nil
	}
	return nil, authdomain.ErrUserNotFound
}

type staticConfig struct {
	cfg *permdomain.SystemConfig
}

func (s staticConfig) Get(context.Context) (*permdomain.SystemConfig, error) {
	return s.cfg, nil
}

type fixture struct {
	router *gin.Engine
	store  *mapStore
	audit  *auditRecorder
}

func newFixture(t *testing.T, mm permdomain.MemberManagement) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Nop()

	cfg := &permdomain.SystemConfig{
		Permissions: map[authdomain.Role]permdomain.CapabilitySet{
			authdomain.RoleUser: {
				permdomain.CanViewMemberDetails: permdomain.Bool(true),
				permdomain.CanBulkDeleteMembers: permdomain.Bool(true),
			},
			authdomain.RoleSuperAdmin: {
				permdomain.CanDeleteMembers: permdomain.Bool(true),
			},
		},
		MemberManagement: &mm,
	}
	factory := permservice.NewFactory(profiles{
		"u1": {UID: "u1", Role: "user"},
		"s1": {UID: "s1", Role: "superAdmin"},
	}, staticConfig{cfg: cfg}, 50*time.Millisecond, log, nil)

	store := &mapStore{members: map[string]domain.Member{
		"a": {ID: "a", Nom: "Dupont", Prenom: "Jean"},
		"b": {ID: "b", Nom: "Martin", Prenom: "Luc"},
	}}
	audit := &auditRecorder{}
	svc := service.NewMemberService(store, audit, log)
	importer := service.NewImporter(store, audit, service.ImportOptions{BatchSize: 2}, log, nil)

	r := gin.New()
	v1 := r.Group("/api/v1", func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-Uid"); uid != "" {
			auth.SetIdentity(c, authdomain.Identity{UID: uid})
		}
		c.Next()
	}, permhttp.AttachResolver(factory))
	NewHandler(svc, importer, audit, log).Register(v1)

	return &fixture{router: r, store: store, audit: audit}
}

func (f *fixture) do(method, path, uid string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Test-Uid", uid)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestListAndGet(t *testing.T) {
	f := newFixture(t, permdomain.MemberManagement{})

	rr := f.do(http.MethodGet, "/api/v1/members", "u1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Members []domain.Member `json:"members"`
		Total   int             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "Dupont", list.Members[0].Nom)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/members/a", "u1", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/members/zz", "u1", nil, "").Code)
}

func TestCreate(t *testing.T) {
	f := newFixture(t, permdomain.MemberManagement{AllowMemberCreation: true})

	rr := f.do(http.MethodPost, "/api/v1/members", "u1", []byte(`{"nom":"Durand","prenom":"Anne"}`), "")
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Len(t, f.store.members, 3)
	assert.Equal(t, []string{"member_create"}, f.audit.events)

	rr = f.do(http.MethodPost, "/api/v1/members", "u1", []byte(`{"nom":"Durand"}`), "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreate_Denied(t *testing.T) {
	f := newFixture(t, permdomain.MemberManagement{})

	rr := f.do(http.MethodPost, "/api/v1/members", "u1", []byte(`{"nom":"Durand","prenom":"Anne"}`), "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, []string{"security_unauthorized_access"}, f.audit.events)
}

func TestDelete_ApprovalRequired(t *testing.T) {
	f := newFixture(t, permdomain.MemberManagement{AllowMemberDeletion: true, RequireApprovalForDeletion: true})

	rr := f.do(http.MethodDelete, "/api/v1/members/a", "u1", nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "approval required")
	assert.Contains(t, f.store.members, "a")

	rr = f.do(http.MethodDelete, "/api/v1/members/a", "s1", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, f.store.members, "a")
}

func TestBulkDelete(t *testing.T) {
	f := newFixture(t, permdomain.MemberManagement{})

	rr := f.do(http.MethodPost, "/api/v1/members/bulk-delete", "u1", []byte(`{"ids":["a","b"]}`), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, f.store.members)
	assert.Contains(t, rr.Body.String(), `"deleted":2`)
}

func multipartCSV(t *testing.T, filename, content string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes(), w.FormDataContentType()
}

func TestImport(t *testing.T) {
	f := newFixture(t, permdomain.MemberManagement{AllowExcelImport: true, MaxMembersPerUser: 3})

	body, ct := multipartCSV(t, "membres.csv", "nom;prénom\nA;a\n;b\nC;c\n")
	rr := f.do(http.MethodPost, "/api/v1/members/import", "u1", body, ct)
	require.Equal(t, http.StatusOK, rr.Code)

	var res service.ImportResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, f.store.members, 4)
	assert.Equal(t, []string{"excel_import_true"}, f.audit.events)
}

func TestImport_Rejected(t *testing.T) {
	f := newFixture(t, permdomain.MemberManagement{AllowExcelImport: true, MaxMembersPerUser: 1})

	body, ct := multipartCSV(t, "membres.csv", "nom,prenom\nA,a\nB,b\n")
	rr := f.do(http.MethodPost, "/api/v1/members/import", "u1", body, ct)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Len(t, f.store.members, 2)

	rr = f.do(http.MethodPost, "/api/v1/members/import", "u1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestImport_PartialFailureReportsStoredRows(t *testing.T) {
	f := newFixture(t, permdomain.MemberManagement{AllowExcelImport: true})
	f.store.failBatch = 2

	body, ct := multipartCSV(t, "membres.csv", "nom,prenom\nA,a\nB,b\nC,c\n")
	rr := f.do(http.MethodPost, "/api/v1/members/import", "u1", body, ct)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var resp struct {
		Error  string               `json:"error"`
		Result service.ImportResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Result.Imported)
	assert.Len(t, f.store.members, 4)
	assert.Equal(t, []string{"excel_import_false"}, f.audit.events)
}
