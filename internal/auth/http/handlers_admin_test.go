package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	activitydomain "github.com/calybase/calybase-backend/internal/activity/domain"
	"github.com/calybase/calybase-backend/internal/auth/domain"
	"github.com/calybase/calybase-backend/internal/auth/service"
)

type fakeAdmin struct {
	listing   *service.UserListing
	listErr   error
	deleteRes *service.DeleteResult
	deleteErr error
}

func (f *fakeAdmin) ListUsers(context.Context) (*service.UserListing, error) {
	return f.listing, f.listErr
}

func (f *fakeAdmin) DeleteUser(_ context.Context, uid, email string) (*service.DeleteResult, error) {
	if uid == "" || email == "" {
		return nil, domain.ErrMissingDeleteFields
	}
	return f.deleteRes, f.deleteErr
}

type fakeRecorder struct {
	actions []string
}

func (f *fakeRecorder) LogUserManagement(_ context.Context, action string, _, _ map[string]interface{}) activitydomain.Entry {
	f.actions = append(f.actions, action)
	return activitydomain.Entry{}
}

func setupRouter(admin UserAdmin, rec *fakeRecorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(admin, rec, nil).Register(r.Group("/auth"))
	return r
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestListFirebaseUsers(t *testing.T) {
	admin := &fakeAdmin{listing: &service.UserListing{
		Users: []service.UserEntry{{
			IdentityUser:  domain.IdentityUser{UID: "u1", Email: "u1@example.com"},
			DisplayRole:   "user",
			DisplayStatus: "missing-firestore",
		}},
		Summary: service.Summary{TotalAuthUsers: 1, UsersMissingFirestore: 1},
	}}
	r := setupRouter(admin, &fakeRecorder{})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/firebase-users", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	users := body["users"].([]interface{})
	require.Len(t, users, 1)
	u := users[0].(map[string]interface{})
	assert.Equal(t, "u1", u["uid"])
	assert.Equal(t, "missing-firestore", u["displayStatus"])
	assert.Equal(t, float64(1), body["summary"].(map[string]interface{})["usersMissingFirestore"])
}

func TestListFirebaseUsers_Error(t *testing.T) {
	r := setupRouter(&fakeAdmin{listErr: errors.New("quota exceeded")}, &fakeRecorder{})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/firebase-users", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "quota exceeded", decode(t, rr)["details"])
}

func postDelete(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/delete-user", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestDeleteUser(t *testing.T) {
	rec := &fakeRecorder{}
	r := setupRouter(&fakeAdmin{deleteRes: &service.DeleteResult{ProfileDeleted: true}}, rec)

	rr := postDelete(r, `{"userId":"u1","userEmail":"u1@example.com"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Utilisateur u1@example.com supprimé avec succès de Firebase Auth et Firestore", decode(t, rr)["message"])
	assert.Equal(t, []string{"delete"}, rec.actions)
}

func TestDeleteUser_MissingFields(t *testing.T) {
	r := setupRouter(&fakeAdmin{}, &fakeRecorder{})

	for _, body := range []string{`{"userId":"u1"}`, `{}`, `not json`} {
		rr := postDelete(r, body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		assert.Equal(t, "userId et userEmail sont requis", decode(t, rr)["error"])
	}
}

func TestDeleteUser_Failure(t *testing.T) {
	rec := &fakeRecorder{}
	r := setupRouter(&fakeAdmin{deleteErr: errors.New("no user record")}, rec)

	rr := postDelete(r, `{"userId":"u1","userEmail":"u1@example.com"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "no user record", decode(t, rr)["details"])
	assert.Empty(t, rec.actions)
}
