package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-grading/internal/rbac"
)

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("0123456789abcdef0123456789abcdef", time.Hour)
	tok, err := a.IssueJWT("t1", rbac.RoleTeacher)
	require.NoError(t, err)

	c, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "t1", c.Subject)
	assert.Equal(t, rbac.RoleTeacher, c.Role)

	other := NewAuthService("another-secret-another-secret-xx", time.Hour)
	_, err = other.Parse(tok)
	assert.Error(t, err)

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = a.Parse(tok)
	assert.Error(t, err, "expired")
}

func TestCredentials(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	creds := Credentials{AdminUser: "admin", AdminPassHash: string(hash), DevLogins: true}

	role, err := creds.Check("admin", "s3cret", "")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, role)

	_, err = creds.Check("admin", "admin", rbac.RoleTeacher)
	assert.ErrorIs(t, err, ErrBadCredentials)

	role, err = creds.Check("c1", "c1", rbac.RoleCoordinator)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleCoordinator, role)

	_, err = creds.Check("c1", "c1", rbac.RoleAdmin)
	assert.ErrorIs(t, err, ErrBadCredentials, "admin role only through the admin account")

	creds.DevLogins = false
	_, err = creds.Check("t1", "t1", rbac.RoleTeacher)
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestLoginAndMiddleware(t *testing.T) {
	a := NewAuthService("0123456789abcdef0123456789abcdef", time.Hour)
	login := LoginHandler(a, Credentials{DevLogins: true}, zap.NewNop())

	body, _ := json.Marshal(map[string]string{"username": "s1", "password": "s1", "role": "student"})
	rr := httptest.NewRecorder()
	login(rr, httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))

	var gotSub, gotRole string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = rbac.SubjectFromContext(r.Context())
		gotRole = rbac.RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/attempts", nil)
	req.Header.Set("Authorization", "Bearer "+out.AccessToken)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "s1", gotSub)
	assert.Equal(t, rbac.RoleStudent, gotRole)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/attempts", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	body, _ = json.Marshal(map[string]string{"username": "s1", "password": "nope", "role": "student"})
	rr = httptest.NewRecorder()
	login(rr, httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
