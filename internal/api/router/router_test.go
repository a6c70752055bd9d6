package router

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catchallhq/dental-crm/internal/cti"
	"github.com/catchallhq/dental-crm/internal/patients"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return New(&Config{
		PatientsHandler: patients.NewHandler(nil, nil, nil, nil, nil),
		CTIHandler:      cti.NewHandler(nil, nil, nil, nil),
		StaffJWTSecret:  "test-secret",
		CTIToken:        "adapter-token",
	})
}

func staffToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"name": "김데스크",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestHealthzIsPublic(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestStaffRoutesRequireJWT(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStaffRoutesAcceptValidJWT(t *testing.T) {
	router := newTestRouter(t)

	// An invalid body reaches the handler, proving the JWT gate passed.
	req := httptest.NewRequest(http.MethodPost, "/patients", bytes.NewBufferString("not json"))
	req.Header.Set("Authorization", "Bearer "+staffToken(t, "test-secret"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCTIEndpointsRequireToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/cti/calls/incoming", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/cti/calls/incoming", bytes.NewBufferString(`{}`))
	req.Header.Set("X-CTI-Token", "wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct token reaches the handler, which rejects the empty body.
	req = httptest.NewRequest(http.MethodPost, "/cti/calls/incoming", bytes.NewBufferString(`{}`))
	req.Header.Set("X-CTI-Token", "adapter-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmptyCTITokenRejectsAll(t *testing.T) {
	router := New(&Config{
		CTIHandler: cti.NewHandler(nil, nil, nil, nil),
	})

	req := httptest.NewRequest(http.MethodPost, "/cti/calls/ended", bytes.NewBufferString(`{}`))
	req.Header.Set("X-CTI-Token", "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
