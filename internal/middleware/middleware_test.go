package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/capital-declarations-api/internal/models"
	"github.com/noah-isme/capital-declarations-api/internal/service"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
	err    error
	got    string
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	v.got = token
	return v.claims, v.err
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		claims, _ := CurrentClaims(c)
		c.String(http.StatusOK, claims.UserID)
	})
	r.GET("/declarations", handlers...)
	return r
}

func TestJWTMiddleware(t *testing.T) {
	stub := &validatorStub{claims: &models.JWTClaims{UserID: "u1", FirmID: "f1", Role: models.RoleStaff}}
	r := newRouter(JWT(stub))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/declarations", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/declarations", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/declarations", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Body.String())
	assert.Equal(t, "good-token", stub.got)

	stub.err = appErrors.Clone(appErrors.ErrUnauthorized, "expired")
	req = httptest.NewRequest(http.MethodGet, "/declarations", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "UNAUTHORIZED"))
}

func TestRequireRoles(t *testing.T) {
	stub := &validatorStub{claims: &models.JWTClaims{UserID: "u1", FirmID: "f1", Role: models.RoleStaff}}
	r := newRouter(JWT(stub), RequireRoles(models.RoleOwner, models.RoleAdmin))

	req := httptest.NewRequest(http.MethodGet, "/declarations", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	stub.claims.Role = models.RoleAdmin
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/portal/:token", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/portal/s3cr3t", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere/s3cr3t", nil))

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `path="/portal/:token"`)
	assert.Contains(t, body, `path="unmatched"`)
	assert.NotContains(t, body, "s3cr3t")
	assert.Equal(t, uint64(2), metrics.Snapshot().RequestsTotal)
}
