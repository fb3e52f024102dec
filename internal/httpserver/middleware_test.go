package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contenthub/internal/handler"
	"contenthub/internal/model"
	"contenthub/internal/repository"
	"contenthub/pkg/ratelimit"
	"contenthub/pkg/rbac"
	"contenthub/pkg/trace"
	"contenthub/pkg/util"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTenants struct {
	tenants map[string]*model.Tenant
	err     error
}

func (f *fakeTenants) FindBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tenants[slug]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

type fakeChecker struct {
	allowed map[string]bool
	err     error
}

func (f *fakeChecker) CheckPermission(ctx context.Context, tenantID, userID int64, permission string) error {
	if f.err != nil {
		return f.err
	}
	if !f.allowed[permission] {
		return &rbac.PermissionDeniedError{UserID: userID, Permission: permission}
	}
	return nil
}

type fakeLimiter struct {
	result *ratelimit.Result
	err    error
	scopes []string
	ids    []string
}

func (f *fakeLimiter) Allow(ctx context.Context, scope, id string, limit int64, window time.Duration) (*ratelimit.Result, error) {
	f.scopes = append(f.scopes, scope)
	f.ids = append(f.ids, id)
	return f.result, f.err
}

func withTenant(id int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(handler.KeyTenant, &model.Tenant{ID: id, Slug: "t"})
		c.Next()
	}
}

func withUser(id int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(handler.KeyUserID, id)
		c.Next()
	}
}

func ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tenant_id": handler.TenantID(c),
		"user_id":   handler.UserID(c),
		"trace_id":  trace.FromContext(c.Request.Context()),
	})
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestTraceMiddleware_PropagatesHeader(t *testing.T) {
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/", ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(trace.HeaderName(), "abc-123")
	w := serve(r, req)

	assert.Equal(t, "abc-123", w.Header().Get(trace.HeaderName()))
	assert.Equal(t, "abc-123", decode(t, w)["trace_id"])
}

func TestTraceMiddleware_GeneratesWhenMissing(t *testing.T) {
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/", ok)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))

	id := w.Header().Get(trace.HeaderName())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, decode(t, w)["trace_id"])
}

func TestTenantMiddleware(t *testing.T) {
	tenants := &fakeTenants{tenants: map[string]*model.Tenant{
		"default": {ID: 1, Slug: "default"},
		"acme":    {ID: 2, Slug: "acme"},
	}}
	r := gin.New()
	r.Use(TenantMiddleware(tenants, zap.NewNop()))
	r.GET("/", ok)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["tenant_id"])

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TenantHeader, " ACME ")
	w = serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["tenant_id"])

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TenantHeader, "nobody")
	w = serve(r, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTenantMiddleware_LookupError(t *testing.T) {
	r := gin.New()
	r.Use(TenantMiddleware(&fakeTenants{err: errors.New("db down")}, zap.NewNop()))
	r.GET("/", ok)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(withTenant(1), AuthMiddleware(testSecret))
	r.GET("/", ok)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = serve(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := util.GenerateJWT(42, 1, testSecret, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 42, decode(t, w)["user_id"])
}

func TestAuthMiddleware_RejectsOtherTenant(t *testing.T) {
	r := gin.New()
	r.Use(withTenant(1), AuthMiddleware(testSecret))
	r.GET("/", ok)

	token, err := util.GenerateJWT(42, 2, testSecret, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serve(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalAuthMiddleware_AllowsAnonymous(t *testing.T) {
	r := gin.New()
	r.Use(withTenant(1), OptionalAuthMiddleware(testSecret))
	r.GET("/", ok)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["user_id"])

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = serve(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePermission(t *testing.T) {
	checker := &fakeChecker{allowed: map[string]bool{rbac.PermissionMenuManage: true}}

	r := gin.New()
	r.GET("/anon", withTenant(1), RequirePermission(checker, rbac.PermissionMenuManage, zap.NewNop()), ok)
	r.GET("/menu", withTenant(1), withUser(7), RequirePermission(checker, rbac.PermissionMenuManage, zap.NewNop()), ok)
	r.GET("/role", withTenant(1), withUser(7), RequirePermission(checker, rbac.PermissionRoleManage, zap.NewNop()), ok)

	assert.Equal(t, http.StatusUnauthorized, serve(r, httptest.NewRequest(http.MethodGet, "/anon", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/menu", nil)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, httptest.NewRequest(http.MethodGet, "/role", nil)).Code)
}

func TestRequirePermission_CheckerError(t *testing.T) {
	r := gin.New()
	r.GET("/", withTenant(1), withUser(7),
		RequirePermission(&fakeChecker{err: errors.New("redis down")}, rbac.PermissionMenuManage, zap.NewNop()), ok)

	assert.Equal(t, http.StatusInternalServerError, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestRateLimit_Rejected(t *testing.T) {
	limiter := &fakeLimiter{result: &ratelimit.Result{Allowed: false, CurrentCount: 6, Limit: 5, RetryAfterSeconds: 17}}
	r := gin.New()
	r.Use(withTenant(3), GlobalRateLimitMiddleware(limiter, 5, zap.NewNop()))
	r.GET("/", ok)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "17", w.Header().Get("Retry-After"))
	assert.EqualValues(t, 17, decode(t, w)["retry_after_seconds"])
	assert.Equal(t, []string{ratelimit.ScopeGlobal}, limiter.scopes)
	assert.Equal(t, []string{"3"}, limiter.ids)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	r := gin.New()
	r.Use(withTenant(1), withUser(9), UserRateLimitMiddleware(limiter, 5, zap.NewNop()))
	r.GET("/", ok)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"9"}, limiter.ids)
}

func TestRateLimit_SkipsAnonymousAndDisabled(t *testing.T) {
	limiter := &fakeLimiter{result: &ratelimit.Result{Allowed: false}}
	r := gin.New()
	r.GET("/anon", withTenant(1), UserRateLimitMiddleware(limiter, 5, zap.NewNop()), ok)
	r.GET("/off", withTenant(1), GlobalRateLimitMiddleware(limiter, 0, zap.NewNop()), ok)

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/anon", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/off", nil)).Code)
	assert.Empty(t, limiter.scopes)
}

func TestLoginRateLimit_KeysByClientIP(t *testing.T) {
	limiter := &fakeLimiter{result: &ratelimit.Result{Allowed: true}}
	r := gin.New()
	r.POST("/login", LoginRateLimitMiddleware(limiter, 5, zap.NewNop()), ok)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	serve(r, req)

	assert.Equal(t, []string{ratelimit.ScopeLogin}, limiter.scopes)
	assert.Equal(t, []string{"10.1.2.3"}, limiter.ids)
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RecoveryMiddleware(zap.NewNop()))
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReadyHandler(t *testing.T) {
	r := gin.New()
	r.GET("/ok", readyHandler(map[string]ReadyCheck{
		"db": func(ctx context.Context) error { return nil },
	}))
	r.GET("/bad", readyHandler(map[string]ReadyCheck{
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	}))

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil)).Code)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/bad", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "redis_not_ready", decode(t, w)["status"])
}
