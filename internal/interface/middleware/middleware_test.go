package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swordot/portal/internal/application"
	"github.com/swordot/portal/internal/metrics"
	"github.com/swordot/portal/pkg/helpers"
)

type fakeSessions struct {
	err error
}

func (f fakeSessions) Validate(_ context.Context, claims *helpers.Claims) (*application.SessionUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &application.SessionUser{ID: claims.AccountID, Name: claims.Name}, nil
}

var testJWT = helpers.NewJWTManager("access", "refresh", time.Hour, time.Hour)

func init() { gin.SetMode(gin.TestMode) }

func whoami(c *gin.Context) {
	u, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func withToken(t *testing.T, req *http.Request) *http.Request {
	t.Helper()
	tok, _, err := testJWT.GenerateAccessToken(7, "alice", "sid-1")
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: helpers.AccessCookie, Value: tok})
	return req
}

func TestAuth(t *testing.T) {
	r := gin.New()
	r.GET("/me", Auth(fakeSessions{}, testJWT), whoami)

	w := do(r, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"missing access token"}`, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: helpers.AccessCookie, Value: "garbage"})
	w = do(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, withToken(t, httptest.NewRequest(http.MethodGet, "/me", nil)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":{"id":7,"name":"alice"}}`, w.Body.String())
}

func TestAuth_SessionErrors(t *testing.T) {
	r := gin.New()
	r.GET("/gone", Auth(fakeSessions{err: application.ErrSessionNotFound}, testJWT), whoami)
	r.GET("/down", Auth(fakeSessions{err: errors.New("redis down")}, testJWT), whoami)

	w := do(r, withToken(t, httptest.NewRequest(http.MethodGet, "/gone", nil)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = do(r, withToken(t, httptest.NewRequest(http.MethodGet, "/down", nil)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestOptionalAuth(t *testing.T) {
	r := gin.New()
	r.GET("/me", OptionalAuth(fakeSessions{}, testJWT), whoami)

	w := do(r, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.JSONEq(t, `{"user":null}`, w.Body.String())

	w = do(r, withToken(t, httptest.NewRequest(http.MethodGet, "/me", nil)))
	assert.JSONEq(t, `{"user":{"id":7,"name":"alice"}}`, w.Body.String())
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := do(r, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(w.Body.String())
	assert.NoError(t, err)
	assert.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))

	given := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, given)
	assert.Equal(t, given, do(r, req).Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	assert.NotEqual(t, "<script>", do(r, req).Body.String())
}

func TestRealIP(t *testing.T) {
	r := gin.New()
	r.Use(RealIP())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("real_ip")) })

	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"cloudflare", map[string]string{"CF-Connecting-IP": "203.0.113.7", "X-Forwarded-For": "10.0.0.1"}, "203.0.113.7"},
		{"forwarded", map[string]string{"X-Forwarded-For": " 198.51.100.2 , 10.0.0.1"}, "198.51.100.2"},
		{"real ip", map[string]string{"X-Forwarded-For": "junk", "X-Real-IP": "192.0.2.9"}, "192.0.2.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, do(r, req).Body.String())
		})
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	reg := prometheus.NewRegistry()
	col := metrics.NewCollector(reg)

	r := gin.New()
	r.Use(RequestIDMiddleware(), AccessLog(logger, col))
	r.GET("/accounts/:name", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	do(r, httptest.NewRequest(http.MethodGet, "/accounts/nobody", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.EqualValues(t, 404, entry["status"])
	assert.NotEmpty(t, entry["request_id"])

	n, err := testutil.GatherAndCount(reg, "portal_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
