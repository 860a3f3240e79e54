package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_AccountCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAccountCreated()
	c.RecordAccountCreated()
	c.RecordAccountConflict()
	c.RecordInvalidCredential()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.accountsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.accountConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.invalidCredentials))
}

func TestCollector_LoginsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(true)
	c.RecordLogin(false)
	c.RecordLogin(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.logins.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.logins.WithLabelValues("failure")))
}

func TestCollector_HTTPRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest("POST", "/api/account/create", 201, 5*time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/account/create", 409, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("POST", "/api/account/create", "409")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.httpLatency))
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAccountCreated()

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), "portal_accounts_created_total 1")
}
