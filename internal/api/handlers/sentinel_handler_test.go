package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Wikid82/sentinel/internal/models"
	"github.com/Wikid82/sentinel/internal/services"
	"github.com/Wikid82/sentinel/internal/store"
)

func setupSentinelRouter(t *testing.T) (*gin.Engine, *store.Stores) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	stores, err := store.Open(filepath.Join(dir, "sentinel"))
	require.NoError(t, err)
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SecurityAudit{}, &models.SecurityDecision{}))

	h := NewSentinelHandler(services.NewSentinelService(stores, db))
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return r, stores
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSentinelHandler_BlockLifecycle(t *testing.T) {
	r, stores := setupSentinelRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/sentinel/blocked", `{"ip":"203.0.113.5"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(r, http.MethodPost, "/api/v1/sentinel/blocked", `{"ip":"203.0.113.5"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"changed":false`)

	w = doJSON(r, http.MethodGet, "/api/v1/sentinel/blocked", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		IPs []string `json:"ips"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, []string{"203.0.113.5"}, list.IPs)

	assert.Equal(t, 1, stores.Events.Len())

	w = doJSON(r, http.MethodDelete, "/api/v1/sentinel/blocked/203.0.113.5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"changed":true`)

	w = doJSON(r, http.MethodGet, "/api/v1/sentinel/audit", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sentinel.block_ip")
	assert.Contains(t, w.Body.String(), "sentinel.unblock_ip")

	w = doJSON(r, http.MethodGet, "/api/v1/sentinel/decisions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "203.0.113.5")
}

func TestSentinelHandler_ValidationErrors(t *testing.T) {
	r, stores := setupSentinelRouter(t)

	cases := []struct {
		method, path, body, msg string
	}{
		{http.MethodPost, "/api/v1/sentinel/blocked", `{"ip":""}`, "Missing IP."},
		{http.MethodPost, "/api/v1/sentinel/blocked", `not json`, "Missing IP."},
		{http.MethodPost, "/api/v1/sentinel/blocked", `{"ip":"300.1.1.1"}`, "Provide a valid IPv4 or IPv6 to block."},
		{http.MethodPost, "/api/v1/sentinel/allowed", `{"ip":"nope"}`, "Provide a valid IPv4 or IPv6 to allow."},
		{http.MethodDelete, "/api/v1/sentinel/allowed/nope", "", "Provide a valid IPv4 or IPv6 to unallow."},
	}
	for _, tc := range cases {
		w := doJSON(r, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, tc.path)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tc.msg, resp["error"])
	}
	assert.Zero(t, stores.Events.Len())
}

func TestSentinelHandler_AllowList(t *testing.T) {
	r, stores := setupSentinelRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/sentinel/allowed", `{"ip":"::ffff:10.0.0.9"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	cfg := stores.Config.Current()
	assert.True(t, cfg.AllowList.Contains("10.0.0.9"))

	w = doJSON(r, http.MethodGet, "/api/v1/sentinel/allowed", "")
	assert.Contains(t, w.Body.String(), "10.0.0.9")

	w = doJSON(r, http.MethodDelete, "/api/v1/sentinel/allowed/10.0.0.9", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, stores.Config.Current().AllowList.Contains("10.0.0.9"))
}

func TestSentinelHandler_Reports(t *testing.T) {
	r, stores := setupSentinelRouter(t)
	for i, ip := range []string{"1.1.1.1", "1.1.1.1", "2.2.2.2"} {
		require.NoError(t, stores.Events.Append(models.ThreatEvent{
			ID:             "threat_" + string(rune('a'+i)),
			IPAddress:      ip,
			ThreatCategory: "xss",
		}))
	}

	w := doJSON(r, http.MethodGet, "/api/v1/sentinel/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status services.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 3, status.TotalEvents)
	assert.Equal(t, 5, status.BlockThreshold)

	w = doJSON(r, http.MethodGet, "/api/v1/sentinel/events?limit=2", "")
	var events struct {
		Events []models.ThreatEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	assert.Len(t, events.Events, 2)

	w = doJSON(r, http.MethodGet, "/api/v1/sentinel/top-ips?limit=1", "")
	var top struct {
		Items []store.KeyCount `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &top))
	require.Len(t, top.Items, 1)
	assert.Equal(t, store.KeyCount{Key: "1.1.1.1", Count: 2}, top.Items[0])

	w = doJSON(r, http.MethodGet, "/api/v1/sentinel/top-categories", "")
	assert.Contains(t, w.Body.String(), `"key":"xss","count":3`)
}

func TestSentinelHandler_Resync(t *testing.T) {
	r, stores := setupSentinelRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/sentinel/resync", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.NotNil(t, stores.State.Current().LastManualResync)
}

func TestSentinelHandler_SaveFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	r, stores := setupSentinelRouter(t)
	dir := filepath.Dir(stores.State.Path())
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	w := doJSON(r, http.MethodPost, "/api/v1/sentinel/blocked", `{"ip":"198.51.100.1"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "save failed")
}

func TestLimitParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for query, want := range map[string]int{"": 20, "abc": 20, "-1": 20, "7": 7, "100000": maxListLimit} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?limit="+query, nil)
		assert.Equal(t, want, limitParam(c, defaultEventLimit), query)
	}
}
