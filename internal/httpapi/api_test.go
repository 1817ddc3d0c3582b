package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yuqie6/Sanpai/internal/bootstrap"
	"github.com/yuqie6/Sanpai/internal/eventbus"
	"github.com/yuqie6/Sanpai/internal/pkg/config"
	"github.com/yuqie6/Sanpai/internal/schema"
)

type testEnv struct {
	handler http.Handler
	hub     *eventbus.Hub
	userID  int64
	siteID  int64
	site    *schema.Site
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.App.Timezone = "UTC"
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "api.db")
	cfg.Server.AdminToken = "secret"

	core, err := bootstrap.NewCoreFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })

	ctx := context.Background()
	user, err := core.Store.Users.EnsureByName(ctx, "巫女")
	require.NoError(t, err)
	site, err := core.Store.Subjects.EnsureSite(ctx, &schema.Site{Name: "明治神宮", Latitude: 35.6764, Longitude: 139.6993})
	require.NoError(t, err)

	srv, err := New(core)
	require.NoError(t, err)
	return &testEnv{handler: srv.Handler(), hub: core.Hub, userID: user.ID, siteID: site.ID, site: site}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) visit(t *testing.T) *httptest.ResponseRecorder {
	return e.do(t, http.MethodPost, "/api/visits", map[string]any{
		"site_id":   e.siteID,
		"kind":      "direct",
		"latitude":  e.site.Latitude,
		"longitude": e.site.Longitude,
	}, map[string]string{"X-User-ID": strconv.FormatInt(e.userID, 10)})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decode(t, rec)["ok"])
}

func TestRecordVisitThenDuplicateConflicts(t *testing.T) {
	env := newTestEnv(t)

	rec := env.visit(t)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	require.EqualValues(t, 1, body["user_count"])
	require.EqualValues(t, 1, body["site_total"])

	rec = env.visit(t)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "already_visited", decode(t, rec)["code"])
}

func TestRecordVisitRequiresCaller(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/visits", map[string]any{"site_id": env.siteID, "kind": "remote"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecordVisitValidationAndNotFound(t *testing.T) {
	env := newTestEnv(t)
	caller := map[string]string{"X-User-ID": strconv.FormatInt(env.userID, 10)}

	rec := env.do(t, http.MethodPost, "/api/visits", map[string]any{"site_id": env.siteID, "kind": "teleport"}, caller)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/visits", map[string]any{"site_id": 9999, "kind": "remote"}, caller)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/visits", map[string]any{"site_id": env.siteID, "kind": "direct"}, caller)
	require.Equal(t, http.StatusBadRequest, rec.Code, "direct visit without location")
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/visits", nil, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLeaderboardAfterVisit(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.visit(t).Code)

	rec := env.do(t, http.MethodGet, "/api/leaderboard?subject_type=site&subject_id="+strconv.FormatInt(env.siteID, 10)+"&window=daily", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Entries []struct {
			Rank     int    `json:"rank"`
			UserID   int64  `json:"user_id"`
			UserName string `json:"user_name"`
			Count    int64  `json:"count"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Entries, 1)
	require.Equal(t, env.userID, out.Entries[0].UserID)
	require.Equal(t, "巫女", out.Entries[0].UserName)
	require.Equal(t, 1, out.Entries[0].Rank)

	rec = env.do(t, http.MethodGet, "/api/leaderboard?subject_id=abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProgressAndActivity(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.visit(t).Code)

	rec := env.do(t, http.MethodGet, "/api/users/progress?user_id="+strconv.FormatInt(env.userID, 10), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	require.EqualValues(t, 10, body["experience"])
	require.EqualValues(t, 1, body["level"])

	rec = env.do(t, http.MethodGet, "/api/users/progress?user_id=424242", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/activity?user_id="+strconv.FormatInt(env.userID, 10), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []ActivityDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
	require.NotEmpty(t, logs)
	require.Equal(t, env.userID, logs[0].UserID)

	rec = env.do(t, http.MethodGet, "/api/titles", nil, map[string]string{"X-User-ID": strconv.FormatInt(env.userID, 10)})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestAdminHarvest(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.visit(t).Code)

	rec := env.do(t, http.MethodPost, "/api/admin/harvest", map[string]any{"period": "daily"}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/admin/harvest", map[string]any{"period": "daily"}, map[string]string{"X-Admin-Token": "wrong"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	admin := map[string]string{"X-Admin-Token": "secret"}
	rec = env.do(t, http.MethodPost, "/api/admin/harvest", map[string]any{"period": "fortnightly"}, admin)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/admin/harvest", map[string]any{"period": "daily", "date": "15/10/2026"}, admin)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/admin/harvest", map[string]any{"period": "daily"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// 日窗口清空后可再次现场参拜
	require.Equal(t, http.StatusOK, env.visit(t).Code)
}

func TestRateLimitedVisits(t *testing.T) {
	env := newTestEnv(t)
	headers := map[string]string{"X-User-ID": strconv.FormatInt(env.userID, 10)}
	body := map[string]any{"site_id": env.siteID, "kind": "teleport"}

	limited := false
	for i := 0; i < 20; i++ {
		rec := env.do(t, http.MethodPost, "/api/visits", body, headers)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			require.Equal(t, "1", rec.Header().Get("Retry-After"))
			break
		}
	}
	require.True(t, limited)
}

func TestEventStreamFiltersByUser(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	rec := env.do(t, http.MethodGet, "/api/events?user_id=abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := ts.URL + "/api/events?types=visit.recorded&user_id=" + strconv.FormatInt(env.userID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: ready\n", line)

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, http.StatusOK, env.visit(t).Code)

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: visit.recorded") {
			break
		}
	}
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, `"user_id":`+strconv.FormatInt(env.userID, 10))
}
