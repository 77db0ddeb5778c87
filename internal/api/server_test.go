package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"plugbot/internal/api"
	"plugbot/internal/dispatch"
	"plugbot/internal/plugins/echo"
	"plugbot/internal/trace"
	"plugbot/pkg/plugin"
	"plugbot/pkg/testutil"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, opts ...api.Option) (*testutil.Harness, *httptest.Server) {
	t.Helper()
	h := testutil.NewHarness(t)
	require.NoError(t, h.Loader.LoadPlugin(context.Background(), "user/"+echo.Name))

	s := api.NewServer(":0", h.Loader, h.Registry, h.Trace, zap.NewNop(), opts...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return h, srv
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t)

	var body map[string]any
	getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["plugins"])
}

func TestPluginsAndHandlers(t *testing.T) {
	_, srv := newTestServer(t)

	var plugins []plugin.Info
	getJSON(t, srv.URL+"/api/plugins", &plugins)
	require.Len(t, plugins, 1)
	assert.Equal(t, echo.Name, plugins[0].Name)
	assert.False(t, plugins[0].Core)

	var groups []dispatch.GroupInfo
	getJSON(t, srv.URL+"/api/handlers", &groups)
	require.Len(t, groups, 1)
	assert.Equal(t, echo.Name, groups[0].Plugin)
	assert.NotEmpty(t, groups[0].Handlers)
}

func TestDispatches(t *testing.T) {
	h, srv := newTestServer(t)
	h.Send(testutil.Message(9, 9, "/echo hi"))

	var entries []trace.Entry
	getJSON(t, srv.URL+"/api/dispatches", &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, trace.OutcomeHandled, entries[0].Outcome)
	assert.Equal(t, echo.Name, entries[0].Plugin)
}

func TestReload(t *testing.T) {
	tests := []struct {
		name     string
		plugin   string
		auth     string
		wantCode int
	}{
		{name: "ok", plugin: echo.Name, auth: "Bearer s3cret", wantCode: http.StatusOK},
		{name: "missing token", plugin: echo.Name, wantCode: http.StatusUnauthorized},
		{name: "wrong token", plugin: echo.Name, auth: "Bearer nope", wantCode: http.StatusUnauthorized},
		{name: "not active", plugin: "missing", auth: "Bearer s3cret", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, srv := newTestServer(t, api.WithToken("s3cret"))
			before := h.Loader.Plugins()[0].Group

			req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/plugins/"+tt.plugin+"/reload", nil)
			require.NoError(t, err)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, tt.wantCode, resp.StatusCode)
			if tt.wantCode == http.StatusOK {
				assert.NotEqual(t, before, h.Loader.Plugins()[0].Group)
			}
		})
	}
}

func TestReloadWithoutToken(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/plugins/"+echo.Name+"/reload", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSitemap(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/api/dispatches")
}

func TestWebhookMounted(t *testing.T) {
	called := false
	hook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	_, srv := newTestServer(t, api.WithWebhook(hook))
	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.True(t, called)

	_, plain := newTestServer(t)
	resp, err = http.Post(plain.URL+"/webhook", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDispatchStream(t *testing.T) {
	h, srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/dispatches"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The subscription is registered after the upgrade; keep dispatching
	// until an entry arrives.
	received := make(chan trace.Entry, 1)
	go func() {
		var e trace.Entry
		if err := conn.ReadJSON(&e); err == nil {
			received <- e
		}
	}()

	require.Eventually(t, func() bool {
		h.Send(testutil.Message(9, 9, "/echo streamed"))
		select {
		case e := <-received:
			return e.Plugin == echo.Name
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}
