package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, cfg *Config, hub *Hub) *Server {
	t.Helper()
	srv := NewServer(cfg, hub)
	go func() { _ = srv.Start() }()
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	return srv
}

func TestServer_HealthEndpoint(t *testing.T) {
	srv := startServer(t, &Config{Port: 0, Version: "1.2.3"}, nil)

	resp, err := http.Get(srv.BaseURL() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "1.2.3", health.Version)
}

func TestServer_HealthDefaultsVersion(t *testing.T) {
	srv := NewServer(&Config{}, nil)

	req, err := http.NewRequest(http.MethodGet, "/health", nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"dev"`)
}

func TestServer_Mount(t *testing.T) {
	srv := NewServer(&Config{}, nil)
	srv.Mount("/api/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.URL.Path)
	}))

	for _, path := range []string{"/api", "/api/v1/channels"} {
		req, err := http.NewRequest(http.MethodGet, path, nil)
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		assert.Equal(t, path, rec.Body.String())
	}
}

func TestServer_CORS(t *testing.T) {
	srv := NewServer(&Config{CORSOrigins: []string{"http://admin.local"}}, nil)

	req, err := http.NewRequest(http.MethodOptions, "/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://admin.local")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, "http://admin.local", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_WebSocket(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	srv := startServer(t, &Config{Port: 0}, hub)

	u := url.URL{Scheme: "ws", Host: srv.Addr(), Path: "/ws"}
	c, wsResp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	defer c.Close()
	if wsResp != nil && wsResp.Body != nil {
		defer wsResp.Body.Close()
	}

	// the client registers asynchronously, so keep broadcasting until one lands
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := make(chan []byte, 1)
	go func() {
		_, msg, err := c.ReadMessage()
		if err == nil {
			got <- msg
		}
	}()

	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case msg := <-got:
			var ev WSEvent
			require.NoError(t, json.Unmarshal(msg, &ev))
			assert.Equal(t, EventAuthSuccess, ev.Type)
			return
		case <-tick.C:
			hub.Broadcast(NewEvent(EventAuthSuccess, nil))
		case <-deadline:
			t.Fatal("no websocket message received")
		}
	}
}
