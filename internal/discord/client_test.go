package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDiscord struct {
	mu       sync.Mutex
	roles    []role
	calls    []string
	memberOf map[string]string
	messages map[string]string
}

func newFakeDiscord() *fakeDiscord {
	return &fakeDiscord{memberOf: map[string]string{}, messages: map[string]string{}}
}

func (f *fakeDiscord) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /guilds/{guild}/roles", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		json.NewEncoder(w).Encode(f.roles)
	})
	mux.HandleFunc("POST /guilds/{guild}/roles", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(roleColor), body["color"])
		created := role{ID: "r-new", Name: body["name"].(string)}
		f.mu.Lock()
		f.roles = append(f.roles, created)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(created)
	})
	mux.HandleFunc("PUT /guilds/{guild}/members/{user}/roles/{role}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.PathValue("user") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"code":10007,"message":"Unknown Member"}`)
			return
		}
		f.mu.Lock()
		f.memberOf[r.PathValue("user")] = r.PathValue("role")
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /users/@me/channels", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["recipient_id"] == "closed" {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"message":"You are being rate limited.","retry_after":1.5}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "dm-" + body["recipient_id"]})
	})
	mux.HandleFunc("POST /channels/{channel}/messages", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.messages[r.PathValue("channel")] = body["content"]
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"id": "m1"})
	})
	return mux
}

func (f *fakeDiscord) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
}

func newTestClient(t *testing.T, f *fakeDiscord, opts ...Option) *Client {
	t.Helper()
	h := f.handler(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bot test-token", r.Header.Get("Authorization"))
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRateLimit(rate.Inf, 1)}, opts...)
	return New(srv.URL, "test-token", "OG", testLogger(), opts...)
}

func TestClient_GrantCreatesRoleOnce(t *testing.T) {
	f := newFakeDiscord()
	c := newTestClient(t, f)
	ctx := context.Background()

	require.NoError(t, c.GrantCredential(ctx, "u1", "g1"))
	require.NoError(t, c.GrantCredential(ctx, "u2", "g1"))

	assert.Equal(t, "r-new", f.memberOf["u1"])
	assert.Equal(t, "r-new", f.memberOf["u2"])
	assert.Equal(t, []string{
		"GET /guilds/g1/roles",
		"POST /guilds/g1/roles",
		"PUT /guilds/g1/members/u1/roles/r-new",
		"PUT /guilds/g1/members/u2/roles/r-new",
	}, f.calls)
}

func TestClient_GrantUsesExistingRole(t *testing.T) {
	f := newFakeDiscord()
	f.roles = []role{{ID: "r-mod", Name: "Mod"}, {ID: "r-og", Name: "OG"}}
	c := newTestClient(t, f)

	require.NoError(t, c.GrantCredential(context.Background(), "u1", "g1"))
	assert.Equal(t, "r-og", f.memberOf["u1"])
}

func TestClient_GrantDefaultGuild(t *testing.T) {
	f := newFakeDiscord()
	f.roles = []role{{ID: "r-og", Name: "OG"}}
	c := newTestClient(t, f, WithDefaultGuild("g-home"))
	ctx := context.Background()

	require.NoError(t, c.GrantCredential(ctx, "u1", ""))
	require.NoError(t, c.GrantCredential(ctx, "u2", "g-other"))

	assert.Contains(t, f.calls, "PUT /guilds/g-home/members/u1/roles/r-og")
	assert.Contains(t, f.calls, "PUT /guilds/g-other/members/u2/roles/r-og")
}

func TestClient_GrantErrors(t *testing.T) {
	f := newFakeDiscord()
	c := newTestClient(t, f)

	assert.ErrorIs(t, c.GrantCredential(context.Background(), "u1", ""), ErrNoGuild)

	err := c.GrantCredential(context.Background(), "missing", "g1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Unknown Member", apiErr.Message)
}

func TestClient_Notify(t *testing.T) {
	f := newFakeDiscord()
	c := newTestClient(t, f)

	require.NoError(t, c.Notify(context.Background(), "u1", "verified"))
	assert.Equal(t, "verified", f.messages["dm-u1"])

	err := c.Notify(context.Background(), "closed", "hello")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 1.5, apiErr.RetryAfter)
}
