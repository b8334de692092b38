package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monito83/OgWalletBot/pkg/client"
)

const cliAddr = "0xaaaa000000000000000000000000000000000001"

func newTestAPI(t *testing.T, handler http.HandlerFunc) *client.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return client.New(srv.URL, "ogv_key_test")
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestRunVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("payment instructions", func(t *testing.T) {
		var got client.InitiateRequest
		c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/verifications/", r.URL.Path)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			writeTestJSON(w, http.StatusCreated, client.Initiation{
				Method:           "payment",
				Request:          &client.Request{Code: "ABC123", Address: cliAddr},
				Amount:           "0.001",
				Symbol:           "MON",
				ReceivingAddress: "0x5e7a000000000000000000000000000000000099",
				Instructions:     "Send exactly 0.001 MON",
			})
		})

		var out bytes.Buffer
		err := runVerify(ctx, &out, c, client.InitiateRequest{ClaimantID: "u1", ClaimantLabel: "alice", Address: cliAddr})
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ClaimantID)
		assert.Contains(t, out.String(), "ABC123")
		assert.Contains(t, out.String(), "0.001 MON")
		assert.Contains(t, out.String(), "Send exactly")
	})

	t.Run("direct grant", func(t *testing.T) {
		c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(w, http.StatusOK, client.Initiation{Method: "direct", Granted: true})
		})

		var out bytes.Buffer
		require.NoError(t, runVerify(ctx, &out, c, client.InitiateRequest{ClaimantID: "u1", Address: cliAddr}))
		assert.Contains(t, out.String(), "granted")
	})

	t.Run("api error", func(t *testing.T) {
		c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(w, http.StatusForbidden, map[string]any{
				"error": map[string]string{"code": "NOT_ELIGIBLE", "message": "address is not on the OG list"},
			})
		})

		err := runVerify(ctx, io.Discard, c, client.InitiateRequest{ClaimantID: "u1", Address: cliAddr})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NOT_ELIGIBLE")
	})
}

func TestApplyClaimantDefaults(t *testing.T) {
	origCfg := cfgFile
	defer func() { cfgFile = origCfg }()

	cfgFile = filepath.Join(t.TempDir(), "ogwallet.toml")
	content := "server = \"http://x\"\nclaimant_id = \"4242\"\nclaimant_label = \"alice\"\norigin = \"cli\"\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0644))

	in := client.InitiateRequest{Address: cliAddr}
	applyClaimantDefaults(&in)
	assert.Equal(t, "4242", in.ClaimantID)
	assert.Equal(t, "alice", in.ClaimantLabel)
	assert.Equal(t, "cli", in.OriginContext)

	in = client.InitiateRequest{ClaimantID: "u9", Address: cliAddr}
	applyClaimantDefaults(&in)
	assert.Equal(t, "u9", in.ClaimantID)
	assert.Empty(t, in.ClaimantLabel, "label follows the configured claimant only")
}

func TestRunStatus(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, cliAddr, r.URL.Query().Get("address"))
		writeTestJSON(w, http.StatusOK, client.Status{
			Address:   cliAddr,
			State:     "pending",
			Request:   &client.Request{Code: "ABC123", ClaimantID: "u1"},
			Remaining: 90 * time.Second,
		})
	})

	var out bytes.Buffer
	require.NoError(t, runStatus(context.Background(), &out, c, cliAddr))
	assert.Contains(t, out.String(), "pending")
	assert.Contains(t, out.String(), "ABC123")
	assert.Contains(t, out.String(), "1m30s")
}

func TestRunPending(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/admin/verifications", r.URL.Path)
		assert.Equal(t, "ogv_key_test", r.Header.Get("X-API-Key"))
		writeTestJSON(w, http.StatusOK, map[string]any{
			"data": []client.Request{
				{Code: "ABC123", Address: cliAddr, ClaimantID: "u1", ClaimantLabel: "alice", ExpiresAt: time.Now().Add(time.Minute)},
			},
			"count": 1,
		})
	})

	var out bytes.Buffer
	require.NoError(t, runPending(context.Background(), &out, c))
	assert.Contains(t, out.String(), "CODE")
	assert.Contains(t, out.String(), "ABC123")
	assert.Contains(t, out.String(), "0xaaaa...0001")
	assert.Contains(t, out.String(), "alice (u1)")
}

func TestRunReconcile(t *testing.T) {
	t.Run("summary", func(t *testing.T) {
		c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			writeTestJSON(w, http.StatusOK, client.CycleReport{
				Head: 120,
				Transfers: []client.TransferReport{
					{Outcome: "accepted"}, {Outcome: "unmatched"}, {Outcome: "accepted"},
				},
				FailedBlocks: 1,
			})
		})

		var out bytes.Buffer
		require.NoError(t, runReconcile(context.Background(), &out, c))
		assert.Contains(t, out.String(), "block 120")
		assert.Contains(t, out.String(), "accepted: 2")
		assert.Contains(t, out.String(), "unmatched: 1")
		assert.Contains(t, out.String(), "Failed blocks: 1")
	})

	t.Run("skipped", func(t *testing.T) {
		c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(w, http.StatusAccepted, client.CycleReport{Skipped: true})
		})

		var out bytes.Buffer
		require.NoError(t, runReconcile(context.Background(), &out, c))
		assert.Contains(t, out.String(), "skipped")
	})

	t.Run("degraded", func(t *testing.T) {
		c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error": map[string]string{"code": "UPSTREAM_UNAVAILABLE", "message": "payment scanning is not running"},
			})
		})

		err := runReconcile(context.Background(), io.Discard, c)
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	})
}

func TestRunWalletsImport(t *testing.T) {
	var body string
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		writeTestJSON(w, http.StatusOK, client.ReplaceResult{Accepted: 1, Rejected: []string{"0x12"}})
	})

	var out bytes.Buffer
	require.NoError(t, runWalletsImport(context.Background(), &out, c, strings.NewReader(cliAddr+"\n0x12\n")))
	assert.Equal(t, cliAddr+"\n0x12\n", body)
	assert.Contains(t, out.String(), "1 wallets accepted")
	assert.Contains(t, out.String(), "0x12")
}

func TestRunAudit(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		writeTestJSON(w, http.StatusOK, map[string]any{
			"data": []client.AuditEvent{
				{ID: "1", Kind: "claimed", Details: map[string]string{"code": "ABC123", "address": cliAddr}, CreatedAt: time.Now()},
			},
			"count": 1,
		})
	})

	var out bytes.Buffer
	require.NoError(t, runAudit(context.Background(), &out, c, 5))
	assert.Contains(t, out.String(), "claimed")
	assert.Contains(t, out.String(), "address="+cliAddr+" code=ABC123")
}

func TestJSONOutput(t *testing.T) {
	orig := jsonOutput
	defer func() { jsonOutput = orig }()
	jsonOutput = true

	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, client.Status{Address: cliAddr, State: "claimed", Owner: &client.Owner{ClaimantID: "u1"}})
	})

	var out bytes.Buffer
	require.NoError(t, runStatus(context.Background(), &out, c, cliAddr))
	var st client.Status
	require.NoError(t, json.Unmarshal(out.Bytes(), &st))
	assert.Equal(t, "claimed", st.State)
	assert.Equal(t, "u1", st.Owner.ClaimantID)
}

func TestClaimantName(t *testing.T) {
	assert.Equal(t, "u1", claimantName("u1", ""))
	assert.Equal(t, "u1", claimantName("u1", "u1"))
	assert.Equal(t, "alice (u1)", claimantName("u1", "alice"))
}
