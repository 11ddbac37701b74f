package quota

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateKey_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/billing/validate_key", r.URL.Path)
		var req ValidateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "key-1", req.APIKey)

		json.NewEncoder(w).Encode(ValidateResponse{Valid: true, Plan: "pro", UsageCount: 4, UsageLimit: 1000})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, FailClosed, time.Second, nil)
	resp, err := c.ValidateKey(t.Context(), "key-1", "search", 1)
	require.NoError(t, err)
	require.True(t, resp.Valid)
	require.Equal(t, "pro", resp.Plan)
}

func TestValidateKey_FailClosedOnTransportError(t *testing.T) {
	t.Parallel()

	c := NewClient("http://127.0.0.1:1", FailClosed, 50*time.Millisecond, nil)
	resp, err := c.ValidateKey(t.Context(), "key-1", "search", 1)
	require.NoError(t, err)
	require.False(t, resp.Valid)
}

func TestValidateKey_FailOpenOnTransportError(t *testing.T) {
	t.Parallel()

	c := NewClient("http://127.0.0.1:1", FailOpen, 50*time.Millisecond, nil)
	resp, err := c.ValidateKey(t.Context(), "key-1", "search", 1)
	require.NoError(t, err)
	require.True(t, resp.Valid)
}

func TestCreateKey_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/billing/create_key", r.URL.Path)
		json.NewEncoder(w).Encode(CreateKeyResponse{APIKey: "generated-key", Plan: "free"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, FailClosed, time.Second, nil)
	resp, err := c.CreateKey(t.Context(), 42, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, "generated-key", resp.APIKey)
	require.Equal(t, "free", resp.Plan)
}

func TestLogUsage_DoesNotBlockOnFailure(t *testing.T) {
	t.Parallel()

	c := NewClient("http://127.0.0.1:1", FailClosed, 50*time.Millisecond, nil)
	start := time.Now()
	c.LogUsage(t.Context(), "key-1", "search", 1)
	require.Less(t, time.Since(start), 10*time.Millisecond)
}
