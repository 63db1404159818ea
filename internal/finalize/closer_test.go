package finalize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookCloserPostsDayClosed(t *testing.T) {
	var got dayClosedPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := NewWebhookCloser(srv.URL).SignalDayClosed(context.Background(), "main-store", "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, dayClosedPayload{Event: "day_closed", StoreID: "main-store", Day: "2026-10-15"}, got)
}

func TestWebhookCloserReportsFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookCloser(srv.URL).SignalDayClosed(context.Background(), "main-store", "2026-10-15")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
