package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, handler http.HandlerFunc) *Session {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewSession(&Opts{BaseURL: server.URL, Timeout: 5 * time.Second}, "0xuser")
}

func TestGetRequestHeadersBindsPayload(t *testing.T) {
	var seen map[string]string
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/request-headers", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		json.NewEncoder(w).Encode(map[string]any{
			"headers": map[string]string{"X-Signature": "sig-over-" + seen["content"]},
		})
	})

	headers, err := session.GetRequestHeaders(context.Background(), "0xprov", "svc", "Hello")
	require.NoError(t, err)
	require.Equal(t, "sig-over-Hello", headers["X-Signature"])
	require.Equal(t, "0xuser", seen["user"])
	require.Equal(t, "Hello", seen["content"])
}

func TestSettleFeeSendsDecimalString(t *testing.T) {
	var seen map[string]string
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/settle-fee", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		w.WriteHeader(http.StatusOK)
	})

	amount := decimal.RequireFromString("0.0000000001")
	require.NoError(t, session.SettleFee(context.Background(), "0xprov", "svc", amount))
	require.Equal(t, "0.0000000001", seen["amount"])
}

func TestGatewayErrorSurfacesMessage(t *testing.T) {
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "AccountNotExists"})
	})

	_, err := session.GetAccount(context.Background(), "0xprov")
	require.Error(t, err)
	require.True(t, IsAccountNotFound(err))
	require.Contains(t, err.Error(), "AccountNotExists")
}

func TestAcknowledgeProviderIdempotent(t *testing.T) {
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "already acknowledged"})
	})

	require.NoError(t, session.AcknowledgeProvider(context.Background(), "0xprov"))
}

func TestListServicesEmptyIsValid(t *testing.T) {
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"services": []any{}})
	})

	services, err := session.ListServices(context.Background())
	require.NoError(t, err)
	require.Empty(t, services)
}
