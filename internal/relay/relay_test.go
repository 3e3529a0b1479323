package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestRelayForwardsHeadersAndPrompt(t *testing.T) {
	var seenHeaders http.Header
	var seenBody struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		seenHeaders = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seenBody))
		json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-1",
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hi there"}},
			},
		})
	}))
	defer server.Close()

	client := New(5 * time.Second)
	headers := map[string]string{"X-Nonce": "42", "X-Signature": "sig"}
	completion, err := client.Relay(context.Background(), server.URL, "llama-3", "Hello", headers)
	require.NoError(t, err)
	require.Equal(t, "hi there", completion.Content)
	require.Equal(t, "chatcmpl-1", completion.ID)
	require.Equal(t, "42", seenHeaders.Get("X-Nonce"))
	require.Equal(t, "sig", seenHeaders.Get("X-Signature"))
	require.Equal(t, "llama-3", seenBody.Model)
	require.Len(t, seenBody.Messages, 1)
	require.Equal(t, "user", seenBody.Messages[0].Role)
	require.Equal(t, "Hello", seenBody.Messages[0].Content)
}

func TestRelayNormalizesStringError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "Please use 'settleFee' to settle the fee, expected 0.0000000001 A0GI",
		})
	}))
	defer server.Close()

	client := New(5 * time.Second)
	_, err := client.Relay(context.Background(), server.URL, "llama-3", "Hello", nil)
	require.Error(t, err)

	upstreamError := &UpstreamError{}
	require.True(t, errors.As(err, &upstreamError))
	require.Equal(t, http.StatusPaymentRequired, upstreamError.StatusCode)
	require.Contains(t, upstreamError.Message, "expected 0.0000000001 A0GI")
}

func TestRelayNormalizesObjectError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model overloaded", "type": "server_error"},
		})
	}))
	defer server.Close()

	client := New(5 * time.Second)
	_, err := client.Relay(context.Background(), server.URL, "llama-3", "Hello", nil)

	upstreamError := &UpstreamError{}
	require.True(t, errors.As(err, &upstreamError))
	require.Equal(t, http.StatusInternalServerError, upstreamError.StatusCode)
	require.Equal(t, "model overloaded", upstreamError.Message)
}

func TestRelayTransportFailureIsNotUpstreamError(t *testing.T) {
	client := New(time.Second)
	_, err := client.Relay(context.Background(), "http://127.0.0.1:1", "llama-3", "Hello", nil)
	require.Error(t, err)
	upstreamError := &UpstreamError{}
	require.False(t, errors.As(err, &upstreamError))
}
