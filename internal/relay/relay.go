// Package relay forwards chat-completion requests to a provider's serving
// endpoint, carrying the signed payment-proof headers. It is a pure proxy:
// retry policy belongs to the metering client, not here.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

const defaultTimeout = 30 * time.Second

// Completion is the slice of the upstream response the rest of the system uses.
type Completion struct {
	ID      string
	Content string
}

// UpstreamError is a normalized upstream rejection: whatever error shape the
// provider returned collapses to a status code and a message.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream: %s (status %d)", e.Message, e.StatusCode)
}

// Client relays chat requests.
type Client struct {
	timeout time.Duration
}

// New relay client. A zero timeout selects the 30s default.
func New(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{timeout: timeout}
}

// relayTransport injects the signed request headers into outgoing calls and
// snapshots the body of any error response. Providers return fee-required
// errors as {"error": "<text>"}, a shape the openai client cannot decode, so
// the raw body has to be captured here.
type relayTransport struct {
	headers map[string]string
	base    http.RoundTripper

	errorStatus int
	errorBody   []byte
}

func (t *relayTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	for key, value := range t.headers {
		request.Header.Set(key, value)
	}
	response, err := t.base.RoundTrip(request)
	if err != nil || response.StatusCode < 400 {
		return response, err
	}
	body, readErr := io.ReadAll(response.Body)
	response.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	t.errorStatus = response.StatusCode
	t.errorBody = body
	response.Body = io.NopCloser(bytes.NewReader(body))
	return response, nil
}

// Relay sends the prompt to {endpoint}/chat/completions with the given headers
// and returns the first choice. Headers are bound to the payload by the broker,
// so a client is built per call rather than reused.
func (c *Client) Relay(ctx context.Context, endpoint, modelID, prompt string, headers map[string]string) (*Completion, error) {
	transport := &relayTransport{
		headers: headers,
		base:    http.DefaultTransport,
	}
	config := openai.DefaultConfig("")
	config.BaseURL = endpoint
	config.HTTPClient = &http.Client{
		Timeout:   c.timeout,
		Transport: transport,
	}
	client := openai.NewClientWithConfig(config)

	request := openai.ChatCompletionRequest{
		Model: modelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	response, err := client.CreateChatCompletion(ctx, request)
	if err != nil {
		if transport.errorStatus != 0 {
			return nil, &UpstreamError{
				StatusCode: transport.errorStatus,
				Message:    extractMessage(transport.errorBody),
			}
		}
		return nil, errors.Wrap(err, "calling upstream")
	}
	if len(response.Choices) == 0 {
		return nil, errors.Errorf("completion returned no choice: %+v", response)
	}
	return &Completion{
		ID:      response.ID,
		Content: response.Choices[0].Message.Content,
	}, nil
}

// extractMessage pulls a human-readable message out of an upstream error body,
// which may be {"error": "text"}, {"error": {"message": "text"}}, or anything.
func extractMessage(body []byte) string {
	var withString struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &withString); err == nil && withString.Error != "" {
		return withString.Error
	}
	var withObject struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &withObject); err == nil && withObject.Error.Message != "" {
		return withObject.Error.Message
	}
	return strings.TrimSpace(string(body))
}
