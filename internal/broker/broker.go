// Package broker is a client for the serving-broker gateway, the external
// collaborator that owns request signing, ledger accounts and fee settlement.
// No signing or verification happens in this process; the gateway holds that
// capability and this package only marshals calls to it.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ogchat/ogchat/internal/types"
)

// Opts for the broker gateway.
type Opts struct {
	BaseURL string
	Timeout time.Duration
}

// Session is a broker scoped to one wallet address. It is constructed from the
// live signer on connect and passed explicitly to every consumer; reconnecting
// means building a new session, never rehydrating a cached one.
type Session struct {
	opts         *Opts
	ownerAddress string
	httpClient   *http.Client
}

// NewSession instantiates a broker session for the given wallet address.
func NewSession(opts *Opts, ownerAddress string, options ...any) *Session {
	httpClient := &http.Client{Timeout: opts.Timeout}
	for _, option := range options {
		switch t := option.(type) {
		case *http.Client:
			httpClient = t
		default:
			panic(fmt.Errorf("unknown option type %T", option))
		}
	}
	return &Session{
		opts:         opts,
		ownerAddress: ownerAddress,
		httpClient:   httpClient,
	}
}

// OwnerAddress returns the wallet address this session signs for.
func (s *Session) OwnerAddress() string { return s.ownerAddress }

// ListServices returns every service registered with the serving network.
// An empty list is a valid response.
func (s *Session) ListServices(ctx context.Context) ([]*types.ServiceDescriptor, error) {
	var response struct {
		Services []*types.ServiceDescriptor `json:"services"`
	}
	if err := s.do(ctx, http.MethodGet, "/v1/services", nil, &response); err != nil {
		return nil, errors.Wrap(err, "listing services")
	}
	return response.Services, nil
}

// GetServiceMetadata resolves a provider to its serving endpoint and model id.
func (s *Session) GetServiceMetadata(ctx context.Context, providerID string) (endpoint, model string, err error) {
	var response struct {
		Endpoint string `json:"endpoint"`
		Model    string `json:"model"`
	}
	path := fmt.Sprintf("/v1/services/%s/metadata", url.PathEscape(providerID))
	if err := s.do(ctx, http.MethodGet, path, nil, &response); err != nil {
		return "", "", errors.Wrap(err, "getting service metadata")
	}
	return response.Endpoint, response.Model, nil
}

// AcknowledgeProvider records the one-time provider-signer acknowledgment.
// Acknowledging twice is a no-op.
func (s *Session) AcknowledgeProvider(ctx context.Context, providerID string) error {
	path := fmt.Sprintf("/v1/providers/%s/acknowledge", url.PathEscape(providerID))
	request := map[string]string{"user": s.ownerAddress}
	err := s.do(ctx, http.MethodPost, path, request, nil)
	if err != nil && IsAlreadyAcknowledged(err) {
		return nil
	}
	return errors.Wrap(err, "acknowledging provider")
}

// GetRequestHeaders derives fresh payment-proof headers bound to the exact
// payload and the account's current nonce. Headers are single-use: a new
// payload requires a new call.
func (s *Session) GetRequestHeaders(ctx context.Context, providerID, serviceName, content string) (map[string]string, error) {
	request := map[string]string{
		"user":     s.ownerAddress,
		"provider": providerID,
		"service":  serviceName,
		"content":  content,
	}
	var response struct {
		Headers map[string]string `json:"headers"`
	}
	if err := s.do(ctx, http.MethodPost, "/v1/request-headers", request, &response); err != nil {
		return nil, errors.Wrap(err, "getting request headers")
	}
	return response.Headers, nil
}

// SettleFee commits an owed fee (major currency units) against the ledger.
func (s *Session) SettleFee(ctx context.Context, providerID, serviceName string, amount decimal.Decimal) error {
	request := map[string]string{
		"user":     s.ownerAddress,
		"provider": providerID,
		"service":  serviceName,
		"amount":   amount.String(),
	}
	if err := s.do(ctx, http.MethodPost, "/v1/settle-fee", request, nil); err != nil {
		return errors.Wrap(err, "settling fee")
	}
	return nil
}

// VerifyResponse checks the provider's signature over a completion.
func (s *Session) VerifyResponse(ctx context.Context, providerID, serviceName, content, chatID string) (bool, error) {
	request := map[string]string{
		"user":     s.ownerAddress,
		"provider": providerID,
		"service":  serviceName,
		"content":  content,
		"chatId":   chatID,
	}
	var response struct {
		Valid bool `json:"valid"`
	}
	if err := s.do(ctx, http.MethodPost, "/v1/verify-response", request, &response); err != nil {
		return false, errors.Wrap(err, "verifying response")
	}
	return response.Valid, nil
}

// GetAccount fetches the ledger for this user against a provider.
func (s *Session) GetAccount(ctx context.Context, providerID string) (*types.AccountLedger, error) {
	path := fmt.Sprintf("/v1/accounts/%s?user=%s", url.PathEscape(providerID), url.QueryEscape(s.ownerAddress))
	ledger := &types.AccountLedger{}
	if err := s.do(ctx, http.MethodGet, path, nil, ledger); err != nil {
		return nil, errors.Wrap(err, "getting account")
	}
	return ledger, nil
}

// AddAccount creates a ledger account against a provider with an initial
// balance in major currency units.
func (s *Session) AddAccount(ctx context.Context, providerID string, initialBalance decimal.Decimal) error {
	request := map[string]string{
		"user":     s.ownerAddress,
		"provider": providerID,
		"amount":   initialBalance.String(),
	}
	if err := s.do(ctx, http.MethodPost, "/v1/accounts", request, nil); err != nil {
		return errors.Wrap(err, "adding account")
	}
	return nil
}

// Deposit adds funds to an existing ledger account.
func (s *Session) Deposit(ctx context.Context, providerID string, amount decimal.Decimal) error {
	path := fmt.Sprintf("/v1/accounts/%s/deposit", url.PathEscape(providerID))
	request := map[string]string{
		"user":   s.ownerAddress,
		"amount": amount.String(),
	}
	if err := s.do(ctx, http.MethodPost, path, request, nil); err != nil {
		return errors.Wrap(err, "depositing funds")
	}
	return nil
}

// GatewayError is a non-2xx response from the broker gateway.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("broker gateway: %s (status %d)", e.Message, e.StatusCode)
}

// IsAccountNotFound reports whether the error is the gateway's missing-account
// rejection, which callers treat as "create an account first".
func IsAccountNotFound(err error) bool {
	gatewayError := &GatewayError{}
	return errors.As(err, &gatewayError) && gatewayError.StatusCode == http.StatusNotFound
}

// IsAlreadyAcknowledged reports whether a provider acknowledgment already exists.
func IsAlreadyAcknowledged(err error) bool {
	gatewayError := &GatewayError{}
	return errors.As(err, &gatewayError) && gatewayError.StatusCode == http.StatusConflict
}

func (s *Session) do(ctx context.Context, method, path string, requestBody, responseOut any) error {
	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return errors.Wrap(err, "marshaling request")
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, s.opts.BaseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		return errors.Wrap(err, "calling gateway")
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		var gatewayResponse struct {
			Error string `json:"error"`
		}
		message := response.Status
		if err := json.NewDecoder(response.Body).Decode(&gatewayResponse); err == nil && gatewayResponse.Error != "" {
			message = gatewayResponse.Error
		}
		return &GatewayError{StatusCode: response.StatusCode, Message: message}
	}

	if responseOut == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(responseOut); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}
