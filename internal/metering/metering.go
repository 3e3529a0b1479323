// Package metering drives the paid request lifecycle: sign headers, send,
// detect a fee-required rejection, settle the quoted fee, retry exactly once.
package metering

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ogchat/ogchat/internal/relay"
	"github.com/ogchat/ogchat/internal/types"
)

// Broker is the slice of the broker session the metering client needs.
type Broker interface {
	GetRequestHeaders(ctx context.Context, providerID, serviceName, content string) (map[string]string, error)
	SettleFee(ctx context.Context, providerID, serviceName string, amount decimal.Decimal) error
	VerifyResponse(ctx context.Context, providerID, serviceName, content, chatID string) (bool, error)
}

// Relayer forwards a prepared request to the serving endpoint.
type Relayer interface {
	Relay(ctx context.Context, endpoint, modelID, prompt string, headers map[string]string) (*relay.Completion, error)
}

// FeeRequiredError reports that the provider rejected the request pending a
// fee settlement. It carries a typed quote instead of asking callers to scan
// the upstream message themselves.
type FeeRequiredError struct {
	Quote *types.FeeQuote
}

func (e *FeeRequiredError) Error() string {
	return fmt.Sprintf("fee required: %s A0GI owed to %s", e.Quote.RequiredAmount, e.Quote.ProviderID)
}

// SettlementError reports a failed ledger settlement. The original message
// should be left in a needs-settlement state, not dropped.
type SettlementError struct {
	Quote *types.FeeQuote
	Err   error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settling %s A0GI with %s: %v", e.Quote.RequiredAmount, e.Quote.ProviderID, e.Err)
}

func (e *SettlementError) Unwrap() error { return e.Err }

// feePattern matches the amount in a provider's fee-required message, e.g.
// "Please use 'settleFee' ... expected 0.000000000000005000 A0GI".
var feePattern = regexp.MustCompile(`expected ([0-9.]+) A0GI`)

// ParseRequiredFee extracts the required fee from a free-text upstream error.
// A miss is explicit: callers must not treat an unparseable message as a quote.
func ParseRequiredFee(message string) (decimal.Decimal, bool) {
	matches := feePattern.FindStringSubmatch(message)
	if matches == nil {
		return decimal.Decimal{}, false
	}
	amount, err := decimal.NewFromString(matches[1])
	if err != nil {
		return decimal.Decimal{}, false
	}
	return amount, true
}

// Result of a completed, settled request.
type Result struct {
	ID      string
	Content string
	// Verified is the provider-signature check outcome; nil when verification
	// could not be performed.
	Verified *bool
}

// Client implements the fee metering state machine over a broker session and
// a relay.
type Client struct {
	broker  Broker
	relayer Relayer
}

// New metering client.
func New(broker Broker, relayer Relayer) *Client {
	return &Client{broker: broker, relayer: relayer}
}

// PrepareRequest derives fresh signed headers bound to the payload. Headers
// are never reusable across payloads; callers must re-prepare per send.
func (c *Client) PrepareRequest(ctx context.Context, providerID, serviceName, payload string) (map[string]string, error) {
	headers, err := c.broker.GetRequestHeaders(ctx, providerID, serviceName, payload)
	if err != nil {
		return nil, errors.Wrap(err, "preparing request headers")
	}
	return headers, nil
}

// Send prepares headers and relays the prompt once. A 402 carrying a parseable
// amount returns *FeeRequiredError; a 402 without one degrades to a generic
// failure with no settlement offered. Other failures surface unretried.
func (c *Client) Send(ctx context.Context, service *types.ServiceDescriptor, prompt string) (*Result, error) {
	headers, err := c.PrepareRequest(ctx, service.ProviderID, service.DisplayName, prompt)
	if err != nil {
		return nil, err
	}

	completion, err := c.relayer.Relay(ctx, service.EndpointURL, service.ModelID, prompt, headers)
	if err != nil {
		upstreamError := &relay.UpstreamError{}
		if errors.As(err, &upstreamError) && upstreamError.StatusCode == http.StatusPaymentRequired {
			amount, ok := ParseRequiredFee(upstreamError.Message)
			if !ok {
				return nil, errors.Errorf("fee required but amount unparseable: %s", upstreamError.Message)
			}
			return nil, &FeeRequiredError{Quote: &types.FeeQuote{
				ProviderID:     service.ProviderID,
				ServiceName:    service.DisplayName,
				RequiredAmount: amount,
			}}
		}
		return nil, errors.Wrap(err, "sending request")
	}

	result := &Result{ID: completion.ID, Content: completion.Content}
	if valid, err := c.broker.VerifyResponse(ctx, service.ProviderID, service.DisplayName, completion.Content, completion.ID); err == nil {
		result.Verified = &valid
	}
	return result, nil
}

// Settle commits the quoted fee against the ledger.
func (c *Client) Settle(ctx context.Context, quote *types.FeeQuote) error {
	if err := c.broker.SettleFee(ctx, quote.ProviderID, quote.ServiceName, quote.RequiredAmount); err != nil {
		return &SettlementError{Quote: quote, Err: err}
	}
	return nil
}

// SendWithSettlement runs the full state machine:
//
//	Idle -> HeadersPrepared -> Sent -> Completed
//	                             \-> FeeRequired -> Settling -> Settled -> Sent(retry)
//	                                                       \-> SettlementFailed
//
// confirm is consulted before settling; a nil confirm settles unconditionally.
// At most one retry happens per call: a second fee rejection after settlement
// is a terminal failure.
func (c *Client) SendWithSettlement(ctx context.Context, service *types.ServiceDescriptor, prompt string, confirm func(*types.FeeQuote) bool) (*Result, error) {
	result, err := c.Send(ctx, service, prompt)
	if err == nil {
		return result, nil
	}

	feeRequired := &FeeRequiredError{}
	if !errors.As(err, &feeRequired) {
		return nil, err
	}
	if confirm != nil && !confirm(feeRequired.Quote) {
		return nil, err
	}
	if err := c.Settle(ctx, feeRequired.Quote); err != nil {
		return nil, err
	}

	// Retry exactly once, with freshly generated headers.
	result, err = c.Send(ctx, service, prompt)
	if err == nil {
		return result, nil
	}
	if errors.As(err, &feeRequired) {
		return nil, errors.Errorf("fee still required after settlement of %s A0GI", feeRequired.Quote.RequiredAmount)
	}
	return nil, err
}
