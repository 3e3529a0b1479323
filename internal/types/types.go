// Package types holds the domain model shared by the chat, metering and backup
// components: transcripts, service descriptors, fee quotes and ledger state.
package types

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Verified reports whether the provider's response signature checked out.
	// Only ever set on assistant messages; nil means unverified.
	Verified  *bool  `json:"verified,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewUserMessage returns a user message stamped with the current time.
func NewUserMessage(content string) *ChatMessage {
	return &ChatMessage{
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// NewAssistantMessage returns an assistant message stamped with the current time.
func NewAssistantMessage(content string, verified *bool) *ChatMessage {
	return &ChatMessage{
		Role:      RoleAssistant,
		Content:   content,
		Verified:  verified,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Transcript is an append-only ordered sequence of messages. Timestamps are
// monotonic in append order; role alternation is not enforced.
type Transcript []*ChatMessage

// Append adds a message, refusing to let timestamps move backwards.
func (t Transcript) Append(message *ChatMessage) Transcript {
	if len(t) > 0 && message.Timestamp < t[len(t)-1].Timestamp {
		message.Timestamp = t[len(t)-1].Timestamp
	}
	return append(t, message)
}

// Prompt builds the prompt for the next send. The first message of a session is
// sent verbatim; once history exists, prior exchanges are replayed in a preamble
// and the new input is appended as a final "USER:" line.
func (t Transcript) Prompt(input string) string {
	if len(t) == 0 {
		return input
	}
	var b strings.Builder
	b.WriteString("Below is the conversation so far:\n")
	for _, message := range t {
		switch message.Role {
		case RoleUser:
			fmt.Fprintf(&b, "USER: %s\n", message.Content)
		case RoleAssistant:
			fmt.Fprintf(&b, "ASSISTANT: %s\n", message.Content)
		}
	}
	fmt.Fprintf(&b, "\nUSER: %s", input)
	return b.String()
}

// ServiceDescriptor describes a provider's serving endpoint. Immutable once
// fetched for the lifetime of a session.
type ServiceDescriptor struct {
	ProviderID  string   `json:"provider"`
	DisplayName string   `json:"name"`
	ServiceType string   `json:"serviceType"`
	EndpointURL string   `json:"url"`
	InputPrice  *big.Int `json:"inputPrice"`
	OutputPrice *big.Int `json:"outputPrice"`
	UpdatedAt   int64    `json:"updatedAt"`
	ModelID     string   `json:"model"`
}

// PricePerRequest renders the input price in major currency units, the way the
// marketplace displays it.
func (s *ServiceDescriptor) PricePerRequest() decimal.Decimal {
	if s.InputPrice == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(s.InputPrice, -18)
}

// FeeQuote is the amount a provider demands before it will serve a rejected
// request. Held in memory only, until settled or abandoned.
type FeeQuote struct {
	ProviderID     string
	ServiceName    string
	RequiredAmount decimal.Decimal
}

// AccountLedger is the per-(owner, provider) on-chain account.
type AccountLedger struct {
	OwnerAddress  string   `json:"user"`
	ProviderID    string   `json:"provider"`
	Balance       *big.Int `json:"balance"`
	LockedBalance *big.Int `json:"locked"`
	PendingRefund *big.Int `json:"pendingRefund"`
	Nonce         uint64   `json:"nonce"`
}

// Available returns balance minus locked funds.
func (l *AccountLedger) Available() *big.Int {
	available := new(big.Int)
	if l.Balance != nil {
		available.Set(l.Balance)
	}
	if l.LockedBalance != nil {
		available.Sub(available, l.LockedBalance)
	}
	return available
}

// BackupRecord is a transcript as stored on the storage network, addressed by
// the Merkle root of its content.
type BackupRecord struct {
	RootHash   string     `json:"rootHash,omitempty"`
	Title      string     `json:"title"`
	Transcript Transcript `json:"transcript"`
}
