package types

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPromptFirstMessageIsVerbatim(t *testing.T) {
	var transcript Transcript
	require.Equal(t, "Hello", transcript.Prompt("Hello"))
}

func TestPromptWithHistoryWrapsInput(t *testing.T) {
	transcript := Transcript{
		{Role: RoleUser, Content: "What is 0G?"},
		{Role: RoleAssistant, Content: "A decentralized AI network."},
	}

	prompt := transcript.Prompt("Hello")
	require.True(t, strings.HasSuffix(prompt, "\nUSER: Hello"), "prompt = %q", prompt)
	require.Contains(t, prompt, "USER: What is 0G?")
	require.Contains(t, prompt, "ASSISTANT: A decentralized AI network.")
	// The preamble comes before the new input.
	require.Less(t, strings.Index(prompt, "What is 0G?"), strings.LastIndex(prompt, "Hello"))
}

func TestAppendKeepsTimestampsMonotonic(t *testing.T) {
	later := time.Now().UTC().Format(time.RFC3339Nano)
	earlier := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339Nano)

	var transcript Transcript
	transcript = transcript.Append(&ChatMessage{Role: RoleUser, Content: "a", Timestamp: later})
	transcript = transcript.Append(&ChatMessage{Role: RoleUser, Content: "b", Timestamp: earlier})

	require.Len(t, transcript, 2)
	require.GreaterOrEqual(t, transcript[1].Timestamp, transcript[0].Timestamp)
}

func TestAppendAllowsConsecutiveUserMessages(t *testing.T) {
	var transcript Transcript
	transcript = transcript.Append(NewUserMessage("first"))
	transcript = transcript.Append(NewUserMessage("second"))
	require.Equal(t, RoleUser, transcript[0].Role)
	require.Equal(t, RoleUser, transcript[1].Role)
}

func TestBackupRecordRoundTrip(t *testing.T) {
	verified := true
	record := &BackupRecord{
		Title: "my chat",
		Transcript: Transcript{
			{Role: RoleUser, Content: "hi", Timestamp: "2026-01-02T03:04:05Z"},
			{Role: RoleAssistant, Content: "hello", Verified: &verified, Timestamp: "2026-01-02T03:04:06Z"},
		},
	}

	bytes, err := json.Marshal(record)
	require.NoError(t, err)
	decoded := &BackupRecord{}
	require.NoError(t, json.Unmarshal(bytes, decoded))
	require.Equal(t, record, decoded)
}

func TestLedgerAvailable(t *testing.T) {
	ledger := &AccountLedger{
		Balance:       big.NewInt(1000),
		LockedBalance: big.NewInt(300),
	}
	require.Equal(t, big.NewInt(700), ledger.Available())

	// Nil fields behave as zero.
	require.Equal(t, big.NewInt(0), (&AccountLedger{}).Available())
}
