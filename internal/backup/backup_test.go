package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogchat/ogchat/internal/types"
)

// fakeStore content-addresses uploads with sha256, like the real network.
type fakeStore struct {
	mu          sync.Mutex
	blobs       map[string][]byte
	uploadErr   error
	downloadErr map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: map[string][]byte{}, downloadErr: map[string]error{}}
}

func (f *fakeStore) Upload(ctx context.Context, path string) (string, string, error) {
	if f.uploadErr != nil {
		return "", "", f.uploadErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	sum := sha256.Sum256(data)
	rootHash := "0x" + hex.EncodeToString(sum[:])
	f.mu.Lock()
	f.blobs[rootHash] = data
	f.mu.Unlock()
	return rootHash, "0xtx", nil
}

func (f *fakeStore) Download(ctx context.Context, rootHash, path string) error {
	if err := f.downloadErr[rootHash]; err != nil {
		return err
	}
	f.mu.Lock()
	data, ok := f.blobs[rootHash]
	f.mu.Unlock()
	if !ok {
		return errors.Errorf("unknown root hash %s", rootHash)
	}
	return os.WriteFile(path, data, 0644)
}

type fakeRegistry struct {
	mu     sync.Mutex
	hashes []string
	addErr error
}

func (f *fakeRegistry) AddRootHash(ctx context.Context, rootHash string) (string, error) {
	if f.addErr != nil {
		return "", f.addErr
	}
	f.mu.Lock()
	f.hashes = append(f.hashes, rootHash)
	f.mu.Unlock()
	return "0xtx", nil
}

func (f *fakeRegistry) RootHashesForUser(ctx context.Context, user common.Address) ([]string, error) {
	return f.hashes, nil
}

func sampleTranscript() types.Transcript {
	return types.Transcript{
		{Role: types.RoleUser, Content: "Hello", Timestamp: "2026-01-02T03:04:05Z"},
		{Role: types.RoleAssistant, Content: "Hi!", Timestamp: "2026-01-02T03:04:06Z"},
	}
}

func TestBackupIsIdempotentOnContent(t *testing.T) {
	store := newFakeStore()
	reg := &fakeRegistry{}
	uploader := NewUploader(store, reg)

	ctx := context.Background()
	first, err := uploader.Backup(ctx, "my chat", sampleTranscript())
	require.NoError(t, err)
	second, err := uploader.Backup(ctx, "my chat", sampleTranscript())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// The chain list still gains a duplicate entry per backup.
	assert.Equal(t, []string{first, first}, reg.hashes)
}

func TestBackupUploadFailureAbortsBeforeChainAppend(t *testing.T) {
	store := newFakeStore()
	store.uploadErr = errors.New("storage unavailable")
	reg := &fakeRegistry{}
	uploader := NewUploader(store, reg)

	_, err := uploader.Backup(context.Background(), "my chat", sampleTranscript())
	require.Error(t, err)
	assert.Empty(t, reg.hashes)
}

func TestBackupChainFailureIsNotRecordedError(t *testing.T) {
	store := newFakeStore()
	reg := &fakeRegistry{addErr: errors.New("nonce too low")}
	uploader := NewUploader(store, reg)

	rootHash, err := uploader.Backup(context.Background(), "my chat", sampleTranscript())
	notRecorded := &NotRecordedError{}
	require.True(t, errors.As(err, &notRecorded))
	// The content is retrievable; the root hash must survive the error.
	assert.NotEmpty(t, rootHash)
	assert.Equal(t, rootHash, notRecorded.RootHash)
	_, ok := store.blobs[rootHash]
	assert.True(t, ok)
}

func TestRoundTripDeepEquals(t *testing.T) {
	store := newFakeStore()
	reg := &fakeRegistry{}
	uploader := NewUploader(store, reg)
	retriever := NewRetriever(store, reg, nil)

	ctx := context.Background()
	transcript := sampleTranscript()
	rootHash, err := uploader.Backup(ctx, "my chat", transcript)
	require.NoError(t, err)

	hashes, err := retriever.List(ctx, common.Address{})
	require.NoError(t, err)
	require.Equal(t, []string{rootHash}, hashes)

	record, err := retriever.Fetch(ctx, rootHash)
	require.NoError(t, err)
	assert.Equal(t, "my chat", record.Title)
	assert.Equal(t, transcript, record.Transcript)
	assert.Equal(t, rootHash, record.RootHash)
}

func TestListDeduplicatesPreservingOrder(t *testing.T) {
	reg := &fakeRegistry{hashes: []string{"0xa", "0xb", "0xa", "0xc", "0xb"}}
	retriever := NewRetriever(newFakeStore(), reg, nil)

	hashes, err := retriever.List(context.Background(), common.Address{})
	require.NoError(t, err)
	assert.Equal(t, []string{"0xa", "0xb", "0xc"}, hashes)
}

func TestFetchAllSkipsBadHashes(t *testing.T) {
	store := newFakeStore()
	reg := &fakeRegistry{}
	uploader := NewUploader(store, reg)
	retriever := NewRetriever(store, reg, nil)

	ctx := context.Background()
	first, err := uploader.Backup(ctx, "chat one", sampleTranscript())
	require.NoError(t, err)
	second, err := uploader.Backup(ctx, "chat two", types.Transcript{
		{Role: types.RoleUser, Content: "different", Timestamp: "2026-01-03T00:00:00Z"},
	})
	require.NoError(t, err)

	records := retriever.FetchAll(ctx, []string{first, "0xdeadbeef", second})
	require.Len(t, records, 2)
	// Input order preserved, filtered by success.
	assert.Equal(t, "chat one", records[0].Title)
	assert.Equal(t, "chat two", records[1].Title)
}

func TestFetchAllSkipsUnparseableBlob(t *testing.T) {
	store := newFakeStore()
	store.blobs["0xjunk"] = []byte("not json")
	retriever := NewRetriever(store, &fakeRegistry{}, nil)

	records := retriever.FetchAll(context.Background(), []string{"0xjunk"})
	assert.Empty(t, records)
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	hits int
}

func (m *memoryCache) Get(ctx context.Context, rootHash string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[rootHash]
	if ok {
		m.hits++
	}
	return data, ok
}

func (m *memoryCache) Set(ctx context.Context, rootHash string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[rootHash] = data
}

func TestFetchUsesBlobCache(t *testing.T) {
	store := newFakeStore()
	reg := &fakeRegistry{}
	uploader := NewUploader(store, reg)
	cache := &memoryCache{data: map[string][]byte{}}
	retriever := NewRetriever(store, reg, cache)

	ctx := context.Background()
	rootHash, err := uploader.Backup(ctx, "my chat", sampleTranscript())
	require.NoError(t, err)

	_, err = retriever.Fetch(ctx, rootHash)
	require.NoError(t, err)

	// Second fetch must bypass the store entirely.
	store.downloadErr[rootHash] = errors.New("store offline")
	record, err := retriever.Fetch(ctx, rootHash)
	require.NoError(t, err)
	assert.Equal(t, "my chat", record.Title)
	assert.Equal(t, 1, cache.hits)
}

func TestCanonicalSerializationIsStable(t *testing.T) {
	record := &types.BackupRecord{Title: "t", Transcript: sampleTranscript()}
	a, err := json.Marshal(record)
	require.NoError(t, err)
	b, err := json.Marshal(record)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
