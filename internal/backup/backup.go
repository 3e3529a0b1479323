// Package backup implements the transcript backup round trip: canonical JSON
// to the storage network, root hash to the on-chain registry, and back.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/scylladb/go-set/strset"

	"github.com/ogchat/ogchat/internal/file"
	"github.com/ogchat/ogchat/internal/types"
)

const fetchConcurrency = 4

// Store is the slice of the storage indexer client the backup flow needs.
type Store interface {
	Upload(ctx context.Context, path string) (rootHash, tx string, err error)
	Download(ctx context.Context, rootHash, path string) error
}

// Registry is the slice of the on-chain registry the backup flow needs.
type Registry interface {
	AddRootHash(ctx context.Context, rootHash string) (string, error)
	RootHashesForUser(ctx context.Context, user common.Address) ([]string, error)
}

// BlobCache caches downloaded blobs by root hash. Content addressing makes
// entries immutable, so there is no invalidation.
type BlobCache interface {
	Get(ctx context.Context, rootHash string) ([]byte, bool)
	Set(ctx context.Context, rootHash string, data []byte)
}

// NotRecordedError reports the awkward half-success: the transcript is safely
// stored and retrievable by its root hash, but the on-chain append failed, so
// nothing references it.
type NotRecordedError struct {
	RootHash string
	Err      error
}

func (e *NotRecordedError) Error() string {
	return fmt.Sprintf("backup saved to storage (root hash %s) but not recorded on-chain: %v", e.RootHash, e.Err)
}

func (e *NotRecordedError) Unwrap() error { return e.Err }

// Uploader backs transcripts up.
type Uploader struct {
	store    Store
	registry Registry
}

// NewUploader instantiates an uploader.
func NewUploader(store Store, registry Registry) *Uploader {
	return &Uploader{store: store, registry: registry}
}

// Backup serializes {title, transcript} to canonical JSON, uploads it to the
// storage network, and appends the resulting root hash to the caller's
// on-chain list. Byte-identical content always yields the same root hash, and
// the chain list is not deduplicated here.
//
// An upload failure aborts before the on-chain append. The inverse case,
// stored but unrecorded, surfaces as *NotRecordedError carrying the root hash.
func (u *Uploader) Backup(ctx context.Context, title string, transcript types.Transcript) (string, error) {
	record := &types.BackupRecord{Title: title, Transcript: transcript}
	data, err := json.Marshal(record)
	if err != nil {
		return "", errors.Wrap(err, "marshaling backup record")
	}

	// The indexer client wants a filesystem source; the copy is transient.
	path, err := file.WriteTemp(fmt.Sprintf("backup-%d.json", time.Now().UnixNano()), data)
	if err != nil {
		return "", errors.Wrap(err, "staging backup")
	}
	defer os.Remove(path)

	rootHash, _, err := u.store.Upload(ctx, path)
	if err != nil {
		return "", err
	}

	if _, err := u.registry.AddRootHash(ctx, rootHash); err != nil {
		return rootHash, &NotRecordedError{RootHash: rootHash, Err: err}
	}
	return rootHash, nil
}

// Retriever fetches transcripts back out of the storage network.
type Retriever struct {
	store    Store
	registry Registry
	cache    BlobCache
}

// NewRetriever instantiates a retriever. cache may be nil.
func NewRetriever(store Store, registry Registry, cache BlobCache) *Retriever {
	return &Retriever{store: store, registry: registry, cache: cache}
}

// List returns the root hashes recorded for an owner, de-duplicated while
// preserving first-seen order. The chain list may contain duplicates from
// repeated backups of unchanged content.
func (r *Retriever) List(ctx context.Context, owner common.Address) ([]string, error) {
	hashes, err := r.registry.RootHashesForUser(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "reading registry")
	}

	seen := strset.NewWithSize(len(hashes))
	deduplicated := make([]string, 0, len(hashes))
	for _, hash := range hashes {
		if seen.Has(hash) {
			continue
		}
		seen.Add(hash)
		deduplicated = append(deduplicated, hash)
	}
	return deduplicated, nil
}

// Fetch downloads and decodes a single backup.
func (r *Retriever) Fetch(ctx context.Context, rootHash string) (*types.BackupRecord, error) {
	data, err := r.fetchBytes(ctx, rootHash)
	if err != nil {
		return nil, err
	}

	record := &types.BackupRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, errors.Wrapf(err, "parsing backup %s", rootHash)
	}
	record.RootHash = rootHash
	return record, nil
}

// FetchAll retrieves a batch of backups. Each fetch is independent: a hash
// that cannot be downloaded or parsed is logged and skipped, never failing
// the batch. Results preserve the input order, filtered by success.
func (r *Retriever) FetchAll(ctx context.Context, rootHashes []string) []*types.BackupRecord {
	results := make([]*types.BackupRecord, len(rootHashes))
	semaphore := make(chan struct{}, fetchConcurrency)
	var wg sync.WaitGroup
	for i, rootHash := range rootHashes {
		wg.Add(1)
		go func(i int, rootHash string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			record, err := r.Fetch(ctx, rootHash)
			if err != nil {
				log.Printf("skipping backup %s: %v", rootHash, err)
				return
			}
			results[i] = record
		}(i, rootHash)
	}
	wg.Wait()

	records := make([]*types.BackupRecord, 0, len(rootHashes))
	for _, record := range results {
		if record != nil {
			records = append(records, record)
		}
	}
	return records
}

func (r *Retriever) fetchBytes(ctx context.Context, rootHash string) ([]byte, error) {
	if r.cache != nil {
		if data, ok := r.cache.Get(ctx, rootHash); ok {
			return data, nil
		}
	}

	path, err := file.TempPath(fmt.Sprintf("%s.json", rootHash))
	if err != nil {
		return nil, errors.Wrap(err, "staging download")
	}
	defer os.Remove(path)

	if err := r.store.Download(ctx, rootHash, path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading downloaded backup")
	}

	if r.cache != nil {
		r.cache.Set(ctx, rootHash, data)
	}
	return data, nil
}
