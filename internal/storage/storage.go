// Package storage is a client for the storage network's indexer, which
// content-addresses uploaded blobs by their Merkle root. The indexer owns the
// upload protocol and root computation; this package moves bytes.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Ops distinguish "could not save" from "could not load" in user-facing copy.
const (
	OpSave = "save"
	OpLoad = "load"
)

// Error is a storage upload or download failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Op == OpSave {
		return fmt.Sprintf("could not save to storage network: %v", e.Err)
	}
	return fmt.Sprintf("could not load from storage network: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Opts for the indexer.
type Opts struct {
	BaseURL string
	Timeout time.Duration
}

// Client for the storage indexer.
type Client struct {
	opts       *Opts
	httpClient *http.Client
}

// New indexer client.
func New(opts *Opts, options ...any) *Client {
	httpClient := &http.Client{Timeout: opts.Timeout}
	for _, option := range options {
		switch t := option.(type) {
		case *http.Client:
			httpClient = t
		default:
			panic(fmt.Errorf("unknown option type %T", option))
		}
	}
	return &Client{opts: opts, httpClient: httpClient}
}

// Upload submits a file's bytes to the storage network and returns the content
// root hash and the upload transaction acknowledgment. Identical bytes always
// yield the same root hash.
func (c *Client) Upload(ctx context.Context, path string) (rootHash, tx string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", &Error{Op: OpSave, Err: errors.Wrap(err, "reading source file")}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/v1/files", bytes.NewReader(data))
	if err != nil {
		return "", "", &Error{Op: OpSave, Err: err}
	}
	request.Header.Set("Content-Type", "application/octet-stream")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", "", &Error{Op: OpSave, Err: err}
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return "", "", &Error{Op: OpSave, Err: errors.Errorf("indexer returned %s", response.Status)}
	}

	var uploadResponse struct {
		RootHash string `json:"rootHash"`
		Tx       string `json:"tx"`
	}
	if err := json.NewDecoder(response.Body).Decode(&uploadResponse); err != nil {
		return "", "", &Error{Op: OpSave, Err: errors.Wrap(err, "decoding upload response")}
	}
	if uploadResponse.RootHash == "" {
		return "", "", &Error{Op: OpSave, Err: errors.New("indexer returned no root hash")}
	}
	return uploadResponse.RootHash, uploadResponse.Tx, nil
}

// Download fetches the blob addressed by rootHash into the given path.
func (c *Client) Download(ctx context.Context, rootHash, path string) error {
	endpoint := fmt.Sprintf("%s/v1/files/%s", c.opts.BaseURL, url.PathEscape(rootHash))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &Error{Op: OpLoad, Err: err}
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return &Error{Op: OpLoad, Err: err}
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return &Error{Op: OpLoad, Err: errors.Errorf("indexer returned %s for %s", response.Status, rootHash)}
	}

	file, err := os.Create(path)
	if err != nil {
		return &Error{Op: OpLoad, Err: errors.Wrap(err, "creating destination file")}
	}
	defer file.Close()
	if _, err := io.Copy(file, response.Body); err != nil {
		return &Error{Op: OpLoad, Err: errors.Wrap(err, "writing destination file")}
	}
	return nil
}
