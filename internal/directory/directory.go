// Package directory resolves providers to service descriptors, caching the
// broker's listing for the lifetime of a session.
package directory

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/ogchat/ogchat/internal/types"
)

// Lister is the slice of the broker session the directory needs.
type Lister interface {
	ListServices(ctx context.Context) ([]*types.ServiceDescriptor, error)
	AcknowledgeProvider(ctx context.Context, providerID string) error
}

// Directory is a session-scoped cache over the broker's service listing.
// It is fetched once and only re-queried on an explicit Refresh.
type Directory struct {
	lister Lister

	mu       sync.Mutex
	fetched  bool
	services []*types.ServiceDescriptor
}

// New directory backed by the given broker session.
func New(lister Lister) *Directory {
	return &Directory{lister: lister}
}

// List returns all known services, fetching on first use.
// An empty listing is valid: it means no services are available.
func (d *Directory) List(ctx context.Context) ([]*types.ServiceDescriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureFetchedLocked(ctx); err != nil {
		return nil, err
	}
	return d.services, nil
}

// Resolve returns the descriptor for a provider.
func (d *Directory) Resolve(ctx context.Context, providerID string) (*types.ServiceDescriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureFetchedLocked(ctx); err != nil {
		return nil, err
	}
	for _, service := range d.services {
		if service.ProviderID == providerID {
			return service, nil
		}
	}
	return nil, errors.Errorf("unknown provider (%s)", providerID)
}

// Refresh discards the cache and re-issues the list call.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetched = false
	return d.ensureFetchedLocked(ctx)
}

// AcknowledgeProvider records the once-per-user provider acknowledgment
// required before using a service. Safe to call repeatedly.
func (d *Directory) AcknowledgeProvider(ctx context.Context, providerID string) error {
	return d.lister.AcknowledgeProvider(ctx, providerID)
}

func (d *Directory) ensureFetchedLocked(ctx context.Context) error {
	if d.fetched {
		return nil
	}
	services, err := d.lister.ListServices(ctx)
	if err != nil {
		return errors.Wrap(err, "fetching service listing")
	}
	d.services = services
	d.fetched = true
	return nil
}
