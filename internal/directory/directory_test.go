package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ogchat/ogchat/internal/types"
)

type fakeLister struct {
	services []*types.ServiceDescriptor
	calls    int
}

func (f *fakeLister) ListServices(ctx context.Context) ([]*types.ServiceDescriptor, error) {
	f.calls++
	return f.services, nil
}

func (f *fakeLister) AcknowledgeProvider(ctx context.Context, providerID string) error {
	return nil
}

func TestListFetchesOncePerSession(t *testing.T) {
	lister := &fakeLister{services: []*types.ServiceDescriptor{{ProviderID: "0xa"}}}
	d := New(lister)

	ctx := context.Background()
	_, err := d.List(ctx)
	require.NoError(t, err)
	_, err = d.List(ctx)
	require.NoError(t, err)
	_, err = d.Resolve(ctx, "0xa")
	require.NoError(t, err)
	require.Equal(t, 1, lister.calls)
}

func TestRefreshReissuesListCall(t *testing.T) {
	lister := &fakeLister{}
	d := New(lister)

	ctx := context.Background()
	_, err := d.List(ctx)
	require.NoError(t, err)

	lister.services = []*types.ServiceDescriptor{{ProviderID: "0xb"}}
	require.NoError(t, d.Refresh(ctx))

	service, err := d.Resolve(ctx, "0xb")
	require.NoError(t, err)
	require.Equal(t, "0xb", service.ProviderID)
	require.Equal(t, 2, lister.calls)
}

func TestResolveUnknownProvider(t *testing.T) {
	d := New(&fakeLister{})
	_, err := d.Resolve(context.Background(), "0xmissing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown provider")
}

func TestEmptyListingIsValid(t *testing.T) {
	d := New(&fakeLister{})
	services, err := d.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, services)
}
