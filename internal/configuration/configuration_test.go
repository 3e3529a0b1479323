package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseInitializesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	config, err := Parse(path)
	require.NoError(t, err)
	require.Equal(t, defaultConfig.EvmRPC, config.EvmRPC)
	require.Equal(t, defaultConfig.Serve.Port, config.Serve.Port)

	// The file must now exist on disk.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestParseMergesDefaultsUnderFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"broker_url": "http://broker.example", "serve": {"port": 9999}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := Parse(path)
	require.NoError(t, err)
	// File values win.
	require.Equal(t, "http://broker.example", config.BrokerURL)
	require.Equal(t, 9999, config.Serve.Port)
	// Unset values fall back to defaults.
	require.Equal(t, defaultConfig.IndexerRPC, config.IndexerRPC)
	require.Equal(t, defaultConfig.RequestTimeout, config.RequestTimeout)
}

func TestParseRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Parse(path)
	require.Error(t, err)
}
