package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, NetworkBitcoin, cfg.Network)
	require.Equal(t, 1, cfg.MinConfirmations)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custody.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network: signet\nmin_confirmations: 3\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, NetworkSignet, cfg.Network)
	require.Equal(t, 3, cfg.MinConfirmations)
	require.Equal(t, int64(10), cfg.DefaultFeeRate)
}

func TestElectrumServerPool(t *testing.T) {
	cfg := Default()
	cfg.Network = NetworkSignet
	require.Equal(t, SignetElectrumServers, cfg.ElectrumServerPool())
}
