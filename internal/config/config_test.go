package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "curvetrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validConfig = `
rpc_url: "https://api.mainnet-beta.solana.com"
websocket_url: "wss://api.mainnet-beta.solana.com"
enhanced_api_url: "https://api.helius.xyz"
api_key: "file-key"
program_address: "BPFLoaderUpgradeab1e11111111111111111111111"
pool_address: "SysvarRent111111111111111111111111111111111"
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, DefaultPageLimit, cfg.PageLimit)
	assert.Equal(t, uint64(DefaultDustThreshold), cfg.DustThreshold)
	assert.Equal(t, DefaultRetries, cfg.Retries)
	assert.Equal(t, DefaultRetryDelayMs, cfg.RetryDelayMs)
	assert.Equal(t, DefaultFetchTimeout, cfg.FetchTimeoutSec)

	pool, ok := cfg.Pool()
	require.True(t, ok)
	assert.Equal(t, cfg.PoolAddress, pool.String())
	assert.Equal(t, cfg.ProgramAddress, cfg.Program().String())
}

func TestLoadConfigEnvOverridesAPIKey(t *testing.T) {
	t.Setenv("CURVETRACK_API_KEY", "env-key")

	cfg, err := LoadConfig(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.APIKey)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing rpc_url", `
enhanced_api_url: "https://api.helius.xyz"
program_address: "BPFLoaderUpgradeab1e11111111111111111111111"
`},
		{"bad websocket scheme", `
rpc_url: "https://api.mainnet-beta.solana.com"
websocket_url: "https://not-a-socket"
enhanced_api_url: "https://api.helius.xyz"
program_address: "BPFLoaderUpgradeab1e11111111111111111111111"
`},
		{"bad program address", `
rpc_url: "https://api.mainnet-beta.solana.com"
enhanced_api_url: "https://api.helius.xyz"
program_address: "not-a-pubkey"
`},
		{"zero page limit", `
rpc_url: "https://api.mainnet-beta.solana.com"
enhanced_api_url: "https://api.helius.xyz"
program_address: "BPFLoaderUpgradeab1e11111111111111111111111"
page_limit: 0
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigOptionalPool(t *testing.T) {
	body := `
rpc_url: "https://api.mainnet-beta.solana.com"
enhanced_api_url: "https://api.helius.xyz"
program_address: "BPFLoaderUpgradeab1e11111111111111111111111"
`
	cfg, err := LoadConfig(writeConfig(t, body))
	require.NoError(t, err)

	_, ok := cfg.Pool()
	assert.False(t, ok)
}
