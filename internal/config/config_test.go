package config_test

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/unite-defi/swapd/internal/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SWAPD_DATADIR", t.TempDir())
	t.Setenv("SWAPD_EVM_RPC_URL", "http://localhost:8545")
	t.Setenv("SWAPD_EVM_HTLC_CONTRACT", "0x3333333333333333333333333333333333333333")
	t.Setenv("SWAPD_EVM_PRIVATE_KEY", "deadbeef")
	t.Setenv("SWAPD_MNEMONIC", "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "badger", cfg.DbType)
	require.EqualValues(t, 7300, cfg.HTTPPort)
	require.Equal(t, "mainnet", cfg.Network)
	require.Equal(t, "https://blockstream.info/api", cfg.EsploraURL)
	require.Equal(t, 30*time.Second, cfg.PollIntervalDuration())
	require.Equal(t, 24*time.Hour, cfg.ResponderWindowDuration())
	require.Equal(t, 24*time.Hour, cfg.SafetyMarginDuration())
	require.Equal(t, time.Minute, cfg.QuoteTTLDuration())

	params, err := cfg.NetworkParams()
	require.NoError(t, err)
	require.Equal(t, &chaincfg.MainNetParams, params)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SWAPD_NETWORK", "regtest")
	t.Setenv("SWAPD_HTTP_PORT", "9000")
	t.Setenv("SWAPD_RESPONDER_WINDOW", "3600")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	require.EqualValues(t, 9000, cfg.HTTPPort)
	require.Equal(t, time.Hour, cfg.ResponderWindowDuration())

	params, err := cfg.NetworkParams()
	require.NoError(t, err)
	require.Equal(t, &chaincfg.RegressionNetParams, params)
}

func TestLoadConfigMissingRequired(t *testing.T) {
	t.Setenv("SWAPD_DATADIR", t.TempDir())
	t.Setenv("SWAPD_EVM_RPC_URL", "")
	t.Setenv("SWAPD_EVM_HTLC_CONTRACT", "")
	t.Setenv("SWAPD_EVM_PRIVATE_KEY", "")
	t.Setenv("SWAPD_MNEMONIC", "")

	_, err := config.LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigUnknownNetwork(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SWAPD_NETWORK", "signet")

	_, err := config.LoadConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown network")
}
