package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "tokenledger.db", cfg.DBPath)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "1000000000", cfg.InitialSupply)
	assert.Equal(t, 5*time.Second, cfg.OpTimeout)
	assert.False(t, cfg.TLSEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TOKENLEDGER_TOKEN_NAME", "Gold")
	t.Setenv("TOKENLEDGER_RATE_BURST", "3")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Gold", cfg.TokenName)
	assert.Equal(t, 3, cfg.RateBurst)
}

func TestLoadRejectsHalfTLS(t *testing.T) {
	t.Setenv("TOKENLEDGER_TLS_CERT", "cert.pem")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadTLSConfigMissingFiles(t *testing.T) {
	_, err := LoadTLSConfig("missing.pem", "missing.key")
	require.Error(t, err)
}
