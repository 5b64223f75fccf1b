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
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Rebalance.CallbackInterval)
	assert.Equal(t, 24*time.Hour, cfg.Rebalance.OperationTTL)
	assert.Contains(t, cfg.Database.URL(), "postgres://")
}

func TestParseChains(t *testing.T) {
	raw := `[{"chainId":10,"rpcUrl":"http://localhost:8545","ownerAddress":"0xabc",
		"assets":[{"symbol":"USDC","address":"0xusdc","decimals":6,"tickerHash":"0xt1"}]}]`
	chains, err := ParseChains([]byte(raw))
	require.NoError(t, err)
	require.Len(t, chains, 1)

	c := chains[10]
	assert.Equal(t, "0xabc", c.Recipient(), "EOA when no Safe configured")

	asset, ok := c.AssetByTicker("0xt1")
	require.True(t, ok)
	assert.Equal(t, uint8(6), asset.Decimals)

	_, ok = c.AssetByTicker("0xmissing")
	assert.False(t, ok)
}

func TestParseChainsRejectsMissingID(t *testing.T) {
	_, err := ParseChains([]byte(`[{"rpcUrl":"http://x"}]`))
	assert.Error(t, err)
}

func TestParseRoutes(t *testing.T) {
	raw := `[{"origin":10,"destination":1,"asset":"0xusdc",
		"preferences":["cctpv1","binance"],"slippagesDbps":[1000,2000],
		"reserve":"5000000000000000000"}]`
	routes, err := ParseRoutes([]byte(raw))
	require.NoError(t, err)
	require.Len(t, routes, 1)

	r := routes[0]
	assert.False(t, r.IsSwapRoute())
	assert.Equal(t, "5000000000000000000", r.Reserve().String())
	assert.Equal(t, "0", r.MinSwapAmount().String())
}

func TestParseRoutesValidation(t *testing.T) {
	_, err := ParseRoutes([]byte(`[{"origin":10,"destination":1,"asset":"0xusdc",
		"preferences":["cctpv1"],"slippagesDbps":[1000,2000]}]`))
	assert.Error(t, err, "preference/slippage length mismatch")

	_, err = ParseRoutes([]byte(`[{"origin":10,"destination":1,"asset":"0xusdc",
		"preferences":[],"slippagesDbps":[],"reserve":"-5"}]`))
	assert.Error(t, err, "negative reserve")
}
