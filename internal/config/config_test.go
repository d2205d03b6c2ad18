package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"p2p_trade/internal/cryptographic/dh"
	"p2p_trade/internal/protocol/envelope"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func facilitatorHex(t *testing.T) string {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return dh.PubKeyHex(priv)
}

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "p2ptrade.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileWithDefaults(t *testing.T) {
	fac := facilitatorHex(t)
	path := writeConfig(t, `
relays = ["wss://relay.one", "wss://relay.two"]
facilitator = "`+fac+`"
pow = 4
request_timeout = "20s"

[attachment]
max_bytes = 1048576
`)

	c, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://relay.one", "wss://relay.two"}, c.Relays)
	assert.Equal(t, fac, c.Facilitator)
	assert.Equal(t, 4, c.PoW)
	assert.Equal(t, 20*time.Second, c.RequestTimeout)
	assert.Equal(t, 10*time.Second, c.PollInterval)
	assert.EqualValues(t, 1<<20, c.Attachment.MaxBytes)
	assert.Equal(t, 30*time.Second, c.Attachment.Timeout)
	assert.Equal(t, "p2ptrade", c.Mongo.Database)

	mode, err := c.EnvelopeMode()
	require.NoError(t, err)
	assert.Equal(t, envelope.AnonymousWrap, mode)
}

func TestEnvironmentOverrides(t *testing.T) {
	fac := facilitatorHex(t)
	path := writeConfig(t, `
relays = ["wss://relay.one"]
facilitator = "`+fac+`"
`)
	t.Setenv("P2PTRADE_POW", "8")
	t.Setenv("P2PTRADE_REDIS_ADDR", "cache:6380")
	t.Setenv("P2PTRADE_MODE", "signed-wrap")

	c, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 8, c.PoW)
	assert.Equal(t, "cache:6380", c.Redis.Addr)
	mode, err := c.EnvelopeMode()
	require.NoError(t, err)
	assert.Equal(t, envelope.SignedWrap, mode)
}

func TestValidate(t *testing.T) {
	fac := facilitatorHex(t)
	cases := map[string]string{
		"no relays":    `facilitator = "` + fac + `"`,
		"http relay":   `relays = ["https://relay.one"]` + "\n" + `facilitator = "` + fac + `"`,
		"bad pubkey":   `relays = ["wss://relay.one"]` + "\n" + `facilitator = "abc"`,
		"bad mode":     `relays = ["wss://relay.one"]` + "\n" + `facilitator = "` + fac + `"` + "\n" + `mode = "carrier-pigeon"`,
		"zero timeout": `relays = ["wss://relay.one"]` + "\n" + `facilitator = "` + fac + `"` + "\n" + `request_timeout = "0s"`,
		"negative pow": `relays = ["wss://relay.one"]` + "\n" + `facilitator = "` + fac + `"` + "\n" + `pow = -1`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(New(), writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
