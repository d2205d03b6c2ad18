package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestDeriveDeterministic(t *testing.T) {
	d1, err := NewDeriver(testMnemonic)
	require.NoError(t, err)
	d2, err := NewDeriver(testMnemonic)
	require.NoError(t, err)

	rapid.Check(t, func(rt *rapid.T) {
		idx := rapid.Uint32Range(0, 1<<20).Draw(rt, "idx")
		a, err := d1.Derive(idx)
		require.NoError(rt, err)
		b, err := d2.Derive(idx)
		require.NoError(rt, err)
		assert.Equal(rt, a.Private.Serialize(), b.Private.Serialize())
		assert.Equal(rt, a.PubKeyHex(), b.PubKeyHex())
	})
}

func TestDistinctIndicesDistinctKeys(t *testing.T) {
	d, err := NewDeriver(testMnemonic)
	require.NoError(t, err)

	seen := make(map[string]uint32)
	for i := uint32(0); i < 200; i++ {
		k, err := d.Derive(i)
		require.NoError(t, err)
		prev, dup := seen[k.PubKeyHex()]
		require.False(t, dup, "index %d collides with %d", i, prev)
		seen[k.PubKeyHex()] = i
	}
}

func TestIdentityIsIndexZero(t *testing.T) {
	d, err := NewDeriver(testMnemonic)
	require.NoError(t, err)
	id, err := d.Identity()
	require.NoError(t, err)
	zero, err := d.Derive(0)
	require.NoError(t, err)
	assert.Equal(t, zero.PubKeyHex(), id.PubKeyHex())

	trade, err := d.Derive(FirstTradeIdx)
	require.NoError(t, err)
	assert.NotEqual(t, id.PubKeyHex(), trade.PubKeyHex())
}

func TestDifferentMnemonicsDiffer(t *testing.T) {
	other, err := NewMnemonic()
	require.NoError(t, err)

	d1, _ := NewDeriver(testMnemonic)
	d2, err := NewDeriver(other)
	require.NoError(t, err)

	a, _ := d1.Derive(1)
	b, _ := d2.Derive(1)
	assert.NotEqual(t, a.PubKeyHex(), b.PubKeyHex())
}

func TestRejectsBadMnemonic(t *testing.T) {
	_, err := NewDeriver("not a valid mnemonic phrase")
	assert.ErrorIs(t, err, ErrMnemonic)

	d, _ := NewDeriver(testMnemonic)
	_, err = d.Derive(1 << 31)
	assert.Error(t, err)
}
