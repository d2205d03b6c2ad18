package nip44

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPaddedLen(t *testing.T) {
	cases := map[int]int{
		1: 32, 16: 32, 32: 32, 33: 64, 37: 64, 45: 64, 49: 64, 64: 64, 65: 96,
		100: 128, 111: 128, 200: 224, 250: 256, 320: 320, 383: 384, 384: 384,
		400: 448, 500: 512, 512: 512, 515: 640, 700: 768, 800: 896, 900: 1024,
		1020: 1024, 65536: 65536,
	}
	for in, want := range cases {
		assert.Equal(t, want, paddedLen(in), "paddedLen(%d)", in)
	}
}

func TestConversationKeySymmetric(t *testing.T) {
	a, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	b, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	assert.Equal(t, ConversationKey(a, b.PubKey()), ConversationKey(b, a.PubKey()))
}

func scalar(t *testing.T, h string) *btcec.PrivateKey {
	t.Helper()
	b, err := hex.DecodeString(h)
	require.NoError(t, err)
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv
}

// published v2 vector: sec1 = 1, sec2 = 2, nonce = 1
func TestKnownVector(t *testing.T) {
	const (
		one        = "0000000000000000000000000000000000000000000000000000000000000001"
		two        = "0000000000000000000000000000000000000000000000000000000000000002"
		convKeyHex = "c41c775356fd92eadc63ff5a0dc1da211b268cbea22316767095b2871ea1412d"
		payload    = "AgAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABee0G5VSK0/9YypIObAtDKfYEAjD35uVkHyB0F4DwrcNaCXlCWZKaArsGrY6M9wnuTMxWfp1RTN9Xga8no+kF5Vsb"
	)
	sec1, sec2 := scalar(t, one), scalar(t, two)

	ck := ConversationKey(sec1, sec2.PubKey())
	assert.Equal(t, convKeyHex, hex.EncodeToString(ck))
	assert.Equal(t, ck, ConversationKey(sec2, sec1.PubKey()))

	nonce, err := hex.DecodeString(one)
	require.NoError(t, err)
	got, err := encryptWithNonce(ck, []byte("a"), nonce)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	plain, err := Decrypt(ck, payload)
	require.NoError(t, err)
	assert.Equal(t, "a", plain)
}

func TestRoundTrip(t *testing.T) {
	a, _ := btcec.NewPrivateKey()
	b, _ := btcec.NewPrivateKey()
	ck := ConversationKey(a, b.PubKey())

	rapid.Check(t, func(rt *rapid.T) {
		msg := rapid.StringN(1, 2000, -1).Draw(rt, "msg")
		payload, err := Encrypt(ck, msg)
		require.NoError(rt, err)

		got, err := Decrypt(ConversationKey(b, a.PubKey()), payload)
		require.NoError(rt, err)
		assert.Equal(rt, msg, got)
	})
}

func TestDecryptRejectsTampering(t *testing.T) {
	a, _ := btcec.NewPrivateKey()
	b, _ := btcec.NewPrivateKey()
	ck := ConversationKey(a, b.PubKey())

	payload, err := Encrypt(ck, "hello relay")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)

	for i := 1; i < len(raw); i++ {
		flipped := append([]byte(nil), raw...)
		flipped[i] ^= 0x01
		_, err := Decrypt(ck, base64.StdEncoding.EncodeToString(flipped))
		require.Error(t, err, "byte %d", i)
	}
}

func TestDecryptRejectsMalformed(t *testing.T) {
	ck := make([]byte, 32)

	_, err := Decrypt(ck, "#anything")
	assert.ErrorIs(t, err, ErrVersion)

	_, err = Decrypt(ck, "AgAA")
	assert.ErrorIs(t, err, ErrLength)

	_, err = Decrypt(ck, strings.Repeat("!", minPayloadB64))
	assert.Error(t, err)
}

func TestEncryptRejectsEmpty(t *testing.T) {
	_, err := Encrypt(make([]byte, 32), "")
	assert.ErrorIs(t, err, ErrPlainLen)
}
