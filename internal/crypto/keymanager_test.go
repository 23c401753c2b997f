package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return ed25519.NewKeyFromSeed(seed)
}

func TestDecodePrivateKey(t *testing.T) {
	key := testKey(t)
	seed := key.Seed()

	jsonBytes := func(b []byte) string {
		ints := make([]int, len(b))
		for i, v := range b {
			ints[i] = int(v)
		}
		out, err := json.Marshal(ints)
		require.NoError(t, err)
		return string(out)
	}

	tests := []struct {
		name  string
		input string
	}{
		{"hex seed", hex.EncodeToString(seed)},
		{"hex seed with 0x", "0x" + hex.EncodeToString(seed)},
		{"hex expanded", hex.EncodeToString(key)},
		{"base58 seed", base58.Encode(seed)},
		{"base58 expanded", base58.Encode(key)},
		{"base64 seed", base64.StdEncoding.EncodeToString(seed)},
		{"json byte array", jsonBytes(key)},
		{"json seed array", jsonBytes(seed)},
		{"surrounding whitespace", "  " + hex.EncodeToString(seed) + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePrivateKey(tt.input)
			require.NoError(t, err)
			assert.True(t, key.Equal(got))
		})
	}
}

func TestDecodePrivateKeyRejectsGarbage(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not a key", "hello world"},
		{"wrong length hex", "deadbeef"},
		{"json wrong length", "[1,2,3]"},
		{"json out of range", "[300,1,2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePrivateKey(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestDecodePrivateKeyMismatchedPublicHalf(t *testing.T) {
	key := testKey(t)
	bad := make([]byte, len(key))
	copy(bad, key)
	bad[ed25519.SeedSize] ^= 0xff

	_, err := DecodePrivateKey(hex.EncodeToString(bad))
	assert.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)

	blob, err := EncryptKey(key, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.True(t, key.Equal(got))
}

func TestDecryptKeyWrongPassword(t *testing.T) {
	key := testKey(t)

	blob, err := EncryptKey(key, "hunter2")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestLoadKeyManagerPrefersRawKey(t *testing.T) {
	key := testKey(t)

	km, err := LoadKeyManager(KeyConfig{
		RawPrivateKey:    base58.Encode(key),
		EncryptedKeyPath: "/nonexistent/path.json",
	})
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(key.Public().(ed25519.PublicKey)), km.PublicKey())
}

func TestLoadKeyManagerNoSource(t *testing.T) {
	_, err := LoadKeyManager(KeyConfig{})
	assert.Error(t, err)
}

func TestSignTransaction(t *testing.T) {
	key := testKey(t)
	km := NewKeyManager(key)

	message := []byte("serialized transaction message body")
	tx := make([]byte, 0, 1+64+len(message))
	tx = append(tx, 1) // one signature slot
	tx = append(tx, make([]byte, 64)...)
	tx = append(tx, message...)

	signed, err := km.SignTransaction(tx)
	require.NoError(t, err)
	require.Len(t, signed, len(tx))

	sig := signed[1:65]
	assert.True(t, ed25519.Verify(key.Public().(ed25519.PublicKey), message, sig))
	// Original buffer stays untouched.
	assert.Equal(t, make([]byte, 64), tx[1:65])
}

func TestSignTransactionTruncated(t *testing.T) {
	km := NewKeyManager(testKey(t))

	_, err := km.SignTransaction([]byte{2, 0, 0})
	assert.Error(t, err)
}
