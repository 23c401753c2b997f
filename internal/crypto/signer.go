package crypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

// signatureLen is the length of an ed25519 signature in a serialized
// transaction.
const signatureLen = 64

// KeyManager holds the wallet keypair and signs transactions with it.
type KeyManager struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewKeyManager wraps an ed25519 private key.
func NewKeyManager(priv ed25519.PrivateKey) *KeyManager {
	return &KeyManager{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}
}

// PublicKey returns the wallet's base58-encoded public key.
func (km *KeyManager) PublicKey() string {
	return base58.Encode(km.pub)
}

// Sign signs an arbitrary message with the wallet key.
func (km *KeyManager) Sign(message []byte) []byte {
	return ed25519.Sign(km.priv, message)
}

// SignTransaction signs a serialized transaction in place. The wire format is
// a compact-u16 signature count, that many 64-byte signature slots, then the
// message. The fee payer's signature goes in slot zero; the aggregator builds
// the transaction with our wallet as fee payer.
func (km *KeyManager) SignTransaction(tx []byte) ([]byte, error) {
	numSigs, offset, err := decodeCompactU16(tx)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse transaction header: %w", err)
	}
	if numSigs == 0 {
		return nil, fmt.Errorf("crypto: transaction has no signature slots")
	}

	msgStart := offset + numSigs*signatureLen
	if msgStart >= len(tx) {
		return nil, fmt.Errorf("crypto: transaction truncated: %d bytes, need message past %d", len(tx), msgStart)
	}

	signed := make([]byte, len(tx))
	copy(signed, tx)

	sig := ed25519.Sign(km.priv, tx[msgStart:])
	copy(signed[offset:offset+signatureLen], sig)

	return signed, nil
}

// decodeCompactU16 reads a compact-u16 length prefix and returns the value
// and the number of bytes consumed.
func decodeCompactU16(b []byte) (int, int, error) {
	var value, shift uint
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("truncated compact-u16")
		}
		elem := uint(b[i])
		value |= (elem & 0x7f) << shift
		if elem&0x80 == 0 {
			return int(value), i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("compact-u16 too long")
}
