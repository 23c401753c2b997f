// Package crypto provides wallet key management: decoding private keys from
// the formats wallets export, encrypting keys at rest, and signing
// transactions.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/pbkdf2"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the encrypted-key JSON schema version.
	currentVersion = 1
)

// DecodePrivateKey parses a private key from any of the formats wallets
// commonly export. The candidate decoders run in a fixed order and the first
// one that yields a valid ed25519 key wins:
//
//  1. hex (with or without 0x prefix): 32-byte seed or 64-byte expanded key
//  2. base58: 32-byte seed or 64-byte expanded key
//  3. base64 standard encoding: same lengths
//  4. JSON byte array, the solana-keygen file format: [12,34,...]
//
// The ordering matters for ambiguous inputs; a string that happens to decode
// under several schemes is taken in the order above.
func DecodePrivateKey(raw string) (ed25519.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("crypto: empty private key: %w", domain.ErrInvalidKey)
	}

	type decoder struct {
		name   string
		decode func(string) ([]byte, error)
	}
	decoders := []decoder{
		{"hex", func(s string) ([]byte, error) {
			return hex.DecodeString(strings.TrimPrefix(s, "0x"))
		}},
		{"base58", base58.Decode},
		{"base64", base64.StdEncoding.DecodeString},
		{"json", func(s string) ([]byte, error) {
			var ints []int
			if err := json.Unmarshal([]byte(s), &ints); err != nil {
				return nil, err
			}
			out := make([]byte, len(ints))
			for i, v := range ints {
				if v < 0 || v > 255 {
					return nil, fmt.Errorf("byte %d out of range", v)
				}
				out[i] = byte(v)
			}
			return out, nil
		}},
	}

	for _, d := range decoders {
		keyBytes, err := d.decode(raw)
		if err != nil {
			continue
		}
		key, err := privateKeyFromBytes(keyBytes)
		if err != nil {
			continue
		}
		return key, nil
	}

	return nil, fmt.Errorf("crypto: private key matches no supported format: %w", domain.ErrInvalidKey)
}

// privateKeyFromBytes builds an ed25519 private key from either a 32-byte
// seed or a 64-byte expanded key.
func privateKeyFromBytes(b []byte) (ed25519.PrivateKey, error) {
	switch len(b) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(b), nil
	case ed25519.PrivateKeySize:
		key := ed25519.PrivateKey(b)
		// The trailing 32 bytes must be the public key derived from the seed.
		derived := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
		if !derived.Equal(key) {
			return nil, errors.New("crypto: public key half does not match seed")
		}
		return key, nil
	default:
		return nil, fmt.Errorf("crypto: key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(b))
	}
}

// encryptedKeyJSON is the on-disk format for an encrypted private key.
type encryptedKeyJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// KeyConfig carries the information LoadKeyManager needs to resolve a
// private key. Populate the fields from environment variables or a config
// file.
type KeyConfig struct {
	// RawPrivateKey is the private key in any format DecodePrivateKey
	// accepts. If non-empty it takes precedence.
	RawPrivateKey string

	// EncryptedKeyPath is the path to a JSON file produced by EncryptKey.
	EncryptedKeyPath string

	// KeyPassword decrypts the file at EncryptedKeyPath.
	KeyPassword string
}

// EncryptKey encrypts a private key seed with a password using
// PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM authenticated
// encryption. It returns the JSON blob suitable for writing to disk.
func EncryptKey(key ed25519.PrivateKey, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: expected %d-byte key, got %d bytes",
			ed25519.PrivateKeySize, len(key))
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, key.Seed(), nil)

	out := encryptedKeyJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}

	return json.MarshalIndent(out, "", "  ")
}

// DecryptKey decrypts a JSON blob produced by EncryptKey.
func DecryptKey(encryptedJSON []byte, password string) (ed25519.PrivateKey, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	var stored encryptedKeyJSON
	if err := json.Unmarshal(encryptedJSON, &stored); err != nil {
		return nil, fmt.Errorf("crypto: parsing encrypted key JSON: %w", err)
	}
	if stored.Version != currentVersion {
		return nil, fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}

	seed, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: decrypted seed is %d bytes", len(seed))
	}

	return ed25519.NewKeyFromSeed(seed), nil
}

// LoadKeyManager resolves a private key from the provided configuration and
// wraps it in a KeyManager.
//
// Resolution order:
//  1. If RawPrivateKey is set, decode it directly.
//  2. If EncryptedKeyPath is set, read the file and decrypt with KeyPassword.
//  3. Otherwise, return an error.
func LoadKeyManager(cfg KeyConfig) (*KeyManager, error) {
	if cfg.RawPrivateKey != "" {
		key, err := DecodePrivateKey(cfg.RawPrivateKey)
		if err != nil {
			return nil, err
		}
		return NewKeyManager(key), nil
	}

	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading encrypted key file: %w", err)
		}
		key, err := DecryptKey(data, cfg.KeyPassword)
		if err != nil {
			return nil, err
		}
		return NewKeyManager(key), nil
	}

	return nil, errors.New("crypto: no private key source configured (set RawPrivateKey or EncryptedKeyPath)")
}
