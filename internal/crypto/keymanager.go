// Package crypto loads the treasury signing key, either raw or from a
// password-encrypted file, and signs the treasury's chain transactions.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keyFileVersion = 1
	kdfIterations  = 480_000
	kdfSaltLen     = 16
)

var (
	// ErrNoKeySource means the treasury section names neither a raw key nor
	// a key file. The gateway then runs without a signer.
	ErrNoKeySource = errors.New("crypto: no treasury key configured")
	// ErrKeyDecrypt is returned for a wrong password or a tampered file.
	ErrKeyDecrypt = errors.New("crypto: cannot decrypt treasury key")
)

// keyFile is the JSON written by EncryptKey. Byte fields are base64.
type keyFile struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// KeyConfig is the [treasury] key material. A raw key wins over a key file.
type KeyConfig struct {
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

// EncryptKey seals a secp256k1 private key under password and returns the
// key file contents.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: key password is empty")
	}
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: treasury key: %w", err)
	}

	kf := keyFile{Version: keyFileVersion, Salt: make([]byte, kdfSaltLen)}
	if _, err := rand.Read(kf.Salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	aead, err := keyCipher(password, kf.Salt)
	if err != nil {
		return nil, err
	}
	kf.Nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(kf.Nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	kf.Ciphertext = aead.Seal(nil, kf.Nonce, ethcrypto.FromECDSA(key), nil)

	return json.MarshalIndent(kf, "", "  ")
}

// DecryptKey opens a key file and returns the private key as hex without a
// 0x prefix.
func DecryptKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: key password is empty")
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("crypto: key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return "", fmt.Errorf("crypto: key file version %d not supported", kf.Version)
	}

	aead, err := keyCipher(password, kf.Salt)
	if err != nil {
		return "", err
	}
	if len(kf.Nonce) != aead.NonceSize() {
		return "", fmt.Errorf("%w: bad nonce length", ErrKeyDecrypt)
	}
	plain, err := aead.Open(nil, kf.Nonce, kf.Ciphertext, nil)
	if err != nil {
		return "", ErrKeyDecrypt
	}
	return hex.EncodeToString(plain), nil
}

func keyCipher(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, kdfIterations, 32, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return aead, nil
}

// LoadKey returns the treasury key as hex without a 0x prefix, from the raw
// key if set and otherwise from the encrypted key file.
func LoadKey(cfg KeyConfig) (string, error) {
	if raw := strings.TrimPrefix(strings.TrimSpace(cfg.RawPrivateKey), "0x"); raw != "" {
		if _, err := ethcrypto.HexToECDSA(raw); err != nil {
			return "", fmt.Errorf("crypto: treasury.private_key: %w", err)
		}
		return raw, nil
	}
	if cfg.EncryptedKeyPath == "" {
		return "", ErrNoKeySource
	}
	data, err := os.ReadFile(cfg.EncryptedKeyPath)
	if err != nil {
		return "", fmt.Errorf("crypto: treasury.encrypted_key_path: %w", err)
	}
	return DecryptKey(data, cfg.KeyPassword)
}
