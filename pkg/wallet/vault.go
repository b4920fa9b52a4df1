package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/scrypt"
)

// Phrase files are scrypt + AES-256-GCM under the wallet PIN. The PIN is
// short, so the scrypt cost is what stands between a stolen file and the
// phrase; do not lower it.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

type phraseFile struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	N          int    `json:"n"`
	R          int    `json:"r"`
	P          int    `json:"p"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func deriveKey(pin string, salt []byte, n, r, p int) ([]byte, error) {
	return scrypt.Key([]byte(pin), salt, n, r, p, scryptKeyLen)
}

// sealPhrase encrypts the phrase under the PIN and writes it to path.
func sealPhrase(path, phrase, pin string) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}

	key, err := deriveKey(pin, salt, scryptN, scryptR, scryptP)
	if err != nil {
		return err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	sealed := gcm.Seal(nil, nonce, []byte(phrase), nil)

	data, err := json.Marshal(phraseFile{
		Version:    1,
		KDF:        "scrypt",
		N:          scryptN,
		R:          scryptR,
		P:          scryptP,
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(sealed),
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// openPhrase reads and decrypts a phrase file. A failed authentication
// tag is reported as ErrWrongPIN.
func openPhrase(path, pin string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var pf phraseFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return "", fmt.Errorf("corrupt phrase file: %w", err)
	}
	if pf.KDF != "scrypt" {
		return "", fmt.Errorf("unsupported phrase file KDF: %s", pf.KDF)
	}

	salt, err := hex.DecodeString(pf.Salt)
	if err != nil {
		return "", fmt.Errorf("corrupt phrase file: %w", err)
	}
	nonce, err := hex.DecodeString(pf.Nonce)
	if err != nil {
		return "", fmt.Errorf("corrupt phrase file: %w", err)
	}
	sealed, err := hex.DecodeString(pf.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("corrupt phrase file: %w", err)
	}

	key, err := deriveKey(pin, salt, pf.N, pf.R, pf.P)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	phrase, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrWrongPIN
	}
	return string(phrase), nil
}
