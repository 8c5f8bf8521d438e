package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize    = 32 // AES-256
	saltSize   = 32
	pbkdf2Iter = 100000
)

// SessionSealer encrypts session blobs (the persisted cookie jar) before
// they reach the database. The AES key is derived from a per-install salt
// and the machine identity, so a copied database is useless elsewhere.
type SessionSealer struct {
	saltPath string
	key      []byte
}

// NewSessionSealer creates a sealer whose salt lives in dataDir
func NewSessionSealer(dataDir string) *SessionSealer {
	return &SessionSealer{
		saltPath: filepath.Join(dataDir, ".session-key"),
	}
}

// Seal encrypts plaintext. The nonce is prepended to the ciphertext.
func (s *SessionSealer) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("plaintext cannot be empty")
	}

	gcm, err := s.aead(true)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal
func (s *SessionSealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, fmt.Errorf("sealed blob cannot be empty")
	}

	gcm, err := s.aead(false)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}

	return plaintext, nil
}

// Reset removes the salt file. Previously sealed blobs become unreadable.
func (s *SessionSealer) Reset() error {
	s.key = nil
	if err := os.Remove(s.saltPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	return nil
}

func (s *SessionSealer) aead(create bool) (cipher.AEAD, error) {
	if s.key == nil {
		key, err := s.loadKey()
		if err != nil {
			if !create {
				return nil, fmt.Errorf("failed to load encryption key: %w", err)
			}
			key, err = s.generateAndSaveKey()
			if err != nil {
				return nil, fmt.Errorf("failed to get encryption key: %w", err)
			}
		}
		s.key = key
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func (s *SessionSealer) loadKey() ([]byte, error) {
	data, err := os.ReadFile(s.saltPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(salt) < saltSize {
		return nil, fmt.Errorf("invalid key file format")
	}

	return pbkdf2.Key([]byte(machineID()), salt[:saltSize], pbkdf2Iter, keySize, sha256.New), nil
}

func (s *SessionSealer) generateAndSaveKey() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.saltPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(salt)
	if err := os.WriteFile(s.saltPath, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}

	return pbkdf2.Key([]byte(machineID()), salt, pbkdf2Iter, keySize, sha256.New), nil
}

// machineID returns hostname and user joined by a colon
func machineID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "default-machine"
	}

	username := os.Getenv("USERNAME")
	if username == "" {
		username = os.Getenv("USER")
	}
	if username == "" {
		username = "default-user"
	}

	return hostname + ":" + username
}
