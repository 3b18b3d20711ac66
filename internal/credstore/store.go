// Package credstore persists the gateway's shared secrets encrypted at rest,
// independent of the process environment.
//
// The file layout is "<tag>:<base64 ciphertext>" where the tag names the
// cipher that sealed the payload (see Cipher).
package credstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Credentials struct {
	APIKey     string    `json:"api_key"`
	HMACSecret string    `json:"hmac_secret"`
	AllowIPs   []string  `json:"allow_ips"`
	CreatedAt  time.Time `json:"created_at"`
}

type Store struct {
	path   string
	cipher Cipher
}

func New(path string) *Store {
	cipher := BestCipher()
	if cipher.Tag() == plainCipherTag {
		log.Printf("warning: machine-bound encryption unavailable - credentials will be stored with reversible encoding only")
	}
	return &Store{path: path, cipher: cipher}
}

// NewWithCipher is for tests and callers that manage cipher selection themselves.
func NewWithCipher(path string, cipher Cipher) *Store {
	return &Store{path: path, cipher: cipher}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save overwrites any previous credentials file.
func (s *Store) Save(apiKey, hmacSecret string, allowIPs []string) error {
	creds := &Credentials{
		APIKey:     apiKey,
		HMACSecret: hmacSecret,
		AllowIPs:   allowIPs,
		CreatedAt:  time.Now().UTC(),
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("serializing credentials: %w", err)
	}

	ciphertext, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypting credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}

	content := s.cipher.Tag() + ":" + base64.StdEncoding.EncodeToString(ciphertext)
	if err := os.WriteFile(s.path, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}
	return nil
}

// Load returns nil when the file is absent or unreadable. Decrypt and parse
// failures are downgraded to warnings so callers can fall back to
// environment configuration instead of crashing.
func (s *Store) Load() (*Credentials, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	tag, encoded, ok := strings.Cut(strings.TrimSpace(string(raw)), ":")
	if !ok {
		log.Printf("warning: credentials file %q is malformed - ignoring it", s.path)
		return nil, nil
	}

	cipher, err := cipherFor(tag)
	if err != nil {
		log.Printf("warning: cannot read credentials file %q: %s", s.path, err)
		return nil, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		log.Printf("warning: credentials file %q is not valid base64 - ignoring it", s.path)
		return nil, nil
	}

	plaintext, err := cipher.Decrypt(ciphertext)
	if err != nil {
		log.Printf("warning: decrypting credentials file %q: %s", s.path, err)
		return nil, nil
	}

	creds := &Credentials{}
	if err := json.Unmarshal(plaintext, creds); err != nil {
		log.Printf("warning: parsing credentials file %q: %s", s.path, err)
		return nil, nil
	}
	return creds, nil
}

// Delete removes the credentials file. Used by the operator reset flow -
// the running gateway never calls this.
func (s *Store) Delete() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
