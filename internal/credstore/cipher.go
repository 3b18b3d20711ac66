package credstore

import (
	"crypto/rand"
	"fmt"
	"os"
	"os/user"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// Cipher encrypts the serialized credentials before they hit disk.
// Tag identifies the scheme in the file so Load can pick the right
// implementation, and so a weakly-protected file is recognizable as such.
type Cipher interface {
	Tag() string
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

const (
	machineCipherTag = "v1"
	plainCipherTag   = "plain"
)

// BestCipher returns the machine-bound cipher when key material can be
// derived from the host, otherwise the labeled plaintext fallback.
func BestCipher() Cipher {
	c, err := newMachineCipher()
	if err != nil {
		return plainCipher{}
	}
	return c
}

func cipherFor(tag string) (Cipher, error) {
	switch tag {
	case machineCipherTag:
		return newMachineCipher()
	case plainCipherTag:
		return plainCipher{}, nil
	default:
		return nil, fmt.Errorf("unknown credential cipher tag %q", tag)
	}
}

// machineCipher seals credentials with XChaCha20-Poly1305 using a key
// derived from host and account identity. Files are only readable on the
// machine/account that wrote them.
type machineCipher struct {
	aeadKey []byte
}

var scryptSalt = []byte("hvgate-credstore")

func newMachineCipher() (*machineCipher, error) {
	secret, err := machineSecret()
	if err != nil {
		return nil, err
	}

	key, err := scrypt.Key(secret, scryptSalt, 1<<15, 8, 1, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return &machineCipher{aeadKey: key}, nil
}

func machineSecret() ([]byte, error) {
	id, err := os.ReadFile("/etc/machine-id")
	if err != nil {
		// not fatal: hostname is a weaker but workable stand-in
		host, herr := os.Hostname()
		if herr != nil {
			return nil, fmt.Errorf("no machine identity available: %s", err)
		}
		id = []byte(host)
	}

	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("resolving current user: %w", err)
	}

	return append(id, []byte(u.Uid+u.Username)...), nil
}

func (c *machineCipher) Tag() string { return machineCipherTag }

func (c *machineCipher) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.aeadKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *machineCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.aeadKey)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	return aead.Open(nil, nonce, sealed, nil)
}

// plainCipher is the degraded-mode fallback: base64 at the file layer is the
// only obfuscation. Its tag makes the weak protection visible in the file.
type plainCipher struct{}

func (plainCipher) Tag() string { return plainCipherTag }

func (plainCipher) Encrypt(p []byte) ([]byte, error) { return p, nil }

func (plainCipher) Decrypt(c []byte) ([]byte, error) { return c, nil }
