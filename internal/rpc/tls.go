// Package rpc provides the gateway's optional TLS identity: a self-signed
// certificate persisted on disk and identified by its sha256 fingerprint,
// plus a client that trusts a server by fingerprint instead of a CA chain.
package rpc

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

// Fingerprint returns the sha256 fingerprint of a DER-encoded certificate.
func Fingerprint(cert []byte) string {
	sum := sha256.Sum256(cert)
	return hex.EncodeToString(sum[:])
}

// LoadCertificate returns the certificate stored under dir/tls, generating a
// fresh self-signed one when the cert or key is missing or unreadable.
func LoadCertificate(dir string) (tls.Certificate, string /* fingerprint */, error) {
	dir = filepath.Join(dir, "tls")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return tls.Certificate{}, "", err
	}

	var (
		certFile = filepath.Join(dir, "cert.pem")
		keyFile  = filepath.Join(dir, "cert-private-key.pem")
	)

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		certPem, keyPem, err := selfSignedCert()
		if err != nil {
			return tls.Certificate{}, "", err
		}
		if err := os.WriteFile(certFile, certPem, 0644); err != nil {
			return tls.Certificate{}, "", fmt.Errorf("writing cert: %w", err)
		}
		if err := os.WriteFile(keyFile, keyPem, 0600); err != nil {
			return tls.Certificate{}, "", fmt.Errorf("writing key: %w", err)
		}

		cert, err = tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return tls.Certificate{}, "", err
		}
	}

	cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return tls.Certificate{}, "", err
	}
	return cert, Fingerprint(cert.Leaf.Raw), nil
}

func selfSignedCert() ([]byte, []byte, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, err
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "hvgate"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour * 24 * 3650),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, nil, err
	}

	certPem := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPem := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	return certPem, keyPem, nil
}
