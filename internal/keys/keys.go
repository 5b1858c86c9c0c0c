// Package keys loads the node's RSA key pair used for credential signing
// and the published JWKS.
package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	domainerrors "fides/pkg/domain-errors"
)

// Provider holds the issuer key pair in memory. Keys are loaded once at
// startup; rotation means a restart.
type Provider struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

// Load reads the PEM encoded key pair from disk.
func Load(privatePath, publicPath string) (*Provider, error) {
	privPEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	priv, err := parsePrivateKey(privPEM)
	if err != nil {
		return nil, err
	}

	pubPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pub, err := ParsePublicKey(pubPEM)
	if err != nil {
		return nil, err
	}

	return &Provider{private: priv, public: pub}, nil
}

// FromKeys wraps an in-memory key pair, used by tests.
func FromKeys(private *rsa.PrivateKey) *Provider {
	return &Provider{private: private, public: &private.PublicKey}
}

// Private returns the signing key.
func (p *Provider) Private() *rsa.PrivateKey { return p.private }

// Public returns the verification key.
func (p *Provider) Public() *rsa.PublicKey { return p.public }

func parsePrivateKey(raw []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, domainerrors.New(domainerrors.CodeFormat, "private key is not valid PEM")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeFormat, "private key is not PKCS#1 or PKCS#8")
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, domainerrors.New(domainerrors.CodeFormat, "private key is not RSA")
	}
	return key, nil
}

// ParsePublicKey parses a PEM encoded RSA public key in either PKIX or
// PKCS#1 form.
func ParsePublicKey(raw []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, domainerrors.New(domainerrors.CodeFormat, "public key is not valid PEM")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeFormat, "public key is not PKIX or PKCS#1")
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, domainerrors.New(domainerrors.CodeFormat, "public key is not RSA")
	}
	return key, nil
}
