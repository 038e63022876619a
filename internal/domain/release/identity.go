package release

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// IdentityLength is the number of characters in a component identity.
	IdentityLength = 32

	identityAlphabetMin = 'a'
	identityAlphabetMax = 'p'
)

var (
	errNoPEMBlock      = errors.New("no PEM block found")
	errUnsupportedKey  = errors.New("unsupported private key type")
	errInvalidIdentity = errors.New("invalid identity")
)

// Identity is the stable identifier of a component derived from its public key.
type Identity string

// String returns the identity as a plain string.
func (id Identity) String() string {
	return string(id)
}

// Validate checks that the identity has the expected length and alphabet.
func (id Identity) Validate() error {
	if len(id) != IdentityLength {
		return fmt.Errorf("%w %q: length %d", errInvalidIdentity, string(id), len(id))
	}

	for _, r := range string(id) {
		if r < identityAlphabetMin || r > identityAlphabetMax {
			return fmt.Errorf("%w %q: character %q", errInvalidIdentity, string(id), r)
		}
	}

	return nil
}

// IdentityFromPublicKey derives the identity from a DER-encoded PKIX public key.
// The first 16 bytes of its SHA-256 are rendered one nibble per character in a..p.
func IdentityFromPublicKey(der []byte) Identity {
	sum := sha256.Sum256(der)

	var builder strings.Builder

	builder.Grow(IdentityLength)

	for _, b := range sum[:IdentityLength/2] {
		builder.WriteByte(byte('a') + b>>4)
		builder.WriteByte(byte('a') + b&0x0f)
	}

	return Identity(builder.String())
}

// IdentityFromKeyFile reads a PEM-encoded RSA private key and derives the identity
// of its public half. A missing file is reported as ErrConfiguration.
func IdentityFromKeyFile(path string) (Identity, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: signing key %s is missing", ErrConfiguration, path)
		}

		return "", fmt.Errorf("read signing key: %w", err)
	}

	der, err := PublicKeyFromPEM(contents)
	if err != nil {
		return "", fmt.Errorf("signing key %s: %w", path, err)
	}

	return IdentityFromPublicKey(der), nil
}

// PublicKeyFromPEM extracts the DER-encoded PKIX public key from a PEM private key
// in either PKCS#1 or PKCS#8 form.
func PublicKeyFromPEM(contents []byte) ([]byte, error) {
	block, _ := pem.Decode(contents)
	if block == nil {
		return nil, errNoPEMBlock
	}

	var (
		signer crypto.Signer
		err    error
	)

	switch block.Type {
	case "RSA PRIVATE KEY":
		signer, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		var key any

		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err == nil {
			rsaKey, ok := key.(*rsa.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("%w: %T", errUnsupportedKey, key)
			}

			signer = rsaKey
		}
	}

	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	der, err := x509.MarshalPKIXPublicKey(signer.Public())
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}

	return der, nil
}
