package dkim

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// Algorithm is a DKIM key algorithm
type Algorithm string

const (
	AlgorithmRSA     Algorithm = "rsa"
	AlgorithmEd25519 Algorithm = "ed25519"
)

// GenerateKey creates a new signing key. RSA keys are 2048 bits.
func GenerateKey(alg Algorithm) (crypto.Signer, error) {
	switch alg {
	case AlgorithmRSA, "":
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("failed to generate RSA key: %w", err)
		}
		return key, nil
	case AlgorithmEd25519:
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("unsupported key algorithm %q", alg)
}

// WritePrivateKey saves the key as a PKCS#8 PEM file readable only by the owner
func WritePrivateKey(path string, key crypto.Signer) error {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to encode private key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// LoadPrivateKey reads an RSA or ed25519 key in PKCS#1 or PKCS#8 PEM form
func LoadPrivateKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", key)
		}
		switch signer.(type) {
		case *rsa.PrivateKey, ed25519.PrivateKey:
			return signer, nil
		}
		return nil, fmt.Errorf("unsupported private key type %T", key)
	default:
		return nil, fmt.Errorf("unsupported key type: %s", block.Type)
	}
}

// TXTRecord returns the DNS TXT record value publishing the public key
func TXTRecord(key crypto.Signer) (string, error) {
	switch pub := key.Public().(type) {
	case *rsa.PublicKey:
		der, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return "", err
		}
		return "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(der), nil
	case ed25519.PublicKey:
		return "v=DKIM1; k=ed25519; p=" + base64.StdEncoding.EncodeToString(pub), nil
	}
	return "", fmt.Errorf("unsupported public key type")
}

// RecordName returns the DNS name of the selector record
func RecordName(selector, domain string) string {
	return fmt.Sprintf("%s._domainkey.%s", selector, domain)
}
