// Package dkim signs outgoing document mail.
package dkim

import (
	"bytes"
	"crypto"
	"fmt"

	"github.com/emersion/go-msgauth/dkim"
)

// Headers covered by the signature
var signedHeaders = []string{
	"From", "To", "Subject", "Date", "Message-ID", "MIME-Version", "Content-Type",
}

// Config selects the signing identity
type Config struct {
	Domain   string
	Selector string
	KeyFile  string
}

// Signer signs messages with DKIM
type Signer struct {
	key      crypto.Signer
	domain   string
	selector string
}

// NewSigner creates a signer from an in-memory key
func NewSigner(key crypto.Signer, domain, selector string) *Signer {
	return &Signer{key: key, domain: domain, selector: selector}
}

// Load creates a signer from the key file named in cfg
func Load(cfg Config) (*Signer, error) {
	if cfg.Domain == "" || cfg.Selector == "" {
		return nil, fmt.Errorf("dkim domain and selector are required")
	}
	key, err := LoadPrivateKey(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load DKIM key: %w", err)
	}
	return NewSigner(key, cfg.Domain, cfg.Selector), nil
}

// Sign returns the message with a DKIM-Signature header prepended
func (s *Signer) Sign(message []byte) ([]byte, error) {
	options := &dkim.SignOptions{
		Domain:                 s.domain,
		Selector:               s.selector,
		Signer:                 s.key,
		Hash:                   crypto.SHA256,
		HeaderKeys:             signedHeaders,
		HeaderCanonicalization: dkim.CanonicalizationRelaxed,
		BodyCanonicalization:   dkim.CanonicalizationRelaxed,
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, bytes.NewReader(message), options); err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	return signed.Bytes(), nil
}

// Domain returns the signing domain
func (s *Signer) Domain() string {
	return s.domain
}
