package qtrust

import (
	"crypto/x509"
	"fmt"

	"github.com/kardianos/qtrust/tdef"
)

// Certificate is the part of a parsed certificate the trust flow needs.
type Certificate struct {
	RawSubject []byte
	Subject    string
	RawSPKI    []byte
	Serial     string
	IsCA       bool
}

// Anchor returns the trust anchor for c. Name constraints are not captured.
func (c Certificate) Anchor() tdef.TrustAnchor {
	return tdef.TrustAnchor{
		Subject: c.RawSubject,
		SPKI:    c.RawSPKI,
	}
}

// CertParser parses a DER certificate.
type CertParser interface {
	ParseCertificate(der []byte) (Certificate, error)
}

// X509Parser parses certificates with crypto/x509.
type X509Parser struct{}

func (X509Parser) ParseCertificate(der []byte) (Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return Certificate{}, fmt.Errorf("parse certificate: %w", err)
	}
	ta := tdef.FromCertificate(cert)
	return Certificate{
		RawSubject: ta.Subject,
		Subject:    ta.DecodedSubject(),
		RawSPKI:    ta.SPKI,
		Serial:     tdef.SerialText(cert.SerialNumber),
		IsCA:       cert.BasicConstraintsValid && cert.IsCA,
	}, nil
}
