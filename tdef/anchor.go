package tdef

import (
	"bytes"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("qtrust.tdef")

// TrustAnchor is a certificate authority accepted as a root of trust.
// All fields are raw DER as produced by the certificate parser and are
// stored and returned unchanged.
type TrustAnchor struct {
	Subject []byte
	SPKI    []byte

	// NameConstraints is nil when the anchor carries no constraints.
	NameConstraints []byte
}

// FromCertificate builds an anchor from the subject and public key of cert.
// Name constraints are not captured.
func FromCertificate(cert *x509.Certificate) TrustAnchor {
	return TrustAnchor{
		Subject: bytes.Clone(cert.RawSubject),
		SPKI:    bytes.Clone(cert.RawSubjectPublicKeyInfo),
	}
}

// Equal reports whether a and b hold the same bytes, including whether
// name constraints are present.
func (a TrustAnchor) Equal(b TrustAnchor) bool {
	if (a.NameConstraints == nil) != (b.NameConstraints == nil) {
		return false
	}
	return bytes.Equal(a.Subject, b.Subject) &&
		bytes.Equal(a.SPKI, b.SPKI) &&
		bytes.Equal(a.NameConstraints, b.NameConstraints)
}

// StorageKey derives the key under which the anchor is stored.
//
// The label is the CN (or OU) value found by a text search over the raw
// subject bytes. The search runs on the encoded bytes, not on a decoded
// name, so DER subjects usually fall back to the raw bytes as the label.
// Four bytes of the SPKI follow the label so anchors sharing a label stay
// distinct. The result is cut to MaxKeyLen.
func (a TrustAnchor) StorageKey() string {
	subject := string(a.Subject)
	var label string
	switch {
	case !utf8.ValidString(subject):
		logger.Warningf("subject is not valid utf-8, using raw bytes as key label")
		label = subject
	default:
		begin := strings.Index(subject, "CN=")
		if begin < 0 {
			begin = strings.Index(subject, "OU=")
		}
		if begin < 0 {
			logger.Warningf("subject missing CN= & OU=: %q", subject)
			label = subject
			break
		}
		label = subject[begin+3:]
		if end := strings.IndexByte(label, ','); end >= 0 {
			label = label[:end]
		}
	}

	var b strings.Builder
	b.WriteString(label)
	b.WriteByte(' ')
	for i := 6; i <= 9 && i < len(a.SPKI); i++ {
		fmt.Fprintf(&b, "%X", a.SPKI[i])
	}
	key := b.String()
	if len(key) > MaxKeyLen {
		key = key[:MaxKeyLen]
	}
	return key
}

// DecodedSubject returns the subject as a distinguished name string.
func (a TrustAnchor) DecodedSubject() string {
	var rdns pkix.RDNSequence
	rest, err := asn1.Unmarshal(a.Subject, &rdns)
	if err == nil && len(rest) > 0 {
		err = fmt.Errorf("%d trailing bytes after subject", len(rest))
	}
	if err != nil {
		logger.Warningf("decode subject: %v", err)
		return "der decode failed"
	}
	var name pkix.Name
	name.FillFromRDNSequence(&rdns)
	return name.String()
}

func (a TrustAnchor) String() string {
	return a.DecodedSubject()
}

// SerialText renders a serial number as colon separated lowercase hex bytes.
func SerialText(serial *big.Int) string {
	if serial == nil {
		return ""
	}
	raw := serial.Bytes()
	parts := make([]string, len(raw))
	for i, b := range raw {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}

// SerialKey is the key used when an anchor is trusted interactively.
// It is the serial text as is and is unrelated to StorageKey.
func SerialKey(serial string) string {
	return serial
}
