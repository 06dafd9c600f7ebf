package tmock

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"sync"
	"time"
)

// Issued is a certificate and its key.
type Issued struct {
	Cert *x509.Certificate
	DER  []byte
	Key  *ecdsa.PrivateKey
}

// PEM returns the certificate in PEM form.
func (i *Issued) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: i.DER})
}

// InMemoryCA issues certificates for tests. It holds a self-signed root
// and optionally an intermediate that signs leaves.
type InMemoryCA struct {
	mu           sync.Mutex
	serial       int64
	Root         *Issued
	Intermediate *Issued
}

// NewInMemoryCA creates a root named name whose first serial is 1.
func NewInMemoryCA(name string) (*InMemoryCA, error) {
	ca := &InMemoryCA{}
	root, err := ca.create(pkix.Name{CommonName: name, Organization: []string{"qtrust test"}}, true, nil, nil)
	if err != nil {
		return nil, err
	}
	ca.Root = root
	return ca, nil
}

func (ca *InMemoryCA) nextSerial() *big.Int {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	ca.serial++
	return big.NewInt(ca.serial)
}

func (ca *InMemoryCA) create(subject pkix.Name, isCA bool, parent *Issued, hosts []string) (*Issued, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	template := &x509.Certificate{
		SerialNumber:          ca.nextSerial(),
		Subject:               subject,
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		BasicConstraintsValid: true,
		IsCA:                  isCA,
	}
	if isCA {
		template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign
	} else {
		template.KeyUsage = x509.KeyUsageDigitalSignature
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
		for _, h := range hosts {
			if ip := net.ParseIP(h); ip != nil {
				template.IPAddresses = append(template.IPAddresses, ip)
				continue
			}
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	signer, signerKey := template, key
	if parent != nil {
		signer, signerKey = parent.Cert, parent.Key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, signer, &key.PublicKey, signerKey)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &Issued{Cert: cert, DER: der, Key: key}, nil
}

// AddIntermediate creates an intermediate CA signed by the root.
// Leaves issued afterwards are signed by it.
func (ca *InMemoryCA) AddIntermediate(name string) (*Issued, error) {
	inter, err := ca.create(pkix.Name{CommonName: name, OrganizationalUnit: []string{"issuing"}}, true, ca.Root, nil)
	if err != nil {
		return nil, err
	}
	ca.Intermediate = inter
	return inter, nil
}

func (ca *InMemoryCA) issuer() *Issued {
	if ca.Intermediate != nil {
		return ca.Intermediate
	}
	return ca.Root
}

// IssueLeaf creates a non-CA server certificate for hostname.
func (ca *InMemoryCA) IssueLeaf(hostname string) (*Issued, error) {
	return ca.create(pkix.Name{CommonName: hostname}, false, ca.issuer(), []string{hostname})
}

// Chain returns leaf followed by the intermediate, if any, and the root,
// all in DER.
func (ca *InMemoryCA) Chain(leaf *Issued) [][]byte {
	chain := [][]byte{leaf.DER}
	if ca.Intermediate != nil {
		chain = append(chain, ca.Intermediate.DER)
	}
	return append(chain, ca.Root.DER)
}

// ServerCertificate issues a leaf for hostname and returns it with the
// full chain attached, ready for tls.Config.Certificates.
func (ca *InMemoryCA) ServerCertificate(hostname string) (tls.Certificate, error) {
	leaf, err := ca.IssueLeaf(hostname)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: ca.Chain(leaf),
		PrivateKey:  leaf.Key,
		Leaf:        leaf.Cert,
	}, nil
}
