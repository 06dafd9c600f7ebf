package tmock

import (
	"crypto/x509"
	"testing"
)

func TestInMemoryCAChain(t *testing.T) {
	ca, err := NewInMemoryCA("Test Root")
	if err != nil {
		t.Fatalf("NewInMemoryCA: %v", err)
	}
	if _, err := ca.AddIntermediate("Test Issuing"); err != nil {
		t.Fatalf("AddIntermediate: %v", err)
	}
	leaf, err := ca.IssueLeaf("localhost")
	if err != nil {
		t.Fatalf("IssueLeaf: %v", err)
	}
	if leaf.Cert.IsCA {
		t.Fatal("leaf is a CA")
	}
	if !ca.Root.Cert.IsCA || !ca.Intermediate.Cert.IsCA {
		t.Fatal("root and intermediate must be CAs")
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca.Root.Cert)
	inters := x509.NewCertPool()
	inters.AddCert(ca.Intermediate.Cert)
	_, err = leaf.Cert.Verify(x509.VerifyOptions{
		DNSName:       "localhost",
		Roots:         roots,
		Intermediates: inters,
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if got := len(ca.Chain(leaf)); got != 3 {
		t.Fatalf("chain length = %d, want 3", got)
	}
	if ca.Root.Cert.SerialNumber.Int64() != 1 {
		t.Fatalf("root serial = %v, want 1", ca.Root.Cert.SerialNumber)
	}
}

func TestMemEngineFaults(t *testing.T) {
	e := NewMemEngine()
	if err := e.CreateDict("d"); err != nil {
		t.Fatal(err)
	}
	boom := errFault("boom")
	e.Fault = FailNth(OpWriteEntry, 2, boom)
	if err := e.WriteEntry("d", "a", []byte("1")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := e.WriteEntry("d", "b", []byte("2")); err != boom {
		t.Fatalf("second write = %v, want boom", err)
	}
	if err := e.WriteEntry("d", "c", []byte("3")); err != nil {
		t.Fatalf("third write: %v", err)
	}
	if got := e.Len("d"); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}
}

type errFault string

func (e errFault) Error() string { return string(e) }
