//go:build !windows

package tstore

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// Embedded key for sealing entries. Anyone holding the binary can recover
// it, so sealing keeps anchors out of plain view rather than secret.
var sealKey = [32]byte{
	0x4c, 0x91, 0x0e, 0xd3, 0x27, 0xb8, 0x5a, 0x66,
	0xe1, 0x03, 0x9f, 0x42, 0xcd, 0x78, 0x15, 0xaa,
	0x3b, 0xf0, 0x8d, 0x21, 0x94, 0x5e, 0xc7, 0x0a,
	0x72, 0xdf, 0x36, 0x89, 0x1c, 0xe5, 0x40, 0xbb,
}

// seal returns nonce (24 bytes) + secretbox ciphertext.
func seal(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &sealKey), nil
}

func unseal(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 24+secretbox.Overhead {
		return nil, fmt.Errorf("ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])

	plaintext, ok := secretbox.Open(nil, ciphertext[24:], &nonce, &sealKey)
	if !ok {
		return nil, fmt.Errorf("decrypt failed")
	}
	return plaintext, nil
}
