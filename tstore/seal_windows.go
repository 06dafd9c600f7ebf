//go:build windows

package tstore

import (
	"github.com/billgraziano/dpapi"
)

// seal protects data with Windows DPAPI for the current user.
func seal(plaintext []byte) ([]byte, error) {
	return dpapi.EncryptBytes(plaintext)
}

func unseal(ciphertext []byte) ([]byte, error) {
	return dpapi.DecryptBytes(ciphertext)
}
