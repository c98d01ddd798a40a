// Package secrets seals values stored at rest, such as the music backend
// credentials of a player.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var (
	ErrKeyLength = errors.New("credentials key must be 32 bytes, hex or base64 encoded")
	ErrOpen      = errors.New("sealed value could not be opened")
)

type Box struct {
	key [32]byte
}

// NewBox parses a 32 byte key. An empty key yields a nil Box, which stores
// values unsealed.
func NewBox(encoded string) (*Box, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, ErrKeyLength
		}
	}
	if len(raw) != 32 {
		return nil, ErrKeyLength
	}
	box := &Box{}
	copy(box.key[:], raw)
	return box, nil
}

func (b *Box) Seal(plain []byte) ([]byte, error) {
	if b == nil {
		return plain, nil
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &b.key), nil
}

func (b *Box) Open(sealed []byte) ([]byte, error) {
	if b == nil {
		return sealed, nil
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrOpen
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &b.key)
	if !ok {
		return nil, ErrOpen
	}
	return plain, nil
}
