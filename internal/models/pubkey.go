package models

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeySize is the width of an identity or account address.
const PubkeySize = 32

// Pubkey is a 32-byte identity or account address, rendered as base58.
type Pubkey [PubkeySize]byte

// ParsePubkey decodes a base58 address.
func ParsePubkey(s string) (Pubkey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("invalid base58 key %q: %w", s, err)
	}
	if len(b) != PubkeySize {
		return Pubkey{}, fmt.Errorf("invalid key %q: decoded to %d bytes, want %d", s, len(b), PubkeySize)
	}
	var k Pubkey
	copy(k[:], b)
	return k, nil
}

// MustParsePubkey is ParsePubkey for compile-time constants.
func MustParsePubkey(s string) Pubkey {
	k, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Pubkey) String() string {
	return base58.Encode(k[:])
}

func (k Pubkey) IsZero() bool {
	return k == Pubkey{}
}

func (k Pubkey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Account is the raw byte content stored at an address.
type Account struct {
	Address Pubkey
	Data    []byte
}
