// Package identity loads and creates agent keypairs in the Solana CLI keypair
// file format (a JSON array of the 64 secret key bytes).
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rewired-gh/solsignal/internal/models"
)

var ErrInvalidKeypair = errors.New("invalid keypair file")

// Keypair is an agent signing identity.
type Keypair struct {
	private ed25519.PrivateKey
}

func (k Keypair) Pubkey() models.Pubkey {
	var pk models.Pubkey
	copy(pk[:], k.private.Public().(ed25519.PublicKey))
	return pk
}

func (k Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// Load reads a keypair file and checks that its public half matches the
// secret seed.
func Load(path string) (Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Keypair{}, fmt.Errorf("failed to read keypair: %w", err)
	}
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return Keypair{}, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return Keypair{}, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidKeypair, len(ints), ed25519.PrivateKeySize)
	}
	b := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return Keypair{}, fmt.Errorf("%w: byte %d out of range", ErrInvalidKeypair, i)
		}
		b[i] = byte(v)
	}
	priv := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
	if !priv.Equal(ed25519.PrivateKey(b)) {
		return Keypair{}, fmt.Errorf("%w: public key does not match secret", ErrInvalidKeypair)
	}
	return Keypair{private: priv}, nil
}

// Generate creates a fresh keypair and writes it to path with 0600
// permissions. It refuses to overwrite an existing file.
func Generate(path string) (Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, err
	}
	ints := make([]int, len(priv))
	for i, v := range priv {
		ints[i] = int(v)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return Keypair{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Keypair{}, fmt.Errorf("failed to create keypair directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return Keypair{}, fmt.Errorf("failed to create keypair: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return Keypair{}, fmt.Errorf("failed to write keypair: %w", err)
	}
	if err := f.Close(); err != nil {
		return Keypair{}, err
	}
	return Keypair{private: priv}, nil
}

// LoadOrGenerate loads path, creating a new keypair when it does not exist.
func LoadOrGenerate(path string) (Keypair, bool, error) {
	kp, err := Load(path)
	if err == nil {
		return kp, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Keypair{}, false, err
	}
	kp, err = Generate(path)
	return kp, err == nil, err
}
