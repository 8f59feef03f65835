// Package pda derives the deterministic record addresses used by the
// registry program.
package pda

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/rewired-gh/solsignal/internal/models"
)

const (
	// MaxSeeds includes the bump seed.
	MaxSeeds   = 16
	MaxSeedLen = 32

	TagRegistry = "registry"
	TagAgent    = "agent"
	TagSignal   = "signal"

	marker = "ProgramDerivedAddress"
)

// DefaultProgramID is the deployed registry program.
var DefaultProgramID = models.MustParsePubkey("6TtRYmSVrymxprrKN1X6QJVho7qMqs1ayzucByNa7dXp")

var (
	ErrAddressSpaceExhausted = errors.New("no viable bump seed found")
	ErrSeedTooLong           = fmt.Errorf("seed longer than %d bytes", MaxSeedLen)
	ErrTooManySeeds          = fmt.Errorf("more than %d seeds", MaxSeeds)

	errOnCurve = errors.New("address lies on the ed25519 curve")
)

// onCurve reports whether b is a valid compressed ed25519 point.
var onCurve = func(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// Deriver derives addresses owned by one program.
type Deriver struct {
	programID models.Pubkey
}

func New(programID models.Pubkey) *Deriver {
	return &Deriver{programID: programID}
}

func (d *Deriver) ProgramID() models.Pubkey {
	return d.programID
}

// Derive searches bump seeds from 255 down to 1 and returns the first
// address that is off the ed25519 curve.
func (d *Deriver) Derive(tag string, seeds ...[]byte) (models.Pubkey, uint8, error) {
	all := make([][]byte, 0, len(seeds)+2)
	all = append(all, []byte(tag))
	all = append(all, seeds...)
	if len(all)+1 > MaxSeeds {
		return models.Pubkey{}, 0, ErrTooManySeeds
	}
	for _, s := range all {
		if len(s) > MaxSeedLen {
			return models.Pubkey{}, 0, ErrSeedTooLong
		}
	}

	bump := []byte{0}
	all = append(all, bump)
	for b := 255; b > 0; b-- {
		bump[0] = byte(b)
		addr, err := d.create(all)
		if err == nil {
			return addr, byte(b), nil
		}
	}
	return models.Pubkey{}, 0, ErrAddressSpaceExhausted
}

func (d *Deriver) create(seeds [][]byte) (models.Pubkey, error) {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write(d.programID[:])
	h.Write([]byte(marker))

	var addr models.Pubkey
	copy(addr[:], h.Sum(nil))
	if onCurve(addr[:]) {
		return models.Pubkey{}, errOnCurve
	}
	return addr, nil
}

func (d *Deriver) Registry() (models.Pubkey, uint8, error) {
	return d.Derive(TagRegistry)
}

func (d *Deriver) AgentProfile(owner models.Pubkey) (models.Pubkey, uint8, error) {
	return d.Derive(TagAgent, owner[:])
}

func (d *Deriver) Signal(owner models.Pubkey, index uint64) (models.Pubkey, uint8, error) {
	return d.Derive(TagSignal, owner[:], IndexSeed(index))
}

// IndexSeed is the u64 little-endian encoding of a signal index.
func IndexSeed(index uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, index)
}
