// Package codec encodes and decodes registry records in their on-ledger
// layout: an 8-byte kind discriminator followed by little-endian fixed-width
// fields and u32 length-prefixed UTF-8 strings.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rewired-gh/solsignal/internal/models"
)

// ErrMalformedRecord is wrapped by every decode failure.
var ErrMalformedRecord = errors.New("malformed record")

// DiscriminatorSize is the width of the leading kind tag.
const DiscriminatorSize = 8

const (
	MinRegistrySize     = DiscriminatorSize + 32 + 8 + 8 + 8 + 1
	MinAgentProfileSize = DiscriminatorSize + 32 + 4 + 4 + 4 + 4 + 4 + 2 + 8 + 8 + 1
	MinSignalSize       = DiscriminatorSize + 32 + 8 + 4 + 1 + 1 + 8 + 8 + 8 + 8 + 32 + 8 + 1 + 1 + 8 + 1

	MaxRegistrySize     = MinRegistrySize
	MaxAgentProfileSize = MinAgentProfileSize + models.MaxNameLen
	MaxSignalSize       = MinSignalSize + models.MaxAssetLen
)

var discriminators = func() map[models.Kind][DiscriminatorSize]byte {
	m := make(map[models.Kind][DiscriminatorSize]byte, len(models.Kinds))
	for _, k := range models.Kinds {
		sum := sha256.Sum256([]byte("account:" + k.String()))
		var d [DiscriminatorSize]byte
		copy(d[:], sum[:DiscriminatorSize])
		m[k] = d
	}
	return m
}()

// Discriminator returns the tag written ahead of records of kind k.
func Discriminator(k models.Kind) [DiscriminatorSize]byte {
	return discriminators[k]
}

// KindOf identifies the record kind from its leading tag.
func KindOf(b []byte) (models.Kind, bool) {
	if len(b) < DiscriminatorSize {
		return 0, false
	}
	for k, d := range discriminators {
		if bytes.Equal(b[:DiscriminatorSize], d[:]) {
			return k, true
		}
	}
	return 0, false
}

// MinSize is the smallest valid encoding of kind k.
func MinSize(k models.Kind) int {
	switch k {
	case models.KindRegistry:
		return MinRegistrySize
	case models.KindAgentProfile:
		return MinAgentProfileSize
	case models.KindSignal:
		return MinSignalSize
	}
	return 0
}

// MaxSize is the space a ledger allocates for kind k.
func MaxSize(k models.Kind) int {
	switch k {
	case models.KindRegistry:
		return MaxRegistrySize
	case models.KindAgentProfile:
		return MaxAgentProfileSize
	case models.KindSignal:
		return MaxSignalSize
	}
	return 0
}

// Encode dispatches on the concrete record type.
func Encode(r models.Record) ([]byte, error) {
	switch rec := r.(type) {
	case models.Registry:
		return EncodeRegistry(rec), nil
	case *models.Registry:
		return EncodeRegistry(*rec), nil
	case models.AgentProfile:
		return EncodeAgentProfile(rec)
	case *models.AgentProfile:
		return EncodeAgentProfile(*rec)
	case models.Signal:
		return EncodeSignal(rec)
	case *models.Signal:
		return EncodeSignal(*rec)
	default:
		return nil, fmt.Errorf("cannot encode record of type %T", r)
	}
}

// Decode reads any record kind; callers type-switch on the result, which is
// always a value (models.Registry, models.AgentProfile or models.Signal).
func Decode(b []byte) (models.Record, error) {
	k, ok := KindOf(b)
	if !ok {
		return nil, fmt.Errorf("%w: unknown discriminator", ErrMalformedRecord)
	}
	switch k {
	case models.KindRegistry:
		return DecodeRegistry(b)
	case models.KindAgentProfile:
		return DecodeAgentProfile(b)
	default:
		return DecodeSignal(b)
	}
}

func EncodeRegistry(r models.Registry) []byte {
	w := newWriter(models.KindRegistry)
	w.pubkey(r.Authority)
	w.u64(r.TotalSignals)
	w.u64(r.TotalAgents)
	w.u64(r.SignalFee)
	w.u8(r.Bump)
	return w.buf
}

func DecodeRegistry(b []byte) (models.Registry, error) {
	var r models.Registry
	rd, err := newReader(b, models.KindRegistry)
	if err != nil {
		return r, err
	}
	r.Authority = rd.pubkey()
	r.TotalSignals = rd.u64()
	r.TotalAgents = rd.u64()
	r.SignalFee = rd.u64()
	r.Bump = rd.u8()
	return r, rd.err
}

func EncodeAgentProfile(p models.AgentProfile) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent profile: %w", err)
	}
	w := newWriter(models.KindAgentProfile)
	w.pubkey(p.Authority)
	w.str(p.Name)
	w.u32(p.TotalSignals)
	w.u32(p.CorrectSignals)
	w.u32(p.IncorrectSignals)
	w.u32(p.ExpiredSignals)
	w.u16(p.AccuracyBps)
	w.u64(p.ReputationScore)
	w.i64(p.CreatedAt)
	w.u8(p.Bump)
	return w.buf, nil
}

func DecodeAgentProfile(b []byte) (models.AgentProfile, error) {
	var p models.AgentProfile
	rd, err := newReader(b, models.KindAgentProfile)
	if err != nil {
		return p, err
	}
	p.Authority = rd.pubkey()
	p.Name = rd.str("name", models.MaxNameLen)
	p.TotalSignals = rd.u32()
	p.CorrectSignals = rd.u32()
	p.IncorrectSignals = rd.u32()
	p.ExpiredSignals = rd.u32()
	p.AccuracyBps = rd.u16()
	p.ReputationScore = rd.u64()
	p.CreatedAt = rd.i64()
	p.Bump = rd.u8()
	if rd.err != nil {
		return models.AgentProfile{}, rd.err
	}
	if p.AccuracyBps > 10_000 {
		return models.AgentProfile{}, fmt.Errorf("%w: accuracy %d bps out of range", ErrMalformedRecord, p.AccuracyBps)
	}
	return p, nil
}

func EncodeSignal(s models.Signal) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signal: %w", err)
	}
	w := newWriter(models.KindSignal)
	w.pubkey(s.Agent)
	w.u64(s.Index)
	w.str(s.Asset)
	w.u8(uint8(s.Direction))
	w.u8(s.Confidence)
	w.u64(uint64(s.EntryPrice))
	w.u64(uint64(s.TargetPrice))
	w.u64(uint64(s.StopLoss))
	w.i64(s.TimeHorizon)
	w.buf = append(w.buf, s.ReasoningHash[:]...)
	w.i64(s.CreatedAt)
	w.boolean(s.Resolved)
	w.u8(uint8(s.Outcome))
	w.u64(uint64(s.ResolutionPrice))
	w.u8(s.Bump)
	return w.buf, nil
}

func DecodeSignal(b []byte) (models.Signal, error) {
	var s models.Signal
	rd, err := newReader(b, models.KindSignal)
	if err != nil {
		return s, err
	}
	s.Agent = rd.pubkey()
	s.Index = rd.u64()
	s.Asset = rd.str("asset", models.MaxAssetLen)
	s.Direction = models.Direction(rd.enum("direction", uint8(models.Short)))
	s.Confidence = rd.u8()
	s.EntryPrice = models.Price(rd.u64())
	s.TargetPrice = models.Price(rd.u64())
	s.StopLoss = models.Price(rd.u64())
	s.TimeHorizon = rd.i64()
	copy(s.ReasoningHash[:], rd.take(32))
	s.CreatedAt = rd.i64()
	s.Resolved = rd.boolean("resolved")
	s.Outcome = models.Outcome(rd.enum("outcome", uint8(models.Expired)))
	s.ResolutionPrice = models.Price(rd.u64())
	s.Bump = rd.u8()
	if rd.err != nil {
		return models.Signal{}, rd.err
	}
	if s.Confidence > models.MaxConfidence {
		return models.Signal{}, fmt.Errorf("%w: confidence %d out of range", ErrMalformedRecord, s.Confidence)
	}
	if s.Resolved != s.Outcome.Terminal() {
		return models.Signal{}, fmt.Errorf("%w: resolved=%t with outcome %s", ErrMalformedRecord, s.Resolved, s.Outcome)
	}
	if s.Resolved != (s.ResolutionPrice != 0) {
		return models.Signal{}, fmt.Errorf("%w: resolved=%t with resolution price %d", ErrMalformedRecord, s.Resolved, uint64(s.ResolutionPrice))
	}
	return s, nil
}

type writer struct {
	buf []byte
}

func newWriter(k models.Kind) *writer {
	d := discriminators[k]
	buf := make([]byte, 0, MaxSize(k))
	return &writer{buf: append(buf, d[:]...)}
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) i64(v int64)  { w.u64(uint64(v)) }

func (w *writer) pubkey(k models.Pubkey) { w.buf = append(w.buf, k[:]...) }

func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// reader walks a record buffer; the first failure sticks and later reads
// return zero values.
type reader struct {
	b   []byte
	off int
	err error
}

func newReader(b []byte, k models.Kind) (*reader, error) {
	if len(b) < MinSize(k) {
		return nil, fmt.Errorf("%w: %s needs at least %d bytes, got %d", ErrMalformedRecord, k, MinSize(k), len(b))
	}
	d := discriminators[k]
	if !bytes.Equal(b[:DiscriminatorSize], d[:]) {
		return nil, fmt.Errorf("%w: discriminator does not match %s", ErrMalformedRecord, k)
	}
	return &reader{b: b, off: DiscriminatorSize}, nil
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", ErrMalformedRecord, fmt.Sprintf(format, args...))
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.b)-r.off < n {
		r.fail("need %d bytes at offset %d, have %d", n, r.off, len(r.b)-r.off)
		return nil
	}
	s := r.b[r.off : r.off+n]
	r.off += n
	return s
}

func (r *reader) u8() uint8 {
	if s := r.take(1); s != nil {
		return s[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if s := r.take(2); s != nil {
		return binary.LittleEndian.Uint16(s)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if s := r.take(4); s != nil {
		return binary.LittleEndian.Uint32(s)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if s := r.take(8); s != nil {
		return binary.LittleEndian.Uint64(s)
	}
	return 0
}

func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) pubkey() models.Pubkey {
	var k models.Pubkey
	copy(k[:], r.take(models.PubkeySize))
	return k
}

func (r *reader) enum(field string, max uint8) uint8 {
	v := r.u8()
	if r.err == nil && v > max {
		r.fail("%s byte %d out of range", field, v)
	}
	return v
}

func (r *reader) boolean(field string) bool {
	v := r.u8()
	if r.err == nil && v > 1 {
		r.fail("%s byte %d is not a boolean", field, v)
	}
	return v == 1
}

func (r *reader) str(field string, max int) string {
	n := r.u32()
	if r.err != nil {
		return ""
	}
	if n > uint32(max) {
		r.fail("%s length %d exceeds %d", field, n, max)
		return ""
	}
	s := r.take(int(n))
	if r.err != nil {
		return ""
	}
	if !utf8.Valid(s) {
		r.fail("%s is not valid UTF-8", field)
		return ""
	}
	return string(s)
}
