// Package models defines the registry records: the global Registry, agent
// profiles and published signals, plus the run reports built around them.
package models

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxNameLen      = 32
	MaxAssetLen     = 32
	MaxReasoningLen = 512
	MaxConfidence   = 100
)

// Kind identifies which record type an account holds.
type Kind uint8

const (
	KindRegistry Kind = iota + 1
	KindAgentProfile
	KindSignal
)

// Kinds lists every record kind in declaration order.
var Kinds = []Kind{KindRegistry, KindAgentProfile, KindSignal}

// String returns the account type name, which also seeds the kind's
// discriminator.
func (k Kind) String() string {
	switch k {
	case KindRegistry:
		return "Registry"
	case KindAgentProfile:
		return "AgentProfile"
	case KindSignal:
		return "Signal"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Record is implemented by the three stored record types.
type Record interface {
	Kind() Kind
}

type Direction uint8

const (
	Long Direction = iota
	Short
)

func (d Direction) Valid() bool {
	return d <= Short
}

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection accepts "long" or "short", case-insensitively.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long":
		return Long, nil
	case "short":
		return Short, nil
	default:
		return 0, fmt.Errorf("direction must be \"long\" or \"short\", got %q", s)
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid direction %d", uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type Outcome uint8

const (
	Pending Outcome = iota
	Correct
	Incorrect
	Expired
)

func (o Outcome) Valid() bool {
	return o <= Expired
}

// Terminal reports whether o is a settled outcome.
func (o Outcome) Terminal() bool {
	return o != Pending && o.Valid()
}

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return Pending, nil
	case "correct":
		return Correct, nil
	case "incorrect":
		return Incorrect, nil
	case "expired":
		return Expired, nil
	default:
		return 0, fmt.Errorf("unknown outcome %q", s)
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("invalid outcome %d", uint8(o))
	}
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	parsed, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Registry is the process-wide singleton counting agents and signals.
type Registry struct {
	Authority    Pubkey `json:"authority"`
	TotalSignals uint64 `json:"totalSignals"`
	TotalAgents  uint64 `json:"totalAgents"`
	SignalFee    uint64 `json:"signalFee"`
	Bump         uint8  `json:"bump"`
}

func (Registry) Kind() Kind { return KindRegistry }

// AgentProfile is the per-agent reputation record.
type AgentProfile struct {
	Authority        Pubkey `json:"authority"`
	Name             string `json:"name"`
	TotalSignals     uint32 `json:"totalSignals"`
	CorrectSignals   uint32 `json:"correctSignals"`
	IncorrectSignals uint32 `json:"incorrectSignals"`
	ExpiredSignals   uint32 `json:"expiredSignals"`
	AccuracyBps      uint16 `json:"accuracyBps"`
	ReputationScore  uint64 `json:"reputationScore"`
	CreatedAt        int64  `json:"createdAt"`
	Bump             uint8  `json:"bump"`
}

func (AgentProfile) Kind() Kind { return KindAgentProfile }

// Settled is the number of signals that reached a terminal outcome.
func (p AgentProfile) Settled() uint64 {
	return uint64(p.CorrectSignals) + uint64(p.IncorrectSignals) + uint64(p.ExpiredSignals)
}

// PendingSignals is derived: total minus every terminal counter.
func (p AgentProfile) PendingSignals() uint64 {
	settled := p.Settled()
	if settled > uint64(p.TotalSignals) {
		return 0
	}
	return uint64(p.TotalSignals) - settled
}

// Validate checks profile field constraints.
func (p *AgentProfile) Validate() error {
	if len(p.Name) > MaxNameLen {
		return fmt.Errorf("agent name is %d bytes, max %d", len(p.Name), MaxNameLen)
	}
	if !utf8.ValidString(p.Name) {
		return errors.New("agent name must be valid UTF-8")
	}
	if p.Settled() > uint64(p.TotalSignals) {
		return errors.New("settled signal counters exceed total signals")
	}
	if p.AccuracyBps > 10_000 {
		return errors.New("accuracy must be at most 10000 basis points")
	}
	return nil
}

// Signal is one immutable published forecast; only the resolution fields
// change after publication.
type Signal struct {
	Agent           Pubkey    `json:"agent"`
	Index           uint64    `json:"index"`
	Asset           string    `json:"asset"`
	Direction       Direction `json:"direction"`
	Confidence      uint8     `json:"confidence"`
	EntryPrice      Price     `json:"entryPrice"`
	TargetPrice     Price     `json:"targetPrice"`
	StopLoss        Price     `json:"stopLoss"`
	TimeHorizon     int64     `json:"timeHorizon"`
	ReasoningHash   [32]byte  `json:"-"`
	CreatedAt       int64     `json:"createdAt"`
	Resolved        bool      `json:"resolved"`
	Outcome         Outcome   `json:"outcome"`
	ResolutionPrice Price     `json:"resolutionPrice"`
	Bump            uint8     `json:"bump"`
}

func (Signal) Kind() Kind { return KindSignal }

// Horizon returns the time at which the signal becomes resolvable.
func (s Signal) Horizon() time.Time {
	return time.Unix(s.TimeHorizon, 0).UTC()
}

// Matured reports whether now is at or past the horizon.
func (s Signal) Matured(now time.Time) bool {
	return now.Unix() >= s.TimeHorizon
}

// Validate checks signal field constraints.
func (s *Signal) Validate() error {
	if len(s.Asset) > MaxAssetLen {
		return fmt.Errorf("asset is %d bytes, max %d", len(s.Asset), MaxAssetLen)
	}
	if !utf8.ValidString(s.Asset) {
		return errors.New("asset must be valid UTF-8")
	}
	if !s.Direction.Valid() {
		return fmt.Errorf("invalid direction %d", uint8(s.Direction))
	}
	if s.Confidence > MaxConfidence {
		return fmt.Errorf("confidence %d exceeds %d", s.Confidence, MaxConfidence)
	}
	if !s.Outcome.Valid() {
		return fmt.Errorf("invalid outcome %d", uint8(s.Outcome))
	}
	if s.Resolved != s.Outcome.Terminal() {
		return fmt.Errorf("resolved=%t inconsistent with outcome %s", s.Resolved, s.Outcome)
	}
	if s.Resolved != (s.ResolutionPrice != 0) {
		return fmt.Errorf("resolved=%t inconsistent with resolution price %s", s.Resolved, s.ResolutionPrice)
	}
	return nil
}

// ReasoningHash is the 32-byte digest stored with a signal: the first 32
// bytes of the text, with the text length (u64 little-endian) XORed into the
// last eight bytes.
func ReasoningHash(reasoning string) [32]byte {
	var h [32]byte
	copy(h[:], reasoning)
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(reasoning)))
	for i := range n {
		h[24+i] ^= n[i]
	}
	return h
}
