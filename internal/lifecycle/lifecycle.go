// Package lifecycle holds the registry's state transitions as pure functions:
// each takes record values and returns the proposed next state, leaving the
// acceptance of that state to the ledger.
package lifecycle

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/rewired-gh/solsignal/internal/models"
)

const (
	BasisPoints       = 10_000
	ReputationDivisor = 100
)

var (
	ErrNotResolvable      = errors.New("signal already resolved")
	ErrHorizonNotReached  = errors.New("signal time horizon not reached")
	ErrInvalidSettlement  = errors.New("settlement price must be positive")
	ErrAgentMismatch      = errors.New("agent profile does not own the signal")
	ErrHorizonNotInFuture = errors.New("time horizon must be in the future")
	ErrNameTooLong        = fmt.Errorf("agent name longer than %d bytes", models.MaxNameLen)
	ErrCounterOverflow    = errors.New("signal counter overflow")
)

// Determine applies the settlement rule. Ties count as correct for both
// directions.
func Determine(direction models.Direction, target, settlement models.Price) models.Outcome {
	var correct bool
	switch direction {
	case models.Short:
		correct = settlement <= target
	default:
		correct = settlement >= target
	}
	if correct {
		return models.Correct
	}
	return models.Incorrect
}

// Resolve settles a pending signal against a price and updates the owning
// profile's counters and scores.
func Resolve(sig models.Signal, profile models.AgentProfile, settlement models.Price, now time.Time) (models.Signal, models.AgentProfile, error) {
	if err := checkSettleable(sig, profile, settlement, now); err != nil {
		return sig, profile, err
	}

	outcome := Determine(sig.Direction, sig.TargetPrice, settlement)
	sig.Resolved = true
	sig.Outcome = outcome
	sig.ResolutionPrice = settlement

	if outcome == models.Correct {
		profile.CorrectSignals++
	} else {
		profile.IncorrectSignals++
	}
	Rescore(&profile)
	return sig, profile, nil
}

// Expire settles a pending signal without a qualifying price comparison.
// reference is stored as the resolution price; accuracy is unaffected.
func Expire(sig models.Signal, profile models.AgentProfile, reference models.Price, now time.Time) (models.Signal, models.AgentProfile, error) {
	if err := checkSettleable(sig, profile, reference, now); err != nil {
		return sig, profile, err
	}

	sig.Resolved = true
	sig.Outcome = models.Expired
	sig.ResolutionPrice = reference
	profile.ExpiredSignals++
	Rescore(&profile)
	return sig, profile, nil
}

func checkSettleable(sig models.Signal, profile models.AgentProfile, price models.Price, now time.Time) error {
	if sig.Resolved {
		return ErrNotResolvable
	}
	if !sig.Matured(now) {
		return fmt.Errorf("%w: resolvable at %s", ErrHorizonNotReached, sig.Horizon().Format(time.RFC3339))
	}
	if price == 0 {
		return ErrInvalidSettlement
	}
	if profile.Authority != sig.Agent {
		return ErrAgentMismatch
	}
	return nil
}

// Rescore recomputes accuracy and reputation from the correct and incorrect
// counters. Accuracy is left untouched while nothing has been scored.
func Rescore(p *models.AgentProfile) {
	scored := uint64(p.CorrectSignals) + uint64(p.IncorrectSignals)
	if scored > 0 {
		p.AccuracyBps = uint16(uint64(p.CorrectSignals) * BasisPoints / scored)
	}
	p.ReputationScore = Reputation(p.AccuracyBps, scored)
}

// Reputation is accuracy weighted by the number of scored signals, or 0 if
// the product overflows.
func Reputation(accuracyBps uint16, scored uint64) uint64 {
	hi, lo := bits.Mul64(uint64(accuracyBps), scored)
	if hi != 0 {
		return 0
	}
	return lo / ReputationDivisor
}

// NextIndex is the index the next published signal receives.
func NextIndex(reg models.Registry) uint64 {
	return reg.TotalSignals + 1
}

// Draft is the caller-supplied part of a new signal.
type Draft struct {
	Asset         string
	Direction     models.Direction
	Confidence    uint8
	EntryPrice    models.Price
	TargetPrice   models.Price
	StopLoss      models.Price
	TimeHorizon   int64
	ReasoningHash [32]byte
}

// Publish assigns the next index and returns the updated registry and
// profile together with the new pending signal.
func Publish(reg models.Registry, profile models.AgentProfile, owner models.Pubkey, d Draft, now time.Time, bump uint8) (models.Registry, models.AgentProfile, models.Signal, error) {
	if profile.Authority != owner {
		return reg, profile, models.Signal{}, ErrAgentMismatch
	}
	if d.TimeHorizon <= now.Unix() {
		return reg, profile, models.Signal{}, ErrHorizonNotInFuture
	}
	if reg.TotalSignals == ^uint64(0) || profile.TotalSignals == ^uint32(0) {
		return reg, profile, models.Signal{}, ErrCounterOverflow
	}

	reg.TotalSignals++
	profile.TotalSignals++
	sig := models.Signal{
		Agent:         owner,
		Index:         reg.TotalSignals,
		Asset:         d.Asset,
		Direction:     d.Direction,
		Confidence:    d.Confidence,
		EntryPrice:    d.EntryPrice,
		TargetPrice:   d.TargetPrice,
		StopLoss:      d.StopLoss,
		TimeHorizon:   d.TimeHorizon,
		ReasoningHash: d.ReasoningHash,
		CreatedAt:     now.Unix(),
		Outcome:       models.Pending,
		Bump:          bump,
	}
	if err := sig.Validate(); err != nil {
		return reg, profile, models.Signal{}, err
	}
	return reg, profile, sig, nil
}

// Register creates a fresh profile and counts it in the registry.
func Register(reg models.Registry, owner models.Pubkey, name string, now time.Time, bump uint8) (models.Registry, models.AgentProfile, error) {
	if len(name) > models.MaxNameLen {
		return reg, models.AgentProfile{}, ErrNameTooLong
	}
	reg.TotalAgents++
	return reg, models.AgentProfile{
		Authority: owner,
		Name:      name,
		CreatedAt: now.Unix(),
		Bump:      bump,
	}, nil
}

// Initialize returns an empty registry owned by authority.
func Initialize(authority models.Pubkey, bump uint8) models.Registry {
	return models.Registry{Authority: authority, Bump: bump}
}
