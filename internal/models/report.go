package models

import "time"

// PublishedSignal records one signal accepted by the ledger during a run.
type PublishedSignal struct {
	Address    Pubkey    `json:"address"`
	Index      uint64    `json:"index"`
	TxID       string    `json:"tx"`
	Asset      string    `json:"asset"`
	Direction  Direction `json:"direction"`
	Confidence int       `json:"confidence"`
	Entry      Price     `json:"entry"`
	Target     Price     `json:"target"`
	Stop       Price     `json:"stop"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// RunReport summarizes one analyst batch.
type RunReport struct {
	ID            string            `json:"id"`
	StartedAt     time.Time         `json:"startedAt"`
	FinishedAt    time.Time         `json:"finishedAt"`
	DryRun        bool              `json:"dryRun"`
	PricesFetched int               `json:"pricesFetched"`
	AssetsSkipped int               `json:"assetsSkipped"`
	Candidates    int               `json:"candidates"`
	Published     []PublishedSignal `json:"published"`
	Failed        int               `json:"failed"`
	Aborted       bool              `json:"aborted"`
	AbortReason   string            `json:"abortReason,omitempty"`
}

// Resolution records one settled signal.
type Resolution struct {
	Address    Pubkey    `json:"address"`
	Index      uint64    `json:"index"`
	TxID       string    `json:"tx"`
	Asset      string    `json:"asset"`
	Direction  Direction `json:"direction"`
	Target     Price     `json:"target"`
	Settlement Price     `json:"settlement"`
	Outcome    Outcome   `json:"outcome"`
}

// ResolutionReport summarizes one resolver batch.
type ResolutionReport struct {
	ID              string       `json:"id"`
	StartedAt       time.Time    `json:"startedAt"`
	FinishedAt      time.Time    `json:"finishedAt"`
	Scanned         int          `json:"scanned"`
	Undecodable     int          `json:"undecodable"`
	AlreadyResolved int          `json:"alreadyResolved"`
	NotYetExpired   int          `json:"notYetExpired"`
	ExpiredPending  int          `json:"expiredPending"`
	Resolved        []Resolution `json:"resolved"`
	LostRaces       int          `json:"lostRaces"`
	NoPrice         int          `json:"noPrice"`
	Failed          int          `json:"failed"`
}

// Count returns the number of resolutions with the given outcome.
func (r ResolutionReport) Count(o Outcome) int {
	n := 0
	for _, res := range r.Resolved {
		if res.Outcome == o {
			n++
		}
	}
	return n
}
