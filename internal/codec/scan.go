package codec

import "github.com/rewired-gh/solsignal/internal/models"

// Decoded pairs a record with the address it was read from.
type Decoded[T any] struct {
	Address models.Pubkey
	Record  T
}

// ScanResult holds the records of one kind found in a bulk read. Failed
// counts accounts tagged with the requested kind (or too short to carry any
// tag) that did not decode; Skipped counts accounts of other kinds.
type ScanResult[T any] struct {
	Records []Decoded[T]
	Failed  int
	Skipped int
}

func ScanSignals(accounts []models.Account) ScanResult[models.Signal] {
	return scan(accounts, models.KindSignal, DecodeSignal)
}

func ScanAgentProfiles(accounts []models.Account) ScanResult[models.AgentProfile] {
	return scan(accounts, models.KindAgentProfile, DecodeAgentProfile)
}

func scan[T any](accounts []models.Account, kind models.Kind, decode func([]byte) (T, error)) ScanResult[T] {
	var res ScanResult[T]
	for _, acc := range accounts {
		if len(acc.Data) < DiscriminatorSize {
			res.Failed++
			continue
		}
		if k, ok := KindOf(acc.Data); !ok || k != kind {
			res.Skipped++
			continue
		}
		rec, err := decode(acc.Data)
		if err != nil {
			res.Failed++
			continue
		}
		res.Records = append(res.Records, Decoded[T]{Address: acc.Address, Record: rec})
	}
	return res
}
