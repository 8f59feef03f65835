// Package ledger is the account substrate the registry runs on: raw bytes at
// addresses, changed only through atomic state-conditioned transactions.
package ledger

import (
	"context"
	"errors"

	"github.com/rewired-gh/solsignal/internal/models"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrStateConflict     = errors.New("account state changed since read")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrReadOnly          = errors.New("ledger is read-only")
	ErrTxNotFound        = errors.New("transaction not found")
)

// Reader reads account bytes.
type Reader interface {
	Account(ctx context.Context, addr models.Pubkey) ([]byte, error)
	ProgramAccounts(ctx context.Context) ([]models.Account, error)
}

// Mutation proposes new bytes for one account. With Create the account must
// not exist yet; otherwise its current bytes must equal Expected.
type Mutation struct {
	Address  models.Pubkey
	Expected []byte
	Create   bool
	Data     []byte
}

// Transaction is applied all-or-nothing.
type Transaction struct {
	Kind      string
	Signer    models.Pubkey
	Mutations []Mutation
}

const (
	TxInitialize    = "initialize"
	TxRegisterAgent = "register_agent"
	TxPublishSignal = "publish_signal"
	TxResolveSignal = "resolve_signal"
	TxExpireSignal  = "expire_signal"
)

// Store is a Reader that also accepts transactions. Submit returns
// ErrStateConflict, and changes nothing, when any mutation's precondition
// does not hold.
type Store interface {
	Reader
	Submit(ctx context.Context, tx Transaction) (string, error)
}

// ReadOnly adapts a Reader into a Store whose Submit always fails with
// ErrReadOnly.
func ReadOnly(r Reader) Store {
	return readOnly{r}
}

type readOnly struct {
	Reader
}

func (readOnly) Submit(context.Context, Transaction) (string, error) {
	return "", ErrReadOnly
}
