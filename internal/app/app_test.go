package app

import (
	"context"
	"errors"
	"testing"

	"github.com/rewired-gh/solsignal/internal/ledger"
	"github.com/rewired-gh/solsignal/internal/models"
	"github.com/rewired-gh/solsignal/internal/pda"
	"github.com/rewired-gh/solsignal/internal/registry"
)

type recordingNotifier struct {
	errors     []string
	recoveries []int
}

func (n *recordingNotifier) SendError(job string, err error) error {
	n.errors = append(n.errors, job+": "+err.Error())
	return nil
}

func (n *recordingNotifier) SendRecovery(_ string, failureCount int) error {
	n.recoveries = append(n.recoveries, failureCount)
	return nil
}

func TestFailureTracker(t *testing.T) {
	n := &recordingNotifier{}
	tr := NewFailureTracker("analyst", n)

	tr.Observe(nil)
	tr.Observe(errors.New("hermes down"))
	tr.Observe(errors.New("hermes still down"))
	tr.Observe(errors.New("hermes still down"))
	if tr.Consecutive() != 3 {
		t.Errorf("Consecutive() = %d, want 3", tr.Consecutive())
	}
	tr.Observe(nil)
	tr.Observe(nil)

	if len(n.errors) != 1 || n.errors[0] != "analyst: hermes down" {
		t.Errorf("expected one error notification, got %v", n.errors)
	}
	if len(n.recoveries) != 1 || n.recoveries[0] != 3 {
		t.Errorf("expected one recovery after 3 failures, got %v", n.recoveries)
	}
	if tr.Consecutive() != 0 {
		t.Errorf("streak not reset: %d", tr.Consecutive())
	}
}

func TestFailureTracker_NilNotifier(t *testing.T) {
	tr := NewFailureTracker("resolver", nil)
	tr.Observe(errors.New("boom"))
	tr.Observe(nil)
}

func TestEnsureRegistryAndAgent(t *testing.T) {
	l, err := ledger.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	ctx := context.Background()
	signer := models.Pubkey{0x42}
	c := registry.NewClient(l, pda.New(pda.DefaultProgramID), signer)

	for i := 0; i < 2; i++ {
		if err := EnsureRegistry(ctx, c); err != nil {
			t.Fatalf("EnsureRegistry #%d: %v", i, err)
		}
		if err := EnsureAgent(ctx, c, "batman"); err != nil {
			t.Fatalf("EnsureAgent #%d: %v", i, err)
		}
	}

	reg, err := c.Registry(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Authority != signer || reg.TotalAgents != 1 {
		t.Errorf("unexpected registry %+v", reg)
	}
}

func TestEnsureRegistry_ReadOnlyLedger(t *testing.T) {
	l, err := ledger.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	c := registry.NewClient(ledger.ReadOnly(l), pda.New(pda.DefaultProgramID), models.Pubkey{0x42})
	if err := EnsureRegistry(context.Background(), c); !errors.Is(err, ledger.ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
}
