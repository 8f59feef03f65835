// Package registry implements the signal registry operations (initialize,
// register, publish, resolve, expire) and its read API on top of a ledger.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/solsignal/internal/codec"
	"github.com/rewired-gh/solsignal/internal/ledger"
	"github.com/rewired-gh/solsignal/internal/lifecycle"
	"github.com/rewired-gh/solsignal/internal/models"
	"github.com/rewired-gh/solsignal/internal/pda"
)

// settleAttempts bounds the optimistic retry when an unrelated write (for
// example a concurrent publish touching the same profile) invalidates a
// resolve.
const settleAttempts = 3

type (
	SignalPage = codec.ScanResult[models.Signal]
	AgentPage  = codec.ScanResult[models.AgentProfile]
)

// Reader serves the read side of the registry.
type Reader struct {
	ledger ledger.Reader
	pda    *pda.Deriver
}

func NewReader(l ledger.Reader, d *pda.Deriver) *Reader {
	return &Reader{ledger: l, pda: d}
}

func (r *Reader) ProgramID() models.Pubkey {
	return r.pda.ProgramID()
}

func (r *Reader) Registry(ctx context.Context) (models.Registry, error) {
	reg, _, err := r.readRegistry(ctx)
	return reg, err
}

// AgentProfile returns the profile owned by owner and its address.
func (r *Reader) AgentProfile(ctx context.Context, owner models.Pubkey) (models.AgentProfile, models.Pubkey, error) {
	addr, _, err := r.pda.AgentProfile(owner)
	if err != nil {
		return models.AgentProfile{}, addr, err
	}
	p, _, err := r.readProfile(ctx, addr)
	return p, addr, err
}

func (r *Reader) Signal(ctx context.Context, addr models.Pubkey) (models.Signal, error) {
	sig, _, err := r.readSignal(ctx, addr)
	return sig, err
}

// Signals scans every signal; undecodable records are counted, not fatal.
func (r *Reader) Signals(ctx context.Context) (SignalPage, error) {
	accounts, err := r.ledger.ProgramAccounts(ctx)
	if err != nil {
		return SignalPage{}, fmt.Errorf("failed to list accounts: %w", err)
	}
	return codec.ScanSignals(accounts), nil
}

func (r *Reader) SignalsByAgent(ctx context.Context, owner models.Pubkey) (SignalPage, error) {
	page, err := r.Signals(ctx)
	if err != nil {
		return page, err
	}
	mine := page.Records[:0]
	for _, rec := range page.Records {
		if rec.Record.Agent == owner {
			mine = append(mine, rec)
		}
	}
	page.Records = mine
	return page, nil
}

func (r *Reader) Agents(ctx context.Context) (AgentPage, error) {
	accounts, err := r.ledger.ProgramAccounts(ctx)
	if err != nil {
		return AgentPage{}, fmt.Errorf("failed to list accounts: %w", err)
	}
	return codec.ScanAgentProfiles(accounts), nil
}

// NextSignalAddress previews where owner's next publish will land.
func (r *Reader) NextSignalAddress(ctx context.Context, owner models.Pubkey) (models.Pubkey, uint64, error) {
	reg, err := r.Registry(ctx)
	if err != nil {
		return models.Pubkey{}, 0, err
	}
	index := lifecycle.NextIndex(reg)
	addr, _, err := r.pda.Signal(owner, index)
	return addr, index, err
}

func (r *Reader) readRegistry(ctx context.Context) (models.Registry, []byte, error) {
	addr, _, err := r.pda.Registry()
	if err != nil {
		return models.Registry{}, nil, err
	}
	raw, err := r.ledger.Account(ctx, addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return models.Registry{}, nil, ErrNotInitialized
	}
	if err != nil {
		return models.Registry{}, nil, err
	}
	reg, err := codec.DecodeRegistry(raw)
	return reg, raw, err
}

func (r *Reader) readProfile(ctx context.Context, addr models.Pubkey) (models.AgentProfile, []byte, error) {
	raw, err := r.ledger.Account(ctx, addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return models.AgentProfile{}, nil, fmt.Errorf("%w: profile %s", ErrAgentNotRegistered, addr)
	}
	if err != nil {
		return models.AgentProfile{}, nil, err
	}
	p, err := codec.DecodeAgentProfile(raw)
	return p, raw, err
}

func (r *Reader) readSignal(ctx context.Context, addr models.Pubkey) (models.Signal, []byte, error) {
	raw, err := r.ledger.Account(ctx, addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return models.Signal{}, nil, fmt.Errorf("%w: %s", ErrSignalNotFound, addr)
	}
	if err != nil {
		return models.Signal{}, nil, err
	}
	sig, err := codec.DecodeSignal(raw)
	return sig, raw, err
}

// Client performs state-changing operations on behalf of one signer.
type Client struct {
	*Reader
	store  ledger.Store
	signer models.Pubkey
	now    func() time.Time
}

func NewClient(store ledger.Store, d *pda.Deriver, signer models.Pubkey) *Client {
	return &Client{Reader: NewReader(store, d), store: store, signer: signer, now: time.Now}
}

func (c *Client) Signer() models.Pubkey {
	return c.signer
}

// Initialize creates the registry singleton with the signer as authority.
func (c *Client) Initialize(ctx context.Context) (string, error) {
	authority := c.signer
	addr, bump, err := c.pda.Registry()
	if err != nil {
		return "", err
	}
	data, err := codec.Encode(lifecycle.Initialize(authority, bump))
	if err != nil {
		return "", err
	}
	return c.store.Submit(ctx, ledger.Transaction{
		Kind:      ledger.TxInitialize,
		Signer:    authority,
		Mutations: []ledger.Mutation{{Address: addr, Create: true, Data: data}},
	})
}

// RegisterAgent creates the signer's profile and returns the transaction id
// and profile address.
func (c *Client) RegisterAgent(ctx context.Context, name string) (string, models.Pubkey, error) {
	owner := c.signer
	if len(name) > models.MaxNameLen {
		return "", models.Pubkey{}, &ValidationError{Field: "name", Reason: fmt.Sprintf("must be at most %d bytes", models.MaxNameLen)}
	}
	reg, regRaw, err := c.readRegistry(ctx)
	if err != nil {
		return "", models.Pubkey{}, err
	}
	regAddr, _, err := c.pda.Registry()
	if err != nil {
		return "", models.Pubkey{}, err
	}
	profileAddr, bump, err := c.pda.AgentProfile(owner)
	if err != nil {
		return "", profileAddr, err
	}

	reg, profile, err := lifecycle.Register(reg, owner, name, c.now(), bump)
	if err != nil {
		return "", profileAddr, err
	}
	regData, err := codec.Encode(reg)
	if err != nil {
		return "", profileAddr, err
	}
	profileData, err := codec.Encode(profile)
	if err != nil {
		return "", profileAddr, err
	}

	txID, err := c.store.Submit(ctx, ledger.Transaction{
		Kind:   ledger.TxRegisterAgent,
		Signer: owner,
		Mutations: []ledger.Mutation{
			{Address: regAddr, Expected: regRaw, Data: regData},
			{Address: profileAddr, Create: true, Data: profileData},
		},
	})
	return txID, profileAddr, err
}

// PublishResult identifies a newly published signal.
type PublishResult struct {
	TxID          string        `json:"tx"`
	SignalAddress models.Pubkey `json:"signalAddress"`
	Index         uint64        `json:"index"`
	Signal        models.Signal `json:"-"`
}

// Publish validates p, derives the signer's next signal address from the
// current registry counter and submits the publish transaction.
func (c *Client) Publish(ctx context.Context, p PublishParams) (PublishResult, error) {
	owner := c.signer
	now := c.now()
	draft, err := p.Draft(now)
	if err != nil {
		return PublishResult{}, err
	}

	reg, regRaw, err := c.readRegistry(ctx)
	if err != nil {
		return PublishResult{}, &PublishError{Class: FailureOther, Err: err}
	}
	regAddr, _, err := c.pda.Registry()
	if err != nil {
		return PublishResult{}, &PublishError{Class: FailureOther, Err: err}
	}
	profileAddr, _, err := c.pda.AgentProfile(owner)
	if err != nil {
		return PublishResult{}, &PublishError{Class: FailureOther, Err: err}
	}
	profile, profileRaw, err := c.readProfile(ctx, profileAddr)
	if err != nil {
		return PublishResult{}, &PublishError{Class: FailureOther, Err: err}
	}

	index := lifecycle.NextIndex(reg)
	sigAddr, bump, err := c.pda.Signal(owner, index)
	if err != nil {
		return PublishResult{}, &PublishError{Class: FailureOther, Err: err}
	}
	reg, profile, sig, err := lifecycle.Publish(reg, profile, owner, draft, now, bump)
	if err != nil {
		return PublishResult{}, &PublishError{Class: FailureOther, Err: err}
	}

	regData, err := codec.Encode(reg)
	if err != nil {
		return PublishResult{}, &PublishError{Class: FailureOther, Err: err}
	}
	profileData, err := codec.Encode(profile)
	if err != nil {
		return PublishResult{}, &PublishError{Class: FailureOther, Err: err}
	}
	sigData, err := codec.Encode(sig)
	if err != nil {
		return PublishResult{}, &PublishError{Class: FailureOther, Err: err}
	}

	txID, err := c.store.Submit(ctx, ledger.Transaction{
		Kind:   ledger.TxPublishSignal,
		Signer: owner,
		Mutations: []ledger.Mutation{
			{Address: regAddr, Expected: regRaw, Data: regData},
			{Address: profileAddr, Expected: profileRaw, Data: profileData},
			{Address: sigAddr, Create: true, Data: sigData},
		},
	})
	if err != nil {
		return PublishResult{}, &PublishError{Class: classify(err), TxID: txID, Err: err}
	}
	return PublishResult{TxID: txID, SignalAddress: sigAddr, Index: index, Signal: sig}, nil
}

// ResolveResult reports a settled signal.
type ResolveResult struct {
	TxID    string              `json:"tx"`
	Outcome models.Outcome      `json:"outcome"`
	Signal  models.Signal       `json:"-"`
	Profile models.AgentProfile `json:"-"`
}

// Resolve settles the signal at addr against settlement. Anyone may call it;
// when several callers race, exactly one succeeds and the others get
// lifecycle.ErrNotResolvable.
func (c *Client) Resolve(ctx context.Context, addr models.Pubkey, settlement models.Price) (ResolveResult, error) {
	return c.settle(ctx, addr, settlement, ledger.TxResolveSignal, lifecycle.Resolve)
}

// Expire settles the signal at addr as Expired, recording reference as its
// resolution price.
func (c *Client) Expire(ctx context.Context, addr models.Pubkey, reference models.Price) (ResolveResult, error) {
	return c.settle(ctx, addr, reference, ledger.TxExpireSignal, lifecycle.Expire)
}

type transition func(models.Signal, models.AgentProfile, models.Price, time.Time) (models.Signal, models.AgentProfile, error)

func (c *Client) settle(ctx context.Context, addr models.Pubkey, price models.Price, kind string, next transition) (ResolveResult, error) {
	var lastErr error
	for attempt := 0; attempt < settleAttempts; attempt++ {
		sig, sigRaw, err := c.readSignal(ctx, addr)
		if err != nil {
			return ResolveResult{}, err
		}
		if sig.Resolved {
			return ResolveResult{}, fmt.Errorf("signal %s: %w", addr, lifecycle.ErrNotResolvable)
		}
		profileAddr, _, err := c.pda.AgentProfile(sig.Agent)
		if err != nil {
			return ResolveResult{}, err
		}
		profile, profileRaw, err := c.readProfile(ctx, profileAddr)
		if err != nil {
			return ResolveResult{}, err
		}

		sig, profile, err = next(sig, profile, price, c.now())
		if err != nil {
			return ResolveResult{}, fmt.Errorf("signal %s: %w", addr, err)
		}
		sigData, err := codec.Encode(sig)
		if err != nil {
			return ResolveResult{}, err
		}
		profileData, err := codec.Encode(profile)
		if err != nil {
			return ResolveResult{}, err
		}

		txID, err := c.store.Submit(ctx, ledger.Transaction{
			Kind:   kind,
			Signer: c.signer,
			Mutations: []ledger.Mutation{
				{Address: addr, Expected: sigRaw, Data: sigData},
				{Address: profileAddr, Expected: profileRaw, Data: profileData},
			},
		})
		if err == nil {
			return ResolveResult{TxID: txID, Outcome: sig.Outcome, Signal: sig, Profile: profile}, nil
		}
		if !errors.Is(err, ledger.ErrStateConflict) {
			return ResolveResult{}, fmt.Errorf("signal %s: %w", addr, err)
		}
		lastErr = err
	}
	return ResolveResult{}, fmt.Errorf("signal %s: gave up after %d attempts: %w", addr, settleAttempts, lastErr)
}
