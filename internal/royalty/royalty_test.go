package royalty

import (
	"context"
	"errors"
	"testing"

	"royalty-exchange/go-backend/internal/contracts"
	"royalty-exchange/go-backend/internal/deploy"
	"royalty-exchange/go-backend/internal/executor"
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger/simnet"
	"royalty-exchange/go-backend/internal/txn"
)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	net      *simnet.Ledger
	enforcer *Enforcer
	creator  *identity.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	net := simnet.New(simnet.Config{})
	engine := executor.New(executor.Config{Ledger: net})
	f := &fixture{t: t, ctx: ctx, net: net}
	f.creator = f.account()
	app, _, err := deploy.CreateApplication(ctx, engine, f.creator, contracts.EnforcerApp(), 2)
	if err != nil {
		t.Fatalf("deploy enforcer: %v", err)
	}
	f.enforcer, err = New(Config{Engine: engine, State: net, App: app, Rounds: 2})
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}
	return f
}

func (f *fixture) account() *identity.Identity {
	f.t.Helper()
	id, _, err := identity.Generate()
	if err != nil {
		f.t.Fatalf("generate identity: %v", err)
	}
	f.net.Fund(id.Address(), 10_000_000)
	return id
}

func (f *fixture) holding(addr identity.Address, asset txn.AssetID) uint64 {
	f.t.Helper()
	acct, err := f.net.AccountInfo(f.ctx, addr)
	if err != nil {
		f.t.Fatalf("account info: %v", err)
	}
	h, _ := acct.Holding(asset)
	return h.Amount
}

func TestMintDepositsWithEnforcer(t *testing.T) {
	f := newFixture(t)
	first, c, err := f.enforcer.Mint(f.ctx, f.creator)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if c == nil || c.Results[len(c.Results)-1].CreatedAssetID != first {
		t.Fatalf("committed group does not report asset %d: %+v", first, c)
	}
	if got := f.holding(f.enforcer.Address(), first); got != 1 {
		t.Fatalf("enforcer should hold the minted unit, holds %d", got)
	}
	// The owner is already opted in, so the second mint skips the opt-in.
	second, _, err := f.enforcer.Mint(f.ctx, f.creator)
	if err != nil {
		t.Fatalf("second mint: %v", err)
	}
	if second == first {
		t.Fatalf("expected a new asset, got %d twice", first)
	}
}

func TestPolicyIsSetOnce(t *testing.T) {
	f := newFixture(t)
	beneficiary := f.account()

	if _, err := f.enforcer.Policy(f.ctx); !errors.Is(err, ErrPolicyUnset) {
		t.Fatalf("expected ErrPolicyUnset, got %v", err)
	}
	if _, err := f.enforcer.SetPolicy(f.ctx, f.creator, 10_001, beneficiary.Address()); !errors.Is(err, ErrBasisPoints) {
		t.Fatalf("expected ErrBasisPoints, got %v", err)
	}
	c, err := f.enforcer.SetPolicy(f.ctx, f.creator, 1000, beneficiary.Address())
	if err != nil {
		t.Fatalf("set policy: %v", err)
	}
	if c == nil || c.ID().IsZero() {
		t.Fatalf("set policy should return its committed group, got %+v", c)
	}
	pol, err := f.enforcer.Policy(f.ctx)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if pol.BasisPoints != 1000 || pol.Beneficiary != beneficiary.Address() {
		t.Fatalf("unexpected policy %+v", pol)
	}
	var rejected *executor.RejectedError
	if _, err := f.enforcer.SetPolicy(f.ctx, f.creator, 500, beneficiary.Address()); !errors.As(err, &rejected) {
		t.Fatalf("expected the second policy to be rejected, got %v", err)
	}
}

func TestEnforcedMoveAndOffer(t *testing.T) {
	f := newFixture(t)
	asset, _, err := f.enforcer.Mint(f.ctx, f.creator)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.enforcer.EnforcedMove(f.ctx, f.creator, Move{Asset: asset, Amount: 1, From: f.enforcer.Address(), To: f.creator}); err != nil {
		t.Fatalf("enforced move: %v", err)
	}
	if got := f.holding(f.creator.Address(), asset); got != 1 {
		t.Fatalf("owner should hold 1 unit, holds %d", got)
	}

	target := txn.AppID(4242)
	g, err := f.enforcer.Offer(f.ctx, f.creator, OfferTerms{Asset: asset, Amount: 1, Target: target})
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if g.Len() != 1 {
		t.Fatalf("offer group has %d operations", g.Len())
	}
	vals, err := contracts.OfferArgs(f.enforcer.OfferMethod(), g.Entry(0).Op)
	if err != nil {
		t.Fatalf("decode offer: %v", err)
	}
	if vals.Asset != asset || vals.Auth != txn.ApplicationAddress(target) || vals.PrevAmount != 0 {
		t.Fatalf("unexpected offer %+v", vals)
	}
	rec, err := f.enforcer.RecordedOffer(f.ctx, f.creator.Address(), asset)
	if err != nil || !rec.IsZero() {
		t.Fatalf("a frozen offer must not be recorded: %+v %v", rec, err)
	}

	if _, err := f.enforcer.SubmitOffer(f.ctx, g); err != nil {
		t.Fatalf("submit offer: %v", err)
	}
	rec, err = f.enforcer.RecordedOffer(f.ctx, f.creator.Address(), asset)
	if err != nil {
		t.Fatalf("recorded offer: %v", err)
	}
	if rec.Amount != 1 || rec.Auth != txn.ApplicationAddress(target) {
		t.Fatalf("unexpected recorded offer %+v", rec)
	}

	// A stale previous offer is refused by the enforcer.
	stale := contracts.Offer{}
	revoke, err := f.enforcer.Offer(f.ctx, f.creator, OfferTerms{Asset: asset, Target: target, Previous: &stale})
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	var rejected *executor.RejectedError
	if _, err := f.enforcer.SubmitOffer(f.ctx, revoke); !errors.As(err, &rejected) {
		t.Fatalf("expected previous offer mismatch, got %v", err)
	}

	revoke, err = f.enforcer.Offer(f.ctx, f.creator, OfferTerms{Asset: asset, Target: target})
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if _, err := f.enforcer.SubmitOffer(f.ctx, revoke); err != nil {
		t.Fatalf("revoke offer: %v", err)
	}
	if rec, err := f.enforcer.RecordedOffer(f.ctx, f.creator.Address(), asset); err != nil || !rec.IsZero() {
		t.Fatalf("a zero-amount offer must clear the record: %+v %v", rec, err)
	}
}
