package simnet

import (
	"context"
	"errors"
	"testing"

	"royalty-exchange/go-backend/internal/contracts"
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/txn"
)

const funding = 100_000_000

type fixture struct {
	t      *testing.T
	ctx    context.Context
	ledger *Ledger
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	return &fixture{t: t, ctx: context.Background(), ledger: New(cfg)}
}

func (f *fixture) account() *identity.Identity {
	f.t.Helper()
	id, _, err := identity.Generate()
	if err != nil {
		f.t.Fatalf("generate identity: %v", err)
	}
	f.ledger.Fund(id.Address(), funding)
	return id
}

func (f *fixture) params() txn.Params {
	f.t.Helper()
	p, err := f.ledger.SuggestedParams(f.ctx)
	if err != nil {
		f.t.Fatalf("suggested params: %v", err)
	}
	return p
}

func (f *fixture) balance(addr identity.Address) uint64 {
	f.t.Helper()
	info, err := f.ledger.AccountInfo(f.ctx, addr)
	if err != nil {
		f.t.Fatalf("account info: %v", err)
	}
	return info.Balance
}

func (f *fixture) submission(b *txn.Builder) ledger.Submission {
	f.t.Helper()
	frozen, err := b.Freeze()
	if err != nil {
		f.t.Fatalf("freeze: %v", err)
	}
	sub, err := ledger.NewSubmission(frozen)
	if err != nil {
		f.t.Fatalf("submission: %v", err)
	}
	return sub
}

func (f *fixture) commit(b *txn.Builder) *ledger.Receipt {
	f.t.Helper()
	id, err := f.ledger.SubmitGroup(f.ctx, f.submission(b))
	if err != nil {
		f.t.Fatalf("submit: %v", err)
	}
	receipt, err := f.ledger.WaitForConfirmation(f.ctx, id, 2)
	if err != nil {
		f.t.Fatalf("wait: %v", err)
	}
	return receipt
}

func (f *fixture) call(app txn.AppID, iface string, method string, signer *identity.Identity, args ...txn.Arg) *txn.Builder {
	f.t.Helper()
	reg := contracts.MustEnforcer()
	if iface == "marketplace" {
		reg = contracts.MustMarketplace()
	}
	m, err := reg.Resolve(method)
	if err != nil {
		f.t.Fatalf("resolve: %v", err)
	}
	b := txn.NewBuilder()
	if err := b.AddMethodCall(txn.MethodCall{AppID: app, Method: m, Sender: signer.Address(), Signer: signer, Args: args, Params: f.params()}); err != nil {
		f.t.Fatalf("add call %s: %v", method, err)
	}
	return b
}

func (f *fixture) createApp(creator *identity.Identity, spec contracts.AppSpec) txn.AppID {
	f.t.Helper()
	b := txn.NewBuilder()
	op := txn.AppCreate(creator.Address(), spec.Approval, spec.Clear, spec.GlobalSchema, spec.LocalSchema, f.params())
	if err := b.AddTransfer(op, creator); err != nil {
		f.t.Fatalf("add create: %v", err)
	}
	receipt := f.commit(b)
	return receipt.Results[0].CreatedAppID
}

// mint deploys an enforcer and mints one asset into the application account.
func (f *fixture) mint(creator *identity.Identity) (txn.AppID, txn.AssetID) {
	f.t.Helper()
	app := f.createApp(creator, contracts.EnforcerApp())
	mb := txn.NewBuilder()
	p := f.params()
	if err := mb.AddTransfer(txn.Payment(creator.Address(), txn.ApplicationAddress(app), contracts.AssetFunding, p), creator); err != nil {
		f.t.Fatalf("add funding: %v", err)
	}
	if err := mb.AddTransfer(txn.AppOptIn(creator.Address(), app, p), creator); err != nil {
		f.t.Fatalf("add opt-in: %v", err)
	}
	m, _ := contracts.MustEnforcer().Resolve(contracts.MethodCreateNFT)
	if err := mb.AddMethodCall(txn.MethodCall{AppID: app, Method: m, Sender: creator.Address(), Signer: creator, Params: p}); err != nil {
		f.t.Fatalf("add create_nft: %v", err)
	}
	receipt := f.commit(mb)
	asset := receipt.Results[2].CreatedAssetID
	if asset == 0 {
		f.t.Fatal("create_nft did not create an asset")
	}
	return app, asset
}

func TestPaymentCommitsAndChargesFee(t *testing.T) {
	f := newFixture(t, Config{})
	alice, bob := f.account(), f.account()
	b := txn.NewBuilder()
	if err := b.AddTransfer(txn.Payment(alice.Address(), bob.Address(), 500, f.params()), alice); err != nil {
		t.Fatalf("add: %v", err)
	}
	receipt := f.commit(b)
	if receipt.ConfirmedRound != 1 {
		t.Fatalf("expected round 1, got %d", receipt.ConfirmedRound)
	}
	if got := f.balance(alice.Address()); got != funding-500-DefaultMinFee {
		t.Fatalf("unexpected sender balance %d", got)
	}
	if got := f.balance(bob.Address()); got != funding+500 {
		t.Fatalf("unexpected receiver balance %d", got)
	}
}

func TestGroupAtomicity(t *testing.T) {
	// The overspending payment is placed at every position of the group; no
	// position may leave a trace of the other operations.
	for pos := 0; pos < 4; pos++ {
		f := newFixture(t, Config{})
		alice, bob, carol := f.account(), f.account(), f.account()
		b := txn.NewBuilder()
		p := f.params()
		for i := 0; i < 4; i++ {
			op := txn.Payment(alice.Address(), bob.Address(), uint64(10+i), p)
			signer := alice
			if i == pos {
				op = txn.Payment(carol.Address(), bob.Address(), funding*2, p)
				signer = carol
			}
			if err := b.AddTransfer(op, signer); err != nil {
				t.Fatalf("add: %v", err)
			}
		}
		_, err := f.ledger.SubmitGroup(f.ctx, f.submission(b))
		var rej *ledger.RejectError
		if !errors.As(err, &rej) || rej.Index != pos {
			t.Fatalf("position %d: expected reject at %d, got %v", pos, pos, err)
		}
		for _, id := range []*identity.Identity{alice, bob, carol} {
			if got := f.balance(id.Address()); got != funding {
				t.Fatalf("position %d: balance of %s changed to %d", pos, id.Address(), got)
			}
		}
	}
}

func TestDuplicateAndTamperedGroupsRejected(t *testing.T) {
	f := newFixture(t, Config{})
	alice, bob := f.account(), f.account()
	b := txn.NewBuilder()
	if err := b.AddTransfer(txn.Payment(alice.Address(), bob.Address(), 1, f.params()), alice); err != nil {
		t.Fatalf("add: %v", err)
	}
	sub := f.submission(b)
	if _, err := f.ledger.SubmitGroup(f.ctx, sub); err != nil {
		t.Fatalf("submit: %v", err)
	}
	var rej *ledger.RejectError
	if _, err := f.ledger.SubmitGroup(f.ctx, sub); !errors.As(err, &rej) {
		t.Fatalf("expected duplicate reject, got %v", err)
	}

	b = txn.NewBuilder()
	if err := b.AddTransfer(txn.Payment(alice.Address(), bob.Address(), 2, f.params()), alice); err != nil {
		t.Fatalf("add: %v", err)
	}
	tampered := f.submission(b)
	tampered.Txns[0].Txn.Amount = 2_000
	if _, err := f.ledger.SubmitGroup(f.ctx, tampered); !errors.As(err, &rej) || rej.Reason != "invalid signature" {
		t.Fatalf("expected signature reject, got %v", err)
	}
}

func TestHeldGroupTimesOutThenCommits(t *testing.T) {
	f := newFixture(t, Config{})
	alice, bob := f.account(), f.account()
	b := txn.NewBuilder()
	if err := b.AddTransfer(txn.Payment(alice.Address(), bob.Address(), 7, f.params()), alice); err != nil {
		t.Fatalf("add: %v", err)
	}
	f.ledger.Hold()
	id, err := f.ledger.SubmitGroup(f.ctx, f.submission(b))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.ledger.WaitForConfirmation(f.ctx, id, 3); !errors.Is(err, ledger.ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
	status, err := f.ledger.GroupStatus(f.ctx, id)
	if err != nil || status.State != ledger.GroupPending {
		t.Fatalf("expected pending group, got %+v %v", status, err)
	}
	f.ledger.Release()
	receipt, err := f.ledger.WaitForConfirmation(f.ctx, id, 1)
	if err != nil {
		t.Fatalf("wait after release: %v", err)
	}
	if receipt.ConfirmedRound <= 3 {
		t.Fatalf("expected commit after the empty rounds, got round %d", receipt.ConfirmedRound)
	}
}

func TestTimedModeCommitsOnTick(t *testing.T) {
	f := newFixture(t, Config{Mode: ModeTimed})
	alice, bob := f.account(), f.account()
	b := txn.NewBuilder()
	if err := b.AddTransfer(txn.Payment(alice.Address(), bob.Address(), 9, f.params()), alice); err != nil {
		t.Fatalf("add: %v", err)
	}
	id, err := f.ledger.SubmitGroup(f.ctx, f.submission(b))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := f.balance(bob.Address()); got != funding {
		t.Fatalf("timed mode must not commit before a tick, got %d", got)
	}
	f.ledger.Tick()
	receipt, err := f.ledger.WaitForConfirmation(f.ctx, id, 1)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if receipt.ConfirmedRound != 1 || f.balance(bob.Address()) != funding+9 {
		t.Fatalf("unexpected commit: round %d", receipt.ConfirmedRound)
	}
}

func TestSimulateDoesNotCommit(t *testing.T) {
	f := newFixture(t, Config{})
	alice, bob := f.account(), f.account()
	b := txn.NewBuilder()
	p := f.params()
	if err := b.AddTransfer(txn.Payment(alice.Address(), bob.Address(), 5, p), alice); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.AddTransfer(txn.Payment(bob.Address(), alice.Address(), funding*3, p), bob); err != nil {
		t.Fatalf("add: %v", err)
	}
	trace, err := f.ledger.Simulate(f.ctx, f.submission(b))
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	failed, ok := trace.Failed()
	if !ok || failed.Index != 1 {
		t.Fatalf("expected failure at 1, got %+v", trace.Ops)
	}
	if len(trace.Ops) != 2 || len(trace.Ops[0].Steps) == 0 {
		t.Fatalf("expected a step trace for both operations, got %+v", trace.Ops)
	}
	if got := f.balance(bob.Address()); got != funding {
		t.Fatalf("simulation committed state: %d", got)
	}
}

func TestEnforcerPolicyAndFrozenAsset(t *testing.T) {
	f := newFixture(t, Config{})
	creator, beneficiary, other := f.account(), f.account(), f.account()
	app, asset := f.mint(creator)

	info, err := f.ledger.AssetInfo(f.ctx, asset)
	if err != nil {
		t.Fatalf("asset info: %v", err)
	}
	if !info.DefaultFrozen || info.Clawback != txn.ApplicationAddress(app) {
		t.Fatalf("asset must be frozen with the app as clawback: %+v", info)
	}

	var rej *ledger.RejectError
	_, err = f.ledger.SubmitGroup(f.ctx, f.submission(f.call(app, "enforcer", contracts.MethodSetPolicy, creator, txn.Uint64Arg(10001), txn.AddressArg(beneficiary.Address()))))
	if !errors.As(err, &rej) {
		t.Fatalf("basis above 10000 must be rejected, got %v", err)
	}
	_, err = f.ledger.SubmitGroup(f.ctx, f.submission(f.call(app, "enforcer", contracts.MethodSetPolicy, other, txn.Uint64Arg(1000), txn.AddressArg(other.Address()))))
	if !errors.As(err, &rej) {
		t.Fatalf("non-creator policy must be rejected, got %v", err)
	}
	f.commit(f.call(app, "enforcer", contracts.MethodSetPolicy, creator, txn.Uint64Arg(1000), txn.AddressArg(beneficiary.Address())))
	_, err = f.ledger.SubmitGroup(f.ctx, f.submission(f.call(app, "enforcer", contracts.MethodSetPolicy, creator, txn.Uint64Arg(500), txn.AddressArg(beneficiary.Address()))))
	if !errors.As(err, &rej) {
		t.Fatalf("policy must be settable once, got %v", err)
	}
	state, err := f.ledger.ApplicationState(f.ctx, app)
	if err != nil {
		t.Fatalf("app state: %v", err)
	}
	if state.Global[contracts.KeyRoyaltyBasis].Uint != 1000 {
		t.Fatalf("unexpected basis %+v", state.Global[contracts.KeyRoyaltyBasis])
	}

	// Move the asset to the creator through the enforcer.
	p := f.params()
	move := txn.NewBuilder()
	if err := move.AddTransfer(txn.AssetOptIn(creator.Address(), asset, p), creator); err != nil {
		t.Fatalf("add opt-in: %v", err)
	}
	m, _ := contracts.MustEnforcer().Resolve(contracts.MethodRoyaltyFreeMove)
	if err := move.AddMethodCall(txn.MethodCall{AppID: app, Method: m, Sender: creator.Address(), Signer: creator, Params: p,
		Args: []txn.Arg{txn.AssetArg(asset), txn.Uint64Arg(1), txn.AddressArg(txn.ApplicationAddress(app)),
			txn.AddressArg(creator.Address()), txn.Uint64Arg(0), txn.AddressArg(identity.ZeroAddress)}}); err != nil {
		t.Fatalf("add move: %v", err)
	}
	f.commit(move)

	// A bare transfer bypassing the enforcer is refused.
	bare := txn.NewBuilder()
	p = f.params()
	if err := bare.AddTransfer(txn.AssetOptIn(other.Address(), asset, p), other); err != nil {
		t.Fatalf("add opt-in: %v", err)
	}
	if err := bare.AddTransfer(txn.AssetTransfer(creator.Address(), other.Address(), asset, 1, p), creator); err != nil {
		t.Fatalf("add transfer: %v", err)
	}
	_, err = f.ledger.SubmitGroup(f.ctx, f.submission(bare))
	if !errors.As(err, &rej) || rej.Index != 1 {
		t.Fatalf("bare transfer must be rejected at index 1, got %v", err)
	}
	acct, err := f.ledger.AccountInfo(f.ctx, other.Address())
	if err != nil {
		t.Fatalf("account info: %v", err)
	}
	if _, ok := acct.Holding(asset); ok {
		t.Fatal("rejected group must not leave the opt-in behind")
	}
}
