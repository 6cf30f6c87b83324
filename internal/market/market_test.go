package market

import (
	"context"
	"errors"
	"strings"
	"testing"

	"royalty-exchange/go-backend/internal/contracts"
	"royalty-exchange/go-backend/internal/deploy"
	"royalty-exchange/go-backend/internal/executor"
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger/simnet"
	"royalty-exchange/go-backend/internal/royalty"
	"royalty-exchange/go-backend/internal/txn"
)

const (
	funding = 10_000_000
	price   = 2_000_000
)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	net      *simnet.Ledger
	enforcer *royalty.Enforcer
	market   *Marketplace
	seller   *identity.Identity
	receiver *identity.Identity
	buyer    *identity.Identity
	asset    txn.AssetID
}

// newFixture mints an asset, sets a 10% policy and moves the asset to the
// seller, leaving it ready to be offered.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	net := simnet.New(simnet.Config{})
	engine := executor.New(executor.Config{Ledger: net})
	f := &fixture{t: t, ctx: ctx, net: net}
	f.seller, f.receiver, f.buyer = f.account(), f.account(), f.account()

	enfApp, _, err := deploy.CreateApplication(ctx, engine, f.seller, contracts.EnforcerApp(), 2)
	if err != nil {
		t.Fatalf("deploy enforcer: %v", err)
	}
	if f.enforcer, err = royalty.New(royalty.Config{Engine: engine, State: net, App: enfApp, Rounds: 2}); err != nil {
		t.Fatalf("enforcer: %v", err)
	}
	if f.asset, _, err = f.enforcer.Mint(ctx, f.seller); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.enforcer.SetPolicy(ctx, f.seller, 1000, f.receiver.Address()); err != nil {
		t.Fatalf("set policy: %v", err)
	}
	if _, err := f.enforcer.EnforcedMove(ctx, f.seller, royalty.Move{Asset: f.asset, Amount: 1, From: f.enforcer.Address(), To: f.seller}); err != nil {
		t.Fatalf("move: %v", err)
	}
	mktApp, _, err := deploy.CreateApplication(ctx, engine, f.seller, contracts.MarketplaceApp(), 2)
	if err != nil {
		t.Fatalf("deploy marketplace: %v", err)
	}
	if f.market, err = New(Config{Engine: engine, State: net, App: mktApp, Rounds: 2}); err != nil {
		t.Fatalf("marketplace: %v", err)
	}
	return f
}

func (f *fixture) account() *identity.Identity {
	f.t.Helper()
	id, _, err := identity.Generate()
	if err != nil {
		f.t.Fatalf("generate identity: %v", err)
	}
	f.net.Fund(id.Address(), funding)
	return id
}

func (f *fixture) balance(id *identity.Identity) uint64 {
	f.t.Helper()
	acct, err := f.net.AccountInfo(f.ctx, id.Address())
	if err != nil {
		f.t.Fatalf("account info: %v", err)
	}
	return acct.Balance
}

func (f *fixture) offer(amount uint64, target txn.AppID) txn.GroupRef {
	f.t.Helper()
	g, err := f.enforcer.Offer(f.ctx, f.seller, royalty.OfferTerms{Asset: f.asset, Amount: amount, Target: target})
	if err != nil {
		f.t.Fatalf("offer: %v", err)
	}
	ref, err := g.Ref(0)
	if err != nil {
		f.t.Fatalf("ref: %v", err)
	}
	return ref
}

func (f *fixture) terms(ref txn.GroupRef) ListTerms {
	return ListTerms{Asset: f.asset, Enforcer: f.enforcer.App(), Amount: 1, Price: price, Offer: ref}
}

func TestListRejectsMismatchedReference(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		ref   txn.GroupRef
		mod   func(*ListTerms)
		field string
	}{
		{"amount", f.offer(2, f.market.App()), nil, "amount"},
		{"authorized", f.offer(1, f.enforcer.App()), nil, "authorized"},
		{"asset", f.offer(1, f.market.App()), func(lt *ListTerms) { lt.Asset++ }, "asset"},
		{"application", f.offer(1, f.market.App()), func(lt *ListTerms) { lt.Enforcer++ }, "application"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			terms := f.terms(tc.ref)
			if tc.mod != nil {
				tc.mod(&terms)
			}
			_, err := f.market.List(f.ctx, f.seller, terms)
			var mismatch *ReferenceMismatchError
			if !errors.As(err, &mismatch) || mismatch.Field != tc.field {
				t.Fatalf("expected %s mismatch, got %v", tc.field, err)
			}
		})
	}
	var mismatch *ReferenceMismatchError
	if _, err := f.market.List(f.ctx, f.buyer, f.terms(f.offer(1, f.market.App()))); !errors.As(err, &mismatch) || mismatch.Field != "seller" {
		t.Fatalf("expected seller mismatch, got %v", err)
	}
	if _, err := f.market.Listing(f.ctx, f.asset); !errors.Is(err, ErrNotListed) {
		t.Fatalf("no listing may exist after mismatches, got %v", err)
	}
}

// listUnchecked submits a list call as given, leaving every reference check
// to the marketplace application.
func (f *fixture) listUnchecked(seller *identity.Identity, terms ListTerms) error {
	f.t.Helper()
	p, err := f.market.params(f.ctx)
	if err != nil {
		f.t.Fatalf("params: %v", err)
	}
	b := txn.NewBuilder()
	if err := b.AddMethodCall(txn.MethodCall{
		AppID:  f.market.App(),
		Method: f.market.list,
		Sender: seller.Address(),
		Signer: seller,
		Args: []txn.Arg{
			txn.AssetArg(terms.Asset),
			txn.AppArg(terms.Enforcer),
			txn.Uint64Arg(terms.Amount),
			txn.Uint64Arg(terms.Price),
			txn.RefArg{Ref: terms.Offer},
		},
		Params: p,
	}); err != nil {
		f.t.Fatalf("add list call: %v", err)
	}
	_, err = f.market.execute(f.ctx, b)
	return err
}

func TestListApplicationRejectsMismatchedReference(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name   string
		seller *identity.Identity
		ref    txn.GroupRef
		mod    func(*ListTerms)
		reason string
	}{
		{"amount", f.seller, f.offer(2, f.market.App()), nil, "amount 2, listing 1"},
		{"authorized", f.seller, f.offer(1, f.enforcer.App()), nil, "offer authorizes"},
		{"asset", f.seller, f.offer(1, f.market.App()), func(lt *ListTerms) { lt.Asset++ }, "offer reference mismatch: asset"},
		{"application", f.seller, f.offer(1, f.market.App()), func(lt *ListTerms) { lt.Enforcer++ }, "offer reference mismatch: application"},
		{"signer", f.buyer, f.offer(1, f.market.App()), nil, "offer signed by"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			terms := f.terms(tc.ref)
			if tc.mod != nil {
				tc.mod(&terms)
			}
			err := f.listUnchecked(tc.seller, terms)
			var rejected *executor.RejectedError
			if !errors.As(err, &rejected) || rejected.Index != 0 {
				t.Fatalf("expected the list call to be rejected, got %v", err)
			}
			if !strings.Contains(rejected.Reason, tc.reason) {
				t.Fatalf("rejection %q does not mention %q", rejected.Reason, tc.reason)
			}
		})
	}
	if _, err := f.market.Listing(f.ctx, f.asset); !errors.Is(err, ErrNotListed) {
		t.Fatalf("no listing may exist after rejected lists, got %v", err)
	}
	if err := f.listUnchecked(f.seller, f.terms(f.offer(1, f.market.App()))); err != nil {
		t.Fatalf("matching reference should list: %v", err)
	}
}

func TestBuyApplicationRejectsWrongTerms(t *testing.T) {
	f := newFixture(t)
	if _, err := f.market.List(f.ctx, f.seller, f.terms(f.offer(1, f.market.App()))); err != nil {
		t.Fatalf("list: %v", err)
	}
	pur, err := f.market.PurchaseFor(f.ctx, f.asset, f.receiver.Address())
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	buyerBefore := f.balance(f.buyer)
	cases := []struct {
		name   string
		mod    func(*Purchase)
		reason string
	}{
		{"seller", func(p *Purchase) { p.Seller = f.buyer.Address() }, "listing belongs to"},
		{"amount", func(p *Purchase) { p.Amount = 2 }, "amount 2 does not match listing 1"},
		{"enforcer", func(p *Purchase) { p.Enforcer = f.market.App() }, "listing is held by application"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bad := pur
			tc.mod(&bad)
			_, err := f.market.Buy(f.ctx, f.buyer, bad)
			var rejected *executor.RejectedError
			if !errors.As(err, &rejected) || rejected.Index != 2 {
				t.Fatalf("expected the buy call to be rejected, got %v", err)
			}
			if !strings.Contains(rejected.Reason, tc.reason) {
				t.Fatalf("rejection %q does not mention %q", rejected.Reason, tc.reason)
			}
		})
	}
	if got := f.balance(f.buyer); got != buyerBefore {
		t.Fatalf("rejected buys changed the buyer balance: %d -> %d", buyerBefore, got)
	}
	if l, err := f.market.Listing(f.ctx, f.asset); err != nil || l.Seller != f.seller.Address() {
		t.Fatalf("listing must survive rejected buys: %+v %v", l, err)
	}
}

func TestBuyPaysRoyaltyAndRemovesListing(t *testing.T) {
	f := newFixture(t)
	ref := f.offer(1, f.market.App())
	if _, err := f.market.List(f.ctx, f.seller, f.terms(ref)); err != nil {
		t.Fatalf("list: %v", err)
	}
	l, err := f.market.Listing(f.ctx, f.asset)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if l.Seller != f.seller.Address() || l.Price != price || len(l.Offer) == 0 {
		t.Fatalf("unexpected listing %+v", l)
	}
	rec, err := f.enforcer.RecordedOffer(f.ctx, f.seller.Address(), f.asset)
	if err != nil || !rec.IsZero() {
		t.Fatalf("listing must not execute the offer: %+v %v", rec, err)
	}

	pur, err := f.market.PurchaseFor(f.ctx, f.asset, f.receiver.Address())
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	sellerBefore, receiverBefore, buyerBefore := f.balance(f.seller), f.balance(f.receiver), f.balance(f.buyer)

	short := pur
	short.Price = price - 1
	var rejected *executor.RejectedError
	if _, err := f.market.Buy(f.ctx, f.buyer, short); !errors.As(err, &rejected) || rejected.Index != 2 {
		t.Fatalf("underpayment must reject the buy call, got %v", err)
	}
	if got := f.balance(f.buyer); got != buyerBefore {
		t.Fatalf("rejected buy changed the buyer balance: %d -> %d", buyerBefore, got)
	}
	acct, err := f.net.AccountInfo(f.ctx, f.buyer.Address())
	if err != nil {
		t.Fatalf("account info: %v", err)
	}
	if _, ok := acct.Holding(f.asset); ok {
		t.Fatal("rejected buy left the opt-in behind")
	}

	if _, err := f.market.Buy(f.ctx, f.buyer, pur); err != nil {
		t.Fatalf("buy: %v", err)
	}
	royaltyShare := contracts.RoyaltyShare(price, 1000)
	if got := f.balance(f.receiver) - receiverBefore; got != royaltyShare {
		t.Fatalf("beneficiary received %d, want %d", got, royaltyShare)
	}
	if got := f.balance(f.seller) - sellerBefore; got != price-royaltyShare {
		t.Fatalf("seller received %d, want %d", got, price-royaltyShare)
	}
	if got := buyerBefore - f.balance(f.buyer); got != price+3*simnet.DefaultMinFee {
		t.Fatalf("buyer paid %d", got)
	}
	acct, err = f.net.AccountInfo(f.ctx, f.buyer.Address())
	if err != nil {
		t.Fatalf("account info: %v", err)
	}
	if h, ok := acct.Holding(f.asset); !ok || h.Amount != 1 {
		t.Fatalf("buyer should hold the asset, got %+v", h)
	}
	if _, err := f.market.Listing(f.ctx, f.asset); !errors.Is(err, ErrNotListed) {
		t.Fatalf("listing must be removed after the sale, got %v", err)
	}
}

func TestDelistOnlyBySeller(t *testing.T) {
	f := newFixture(t)
	if _, err := f.market.List(f.ctx, f.seller, f.terms(f.offer(1, f.market.App()))); err != nil {
		t.Fatalf("list: %v", err)
	}
	var rejected *executor.RejectedError
	if _, err := f.market.Delist(f.ctx, f.buyer, f.asset); !errors.As(err, &rejected) {
		t.Fatalf("expected a stranger's delist to be rejected, got %v", err)
	}
	if _, err := f.market.Delist(f.ctx, f.seller, f.asset); err != nil {
		t.Fatalf("delist: %v", err)
	}
	if _, err := f.market.Listing(f.ctx, f.asset); !errors.Is(err, ErrNotListed) {
		t.Fatalf("listing must be gone, got %v", err)
	}
}
