// Package market builds the groups that list, buy and delist enforced
// assets on a marketplace application.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"royalty-exchange/go-backend/internal/abi"
	"royalty-exchange/go-backend/internal/contracts"
	"royalty-exchange/go-backend/internal/executor"
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/txn"
)

type Config struct {
	Engine *executor.Engine
	State  ledger.StateReader
	App    txn.AppID
	// Interface and Enforcer default to the embedded descriptions.
	Interface *abi.Interface
	Enforcer  *abi.Interface
	Rounds    uint64
	Logger    *slog.Logger
}

// Marketplace is a handle on one deployed marketplace application.
type Marketplace struct {
	engine *executor.Engine
	state  ledger.StateReader
	app    txn.AppID
	rounds uint64
	log    *slog.Logger

	list   abi.Method
	buy    abi.Method
	delist abi.Method
	offer  abi.Method
}

func New(cfg Config) (*Marketplace, error) {
	if cfg.Engine == nil || cfg.State == nil {
		return nil, errors.New("market: engine and state reader are required")
	}
	if cfg.App == 0 {
		return nil, errors.New("market: application id is required")
	}
	iface, enf := cfg.Interface, cfg.Enforcer
	var err error
	if iface == nil {
		if iface, err = contracts.Marketplace(); err != nil {
			return nil, err
		}
	}
	if enf == nil {
		if enf, err = contracts.Enforcer(); err != nil {
			return nil, err
		}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	m := &Marketplace{
		engine: cfg.Engine,
		state:  cfg.State,
		app:    cfg.App,
		rounds: cfg.Rounds,
		log:    log.With("component", "market", "app_id", uint64(cfg.App)),
	}
	if m.list, err = iface.Resolve(contracts.MethodList); err != nil {
		return nil, err
	}
	if m.buy, err = iface.Resolve(contracts.MethodBuy); err != nil {
		return nil, err
	}
	if m.delist, err = iface.Resolve(contracts.MethodDelist); err != nil {
		return nil, err
	}
	if m.offer, err = enf.Resolve(contracts.MethodOffer); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Marketplace) App() txn.AppID { return m.app }

func (m *Marketplace) Address() identity.Address { return txn.ApplicationAddress(m.app) }

func (m *Marketplace) params(ctx context.Context) (txn.Params, error) {
	p, err := m.engine.Ledger().SuggestedParams(ctx)
	if err != nil {
		return txn.Params{}, fmt.Errorf("market: suggested params: %w", err)
	}
	return p, nil
}

// ListTerms describe a listing. Offer points at the frozen, unsubmitted
// offer that authorizes the marketplace to move the asset.
type ListTerms struct {
	Asset    txn.AssetID
	Enforcer txn.AppID
	Amount   uint64
	Price    uint64
	Offer    txn.GroupRef
}

// CheckReference verifies that the referenced offer authorizes the listing
// seller is about to make. The marketplace program checks the same on the
// ledger; checking first keeps a mismatched listing from being submitted.
func (m *Marketplace) CheckReference(seller identity.Address, terms ListTerms) error {
	if terms.Offer.Group() == nil {
		return fmt.Errorf("market: %w", txn.ErrInvalidReference)
	}
	entry := terms.Offer.Entry()
	op := entry.Op
	vals, err := contracts.OfferArgs(m.offer, op)
	if err != nil {
		return &ReferenceMismatchError{Field: "method", Listing: contracts.MethodOffer, Offer: err.Error()}
	}
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	switch {
	case op.AppID != terms.Enforcer:
		return &ReferenceMismatchError{Field: "application", Listing: terms.Enforcer.String(), Offer: op.AppID.String()}
	case op.Sender != seller:
		return &ReferenceMismatchError{Field: "seller", Listing: seller.String(), Offer: op.Sender.String()}
	case vals.Asset != terms.Asset:
		return &ReferenceMismatchError{Field: "asset", Listing: terms.Asset.String(), Offer: vals.Asset.String()}
	case vals.Amount != terms.Amount:
		return &ReferenceMismatchError{Field: "amount", Listing: u(terms.Amount), Offer: u(vals.Amount)}
	case vals.Auth != m.Address():
		return &ReferenceMismatchError{Field: "authorized", Listing: m.Address().String(), Offer: vals.Auth.String()}
	}
	return nil
}

// List records a listing that embeds the offer by reference. The offer
// group itself is neither re-signed nor executed.
func (m *Marketplace) List(ctx context.Context, seller *identity.Identity, terms ListTerms) (*executor.Committed, error) {
	if terms.Price == 0 {
		return nil, errors.New("market: price must be positive")
	}
	if err := m.CheckReference(seller.Address(), terms); err != nil {
		return nil, err
	}
	p, err := m.params(ctx)
	if err != nil {
		return nil, err
	}
	b := txn.NewBuilder()
	if err := b.AddMethodCall(txn.MethodCall{
		AppID:  m.app,
		Method: m.list,
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
		return nil, err
	}
	committed, err := m.execute(ctx, b)
	if err != nil {
		return nil, err
	}
	m.log.Info("asset listed", "asset_id", uint64(terms.Asset), "price", terms.Price, "offer_group", terms.Offer.GroupID().String(), "round", committed.Round)
	return committed, nil
}

// Purchase describes a buy. Price must equal the listed price exactly.
type Purchase struct {
	Asset       txn.AssetID
	Enforcer    txn.AppID
	Seller      identity.Address
	Beneficiary identity.Address
	Amount      uint64
	Price       uint64
}

// Buy opts buyer in to the asset, pays the price and calls buy, all in one
// group: a rejected buy leaves neither the payment nor the opt-in behind.
func (m *Marketplace) Buy(ctx context.Context, buyer *identity.Identity, pur Purchase) (*executor.Committed, error) {
	p, err := m.params(ctx)
	if err != nil {
		return nil, err
	}
	b := txn.NewBuilder()
	if err := b.AddTransfer(txn.AssetOptIn(buyer.Address(), pur.Asset, p), buyer); err != nil {
		return nil, err
	}
	payment := txn.TxnArg{Op: txn.Payment(buyer.Address(), m.Address(), pur.Price, p), Signer: buyer}
	if err := b.AddMethodCall(txn.MethodCall{
		AppID:  m.app,
		Method: m.buy,
		Sender: buyer.Address(),
		Signer: buyer,
		Args: []txn.Arg{
			txn.AssetArg(pur.Asset),
			txn.AppArg(pur.Enforcer),
			txn.AddressArg(txn.ApplicationAddress(pur.Enforcer)),
			txn.AddressArg(pur.Seller),
			txn.AddressArg(pur.Beneficiary),
			txn.Uint64Arg(pur.Amount),
			payment,
		},
		Params: p,
	}); err != nil {
		return nil, err
	}
	committed, err := m.execute(ctx, b)
	if err != nil {
		return nil, err
	}
	m.log.Info("asset sold", "asset_id", uint64(pur.Asset), "price", pur.Price, "buyer", buyer.Address().String(), "round", committed.Round)
	return committed, nil
}

func (m *Marketplace) PurchaseFor(ctx context.Context, asset txn.AssetID, beneficiary identity.Address) (Purchase, error) {
	l, err := m.Listing(ctx, asset)
	if err != nil {
		return Purchase{}, err
	}
	return Purchase{
		Asset:       asset,
		Enforcer:    l.Enforcer,
		Seller:      l.Seller,
		Beneficiary: beneficiary,
		Amount:      l.Amount,
		Price:       l.Price,
	}, nil
}

func (m *Marketplace) Delist(ctx context.Context, seller *identity.Identity, asset txn.AssetID) (*executor.Committed, error) {
	p, err := m.params(ctx)
	if err != nil {
		return nil, err
	}
	b := txn.NewBuilder()
	if err := b.AddMethodCall(txn.MethodCall{
		AppID:  m.app,
		Method: m.delist,
		Sender: seller.Address(),
		Signer: seller,
		Args:   []txn.Arg{txn.AssetArg(asset)},
		Params: p,
	}); err != nil {
		return nil, err
	}
	committed, err := m.execute(ctx, b)
	if err != nil {
		return nil, err
	}
	m.log.Info("asset delisted", "asset_id", uint64(asset), "round", committed.Round)
	return committed, nil
}

func (m *Marketplace) Listing(ctx context.Context, asset txn.AssetID) (contracts.Listing, error) {
	app, err := m.state.ApplicationState(ctx, m.app)
	if err != nil {
		return contracts.Listing{}, fmt.Errorf("market: read application: %w", err)
	}
	v, ok := app.Global[contracts.ListingKey(asset)]
	if !ok {
		return contracts.Listing{}, fmt.Errorf("%w: %d", ErrNotListed, asset)
	}
	return contracts.DecodeListing(v.Bytes)
}

func (m *Marketplace) execute(ctx context.Context, b *txn.Builder) (*executor.Committed, error) {
	g, err := b.Freeze()
	if err != nil {
		return nil, err
	}
	return m.engine.Execute(ctx, g, m.rounds)
}
