// Package royalty builds the groups that talk to a royalty enforcer
// application: minting under a policy, setting the policy, moving assets
// through the enforcer and preparing offers for a marketplace.
package royalty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"royalty-exchange/go-backend/internal/abi"
	"royalty-exchange/go-backend/internal/contracts"
	"royalty-exchange/go-backend/internal/executor"
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/txn"
)

var (
	ErrBasisPoints = errors.New("royalty: basis points out of range")
	ErrPolicyUnset = errors.New("royalty: policy not set")
	ErrNoAsset     = errors.New("royalty: mint returned no asset")
)

type Config struct {
	Engine *executor.Engine
	State  ledger.StateReader
	App    txn.AppID
	// Interface defaults to the embedded enforcer description.
	Interface *abi.Interface
	Rounds    uint64
	Logger    *slog.Logger
}

// Enforcer is a handle on one deployed enforcer application.
type Enforcer struct {
	engine *executor.Engine
	state  ledger.StateReader
	app    txn.AppID
	rounds uint64
	log    *slog.Logger

	createNFT abi.Method
	setPolicy abi.Method
	move      abi.Method
	offer     abi.Method
}

func New(cfg Config) (*Enforcer, error) {
	if cfg.Engine == nil || cfg.State == nil {
		return nil, errors.New("royalty: engine and state reader are required")
	}
	if cfg.App == 0 {
		return nil, errors.New("royalty: application id is required")
	}
	iface := cfg.Interface
	if iface == nil {
		var err error
		if iface, err = contracts.Enforcer(); err != nil {
			return nil, err
		}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	e := &Enforcer{
		engine: cfg.Engine,
		state:  cfg.State,
		app:    cfg.App,
		rounds: cfg.Rounds,
		log:    log.With("component", "royalty", "app_id", uint64(cfg.App)),
	}
	for name, dst := range map[string]*abi.Method{
		contracts.MethodCreateNFT:       &e.createNFT,
		contracts.MethodSetPolicy:       &e.setPolicy,
		contracts.MethodRoyaltyFreeMove: &e.move,
		contracts.MethodOffer:           &e.offer,
	} {
		m, err := iface.Resolve(name)
		if err != nil {
			return nil, err
		}
		*dst = m
	}
	return e, nil
}

func (e *Enforcer) App() txn.AppID { return e.app }

func (e *Enforcer) Address() identity.Address { return txn.ApplicationAddress(e.app) }

func (e *Enforcer) OfferMethod() abi.Method { return e.offer }

func (e *Enforcer) params(ctx context.Context) (txn.Params, error) {
	p, err := e.engine.Ledger().SuggestedParams(ctx)
	if err != nil {
		return txn.Params{}, fmt.Errorf("royalty: suggested params: %w", err)
	}
	return p, nil
}

// Mint funds the enforcer account, opts owner in to the enforcer when
// needed and creates one asset under the enforcer's control. The asset is
// held by the enforcer account until it is moved out with EnforcedMove.
func (e *Enforcer) Mint(ctx context.Context, owner *identity.Identity) (txn.AssetID, *executor.Committed, error) {
	acct, err := e.state.AccountInfo(ctx, owner.Address())
	if err != nil {
		return 0, nil, fmt.Errorf("royalty: read owner account: %w", err)
	}
	p, err := e.params(ctx)
	if err != nil {
		return 0, nil, err
	}
	b := txn.NewBuilder()
	if err := b.AddTransfer(txn.Payment(owner.Address(), e.Address(), contracts.AssetFunding, p), owner); err != nil {
		return 0, nil, err
	}
	if !acct.OptedIn(e.app) {
		if err := b.AddTransfer(txn.AppOptIn(owner.Address(), e.app, p), owner); err != nil {
			return 0, nil, err
		}
	}
	if err := b.AddMethodCall(txn.MethodCall{AppID: e.app, Method: e.createNFT, Sender: owner.Address(), Signer: owner, Params: p}); err != nil {
		return 0, nil, err
	}
	committed, err := e.execute(ctx, b)
	if err != nil {
		return 0, nil, err
	}
	for _, r := range committed.MethodResults() {
		if id, ok := r.ReturnValue.(uint64); ok && r.Method == contracts.MethodCreateNFT && id != 0 {
			e.log.Info("asset minted", "asset_id", id, "round", committed.Round)
			return txn.AssetID(id), committed, nil
		}
	}
	return 0, committed, ErrNoAsset
}

// SetPolicy records the royalty basis points and beneficiary. Only the
// enforcer's creator may call it, and only once.
func (e *Enforcer) SetPolicy(ctx context.Context, creator *identity.Identity, basis uint64, beneficiary identity.Address) (*executor.Committed, error) {
	if basis > contracts.MaxBasisPoints {
		return nil, fmt.Errorf("%w: %d", ErrBasisPoints, basis)
	}
	p, err := e.params(ctx)
	if err != nil {
		return nil, err
	}
	b := txn.NewBuilder()
	if err := b.AddMethodCall(txn.MethodCall{
		AppID:  e.app,
		Method: e.setPolicy,
		Sender: creator.Address(),
		Signer: creator,
		Args:   []txn.Arg{txn.Uint64Arg(basis), txn.AddressArg(beneficiary)},
		Params: p,
	}); err != nil {
		return nil, err
	}
	committed, err := e.execute(ctx, b)
	if err != nil {
		return nil, err
	}
	e.log.Info("royalty policy set", "basis_points", basis, "beneficiary", beneficiary.String())
	return committed, nil
}

type Policy struct {
	BasisPoints uint64
	Beneficiary identity.Address
}

func (e *Enforcer) Policy(ctx context.Context) (Policy, error) {
	app, err := e.state.ApplicationState(ctx, e.app)
	if err != nil {
		return Policy{}, fmt.Errorf("royalty: read application: %w", err)
	}
	recv, ok := app.Global[contracts.KeyRoyaltyReceiver]
	if !ok || len(recv.Bytes) != identity.AddressSize {
		return Policy{}, ErrPolicyUnset
	}
	var pol Policy
	copy(pol.Beneficiary[:], recv.Bytes)
	pol.BasisPoints = app.Global[contracts.KeyRoyaltyBasis].Uint
	return pol, nil
}

// RecordedOffer returns owner's offer for asset as recorded by the
// enforcer, or the zero Offer.
func (e *Enforcer) RecordedOffer(ctx context.Context, owner identity.Address, asset txn.AssetID) (contracts.Offer, error) {
	acct, err := e.state.AccountInfo(ctx, owner)
	if err != nil {
		return contracts.Offer{}, fmt.Errorf("royalty: read account: %w", err)
	}
	v, ok := acct.AppsLocal[e.app][contracts.OfferKey(asset)]
	if !ok {
		return contracts.Offer{}, nil
	}
	return contracts.DecodeOffer(v.Bytes)
}

func (e *Enforcer) previous(ctx context.Context, override *contracts.Offer, owner identity.Address, asset txn.AssetID) (contracts.Offer, error) {
	if override != nil {
		return *override, nil
	}
	return e.RecordedOffer(ctx, owner, asset)
}

// Move describes an enforced move. To signs the asset opt-in. Previous
// overrides the offer the enforcer is expected to hold for From; nil reads
// it from the ledger.
type Move struct {
	Asset    txn.AssetID
	Amount   uint64
	From     identity.Address
	To       *identity.Identity
	Previous *contracts.Offer
}

// EnforcedMove moves an asset through the enforcer without royalty. It is
// the only path this package offers for moving an enforced asset.
func (e *Enforcer) EnforcedMove(ctx context.Context, creator *identity.Identity, mv Move) (*executor.Committed, error) {
	if mv.To == nil {
		return nil, errors.New("royalty: move needs a receiving identity")
	}
	prev, err := e.previous(ctx, mv.Previous, mv.From, mv.Asset)
	if err != nil {
		return nil, err
	}
	p, err := e.params(ctx)
	if err != nil {
		return nil, err
	}
	b := txn.NewBuilder()
	if err := b.AddTransfer(txn.AssetOptIn(mv.To.Address(), mv.Asset, p), mv.To); err != nil {
		return nil, err
	}
	if err := b.AddMethodCall(txn.MethodCall{
		AppID:  e.app,
		Method: e.move,
		Sender: creator.Address(),
		Signer: creator,
		Args: []txn.Arg{
			txn.AssetArg(mv.Asset),
			txn.Uint64Arg(mv.Amount),
			txn.AddressArg(mv.From),
			txn.AddressArg(mv.To.Address()),
			txn.Uint64Arg(prev.Amount),
			txn.AddressArg(prev.Auth),
		},
		Params: p,
	}); err != nil {
		return nil, err
	}
	committed, err := e.execute(ctx, b)
	if err != nil {
		return nil, err
	}
	e.log.Info("asset moved", "asset_id", uint64(mv.Asset), "from", mv.From.String(), "to", mv.To.Address().String(), "round", committed.Round)
	return committed, nil
}

// OfferTerms describe an offer authorizing the Target application to move
// Amount of Asset. Previous works as in Move.
type OfferTerms struct {
	Asset    txn.AssetID
	Amount   uint64
	Target   txn.AppID
	Previous *contracts.Offer
}

// Offer builds and freezes an offer group without submitting it. The
// returned group is meant to be referenced by a marketplace listing, or
// submitted on its own with SubmitOffer.
func (e *Enforcer) Offer(ctx context.Context, owner *identity.Identity, terms OfferTerms) (*txn.Frozen, error) {
	prev, err := e.previous(ctx, terms.Previous, owner.Address(), terms.Asset)
	if err != nil {
		return nil, err
	}
	p, err := e.params(ctx)
	if err != nil {
		return nil, err
	}
	b := txn.NewBuilder()
	if err := b.AddMethodCall(txn.MethodCall{
		AppID:  e.app,
		Method: e.offer,
		Sender: owner.Address(),
		Signer: owner,
		Args: []txn.Arg{
			txn.AssetArg(terms.Asset),
			txn.Uint64Arg(terms.Amount),
			txn.AddressArg(txn.ApplicationAddress(terms.Target)),
			txn.Uint64Arg(prev.Amount),
			txn.AddressArg(prev.Auth),
		},
		Params: p,
	}); err != nil {
		return nil, err
	}
	g, err := b.Freeze()
	if err != nil {
		return nil, err
	}
	e.log.Debug("offer frozen", "group_id", g.ID().String(), "asset_id", uint64(terms.Asset), "target", uint64(terms.Target))
	return g, nil
}

func (e *Enforcer) SubmitOffer(ctx context.Context, g *txn.Frozen) (*executor.Committed, error) {
	committed, err := e.engine.Execute(ctx, g, e.rounds)
	if err != nil {
		return nil, err
	}
	e.log.Info("offer recorded", "group_id", g.ID().String(), "round", committed.Round)
	return committed, nil
}

func (e *Enforcer) execute(ctx context.Context, b *txn.Builder) (*executor.Committed, error) {
	g, err := b.Freeze()
	if err != nil {
		return nil, err
	}
	return e.engine.Execute(ctx, g, e.rounds)
}
