// Package orchestrator runs the exchange scenario end to end: deploy the
// enforcer, mint, set the policy, move the asset into custody, deploy the
// marketplace, list and sell. Every step is one confirmed group, and each
// confirmed step is journaled so a stopped run can resume after it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"royalty-exchange/go-backend/internal/contracts"
	"royalty-exchange/go-backend/internal/deploy"
	"royalty-exchange/go-backend/internal/executor"
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/market"
	"royalty-exchange/go-backend/internal/platform/errclass"
	"royalty-exchange/go-backend/internal/royalty"
	"royalty-exchange/go-backend/internal/storage/checkpoint"
	"royalty-exchange/go-backend/internal/txn"
)

// Accounts are the principals of a run. Seller deploys both applications,
// mints and lists.
type Accounts struct {
	Seller      *identity.Identity
	Beneficiary *identity.Identity
	Buyer       *identity.Identity
}

type Terms struct {
	Price              uint64
	RoyaltyBasisPoints uint64
	Amount             uint64
	// Payment is what the buyer pays. Zero pays the listed price.
	Payment uint64
}

type Config struct {
	RunID    string
	Engine   *executor.Engine
	State    ledger.StateReader
	Accounts Accounts
	Terms    Terms
	Rounds   uint64
	// Until stops the run once it reaches that state. Zero runs to Sold.
	Until State
	// Journal defaults to an in-memory journal.
	Journal checkpoint.Journal
	Logger  *slog.Logger
}

type Orchestrator struct {
	runID    string
	engine   *executor.Engine
	state    ledger.StateReader
	accounts Accounts
	terms    Terms
	rounds   uint64
	until    State
	journal  checkpoint.Journal
	base     *slog.Logger
	log      *slog.Logger

	cp       checkpoint.Checkpoint
	enforcer *royalty.Enforcer
	market   *market.Marketplace
	offer    *txn.Frozen
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.RunID == "" {
		return nil, checkpoint.ErrRunIDRequired
	}
	if cfg.Engine == nil || cfg.State == nil {
		return nil, errors.New("orchestrator: engine and state reader are required")
	}
	acc := cfg.Accounts
	if acc.Seller == nil || acc.Beneficiary == nil || acc.Buyer == nil {
		return nil, errors.New("orchestrator: seller, beneficiary and buyer accounts are required")
	}
	if cfg.Terms.Price == 0 || cfg.Terms.Amount == 0 {
		return nil, errors.New("orchestrator: price and amount must be positive")
	}
	if cfg.Terms.RoyaltyBasisPoints > contracts.MaxBasisPoints {
		return nil, fmt.Errorf("orchestrator: %w: %d", royalty.ErrBasisPoints, cfg.Terms.RoyaltyBasisPoints)
	}
	until := cfg.Until
	if until == Uninitialized {
		until = Sold
	}
	journal := cfg.Journal
	if journal == nil {
		journal = checkpoint.NewMemory()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		runID:    cfg.RunID,
		engine:   cfg.Engine,
		state:    cfg.State,
		accounts: acc,
		terms:    cfg.Terms,
		rounds:   cfg.Rounds,
		until:    until,
		journal:  journal,
		base:     log,
		log:      log.With("component", "orchestrator", "run_id", cfg.RunID),
		cp:       checkpoint.Checkpoint{RunID: cfg.RunID, State: Uninitialized.String()},
	}, nil
}

// Report is the outcome of a run as read back from the ledger.
type Report struct {
	RunID       string
	State       State
	EnforcerApp txn.AppID
	MarketApp   txn.AppID
	AssetID     txn.AssetID
	// Balances are keyed seller, beneficiary and buyer.
	Balances map[string]uint64
	// Holdings of the asset, keyed like Balances.
	Holdings map[string]uint64
	History  []checkpoint.Transition
}

// Run resumes the run after its last journaled state and walks forward
// until Config.Until. A failed step stops the run with *StepError. A step
// whose group outlives its confirmation window is journaled as pending and
// settled against the ledger before the next Run steps again.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	cur, err := o.resume(ctx)
	if err != nil {
		return nil, &StepError{State: Uninitialized, Err: errclass.Wrap(errclass.CategoryStorage, err)}
	}
	if cur, err = o.settle(ctx, cur); err != nil {
		return nil, &StepError{State: cur, Err: err}
	}
	for cur < o.until {
		next := cur + 1
		tr, err := o.step(ctx, next)
		if err != nil {
			o.log.Error("step failed", "state", cur.String(), "next", next.String(), "error", err)
			var timeout *executor.TimeoutError
			if errors.As(err, &timeout) {
				if perr := o.markPending(ctx, next, timeout.GroupID); perr != nil {
					return nil, &StepError{State: cur, Err: errclass.Wrap(errclass.CategoryStorage, perr)}
				}
			}
			return nil, &StepError{State: cur, Err: classify(err)}
		}
		if err := o.save(ctx, next, tr); err != nil {
			return nil, &StepError{State: cur, Err: errclass.Wrap(errclass.CategoryStorage, err)}
		}
		o.log.Info("state reached", "state", next.String(), "round", tr.Round, "group_id", tr.GroupID)
		cur = next
	}
	rep, err := o.Report(ctx)
	if err != nil {
		return nil, &StepError{State: cur, Err: classify(err)}
	}
	return rep, nil
}

// Load reads the run's checkpoint without stepping, so Report describes a
// run started earlier.
func (o *Orchestrator) Load(ctx context.Context) (State, error) {
	st, err := o.resume(ctx)
	if err != nil {
		return Uninitialized, errclass.Wrap(errclass.CategoryStorage, err)
	}
	return st, nil
}

func (o *Orchestrator) resume(ctx context.Context) (State, error) {
	cp, ok, err := o.journal.Load(ctx, o.runID)
	if err != nil {
		return Uninitialized, err
	}
	if !ok {
		return Uninitialized, nil
	}
	st, err := ParseState(cp.State)
	if err != nil {
		return Uninitialized, err
	}
	o.cp = cp
	o.log.Info("run resumed", "state", st.String(), "enforcer_app", cp.EnforcerApp, "market_app", cp.MarketApp, "asset_id", cp.AssetID, "pending", cp.Pending.State)
	return st, nil
}

// settle resolves a step an earlier Run left pending. A confirmed group is
// journaled as that step, a rejected one is dropped so the step runs again,
// and a group still pending stops the run with *PendingError.
func (o *Orchestrator) settle(ctx context.Context, cur State) (State, error) {
	p := o.cp.Pending
	if p.IsZero() {
		return cur, nil
	}
	next, err := ParseState(p.State)
	if err != nil {
		return cur, errclass.Wrap(errclass.CategoryStorage, err)
	}
	id, err := txn.ParseGroupID(p.GroupID)
	if err != nil {
		return cur, errclass.Wrap(errclass.CategoryStorage, fmt.Errorf("orchestrator: pending group: %w", err))
	}
	st, err := o.engine.Ledger().GroupStatus(ctx, id)
	if err != nil {
		return cur, errclass.Wrap(errclass.CategoryLedger, fmt.Errorf("orchestrator: status of pending group %s: %w", id, err))
	}
	switch st.State {
	case ledger.GroupConfirmed:
		if st.Receipt == nil {
			return cur, errclass.Wrap(errclass.CategoryLedger, fmt.Errorf("orchestrator: group %s confirmed without a receipt", id))
		}
		if err := o.adopt(next, st.Receipt); err != nil {
			return cur, errclass.Wrap(errclass.CategoryLedger, err)
		}
		tr := checkpoint.Transition{Round: st.Receipt.ConfirmedRound, GroupID: p.GroupID}
		if err := o.save(ctx, next, tr); err != nil {
			return cur, errclass.Wrap(errclass.CategoryStorage, err)
		}
		o.log.Info("pending step confirmed", "state", next.String(), "round", tr.Round, "group_id", tr.GroupID)
		return next, nil
	case ledger.GroupRejected:
		cp := o.cp
		cp.Pending = checkpoint.Pending{}
		if err := o.journal.SavePending(ctx, cp); err != nil {
			return cur, errclass.Wrap(errclass.CategoryStorage, err)
		}
		o.cp = cp
		var reason string
		if st.Reject != nil {
			reason = st.Reject.Reason
		}
		o.log.Warn("pending step rejected", "state", next.String(), "group_id", p.GroupID, "reason", reason)
		return cur, nil
	default:
		return cur, errclass.Wrap(errclass.CategoryExecution, &PendingError{State: next, GroupID: id})
	}
}

// adopt copies the identifiers a confirmed step created into the checkpoint.
func (o *Orchestrator) adopt(st State, r *ledger.Receipt) error {
	for _, res := range r.Results {
		switch {
		case st == EnforcerDeployed && res.CreatedAppID != 0:
			o.cp.EnforcerApp = uint64(res.CreatedAppID)
			return nil
		case st == MarketDeployed && res.CreatedAppID != 0:
			o.cp.MarketApp = uint64(res.CreatedAppID)
			return nil
		case st == AssetMinted && res.CreatedAssetID != 0:
			o.cp.AssetID = uint64(res.CreatedAssetID)
			return nil
		}
	}
	switch st {
	case EnforcerDeployed, MarketDeployed, AssetMinted:
		return fmt.Errorf("orchestrator: group %s for %s created nothing", r.GroupID, st)
	}
	return nil
}

func (o *Orchestrator) markPending(ctx context.Context, next State, id txn.GroupID) error {
	cp := o.cp
	cp.Pending = checkpoint.Pending{State: next.String(), GroupID: id.String()}
	if err := o.journal.SavePending(ctx, cp); err != nil {
		return err
	}
	o.cp = cp
	o.log.Warn("step pending", "state", next.String(), "group_id", id.String())
	return nil
}

func (o *Orchestrator) save(ctx context.Context, st State, tr checkpoint.Transition) error {
	cp := o.cp
	cp.State = st.String()
	cp.Pending = checkpoint.Pending{}
	cp.UpdatedAt = tr.CreatedAt
	if err := o.journal.Save(ctx, cp, tr); err != nil {
		return err
	}
	o.cp = cp
	return nil
}

func transition(c *executor.Committed) checkpoint.Transition {
	return checkpoint.Transition{Round: c.Round, GroupID: c.ID().String()}
}

func (o *Orchestrator) step(ctx context.Context, next State) (checkpoint.Transition, error) {
	seller := o.accounts.Seller
	switch next {
	case EnforcerDeployed:
		app, c, err := deploy.CreateApplication(ctx, o.engine, seller, contracts.EnforcerApp(), o.rounds)
		if err != nil {
			return checkpoint.Transition{}, err
		}
		o.cp.EnforcerApp = uint64(app)
		return transition(c), nil

	case AssetMinted:
		enf, err := o.Enforcer()
		if err != nil {
			return checkpoint.Transition{}, err
		}
		asset, c, err := enf.Mint(ctx, seller)
		if err != nil {
			return checkpoint.Transition{}, err
		}
		o.cp.AssetID = uint64(asset)
		return transition(c), nil

	case PolicySet:
		enf, err := o.Enforcer()
		if err != nil {
			return checkpoint.Transition{}, err
		}
		c, err := enf.SetPolicy(ctx, seller, o.terms.RoyaltyBasisPoints, o.accounts.Beneficiary.Address())
		if err != nil {
			return checkpoint.Transition{}, err
		}
		return transition(c), nil

	case AssetCustodied:
		enf, err := o.Enforcer()
		if err != nil {
			return checkpoint.Transition{}, err
		}
		c, err := enf.EnforcedMove(ctx, seller, royalty.Move{
			Asset:  o.asset(),
			Amount: o.terms.Amount,
			From:   enf.Address(),
			To:     seller,
		})
		if err != nil {
			return checkpoint.Transition{}, err
		}
		return transition(c), nil

	case MarketDeployed:
		app, c, err := deploy.CreateApplication(ctx, o.engine, seller, contracts.MarketplaceApp(), o.rounds)
		if err != nil {
			return checkpoint.Transition{}, err
		}
		o.cp.MarketApp = uint64(app)
		return transition(c), nil

	case Listed:
		return o.list(ctx)

	case Sold:
		return o.sell(ctx)
	}
	return checkpoint.Transition{}, fmt.Errorf("orchestrator: no step leads to %s", next)
}

func (o *Orchestrator) list(ctx context.Context) (checkpoint.Transition, error) {
	enf, err := o.Enforcer()
	if err != nil {
		return checkpoint.Transition{}, err
	}
	mkt, err := o.Marketplace()
	if err != nil {
		return checkpoint.Transition{}, err
	}
	offer, err := enf.Offer(ctx, o.accounts.Seller, royalty.OfferTerms{
		Asset:  o.asset(),
		Amount: o.terms.Amount,
		Target: mkt.App(),
	})
	if err != nil {
		return checkpoint.Transition{}, err
	}
	ref, err := offer.Ref(0)
	if err != nil {
		return checkpoint.Transition{}, err
	}
	c, err := mkt.List(ctx, o.accounts.Seller, market.ListTerms{
		Asset:    o.asset(),
		Enforcer: enf.App(),
		Amount:   o.terms.Amount,
		Price:    o.terms.Price,
		Offer:    ref,
	})
	if err != nil {
		return checkpoint.Transition{}, err
	}
	o.offer = offer
	return transition(c), nil
}

func (o *Orchestrator) sell(ctx context.Context) (checkpoint.Transition, error) {
	mkt, err := o.Marketplace()
	if err != nil {
		return checkpoint.Transition{}, err
	}
	pur, err := mkt.PurchaseFor(ctx, o.asset(), o.accounts.Beneficiary.Address())
	if err != nil {
		return checkpoint.Transition{}, err
	}
	if o.terms.Payment != 0 {
		pur.Price = o.terms.Payment
	}
	c, err := mkt.Buy(ctx, o.accounts.Buyer, pur)
	if err != nil {
		return checkpoint.Transition{}, err
	}
	o.offer = nil
	return transition(c), nil
}

// AbandonListing delists the asset and records the listing's offer on the
// enforcer directly, leaving the run at MarketDeployed. A later Run lists
// again.
func (o *Orchestrator) AbandonListing(ctx context.Context) error {
	cp, ok, err := o.journal.Load(ctx, o.runID)
	if err != nil {
		return &StepError{State: Uninitialized, Err: errclass.Wrap(errclass.CategoryStorage, err)}
	}
	if !ok || cp.State != Listed.String() {
		return fmt.Errorf("orchestrator: run %s is not listed", o.runID)
	}
	o.cp = cp
	c, err := o.abandon(ctx)
	if err != nil {
		return &StepError{State: Listed, Err: classify(err)}
	}
	tr := transition(c)
	if err := o.save(ctx, MarketDeployed, tr); err != nil {
		return &StepError{State: Listed, Err: errclass.Wrap(errclass.CategoryStorage, err)}
	}
	o.log.Info("listing abandoned", "state", MarketDeployed.String(), "round", tr.Round, "group_id", tr.GroupID)
	return nil
}

// abandon returns the group that records the offer on the enforcer.
func (o *Orchestrator) abandon(ctx context.Context) (*executor.Committed, error) {
	enf, err := o.Enforcer()
	if err != nil {
		return nil, err
	}
	mkt, err := o.Marketplace()
	if err != nil {
		return nil, err
	}
	if _, err := mkt.Delist(ctx, o.accounts.Seller, o.asset()); err != nil {
		return nil, err
	}
	offer := o.offer
	if offer == nil {
		// The frozen offer does not survive a restart; an equivalent one
		// is built against the offer the enforcer currently records.
		if offer, err = enf.Offer(ctx, o.accounts.Seller, royalty.OfferTerms{
			Asset:  o.asset(),
			Amount: o.terms.Amount,
			Target: mkt.App(),
		}); err != nil {
			return nil, err
		}
	}
	c, err := enf.SubmitOffer(ctx, offer)
	if err != nil {
		return nil, err
	}
	o.offer = nil
	return c, nil
}

func (o *Orchestrator) asset() txn.AssetID { return txn.AssetID(o.cp.AssetID) }

func (o *Orchestrator) Enforcer() (*royalty.Enforcer, error) {
	if o.enforcer != nil {
		return o.enforcer, nil
	}
	if o.cp.EnforcerApp == 0 {
		return nil, errors.New("orchestrator: enforcer is not deployed")
	}
	enf, err := royalty.New(royalty.Config{
		Engine: o.engine,
		State:  o.state,
		App:    txn.AppID(o.cp.EnforcerApp),
		Rounds: o.rounds,
		Logger: o.base,
	})
	if err != nil {
		return nil, err
	}
	o.enforcer = enf
	return enf, nil
}

func (o *Orchestrator) Marketplace() (*market.Marketplace, error) {
	if o.market != nil {
		return o.market, nil
	}
	if o.cp.MarketApp == 0 {
		return nil, errors.New("orchestrator: marketplace is not deployed")
	}
	mkt, err := market.New(market.Config{
		Engine: o.engine,
		State:  o.state,
		App:    txn.AppID(o.cp.MarketApp),
		Rounds: o.rounds,
		Logger: o.base,
	})
	if err != nil {
		return nil, err
	}
	o.market = mkt
	return mkt, nil
}

// Report reads the run's accounts back from the ledger.
func (o *Orchestrator) Report(ctx context.Context) (*Report, error) {
	st, err := ParseState(o.cp.State)
	if err != nil {
		return nil, err
	}
	rep := &Report{
		RunID:       o.runID,
		State:       st,
		EnforcerApp: txn.AppID(o.cp.EnforcerApp),
		MarketApp:   txn.AppID(o.cp.MarketApp),
		AssetID:     o.asset(),
		Balances:    make(map[string]uint64, 3),
		Holdings:    make(map[string]uint64, 3),
	}
	for name, id := range map[string]*identity.Identity{
		"seller":      o.accounts.Seller,
		"beneficiary": o.accounts.Beneficiary,
		"buyer":       o.accounts.Buyer,
	} {
		acct, err := o.state.AccountInfo(ctx, id.Address())
		if err != nil {
			return nil, fmt.Errorf("orchestrator: read %s account: %w", name, err)
		}
		rep.Balances[name] = acct.Balance
		if h, ok := acct.Holding(rep.AssetID); ok {
			rep.Holdings[name] = h.Amount
		}
	}
	if rep.History, err = o.journal.History(ctx, o.runID); err != nil {
		return nil, errclass.Wrap(errclass.CategoryStorage, err)
	}
	return rep, nil
}
