// Package simnet is an in-memory ledger with atomic groups, assets and
// applications. It runs the royalty enforcer and marketplace programs
// natively and backs both tests and the ledgerd daemon.
package simnet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/txn"
)

const (
	DefaultGenesisID = "simnet-v1"
	DefaultMinFee    = 1000
	// ValidityWindow is the number of rounds suggested params stay valid.
	ValidityWindow = 1000
)

type Mode int

const (
	// ModeDev commits every group in its own round as soon as it is
	// submitted.
	ModeDev Mode = iota
	// ModeTimed commits pending groups when Run advances the round.
	ModeTimed
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "dev":
		return ModeDev, nil
	case "timed":
		return ModeTimed, nil
	}
	return ModeDev, fmt.Errorf("simnet: unknown mode %q", s)
}

type Config struct {
	GenesisID     string
	Mode          Mode
	RoundDuration time.Duration
	MinFee        uint64
	Logger        *slog.Logger
	// OnRound is called with the new round after every round, outside the
	// ledger lock.
	OnRound func(round uint64)
}

type pending struct {
	id  txn.GroupID
	sub ledger.Submission
}

type groupRecord struct {
	state   ledger.GroupState
	receipt *ledger.Receipt
	reject  *ledger.RejectError
}

// Ledger is safe for concurrent use.
type Ledger struct {
	cfg      Config
	log      *slog.Logger
	programs map[string]Program

	mu      sync.Mutex
	st      *state
	seen    map[txn.TxID]uint64
	queued  map[txn.TxID]struct{}
	pending []pending
	groups  map[txn.GroupID]*groupRecord
	held    bool
	roundCh chan struct{}
}

var (
	_ ledger.Ledger = (*Ledger)(nil)
)

func New(cfg Config) *Ledger {
	if cfg.GenesisID == "" {
		cfg.GenesisID = DefaultGenesisID
	}
	if cfg.MinFee == 0 {
		cfg.MinFee = DefaultMinFee
	}
	if cfg.RoundDuration <= 0 {
		cfg.RoundDuration = time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{
		cfg:      cfg,
		log:      log.With("component", "simnet"),
		programs: builtinPrograms(),
		st:       newState(),
		seen:     make(map[txn.TxID]uint64),
		queued:   make(map[txn.TxID]struct{}),
		groups:   make(map[txn.GroupID]*groupRecord),
		roundCh:  make(chan struct{}),
	}
}

// Fund credits addr outside of any group. It is meant for genesis setup.
func (l *Ledger) Fund(addr identity.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.account(addr).balance += amount
}

// Hold keeps submitted groups pending until Release. Waiting on a held
// group lets rounds pass without it.
func (l *Ledger) Hold() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = true
}

// Release stops holding. In dev mode pending groups commit immediately.
func (l *Ledger) Release() {
	l.mu.Lock()
	l.held = false
	var rounds []uint64
	if l.cfg.Mode == ModeDev {
		for len(l.pending) > 0 {
			rounds = append(rounds, l.advanceLocked(true))
		}
	}
	l.mu.Unlock()
	for _, r := range rounds {
		l.notifyRound(r)
	}
}

func (l *Ledger) Run(ctx context.Context) error {
	if l.cfg.Mode != ModeTimed {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(l.cfg.RoundDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick closes one round, committing pending groups unless the ledger is
// held.
func (l *Ledger) Tick() uint64 {
	l.mu.Lock()
	round := l.advanceLocked(!l.held)
	l.mu.Unlock()
	l.notifyRound(round)
	return round
}

func (l *Ledger) notifyRound(round uint64) {
	if l.cfg.OnRound != nil {
		l.cfg.OnRound(round)
	}
}

// advanceLocked closes the next round. With process set, every pending
// group is evaluated in submission order; in dev mode only the first is,
// so each group gets its own round.
func (l *Ledger) advanceLocked(process bool) uint64 {
	next := l.st.round + 1
	if process {
		batch := l.pending
		if l.cfg.Mode == ModeDev && len(batch) > 1 {
			batch = batch[:1]
		}
		l.pending = l.pending[len(batch):]
		for _, p := range batch {
			for _, stxn := range p.sub.Txns {
				if id, err := stxn.Txn.ID(); err == nil {
					delete(l.queued, id)
				}
			}
			rec := l.groups[p.id]
			receipt, err := l.commitLocked(p.sub, next)
			if err != nil {
				rec.state = ledger.GroupRejected
				rec.reject = asReject(err)
				l.log.Info("group rejected", "group_id", p.id.String(), "round", next, "index", rec.reject.Index, "reason", rec.reject.Reason)
				continue
			}
			rec.state = ledger.GroupConfirmed
			rec.receipt = receipt
		}
	}
	l.st.round = next
	close(l.roundCh)
	l.roundCh = make(chan struct{})
	return next
}

func asReject(err error) *ledger.RejectError {
	if rej, ok := err.(*ledger.RejectError); ok {
		return rej
	}
	return &ledger.RejectError{Index: -1, Reason: err.Error()}
}

// commitLocked evaluates sub against a clone of the state for round and
// swaps the clone in on success.
func (l *Ledger) commitLocked(sub ledger.Submission, round uint64) (*ledger.Receipt, error) {
	ids, err := l.checkLocked(sub, round)
	if err != nil {
		return nil, err
	}
	scratch := l.st.clone()
	scratch.round = round
	ev := l.evaluator(scratch, sub, nil)
	results, err := ev.run(&group{ops: opsOf(sub), ids: ids})
	if err != nil {
		return nil, err
	}
	l.st = scratch
	for _, id := range ids {
		l.seen[id] = round
	}
	gid := sub.GroupID()
	l.log.Debug("group committed", "group_id", gid.String(), "round", round, "size", len(ids))
	return &ledger.Receipt{GroupID: gid, ConfirmedRound: round, Results: results}, nil
}

func (l *Ledger) evaluator(st *state, sub ledger.Submission, trace *ledger.Trace) *evaluator {
	refs := make(map[ledger.GroupRefKey]txn.SignedTxn, len(sub.References))
	for _, r := range sub.References {
		refs[r.Key()] = r.Txn
	}
	return &evaluator{st: st, programs: l.programs, refs: refs, trace: trace}
}

func opsOf(sub ledger.Submission) []txn.Operation {
	ops := make([]txn.Operation, len(sub.Txns))
	for i, s := range sub.Txns {
		ops[i] = s.Txn
	}
	return ops
}

func (l *Ledger) SuggestedParams(ctx context.Context) (txn.Params, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return txn.Params{
		Fee:        l.cfg.MinFee,
		FirstValid: l.st.round,
		LastValid:  l.st.round + ValidityWindow,
		GenesisID:  l.cfg.GenesisID,
	}, nil
}

// SubmitGroup validates sub and tries it against the current state. In dev
// mode an unheld group is committed before SubmitGroup returns.
func (l *Ledger) SubmitGroup(ctx context.Context, sub ledger.Submission) (txn.GroupID, error) {
	if err := ctx.Err(); err != nil {
		return txn.GroupID{}, err
	}
	l.mu.Lock()
	next := l.st.round + 1
	ids, err := l.checkLocked(sub, next)
	if err == nil {
		scratch := l.st.clone()
		scratch.round = next
		_, err = l.evaluator(scratch, sub, nil).run(&group{ops: opsOf(sub), ids: ids})
	}
	if err != nil {
		l.mu.Unlock()
		return txn.GroupID{}, err
	}
	gid := sub.GroupID()
	l.groups[gid] = &groupRecord{state: ledger.GroupPending}
	l.pending = append(l.pending, pending{id: gid, sub: sub})
	for _, id := range ids {
		l.queued[id] = struct{}{}
	}
	var round uint64
	if l.cfg.Mode == ModeDev && !l.held {
		round = l.advanceLocked(true)
	}
	l.mu.Unlock()
	if round > 0 {
		l.notifyRound(round)
	}
	return gid, nil
}

func (l *Ledger) GroupStatus(ctx context.Context, id txn.GroupID) (ledger.GroupStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.groups[id]
	if !ok {
		return ledger.GroupStatus{}, fmt.Errorf("%w: %s", ledger.ErrUnknownTxn, id)
	}
	return ledger.GroupStatus{State: rec.state, LastRound: l.st.round, Receipt: rec.receipt, Reject: rec.reject}, nil
}

func (l *Ledger) WaitForConfirmation(ctx context.Context, id txn.GroupID, rounds uint64) (*ledger.Receipt, error) {
	l.mu.Lock()
	start := l.st.round
	l.mu.Unlock()
	for {
		l.mu.Lock()
		rec, ok := l.groups[id]
		if !ok {
			l.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownTxn, id)
		}
		switch rec.state {
		case ledger.GroupConfirmed:
			l.mu.Unlock()
			return rec.receipt, nil
		case ledger.GroupRejected:
			l.mu.Unlock()
			return nil, rec.reject
		}
		if l.st.round >= start+rounds {
			l.mu.Unlock()
			return nil, fmt.Errorf("%w: %s after %d rounds", ledger.ErrNotConfirmed, id, rounds)
		}
		if l.cfg.Mode == ModeDev {
			// Dev rounds only move on submission; a held group lets empty
			// rounds pass.
			round := l.advanceLocked(false)
			l.mu.Unlock()
			l.notifyRound(round)
			continue
		}
		ch := l.roundCh
		l.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

// Simulate evaluates sub against the current state and discards the result.
func (l *Ledger) Simulate(ctx context.Context, sub ledger.Submission) (*ledger.Trace, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.st.round + 1
	trace := &ledger.Trace{Round: next}
	ids, err := l.checkLocked(sub, next)
	if err != nil {
		rej := asReject(err)
		trace.Ops = append(trace.Ops, ledger.OpTrace{Index: rej.Index, Rejected: true, Reason: rej.Reason})
		return trace, nil
	}
	scratch := l.st.clone()
	scratch.round = next
	_, _ = l.evaluator(scratch, sub, trace).run(&group{ops: opsOf(sub), ids: ids})
	return trace, nil
}

func (l *Ledger) Status(ctx context.Context) (ledger.Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ledger.Status{LastRound: l.st.round, GenesisID: l.cfg.GenesisID}, nil
}

func (l *Ledger) AccountInfo(ctx context.Context, addr identity.Address) (*ledger.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.accountInfo(addr), nil
}

func (l *Ledger) AssetInfo(ctx context.Context, id txn.AssetID) (*ledger.Asset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.st.assets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ledger.ErrUnknownAsset, id)
	}
	params := a.params
	return &params, nil
}

func (l *Ledger) ApplicationState(ctx context.Context, id txn.AppID) (*ledger.Application, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.st.apps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ledger.ErrUnknownApp, id)
	}
	return a.info(), nil
}
