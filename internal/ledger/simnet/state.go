package simnet

import (
	"sort"

	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/txn"
)

type holding struct {
	amount uint64
	frozen bool
}

type account struct {
	balance  uint64
	holdings map[txn.AssetID]*holding
	local    map[txn.AppID]map[string]ledger.Value
}

type asset struct {
	params ledger.Asset
}

type app struct {
	id      txn.AppID
	creator identity.Address
	program string
	global  map[string]ledger.Value
	gschema txn.StateSchema
	lschema txn.StateSchema
}

// state is the full ledger state. Groups are evaluated against a clone so a
// failed group leaves the committed state untouched.
type state struct {
	round    uint64
	nextID   uint64
	accounts map[identity.Address]*account
	assets   map[txn.AssetID]*asset
	apps     map[txn.AppID]*app
}

func newState() *state {
	return &state{
		nextID:   1000,
		accounts: make(map[identity.Address]*account),
		assets:   make(map[txn.AssetID]*asset),
		apps:     make(map[txn.AppID]*app),
	}
}

func cloneValues(in map[string]ledger.Value) map[string]ledger.Value {
	out := make(map[string]ledger.Value, len(in))
	for k, v := range in {
		v.Bytes = append([]byte(nil), v.Bytes...)
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	out := &state{
		round:    s.round,
		nextID:   s.nextID,
		accounts: make(map[identity.Address]*account, len(s.accounts)),
		assets:   make(map[txn.AssetID]*asset, len(s.assets)),
		apps:     make(map[txn.AppID]*app, len(s.apps)),
	}
	for addr, a := range s.accounts {
		c := &account{
			balance:  a.balance,
			holdings: make(map[txn.AssetID]*holding, len(a.holdings)),
			local:    make(map[txn.AppID]map[string]ledger.Value, len(a.local)),
		}
		for id, h := range a.holdings {
			hc := *h
			c.holdings[id] = &hc
		}
		for id, kv := range a.local {
			c.local[id] = cloneValues(kv)
		}
		out.accounts[addr] = c
	}
	for id, a := range s.assets {
		ac := *a
		out.assets[id] = &ac
	}
	for id, a := range s.apps {
		ac := *a
		ac.global = cloneValues(a.global)
		out.apps[id] = &ac
	}
	return out
}

func (s *state) account(addr identity.Address) *account {
	a, ok := s.accounts[addr]
	if !ok {
		a = &account{
			holdings: make(map[txn.AssetID]*holding),
			local:    make(map[txn.AppID]map[string]ledger.Value),
		}
		s.accounts[addr] = a
	}
	return a
}

func (s *state) allocID() uint64 {
	s.nextID++
	return s.nextID
}

func (s *state) accountInfo(addr identity.Address) *ledger.Account {
	info := &ledger.Account{Address: addr, Round: s.round}
	a, ok := s.accounts[addr]
	if !ok {
		return info
	}
	info.Balance = a.balance
	ids := make([]txn.AssetID, 0, len(a.holdings))
	for id := range a.holdings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		h := a.holdings[id]
		info.Assets = append(info.Assets, ledger.AssetHolding{AssetID: id, Amount: h.amount, Frozen: h.frozen})
	}
	if len(a.local) > 0 {
		info.AppsLocal = make(map[txn.AppID]map[string]ledger.Value, len(a.local))
		for id, kv := range a.local {
			info.AppsLocal[id] = cloneValues(kv)
		}
	}
	return info
}

func (a *app) info() *ledger.Application {
	return &ledger.Application{
		ID:           a.id,
		Creator:      a.creator,
		Address:      txn.ApplicationAddress(a.id),
		Program:      a.program,
		GlobalSchema: a.gschema,
		LocalSchema:  a.lschema,
		Global:       cloneValues(a.global),
	}
}
