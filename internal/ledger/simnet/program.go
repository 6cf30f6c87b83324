package simnet

import (
	"fmt"

	"royalty-exchange/go-backend/internal/abi"
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/txn"
)

// Program is the approval logic of an application. Call runs a NoOp method
// call; returning an error rejects the whole group.
type Program interface {
	Interface() *abi.Interface
	Call(env *Env, m abi.Method, args Args) error
}

// Env is what a running program can see and change. All changes land in the
// group's scratch state.
type Env struct {
	e     *evaluator
	g     *group
	index int
	app   *app
	out   *opResult
}

func (env *Env) Txn() txn.Operation { return env.g.ops[env.index] }

func (env *Env) Sender() identity.Address { return env.Txn().Sender }

func (env *Env) AppID() txn.AppID { return env.app.id }

func (env *Env) Address() identity.Address { return txn.ApplicationAddress(env.app.id) }

func (env *Env) Creator() identity.Address { return env.app.creator }

func (env *Env) Inner() bool { return env.g.inner }

func (env *Env) Global(key string) (ledger.Value, bool) {
	v, ok := env.app.global[key]
	return v, ok
}

func (env *Env) SetGlobal(key string, v ledger.Value) {
	env.app.global[key] = v
}

func (env *Env) DeleteGlobal(key string) {
	delete(env.app.global, key)
}

func (env *Env) localState(addr identity.Address) (map[string]ledger.Value, error) {
	acct, ok := env.e.st.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("%s is not opted in to application %d", addr, env.app.id)
	}
	kv, ok := acct.local[env.app.id]
	if !ok {
		return nil, fmt.Errorf("%s is not opted in to application %d", addr, env.app.id)
	}
	return kv, nil
}

func (env *Env) OptedIn(addr identity.Address) bool {
	_, err := env.localState(addr)
	return err == nil
}

func (env *Env) Local(addr identity.Address, key string) (ledger.Value, bool) {
	kv, err := env.localState(addr)
	if err != nil {
		return ledger.Value{}, false
	}
	v, ok := kv[key]
	return v, ok
}

func (env *Env) SetLocal(addr identity.Address, key string, v ledger.Value) error {
	kv, err := env.localState(addr)
	if err != nil {
		return err
	}
	kv[key] = v
	return nil
}

func (env *Env) DeleteLocal(addr identity.Address, key string) {
	if kv, err := env.localState(addr); err == nil {
		delete(kv, key)
	}
}

func (env *Env) Balance(addr identity.Address) uint64 {
	if acct, ok := env.e.st.accounts[addr]; ok {
		return acct.balance
	}
	return 0
}

func (env *Env) Holding(addr identity.Address, id txn.AssetID) (uint64, bool) {
	acct, ok := env.e.st.accounts[addr]
	if !ok {
		return 0, false
	}
	h, ok := acct.holdings[id]
	if !ok {
		return 0, false
	}
	return h.amount, true
}

func (env *Env) Asset(id txn.AssetID) (ledger.Asset, bool) {
	a, ok := env.e.st.assets[id]
	if !ok {
		return ledger.Asset{}, false
	}
	return a.params, true
}

// Reference returns a signed operation of another group that the submission
// carries by reference.
func (env *Env) Reference(v abi.GroupRefValue) (txn.SignedTxn, bool) {
	stxn, ok := env.e.refs[ledger.GroupRefKey{Group: txn.GroupID(v.GroupID), Index: v.Index}]
	return stxn, ok
}

func (env *Env) Log(b []byte) {
	env.out.res.Logs = append(env.out.res.Logs, append([]byte(nil), b...))
}

func (env *Env) Return(k abi.Kind, v any) error {
	line, err := abi.EncodeReturn(k, v)
	if err != nil {
		return err
	}
	env.Log(line)
	return nil
}

func (env *Env) Tracef(format string, args ...any) {
	env.out.steps = append(env.out.steps, fmt.Sprintf(format, args...))
}

// CreateAsset creates an asset held by the application. The application is
// manager, freeze and clawback account.
func (env *Env) CreateAsset(total uint64, unitName, name string, defaultFrozen bool) txn.AssetID {
	st := env.e.st
	id := txn.AssetID(st.allocID())
	addr := env.Address()
	st.assets[id] = &asset{params: ledger.Asset{
		ID:            id,
		Creator:       addr,
		Total:         total,
		UnitName:      unitName,
		Name:          name,
		DefaultFrozen: defaultFrozen,
		Manager:       addr,
		Clawback:      addr,
		Freeze:        addr,
	}}
	st.account(addr).holdings[id] = &holding{amount: total, frozen: defaultFrozen}
	env.out.res.CreatedAssetID = id
	env.Tracef("create asset %d (%s) total %d", id, unitName, total)
	return id
}

// Submit runs an inner group sent by this application. Inner operations pay
// no fee and need no signature.
func (env *Env) Submit(ops ...txn.Operation) error {
	if env.g.depth+1 > maxInnerDepth {
		return fmt.Errorf("inner call depth exceeds %d", maxInnerDepth)
	}
	if len(ops) == 0 || len(ops) > txn.MaxGroupSize {
		return fmt.Errorf("inner group of %d operations", len(ops))
	}
	for _, op := range ops {
		if op.Sender != env.Address() {
			return errUnsignedInner
		}
	}
	inner := &group{ops: ops, inner: true, depth: env.g.depth + 1}
	if _, err := env.e.run(inner); err != nil {
		return fmt.Errorf("inner group: %w", err)
	}
	env.out.res.Inner = append(env.out.res.Inner, ops...)
	for _, op := range ops {
		env.Tracef("inner %s from %s", op.Type, op.Sender)
	}
	return nil
}

// builtinPrograms are the approval programs every simnet can run.
func builtinPrograms() map[string]Program {
	return map[string]Program{
		enforcerProgramName:    newEnforcer(),
		marketplaceProgramName: newMarketplace(),
	}
}
