package simnet

import (
	"errors"
	"fmt"

	"royalty-exchange/go-backend/internal/abi"
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/txn"
)

const maxInnerDepth = 8

var errUnsignedInner = errors.New("inner operation sender is not the calling application")

// evaluator applies one group to a state. It never touches committed state:
// callers hand it a clone and keep it only if run succeeds.
type evaluator struct {
	st       *state
	programs map[string]Program
	refs     map[ledger.GroupRefKey]txn.SignedTxn
	trace    *ledger.Trace
}

type group struct {
	ops   []txn.Operation
	ids   []txn.TxID
	inner bool
	depth int
}

type opResult struct {
	res   ledger.TxnResult
	steps []string
}

// run evaluates every operation in order and stops at the first failure.
func (e *evaluator) run(g *group) ([]ledger.TxnResult, error) {
	results := make([]ledger.TxnResult, len(g.ops))
	for i := range g.ops {
		out := &opResult{}
		if g.ids != nil {
			out.res.TxID = g.ids[i]
		}
		err := e.apply(g, i, out)
		if e.trace != nil && !g.inner {
			ot := ledger.OpTrace{
				Index: i,
				TxID:  out.res.TxID,
				Type:  string(g.ops[i].Type),
				Steps: out.steps,
				Logs:  out.res.Logs,
			}
			if err != nil {
				ot.Rejected = true
				ot.Reason = err.Error()
			}
			e.trace.Ops = append(e.trace.Ops, ot)
		}
		if err != nil {
			return nil, &ledger.RejectError{Index: i, Reason: err.Error()}
		}
		results[i] = out.res
	}
	return results, nil
}

func (e *evaluator) apply(g *group, i int, out *opResult) error {
	op := g.ops[i]
	if !g.inner {
		snd := e.st.account(op.Sender)
		if snd.balance < op.Fee {
			return fmt.Errorf("fee %d exceeds balance %d of %s", op.Fee, snd.balance, op.Sender)
		}
		snd.balance -= op.Fee
	}
	switch op.Type {
	case txn.TypePayment:
		return e.pay(op, out)
	case txn.TypeAssetTransfer:
		return e.assetTransfer(op, out)
	case txn.TypeAppCall:
		return e.appCall(g, i, out)
	}
	return fmt.Errorf("unknown operation type %q", op.Type)
}

func (e *evaluator) pay(op txn.Operation, out *opResult) error {
	snd := e.st.account(op.Sender)
	if snd.balance < op.Amount {
		return fmt.Errorf("overspend by %s: balance %d, amount %d", op.Sender, snd.balance, op.Amount)
	}
	snd.balance -= op.Amount
	e.st.account(op.Receiver).balance += op.Amount
	out.steps = append(out.steps, fmt.Sprintf("pay %d from %s to %s", op.Amount, op.Sender, op.Receiver))
	return nil
}

func (e *evaluator) assetTransfer(op txn.Operation, out *opResult) error {
	a, ok := e.st.assets[op.AssetID]
	if !ok {
		return fmt.Errorf("asset %d does not exist", op.AssetID)
	}

	if !op.AssetSender.IsZero() {
		if op.Sender != a.params.Clawback {
			return fmt.Errorf("%s is not the clawback of asset %d", op.Sender, op.AssetID)
		}
		return e.moveAsset(op.AssetID, op.AssetSender, op.AssetReceiver, op.AssetAmount, true, out)
	}

	if op.Sender == op.AssetReceiver && op.AssetAmount == 0 {
		acct := e.st.account(op.Sender)
		if _, ok := acct.holdings[op.AssetID]; !ok {
			acct.holdings[op.AssetID] = &holding{frozen: a.params.DefaultFrozen}
			out.steps = append(out.steps, fmt.Sprintf("opt %s in to asset %d", op.Sender, op.AssetID))
		}
		return nil
	}
	return e.moveAsset(op.AssetID, op.Sender, op.AssetReceiver, op.AssetAmount, false, out)
}

func (e *evaluator) moveAsset(id txn.AssetID, from, to identity.Address, amount uint64, clawback bool, out *opResult) error {
	src, ok := e.st.account(from).holdings[id]
	if !ok {
		return fmt.Errorf("%s is not opted in to asset %d", from, id)
	}
	dst, ok := e.st.account(to).holdings[id]
	if !ok {
		return fmt.Errorf("receiver %s is not opted in to asset %d", to, id)
	}
	if !clawback && (src.frozen || dst.frozen) {
		return fmt.Errorf("asset %d is frozen", id)
	}
	if src.amount < amount {
		return fmt.Errorf("asset %d underflow: %s holds %d, moving %d", id, from, src.amount, amount)
	}
	src.amount -= amount
	dst.amount += amount
	out.steps = append(out.steps, fmt.Sprintf("move %d of asset %d from %s to %s", amount, id, from, to))
	return nil
}

func (e *evaluator) appCall(g *group, i int, out *opResult) error {
	op := g.ops[i]
	if op.AppID == 0 {
		return e.createApp(op, out)
	}
	a, ok := e.st.apps[op.AppID]
	if !ok {
		return fmt.Errorf("application %d does not exist", op.AppID)
	}
	acct := e.st.account(op.Sender)
	switch op.OnComplete {
	case txn.OptIn:
		if _, ok := acct.local[a.id]; ok {
			return fmt.Errorf("%s already opted in to application %d", op.Sender, a.id)
		}
		acct.local[a.id] = make(map[string]ledger.Value)
		out.steps = append(out.steps, fmt.Sprintf("opt %s in to application %d", op.Sender, a.id))
		if len(op.AppArgs) == 0 {
			return nil
		}
	case txn.CloseOut, txn.ClearState:
		if _, ok := acct.local[a.id]; !ok {
			return fmt.Errorf("%s is not opted in to application %d", op.Sender, a.id)
		}
		delete(acct.local, a.id)
		return nil
	case txn.DeleteApplication:
		if op.Sender != a.creator {
			return fmt.Errorf("only the creator may delete application %d", a.id)
		}
		delete(e.st.apps, a.id)
		return nil
	case txn.NoOp:
	default:
		return fmt.Errorf("on-completion %d is not supported", op.OnComplete)
	}

	prog, ok := e.programs[a.program]
	if !ok {
		return fmt.Errorf("application %d runs unknown program %q", a.id, a.program)
	}
	if len(op.AppArgs) == 0 {
		return fmt.Errorf("application %d: missing method selector", a.id)
	}
	m, ok := prog.Interface().BySelector(op.AppArgs[0])
	if !ok {
		return fmt.Errorf("application %d: unknown method selector %x", a.id, op.AppArgs[0])
	}
	args, err := decodeArgs(m, g, i)
	if err != nil {
		return fmt.Errorf("%s: %w", m.Name, err)
	}
	out.steps = append(out.steps, fmt.Sprintf("call %s on application %d", m.Signature(), a.id))
	env := &Env{e: e, g: g, index: i, app: a, out: out}
	if err := prog.Call(env, m, args); err != nil {
		return fmt.Errorf("%s: %w", m.Name, err)
	}
	return nil
}

func (e *evaluator) createApp(op txn.Operation, out *opResult) error {
	name := string(op.ApprovalProgram)
	if _, ok := e.programs[name]; !ok {
		return fmt.Errorf("unknown approval program %q", name)
	}
	id := txn.AppID(e.st.allocID())
	e.st.apps[id] = &app{
		id:      id,
		creator: op.Sender,
		program: name,
		global:  make(map[string]ledger.Value),
		gschema: op.GlobalSchema,
		lschema: op.LocalSchema,
	}
	out.res.CreatedAppID = id
	out.steps = append(out.steps, fmt.Sprintf("create application %d running %s", id, name))
	return nil
}

// Args are the decoded arguments of a method call, indexed like the
// method's parameter list.
type Args struct {
	values []any
}

func decodeArgs(m abi.Method, g *group, index int) (Args, error) {
	op := g.ops[index]
	nTxn := m.TxnArgCount()
	if index < nTxn {
		return Args{}, fmt.Errorf("want %d preceding operations, group has %d", nTxn, index)
	}
	raw := op.AppArgs[1:]
	if want := len(m.Args) - nTxn; len(raw) != want {
		return Args{}, fmt.Errorf("want %d encoded arguments, got %d", want, len(raw))
	}
	args := Args{values: make([]any, len(m.Args))}
	txnPos, rawPos := index-nTxn, 0
	for i, a := range m.Args {
		if a.Kind.IsTxn() {
			t := g.ops[txnPos]
			if !a.Kind.AcceptsTxnType(string(t.Type)) {
				return Args{}, fmt.Errorf("argument %d: want %s operation, got %s", i, a.Kind, t.Type)
			}
			args.values[i] = t
			txnPos++
			continue
		}
		v, err := abi.DecodeValue(a.Kind, raw[rawPos])
		if err != nil {
			return Args{}, fmt.Errorf("argument %d: %w", i, err)
		}
		args.values[i] = v
		rawPos++
	}
	return args, nil
}

func (a Args) Uint(i int) uint64 {
	v, _ := a.values[i].(uint64)
	return v
}

func (a Args) Asset(i int) txn.AssetID { return txn.AssetID(a.Uint(i)) }

func (a Args) App(i int) txn.AppID { return txn.AppID(a.Uint(i)) }

func (a Args) Address(i int) identity.Address {
	v, _ := a.values[i].(identity.Address)
	return v
}

func (a Args) Bytes(i int) []byte {
	v, _ := a.values[i].([]byte)
	return v
}

func (a Args) Txn(i int) txn.Operation {
	v, _ := a.values[i].(txn.Operation)
	return v
}

func (a Args) Ref(i int) abi.GroupRefValue {
	v, _ := a.values[i].(abi.GroupRefValue)
	return v
}
