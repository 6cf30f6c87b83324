package simnet

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack"

	"royalty-exchange/go-backend/internal/abi"
	"royalty-exchange/go-backend/internal/contracts"
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/txn"
)

const enforcerProgramName = contracts.EnforcerProgram

// enforcer only moves its assets through clawback after checking the
// owner's recorded or signed offer, and pays the royalty on every sale.
type enforcer struct {
	iface *abi.Interface
	offer abi.Method
}

func newEnforcer() *enforcer {
	iface := contracts.MustEnforcer()
	m, err := iface.Resolve(contracts.MethodOffer)
	if err != nil {
		panic(err)
	}
	return &enforcer{iface: iface, offer: m}
}

func (p *enforcer) Interface() *abi.Interface { return p.iface }

func (p *enforcer) Call(env *Env, m abi.Method, args Args) error {
	switch m.Name {
	case contracts.MethodCreateNFT:
		return p.createNFT(env)
	case contracts.MethodSetPolicy:
		return p.setPolicy(env, args.Uint(0), args.Address(1))
	case contracts.MethodRoyaltyFreeMove:
		return p.royaltyFreeMove(env, args)
	case contracts.MethodOffer:
		return p.recordOffer(env, args)
	case contracts.MethodTransfer:
		return p.transfer(env, args)
	}
	return fmt.Errorf("method not implemented")
}

func (p *enforcer) createNFT(env *Env) error {
	if env.Sender() != env.Creator() {
		return errors.New("only the creator may create assets")
	}
	if bal := env.Balance(env.Address()); bal < contracts.AssetFunding {
		return fmt.Errorf("application balance %d below asset funding %d", bal, contracts.AssetFunding)
	}
	id := env.CreateAsset(1, "RNFT", "royalty enforced nft", true)
	return env.Return(abi.KindUint64, uint64(id))
}

func (p *enforcer) setPolicy(env *Env, basis uint64, receiver identity.Address) error {
	if env.Sender() != env.Creator() {
		return errors.New("only the creator may set the royalty policy")
	}
	if basis > contracts.MaxBasisPoints {
		return fmt.Errorf("royalty basis %d exceeds %d", basis, contracts.MaxBasisPoints)
	}
	if _, ok := env.Global(contracts.KeyRoyaltyReceiver); ok {
		return errors.New("royalty policy already set")
	}
	env.SetGlobal(contracts.KeyRoyaltyBasis, ledger.UintValue(basis))
	env.SetGlobal(contracts.KeyRoyaltyReceiver, ledger.BytesValue(receiver[:]))
	env.Tracef("royalty policy %d bps to %s", basis, receiver)
	return nil
}

func (p *enforcer) policy(env *Env) (uint64, identity.Address, error) {
	recv, ok := env.Global(contracts.KeyRoyaltyReceiver)
	if !ok || len(recv.Bytes) != identity.AddressSize {
		return 0, identity.Address{}, errors.New("royalty policy not set")
	}
	basis, _ := env.Global(contracts.KeyRoyaltyBasis)
	var addr identity.Address
	copy(addr[:], recv.Bytes)
	return basis.Uint, addr, nil
}

func (p *enforcer) controls(env *Env, id txn.AssetID) error {
	a, ok := env.Asset(id)
	if !ok {
		return fmt.Errorf("asset %d does not exist", id)
	}
	if a.Clawback != env.Address() {
		return fmt.Errorf("asset %d is not controlled by application %d", id, env.AppID())
	}
	return nil
}

func (p *enforcer) recorded(env *Env, owner identity.Address, id txn.AssetID) (contracts.Offer, error) {
	v, ok := env.Local(owner, contracts.OfferKey(id))
	if !ok {
		return contracts.Offer{}, nil
	}
	return contracts.DecodeOffer(v.Bytes)
}

func checkPrevious(cur contracts.Offer, prevAmount uint64, prevAuth identity.Address) error {
	if cur.Amount != prevAmount || cur.Auth != prevAuth {
		return fmt.Errorf("previous offer mismatch: recorded %d to %s", cur.Amount, cur.Auth)
	}
	return nil
}

func clawback(env *Env, id txn.AssetID, amount uint64, from, to identity.Address) txn.Operation {
	return txn.Operation{
		Type:          txn.TypeAssetTransfer,
		Sender:        env.Address(),
		AssetID:       id,
		AssetAmount:   amount,
		AssetSender:   from,
		AssetReceiver: to,
	}
}

func (p *enforcer) royaltyFreeMove(env *Env, args Args) error {
	id, amount := args.Asset(0), args.Uint(1)
	owner, receiver := args.Address(2), args.Address(3)
	if env.Sender() != env.Creator() {
		return errors.New("only the creator may move without royalty")
	}
	if err := p.controls(env, id); err != nil {
		return err
	}
	cur, err := p.recorded(env, owner, id)
	if err != nil {
		return err
	}
	if err := checkPrevious(cur, args.Uint(4), args.Address(5)); err != nil {
		return err
	}
	if !cur.IsZero() {
		env.DeleteLocal(owner, contracts.OfferKey(id))
	}
	return env.Submit(clawback(env, id, amount, owner, receiver))
}

func (p *enforcer) recordOffer(env *Env, args Args) error {
	id, amount, auth := args.Asset(0), args.Uint(1), args.Address(2)
	if err := p.controls(env, id); err != nil {
		return err
	}
	held, ok := env.Holding(env.Sender(), id)
	if !ok || held < amount {
		return fmt.Errorf("offer of %d exceeds holding %d", amount, held)
	}
	cur, err := p.recorded(env, env.Sender(), id)
	if err != nil {
		return err
	}
	if err := checkPrevious(cur, args.Uint(3), args.Address(4)); err != nil {
		return err
	}
	if amount == 0 {
		env.DeleteLocal(env.Sender(), contracts.OfferKey(id))
		return nil
	}
	return env.SetLocal(env.Sender(), contracts.OfferKey(id), ledger.BytesValue(contracts.Offer{Auth: auth, Amount: amount}.Encode()))
}

// signedOffer validates an offer call signed by owner that was carried to
// this application by reference instead of being executed.
func (p *enforcer) signedOffer(env *Env, owner identity.Address, id txn.AssetID, blob []byte) (contracts.Offer, error) {
	var stxn txn.SignedTxn
	if err := msgpack.Unmarshal(blob, &stxn); err != nil {
		return contracts.Offer{}, fmt.Errorf("decode signed offer: %w", err)
	}
	if !stxn.Verify() {
		return contracts.Offer{}, errors.New("signed offer has an invalid signature")
	}
	vals, err := contracts.OfferArgs(p.offer, stxn.Txn)
	if err != nil {
		return contracts.Offer{}, err
	}
	switch {
	case stxn.Txn.AppID != env.AppID():
		return contracts.Offer{}, fmt.Errorf("signed offer targets application %d", stxn.Txn.AppID)
	case stxn.Txn.Sender != owner:
		return contracts.Offer{}, fmt.Errorf("signed offer is from %s, not owner %s", stxn.Txn.Sender, owner)
	case vals.Asset != id:
		return contracts.Offer{}, fmt.Errorf("signed offer is for asset %d", vals.Asset)
	}
	cur, err := p.recorded(env, owner, id)
	if err != nil {
		return contracts.Offer{}, err
	}
	if err := checkPrevious(cur, vals.PrevAmount, vals.PrevAuth); err != nil {
		return contracts.Offer{}, err
	}
	return contracts.Offer{Auth: vals.Auth, Amount: vals.Amount}, nil
}

func (p *enforcer) transfer(env *Env, args Args) error {
	id, amount := args.Asset(0), args.Uint(1)
	owner, buyer, receiver := args.Address(2), args.Address(3), args.Address(4)
	payment, blob := args.Txn(5), args.Bytes(6)

	if err := p.controls(env, id); err != nil {
		return err
	}
	var (
		off      contracts.Offer
		err      error
		recorded bool
	)
	if len(blob) > 0 {
		off, err = p.signedOffer(env, owner, id, blob)
	} else {
		off, err = p.recorded(env, owner, id)
		recorded = true
	}
	if err != nil {
		return err
	}
	if off.IsZero() {
		return fmt.Errorf("no offer from %s for asset %d", owner, id)
	}
	if env.Sender() != off.Auth {
		return fmt.Errorf("caller %s is not authorized by the offer", env.Sender())
	}
	if amount > off.Amount {
		return fmt.Errorf("transfer of %d exceeds offered %d", amount, off.Amount)
	}

	basis, policyReceiver, err := p.policy(env)
	if err != nil {
		return err
	}
	if receiver != policyReceiver {
		return fmt.Errorf("royalty receiver %s does not match policy", receiver)
	}
	if payment.Type != txn.TypePayment || payment.Receiver != env.Address() || payment.Sender != env.Sender() {
		return errors.New("payment must come from the caller to the application")
	}
	price := payment.Amount
	royalty := contracts.RoyaltyShare(price, basis)

	var ops []txn.Operation
	if royalty > 0 {
		ops = append(ops, txn.Operation{Type: txn.TypePayment, Sender: env.Address(), Receiver: receiver, Amount: royalty})
	}
	if rest := price - royalty; rest > 0 {
		ops = append(ops, txn.Operation{Type: txn.TypePayment, Sender: env.Address(), Receiver: owner, Amount: rest})
	}
	ops = append(ops, clawback(env, id, amount, owner, buyer))
	if err := env.Submit(ops...); err != nil {
		return err
	}
	env.Tracef("royalty %d of %d to %s", royalty, price, receiver)

	if recorded {
		if left := off.Amount - amount; left > 0 {
			return env.SetLocal(owner, contracts.OfferKey(id), ledger.BytesValue(contracts.Offer{Auth: off.Auth, Amount: left}.Encode()))
		}
		env.DeleteLocal(owner, contracts.OfferKey(id))
	}
	return nil
}
