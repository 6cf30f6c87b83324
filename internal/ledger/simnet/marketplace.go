package simnet

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack"

	"royalty-exchange/go-backend/internal/abi"
	"royalty-exchange/go-backend/internal/contracts"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/txn"
)

const marketplaceProgramName = contracts.MarketplaceProgram

type marketplace struct {
	iface    *abi.Interface
	offer    abi.Method
	transfer abi.Method
}

func newMarketplace() *marketplace {
	enf := contracts.MustEnforcer()
	offer, err := enf.Resolve(contracts.MethodOffer)
	if err != nil {
		panic(err)
	}
	transfer, err := enf.Resolve(contracts.MethodTransfer)
	if err != nil {
		panic(err)
	}
	return &marketplace{iface: contracts.MustMarketplace(), offer: offer, transfer: transfer}
}

func (p *marketplace) Interface() *abi.Interface { return p.iface }

func (p *marketplace) Call(env *Env, m abi.Method, args Args) error {
	switch m.Name {
	case contracts.MethodList:
		return p.list(env, args)
	case contracts.MethodBuy:
		return p.buy(env, args)
	case contracts.MethodDelist:
		return p.delist(env, args.Asset(0))
	}
	return fmt.Errorf("method not implemented")
}

func (p *marketplace) listing(env *Env, id txn.AssetID) (contracts.Listing, bool, error) {
	v, ok := env.Global(contracts.ListingKey(id))
	if !ok {
		return contracts.Listing{}, false, nil
	}
	l, err := contracts.DecodeListing(v.Bytes)
	return l, true, err
}

func (p *marketplace) list(env *Env, args Args) error {
	id, enforcerApp := args.Asset(0), args.App(1)
	amount, price := args.Uint(2), args.Uint(3)

	stxn, ok := env.Reference(args.Ref(4))
	if !ok {
		return errors.New("offer reference not carried by the submission")
	}
	vals, err := contracts.OfferArgs(p.offer, stxn.Txn)
	if err != nil {
		return err
	}
	switch {
	case stxn.Txn.AppID != enforcerApp:
		return fmt.Errorf("offer reference mismatch: application %d, listing %d", stxn.Txn.AppID, enforcerApp)
	case stxn.Txn.Sender != env.Sender():
		return fmt.Errorf("offer reference mismatch: offer signed by %s", stxn.Txn.Sender)
	case vals.Asset != id:
		return fmt.Errorf("offer reference mismatch: asset %d, listing %d", vals.Asset, id)
	case vals.Amount != amount:
		return fmt.Errorf("offer reference mismatch: amount %d, listing %d", vals.Amount, amount)
	case vals.Auth != env.Address():
		return fmt.Errorf("offer reference mismatch: offer authorizes %s", vals.Auth)
	}
	if price == 0 {
		return errors.New("price must be positive")
	}
	if _, exists, err := p.listing(env, id); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("asset %d is already listed", id)
	}
	blob, err := msgpack.Marshal(stxn)
	if err != nil {
		return err
	}
	l := contracts.Listing{Seller: env.Sender(), Enforcer: enforcerApp, Amount: amount, Price: price, Offer: blob}
	env.SetGlobal(contracts.ListingKey(id), ledger.BytesValue(l.Encode()))
	env.Tracef("listed asset %d at %d", id, price)
	return nil
}

func (p *marketplace) buy(env *Env, args Args) error {
	id, enforcerApp, enforcerAddr := args.Asset(0), args.App(1), args.Address(2)
	owner, receiver, amount := args.Address(3), args.Address(4), args.Uint(5)
	payment := args.Txn(6)

	l, ok, err := p.listing(env, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("asset %d is not listed", id)
	}
	switch {
	case enforcerApp != l.Enforcer || enforcerAddr != txn.ApplicationAddress(l.Enforcer):
		return fmt.Errorf("listing is held by application %d", l.Enforcer)
	case owner != l.Seller:
		return fmt.Errorf("listing belongs to %s", l.Seller)
	case amount != l.Amount:
		return fmt.Errorf("amount %d does not match listing %d", amount, l.Amount)
	case payment.Receiver != env.Address() || payment.Sender != env.Sender():
		return errors.New("payment must come from the buyer to the marketplace")
	case payment.Amount != l.Price:
		return fmt.Errorf("payment %d does not match price %d", payment.Amount, l.Price)
	}

	callArgs, err := encodeCallArgs(p.transfer, uint64(id), amount, owner, env.Sender(), receiver, l.Offer)
	if err != nil {
		return err
	}
	pay := txn.Operation{Type: txn.TypePayment, Sender: env.Address(), Receiver: enforcerAddr, Amount: l.Price}
	call := txn.Operation{Type: txn.TypeAppCall, Sender: env.Address(), AppID: l.Enforcer, AppArgs: callArgs}
	if err := env.Submit(pay, call); err != nil {
		return err
	}
	env.DeleteGlobal(contracts.ListingKey(id))
	return nil
}

func (p *marketplace) delist(env *Env, id txn.AssetID) error {
	l, ok, err := p.listing(env, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("asset %d is not listed", id)
	}
	if l.Seller != env.Sender() {
		return fmt.Errorf("listing belongs to %s", l.Seller)
	}
	env.DeleteGlobal(contracts.ListingKey(id))
	return nil
}

// encodeCallArgs encodes the non-transaction arguments of m, selector first.
func encodeCallArgs(m abi.Method, vals ...any) ([][]byte, error) {
	sel := m.Selector()
	out := [][]byte{sel[:]}
	j := 0
	for _, a := range m.Args {
		if a.Kind.IsTxn() {
			continue
		}
		if j >= len(vals) {
			return nil, fmt.Errorf("%s: missing argument %s", m.Name, a.Name)
		}
		enc, err := abi.EncodeValue(a.Kind, vals[j])
		if err != nil {
			return nil, err
		}
		out = append(out, enc)
		j++
	}
	return out, nil
}
