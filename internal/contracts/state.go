package contracts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"royalty-exchange/go-backend/internal/abi"
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/txn"
)

// Enforcer global state keys.
const (
	KeyRoyaltyBasis    = "royalty_basis"
	KeyRoyaltyReceiver = "royalty_receiver"
)

const (
	MaxBasisPoints = 10000
	// AssetFunding is the balance the enforcer account needs before it can
	// create an asset.
	AssetFunding = 200_000

	offerSize     = identity.AddressSize + 8
	listingHeader = identity.AddressSize + 8 + 8 + 8
)

// RoyaltyShare is price * basis / 10000 rounded down.
func RoyaltyShare(price, basis uint64) uint64 {
	hi, lo := bits.Mul64(price, basis)
	q, _ := bits.Div64(hi, lo, MaxBasisPoints)
	return q
}

// Offer is an owner's authorization for Auth to move Amount of an asset, as
// recorded in the owner's enforcer local state.
type Offer struct {
	Auth   identity.Address
	Amount uint64
}

func (o Offer) IsZero() bool { return o.Amount == 0 && o.Auth.IsZero() }

func (o Offer) Encode() []byte {
	out := append([]byte(nil), o.Auth[:]...)
	return binary.BigEndian.AppendUint64(out, o.Amount)
}

func DecodeOffer(b []byte) (Offer, error) {
	if len(b) != offerSize {
		return Offer{}, fmt.Errorf("offer record of %d bytes", len(b))
	}
	var o Offer
	copy(o.Auth[:], b[:identity.AddressSize])
	o.Amount = binary.BigEndian.Uint64(b[identity.AddressSize:])
	return o, nil
}

func OfferKey(id txn.AssetID) string {
	return "offer/" + id.String()
}

// OfferValues are the decoded arguments of an offer call.
type OfferValues struct {
	Asset      txn.AssetID
	Amount     uint64
	Auth       identity.Address
	PrevAmount uint64
	PrevAuth   identity.Address
}

// OfferArgs decodes op as a call of the enforcer's offer method m.
func OfferArgs(m abi.Method, op txn.Operation) (OfferValues, error) {
	if op.Type != txn.TypeAppCall || len(op.AppArgs) == 0 || !m.HasSelector(op.AppArgs[0]) {
		return OfferValues{}, errors.New("referenced operation is not an offer call")
	}
	if len(op.AppArgs) != len(m.Args)+1 {
		return OfferValues{}, fmt.Errorf("offer call has %d arguments", len(op.AppArgs)-1)
	}
	vals := make([]any, len(m.Args))
	for i, a := range m.Args {
		v, err := abi.DecodeValue(a.Kind, op.AppArgs[i+1])
		if err != nil {
			return OfferValues{}, fmt.Errorf("offer argument %d: %w", i, err)
		}
		vals[i] = v
	}
	asset, _ := vals[0].(uint64)
	amount, _ := vals[1].(uint64)
	auth, _ := vals[2].(identity.Address)
	prevAmount, _ := vals[3].(uint64)
	prevAuth, _ := vals[4].(identity.Address)
	return OfferValues{
		Asset:      txn.AssetID(asset),
		Amount:     amount,
		Auth:       auth,
		PrevAmount: prevAmount,
		PrevAuth:   prevAuth,
	}, nil
}

// Listing is a marketplace listing as stored in the marketplace's global
// state.
type Listing struct {
	Seller   identity.Address
	Enforcer txn.AppID
	Amount   uint64
	Price    uint64
	// Offer is the msgpack-encoded signed offer the listing was made with.
	Offer []byte
}

func (l Listing) Encode() []byte {
	out := append([]byte(nil), l.Seller[:]...)
	out = binary.BigEndian.AppendUint64(out, uint64(l.Enforcer))
	out = binary.BigEndian.AppendUint64(out, l.Amount)
	out = binary.BigEndian.AppendUint64(out, l.Price)
	return append(out, l.Offer...)
}

func DecodeListing(b []byte) (Listing, error) {
	if len(b) < listingHeader {
		return Listing{}, fmt.Errorf("listing record of %d bytes", len(b))
	}
	var l Listing
	off := copy(l.Seller[:], b)
	l.Enforcer = txn.AppID(binary.BigEndian.Uint64(b[off:]))
	l.Amount = binary.BigEndian.Uint64(b[off+8:])
	l.Price = binary.BigEndian.Uint64(b[off+16:])
	l.Offer = append([]byte(nil), b[listingHeader:]...)
	return l, nil
}

func ListingKey(id txn.AssetID) string {
	return "listing/" + id.String()
}
