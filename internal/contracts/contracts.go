// Package contracts holds the interface descriptions and deployment specs of
// the royalty enforcer and the marketplace applications.
package contracts

import (
	_ "embed"
	"fmt"
	"sync"

	"royalty-exchange/go-backend/internal/abi"
	"royalty-exchange/go-backend/internal/txn"
)

const (
	EnforcerProgram    = "royalty-enforcer/v1"
	MarketplaceProgram = "marketplace/v1"
	ClearProgram       = "clear/v1"
)

// Method names exposed by the two programs.
const (
	MethodCreateNFT       = "create_nft"
	MethodSetPolicy       = "set_royalty_policy"
	MethodRoyaltyFreeMove = "royalty_free_move"
	MethodOffer           = "offer"
	MethodTransfer        = "transfer"

	MethodList   = "list"
	MethodBuy    = "buy"
	MethodDelist = "delist"
)

var (
	//go:embed enforcer.json
	enforcerJSON []byte
	//go:embed marketplace.json
	marketplaceJSON []byte
)

var (
	loadOnce    sync.Once
	enforcer    *abi.Interface
	marketplace *abi.Interface
	loadErr     error
)

func load() {
	enforcer, loadErr = abi.LoadInterface(enforcerJSON)
	if loadErr != nil {
		return
	}
	marketplace, loadErr = abi.LoadInterface(marketplaceJSON)
}

func Enforcer() (*abi.Interface, error) {
	loadOnce.Do(load)
	return enforcer, loadErr
}

func Marketplace() (*abi.Interface, error) {
	loadOnce.Do(load)
	return marketplace, loadErr
}

func MustEnforcer() *abi.Interface {
	iface, err := Enforcer()
	if err != nil {
		panic(fmt.Sprintf("contracts: embedded enforcer interface: %v", err))
	}
	return iface
}

func MustMarketplace() *abi.Interface {
	iface, err := Marketplace()
	if err != nil {
		panic(fmt.Sprintf("contracts: embedded marketplace interface: %v", err))
	}
	return iface
}

// AppSpec is everything needed to create an application.
type AppSpec struct {
	Name         string
	Approval     []byte
	Clear        []byte
	GlobalSchema txn.StateSchema
	LocalSchema  txn.StateSchema
}

func EnforcerApp() AppSpec {
	return AppSpec{
		Name:         "royalty-enforcer",
		Approval:     []byte(EnforcerProgram),
		Clear:        []byte(ClearProgram),
		GlobalSchema: txn.StateSchema{NumUint: 1, NumByteSlice: 1},
		LocalSchema:  txn.StateSchema{NumUint: 0, NumByteSlice: 16},
	}
}

func MarketplaceApp() AppSpec {
	return AppSpec{
		Name:         "marketplace",
		Approval:     []byte(MarketplaceProgram),
		Clear:        []byte(ClearProgram),
		GlobalSchema: txn.StateSchema{NumUint: 4, NumByteSlice: 1},
		LocalSchema:  txn.StateSchema{NumUint: 0, NumByteSlice: 16},
	}
}
