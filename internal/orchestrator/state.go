package orchestrator

import (
	"fmt"
	"strings"
)

// State is a confirmed position of an exchange run. Each state after
// Uninitialized is reached by exactly one confirmed group.
type State int

const (
	Uninitialized State = iota
	EnforcerDeployed
	AssetMinted
	PolicySet
	AssetCustodied
	MarketDeployed
	Listed
	Sold
)

var stateNames = [...]string{
	Uninitialized:    "uninitialized",
	EnforcerDeployed: "enforcer_deployed",
	AssetMinted:      "asset_minted",
	PolicySet:        "policy_set",
	AssetCustodied:   "asset_custodied",
	MarketDeployed:   "market_deployed",
	Listed:           "listed",
	Sold:             "sold",
}

func (s State) String() string {
	if s < Uninitialized || s > Sold {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func ParseState(s string) (State, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for i, name := range stateNames {
		if name == v {
			return State(i), nil
		}
	}
	return Uninitialized, fmt.Errorf("orchestrator: unknown state %q", s)
}
