// Package deploy creates applications on the ledger.
package deploy

import (
	"context"
	"fmt"

	"royalty-exchange/go-backend/internal/contracts"
	"royalty-exchange/go-backend/internal/executor"
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/txn"
)

// CreateApplication submits an application-create operation signed by
// creator and returns the new application's id with the committed group.
// The account address is txn.ApplicationAddress(id).
func CreateApplication(ctx context.Context, engine *executor.Engine, creator *identity.Identity, spec contracts.AppSpec, rounds uint64) (txn.AppID, *executor.Committed, error) {
	p, err := engine.Ledger().SuggestedParams(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("deploy %s: suggested params: %w", spec.Name, err)
	}
	b := txn.NewBuilder()
	op := txn.AppCreate(creator.Address(), spec.Approval, spec.Clear, spec.GlobalSchema, spec.LocalSchema, p)
	if err := b.AddTransfer(op, creator); err != nil {
		return 0, nil, fmt.Errorf("deploy %s: %w", spec.Name, err)
	}
	g, err := b.Freeze()
	if err != nil {
		return 0, nil, fmt.Errorf("deploy %s: %w", spec.Name, err)
	}
	committed, err := engine.Execute(ctx, g, rounds)
	if err != nil {
		return 0, nil, fmt.Errorf("deploy %s: %w", spec.Name, err)
	}
	id := committed.Results[0].CreatedAppID
	if id == 0 {
		return 0, committed, fmt.Errorf("deploy %s: ledger reported no application id", spec.Name)
	}
	return id, committed, nil
}
