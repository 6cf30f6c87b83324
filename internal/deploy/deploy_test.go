package deploy

import (
	"context"
	"errors"
	"testing"

	"royalty-exchange/go-backend/internal/contracts"
	"royalty-exchange/go-backend/internal/executor"
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger/simnet"
	"royalty-exchange/go-backend/internal/txn"
)

func TestCreateApplication(t *testing.T) {
	ctx := context.Background()
	net := simnet.New(simnet.Config{})
	engine := executor.New(executor.Config{Ledger: net})
	creator, _, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	net.Fund(creator.Address(), 1_000_000)

	id, committed, err := CreateApplication(ctx, engine, creator, contracts.MarketplaceApp(), 2)
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	if committed.Round == 0 || committed.Results[0].CreatedAppID != id || committed.Results[0].Type != txn.TypeAppCall {
		t.Fatalf("unexpected committed group %+v", committed)
	}
	app, err := net.ApplicationState(ctx, id)
	if err != nil {
		t.Fatalf("application state: %v", err)
	}
	if app.Creator != creator.Address() || app.Program != contracts.MarketplaceProgram {
		t.Fatalf("unexpected application %+v", app)
	}
}

func TestCreateApplicationUnknownProgram(t *testing.T) {
	net := simnet.New(simnet.Config{})
	engine := executor.New(executor.Config{Ledger: net, Diagnostics: executor.DiagnosticsOff})
	creator, _, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	net.Fund(creator.Address(), 1_000_000)
	spec := contracts.AppSpec{Name: "bogus", Approval: []byte("bogus/v0"), Clear: []byte(contracts.ClearProgram)}
	_, _, err = CreateApplication(context.Background(), engine, creator, spec, 2)
	var rejected *executor.RejectedError
	if !errors.As(err, &rejected) || rejected.Index != 0 {
		t.Fatalf("expected rejection at 0, got %v", err)
	}
}
