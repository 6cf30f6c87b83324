package rpcclient

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"royalty-exchange/go-backend/internal/adapters/rpc"
	"royalty-exchange/go-backend/internal/contracts"
	"royalty-exchange/go-backend/internal/deploy"
	"royalty-exchange/go-backend/internal/executor"
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/ledger/simnet"
	"royalty-exchange/go-backend/internal/royalty"
	"royalty-exchange/go-backend/internal/txn"
)

const testToken = "client-test-token"

func serve(t *testing.T, cfg simnet.Config) (*Client, *simnet.Ledger) {
	t.Helper()
	net := simnet.New(cfg)
	s, err := rpc.NewServer(net, rpc.Config{Token: testToken})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	c, err := New(Config{Endpoint: srv.URL, Token: testToken, PollRPS: 200})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, net
}

func runTimed(t *testing.T, net *simnet.Ledger) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = net.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func fundedIdentity(t *testing.T, net *simnet.Ledger, amount uint64) *identity.Identity {
	t.Helper()
	id, _, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if amount > 0 {
		net.Fund(id.Address(), amount)
	}
	return id
}

func payment(t *testing.T, c *Client, from, to *identity.Identity, amount uint64) *txn.Frozen {
	t.Helper()
	p, err := c.SuggestedParams(context.Background())
	if err != nil {
		t.Fatalf("suggested params: %v", err)
	}
	b := txn.NewBuilder()
	if err := b.AddTransfer(txn.Payment(from.Address(), to.Address(), amount, p), from); err != nil {
		t.Fatalf("add payment: %v", err)
	}
	g, err := b.Freeze()
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	return g
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:8645":             "http://127.0.0.1:8645/rpc",
		"http://127.0.0.1:8645/":     "http://127.0.0.1:8645/rpc",
		" https://ledger.local/rpc ": "https://ledger.local/rpc",
	}
	for in, want := range cases {
		got, err := normalizeEndpoint(in)
		if err != nil {
			t.Fatalf("normalize %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("normalize %q: got %q, want %q", in, got, want)
		}
	}
	if _, err := New(Config{Endpoint: "  "}); err == nil {
		t.Fatal("expected an error for an empty endpoint")
	}
}

func TestClientDeploysAndMintsOverRPC(t *testing.T) {
	ctx := context.Background()
	c, net := serve(t, simnet.Config{})
	seller := fundedIdentity(t, net, 10_000_000)
	beneficiary := fundedIdentity(t, net, 0)
	engine := executor.New(executor.Config{Ledger: c})

	app, committed, err := deploy.CreateApplication(ctx, engine, seller, contracts.EnforcerApp(), 2)
	if err != nil {
		t.Fatalf("deploy enforcer: %v", err)
	}
	if committed.Results[0].CreatedAppID != app {
		t.Fatalf("committed group reports app %d, want %d", committed.Results[0].CreatedAppID, app)
	}
	addr := txn.ApplicationAddress(app)
	enf, err := royalty.New(royalty.Config{Engine: engine, State: c, App: app, Rounds: 2})
	if err != nil {
		t.Fatalf("enforcer handle: %v", err)
	}
	asset, _, err := enf.Mint(ctx, seller)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	info, err := c.AssetInfo(ctx, asset)
	if err != nil {
		t.Fatalf("asset info: %v", err)
	}
	if info.ID != asset || info.Clawback != addr || !info.DefaultFrozen {
		t.Fatalf("unexpected asset %+v", info)
	}

	if _, err := enf.SetPolicy(ctx, seller, 1000, beneficiary.Address()); err != nil {
		t.Fatalf("set policy: %v", err)
	}
	pol, err := enf.Policy(ctx)
	if err != nil {
		t.Fatalf("read policy: %v", err)
	}
	if pol.BasisPoints != 1000 || pol.Beneficiary != beneficiary.Address() {
		t.Fatalf("unexpected policy %+v", pol)
	}

	if _, err := c.ApplicationState(ctx, app+100); !errors.Is(err, ledger.ErrUnknownApp) {
		t.Fatalf("expected ErrUnknownApp, got %v", err)
	}
}

func TestClientReportsRejectionWithTrace(t *testing.T) {
	ctx := context.Background()
	c, net := serve(t, simnet.Config{})
	broke := fundedIdentity(t, net, 0)
	alice := fundedIdentity(t, net, 0)
	engine := executor.New(executor.Config{Ledger: c})

	_, err := engine.Execute(ctx, payment(t, c, broke, alice, 5000), 2)
	var rejected *executor.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.Index != 0 || rejected.Reason == "" {
		t.Fatalf("unexpected rejection %+v", rejected)
	}
	if rejected.Trace == nil {
		t.Fatal("expected a simulation trace")
	}
	if op, ok := rejected.Trace.Failed(); !ok || op.Index != 0 {
		t.Fatalf("trace does not point at operation 0: %+v", rejected.Trace)
	}
}

func TestClientRequiresToken(t *testing.T) {
	c, _ := serve(t, simnet.Config{})
	anon, err := New(Config{Endpoint: strings.TrimSuffix(c.endpoint, "/rpc")})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := anon.Status(context.Background()); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected http 401, got %v", err)
	}
	if _, err := c.Status(context.Background()); err != nil {
		t.Fatalf("status with token: %v", err)
	}
}

func TestClientPollsTimedLedger(t *testing.T) {
	ctx := context.Background()
	c, net := serve(t, simnet.Config{Mode: simnet.ModeTimed, RoundDuration: 10 * time.Millisecond})
	runTimed(t, net)
	alice := fundedIdentity(t, net, 1_000_000)
	bob := fundedIdentity(t, net, 0)

	engine := executor.New(executor.Config{Ledger: c})
	committed, err := engine.Execute(ctx, payment(t, c, alice, bob, 5000), 50)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if committed.Round == 0 {
		t.Fatalf("expected a confirmed round, got %+v", committed)
	}
	acct, err := c.AccountInfo(ctx, bob.Address())
	if err != nil {
		t.Fatalf("account info: %v", err)
	}
	if acct.Balance != 5000 {
		t.Fatalf("bob balance %d, want 5000", acct.Balance)
	}
}

func TestClientTimesOutWhileHeld(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, net := serve(t, simnet.Config{Mode: simnet.ModeTimed, RoundDuration: 5 * time.Millisecond})
	runTimed(t, net)
	alice := fundedIdentity(t, net, 1_000_000)
	bob := fundedIdentity(t, net, 0)
	net.Hold()

	engine := executor.New(executor.Config{Ledger: c})
	_, err := engine.Execute(ctx, payment(t, c, alice, bob, 5000), 3)
	var timeout *executor.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if !errors.Is(err, ledger.ErrNotConfirmed) {
		t.Fatalf("timeout should unwrap to ErrNotConfirmed: %v", err)
	}

	net.Release()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := c.GroupStatus(ctx, timeout.GroupID)
		if err != nil {
			t.Fatalf("group status: %v", err)
		}
		if st.State == ledger.GroupConfirmed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("group never confirmed after release: %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
