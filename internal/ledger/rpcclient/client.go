// Package rpcclient talks to a ledgerd JSON-RPC endpoint.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/txn"
	"royalty-exchange/go-backend/pkg/models"
)

const (
	tokenHeader      = "X-Ledger-RPC-Token"
	defaultPollRPS   = 4
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 8 << 20
)

type Config struct {
	// Endpoint is the ledgerd /rpc URL. A bare host:port gets http:// and
	// /rpc added.
	Endpoint string
	Token    string
	// PollRPS paces confirmation polling.
	PollRPS    float64
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements ledger.Ledger over JSON-RPC.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	poll     *rate.Limiter
	nextID   atomic.Uint64
}

var _ ledger.Ledger = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	endpoint, err := normalizeEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	rps := cfg.PollRPS
	if rps <= 0 {
		rps = defaultPollRPS
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		endpoint: endpoint,
		token:    strings.TrimSpace(cfg.Token),
		http:     hc,
		poll:     rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

func normalizeEndpoint(raw string) (string, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "", errors.New("rpcclient: endpoint is required")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	if !strings.HasSuffix(endpoint, "/rpc") {
		endpoint = strings.TrimRight(endpoint, "/") + "/rpc"
	}
	return endpoint, nil
}

// Error is a JSON-RPC error returned by ledgerd.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// asLedgerError turns ledgerd error codes back into ledger errors.
func asLedgerError(e *Error) error {
	switch e.Code {
	case models.CodeRejected:
		var data models.RejectData
		if err := json.Unmarshal(e.Data, &data); err != nil {
			return &ledger.RejectError{Index: -1, Reason: e.Message}
		}
		return &ledger.RejectError{Index: data.Index, Reason: data.Reason}
	case models.CodeUnknownGroup:
		return fmt.Errorf("%w: %s", ledger.ErrUnknownTxn, e.Message)
	case models.CodeUnknownApp:
		return fmt.Errorf("%w: %s", ledger.ErrUnknownApp, e.Message)
	case models.CodeUnknownAsset:
		return fmt.Errorf("%w: %s", ledger.ErrUnknownAsset, e.Message)
	default:
		return e
	}
}

func (c *Client) call(ctx context.Context, method string, params, out any) (retErr error) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      c.nextID.Add(1),
		"method":  method,
	}
	if params != nil {
		payload["params"] = params
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rpcclient: encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rpcclient: %s: %w", method, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && retErr == nil {
			retErr = closeErr
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpcclient: %s: http status %d", method, resp.StatusCode)
	}
	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	if err := dec.Decode(&decoded); err != nil {
		return fmt.Errorf("rpcclient: decode %s: %w", method, err)
	}
	if decoded.Error != nil {
		return asLedgerError(decoded.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("rpcclient: decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) SuggestedParams(ctx context.Context) (txn.Params, error) {
	var p models.SuggestedParams
	if err := c.call(ctx, models.MethodSuggestedParams, nil, &p); err != nil {
		return txn.Params{}, err
	}
	return txn.Params{Fee: p.Fee, FirstValid: p.FirstValid, LastValid: p.LastValid, GenesisID: p.GenesisID}, nil
}

func (c *Client) SubmitGroup(ctx context.Context, sub ledger.Submission) (txn.GroupID, error) {
	blob, err := models.EncodeBlob(sub)
	if err != nil {
		return txn.GroupID{}, fmt.Errorf("rpcclient: encode submission: %w", err)
	}
	var res models.SubmitGroupResult
	if err := c.call(ctx, models.MethodSubmitGroup, models.SubmissionParams{Submission: blob}, &res); err != nil {
		return txn.GroupID{}, err
	}
	return txn.ParseGroupID(res.GroupID)
}

func (c *Client) GroupStatus(ctx context.Context, id txn.GroupID) (ledger.GroupStatus, error) {
	var res models.GroupStatusResult
	if err := c.call(ctx, models.MethodGroupStatus, models.GroupIDParams{GroupID: id.String()}, &res); err != nil {
		return ledger.GroupStatus{}, err
	}
	st := ledger.GroupStatus{State: ledger.GroupState(res.State), LastRound: res.LastRound}
	switch st.State {
	case ledger.GroupConfirmed:
		var rec ledger.Receipt
		if err := res.Receipt.Decode(&rec); err != nil {
			return ledger.GroupStatus{}, fmt.Errorf("rpcclient: decode receipt: %w", err)
		}
		st.Receipt = &rec
	case ledger.GroupRejected:
		st.Reject = &ledger.RejectError{Index: res.RejectIndex, Reason: res.RejectReason}
	}
	return st, nil
}

// WaitForConfirmation polls the group status at the configured pace until
// the group settles or rounds rounds pass after the first poll.
func (c *Client) WaitForConfirmation(ctx context.Context, id txn.GroupID, rounds uint64) (*ledger.Receipt, error) {
	var start uint64
	for first := true; ; first = false {
		if err := c.poll.Wait(ctx); err != nil {
			return nil, err
		}
		st, err := c.GroupStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		switch st.State {
		case ledger.GroupConfirmed:
			return st.Receipt, nil
		case ledger.GroupRejected:
			return nil, st.Reject
		}
		if first {
			start = st.LastRound
		}
		if st.LastRound >= start+rounds {
			return nil, fmt.Errorf("%w: %s after %d rounds", ledger.ErrNotConfirmed, id, rounds)
		}
	}
}

func (c *Client) Simulate(ctx context.Context, sub ledger.Submission) (*ledger.Trace, error) {
	blob, err := models.EncodeBlob(sub)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: encode submission: %w", err)
	}
	var res models.SimulateResult
	if err := c.call(ctx, models.MethodSimulate, models.SubmissionParams{Submission: blob}, &res); err != nil {
		return nil, err
	}
	var trace ledger.Trace
	if err := res.Trace.Decode(&trace); err != nil {
		return nil, fmt.Errorf("rpcclient: decode trace: %w", err)
	}
	return &trace, nil
}

func (c *Client) Status(ctx context.Context) (ledger.Status, error) {
	var st ledger.Status
	err := c.call(ctx, models.MethodStatus, nil, &st)
	return st, err
}

func (c *Client) AccountInfo(ctx context.Context, addr identity.Address) (*ledger.Account, error) {
	var acct ledger.Account
	if err := c.call(ctx, models.MethodAccountInfo, models.AddressParams{Address: addr.String()}, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *Client) AssetInfo(ctx context.Context, id txn.AssetID) (*ledger.Asset, error) {
	var a ledger.Asset
	if err := c.call(ctx, models.MethodAssetInfo, models.AssetParams{AssetID: uint64(id)}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) ApplicationState(ctx context.Context, id txn.AppID) (*ledger.Application, error) {
	var app ledger.Application
	if err := c.call(ctx, models.MethodApplicationState, models.AppParams{AppID: uint64(id)}, &app); err != nil {
		return nil, err
	}
	return &app, nil
}
