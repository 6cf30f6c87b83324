// Package executor submits frozen groups, waits for their confirmation and
// decodes what the ledger returned.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"royalty-exchange/go-backend/internal/abi"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/platform/metrics"
	"royalty-exchange/go-backend/internal/txn"
)

// DefaultRoundBudget is how many rounds Execute waits when the caller passes
// zero.
const DefaultRoundBudget = 4

type Config struct {
	Ledger      ledger.Client
	Diagnostics DiagnosticsPolicy
	Metrics     *metrics.Executor
	Logger      *slog.Logger
}

// Engine is stateless between calls and safe for concurrent use.
type Engine struct {
	ledger  ledger.Client
	diag    DiagnosticsPolicy
	metrics *metrics.Executor
	log     *slog.Logger
}

func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewExecutor(nil)
	}
	return &Engine{
		ledger:  cfg.Ledger,
		diag:    cfg.Diagnostics,
		metrics: m,
		log:     log.With("component", "executor"),
	}
}

func (e *Engine) Ledger() ledger.Client { return e.ledger }

// Result is the outcome of one operation of a committed group.
type Result struct {
	Index          int
	TxID           txn.TxID
	Type           txn.OpType
	Method         string
	ReturnValue    any
	CreatedAppID   txn.AppID
	CreatedAssetID txn.AssetID
	Logs           [][]byte
}

type Committed struct {
	group   *txn.Frozen
	Round   uint64
	Results []Result
}

func (c *Committed) Group() *txn.Frozen { return c.group }

func (c *Committed) ID() txn.GroupID { return c.group.ID() }

func (c *Committed) MethodResults() []Result {
	var out []Result
	for _, r := range c.Results {
		if r.Method != "" {
			out = append(out, r)
		}
	}
	return out
}

// Execute submits g and waits up to rounds rounds for it to commit. Nothing
// is retried: a RejectedError means no operation of g took effect, and a
// TimeoutError means the outcome is not known yet.
func (e *Engine) Execute(ctx context.Context, g *txn.Frozen, rounds uint64) (*Committed, error) {
	if g == nil {
		return nil, errors.New("executor: nil group")
	}
	if rounds == 0 {
		rounds = DefaultRoundBudget
	}
	if i, unsigned := g.FirstUnsigned(); unsigned {
		return nil, &UnsignedOperationError{Index: i}
	}
	sub, err := ledger.NewSubmission(g)
	if err != nil {
		return nil, fmt.Errorf("executor: sign group %s: %w", g.ID(), err)
	}
	log := e.log.With("group_id", g.ID().String(), "size", g.Len())

	if e.diag == DiagnosticsAlways {
		e.preflight(ctx, sub, log)
	}

	e.metrics.Submitted.Inc()
	id, err := e.ledger.SubmitGroup(ctx, sub)
	if err != nil {
		return nil, e.failure(ctx, g, sub, err, log)
	}
	log.Info("group submitted")

	receipt, err := e.ledger.WaitForConfirmation(ctx, id, rounds)
	if err != nil {
		if errors.Is(err, ledger.ErrNotConfirmed) {
			e.metrics.TimedOut.Inc()
			log.Warn("group confirmation timed out", "rounds", rounds)
			return nil, &TimeoutError{GroupID: g.ID(), Rounds: rounds}
		}
		return nil, e.failure(ctx, g, sub, err, log)
	}
	if fv := g.Entry(0).Op.FirstValid; receipt.ConfirmedRound >= fv {
		e.metrics.ConfirmationRounds.Observe(float64(receipt.ConfirmedRound - fv))
	}
	log.Info("group confirmed", "round", receipt.ConfirmedRound)
	return decode(g, receipt)
}

func (e *Engine) failure(ctx context.Context, g *txn.Frozen, sub ledger.Submission, err error, log *slog.Logger) error {
	var rej *ledger.RejectError
	if !errors.As(err, &rej) {
		return fmt.Errorf("executor: group %s: %w", g.ID(), err)
	}
	e.metrics.Rejected.Inc()
	out := &RejectedError{GroupID: g.ID(), Index: rej.Index, Reason: rej.Reason, Err: rej}
	if e.diag != DiagnosticsOff {
		trace, serr := e.ledger.Simulate(ctx, sub)
		if serr != nil {
			log.Warn("group simulation failed", "error", serr)
		} else {
			out.Trace = trace
		}
	}
	log.Warn("group rejected", "index", rej.Index, "reason", rej.Reason)
	return out
}

func (e *Engine) preflight(ctx context.Context, sub ledger.Submission, log *slog.Logger) {
	trace, err := e.ledger.Simulate(ctx, sub)
	if err != nil {
		log.Warn("group simulation failed", "error", err)
		return
	}
	if op, failed := trace.Failed(); failed {
		log.Warn("group simulation predicts rejection", "index", op.Index, "reason", op.Reason)
		return
	}
	for _, op := range trace.Ops {
		log.Debug("group simulated", "index", op.Index, "type", op.Type, "steps", len(op.Steps))
	}
}

// decode pairs receipt results with the group's operations. A group whose
// return values cannot be decoded is still committed; the Committed value is
// returned alongside the error.
func decode(g *txn.Frozen, receipt *ledger.Receipt) (*Committed, error) {
	if len(receipt.Results) != g.Len() {
		return nil, fmt.Errorf("executor: receipt has %d results for %d operations", len(receipt.Results), g.Len())
	}
	c := &Committed{group: g, Round: receipt.ConfirmedRound, Results: make([]Result, g.Len())}
	var decodeErr error
	for i, res := range receipt.Results {
		r := Result{
			Index:          i,
			TxID:           g.TxID(i),
			Type:           g.Entry(i).Op.Type,
			CreatedAppID:   res.CreatedAppID,
			CreatedAssetID: res.CreatedAssetID,
			Logs:           res.Logs,
		}
		if m, ok := g.Method(i); ok {
			r.Method = m.Name
			v, err := abi.DecodeReturn(m, res.Logs)
			if err != nil && decodeErr == nil {
				decodeErr = fmt.Errorf("executor: decode %s result: %w", m.Name, err)
			}
			r.ReturnValue = v
		}
		c.Results[i] = r
	}
	return c, decodeErr
}
