// Package checkpoint journals the confirmed steps of exchange runs so an
// interrupted run can resume after its last confirmed state.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

var ErrRunIDRequired = errors.New("checkpoint: run id is required")

// Checkpoint is the latest confirmed state of a run plus the identifiers
// later steps need.
type Checkpoint struct {
	RunID       string
	State       string
	EnforcerApp uint64
	MarketApp   uint64
	AssetID     uint64
	// Pending is set while a step's group is submitted but unconfirmed.
	Pending   Pending
	UpdatedAt time.Time
}

// Pending is a step whose group went out without a confirmation in sight.
// State is the state the group leads to.
type Pending struct {
	State   string
	GroupID string
}

func (p Pending) IsZero() bool { return p.State == "" && p.GroupID == "" }

type Transition struct {
	State     string
	Round     uint64
	GroupID   string
	CreatedAt time.Time
}

// Journal stores checkpoints. Save records the transition and replaces the
// run's checkpoint atomically, clearing any pending step. SavePending
// replaces the checkpoint without recording a transition.
type Journal interface {
	Load(ctx context.Context, runID string) (Checkpoint, bool, error)
	Save(ctx context.Context, cp Checkpoint, tr Transition) error
	SavePending(ctx context.Context, cp Checkpoint) error
	History(ctx context.Context, runID string) ([]Transition, error)
	Close() error
}
