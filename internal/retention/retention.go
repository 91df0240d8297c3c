// Package retention purges old orders in bulk.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/machikart/internal/access"
	"github.com/example/machikart/internal/docstore"
	"github.com/example/machikart/internal/events"
	"github.com/example/machikart/internal/metrics"
)

// ErrUnconfirmed is returned when a purge lacks a matching confirmation.
var ErrUnconfirmed = errors.New("purge not confirmed")

// Cutoff selects the orders a purge removes: every order created at or before
// a point in time, or all of them.
type Cutoff struct {
	all bool
	at  time.Time
}

// All selects every order.
func All() Cutoff { return Cutoff{all: true} }

// Before selects orders created at or before t.
func Before(t time.Time) Cutoff { return Cutoff{at: docstore.Timestamp(t)} }

// OlderThan selects orders created at least d before now.
func OlderThan(now time.Time, d time.Duration) Cutoff { return Before(now.Add(-d)) }

// Preset resolves an operator preset: "7d", "30d" or "all".
func Preset(name string, now time.Time) (Cutoff, error) {
	switch name {
	case "7d":
		return OlderThan(now, 7*24*time.Hour), nil
	case "30d":
		return OlderThan(now, 30*24*time.Hour), nil
	case "all":
		return All(), nil
	}
	return Cutoff{}, fmt.Errorf("unknown purge preset %q", name)
}

// IsAll reports whether the cutoff selects every order.
func (c Cutoff) IsAll() bool { return c.all }

// Time returns the cutoff instant; zero for All.
func (c Cutoff) Time() time.Time { return c.at }

func (c Cutoff) String() string {
	if c.all {
		return "all"
	}
	return c.at.Format(time.RFC3339)
}

func (c Cutoff) equal(o Cutoff) bool {
	return c.all == o.all && c.at.Equal(o.at)
}

func (c Cutoff) filter() docstore.Filter {
	if c.all {
		return docstore.Filter{}
	}
	at := c.at
	return docstore.Filter{CreatedAtOrBefore: &at}
}

// Confirmation is the operator's explicit consent to one purge.
type Confirmation struct {
	cutoff Cutoff
	ok     bool
}

// ConfirmPurge confirms a purge with exactly this cutoff.
func ConfirmPurge(c Cutoff) Confirmation {
	return Confirmation{cutoff: c, ok: true}
}

// Result reports what a purge did.
type Result struct {
	Matched int `json:"matched"`
	Deleted int `json:"deleted"`
	Batches int `json:"batches"`
}

// BatchError means one batch was rejected. That batch and every later one was
// not applied; Result counts what earlier batches removed.
type BatchError struct {
	Batch  int
	Result Result
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("purge batch %d failed after deleting %d of %d orders: %v",
		e.Batch, e.Result.Deleted, e.Result.Matched, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Sweeper runs purges on behalf of an operator.
type Sweeper struct {
	store     docstore.Store
	grant     access.Grant
	batchSize int
	events    events.Publisher
	log       *zap.Logger
}

// NewSweeper fails with access.ErrUnauthorized unless grant is authorized.
// batchSize is capped at docstore.MaxBatchSize.
func NewSweeper(store docstore.Store, grant access.Grant, batchSize int, pub events.Publisher, log *zap.Logger) (*Sweeper, error) {
	if !grant.Authorized() {
		return nil, access.ErrUnauthorized
	}
	if batchSize <= 0 || batchSize > docstore.MaxBatchSize {
		batchSize = docstore.MaxBatchSize
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Sweeper{store: store, grant: grant, batchSize: batchSize, events: pub, log: log}, nil
}

// Purge deletes every order selected by cutoff. Each batch is atomic; a batch
// failure stops the sweep and is returned as *BatchError. An empty match set
// is not an error.
func (s *Sweeper) Purge(ctx context.Context, cutoff Cutoff, confirm Confirmation) (Result, error) {
	if !confirm.ok || !confirm.cutoff.equal(cutoff) {
		return Result{}, ErrUnconfirmed
	}

	matched, err := s.store.Query(ctx, cutoff.filter())
	if err != nil {
		s.log.Error("purge lookup failed", zap.Stringer("cutoff", cutoff), zap.Error(err))
		return Result{}, fmt.Errorf("purge: %w", err)
	}
	res := Result{Matched: len(matched)}
	if len(matched) == 0 {
		s.log.Info("purge matched nothing", zap.Stringer("cutoff", cutoff))
		return res, nil
	}

	ids := make([]string, len(matched))
	for i, o := range matched {
		ids[i] = o.ID
	}

	for start := 0; start < len(ids); start += s.batchSize {
		end := min(start+s.batchSize, len(ids))
		n, err := s.store.DeleteBatch(ctx, ids[start:end])
		if err != nil {
			metrics.PurgeBatch("failed")
			metrics.OrdersPurged(res.Deleted)
			berr := &BatchError{Batch: res.Batches + 1, Result: res, Err: err}
			s.log.Error("purge batch failed",
				zap.Stringer("cutoff", cutoff),
				zap.Int("batch", berr.Batch),
				zap.Int("deleted", res.Deleted),
				zap.Int("matched", res.Matched),
				zap.Error(err),
			)
			return res, berr
		}
		metrics.PurgeBatch("ok")
		res.Batches++
		res.Deleted += n
	}

	metrics.OrdersPurged(res.Deleted)
	s.log.Warn("orders purged",
		zap.Stringer("cutoff", cutoff),
		zap.Int("deleted", res.Deleted),
		zap.Int("batches", res.Batches),
		zap.String("operator", s.grant.Operator),
	)
	events.PublishDetached(ctx, s.events, events.Event{Type: events.OrdersPurged, Count: res.Deleted}, s.log)
	return res, nil
}
