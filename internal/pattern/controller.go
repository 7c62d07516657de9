// Package pattern owns the current frequency plan. It turns raw reuse-factor
// input into a tiled plane and serializes every change through one writer.
package pattern

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gravitas-games/cellplan/internal/cluster"
	"github.com/gravitas-games/cellplan/internal/plane"
	"github.com/gravitas-games/cellplan/pkg/models"
)

// Outcome says what a submission did to the plan.
type Outcome string

const (
	Applied  Outcome = "applied"
	Reset    Outcome = "reset"
	Rejected Outcome = "rejected"
)

// Snapshot is one immutable state of the plan. Cells holds only the colored
// cells when Tiled, and the whole uncolored plane otherwise.
type Snapshot struct {
	Version    uint64            `json:"version"`
	Parameters models.Parameters `json:"parameters"`
	N          int               `json:"n"`
	Tiled      bool              `json:"tiled"`
	Cells      []plane.Cell      `json:"cells"`
	Stats      cluster.Stats     `json:"stats"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Cache stores tilings between runs. Implementations must be safe for use
// from the writer goroutine.
type Cache interface {
	LoadTiling(ctx context.Context, key string, n int) (cluster.Result, bool, error)
	SaveTiling(ctx context.Context, key string, res cluster.Result) error
}

// Recorder receives metrics. *metrics.Collector satisfies it.
type Recorder interface {
	ObserveSubmission(outcome string)
	ObserveTiling(strategy string, elapsed time.Duration, rounds int)
	ObserveCacheLookup(result string)
	SetPlan(n, colored int)
}

// Option configures a Controller.
type Option func(*Controller)

// WithCache sets the tiling cache.
func WithCache(c Cache) Option { return func(ctl *Controller) { ctl.cache = c } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option { return func(ctl *Controller) { ctl.recorder = r } }

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option { return func(ctl *Controller) { ctl.log = l } }

type request struct {
	ctx    context.Context
	params models.Parameters
	reply  chan reply
}

type reply struct {
	snap    Snapshot
	outcome Outcome
	err     error
}

// Controller holds the current Snapshot. Submissions are applied one at a
// time by the goroutine running Run; Snapshot may be called from anywhere.
type Controller struct {
	tiler    *cluster.Tiler
	cache    Cache
	recorder Recorder
	log      logrus.FieldLogger

	requests chan request

	mu          sync.RWMutex
	snap        Snapshot
	subscribers map[int]chan Snapshot
	nextSub     int
}

// NewController creates a controller whose plan starts reset, with the
// given parameters on record.
func NewController(tiler *cluster.Tiler, initial models.Parameters, opts ...Option) *Controller {
	c := &Controller{
		tiler:       tiler,
		log:         logrus.StandardLogger(),
		requests:    make(chan request),
		subscribers: make(map[int]chan Snapshot),
	}
	for _, o := range opts {
		o(c)
	}
	c.snap = Snapshot{
		Parameters: initial,
		Cells:      tiler.Blank(),
		UpdatedAt:  time.Now(),
	}
	return c
}

// Run applies submissions until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.requests:
			snap, outcome, err := c.apply(req.ctx, req.params)
			req.reply <- reply{snap: snap, outcome: outcome, err: err}
		}
	}
}

// Submit queues params for the writer and waits for the result. The
// returned Snapshot is the plan after the submission; on rejection it is the
// unchanged plan and err wraps cluster.ErrInvalidClusterSize.
func (c *Controller) Submit(ctx context.Context, params models.Parameters) (Snapshot, Outcome, error) {
	req := request{ctx: ctx, params: params, reply: make(chan reply, 1)}
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return Snapshot{}, "", ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.snap, r.outcome, r.err
	case <-ctx.Done():
		return Snapshot{}, "", ctx.Err()
	}
}

// SubmitClusterSize submits the current parameters with only the raw N
// replaced.
func (c *Controller) SubmitClusterSize(ctx context.Context, raw string) (Snapshot, Outcome, error) {
	return c.Submit(ctx, c.Snapshot().Parameters.WithNumCells(raw))
}

// Snapshot returns the current plan.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Subscribe returns a channel that receives every new plan, and a function
// that cancels the subscription. Slow subscribers miss intermediate plans
// but always hold the latest.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(ch)
		}
	}
}

// apply runs on the writer goroutine only.
func (c *Controller) apply(ctx context.Context, params models.Parameters) (Snapshot, Outcome, error) {
	n, numeric := ParseClusterSize(params.NumCells)
	logger := c.log.WithFields(logrus.Fields{"input": params.NumCells})

	if !numeric || n < 1 {
		snap := c.replace(Snapshot{
			Parameters: params,
			Cells:      c.tiler.Blank(),
		})
		c.observe(Reset, snap)
		logger.Info("Plane reset")
		return snap, Reset, nil
	}

	if !cluster.IsValidClusterSize(n) {
		c.observe(Rejected, Snapshot{})
		logger.WithField("n", n).Warn("Rejected cluster size")
		return c.Snapshot(), Rejected, fmt.Errorf("%w: %d", cluster.ErrInvalidClusterSize, n)
	}

	res, err := c.tile(ctx, n)
	if err != nil {
		// Unreachable for a validated n; kept so the plan is never half set.
		return c.Snapshot(), Rejected, err
	}
	snap := c.replace(Snapshot{
		Parameters: params,
		N:          n,
		Tiled:      true,
		Cells:      res.Cells,
		Stats:      res.Stats,
	})
	c.observe(Applied, snap)
	logger.WithFields(logrus.Fields{
		"n":         n,
		"colored":   res.Stats.Colored,
		"unreached": res.Stats.Unreached,
		"rounds":    res.Stats.Rounds,
	}).Info("Plane tiled")
	return snap, Applied, nil
}

func (c *Controller) tile(ctx context.Context, n int) (cluster.Result, error) {
	key := c.tiler.Key()
	if c.cache != nil {
		res, ok, err := c.cache.LoadTiling(ctx, key, n)
		switch {
		case err != nil:
			c.lookup("error")
			c.log.WithError(err).Warn("Tiling cache lookup failed")
		case ok:
			c.lookup("hit")
			return res, nil
		default:
			c.lookup("miss")
		}
	}

	start := time.Now()
	res, err := c.tiler.Tile(n)
	if err != nil {
		return cluster.Result{}, err
	}
	if c.recorder != nil {
		c.recorder.ObserveTiling(string(c.tiler.Options().Strategy), time.Since(start), res.Stats.Rounds)
	}

	if c.cache != nil {
		if err := c.cache.SaveTiling(ctx, key, res); err != nil {
			c.log.WithError(err).Warn("Failed to cache tiling")
		}
	}
	return res, nil
}

// replace swaps in next as the current plan and notifies subscribers.
func (c *Controller) replace(next Snapshot) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	next.Version = c.snap.Version + 1
	next.UpdatedAt = time.Now()
	c.snap = next

	for _, ch := range c.subscribers {
		// Drop a stale pending plan so the latest always fits.
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
	return next
}

func (c *Controller) observe(outcome Outcome, snap Snapshot) {
	if c.recorder == nil {
		return
	}
	c.recorder.ObserveSubmission(string(outcome))
	if outcome != Rejected {
		colored := 0
		if snap.Tiled {
			colored = len(snap.Cells)
		}
		c.recorder.SetPlan(snap.N, colored)
	}
}

func (c *Controller) lookup(result string) {
	if c.recorder != nil {
		c.recorder.ObserveCacheLookup(result)
	}
}

// IsRejection reports whether err is a rejected cluster size.
func IsRejection(err error) bool {
	return errors.Is(err, cluster.ErrInvalidClusterSize)
}
