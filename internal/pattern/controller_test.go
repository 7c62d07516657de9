package pattern

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/cellplan/internal/cluster"
	"github.com/gravitas-games/cellplan/internal/plane"
	"github.com/gravitas-games/cellplan/pkg/models"
)

func TestParseClusterSize(t *testing.T) {
	cases := []struct {
		raw     string
		n       int
		numeric bool
	}{
		{"7", 7, true},
		{"  12", 12, true},
		{"7 cells", 7, true},
		{"1/7", 1, true},
		{"-3", -3, true},
		{"+4", 4, true},
		{"0", 0, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-", 0, false},
		{" x7", 0, false},
		{"99999999999999999999999", 0, false},
	}
	for _, tc := range cases {
		n, numeric := ParseClusterSize(tc.raw)
		assert.Equal(t, tc.numeric, numeric, "%q", tc.raw)
		assert.Equal(t, tc.n, n, "%q", tc.raw)
	}
}

type fakeRecorder struct {
	mu          sync.Mutex
	submissions map[string]int
	lookups     map[string]int
	tilings     int
	n, colored  int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{submissions: map[string]int{}, lookups: map[string]int{}}
}

func (r *fakeRecorder) ObserveSubmission(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions[outcome]++
}

func (r *fakeRecorder) ObserveTiling(string, time.Duration, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tilings++
}

func (r *fakeRecorder) ObserveCacheLookup(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[result]++
}

func (r *fakeRecorder) SetPlan(n, colored int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n, r.colored = n, colored
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]cluster.Result
	fail    bool
}

func (m *memCache) LoadTiling(_ context.Context, key string, n int) (cluster.Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return cluster.Result{}, false, errors.New("cache down")
	}
	res, ok := m.entries[key+string(rune('0'+n))]
	return res, ok, nil
}

func (m *memCache) SaveTiling(_ context.Context, key string, res cluster.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("cache down")
	}
	m.entries[key+string(rune('0'+res.N))] = res
	return nil
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func startController(t *testing.T, opts ...Option) *Controller {
	t.Helper()
	tiler, err := cluster.New(cluster.DefaultOptions())
	require.NoError(t, err)
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	c := NewController(tiler, models.DefaultParameters(), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

func TestControllerStartsReset(t *testing.T) {
	c := startController(t)
	snap := c.Snapshot()
	assert.False(t, snap.Tiled)
	assert.Zero(t, snap.N)
	require.Len(t, snap.Cells, 441)
	for _, cell := range snap.Cells {
		assert.Equal(t, plane.Uncolored, cell.Color)
	}
	assert.Equal(t, "7", snap.Parameters.NumCells)
}

func TestSubmitValidSizeTiles(t *testing.T) {
	c := startController(t)
	snap, outcome, err := c.SubmitClusterSize(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
	assert.True(t, snap.Tiled)
	assert.Equal(t, 7, snap.N)
	assert.Len(t, snap.Cells, 441)
	assert.Equal(t, 7, snap.Stats.Groups)
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, snap, c.Snapshot())
	for _, cell := range snap.Cells {
		require.NotEqual(t, plane.Uncolored, cell.Color)
	}
}

func TestSubmitInvalidSizeKeepsPlan(t *testing.T) {
	c := startController(t)
	before, _, err := c.SubmitClusterSize(context.Background(), "4")
	require.NoError(t, err)

	snap, outcome, err := c.SubmitClusterSize(context.Background(), "2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, cluster.ErrInvalidClusterSize))
	assert.True(t, IsRejection(err))
	assert.Equal(t, Rejected, outcome)
	assert.Equal(t, before, snap)
	assert.Equal(t, before, c.Snapshot())
	assert.Equal(t, "4", c.Snapshot().Parameters.NumCells, "rejected parameters are not recorded")
}

func TestInvalidSizeFromFreshPlanLeavesItUncolored(t *testing.T) {
	c := startController(t)
	snap, _, err := c.SubmitClusterSize(context.Background(), "2")
	require.Error(t, err)
	assert.False(t, snap.Tiled)
	assert.Len(t, snap.Cells, 441)
	for _, cell := range snap.Cells {
		assert.Equal(t, plane.Uncolored, cell.Color)
	}
}

func TestHugeSizeIsRejectedWithoutStallingWriter(t *testing.T) {
	c := startController(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, raw := range []string{"2000000", "9223372036854775807"} {
		_, outcome, err := c.SubmitClusterSize(ctx, raw)
		require.Error(t, err, "%q", raw)
		assert.True(t, IsRejection(err), "%q", raw)
		assert.Equal(t, Rejected, outcome)
	}

	snap, outcome, err := c.SubmitClusterSize(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
	assert.Equal(t, 7, snap.N)
}

func TestEmptyInputResets(t *testing.T) {
	c := startController(t)
	initial := c.Snapshot()

	_, _, err := c.SubmitClusterSize(context.Background(), "3")
	require.NoError(t, err)

	for _, raw := range []string{"", "abc", "0", "-5"} {
		snap, outcome, err := c.SubmitClusterSize(context.Background(), raw)
		require.NoError(t, err, "%q", raw)
		assert.Equal(t, Reset, outcome)
		assert.False(t, snap.Tiled)
		assert.Zero(t, snap.N)
		assert.Equal(t, initial.Cells, snap.Cells, "%q must restore the initial plane", raw)
	}
}

func TestSubmitRecordsParameters(t *testing.T) {
	c := startController(t)
	params := models.DefaultParameters()
	params.NumCells = "3"
	params.Channels = 12
	params.Location = models.Location{Lat: 48.85, Lng: 2.35}

	snap, _, err := c.Submit(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, params, snap.Parameters)
	assert.Equal(t, 3, snap.N)
}

func TestSubmissionsAreSerialized(t *testing.T) {
	c := startController(t)
	sizes := []string{"1", "3", "4", "7", "9", "12", "13"}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		for _, raw := range sizes {
			wg.Add(1)
			go func(raw string) {
				defer wg.Done()
				snap, _, err := c.SubmitClusterSize(context.Background(), raw)
				assert.NoError(t, err)
				// N and cells always come from the same run.
				assert.Equal(t, min(snap.N, 7), snap.Stats.Groups)
			}(raw)
		}
	}
	wg.Wait()
	assert.Equal(t, uint64(4*len(sizes)), c.Snapshot().Version)
}

func TestSubscribersSeeLatestPlan(t *testing.T) {
	c := startController(t)
	updates, cancel := c.Subscribe()
	defer cancel()

	_, _, err := c.SubmitClusterSize(context.Background(), "3")
	require.NoError(t, err)
	_, _, err = c.SubmitClusterSize(context.Background(), "4")
	require.NoError(t, err)

	select {
	case snap := <-updates:
		assert.Equal(t, 4, snap.N)
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}

	// Rejections do not notify.
	_, _, err = c.SubmitClusterSize(context.Background(), "5")
	require.Error(t, err)
	select {
	case snap := <-updates:
		t.Fatalf("unexpected update %d", snap.Version)
	default:
	}

	cancel()
	_, open := <-updates
	assert.False(t, open)
	cancel()
}

func TestSubmitHonorsContext(t *testing.T) {
	tiler, err := cluster.New(cluster.DefaultOptions())
	require.NoError(t, err)
	c := NewController(tiler, models.DefaultParameters(), WithLogger(quietLogger()))

	// Nothing runs the writer, so the request can never be accepted.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = c.SubmitClusterSize(ctx, "7")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCacheIsConsulted(t *testing.T) {
	cache := &memCache{entries: map[string]cluster.Result{}}
	rec := newFakeRecorder()
	c := startController(t, WithCache(cache), WithRecorder(rec))

	first, _, err := c.SubmitClusterSize(context.Background(), "7")
	require.NoError(t, err)
	second, _, err := c.SubmitClusterSize(context.Background(), "7")
	require.NoError(t, err)

	assert.Equal(t, first.Cells, second.Cells)
	assert.Equal(t, 1, rec.tilings)
	assert.Equal(t, 1, rec.lookups["miss"])
	assert.Equal(t, 1, rec.lookups["hit"])
	assert.Equal(t, 2, rec.submissions["applied"])
	assert.Equal(t, 7, rec.n)
	assert.Equal(t, 441, rec.colored)
}

func TestCacheFailureFallsBackToTiling(t *testing.T) {
	cache := &memCache{entries: map[string]cluster.Result{}, fail: true}
	rec := newFakeRecorder()
	c := startController(t, WithCache(cache), WithRecorder(rec))

	snap, outcome, err := c.SubmitClusterSize(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
	assert.Len(t, snap.Cells, 441)
	assert.Equal(t, 1, rec.lookups["error"])
	assert.Equal(t, 1, rec.tilings)
}

func TestRecorderSeesRejectionsAndResets(t *testing.T) {
	rec := newFakeRecorder()
	c := startController(t, WithRecorder(rec))

	_, _, _ = c.SubmitClusterSize(context.Background(), "7")
	_, _, _ = c.SubmitClusterSize(context.Background(), "8")
	_, _, _ = c.SubmitClusterSize(context.Background(), "")

	assert.Equal(t, 1, rec.submissions["applied"])
	assert.Equal(t, 1, rec.submissions["rejected"])
	assert.Equal(t, 1, rec.submissions["reset"])
	assert.Zero(t, rec.n)
	assert.Zero(t, rec.colored)
}
