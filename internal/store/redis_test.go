package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/cellplan/internal/cluster"
	"github.com/gravitas-games/cellplan/internal/hexgrid"
	"github.com/gravitas-games/cellplan/internal/plane"
)

func TestKeys(t *testing.T) {
	s := NewRedis(nil, Options{BlacklistPrefix: "blacklist:", TilingPrefix: "cellplan:tiling:"})
	assert.Equal(t, "blacklist:42", s.BlacklistKey("42"))
	assert.Equal(t, "cellplan:tiling:frontier/forward/7", s.TilingKey("frontier/forward", 7))
}

func TestTilingCodec(t *testing.T) {
	tiler, err := cluster.New(cluster.DefaultOptions())
	require.NoError(t, err)
	res, err := tiler.Tile(4)
	require.NoError(t, err)

	data, err := EncodeTiling(res)
	require.NoError(t, err)
	got, err := DecodeTiling(data)
	require.NoError(t, err)
	assert.Equal(t, res, got)

	_, err = DecodeTiling([]byte(`{"n":0}`))
	assert.Error(t, err)
	_, err = DecodeTiling([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeTilingRejectsBadColors(t *testing.T) {
	cell := func(c plane.Color) plane.Cell {
		return plane.Cell{Coord: hexgrid.Axial{Q: 1, R: 2}, Color: c}
	}
	cases := []struct {
		name string
		res  cluster.Result
	}{
		{"uncolored", cluster.Result{N: 7, Cells: []plane.Cell{cell(plane.Uncolored)}}},
		{"negative", cluster.Result{N: 7, Cells: []plane.Cell{cell(-1)}}},
		{"beyond palette", cluster.Result{N: 12, Cells: []plane.Cell{cell(8)}}},
		{"beyond cluster", cluster.Result{N: 3, Cells: []plane.Cell{cell(1), cell(4)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.res)
			require.NoError(t, err)
			_, err = DecodeTiling(data)
			assert.Error(t, err)
		})
	}

	data, err := json.Marshal(cluster.Result{N: 12, Cells: []plane.Cell{cell(1), cell(7)}})
	require.NoError(t, err)
	_, err = DecodeTiling(data)
	assert.NoError(t, err)
}

func newMiniRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, Options{
		BlacklistPrefix: "blacklist:",
		TilingPrefix:    "cellplan:tiling:",
		TilingTTL:       ttl,
	}), mr
}

func TestTilingCacheRoundTrip(t *testing.T) {
	s, mr := newMiniRedis(t, time.Hour)
	ctx := context.Background()

	tiler, err := cluster.New(cluster.DefaultOptions())
	require.NoError(t, err)
	res, err := tiler.Tile(7)
	require.NoError(t, err)

	_, ok, err := s.LoadTiling(ctx, tiler.Key(), 7)
	require.NoError(t, err, "a missing key is a miss, not an error")
	assert.False(t, ok)

	require.NoError(t, s.SaveTiling(ctx, tiler.Key(), res))
	assert.True(t, mr.Exists(s.TilingKey(tiler.Key(), 7)))
	assert.Equal(t, time.Hour, mr.TTL(s.TilingKey(tiler.Key(), 7)))

	got, ok, err := s.LoadTiling(ctx, tiler.Key(), 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res, got)

	_, ok, err = s.LoadTiling(ctx, tiler.Key(), 3)
	require.NoError(t, err)
	assert.False(t, ok, "other sizes are separate entries")
}

func TestTilingCacheExpires(t *testing.T) {
	s, mr := newMiniRedis(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.SaveTiling(ctx, "k", cluster.Result{N: 1, Cells: []plane.Cell{{Color: 1}}}))
	_, ok, err := s.LoadTiling(ctx, "k", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(time.Minute + time.Second)

	_, ok, err = s.LoadTiling(ctx, "k", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCorruptTilingIsAnError(t *testing.T) {
	s, mr := newMiniRedis(t, time.Minute)
	require.NoError(t, mr.Set(s.TilingKey("k", 7), `{"n":7,"cells":[{"coord":{"q":0,"r":0},"color":0}]}`))

	_, ok, err := s.LoadTiling(context.Background(), "k", 7)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestIsBlacklisted(t *testing.T) {
	s, mr := newMiniRedis(t, 0)
	ctx := context.Background()

	revoked, err := s.IsBlacklisted(ctx, "42")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, mr.Set("blacklist:42", "1"))
	revoked, err = s.IsBlacklisted(ctx, "42")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = s.IsBlacklisted(ctx, "43")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestDisabledCacheSkipsRedis(t *testing.T) {
	// The client points nowhere; a disabled cache must not touch it.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 10 * time.Millisecond})
	defer client.Close()
	s := NewRedis(client, Options{TilingPrefix: "t:"})

	_, ok, err := s.LoadTiling(context.Background(), "k", 7)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, s.SaveTiling(context.Background(), "k", cluster.Result{N: 7}))
}

func TestUnreachableRedisReportsErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	s := NewRedis(client, Options{BlacklistPrefix: "b:", TilingPrefix: "t:", TilingTTL: time.Minute})

	ctx := context.Background()
	_, err := s.IsBlacklisted(ctx, "1")
	assert.Error(t, err)
	_, ok, err := s.LoadTiling(ctx, "k", 7)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, s.SaveTiling(ctx, "k", cluster.Result{N: 7}))

	_, err = Dial(ctx, "127.0.0.1:1", "", 0, Options{})
	assert.Error(t, err)
}
