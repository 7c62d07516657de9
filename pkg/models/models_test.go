package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlannerStatus(t *testing.T) {
	p := &Planner{Activated: 1700000000}
	assert.True(t, p.IsActive())
	assert.False(t, p.IsBanned())

	p.Activated = -1
	assert.False(t, p.IsActive())
	assert.True(t, p.IsBanned())
}

func TestPlannerCanEdit(t *testing.T) {
	assert.True(t, (&Planner{}).CanEdit())
	assert.True(t, (&Planner{Permissions: PermView | PermEdit}).CanEdit())
	assert.False(t, (&Planner{Permissions: PermView}).CanEdit())
}

func TestParametersWireNames(t *testing.T) {
	data, err := json.Marshal(DefaultParameters())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"pt", "gt", "gr", "pr", "f", "hb", "hm", "area", "model",
		"users", "usage", "peak_hours", "qos_block", "qos_drop", "channels",
		"frequency_reuse", "num_cells", "location"} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, "7", raw["num_cells"])
}

func TestWithNumCellsCopies(t *testing.T) {
	p := DefaultParameters()
	q := p.WithNumCells("3")
	assert.Equal(t, "7", p.NumCells)
	assert.Equal(t, "3", q.NumCells)
	assert.Equal(t, p.Location, q.Location)
}
