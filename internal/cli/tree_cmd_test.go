package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderramin/treeline/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestFlattenTree_DepthFirstWithLevels(t *testing.T) {
	items := []*domain.WorkItem{
		{ID: "a", Title: "A", OrderKey: "G"},
		{ID: "b", Title: "B", OrderKey: "V"},
		{ID: "a1", Title: "A1", ParentID: strPtr("a"), OrderKey: "G"},
		{ID: "a2", Title: "A2", ParentID: strPtr("a"), OrderKey: "V"},
		{ID: "a2x", Title: "A2X", ParentID: strPtr("a2"), OrderKey: "V"},
	}

	rows := flattenTree(items, false)
	require.Len(t, rows, 5)

	titles := make([]string, len(rows))
	levels := make([]int, len(rows))
	for i, r := range rows {
		titles[i] = r.Title
		levels[i] = r.Level
	}
	assert.Equal(t, []string{"A", "A1", "A2", "A2X", "B"}, titles)
	assert.Equal(t, []int{0, 1, 1, 2, 0}, levels)

	// Last-sibling flags drive the connector glyphs.
	assert.False(t, rows[0].IsLast) // A has sibling B after it
	assert.False(t, rows[1].IsLast) // A1 is followed by A2
	assert.True(t, rows[2].IsLast)  // A2 closes A's children
	assert.True(t, rows[3].IsLast)
	assert.True(t, rows[4].IsLast)
}

func TestFlattenTree_ShowKeys(t *testing.T) {
	items := []*domain.WorkItem{
		{ID: "a", Title: "A", OrderKey: "G", Version: 2},
	}

	rows := flattenTree(items, true)
	require.Len(t, rows, 1)
	assert.Equal(t, "G", rows[0].Detail)
	assert.Equal(t, int64(2), rows[0].Version)

	rows = flattenTree(items, false)
	assert.Empty(t, rows[0].Detail)
}
