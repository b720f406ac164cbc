package game_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrawlgame/scrawl/internal/game"
)

func roomWith(ids ...string) *game.Room {
	r := game.NewRoom()
	for _, id := range ids {
		r.AddPlayer(id, "name-"+id)
	}
	return r
}

func TestRemovePlayerKeepsCursorOnSameDrawer(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		desc          string
		order         []string
		cursor        int
		remove        string
		wantOrder     []string
		wantCursor    int
		wantWasDrawer bool
	}{
		{
			desc:  "removing an earlier slot shifts the cursor down",
			order: []string{"a", "b", "c"}, cursor: 2, remove: "a",
			wantOrder: []string{"b", "c"}, wantCursor: 1,
		},
		{
			desc:  "removing a later slot leaves the cursor alone",
			order: []string{"a", "b", "c"}, cursor: 0, remove: "c",
			wantOrder: []string{"a", "b"}, wantCursor: 0,
		},
		{
			desc:  "removing the drawer at the end wraps to zero",
			order: []string{"a", "b", "c"}, cursor: 2, remove: "c",
			wantOrder: []string{"a", "b"}, wantCursor: 0, wantWasDrawer: true,
		},
		{
			desc:  "removing the drawer mid-list keeps the index on the successor",
			order: []string{"a", "b", "c"}, cursor: 1, remove: "b",
			wantOrder: []string{"a", "c"}, wantCursor: 1, wantWasDrawer: true,
		},
		{
			desc:  "removing the last player empties the rotation",
			order: []string{"a"}, cursor: 0, remove: "a",
			wantOrder: []string{}, wantCursor: 0, wantWasDrawer: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			r := roomWith(tc.order...)
			r.CurrentDrawerIdx = tc.cursor

			wasDrawer := r.RemovePlayer(tc.remove)

			assert.Equal(t, tc.wantWasDrawer, wasDrawer)
			assert.Equal(t, tc.wantOrder, r.DrawerOrder)
			assert.Equal(t, tc.wantCursor, r.CurrentDrawerIdx)
			assert.NotContains(t, r.Players, tc.remove)
			assertRoomInvariants(t, r)
		})
	}
}

func TestMigrateSessionPreservesSlotAndScore(t *testing.T) {
	t.Parallel()
	r := roomWith("a", "b")
	r.Players["a"].Score = 30

	require.True(t, r.MigrateSession("a", "a2"))

	assert.Equal(t, []string{"a2", "b"}, r.DrawerOrder)
	assert.Equal(t, 30, r.Players["a2"].Score)
	assert.NotContains(t, r.Players, "a")
	assertRoomInvariants(t, r)

	assert.False(t, r.MigrateSession("ghost", "g2"))
}

func TestAdvanceDrawerWraps(t *testing.T) {
	t.Parallel()
	r := roomWith("a", "b", "c")
	r.CurrentDrawerIdx = 2

	r.AdvanceDrawer()
	assert.Equal(t, 0, r.CurrentDrawerIdx)

	empty := game.NewRoom()
	empty.AdvanceDrawer()
	assert.Equal(t, 0, empty.CurrentDrawerIdx)
}

func TestListPickerDrawsFromList(t *testing.T) {
	t.Parallel()
	picker := game.NewListPicker([]string{"alpha", "beta"}, 1)
	for i := 0; i < 10; i++ {
		assert.Contains(t, []string{"alpha", "beta"}, picker.Pick())
	}
}
