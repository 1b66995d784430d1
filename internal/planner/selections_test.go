package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/glr76/PlannyWeb/internal/backend/memory"
	"github.com/glr76/PlannyWeb/internal/store"
)

func TestYearsFiltersAndSorts(t *testing.T) {
	files := []store.FileMeta{
		{Name: "selections_2026.txt"},
		{Name: "SELECTIONS_2024.TXT"},
		{Name: "selections_2026.txt"},
		{Name: "selections_26.txt"},
		{Name: "notes.txt"},
		{Name: "selections_2025.txt.bak"},
	}
	require.Equal(t, []int{2024, 2026}, Years(files))
}

func TestSuggestedPair(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, []int{2025, 2026}, SuggestedPair([]int{2023, 2025, 2026, 2027}, now))
	require.Equal(t, []int{2023, 2024}, SuggestedPair([]int{2022, 2023, 2024}, now))
	require.Equal(t, []int{2024}, SuggestedPair([]int{2024}, now))
	require.Equal(t, []int{}, SuggestedPair(nil, now))
}

func TestParseYears(t *testing.T) {
	require.Equal(t, []int{2025, 2026}, ParseYears("2025,2026"))
	require.Equal(t, []int{2025, 2026}, ParseYears(" 2025  2025, 2026 ,2027"))
	require.Equal(t, []int{2024}, ParseYears("abc,2024"))
	require.Empty(t, ParseYears(""))
	require.Empty(t, ParseYears("x,y"))
}

func newSelections(t *testing.T) (*Selections, *store.Store) {
	t.Helper()
	s, err := store.New(memory.New(memory.Options{}), store.Options{})
	require.NoError(t, err)
	now := func() time.Time { return time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC) }
	return New(s, now), s
}

func TestSelectionsEndToEnd(t *testing.T) {
	sel, s := newSelections(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "selections_2025.txt", "A,B\n")
	require.NoError(t, err)
	_, err = s.Put(ctx, "selections_2026.txt", "\nC,D\n")
	require.NoError(t, err)
	_, err = s.Put(ctx, "other.txt", "x")
	require.NoError(t, err)

	years, err := sel.Years(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{2025, 2026}, years.Years)
	require.Equal(t, []int{2025, 2026}, years.SuggestedPair)

	text, err := sel.Get(ctx, 2025)
	require.NoError(t, err)
	require.True(t, text.Found)
	require.Equal(t, "A,B\n", text.Content)

	missing, err := sel.Get(ctx, 2099)
	require.NoError(t, err)
	require.False(t, missing.Found)

	combined, err := sel.Combined(ctx, []int{2026, 2025})
	require.NoError(t, err)
	require.Equal(t, "C,D\n\nA,B", combined)

	combined, err = sel.Combined(ctx, []int{2099, 2025})
	require.NoError(t, err)
	require.Equal(t, "A,B", combined)
}
