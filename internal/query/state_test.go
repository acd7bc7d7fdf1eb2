package query

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cristianoliveira/tablesource/internal/row"
)

func TestState_UpsertFilter(t *testing.T) {
	s := NewState()

	require.NoError(t, s.UpsertFilter(Filter{Field: "age", Search: "3"}))
	require.NoError(t, s.UpsertFilter(Filter{Field: "name", Search: "al"}))
	require.NoError(t, s.UpsertFilter(Filter{Field: "age", Search: "4"}))

	filters := s.Filters()
	require.Len(t, filters, 2, "repeated field must replace, not append")
	assert.Equal(t, "age", filters[0].Field)
	assert.Equal(t, "4", filters[0].Search)
	assert.Equal(t, "name", filters[1].Field)

	assert.ErrorIs(t, s.UpsertFilter(Filter{Search: "x"}), ErrFieldRequired)
	assert.Len(t, s.Filters(), 2)
}

func TestState_FiltersAreCopies(t *testing.T) {
	s := NewState()
	require.NoError(t, s.UpsertFilter(Filter{Field: "age", Search: "3"}))

	filters := s.Filters()
	filters[0].Search = "mutated"
	assert.Equal(t, "3", s.Filters()[0].Search)
}

func TestState_RemoveAndClearFilters(t *testing.T) {
	s := NewState()
	require.NoError(t, s.UpsertFilter(Filter{Field: "a", Search: "1"}))
	require.NoError(t, s.UpsertFilter(Filter{Field: "b", Search: "2"}))
	kept := s.Filters()

	assert.True(t, s.RemoveFilter("a"))
	assert.False(t, s.RemoveFilter("a"))
	require.Len(t, s.Filters(), 1)
	assert.Equal(t, "b", s.Filters()[0].Field)
	assert.Equal(t, "a", kept[0].Field, "earlier snapshots are not affected")

	require.NoError(t, s.ReplaceFilters(nil, ModeOr))
	assert.Equal(t, ModeOr, s.Mode())
	s.ClearFilters()
	assert.Empty(t, s.Filters())
	assert.Equal(t, ModeAnd, s.Mode())
}

func TestState_ReplaceFilters(t *testing.T) {
	s := NewState()
	require.NoError(t, s.UpsertFilter(Filter{Field: "old", Search: "x"}))

	err := s.ReplaceFilters([]Filter{
		{Field: "a", Search: "1"},
		{Field: "b", Search: "2"},
		{Field: "a", Search: "3"},
	}, "")
	require.NoError(t, err)

	conf := s.FilterConf()
	assert.Equal(t, ModeAnd, conf.Mode)
	require.Len(t, conf.Filters, 2)
	assert.Equal(t, "3", conf.Filters[0].Search)
	assert.Equal(t, "b", conf.Filters[1].Field)

	t.Run("invalid input leaves state untouched", func(t *testing.T) {
		assert.ErrorIs(t, s.ReplaceFilters([]Filter{{Field: ""}}, ModeAnd), ErrFieldRequired)
		assert.ErrorIs(t, s.ReplaceFilters(nil, "XOR"), ErrInvalidMode)
		assert.Len(t, s.Filters(), 2)
	})
}

func TestState_SetSorts(t *testing.T) {
	s := NewState()

	require.NoError(t, s.SetSorts([]Sort{
		{Field: "age"},
		{Field: "name", Direction: "desc"},
		{Field: "age", Direction: Desc},
	}))
	sorts := s.Sorts()
	require.Len(t, sorts, 2)
	assert.Equal(t, "age", sorts[0].Field)
	assert.Equal(t, Desc, sorts[0].Direction)
	assert.Equal(t, Desc, sorts[1].Direction)

	assert.ErrorIs(t, s.SetSorts([]Sort{{Field: "x", Direction: "UP"}}), ErrInvalidDirection)
	assert.ErrorIs(t, s.SetSorts([]Sort{{Direction: Asc}}), ErrFieldRequired)
	assert.Error(t, s.SetSorts([]Sort{{Field: "x", Type: row.ValueType("decimal")}}))
	assert.Len(t, s.Sorts(), 2, "failed set keeps previous sorts")

	require.NoError(t, s.SetSorts(nil))
	assert.Empty(t, s.Sorts())
}

func TestState_Paging(t *testing.T) {
	s := NewState()

	_, ok := s.Paging()
	assert.False(t, ok)
	assert.Nil(t, s.PagingRef())
	assert.ErrorIs(t, s.SetPage(2), ErrInvalidPaging, "page needs a page size")

	require.NoError(t, s.SetPaging(2, 10))
	p, ok := s.Paging()
	require.True(t, ok)
	assert.Equal(t, Paging{Page: 2, PerPage: 10}, p)

	require.NoError(t, s.SetPage(3))
	p, _ = s.Paging()
	assert.Equal(t, Paging{Page: 3, PerPage: 10}, p)

	s.ResetPage()
	p, _ = s.Paging()
	assert.Equal(t, 1, p.Page)

	for _, bad := range [][2]int{{0, 10}, {1, 0}, {-1, 5}, {1, -5}} {
		assert.ErrorIs(t, s.SetPaging(bad[0], bad[1]), ErrInvalidPaging)
	}
	p, _ = s.Paging()
	assert.Equal(t, Paging{Page: 1, PerPage: 10}, p)

	ref := s.PagingRef()
	ref.Page = 99
	p, _ = s.Paging()
	assert.Equal(t, 1, p.Page)

	s.ClearPaging()
	_, ok = s.Paging()
	assert.False(t, ok)
}

func TestPaging_Bounds(t *testing.T) {
	tests := []struct {
		name       string
		paging     Paging
		n          int
		start, end int
	}{
		{"first page", Paging{1, 2}, 5, 0, 2},
		{"last partial page", Paging{3, 2}, 5, 4, 5},
		{"past the end", Paging{4, 2}, 5, 5, 5},
		{"empty input", Paging{1, 10}, 0, 0, 0},
		{"huge page", Paging{math.MaxInt, 2}, 3, 3, 3},
		{"huge page size", Paging{2, math.MaxInt}, 3, 3, 3},
		{"huge both", Paging{math.MaxInt, math.MaxInt}, 3, 3, 3},
		{"huge page size first page", Paging{1, math.MaxInt}, 3, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := tt.paging.Bounds(tt.n)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestSnapshot_ActiveFilters(t *testing.T) {
	s := NewState()
	require.NoError(t, s.UpsertFilter(Filter{Field: "a", Search: ""}))
	require.NoError(t, s.UpsertFilter(Filter{Field: "b", Search: "x"}))
	require.NoError(t, s.SetPaging(1, 5))

	snap := s.Snapshot()
	active := snap.ActiveFilters()
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].Field)
	require.NotNil(t, snap.Paging)
	assert.Equal(t, 5, snap.Paging.PerPage)

	s.Reset()
	snap = s.Snapshot()
	assert.Empty(t, snap.Filters)
	assert.Empty(t, snap.Sorts)
	assert.Nil(t, snap.Paging)
}

func TestPaging_Pages(t *testing.T) {
	assert.Equal(t, 2, Paging{Page: 1, PerPage: 2}.Pages(3))
	assert.Equal(t, 1, Paging{Page: 1, PerPage: 3}.Pages(3))
	assert.Equal(t, 0, Paging{Page: 1, PerPage: 3}.Pages(0))
	assert.Equal(t, 1, Paging{Page: 1, PerPage: math.MaxInt}.Pages(3))
}
