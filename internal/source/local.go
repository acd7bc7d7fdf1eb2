package source

import (
	"context"
	"reflect"
	"sync"

	"golang.org/x/text/collate"

	"github.com/cristianoliveira/tablesource/internal/logging"
	"github.com/cristianoliveira/tablesource/internal/notifier"
	"github.com/cristianoliveira/tablesource/internal/query"
	"github.com/cristianoliveira/tablesource/internal/row"
)

// Local is an in-memory data source. Filtering, sorting and paging run over
// the held collection on every read.
type Local struct {
	mu       sync.Mutex
	data     []row.Row
	state    *query.State
	collator *collate.Collator
	logger   logging.Logger
	notifier *notifier.Notifier[Event]
	seq      uint64
}

// NewLocal creates a local source holding a copy of rows.
func NewLocal(rows []row.Row, opts ...Option) *Local {
	s := applySettings(opts)
	data := row.Clone(rows)
	if data == nil {
		data = []row.Row{}
	}
	return &Local{
		data:     data,
		state:    query.NewState(),
		collator: s.collator,
		logger:   s.logger.With("component", "local source"),
		notifier: notifier.NewWithBuffer[Event](s.buffer),
	}
}

// update runs fn against the locked source. When fn succeeds and emit is set,
// the event is computed and broadcast under the lock, so subscribers see
// events in Seq order. Broadcast never blocks.
func (l *Local) update(action Action, emit bool, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := fn(); err != nil {
		return err
	}
	if !emit {
		return nil
	}
	l.seq++
	snap := l.state.Snapshot()
	page, _ := Apply(l.data, snap, l.collator)
	ev := Event{Action: action, Elements: page, Paging: snap.Paging, Seq: l.seq}

	l.logger.Debug("change", "action", string(action), "rows", len(page), "seq", ev.Seq)
	l.notifier.Broadcast(ev)
	return nil
}

// SetFilter sets the filter for f.Field, replacing an existing one, and moves
// back to the first page.
func (l *Local) SetFilter(f query.Filter, emit bool) error {
	return l.update(ActionFilter, emit, func() error {
		if err := l.state.UpsertFilter(f); err != nil {
			return err
		}
		l.state.ResetPage()
		return nil
	})
}

// AddFilter is SetFilter: there is at most one filter per field.
func (l *Local) AddFilter(f query.Filter, emit bool) error {
	return l.SetFilter(f, emit)
}

// SetFilters replaces every filter and the mode combining them.
func (l *Local) SetFilters(filters []query.Filter, mode query.FilterMode, emit bool) error {
	return l.update(ActionFilter, emit, func() error {
		if err := l.state.ReplaceFilters(filters, mode); err != nil {
			return err
		}
		l.state.ResetPage()
		return nil
	})
}

// RemoveFilter drops the filter for field.
func (l *Local) RemoveFilter(field string, emit bool) {
	_ = l.update(ActionFilter, emit, func() error {
		if l.state.RemoveFilter(field) {
			l.state.ResetPage()
		}
		return nil
	})
}

// ClearFilters drops every filter.
func (l *Local) ClearFilters(emit bool) {
	_ = l.update(ActionFilter, emit, func() error {
		l.state.ClearFilters()
		l.state.ResetPage()
		return nil
	})
}

// Filter returns the current filters and mode.
func (l *Local) Filter() query.FilterConf {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.FilterConf()
}

// SetSort replaces the sort description. An empty slice clears it.
func (l *Local) SetSort(sorts []query.Sort, emit bool) error {
	return l.update(ActionSort, emit, func() error {
		return l.state.SetSorts(sorts)
	})
}

// Sort returns the current sort description.
func (l *Local) Sort() []query.Sort {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Sorts()
}

// SetPaging sets the page window.
func (l *Local) SetPaging(page, perPage int, emit bool) error {
	return l.update(ActionPaging, emit, func() error {
		return l.state.SetPaging(page, perPage)
	})
}

// SetPage moves to another page. Paging must already be set.
func (l *Local) SetPage(page int, emit bool) error {
	return l.update(ActionPage, emit, func() error {
		return l.state.SetPage(page)
	})
}

// ClearPaging removes the page window so Elements returns every matching row.
func (l *Local) ClearPaging(emit bool) {
	_ = l.update(ActionPaging, emit, func() error {
		l.state.ClearPaging()
		return nil
	})
}

// Paging returns the page window and whether one is set.
func (l *Local) Paging() (query.Paging, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Paging()
}

// Elements returns the current page of the filtered, sorted collection.
func (l *Local) Elements(ctx context.Context) ([]row.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	page, _ := Apply(l.data, l.state.Snapshot(), l.collator)
	return page, nil
}

// FilteredAndSorted returns every row matching the filters in sort order,
// ignoring paging.
func (l *Local) FilteredAndSorted() []row.Row {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := l.state.Snapshot()
	snap.Paging = nil
	rows, _ := Apply(l.data, snap, l.collator)
	return rows
}

// Query evaluates snap against the collection without touching the source's
// own state. It returns the page and the unpaged match count.
func (l *Local) Query(snap query.Snapshot) ([]row.Row, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Apply(l.data, snap, l.collator)
}

// All returns the whole collection, unfiltered.
func (l *Local) All(ctx context.Context) ([]row.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return row.Clone(l.data), nil
}

// Count returns the number of rows matching the filters, before paging.
func (l *Local) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(FilterRows(l.data, l.state.Filters(), l.state.Mode()))
}

// Load replaces the collection. The query state is kept.
func (l *Local) Load(rows []row.Row) {
	_ = l.update(ActionLoad, true, func() error {
		l.data = row.Clone(rows)
		if l.data == nil {
			l.data = []row.Row{}
		}
		return nil
	})
}

// Add appends r to the collection.
func (l *Local) Add(r row.Row) {
	_ = l.update(ActionAdd, true, func() error {
		l.data = append(l.data, r)
		return nil
	})
}

// Append appends rows to the collection.
func (l *Local) Append(rows ...row.Row) {
	_ = l.update(ActionAppend, true, func() error {
		l.data = append(l.data, rows...)
		return nil
	})
}

// Prepend inserts rows before the collection.
func (l *Local) Prepend(rows ...row.Row) {
	_ = l.update(ActionPrepend, true, func() error {
		next := make([]row.Row, 0, len(rows)+len(l.data))
		next = append(next, rows...)
		l.data = append(next, l.data...)
		return nil
	})
}

// Remove drops every occurrence of r, matched by identity.
func (l *Local) Remove(r row.Row) error {
	return l.update(ActionRemove, true, func() error {
		kept := make([]row.Row, 0, len(l.data))
		for _, candidate := range l.data {
			if !sameRow(candidate, r) {
				kept = append(kept, candidate)
			}
		}
		if len(kept) == len(l.data) {
			return ErrRowNotFound
		}
		l.data = kept
		return nil
	})
}

// Update merges values into r, which must be part of the collection.
func (l *Local) Update(r row.Row, values map[string]any) error {
	return l.update(ActionUpdate, true, func() error {
		for _, candidate := range l.data {
			if sameRow(candidate, r) {
				for k, v := range values {
					candidate[k] = v
				}
				return nil
			}
		}
		return ErrRowNotFound
	})
}

// Empty removes every row.
func (l *Local) Empty() {
	_ = l.update(ActionEmpty, true, func() error {
		l.data = []row.Row{}
		return nil
	})
}

// Refresh broadcasts the current page without changing anything.
func (l *Local) Refresh() {
	_ = l.update(ActionRefresh, true, func() error { return nil })
}

// Reset clears filters, sort and paging.
func (l *Local) Reset(emit bool) {
	_ = l.update(ActionPage, emit, func() error {
		l.state.Reset()
		return nil
	})
}

// OnChanged subscribes to change events.
func (l *Local) OnChanged() *notifier.Subscription[Event] {
	return l.notifier.Subscribe()
}

// Unsubscribe removes a subscription returned by OnChanged.
func (l *Local) Unsubscribe(sub *notifier.Subscription[Event]) {
	l.notifier.Unsubscribe(sub)
}

// Close closes every subscription.
func (l *Local) Close() error {
	l.notifier.Close()
	return nil
}

func sameRow(a, b row.Row) bool {
	if a == nil || b == nil {
		return false
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
