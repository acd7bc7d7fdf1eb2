// Package source implements the table data sources: an in-memory Local
// source and a Server source that delegates filtering, sorting and paging to
// a remote endpoint. Both expose the same DataSource contract and report
// state transitions through a multicast change notifier.
package source

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/text/collate"

	"github.com/cristianoliveira/tablesource/internal/logging"
	"github.com/cristianoliveira/tablesource/internal/metrics"
	"github.com/cristianoliveira/tablesource/internal/notifier"
	"github.com/cristianoliveira/tablesource/internal/query"
	"github.com/cristianoliveira/tablesource/internal/row"
)

var (
	// ErrEndpointRequired indicates a server source without an endpoint.
	ErrEndpointRequired = errors.New("at least an endpoint must be configured for the server data source")
	// ErrInvalidMethod indicates an HTTP method other than GET or POST.
	ErrInvalidMethod = errors.New("method must be GET or POST")
	// ErrSuperseded is returned by a fetch whose result was discarded because
	// a newer fetch was issued while it was in flight.
	ErrSuperseded = errors.New("fetch superseded by a newer request")
	// ErrUnexpectedStatus indicates a non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected response status")
	// ErrRowNotFound indicates a row that is not part of the collection.
	ErrRowNotFound = errors.New("row not found")
	// ErrClosed indicates an operation on a closed source.
	ErrClosed = errors.New("data source closed")
)

// Action tags a change event with the operation that caused it.
type Action string

const (
	ActionFilter  Action = "filter"
	ActionSort    Action = "sort"
	ActionPaging  Action = "paging"
	ActionPage    Action = "page"
	ActionLoad    Action = "load"
	ActionRefresh Action = "refresh"
	ActionAdd     Action = "add"
	ActionPrepend Action = "prepend"
	ActionAppend  Action = "append"
	ActionRemove  Action = "remove"
	ActionUpdate  Action = "update"
	ActionEmpty   Action = "empty"
)

// Event is broadcast on every state transition that asked to emit.
type Event struct {
	Action Action
	// Elements is the current page at emission time.
	Elements []row.Row
	// Paging is a copy of the page window, nil when unset.
	Paging *query.Paging
	// Seq increases with every event of one source. Subscribers receive a
	// source's events in Seq order.
	Seq uint64
}

// DataSource is the contract the table view relies on.
type DataSource interface {
	SetFilter(f query.Filter, emit bool) error
	AddFilter(f query.Filter, emit bool) error
	RemoveFilter(field string, emit bool)
	ClearFilters(emit bool)
	Filter() query.FilterConf

	SetSort(sorts []query.Sort, emit bool) error
	Sort() []query.Sort

	SetPaging(page, perPage int, emit bool) error
	SetPage(page int, emit bool) error
	Paging() (query.Paging, bool)

	Elements(ctx context.Context) ([]row.Row, error)
	All(ctx context.Context) ([]row.Row, error)
	Count() int

	OnChanged() *notifier.Subscription[Event]
	Unsubscribe(sub *notifier.Subscription[Event])
	Close() error
}

var (
	_ DataSource = (*Local)(nil)
	_ DataSource = (*Server)(nil)
)

// HTTPDoer sends HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type settings struct {
	logger   logging.Logger
	collator *collate.Collator
	buffer   int
	client   HTTPDoer
	metrics  *metrics.Metrics
	baseCtx  context.Context
}

// Option configures a data source. Options that do not apply to a variant
// are ignored by it.
type Option func(*settings)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLocale sets the locale used to compare strings when sorting locally.
func WithLocale(tag string) Option {
	return func(s *settings) {
		s.collator = row.NewCollator(tag)
	}
}

// WithNotifierBuffer sets the per-subscriber event buffer.
func WithNotifierBuffer(n int) Option {
	return func(s *settings) {
		s.buffer = n
	}
}

// WithHTTPClient sets the client used by the server source.
func WithHTTPClient(c HTTPDoer) Option {
	return func(s *settings) {
		if c != nil {
			s.client = c
		}
	}
}

// WithMetrics sets the fetch metrics of the server source.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithBaseContext sets the parent context of background fetches started by
// setters. Cancelling it cancels them.
func WithBaseContext(ctx context.Context) Option {
	return func(s *settings) {
		if ctx != nil {
			s.baseCtx = ctx
		}
	}
}

func applySettings(opts []Option) settings {
	s := settings{
		logger:   logging.Noop(),
		collator: row.NewCollator(""),
		buffer:   notifier.DefaultBuffer,
		client:   http.DefaultClient,
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
