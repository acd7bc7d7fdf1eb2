package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cristianoliveira/tablesource/internal/logging"
	"github.com/cristianoliveira/tablesource/internal/metrics"
	"github.com/cristianoliveira/tablesource/internal/notifier"
	"github.com/cristianoliveira/tablesource/internal/query"
	"github.com/cristianoliveira/tablesource/internal/row"
)

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Server is a data source backed by a remote endpoint. Filtering, sorting and
// paging are encoded as request parameters; the endpoint does the work.
type Server struct {
	cfg      ServerConfig
	client   HTTPDoer
	logger   logging.Logger
	metrics  *metrics.Metrics
	notifier *notifier.Notifier[Event]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    *query.State
	rows     []row.Row
	total    int
	fetchSeq uint64
	eventSeq uint64
	// pending is the action of a setter whose fetch was superseded before it
	// could broadcast; the next applied fetch broadcasts it instead.
	pending Action
	closed  bool
}

// NewServer validates cfg and creates a server source. No request is sent
// until Elements is called or a setter asks to emit.
func NewServer(cfg ServerConfig, opts ...Option) (*Server, error) {
	resolved, err := cfg.Resolve()
	if err != nil {
		return nil, fmt.Errorf("server source: %w", err)
	}
	s := applySettings(opts)
	ctx, cancel := context.WithCancel(s.baseCtx)
	return &Server{
		cfg:      resolved,
		client:   s.client,
		logger:   s.logger.With("component", "server source", "endpoint", resolved.Endpoint),
		metrics:  s.metrics,
		notifier: notifier.NewWithBuffer[Event](s.buffer),
		ctx:      ctx,
		cancel:   cancel,
		state:    query.NewState(),
		rows:     []row.Row{},
	}, nil
}

// Config returns the resolved configuration.
func (s *Server) Config() ServerConfig {
	return s.cfg
}

func (s *Server) update(action Action, emit bool, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(); err != nil {
		return err
	}
	if emit && !s.closed {
		// the sequence number is taken before returning so that a pull
		// issued after this setter supersedes its fetch
		seq, snap := s.reserveLocked()
		s.pending = action
		s.startFetch(seq, snap, action)
	}
	return nil
}

// SetFilter sets the filter for f.Field and moves back to the first page.
func (s *Server) SetFilter(f query.Filter, emit bool) error {
	return s.update(ActionFilter, emit, func() error {
		if err := s.state.UpsertFilter(f); err != nil {
			return err
		}
		s.state.ResetPage()
		return nil
	})
}

// AddFilter is SetFilter: there is at most one filter per field.
func (s *Server) AddFilter(f query.Filter, emit bool) error {
	return s.SetFilter(f, emit)
}

// RemoveFilter drops the filter for field.
func (s *Server) RemoveFilter(field string, emit bool) {
	_ = s.update(ActionFilter, emit, func() error {
		if s.state.RemoveFilter(field) {
			s.state.ResetPage()
		}
		return nil
	})
}

// ClearFilters drops every filter.
func (s *Server) ClearFilters(emit bool) {
	_ = s.update(ActionFilter, emit, func() error {
		s.state.ClearFilters()
		s.state.ResetPage()
		return nil
	})
}

// Filter returns the current filters and mode.
func (s *Server) Filter() query.FilterConf {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.FilterConf()
}

// SetSort replaces the sort description.
func (s *Server) SetSort(sorts []query.Sort, emit bool) error {
	return s.update(ActionSort, emit, func() error {
		return s.state.SetSorts(sorts)
	})
}

// Sort returns the current sort description.
func (s *Server) Sort() []query.Sort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Sorts()
}

// SetPaging sets the page window.
func (s *Server) SetPaging(page, perPage int, emit bool) error {
	return s.update(ActionPaging, emit, func() error {
		return s.state.SetPaging(page, perPage)
	})
}

// SetPage moves to another page. Paging must already be set.
func (s *Server) SetPage(page int, emit bool) error {
	return s.update(ActionPage, emit, func() error {
		return s.state.SetPage(page)
	})
}

// Paging returns the page window and whether one is set.
func (s *Server) Paging() (query.Paging, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Paging()
}

// Elements fetches the current page. When the query state cannot be
// expressed remotely no request is sent and it returns nil, nil.
//
// An explicit pull broadcasts nothing of its own, but when it supersedes the
// fetch of an emitting setter it broadcasts that setter's action.
func (s *Server) Elements(ctx context.Context) ([]row.Row, error) {
	return s.pull(ctx, ActionLoad, false)
}

// Refresh fetches the current page and broadcasts it.
func (s *Server) Refresh(ctx context.Context) ([]row.Row, error) {
	return s.pull(ctx, ActionRefresh, true)
}

func (s *Server) pull(ctx context.Context, action Action, broadcast bool) ([]row.Row, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	seq, snap := s.reserveLocked()
	s.mu.Unlock()
	return s.fetch(ctx, seq, snap, action, broadcast)
}

// All returns the rows of the last applied fetch.
func (s *Server) All(ctx context.Context) ([]row.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return row.Clone(s.rows), nil
}

// Count returns the total reported by the last applied fetch.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// OnChanged subscribes to change events.
func (s *Server) OnChanged() *notifier.Subscription[Event] {
	return s.notifier.Subscribe()
}

// Unsubscribe removes a subscription returned by OnChanged.
func (s *Server) Unsubscribe(sub *notifier.Subscription[Event]) {
	s.notifier.Unsubscribe(sub)
}

// Close cancels in-flight background fetches, waits for them and closes
// every subscription.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.notifier.Close()
	return nil
}

// reserveLocked issues the next fetch sequence number together with the
// state it will request.
func (s *Server) reserveLocked() (uint64, query.Snapshot) {
	s.fetchSeq++
	return s.fetchSeq, s.state.Snapshot()
}

// startFetch runs a broadcasting fetch in the background. Callers hold s.mu.
func (s *Server) startFetch(seq uint64, snap query.Snapshot, action Action) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
		defer cancel()

		if _, err := s.fetch(ctx, seq, snap, action, true); err != nil && !errors.Is(err, ErrSuperseded) {
			s.logger.Warn("background fetch failed", "action", string(action), "error", err)
		}
	}()
}

// fetch requests snap. Its result is applied only if seq is still the latest
// issued sequence number.
func (s *Server) fetch(ctx context.Context, seq uint64, snap query.Snapshot, action Action, broadcast bool) ([]row.Row, error) {
	if !Valid(snap) {
		s.logger.Debug("query state not supported by the endpoint, skipping request",
			"filters", len(snap.ActiveFilters()), "sorts", len(snap.Sorts))
		s.metrics.Rejected()

		s.mu.Lock()
		if seq == s.fetchSeq {
			s.emitLocked(action, broadcast, snap.Paging)
		}
		s.mu.Unlock()
		return nil, nil
	}

	start := time.Now()
	rows, total, err := s.do(ctx, snap)
	if err != nil {
		s.metrics.ObserveFetch(metrics.ResultError, time.Since(start))
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.fetchSeq {
		s.metrics.ObserveFetch(metrics.ResultSuperseded, time.Since(start))
		s.logger.Debug("discarding superseded response", "seq", seq)
		return nil, ErrSuperseded
	}
	s.rows = rows
	s.total = total
	s.metrics.ObserveFetch(metrics.ResultOK, time.Since(start))
	s.emitLocked(action, broadcast, snap.Paging)
	return row.Clone(rows), nil
}

// emitLocked broadcasts the stored rows for action, or for a pending setter
// action when this fetch does not broadcast itself. Broadcasting under s.mu
// keeps events in Seq order; Broadcast never blocks.
func (s *Server) emitLocked(action Action, broadcast bool, paging *query.Paging) {
	if !broadcast {
		action = s.pending
	}
	s.pending = ""
	if action == "" {
		return
	}
	s.notifier.Broadcast(s.eventLocked(action, paging))
}

func (s *Server) eventLocked(action Action, paging *query.Paging) Event {
	s.eventSeq++
	return Event{Action: action, Elements: row.Clone(s.rows), Paging: paging, Seq: s.eventSeq}
}

func (s *Server) do(ctx context.Context, snap query.Snapshot) ([]row.Row, int, error) {
	req, err := s.newRequest(ctx, BuildParams(s.cfg, snap))
	if err != nil {
		return nil, 0, fmt.Errorf("server source: build request: %w", err)
	}
	requestID := req.Header.Get(RequestIDHeader)
	logger := s.logger.With("request_id", requestID)
	logger.Debug("fetching", "method", req.Method, "url", req.URL.String())

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Error("request failed", "error", err)
		return nil, 0, fmt.Errorf("server source: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		logger.Error("unexpected response status", "status", resp.StatusCode)
		return nil, 0, fmt.Errorf("server source: %w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		logger.Error("failed to decode response", "error", err)
		return nil, 0, fmt.Errorf("server source: decode response: %w", err)
	}

	rows := ExtractData(body, s.cfg.DataKey)
	total := ExtractTotal(resp.Header, body, s.cfg.TotalKey, s.cfg.TotalPath)
	logger.Debug("fetched", "rows", len(rows), "total", total)
	return rows, total, nil
}

func (s *Server) newRequest(ctx context.Context, params url.Values) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)
	switch s.cfg.Method {
	case http.MethodPost:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		var u *url.URL
		u, err = url.Parse(s.cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		for k, vs := range params {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	}
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())
	return req, nil
}
