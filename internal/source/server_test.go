package source

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cristianoliveira/tablesource/internal/metrics"
	"github.com/cristianoliveira/tablesource/internal/query"
)

// recorder is a test endpoint remembering every request it served.
type recorder struct {
	mu       sync.Mutex
	requests []*http.Request
	forms    []url.Values
	status   int
	header   http.Header
	body     string
}

func newRecorder(body string) *recorder {
	return &recorder{status: http.StatusOK, header: http.Header{}, body: body}
}

func (rec *recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	rec.mu.Lock()
	rec.requests = append(rec.requests, r)
	rec.forms = append(rec.forms, r.Form)
	status, header, body := rec.status, rec.header.Clone(), rec.body
	rec.mu.Unlock()

	for k, vs := range header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (rec *recorder) count() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.requests)
}

func (rec *recorder) last() (*http.Request, url.Values) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	n := len(rec.requests)
	return rec.requests[n-1], rec.forms[n-1]
}

func newTestServer(t *testing.T, rec *recorder, cfg ServerConfig, opts ...Option) *Server {
	t.Helper()
	ts := httptest.NewServer(rec)
	t.Cleanup(ts.Close)

	if cfg.Endpoint == "" {
		cfg.Endpoint = ts.URL + "/rows"
	} else {
		cfg.Endpoint = ts.URL + cfg.Endpoint
	}
	s, err := NewServer(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

const agesBody = `[{"id":1,"age":30},{"id":3,"age":40}]`

func TestNewServer_Config(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.ErrorIs(t, err, ErrEndpointRequired)

	_, err = NewServer(ServerConfig{Endpoint: "http://example.test", Method: "PUT"})
	assert.ErrorIs(t, err, ErrInvalidMethod)

	s, err := NewServer(ServerConfig{Endpoint: " http://example.test ", Method: "post"})
	require.NoError(t, err)
	defer s.Close()

	cfg := s.Config()
	assert.Equal(t, "http://example.test", cfg.Endpoint)
	assert.Equal(t, http.MethodPost, cfg.Method)
	assert.Equal(t, "sort", cfg.SortFieldKey)
	assert.Equal(t, "sort_direction", cfg.SortDirKey)
	assert.Equal(t, FieldPlaceholder, cfg.FilterFieldKey)
	assert.Equal(t, "page", cfg.PagerPageKey)
	assert.Equal(t, "per_page", cfg.PagerLimitKey)
	assert.Equal(t, "", cfg.DataKey)
	assert.Equal(t, "x-total-count", cfg.TotalKey)
	assert.Equal(t, "x-total-count", cfg.TotalPath)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 0, s.Count(), "no fetch yet")
}

func TestValid(t *testing.T) {
	age := query.Filter{Field: "age", Search: "30"}
	id := query.Filter{Field: "id", Search: "1"}
	sortAge := query.Sort{Field: "age", Direction: query.Asc}
	sortID := query.Sort{Field: "id", Direction: query.Asc}

	tests := []struct {
		name string
		snap query.Snapshot
		want bool
	}{
		{name: "empty", want: true},
		{name: "one filter", snap: query.Snapshot{Filters: []query.Filter{age}}, want: true},
		{name: "one sort", snap: query.Snapshot{Sorts: []query.Sort{sortID}}, want: true},
		{name: "same field", snap: query.Snapshot{Filters: []query.Filter{age}, Sorts: []query.Sort{sortAge}}, want: true},
		{name: "different fields", snap: query.Snapshot{Filters: []query.Filter{age}, Sorts: []query.Sort{sortID}}, want: false},
		{name: "two filters", snap: query.Snapshot{Filters: []query.Filter{age, id}}, want: false},
		{name: "two sorts", snap: query.Snapshot{Sorts: []query.Sort{sortAge, sortID}}, want: false},
		{
			name: "inactive filter ignored",
			snap: query.Snapshot{Filters: []query.Filter{age, {Field: "id"}}, Sorts: []query.Sort{sortAge}},
			want: true,
		},
		{name: "paging only", snap: query.Snapshot{Paging: &query.Paging{Page: 1, PerPage: 5}}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.snap))
		})
	}
}

func TestBuildParams(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.FilterFieldKey = "filter[#field#]"

	params := BuildParams(cfg, query.Snapshot{
		Filters: []query.Filter{{Field: "name", Search: "ann"}, {Field: "city"}},
		Sorts:   []query.Sort{{Field: "name", Direction: query.Desc}},
		Paging:  &query.Paging{Page: 2, PerPage: 10},
	})

	assert.Equal(t, url.Values{
		"filter[name]":   {"ann"},
		"sort":           {"name"},
		"sort_direction": {"DESC"},
		"page":           {"2"},
		"per_page":       {"10"},
	}, params)
}

func TestServer_RequestParams(t *testing.T) {
	rec := newRecorder(agesBody)
	s := newTestServer(t, rec, ServerConfig{FilterFieldKey: "#field#"})
	ctx := context.Background()

	require.NoError(t, s.SetFilter(query.Filter{Field: "age", Search: "30"}, false))
	require.NoError(t, s.SetSort([]query.Sort{{Field: "age", Direction: query.Asc}}, false))

	rows, err := s.Elements(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(3)}, ids(rows))
	require.Equal(t, 1, rec.count())

	req, _ := rec.last()
	q := req.URL.Query()
	assert.Equal(t, "30", q.Get("age"))
	assert.Equal(t, "age", q.Get("sort"))
	assert.Equal(t, "ASC", q.Get("sort_direction"))
	assert.Empty(t, q.Get("page"), "no paging set")

	require.NoError(t, s.AddFilter(query.Filter{Field: "id", Search: "1"}, false))
	rows, err = s.Elements(ctx)
	require.NoError(t, err)
	assert.Nil(t, rows)
	assert.Equal(t, 1, rec.count(), "no request for an unsupported state")
}

func TestServer_FilterAndSortOnDifferentFields(t *testing.T) {
	rec := newRecorder(agesBody)
	reg := prometheus.NewRegistry()
	s := newTestServer(t, rec, ServerConfig{}, WithMetrics(metrics.New(reg)))

	require.NoError(t, s.SetFilter(query.Filter{Field: "age", Search: "30"}, false))
	require.NoError(t, s.SetSort([]query.Sort{{Field: "id"}}, false))

	rows, err := s.Elements(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rows)
	assert.Equal(t, 0, rec.count())

	expected := `
# HELP tablesource_fetch_rejected_total Fetches not sent because the query state failed the single-field rule.
# TYPE tablesource_fetch_rejected_total counter
tablesource_fetch_rejected_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "tablesource_fetch_rejected_total"))
}

func TestServer_Paging(t *testing.T) {
	rec := newRecorder(`[]`)
	s := newTestServer(t, rec, ServerConfig{PagerPageKey: "p", PagerLimitKey: "limit"})

	require.NoError(t, s.SetPaging(2, 10, false))
	_, err := s.Elements(context.Background())
	require.NoError(t, err)

	req, _ := rec.last()
	assert.Equal(t, "2", req.URL.Query().Get("p"))
	assert.Equal(t, "10", req.URL.Query().Get("limit"))
}

func TestServer_Total(t *testing.T) {
	tests := []struct {
		name   string
		cfg    ServerConfig
		header string
		body   string
		want   int
	}{
		{name: "header", header: "42", body: agesBody, want: 42},
		{
			name: "body path",
			cfg:  ServerConfig{DataKey: "data", TotalKey: "X-Total", TotalPath: "meta.total"},
			body: `{"data":[{"id":1}],"meta":{"total":7}}`,
			want: 7,
		},
		{
			name:   "non-numeric header falls back to body",
			cfg:    ServerConfig{DataKey: "data", TotalPath: "total"},
			header: "lots",
			body:   `{"data":[],"total":"12"}`,
			want:   12,
		},
		{name: "neither", body: agesBody, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecorder(tt.body)
			if tt.header != "" {
				key := tt.cfg.TotalKey
				if key == "" {
					key = "X-Total-Count"
				}
				rec.header.Set(key, tt.header)
			}
			s := newTestServer(t, rec, tt.cfg)

			_, err := s.Elements(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Count())
		})
	}
}

func TestServer_DataExtraction(t *testing.T) {
	tests := []struct {
		name    string
		dataKey string
		body    string
		want    []any
	}{
		{name: "root array", body: agesBody, want: []any{float64(1), float64(3)}},
		{name: "nested", dataKey: "result.items", body: `{"result":{"items":[{"id":5}]}}`, want: []any{float64(5)}},
		{name: "not an array", dataKey: "data", body: `{"data":{"id":1}}`, want: []any{}},
		{name: "missing key", dataKey: "data", body: `{"rows":[]}`, want: []any{}},
		{name: "non-object items skipped", body: `[{"id":1}, 2, "x"]`, want: []any{float64(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, newRecorder(tt.body), ServerConfig{DataKey: tt.dataKey})
			rows, err := s.Elements(context.Background())
			require.NoError(t, err)
			require.NotNil(t, rows)
			assert.Equal(t, tt.want, ids(rows))
		})
	}
}

func TestServer_Errors(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder(agesBody)
	rec.header.Set("X-Total-Count", "2")
	s := newTestServer(t, rec, ServerConfig{})

	_, err := s.Elements(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, s.Count())

	rec.mu.Lock()
	rec.status = http.StatusInternalServerError
	rec.mu.Unlock()
	_, err = s.Elements(ctx)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, 2, s.Count(), "failed fetch keeps the last result")

	rec.mu.Lock()
	rec.status = http.StatusOK
	rec.body = `{not json`
	rec.mu.Unlock()
	_, err = s.Elements(ctx)
	assert.ErrorContains(t, err, "decode response")

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestServer_TransportError(t *testing.T) {
	boom := errors.New("connection refused")
	s, err := NewServer(ServerConfig{Endpoint: "http://example.test"}, WithHTTPClient(doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, boom
	})))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Elements(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Count())
}

func TestServer_Headers(t *testing.T) {
	rec := newRecorder(`[]`)
	s := newTestServer(t, rec, ServerConfig{
		Endpoint: "/rows?tenant=acme",
		Headers:  map[string]string{"Authorization": "Bearer t0k"},
	})
	require.NoError(t, s.SetSort([]query.Sort{{Field: "id"}}, false))

	_, err := s.Elements(context.Background())
	require.NoError(t, err)

	req, _ := rec.last()
	assert.Equal(t, "Bearer t0k", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	_, err = uuid.Parse(req.Header.Get(RequestIDHeader))
	assert.NoError(t, err)
	assert.Equal(t, "acme", req.URL.Query().Get("tenant"))
	assert.Equal(t, "id", req.URL.Query().Get("sort"))
}

func TestServer_Post(t *testing.T) {
	rec := newRecorder(`[]`)
	s := newTestServer(t, rec, ServerConfig{Method: http.MethodPost})
	require.NoError(t, s.SetFilter(query.Filter{Field: "name", Search: "ann"}, false))

	_, err := s.Elements(context.Background())
	require.NoError(t, err)

	req, form := rec.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Empty(t, req.URL.RawQuery)
	assert.Equal(t, "ann", form.Get("name"))
}

func TestServer_SetterEmitsAfterFetch(t *testing.T) {
	rec := newRecorder(agesBody)
	rec.header.Set("X-Total-Count", "2")
	s := newTestServer(t, rec, ServerConfig{})
	sub := s.OnChanged()
	defer s.Unsubscribe(sub)

	require.NoError(t, s.SetFilter(query.Filter{Field: "age", Search: "30"}, true))
	ev := nextEvent(t, sub)
	assert.Equal(t, ActionFilter, ev.Action)
	assert.Equal(t, []any{float64(1), float64(3)}, ids(ev.Elements))
	assert.Equal(t, 2, s.Count())

	require.NoError(t, s.SetPaging(1, 5, true))
	ev = nextEvent(t, sub)
	assert.Equal(t, ActionPaging, ev.Action)
	require.NotNil(t, ev.Paging)
	assert.Equal(t, query.Paging{Page: 1, PerPage: 5}, *ev.Paging)

	_, err := s.Elements(context.Background())
	require.NoError(t, err)
	assertNoEvent(t, sub)

	_, err = s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionRefresh, nextEvent(t, sub).Action)
}

func TestServer_PullRightAfterEmittingSetter(t *testing.T) {
	rec := newRecorder(agesBody)
	rec.header.Set("X-Total-Count", "2")
	s := newTestServer(t, rec, ServerConfig{})
	sub := s.OnChanged()
	defer s.Unsubscribe(sub)
	ctx := context.Background()

	require.NoError(t, s.SetFilter(query.Filter{Field: "age", Search: "30"}, true))
	rows, err := s.Elements(ctx)
	require.NoError(t, err, "a pull issued after the setter is the newest request")
	assert.Equal(t, []any{float64(1), float64(3)}, ids(rows))
	assert.Equal(t, 2, s.Count())

	// the setter's fetch is superseded by the pull; its action is still
	// broadcast exactly once with the pulled rows
	ev := nextEvent(t, sub)
	assert.Equal(t, ActionFilter, ev.Action)
	assert.Equal(t, []any{float64(1), float64(3)}, ids(ev.Elements))
	assertNoEvent(t, sub)
}

func TestServer_PullWhileSetterFetchInFlight(t *testing.T) {
	setterStarted := make(chan struct{})
	releaseSetter := make(chan struct{})
	var calls atomic.Int32

	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			close(setterStarted)
			<-releaseSetter
			return jsonResponse(`[{"id":"setter"}]`, "1"), nil
		}
		return jsonResponse(`[{"id":"pull"}]`, "1"), nil
	})
	s, err := NewServer(ServerConfig{Endpoint: "http://example.test/rows"}, WithHTTPClient(doer))
	require.NoError(t, err)
	defer s.Close()
	sub := s.OnChanged()
	defer s.Unsubscribe(sub)
	ctx := context.Background()

	require.NoError(t, s.SetSort([]query.Sort{{Field: "id"}}, true))
	<-setterStarted

	rows, err := s.Elements(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"pull"}, ids(rows))

	ev := nextEvent(t, sub)
	assert.Equal(t, ActionSort, ev.Action)
	assert.Equal(t, []any{"pull"}, ids(ev.Elements))

	close(releaseSetter)
	assertNoEvent(t, sub)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"pull"}, ids(all), "the late setter response is discarded")
}

func TestServer_BackToBackSettersEmitFinalState(t *testing.T) {
	// each response echoes the query it answered
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		body, err := json.Marshal([]map[string]string{{"id": req.URL.RawQuery}})
		if err != nil {
			return nil, err
		}
		return jsonResponse(string(body), "1"), nil
	})
	s, err := NewServer(ServerConfig{Endpoint: "http://example.test/rows"}, WithHTTPClient(doer))
	require.NoError(t, err)
	defer s.Close()
	sub := s.OnChanged()
	defer s.Unsubscribe(sub)

	require.NoError(t, s.SetFilter(query.Filter{Field: "age", Search: "3"}, true))
	require.NoError(t, s.SetSort([]query.Sort{{Field: "age", Direction: query.Desc}}, true))

	var ev Event
	for ev.Action != ActionSort {
		ev = nextEvent(t, sub)
	}
	require.Len(t, ev.Elements, 1)
	final := ev.Elements[0]["id"].(string)
	assert.Contains(t, final, "age=3")
	assert.Contains(t, final, "sort_direction=DESC")
	assertNoEvent(t, sub)

	all, err := s.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{final}, ids(all))
}

func TestServer_RejectedSetterStillEmits(t *testing.T) {
	rec := newRecorder(agesBody)
	s := newTestServer(t, rec, ServerConfig{})
	sub := s.OnChanged()
	defer s.Unsubscribe(sub)

	require.NoError(t, s.SetFilter(query.Filter{Field: "age", Search: "30"}, false))
	require.NoError(t, s.SetSort([]query.Sort{{Field: "id"}}, true))

	ev := nextEvent(t, sub)
	assert.Equal(t, ActionSort, ev.Action)
	assert.Empty(t, ev.Elements)
	assert.Equal(t, 0, rec.count())
}

func TestServer_SupersededResponseIsDiscarded(t *testing.T) {
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})

	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("page") == "1" {
			close(firstStarted)
			<-releaseFirst
			return jsonResponse(`[{"id":"stale"}]`, "100"), nil
		}
		return jsonResponse(`[{"id":"fresh"}]`, "1"), nil
	})

	reg := prometheus.NewRegistry()
	s, err := NewServer(ServerConfig{Endpoint: "http://example.test/rows"}, WithHTTPClient(doer), WithMetrics(metrics.New(reg)))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SetPaging(1, 10, false))

	var staleErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, staleErr = s.Elements(ctx)
	}()
	<-firstStarted

	require.NoError(t, s.SetPage(2, false))
	rows, err := s.Elements(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"fresh"}, ids(rows))

	close(releaseFirst)
	<-done
	assert.ErrorIs(t, staleErr, ErrSuperseded)

	assert.Equal(t, 1, s.Count())
	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"fresh"}, ids(all))

	expected := `
# HELP tablesource_fetch_total Remote fetches by result.
# TYPE tablesource_fetch_total counter
tablesource_fetch_total{result="ok"} 1
tablesource_fetch_total{result="superseded"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "tablesource_fetch_total"))
}

func TestServer_CloseCancelsBackgroundFetch(t *testing.T) {
	var started atomic.Bool
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		started.Store(true)
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	s, err := NewServer(ServerConfig{Endpoint: "http://example.test"}, WithHTTPClient(doer))
	require.NoError(t, err)
	sub := s.OnChanged()

	require.NoError(t, s.SetSort([]query.Sort{{Field: "id"}}, true))
	require.Eventually(t, started.Load, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	_, ok := <-sub.C
	assert.False(t, ok)

	_, err = s.Elements(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestServer_BackgroundTimeout(t *testing.T) {
	failed := make(chan error, 1)
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		failed <- req.Context().Err()
		return nil, req.Context().Err()
	})
	s, err := NewServer(ServerConfig{Endpoint: "http://example.test", Timeout: 20 * time.Millisecond}, WithHTTPClient(doer))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetPaging(1, 5, true))
	select {
	case err := <-failed:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("background fetch did not time out")
	}
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(body, total string) *http.Response {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("X-Total-Count", total)
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestExtractTotal(t *testing.T) {
	h := http.Header{}
	var body any
	require.NoError(t, json.Unmarshal([]byte(`{"count":3.0}`), &body))

	assert.Equal(t, 3, ExtractTotal(h, body, "x-total-count", "count"))
	h.Set("X-Total-Count", " 9 ")
	assert.Equal(t, 9, ExtractTotal(h, body, "x-total-count", "count"))
	h.Set("X-Total-Count", "010")
	assert.Equal(t, 10, ExtractTotal(h, body, "x-total-count", "count"), "leading zeros are decimal")
	h.Set("X-Total-Count", "0x10")
	assert.Equal(t, 3, ExtractTotal(h, body, "x-total-count", "count"), "not a decimal header, body wins")
	h.Set("X-Total-Count", "0")
	assert.Equal(t, 0, ExtractTotal(h, body, "x-total-count", "count"))

	require.NoError(t, json.Unmarshal([]byte(`{"count":"010"}`), &body))
	assert.Equal(t, 10, ExtractTotal(http.Header{}, body, "x-total-count", "count"))
	assert.Equal(t, 0, ExtractTotal(http.Header{}, body, "x-total-count", ""))
}
