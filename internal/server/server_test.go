package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankpilot/rankpilot/internal/agent"
	"github.com/rankpilot/rankpilot/internal/pipeline"
	"github.com/rankpilot/rankpilot/internal/ranking"
	"github.com/rankpilot/rankpilot/internal/serp"
	"github.com/rankpilot/rankpilot/internal/userstore"
)

type stubSearch struct {
	results map[string]*serp.Result
	err     error
}

func (f *stubSearch) Search(_ context.Context, query, _, _ string) (*serp.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[query]; ok {
		return r, nil
	}
	return &serp.Result{Query: query}, nil
}

type stubRunner struct {
	replies map[string]string
	errs    map[string]error
}

func (r *stubRunner) Run(_ context.Context, role *agent.Role, _ string) (string, error) {
	if err := r.errs[role.Name]; err != nil {
		return "", err
	}
	return r.replies[role.Name], nil
}

// memStore is an in-memory userstore.Store for handler tests.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*userstore.User
}

var _ userstore.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{nextID: 1, users: map[int64]*userstore.User{}}
}

func (m *memStore) Create(_ context.Context, email, fullName, password string, superuser bool) (*userstore.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return nil, userstore.ErrDuplicateEmail
		}
	}
	hashed, err := userstore.HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &userstore.User{
		ID: m.nextID, Email: email, FullName: fullName, HashedPassword: hashed,
		IsActive: true, IsSuperuser: superuser, CreatedAt: now, UpdatedAt: now,
	}
	m.users[u.ID] = u
	m.nextID++
	cp := *u
	return &cp, nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*userstore.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, userstore.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*userstore.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, userstore.ErrNotFound
}

func (m *memStore) List(_ context.Context, skip, limit int) ([]*userstore.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []*userstore.User
	for i, id := range ids {
		if i < skip {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := *m.users[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memStore) Update(_ context.Context, id int64, upd userstore.Update) (*userstore.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, userstore.ErrNotFound
	}
	if upd.Email != nil {
		for oid, other := range m.users {
			if oid != id && other.Email == *upd.Email {
				return nil, userstore.ErrDuplicateEmail
			}
		}
		u.Email = *upd.Email
	}
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.Password != nil {
		hashed, err := userstore.HashPassword(*upd.Password)
		if err != nil {
			return nil, err
		}
		u.HashedPassword = hashed
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	if upd.IsSuperuser != nil {
		u.IsSuperuser = *upd.IsSuperuser
	}
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	return &cp, nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return userstore.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) Authenticate(ctx context.Context, email, password string) (*userstore.User, error) {
	u, err := m.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !userstore.CheckPassword(u.HashedPassword, password) || !u.IsActive {
		return nil, userstore.ErrInvalidCredentials
	}
	return u, nil
}

func (m *memStore) Close() error { return nil }

func newTestServer(t *testing.T, search serp.Client, runner agent.Runner, users userstore.Store) *httptest.Server {
	t.Helper()
	roles := pipeline.Roles{
		Analyzer:  &agent.Role{Name: "SEO Analyzer"},
		Optimizer: &agent.Role{Name: "SEO Optimizer"},
	}
	p, err := pipeline.New(ranking.NewAnalyzer(search, nil), runner, roles, pipeline.Config{}, nil)
	require.NoError(t, err)

	srv, err := New(Deps{
		Pipeline:          p,
		Runner:            runner,
		PageFetcher:       &agent.Role{Name: "Page Fetcher"},
		Users:             users,
		OpenAIConfigured:  true,
		SerpAPIConfigured: true,
	}, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func jsonReader(t *testing.T, body any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", jsonReader(t, body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// readSSE consumes the stream and returns the decoded events in order.
func readSSE(t *testing.T, resp *http.Response) []pipeline.Event {
	t.Helper()
	defer resp.Body.Close()

	var events []pipeline.Event
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev pipeline.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func optimizeBody() map[string]any {
	return map[string]any{
		"url":      "https://example.com",
		"keywords": []string{"widgets"},
		"location": "United States",
	}
}

func TestOptimizeValidation(t *testing.T) {
	ts := newTestServer(t, &stubSearch{}, &stubRunner{}, nil)

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"no keywords", func(b map[string]any) { b["keywords"] = []string{} }},
		{"too many keywords", func(b map[string]any) {
			kws := make([]string, 11)
			for i := range kws {
				kws[i] = fmt.Sprintf("kw%d", i)
			}
			b["keywords"] = kws
		}},
		{"relative url", func(b map[string]any) { b["url"] = "/just/a/path" }},
		{"short location", func(b map[string]any) { b["location"] = "x" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := optimizeBody()
			tt.mutate(body)
			resp := postJSON(t, ts.URL+"/optimize", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

			var errBody map[string]string
			decodeBody(t, resp, &errBody)
			assert.NotEmpty(t, errBody["error"])
		})
	}
}

func TestOptimizeStream(t *testing.T) {
	search := &stubSearch{results: map[string]*serp.Result{
		"widgets": {
			Query: "widgets",
			OrganicResults: []serp.OrganicResult{
				{Link: "https://rival.com/widgets", Position: 1},
				{Link: "https://other.com", Position: 2},
				{Link: "https://example.com/widgets", Position: 3},
			},
		},
	}}
	runner := &stubRunner{replies: map[string]string{
		"SEO Analyzer":  "insights",
		"SEO Optimizer": "1. Improve title tags\n2. Add schema markup",
	}}
	ts := newTestServer(t, search, runner, nil)

	resp := postJSON(t, ts.URL+"/optimize", optimizeBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	events := readSSE(t, resp)
	require.NotEmpty(t, events)

	first := events[0]
	assert.Equal(t, pipeline.StatusPending, first.Status)
	assert.Equal(t, 0, first.Progress)

	last := events[len(events)-1]
	require.Equal(t, pipeline.StatusCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)

	data, ok := last.Data.(map[string]any)
	require.True(t, ok)
	rankings, ok := data["current_rankings"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), rankings["widgets"])
	assert.Equal(t, []any{"https://rival.com/widgets", "https://other.com"}, data["competitors"])
	assert.Equal(t, []any{"Improve title tags", "Add schema markup"}, data["recommendations"])

	prev := -1
	for i, ev := range events {
		assert.GreaterOrEqual(t, ev.Progress, prev)
		prev = ev.Progress
		if i < len(events)-1 {
			assert.False(t, ev.Terminal())
		}
	}
}

func TestOptimizeStreamFailure(t *testing.T) {
	runner := &stubRunner{errs: map[string]error{
		"SEO Analyzer": fmt.Errorf("provider unavailable"),
	}}
	ts := newTestServer(t, &stubSearch{}, runner, nil)

	resp := postJSON(t, ts.URL+"/optimize", optimizeBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := readSSE(t, resp)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, pipeline.StatusFailed, last.Status)
	assert.Equal(t, 0, last.Progress)
	assert.Contains(t, last.Message, "Optimization failed:")
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, &stubSearch{}, &stubRunner{}, nil)

	for _, path := range []string{"/api/health", "/optimize/health", "/page-fetcher/health"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)

		var body map[string]any
		decodeBody(t, resp, &body)
		assert.Equal(t, "ok", body["status"], path)
	}

	resp, err := http.Get(ts.URL + "/optimize/health")
	require.NoError(t, err)
	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Equal(t, true, body["openai_configured"])
	assert.Equal(t, true, body["serpapi_configured"])
}

func TestUsersRoutesDisabledWithoutStore(t *testing.T) {
	ts := newTestServer(t, &stubSearch{}, &stubRunner{}, nil)
	resp, err := http.Get(ts.URL + "/users")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
