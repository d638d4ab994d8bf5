package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/atlaschat/internal/agent"
	"github.com/smallnest/atlaschat/internal/bridge"
	"github.com/smallnest/atlaschat/internal/history"
	"github.com/smallnest/atlaschat/internal/history/memory"
	"github.com/smallnest/atlaschat/internal/log"
)

// fakeDispatcher replays scripted events for every request.
type fakeDispatcher struct {
	events  []agent.Event
	err     error
	ready   bool
	lastIn  string
	lastHst []history.Message
}

func (f *fakeDispatcher) Stream(_ context.Context, input string, hist []history.Message) (<-chan agent.Event, error) {
	f.lastIn = input
	f.lastHst = hist
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan agent.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeDispatcher) Ready() bool { return f.ready }

func newTestServer(d Dispatcher, store history.Store) *Server {
	return New(Options{
		Dispatcher: d,
		Store:      store,
		ToolDocs:   func() (string, error) { return `{"tools":[{"name":"getJiraIssue"}]}`, nil },
		Logger:     &log.NoOpLogger{},
	})
}

func postChat(t *testing.T, srv http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeLines(t *testing.T, body *bytes.Buffer) []agent.Event {
	t.Helper()
	var events []agent.Event
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		var ev agent.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), "line %q", sc.Text())
		events = append(events, ev)
	}
	return events
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeDispatcher{ready: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestChatMissingInput(t *testing.T) {
	srv := newTestServer(&fakeDispatcher{ready: true}, nil)

	for _, body := range []string{`{}`, `{"input":""}`, `not json`, ``} {
		rec := postChat(t, srv, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.JSONEq(t, `{"error":"Missing 'input'"}`, rec.Body.String())
	}
}

func TestChatStream(t *testing.T) {
	d := &fakeDispatcher{
		ready: true,
		events: []agent.Event{
			{Type: agent.EventToolCall, Name: "mcp_call", Args: map[string]any{"tool": "getJiraIssue"}},
			{Type: agent.EventFinal, Output: "DE-3 is in progress."},
		},
	}
	srv := newTestServer(d, nil)

	rec := postChat(t, srv, `{"input":"status of DE-3"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	events := decodeLines(t, rec.Body)
	require.Len(t, events, 2)
	assert.Equal(t, agent.EventToolCall, events[0].Type)
	assert.Equal(t, "mcp_call", events[0].Name)
	assert.Equal(t, agent.EventFinal, events[1].Type)
	assert.Equal(t, "DE-3 is in progress.", events[1].Output)
	assert.Equal(t, "status of DE-3", d.lastIn)
}

func TestChatRewritesTimestamps(t *testing.T) {
	d := &fakeDispatcher{
		ready: true,
		events: []agent.Event{
			{Type: agent.EventFinal, Output: "DE-3 was updated at 2024-01-15T10:30:00Z."},
		},
	}
	srv := newTestServer(d, nil)

	rec := postChat(t, srv, `{"input":"when"}`)
	events := decodeLines(t, rec.Body)
	require.Len(t, events, 1)
	assert.NotContains(t, events[0].Output, "2024-01-15T10:30:00Z")
	assert.Contains(t, events[0].Output, "ago")
}

func TestChatHTMLOutput(t *testing.T) {
	d := &fakeDispatcher{
		ready:  true,
		events: []agent.Event{{Type: agent.EventFinal, Output: "**Done.**"}},
	}
	srv := newTestServer(d, nil)

	rec := postChat(t, srv, `{"input":"x","html":true}`)
	events := decodeLines(t, rec.Body)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].OutputHTML, "<strong>Done.</strong>")
}

func TestChatErrorEvent(t *testing.T) {
	d := &fakeDispatcher{
		ready:  true,
		events: []agent.Event{{Type: agent.EventError, Error: "router model failed"}},
	}
	srv := newTestServer(d, nil)

	rec := postChat(t, srv, `{"input":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeLines(t, rec.Body)
	require.Len(t, events, 1)
	assert.Equal(t, agent.EventError, events[0].Type)
}

func TestChatNotReady(t *testing.T) {
	srv := newTestServer(&fakeDispatcher{err: bridge.ErrNotReady}, nil)

	rec := postChat(t, srv, `{"input":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChatSessionHistory(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "s-1",
		history.Message{Role: history.RoleHuman, Content: "earlier question"},
		history.Message{Role: history.RoleAI, Content: "earlier answer"},
	))

	d := &fakeDispatcher{
		ready:  true,
		events: []agent.Event{{Type: agent.EventFinal, Output: "fresh answer"}},
	}
	srv := newTestServer(d, store)

	rec := postChat(t, srv, `{"input":"follow-up","session":"s-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Stored history was threaded into the request.
	require.Len(t, d.lastHst, 2)
	assert.Equal(t, "earlier question", d.lastHst[0].Content)

	// The completed turn was appended.
	msgs, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, history.Message{Role: history.RoleHuman, Content: "follow-up"}, msgs[2])
	assert.Equal(t, history.Message{Role: history.RoleAI, Content: "fresh answer"}, msgs[3])
}

func TestDefaultMaxHistory(t *testing.T) {
	srv := New(Options{Dispatcher: &fakeDispatcher{}, Logger: &log.NoOpLogger{}})
	assert.Equal(t, 50, srv.opts.MaxHistory, "must match the config default")
}

func TestTools(t *testing.T) {
	srv := newTestServer(&fakeDispatcher{ready: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/tools", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tools":[{"name":"getJiraIssue"}]}`, rec.Body.String())
}

func TestSessionEndpoints(t *testing.T) {
	store := memory.NewStore()
	srv := newTestServer(&fakeDispatcher{ready: true}, store)

	// Create
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["session"]
	require.NotEmpty(t, id)

	// Unknown session
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Populate and fetch
	require.NoError(t, store.Append(context.Background(), id,
		history.Message{Role: history.RoleHuman, Content: "hi"}))
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hi"`)

	// Clear
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/"+id, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := store.Get(context.Background(), id)
	assert.ErrorIs(t, err, history.ErrSessionNotFound)
}
