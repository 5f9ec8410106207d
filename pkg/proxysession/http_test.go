package proxysession

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcp-proxy/gateway/pkg/clientsession"
	"github.com/mcp-proxy/gateway/pkg/eventstore"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	sessions map[string]*Session
}

func (r fakeRegistry) Lookup(sessionID string) (*Session, bool) {
	s, ok := r.sessions[sessionID]
	return s, ok
}
func (r fakeRegistry) Create(req *http.Request) (string, *Session, error) {
	return "", nil, errors.New("fakeRegistry: Create not supported")
}
func (r fakeRegistry) BaseURL() string { return "https://proxy.example.com" }

func TestPutPatchReturn405WithJSONRPCError(t *testing.T) {
	h := NewHandler(fakeRegistry{})
	for _, method := range []string{http.MethodPut, http.MethodPatch} {
		req := httptest.NewRequest(method, "/mcp", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		require.Contains(t, rec.Body.String(), "-32000")
	}
}

func TestHeadWithoutTokenReturns401WithWWWAuthenticate(t *testing.T) {
	h := NewHandler(fakeRegistry{})
	req := httptest.NewRequest(http.MethodHead, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "oauth-protected-resource")
}

func TestHeadWithTokenReturns405(t *testing.T) {
	h := NewHandler(fakeRegistry{})
	req := httptest.NewRequest(http.MethodHead, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestOptionsReturns204WithCORS(t *testing.T) {
	h := NewHandler(fakeRegistry{})
	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetResumeReplaysFromLastEventID(t *testing.T) {
	events := eventstore.New("sess-1")
	events.Append([]byte(`{"a":1}`))
	events.Append([]byte(`{"a":2}`))
	sess := &Session{id: "sess-1", events: events}

	h := NewHandler(fakeRegistry{sessions: map[string]*Session{"sess-1": sess}})
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(sessionIDHeader, "sess-1")
	req.Header.Set("Last-Event-Id", "1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"a":2`)
	require.NotContains(t, rec.Body.String(), `"a":1`)
}

func TestPostDispatchesDecodesAndAppendsEvents(t *testing.T) {
	events := eventstore.New("sess-1")
	sess := New("sess-1", fakeResolver{}, nil, nil, fakeReverseClient{}, events, PerKindTimeouts{})

	h := NewHandler(fakeRegistry{sessions: map[string]*Session{"sess-1": sess}})

	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "ping"})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set(sessionIDHeader, "sess-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"result"`)

	entries, err := events.Replay(0)
	require.NoError(t, err)
	require.Len(t, entries, 2) // request + response
}

func TestPostNotificationReturns202WithoutBody(t *testing.T) {
	events := eventstore.New("sess-1")
	sess := New("sess-1", fakeResolver{}, nil, nil, fakeReverseClient{}, events, PerKindTimeouts{})

	h := NewHandler(fakeRegistry{sessions: map[string]*Session{"sess-1": sess}})

	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": "ping"})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set(sessionIDHeader, "sess-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Empty(t, rec.Body.String())
}

func TestPostDeniesForwardedCallNotInView(t *testing.T) {
	events := eventstore.New("sess-1")
	sess := New("sess-1", fakeResolver{}, clientsession.NewCapabilitiesService(), nil, fakeReverseClient{}, events, PerKindTimeouts{})

	h := NewHandler(fakeRegistry{sessions: map[string]*Session{"sess-1": sess}})

	params, _ := json.Marshal(map[string]string{"name": "search_-_srv-1"})
	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": json.RawMessage(params)})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set(sessionIDHeader, "sess-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Permission denied")
}

type fakeCreatingRegistry struct {
	events *eventstore.Store
}

func (r fakeCreatingRegistry) Lookup(sessionID string) (*Session, bool) { return nil, false }
func (r fakeCreatingRegistry) Create(req *http.Request) (string, *Session, error) {
	sess := New("sess-new", fakeResolver{}, nil, nil, fakeReverseClient{}, r.events, PerKindTimeouts{})
	return "sess-new", sess, nil
}
func (r fakeCreatingRegistry) BaseURL() string { return "https://proxy.example.com" }

func TestPostInitializeWithNoSessionIDCreatesOne(t *testing.T) {
	events := eventstore.New("sess-new")
	h := NewHandler(fakeCreatingRegistry{events: events})

	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize"})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "sess-new", rec.Header().Get(sessionIDHeader))
}

func TestPostWithNoSessionIDAndNonInitializeIsRejected(t *testing.T) {
	h := NewHandler(fakeRegistry{})

	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "tools/list"})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unknown or missing session")
}

func TestDeleteTerminatesSession(t *testing.T) {
	h := NewHandler(fakeRegistry{})
	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(sessionIDHeader, "sess-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWellKnownOAuthProtectedResource(t *testing.T) {
	handler := WellKnownOAuthProtectedResource("https://proxy.example.com")
	req := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	require.Contains(t, rec.Body.String(), "proxy.example.com/mcp")
}
