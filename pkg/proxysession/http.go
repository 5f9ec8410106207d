package proxysession

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mcp-proxy/gateway/pkg/eventstore"
	"github.com/mcp-proxy/gateway/pkg/protocol"
)

// sessionIDHeader and its lowercase alias are both accepted, per spec.md
// §6.1 ("case-insensitive").
const sessionIDHeader = "Mcp-Session-Id"

// Registry resolves a session by its Mcp-Session-Id header value, and mints
// a new one on `initialize`, for the HTTP handler to dispatch into.
type Registry interface {
	Lookup(sessionID string) (*Session, bool)
	// Create allocates a new session (triggered by a client's initialize
	// call with no Mcp-Session-Id) and returns its id plus the bound
	// ProxySession.
	Create(r *http.Request) (sessionID string, sess *Session, err error)
	BaseURL() string
}

// Handler is the hand-rolled streamable-HTTP handler for the client-facing
// /mcp endpoint, per spec.md §6.1. Grounded on the teacher's single-bearer-
// token HTTP surface, generalized to per-session bearer tokens and
// EventStore-backed reconnect replay (see DESIGN.md: no corpus library,
// including the go-sdk's own StreamableHTTPHandler, provides this).
type Handler struct {
	registry Registry
}

// NewHandler builds the /mcp HTTP handler.
func NewHandler(registry Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleResume(w, r)
	case http.MethodDelete:
		h.handleTerminate(w, r)
	case http.MethodPut, http.MethodPatch:
		writeJSONRPCError(w, http.StatusMethodNotAllowed, protocol.NewError(protocol.MethodNotAllowed, fmt.Sprintf("%s not supported on /mcp", r.Method)))
	case http.MethodHead:
		h.handleHead(w, r)
	case http.MethodOptions:
		writeCORSPreflight(w)
	default:
		writeJSONRPCError(w, http.StatusMethodNotAllowed, protocol.NewError(protocol.MethodNotAllowed, fmt.Sprintf("%s not supported", r.Method)))
	}
}

func sessionIDFromRequest(r *http.Request) string {
	if v := r.Header.Get(sessionIDHeader); v != "" {
		return v
	}
	return r.Header.Get("mcp-session-id")
}

// handlePost implements POST /mcp: decode one JSON-RPC frame, dispatch it
// through the session's ProxySession.Handle, append both the inbound
// request and the outbound response to the session's EventStore (so a
// reconnecting client can replay them via GET's Last-Event-Id), and write
// the response back. Notifications (no id) are dispatched the same way but
// answered with a bare 202, per spec.md §6.1.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	var msg protocol.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSONRPCError(w, http.StatusBadRequest, protocol.NewError(protocol.InvalidRequest, fmt.Sprintf("invalid JSON-RPC body: %v", err)))
		return
	}

	sessionID := sessionIDFromRequest(r)
	var sess *Session
	switch {
	case sessionID != "":
		var ok bool
		sess, ok = h.registry.Lookup(sessionID)
		if !ok {
			writeJSONRPCError(w, http.StatusBadRequest, protocol.NewError(protocol.InvalidRequest, "unknown or missing session"))
			return
		}
	case msg.Method == "initialize":
		var err error
		sessionID, sess, err = h.registry.Create(r)
		if err != nil {
			writeJSONRPCError(w, http.StatusInternalServerError, protocol.NewError(protocol.InternalError, err.Error()))
			return
		}
	default:
		writeJSONRPCError(w, http.StatusBadRequest, protocol.NewError(protocol.InvalidRequest, "unknown or missing session"))
		return
	}

	if reqBytes, err := json.Marshal(msg); err == nil {
		sess.events.Append(reqBytes)
	}

	resp := sess.Handle(r.Context(), &msg, sess.CurrentView())

	w.Header().Set(sessionIDHeader, sessionID)

	if msg.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	respBytes, err := json.Marshal(resp)
	if err != nil {
		writeJSONRPCError(w, http.StatusInternalServerError, protocol.NewError(protocol.InternalError, err.Error()))
		return
	}
	sess.events.Append(respBytes)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(respBytes)
}

// handleResume implements GET /mcp: it replays every entry with
// eventId > Last-Event-Id from the session's EventStore as SSE events and
// then ends the response. No live stream is attached afterwards.
func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromRequest(r)
	sess, ok := h.registry.Lookup(sessionID)
	if !ok {
		writeJSONRPCError(w, http.StatusBadRequest, protocol.NewError(protocol.InvalidRequest, "unknown or missing session"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(sessionIDHeader, sessionID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	var lastEventID uint64
	if raw := r.Header.Get("Last-Event-Id"); raw != "" {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			lastEventID = n
		}
	}

	entries, err := sess.events.Replay(lastEventID)
	if err != nil {
		var evictErr *eventstore.ErrEvicted
		if ok := asEvictedErr(err, &evictErr); ok {
			writeSSEError(w, protocol.NewError(protocol.InvalidRequest, err.Error()))
			return
		}
		writeSSEError(w, protocol.NewError(protocol.InternalError, err.Error()))
		return
	}

	for _, e := range entries {
		writeSSEEntry(w, e)
	}
	if flusher != nil {
		flusher.Flush()
	}
}

func asEvictedErr(err error, target **eventstore.ErrEvicted) bool {
	evictErr, ok := err.(*eventstore.ErrEvicted)
	if ok {
		*target = evictErr
	}
	return ok
}

func writeSSEEntry(w http.ResponseWriter, e eventstore.Entry) {
	fmt.Fprintf(w, "id: %d\n", e.EventID)
	fmt.Fprintf(w, "data: %s\n\n", e.Payload)
}

func writeSSEError(w http.ResponseWriter, perr *protocol.Error) {
	b, _ := json.Marshal(perr)
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", b)
}

func (h *Handler) handleTerminate(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		writeJSONRPCError(w, http.StatusBadRequest, protocol.NewError(protocol.InvalidRequest, "missing session id"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHead(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(
			`Bearer error="invalid_token", error_description="no access token provided", resource_metadata="%s/.well-known/oauth-protected-resource"`,
			h.registry.BaseURL()))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusMethodNotAllowed)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func writeCORSPreflight(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id, Last-Event-Id")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSONRPCError(w http.ResponseWriter, status int, perr *protocol.Error) {
	msg := protocol.Message{JSONRPC: protocol.JSONRPCVersion, Error: perr}
	b, _ := json.Marshal(msg)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// WellKnownOAuthProtectedResource serves the static discovery document at
// /.well-known/oauth-protected-resource, per spec.md §6.1.
func WellKnownOAuthProtectedResource(baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"resource":              baseURL + "/mcp",
			"authorization_servers": []string{baseURL},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}
