// Package proxysession implements ProxySession (C7), the hybrid MCP
// server/client endpoint at the center of the proxy: it presents one MCP
// server surface to the client while fanning calls out across every
// accessible downstream server. This is the proxy's own core contribution
// (see DESIGN.md: no library in the corpus, including the official
// modelcontextprotocol/go-sdk, exposes pluggable event replay or
// request-id remapping), built in the teacher's idiom — small, explicit
// structs wired together with plain channels and mutexes, no framework.
package proxysession

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mcp-proxy/gateway/pkg/capabilities"
	"github.com/mcp-proxy/gateway/pkg/clientsession"
	"github.com/mcp-proxy/gateway/pkg/eventstore"
	"github.com/mcp-proxy/gateway/pkg/log"
	"github.com/mcp-proxy/gateway/pkg/protocol"
	"github.com/mcp-proxy/gateway/pkg/requestid"
)

// aggregateOnly is the set of client methods answered entirely out of the
// ClientSession's merged view, with no downstream traffic, per spec.md §4.5.
var aggregateOnly = map[string]bool{
	"tools/list":               true,
	"resources/list":           true,
	"resources/templates/list": true,
	"prompts/list":             true,
}

// forwarded is the set of client methods that parse a prefixed name, check
// permissions, ensure the target server is online, and forward downstream,
// per spec.md §4.5.
var forwarded = map[string]bool{
	"tools/call":           true,
	"resources/read":       true,
	"prompts/get":          true,
	"completion/complete":  true,
	"resources/subscribe":   true,
	"resources/unsubscribe": true,
}

// localOnly methods never touch a downstream server or the aggregation
// layer.
var localOnly = map[string]bool{
	"logging/setLevel": true,
	"ping":             true,
}

// DownstreamServer is the subset of a connected server's client surface
// ProxySession needs in order to forward a request and get a response.
type DownstreamServer interface {
	ServerID() string
	Online() bool
	Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)
	EnsureAvailable(ctx context.Context) error
}

// ServerResolver resolves the owning DownstreamServer for a prefixed name,
// per spec.md §4.5's name remapping laws.
type ServerResolver interface {
	Resolve(serverInstanceID string) (DownstreamServer, bool)
}

// Approver blocks up to ~55s for a client-UI confirmation of an
// Approval-danger tool call, per spec.md §4.5.
type Approver interface {
	RequestApproval(ctx context.Context, sessionID, prefixedToolName string) (approved bool, err error)
}

// PerKindTimeouts configures the reverse-request timeout per kind, per
// spec.md §5. A zero or negative value falls back to defaultApprovalTimeout.
type PerKindTimeouts struct {
	Sampling    time.Duration
	Roots       time.Duration
	Elicitation time.Duration
}

// defaultApprovalTimeout is the ~55s window from spec.md §4.5.
const defaultApprovalTimeout = 55 * time.Second

// ReverseClient is the downstream-facing side of a reverse request:
// delivering a server-initiated sampling/roots/elicitation request to the
// client and awaiting its result.
type ReverseClient interface {
	CreateMessage(ctx context.Context, params json.RawMessage) (json.RawMessage, error)
	ListRoots(ctx context.Context, params json.RawMessage) (json.RawMessage, error)
	Elicit(ctx context.Context, params json.RawMessage) (json.RawMessage, error)
}

// Session is ProxySession (C7): one client connection's dispatch table,
// request-id mapping, and reverse-request forwarding.
type Session struct {
	id         string
	resolver   ServerResolver
	aggregator *clientsession.CapabilitiesService
	approver   Approver
	client     ReverseClient
	events     *eventstore.Store
	timeouts   PerKindTimeouts

	mapper *requestid.Mapper

	// DangerLevel resolves a prefixed tool name's current danger level, for
	// the ApprovalGate check on tools/call. Nil means never gate (tests,
	// servers with no tools).
	DangerLevel func(prefixedToolName string) capabilities.DangerLevel

	// ViewProvider returns this session's current composed capability view,
	// used by the HTTP handler to drive Handle on every POST /mcp request.
	// Nil means an empty view (no aggregate-only method returns anything,
	// and every forwarded name is denied) — acceptable only in tests that
	// never exercise aggregateOnly/forwarded dispatch through the HTTP
	// layer directly.
	ViewProvider func() clientsession.View

	mu          sync.Mutex
	errorCounts map[string]int
}

// New builds a ProxySession bound to sessionID.
func New(sessionID string, resolver ServerResolver, aggregator *clientsession.CapabilitiesService, approver Approver, client ReverseClient, events *eventstore.Store, timeouts PerKindTimeouts) *Session {
	return &Session{
		id:          sessionID,
		resolver:    resolver,
		aggregator:  aggregator,
		approver:    approver,
		client:      client,
		events:      events,
		timeouts:    timeouts,
		mapper:      requestid.New(sessionID),
		errorCounts: make(map[string]int),
	}
}

// SessionID satisfies router.Session.
func (s *Session) SessionID() string { return s.id }

// CurrentView returns the session's live capability view via ViewProvider,
// or an empty view if none is set.
func (s *Session) CurrentView() clientsession.View {
	if s.ViewProvider == nil {
		return clientsession.View{}
	}
	return s.ViewProvider()
}

// Handle dispatches one client request/notification per the table in
// spec.md §4.5.
func (s *Session) Handle(ctx context.Context, msg *protocol.Message, view clientsession.View) *protocol.Message {
	switch {
	case msg.Method == "initialize":
		return s.handleInitialize(msg, view)
	case localOnly[msg.Method]:
		return s.handleLocal(msg)
	case aggregateOnly[msg.Method]:
		return s.handleAggregate(msg, view)
	case forwarded[msg.Method]:
		return s.handleForward(ctx, msg, view)
	default:
		return errorResponse(msg, protocol.NewError(protocol.MethodNotFound, fmt.Sprintf("unknown method %q", msg.Method)))
	}
}

// handleInitialize answers the client's initialize handshake with the
// merged capability flags from view, per spec.md §4.6's advertised-flags
// rule (OR across accessible servers).
func (s *Session) handleInitialize(msg *protocol.Message, view clientsession.View) *protocol.Message {
	caps := map[string]any{
		"tools": map[string]any{"listChanged": view.Flags.ListChanged},
	}
	if view.Flags.ResourceSub {
		caps["resources"] = map[string]any{"subscribe": true, "listChanged": view.Flags.ListChanged}
	} else {
		caps["resources"] = map[string]any{"listChanged": view.Flags.ListChanged}
	}
	caps["prompts"] = map[string]any{"listChanged": view.Flags.ListChanged}
	if view.Flags.Completions {
		caps["completions"] = map[string]any{}
	}
	if view.Flags.Logging {
		caps["logging"] = map[string]any{}
	}

	result := map[string]any{
		"protocolVersion": "2025-06-18",
		"capabilities":    caps,
		"serverInfo":      map[string]any{"name": "mcp-proxy", "version": "1"},
	}
	b, err := json.Marshal(result)
	if err != nil {
		return errorResponse(msg, protocol.NewError(protocol.InternalError, err.Error()))
	}
	return &protocol.Message{JSONRPC: protocol.JSONRPCVersion, ID: msg.ID, Result: b}
}

func (s *Session) handleLocal(msg *protocol.Message) *protocol.Message {
	if msg.Method == "ping" {
		return &protocol.Message{JSONRPC: protocol.JSONRPCVersion, ID: msg.ID, Result: json.RawMessage(`{}`)}
	}
	return &protocol.Message{JSONRPC: protocol.JSONRPCVersion, ID: msg.ID, Result: json.RawMessage(`{}`)}
}

func (s *Session) handleAggregate(msg *protocol.Message, view clientsession.View) *protocol.Message {
	var result any
	switch msg.Method {
	case "tools/list":
		result = map[string]any{"tools": view.Tools}
	case "resources/list", "resources/templates/list":
		result = map[string]any{"resources": view.Resources}
	case "prompts/list":
		result = map[string]any{"prompts": view.Prompts}
	}
	b, err := json.Marshal(result)
	if err != nil {
		return errorResponse(msg, protocol.NewError(protocol.InternalError, err.Error()))
	}
	log.Audit(log.Event{Kind: aggregateLogKind(msg.Method), SessionID: s.id})
	return &protocol.Message{JSONRPC: protocol.JSONRPCVersion, ID: msg.ID, Result: b}
}

func aggregateLogKind(method string) log.Kind {
	switch method {
	case "tools/list":
		return log.KindResponseToolList
	case "resources/list", "resources/templates/list":
		return log.KindResponseResourceLst
	default:
		return log.KindResponsePromptList
	}
}

// namedParams is the shape every forwarded method's params share: a
// prefixed name identifying the downstream tool/resource/prompt.
type namedParams struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

func (s *Session) handleForward(ctx context.Context, msg *protocol.Message, view clientsession.View) *protocol.Message {
	prefixed, err := extractName(msg.Method, msg.Params)
	if err != nil {
		return errorResponse(msg, protocol.NewError(protocol.InvalidParams, err.Error()))
	}

	if !view.Allows(msg.Method, prefixed) {
		return errorResponse(msg, protocol.NewError(protocol.InvalidParams, "Permission denied"))
	}

	original, serverInstanceID, ok := capabilities.Parse(prefixed)
	if !ok {
		return errorResponse(msg, protocol.NewError(protocol.InvalidParams, fmt.Sprintf("malformed prefixed name %q", prefixed)))
	}

	server, ok := s.resolver.Resolve(serverInstanceID)
	if !ok {
		return errorResponse(msg, protocol.NewError(protocol.MethodNotFound, fmt.Sprintf("unknown server instance %q", serverInstanceID)))
	}

	if !server.Online() {
		if err := server.EnsureAvailable(ctx); err != nil {
			return errorResponse(msg, protocol.NewError(protocol.ConnectionClosed, err.Error()))
		}
	}

	if msg.Method == "tools/call" && s.DangerLevel != nil && s.DangerLevel(prefixed) == capabilities.DangerApproval {
		if gateErr := s.ApprovalGate(ctx, prefixed); gateErr != nil {
			return errorResponse(msg, gateErr)
		}
	}

	proxyReqID := s.mapper.Forward(msg.ID, server.ServerID(), msg.Method)
	defer s.mapper.Complete(proxyReqID)

	downstreamParams, err := injectProxyContext(msg.Params, original, proxyReqID)
	if err != nil {
		return errorResponse(msg, protocol.NewError(protocol.InternalError, err.Error()))
	}

	return s.forwardWithRetry(ctx, msg, server, downstreamParams, 0)
}

func (s *Session) forwardWithRetry(ctx context.Context, msg *protocol.Message, server DownstreamServer, params json.RawMessage, attempt int) *protocol.Message {
	result, err := server.Call(ctx, msg.Method, params)
	if err == nil {
		log.Audit(log.Event{Kind: log.KindResponseTool, SessionID: s.id, ServerID: server.ServerID()})
		return &protocol.Message{JSONRPC: protocol.JSONRPCVersion, ID: msg.ID, Result: result}
	}

	s.mu.Lock()
	s.errorCounts[server.ServerID()]++
	s.mu.Unlock()

	if attempt < 2 && server.Online() {
		return s.forwardWithRetry(ctx, msg, server, params, attempt+1)
	}

	return errorResponse(msg, protocol.NewError(protocol.ConnectionClosed, err.Error()))
}

func extractName(method string, params json.RawMessage) (string, error) {
	var p namedParams
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("proxysession: invalid params for %s: %w", method, err)
	}
	if p.Name != "" {
		return p.Name, nil
	}
	if p.URI != "" {
		return p.URI, nil
	}
	return "", fmt.Errorf("proxysession: %s params carry no name/uri", method)
}

// injectProxyContext rewrites params.name/uri back to the unprefixed
// original and injects params._meta.proxyContext, per spec.md §4.5.
func injectProxyContext(params json.RawMessage, originalName, proxyRequestID string) (json.RawMessage, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(params, &generic); err != nil {
		return nil, err
	}
	nameOrURI, _ := json.Marshal(originalName)
	if _, ok := generic["uri"]; ok {
		generic["uri"] = nameOrURI
	} else {
		generic["name"] = nameOrURI
	}

	meta := protocol.Meta{ProxyContext: &protocol.ProxyContext{ProxyRequestID: proxyRequestID}}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	generic["_meta"] = metaBytes

	return json.Marshal(generic)
}

func errorResponse(msg *protocol.Message, perr *protocol.Error) *protocol.Message {
	return &protocol.Message{JSONRPC: protocol.JSONRPCVersion, ID: msg.ID, Error: perr}
}
