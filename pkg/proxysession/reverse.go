package proxysession

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mcp-proxy/gateway/pkg/protocol"
	"github.com/mcp-proxy/gateway/pkg/requestid"
)

// ForwardSamplingToClient implements the server→client createMessage
// reverse request, per spec.md §4.5: rewrites relatedRequestId from the
// proxy id back to the client's original id and races against the
// sampling timeout.
func (s *Session) ForwardSamplingToClient(ctx context.Context, proxyRequestID string, params json.RawMessage) (json.RawMessage, error) {
	return s.forwardReverse(ctx, proxyRequestID, params, s.timeouts.Sampling, s.client.CreateMessage)
}

// ForwardRootsListToClient implements the server→client listRoots reverse
// request.
func (s *Session) ForwardRootsListToClient(ctx context.Context, proxyRequestID string, params json.RawMessage) (json.RawMessage, error) {
	return s.forwardReverse(ctx, proxyRequestID, params, s.timeouts.Roots, s.client.ListRoots)
}

// ForwardElicitationToClient implements the server→client elicit reverse
// request.
func (s *Session) ForwardElicitationToClient(ctx context.Context, proxyRequestID string, params json.RawMessage) (json.RawMessage, error) {
	return s.forwardReverse(ctx, proxyRequestID, params, s.timeouts.Elicitation, s.client.Elicit)
}

func (s *Session) forwardReverse(ctx context.Context, proxyRequestID string, params json.RawMessage, timeout time.Duration, call func(context.Context, json.RawMessage) (json.RawMessage, error)) (json.RawMessage, error) {
	entry, ok := s.mapper.Resolve(proxyRequestID)
	rewritten, err := rewriteRelatedRequestID(params, entry, ok)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = defaultApprovalTimeout
	}
	reverseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result json.RawMessage
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := call(reverseCtx, rewritten)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-reverseCtx.Done():
		return nil, protocol.NewError(protocol.ReverseRequestTimeout, "reverse request timed out")
	}
}

// rewriteRelatedRequestID replaces a proxy-minted relatedRequestId with the
// client's original id before delivering a reverse request, per spec.md
// §4.5's "(a) rewrites relatedRequestId back from proxy id to the client's
// original id."
func rewriteRelatedRequestID(params json.RawMessage, entry requestid.Entry, haveEntry bool) (json.RawMessage, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(params, &generic); err != nil {
		return nil, err
	}
	if haveEntry {
		generic["relatedRequestId"] = entry.OriginalClientID
	}
	return json.Marshal(generic)
}
