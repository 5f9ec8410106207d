package proxysession

import (
	"context"

	"github.com/mcp-proxy/gateway/pkg/protocol"
)

// ApprovalGate blocks a tools/call whose resolved dangerLevel is Approval
// for up to ~55s waiting on an out-of-band client-UI confirmation, per
// spec.md §4.5. Rejection or timeout yields UserDenied.
func (s *Session) ApprovalGate(ctx context.Context, prefixedToolName string) *protocol.Error {
	if s.approver == nil {
		return nil
	}

	gateCtx, cancel := context.WithTimeout(ctx, defaultApprovalTimeout)
	defer cancel()

	approved, err := s.approver.RequestApproval(gateCtx, s.id, prefixedToolName)
	if err != nil {
		return protocol.NewError(protocol.UserDenied, "approval request failed: "+err.Error())
	}
	if !approved {
		return protocol.NewError(protocol.UserDenied, "tool call denied or timed out awaiting approval")
	}
	return nil
}
