// Package log is the gateway's ambient logger: a tiny writer-backed
// Log/Logf pair, plus a structured Event helper for the request-audit
// events described by the observability section of the spec.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

var logWriter io.Writer = os.Stderr

// SetLogWriter sets the log output destination
func SetLogWriter(w io.Writer) {
	if w != nil {
		logWriter = w
	}
}

// Log prints a message to the log output
func Log(a ...any) {
	_, _ = fmt.Fprintln(logWriter, a...)
}

// Logf prints a formatted message to the log output
func Logf(format string, a ...any) {
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}
	_, _ = fmt.Fprintf(logWriter, format, a...)
}

// Kind enumerates the audit event kinds emitted by the proxy runtime.
type Kind string

const (
	KindSessionInit         Kind = "SessionInit"
	KindSessionClose        Kind = "SessionClose"
	KindServerInit          Kind = "ServerInit"
	KindServerClose         Kind = "ServerClose"
	KindServerCapabilityUpd Kind = "ServerCapabilityUpdate"
	KindRequestTool         Kind = "RequestTool"
	KindRequestResource     Kind = "RequestResource"
	KindRequestPrompt       Kind = "RequestPrompt"
	KindResponseTool        Kind = "ResponseTool"
	KindResponseResource    Kind = "ResponseResource"
	KindResponsePrompt      Kind = "ResponsePrompt"
	KindResponseToolList    Kind = "ResponseToolList"
	KindResponseResourceLst Kind = "ResponseResourceList"
	KindResponsePromptList  Kind = "ResponsePromptList"
	KindErrorInternal       Kind = "ErrorInternal"
)

// Event is one structured audit record as described in spec.md §6.4. Every
// request log carries this shape; other kinds (SessionInit/Close,
// ServerInit/Close) leave the request-only fields zero.
type Event struct {
	Time             time.Time `json:"time"`
	Kind             Kind      `json:"kind"`
	SessionID        string    `json:"sessionId,omitempty"`
	UpstreamReqID    string    `json:"upstreamRequestId,omitempty"`
	UniformReqID     string    `json:"uniformRequestId,omitempty"`
	ServerID         string    `json:"serverId,omitempty"`
	Params           any       `json:"params,omitempty"`
	ResponseResult   any       `json:"responseResult,omitempty"`
	ResponseError    string    `json:"responseError,omitempty"`
	DurationMs       int64     `json:"durationMs,omitempty"`
	StatusCode       int       `json:"statusCode,omitempty"`
}

// Audit emits a structured Event as a single JSON line. Kept separate from
// Log/Logf (which stay free-text) because audit consumers (log shipping,
// out of scope per spec.md §1) need a stable machine-readable line format.
func Audit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		Logf("! failed to marshal audit event %s: %v", ev.Kind, err)
		return
	}
	_, _ = fmt.Fprintln(logWriter, string(b))
}
