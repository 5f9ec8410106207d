// Package transport implements TransportFactory (C1): building a downstream
// MCP transport (stdio child process, streamable-HTTP, or SSE) from a
// server's launch configuration. Grounded on the teacher's pkg/client
// command/URL dispatch and pkg/gateway/transport.go's SSE-fallback shape.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Kind identifies which concrete transport was built, for logging and
// ServerContext bookkeeping (streamable-HTTP servers support session
// termination on removeServer; stdio/SSE do not).
type Kind string

const (
	KindStdio           Kind = "stdio"
	KindStreamableHTTP  Kind = "streamable_http"
	KindSSE             Kind = "sse"
)

// ErrInvalidConfig is returned when a launch config has neither a command
// nor a url, per spec.md §4.1.
var ErrInvalidConfig = errors.New("transport: launch config has neither command nor url")

// Config is the subset of a server's (decrypted) launch config that
// TransportFactory cares about. Env values are merged over the host
// process's environment; OAuth strategies inject env["accessToken"] and
// strip any oauth block before this is constructed (spec.md §9 design
// note: "never pass OAuth client secret to the downstream").
type Config struct {
	Command string
	Args    []string
	Env     map[string]string
	Cwd     string
	URL     string
	Headers map[string]string
}

// Factory builds downstream transports from launch configs.
type Factory struct{}

// New returns a TransportFactory.
func New() *Factory { return &Factory{} }

// Create builds a transport per spec.md §4.1's inference rules:
//   - command present ⇒ stdio child process (env merged with process env,
//     cwd honored, ".." in the command rejected);
//   - else url present ⇒ SSE when the URL path ends in "/sse" or
//     "/events", otherwise streamable-HTTP; there is no fallback from
//     streamable-HTTP to SSE;
//   - neither present ⇒ ErrInvalidConfig.
func (f *Factory) Create(ctx context.Context, cfg Config) (mcp.Transport, Kind, error) {
	switch {
	case cfg.Command != "":
		return f.createStdio(cfg)
	case cfg.URL != "":
		return f.createRemote(ctx, cfg)
	default:
		return nil, "", ErrInvalidConfig
	}
}

func (f *Factory) createStdio(cfg Config) (mcp.Transport, Kind, error) {
	if strings.Contains(cfg.Command, "..") {
		return nil, "", fmt.Errorf("transport: command %q must not contain '..': %w", cfg.Command, ErrInvalidConfig)
	}
	for _, a := range cfg.Args {
		if strings.Contains(a, "..") {
			return nil, "", fmt.Errorf("transport: argument %q must not contain '..': %w", a, ErrInvalidConfig)
		}
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = mergeEnv(os.Environ(), cfg.Env)
	if cfg.Cwd != "" {
		cmd.Dir = cfg.Cwd
	}

	return &mcp.CommandTransport{Command: cmd}, KindStdio, nil
}

func (f *Factory) createRemote(ctx context.Context, cfg Config) (mcp.Transport, Kind, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, "", fmt.Errorf("transport: invalid url %q: %w", cfg.URL, err)
	}

	if isSSEPath(u.Path) {
		return f.createSSE(cfg)
	}

	t := &mcp.StreamableClientTransport{Endpoint: cfg.URL}
	if len(cfg.Headers) > 0 {
		t.HTTPClient = httpClientWithHeaders(cfg.Headers)
	}
	return t, KindStreamableHTTP, nil
}

func (f *Factory) createSSE(cfg Config) (mcp.Transport, Kind, error) {
	t := &mcp.SSEClientTransport{Endpoint: cfg.URL}
	if len(cfg.Headers) > 0 {
		t.HTTPClient = httpClientWithHeaders(cfg.Headers)
	}
	return t, KindSSE, nil
}

func isSSEPath(path string) bool {
	return strings.HasSuffix(path, "/sse") || strings.HasSuffix(path, "/events")
}

func mergeEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overlay))
	out = append(out, base...)
	for k, v := range overlay {
		out = append(out, k+"="+v)
	}
	return out
}
