package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mcp-proxy/gateway/pkg/clientsession"
	"github.com/mcp-proxy/gateway/pkg/config"
	"github.com/mcp-proxy/gateway/pkg/log"
	"github.com/mcp-proxy/gateway/pkg/proxysession"
	"github.com/mcp-proxy/gateway/pkg/sessionstore"
	"github.com/mcp-proxy/gateway/pkg/store"
	"github.com/mcp-proxy/gateway/pkg/telemetry"
	"github.com/spf13/cobra"
)

// serveCommand builds the `serve` subcommand exposing the teacher's flag
// surface (--port, --transport, --log-file, --session, --watch) adapted to
// multi-user session serving.
func serveCommand() *cobra.Command {
	var (
		port          int
		transport     string
		logFile       string
		configPath    string
		sessionFile   string
		watch         bool
		databaseFile  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("serve: open log file %s: %w", logFile, err)
				}
				defer f.Close()
				log.SetLogWriter(f)
			}

			cfg := config.Defaults()
			cfg.Port, cfg.Transport, cfg.LogFile, cfg.DatabaseFile = port, transport, logFile, databaseFile
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
				if port != 0 {
					cfg.Port = port
				}
			}

			return runServe(cmd.Context(), cfg, sessionFile, watch)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&port, "port", 8080, "Port to listen on")
	flags.StringVar(&transport, "transport", "streamable_http", "Client-facing transport (streamable_http)")
	flags.StringVar(&logFile, "log-file", "", "Log file path (defaults to stderr)")
	flags.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flags.StringVar(&sessionFile, "session", "", "Path to a persisted session snapshot (accepted; serve does not read it)")
	flags.StringVar(&databaseFile, "database", "", "Path to the sqlite database file (defaults to ~/.mcp-proxy/proxy.db)")
	flags.BoolVar(&watch, "watch", false, "Hot-reload --config on change (accepted; serve reads --config once at startup)")

	return cmd
}

func runServe(ctx context.Context, cfg config.Config, sessionFile string, watch bool) error {
	log.Logf("mcp-proxy: starting on port %d (transport=%s)", cfg.Port, cfg.Transport)

	var opts []store.Option
	if cfg.DatabaseFile != "" {
		opts = append(opts, store.WithDatabaseFile(cfg.DatabaseFile))
	}
	repo, err := store.New(opts...)
	if err != nil {
		return fmt.Errorf("serve: open store: %w", err)
	}
	defer repo.Close()

	meter, err := telemetry.New(60 * time.Second)
	if err != nil {
		return fmt.Errorf("serve: telemetry: %w", err)
	}
	defer meter.Shutdown(ctx)
	meter.RecordGatewayStart(ctx)

	sessions := sessionstore.New(30*time.Minute, sessionstore.RemoveHooks{})
	sessions.StartSweep(5 * time.Minute)
	defer sessions.Stop()

	registry := &sessionRegistry{
		store:   sessions,
		baseURL: fmt.Sprintf("http://localhost:%d", cfg.Port),
		timeouts: proxysession.PerKindTimeouts{
			Sampling:    time.Duration(cfg.ReverseTimeouts.SamplingMs) * time.Millisecond,
			Roots:       time.Duration(cfg.ReverseTimeouts.RootsMs) * time.Millisecond,
			Elicitation: time.Duration(cfg.ReverseTimeouts.ElicitationMs) * time.Millisecond,
		},
	}
	handler := proxysession.NewHandler(registry)

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.HandleFunc("/.well-known/oauth-protected-resource", proxysession.WellKnownOAuthProtectedResource(registry.baseURL))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-sigCtx.Done():
		log.Log("mcp-proxy: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// sessionRegistry adapts sessionstore.Store to proxysession.Registry: it
// mints a new SessionStore entry and binds a ProxySession to it on a
// client's initialize call (no Mcp-Session-Id yet), and looks up
// already-bound sessions for every later request.
type sessionRegistry struct {
	store    *sessionstore.Store
	baseURL  string
	timeouts proxysession.PerKindTimeouts

	mu    sync.Mutex
	bound map[string]*proxysession.Session
}

func (r *sessionRegistry) Lookup(sessionID string) (*proxysession.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.bound[sessionID]
	return s, ok
}

// Create allocates a sessionstore.Session and wraps it in a ProxySession,
// per spec.md §4.7's session-bootstrap sequence. The downstream resolver
// and reverse client are always the unwired placeholders below, so every
// forwarded call and reverse request fails closed rather than panicking or
// hanging.
func (r *sessionRegistry) Create(req *http.Request) (string, *proxysession.Session, error) {
	sessionID := uuid.NewString()
	userID := bearerTokenUserID(req)

	storeSess := r.store.Create(sessionID, userID, time.Time{})
	aggregator := clientsession.NewCapabilitiesService()

	proxySess := proxysession.New(
		sessionID,
		unwiredResolver{},
		aggregator,
		nil,
		unwiredReverseClient{},
		storeSess.EventStore,
		r.timeouts,
	)
	proxySess.ViewProvider = func() clientsession.View { return aggregator.Compose(nil) }

	r.mu.Lock()
	if r.bound == nil {
		r.bound = make(map[string]*proxysession.Session)
	}
	r.bound[sessionID] = proxySess
	r.mu.Unlock()

	return sessionID, proxySess, nil
}

func (r *sessionRegistry) BaseURL() string { return r.baseURL }

func bearerTokenUserID(req *http.Request) string {
	const prefix = "Bearer "
	auth := req.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return "anonymous"
}

// unwiredResolver is the ServerResolver used until the supervisor's live
// connections are threaded through to the HTTP layer: it reports every
// server instance unknown rather than forwarding into nothing.
type unwiredResolver struct{}

func (unwiredResolver) Resolve(serverInstanceID string) (proxysession.DownstreamServer, bool) {
	return nil, false
}

// unwiredReverseClient is the ReverseClient used until the client-facing
// push channel (sampling/roots/elicitation delivery) is wired: every
// reverse request fails immediately instead of hanging until its timeout.
type unwiredReverseClient struct{}

func (unwiredReverseClient) CreateMessage(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return nil, errors.New("proxy: sampling not yet wired to a client transport")
}
func (unwiredReverseClient) ListRoots(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return nil, errors.New("proxy: roots/list not yet wired to a client transport")
}
func (unwiredReverseClient) Elicit(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return nil, errors.New("proxy: elicitation not yet wired to a client transport")
}
