package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/nitrescov/filestored/internal/auth"
)

// rawJSON is an alias kept local to this file for dispatch return
// types; it is exactly json.RawMessage.
type rawJSON = json.RawMessage

// marshalData marshals v into a rawJSON Data payload.
func marshalData(v any) (rawJSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("admin: marshal response data: %w", err)
	}
	return b, nil
}

// SessionRegistry is the subset of internal/listener.Registry the
// admin server needs. Declared here, satisfied there, so the two
// packages share only a method set, not an import of each other's
// concrete types.
type SessionRegistry interface {
	Count() int
	Peers() []string
	Kill(peerAddr string) bool
}

// ErrSessionNotFound indicates OpKillSession named a peer address with
// no active session.
var ErrSessionNotFound = errors.New("admin: no active session for that peer address")

// ErrUnknownOperation indicates a request named an operation the
// server does not recognize.
var ErrUnknownOperation = errors.New("admin: unknown operation")

// Config bundles the Server's dependencies.
type Config struct {
	// SocketPath is the filesystem path of the Unix domain socket to
	// bind. Any stale socket file at this path is removed first.
	SocketPath string

	// Auth is the live credential table; ReloadCredentials swaps its
	// contents in place.
	Auth *auth.Table

	// CredentialNamesPath and CredentialDigestsPath are the files
	// ReloadCredentials re-reads.
	CredentialNamesPath   string
	CredentialDigestsPath string

	// Registry reports and controls active file-storage sessions.
	Registry SessionRegistry

	// ListenAddr is the file-storage listener's address, reported by Status.
	ListenAddr string
}

// Server accepts admin control-plane connections on a Unix domain
// socket and serves Status/ReloadCredentials/ListUsers/KillSession.
type Server struct {
	cfg       Config
	logger    *slog.Logger
	startedAt time.Time
	ln        net.Listener
}

// New binds the admin server's Unix domain socket. Any file already
// present at cfg.SocketPath is removed first, since a prior unclean
// shutdown can leave one behind.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if err := os.Remove(cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("admin: remove stale socket %s: %w", cfg.SocketPath, err)
	}

	ln, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("admin: listen on %s: %w", cfg.SocketPath, err)
	}

	return &Server{
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
		ln:        ln,
	}, nil
}

// Close closes the listening socket and removes the socket file.
func (s *Server) Close() error {
	if err := s.ln.Close(); err != nil {
		return fmt.Errorf("admin: close listener: %w", err)
	}
	os.Remove(s.cfg.SocketPath)
	return nil
}

// Run accepts admin connections until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("admin accept failed", slog.String("error", err.Error()))
			continue
		}
		go s.serve(conn)
	}
}

// serve handles exactly one request on conn, then closes it -- the
// admin protocol is one request per connection, matching
// filestorectl's one-shot subcommand invocation style.
func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	var req Request
	if err := readFrame(conn, &req); err != nil {
		s.logger.Warn("admin: malformed request", slog.String("error", err.Error()))
		return
	}

	resp := s.handle(req)
	if err := writeFrame(conn, resp); err != nil {
		s.logger.Warn("admin: failed to write response", slog.String("error", err.Error()))
	}
}

// handle dispatches a single request to its operation and converts any
// error into a Response carrying ok=false.
func (s *Server) handle(req Request) Response {
	data, err := s.dispatch(req)
	if err != nil {
		s.logger.Info("admin request failed", slog.String("op", req.Op), slog.String("error", err.Error()))
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true, Data: data}
}

func (s *Server) dispatch(req Request) (rawJSON, error) {
	switch req.Op {
	case OpStatus:
		return marshalData(StatusData{
			ActiveSessions: s.cfg.Registry.Count(),
			ListenAddr:     s.cfg.ListenAddr,
			UptimeSeconds:  time.Since(s.startedAt).Seconds(),
			Peers:          s.cfg.Registry.Peers(),
		})

	case OpReloadCredentials:
		if err := s.cfg.Auth.Reload(s.cfg.CredentialNamesPath, s.cfg.CredentialDigestsPath); err != nil {
			return nil, err
		}
		return nil, nil

	case OpListUsers:
		return marshalData(ListUsersData{Users: s.cfg.Auth.Names()})

	case OpKillSession:
		peer := req.Args["peer"]
		if !s.cfg.Registry.Kill(peer) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, peer)
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, req.Op)
	}
}
