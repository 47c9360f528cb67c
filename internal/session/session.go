// Package session implements the per-connection protocol driver: the
// login phase, the command loop, and the optional pending-data phase,
// each under the fixed RETRY_COUNT retry discipline.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/nitrescov/filestored/internal/auth"
	"github.com/nitrescov/filestored/internal/filehash"
	"github.com/nitrescov/filestored/internal/handlers"
	"github.com/nitrescov/filestored/internal/metrics"
	"github.com/nitrescov/filestored/internal/pathguard"
	"github.com/nitrescov/filestored/internal/wire"
)

// state is the session's position in the connection state machine
// (spec.md section 4.5): INIT -> AWAIT_LOGIN -> CMD_LOOP <-> PENDING_DATA -> CLOSED.
type state uint8

const (
	stateAwaitLogin state = iota
	stateCmdLoop
	statePendingData
	stateClosed
)

// Errors that terminate a session. Callers distinguish these from the
// two other failure kinds (connection errors and request failures) to
// decide how to log the teardown.
var (
	// ErrProtocolViolation indicates the peer sent something the protocol
	// forbids: an unknown command, a bad content-type/length combination,
	// an echoed-command mismatch, a separator byte in a path, or a path
	// escaping the user's subtree. The session is torn down.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrRetriesExhausted indicates a receive or send loop used its full
	// RETRY_COUNT budget without success.
	ErrRetriesExhausted = errors.New("retry budget exhausted")
)

// Config bundles the dependencies a Session needs to run: the
// credential table, the on-disk base path, and an optional metrics
// sink (nil is a safe no-op).
type Config struct {
	BasePath string
	Auth     *auth.Table
	Metrics  *metrics.Collector
}

// Session drives one accepted connection from login through command
// dispatch until the connection closes. A Session is not reused across
// connections.
type Session struct {
	conn   net.Conn
	cfg    Config
	logger *slog.Logger

	state state
	user  string
}

// New creates a Session bound to an already-accepted connection.
func New(conn net.Conn, cfg Config, logger *slog.Logger) *Session {
	return &Session{
		conn: conn,
		cfg:  cfg,
		logger: logger.With(
			slog.String("peer", conn.RemoteAddr().String()),
		),
		state: stateAwaitLogin,
	}
}

// Run drives the session to completion: login, then the command loop,
// until the connection closes or a terminal error occurs. Run always
// closes the underlying connection before returning, on every exit
// path. ctx cancellation is observed between exchanges, not mid-read.
func (s *Session) Run(ctx context.Context) {
	defer s.conn.Close()

	s.cfg.Metrics.SessionOpened()
	defer s.cfg.Metrics.SessionClosed()

	if err := s.login(ctx); err != nil {
		s.logExit(err)
		return
	}

	s.state = stateCmdLoop
	s.logger = s.logger.With(slog.String("user", s.user))
	s.logger.Info("session authenticated")

	for {
		if ctx.Err() != nil {
			s.logger.Info("session closing: context cancelled")
			return
		}
		if err := s.commandRound(); err != nil {
			s.logExit(err)
			return
		}
	}
}

// logExit logs a session's terminal error at a level appropriate to its
// kind: protocol violations are security-relevant, connection errors
// are routine, anything else is unexpected.
func (s *Session) logExit(err error) {
	switch {
	case errors.Is(err, errClientEOF):
		s.logger.Info("session closed by peer")
	case errors.Is(err, ErrProtocolViolation), pathguard.IsProtocolViolation(err), errors.Is(err, wire.ErrCommandMismatch):
		s.logger.Warn("session closed for security reasons", slog.String("cause", err.Error()))
		s.cfg.Metrics.RecordProtocolViolation(violationCause(err))
	case errors.Is(err, ErrRetriesExhausted), errors.Is(err, wire.ErrConnection):
		s.logger.Info("session closed", slog.String("reason", err.Error()))
	default:
		s.logger.Error("session closed on unexpected error", slog.String("error", err.Error()))
	}
}

// violationCause extracts a short, metric-label-safe cause string from a
// wrapped protocol violation error. Falls back to a generic label when
// no finer-grained sentinel is wrapped.
func violationCause(err error) string {
	switch {
	case errors.Is(err, pathguard.ErrSeparatorInPath):
		return "separator_in_path"
	case errors.Is(err, pathguard.ErrEscapesSubtree):
		return "escapes_subtree"
	case errors.Is(err, wire.ErrCommandMismatch):
		return "command_mismatch"
	case errors.Is(err, errUnknownCommand):
		return "unknown_command"
	case errors.Is(err, errLoginRejected):
		return "login_rejected"
	default:
		return "other"
	}
}

// errClientEOF marks a clean, expected peer disconnect (as opposed to a
// mid-transfer short read, which surfaces as wire.ErrConnection).
var errClientEOF = errors.New("peer disconnected")

var (
	errUnknownCommand = fmt.Errorf("%w: unknown command", ErrProtocolViolation)
	errLoginRejected  = fmt.Errorf("%w: invalid credentials", ErrProtocolViolation)
)

// -------------------------------------------------------------------------
// Login phase
// -------------------------------------------------------------------------

// login drives AWAIT_LOGIN to completion: receive CMD_LOGIN, verify its
// checksum under the retry discipline, submit the credential pair, and
// report the outcome. Returns nil only when the peer is authenticated.
func (s *Session) login(ctx context.Context) error {
	payload, err := s.recvChecked(wire.CmdLogin, wire.TypeData)
	if err != nil {
		return err
	}

	name, digest, err := splitLogin(payload)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	ok := s.cfg.Auth.Match(name, digest)
	outcome := wire.TypeFailure
	if ok {
		outcome = wire.TypeSuccess
		s.user = name
	}
	s.cfg.Metrics.RecordLogin(loginResult(ok))

	if err := s.sendChecked(wire.RspLogin, outcome, nil, [wire.DigestSize]byte{}); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if !ok {
		return errLoginRejected
	}
	return nil
}

func loginResult(ok bool) string {
	if ok {
		return "accepted"
	}
	return "rejected"
}

// splitLogin splits a CMD_LOGIN payload into its name and digest
// fields. auth.ErrMalformedCredentials wraps as a protocol violation:
// the payload didn't even have the right shape to be a credential pair.
func splitLogin(payload []byte) (name, digest string, err error) {
	parts := bytes.SplitN(payload, []byte(pathguard.Separator), 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %w", ErrProtocolViolation, auth.ErrMalformedCredentials)
	}
	return string(parts[0]), string(parts[1]), nil
}

// -------------------------------------------------------------------------
// Command loop (one round = one command.md section 4.5 numbered step)
// -------------------------------------------------------------------------

// commandRound executes exactly one command-loop iteration: receive a
// request, dispatch it to a handler, send the response, and -- if the
// handler asked for a pending-data phase -- drive that too.
func (s *Session) commandRound() error {
	header, err := s.recvHeaderRetrying()
	if err != nil {
		return err
	}

	req, err := s.readRequest(header)
	if err != nil {
		return err
	}

	s.cfg.Metrics.RecordCommand(header.Cmd.Family().String())

	resp, err := s.dispatch(header.Cmd, req)
	if err != nil {
		return err
	}

	if err := s.sendResponse(resp); err != nil {
		return err
	}

	if resp.Pending != nil {
		return s.finalizeUpload(resp.Pending)
	}
	return nil
}

// readRequest receives a request's body (if any) per its header,
// verifying the checksum under the retry discipline for DATA payloads.
// A NONE-typed, zero-length request has no body to receive, but it is
// only acknowledged VALID for GET_DIRECTORIES -- the one command family
// that takes no payload. Any other command sent this way is a protocol
// violation and must not be acked first.
func (s *Session) readRequest(h wire.Header) ([]byte, error) {
	switch {
	case h.Type == wire.TypeNone && h.Length == 0:
		if h.Cmd.Family() != wire.CmdGetDirectories {
			return nil, fmt.Errorf("%w: unexpected NONE/0 request for %s", ErrProtocolViolation, h.Cmd)
		}
		if err := wire.SendCheck(s.conn, h.Cmd, wire.CheckValid); err != nil {
			return nil, err
		}
		return nil, nil
	case h.Type == wire.TypeData && h.Length > 0:
		return s.recvBodyRetrying(h)
	default:
		return nil, fmt.Errorf("%w: bad content-type/length combination for %s", ErrProtocolViolation, h.Cmd)
	}
}

// dispatch routes a validated request to its command handler. Unknown
// command families are a protocol violation (spec.md section 4.5 step 1).
func (s *Session) dispatch(cmd wire.Command, payload []byte) (handlers.Response, error) {
	switch cmd.Family() {
	case wire.CmdGetDirectories:
		return handlers.GetDirectories(s.cfg.BasePath, s.user)
	case wire.CmdUploadFile:
		return handlers.PrepareUpload(s.cfg.BasePath, s.user, payload)
	case wire.CmdDownloadFile:
		return handlers.DownloadFile(s.cfg.BasePath, s.user, string(payload))
	case wire.CmdDownloadFolder:
		return handlers.DownloadFolder(s.cfg.BasePath, s.user, string(payload))
	default:
		return handlers.Response{}, errUnknownCommand
	}
}

// sendResponse sends a handler's response header and, if present, its
// body (in-memory payload or streamed file), under the send-retry
// discipline (spec.md section 4.5 step 3).
func (s *Session) sendResponse(resp handlers.Response) error {
	if resp.StreamPath != "" {
		return s.sendStreamRetrying(resp.Cmd, resp.Type, resp.StreamPath, resp.Length, resp.Digest)
	}
	digest := resp.Digest
	if resp.Length == 0 {
		digest = [wire.DigestSize]byte{}
	}
	return s.sendChecked(resp.Cmd, resp.Type, resp.Payload, digest)
}

// finalizeUpload drives the PENDING_DATA phase of an UPLOAD_FILE
// exchange: receive the CDT_UPLOAD_FILE file payload, stream it to
// disk, and reply RDT_UPLOAD_FILE under the same checksum-retry
// discipline as any other exchange.
func (s *Session) finalizeUpload(pending *handlers.PendingUpload) error {
	for attempt := 0; attempt < wire.RetryCount; attempt++ {
		header, err := s.recvHeader()
		if err != nil {
			return err
		}
		if header.Cmd != wire.CdtUploadFile || header.Type != wire.TypeFile {
			return fmt.Errorf("%w: expected CDT_UPLOAD_FILE/FILE, got %s/%s", ErrProtocolViolation, header.Cmd, header.Type)
		}

		matched, err := handlers.FinalizeUpload(pending.TargetPath, s.conn, header.Length, header.Digest)
		if err != nil {
			return fmt.Errorf("finalize upload: %w", err)
		}

		if !matched {
			s.cfg.Metrics.RecordChecksumRetry(wire.CmdUploadFile.String())
			if err := wire.SendCheck(s.conn, header.Cmd, wire.CheckInvalid); err != nil {
				return fmt.Errorf("finalize upload: %w", err)
			}
			continue
		}

		s.cfg.Metrics.AddBytes("up", header.Length)
		if err := wire.SendCheck(s.conn, header.Cmd, wire.CheckValid); err != nil {
			return fmt.Errorf("finalize upload: %w", err)
		}
		return s.sendChecked(wire.RdtUploadFile, wire.TypeSuccess, nil, [wire.DigestSize]byte{})
	}
	return ErrRetriesExhausted
}

// -------------------------------------------------------------------------
// Framing helpers with retry discipline (spec.md section 4.5, 4.3)
// -------------------------------------------------------------------------

// recvHeader reads one header, translating a clean peer disconnect into
// errClientEOF so the caller's exit logging can tell it apart from a
// mid-transfer short read.
func (s *Session) recvHeader() (wire.Header, error) {
	h, err := wire.RecvHeader(s.conn)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return wire.Header{}, errClientEOF
		}
		return wire.Header{}, err
	}
	return h, nil
}

// recvHeaderRetrying is recvHeader with no retry of its own: a header
// read either succeeds or ends the session. Retries apply to checksum
// verification within an exchange, not to the header read itself.
func (s *Session) recvHeaderRetrying() (wire.Header, error) {
	return s.recvHeader()
}

// recvBodyRetrying receives a DATA-typed body of the declared length,
// enforcing MAX_CMD_SIZE, and verifies its checksum up to RETRY_COUNT
// times, requesting a resend via CHECK_INVALID on each mismatch. Every
// resent header is re-validated exactly like the first one -- a client
// cannot use the retry path to smuggle in a different command or a
// length over MAX_CMD_SIZE.
func (s *Session) recvBodyRetrying(h wire.Header) ([]byte, error) {
	if err := validateDataHeader(h, h.Cmd); err != nil {
		return nil, err
	}

	header := h
	for attempt := 0; attempt < wire.RetryCount; attempt++ {
		body, err := wire.RecvBody(s.conn, header.Length)
		if err != nil {
			return nil, err
		}

		digest := filehash.Bytes(body)
		if filehash.Equal(digest, header.Digest[:]) {
			if err := wire.SendCheck(s.conn, header.Cmd, wire.CheckValid); err != nil {
				return nil, err
			}
			return body, nil
		}

		s.cfg.Metrics.RecordChecksumRetry(header.Cmd.Family().String())
		if err := wire.SendCheck(s.conn, header.Cmd, wire.CheckInvalid); err != nil {
			return nil, err
		}

		if attempt < wire.RetryCount-1 {
			resent, err := s.recvHeader()
			if err != nil {
				return nil, err
			}
			if err := validateDataHeader(resent, h.Cmd); err != nil {
				return nil, err
			}
			header = resent
		}
	}
	return nil, ErrRetriesExhausted
}

// validateDataHeader applies the same DATA/length/command checks to a
// header regardless of whether it is the original request or a resend
// after CHECK_INVALID: type must be DATA, length must be in
// (0, MAX_CMD_SIZE], and the command must not have changed mid-exchange.
func validateDataHeader(h wire.Header, expectCmd wire.Command) error {
	if h.Cmd != expectCmd || h.Type != wire.TypeData {
		return fmt.Errorf("%w: expected %s/%s, got %s/%s", ErrProtocolViolation, expectCmd, wire.TypeData, h.Cmd, h.Type)
	}
	if h.Length == 0 || h.Length > wire.MaxCmdSize {
		return fmt.Errorf("%w: payload length %d invalid for %s", ErrProtocolViolation, h.Length, h.Cmd)
	}
	return nil
}

// sendChecked sends a header plus an optional in-memory body and waits
// for the peer's check response, resending on CHECK_INVALID up to
// RETRY_COUNT times.
func (s *Session) sendChecked(cmd wire.Command, ctype wire.ContentType, payload []byte, digest [wire.DigestSize]byte) error {
	length := uint64(len(payload))
	digestSlice := digest[:]
	if length == 0 {
		digestSlice = wire.ZeroDigest()
	}

	for attempt := 0; attempt < wire.RetryCount; attempt++ {
		if err := wire.SendHeader(s.conn, length, cmd, ctype, digestSlice); err != nil {
			return err
		}
		if length > 0 {
			if err := wire.SendBody(s.conn, payload); err != nil {
				return err
			}
		}

		valid, err := wire.RecvCheck(s.conn, cmd)
		if err != nil {
			return err
		}
		if valid {
			return nil
		}
	}
	return ErrRetriesExhausted
}

// sendStreamRetrying sends a header followed by a file streamed from
// disk, resending from the start of the file on CHECK_INVALID up to
// RETRY_COUNT times.
func (s *Session) sendStreamRetrying(cmd wire.Command, ctype wire.ContentType, path string, length uint64, digest [wire.DigestSize]byte) error {
	for attempt := 0; attempt < wire.RetryCount; attempt++ {
		if err := wire.SendHeader(s.conn, length, cmd, ctype, digest[:]); err != nil {
			return err
		}

		f, err := openForStream(path)
		if err != nil {
			return err
		}
		err = wire.SendStream(s.conn, f)
		f.Close()
		if err != nil {
			return err
		}

		valid, err := wire.RecvCheck(s.conn, cmd)
		if err != nil {
			return err
		}
		if valid {
			s.cfg.Metrics.AddBytes("down", length)
			return nil
		}
	}
	return ErrRetriesExhausted
}

// recvChecked receives a header, verifies it matches the expected
// command and content-type, reads its body (DATA only), and verifies
// the checksum -- used for the single-exchange login request.
func (s *Session) recvChecked(expectCmd wire.Command, expectType wire.ContentType) ([]byte, error) {
	for attempt := 0; attempt < wire.RetryCount; attempt++ {
		header, err := s.recvHeader()
		if err != nil {
			return nil, err
		}
		if header.Cmd != expectCmd || header.Type != expectType {
			return nil, fmt.Errorf("%w: expected %s/%s, got %s/%s", ErrProtocolViolation, expectCmd, expectType, header.Cmd, header.Type)
		}
		if header.Length > wire.MaxCmdSize {
			return nil, fmt.Errorf("%w: payload length %d exceeds MAX_CMD_SIZE", ErrProtocolViolation, header.Length)
		}

		body, err := wire.RecvBody(s.conn, header.Length)
		if err != nil {
			return nil, err
		}

		digest := filehash.Bytes(body)
		if filehash.Equal(digest, header.Digest[:]) {
			if err := wire.SendCheck(s.conn, header.Cmd, wire.CheckValid); err != nil {
				return nil, err
			}
			return body, nil
		}

		s.cfg.Metrics.RecordChecksumRetry(expectCmd.Family().String())
		if err := wire.SendCheck(s.conn, header.Cmd, wire.CheckInvalid); err != nil {
			return nil, err
		}
	}
	return nil, ErrRetriesExhausted
}

// openForStream opens path for a streamed response body. Any open
// failure (the file vanished between hashing and streaming) surfaces
// as a plain error rather than a protocol violation -- it is a
// filesystem race, not a client misbehavior.
func openForStream(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stream source %s: %w", path, err)
	}
	return f, nil
}
