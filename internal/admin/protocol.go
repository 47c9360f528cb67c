// Package admin implements the daemon's operator control plane: a
// small length-prefixed JSON request/response protocol exchanged over
// a Unix domain socket, consumed by the filestorectl CLI.
//
// This is a deliberately separate concern from the file-storage wire
// protocol (internal/wire, internal/session): no admin operation ever
// touches a client-facing TCP connection, and no file-storage session
// ever speaks this protocol.
package admin

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// maxFrameSize bounds a single request or response frame, guarding
// against a misbehaving or malicious local peer exhausting memory.
const maxFrameSize = 1 << 20 // 1 MiB

// Operation names recognized by the admin server.
const (
	OpStatus            = "status"
	OpReloadCredentials = "reload_credentials"
	OpListUsers         = "list_users"
	OpKillSession       = "kill_session"
)

// ErrFrameTooLarge indicates a peer declared a frame length exceeding
// maxFrameSize.
var ErrFrameTooLarge = errors.New("admin: frame exceeds maximum size")

// Request is one admin control-plane call.
type Request struct {
	Op   string            `json:"op"`
	Args map[string]string `json:"args,omitempty"`
}

// Response is the admin server's reply to a Request.
type Response struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StatusData is the Data payload of a successful OpStatus response.
type StatusData struct {
	ActiveSessions int      `json:"active_sessions"`
	ListenAddr     string   `json:"listen_addr"`
	UptimeSeconds  float64  `json:"uptime_seconds"`
	Peers          []string `json:"peers"`
}

// ListUsersData is the Data payload of a successful OpListUsers response.
type ListUsersData struct {
	Users []string `json:"users"`
}

// writeFrame writes v as a 4-byte big-endian length prefix followed by
// its JSON encoding.
func writeFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("admin: marshal frame: %w", err)
	}
	if len(body) > maxFrameSize {
		return ErrFrameTooLarge
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("admin: write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("admin: write frame body: %w", err)
	}
	return nil
}

// readFrame reads a 4-byte big-endian length prefix and the JSON body
// it names, unmarshaling into v.
func readFrame(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return fmt.Errorf("admin: read frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length > maxFrameSize {
		return ErrFrameTooLarge
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("admin: read frame body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("admin: decode frame: %w", err)
	}
	return nil
}
