package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrRequestFailed wraps a Response whose OK field is false, carrying
// the server's reported error string.
var ErrRequestFailed = errors.New("admin: request failed")

// Client is a thin one-shot caller over the admin control socket: each
// Call dials a fresh connection, matching the server's one-request-
// per-connection design.
type Client struct {
	SocketPath string
	Timeout    time.Duration
}

// NewClient creates a Client bound to the given Unix domain socket path.
func NewClient(socketPath string) *Client {
	return &Client{SocketPath: socketPath, Timeout: 5 * time.Second}
}

// Call sends a single request and returns the raw response data on
// success, or ErrRequestFailed wrapping the server's error string.
func (c *Client) Call(op string, args map[string]string) (json.RawMessage, error) {
	conn, err := net.DialTimeout("unix", c.SocketPath, c.Timeout)
	if err != nil {
		return nil, fmt.Errorf("admin: dial %s: %w", c.SocketPath, err)
	}
	defer conn.Close()

	if c.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.Timeout))
	}

	if err := writeFrame(conn, Request{Op: op, Args: args}); err != nil {
		return nil, fmt.Errorf("admin: send request: %w", err)
	}

	var resp Response
	if err := readFrame(conn, &resp); err != nil {
		return nil, fmt.Errorf("admin: read response: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}
	return resp.Data, nil
}

// Status calls OpStatus and decodes its result.
func (c *Client) Status() (StatusData, error) {
	var out StatusData
	data, err := c.Call(OpStatus, nil)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("admin: decode status: %w", err)
	}
	return out, nil
}

// ReloadCredentials calls OpReloadCredentials.
func (c *Client) ReloadCredentials() error {
	_, err := c.Call(OpReloadCredentials, nil)
	return err
}

// ListUsers calls OpListUsers and decodes its result.
func (c *Client) ListUsers() ([]string, error) {
	var out ListUsersData
	data, err := c.Call(OpListUsers, nil)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("admin: decode users: %w", err)
	}
	return out.Users, nil
}

// KillSession calls OpKillSession for the given peer address.
func (c *Client) KillSession(peerAddr string) error {
	_, err := c.Call(OpKillSession, map[string]string{"peer": peerAddr})
	return err
}
