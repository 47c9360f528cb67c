package listener_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nitrescov/filestored/internal/auth"
	"github.com/nitrescov/filestored/internal/filehash"
	"github.com/nitrescov/filestored/internal/listener"
	"github.com/nitrescov/filestored/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListenerAcceptsAndLoginSucceeds(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "users", "alice"), 0o755))

	sum := filehash.Bytes([]byte("secret"))
	digest := string(sum[:])
	table := auth.NewTable([]string{"alice"}, []string{digest})

	ln, err := listener.New(listener.Config{
		Addr:     "127.0.0.1:0",
		BasePath: base,
		Auth:     table,
	}, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- ln.Run(ctx) }()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	payload := []byte("alice\n" + digest)
	payloadSum := filehash.Bytes(payload)
	require.NoError(t, wire.SendHeader(conn, uint64(len(payload)), wire.CmdLogin, wire.TypeData, payloadSum[:]))
	require.NoError(t, wire.SendBody(conn, payload))

	valid, err := wire.RecvCheck(conn, wire.CmdLogin)
	require.NoError(t, err)
	require.True(t, valid)

	header, err := wire.RecvHeader(conn)
	require.NoError(t, err)
	require.Equal(t, wire.RspLogin, header.Cmd)
	require.Equal(t, wire.TypeSuccess, header.Type)

	cancel()
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener Run did not return after cancel")
	}
}
