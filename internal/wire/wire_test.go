package wire_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/nitrescov/filestored/internal/wire"
)

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	digest := bytes.Repeat([]byte{0xab}, wire.DigestSize)

	var buf bytes.Buffer
	if err := wire.SendHeader(&buf, 1234, wire.CmdUploadFile, wire.TypeData, digest); err != nil {
		t.Fatalf("SendHeader() error: %v", err)
	}
	if buf.Len() != wire.HeaderSize {
		t.Fatalf("encoded header length = %d, want %d", buf.Len(), wire.HeaderSize)
	}

	h, err := wire.RecvHeader(&buf)
	if err != nil {
		t.Fatalf("RecvHeader() error: %v", err)
	}
	if h.Length != 1234 {
		t.Errorf("Length = %d, want 1234", h.Length)
	}
	if h.Cmd != wire.CmdUploadFile {
		t.Errorf("Cmd = %v, want %v", h.Cmd, wire.CmdUploadFile)
	}
	if h.Type != wire.TypeData {
		t.Errorf("Type = %v, want %v", h.Type, wire.TypeData)
	}
	if !bytes.Equal(h.Digest[:], digest) {
		t.Errorf("Digest = %x, want %x", h.Digest, digest)
	}
}

func TestEncodeHeaderBadDigestLen(t *testing.T) {
	t.Parallel()

	_, err := wire.EncodeHeader(0, wire.CmdLogin, wire.TypeNone, []byte{1, 2, 3})
	if !errors.Is(err, wire.ErrBadDigestLen) {
		t.Errorf("EncodeHeader() error = %v, want %v", err, wire.ErrBadDigestLen)
	}
}

func TestRecvHeaderConnectionClosed(t *testing.T) {
	t.Parallel()

	_, err := wire.RecvHeader(bytes.NewReader(nil))
	if !errors.Is(err, wire.ErrConnection) {
		t.Errorf("RecvHeader() error = %v, want %v", err, wire.ErrConnection)
	}
}

func TestSendRecvBodyRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	payload := []byte("hello, filestored")
	if err := wire.SendBody(&buf, payload); err != nil {
		t.Fatalf("SendBody() error: %v", err)
	}

	got, err := wire.RecvBody(&buf, uint64(len(payload)))
	if err != nil {
		t.Fatalf("RecvBody() error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("RecvBody() = %q, want %q", got, payload)
	}
}

func TestRecvBodyConnectionClosed(t *testing.T) {
	t.Parallel()

	_, err := wire.RecvBody(bytes.NewReader([]byte("short")), 100)
	if !errors.Is(err, wire.ErrConnection) {
		t.Errorf("RecvBody() error = %v, want %v", err, wire.ErrConnection)
	}
}

func TestRecvBodyToStreams(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("x"), wire.Buffer*2+17)
	var dst bytes.Buffer
	if err := wire.RecvBodyTo(&dst, bytes.NewReader(payload), uint64(len(payload))); err != nil {
		t.Fatalf("RecvBodyTo() error: %v", err)
	}
	if !bytes.Equal(dst.Bytes(), payload) {
		t.Error("RecvBodyTo() did not faithfully stream the payload")
	}
}

func TestSendRecvCheckRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := wire.SendCheck(&buf, wire.CmdLogin, wire.CheckValid); err != nil {
		t.Fatalf("SendCheck() error: %v", err)
	}

	valid, err := wire.RecvCheck(&buf, wire.CmdLogin)
	if err != nil {
		t.Fatalf("RecvCheck() error: %v", err)
	}
	if !valid {
		t.Error("RecvCheck() valid = false, want true")
	}
}

func TestRecvCheckCommandMismatch(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	wire.SendCheck(&buf, wire.CmdLogin, wire.CheckValid)

	_, err := wire.RecvCheck(&buf, wire.CmdGetDirectories)
	if !errors.Is(err, wire.ErrCommandMismatch) {
		t.Errorf("RecvCheck() error = %v, want %v", err, wire.ErrCommandMismatch)
	}
}

func TestCommandFamilyAndFlags(t *testing.T) {
	t.Parallel()

	if got := wire.CdtUploadFile.Family(); got != wire.CmdUploadFile {
		t.Errorf("CdtUploadFile.Family() = %v, want %v", got, wire.CmdUploadFile)
	}
	if !wire.CdtUploadFile.IsContinuation() {
		t.Error("CdtUploadFile.IsContinuation() = false, want true")
	}
	if !wire.RspLogin.IsResponse() {
		t.Error("RspLogin.IsResponse() = false, want true")
	}
	if wire.CmdLogin.IsResponse() {
		t.Error("CmdLogin.IsResponse() = true, want false")
	}
}

func TestZeroDigestLength(t *testing.T) {
	t.Parallel()

	digest := wire.ZeroDigest()
	if len(digest) != wire.DigestSize {
		t.Fatalf("ZeroDigest() length = %d, want %d", len(digest), wire.DigestSize)
	}
	for _, b := range digest {
		if b != 0 {
			t.Fatal("ZeroDigest() contains a non-zero byte")
		}
	}
}
