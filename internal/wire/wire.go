// Package wire implements the binary framing codec for the file-storage
// protocol: the 58-byte primary header, the 2-byte check response, and
// the command/content-type byte layouts that the rest of the daemon
// dispatches on.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// -------------------------------------------------------------------------
// Wire Constants
// -------------------------------------------------------------------------

const (
	// HeaderSize is the fixed size of the primary header in bytes:
	// 8 (length) + 1 (command) + 1 (content type) + 48 (SHA-384 digest).
	HeaderSize = 58

	// DigestSize is the length of a SHA-384 digest in bytes.
	DigestSize = 48

	// CheckSize is the fixed size of a check response in bytes.
	CheckSize = 2

	// Buffer is the chunk size used for streaming reads and writes.
	Buffer = 4096

	// MaxCmdSize is the upper bound on an in-memory DATA payload.
	MaxCmdSize = 256 * 1024 * 1024

	// RetryCount is the number of attempts a receive or send loop gets
	// before the session is torn down.
	RetryCount = 5

	// DefaultPort is the default TCP listen port.
	DefaultPort = 5001
)

// -------------------------------------------------------------------------
// Command Bytes — bit 7: continuation, bit 6: response, bits 5..0: family
// -------------------------------------------------------------------------

// Command identifies a protocol command byte, encoding both the command
// family and its request/response/continuation role in a single byte.
type Command uint8

const (
	bitResponse     = 1 << 6
	bitContinuation = 1 << 7
	familyMask      = 0x3f
)

// Command families and their four derived forms (request, response,
// continuation-data, response-to-continuation). Only UPLOAD_FILE
// currently uses the continuation forms.
const (
	CmdLogin           Command = 0x00
	CmdGetDirectories  Command = 0x01
	CmdUploadFile      Command = 0x02
	CmdDownloadFile    Command = 0x03
	CmdDownloadFolder  Command = 0x04
	CdtUploadFile      Command = CmdUploadFile | bitContinuation
	RspLogin           Command = CmdLogin | bitResponse
	RspGetDirectories  Command = CmdGetDirectories | bitResponse
	RspUploadFile      Command = CmdUploadFile | bitResponse
	RspDownloadFile    Command = CmdDownloadFile | bitResponse
	RspDownloadFolder  Command = CmdDownloadFolder | bitResponse
	RdtUploadFile      Command = CmdUploadFile | bitResponse | bitContinuation
)

// Family returns the command family (bits 5..0), stripping the
// response and continuation indicator bits.
func (c Command) Family() Command {
	return c & familyMask
}

// IsResponse reports whether bit 6 (response indicator) is set.
func (c Command) IsResponse() bool {
	return c&bitResponse != 0
}

// IsContinuation reports whether bit 7 (additional-data indicator) is set.
func (c Command) IsContinuation() bool {
	return c&bitContinuation != 0
}

// String returns a human-readable name for known command bytes, or a
// numeric fallback for unrecognized ones.
func (c Command) String() string {
	switch c {
	case CmdLogin:
		return "CMD_LOGIN"
	case CmdGetDirectories:
		return "CMD_GET_DIRECTORIES"
	case CmdUploadFile:
		return "CMD_UPLOAD_FILE"
	case CmdDownloadFile:
		return "CMD_DOWNLOAD_FILE"
	case CmdDownloadFolder:
		return "CMD_DOWNLOAD_FOLDER"
	case CdtUploadFile:
		return "CDT_UPLOAD_FILE"
	case RspLogin:
		return "RSP_LOGIN"
	case RspGetDirectories:
		return "RSP_GET_DIRECTORIES"
	case RspUploadFile:
		return "RSP_UPLOAD_FILE"
	case RspDownloadFile:
		return "RSP_DOWNLOAD_FILE"
	case RspDownloadFolder:
		return "RSP_DOWNLOAD_FOLDER"
	case RdtUploadFile:
		return "RDT_UPLOAD_FILE"
	default:
		return fmt.Sprintf("Command(0x%02x)", uint8(c))
	}
}

// -------------------------------------------------------------------------
// Content Types
// -------------------------------------------------------------------------

// ContentType describes the shape of a packet's payload.
type ContentType uint8

const (
	// TypeNone indicates a zero-length payload request.
	TypeNone ContentType = 0x00

	// TypeData indicates an in-memory payload bounded by MaxCmdSize.
	TypeData ContentType = 0x01

	// TypeFile indicates a streamed payload of arbitrary length.
	TypeFile ContentType = 0x02

	// TypeFailure indicates a zero-length failure outcome.
	TypeFailure ContentType = 0x03

	// TypeSuccess indicates a zero-length success outcome.
	TypeSuccess ContentType = 0x04
)

// String returns a human-readable name for known content types.
func (t ContentType) String() string {
	switch t {
	case TypeNone:
		return "NONE"
	case TypeData:
		return "DATA"
	case TypeFile:
		return "FILE"
	case TypeFailure:
		return "FAILURE"
	case TypeSuccess:
		return "SUCCESS"
	default:
		return fmt.Sprintf("ContentType(0x%02x)", uint8(t))
	}
}

// -------------------------------------------------------------------------
// Check Response Validity
// -------------------------------------------------------------------------

// Validity is the second byte of a check response.
type Validity uint8

const (
	// CheckInvalid indicates the just-transferred packet failed its
	// checksum verification.
	CheckInvalid Validity = 0x00

	// CheckValid indicates the just-transferred packet passed its
	// checksum verification.
	CheckValid Validity = 0x01
)

// -------------------------------------------------------------------------
// Errors
// -------------------------------------------------------------------------

// Sentinel errors for the wire package. Callers wrap these with
// fmt.Errorf("...: %w", ...) to add call-site context.
var (
	// ErrConnection indicates the peer closed the connection mid-transfer.
	ErrConnection = errors.New("connection closed by peer")

	// ErrBadDigestLen indicates a caller supplied a digest that is not
	// exactly DigestSize bytes long.
	ErrBadDigestLen = errors.New("digest must be exactly 48 bytes")

	// ErrCommandMismatch indicates a check response echoed a command byte
	// that does not match the command being acknowledged.
	ErrCommandMismatch = errors.New("check response command mismatch")
)

// -------------------------------------------------------------------------
// Header
// -------------------------------------------------------------------------

// Header is the decoded form of the 58-byte primary header.
type Header struct {
	Length  uint64
	Cmd     Command
	Type    ContentType
	Digest  [DigestSize]byte
}

// EncodeHeader marshals a Header into exactly HeaderSize bytes.
// Returns ErrBadDigestLen if digest is not DigestSize bytes.
func EncodeHeader(length uint64, cmd Command, ctype ContentType, digest []byte) ([HeaderSize]byte, error) {
	var buf [HeaderSize]byte
	if len(digest) != DigestSize {
		return buf, ErrBadDigestLen
	}
	binary.BigEndian.PutUint64(buf[0:8], length)
	buf[8] = byte(cmd)
	buf[9] = byte(ctype)
	copy(buf[10:58], digest)
	return buf, nil
}

// SendHeader writes a complete 58-byte header to w.
func SendHeader(w io.Writer, length uint64, cmd Command, ctype ContentType, digest []byte) error {
	buf, err := EncodeHeader(length, cmd, ctype, digest)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("send header: %w", err)
	}
	return nil
}

// RecvHeader reads and decodes exactly HeaderSize bytes from r.
// Returns ErrConnection if the peer closes before a full header arrives.
func RecvHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("recv header: %w: %w", ErrConnection, err)
	}

	var h Header
	h.Length = binary.BigEndian.Uint64(buf[0:8])
	h.Cmd = Command(buf[8])
	h.Type = ContentType(buf[9])
	copy(h.Digest[:], buf[10:58])
	return h, nil
}

// -------------------------------------------------------------------------
// Body
// -------------------------------------------------------------------------

// SendBody writes the full payload to w.
func SendBody(w io.Writer, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("send body: %w", err)
	}
	return nil
}

// SendStream copies src to w in Buffer-sized chunks until EOF.
func SendStream(w io.Writer, src io.Reader) error {
	buf := make([]byte, Buffer)
	if _, err := io.CopyBuffer(w, src, buf); err != nil {
		return fmt.Errorf("send stream: %w", err)
	}
	return nil
}

// RecvBody reads exactly length bytes from r, looping as needed to
// tolerate partial reads. Returns ErrConnection if the peer closes
// before length bytes have arrived.
func RecvBody(r io.Reader, length uint64) ([]byte, error) {
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("recv body: %w: %w", ErrConnection, err)
	}
	return data, nil
}

// RecvBodyTo reads exactly length bytes from r into w, in Buffer-sized
// chunks, without buffering the whole payload in memory. Used for
// streaming uploads straight to disk. Returns ErrConnection if the peer
// closes before length bytes have arrived.
func RecvBodyTo(w io.Writer, r io.Reader, length uint64) error {
	lr := io.LimitReader(r, int64(length))
	buf := make([]byte, Buffer)
	n, err := io.CopyBuffer(w, lr, buf)
	if err != nil {
		return fmt.Errorf("recv stream: %w", err)
	}
	if uint64(n) != length {
		return fmt.Errorf("recv stream: got %d of %d bytes: %w", n, length, ErrConnection)
	}
	return nil
}

// -------------------------------------------------------------------------
// Check Response
// -------------------------------------------------------------------------

// SendCheck writes a 2-byte check response to w.
func SendCheck(w io.Writer, cmd Command, validity Validity) error {
	buf := [CheckSize]byte{byte(cmd), byte(validity)}
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("send check: %w", err)
	}
	return nil
}

// RecvCheck reads a 2-byte check response from r and reports whether it
// is valid. Returns ErrCommandMismatch if the echoed command does not
// equal expected, and ErrConnection if the peer closes mid-read.
func RecvCheck(r io.Reader, expected Command) (bool, error) {
	var buf [CheckSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, fmt.Errorf("recv check: %w: %w", ErrConnection, err)
	}
	if Command(buf[0]) != expected {
		return false, fmt.Errorf("recv check: got %s want %s: %w", Command(buf[0]), expected, ErrCommandMismatch)
	}
	return Validity(buf[1]) == CheckValid, nil
}

// ZeroDigest returns a DigestSize all-zero slice, used for zero-length
// payloads whose digest field must be all-zero (spec invariant 1).
func ZeroDigest() []byte {
	return make([]byte, DigestSize)
}
