// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package minecraft

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	mperrors "github.com/absmach/mcproxy/pkg/errors"
)

// MaxVarIntLen is the longest valid encoding of a 32-bit VarInt.
const MaxVarIntLen = 5

// DefaultMaxPacketSize is the largest length a 3-byte VarInt prefix can
// declare, which is the protocol's own packet size ceiling.
const DefaultMaxPacketSize = 1<<21 - 1

var (
	// ErrVarIntTooBig is returned when a VarInt runs past five bytes.
	ErrVarIntTooBig = errors.New("VarInt too big")

	// ErrInvalidUTF8 is returned when a string is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid UTF-8")

	// ErrNegativeLength is returned when a length prefix is negative.
	ErrNegativeLength = errors.New("negative length")

	// ErrPacketTooLarge is returned when a packet length exceeds the configured maximum.
	ErrPacketTooLarge = errors.New("packet too large")
)

// ProtocolError reports malformed or truncated bytes on the wire.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("minecraft: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is makes every ProtocolError match errors.ErrProtocolViolation.
func (e *ProtocolError) Is(target error) bool {
	return target == mperrors.ErrProtocolViolation
}

// Reader is what the codec reads from: a bufio.Reader or a bytes.Reader.
type Reader interface {
	io.Reader
	io.ByteReader
}

// ReadVarInt reads a VarInt.
func ReadVarInt(r io.ByteReader) (int32, error) {
	v, _, err := readVarInt(r, nil)
	return v, err
}

// readVarInt decodes a VarInt, copying the raw bytes into rec when it is
// non-nil. It returns the value and the number of bytes consumed.
func readVarInt(r io.ByteReader, rec []byte) (int32, int, error) {
	var value uint32
	for i := 0; i < MaxVarIntLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, i, readError("varint", err)
		}
		if rec != nil {
			rec[i] = b
		}
		value |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return int32(value), i + 1, nil
		}
	}
	return 0, MaxVarIntLen, &ProtocolError{Op: "varint", Err: ErrVarIntTooBig}
}

// AppendVarInt appends the VarInt encoding of v to buf.
func AppendVarInt(buf []byte, v int32) []byte {
	u := uint32(v)
	for u >= 0x80 {
		buf = append(buf, byte(u&0x7F)|0x80)
		u >>= 7
	}
	return append(buf, byte(u))
}

// WriteVarInt writes the VarInt encoding of v to w.
func WriteVarInt(w io.Writer, v int32) error {
	var buf [MaxVarIntLen]byte
	_, err := w.Write(AppendVarInt(buf[:0], v))
	return err
}

// VarIntSize returns the encoded length of v.
func VarIntSize(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}

// ReadString reads a VarInt byte length followed by that many UTF-8 bytes.
func ReadString(r Reader) (string, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", &ProtocolError{Op: "string", Err: ErrNegativeLength}
	}
	// In-memory readers know how much is left; refuse to allocate past it.
	if l, ok := r.(interface{ Len() int }); ok && int(n) > l.Len() {
		return "", &ProtocolError{Op: "string", Err: io.ErrUnexpectedEOF}
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", readError("string", err)
	}
	if !utf8.Valid(buf) {
		return "", &ProtocolError{Op: "string", Err: ErrInvalidUTF8}
	}
	return string(buf), nil
}

// AppendString appends s with its VarInt length prefix to buf.
func AppendString(buf []byte, s string) []byte {
	buf = AppendVarInt(buf, int32(len(s)))
	return append(buf, s...)
}

// ReadPacket reads a length-prefixed packet and returns its body, which
// starts with the packet id. maxSize <= 0 disables the size check.
func ReadPacket(r Reader, maxSize int) ([]byte, error) {
	_, body, err := ReadFrame(r, maxSize)
	return body, err
}

// ReadFrame reads a length-prefixed packet and returns both the frame as
// received (length prefix included, byte for byte) and the body within it.
func ReadFrame(r Reader, maxSize int) (frame, body []byte, err error) {
	var prefix [MaxVarIntLen]byte
	n, size, err := readVarInt(r, prefix[:])
	if err != nil {
		return nil, nil, err
	}
	if n < 0 {
		return nil, nil, &ProtocolError{Op: "packet", Err: ErrNegativeLength}
	}
	if maxSize > 0 && int(n) > maxSize {
		return nil, nil, &ProtocolError{Op: "packet", Err: fmt.Errorf("%w: %d > %d", ErrPacketTooLarge, n, maxSize)}
	}

	frame = make([]byte, size+int(n))
	copy(frame, prefix[:size])
	if _, err := io.ReadFull(r, frame[size:]); err != nil {
		return nil, nil, readError("packet", err)
	}
	return frame, frame[size:], nil
}

// AppendPacket appends body framed with its VarInt length to buf.
func AppendPacket(buf, body []byte) []byte {
	buf = AppendVarInt(buf, int32(len(body)))
	return append(buf, body...)
}

// WritePacket writes body framed with its VarInt length in a single write.
func WritePacket(w io.Writer, body []byte) error {
	_, err := w.Write(AppendPacket(make([]byte, 0, len(body)+MaxVarIntLen), body))
	return err
}

// readError turns a short read into a ProtocolError and passes I/O errors through.
func readError(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &ProtocolError{Op: op, Err: io.ErrUnexpectedEOF}
	}
	return err
}
