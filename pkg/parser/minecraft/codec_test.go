// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package minecraft

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	mperrors "github.com/absmach/mcproxy/pkg/errors"
)

func TestVarInt_RoundTrip(t *testing.T) {
	values := []int32{0, 1, 2, 127, 128, 255, 300, 25565, 2097151, 2097152, math.MaxInt32, -1, -300, math.MinInt32}

	for _, v := range values {
		enc := AppendVarInt(nil, v)
		if len(enc) > MaxVarIntLen {
			t.Errorf("encoding of %d is %d bytes", v, len(enc))
		}
		if len(enc) != VarIntSize(v) {
			t.Errorf("VarIntSize(%d) = %d, encoded %d bytes", v, VarIntSize(v), len(enc))
		}
		got, err := ReadVarInt(bytes.NewReader(enc))
		if err != nil {
			t.Errorf("ReadVarInt(%d) error: %v", v, err)
			continue
		}
		if got != v {
			t.Errorf("round trip %d -> %d", v, got)
		}
	}
}

func TestVarInt_Examples(t *testing.T) {
	tests := []struct {
		value int32
		enc   []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xac, 0x02}},
		{25565, []byte{0xdd, 0xc7, 0x01}},
		{math.MaxInt32, []byte{0xff, 0xff, 0xff, 0xff, 0x07}},
		{-1, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
		{math.MinInt32, []byte{0x80, 0x80, 0x80, 0x80, 0x08}},
	}

	for _, tt := range tests {
		if enc := AppendVarInt(nil, tt.value); !bytes.Equal(enc, tt.enc) {
			t.Errorf("AppendVarInt(%d) = % x, want % x", tt.value, enc, tt.enc)
		}
		var buf bytes.Buffer
		if err := WriteVarInt(&buf, tt.value); err != nil {
			t.Fatalf("WriteVarInt(%d) error: %v", tt.value, err)
		}
		if !bytes.Equal(buf.Bytes(), tt.enc) {
			t.Errorf("WriteVarInt(%d) = % x, want % x", tt.value, buf.Bytes(), tt.enc)
		}
		got, err := ReadVarInt(bytes.NewReader(tt.enc))
		if err != nil || got != tt.value {
			t.Errorf("ReadVarInt(% x) = %d, %v, want %d", tt.enc, got, err, tt.value)
		}
	}
}

func TestVarInt_TooBig(t *testing.T) {
	r := bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	_, err := ReadVarInt(r)
	if !errors.Is(err, ErrVarIntTooBig) {
		t.Fatalf("expected ErrVarIntTooBig, got %v", err)
	}
	if !errors.Is(err, mperrors.ErrProtocolViolation) {
		t.Error("expected error to be a protocol violation")
	}
	if r.Len() != 1 {
		t.Errorf("expected exactly 5 bytes consumed, %d left", r.Len())
	}
}

func TestVarInt_Truncated(t *testing.T) {
	_, err := ReadVarInt(bytes.NewReader([]byte{0x80, 0x80}))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Errorf("expected ProtocolError, got %T", err)
	}
}

func TestString_RoundTrip(t *testing.T) {
	values := []string{"", "localhost", "mc.example.com", "héllo wörld", "日本語", string(make([]byte, 300))}

	for _, s := range values {
		got, err := ReadString(bytes.NewReader(AppendString(nil, s)))
		if err != nil {
			t.Errorf("ReadString(%q) error: %v", s, err)
			continue
		}
		if got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}

func TestString_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "length past end", data: []byte{0x0a, 'a', 'b'}, want: io.ErrUnexpectedEOF},
		{name: "huge length", data: []byte{0xff, 0xff, 0xff, 0xff, 0x07}, want: io.ErrUnexpectedEOF},
		{name: "negative length", data: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, want: ErrNegativeLength},
		{name: "invalid utf8", data: []byte{0x02, 0xc3, 0x28}, want: ErrInvalidUTF8},
		{name: "missing length", data: []byte{}, want: io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadString(bytes.NewReader(tt.data))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, mperrors.ErrProtocolViolation) {
				t.Error("expected error to be a protocol violation")
			}
		})
	}
}

func TestString_StreamTruncated(t *testing.T) {
	// bufio.Reader has no Len, so the short read surfaces from io.ReadFull.
	r := bufio.NewReader(bytes.NewReader([]byte{0x05, 'a', 'b'}))
	if _, err := ReadString(r); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadFrame(t *testing.T) {
	body := []byte{0x00, 0x01, 0x02}
	framed := AppendPacket(nil, body)
	trailing := append(append([]byte{}, framed...), 0xaa, 0xbb)

	r := bytes.NewReader(trailing)
	frame, got, err := ReadFrame(r, 0)
	if err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	if !bytes.Equal(frame, framed) {
		t.Errorf("frame = % x, want % x", frame, framed)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("body = % x, want % x", got, body)
	}
	if r.Len() != 2 {
		t.Errorf("ReadFrame consumed past the packet, %d bytes left", r.Len())
	}
}

func TestReadFrame_KeepsOverlongPrefix(t *testing.T) {
	// 0x83 0x00 is a non-minimal encoding of 3.
	raw := []byte{0x83, 0x00, 0x01, 0x02, 0x03}
	frame, body, err := ReadFrame(bytes.NewReader(raw), 0)
	if err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	if !bytes.Equal(frame, raw) {
		t.Errorf("frame = % x, want % x", frame, raw)
	}
	if len(body) != 3 {
		t.Errorf("body length = %d, want 3", len(body))
	}
}

func TestReadPacket_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		maxSize int
		want    error
	}{
		{name: "truncated body", data: []byte{0x05, 0x00, 0x01}, want: io.ErrUnexpectedEOF},
		{name: "too large", data: []byte{0x80, 0x01}, maxSize: 64, want: ErrPacketTooLarge},
		{name: "negative length", data: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, want: ErrNegativeLength},
		{name: "varint too big", data: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, want: ErrVarIntTooBig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPacket(bytes.NewReader(tt.data), tt.maxSize)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestReadPacket_ZeroLength(t *testing.T) {
	body, err := ReadPacket(bytes.NewReader([]byte{0x00}), 0)
	if err != nil {
		t.Fatalf("ReadPacket() error: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("expected empty body, got % x", body)
	}
}

func TestWritePacket(t *testing.T) {
	var buf bytes.Buffer
	body := PingBody(123456)
	if err := WritePacket(&buf, body); err != nil {
		t.Fatalf("WritePacket() error: %v", err)
	}
	want := append([]byte{0x09}, body...)
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("WritePacket = % x, want % x", buf.Bytes(), want)
	}
}

func TestHandshake_RoundTrip(t *testing.T) {
	hs := Handshake{Protocol: 47, Host: "localhost", Port: 25565, Intent: IntentLogin}

	r := bytes.NewReader(hs.Body())
	id, err := ReadVarInt(r)
	if err != nil || id != PacketIDHandshake {
		t.Fatalf("unexpected id %d: %v", id, err)
	}
	got, err := ReadHandshake(r)
	if err != nil {
		t.Fatalf("ReadHandshake() error: %v", err)
	}
	if got != hs {
		t.Errorf("round trip %+v -> %+v", hs, got)
	}
}

func TestHandshake_Truncated(t *testing.T) {
	body := Handshake{Protocol: 47, Host: "localhost", Port: 25565, Intent: IntentStatus}.Body()
	// Drop the intent and one port byte.
	r := bytes.NewReader(body[1 : len(body)-2])
	if _, err := ReadHandshake(r); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadPing(t *testing.T) {
	r := bytes.NewReader(PingBody(-42)[1:])
	v, err := ReadPing(r)
	if err != nil || v != -42 {
		t.Fatalf("ReadPing = %d, %v", v, err)
	}

	if _, err := ReadPing(bytes.NewReader([]byte{1, 2, 3})); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}
