// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package minecraft

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/absmach/mcproxy/pkg/routing"
)

// Packet ids. The same id means different things depending on protocol state.
const (
	PacketIDHandshake      int32 = 0x00
	PacketIDStatusRequest  int32 = 0x00
	PacketIDStatusResponse int32 = 0x00
	PacketIDPing           int32 = 0x01
)

// Handshake intents.
const (
	IntentStatus int32 = 1
	IntentLogin  int32 = 2
)

// Packet is one inbound packet. Body includes the encoded id; Frame is the
// packet as received, length prefix included.
type Packet struct {
	ID    int32
	Body  []byte
	Frame []byte
}

// readPacket reads one framed packet and decodes its id.
func readPacket(r Reader, maxSize int) (Packet, *bytes.Reader, error) {
	frame, body, err := ReadFrame(r, maxSize)
	if err != nil {
		return Packet{}, nil, err
	}
	payload := bytes.NewReader(body)
	id, err := ReadVarInt(payload)
	if err != nil {
		return Packet{}, nil, err
	}
	return Packet{ID: id, Body: body, Frame: frame}, payload, nil
}

// Handshake is the first packet a client sends.
type Handshake struct {
	Protocol int32
	Host     string
	Port     uint16
	Intent   int32
}

// ReadHandshake decodes handshake fields from a body positioned after the id.
func ReadHandshake(r Reader) (Handshake, error) {
	var h Handshake
	var err error

	if h.Protocol, err = ReadVarInt(r); err != nil {
		return h, err
	}
	if h.Host, err = ReadString(r); err != nil {
		return h, err
	}
	var port [2]byte
	if _, err = io.ReadFull(r, port[:]); err != nil {
		return h, readError("handshake", err)
	}
	h.Port = binary.BigEndian.Uint16(port[:])
	if h.Intent, err = ReadVarInt(r); err != nil {
		return h, err
	}
	return h, nil
}

// Body encodes the handshake as a packet body, id included.
func (h Handshake) Body() []byte {
	buf := AppendVarInt(nil, PacketIDHandshake)
	buf = AppendVarInt(buf, h.Protocol)
	buf = AppendString(buf, h.Host)
	buf = binary.BigEndian.AppendUint16(buf, h.Port)
	return AppendVarInt(buf, h.Intent)
}

// ReadPing decodes the 8-byte ping payload from a body positioned after the id.
func ReadPing(r Reader) (int64, error) {
	var payload [8]byte
	if _, err := io.ReadFull(r, payload[:]); err != nil {
		return 0, readError("ping", err)
	}
	return int64(binary.BigEndian.Uint64(payload[:])), nil
}

// PingBody encodes a ping packet body, id included.
func PingBody(payload int64) []byte {
	buf := AppendVarInt(nil, PacketIDPing)
	return binary.BigEndian.AppendUint64(buf, uint64(payload))
}

type statusVersion struct {
	Name     string `json:"name"`
	Protocol int32  `json:"protocol"`
}

type status struct {
	Version     statusVersion    `json:"version"`
	Description any              `json:"description"`
	Players     *routing.Players `json:"players,omitempty"`
	Favicon     *string          `json:"favicon,omitempty"`
}

// StatusJSON renders the status document for desc. The protocol number comes
// from desc, then from fallback (the client's handshake), then defaults to 0.
func StatusJSON(desc *routing.StatusDescriptor, fallback *int32) ([]byte, error) {
	s := status{
		Description: desc.Description,
		Players:     desc.Players,
		Favicon:     desc.Favicon,
	}
	if desc.Version.Name != nil {
		s.Version.Name = *desc.Version.Name
	}
	switch {
	case desc.Version.Protocol != nil:
		s.Version.Protocol = *desc.Version.Protocol
	case fallback != nil:
		s.Version.Protocol = *fallback
	}
	if s.Description == nil {
		s.Description = ""
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode status: %w", err)
	}
	return data, nil
}

// StatusResponse builds the framed status response packet for desc.
func StatusResponse(desc *routing.StatusDescriptor, fallback *int32) ([]byte, error) {
	doc, err := StatusJSON(desc, fallback)
	if err != nil {
		return nil, err
	}
	body := AppendVarInt(make([]byte, 0, len(doc)+2*MaxVarIntLen), PacketIDStatusResponse)
	body = AppendVarInt(body, int32(len(doc)))
	body = append(body, doc...)
	return AppendPacket(nil, body), nil
}
