// Package wire implements the wire-protocol boundary of spec §6
// (top boundary): the fixed int32-LE message header, the legacy opcodes,
// and the modern command-message framing (a single JSON document body
// over OP_QUERY against "db.$cmd", replies shaped {ok, code, errmsg} or
// a cursor document). The teacher has no binary framing of its own — it
// speaks bare JSON-over-HTTP via internal/cluster.PostJSON/GetJSON — so
// this package keeps that JSON body codec for the command layer while
// adding the header framing spec §6 mandates on top of it.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	sberrors "github.com/shardbase/shardbase/internal/errors"
)

// Opcode identifies the legacy wire operation, per spec §6.
type Opcode int32

const (
	OpReply       Opcode = 1
	OpQuery       Opcode = 2004
	OpGetMore     Opcode = 2005
	OpInsert      Opcode = 2002
	OpUpdate      Opcode = 2001
	OpDelete      Opcode = 2006
	OpKillCursors Opcode = 2007
	OpCommand     Opcode = 2010
	OpCommandReply Opcode = 2011
)

const headerSize = 16 // 4 int32 fields

// Header is spec §6's fixed message header:
// {len:int32, requestId:int32, responseTo:int32, opcode:int32}, little-endian.
type Header struct {
	Len       int32
	RequestID int32
	ResponseTo int32
	Opcode    Opcode
}

// WriteHeader serializes h in little-endian order.
func WriteHeader(w io.Writer, h Header) error {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Len))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.RequestID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.ResponseTo))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.Opcode))
	_, err := w.Write(buf)
	return err
}

// ReadHeader deserializes a Header from r.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, err
	}
	return Header{
		Len:        int32(binary.LittleEndian.Uint32(buf[0:4])),
		RequestID:  int32(binary.LittleEndian.Uint32(buf[4:8])),
		ResponseTo: int32(binary.LittleEndian.Uint32(buf[8:12])),
		Opcode:     Opcode(binary.LittleEndian.Uint32(buf[12:16])),
	}, nil
}

// Message is a full wire message: header plus raw JSON body, per spec
// §6's "command-style traffic flows over query on db.$cmd with a single
// document body".
type Message struct {
	Header Header
	Body   []byte
}

// WriteMessage writes h.Len computed from len(body)+headerSize, then the
// body, to w.
func WriteMessage(w io.Writer, h Header, body []byte) error {
	h.Len = int32(headerSize + len(body))
	if err := WriteHeader(w, h); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadMessage reads one full framed message from r.
func ReadMessage(r io.Reader) (Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Message{}, err
	}
	bodyLen := int(h.Len) - headerSize
	if bodyLen < 0 {
		return Message{}, sberrors.New(sberrors.CodeBadValue, "wire message length %d smaller than header size", h.Len)
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, err
	}
	return Message{Header: h, Body: body}, nil
}

func (o Opcode) String() string {
	switch o {
	case OpReply:
		return "OP_REPLY"
	case OpQuery:
		return "OP_QUERY"
	case OpGetMore:
		return "OP_GET_MORE"
	case OpInsert:
		return "OP_INSERT"
	case OpUpdate:
		return "OP_UPDATE"
	case OpDelete:
		return "OP_DELETE"
	case OpKillCursors:
		return "OP_KILL_CURSORS"
	case OpCommand:
		return "OP_COMMAND"
	case OpCommandReply:
		return "OP_COMMAND_REPLY"
	default:
		return fmt.Sprintf("OP_UNKNOWN(%d)", int32(o))
	}
}
