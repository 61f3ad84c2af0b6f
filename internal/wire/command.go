package wire

import (
	"context"
	"encoding/json"

	"github.com/shardbase/shardbase/internal/cluster"
	sberrors "github.com/shardbase/shardbase/internal/errors"
)

// CommandRequest is the JSON body of an OP_QUERY against "db.$cmd", per
// spec §6: "a single document body".
type CommandRequest struct {
	Database string          `json:"$db"`
	Body     json.RawMessage `json:"body"`
}

// CommandReply is the JSON body of the response, per spec §6: "a single
// document with at least ok ∈ {0,1} and, on failure, code:int32 and
// errmsg:string".
type CommandReply struct {
	OK     int             `json:"ok"`
	Code   int             `json:"code,omitempty"`
	ErrMsg string          `json:"errmsg,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// CursorBatch is the shape spec §6 assigns cursor-bearing replies:
// {cursor:{id, ns, firstBatch|nextBatch}}.
type CursorBatch struct {
	Cursor struct {
		ID         int64             `json:"id"`
		NS         string            `json:"ns"`
		FirstBatch []json.RawMessage `json:"firstBatch,omitempty"`
		NextBatch  []json.RawMessage `json:"nextBatch,omitempty"`
	} `json:"cursor"`
}

// OK builds a successful CommandReply wrapping body.
func OK(body any) (CommandReply, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return CommandReply{}, err
	}
	return CommandReply{OK: 1, Body: raw}, nil
}

// Fail builds a failing CommandReply from err, extracting the numeric
// code when err is one of internal/errors' typed errors.
func Fail(err error) CommandReply {
	return CommandReply{OK: 0, Code: int(sberrors.CodeOf(err)), ErrMsg: err.Error()}
}

// EncodeCommand marshals a request body into a framed Message with the
// given opcode (OpQuery for legacy command dispatch, OpCommand for the
// modern framing).
func EncodeCommand(requestID int32, database string, body any, opcode Opcode) (Message, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Message{}, err
	}
	req := CommandRequest{Database: database, Body: raw}
	payload, err := json.Marshal(req)
	if err != nil {
		return Message{}, err
	}
	return Message{Header: Header{RequestID: requestID, Opcode: opcode}, Body: payload}, nil
}

// DecodeCommand unmarshals a Message's body into a CommandRequest.
func DecodeCommand(msg Message) (CommandRequest, error) {
	var req CommandRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		return CommandRequest{}, err
	}
	return req, nil
}

// Transport sends a command over the teacher's JSON-over-HTTP substrate
// (internal/cluster.PostJSON), the way the teacher's nodes exchange JSON
// bodies. Send posts the body as plain JSON without this package's
// header/opcode envelope, and applies the {ok,code,errmsg} reply contract
// to the response.
type Transport struct {
	nextRequestID int32
}

func NewTransport() *Transport { return &Transport{} }

// Send posts body as a command to addr/path and decodes a CommandReply,
// surfacing a non-ok reply as a *sberrors.Error carrying the remote Code.
func (t *Transport) Send(ctx context.Context, addr, path, database string, body any) (CommandReply, error) {
	t.nextRequestID++
	var reply CommandReply
	if err := cluster.PostJSON(ctx, "http://"+addr+path, body, &reply); err != nil {
		return CommandReply{}, err
	}
	if reply.OK != 1 {
		return reply, sberrors.New(sberrors.Code(reply.Code), "%s", reply.ErrMsg)
	}
	return reply, nil
}
