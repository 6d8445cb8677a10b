// ABOUTME: JSON-RPC 2.0 envelopes exchanged with the backend subprocess
// ABOUTME: Encodes requests/notifications and decodes responses with easyjson writer/lexer

package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

const jsonRPCVersion = "2.0"

// Response is a decoded JSON-RPC 2.0 reply line.
type Response struct {
	// ID is meaningful only when HasID is true.
	ID     int64
	HasID  bool
	Method string
	Result json.RawMessage
	Error  *RPCError
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// outOfBand reports whether the line is server-initiated traffic rather than
// the reply to a request.
func (r *Response) outOfBand() bool {
	return r.Method != ""
}

// encodeRequest builds a request envelope. A zero id produces a notification.
func encodeRequest(id int64, method string, params map[string]any) ([]byte, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	w := jwriter.Writer{NoEscapeHTML: true}
	w.RawString(`{"jsonrpc":`)
	w.String(jsonRPCVersion)
	if id > 0 {
		w.RawString(`,"id":`)
		w.Int64(id)
	}
	w.RawString(`,"method":`)
	w.String(method)
	w.RawString(`,"params":`)
	w.Raw(raw, nil)
	w.RawByte('}')
	return w.BuildBytes()
}

func marshalParams(params map[string]any) ([]byte, error) {
	if params == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshaling params: %w", err)
	}
	return raw, nil
}

// decodeResponse parses one reply line. Unknown fields are skipped.
func decodeResponse(line []byte) (*Response, error) {
	in := jlexer.Lexer{Data: line}
	resp := &Response{}

	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "id":
			resp.HasID = true
			resp.ID = parseID(in.Raw())
		case "method":
			resp.Method = in.String()
		case "result":
			resp.Result = append(json.RawMessage(nil), in.Raw()...)
		case "error":
			resp.Error = decodeError(&in)
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	in.Consumed()

	if err := in.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return resp, nil
}

func decodeError(in *jlexer.Lexer) *RPCError {
	out := &RPCError{}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "code":
			out.Code = in.Int()
		case "message":
			out.Message = in.String()
		case "data":
			out.Data = append(json.RawMessage(nil), in.Raw()...)
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	return out
}

// parseID accepts numeric ids and numeric strings; anything else maps to -1
// so it can never match an allocated id.
func parseID(raw []byte) int64 {
	id, err := strconv.ParseInt(string(bytes.Trim(raw, `"`)), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
