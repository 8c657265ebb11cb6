package cdp

import (
	"encoding/json"
	"fmt"
)

// Kind is the shape of a protocol message.
type Kind int

const (
	// KindCommand is a method invocation or an event notification.
	KindCommand Kind = iota
	// KindSuccess is a reply carrying a result.
	KindSuccess
	// KindError is a reply carrying an error descriptor.
	KindError
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is one protocol frame. The three shapes share a struct and are told apart by
// which fields are present:
//
//	command: {id?, method, params, sessionId?}
//	success: {id, result, sessionId?}
//	error:   {id, method?, error: {code, message}, sessionId?}
type Message struct {
	ID        *int64          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ErrorObject    `json:"error,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`

	// Raw holds the frame the message was decoded from. Code that relays messages
	// forwards Raw when it is set, so fields this struct does not model survive. Set
	// it to nil after changing the message.
	Raw json.RawMessage `json:"-"`
}

// ErrorObject is the error descriptor of an error reply.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// IsReply reports whether the message carries a correlation id.
func (m *Message) IsReply() bool {
	return m.ID != nil
}

// Kind classifies the message by shape. A relayed command that carries an id is still a
// command here, even though dispatch treats every message with an id as a reply.
func (m *Message) Kind() Kind {
	switch {
	case m.Error != nil:
		return KindError
	case m.Result != nil:
		return KindSuccess
	case m.Method != "":
		return KindCommand
	case m.ID != nil:
		return KindSuccess
	default:
		return KindCommand
	}
}

// NewCommand builds a command frame. A nil params encodes as an empty object.
func NewCommand(id *int64, method string, params any) (*Message, error) {
	raw, err := encodeParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, Method: method, Params: raw}, nil
}

// DecodeMessage parses one inbound frame.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &DecodeError{Data: excerpt(data), Err: err}
	}
	m.Raw = json.RawMessage(data)
	return &m, nil
}

var emptyObject = json.RawMessage(`{}`)

func encodeParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return emptyObject, nil
	case json.RawMessage:
		if len(p) == 0 {
			return emptyObject, nil
		}
		return p, nil
	case []byte:
		if len(p) == 0 {
			return emptyObject, nil
		}
		return json.RawMessage(p), nil
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("cdp: encode params: %w", err)
	}
	if string(raw) == "null" {
		return emptyObject, nil
	}
	return raw, nil
}

func excerpt(data []byte) string {
	const limit = 256
	if len(data) > limit {
		data = data[:limit]
	}
	return string(data)
}

// Int64 returns a pointer to v, for building messages by hand.
func Int64(v int64) *int64 {
	return &v
}
