// Package protocol defines the obs-websocket v5 wire format: the
// envelope, the opcode payloads the client cares about, and the
// authentication digest.
package protocol

import (
	"encoding/json"
	"fmt"
)

// RPCVersion is the only protocol revision this client speaks.
const RPCVersion = 1

// Opcodes used by the v5 protocol. Batch opcodes (8 and 9) are listed
// for completeness; the client never sends batches.
const (
	OpHello           = 0
	OpIdentify        = 1
	OpIdentified      = 2
	OpReidentify      = 3
	OpEvent           = 5
	OpRequest         = 6
	OpRequestResponse = 7
	OpRequestBatch    = 8
	OpBatchResponse   = 9
)

// Envelope is the outer frame shape shared by every message.
type Envelope struct {
	Op   int             `json:"op"`
	Data json.RawMessage `json:"d"`
}

// Authentication carries the challenge material from a Hello frame.
// Absent when the server has no password configured.
type Authentication struct {
	Challenge string `json:"challenge"`
	Salt      string `json:"salt"`
}

// Hello is the server's opening frame.
type Hello struct {
	OBSWebSocketVersion string          `json:"obsWebSocketVersion"`
	RPCVersion          int             `json:"rpcVersion"`
	Authentication      *Authentication `json:"authentication,omitempty"`
}

// Identify is the client's reply to Hello.
type Identify struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions,omitempty"`
}

// Identified confirms the handshake.
type Identified struct {
	NegotiatedRPCVersion int `json:"negotiatedRpcVersion"`
}

// Request is an outbound opcode 6 payload.
type Request struct {
	RequestType string          `json:"requestType"`
	RequestID   string          `json:"requestId"`
	RequestData json.RawMessage `json:"requestData,omitempty"`
}

// RequestStatus reports the outcome of a request.
type RequestStatus struct {
	Result  bool   `json:"result"`
	Code    int    `json:"code"`
	Comment string `json:"comment,omitempty"`
}

// RequestResponse is an inbound opcode 7 payload.
type RequestResponse struct {
	RequestType   string          `json:"requestType"`
	RequestID     string          `json:"requestId"`
	RequestStatus RequestStatus   `json:"requestStatus"`
	ResponseData  json.RawMessage `json:"responseData,omitempty"`
}

// Event is an inbound opcode 5 payload.
type Event struct {
	EventType   string          `json:"eventType"`
	EventIntent int             `json:"eventIntent"`
	EventData   json.RawMessage `json:"eventData,omitempty"`
}

// Message is a decoded inbound frame. Exactly one of the payload
// fields matching Op is populated.
type Message struct {
	Op         int
	Hello      *Hello
	Identified *Identified
	Event      *Event
	Response   *RequestResponse
}

// Decode parses one inbound frame. Opcodes the client never receives
// in a well-behaved session (Identify, Request, batches) are rejected
// so protocol violations surface immediately instead of being dropped.
func Decode(data []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	msg := &Message{Op: env.Op}
	switch env.Op {
	case OpHello:
		msg.Hello = &Hello{}
		if err := json.Unmarshal(env.Data, msg.Hello); err != nil {
			return nil, fmt.Errorf("decode hello: %w", err)
		}
	case OpIdentified:
		msg.Identified = &Identified{}
		if err := json.Unmarshal(env.Data, msg.Identified); err != nil {
			return nil, fmt.Errorf("decode identified: %w", err)
		}
	case OpEvent:
		msg.Event = &Event{}
		if err := json.Unmarshal(env.Data, msg.Event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
	case OpRequestResponse:
		msg.Response = &RequestResponse{}
		if err := json.Unmarshal(env.Data, msg.Response); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if msg.Response.RequestID == "" {
			return nil, fmt.Errorf("response missing requestId")
		}
	default:
		return nil, fmt.Errorf("unexpected opcode %d", env.Op)
	}
	return msg, nil
}

// Encode wraps payload in an envelope for the given opcode.
func Encode(op int, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode op %d payload: %w", op, err)
	}
	return json.Marshal(Envelope{Op: op, Data: data})
}
