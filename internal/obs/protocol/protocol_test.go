package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeHello(t *testing.T) {
	frame := `{"op":0,"d":{"obsWebSocketVersion":"5.3.4","rpcVersion":1,"authentication":{"challenge":"abc","salt":"def"}}}`

	msg, err := Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Op != OpHello || msg.Hello == nil {
		t.Fatalf("expected hello message, got op %d", msg.Op)
	}
	if msg.Hello.RPCVersion != 1 {
		t.Fatalf("RPCVersion = %d, want 1", msg.Hello.RPCVersion)
	}
	if msg.Hello.Authentication == nil || msg.Hello.Authentication.Challenge != "abc" {
		t.Fatalf("authentication not decoded: %+v", msg.Hello.Authentication)
	}
}

func TestDecodeHelloWithoutAuth(t *testing.T) {
	msg, err := Decode([]byte(`{"op":0,"d":{"obsWebSocketVersion":"5.3.4","rpcVersion":1}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Hello.Authentication != nil {
		t.Fatalf("expected nil authentication, got %+v", msg.Hello.Authentication)
	}
}

func TestDecodeResponse(t *testing.T) {
	frame := `{"op":7,"d":{"requestType":"CreateScene","requestId":"r1","requestStatus":{"result":false,"code":601,"comment":"scene exists"}}}`

	msg, err := Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Response == nil {
		t.Fatal("expected response payload")
	}
	if msg.Response.RequestStatus.Code != 601 {
		t.Fatalf("status code = %d, want 601", msg.Response.RequestStatus.Code)
	}
	if msg.Response.RequestStatus.Result {
		t.Fatal("expected result=false")
	}
}

func TestDecodeResponseRequiresRequestID(t *testing.T) {
	_, err := Decode([]byte(`{"op":7,"d":{"requestType":"GetVersion","requestStatus":{"result":true,"code":100}}}`))
	if err == nil || !strings.Contains(err.Error(), "requestId") {
		t.Fatalf("expected missing requestId error, got %v", err)
	}
}

func TestDecodeEvent(t *testing.T) {
	frame := `{"op":5,"d":{"eventType":"RecordStateChanged","eventIntent":64,"eventData":{"outputActive":true,"outputState":"OBS_WEBSOCKET_OUTPUT_STARTED"}}}`

	msg, err := Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Event == nil || msg.Event.EventType != "RecordStateChanged" {
		t.Fatalf("event not decoded: %+v", msg.Event)
	}
	var payload struct {
		OutputActive bool `json:"outputActive"`
	}
	if err := json.Unmarshal(msg.Event.EventData, &payload); err != nil {
		t.Fatalf("event data unmarshal failed: %v", err)
	}
	if !payload.OutputActive {
		t.Fatal("expected outputActive=true")
	}
}

func TestDecodeRejectsUnexpectedOpcodes(t *testing.T) {
	for _, frame := range []string{
		`{"op":1,"d":{"rpcVersion":1}}`,
		`{"op":6,"d":{"requestType":"GetVersion","requestId":"r1"}}`,
		`{"op":9,"d":{}}`,
	} {
		if _, err := Decode([]byte(frame)); err == nil {
			t.Fatalf("Decode(%s) succeeded, want error", frame)
		}
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	if _, err := Decode([]byte(`{"op":5,"d"`)); err == nil {
		t.Fatal("expected envelope decode error")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	data, err := Encode(OpRequest, Request{RequestType: "StartRecord", RequestID: "r7"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope failed: %v", err)
	}
	if env.Op != OpRequest {
		t.Fatalf("op = %d, want %d", env.Op, OpRequest)
	}
	var req Request
	if err := json.Unmarshal(env.Data, &req); err != nil {
		t.Fatalf("unmarshal payload failed: %v", err)
	}
	if req.RequestType != "StartRecord" || req.RequestID != "r7" {
		t.Fatalf("payload round trip mismatch: %+v", req)
	}
}

func TestAuthToken(t *testing.T) {
	tests := []struct {
		name      string
		password  string
		salt      string
		challenge string
		want      string
	}{
		{"basic", "pw", "abc", "def", "Y64PCsCyT/CqWEeA31kvPoa3dNHXZAxUaut5sHZXmSs="},
		{"longer inputs", "supersecret", "salt123", "challenge456", "V8pVriFPEtnaK7wzQPlqOgkXegTAwSevsIeJLiFx/Nw="},
		{"empty inputs", "", "", "", "XEB0z23rR/W2r5xf4+C70OQrlZb+iKxU1ca275h+DyA="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AuthToken(tt.password, tt.salt, tt.challenge); got != tt.want {
				t.Fatalf("AuthToken(%q, %q, %q) = %q, want %q", tt.password, tt.salt, tt.challenge, got, tt.want)
			}
		})
	}
}
