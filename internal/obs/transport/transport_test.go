package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{Subprotocols: []string{"obswebsocket.json"}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(messageType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDialNegotiatesSubprotocol(t *testing.T) {
	server := echoServer(t)

	session, err := Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer session.Close()

	if got := session.Subprotocol(); got != "obswebsocket.json" {
		t.Fatalf("Subprotocol() = %q, want obswebsocket.json", got)
	}
}

func TestWriteTextRoundTrip(t *testing.T) {
	server := echoServer(t)

	session, err := Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer session.Close()

	if err := session.WriteText([]byte(`{"op":6}`)); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	data, err := session.ReadText()
	if err != nil {
		t.Fatalf("ReadText failed: %v", err)
	}
	if string(data) != `{"op":6}` {
		t.Fatalf("ReadText = %q, want %q", data, `{"op":6}`)
	}
}

func TestConcurrentWrites(t *testing.T) {
	server := echoServer(t)

	session, err := Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer session.Close()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := session.WriteText([]byte("ping")); err != nil {
				t.Errorf("WriteText failed: %v", err)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		if _, err := session.ReadText(); err != nil {
			t.Fatalf("ReadText %d failed: %v", i, err)
		}
	}
}

func TestCloseMakesWritesFail(t *testing.T) {
	server := echoServer(t)

	session, err := Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if err := session.WriteText([]byte("x")); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("WriteText after close = %v, want ErrConnectionClosed", err)
	}
	if _, err := session.ReadText(); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("ReadText after close = %v, want ErrConnectionClosed", err)
	}
}

func TestServerCloseSurfacesAsConnectionClosed(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	t.Cleanup(server.Close)

	session, err := Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer session.Close()

	if _, err := session.ReadText(); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("ReadText = %v, want ErrConnectionClosed", err)
	}
}
