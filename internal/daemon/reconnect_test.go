package daemon

import (
	"context"
	"errors"
	"testing"

	"reel/internal/logging"
	"reel/internal/obs"
	"reel/internal/obs/obstest"
	"reel/internal/testsupport"
)

func TestAdoptClientReleasesSupersededConnection(t *testing.T) {
	server := obstest.New(t)
	cfg := testsupport.NewConfig(t, testsupport.WithWebsocketURL(server.URL()))

	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	dial := func() *obs.Client {
		client, err := obs.Connect(context.Background(), obs.Options{URL: server.URL()})
		if err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		t.Cleanup(func() { client.Close() })
		return client
	}

	first := dial()
	second := dial()
	d.adoptClient(first)
	d.adoptClient(second)

	if _, err := first.Call(context.Background(), "GetVersion", nil); !errors.Is(err, obs.ErrClientClosed) {
		t.Fatalf("superseded client Call = %v, want ErrClientClosed", err)
	}
	if _, err := second.Call(context.Background(), "GetVersion", nil); errors.Is(err, obs.ErrClientClosed) {
		t.Fatal("adopted client must stay open")
	}
}
