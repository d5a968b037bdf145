package hub

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"epinet/internal/service"
)

// nextLine reads lines from r until one has the given prefix
func nextLine(r *bufio.Reader, prefix string) (string, error) {
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line), nil
		}
	}
}

func readUntil(t *testing.T, r *bufio.Reader, prefix string) string {
	t.Helper()
	line, err := nextLine(r, prefix)
	if err != nil {
		t.Fatalf("stream ended before %q: %v", prefix, err)
	}
	return line
}

// waitForClients polls until the hub has n clients
func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	h := New().WithInitial(func() service.Event {
		return service.Event{Type: service.EventRunReset, Payload: map[string]int{"tick": 0}}
	})
	go h.Run(ctx)

	server := httptest.NewServer(h)
	t.Cleanup(func() {
		server.CloseClientConnections()
		server.Close()
		cancel()
	})
	return h, server, ctx
}

func TestHubStreamsEvents(t *testing.T) {
	h, server, ctx := newTestHub(t)

	bus := service.NewEventBus()
	go h.Forward(ctx, bus)

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readUntil(t, reader, ": connected")

	if got := readUntil(t, reader, "event:"); got != "event: run_reset" {
		t.Errorf("expected the initial event first, got %q", got)
	}
	if got := readUntil(t, reader, "data:"); got != `data: {"tick":0}` {
		t.Errorf("unexpected initial data %q", got)
	}

	waitForClients(t, h, 1)

	// Forward subscribes asynchronously; keep publishing until one arrives.
	received := make(chan string, 1)
	go func() {
		line, _ := nextLine(reader, "event:")
		received <- line
	}()

	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case line := <-received:
			if line != "event: edge_updated" {
				t.Errorf("expected edge_updated, got %q", line)
			}
			return
		case <-ticker.C:
			bus.Publish(service.Event{
				Type:    service.EventEdgeUpdated,
				Payload: service.EdgeUpdate{From: "A", To: "B", Fraction: 0.5},
			})
		case <-deadline:
			t.Fatal("no event forwarded from the bus")
		}
	}
}

func TestHubClientDisconnect(t *testing.T) {
	h, server, _ := newTestHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	readUntil(t, bufio.NewReader(resp.Body), ": connected")
	waitForClients(t, h, 1)

	cancel()
	resp.Body.Close()
	waitForClients(t, h, 0)
}

func TestEncode(t *testing.T) {
	msg, err := encode(service.Event{Type: service.EventRunPaused, Payload: []int{1, 2}})
	if err != nil {
		t.Fatalf("encode() error: %v", err)
	}
	want := "event: run_paused\ndata: [1,2]\n\n"
	if string(msg) != want {
		t.Errorf("encode() = %q, want %q", msg, want)
	}
}
