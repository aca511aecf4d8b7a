package hub

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tablekit/tablekit/collab"
	"github.com/tablekit/tablekit/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		Hub: config.HubConfig{
			MaxChanges:      100,
			ChangeRetention: time.Hour,
			PingInterval:    30 * time.Second,
		},
	}
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := New(testConfig().Hub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(h.Close)
	return h
}

func TestPublishAndChangesSince(t *testing.T) {
	h := newTestHub(t)
	base := time.Now().Add(-time.Minute)

	h.Publish([]collab.Message{
		{Type: collab.TypeCellChange, TableID: "t1", Field: "a", Value: 1, Timestamp: base.Add(time.Second)},
		{Type: collab.TypeCellChange, TableID: "t2", Field: "b", Value: 2, Timestamp: base.Add(2 * time.Second)},
		{Type: collab.TypeCursor, TableID: "t1", Field: "a", Timestamp: base.Add(3 * time.Second)},
	}, nil)

	all := h.ChangesSince(base, "")
	if len(all) != 2 {
		t.Fatalf("stored %d changes, want 2 (cursor traffic is not stored)", len(all))
	}

	t1 := h.ChangesSince(base, "t1")
	if len(t1) != 1 || t1[0].Field != "a" {
		t.Errorf("t1 changes = %v", t1)
	}

	late := h.ChangesSince(base.Add(90*time.Second), "")
	if len(late) != 0 {
		t.Errorf("future since returned %v", late)
	}
}

func TestChangeLogBound(t *testing.T) {
	cfg := testConfig().Hub
	cfg.MaxChanges = 3
	h := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer h.Close()

	base := time.Now()
	for i := 0; i < 5; i++ {
		h.Publish([]collab.Message{{
			Type: collab.TypeCellChange, TableID: "t", Value: i,
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		}}, nil)
	}

	got := h.ChangesSince(base.Add(-time.Second), "t")
	if len(got) != 3 {
		t.Fatalf("stored %d changes, want 3", len(got))
	}
	// Oldest evicted first.
	if got[0].Value.(int) != 2 || got[2].Value.(int) != 4 {
		t.Errorf("kept = %v", got)
	}
}

func TestHTTPChangesRoundTrip(t *testing.T) {
	h := newTestHub(t)
	srv := httptest.NewServer(NewServer(h, testConfig()).Router())
	defer srv.Close()

	since := time.Now().Add(-time.Second).UnixMilli()

	payload := map[string]any{
		"changes": []map[string]any{
			{"type": "cell-change", "rowIndex": 2, "field": "name", "value": "x"},
		},
		"user":    map[string]any{"id": "u1", "name": "Alice"},
		"tableId": "t1",
	}
	body, _ := json.Marshal(payload)
	resp, err := http.Post(srv.URL+"/changes", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("POST status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/changes?since=" + strconv.FormatInt(since, 10) + "&tableId=t1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var env struct {
		Changes []collab.Message `json:"changes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Changes) != 1 {
		t.Fatalf("changes = %v", env.Changes)
	}
	got := env.Changes[0]
	// The hub stamps timestamps and fills the batch identity onto each
	// change.
	if got.User.ID != "u1" || got.TableID != "t1" || got.Timestamp.IsZero() {
		t.Errorf("change = %+v", got)
	}
}

func TestHTTPChangesBadRequests(t *testing.T) {
	h := newTestHub(t)
	srv := httptest.NewServer(NewServer(h, testConfig()).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/changes?since=tomorrow")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad since status = %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/changes", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad payload status = %d", resp.StatusCode)
	}
}

func TestWebSocketRelay(t *testing.T) {
	h := newTestHub(t)
	srv := httptest.NewServer(NewServer(h, testConfig()).Router())
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := collab.DialWebSocket(wsURL, collab.User{ID: "u-a"}, "t1", log)
	defer a.Close()
	b := collab.DialWebSocket(wsURL, collab.User{ID: "u-b"}, "t1", log)
	defer b.Close()

	received := make(chan collab.Message, 16)
	b.OnMessage(func(msg collab.Message) { received <- msg })

	waitForClients(t, h, 2)

	if err := a.Send(collab.Message{
		Type: collab.TypeCellChange, User: collab.User{ID: "u-a"},
		TableID: "t1", RowIndex: 3, Field: "name", Value: "remote",
	}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-received:
			if msg.Type == collab.TypeCellChange {
				if msg.User.ID != "u-a" || msg.Field != "name" || msg.Value != "remote" {
					t.Fatalf("relayed = %+v", msg)
				}
				return
			}
			// Presence announcements may arrive first.
		case <-deadline:
			t.Fatal("cell change never relayed")
		}
	}
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("clients = %d, want %d", h.ClientCount(), n)
}
