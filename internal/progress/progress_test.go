package progress

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestFileWriterSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	w := NewFileWriter(path, "run-1")

	w.UpdateTable(TableProgress{TableKey: "public.users", Status: "running"})
	w.UpdateTable(TableProgress{TableKey: "public.orders", Status: "running"})
	w.UpdateTable(TableProgress{TableKey: "public.users", Status: "reindexed", RowsUpserted: 42})
	w.SetPhase("finished")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("failed to parse snapshot: %v", err)
	}
	if snap.RunID != "run-1" {
		t.Errorf("run id = %q, want run-1", snap.RunID)
	}
	if snap.Phase != "finished" {
		t.Errorf("phase = %q, want finished", snap.Phase)
	}
	if len(snap.Tables) != 2 {
		t.Fatalf("expected 2 table entries, got %d", len(snap.Tables))
	}
	for _, tp := range snap.Tables {
		if tp.TableKey == "public.users" {
			if tp.Status != "reindexed" || tp.RowsUpserted != 42 {
				t.Errorf("users entry not updated in place: %+v", tp)
			}
		}
	}
}

func TestFileWriterBadPathIsSilent(t *testing.T) {
	w := NewFileWriter(string([]byte{0}), "run-1")
	// Must not panic or return an error to the caller.
	w.UpdateTable(TableProgress{TableKey: "public.users", Status: "running"})
}

func TestDashboardStartStop(t *testing.T) {
	d := NewDashboard("127.0.0.1:0")
	if err := d.Start(); err != nil {
		t.Fatalf("failed to start dashboard: %v", err)
	}
	if d.Addr() == "" {
		t.Fatal("dashboard address is empty")
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("failed to stop dashboard: %v", err)
	}
}

func TestDashboardBroadcast(t *testing.T) {
	d := NewDashboard("127.0.0.1:0")
	if err := d.Start(); err != nil {
		t.Fatalf("failed to start dashboard: %v", err)
	}
	defer d.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+d.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Wait for the server to register the client before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for d.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if d.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", d.ClientCount())
	}

	d.PublishTable(EventTableComplete, "run-1", "public.users", TableEventData{
		Status:       "reindexed",
		RowsUpserted: 10,
	})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("failed to parse event: %v", err)
	}
	if ev.Type != EventTableComplete {
		t.Errorf("event type = %q, want %q", ev.Type, EventTableComplete)
	}
	if ev.TableKey != "public.users" {
		t.Errorf("table key = %q, want public.users", ev.TableKey)
	}
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	d := NewDashboard("127.0.0.1:0")
	// Never started: the broadcast loop is not draining, so this exercises
	// the overflow path directly.
	for i := 0; i < 500; i++ {
		d.Publish(Event{Type: EventChunkComplete})
	}
	if got := len(d.broadcast); got != cap(d.broadcast) {
		t.Errorf("buffer length = %d, want %d", got, cap(d.broadcast))
	}
	d.cancel()
}
