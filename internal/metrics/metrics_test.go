package metrics

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu      sync.Mutex
	records []Record
}

func (s *captureSink) Emit(update int, values Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Record{Update: update, Values: values})
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestJSONLSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	sink, err := NewJSONLSink(path, "run-1")
	if err != nil {
		t.Fatal(err)
	}

	sink.Emit(0, Values{"total_loss": 1.5})
	sink.Emit(1, Values{"total_loss": 1.25, "dormancy/actor_0": 0.1})
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var records []jsonlRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec jsonlRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("bad JSONL line: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].RunID != "run-1" || records[0].Update != 0 {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[1].Metrics["dormancy/actor_0"] != 0.1 {
		t.Errorf("metric value lost in round trip: %+v", records[1])
	}
}

func TestNilJSONLSinkIsSafe(t *testing.T) {
	var sink *JSONLSink
	sink.Emit(0, Values{"x": 1})
	if err := sink.Close(); err != nil {
		t.Errorf("nil sink Close: %v", err)
	}
}

func TestDispatcherDelivers(t *testing.T) {
	inner := &captureSink{}
	d := NewDispatcher(inner, 8)

	d.Emit(0, Values{"a": 1})
	d.Emit(1, Values{"a": 2})
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if inner.len() != 2 {
		t.Fatalf("delivered %d records, want 2", inner.len())
	}
}

// slowSink blocks deliveries so the dispatcher buffer fills up.
type slowSink struct {
	captureSink
	release chan struct{}
}

func (s *slowSink) Emit(update int, values Values) {
	<-s.release
	s.captureSink.Emit(update, values)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	inner := &slowSink{release: make(chan struct{})}
	d := NewDispatcher(inner, 1)

	// One record in flight, one buffered, the rest dropped. Emit never
	// blocks the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			d.Emit(i, Values{"a": float64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a saturated dispatcher")
	}

	close(inner.release)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if got := inner.len(); got >= 50 {
		t.Errorf("expected dropped records, got all %d", got)
	}
	if got := inner.len(); got == 0 {
		t.Error("expected at least one delivered record")
	}
}

func TestMultiFansOut(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	m := Multi{a, b}
	m.Emit(3, Values{"x": 1})
	if a.len() != 1 || b.len() != 1 {
		t.Error("Multi must deliver to every sink")
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteSinkPersistsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	sink, err := NewSQLiteSink(path, "run-2")
	if err != nil {
		t.Fatal(err)
	}

	sink.Emit(0, Values{"total_loss": 2.5, "entropy": 1.1})
	sink.Emit(1, Values{"total_loss": 2.0})
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	check, err := NewSQLiteSink(path, "run-2")
	if err != nil {
		t.Fatal(err)
	}
	defer check.Close()

	var count int
	if err := check.db.QueryRow(`SELECT COUNT(*) FROM update_metrics WHERE run_id = ?`, "run-2").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("got %d rows, want 3", count)
	}

	var value float64
	if err := check.db.QueryRow(
		`SELECT value FROM update_metrics WHERE run_id = ? AND update_idx = 1 AND name = ?`,
		"run-2", "total_loss").Scan(&value); err != nil {
		t.Fatal(err)
	}
	if value != 2.0 {
		t.Errorf("total_loss at update 1 = %g, want 2.0", value)
	}
}

func TestServerEndpoints(t *testing.T) {
	s := NewServer("run-3")
	s.Emit(4, Values{"total_loss": 0.5})

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var payload struct {
		RunID   string             `json:"run_id"`
		Update  int                `json:"update"`
		Metrics map[string]float64 `json:"metrics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.RunID != "run-3" || payload.Update != 4 || payload.Metrics["total_loss"] != 0.5 {
		t.Errorf("unexpected metrics payload: %+v", payload)
	}

	resp, err = http.Post(ts.URL+"/stats", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /stats status %d, want 405", resp.StatusCode)
	}
}
