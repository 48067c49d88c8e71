package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/tsflow/internal/ts"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()
}

func TestRunRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{ID: "run-1", Graph: "prices", StartedAt: ts.EngineTime(1_000_000)}
	if err := s.WriteRun(ctx, run); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	// Duplicate header writes are ignored, not errors.
	if err := s.WriteRun(ctx, run); err != nil {
		t.Fatalf("duplicate WriteRun() failed: %v", err)
	}

	got, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if got.Graph != "prices" || got.StartedAt != run.StartedAt {
		t.Errorf("ReadRun() = %+v, want %+v", got, run)
	}
	if got.FinishedAt != nil {
		t.Errorf("unfinished run has FinishedAt %v", *got.FinishedAt)
	}

	if err := s.FinishRun(ctx, "run-1", ts.EngineTime(2_000_000)); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}
	got, err = s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() after finish failed: %v", err)
	}
	if got.FinishedAt == nil || *got.FinishedAt != ts.EngineTime(2_000_000) {
		t.Errorf("FinishedAt = %v, want 2000000", got.FinishedAt)
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.ReadRun(context.Background(), "missing"); err == nil {
		t.Fatal("ReadRun() on missing run should fail")
	}
}

func TestTickRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.WriteRun(ctx, Run{ID: "run-1", Graph: "g", StartedAt: 1}); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}

	ticks := []Tick{
		{RunID: "run-1", Seq: 0, Node: "root/src", Kind: "tick", At: 10, Payload: ts.Scalar{V: int64(42)}},
		{RunID: "run-1", Seq: 1, Node: "root/src", Kind: "tick", At: 20, Payload: ts.Scalar{V: 2.5}},
		{RunID: "run-1", Seq: 2, Node: "root/other", Kind: "tick", At: 20, Payload: ts.Scalar{V: "hello"}},
	}
	for _, tick := range ticks {
		if err := s.WriteTick(ctx, tick); err != nil {
			t.Fatalf("WriteTick(%d) failed: %v", tick.Seq, err)
		}
	}

	got, err := s.ReadTicks(ctx, "run-1", "root/src")
	if err != nil {
		t.Fatalf("ReadTicks() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadTicks() returned %d ticks, want 2", len(got))
	}
	if got[0].Payload != (ts.Scalar{V: int64(42)}) {
		t.Errorf("tick 0 payload = %v", got[0].Payload)
	}
	if got[1].Payload != (ts.Scalar{V: 2.5}) {
		t.Errorf("tick 1 payload = %v", got[1].Payload)
	}

	all, err := s.ReadTicks(ctx, "run-1", "")
	if err != nil {
		t.Fatalf("ReadTicks(all) failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ReadTicks(all) returned %d ticks, want 3", len(all))
	}
}

func TestErrorPayloadPersistsAsMessage(t *testing.T) {
	payload, err := marshalPayload(ts.Scalar{V: errFixture("boom")})
	if err != nil {
		t.Fatalf("marshalPayload() failed: %v", err)
	}
	if payload != `"boom"` {
		t.Errorf("payload = %s, want %q", payload, `"boom"`)
	}
}

type errFixture string

func (e errFixture) Error() string { return string(e) }

func TestTombstoneRevival(t *testing.T) {
	v, err := unmarshalPayload(`{"x":1,"y":{"__removed__":true}}`)
	if err != nil {
		t.Fatalf("unmarshalPayload() failed: %v", err)
	}
	delta, ok := v.(ts.DictDelta)
	if !ok {
		t.Fatalf("payload decoded to %T, want DictDelta", v)
	}
	if removed := delta.Removed(); len(removed) != 1 || removed[0] != "y" {
		t.Errorf("Removed() = %v, want [y]", removed)
	}
	if mod := delta.ModifiedKeys(); len(mod) != 1 || mod[0] != "x" {
		t.Errorf("ModifiedKeys() = %v, want [x]", mod)
	}
}

func TestListRunsOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"old", "new"} {
		if err := s.WriteRun(ctx, Run{ID: id, Graph: "g", StartedAt: ts.EngineTime(i + 1)}); err != nil {
			t.Fatalf("WriteRun(%s) failed: %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" {
		t.Errorf("ListRuns() = %v, want most recent first", runs)
	}
}
