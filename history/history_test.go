package history

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := &Run{
		Started:     time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC),
		Duration:    1500 * time.Millisecond,
		ProgramHash: "abc123",
		Source:      "forward\nstop",
		Steps:       2,
		Reason:      "stop",
		Output:      []string{"Run stopped after 1 actions!"},
	}
	if err := s.Record(ctx, run); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if run.ID == "" {
		t.Fatal("Record did not assign an ID")
	}

	got, err := s.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Started.Equal(run.Started) {
		t.Errorf("Started = %v, want %v", got.Started, run.Started)
	}
	want := *run
	want.Started = got.Started
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("Get = %+v, want %+v", got, run)
	}

	byPrefix, err := s.Get(ctx, run.ID[:8])
	if err != nil || byPrefix.ID != run.ID {
		t.Errorf("Get by prefix = %v, %v", byPrefix, err)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Get error = %v, want ErrRunNotFound", err)
	}
	if _, err := s.Get(context.Background(), ""); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Get(\"\") error = %v, want ErrRunNotFound", err)
	}
}

func TestGetAmbiguousPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"aa01", "aa02"} {
		if err := s.Record(ctx, &Run{ID: id, Reason: "end"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Get(ctx, "aa"); !errors.Is(err, ErrAmbiguousID) {
		t.Errorf("Get(aa) error = %v, want ErrAmbiguousID", err)
	}
	if r, err := s.Get(ctx, "aa02"); err != nil || r.ID != "aa02" {
		t.Errorf("Get(aa02) = %v, %v", r, err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		run := &Run{ID: id, Started: base.Add(time.Duration(i) * time.Second), Reason: "end"}
		if err := s.Record(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if want := []string{"third", "second", "first"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("List ids = %v, want %v", ids, want)
	}
	if len(runs[0].Output) != 0 || runs[0].Output == nil {
		t.Errorf("empty output decoded as %#v", runs[0].Output)
	}

	limited, err := s.List(ctx, 2)
	if err != nil || len(limited) != 2 {
		t.Errorf("List(2) = %d runs, %v", len(limited), err)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Record(ctx, &Run{ID: "gone", Reason: "end"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "gone"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second Delete = %v, want ErrRunNotFound", err)
	}
}

func TestDuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Record(ctx, &Run{ID: "dup"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, &Run{ID: "dup"}); err == nil {
		t.Error("recording a duplicate ID succeeded")
	}
}
