package stream

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestIdentity(t *testing.T) {
	e := &Entry{ID: "a"}
	out, err := Identity()(context.Background(), e)
	if err != nil {
		t.Fatalf("Identity: err = %v", err)
	}
	if out != e {
		t.Errorf("Identity: got %v, want same entry", out)
	}
}

func TestTap(t *testing.T) {
	var seen []string
	stage := Tap(func(_ context.Context, e *Entry) { seen = append(seen, e.ID) })
	if _, err := stage(context.Background(), &Entry{ID: "x"}); err != nil {
		t.Fatalf("Tap: err = %v", err)
	}
	if len(seen) != 1 || seen[0] != "x" {
		t.Errorf("Tap: fn saw %v", seen)
	}
}

func TestTag_CopiesMap(t *testing.T) {
	tags := map[string]any{"lang": "en"}
	stage := Tag(tags)
	tags["lang"] = "pl"

	e, err := stage(context.Background(), &Entry{})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := e.Get("lang"); v != "en" {
		t.Errorf("lang: got %v, want en", v)
	}
}

func TestTag_NestedValuesArePerEntry(t *testing.T) {
	tags := map[string]any{
		"speaker": map[string]any{"id": "s1"},
		"labels":  []any{"clean"},
	}
	stage := Tag(tags)
	tags["speaker"].(map[string]any)["id"] = "caller"

	ctx := context.Background()
	first, err := stage(ctx, &Entry{ID: "a"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := stage(ctx, &Entry{ID: "b"})
	if err != nil {
		t.Fatal(err)
	}

	v, _ := first.Get("speaker")
	v.(map[string]any)["id"] = "changed"
	l, _ := first.Get("labels")
	l.([]any)[0] = "noisy"

	v, _ = second.Get("speaker")
	if id := v.(map[string]any)["id"]; id != "s1" {
		t.Errorf("second speaker id: got %v, want s1", id)
	}
	l, _ = second.Get("labels")
	if label := l.([]any)[0]; label != "clean" {
		t.Errorf("second label: got %v, want clean", label)
	}
}

func TestAttachTags_PreservesOrderAndCount(t *testing.T) {
	ctx := context.Background()
	src := Entries("src", &Entry{ID: "1"}, &Entry{ID: "2"}, &Entry{ID: "3"})
	s := AttachTags(FromSource(src), map[string]any{"task": "asr", "weight": 2})

	it, err := s.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Collect(ctx, it)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("count: got %d, want 3", len(got))
	}
	for i, want := range []string{"1", "2", "3"} {
		if got[i].ID != want {
			t.Errorf("[%d] ID: got %q, want %q", i, got[i].ID, want)
		}
		if v, _ := got[i].Get("task"); v != "asr" {
			t.Errorf("[%d] task: got %v", i, v)
		}
		if v, _ := got[i].Get("weight"); v != 2 {
			t.Errorf("[%d] weight: got %v", i, v)
		}
		if got[i].Origin != "src" {
			t.Errorf("[%d] origin: got %q", i, got[i].Origin)
		}
	}
}

func TestAttachTags_DoesNotLeakIntoSource(t *testing.T) {
	ctx := context.Background()
	base := FromSource(Entries("src", &Entry{ID: "1"}))
	tagged := AttachTags(base, map[string]any{"k": "v"})

	pull(t, ctx, tagged, 1)
	plain := pull(t, ctx, base, 1)
	if _, ok := plain[0].Get("k"); ok {
		t.Error("untagged stream saw tag from a sibling wrapper")
	}
}

func TestAttachTags_EmptyIsNoop(t *testing.T) {
	s := FromSource(Entries("src"))
	if AttachTags(s, nil) != s {
		t.Error("AttachTags(nil) should return the input stream")
	}
}

func TestMap_StageError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	s := Map(FromSource(Entries("src", &Entry{ID: "1"})), func(context.Context, *Entry) (*Entry, error) {
		return nil, boom
	})
	it, err := s.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	if _, err := it.Next(ctx); !errors.Is(err, boom) {
		t.Errorf("Next: got %v, want %v", err, boom)
	}
}

func TestRepeat_Cycles(t *testing.T) {
	ctx := context.Background()
	tr := newOpenTracker()
	s := Repeat(tracked("a", 2, tr))
	if s.Finite() {
		t.Error("Repeat should be infinite")
	}

	got := ids(pull(t, ctx, s, 5))
	want := []string{"a-0", "a-1", "a-0", "a-1", "a-0"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
	if tr.opens["a"] != 3 {
		t.Errorf("opens: got %d, want 3", tr.opens["a"])
	}
	if tr.current != 0 {
		t.Errorf("open iterators after close: %d", tr.current)
	}
}

func TestRepeat_EmptyFails(t *testing.T) {
	ctx := context.Background()
	it, err := Repeat(FromSource(Entries("empty"))).Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	if _, err := it.Next(ctx); !errors.Is(err, ErrEmptyStream) {
		t.Errorf("Next: got %v, want ErrEmptyStream", err)
	}
}

func TestRepeat_InfiniteIsUnchanged(t *testing.T) {
	s := Repeat(FromSource(Entries("a", &Entry{ID: "1"})))
	if Repeat(s) != s {
		t.Error("Repeat of an infinite stream should return it unchanged")
	}
}

type passSource struct {
	passes []int
}

func (s *passSource) Name() string                     { return "pass" }
func (s *passSource) Len(context.Context) (int, error) { return 1, nil }
func (s *passSource) Open(ctx context.Context) (Iterator, error) {
	s.passes = append(s.passes, PassFrom(ctx))
	return Entries("pass", &Entry{ID: "x"}).Open(ctx)
}

func TestRepeat_PassNumbers(t *testing.T) {
	src := &passSource{}
	pull(t, context.Background(), Repeat(FromSource(src)), 3)
	want := []int{0, 1, 2}
	if len(src.passes) != len(want) {
		t.Fatalf("passes: got %v", src.passes)
	}
	for i := range want {
		if src.passes[i] != want[i] {
			t.Errorf("pass[%d]: got %d, want %d", i, src.passes[i], want[i])
		}
	}
}

func TestTake(t *testing.T) {
	ctx := context.Background()
	it, err := Take(Repeat(tracked("a", 2, nil)), 3).Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Collect(ctx, it)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("Take(3): got %d entries", len(got))
	}
	if _, err := it.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next after take: got %v, want io.EOF", err)
	}
}

func TestEntry_Clone(t *testing.T) {
	e := &Entry{ID: "a"}
	e.Set("k", 1)
	c := e.Clone()
	c.Set("k", 2)
	if v, _ := e.Get("k"); v != 1 {
		t.Errorf("original metadata changed: %v", v)
	}
}
