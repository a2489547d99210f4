package queue

import (
	"errors"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/friendsincode/guildtune/internal/models"
)

func track(id string) models.Track {
	return models.Track{ID: id, Title: "title " + id, SourceURI: "https://youtu.be/" + id}
}

func ids(tracks []models.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.ID
	}
	return out
}

func filled(t *testing.T, names ...string) *Queue {
	t.Helper()
	q := New(WithRand(rand.New(rand.NewSource(7))))
	for _, n := range names {
		if err := q.Enqueue(track(n)); err != nil {
			t.Fatalf("enqueue %s: %v", n, err)
		}
	}
	return q
}

func TestEnqueueThenAdvanceReturnsSameTrack(t *testing.T) {
	q := New()
	for _, n := range []string{"x", "y", "z"} {
		before := q.Size()
		if err := q.Enqueue(track(n)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		got, ok := q.Advance()
		if !ok || got.ID != n {
			t.Fatalf("expected %s, got %q ok=%v", n, got.ID, ok)
		}
		if q.Size() != before {
			t.Fatalf("size changed: %d -> %d", before, q.Size())
		}
	}
}

func TestAdvanceOrder(t *testing.T) {
	q := filled(t, "A", "B", "C")
	var got []string
	for {
		tr, ok := q.Advance()
		if !ok {
			break
		}
		got = append(got, tr.ID)
	}
	if !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestEnqueueFront(t *testing.T) {
	q := filled(t, "A", "B")
	if err := q.EnqueueFront(track("Z")); err != nil {
		t.Fatalf("enqueue front: %v", err)
	}
	if got := ids(q.Pending()); !reflect.DeepEqual(got, []string{"Z", "A", "B"}) {
		t.Fatalf("unexpected pending: %v", got)
	}
}

func TestRemove(t *testing.T) {
	tests := []struct {
		name     string
		position int
		wantErr  bool
		wantID   string
		wantLeft []string
	}{
		{"first", 1, false, "A", []string{"B", "C"}},
		{"middle", 2, false, "B", []string{"A", "C"}},
		{"last", 3, false, "C", []string{"A", "B"}},
		{"zero", 0, true, "", []string{"A", "B", "C"}},
		{"negative", -1, true, "", []string{"A", "B", "C"}},
		{"past end", 5, true, "", []string{"A", "B", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := filled(t, "A", "B", "C")
			got, err := q.Remove(tt.position)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPosition) {
					t.Fatalf("expected ErrInvalidPosition, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("remove: %v", err)
			} else if got.ID != tt.wantID {
				t.Errorf("removed %q, want %q", got.ID, tt.wantID)
			}
			if left := ids(q.Pending()); !reflect.DeepEqual(left, tt.wantLeft) {
				t.Errorf("pending = %v, want %v", left, tt.wantLeft)
			}
		})
	}
}

func TestRemoveInvalidKeepsSize(t *testing.T) {
	q := filled(t, "A", "B", "C")
	if _, err := q.Remove(5); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
	if q.Size() != 3 {
		t.Fatalf("expected size 3, got %d", q.Size())
	}
}

func TestMove(t *testing.T) {
	tests := []struct {
		name    string
		from    int
		to      int
		wantErr bool
		want    []string
	}{
		{"forward", 1, 3, false, []string{"B", "C", "A", "D"}},
		{"backward", 4, 1, false, []string{"D", "A", "B", "C"}},
		{"adjacent", 2, 3, false, []string{"A", "C", "B", "D"}},
		{"same", 2, 2, false, []string{"A", "B", "C", "D"}},
		{"from zero", 0, 2, true, []string{"A", "B", "C", "D"}},
		{"to past end", 1, 5, true, []string{"A", "B", "C", "D"}},
		{"both invalid", 9, -3, true, []string{"A", "B", "C", "D"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := filled(t, "A", "B", "C", "D")
			before := ids(q.Pending())
			_, err := q.Move(tt.from, tt.to)
			if tt.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPosition) {
				t.Fatalf("expected ErrInvalidPosition, got %v", err)
			}
			after := ids(q.Pending())
			if !reflect.DeepEqual(after, tt.want) {
				t.Errorf("pending = %v, want %v", after, tt.want)
			}
			sort.Strings(before)
			sort.Strings(after)
			if !reflect.DeepEqual(before, after) {
				t.Errorf("multiset changed: %v vs %v", before, after)
			}
		})
	}
}

func TestShuffleIsPermutation(t *testing.T) {
	for _, n := range []int{0, 1, 2, 5, 20} {
		names := make([]string, n)
		for i := range names {
			names[i] = string(rune('a' + i))
		}
		q := filled(t, names...)
		q.PushHistory(track("h"))
		q.Shuffle()

		got := ids(q.Pending())
		if n < 2 {
			if !reflect.DeepEqual(got, ids(filled(t, names...).Pending())) {
				t.Fatalf("shuffle of %d items changed order: %v", n, got)
			}
			continue
		}
		if len(got) != n {
			t.Fatalf("length changed: %d -> %d", n, len(got))
		}
		sorted := append([]string(nil), got...)
		sort.Strings(sorted)
		if !reflect.DeepEqual(sorted, names) {
			t.Fatalf("not a permutation: %v", got)
		}
		if h := ids(q.History()); !reflect.DeepEqual(h, []string{"h"}) {
			t.Fatalf("history touched: %v", h)
		}
	}
}

func TestHistoryCap(t *testing.T) {
	q := New(WithHistoryCap(3))
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		q.PushHistory(track(n))
	}
	if got := ids(q.History()); !reflect.DeepEqual(got, []string{"c", "d", "e"}) {
		t.Fatalf("history = %v", got)
	}
	last, ok := q.PopHistory()
	if !ok || last.ID != "e" {
		t.Fatalf("pop = %q ok=%v", last.ID, ok)
	}
}

func TestSkipTo(t *testing.T) {
	q := filled(t, "A", "B", "C")
	skipped, err := q.SkipTo(2)
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if got := ids(skipped); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("skipped = %v", got)
	}
	if got := ids(q.Pending()); !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Fatalf("pending = %v", got)
	}

	if _, err := q.SkipTo(3); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
	if q.Size() != 2 {
		t.Fatalf("invalid skip mutated queue")
	}
}

func TestMaxSize(t *testing.T) {
	q := New(WithMaxSize(2))
	_ = q.Enqueue(track("a"))
	_ = q.Enqueue(track("b"))
	if err := q.Enqueue(track("c")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if err := q.EnqueueFront(track("c")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestClearKeepsHistory(t *testing.T) {
	q := filled(t, "A", "B")
	q.PushHistory(track("h"))
	q.Clear()
	if !q.IsEmpty() {
		t.Fatal("expected empty pending")
	}
	if len(q.History()) != 1 {
		t.Fatal("clear should not touch history")
	}
}
