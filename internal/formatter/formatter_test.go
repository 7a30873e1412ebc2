package formatter

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"marginalia/api/internal/store"
)

type fakeFlags struct {
	counts     map[string]int
	flaggedBy  map[string]map[string]bool
	err        error
	batchCalls int
	singleCall int
	batchIDs   [][]string
}

func (f *fakeFlags) FlagCounts(_ context.Context, ids []string) (map[string]int, error) {
	f.batchCalls++
	f.batchIDs = append(f.batchIDs, ids)
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]int{}
	for _, id := range ids {
		out[id] = f.counts[id]
	}
	return out, nil
}

func (f *fakeFlags) FlagCount(_ context.Context, id string) (int, error) {
	f.singleCall++
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[id], nil
}

func (f *fakeFlags) FlaggedBy(_ context.Context, userID string, ids []string) (map[string]bool, error) {
	f.batchCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]bool{}
	for _, id := range ids {
		if f.flaggedBy[userID][id] {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakeFlags) IsFlaggedBy(_ context.Context, userID, id string) (bool, error) {
	f.singleCall++
	if f.err != nil {
		return false, f.err
	}
	return f.flaggedBy[userID][id], nil
}

const viewer = "acct:viewer@example.com"

func TestModerationFormatterUsesPreloadedCounts(t *testing.T) {
	flags := &fakeFlags{counts: map[string]int{"a1": 3}}
	f := NewModeration(flags, viewer, nil)
	ctx := context.Background()

	if err := f.Preload(ctx, []string{"a1", "a2"}); err != nil {
		t.Fatalf("Preload: %v", err)
	}
	for _, tc := range []struct {
		id   string
		want int
	}{{"a1", 3}, {"a2", 0}} {
		got, err := f.Format(ctx, store.Annotation{ID: tc.id})
		if err != nil {
			t.Fatalf("Format(%s): %v", tc.id, err)
		}
		want := Fragment{"moderation": map[string]any{"flag_count": tc.want}}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Format(%s) = %v, want %v", tc.id, got, want)
		}
	}
	if flags.batchCalls != 1 || flags.singleCall != 0 {
		t.Fatalf("lookups = %d batch / %d single, want 1 / 0", flags.batchCalls, flags.singleCall)
	}
}

func TestModerationFormatterFallsBackWithoutPreload(t *testing.T) {
	flags := &fakeFlags{counts: map[string]int{"a1": 2}}
	f := NewModeration(flags, viewer, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := f.Format(ctx, store.Annotation{ID: "a1"})
		if err != nil {
			t.Fatalf("Format: %v", err)
		}
		if got["moderation"].(map[string]any)["flag_count"] != 2 {
			t.Fatalf("unexpected fragment %v", got)
		}
	}
	if flags.singleCall != 1 {
		t.Fatalf("single lookups = %d, want 1 (second call served from cache)", flags.singleCall)
	}
}

func TestModerationFormatterAnonymousSkipsLookups(t *testing.T) {
	flags := &fakeFlags{counts: map[string]int{"a1": 5}}
	f := NewModeration(flags, "", nil)
	ctx := context.Background()

	if err := f.Preload(ctx, []string{"a1"}); err != nil {
		t.Fatalf("Preload: %v", err)
	}
	got, err := f.Format(ctx, store.Annotation{ID: "a1"})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no moderation key, got %v", got)
	}
	if flags.batchCalls != 0 || flags.singleCall != 0 {
		t.Fatalf("anonymous viewer triggered %d batch / %d single lookups", flags.batchCalls, flags.singleCall)
	}
}

func TestModerationFormatterEmptyPreload(t *testing.T) {
	flags := &fakeFlags{}
	f := NewModeration(flags, viewer, nil)
	if err := f.Preload(context.Background(), nil); err != nil {
		t.Fatalf("Preload: %v", err)
	}
	if flags.batchCalls != 0 {
		t.Fatalf("empty preload issued %d lookups", flags.batchCalls)
	}
}

func TestModerationFormatterRepeatedPreloadKeepsEntries(t *testing.T) {
	flags := &fakeFlags{counts: map[string]int{"a1": 1, "a2": 4}}
	f := NewModeration(flags, viewer, nil)
	ctx := context.Background()

	if err := f.Preload(ctx, []string{"a1"}); err != nil {
		t.Fatalf("Preload: %v", err)
	}
	if err := f.Preload(ctx, []string{"a2"}); err != nil {
		t.Fatalf("Preload: %v", err)
	}
	got, err := f.Format(ctx, store.Annotation{ID: "a1"})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got["moderation"].(map[string]any)["flag_count"] != 1 {
		t.Fatalf("a1 fragment = %v", got)
	}
	if flags.singleCall != 0 {
		t.Fatalf("a1 should still be cached, got %d single lookups", flags.singleCall)
	}
}

func TestModerationFormatterPropagatesErrors(t *testing.T) {
	boom := errors.New("store unreachable")
	flags := &fakeFlags{err: boom}
	f := NewModeration(flags, viewer, nil)
	ctx := context.Background()

	if err := f.Preload(ctx, []string{"a1"}); !errors.Is(err, boom) {
		t.Fatalf("Preload error = %v, want %v", err, boom)
	}
	if _, err := f.Format(ctx, store.Annotation{ID: "a1"}); !errors.Is(err, boom) {
		t.Fatalf("Format error = %v, want %v", err, boom)
	}
}

func TestFlagFormatter(t *testing.T) {
	flags := &fakeFlags{flaggedBy: map[string]map[string]bool{viewer: {"a2": true}}}
	ctx := context.Background()

	t.Run("preloaded", func(t *testing.T) {
		flags.batchCalls, flags.singleCall = 0, 0
		f := NewFlag(flags, viewer, nil)
		if err := f.Preload(ctx, []string{"a1", "a2"}); err != nil {
			t.Fatalf("Preload: %v", err)
		}
		for id, want := range map[string]bool{"a1": false, "a2": true} {
			got, err := f.Format(ctx, store.Annotation{ID: id})
			if err != nil {
				t.Fatalf("Format: %v", err)
			}
			if got["flagged"] != want {
				t.Fatalf("flagged(%s) = %v, want %v", id, got["flagged"], want)
			}
		}
		if flags.batchCalls != 1 || flags.singleCall != 0 {
			t.Fatalf("lookups = %d / %d", flags.batchCalls, flags.singleCall)
		}
	})

	t.Run("fallback", func(t *testing.T) {
		flags.batchCalls, flags.singleCall = 0, 0
		f := NewFlag(flags, viewer, nil)
		got, err := f.Format(ctx, store.Annotation{ID: "a2"})
		if err != nil {
			t.Fatalf("Format: %v", err)
		}
		if got["flagged"] != true || flags.singleCall != 1 {
			t.Fatalf("fragment %v after %d single lookups", got, flags.singleCall)
		}
	})

	t.Run("anonymous", func(t *testing.T) {
		flags.batchCalls, flags.singleCall = 0, 0
		f := NewFlag(flags, "", nil)
		if err := f.Preload(ctx, []string{"a2"}); err != nil {
			t.Fatalf("Preload: %v", err)
		}
		got, err := f.Format(ctx, store.Annotation{ID: "a2"})
		if err != nil {
			t.Fatalf("Format: %v", err)
		}
		if got["flagged"] != false {
			t.Fatalf("anonymous flagged = %v", got["flagged"])
		}
		if flags.batchCalls != 0 || flags.singleCall != 0 {
			t.Fatalf("anonymous viewer triggered lookups")
		}
	})
}
