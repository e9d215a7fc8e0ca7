package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"semchord/internal/ident"
	"semchord/internal/query"
	"semchord/internal/service"
)

var testSpace = ident.MustSpace(ident.DefaultConfig())

func mp3Entry(provider string, qos ...string) service.Entry {
	return service.Entry{
		Record: service.Descriptor{Semantic: []string{"media", "music", "convert", "mp3"}, Provider: provider},
		QoS:    qos,
	}
}

func mustID(t *testing.T, d service.Descriptor) ident.ID {
	t.Helper()
	id, err := testSpace.HashIdentifier(d)
	if err != nil {
		t.Fatalf("HashIdentifier(%v): %v", d, err)
	}
	return id
}

func TestInMemoryStore_PutGet(t *testing.T) {
	store := NewInMemoryStore(testSpace)

	e := mp3Entry("10.0.0.1", "eu")
	if err := store.Put(e); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := store.Get(e.Record)
	if !ok {
		t.Fatal("expected entry to be stored")
	}
	if !got.Record.Equal(e.Record) || len(got.QoS) != 1 || got.QoS[0] != "eu" {
		t.Errorf("Get returned %+v", got)
	}

	// Mutating the returned copy must not leak into the store.
	got.QoS[0] = "us"
	again, _ := store.Get(e.Record)
	if again.QoS[0] != "eu" {
		t.Error("store returned shared slice")
	}
}

func TestInMemoryStore_PutRejectsPartialRecord(t *testing.T) {
	store := NewInMemoryStore(testSpace)
	err := store.Put(service.Entry{Record: service.Descriptor{Semantic: []string{"media"}}})
	if err == nil {
		t.Fatal("expected error for partial record")
	}
	if store.Size() != 0 {
		t.Errorf("size = %d after failed put", store.Size())
	}
}

func TestInMemoryStore_ReinsertReplaces(t *testing.T) {
	store := NewInMemoryStore(testSpace)

	if err := store.Put(mp3Entry("10.0.0.1", "slow")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(mp3Entry("10.0.0.1", "fast", "eu")); err != nil {
		t.Fatal(err)
	}

	if store.Size() != 1 {
		t.Fatalf("size = %d, want 1", store.Size())
	}
	got, _ := store.Get(mp3Entry("10.0.0.1").Record)
	if strings.Join(got.QoS, ",") != "fast,eu" {
		t.Errorf("QoS = %v, want latest", got.QoS)
	}
}

func TestInMemoryStore_RemoveAbsentIsNoop(t *testing.T) {
	store := NewInMemoryStore(testSpace)
	if err := store.Put(mp3Entry("10.0.0.1")); err != nil {
		t.Fatal(err)
	}

	if err := store.Remove(mp3Entry("10.0.0.2").Record); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}
	if store.Size() != 1 {
		t.Errorf("size = %d, want 1", store.Size())
	}

	if err := store.RemoveAll([]service.Descriptor{mp3Entry("10.0.0.1").Record, mp3Entry("10.0.0.1").Record}); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if store.Size() != 0 {
		t.Errorf("size = %d, want 0", store.Size())
	}
}

func TestInMemoryStore_SnapshotIsOrdered(t *testing.T) {
	store := NewInMemoryStore(testSpace)
	for i := 0; i < 20; i++ {
		if err := store.Put(mp3Entry(fmt.Sprintf("10.0.0.%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	snap := store.Snapshot()
	if len(snap) != 20 {
		t.Fatalf("snapshot has %d entries", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if mustID(t, snap[i-1].Record) > mustID(t, snap[i].Record) {
			t.Fatalf("snapshot out of order at %d", i)
		}
	}
}

func sortedEntries(t *testing.T, n int) ([]service.Entry, []ident.ID) {
	t.Helper()
	entries := make([]service.Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, service.Entry{
			Record: service.Descriptor{
				Semantic: []string{fmt.Sprintf("s%d", i), "b", "c", "d"},
				Provider: fmt.Sprintf("p%d", i),
			},
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return mustID(t, entries[i].Record) < mustID(t, entries[j].Record)
	})
	ids := make([]ident.ID, n)
	for i, e := range entries {
		ids[i] = mustID(t, e.Record)
	}
	return entries, ids
}

func TestInMemoryStore_ScanIntervalBoundaries(t *testing.T) {
	store := NewInMemoryStore(testSpace)
	entries, ids := sortedEntries(t, 5)
	if err := store.PutAll(entries); err != nil {
		t.Fatal(err)
	}

	got := store.ScanInterval(ids[1], ids[3])
	if len(got) != 2 {
		t.Fatalf("ScanInterval returned %d entries, want 2", len(got))
	}
	if !got[0].Record.Equal(entries[2].Record) || !got[1].Record.Equal(entries[3].Record) {
		t.Errorf("ScanInterval = %v, want entries 2 and 3", got)
	}
}

func TestInMemoryStore_ScanIntervalWraps(t *testing.T) {
	store := NewInMemoryStore(testSpace)
	entries, ids := sortedEntries(t, 5)
	if err := store.PutAll(entries); err != nil {
		t.Fatal(err)
	}

	// (ids[3], ids[1]] wraps past the top of the ring: entries 4, 0, 1.
	got := store.ScanInterval(ids[3], ids[1])
	if len(got) != 3 {
		t.Fatalf("ScanInterval returned %d entries, want 3", len(got))
	}
	want := []service.Entry{entries[4], entries[0], entries[1]}
	for i := range want {
		if !got[i].Record.Equal(want[i].Record) {
			t.Errorf("entry %d = %v, want %v", i, got[i].Record, want[i].Record)
		}
	}

	// Equal bounds cover the whole ring.
	if all := store.ScanInterval(ids[2], ids[2]); len(all) != 5 {
		t.Errorf("ScanInterval(x, x) returned %d entries, want 5", len(all))
	}
}

func TestInMemoryStore_QueryRequiredBoundary(t *testing.T) {
	store := NewInMemoryStore(testSpace)
	for i := 0; i < 5; i++ {
		if err := store.Put(mp3Entry(fmt.Sprintf("10.0.0.%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	// A record with a different first slot must never match.
	other := service.Entry{Record: service.Descriptor{Semantic: []string{"video", "b", "c", "d"}, Provider: "x"}}
	if err := store.Put(other); err != nil {
		t.Fatal(err)
	}

	msgFor := func(required int) query.Message {
		msg, err := query.NewMessage(testSpace, service.Descriptor{Semantic: []string{"media", "music", "convert", "mp3"}}, service.Constraints{}, required)
		if err != nil {
			t.Fatal(err)
		}
		return msg
	}

	tests := []struct {
		required int
		want     int
	}{
		{required: 0, want: 0},
		{required: -1, want: 0},
		{required: 1, want: 1},
		{required: 3, want: 3},
		{required: 5, want: 5},
		{required: 10, want: 5},
	}
	for _, tt := range tests {
		got := store.Query(msgFor(tt.required), nil)
		if len(got) != tt.want {
			t.Errorf("Query(required=%d) returned %d entries, want %d", tt.required, len(got), tt.want)
		}
	}
}

func TestInMemoryStore_QueryExactRecord(t *testing.T) {
	store := NewInMemoryStore(testSpace)
	for i := 0; i < 5; i++ {
		if err := store.Put(mp3Entry(fmt.Sprintf("10.0.0.%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	target := mp3Entry("10.0.0.3")
	msg, err := query.NewMessage(testSpace, target.Record, service.Constraints{}, 1)
	if err != nil {
		t.Fatal(err)
	}
	got := store.Query(msg, nil)
	if len(got) != 1 || !got[0].Record.Equal(target.Record) {
		t.Errorf("Query(exact) = %v", got)
	}
}

func TestInMemoryStore_QueryAppliesPredicate(t *testing.T) {
	store := NewInMemoryStore(testSpace)
	_ = store.Put(mp3Entry("10.0.0.1", "eu"))
	_ = store.Put(mp3Entry("10.0.0.2", "us"))
	_ = store.Put(mp3Entry("10.0.0.3", "eu", "fast"))

	msg, err := query.NewMessage(testSpace, service.Descriptor{Semantic: []string{"media"}}, service.Constraints{Attributes: []string{"eu"}}, 10)
	if err != nil {
		t.Fatal(err)
	}
	got := store.Query(msg, service.SubsetMatcher(msg.Constraints))
	if len(got) != 2 {
		t.Fatalf("Query returned %d entries, want 2", len(got))
	}
	for _, e := range got {
		if e.Record.Provider == "10.0.0.2" {
			t.Error("predicate did not filter us entry")
		}
	}
}

func TestInMemoryStore_QueryPredicateCannotMutate(t *testing.T) {
	store := NewInMemoryStore(testSpace)
	e := mp3Entry("10.0.0.1", "eu")
	_ = store.Put(e)

	msg, err := query.NewMessage(testSpace, service.Descriptor{Semantic: []string{"media"}}, service.Constraints{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	got := store.Query(msg, func(e service.Entry) bool {
		e.QoS[0] = "us"
		e.Record.Semantic[0] = "video"
		return false
	})
	if len(got) != 0 {
		t.Fatalf("Query returned %v, want none", got)
	}

	stored, ok := store.Get(e.Record)
	if !ok {
		t.Fatal("entry lost after predicate ran")
	}
	if stored.QoS[0] != "eu" || stored.Record.Semantic[0] != "media" {
		t.Errorf("predicate changed stored entry: %+v", stored)
	}
}

func TestInMemoryStore_Dump(t *testing.T) {
	store := NewInMemoryStore(testSpace)
	_ = store.Put(mp3Entry("10.0.0.1", "eu"))
	dump := store.Dump()
	if !strings.Contains(dump, "entries (1)") || !strings.Contains(dump, "media/music/convert/mp3/10.0.0.1") {
		t.Errorf("unexpected dump:\n%s", dump)
	}
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	store := NewInMemoryStore(testSpace)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				e := mp3Entry(fmt.Sprintf("10.%d.0.%d", w, i))
				_ = store.Put(e)
				_ = store.ScanInterval(0, testSpace.Max())
				if i%2 == 0 {
					_ = store.Remove(e.Record)
				}
			}
		}(w)
	}
	wg.Wait()

	if store.Size() != 8*25 {
		t.Errorf("size = %d, want %d", store.Size(), 8*25)
	}
}
