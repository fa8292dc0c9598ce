package sync

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/njoerd114/holocron/internal/model"
	"github.com/njoerd114/holocron/internal/store"
)

var testLogger = slog.Default()

func person(id, name string) model.RemoteRecord {
	return model.RemoteRecord{
		"name":   name,
		"height": "172",
		"url":    "https://swapi.info/api/people/" + id + "/",
	}
}

func TestSync_TwoPageScenario(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.set("people", person("1", "Luke"), person("2", "Leia"))
	st := newMockStore()
	e := NewEngine(fetcher, st, testLogger)

	res, err := e.Sync(context.Background(), model.KindCharacter)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Created != 2 {
		t.Errorf("Created = %d, want 2", res.Created)
	}
	if res.Fetched != 2 || res.Existing != 0 || res.Unresolved != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
	for id, name := range map[int64]string{1: "Luke", 2: "Leia"} {
		rec := st.byRemoteID(model.KindCharacter, id)
		if rec == nil {
			t.Fatalf("no record for remote id %d", id)
		}
		if got := rec.(*model.Character).Name; got != name {
			t.Errorf("remote id %d name = %q, want %q", id, got, name)
		}
	}
	if len(fetcher.calls) != 1 || fetcher.calls[0] != "people" {
		t.Errorf("fetcher calls = %v, want [people]", fetcher.calls)
	}
}

func TestSync_Idempotent(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.set("films",
		model.RemoteRecord{"title": "A New Hope", "episode_id": float64(4), "url": "https://swapi.info/api/films/1/"},
		model.RemoteRecord{"title": "The Empire Strikes Back", "url": "https://swapi.info/api/films/2/"},
	)
	st := newMockStore()
	e := NewEngine(fetcher, st, testLogger)
	ctx := context.Background()

	first, err := e.Sync(ctx, model.KindFilm)
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	second, err := e.Sync(ctx, model.KindFilm)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if first.Created != 2 {
		t.Errorf("first Created = %d, want 2", first.Created)
	}
	if second.Created != 0 || second.Existing != 2 {
		t.Errorf("second run: created=%d existing=%d, want 0/2", second.Created, second.Existing)
	}
	if first.RunID == second.RunID {
		t.Error("runs share a RunID")
	}
}

func TestSync_DoesNotOverwriteExisting(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.set("people", person("1", "Luke"))
	st := newMockStore()
	e := NewEngine(fetcher, st, testLogger)
	ctx := context.Background()

	if _, err := e.Sync(ctx, model.KindCharacter); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	st.byRemoteID(model.KindCharacter, 1).(*model.Character).Name = "Luke (edited)"

	fetcher.set("people", person("1", "Luke Skywalker"))
	res, err := e.Sync(ctx, model.KindCharacter)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if res.Created != 0 {
		t.Errorf("Created = %d, want 0", res.Created)
	}
	if got := st.byRemoteID(model.KindCharacter, 1).(*model.Character).Name; got != "Luke (edited)" {
		t.Errorf("name = %q, local edit was overwritten", got)
	}
}

func TestSync_DuplicatesAcrossPagesCountOnce(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.set("people", person("1", "Luke"), person("1", "Luke again"), person("2", "Leia"))
	st := newMockStore()
	e := NewEngine(fetcher, st, testLogger)

	res, err := e.Sync(context.Background(), model.KindCharacter)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Created != 2 || res.Existing != 1 || res.Fetched != 3 {
		t.Errorf("result = %+v, want fetched 3 created 2 existing 1", res)
	}
}

func TestSync_FetchFailureWritesNothing(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.err = errors.New("catalog returned status 500")
	st := newMockStore()
	e := NewEngine(fetcher, st, testLogger)

	res, err := e.Sync(context.Background(), model.KindStarship)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, fetcher.err) {
		t.Errorf("error chain does not contain the fetch error: %v", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != model.KindStarship {
		t.Errorf("err = %#v, want *FetchError for starships", err)
	}
	if res.Created != 0 || res.Fetched != 0 {
		t.Errorf("result = %+v, want zero counts", res)
	}
	if n := st.writeCount(); n != 0 {
		t.Errorf("store saw %d writes, want 0", n)
	}
}

func TestSync_UnresolvedLocatorsStillStored(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.set("starships",
		model.RemoteRecord{"name": "Broken A", "url": "https://swapi.info/api/starships/abc/"},
		model.RemoteRecord{"name": "Broken B"},
		model.RemoteRecord{"name": "X-wing", "url": "https://swapi.info/api/starships/12/"},
	)
	st := newMockStore()
	e := NewEngine(fetcher, st, testLogger)

	res, err := e.Sync(context.Background(), model.KindStarship)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Unresolved != 2 {
		t.Errorf("Unresolved = %d, want 2", res.Unresolved)
	}
	// Both malformed records share the sentinel identity: one row, one hit.
	if res.Created != 2 || res.Existing != 1 {
		t.Errorf("created=%d existing=%d, want 2/1", res.Created, res.Existing)
	}
	rec := st.byRemoteID(model.KindStarship, model.InvalidRemoteID)
	if rec == nil || rec.(*model.Starship).Name != "Broken A" {
		t.Errorf("sentinel record = %+v, want Broken A", rec)
	}
}

func TestSync_StoreFailureStopsRun(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.set("people", person("1", "Luke"), person("2", "Leia"), person("3", "Han"))
	st := newMockStore()
	st.failOn = 2
	e := NewEngine(fetcher, st, testLogger)

	res, err := e.Sync(context.Background(), model.KindCharacter)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if res.Created != 1 {
		t.Errorf("Created = %d, want 1 (records before the failure)", res.Created)
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		t.Errorf("store failure reported as fetch failure: %v", err)
	}
	if st.count(model.KindCharacter) != 1 {
		t.Errorf("stored %d characters, want 1", st.count(model.KindCharacter))
	}
}

func TestSync_UnknownKind(t *testing.T) {
	e := NewEngine(newMockFetcher(), newMockStore(), testLogger)
	if _, err := e.Sync(context.Background(), model.Kind("planets")); !errors.Is(err, model.ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
}

func TestSyncAll_RunsEveryKindInOrder(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.set("people", person("1", "Luke"))
	fetcher.set("films", model.RemoteRecord{"title": "A New Hope", "url": "https://swapi.info/api/films/1/"})
	fetcher.set("starships", model.RemoteRecord{"name": "X-wing", "url": "https://swapi.info/api/starships/12/"})
	st := newMockStore()
	e := NewEngine(fetcher, st, testLogger)

	results, err := e.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	want := []string{"people", "films", "starships"}
	for i, r := range results {
		if r.Kind != model.Kinds[i] || r.Created != 1 {
			t.Errorf("results[%d] = %+v", i, r)
		}
		if fetcher.calls[i] != want[i] {
			t.Errorf("fetch %d = %q, want %q", i, fetcher.calls[i], want[i])
		}
	}
}

// TestSync_WithSQLiteStore runs the engine against the real store to check
// the contract end to end.
func TestSync_WithSQLiteStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "sync.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	fetcher := newMockFetcher()
	fetcher.set("people", person("1", "Luke"), person("2", "Leia"))
	e := NewEngine(fetcher, st, testLogger)
	ctx := context.Background()

	first, err := e.Sync(ctx, model.KindCharacter)
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	second, err := e.Sync(ctx, model.KindCharacter)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if first.Created != 2 || second.Created != 0 {
		t.Errorf("created = %d then %d, want 2 then 0", first.Created, second.Created)
	}

	recs, total, err := st.List(ctx, model.KindCharacter, store.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if recs[0].Meta().RemoteID != 1 || recs[1].Meta().RemoteID != 2 {
		t.Errorf("remote ids = %d, %d; want 1, 2", recs[0].Meta().RemoteID, recs[1].Meta().RemoteID)
	}
}
