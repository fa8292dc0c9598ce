package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/njoerd114/holocron/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func luke() *model.Character {
	return &model.Character{
		Base:   model.Base{RemoteID: 1, URL: "https://swapi.info/api/people/1/"},
		Name:   "Luke Skywalker",
		Height: "172",
		Mass:   "77",
		Gender: "male",
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTestStore(t)
	counts, err := s.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts after open: %v", err)
	}
	for _, k := range model.Kinds {
		if counts[k] != 0 {
			t.Errorf("counts[%s] = %d, want 0", k, counts[k])
		}
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holocron.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, _, err := s1.GetOrCreate(context.Background(), luke()); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("s1.Close: %v", err)
	}

	// Re-opening the same file must not fail or wipe data.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer func() { _ = s2.Close() }()
	counts, err := s2.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[model.KindCharacter] != 1 {
		t.Errorf("characters = %d after reopen, want 1", counts[model.KindCharacter])
	}
}

// ---------------------------------------------------------------------------
// GetOrCreate
// ---------------------------------------------------------------------------

func TestGetOrCreate_CreatesThenReturnsExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, outcome, err := s.GetOrCreate(ctx, luke())
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if outcome != model.OutcomeCreated {
		t.Errorf("first outcome = %v, want created", outcome)
	}
	if got.Meta().ID == 0 {
		t.Error("created record has no local id")
	}
	if got.Meta().Votes != 0 {
		t.Errorf("Votes = %d, want 0", got.Meta().Votes)
	}

	again, outcome, err := s.GetOrCreate(ctx, luke())
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	if outcome != model.OutcomeExisting {
		t.Errorf("second outcome = %v, want existing", outcome)
	}
	if again.Meta().ID != got.Meta().ID {
		t.Errorf("second call returned id %d, want %d", again.Meta().ID, got.Meta().ID)
	}
}

func TestGetOrCreate_CreatedAndExistingHaveSameLinkShape(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, _, err := s.GetOrCreate(ctx, luke())
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	existing, _, err := s.GetOrCreate(ctx, luke())
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}

	for name, rec := range map[string]model.Record{"created": created, "existing": existing} {
		c := rec.(*model.Character)
		if c.FilmIDs == nil || c.StarshipIDs == nil || c.Films == nil || c.Starships == nil {
			t.Errorf("%s: link slices not loaded: %+v", name, c)
		}
		if len(c.FilmIDs) != 0 || len(c.StarshipIDs) != 0 {
			t.Errorf("%s: FilmIDs=%v StarshipIDs=%v, want empty", name, c.FilmIDs, c.StarshipIDs)
		}
	}
}

func TestGetOrCreate_DoesNotOverwriteLocalEdits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, _, err := s.GetOrCreate(ctx, luke())
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	edited := rec.(*model.Character)
	edited.Name = "Luke S."
	if _, err := s.Update(ctx, edited); err != nil {
		t.Fatalf("Update: %v", err)
	}

	remote := luke()
	remote.Name = "Luke Skywalker (remastered)"
	remote.Height = "999"
	got, outcome, err := s.GetOrCreate(ctx, remote)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if outcome != model.OutcomeExisting {
		t.Fatalf("outcome = %v, want existing", outcome)
	}
	c := got.(*model.Character)
	if c.Name != "Luke S." || c.Height != "172" {
		t.Errorf("local edits reverted: name=%q height=%q", c.Name, c.Height)
	}
}

func TestGetOrCreate_IgnoresDefaultVotes(t *testing.T) {
	s := openTestStore(t)
	rec := luke()
	rec.Votes = 50
	got, _, err := s.GetOrCreate(context.Background(), rec)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got.Meta().Votes != 0 {
		t.Errorf("Votes = %d, want 0", got.Meta().Votes)
	}
}

func TestGetOrCreate_KindsAreSeparateNamespaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, outcome, err := s.GetOrCreate(ctx, luke()); err != nil || outcome != model.OutcomeCreated {
		t.Fatalf("character: outcome=%v err=%v", outcome, err)
	}
	film := &model.Film{Base: model.Base{RemoteID: 1}, Title: "A New Hope"}
	if _, outcome, err := s.GetOrCreate(ctx, film); err != nil || outcome != model.OutcomeCreated {
		t.Fatalf("film: outcome=%v err=%v", outcome, err)
	}
}

func TestGetOrCreate_SentinelIdentityCollapses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := &model.Starship{Base: model.Base{RemoteID: model.InvalidRemoteID}, Name: "Broken A"}
	second := &model.Starship{Base: model.Base{RemoteID: model.InvalidRemoteID}, Name: "Broken B"}

	if _, outcome, err := s.GetOrCreate(ctx, first); err != nil || outcome != model.OutcomeCreated {
		t.Fatalf("first: outcome=%v err=%v", outcome, err)
	}
	got, outcome, err := s.GetOrCreate(ctx, second)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if outcome != model.OutcomeExisting {
		t.Errorf("second outcome = %v, want existing", outcome)
	}
	if name := got.(*model.Starship).Name; name != "Broken A" {
		t.Errorf("Name = %q, want %q", name, "Broken A")
	}
}

func TestGetOrCreate_ConcurrentSameIdentity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, outcome, err := s.GetOrCreate(ctx, luke())
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			if outcome == model.OutcomeCreated {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}
	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[model.KindCharacter] != 1 {
		t.Errorf("characters = %d, want 1", counts[model.KindCharacter])
	}
}

// ---------------------------------------------------------------------------
// IncrementVotes
// ---------------------------------------------------------------------------

func TestIncrementVotes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, _, err := s.GetOrCreate(ctx, luke())
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	id := rec.Meta().ID

	for want := int64(1); want <= 3; want++ {
		got, err := s.IncrementVotes(ctx, model.KindCharacter, id)
		if err != nil {
			t.Fatalf("IncrementVotes: %v", err)
		}
		if got.Meta().Votes != want {
			t.Errorf("Votes = %d, want %d", got.Meta().Votes, want)
		}
	}
}

func TestIncrementVotes_NotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, _, err := s.GetOrCreate(ctx, luke())
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	_, err = s.IncrementVotes(ctx, model.KindCharacter, 4242)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	// Same local id in another kind is a different record.
	_, err = s.IncrementVotes(ctx, model.KindFilm, rec.Meta().ID)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("film err = %v, want ErrNotFound", err)
	}

	got, err := s.Get(ctx, model.KindCharacter, rec.Meta().ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Meta().Votes != 0 {
		t.Errorf("Votes = %d, want 0 (store must be unchanged)", got.Meta().Votes)
	}
}

func TestIncrementVotes_Concurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, _, err := s.GetOrCreate(ctx, &model.Film{Base: model.Base{RemoteID: 4}, Title: "A New Hope"})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	const voters = 25
	var wg sync.WaitGroup
	for range voters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementVotes(ctx, model.KindFilm, rec.Meta().ID); err != nil {
				t.Errorf("IncrementVotes: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, model.KindFilm, rec.Meta().ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Meta().Votes != voters {
		t.Errorf("Votes = %d, want %d", got.Meta().Votes, voters)
	}
}

// ---------------------------------------------------------------------------
// CRUD
// ---------------------------------------------------------------------------

func TestList_OrderSearchAndPaging(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	names := []string{"X-wing", "TIE Fighter", "Millennium Falcon", "Y-wing", "Star Destroyer"}
	for i, name := range names {
		rec := &model.Starship{Base: model.Base{RemoteID: int64(100 - i)}, Name: name}
		if _, err := s.Create(ctx, rec); err != nil {
			t.Fatalf("Create %q: %v", name, err)
		}
	}

	all, total, err := s.List(ctx, model.KindStarship, ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != len(names) || len(all) != len(names) {
		t.Fatalf("total=%d len=%d, want %d", total, len(all), len(names))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Meta().ID >= all[i].Meta().ID {
			t.Errorf("records not ordered by id: %d before %d", all[i-1].Meta().ID, all[i].Meta().ID)
		}
	}

	wings, total, err := s.List(ctx, model.KindStarship, ListOptions{Search: "WING"})
	if err != nil {
		t.Fatalf("List search: %v", err)
	}
	if total != 2 || len(wings) != 2 {
		t.Errorf("search total=%d len=%d, want 2", total, len(wings))
	}

	page, total, err := s.List(ctx, model.KindStarship, ListOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List page: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("page total=%d len=%d, want 5/2", total, len(page))
	}
	if got := page[0].(*model.Starship).Name; got != "Millennium Falcon" {
		t.Errorf("page[0] = %q, want Millennium Falcon", got)
	}

	none, _, err := s.List(ctx, model.KindStarship, ListOptions{Search: "%"})
	if err != nil {
		t.Fatalf("List wildcard: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("search %% matched %d records, want 0 (must be literal)", len(none))
	}
}

func TestCreate_DuplicateRemoteID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, luke()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := s.Create(ctx, luke())
	if !errors.Is(err, ErrDuplicateRemoteID) {
		t.Errorf("err = %v, want ErrDuplicateRemoteID", err)
	}
}

func TestUpdate_RemoteIDImmutableAndVotesKept(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, &model.Film{Base: model.Base{RemoteID: 2}, Title: "Empire"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.IncrementVotes(ctx, model.KindFilm, rec.Meta().ID); err != nil {
		t.Fatalf("IncrementVotes: %v", err)
	}

	f := rec.(*model.Film)
	f.Title = "The Empire Strikes Back"
	f.Votes = 0
	got, err := s.Update(ctx, f)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.(*model.Film).Title != "The Empire Strikes Back" {
		t.Errorf("Title not updated: %q", got.(*model.Film).Title)
	}
	if got.Meta().Votes != 1 {
		t.Errorf("Votes = %d, want 1 (update must not touch votes)", got.Meta().Votes)
	}

	f.RemoteID = 3
	if _, err := s.Update(ctx, f); !errors.Is(err, ErrRemoteIDImmutable) {
		t.Errorf("err = %v, want ErrRemoteIDImmutable", err)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	s := openTestStore(t)
	rec := luke()
	rec.ID = 77
	if _, err := s.Update(context.Background(), rec); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, luke())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Delete(ctx, model.KindCharacter, rec.Meta().ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, model.KindCharacter, rec.Meta().ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Get after delete err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, model.KindCharacter, rec.Meta().ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
}

func TestCharacterLinks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	film, err := s.Create(ctx, &model.Film{Base: model.Base{RemoteID: 1}, Title: "A New Hope"})
	if err != nil {
		t.Fatalf("Create film: %v", err)
	}
	ship, err := s.Create(ctx, &model.Starship{Base: model.Base{RemoteID: 12}, Name: "X-wing"})
	if err != nil {
		t.Fatalf("Create starship: %v", err)
	}

	c := luke()
	c.FilmIDs = []int64{film.Meta().ID, film.Meta().ID}
	c.StarshipIDs = []int64{ship.Meta().ID}
	rec, err := s.Create(ctx, c)
	if err != nil {
		t.Fatalf("Create character: %v", err)
	}
	got := rec.(*model.Character)
	if len(got.Films) != 1 || got.Films[0].Title != "A New Hope" {
		t.Errorf("Films = %+v, want [A New Hope]", got.Films)
	}
	if len(got.Starships) != 1 || got.Starships[0].Name != "X-wing" {
		t.Errorf("Starships = %+v, want [X-wing]", got.Starships)
	}

	// Nil ids leave links alone on update.
	got.FilmIDs, got.StarshipIDs = nil, nil
	got.Mass = "80"
	updated, err := s.Update(ctx, got)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated.(*model.Character).Films) != 1 {
		t.Error("update with nil FilmIDs dropped links")
	}

	// Deleting the film cascades to the link.
	if err := s.Delete(ctx, model.KindFilm, film.Meta().ID); err != nil {
		t.Fatalf("Delete film: %v", err)
	}
	after, err := s.Get(ctx, model.KindCharacter, rec.Meta().ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := len(after.(*model.Character).Films); n != 0 {
		t.Errorf("Films after delete = %d, want 0", n)
	}
}

func TestCharacterLinks_UnknownTarget(t *testing.T) {
	s := openTestStore(t)
	c := luke()
	c.FilmIDs = []int64{999}
	if _, err := s.Create(context.Background(), c); !errors.Is(err, ErrUnknownLink) {
		t.Errorf("err = %v, want ErrUnknownLink", err)
	}
	counts, err := s.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[model.KindCharacter] != 0 {
		t.Error("failed create left a character behind")
	}
}
