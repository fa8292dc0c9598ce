package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/njoerd114/holocron/internal/model"
)

func TestVote_IncrementsByOne(t *testing.T) {
	st := newMockStore()
	rec, _, err := st.GetOrCreate(context.Background(), &model.Film{Base: model.Base{RemoteID: 1}, Title: "A New Hope"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	e := NewEngine(newMockFetcher(), st, testLogger)

	for want := int64(1); want <= 3; want++ {
		got, err := e.Vote(context.Background(), model.KindFilm, rec.Meta().ID)
		if err != nil {
			t.Fatalf("Vote: %v", err)
		}
		if got.Meta().Votes != want {
			t.Errorf("Votes = %d, want %d", got.Meta().Votes, want)
		}
	}
}

func TestVote_NotFoundLeavesStoreUnchanged(t *testing.T) {
	st := newMockStore()
	e := NewEngine(newMockFetcher(), st, testLogger)

	_, err := e.Vote(context.Background(), model.KindCharacter, 99)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	var nf *model.NotFoundError
	if !errors.As(err, &nf) || nf.ID != 99 || nf.Kind != model.KindCharacter {
		t.Errorf("err = %#v, want NotFoundError{characters, 99}", err)
	}
	if n := st.writeCount(); n != 0 {
		t.Errorf("store saw %d writes, want 0", n)
	}
}

func TestVote_UnknownKind(t *testing.T) {
	e := NewEngine(newMockFetcher(), newMockStore(), testLogger)
	if _, err := e.Vote(context.Background(), model.Kind("droids"), 1); !errors.Is(err, model.ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
}
