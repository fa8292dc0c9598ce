package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/njoerd114/holocron/internal/model"
)

// baseColumns are selected first for every kind, in model.Base order.
var baseColumns = []string{"id", "remote_id", "url", "votes", "created_at", "updated_at"}

// table describes how one kind maps onto its SQL table.
type table struct {
	name   string
	fields []string // kind-specific columns, written by create and update
	search string   // column matched by List's search filter
	values func(rec model.Record) []any
	scan   func(s scanner) (model.Record, error)
}

var tables = map[model.Kind]*table{
	model.KindCharacter: {
		name:   "characters",
		fields: []string{"name", "height", "mass", "gender"},
		search: "name",
		values: func(rec model.Record) []any {
			c := rec.(*model.Character)
			return []any{c.Name, c.Height, c.Mass, c.Gender}
		},
		scan: func(s scanner) (model.Record, error) {
			var c model.Character
			var ts timestamps
			dest := append(ts.base(&c.Base), &c.Name, &c.Height, &c.Mass, &c.Gender)
			if err := s.Scan(dest...); err != nil {
				return nil, err
			}
			ts.apply(&c.Base)
			return &c, nil
		},
	},
	model.KindFilm: {
		name:   "films",
		fields: []string{"title", "episode_id", "director", "producer", "release_date"},
		search: "title",
		values: func(rec model.Record) []any {
			f := rec.(*model.Film)
			var episode sql.NullInt64
			if f.EpisodeID != nil {
				episode = sql.NullInt64{Int64: *f.EpisodeID, Valid: true}
			}
			return []any{f.Title, episode, f.Director, f.Producer, f.ReleaseDate}
		},
		scan: func(s scanner) (model.Record, error) {
			var f model.Film
			var ts timestamps
			var episode sql.NullInt64
			dest := append(ts.base(&f.Base), &f.Title, &episode, &f.Director, &f.Producer, &f.ReleaseDate)
			if err := s.Scan(dest...); err != nil {
				return nil, err
			}
			ts.apply(&f.Base)
			if episode.Valid {
				f.EpisodeID = &episode.Int64
			}
			return &f, nil
		},
	},
	model.KindStarship: {
		name:   "starships",
		fields: []string{"name", "model", "manufacturer"},
		search: "name",
		values: func(rec model.Record) []any {
			st := rec.(*model.Starship)
			return []any{st.Name, st.Model, st.Manufacturer}
		},
		scan: func(s scanner) (model.Record, error) {
			var st model.Starship
			var ts timestamps
			dest := append(ts.base(&st.Base), &st.Name, &st.Model, &st.Manufacturer)
			if err := s.Scan(dest...); err != nil {
				return nil, err
			}
			ts.apply(&st.Base)
			return &st, nil
		},
	},
}

// tableFor returns the table descriptor for kind.
func tableFor(kind model.Kind) (*table, error) {
	t, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownKind, kind)
	}
	return t, nil
}

// columns returns the full select list: base columns then kind fields.
func (t *table) columns() string {
	return strings.Join(append(append([]string{}, baseColumns...), t.fields...), ", ")
}

// timestamps holds the text form of created_at/updated_at during a scan.
type timestamps struct {
	created, updated string
}

func (ts *timestamps) base(b *model.Base) []any {
	return []any{&b.ID, &b.RemoteID, &b.URL, &b.Votes, &ts.created, &ts.updated}
}

func (ts *timestamps) apply(b *model.Base) {
	b.CreatedAt, _ = parseTime(ts.created)
	b.UpdatedAt, _ = parseTime(ts.updated)
}
