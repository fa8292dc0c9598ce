package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/njoerd114/holocron/internal/model"
)

// link describes one character many-to-many table.
type link struct {
	table  string // join table
	column string // foreign key column pointing at target
	target model.Kind
}

var (
	filmLink     = link{table: "character_films", column: "film_id", target: model.KindFilm}
	starshipLink = link{table: "character_starships", column: "starship_id", target: model.KindStarship}
)

// setLinks replaces a character's film and starship links. Nil id slices
// leave the corresponding links untouched. Records of other kinds have no
// links and are ignored.
func setLinks(ctx context.Context, q querier, characterID int64, rec model.Record) error {
	c, ok := rec.(*model.Character)
	if !ok {
		return nil
	}
	if c.FilmIDs != nil {
		if err := replaceLinks(ctx, q, filmLink, characterID, c.FilmIDs); err != nil {
			return err
		}
	}
	if c.StarshipIDs != nil {
		if err := replaceLinks(ctx, q, starshipLink, characterID, c.StarshipIDs); err != nil {
			return err
		}
	}
	return nil
}

func replaceLinks(ctx context.Context, q querier, l link, characterID int64, ids []int64) error {
	del := fmt.Sprintf(`DELETE FROM %s WHERE character_id = ?`, l.table)
	if _, err := q.ExecContext(ctx, del, characterID); err != nil {
		return fmt.Errorf("clearing %s for character id=%d: %w", l.table, characterID, err)
	}
	ins := fmt.Sprintf(`INSERT OR IGNORE INTO %s (character_id, %s) VALUES (?, ?)`, l.table, l.column)
	for _, id := range ids {
		if _, err := q.ExecContext(ctx, ins, characterID, id); err != nil {
			return fmt.Errorf("linking %s id=%d: %w", l.target.Singular(), id, constraintError(err))
		}
	}
	return nil
}

// loadLinks fills a character's linked ids and records. Other kinds are left
// as they are.
func (s *Store) loadLinks(ctx context.Context, q querier, rec model.Record) error {
	c, ok := rec.(*model.Character)
	if !ok {
		return nil
	}

	films, err := linked(ctx, q, filmLink, c.ID)
	if err != nil {
		return err
	}
	starships, err := linked(ctx, q, starshipLink, c.ID)
	if err != nil {
		return err
	}

	c.FilmIDs, c.Films = make([]int64, 0, len(films)), make([]model.Film, 0, len(films))
	for _, r := range films {
		f := r.(*model.Film)
		c.FilmIDs = append(c.FilmIDs, f.ID)
		c.Films = append(c.Films, *f)
	}
	c.StarshipIDs, c.Starships = make([]int64, 0, len(starships)), make([]model.Starship, 0, len(starships))
	for _, r := range starships {
		st := r.(*model.Starship)
		c.StarshipIDs = append(c.StarshipIDs, st.ID)
		c.Starships = append(c.Starships, *st)
	}
	return nil
}

// linked returns the target records joined to a character, ordered by id.
func linked(ctx context.Context, q querier, l link, characterID int64) ([]model.Record, error) {
	t := tables[l.target]
	cols := strings.Split(t.columns(), ", ")
	for i, c := range cols {
		cols[i] = "t." + c
	}
	query := fmt.Sprintf(
		`SELECT %s FROM %s t JOIN %s l ON l.%s = t.id WHERE l.character_id = ? ORDER BY t.id`,
		strings.Join(cols, ", "), t.name, l.table, l.column,
	)
	rows, err := q.QueryContext(ctx, query, characterID)
	if err != nil {
		return nil, fmt.Errorf("querying %s for character id=%d: %w", l.table, characterID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Record
	for rows.Next() {
		rec, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning linked %s: %w", l.target.Singular(), err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
