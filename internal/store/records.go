package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/njoerd114/holocron/internal/model"
)

// GetOrCreate returns the stored record whose remote id equals rec's, or
// inserts rec when there is none. An existing record is returned unchanged:
// none of rec's fields are written over it. New records always start with
// zero votes.
//
// The insert is a single INSERT ... ON CONFLICT DO NOTHING statement, so two
// concurrent callers with the same identity produce exactly one row and one
// OutcomeCreated.
func (s *Store) GetOrCreate(ctx context.Context, rec model.Record) (model.Record, model.Outcome, error) {
	t, err := tableFor(rec.Kind())
	if err != nil {
		return nil, 0, err
	}
	m := rec.Meta()
	now := formatTime(s.now())

	cols := append([]string{"remote_id", "url", "votes", "created_at", "updated_at"}, t.fields...)
	args := append([]any{m.RemoteID, m.URL, 0, now, now}, t.values(rec)...)
	q := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(remote_id) DO NOTHING RETURNING %s`,
		t.name, strings.Join(cols, ", "), placeholders(len(cols)), t.columns(),
	)

	created, err := t.scan(s.db.QueryRowContext(ctx, q, args...))
	switch {
	case err == nil:
		if err := s.loadLinks(ctx, s.db, created); err != nil {
			return nil, 0, err
		}
		return created, model.OutcomeCreated, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, 0, fmt.Errorf("inserting %s remote_id=%d: %w", rec.Kind().Singular(), m.RemoteID, err)
	}

	existing, err := s.getByRemoteID(ctx, t, m.RemoteID)
	if err != nil {
		return nil, 0, err
	}
	return existing, model.OutcomeExisting, nil
}

// IncrementVotes adds one vote to the record with the given local id and
// returns its state after the increment. The read-modify-write happens inside
// a single UPDATE, so concurrent votes are never lost.
func (s *Store) IncrementVotes(ctx context.Context, kind model.Kind, id int64) (model.Record, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(
		`UPDATE %s SET votes = votes + 1, updated_at = ? WHERE id = ? RETURNING %s`,
		t.name, t.columns(),
	)
	rec, err := t.scan(s.db.QueryRowContext(ctx, q, formatTime(s.now()), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("voting for %s id=%d: %w", kind.Singular(), id, err)
	}
	if err := s.loadLinks(ctx, s.db, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns the record with the given local id.
func (s *Store) Get(ctx context.Context, kind model.Kind, id int64) (model.Record, error) {
	return s.get(ctx, s.db, kind, id)
}

func (s *Store) get(ctx context.Context, q querier, kind model.Kind, id int64) (model.Record, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, t.columns(), t.name)
	rec, err := t.scan(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s id=%d: %w", kind.Singular(), id, err)
	}
	if err := s.loadLinks(ctx, q, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) getByRemoteID(ctx context.Context, t *table, remoteID int64) (model.Record, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE remote_id = ?`, t.columns(), t.name)
	rec, err := t.scan(s.db.QueryRowContext(ctx, q, remoteID))
	if err != nil {
		return nil, fmt.Errorf("reading %s remote_id=%d: %w", t.name, remoteID, err)
	}
	if err := s.loadLinks(ctx, s.db, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListOptions narrows and pages a List call.
type ListOptions struct {
	// Search matches a case-insensitive substring of the name (characters,
	// starships) or title (films). Empty matches everything.
	Search string
	Limit  int
	Offset int
}

// List returns one page of records ordered by local id, together with the
// total number of records matching the search.
func (s *Store) List(ctx context.Context, kind model.Kind, opts ListOptions) ([]model.Record, int, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, 0, err
	}

	where := ""
	var args []any
	if opts.Search != "" {
		where = fmt.Sprintf(` WHERE %s LIKE ? ESCAPE '\'`, t.search)
		args = append(args, "%"+escapeLike(opts.Search)+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t.name+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting %s: %w", kind, err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	q := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY id LIMIT ? OFFSET ?`, t.columns(), t.name, where)
	rows, err := s.db.QueryContext(ctx, q, append(args, limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying %s: %w", kind, err)
	}

	var recs []model.Record
	for rows.Next() {
		rec, err := t.scan(rows)
		if err != nil {
			_ = rows.Close()
			return nil, 0, fmt.Errorf("scanning %s row: %w", kind.Singular(), err)
		}
		recs = append(recs, rec)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, 0, fmt.Errorf("iterating %s: %w", kind, err)
	}

	// Links are loaded after the cursor is closed: the pool has one connection.
	for _, rec := range recs {
		if err := s.loadLinks(ctx, s.db, rec); err != nil {
			return nil, 0, err
		}
	}
	return recs, total, nil
}

// Create inserts rec as a new record and returns it as stored. Votes always
// start at zero. A remote id that is already taken yields ErrDuplicateRemoteID.
func (s *Store) Create(ctx context.Context, rec model.Record) (model.Record, error) {
	t, err := tableFor(rec.Kind())
	if err != nil {
		return nil, err
	}
	m := rec.Meta()
	now := formatTime(s.now())

	cols := append([]string{"remote_id", "url", "votes", "created_at", "updated_at"}, t.fields...)
	args := append([]any{m.RemoteID, m.URL, 0, now, now}, t.values(rec)...)
	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, t.name, strings.Join(cols, ", "), placeholders(len(cols)))

	var out model.Record
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("creating %s: %w", rec.Kind().Singular(), constraintError(err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading new %s id: %w", rec.Kind().Singular(), err)
		}
		if err := setLinks(ctx, tx, id, rec); err != nil {
			return err
		}
		out, err = s.get(ctx, tx, rec.Kind(), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update overwrites the natural fields and url of the record with rec's local
// id. The remote id must match the stored one and votes are never written.
// For characters, non-nil FilmIDs or StarshipIDs replace the stored links.
func (s *Store) Update(ctx context.Context, rec model.Record) (model.Record, error) {
	t, err := tableFor(rec.Kind())
	if err != nil {
		return nil, err
	}
	m := rec.Meta()

	sets := make([]string, 0, len(t.fields)+2)
	for _, f := range t.fields {
		sets = append(sets, f+" = ?")
	}
	sets = append(sets, "url = ?", "updated_at = ?")
	args := append(t.values(rec), m.URL, formatTime(s.now()), m.ID)
	q := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, t.name, strings.Join(sets, ", "))

	var out model.Record
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := s.get(ctx, tx, rec.Kind(), m.ID)
		if err != nil {
			return err
		}
		if current.Meta().RemoteID != m.RemoteID {
			return ErrRemoteIDImmutable
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("updating %s id=%d: %w", rec.Kind().Singular(), m.ID, constraintError(err))
		}
		if err := setLinks(ctx, tx, m.ID, rec); err != nil {
			return err
		}
		out, err = s.get(ctx, tx, rec.Kind(), m.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the record with the given local id. Links to it are removed
// by the schema's cascading foreign keys.
func (s *Store) Delete(ctx context.Context, kind model.Kind, id int64) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+t.name+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting %s id=%d: %w", kind.Singular(), id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting %s id=%d: %w", kind.Singular(), id, err)
	}
	if n == 0 {
		return &model.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
