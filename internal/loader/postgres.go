package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
)

// DefaultPostgresQuery reads the entity_tags table, one row per pair. Rows
// with a NULL tag register an entity without tags.
const DefaultPostgresQuery = `SELECT entity_id, tag FROM entity_tags ORDER BY entity_id, tag`

// PostgresSource groups consecutive (entity_id, tag) rows into Records. The
// query must order rows by entity_id.
type PostgresSource struct {
	db    *sql.DB
	query string
	rows  *sql.Rows

	pending *Record
	done    bool
}

func NewPostgresSource(db *sql.DB, query string) *PostgresSource {
	if query == "" {
		query = DefaultPostgresQuery
	}
	return &PostgresSource{db: db, query: query}
}

func (s *PostgresSource) Next(ctx context.Context) (Record, error) {
	if s.rows == nil && !s.done {
		rows, err := s.db.QueryContext(ctx, s.query)
		if err != nil {
			return Record{}, fmt.Errorf("querying entity tags: %w", err)
		}
		s.rows = rows
	}

	for !s.done && s.rows.Next() {
		var (
			id  string
			tag sql.NullString
		)
		if err := s.rows.Scan(&id, &tag); err != nil {
			return Record{}, fmt.Errorf("scanning entity tag row: %w", err)
		}
		if id == "" {
			return Record{}, fmt.Errorf("row with empty entity_id: %w", ErrMalformedRecord)
		}

		if s.pending != nil && s.pending.EntityID != id {
			out := *s.pending
			s.pending = newPending(id, tag)
			return out, nil
		}
		if s.pending == nil {
			s.pending = newPending(id, tag)
			continue
		}
		if tag.Valid && tag.String != "" {
			s.pending.Tags = append(s.pending.Tags, tag.String)
		}
	}

	if !s.done {
		s.done = true
		err := errors.Join(s.rows.Err(), s.rows.Close())
		if err != nil {
			return Record{}, fmt.Errorf("iterating entity tag rows: %w", err)
		}
	}
	if s.pending != nil {
		out := *s.pending
		s.pending = nil
		return out, nil
	}
	return Record{}, io.EOF
}

// Close releases the result set if iteration stopped early.
func (s *PostgresSource) Close() error {
	if s.rows == nil || s.done {
		return nil
	}
	s.done = true
	return s.rows.Close()
}

func newPending(id string, tag sql.NullString) *Record {
	rec := &Record{EntityID: id, Tags: []string{}}
	if tag.Valid && tag.String != "" {
		rec.Tags = append(rec.Tags, tag.String)
	}
	return rec
}
